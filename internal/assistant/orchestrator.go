// Package assistant composes the retrieval pipeline: it turns questions into
// grounded prompts backed by retrieved verses and commentary, delegates to
// the generation model, and formats cited answers. Retrieval failures degrade
// to zero sources and generation failures to canned text; the entry points
// never block on a broken dependency.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"

	"github.com/aria-assistant/aria-go/internal/budget"
	"github.com/aria-assistant/aria-go/internal/corpus"
	"github.com/aria-assistant/aria-go/internal/index"
	"github.com/aria-assistant/aria-go/internal/rag"
)

// Retrieval and generation parameters.
const (
	verseTopK      = 5
	commentaryTopK = 3
	topicVerseTopK = 10

	// generationTimeout bounds every call to the generation model.
	generationTimeout = 30 * time.Second
)

// Canned degradation text.
const (
	apologyText        = "I apologize, but I'm having trouble generating a response right now. Please try again."
	reflectionFallback = "May this verse bring you peace and encouragement today."
)

// dailyTopics is the rotation the daily verse draws from.
var dailyTopics = []string{"hope", "peace", "strength", "love", "faith", "joy", "comfort"}

// fallbackReference is returned when retrieval for the daily verse comes up
// empty.
const fallbackReference = "Jeremiah 29:11"

// Generator is the slice of the chat model the orchestrator needs. The eino
// ChatModel satisfies it; tests substitute a scripted fake.
type Generator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// VerseHit is one retrieved verse with its similarity score.
type VerseHit struct {
	Reference   string
	Text        string
	Translation string
	Score       float32
}

// CommentaryHit is one retrieved commentary excerpt.
type CommentaryHit struct {
	Book        string
	FatherName  string
	SourceTitle string
	Text        string
	Score       float32
}

// Answer is a generated response with its supporting sources.
type Answer struct {
	Question    string
	Text        string
	Verses      []VerseHit
	Commentary  []CommentaryHit
	Translation string
}

// Sources is the total number of retrieved sources backing the answer.
func (a Answer) Sources() int { return len(a.Verses) + len(a.Commentary) }

// VerseDetail is an exact verse lookup with surrounding chapter context and
// related commentary.
type VerseDetail struct {
	Verse      corpus.Record
	Context    []corpus.Record
	Commentary []CommentaryHit
}

// TopicResult is a topic exploration: a synthesized summary over the
// retrieved sources.
type TopicResult struct {
	Topic      string
	Summary    string
	Verses     []VerseHit
	Commentary []CommentaryHit
}

// DailyVerse is the daily pick with its generated reflection.
type DailyVerse struct {
	Topic      string
	Verse      VerseHit
	Reflection string
}

// AnswerRequest carries the inputs for one question.
type AnswerRequest struct {
	Question    string
	Translation string
	// IncludeCommentary widens retrieval to the commentary collection.
	IncludeCommentary bool
	// History is prior conversation context, oldest-first. It is trimmed to
	// the token budget before prompt assembly.
	History []*schema.Message
}

// Orchestrator builds grounded prompts from retrieval results and delegates
// to the generation model.
type Orchestrator struct {
	corpus  *corpus.Store
	index   *index.EmbeddingIndex
	model   Generator
	limiter *rate.Limiter
	timeout time.Duration
	log     *slog.Logger

	// pick selects the daily topic index; swappable in tests.
	pick func(n int) int
}

// NewOrchestrator constructs an Orchestrator. A nil limiter disables rate
// limiting.
func NewOrchestrator(cs *corpus.Store, ix *index.EmbeddingIndex, gen Generator, limiter *rate.Limiter, log *slog.Logger) *Orchestrator {
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		corpus:  cs,
		index:   ix,
		model:   gen,
		limiter: limiter,
		timeout: generationTimeout,
		log:     log,
		pick:    rand.Intn,
	}
}

// Answer retrieves supporting verses (and optionally commentary) for the
// question and generates a grounded answer. It proceeds with zero sources
// when the index is empty, and returns canned text when generation fails —
// the error path never propagates to the caller.
func (o *Orchestrator) Answer(ctx context.Context, req AnswerRequest) Answer {
	ans := Answer{Question: req.Question, Translation: req.Translation}

	ans.Verses = o.retrieveVerses(ctx, req.Question, req.Translation, verseTopK)

	if req.IncludeCommentary {
		commentary, err := o.index.Query(ctx, req.Question, index.CommentaryCollection, commentaryTopK)
		if err != nil {
			o.log.Warn("assistant: commentary retrieval failed", "error", err)
		}
		ans.Commentary = toCommentaryHits(commentary)
	}

	prompt := answerPrompt(req.Question, ans.Verses, ans.Commentary)
	text, err := o.generate(ctx, prompt, req.History)
	if err != nil {
		o.log.Warn("assistant: generation failed", "error", err)
		ans.Text = apologyText
		return ans
	}
	ans.Text = text
	return ans
}

// LookupReference resolves an exact verse reference, returning the verse,
// its surrounding chapter context (two verses either side), and a short
// commentary search keyed on the reference. A miss or unparseable reference
// returns corpus.ErrNotFound.
func (o *Orchestrator) LookupReference(ctx context.Context, reference, translation string) (VerseDetail, error) {
	verse, err := o.corpus.Lookup(ctx, reference, translation)
	if err != nil {
		return VerseDetail{}, fmt.Errorf("assistant: lookup %q: %w", reference, err)
	}

	detail := VerseDetail{Verse: verse}

	chapter, err := o.corpus.Chapter(ctx, verse.Book, verse.Chapter, translation)
	if err != nil {
		o.log.Warn("assistant: chapter context unavailable", "reference", reference, "error", err)
	}
	for _, v := range chapter {
		if d := v.Verse - verse.Verse; d >= -2 && d <= 2 {
			detail.Context = append(detail.Context, v)
		}
	}

	// Key the commentary search on the reference plus the opening of the
	// verse text so topical commentary on the passage surfaces.
	query := verse.Reference + " " + truncate(verse.Text, 100)
	commentary, err := o.index.Query(ctx, query, index.CommentaryCollection, 2)
	if err != nil {
		o.log.Warn("assistant: commentary retrieval failed", "reference", reference, "error", err)
	}
	detail.Commentary = toCommentaryHits(commentary)

	return detail, nil
}

// IsReference reports whether text parses as a verse reference and so should
// take the exact-lookup shortcut instead of semantic search.
func IsReference(text string) bool {
	_, _, _, ok := corpus.ParseReference(strings.TrimSpace(text))
	return ok
}

// ExploreTopic retrieves verses and commentary for a free-text topic and
// synthesizes a summary. Like Answer, it degrades rather than fails.
func (o *Orchestrator) ExploreTopic(ctx context.Context, topic, translation string, limit int) TopicResult {
	if limit <= 0 {
		limit = topicVerseTopK
	}
	res := TopicResult{Topic: topic}

	res.Verses = o.retrieveVerses(ctx, topic, translation, limit)

	commentary, err := o.index.Query(ctx, topic, index.CommentaryCollection, verseTopK)
	if err != nil {
		o.log.Warn("assistant: topic commentary retrieval failed", "topic", topic, "error", err)
	}
	res.Commentary = toCommentaryHits(commentary)

	summary, err := o.generate(ctx, topicPrompt(topic, res.Verses, res.Commentary), nil)
	if err != nil {
		o.log.Warn("assistant: topic summary generation failed", "topic", topic, "error", err)
		summary = apologyText
	}
	res.Summary = summary
	return res
}

// Daily picks a topic from the fixed rotation, retrieves its top verse, and
// asks the model for a short reflection. When retrieval is empty it falls
// back to one well-known verse; when generation fails the reflection falls
// back to canned encouragement.
func (o *Orchestrator) Daily(ctx context.Context, translation string) DailyVerse {
	topic := dailyTopics[o.pick(len(dailyTopics))]
	daily := DailyVerse{Topic: topic}

	hits := o.retrieveVerses(ctx, topic, translation, 3)
	if len(hits) > 0 {
		daily.Verse = hits[0]
	} else if rec, err := o.corpus.Lookup(ctx, fallbackReference, translation); err == nil {
		daily.Verse = VerseHit{Reference: rec.Reference, Text: rec.Text, Translation: rec.Translation, Score: 1}
	} else {
		o.log.Warn("assistant: daily fallback verse unavailable", "error", err)
		daily.Reflection = reflectionFallback
		return daily
	}

	reflection, err := o.generate(ctx, reflectionPrompt(daily.Verse, topic), nil)
	if err != nil || reflection == "" {
		daily.Reflection = reflectionFallback
		return daily
	}
	daily.Reflection = reflection
	return daily
}

// retrieveVerses runs the semantic query and, when it yields nothing (the
// collection was never built, or the store is unreachable), falls back to a
// lexical substring search over the corpus. Lexical hits are exact matches,
// not ranked, so they carry no similarity score.
func (o *Orchestrator) retrieveVerses(ctx context.Context, query, translation string, k int) []VerseHit {
	docs, err := o.index.Query(ctx, query, index.VerseCollection(translation), k)
	if err != nil {
		o.log.Warn("assistant: verse retrieval failed, trying lexical fallback", "error", err)
	}
	if len(docs) > 0 {
		return toVerseHits(docs)
	}

	records, err := o.corpus.SearchText(ctx, query, translation, k)
	if err != nil || len(records) == 0 {
		return nil
	}
	hits := make([]VerseHit, 0, len(records))
	for _, r := range records {
		hits = append(hits, VerseHit{Reference: r.Reference, Text: r.Text, Translation: r.Translation})
	}
	o.log.Debug("assistant: served from lexical fallback", "query", query, "hits", len(hits))
	return hits
}

// generate calls the model with the assembled prompt under the rate limiter
// and timeout, returning the cleaned response text.
func (o *Orchestrator) generate(ctx context.Context, prompt string, history []*schema.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("assistant: rate limit wait: %w", err)
	}

	fixed := []*schema.Message{schema.UserMessage(prompt)}
	history = budget.TrimHistory(fixed, history, budget.DefaultMaxContextTokens)
	msgs := make([]*schema.Message, 0, len(history)+1)
	msgs = append(msgs, history...)
	msgs = append(msgs, fixed...)

	resp, err := o.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("assistant: generate: %w", err)
	}
	return cleanResponse(resp.Content), nil
}

func toVerseHits(docs []rag.Document) []VerseHit {
	hits := make([]VerseHit, 0, len(docs))
	for _, d := range docs {
		hits = append(hits, VerseHit{
			Reference:   d.Metadata["reference"],
			Text:        d.Metadata["text"],
			Translation: d.Metadata["translation"],
			Score:       d.Score,
		})
	}
	return hits
}

func toCommentaryHits(docs []rag.Document) []CommentaryHit {
	hits := make([]CommentaryHit, 0, len(docs))
	for _, d := range docs {
		hits = append(hits, CommentaryHit{
			Book:        d.Metadata["book"],
			FatherName:  d.Metadata["father_name"],
			SourceTitle: d.Metadata["source_title"],
			Text:        d.Content,
			Score:       d.Score,
		})
	}
	return hits
}

// truncate cuts s to at most n bytes without splitting a multi-byte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
