package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/aria-assistant/aria-go/internal/memory"
)

// Interaction kinds recorded against conversation turns.
const (
	KindVoice     = memory.KindVoice
	KindText      = memory.KindText
	KindKnowledge = memory.KindKnowledge
)

// snapshotTurns is how many recent turns a context snapshot carries.
const snapshotTurns = 5

// snapshotPreferenceKeys are the preference slots surfaced in a snapshot.
var snapshotPreferenceKeys = []string{"voice_preference", "greeting_style", "interaction_history"}

// Service is the user-facing facade: it binds conversational memory to the
// retrieval orchestrator so every question both consults and feeds the
// user's history.
type Service struct {
	sessions    *memory.SessionStore
	turns       *memory.ConversationCache
	prefs       *memory.PreferenceStore
	patterns    *memory.PatternLearner
	events      *memory.EventLog
	orch        *Orchestrator
	translation string
	log         *slog.Logger
}

// ServiceConfig collects the Service dependencies.
type ServiceConfig struct {
	Sessions     *memory.SessionStore
	Turns        *memory.ConversationCache
	Preferences  *memory.PreferenceStore
	Patterns     *memory.PatternLearner
	Events       *memory.EventLog
	Orchestrator *Orchestrator
	// Translation is the default scripture translation, e.g. "BSB".
	Translation string
	Logger      *slog.Logger
}

// NewService constructs the assistant facade.
func NewService(cfg ServiceConfig) *Service {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		sessions:    cfg.Sessions,
		turns:       cfg.Turns,
		prefs:       cfg.Preferences,
		patterns:    cfg.Patterns,
		events:      cfg.Events,
		orch:        cfg.Orchestrator,
		translation: cfg.Translation,
		log:         log,
	}
}

// RecordTurn persists one interaction: it resolves the user's current
// session, bumps its activity counters, appends the turn durably, and feeds
// the input to pattern learning. Pattern failures are logged, not returned;
// losing a frequency bump must not fail the interaction.
func (s *Service) RecordTurn(ctx context.Context, userID, kind, input, output string, latency time.Duration, success bool) (memory.Turn, error) {
	sess, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return memory.Turn{}, fmt.Errorf("assistant: resolve session: %w", err)
	}
	if err := s.sessions.Touch(ctx, sess.ID); err != nil {
		return memory.Turn{}, fmt.Errorf("assistant: touch session: %w", err)
	}

	turn := memory.Turn{
		SessionID: sess.ID,
		UserID:    userID,
		Kind:      kind,
		Input:     input,
		Output:    output,
		LatencyMs: latency.Milliseconds(),
		Success:   success,
	}
	if err := s.turns.Append(ctx, &turn); err != nil {
		return memory.Turn{}, fmt.Errorf("assistant: record turn: %w", err)
	}

	if err := s.patterns.Observe(ctx, userID, input, kind); err != nil {
		s.log.Warn("assistant: pattern learning failed", "user", userID, "error", err)
	}
	return turn, nil
}

// RecentTurns returns the user's most recent turns, newest first.
func (s *Service) RecentTurns(ctx context.Context, userID string, n int) ([]memory.Turn, error) {
	return s.turns.Recent(ctx, userID, n)
}

// GetPreference reads a stored preference value.
func (s *Service) GetPreference(ctx context.Context, userID, key string) (string, error) {
	return s.prefs.Get(ctx, userID, key)
}

// SetPreference stores a preference value.
func (s *Service) SetPreference(ctx context.Context, userID, key, value, kind string, importance int) error {
	return s.prefs.Set(ctx, userID, key, value, kind, importance)
}

// AskOptions tunes one Ask call.
type AskOptions struct {
	// Translation overrides the service default when non-empty.
	Translation string
	// IncludeCommentary widens retrieval to the commentary collection.
	IncludeCommentary bool
	// HistoryTurns is how many prior turns to feed the prompt. Zero means
	// no conversational context.
	HistoryTurns int
}

// Ask answers a question for a user. Exact verse references short-circuit to
// a corpus lookup; everything else goes through semantic retrieval and
// generation with the user's recent turns as conversational context. The
// exchange is recorded as a knowledge turn either way.
func (s *Service) Ask(ctx context.Context, userID, question string, opts AskOptions) (Answer, error) {
	translation := opts.Translation
	if translation == "" {
		translation = s.translation
	}

	start := time.Now()
	var ans Answer

	if IsReference(question) {
		detail, err := s.orch.LookupReference(ctx, strings.TrimSpace(question), translation)
		if err != nil {
			return Answer{}, err
		}
		ans = answerFromDetail(question, detail, translation)
	} else {
		history, err := s.historyMessages(ctx, userID, opts.HistoryTurns)
		if err != nil {
			s.log.Warn("assistant: history unavailable", "user", userID, "error", err)
		}
		ans = s.orch.Answer(ctx, AnswerRequest{
			Question:          question,
			Translation:       translation,
			IncludeCommentary: opts.IncludeCommentary,
			History:           history,
		})
	}

	success := ans.Text != apologyText
	if _, err := s.RecordTurn(ctx, userID, KindKnowledge, question, ans.Text, time.Since(start), success); err != nil {
		s.log.Warn("assistant: recording turn failed", "user", userID, "error", err)
	}
	return ans, nil
}

// answerFromDetail shapes an exact lookup as an Answer so reference and
// semantic queries share a response type.
func answerFromDetail(question string, detail VerseDetail, translation string) Answer {
	v := detail.Verse
	return Answer{
		Question:    question,
		Text:        fmt.Sprintf("%s: %s", v.Reference, v.Text),
		Verses:      []VerseHit{{Reference: v.Reference, Text: v.Text, Translation: v.Translation, Score: 1}},
		Commentary:  detail.Commentary,
		Translation: translation,
	}
}

// historyMessages converts the user's recent turns into chat messages,
// oldest first, alternating user input and assistant output.
func (s *Service) historyMessages(ctx context.Context, userID string, n int) ([]*schema.Message, error) {
	if n <= 0 {
		return nil, nil
	}
	turns, err := s.turns.Recent(ctx, userID, n)
	if err != nil {
		return nil, err
	}
	msgs := make([]*schema.Message, 0, len(turns)*2)
	for i := len(turns) - 1; i >= 0; i-- { // Recent is newest-first
		msgs = append(msgs, schema.UserMessage(turns[i].Input))
		if turns[i].Output != "" {
			msgs = append(msgs, schema.AssistantMessage(turns[i].Output, nil))
		}
	}
	return msgs, nil
}

// LookupReference resolves an exact verse reference with chapter context.
func (s *Service) LookupReference(ctx context.Context, reference, translation string) (VerseDetail, error) {
	if translation == "" {
		translation = s.translation
	}
	return s.orch.LookupReference(ctx, reference, translation)
}

// ExploreTopic retrieves and summarizes a free-text topic.
func (s *Service) ExploreTopic(ctx context.Context, topic, translation string, limit int) TopicResult {
	if translation == "" {
		translation = s.translation
	}
	return s.orch.ExploreTopic(ctx, topic, translation, limit)
}

// DailyVerse returns the verse of the day with a generated reflection.
func (s *Service) DailyVerse(ctx context.Context, translation string) DailyVerse {
	if translation == "" {
		translation = s.translation
	}
	return s.orch.Daily(ctx, translation)
}

// RecordUnlock notes a device unlock: the session's unlock counter is
// bumped and an event lands in the system event ring.
func (s *Service) RecordUnlock(ctx context.Context, userID, detail string) error {
	sess, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return fmt.Errorf("assistant: resolve session: %w", err)
	}
	if err := s.sessions.RecordUnlock(ctx, sess.ID); err != nil {
		return fmt.Errorf("assistant: record unlock: %w", err)
	}
	return s.events.Record(ctx, &memory.Event{
		SessionID: sess.ID,
		UserID:    userID,
		Kind:      memory.EventUnlock,
		Detail:    detail,
	})
}

// RecentEvents returns the user's most recent system events, newest first.
func (s *Service) RecentEvents(ctx context.Context, userID string, n int) ([]memory.Event, error) {
	return s.events.Recent(ctx, userID, n)
}

// ContextSnapshot is the assistant's working view of a user: the active
// session, recent turns, and the standing preferences that shape responses.
type ContextSnapshot struct {
	Session     memory.Session
	RecentTurns []memory.Turn
	Preferences map[string]string
}

// Snapshot assembles the user's current context. Missing preferences are
// simply absent from the map.
func (s *Service) Snapshot(ctx context.Context, userID string) (ContextSnapshot, error) {
	sess, err := s.sessions.Resolve(ctx, userID)
	if err != nil {
		return ContextSnapshot{}, fmt.Errorf("assistant: resolve session: %w", err)
	}

	turns, err := s.turns.Recent(ctx, userID, snapshotTurns)
	if err != nil {
		return ContextSnapshot{}, fmt.Errorf("assistant: recent turns: %w", err)
	}

	prefs := make(map[string]string, len(snapshotPreferenceKeys))
	for _, key := range snapshotPreferenceKeys {
		val, err := s.prefs.Get(ctx, userID, key)
		if err != nil {
			continue
		}
		prefs[key] = val
	}

	return ContextSnapshot{Session: sess, RecentTurns: turns, Preferences: prefs}, nil
}
