package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Pattern kinds accumulated by the learner.
const (
	PatternTopicInterest     = "topic_interest"
	PatternActiveHours       = "active_hours"
	PatternConversationTypes = "conversation_types"
)

// Topic confidence parameters: a topic starts at 0.5 when first seen and
// gains 0.1 per subsequent hit, capped at 1.0.
const (
	initialConfidence   = 0.5
	confidenceIncrement = 0.1
)

// TopicClassifier extracts topic labels from user input. The keyword
// implementation is crude; the interface keeps it swappable without touching
// the learner.
type TopicClassifier interface {
	Classify(input string) []string
}

// KeywordClassifier labels input by case-insensitive substring match against
// a fixed vocabulary.
type KeywordClassifier struct {
	vocabulary map[string][]string
	// order fixes iteration order so repeated classification of the same
	// input yields the same label sequence.
	order []string
}

// NewKeywordClassifier returns the default classifier with the built-in
// topic vocabulary.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		vocabulary: map[string][]string{
			"time":     {"time", "clock", "hour", "minute", "when"},
			"weather":  {"weather", "temperature", "rain", "sunny", "cloudy"},
			"greeting": {"hello", "hi", "good morning", "good afternoon", "good evening"},
			"help":     {"help", "assist", "support", "how to"},
			"music":    {"music", "song", "play", "listen"},
			"reminder": {"remind", "remember", "schedule", "appointment"},
			"question": {"what", "how", "why", "where", "when", "who"},
		},
		order: []string{"time", "weather", "greeting", "help", "music", "reminder", "question"},
	}
}

// Classify returns every topic whose keyword list matches the input.
func (c *KeywordClassifier) Classify(input string) []string {
	if input == "" {
		return nil
	}
	lower := strings.ToLower(input)
	var topics []string
	for _, topic := range c.order {
		for _, word := range c.vocabulary[topic] {
			if strings.Contains(lower, word) {
				topics = append(topics, topic)
				break
			}
		}
	}
	return topics
}

// PatternLearner accumulates interaction statistics: per-topic interest,
// an hour-of-day activity histogram, and per-kind conversation counters.
// Patterns only ever grow; nothing is deleted.
type PatternLearner struct {
	store      *Store
	classifier TopicClassifier
	log        *slog.Logger

	// now is swappable in tests to pin the active hour.
	now func() time.Time
}

// NewPatternLearner constructs a PatternLearner. A nil classifier gets the
// default keyword classifier.
func NewPatternLearner(store *Store, classifier TopicClassifier, log *slog.Logger) *PatternLearner {
	if classifier == nil {
		classifier = NewKeywordClassifier()
	}
	if log == nil {
		log = slog.Default()
	}
	return &PatternLearner{
		store:      store,
		classifier: classifier,
		log:        log,
		now:        time.Now,
	}
}

// Observe updates all pattern kinds from one interaction: topic interest for
// every classified topic, the active-hours histogram, and the conversation
// type counter.
func (pl *PatternLearner) Observe(ctx context.Context, userID, input, kind string) error {
	now := pl.now()

	for _, topic := range pl.classifier.Classify(input) {
		if err := pl.bumpTopic(ctx, userID, topic, now); err != nil {
			return err
		}
	}
	if err := pl.bumpHistogram(ctx, userID, PatternActiveHours, "hours",
		fmt.Sprintf("%d", now.Hour()), now); err != nil {
		return err
	}
	if err := pl.bumpHistogram(ctx, userID, PatternConversationTypes, "types", kind, now); err != nil {
		return err
	}
	return nil
}

// bumpTopic increments the topic_interest pattern for one topic, creating it
// at the initial confidence on first sight.
func (pl *PatternLearner) bumpTopic(ctx context.Context, userID, topic string, now time.Time) error {
	payload, err := json.Marshal(map[string]string{"topic": topic})
	if err != nil {
		return fmt.Errorf("memory: marshal topic payload: %w", err)
	}

	const q = `
INSERT INTO patterns (user_id, kind, name, payload, frequency, confidence, last_seen_at)
VALUES (?, ?, ?, ?, 1, ?, ?)
ON CONFLICT (user_id, kind, name) DO UPDATE SET
    frequency = frequency + 1,
    confidence = min(1.0, confidence + ?),
    last_seen_at = excluded.last_seen_at`
	_, err = pl.store.db.ExecContext(ctx, q,
		userID, PatternTopicInterest, topic, string(payload),
		initialConfidence, millis(now), confidenceIncrement)
	if err != nil {
		return fmt.Errorf("memory: bump topic %s: %w", topic, err)
	}
	return nil
}

// bumpHistogram increments one bucket within a singleton histogram pattern
// (active_hours or conversation_types). The histogram lives in the pattern
// payload as {"<field>": {"<bucket>": count, ...}}.
func (pl *PatternLearner) bumpHistogram(ctx context.Context, userID, kind, field, bucket string, now time.Time) error {
	// The read-modify-write must be atomic so concurrent observations do not
	// lose bucket increments.
	tx, err := pl.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("memory: begin %s update: %w", kind, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	const sel = `SELECT payload, frequency FROM patterns WHERE user_id = ? AND kind = ? AND name = ''`

	var payload string
	var frequency int
	err = tx.QueryRowContext(ctx, sel, userID, kind).Scan(&payload, &frequency)
	hist := map[string]map[string]int{field: {}}
	switch {
	case err == sql.ErrNoRows:
		// first observation of this kind
	case err != nil:
		return fmt.Errorf("memory: read %s pattern: %w", kind, err)
	default:
		if err := json.Unmarshal([]byte(payload), &hist); err != nil {
			pl.log.Warn("memory: unreadable pattern payload, resetting", "kind", kind, "error", err)
			hist = map[string]map[string]int{field: {}}
		}
		if hist[field] == nil {
			hist[field] = map[string]int{}
		}
	}

	hist[field][bucket]++
	updated, err := json.Marshal(hist)
	if err != nil {
		return fmt.Errorf("memory: marshal %s payload: %w", kind, err)
	}

	const q = `
INSERT INTO patterns (user_id, kind, name, payload, frequency, confidence, last_seen_at)
VALUES (?, ?, '', ?, 1, ?, ?)
ON CONFLICT (user_id, kind, name) DO UPDATE SET
    payload = excluded.payload,
    frequency = frequency + 1,
    last_seen_at = excluded.last_seen_at`
	if _, err := tx.ExecContext(ctx, q,
		userID, kind, string(updated), initialConfidence, millis(now)); err != nil {
		return fmt.Errorf("memory: bump %s: %w", kind, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("memory: commit %s update: %w", kind, err)
	}
	return nil
}

// Topic returns the topic_interest pattern for one topic, or ErrNotFound.
func (pl *PatternLearner) Topic(ctx context.Context, userID, topic string) (Pattern, error) {
	return pl.pattern(ctx, userID, PatternTopicInterest, topic)
}

// Histogram returns the named bucket counts for a singleton histogram kind.
// An absent pattern returns an empty map, not an error.
func (pl *PatternLearner) Histogram(ctx context.Context, userID, kind, field string) (map[string]int, error) {
	p, err := pl.pattern(ctx, userID, kind, "")
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return map[string]int{}, nil
		}
		return nil, err
	}
	hist := map[string]map[string]int{}
	if err := json.Unmarshal([]byte(p.Payload), &hist); err != nil {
		return nil, fmt.Errorf("memory: decode %s payload: %w", kind, err)
	}
	if hist[field] == nil {
		return map[string]int{}, nil
	}
	return hist[field], nil
}

// TopTopics returns the user's topic_interest patterns ordered by frequency
// descending, capped at limit.
func (pl *PatternLearner) TopTopics(ctx context.Context, userID string, limit int) ([]Pattern, error) {
	const q = `
SELECT user_id, kind, name, payload, frequency, confidence, last_seen_at
FROM   patterns
WHERE  user_id = ? AND kind = ?
ORDER  BY frequency DESC, name ASC
LIMIT  ?`
	rows, err := pl.store.db.QueryContext(ctx, q, userID, PatternTopicInterest, limit)
	if err != nil {
		return nil, fmt.Errorf("memory: top topics: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		var p Pattern
		var lastSeen int64
		if err := rows.Scan(&p.UserID, &p.Kind, &p.Name, &p.Payload, &p.Frequency, &p.Confidence, &lastSeen); err != nil {
			return nil, fmt.Errorf("memory: top topics scan: %w", err)
		}
		p.LastSeenAt = fromMillis(lastSeen)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: top topics rows: %w", err)
	}
	return out, nil
}

func (pl *PatternLearner) pattern(ctx context.Context, userID, kind, name string) (Pattern, error) {
	const q = `
SELECT user_id, kind, name, payload, frequency, confidence, last_seen_at
FROM   patterns
WHERE  user_id = ? AND kind = ? AND name = ?`
	var p Pattern
	var lastSeen int64
	err := pl.store.db.QueryRowContext(ctx, q, userID, kind, name).Scan(
		&p.UserID, &p.Kind, &p.Name, &p.Payload, &p.Frequency, &p.Confidence, &lastSeen)
	if err == sql.ErrNoRows {
		return Pattern{}, fmt.Errorf("memory: pattern %s/%s: %w", kind, name, ErrNotFound)
	}
	if err != nil {
		return Pattern{}, fmt.Errorf("memory: pattern: %w", err)
	}
	p.LastSeenAt = fromMillis(lastSeen)
	return p, nil
}
