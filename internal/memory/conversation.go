package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// RecencyCap is the maximum number of turns mirrored into the volatile cache
// per user. Reads wider than this go to the durable store.
const RecencyCap = 20

// ConversationCache is the cache-aside conversation log. Every turn is
// written durably first; the cache mirror is a best-effort side effect whose
// failure never fails the write.
type ConversationCache struct {
	store   *Store
	cache   RecencyCache
	cap     int
	metrics *Metrics
	log     *slog.Logger

	// appendMu serializes timestamp capture, durable insert, and cache
	// mirror so the mirror's list order always matches durable creation
	// order. Without it two concurrent appends could land in the cache in
	// the opposite order of their timestamps.
	appendMu sync.Mutex
}

// NewConversationCache constructs a ConversationCache. cache may be nil, in
// which case every read is served durably. metrics may be nil. A recencyCap
// of zero selects the default.
func NewConversationCache(store *Store, cache RecencyCache, recencyCap int, metrics *Metrics, log *slog.Logger) *ConversationCache {
	if log == nil {
		log = slog.Default()
	}
	if recencyCap <= 0 {
		recencyCap = RecencyCap
	}
	return &ConversationCache{
		store:   store,
		cache:   cache,
		cap:     recencyCap,
		metrics: metrics,
		log:     log,
	}
}

// cachedTurn is the JSON shape mirrored into the recency cache.
type cachedTurn struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"session_id,omitempty"`
	Kind      string `json:"kind"`
	Input     string `json:"input"`
	Output    string `json:"output"`
	LatencyMs int64  `json:"latency_ms"`
	Success   bool   `json:"success"`
	CreatedAt int64  `json:"created_at"`
}

func recentTurnsKey(userID string) string { return "recent_conversations:" + userID }

// Append records one conversation turn: a durable insert followed by a
// best-effort cache mirror. The turn's ID and CreatedAt are filled in on
// success.
func (cc *ConversationCache) Append(ctx context.Context, turn *Turn) error {
	cc.appendMu.Lock()
	defer cc.appendMu.Unlock()

	turn.CreatedAt = time.Now()

	const q = `
INSERT INTO conversations (session_id, user_id, kind, input, output, latency_ms, success, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var sessionID any
	if turn.SessionID != 0 {
		sessionID = turn.SessionID
	}
	res, err := cc.store.db.ExecContext(ctx, q,
		sessionID, turn.UserID, turn.Kind, turn.Input, turn.Output,
		turn.LatencyMs, boolToInt(turn.Success), millis(turn.CreatedAt))
	if err != nil {
		return fmt.Errorf("memory: append turn: %w", err)
	}
	turn.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("memory: append turn id: %w", err)
	}
	cc.metrics.turnRecorded(turn.Kind)

	cc.mirror(ctx, turn)
	return nil
}

// mirror pushes the turn onto the user's recency list. Failures are logged
// and counted, never propagated.
func (cc *ConversationCache) mirror(ctx context.Context, turn *Turn) {
	if cc.cache == nil {
		return
	}
	payload, err := json.Marshal(cachedTurn{
		ID:        turn.ID,
		SessionID: turn.SessionID,
		Kind:      turn.Kind,
		Input:     turn.Input,
		Output:    turn.Output,
		LatencyMs: turn.LatencyMs,
		Success:   turn.Success,
		CreatedAt: millis(turn.CreatedAt),
	})
	if err != nil {
		cc.metrics.mirrorFailure()
		cc.log.Warn("memory: marshal turn for cache mirror", "error", err)
		return
	}
	if err := cc.cache.Push(ctx, recentTurnsKey(turn.UserID), string(payload), cc.cap); err != nil {
		cc.metrics.mirrorFailure()
		cc.log.Warn("memory: cache mirror failed", "user", turn.UserID, "error", err)
	}
}

// Recent returns up to n turns for the user, newest-first. The cache serves
// reads within the recency cap; wider reads, cache misses, and cache errors
// fall back to the durable store.
func (cc *ConversationCache) Recent(ctx context.Context, userID string, n int) ([]Turn, error) {
	if n <= 0 {
		return nil, nil
	}

	if cc.cache != nil && n <= cc.cap {
		entries, err := cc.cache.List(ctx, recentTurnsKey(userID), n)
		if err != nil {
			cc.log.Warn("memory: cache read failed, falling back to durable store",
				"user", userID, "error", err)
		} else if len(entries) > 0 {
			turns, err := decodeCachedTurns(entries, userID)
			if err == nil {
				cc.metrics.cacheHit("conversations")
				return turns, nil
			}
			cc.log.Warn("memory: cache entries unreadable, falling back to durable store",
				"user", userID, "error", err)
		}
	}
	cc.metrics.cacheMiss("conversations")
	return cc.recentDurable(ctx, userID, n)
}

// decodeCachedTurns parses cache entries back into turns. Any unreadable
// entry poisons the whole read so the caller falls back to the durable store.
func decodeCachedTurns(entries []string, userID string) ([]Turn, error) {
	turns := make([]Turn, 0, len(entries))
	for _, e := range entries {
		var ct cachedTurn
		if err := json.Unmarshal([]byte(e), &ct); err != nil {
			return nil, fmt.Errorf("memory: decode cached turn: %w", err)
		}
		turns = append(turns, Turn{
			ID:        ct.ID,
			SessionID: ct.SessionID,
			UserID:    userID,
			Kind:      ct.Kind,
			Input:     ct.Input,
			Output:    ct.Output,
			LatencyMs: ct.LatencyMs,
			Success:   ct.Success,
			CreatedAt: fromMillis(ct.CreatedAt),
		})
	}
	return turns, nil
}

// recentDurable reads the newest n turns from SQLite, newest-first.
func (cc *ConversationCache) recentDurable(ctx context.Context, userID string, n int) ([]Turn, error) {
	const q = `
SELECT id, session_id, kind, input, output, latency_ms, success, created_at
FROM   conversations
WHERE  user_id = ?
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := cc.store.db.QueryContext(ctx, q, userID, n)
	if err != nil {
		return nil, fmt.Errorf("memory: recent turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var sessionID *int64
		var success int
		var created int64
		if err := rows.Scan(&t.ID, &sessionID, &t.Kind, &t.Input, &t.Output, &t.LatencyMs, &success, &created); err != nil {
			return nil, fmt.Errorf("memory: recent turns scan: %w", err)
		}
		if sessionID != nil {
			t.SessionID = *sessionID
		}
		t.UserID = userID
		t.Success = success != 0
		t.CreatedAt = fromMillis(created)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: recent turns rows: %w", err)
	}
	return turns, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
