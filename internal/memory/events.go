package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// EventRingCap is the number of system events mirrored per user in the
// volatile cache.
const EventRingCap = 50

// Event kinds.
const (
	EventUnlock = "unlock"
	EventWake   = "wake_word"
)

// EventLog records system events (unlocks, wake-word triggers) durably and
// mirrors them into a capped per-user cache ring.
type EventLog struct {
	store   *Store
	cache   RecencyCache
	metrics *Metrics
	log     *slog.Logger
}

// NewEventLog constructs an EventLog. cache and metrics may be nil.
func NewEventLog(store *Store, cache RecencyCache, metrics *Metrics, log *slog.Logger) *EventLog {
	if log == nil {
		log = slog.Default()
	}
	return &EventLog{store: store, cache: cache, metrics: metrics, log: log}
}

type cachedEvent struct {
	ID        int64  `json:"id"`
	SessionID int64  `json:"session_id,omitempty"`
	Kind      string `json:"kind"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt int64  `json:"created_at"`
}

func recentEventsKey(userID string) string { return "system_events:" + userID }

// Record stores one event durably and mirrors it best-effort. The event's ID
// and CreatedAt are filled in on success.
func (el *EventLog) Record(ctx context.Context, ev *Event) error {
	ev.CreatedAt = time.Now()

	const q = `
INSERT INTO events (session_id, user_id, kind, detail, created_at)
VALUES (?, ?, ?, ?, ?)`
	var sessionID any
	if ev.SessionID != 0 {
		sessionID = ev.SessionID
	}
	res, err := el.store.db.ExecContext(ctx, q, sessionID, ev.UserID, ev.Kind, ev.Detail, millis(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("memory: record event: %w", err)
	}
	ev.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("memory: record event id: %w", err)
	}

	if el.cache != nil {
		payload, err := json.Marshal(cachedEvent{
			ID:        ev.ID,
			SessionID: ev.SessionID,
			Kind:      ev.Kind,
			Detail:    ev.Detail,
			CreatedAt: millis(ev.CreatedAt),
		})
		if err == nil {
			err = el.cache.Push(ctx, recentEventsKey(ev.UserID), string(payload), EventRingCap)
		}
		if err != nil {
			el.metrics.mirrorFailure()
			el.log.Warn("memory: event cache mirror failed", "user", ev.UserID, "error", err)
		}
	}
	return nil
}

// Recent returns up to n events for the user, newest-first, preferring the
// cache ring and falling back to the durable store.
func (el *EventLog) Recent(ctx context.Context, userID string, n int) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}

	if el.cache != nil && n <= EventRingCap {
		entries, err := el.cache.List(ctx, recentEventsKey(userID), n)
		if err != nil {
			el.log.Warn("memory: event cache read failed", "user", userID, "error", err)
		} else if len(entries) > 0 {
			events := make([]Event, 0, len(entries))
			ok := true
			for _, e := range entries {
				var ce cachedEvent
				if err := json.Unmarshal([]byte(e), &ce); err != nil {
					ok = false
					break
				}
				events = append(events, Event{
					ID:        ce.ID,
					SessionID: ce.SessionID,
					UserID:    userID,
					Kind:      ce.Kind,
					Detail:    ce.Detail,
					CreatedAt: fromMillis(ce.CreatedAt),
				})
			}
			if ok {
				el.metrics.cacheHit("events")
				return events, nil
			}
		}
	}
	el.metrics.cacheMiss("events")

	const q = `
SELECT id, session_id, kind, detail, created_at
FROM   events
WHERE  user_id = ?
ORDER  BY created_at DESC, id DESC
LIMIT  ?`
	rows, err := el.store.db.QueryContext(ctx, q, userID, n)
	if err != nil {
		return nil, fmt.Errorf("memory: recent events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var sessionID *int64
		var created int64
		if err := rows.Scan(&ev.ID, &sessionID, &ev.Kind, &ev.Detail, &created); err != nil {
			return nil, fmt.Errorf("memory: recent events scan: %w", err)
		}
		if sessionID != nil {
			ev.SessionID = *sessionID
		}
		ev.UserID = userID
		ev.CreatedAt = fromMillis(created)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: recent events rows: %w", err)
	}
	return events, nil
}
