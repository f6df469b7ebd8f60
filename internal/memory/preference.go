package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// DefaultPreferenceTTL is how long a preference stays in the volatile cache
// before the next read repopulates it from the durable store. Independent of
// the session window; the two are tuned separately.
const DefaultPreferenceTTL = time.Hour

// PreferenceStore is the TTL cache-aside key/value preference store. Values
// are opaque strings, typically JSON.
type PreferenceStore struct {
	store   *Store
	cache   KVCache
	ttl     time.Duration
	metrics *Metrics
	log     *slog.Logger
}

// NewPreferenceStore constructs a PreferenceStore. cache may be nil, in which
// case every read goes durable. A non-positive ttl falls back to
// DefaultPreferenceTTL. metrics may be nil.
func NewPreferenceStore(store *Store, cache KVCache, ttl time.Duration, metrics *Metrics, log *slog.Logger) *PreferenceStore {
	if ttl <= 0 {
		ttl = DefaultPreferenceTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &PreferenceStore{
		store:   store,
		cache:   cache,
		ttl:     ttl,
		metrics: metrics,
		log:     log,
	}
}

func preferenceKey(userID, key string) string {
	return "user_context:" + userID + ":" + key
}

// Get returns the preference value for (userID, key). The cache is consulted
// first; on a miss the durable store is read, the access counter bumped, and
// the cache repopulated with the configured TTL. A missing preference returns
// ErrNotFound.
func (ps *PreferenceStore) Get(ctx context.Context, userID, key string) (string, error) {
	if ps.cache != nil {
		v, ok, err := ps.cache.Get(ctx, preferenceKey(userID, key))
		if err != nil {
			ps.log.Warn("memory: preference cache read failed", "key", key, "error", err)
		} else if ok {
			ps.metrics.cacheHit("preferences")
			return v, nil
		}
	}
	ps.metrics.cacheMiss("preferences")

	// The expiry predicate lives in the WHERE clause so an expired row is
	// never counted as an access.
	const q = `
UPDATE preferences
SET    last_accessed_at = ?, access_count = access_count + 1
WHERE  user_id = ? AND key = ?
  AND  (expires_at IS NULL OR expires_at > ?)
RETURNING value`
	now := millis(time.Now())
	var value string
	err := ps.store.db.QueryRowContext(ctx, q, now, userID, key, now).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("memory: preference %s/%s: %w", userID, key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("memory: get preference: %w", err)
	}

	ps.repopulate(ctx, userID, key, value)
	return value, nil
}

// repopulate refreshes the cache entry after a durable read; best-effort.
func (ps *PreferenceStore) repopulate(ctx context.Context, userID, key, value string) {
	if ps.cache == nil {
		return
	}
	if err := ps.cache.SetEx(ctx, preferenceKey(userID, key), value, ps.ttl); err != nil {
		ps.metrics.mirrorFailure()
		ps.log.Warn("memory: preference cache repopulate failed", "key", key, "error", err)
	}
}

// Set upserts the preference durably and refreshes the cache with the same
// TTL. The cache write is best-effort.
func (ps *PreferenceStore) Set(ctx context.Context, userID, key, value, kind string, importance int) error {
	if importance < 1 {
		importance = 1
	}
	if importance > 10 {
		importance = 10
	}

	const q = `
INSERT INTO preferences (user_id, key, value, kind, importance, last_accessed_at, access_count)
VALUES (?, ?, ?, ?, ?, ?, 0)
ON CONFLICT (user_id, key) DO UPDATE SET
    value = excluded.value,
    kind = excluded.kind,
    importance = excluded.importance,
    last_accessed_at = excluded.last_accessed_at`
	if _, err := ps.store.db.ExecContext(ctx, q, userID, key, value, kind, importance, millis(time.Now())); err != nil {
		return fmt.Errorf("memory: set preference: %w", err)
	}

	ps.repopulate(ctx, userID, key, value)
	return nil
}

// Entry returns the full preference row, mainly for inspection and tests.
func (ps *PreferenceStore) Entry(ctx context.Context, userID, key string) (PreferenceEntry, error) {
	const q = `
SELECT user_id, key, value, kind, importance, last_accessed_at, access_count, expires_at
FROM   preferences
WHERE  user_id = ? AND key = ?`
	var e PreferenceEntry
	var lastAccessed int64
	var expires sql.NullInt64
	err := ps.store.db.QueryRowContext(ctx, q, userID, key).Scan(
		&e.UserID, &e.Key, &e.Value, &e.Kind, &e.Importance, &lastAccessed, &e.AccessCount, &expires)
	if err == sql.ErrNoRows {
		return PreferenceEntry{}, fmt.Errorf("memory: preference %s/%s: %w", userID, key, ErrNotFound)
	}
	if err != nil {
		return PreferenceEntry{}, fmt.Errorf("memory: preference entry: %w", err)
	}
	e.LastAccessedAt = fromMillis(lastAccessed)
	if expires.Valid {
		t := fromMillis(expires.Int64)
		e.ExpiresAt = &t
	}
	return e, nil
}
