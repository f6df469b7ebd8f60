package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// DefaultSessionWindow is the sliding window within which an open session is
// reused rather than superseded.
const DefaultSessionWindow = 4 * time.Hour

// SessionStore resolves, mutates, and closes user sessions. Resolution is
// serialized per user so concurrent interactions never create duplicate open
// sessions.
type SessionStore struct {
	store  *Store
	window time.Duration

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

// NewSessionStore constructs a SessionStore over the durable store. A
// non-positive window falls back to DefaultSessionWindow.
func NewSessionStore(store *Store, window time.Duration) *SessionStore {
	if window <= 0 {
		window = DefaultSessionWindow
	}
	return &SessionStore{
		store:  store,
		window: window,
		users:  make(map[string]*sync.Mutex),
	}
}

// userLock returns the mutex serializing session resolution for one user.
func (ss *SessionStore) userLock(userID string) *sync.Mutex {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	l, ok := ss.users[userID]
	if !ok {
		l = &sync.Mutex{}
		ss.users[userID] = l
	}
	return l
}

// Resolve returns the user's open session when one started within the
// sliding window, creating a new session otherwise. Two calls within the
// window without an intervening Close return the same session.
func (ss *SessionStore) Resolve(ctx context.Context, userID string) (Session, error) {
	l := ss.userLock(userID)
	l.Lock()
	defer l.Unlock()

	now := time.Now()
	cutoff := now.Add(-ss.window)

	const q = `
SELECT id, user_id, started_at, unlock_count, interaction_count, last_activity_at
FROM   sessions
WHERE  user_id = ? AND ended_at IS NULL AND started_at >= ?
ORDER  BY started_at DESC
LIMIT  1`

	var sess Session
	var started, lastActivity int64
	err := ss.store.db.QueryRowContext(ctx, q, userID, millis(cutoff)).Scan(
		&sess.ID, &sess.UserID, &started, &sess.UnlockCount, &sess.InteractionCount, &lastActivity)
	switch {
	case err == nil:
		sess.StartedAt = fromMillis(started)
		sess.LastActivityAt = fromMillis(lastActivity)
		return sess, nil
	case err != sql.ErrNoRows:
		return Session{}, fmt.Errorf("memory: resolve session: %w", err)
	}

	const ins = `
INSERT INTO sessions (user_id, started_at, last_activity_at)
VALUES (?, ?, ?)`
	res, err := ss.store.db.ExecContext(ctx, ins, userID, millis(now), millis(now))
	if err != nil {
		return Session{}, fmt.Errorf("memory: create session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Session{}, fmt.Errorf("memory: create session id: %w", err)
	}
	return Session{
		ID:             id,
		UserID:         userID,
		StartedAt:      now,
		LastActivityAt: now,
	}, nil
}

// Close marks the session ended. Closing an already-closed or unknown
// session returns ErrNotFound.
func (ss *SessionStore) Close(ctx context.Context, sessionID int64) error {
	const q = `UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at IS NULL`
	res, err := ss.store.db.ExecContext(ctx, q, millis(time.Now()), sessionID)
	if err != nil {
		return fmt.Errorf("memory: close session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("memory: close session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("memory: close session %d: %w", sessionID, ErrNotFound)
	}
	return nil
}

// Touch records one interaction against the session, bumping its interaction
// counter and activity timestamp.
func (ss *SessionStore) Touch(ctx context.Context, sessionID int64) error {
	const q = `
UPDATE sessions
SET    interaction_count = interaction_count + 1, last_activity_at = ?
WHERE  id = ?`
	if _, err := ss.store.db.ExecContext(ctx, q, millis(time.Now()), sessionID); err != nil {
		return fmt.Errorf("memory: touch session: %w", err)
	}
	return nil
}

// RecordUnlock bumps the session's unlock counter and activity timestamp.
func (ss *SessionStore) RecordUnlock(ctx context.Context, sessionID int64) error {
	const q = `
UPDATE sessions
SET    unlock_count = unlock_count + 1, last_activity_at = ?
WHERE  id = ?`
	if _, err := ss.store.db.ExecContext(ctx, q, millis(time.Now()), sessionID); err != nil {
		return fmt.Errorf("memory: record unlock: %w", err)
	}
	return nil
}

// Get returns the session by id, including closed sessions.
func (ss *SessionStore) Get(ctx context.Context, sessionID int64) (Session, error) {
	const q = `
SELECT id, user_id, started_at, ended_at, unlock_count, interaction_count, last_activity_at
FROM   sessions
WHERE  id = ?`
	var sess Session
	var started, lastActivity int64
	var ended sql.NullInt64
	err := ss.store.db.QueryRowContext(ctx, q, sessionID).Scan(
		&sess.ID, &sess.UserID, &started, &ended, &sess.UnlockCount, &sess.InteractionCount, &lastActivity)
	if err == sql.ErrNoRows {
		return Session{}, fmt.Errorf("memory: session %d: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return Session{}, fmt.Errorf("memory: get session: %w", err)
	}
	sess.StartedAt = fromMillis(started)
	sess.LastActivityAt = fromMillis(lastActivity)
	if ended.Valid {
		t := fromMillis(ended.Int64)
		sess.EndedAt = &t
	}
	return sess, nil
}
