// Package memory implements the conversational memory store: durable
// sessions, conversation turns, preferences, learned interaction patterns,
// and system events in SQLite, fronted by a bounded volatile cache. The
// durable store is the single source of truth; cache mirroring is a
// best-effort side effect that never fails a write.
package memory

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// ErrNotFound is returned when a requested preference, session, or pattern
// does not exist. Absence is a normal result for callers, not a failure.
var ErrNotFound = errors.New("memory: not found")

// Turn kinds recorded in the conversation log.
const (
	KindVoice     = "voice"
	KindText      = "text"
	KindWake      = "wake"
	KindKnowledge = "knowledge"
)

// Session is one contiguous period of user activity. A session is open while
// EndedAt is nil; a new interaction outside the sliding window supersedes it.
type Session struct {
	ID               int64
	UserID           string
	StartedAt        time.Time
	EndedAt          *time.Time
	UnlockCount      int
	InteractionCount int
	LastActivityAt   time.Time
}

// Turn is a single conversation exchange. Immutable once written; canonical
// order is CreatedAt descending.
type Turn struct {
	ID        int64
	SessionID int64 // 0 when the turn was recorded outside a session
	UserID    string
	Kind      string
	Input     string
	Output    string
	LatencyMs int64
	Success   bool
	CreatedAt time.Time
}

// PreferenceEntry is a stored user preference. Value is opaque to the store;
// callers typically keep JSON there.
type PreferenceEntry struct {
	UserID         string
	Key            string
	Value          string
	Kind           string
	Importance     int
	LastAccessedAt time.Time
	AccessCount    int
	ExpiresAt      *time.Time
}

// Pattern is an accumulated interaction statistic. Patterns grow
// monotonically and are never deleted. Name distinguishes rows within a
// kind — the topic for topic_interest, empty for the singleton kinds.
type Pattern struct {
	UserID     string
	Kind       string
	Name       string
	Payload    string
	Frequency  int
	Confidence float64
	LastSeenAt time.Time
}

// Event is a recorded system event such as an unlock or wake-word trigger.
type Event struct {
	ID        int64
	SessionID int64
	UserID    string
	Kind      string
	Detail    string
	CreatedAt time.Time
}

// Store is the durable SQLite-backed memory store. It is safe for concurrent
// use; writes are serialized on a single connection.
type Store struct {
	db *sql.DB
}

// DefaultDBPath returns the default path for the memory database. It
// resolves to ~/.aria/memory.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("memory: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".aria")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("memory: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "memory.db"), nil
}

// Open opens (or creates) a Store at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*Store, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("memory: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sessions (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id           TEXT    NOT NULL,
    started_at        INTEGER NOT NULL,  -- Unix millis
    ended_at          INTEGER,           -- NULL while open
    unlock_count      INTEGER NOT NULL DEFAULT 0,
    interaction_count INTEGER NOT NULL DEFAULT 0,
    last_activity_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_user_open
    ON sessions (user_id, ended_at, started_at);

CREATE TABLE IF NOT EXISTS conversations (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER,
    user_id    TEXT    NOT NULL,
    kind       TEXT    NOT NULL,
    input      TEXT    NOT NULL,
    output     TEXT    NOT NULL,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    success    INTEGER NOT NULL DEFAULT 1,
    created_at INTEGER NOT NULL  -- Unix millis
);
CREATE INDEX IF NOT EXISTS idx_conversations_user_created
    ON conversations (user_id, created_at);

CREATE TABLE IF NOT EXISTS preferences (
    user_id          TEXT    NOT NULL,
    key              TEXT    NOT NULL,
    value            TEXT    NOT NULL,
    kind             TEXT    NOT NULL DEFAULT '',
    importance       INTEGER NOT NULL DEFAULT 5,
    last_accessed_at INTEGER NOT NULL,
    access_count     INTEGER NOT NULL DEFAULT 0,
    expires_at       INTEGER,
    PRIMARY KEY (user_id, key)
);

CREATE TABLE IF NOT EXISTS patterns (
    user_id      TEXT    NOT NULL,
    kind         TEXT    NOT NULL,
    name         TEXT    NOT NULL DEFAULT '',
    payload      TEXT    NOT NULL,
    frequency    INTEGER NOT NULL DEFAULT 0,
    confidence   REAL    NOT NULL DEFAULT 0.5,
    last_seen_at INTEGER NOT NULL,
    PRIMARY KEY (user_id, kind, name)
);

CREATE TABLE IF NOT EXISTS events (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER,
    user_id    TEXT    NOT NULL,
    kind       TEXT    NOT NULL,
    detail     TEXT    NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL  -- Unix millis
);
CREATE INDEX IF NOT EXISTS idx_events_user_created
    ON events (user_id, created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("memory: migrate: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("memory: close: %w", err)
	}
	return nil
}

// millis converts a time to the Unix-millisecond representation stored in
// the schema.
func millis(t time.Time) int64 { return t.UnixMilli() }

// fromMillis converts a stored Unix-millisecond timestamp back to time.Time.
func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }
