package memory

import (
	"testing"
)

// newTestStore opens a fresh in-memory store for one test.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpen_MigratesIdempotently(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	// Re-running the migration against an initialized database must not fail.
	if err := s.migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}
