package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPreference_SetThenGet(t *testing.T) {
	t.Parallel()

	ps := NewPreferenceStore(newTestStore(t), NewMemoryCache(), time.Hour, nil, nil)
	ctx := context.Background()

	if err := ps.Set(ctx, "u1", "greeting_style", `{"tone":"warm"}`, "style", 7); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := ps.Get(ctx, "u1", "greeting_style")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != `{"tone":"warm"}` {
		t.Errorf("Get = %q, want the stored value", got)
	}
}

func TestPreference_UnknownKeyNotFound(t *testing.T) {
	t.Parallel()

	ps := NewPreferenceStore(newTestStore(t), NewMemoryCache(), time.Hour, nil, nil)
	_, err := ps.Get(context.Background(), "u1", "unknown")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestPreference_DurableReadBumpsAccessCount(t *testing.T) {
	t.Parallel()

	// No cache: every Get goes durable and must increment the access counter.
	ps := NewPreferenceStore(newTestStore(t), nil, time.Hour, nil, nil)
	ctx := context.Background()

	if err := ps.Set(ctx, "u1", "voice", "calm", "voice", 5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := ps.Get(ctx, "u1", "voice"); err != nil {
			t.Fatalf("Get %d: %v", i, err)
		}
	}

	entry, err := ps.Entry(ctx, "u1", "voice")
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry.AccessCount != 2 {
		t.Errorf("AccessCount = %d, want 2", entry.AccessCount)
	}
}

func TestPreference_CacheHitSkipsDurableStore(t *testing.T) {
	t.Parallel()

	ps := NewPreferenceStore(newTestStore(t), NewMemoryCache(), time.Hour, nil, nil)
	ctx := context.Background()

	if err := ps.Set(ctx, "u1", "voice", "calm", "voice", 5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	// Set primed the cache, so this read never reaches SQLite and the access
	// counter stays untouched.
	if _, err := ps.Get(ctx, "u1", "voice"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	entry, err := ps.Entry(ctx, "u1", "voice")
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry.AccessCount != 0 {
		t.Errorf("AccessCount = %d, want 0 (cache hit path)", entry.AccessCount)
	}
}

func TestPreference_ExpiredRowNotFoundAndNotCounted(t *testing.T) {
	t.Parallel()

	ps := NewPreferenceStore(newTestStore(t), nil, time.Hour, nil, nil)
	ctx := context.Background()

	if err := ps.Set(ctx, "u1", "k", "v", "", 5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	before, err := ps.Entry(ctx, "u1", "k")
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}

	// Expire the row. Reading it must report ErrNotFound without registering
	// an access: the counter and timestamp feed retention decisions, and a
	// read that returns nothing is not an access.
	if _, err := ps.store.db.ExecContext(ctx,
		`UPDATE preferences SET expires_at = ? WHERE user_id = ? AND key = ?`,
		millis(time.Now().Add(-time.Minute)), "u1", "k"); err != nil {
		t.Fatalf("expire row: %v", err)
	}

	if _, err := ps.Get(ctx, "u1", "k"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(expired) error = %v, want ErrNotFound", err)
	}

	after, err := ps.Entry(ctx, "u1", "k")
	if err != nil {
		t.Fatalf("Entry after expiry: %v", err)
	}
	if after.AccessCount != before.AccessCount {
		t.Errorf("AccessCount = %d, want %d (expired read must not count)", after.AccessCount, before.AccessCount)
	}
	if !after.LastAccessedAt.Equal(before.LastAccessedAt) {
		t.Errorf("LastAccessedAt moved from %v to %v on an expired read", before.LastAccessedAt, after.LastAccessedAt)
	}
}

func TestPreference_SetOverwrites(t *testing.T) {
	t.Parallel()

	ps := NewPreferenceStore(newTestStore(t), NewMemoryCache(), time.Hour, nil, nil)
	ctx := context.Background()

	if err := ps.Set(ctx, "u1", "k", "v1", "", 5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := ps.Set(ctx, "u1", "k", "v2", "", 5); err != nil {
		t.Fatalf("Set (overwrite): %v", err)
	}
	got, err := ps.Get(ctx, "u1", "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != "v2" {
		t.Errorf("Get = %q, want v2", got)
	}
}

func TestPreference_ExpiredCacheEntryRepopulates(t *testing.T) {
	t.Parallel()

	cache := NewMemoryCache()
	ps := NewPreferenceStore(newTestStore(t), cache, 10*time.Millisecond, nil, nil)
	ctx := context.Background()

	if err := ps.Set(ctx, "u1", "k", "v", "", 5); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	// TTL expired: the read goes durable, bumps the counter, repopulates.
	got, err := ps.Get(ctx, "u1", "k")
	if err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if got != "v" {
		t.Errorf("Get = %q, want v", got)
	}
	entry, err := ps.Entry(ctx, "u1", "k")
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry.AccessCount != 1 {
		t.Errorf("AccessCount = %d, want 1 (one durable read)", entry.AccessCount)
	}
}
