package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestResolve_ReusesOpenSessionWithinWindow(t *testing.T) {
	t.Parallel()

	ss := NewSessionStore(newTestStore(t), 4*time.Hour)
	ctx := context.Background()

	first, err := ss.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	second, err := ss.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve (second): %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("second Resolve returned session %d, want %d", second.ID, first.ID)
	}
}

func TestResolve_NewSessionAfterClose(t *testing.T) {
	t.Parallel()

	ss := NewSessionStore(newTestStore(t), 4*time.Hour)
	ctx := context.Background()

	first, err := ss.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := ss.Close(ctx, first.ID); err != nil {
		t.Fatalf("Close: %v", err)
	}
	second, err := ss.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve after close: %v", err)
	}
	if first.ID == second.ID {
		t.Errorf("Resolve after Close returned the closed session %d", first.ID)
	}
}

func TestResolve_UsersGetDistinctSessions(t *testing.T) {
	t.Parallel()

	ss := NewSessionStore(newTestStore(t), 4*time.Hour)
	ctx := context.Background()

	a, err := ss.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("Resolve(alice): %v", err)
	}
	b, err := ss.Resolve(ctx, "bob")
	if err != nil {
		t.Fatalf("Resolve(bob): %v", err)
	}
	if a.ID == b.ID {
		t.Errorf("distinct users share session %d", a.ID)
	}
}

func TestResolve_ConcurrentSingleSession(t *testing.T) {
	t.Parallel()

	ss := NewSessionStore(newTestStore(t), 4*time.Hour)
	ctx := context.Background()

	const workers = 10
	ids := make([]int64, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, err := ss.Resolve(ctx, "u1")
			ids[i], errs[i] = sess.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		if errs[i] != nil {
			t.Fatalf("Resolve goroutine %d: %v", i, errs[i])
		}
		if ids[i] != ids[0] {
			t.Errorf("goroutine %d resolved session %d, want %d", i, ids[i], ids[0])
		}
	}
}

func TestTouchAndRecordUnlock(t *testing.T) {
	t.Parallel()

	ss := NewSessionStore(newTestStore(t), 4*time.Hour)
	ctx := context.Background()

	sess, err := ss.Resolve(ctx, "u1")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := ss.Touch(ctx, sess.ID); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	if err := ss.Touch(ctx, sess.ID); err != nil {
		t.Fatalf("Touch (second): %v", err)
	}
	if err := ss.RecordUnlock(ctx, sess.ID); err != nil {
		t.Fatalf("RecordUnlock: %v", err)
	}

	got, err := ss.Get(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.InteractionCount != 2 {
		t.Errorf("InteractionCount = %d, want 2", got.InteractionCount)
	}
	if got.UnlockCount != 1 {
		t.Errorf("UnlockCount = %d, want 1", got.UnlockCount)
	}
}

func TestClose_UnknownSession(t *testing.T) {
	t.Parallel()

	ss := NewSessionStore(newTestStore(t), 4*time.Hour)
	err := ss.Close(context.Background(), 12345)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Close(unknown) error = %v, want ErrNotFound", err)
	}
}
