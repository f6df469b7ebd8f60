package assistant

import (
	"context"
	"testing"
	"time"

	"github.com/aria-assistant/aria-go/internal/corpus"
	"github.com/aria-assistant/aria-go/internal/index"
	"github.com/aria-assistant/aria-go/internal/memory"
	"github.com/aria-assistant/aria-go/internal/rag"
)

func newTestService(t *testing.T, gen Generator) *Service {
	t.Helper()

	store, err := memory.Open(":memory:")
	if err != nil {
		t.Fatalf("open memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cache := memory.NewMemoryCache()
	cs := corpus.NewStore(writeTestCorpus(t))
	ix := index.New(cs, stubEmbedder{}, rag.NewMemoryStore(), 8, nil)

	ctx := context.Background()
	if err := ix.EnsureBuilt(ctx, index.VerseCollection("BSB")); err != nil {
		t.Fatalf("build verses: %v", err)
	}
	if err := ix.EnsureBuilt(ctx, index.CommentaryCollection); err != nil {
		t.Fatalf("build commentary: %v", err)
	}

	return NewService(ServiceConfig{
		Sessions:     memory.NewSessionStore(store, memory.DefaultSessionWindow),
		Turns:        memory.NewConversationCache(store, cache, 0, nil, nil),
		Preferences:  memory.NewPreferenceStore(store, cache, memory.DefaultPreferenceTTL, nil, nil),
		Patterns:     memory.NewPatternLearner(store, memory.NewKeywordClassifier(), nil),
		Events:       memory.NewEventLog(store, cache, nil, nil),
		Orchestrator: NewOrchestrator(cs, ix, gen, nil, nil),
		Translation:  "BSB",
	})
}

func TestService_RecordTurn(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeGenerator{reply: "ok."})
	ctx := context.Background()

	turn, err := svc.RecordTurn(ctx, "alice", KindVoice, "play some music", "Playing jazz.", 120*time.Millisecond, true)
	if err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}
	if turn.ID == 0 || turn.SessionID == 0 {
		t.Errorf("turn missing identifiers: %+v", turn)
	}

	// The session accumulated the interaction.
	sess, err := svc.sessions.Get(ctx, turn.SessionID)
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	if sess.InteractionCount != 1 {
		t.Errorf("InteractionCount = %d, want 1", sess.InteractionCount)
	}

	// Pattern learning saw the input.
	p, err := svc.patterns.Topic(ctx, "alice", "music")
	if err != nil {
		t.Fatalf("Topic(music): %v", err)
	}
	if p.Frequency != 1 {
		t.Errorf("music frequency = %d, want 1", p.Frequency)
	}

	recent, err := svc.RecentTurns(ctx, "alice", 5)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(recent) != 1 || recent[0].Input != "play some music" {
		t.Errorf("RecentTurns = %+v, want the recorded turn", recent)
	}
}

func TestService_AskReferenceShortcut(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: "should not be called."}
	svc := newTestService(t, gen)
	ctx := context.Background()

	ans, err := svc.Ask(ctx, "alice", "John 3:16", AskOptions{})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if want := "John 3:16: For God so loved the world."; ans.Text != want {
		t.Errorf("Answer.Text = %q, want %q", ans.Text, want)
	}
	if len(gen.prompts) != 0 {
		t.Error("reference lookup reached the generator")
	}

	// The exchange was recorded as a knowledge turn.
	recent, err := svc.RecentTurns(ctx, "alice", 1)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(recent) != 1 || recent[0].Kind != KindKnowledge {
		t.Errorf("recorded turn = %+v, want one knowledge turn", recent)
	}
}

func TestService_AskSemantic(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{reply: "Creation began with God's word."}
	svc := newTestService(t, gen)
	ctx := context.Background()

	ans, err := svc.Ask(ctx, "alice", "how did creation begin", AskOptions{IncludeCommentary: true})
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if ans.Text != gen.reply {
		t.Errorf("Answer.Text = %q, want %q", ans.Text, gen.reply)
	}
	if ans.Sources() == 0 {
		t.Error("semantic answer has no sources")
	}
}

func TestService_Preferences(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeGenerator{reply: "ok."})
	ctx := context.Background()

	if err := svc.SetPreference(ctx, "alice", "voice_preference", `{"voice":"warm"}`, "json", 5); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	got, err := svc.GetPreference(ctx, "alice", "voice_preference")
	if err != nil {
		t.Fatalf("GetPreference: %v", err)
	}
	if got != `{"voice":"warm"}` {
		t.Errorf("GetPreference = %q", got)
	}
}

func TestService_RecordUnlockAndEvents(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeGenerator{reply: "ok."})
	ctx := context.Background()

	if err := svc.RecordUnlock(ctx, "alice", "face_id"); err != nil {
		t.Fatalf("RecordUnlock: %v", err)
	}

	events, err := svc.RecentEvents(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 1 || events[0].Kind != memory.EventUnlock {
		t.Fatalf("RecentEvents = %+v, want one unlock event", events)
	}

	sess, err := svc.sessions.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if sess.UnlockCount != 1 {
		t.Errorf("UnlockCount = %d, want 1", sess.UnlockCount)
	}
}

func TestService_Snapshot(t *testing.T) {
	t.Parallel()

	svc := newTestService(t, &fakeGenerator{reply: "ok."})
	ctx := context.Background()

	if err := svc.SetPreference(ctx, "alice", "greeting_style", "casual", "string", 3); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	for i := 0; i < 7; i++ {
		if _, err := svc.RecordTurn(ctx, "alice", KindText, "hello there", "Hi!", time.Millisecond, true); err != nil {
			t.Fatalf("RecordTurn: %v", err)
		}
	}

	snap, err := svc.Snapshot(ctx, "alice")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Session.ID == 0 {
		t.Error("snapshot missing session")
	}
	if len(snap.RecentTurns) != snapshotTurns {
		t.Errorf("len(RecentTurns) = %d, want %d", len(snap.RecentTurns), snapshotTurns)
	}
	if snap.Preferences["greeting_style"] != "casual" {
		t.Errorf("Preferences = %v, want greeting_style=casual", snap.Preferences)
	}
	if _, ok := snap.Preferences["voice_preference"]; ok {
		t.Error("unset preference present in snapshot")
	}
}
