package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/aria-assistant/aria-go/internal/corpus"
	"github.com/aria-assistant/aria-go/internal/rag"
)

// hashEmbedder produces deterministic 8-dimensional vectors derived from the
// input bytes. It also counts Embed calls so tests can assert that concurrent
// builds do not embed the corpus more than once.
type hashEmbedder struct {
	calls atomic.Int64
	fail  bool
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.fail {
		return nil, errors.New("embedder unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 8)
		for j := 0; j < len(t); j++ {
			v[j%8] += float32(t[j]) / 255
		}
		v[0] += 1 // keep the vector away from zero
		out[i] = v
	}
	return out, nil
}

// writeIndexCorpus writes a minimal verse and commentary corpus and returns
// the directory.
func writeIndexCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	verses := "Book,Chapter,Verse,Text\n" +
		"Genesis,1,1,In the beginning God created the heavens and the earth.\n" +
		"Genesis,1,2,Now the earth was formless and void.\n" +
		"John,3,16,For God so loved the world.\n" +
		"Psalms,23,1,The LORD is my shepherd.\n"
	if err := os.WriteFile(filepath.Join(dir, "BSB.csv"), []byte(verses), 0o644); err != nil {
		t.Fatalf("write verses: %v", err)
	}

	commentary := "id,book,father_name,source_title,txt\n" +
		"c1,Genesis,Augustine,Confessions,On the beginning of all things.\n" +
		"c2,John,Chrysostom,Homilies,On the love of God for the world.\n"
	if err := os.WriteFile(filepath.Join(dir, "data-commentaries.csv"), []byte(commentary), 0o644); err != nil {
		t.Fatalf("write commentary: %v", err)
	}
	return dir
}

func newTestIndex(t *testing.T) (*EmbeddingIndex, *hashEmbedder, rag.VectorStore) {
	t.Helper()
	embedder := &hashEmbedder{}
	store := rag.NewMemoryStore()
	ix := New(corpus.NewStore(writeIndexCorpus(t)), embedder, store, 8, nil)
	return ix, embedder, store
}

func TestVerseCollection(t *testing.T) {
	t.Parallel()

	if got := VerseCollection("BSB"); got != "bible_verses_bsb" {
		t.Errorf("VerseCollection(BSB) = %q, want bible_verses_bsb", got)
	}
	if got := VerseCollection("kjv"); got != "bible_verses_kjv" {
		t.Errorf("VerseCollection(kjv) = %q, want bible_verses_kjv", got)
	}
}

func TestEnsureBuilt_PopulatesOnce(t *testing.T) {
	t.Parallel()

	ix, embedder, store := newTestIndex(t)
	ctx := context.Background()
	coll := VerseCollection("bsb")

	if err := ix.EnsureBuilt(ctx, coll); err != nil {
		t.Fatalf("EnsureBuilt: %v", err)
	}
	count, err := store.Count(ctx, coll)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 4 {
		t.Fatalf("count after build = %d, want 4", count)
	}

	callsAfterFirst := embedder.calls.Load()
	if err := ix.EnsureBuilt(ctx, coll); err != nil {
		t.Fatalf("EnsureBuilt (second): %v", err)
	}
	if got := embedder.calls.Load(); got != callsAfterFirst {
		t.Errorf("second EnsureBuilt re-embedded: %d calls, want %d", got, callsAfterFirst)
	}
	count, _ = store.Count(ctx, coll)
	if count != 4 {
		t.Errorf("count after second build = %d, want 4", count)
	}
}

func TestEnsureBuilt_Concurrent(t *testing.T) {
	t.Parallel()

	ix, _, store := newTestIndex(t)
	ctx := context.Background()
	coll := VerseCollection("bsb")

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = ix.EnsureBuilt(ctx, coll)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("EnsureBuilt goroutine %d: %v", i, err)
		}
	}
	count, err := store.Count(ctx, coll)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 4 {
		t.Errorf("count after concurrent builds = %d, want 4 (no duplicates)", count)
	}
}

func TestEnsureBuilt_Commentary(t *testing.T) {
	t.Parallel()

	ix, _, store := newTestIndex(t)
	ctx := context.Background()

	if err := ix.EnsureBuilt(ctx, CommentaryCollection); err != nil {
		t.Fatalf("EnsureBuilt: %v", err)
	}
	count, _ := store.Count(ctx, CommentaryCollection)
	if count != 2 {
		t.Errorf("commentary count = %d, want 2", count)
	}
}

func TestEnsureBuilt_UnknownCollection(t *testing.T) {
	t.Parallel()

	ix, _, _ := newTestIndex(t)
	if err := ix.EnsureBuilt(context.Background(), "unrelated"); err == nil {
		t.Error("EnsureBuilt(unrelated) = nil, want error")
	}
}

func TestEnsureBuilt_EmbedderFailure(t *testing.T) {
	t.Parallel()

	embedder := &hashEmbedder{fail: true}
	store := rag.NewMemoryStore()
	ix := New(corpus.NewStore(writeIndexCorpus(t)), embedder, store, 8, nil)
	ctx := context.Background()
	coll := VerseCollection("bsb")

	if err := ix.EnsureBuilt(ctx, coll); err == nil {
		t.Fatal("EnsureBuilt with failing embedder = nil, want error")
	}

	// A failed build leaves the collection recoverable: once the embedder
	// heals, EnsureBuilt populates it fully.
	embedder.fail = false
	if err := ix.EnsureBuilt(ctx, coll); err != nil {
		t.Fatalf("EnsureBuilt after recovery: %v", err)
	}
	count, _ := store.Count(ctx, coll)
	if count != 4 {
		t.Errorf("count after recovery = %d, want 4", count)
	}
}

// brokenAfterEmbedder delegates to hashEmbedder for its first okCalls calls
// and fails every call after that until healed.
type brokenAfterEmbedder struct {
	hashEmbedder
	okCalls int64
	healed  atomic.Bool
}

func (e *brokenAfterEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if !e.healed.Load() && e.calls.Load() >= e.okCalls {
		e.calls.Add(1)
		return nil, errors.New("embedder unavailable")
	}
	return e.hashEmbedder.Embed(ctx, texts)
}

// writeWideVerseCorpus writes a verse corpus large enough to span several
// embedding batches and returns the directory.
func writeWideVerseCorpus(t *testing.T, n int) string {
	t.Helper()
	dir := t.TempDir()

	var b strings.Builder
	b.WriteString("Book,Chapter,Verse,Text\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Genesis,%d,%d,And verse number %d was written down.\n", i/30+1, i%30+1, i+1)
	}
	if err := os.WriteFile(filepath.Join(dir, "BSB.csv"), []byte(b.String()), 0o644); err != nil {
		t.Fatalf("write verses: %v", err)
	}
	return dir
}

func TestEnsureBuilt_MidBuildFailureLeavesNoPartialCollection(t *testing.T) {
	t.Parallel()

	// 150 verses means two batches: the first embeds and upserts fine, the
	// second fails. The collection must come out absent, not half-filled —
	// otherwise the next EnsureBuilt would see a nonzero count and serve the
	// truncated corpus forever.
	embedder := &brokenAfterEmbedder{okCalls: 1}
	store := rag.NewMemoryStore()
	ix := New(corpus.NewStore(writeWideVerseCorpus(t, 150)), embedder, store, 8, nil)
	ctx := context.Background()
	coll := VerseCollection("bsb")

	if err := ix.EnsureBuilt(ctx, coll); err == nil {
		t.Fatal("EnsureBuilt = nil, want error from failing second batch")
	}
	count, err := store.Count(ctx, coll)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("partial collection left behind: count %d, want 0", count)
	}

	embedder.healed.Store(true)
	if err := ix.EnsureBuilt(ctx, coll); err != nil {
		t.Fatalf("EnsureBuilt after recovery: %v", err)
	}
	count, _ = store.Count(ctx, coll)
	if count != 150 {
		t.Errorf("count after recovery = %d, want 150", count)
	}
}

func TestQuery_RankedAndBounded(t *testing.T) {
	t.Parallel()

	ix, _, _ := newTestIndex(t)
	ctx := context.Background()
	coll := VerseCollection("bsb")
	if err := ix.EnsureBuilt(ctx, coll); err != nil {
		t.Fatalf("EnsureBuilt: %v", err)
	}

	docs, err := ix.Query(ctx, "in the beginning", coll, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(docs) == 0 || len(docs) > 3 {
		t.Fatalf("got %d results, want 1..3", len(docs))
	}
	for i, d := range docs {
		if d.Score < 0 || d.Score > 1 {
			t.Errorf("result %d score %f out of [0,1]", i, d.Score)
		}
		if i > 0 && docs[i-1].Score < d.Score {
			t.Errorf("results not in non-increasing score order: %f < %f at %d", docs[i-1].Score, d.Score, i)
		}
	}
}

func TestQuery_NeverBuiltReturnsEmpty(t *testing.T) {
	t.Parallel()

	ix, _, _ := newTestIndex(t)
	docs, err := ix.Query(context.Background(), "anything", VerseCollection("kjv"), 5)
	if err != nil {
		t.Fatalf("Query against unbuilt collection: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("got %d results from unbuilt collection, want 0", len(docs))
	}
}

func TestBuildAsync(t *testing.T) {
	t.Parallel()

	ix, _, store := newTestIndex(t)
	ctx := context.Background()
	coll := VerseCollection("bsb")

	job := ix.BuildAsync(ctx, coll)
	if job.Collection() != coll {
		t.Errorf("job collection = %q, want %q", job.Collection(), coll)
	}
	if err := job.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	count, _ := store.Count(ctx, coll)
	if count != 4 {
		t.Errorf("count after async build = %d, want 4", count)
	}
}

func TestBuildAsync_FailureObservable(t *testing.T) {
	t.Parallel()

	embedder := &hashEmbedder{fail: true}
	ix := New(corpus.NewStore(writeIndexCorpus(t)), embedder, rag.NewMemoryStore(), 8, nil)

	job := ix.BuildAsync(context.Background(), VerseCollection("bsb"))
	<-job.Done()
	if job.Err() == nil {
		t.Error("job.Err() = nil after failed build, want error")
	}
	if fmt.Sprint(job.Err()) == "" {
		t.Error("job error has empty message")
	}
}
