// Package index builds and queries the embedding collections that back
// semantic retrieval. One collection exists per corpus: verse collections are
// named per translation, commentary lives in a single shared collection.
// Building is idempotent — an already-populated collection is never rebuilt
// or duplicated, even under concurrent invocation.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aria-assistant/aria-go/internal/corpus"
	"github.com/aria-assistant/aria-go/internal/rag"
)

// CommentaryCollection is the shared collection holding church-father
// commentary records, independent of translation.
const CommentaryCollection = "bible_commentary"

// verseCollectionPrefix prefixes every per-translation verse collection.
const verseCollectionPrefix = "bible_verses_"

// Batch sizes for embedding calls. Commentary entries are long-form text, so
// they use a smaller batch to keep request payloads bounded.
const (
	verseBatchSize      = 100
	commentaryBatchSize = 50
)

// embedRetryDelay is the pause before the single retry of a failed
// embedding batch.
const embedRetryDelay = 500 * time.Millisecond

// VerseCollection returns the collection name for the given translation,
// e.g. VerseCollection("BSB") == "bible_verses_bsb".
func VerseCollection(translation string) string {
	return verseCollectionPrefix + strings.ToLower(translation)
}

// EmbeddingIndex builds vector collections from corpus records and answers
// nearest-neighbor queries against them. It is safe for concurrent use.
type EmbeddingIndex struct {
	corpus     *corpus.Store
	embedder   rag.Embedder
	store      rag.VectorStore
	retriever  rag.Retriever
	vectorSize int
	log        *slog.Logger

	// group collapses concurrent EnsureBuilt calls for the same collection
	// into a single build.
	group singleflight.Group
}

// New constructs an EmbeddingIndex over the given corpus, embedder, and
// vector store. vectorSize must match the embedder's output dimension.
func New(cs *corpus.Store, embedder rag.Embedder, store rag.VectorStore, vectorSize int, log *slog.Logger) *EmbeddingIndex {
	if log == nil {
		log = slog.Default()
	}
	retriever, err := rag.NewRetriever(embedder, store, 5)
	if err != nil {
		panic(err) // nil embedder or store is a programming error
	}
	return &EmbeddingIndex{
		corpus:     cs,
		embedder:   embedder,
		store:      store,
		retriever:  retriever,
		vectorSize: vectorSize,
		log:        log,
	}
}

// EnsureBuilt populates the named collection if it does not already hold
// records. Calling it repeatedly, sequentially or concurrently, results in
// exactly one populated collection with no duplicated records: concurrent
// callers share a single in-flight build, and point IDs are deterministic so
// even a retried build upserts rather than duplicates.
func (ix *EmbeddingIndex) EnsureBuilt(ctx context.Context, collection string) error {
	_, err, _ := ix.group.Do(collection, func() (any, error) {
		return nil, ix.build(ctx, collection)
	})
	return err
}

// build performs the check-then-create flow for one collection.
func (ix *EmbeddingIndex) build(ctx context.Context, collection string) error {
	exists, err := ix.store.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("index: check collection %s: %w", collection, err)
	}
	if exists {
		count, err := ix.store.Count(ctx, collection)
		if err != nil {
			return fmt.Errorf("index: count collection %s: %w", collection, err)
		}
		if count > 0 {
			ix.log.Debug("index: collection already built",
				slog.String("collection", collection),
				slog.Uint64("count", count))
			return nil
		}
	}

	docs, batchSize, err := ix.documents(ctx, collection)
	if err != nil {
		return err
	}

	if err := ix.store.EnsureCollection(ctx, collection, ix.vectorSize); err != nil {
		return fmt.Errorf("index: ensure collection %s: %w", collection, err)
	}

	for start := 0; start < len(docs); start += batchSize {
		end := start + batchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		texts := make([]string, len(batch))
		for i, d := range batch {
			texts[i] = d.Content
		}
		embeddings, err := ix.embedBatch(ctx, texts)
		if err != nil {
			ix.discardPartial(ctx, collection)
			return fmt.Errorf("index: embed batch %d-%d of %s: %w", start, end, collection, err)
		}
		if err := ix.store.Upsert(ctx, collection, batch, embeddings); err != nil {
			ix.discardPartial(ctx, collection)
			return fmt.Errorf("index: upsert batch %d-%d of %s: %w", start, end, collection, err)
		}
	}

	ix.log.Info("index: collection built",
		slog.String("collection", collection),
		slog.Int("records", len(docs)))
	return nil
}

// discardPartial drops a collection whose build failed mid-way. A collection
// is either fully populated or absent; leaving a partial one behind would
// make the next EnsureBuilt see a nonzero count and serve truncated results
// forever. Best effort — the build error is what the caller sees.
func (ix *EmbeddingIndex) discardPartial(ctx context.Context, collection string) {
	if err := ix.store.DeleteCollection(ctx, collection); err != nil {
		ix.log.Warn("index: failed to discard partial collection",
			slog.String("collection", collection),
			slog.String("error", err.Error()))
	}
}

// embedBatch embeds one batch, retrying once after a short pause. Embedding
// services hiccup under sustained batch load; a single retry absorbs that
// without hiding a hard failure.
func (ix *EmbeddingIndex) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings, err := ix.embedder.Embed(ctx, texts)
	if err == nil {
		return embeddings, nil
	}
	select {
	case <-ctx.Done():
		return nil, err
	case <-time.After(embedRetryDelay):
	}
	return ix.embedder.Embed(ctx, texts)
}

// documents loads the corpus records backing the named collection and
// converts them into embeddable documents.
func (ix *EmbeddingIndex) documents(ctx context.Context, collection string) ([]rag.Document, int, error) {
	if collection == CommentaryCollection {
		records, err := ix.corpus.Commentary(ctx)
		if err != nil {
			return nil, 0, fmt.Errorf("index: load commentary: %w", err)
		}
		docs := make([]rag.Document, 0, len(records))
		for _, rec := range records {
			docs = append(docs, rag.Document{
				ID:      rec.ID,
				Content: rec.Text,
				Metadata: map[string]string{
					"book":         rec.Book,
					"father_name":  rec.FatherName,
					"source_title": rec.SourceTitle,
				},
			})
		}
		return docs, commentaryBatchSize, nil
	}

	translation := strings.TrimPrefix(collection, verseCollectionPrefix)
	if translation == collection || translation == "" {
		return nil, 0, fmt.Errorf("index: unknown collection %q", collection)
	}
	records, err := ix.corpus.Load(ctx, translation)
	if err != nil {
		return nil, 0, fmt.Errorf("index: load verses for %s: %w", translation, err)
	}
	docs := make([]rag.Document, 0, len(records))
	for _, rec := range records {
		docs = append(docs, rag.Document{
			ID: rec.ID(),
			// Embedding the reference alongside the text lets reference-shaped
			// queries land on the right verse.
			Content: rec.Reference + ": " + rec.Text,
			Metadata: map[string]string{
				"translation": rec.Translation,
				"book":        rec.Book,
				"chapter":     strconv.Itoa(rec.Chapter),
				"verse":       strconv.Itoa(rec.Verse),
				"reference":   rec.Reference,
				"text":        rec.Text,
			},
		})
	}
	return docs, verseBatchSize, nil
}

// Query embeds the given text with the same embedder used at build time and
// returns up to topK documents ranked by descending similarity, each score
// in [0, 1]. Querying a collection that was never built returns an empty
// slice, not an error.
func (ix *EmbeddingIndex) Query(ctx context.Context, text, collection string, topK int) ([]rag.Document, error) {
	docs, err := ix.retriever.Retrieve(ctx, collection, text, topK)
	if err != nil {
		return nil, fmt.Errorf("index: query %s: %w", collection, err)
	}
	return docs, nil
}
