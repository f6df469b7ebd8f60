// Package rag defines the interfaces for the knowledge retrieval engine:
// vector storage, document retrieval, and embedding. Concrete implementations
// (Qdrant, embedded HNSW) satisfy these interfaces so the index and assistant
// layers never depend on a specific backend.
package rag

import (
	"context"
)

// Document represents a unit of retrieved or stored knowledge — one verse or
// one commentary entry.
type Document struct {
	// ID is the unique identifier for this document within its collection.
	ID string

	// Content is the text that was embedded (for verses: "Reference: Text").
	Content string

	// Metadata holds record fields (book, chapter, verse, reference,
	// translation, text, ...).
	Metadata map[string]string

	// Score is the similarity assigned during retrieval (0.0–1.0, higher is
	// closer). Zero value means the score was not computed.
	Score float32
}

// VectorStore is the interface for persisting and searching document
// embeddings, partitioned into named collections (one per corpus+translation).
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// EnsureCollection creates the named collection if absent. An "already
	// exists" outcome is success — concurrent callers must not fail.
	EnsureCollection(ctx context.Context, collection string, vectorSize int) error

	// Count returns the number of stored documents in the collection, or 0
	// when the collection does not exist.
	Count(ctx context.Context, collection string) (uint64, error)

	// Upsert stores or updates a batch of documents with their pre-computed
	// embeddings. embeddings[i] is the vector for docs[i]. Re-upserting an
	// existing ID replaces it rather than duplicating it.
	Upsert(ctx context.Context, collection string, docs []Document, embeddings [][]float32) error

	// DeleteCollection removes the named collection and all of its documents.
	// Deleting an absent collection is a no-op, not an error.
	DeleteCollection(ctx context.Context, collection string) error

	// Search returns the top-k documents closest to the query embedding,
	// ordered by non-increasing similarity. Searching a collection that does
	// not exist returns an empty result, not an error.
	Search(ctx context.Context, collection string, queryEmbedding []float32, topK int) ([]Document, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the assistant to fetch
// relevant documents for a query. It combines embedding and vector search.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Retrieve returns the top-k most relevant documents from the named
	// collection for the given query.
	Retrieve(ctx context.Context, collection, query string, topK int) ([]Document, error)
}
