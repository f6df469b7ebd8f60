package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// MemoryStore implements VectorStore with in-process HNSW graphs, one per
// collection. It is the embedded alternative to Qdrant for single-host
// deployments and tests: no server, no persistence across restarts.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

// memoryCollection holds one HNSW graph plus the side data the graph does
// not carry: documents by ID and insertion order for deterministic
// tie-breaking.
type memoryCollection struct {
	graph      *hnsw.Graph[string]
	vectorSize int
	docs       map[string]Document
	order      map[string]int
	nextOrder  int
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
	}
}

// CollectionExists reports whether the named collection exists.
func (s *MemoryStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok, nil
}

// EnsureCollection creates the collection if absent. Creating an existing
// collection is a no-op so concurrent builders never fail here.
func (s *MemoryStore) EnsureCollection(_ context.Context, collection string, vectorSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection]; ok {
		return nil
	}
	s.collections[collection] = &memoryCollection{
		graph:      hnsw.NewGraph[string](),
		vectorSize: vectorSize,
		docs:       make(map[string]Document),
		order:      make(map[string]int),
	}
	return nil
}

// Count returns the number of stored documents, or 0 for an absent collection.
func (s *MemoryStore) Count(_ context.Context, collection string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, nil
	}
	return uint64(len(c.docs)), nil
}

// Upsert adds documents to the collection graph. Re-upserting an existing ID
// replaces its document without duplicating a graph node's identity.
func (s *MemoryStore) Upsert(_ context.Context, collection string, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("memorystore: %d docs but %d embeddings", len(docs), len(embeddings))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("memorystore: collection %q does not exist", collection)
	}

	for i, doc := range docs {
		if c.vectorSize > 0 && len(embeddings[i]) != c.vectorSize {
			return fmt.Errorf("memorystore: embedding dimension %d, collection expects %d", len(embeddings[i]), c.vectorSize)
		}
		if _, seen := c.order[doc.ID]; seen {
			// hnsw.Graph.Add panics on a duplicate key, so drop the old
			// node first. Insertion order is kept from the first upsert.
			c.graph.Delete(doc.ID)
		} else {
			c.order[doc.ID] = c.nextOrder
			c.nextOrder++
		}
		c.graph.Add(hnsw.MakeNode(doc.ID, embeddings[i]))
		c.docs[doc.ID] = doc
	}
	return nil
}

// DeleteCollection drops the collection and everything in it. Deleting an
// absent collection is a no-op.
func (s *MemoryStore) DeleteCollection(_ context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, collection)
	return nil
}

// Search returns the top-k documents by cosine similarity, non-increasing,
// ties broken by insertion order. An absent collection yields an empty result.
func (s *MemoryStore) Search(_ context.Context, collection string, queryEmbedding []float32, topK int) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, nil
	}
	if topK <= 0 {
		return nil, nil
	}

	neighbors := c.graph.Search(queryEmbedding, topK)

	out := make([]Document, 0, len(neighbors))
	for _, node := range neighbors {
		doc, ok := c.docs[node.Key]
		if !ok {
			continue
		}
		doc.Score = float32(cosineSimilarity(queryEmbedding, node.Value))
		out = append(out, doc)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return c.order[out[i].ID] < c.order[out[j].ID]
	})

	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// Close releases nothing — the store is purely in-memory — but satisfies
// VectorStore.
func (s *MemoryStore) Close() error {
	return nil
}

// cosineSimilarity computes the cosine similarity between two vectors,
// clamped to [0,1] so it is directly usable as a retrieval score.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
