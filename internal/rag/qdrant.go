package rag

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. Collections
// are created lazily via EnsureCollection — one per corpus+translation.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client
}

// NewQdrantStore creates a new QdrantStore. No collections are created here;
// the index layer calls EnsureCollection before its first build.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{client: client}, nil
}

// CollectionExists reports whether the named collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("qdrant: failed to check collection %q: %w", collection, err)
	}
	return exists, nil
}

// EnsureCollection creates the collection if it does not already exist.
// A concurrent "already exists" error from the server is treated as success.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		// Another builder may have won the create race between our existence
		// check and the create call.
		if exists, checkErr := s.CollectionExists(ctx, collection); checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("qdrant: failed to create collection %q: %w", collection, err)
	}

	return nil
}

// Count returns the number of points in the collection, or 0 when the
// collection does not exist.
func (s *QdrantStore) Count(ctx context.Context, collection string) (uint64, error) {
	exists, err := s.CollectionExists(ctx, collection)
	if err != nil || !exists {
		return 0, err
	}

	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant: count %q: %w", collection, err)
	}
	return n, nil
}

// Upsert stores or updates a batch of documents with their embeddings.
// Point IDs are derived deterministically from document IDs so a rebuild
// replaces points instead of duplicating them.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("qdrant: %d docs but %d embeddings", len(docs), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		payload := map[string]interface{}{
			"content":   doc.Content,
			"record_id": doc.ID,
		}
		for k, v := range doc.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(doc.ID)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert into %q failed: %w", collection, err)
	}

	return nil
}

// DeleteCollection removes the collection from the server. An absent
// collection is a no-op.
func (s *QdrantStore) DeleteCollection(ctx context.Context, collection string) error {
	exists, err := s.CollectionExists(ctx, collection)
	if err != nil || !exists {
		return err
	}
	if err := s.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("qdrant: failed to delete collection %q: %w", collection, err)
	}
	return nil
}

// Search performs a cosine similarity search and returns the top-k results.
// A nonexistent collection yields an empty result.
func (s *QdrantStore) Search(ctx context.Context, collection string, queryEmbedding []float32, topK int) ([]Document, error) {
	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search %q failed: %w", collection, err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		// For cosine collections Qdrant reports score = 1 - distance.
		// Negative cosine values can push it outside [0,1], so clamp it
		// into the range callers treat as a similarity.
		doc := Document{
			Score:    clampScore(r.Score),
			Metadata: make(map[string]string),
		}
		if p := r.Payload; p != nil {
			if v, ok := p["content"]; ok {
				doc.Content = v.GetStringValue()
			}
			for k, v := range p {
				if k != "content" {
					doc.Metadata[k] = v.GetStringValue()
				}
			}
		}
		doc.ID = doc.Metadata["record_id"]
		docs = append(docs, doc)
	}

	return docs, nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// pointID derives a stable UUID from a document ID. Qdrant point IDs must be
// UUIDs or integers; a v5 UUID keeps upserts idempotent per record.
func pointID(docID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(docID)).String()
}
