package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ollamaRequestTimeout bounds one /api/embed round trip. Embedding a full
// verse batch on a CPU-only host can take tens of seconds, so this is
// deliberately generous.
const ollamaRequestTimeout = 60 * time.Second

// OllamaConfig holds the settings for constructing an OllamaEmbedder.
type OllamaConfig struct {
	// Host is the Ollama server base URL. Empty means
	// "http://localhost:11434".
	Host string
	// Model is the embedding model name. Empty means "nomic-embed-text".
	Model string
}

// OllamaEmbedder implements rag.Embedder against a local Ollama server's
// /api/embed endpoint. Ollama has no authentication, so the config carries
// only host and model. Safe for concurrent use.
type OllamaEmbedder struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaEmbedder constructs an OllamaEmbedder, applying defaults for any
// unset config field.
func NewOllamaEmbedder(cfg *OllamaConfig) *OllamaEmbedder {
	host := strings.TrimRight(cfg.Host, "/")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := cfg.Model
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaEmbedder{
		endpoint: host + "/api/embed",
		model:    model,
		client:   &http.Client{Timeout: ollamaRequestTimeout},
	}
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error,omitempty"`
}

// Embed sends one batch request to /api/embed and returns the embeddings,
// parallel to texts.
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload, err := json.Marshal(ollamaEmbedRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embedder: request failed: %w", err)
	}
	defer resp.Body.Close()

	// Ollama reports failures as {"error": "..."} with a non-2xx status, so
	// decode before checking the status code to surface the server message.
	var result ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("ollama embedder: decode response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if result.Error != "" {
			return nil, fmt.Errorf("ollama embedder: %s", result.Error)
		}
		return nil, fmt.Errorf("ollama embedder: HTTP %d", resp.StatusCode)
	}

	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("ollama embedder: expected %d embeddings, got %d", len(texts), len(result.Embeddings))
	}
	for i, emb := range result.Embeddings {
		if len(emb) == 0 {
			return nil, fmt.Errorf("ollama embedder: empty embedding at index %d", i)
		}
	}
	return result.Embeddings, nil
}
