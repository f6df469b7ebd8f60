package embedder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotReq ollamaEmbedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		resp := ollamaEmbedResponse{Embeddings: [][]float32{{1, 0}, {0, 1}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	// Trailing slash on the host must not produce a double-slash endpoint.
	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL + "/", Model: "test-model"})
	embs, err := e.Embed(context.Background(), []string{"alpha", "beta"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if gotPath != "/api/embed" {
		t.Errorf("request path = %q, want /api/embed", gotPath)
	}
	if gotReq.Model != "test-model" || len(gotReq.Input) != 2 {
		t.Errorf("request = %+v, want model test-model with 2 inputs", gotReq)
	}
	if len(embs) != 2 || embs[0][0] != 1 || embs[1][1] != 1 {
		t.Errorf("embeddings = %v", embs)
	}
}

func TestOllamaEmbedder_ServerErrorSurfaced(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Error: `model "missing" not found`})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL, Model: "missing"})
	_, err := e.Embed(context.Background(), []string{"text"})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %v, want server message surfaced", err)
	}
}

func TestOllamaEmbedder_CountMismatchRejected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: [][]float32{{1}}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(&OllamaConfig{Host: srv.URL})
	if _, err := e.Embed(context.Background(), []string{"a", "b"}); err == nil {
		t.Error("expected error on embedding count mismatch")
	}
}

func TestOllamaEmbedder_Defaults(t *testing.T) {
	t.Parallel()

	e := NewOllamaEmbedder(&OllamaConfig{})
	if e.endpoint != "http://localhost:11434/api/embed" {
		t.Errorf("endpoint = %q", e.endpoint)
	}
	if e.model != defaultOllamaModel {
		t.Errorf("model = %q, want %q", e.model, defaultOllamaModel)
	}
}
