package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
  max_tokens: 300
  temperature: 0.7
  top_p: 0.9
  ollama:
    host: http://ollama.internal:11434
    model: llama3
embedding:
  provider: ollama
  model: nomic-embed-text
qdrant:
  host: qdrant.internal
  port: 6334
store:
  db_path: /var/lib/aria/aria.db
cache:
  url: redis://cache.internal:6379/0
corpus:
  data_dir: /var/lib/aria/bible-data
  translation: BSB
memory:
  session_window_hours: 4
  recency_cap: 20
  preference_ttl_seconds: 3600
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Clear env vars that the YAML should set.
	envKeys := []string{
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "MODEL_TEMPERATURE", "MODEL_TOP_P",
		"OLLAMA_HOST", "OLLAMA_MODEL",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"QDRANT_HOST", "QDRANT_PORT",
		"ARIA_DB_PATH", "REDIS_URL",
		"CORPUS_DATA_DIR", "CORPUS_TRANSLATION",
		"SESSION_WINDOW_HOURS", "RECENCY_CAP", "PREFERENCE_TTL_SECONDS",
		"LOG_LEVEL", "LOG_FORMAT",
	}
	for _, k := range envKeys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	log := slog.Default()
	loaded, err := Load(cfgPath, log)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":         "ollama",
		"MODEL_MAX_TOKENS":       "300",
		"MODEL_TEMPERATURE":      "0.7",
		"MODEL_TOP_P":            "0.9",
		"OLLAMA_HOST":            "http://ollama.internal:11434",
		"OLLAMA_MODEL":           "llama3",
		"EMBEDDING_PROVIDER":     "ollama",
		"EMBEDDING_MODEL":        "nomic-embed-text",
		"QDRANT_HOST":            "qdrant.internal",
		"QDRANT_PORT":            "6334",
		"ARIA_DB_PATH":           "/var/lib/aria/aria.db",
		"REDIS_URL":              "redis://cache.internal:6379/0",
		"CORPUS_DATA_DIR":        "/var/lib/aria/bible-data",
		"CORPUS_TRANSLATION":     "BSB",
		"SESSION_WINDOW_HOURS":   "4",
		"RECENCY_CAP":            "20",
		"PREFERENCE_TTL_SECONDS": "3600",
		"LOG_LEVEL":              "debug",
		"LOG_FORMAT":             "text",
	}
	for k, want := range checks {
		got := os.Getenv(k)
		if got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvWins(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: openai
memory:
  session_window_hours: 8
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MODEL_PROVIDER", "ollama")
	t.Setenv("SESSION_WINDOW_HOURS", "4")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "ollama" {
		t.Errorf("env should win: MODEL_PROVIDER got %q, want ollama", got)
	}
	if got := os.Getenv("SESSION_WINDOW_HOURS"); got != "4" {
		t.Errorf("env should win: SESSION_WINDOW_HOURS got %q, want 4", got)
	}
}

func TestLoad_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("model: [not a mapping"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Fatal("expected parse error for malformed YAML")
	}
}
