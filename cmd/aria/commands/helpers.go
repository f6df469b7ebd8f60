package commands

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/aria-assistant/aria-go/internal/assistant"
	"github.com/aria-assistant/aria-go/internal/corpus"
	"github.com/aria-assistant/aria-go/internal/embedder"
	"github.com/aria-assistant/aria-go/internal/index"
	"github.com/aria-assistant/aria-go/internal/memory"
	"github.com/aria-assistant/aria-go/internal/provider"
	"github.com/aria-assistant/aria-go/internal/rag"
	"github.com/aria-assistant/aria-go/internal/tracing"
)

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func defaultTranslation() string {
	return getEnvOrDefault("CORPUS_TRANSLATION", "BSB")
}

func defaultUser() string {
	return getEnvOrDefault("ARIA_USER", "default")
}

// buildVectorStore selects the vector store backend. QDRANT_HOST opts into
// Qdrant; otherwise the in-process index serves single-binary deployments.
func buildVectorStore(log *slog.Logger) (rag.VectorStore, func(), error) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		log.Info("vector store: using in-process index (set QDRANT_HOST for Qdrant)")
		return rag.NewMemoryStore(), func() {}, nil
	}

	port := getEnvInt("QDRANT_PORT", 6334)
	store, err := rag.NewQdrantStore(&rag.QdrantConfig{
		Host:   host,
		Port:   port,
		APIKey: os.Getenv("QDRANT_API_KEY"),
		UseTLS: os.Getenv("QDRANT_TLS") == "true",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", host, port, err)
	}
	log.Info("vector store: qdrant ready", slog.String("host", host), slog.Int("port", port))
	return store, func() { _ = store.Close() }, nil
}

// buildIndex wires the corpus, embedder, and vector store into the
// knowledge index.
func buildIndex(log *slog.Logger) (*index.EmbeddingIndex, *corpus.Store, func(), error) {
	emb, err := embedder.NewFromEnv()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}

	store, closeStore, err := buildVectorStore(log)
	if err != nil {
		return nil, nil, nil, err
	}

	backend := getEnvOrDefault("EMBEDDING_PROVIDER", getEnvOrDefault("MODEL_PROVIDER", "ollama"))
	vectorSize := embedder.DefaultDimensions(backend)

	cs := corpus.NewStore(getEnvOrDefault("CORPUS_DATA_DIR", "data"))
	return index.New(cs, emb, store, vectorSize, log), cs, closeStore, nil
}

// memoryComponents groups the conversational memory stores built by
// buildMemory.
type memoryComponents struct {
	sessions *memory.SessionStore
	turns    *memory.ConversationCache
	prefs    *memory.PreferenceStore
	patterns *memory.PatternLearner
	events   *memory.EventLog
}

// buildMemory opens the durable store and cache and constructs the memory
// subsystem. A missing Redis is downgraded to an in-process cache so the
// assistant keeps working on a single machine.
func buildMemory(ctx context.Context, log *slog.Logger) (*memoryComponents, func(), error) {
	dbPath := os.Getenv("ARIA_DB_PATH")
	if dbPath == "" {
		var err error
		dbPath, err = memory.DefaultDBPath()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve memory DB path: %w", err)
		}
	}
	store, err := memory.Open(dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open memory store at %s: %w", dbPath, err)
	}
	log.Info("memory: store opened", slog.String("path", dbPath))

	var recency memory.RecencyCache
	var kv memory.KVCache
	var closeCache func()
	if url := os.Getenv("REDIS_URL"); url != "" {
		rc, err := memory.NewRedisCache(ctx, url)
		if err != nil {
			log.Warn("memory: redis unavailable, falling back to in-process cache", slog.Any("error", err))
		} else {
			recency, kv = rc, rc
			closeCache = func() { _ = rc.Close() }
			log.Info("memory: redis cache connected")
		}
	}
	if recency == nil {
		mc := memory.NewMemoryCache()
		recency, kv = mc, mc
	}

	metrics := memory.NewMetrics(buildMetricsRegistry(log))

	window := time.Duration(getEnvInt("SESSION_WINDOW_HOURS", 4)) * time.Hour
	ttl := time.Duration(getEnvInt("PREFERENCE_TTL_SECONDS", 3600)) * time.Second
	recencyCap := getEnvInt("RECENCY_CAP", 0)

	mc := &memoryComponents{
		sessions: memory.NewSessionStore(store, window),
		turns:    memory.NewConversationCache(store, recency, recencyCap, metrics, log),
		prefs:    memory.NewPreferenceStore(store, kv, ttl, metrics, log),
		patterns: memory.NewPatternLearner(store, memory.NewKeywordClassifier(), log),
		events:   memory.NewEventLog(store, recency, metrics, log),
	}
	cleanup := func() {
		if closeCache != nil {
			closeCache()
		}
		_ = store.Close()
	}
	return mc, cleanup, nil
}

// buildMetricsRegistry creates the process metrics registry and, when
// ARIA_METRICS_ADDR is set, exposes it over HTTP.
func buildMetricsRegistry(log *slog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	if addr := os.Getenv("ARIA_METRICS_ADDR"); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Warn("metrics: listener stopped", slog.Any("error", err))
			}
		}()
		log.Info("metrics: exposed", slog.String("addr", addr))
	}
	return reg
}

// buildLimiter returns the model-call rate limiter, or nil (unlimited) when
// ARIA_MODEL_RPS is unset.
func buildLimiter() *rate.Limiter {
	rps := getEnvFloat("ARIA_MODEL_RPS", 0)
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

// buildMemoryService assembles the assistant over conversational memory
// alone, for commands that never touch retrieval or generation.
func buildMemoryService(ctx context.Context, log *slog.Logger) (*assistant.Service, func(), error) {
	mem, cleanup, err := buildMemory(ctx, log)
	if err != nil {
		return nil, nil, err
	}
	svc := assistant.NewService(assistant.ServiceConfig{
		Sessions:    mem.sessions,
		Turns:       mem.turns,
		Preferences: mem.prefs,
		Patterns:    mem.patterns,
		Events:      mem.events,
		Translation: defaultTranslation(),
		Logger:      log,
	})
	return svc, cleanup, nil
}

// buildService assembles the full assistant: memory, knowledge index, model
// provider, and tracing. The returned cleanup closes everything and flushes
// pending traces.
func buildService(ctx context.Context, log *slog.Logger) (*assistant.Service, func(), error) {
	// Langfuse tracing is opt-in, no-op when keys are absent.
	handler, flush, traced := tracing.Setup()
	if traced {
		callbacks.AppendGlobalHandlers(handler)
		log.Info("langfuse tracing enabled")
	}

	chatModel, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}

	ix, cs, closeIndex, err := buildIndex(log)
	if err != nil {
		return nil, nil, err
	}

	mem, closeMemory, err := buildMemory(ctx, log)
	if err != nil {
		closeIndex()
		return nil, nil, err
	}

	orch := assistant.NewOrchestrator(cs, ix, chatModel, buildLimiter(), log)
	svc := assistant.NewService(assistant.ServiceConfig{
		Sessions:     mem.sessions,
		Turns:        mem.turns,
		Preferences:  mem.prefs,
		Patterns:     mem.patterns,
		Events:       mem.events,
		Orchestrator: orch,
		Translation:  defaultTranslation(),
		Logger:       log,
	})

	cleanup := func() {
		closeMemory()
		closeIndex()
		if traced {
			flush()
		}
	}
	return svc, cleanup, nil
}
