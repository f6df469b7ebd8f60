package memory

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics owned by the memory store. A single
// instance is created by the composition root and shared by the cache-aside
// components, so tests can inject a fresh prometheus.Registry without
// polluting the default one.
type Metrics struct {
	// cacheHitsTotal counts reads served from the volatile cache,
	// partitioned by cache name ("conversations", "preferences", "events").
	cacheHitsTotal *prometheus.CounterVec

	// cacheMissesTotal counts reads that fell through to the durable store.
	cacheMissesTotal *prometheus.CounterVec

	// turnsRecordedTotal counts conversation turns written durably,
	// partitioned by turn kind.
	turnsRecordedTotal *prometheus.CounterVec

	// cacheMirrorFailuresTotal counts best-effort cache writes that failed
	// after a successful durable write.
	cacheMirrorFailuresTotal prometheus.Counter
}

// NewMetrics registers all memory metrics against reg and returns the
// populated Metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		cacheHitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "memory",
			Name:      "cache_hits_total",
			Help:      "Reads served from the volatile cache, partitioned by cache name.",
		}, []string{"cache"}),

		cacheMissesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "memory",
			Name:      "cache_misses_total",
			Help:      "Reads that fell through to the durable store, partitioned by cache name.",
		}, []string{"cache"}),

		turnsRecordedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "memory",
			Name:      "turns_recorded_total",
			Help:      "Conversation turns written to the durable store, partitioned by kind.",
		}, []string{"kind"}),

		cacheMirrorFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "aria",
			Subsystem: "memory",
			Name:      "cache_mirror_failures_total",
			Help:      "Best-effort cache writes that failed after a successful durable write.",
		}),
	}
}

// The helpers below are nil-safe so components can run without metrics wired,
// as in most unit tests.

func (m *Metrics) cacheHit(cache string) {
	if m != nil {
		m.cacheHitsTotal.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) cacheMiss(cache string) {
	if m != nil {
		m.cacheMissesTotal.WithLabelValues(cache).Inc()
	}
}

func (m *Metrics) turnRecorded(kind string) {
	if m != nil {
		m.turnsRecordedTotal.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) mirrorFailure() {
	if m != nil {
		m.cacheMirrorFailuresTotal.Inc()
	}
}
