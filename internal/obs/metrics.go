package obs

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the operational counters/histograms the Matcher,
// Embedding Client and Feedback Processor report into.
type Metrics struct {
	EmbeddingCacheHits   prometheus.Counter
	EmbeddingCacheMisses prometheus.Counter
	EmbeddingUpstreamErrors prometheus.Counter
	CircuitBreakerTrips  prometheus.Counter

	KNNLatency prometheus.Histogram

	RecommendDegraded prometheus.Counter
	RecommendShed     prometheus.Counter

	ReembedSingleFlightCollapsed prometheus.Counter
	ReembedTriggered             *prometheus.CounterVec

	InteractionsRecorded *prometheus.CounterVec
	InteractionsDeduped  prometheus.Counter
}

// NewMetrics registers all collectors against reg. Pass
// prometheus.NewRegistry() in tests to avoid global-registry collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EmbeddingCacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenderfinder_embedding_cache_hits_total",
			Help: "Embedding cache hits, content-addressed by hash(model_id||text).",
		}),
		EmbeddingCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenderfinder_embedding_cache_misses_total",
		}),
		EmbeddingUpstreamErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenderfinder_embedding_upstream_errors_total",
		}),
		CircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenderfinder_embedding_circuit_breaker_trips_total",
		}),
		KNNLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tenderfinder_knn_query_duration_seconds",
			Buckets: prometheus.DefBuckets,
		}),
		RecommendDegraded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenderfinder_recommend_degraded_total",
			Help: "Recommend responses served with semantic_unavailable=true.",
		}),
		RecommendShed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenderfinder_recommend_shed_total",
			Help: "Recommend requests rejected with 429 under overload.",
		}),
		ReembedSingleFlightCollapsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenderfinder_reembed_singleflight_collapsed_total",
			Help: "Concurrent re-embed calls for the same profile collapsed into one upstream call.",
		}),
		ReembedTriggered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenderfinder_reembed_triggered_total",
		}, []string{"trigger"}),
		InteractionsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tenderfinder_interactions_recorded_total",
		}, []string{"type"}),
		InteractionsDeduped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tenderfinder_interactions_deduped_total",
		}),
	}

	reg.MustRegister(
		m.EmbeddingCacheHits, m.EmbeddingCacheMisses, m.EmbeddingUpstreamErrors,
		m.CircuitBreakerTrips, m.KNNLatency, m.RecommendDegraded, m.RecommendShed,
		m.ReembedSingleFlightCollapsed, m.ReembedTriggered,
		m.InteractionsRecorded, m.InteractionsDeduped,
	)
	return m
}
