package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderCallsTotal counts outbound provider calls by endpoint and outcome.
	ProviderCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reverie_provider_calls_total",
		Help: "Total number of outbound provider calls by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	// ProviderRetriesTotal counts retried provider attempts by endpoint.
	ProviderRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reverie_provider_retries_total",
		Help: "Total number of retried provider attempts by endpoint",
	}, []string{"endpoint"})

	// GenerationLatency records end-to-end generation operation latency.
	GenerationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reverie_generation_latency_seconds",
		Help:    "Generation operation latency in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"operation"})

	// RateLimitRejections counts admission rejections by operation class.
	RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reverie_rate_limit_rejections_total",
		Help: "Total number of admission rejections by operation class",
	}, []string{"class"})

	// SceneFailures counts per-scene image generation failures.
	SceneFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reverie_scene_failures_total",
		Help: "Total number of failed image scenes within generate-images runs",
	}, []string{"scene"})

	// StatsCacheHits counts statistics cache hits and misses.
	StatsCacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reverie_stats_cache_total",
		Help: "Statistics cache lookups by result",
	}, []string{"result"})
)

// TrackGeneration returns a function that records operation latency when
// called (e.g. defer).
func TrackGeneration(operation string) func() {
	start := time.Now()
	return func() {
		GenerationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}
