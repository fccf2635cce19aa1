// Package metrics provides Prometheus instrumentation for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GenerationLatency tracks end-to-end generation call latency in seconds.
	GenerationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "readcoach_generation_latency_seconds",
			Help:    "End-to-end generation call latency in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "model", "cache_status"},
	)

	// TokenUsageTotal tracks the total number of model tokens consumed.
	TokenUsageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readcoach_token_usage_total",
			Help: "Total number of model tokens consumed.",
		},
		[]string{"provider", "model", "direction"}, // direction: "input" or "output"
	)

	// BackendCallsTotal tracks generation calls by outcome.
	BackendCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "readcoach_backend_calls_total",
			Help: "Total generation backend calls by outcome.",
		},
		[]string{"status"}, // "success", "error", "cache_hit"
	)

	// CacheHitsTotal tracks response cache hits.
	CacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readcoach_cache_hits_total",
			Help: "Total number of response cache hits.",
		},
	)

	// CacheLookupsTotal tracks response cache lookups.
	CacheLookupsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readcoach_cache_lookups_total",
			Help: "Total number of response cache lookups.",
		},
	)

	// CircuitBreakerState tracks each breaker: 0=closed, 1=open, 2=half-open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "readcoach_circuit_breaker_state",
			Help: "Current circuit breaker state: 0=closed, 1=open, 2=half-open.",
		},
		[]string{"provider"},
	)

	// ActiveRequests tracks currently in-flight generation calls.
	ActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "readcoach_active_requests",
			Help: "Number of currently in-flight generation calls.",
		},
	)

	// LimiterDeniedTotal tracks rate limiter denials.
	LimiterDeniedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readcoach_limiter_denied_total",
			Help: "Total requests denied by the per-caller rate limiter.",
		},
	)

	// FallbackSplitsTotal tracks fragmentations served by the deterministic
	// fallback instead of the model-assisted path.
	FallbackSplitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "readcoach_fallback_splits_total",
			Help: "Total text splits served by the algorithmic fallback.",
		},
	)
)

// RecordCacheLookup records a cache lookup and, on a hit, the hit counter.
func RecordCacheLookup(hit bool) {
	CacheLookupsTotal.Inc()
	if hit {
		CacheHitsTotal.Inc()
	}
}
