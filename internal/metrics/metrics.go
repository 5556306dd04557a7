// Package metrics provides Prometheus collectors for the validated-output
// layer: cache behavior, circuit breaker transitions, generation attempts,
// and request latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "structcache"

// LatencyBuckets defines histogram buckets for request latency in seconds.
// Wide tail because generation calls routinely take multiple seconds.
var LatencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5,
	1.0, 2.0, 5.0, 10.0, 20.0, 30.0, 60.0, 120.0,
}

var (
	// CacheHits counts cache reads served without generation.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_hits_total",
		Help:      "Total cache hits",
	})

	// CacheMisses counts cache reads that fell through to generation,
	// including reads that found an expired entry.
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_misses_total",
		Help:      "Total cache misses",
	})

	// CacheSets counts cache writes.
	CacheSets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_sets_total",
		Help:      "Total cache writes",
	})

	// CacheEvictions counts removed entries by reason: ttl, size, stale.
	CacheEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "Total cache evictions by reason",
	}, []string{"reason"})

	// BreakerTransitions counts circuit state transitions per target.
	BreakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "breaker_transitions_total",
		Help:      "Circuit breaker state transitions",
	}, []string{"target", "to_state"})

	// BreakerRejections counts requests refused while a breaker was open.
	BreakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "breaker_rejections_total",
		Help:      "Requests refused by an open circuit breaker",
	}, []string{"target"})

	// GenerationAttempts counts model invocations by task type and path
	// (native or fallback).
	GenerationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_attempts_total",
		Help:      "Model invocation attempts",
	}, []string{"task_type", "path"})

	// GenerationFailures counts failed requests by error category.
	GenerationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generation_failures_total",
		Help:      "Terminal generation failures by category",
	}, []string{"category"})

	// RequestLatency tracks end-to-end request latency.
	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_latency_seconds",
		Help:      "End-to-end request latency in seconds",
		Buckets:   LatencyBuckets,
	}, []string{"task_type", "cache_hit"})
)
