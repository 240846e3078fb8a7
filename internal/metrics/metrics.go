// Package metrics holds the prometheus collectors shared across the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProviderRequests counts outbound provider attempts by outcome
	// (ok, not_found, rate_limited, error, rejected).
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anime_provider_requests_total",
			Help: "Outbound provider requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "anime_provider_request_duration_seconds",
			Help:    "Latency of outbound provider requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"provider"},
	)

	ProviderRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anime_provider_retries_total",
			Help: "Retries performed by the retry wrapper",
		},
		[]string{"reason"},
	)

	// CircuitBreakerState is 0 closed, 1 half-open, 2 open.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "anime_provider_circuit_breaker_state",
			Help: "Circuit breaker state per provider",
		},
		[]string{"provider"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anime_cache_lookups_total",
			Help: "Cache lookups by kind and result",
		},
		[]string{"kind", "result"},
	)

	ResolveOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anime_resolve_outcomes_total",
			Help: "Final state of entity resolutions",
		},
		[]string{"outcome"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "anime_sync_queue_depth",
			Help: "Tasks waiting in the sync queue",
		},
	)

	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "anime_sync_jobs_total",
			Help: "Sync tasks and scheduled jobs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)
)
