// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScoringEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scoring_events_total",
			Help: "Total number of applied scoring events",
		},
		[]string{"department", "kind"},
	)

	DuplicateEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duplicate_events_total",
			Help: "Redelivered events deduplicated by idempotency key",
		},
		[]string{"department"},
	)

	RankRecomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rank_recompute_duration_seconds",
			Help:    "Time spent recomputing a partition leaderboard",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"department"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)
)
