package invalidation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Invalidations counts invalidations by category and mutation kind
	Invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcache_invalidations_total",
			Help: "Total number of cache invalidations",
		},
		[]string{"category", "kind"},
	)

	// InvalidatedKeys counts keys removed by invalidations
	InvalidatedKeys = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcache_invalidated_keys_total",
			Help: "Total number of cache keys removed by invalidations",
		},
		[]string{"category"},
	)

	// InvalidationFailures counts patterns that could not be purged
	InvalidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcache_invalidation_failures_total",
			Help: "Total number of failed pattern purges",
		},
		[]string{"category"},
	)

	// RefreshFailures counts failed background refresh jobs
	RefreshFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcache_refresh_failures_total",
			Help: "Total number of failed cache refresh jobs",
		},
		[]string{"label"},
	)
)
