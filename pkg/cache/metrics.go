package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by tier
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcache_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"tier"}, // "primary", "local"
	)

	// CacheMisses tracks cache misses by tier
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcache_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"tier"},
	)

	// CacheErrors tracks primary-store errors that caused a fallback
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcache_cache_errors_total",
			Help: "Total number of primary cache operation errors",
		},
		[]string{"operation"}, // "get", "set", "delete", ...
	)

	// PrimaryUp is 1 while the primary store is serving and 0 while degraded
	PrimaryUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bizcache_primary_up",
			Help: "Whether the primary cache store is serving (1) or the local fallback is active (0)",
		},
	)

	// TierTransitions counts primary state changes
	TierTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcache_tier_transitions_total",
			Help: "Total number of primary cache state transitions",
		},
		[]string{"to"}, // "up", "down", "probing"
	)

	// PatternRemovals counts keys removed by pattern deletes per tier
	PatternRemovals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bizcache_pattern_removed_total",
			Help: "Total number of keys removed by pattern deletes",
		},
		[]string{"tier"},
	)

	// ComputeDuration tracks how long producers run on a cache miss
	ComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bizcache_compute_duration_seconds",
			Help:    "Duration of compute functions run on a cache miss",
			Buckets: prometheus.DefBuckets,
		},
	)
)
