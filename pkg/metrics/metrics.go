// Package metrics exposes the Prometheus registry the cache server reports to.
// All metrics are defined in their respective packages (cache, delivery,
// invalidation, ratelimit, redisconn, api) and registered via promauto, so this
// package only serves them and documents the set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every package's promauto metrics land in.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads the same registry back.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - bizcache_cache_hits_total{tier} (Counter): hits by tier ("primary", "local")
//   - bizcache_cache_misses_total{tier} (Counter): misses by tier
//   - bizcache_cache_errors_total{operation} (Counter): primary errors that caused a fallback
//   - bizcache_primary_up (Gauge): 1 while the primary serves, 0 while degraded
//   - bizcache_tier_transitions_total{to} (Counter): primary state changes
//   - bizcache_pattern_removed_total{tier} (Counter): keys removed by pattern deletes
//   - bizcache_compute_duration_seconds (Histogram): producer runtime on a miss
//
// Delivery Metrics (pkg/delivery):
//   - bizcache_payload_bytes{encoding} (Histogram): compressed body sizes ("original", "gzip", "deflate")
//   - bizcache_compression_fallbacks_total (Counter): compression failures answered with identity
//   - bizcache_304_responses_total (Counter): 304 Not Modified responses
//
// Invalidation Metrics (pkg/invalidation):
//   - bizcache_invalidations_total{category, kind} (Counter): invalidations by mutation
//   - bizcache_invalidated_keys_total{category} (Counter): keys removed by invalidation
//   - bizcache_invalidation_failures_total{category} (Counter): pattern deletes that failed
//   - bizcache_refresh_failures_total{category} (Counter): background recomputations that failed
//
// Rate Limit Metrics (pkg/ratelimit):
//   - bizcache_ratelimit_decisions_total{result} (Counter): "allowed", "rejected", "error"
//
// Connection Metrics (pkg/redisconn):
//   - bizcache_redis_connect_attempts_total{result} (Counter): startup PINGs
//
// HTTP Metrics (pkg/api):
//   - bizcache_http_requests_total{route, status} (Counter): requests by route pattern
//   - bizcache_http_request_duration_seconds{route} (Histogram): handler latency
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(bizcache_cache_hits_total[5m])) /
//   (sum(rate(bizcache_cache_hits_total[5m])) + sum(rate(bizcache_cache_misses_total{tier="local"}[5m])))
//
//   # Running degraded
//   bizcache_primary_up == 0
//
//   # Compression ratio
//   sum(rate(bizcache_payload_bytes_sum{encoding!="original"}[5m])) /
//   sum(rate(bizcache_payload_bytes_sum{encoding="original"}[5m]))
//
//   # 304 Response Rate
//   rate(bizcache_304_responses_total[5m]) / rate(bizcache_http_requests_total[5m])
