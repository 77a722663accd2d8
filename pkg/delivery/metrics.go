package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PayloadBytes tracks response body sizes before and after compression
	PayloadBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bizcache_payload_bytes",
			Help:    "Response body size in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 8), // 256B .. 4MB
		},
		[]string{"encoding"}, // "original", "gzip", "deflate"
	)

	// CompressionFallbacks counts bodies sent uncompressed after a compression error
	CompressionFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bizcache_compression_fallbacks_total",
			Help: "Total number of responses sent uncompressed because compression failed",
		},
	)

	// NotModified counts 304 Not Modified responses
	NotModified = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bizcache_304_responses_total",
			Help: "Total number of 304 Not Modified responses",
		},
	)
)
