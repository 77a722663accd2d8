// Package config loads the server configuration.
//
// Values are layered, later layers winning:
//
//  1. built-in defaults
//  2. an optional YAML file (CONFIG_PATH, else config.yaml in the working directory)
//  3. environment variables such as REDIS_URL, CACHE_ENABLED, PORT and LOG_LEVEL
package config

import (
	"strconv"
	"time"

	"github.com/Sternrassler/bizcache/pkg/cache"
	"github.com/Sternrassler/bizcache/pkg/delivery"
	"github.com/Sternrassler/bizcache/pkg/invalidation"
	"github.com/Sternrassler/bizcache/pkg/ratelimit"
)

// Config is the complete server configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Cache     CacheConfig     `koanf:"cache"`
	Delivery  DeliveryConfig  `koanf:"delivery"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	Warmer    WarmerConfig    `koanf:"warmer"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// CacheConfig configures the two cache tiers.
type CacheConfig struct {
	// Enabled false runs on the local tier only
	Enabled         bool          `koanf:"enabled"`
	RedisURL        string        `koanf:"redis_url"`
	PoolSize        int           `koanf:"pool_size"`
	OpTimeout       time.Duration `koanf:"op_timeout"`
	ProbeInterval   time.Duration `koanf:"probe_interval"`
	LocalTTL        time.Duration `koanf:"local_ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
}

// DeliveryConfig configures response compression.
type DeliveryConfig struct {
	CompressionThreshold int `koanf:"compression_threshold"`
	CompressionLevel     int `koanf:"compression_level"`
}

// RateLimitConfig configures the mutation and admin rate limit.
type RateLimitConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

// WarmerConfig configures background recomputation after invalidation.
type WarmerConfig struct {
	Enabled        bool          `koanf:"enabled"`
	MaxConcurrency int           `koanf:"max_concurrency"`
	Timeout        time.Duration `koanf:"timeout"`
}

// LoggingConfig configures zerolog.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Store converts to the cache store configuration.
func (c CacheConfig) Store() cache.Config {
	return cache.Config{
		OpTimeout:       c.OpTimeout,
		ProbeInterval:   c.ProbeInterval,
		DefaultTTL:      c.LocalTTL,
		CleanupInterval: c.CleanupInterval,
	}
}

// Codec converts to the payload codec options.
func (c DeliveryConfig) Codec() delivery.Options {
	return delivery.Options{
		ThresholdBytes: c.CompressionThreshold,
		Level:          c.CompressionLevel,
	}
}

// Limiter converts to the rate limiter configuration.
func (c RateLimitConfig) Limiter() ratelimit.Config {
	return ratelimit.Config{Limit: c.Requests, Window: c.Window}
}

// Pool converts to the warmer pool configuration.
func (c WarmerConfig) Pool() invalidation.WarmerConfig {
	return invalidation.WarmerConfig{
		MaxConcurrency: c.MaxConcurrency,
		Timeout:        c.Timeout,
	}
}
