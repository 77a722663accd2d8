package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid value")

// Validate rejects values the server cannot run with. All problems are
// reported at once.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		fail("server.port %d out of range", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		fail("server.shutdown_timeout must be positive")
	}

	if c.Cache.Enabled && strings.TrimSpace(c.Cache.RedisURL) == "" {
		fail("cache.redis_url is required when the cache is enabled")
	}
	if c.Cache.OpTimeout <= 0 {
		fail("cache.op_timeout must be positive")
	}
	if c.Cache.ProbeInterval <= 0 {
		fail("cache.probe_interval must be positive")
	}
	if c.Cache.LocalTTL <= 0 {
		fail("cache.local_ttl must be positive")
	}

	if c.Delivery.CompressionThreshold < 0 {
		fail("delivery.compression_threshold must not be negative")
	}
	if c.Delivery.CompressionLevel < 0 || c.Delivery.CompressionLevel > 9 {
		fail("delivery.compression_level %d not in 0..9", c.Delivery.CompressionLevel)
	}

	if c.RateLimit.Enabled {
		if c.RateLimit.Requests <= 0 {
			fail("rate_limit.requests must be positive")
		}
		if c.RateLimit.Window <= 0 {
			fail("rate_limit.window must be positive")
		}
	}

	if c.Warmer.Enabled && c.Warmer.MaxConcurrency < 1 {
		fail("warmer.max_concurrency must be at least 1")
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		fail("logging.level %q", c.Logging.Level)
	}

	return errors.Join(errs...)
}
