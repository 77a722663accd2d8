// Package logging configures zerolog for the cache server and hands out
// per-component loggers.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Component names used with NewLogger.
const (
	ComponentCache        = "cache"
	ComponentDelivery     = "delivery"
	ComponentInvalidation = "invalidation"
	ComponentRateLimit    = "ratelimit"
	ComponentAPI          = "api"
	ComponentRedis        = "redis"
	ComponentServer       = "server"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer

	// Service is attached to every line when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Output:  os.Stderr,
		Service: "bizcache",
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out}
	}

	ctx := zerolog.New(out).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return logger
}

func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger tagged with the component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// FromContext returns the request-scoped logger, falling back to the global
// logger outside a request.
func FromContext(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}

// Log Level Guidelines:
//
// Debug: per-request detail
//   - cache hits and misses (key, tier)
//   - payload sizes before and after compression
//   - resolved invalidation patterns
//
// Info: lifecycle
//   - server startup and shutdown
//   - primary cache connected or recovered
//
// Warn: degraded but serving
//   - primary cache unavailable, local fallback active
//   - invalidation or background refresh failed
//   - compression failed, identity sent
//   - rate limit counter unavailable
//
// Error: needs attention
//   - configuration errors
//   - listener failures
//
// Context Fields:
//   - component: emitting package
//   - request_id: X-Request-ID of the request
//   - key / pattern: cache key or glob
//   - category / kind: invalidated collection and mutation kind
//   - tier: "primary" or "local"
//   - encoding: negotiated Content-Encoding
