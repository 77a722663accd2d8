// Package redisconn opens the connection to the primary cache store.
//
// An unreachable server is not fatal: Open still returns a usable client
// together with an error wrapping ErrUnreachable, and the cache store starts
// out degraded and recovers once the server answers.
package redisconn

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// ErrUnreachable indicates the server did not answer PING within the
	// configured attempts
	ErrUnreachable = errors.New("redisconn: primary unreachable")

	// ErrInvalidURL indicates the connection string could not be parsed
	ErrInvalidURL = errors.New("redisconn: invalid url")
)

var connectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "bizcache_redis_connect_attempts_total",
	Help: "Total number of primary connection attempts by result",
}, []string{"result"}) // "ok", "failed"

// Options tunes the client and the startup probe.
type Options struct {
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxAttempts is the number of PINGs tried before giving up, the first included.
	MaxAttempts int

	// InitialBackoff is the wait after the first failed PING.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration

	// BackoffMultiplier is the growth factor between attempts.
	BackoffMultiplier float64

	Logger zerolog.Logger
}

// DefaultOptions returns the options used by Open when none are given.
func DefaultOptions() Options {
	return Options{
		PoolSize:          10,
		DialTimeout:       2 * time.Second,
		ReadTimeout:       time.Second,
		WriteTimeout:      time.Second,
		MaxAttempts:       3,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Logger:            zerolog.Nop(),
	}
}

// Option modifies Options.
type Option func(*Options)

// WithLogger sets the logger for connection attempts.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// WithPoolSize sets the connection pool size.
func WithPoolSize(n int) Option {
	return func(o *Options) { o.PoolSize = n }
}

// WithRetry sets the startup probe attempts and backoff bounds.
func WithRetry(attempts int, initial, maxBackoff time.Duration) Option {
	return func(o *Options) {
		o.MaxAttempts = attempts
		o.InitialBackoff = initial
		o.MaxBackoff = maxBackoff
	}
}

// ParseURL turns a redis:// or rediss:// URL into client options. A bare
// host:port is accepted as well.
func ParseURL(raw string) (*redis.Options, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(raw, "://") {
		return &redis.Options{Addr: raw}, nil
	}
	opts, err := redis.ParseURL(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	return opts, nil
}

// Open creates a client for url and checks that the server answers.
//
// The returned error is non-nil in two cases. For an invalid url the client
// is nil. For an unreachable server the client is valid and the error wraps
// ErrUnreachable; callers log it and keep going.
func Open(ctx context.Context, url string, opts ...Option) (*redis.Client, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ro, err := ParseURL(url)
	if err != nil {
		return nil, err
	}
	if o.PoolSize > 0 {
		ro.PoolSize = o.PoolSize
	}
	ro.DialTimeout = o.DialTimeout
	ro.ReadTimeout = o.ReadTimeout
	ro.WriteTimeout = o.WriteTimeout

	client := redis.NewClient(ro)
	if err := pingWithBackoff(ctx, client, o); err != nil {
		return client, errors.Join(ErrUnreachable, err)
	}

	o.Logger.Info().Str("addr", ro.Addr).Int("db", ro.DB).Msg("Connected to primary cache")
	return client, nil
}

func pingWithBackoff(ctx context.Context, client *redis.Client, o Options) error {
	attempts := max(o.MaxAttempts, 1)
	backoff := o.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = client.Ping(ctx).Err()
		if lastErr == nil {
			connectAttempts.WithLabelValues("ok").Inc()
			if attempt > 1 {
				o.Logger.Info().Int("attempt", attempt).Msg("Primary cache answered after retry")
			}
			return nil
		}
		connectAttempts.WithLabelValues("failed").Inc()

		if attempt == attempts {
			break
		}

		// ±20% jitter
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		o.Logger.Debug().
			Err(lastErr).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Primary cache ping failed, retrying")

		select {
		case <-ctx.Done():
			return fmt.Errorf("ping cancelled: %w", ctx.Err())
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * o.BackoffMultiplier)
		if backoff > o.MaxBackoff {
			backoff = o.MaxBackoff
		}
	}

	return fmt.Errorf("ping failed after %d attempts: %w", attempts, lastErr)
}

// Healthcheck returns a check for a health endpoint. A nil client reports
// the primary as disabled.
func Healthcheck(client redis.UniversalClient, timeout time.Duration) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if client == nil {
			return errors.New("primary cache disabled")
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return client.Ping(ctx).Err()
	}
}
