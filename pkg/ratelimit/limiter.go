package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Defaults used when Config leaves a field unset.
const (
	DefaultLimit  = 120
	DefaultWindow = time.Minute
)

// ErrInvalidSubject is returned for an empty subject.
var ErrInvalidSubject = errors.New("ratelimit: empty subject")

var (
	rateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizcache_ratelimit_decisions_total",
		Help: "Total number of rate limit decisions by result",
	}, []string{"result"}) // "allowed", "rejected", "error"
)

// Counter is the cache capability the limiter needs. *cache.Facade and
// *cache.Store satisfy it.
type Counter interface {
	IncrementUntil(ctx context.Context, key string, by int64, deadline time.Time) (int64, error)
}

// Config sets the limit per window.
type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) withDefaults() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Window <= 0 {
		c.Window = DefaultWindow
	}
	return c
}

// Limiter admits at most Limit requests per subject per window.
type Limiter struct {
	counter Counter
	cfg     Config
	logger  zerolog.Logger
	now     func() time.Time
}

// NewLimiter creates a limiter counting through c.
func NewLimiter(c Counter, cfg Config, logger zerolog.Logger) *Limiter {
	return &Limiter{
		counter: c,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Allow counts one request for subject and reports whether it fits.
//
// If the counter cannot be updated the request is allowed and the error is
// returned alongside the decision.
func (l *Limiter) Allow(ctx context.Context, subject string) (Decision, error) {
	if subject == "" {
		return Decision{}, ErrInvalidSubject
	}

	start := windowStart(l.now(), l.cfg.Window)
	d := Decision{
		Allowed: true,
		Limit:   l.cfg.Limit,
		ResetAt: start.Add(l.cfg.Window),
	}

	n, err := l.counter.IncrementUntil(ctx, counterKey(subject, start), 1, d.ResetAt)
	if err != nil {
		rateLimitDecisions.WithLabelValues("error").Inc()
		l.logger.Warn().
			Err(err).
			Str("subject", subject).
			Msg("Rate limit counter unavailable, allowing request")
		return d, fmt.Errorf("count request: %w", err)
	}

	d.Count = n
	d.Allowed = n <= int64(l.cfg.Limit)
	if d.Allowed {
		rateLimitDecisions.WithLabelValues("allowed").Inc()
	} else {
		rateLimitDecisions.WithLabelValues("rejected").Inc()
		l.logger.Debug().
			Str("subject", subject).
			Int64("count", n).
			Int("limit", l.cfg.Limit).
			Time("reset_at", d.ResetAt).
			Msg("Rate limit exceeded")
	}
	return d, nil
}
