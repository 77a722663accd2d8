package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// State reports which tier the store is serving from.
type State int32

const (
	// StateUnknown means no operation has reached the store yet.
	StateUnknown State = iota
	// StatePrimaryUp means reads and writes go to the primary store.
	StatePrimaryUp
	// StatePrimaryDown means the local fallback is serving.
	StatePrimaryDown
)

func (s State) String() string {
	switch s {
	case StatePrimaryUp:
		return "primary_up"
	case StatePrimaryDown:
		return "primary_down"
	default:
		return "unknown"
	}
}

const (
	// DefaultProbeInterval is how long the store stays degraded before the next
	// operation re-checks the primary.
	DefaultProbeInterval = 5 * time.Second

	// maxPendingEvictions bounds the deletes remembered during an outage.
	maxPendingEvictions = 4096
)

// Config tunes a Store. Zero values select the defaults.
type Config struct {
	// OpTimeout bounds every primary round trip (default 2s)
	OpTimeout time.Duration

	// ProbeInterval is the minimum time between primary re-checks while down (default 5s)
	ProbeInterval time.Duration

	// DefaultTTL applies to writes without a TTL (default 5s)
	DefaultTTL time.Duration

	// CleanupInterval is the local janitor period (default 1m)
	CleanupInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.OpTimeout <= 0 {
		c.OpTimeout = DefaultOpTimeout
	}
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = DefaultProbeInterval
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = DefaultLocalTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	return c
}

// eviction is a delete that could not reach the primary and must be replayed
// before the primary serves again.
type eviction struct {
	target  string
	pattern bool
}

// Stats is a diagnostic snapshot of the store.
type Stats struct {
	State            string `json:"state"`
	LocalEntries     int    `json:"localEntries"`
	PrimaryKeys      int64  `json:"primaryKeys"`
	PendingEvictions int    `json:"pendingEvictions"`
}

// Store is the two-tier cache engine. A Redis primary serves while it is
// reachable; any primary error switches the store to an in-process fallback
// until a later operation finds the primary healthy again. A primary outage is
// never returned to the caller.
//
// Store is safe for concurrent use. Construct one per process and share it.
type Store struct {
	primary *primary
	local   *local
	breaker *gobreaker.CircuitBreaker[any]
	logger  zerolog.Logger
	ttl     time.Duration

	probeOnce sync.Once
	probed    atomic.Bool
	closed    atomic.Bool

	mu      sync.Mutex
	pending []eviction

	// unreplayed counts queued evictions plus those being replayed; the
	// primary serves nothing while it is non-zero.
	unreplayed atomic.Int64
	drainMu    sync.Mutex
}

// NewStore creates a store over client. A nil client disables the primary and
// the store serves from the local tier only.
func NewStore(client redis.UniversalClient, cfg Config, logger zerolog.Logger) *Store {
	cfg = cfg.withDefaults()
	s := &Store{
		local:  newLocal(cfg.DefaultTTL, cfg.CleanupInterval),
		logger: logger,
		ttl:    cfg.DefaultTTL,
	}

	if client == nil {
		PrimaryUp.Set(0)
		logger.Warn().Msg("No primary cache configured, serving from local store only")
		return s
	}

	s.primary = newPrimary(client, cfg.OpTimeout)
	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "cache-primary",
		MaxRequests: 1,
		Timeout:     cfg.ProbeInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		IsSuccessful: func(err error) bool {
			return !isPrimaryFailure(err)
		},
		OnStateChange: s.onStateChange,
	})
	return s
}

// onStateChange runs under the breaker's lock; it must not call back into it.
func (s *Store) onStateChange(_ string, from, to gobreaker.State) {
	switch to {
	case gobreaker.StateOpen:
		PrimaryUp.Set(0)
		TierTransitions.WithLabelValues("down").Inc()
		s.logger.Warn().
			Str("from", from.String()).
			Msg("Primary cache unavailable, serving from local store")
	case gobreaker.StateHalfOpen:
		TierTransitions.WithLabelValues("probing").Inc()
		s.logger.Debug().Msg("Re-checking primary cache")
	case gobreaker.StateClosed:
		PrimaryUp.Set(1)
		TierTransitions.WithLabelValues("up").Inc()
		s.logger.Info().Msg("Primary cache recovered")
	}
}

// State returns the tier currently serving.
func (s *Store) State() State {
	if s.primary == nil {
		return StatePrimaryDown
	}
	if !s.probed.Load() {
		return StateUnknown
	}
	if s.breaker.State() == gobreaker.StateClosed {
		return StatePrimaryUp
	}
	return StatePrimaryDown
}

// probe leaves the Unknown state. Only the first operation pays for it.
func (s *Store) probe(ctx context.Context) {
	s.probeOnce.Do(func() {
		_, err := s.breaker.Execute(func() (any, error) {
			return nil, s.primary.ping(ctx)
		})
		s.probed.Store(true)
		if err == nil {
			PrimaryUp.Set(1)
			TierTransitions.WithLabelValues("up").Inc()
			s.logger.Info().Msg("Primary cache reachable")
		}
	})
}

// recover runs as the single trial request after the probe interval: ping,
// then replay the deletes the primary missed while it was down.
func (s *Store) recover(ctx context.Context) error {
	if err := s.primary.ping(ctx); err != nil {
		return err
	}
	return s.drain(ctx)
}

// drain replays queued evictions until the queue stays empty. Evictions
// queued while a replay is running are picked up by the next pass.
func (s *Store) drain(ctx context.Context) error {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	replayed := 0
	for {
		s.mu.Lock()
		pending := s.pending
		s.pending = nil
		s.mu.Unlock()
		if len(pending) == 0 {
			break
		}

		for i, ev := range pending {
			var err error
			if ev.pattern {
				_, err = s.primary.deletePattern(ctx, ev.target)
			} else {
				_, err = s.primary.del(ctx, ev.target)
			}
			if err != nil {
				s.requeue(pending[i:])
				return err
			}
			s.unreplayed.Add(-1)
			replayed++
		}
	}
	if replayed > 0 {
		s.logger.Info().Int("evictions", replayed).Msg("Replayed deletes missed during primary outage")
	}
	return nil
}

func (s *Store) deferEviction(ev eviction) {
	if s.primary == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, ev)
	s.unreplayed.Add(1)
	if len(s.pending) > maxPendingEvictions {
		s.compactLocked()
	}
}

func (s *Store) requeue(evs []eviction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(append([]eviction(nil), evs...), s.pending...)
	if len(s.pending) > maxPendingEvictions {
		s.compactLocked()
	}
}

// compactLocked replaces an overflowing backlog with one purge per affected
// category. It over-evicts but never loses a delete.
func (s *Store) compactLocked() {
	before := len(s.pending)
	seen := make(map[string]bool)
	compacted := make([]eviction, 0, 8)
	for _, ev := range s.pending {
		scope := evictionScope(ev.target)
		if seen[scope] {
			continue
		}
		seen[scope] = true
		compacted = append(compacted, eviction{target: scope, pattern: true})
	}
	if seen["*"] {
		compacted = []eviction{{target: "*", pattern: true}}
	}
	s.pending = compacted
	s.unreplayed.Add(int64(len(compacted) - before))
	s.logger.Warn().
		Int("evictions", before).
		Int("purges", len(compacted)).
		Msg("Eviction backlog full, collapsed into category purges")
}

// evictionScope returns the category glob covering target, or "*" when the
// category segment is itself a pattern.
func evictionScope(target string) string {
	category, _, _ := strings.Cut(target, ":")
	if category == "" || strings.ContainsAny(category, `*?[\`) {
		return "*"
	}
	return CategoryPattern(category)
}

// isPrimaryFailure reports whether err means the primary is unhealthy, as
// opposed to a caller error such as incrementing a non-integer.
func isPrimaryFailure(err error) bool {
	var ce *CacheError
	return errors.As(err, &ce)
}

func isOutage(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) ||
		errors.Is(err, gobreaker.ErrTooManyRequests) ||
		isPrimaryFailure(err)
}

// withFallback runs onPrimary while the primary is serving and onLocal
// otherwise. A primary failure is absorbed: it trips the breaker and the same
// call is answered by onLocal. Errors that are not outages are returned as is.
func withFallback[T any](
	ctx context.Context,
	s *Store,
	op string,
	onPrimary func(context.Context, *primary) (T, error),
	onLocal func() (T, error),
) (T, error) {
	var zero T
	if s.closed.Load() {
		return zero, ErrUnavailable
	}

	if s.primary != nil {
		s.probe(ctx)
		res, err := s.breaker.Execute(func() (any, error) {
			if s.breaker.State() == gobreaker.StateHalfOpen {
				if err := s.recover(ctx); err != nil {
					return nil, err
				}
			} else if s.unreplayed.Load() > 0 {
				if err := s.drain(ctx); err != nil {
					return nil, err
				}
			}
			return onPrimary(ctx, s.primary)
		})
		if err == nil {
			v, _ := res.(T)
			return v, nil
		}
		if !isOutage(err) {
			return zero, err
		}
		if isPrimaryFailure(err) {
			CacheErrors.WithLabelValues(op).Inc()
			s.logger.Debug().Err(err).Str("operation", op).Msg("Primary cache operation failed")
		}
	}

	return onLocal()
}

func (s *Store) resolveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return s.ttl
	}
	return ttl
}

type lookup struct {
	value []byte
	found bool
}

// Get returns the value stored under key. Expired entries are absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	r, err := withFallback(ctx, s, "get",
		func(ctx context.Context, p *primary) (lookup, error) {
			v, ok, err := p.get(ctx, key)
			if err == nil {
				recordLookup("primary", ok)
			}
			return lookup{value: v, found: ok}, err
		},
		func() (lookup, error) {
			v, ok := s.local.get(key)
			recordLookup("local", ok)
			return lookup{value: v, found: ok}, nil
		})
	if err != nil {
		return nil, false
	}
	return r.value, r.found
}

func recordLookup(tier string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(tier).Inc()
		return
	}
	CacheMisses.WithLabelValues(tier).Inc()
}

// Set stores value under key for ttl. A non-positive ttl selects the
// configured default.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ttl = s.resolveTTL(ttl)
	_, err := withFallback(ctx, s, "set",
		func(ctx context.Context, p *primary) (struct{}, error) {
			return struct{}{}, p.set(ctx, key, value, ttl)
		},
		func() (struct{}, error) {
			s.local.set(key, value, ttl)
			return struct{}{}, nil
		})
	return err
}

// Delete removes key from both tiers and returns how many copies were removed.
// A delete the primary cannot take right now is replayed when it recovers.
func (s *Store) Delete(ctx context.Context, key string) (int, error) {
	if s.closed.Load() {
		return 0, ErrUnavailable
	}
	removed := s.local.del(key)
	n, err := withFallback(ctx, s, "delete",
		func(ctx context.Context, p *primary) (int, error) {
			return p.del(ctx, key)
		},
		func() (int, error) {
			s.deferEviction(eviction{target: key})
			return 0, nil
		})
	return removed + n, err
}

// DeletePattern removes every key matching the glob from both tiers. The
// result is the sum over tiers, so a key held by both counts twice.
func (s *Store) DeletePattern(ctx context.Context, pattern string) (int, error) {
	if s.closed.Load() {
		return 0, ErrUnavailable
	}
	localRemoved, err := s.local.deletePattern(pattern)
	if err != nil {
		return 0, fmt.Errorf("cache: delete pattern %q: %w", pattern, err)
	}
	PatternRemovals.WithLabelValues("local").Add(float64(localRemoved))

	primaryRemoved, err := withFallback(ctx, s, "delete_pattern",
		func(ctx context.Context, p *primary) (int, error) {
			n, err := p.deletePattern(ctx, pattern)
			if err == nil {
				PatternRemovals.WithLabelValues("primary").Add(float64(n))
			}
			return n, err
		},
		func() (int, error) {
			s.deferEviction(eviction{target: pattern, pattern: true})
			return 0, nil
		})
	return localRemoved + primaryRemoved, err
}

// GetMany returns the values found for keys. Missing keys are absent from the map.
func (s *Store) GetMany(ctx context.Context, keys []string) map[string][]byte {
	if len(keys) == 0 {
		return map[string][]byte{}
	}
	out, err := withFallback(ctx, s, "get_many",
		func(ctx context.Context, p *primary) (map[string][]byte, error) {
			return p.getMany(ctx, keys)
		},
		func() (map[string][]byte, error) {
			return s.local.getMany(keys), nil
		})
	if err != nil || out == nil {
		return map[string][]byte{}
	}
	return out
}

// SetMany stores all items with the same ttl. On the primary this is a single
// pipelined round trip. It is not atomic across keys.
func (s *Store) SetMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	if len(items) == 0 {
		return nil
	}
	ttl = s.resolveTTL(ttl)
	_, err := withFallback(ctx, s, "set_many",
		func(ctx context.Context, p *primary) (struct{}, error) {
			return struct{}{}, p.setMany(ctx, items, ttl)
		},
		func() (struct{}, error) {
			s.local.setMany(items, ttl)
			return struct{}{}, nil
		})
	return err
}

// Increment adds by to the integer stored under key and returns the new value.
// It is atomic while the primary serves. On the local tier it is a plain
// read-modify-write: concurrent increments of one key can be lost, so counts
// taken while degraded are approximate.
func (s *Store) Increment(ctx context.Context, key string, by int64) (int64, error) {
	return withFallback(ctx, s, "incr",
		func(ctx context.Context, p *primary) (int64, error) {
			return p.incrBy(ctx, key, by)
		},
		func() (int64, error) {
			return s.local.incrBy(key, by)
		})
}

// IncrementUntil is Increment for counters that belong to a time window: the
// key expires at deadline on whichever tier holds it.
func (s *Store) IncrementUntil(ctx context.Context, key string, by int64, deadline time.Time) (int64, error) {
	return withFallback(ctx, s, "incr",
		func(ctx context.Context, p *primary) (int64, error) {
			return p.incrByUntil(ctx, key, by, deadline)
		},
		func() (int64, error) {
			return s.local.incrByUntil(key, by, deadline)
		})
}

// Stats returns a diagnostic snapshot.
func (s *Store) Stats(ctx context.Context) Stats {
	st := Stats{LocalEntries: s.local.len()}

	if s.primary != nil && !s.closed.Load() {
		n, err := withFallback(ctx, s, "dbsize",
			func(ctx context.Context, p *primary) (int64, error) {
				return p.dbSize(ctx)
			},
			func() (int64, error) {
				return 0, nil
			})
		if err == nil {
			st.PrimaryKeys = n
		}
	}

	s.mu.Lock()
	st.PendingEvictions = len(s.pending)
	s.mu.Unlock()

	st.State = s.State().String()
	return st
}

// Close empties the local tier and makes every later operation fail with
// ErrUnavailable. The Redis client is owned by the caller and stays open.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.local.flush()
	return nil
}
