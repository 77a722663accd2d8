package invalidation

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// PatternDeleter removes every cache key matching a glob.
// *cache.Facade and *cache.Store satisfy it.
type PatternDeleter interface {
	DeletePattern(ctx context.Context, pattern string) (int, error)
}

// Context carries the identifiers of the mutated record.
type Context struct {
	// EntityID is the mutated record's id
	EntityID string

	// OwnerID is the company the record belongs to
	OwnerID string

	// Tenant is the principal the write was made for; it is passed through to
	// refresh functions and not used for pattern resolution
	Tenant string
}

// Report summarizes one invalidation.
type Report struct {
	Category string       `json:"category"`
	Kind     MutationKind `json:"kind"`
	Patterns []string     `json:"patterns"`
	Removed  int          `json:"removed"`
	Failed   int          `json:"failed"`
}

// RefreshFunc recomputes cache entries after an invalidation.
type RefreshFunc func(ctx context.Context, c Context) error

// Invalidator purges the cache entries a mutation makes stale. It never fails
// the mutation: delete errors are logged and counted, and the affected entries
// stay until their TTL expires.
type Invalidator struct {
	deleter PatternDeleter
	logger  zerolog.Logger
	warmer  *Warmer

	mu         sync.RWMutex
	refreshers map[string][]RefreshFunc
}

// Option configures an Invalidator.
type Option func(*Invalidator)

// WithWarmer runs registered refresh functions on w after each invalidation.
func WithWarmer(w *Warmer) Option {
	return func(inv *Invalidator) {
		inv.warmer = w
	}
}

// New creates an invalidator that deletes through d.
func New(d PatternDeleter, logger zerolog.Logger, opts ...Option) *Invalidator {
	inv := &Invalidator{
		deleter:    d,
		logger:     logger,
		refreshers: make(map[string][]RefreshFunc),
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// OnRefresh registers fn to run in the background after category is
// invalidated. It has no effect without a warmer.
func (inv *Invalidator) OnRefresh(category string, fn RefreshFunc) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.refreshers[category] = append(inv.refreshers[category], fn)
}

// Patterns resolves the globs a mutation purges.
func (inv *Invalidator) Patterns(category string, kind MutationKind, c Context) []string {
	rule, _ := lookup(category, kind)
	return resolve(rule, c)
}

// Invalidate purges every pattern of the mutation and returns what was done.
func (inv *Invalidator) Invalidate(ctx context.Context, category string, kind MutationKind, c Context) Report {
	rule, known := lookup(category, kind)
	if !known {
		inv.logger.Debug().
			Str("category", category).
			Str("kind", string(kind)).
			Msg("No invalidation rule, purging whole category")
	}

	report := Report{
		Category: category,
		Kind:     kind,
		Patterns: resolve(rule, c),
	}

	for _, pattern := range report.Patterns {
		n, err := inv.deleter.DeletePattern(ctx, pattern)
		if err != nil {
			report.Failed++
			InvalidationFailures.WithLabelValues(category).Inc()
			inv.logger.Warn().
				Err(err).
				Str("category", category).
				Str("kind", string(kind)).
				Str("pattern", pattern).
				Msg("Cache invalidation failed, entries stay until TTL expiry")
			continue
		}
		report.Removed += n
	}

	Invalidations.WithLabelValues(category, string(kind)).Inc()
	InvalidatedKeys.WithLabelValues(category).Add(float64(report.Removed))
	inv.logger.Debug().
		Str("category", category).
		Str("kind", string(kind)).
		Int("patterns", len(report.Patterns)).
		Int("removed", report.Removed).
		Msg("Cache invalidated")

	inv.refresh(category, c)
	return report
}

func (inv *Invalidator) refresh(category string, c Context) {
	if inv.warmer == nil {
		return
	}
	inv.mu.RLock()
	fns := append([]RefreshFunc(nil), inv.refreshers[category]...)
	inv.mu.RUnlock()
	if len(fns) == 0 {
		return
	}

	jobs := make([]Job, len(fns))
	for i, fn := range fns {
		fn := fn
		jobs[i] = func(ctx context.Context) error { return fn(ctx, c) }
	}
	inv.warmer.Submit(category, jobs...)
}

// Wait blocks until background refreshes started so far have finished.
func (inv *Invalidator) Wait() {
	if inv.warmer != nil {
		inv.warmer.Wait()
	}
}
