package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Facade is the cache API handed to request handlers. It owns key
// construction and TTL lookup so handlers never assemble key strings, and it
// stores values as JSON.
type Facade struct {
	store  *Store
	group  singleflight.Group
	logger zerolog.Logger
}

// Outcome describes how GetOrCompute produced its value.
type Outcome struct {
	// Hit is true when the value came from the cache
	Hit bool

	// Stored is true when a computed value was written back
	Stored bool
}

// Cached reports whether the returned value is (now) held by the cache.
func (o Outcome) Cached() bool {
	return o.Hit || o.Stored
}

// NewFacade wraps store.
func NewFacade(store *Store, logger zerolog.Logger) *Facade {
	return &Facade{store: store, logger: logger}
}

// Store returns the underlying two-tier store.
func (f *Facade) Store() *Store {
	return f.store
}

// Key builds the cache key of a read.
func (f *Facade) Key(category string, op Operation, filters Filters) string {
	return CacheKey{Category: category, Operation: string(op), Filters: filters}.String()
}

// TTL looks up the freshness window of a read.
func (f *Facade) TTL(category string, op Operation) time.Duration {
	return TTL(category, op)
}

type computed[T any] struct {
	val    T
	stored bool
}

// GetOrCompute returns the cached value of key, or runs compute on a miss and
// caches its result for ttl. Concurrent misses on the same key share a single
// compute call. A caller whose ctx ends stops waiting and gets ctx.Err(); the
// shared compute keeps running for the others, bounded by DefaultComputeTimeout.
// Errors from compute are returned and nothing is cached; a result that cannot
// be encoded as JSON fails with ErrSerialize.
func GetOrCompute[T any](
	ctx context.Context,
	f *Facade,
	key string,
	ttl time.Duration,
	compute func(context.Context) (T, error),
) (T, Outcome, error) {
	var zero T

	if raw, ok := f.store.Get(ctx, key); ok {
		var v T
		err := json.Unmarshal(raw, &v)
		if err == nil {
			f.logger.Debug().Str("key", key).Msg("Cache hit")
			return v, Outcome{Hit: true}, nil
		}
		f.logger.Warn().Err(err).Str("key", key).Msg("Cached value does not decode, recomputing")
	}

	// The shared compute outlives any single caller; each caller waits on its
	// own context.
	ch := f.group.DoChan(key, func() (any, error) {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultComputeTimeout)
		defer cancel()

		start := time.Now()
		val, err := compute(cctx)
		ComputeDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, err
		}

		data, err := marshal(val)
		if err != nil {
			return nil, err
		}

		stored := true
		if err := f.store.Set(cctx, key, data, ttl); err != nil {
			stored = false
			f.logger.Warn().Err(err).Str("key", key).Msg("Failed to cache computed value")
		}
		f.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Cache miss, computed")
		return computed[T]{val: val, stored: stored}, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return zero, Outcome{}, ctx.Err()
	}
	if res.Err != nil {
		return zero, Outcome{}, res.Err
	}

	r := res.Val.(computed[T])
	return r.val, Outcome{Stored: r.stored}, nil
}

// Get returns the raw JSON cached under key.
func (f *Facade) Get(ctx context.Context, key string) ([]byte, bool) {
	return f.store.Get(ctx, key)
}

// GetJSON decodes the value cached under key into T.
func GetJSON[T any](ctx context.Context, f *Facade, key string) (T, bool, error) {
	var v T
	raw, ok := f.store.Get(ctx, key)
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, fmt.Errorf("cache: decode %q: %w", key, err)
	}
	return v, true, nil
}

// Set encodes v as JSON and caches it under key.
func (f *Facade) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := marshal(v)
	if err != nil {
		return err
	}
	return f.store.Set(ctx, key, data, ttl)
}

// SetRaw caches already-encoded JSON.
func (f *Facade) SetRaw(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return f.store.Set(ctx, key, data, ttl)
}

// Delete evicts key from both tiers.
func (f *Facade) Delete(ctx context.Context, key string) (int, error) {
	return f.store.Delete(ctx, key)
}

// DeletePattern evicts every key matching the glob.
func (f *Facade) DeletePattern(ctx context.Context, pattern string) (int, error) {
	return f.store.DeletePattern(ctx, pattern)
}

// GetMany returns the raw JSON cached under each key that is present.
func (f *Facade) GetMany(ctx context.Context, keys []string) map[string][]byte {
	return f.store.GetMany(ctx, keys)
}

// SetMany encodes and caches every item with the same ttl. Nothing is written
// if any item fails to encode.
func (f *Facade) SetMany(ctx context.Context, items map[string]any, ttl time.Duration) error {
	encoded := make(map[string][]byte, len(items))
	for k, v := range items {
		data, err := marshal(v)
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		encoded[k] = data
	}
	return f.store.SetMany(ctx, encoded, ttl)
}

// Increment adds by to the counter under key. See Store.Increment for the
// guarantees while degraded.
func (f *Facade) Increment(ctx context.Context, key string, by int64) (int64, error) {
	return f.store.Increment(ctx, key, by)
}

// IncrementUntil adds by to a counter that expires at deadline.
func (f *Facade) IncrementUntil(ctx context.Context, key string, by int64, deadline time.Time) (int64, error) {
	return f.store.IncrementUntil(ctx, key, by, deadline)
}

func marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerialize, err)
	}
	return data, nil
}
