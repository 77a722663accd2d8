package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultOpTimeout bounds every primary-store round trip.
	DefaultOpTimeout = 2 * time.Second

	// scanCount is the COUNT hint passed to SCAN.
	scanCount = 500

	// delBatch caps the number of keys passed to a single DEL.
	delBatch = 1000
)

// primary adapts a Redis client to the store. Every method runs under its own
// short deadline and reports failures as *CacheError; a missing key is not an
// error.
type primary struct {
	client  redis.UniversalClient
	timeout time.Duration
}

func newPrimary(client redis.UniversalClient, timeout time.Duration) *primary {
	if timeout <= 0 {
		timeout = DefaultOpTimeout
	}
	return &primary{client: client, timeout: timeout}
}

func (p *primary) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, p.timeout)
}

func (p *primary) ping(ctx context.Context) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	if err := p.client.Ping(ctx).Err(); err != nil {
		return &CacheError{Op: "ping", Err: err}
	}
	return nil
}

func (p *primary) get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	data, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, &CacheError{Op: "get", Key: key, Err: err}
	}
	return data, true, nil
}

func (p *primary) set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	if err := p.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return &CacheError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (p *primary) del(ctx context.Context, key string) (int, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	n, err := p.client.Del(ctx, key).Result()
	if err != nil {
		return 0, &CacheError{Op: "del", Key: key, Err: err}
	}
	return int(n), nil
}

// deletePattern collects every key matching the glob with SCAN, then removes
// them with batched DEL calls.
func (p *primary) deletePattern(ctx context.Context, pattern string) (int, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	var keys []string
	var cursor uint64
	for {
		batch, next, err := p.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return 0, &CacheError{Op: "scan", Key: pattern, Err: err}
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	removed := 0
	for start := 0; start < len(keys); start += delBatch {
		end := min(start+delBatch, len(keys))
		n, err := p.client.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return removed, &CacheError{Op: "del", Key: pattern, Err: err}
		}
		removed += int(n)
	}
	return removed, nil
}

func (p *primary) getMany(ctx context.Context, keys []string) (map[string][]byte, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	values, err := p.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &CacheError{Op: "mget", Err: err}
	}

	out := make(map[string][]byte, len(keys))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = []byte(s)
	}
	return out, nil
}

// setMany writes all items in one pipelined round trip.
func (p *primary) setMany(ctx context.Context, items map[string][]byte, ttl time.Duration) error {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	_, err := p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range items {
			pipe.Set(ctx, k, v, ttl)
		}
		return nil
	})
	if err != nil {
		return &CacheError{Op: "pipeline set", Err: err}
	}
	return nil
}

func (p *primary) incrBy(ctx context.Context, key string, by int64) (int64, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	n, err := p.client.IncrBy(ctx, key, by).Result()
	if err != nil {
		// a reply error means the server is fine and the stored value is not a counter
		var reply redis.Error
		if errors.As(err, &reply) {
			return 0, fmt.Errorf("%w: %s", ErrNotInteger, key)
		}
		return 0, &CacheError{Op: "incrby", Key: key, Err: err}
	}
	return n, nil
}

// incrByUntil increments and pins the key's expiry to deadline in one
// transaction. EXPIREAT is idempotent, so every caller may send it.
func (p *primary) incrByUntil(ctx context.Context, key string, by int64, deadline time.Time) (int64, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	var incr *redis.IntCmd
	_, err := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.IncrBy(ctx, key, by)
		pipe.ExpireAt(ctx, key, deadline)
		return nil
	})
	if err != nil {
		var reply redis.Error
		if errors.As(err, &reply) {
			return 0, fmt.Errorf("%w: %s", ErrNotInteger, key)
		}
		return 0, &CacheError{Op: "incrby", Key: key, Err: err}
	}
	return incr.Val(), nil
}

// dbSize is used only for diagnostics.
func (p *primary) dbSize(ctx context.Context) (int64, error) {
	ctx, cancel := p.bounded(ctx)
	defer cancel()

	n, err := p.client.DBSize(ctx).Result()
	if err != nil {
		return 0, &CacheError{Op: "dbsize", Err: err}
	}
	return n, nil
}
