package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	s, _ := newTestStore(t, Config{})
	return NewFacade(s, zerolog.Nop())
}

func TestGetOrCompute_MissThenHit(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	var calls atomic.Int32
	compute := func(context.Context) (map[string]int, error) {
		calls.Add(1)
		return map[string]int{"x": 1}, nil
	}

	v, outcome, err := GetOrCompute(ctx, f, "k", 60*time.Second, compute)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"x": 1}, v)
	assert.Equal(t, Outcome{Hit: false, Stored: true}, outcome)
	assert.Equal(t, int32(1), calls.Load())

	raw, ok := f.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"x":1}`, string(raw))

	v, outcome, err = GetOrCompute(ctx, f, "k", 60*time.Second, compute)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"x": 1}, v)
	assert.True(t, outcome.Hit)
	assert.True(t, outcome.Cached())
	assert.Equal(t, int32(1), calls.Load(), "compute must not run on a hit")
}

func TestGetOrCompute_ErrorNotCached(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)
	boom := errors.New("repository down")

	_, _, err := GetOrCompute(ctx, f, "k", time.Minute, func(context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)

	_, ok := f.Get(ctx, "k")
	assert.False(t, ok, "failed compute must not be cached")
}

func TestGetOrCompute_SerializeError(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	_, _, err := GetOrCompute(ctx, f, "k", time.Minute, func(context.Context) (chan int, error) {
		return make(chan int), nil
	})
	require.ErrorIs(t, err, ErrSerialize)
}

func TestGetOrCompute_ConcurrentMissesShareCompute(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "v", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, _, err := GetOrCompute(ctx, f, "shared", time.Minute, compute)
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// late arrivals may start a second flight after the first finished
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestGetOrCompute_CancelledCallerDoesNotFailOthers(t *testing.T) {
	f := newTestFacade(t)

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	compute := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		select {
		case <-release:
			return "fresh", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, _, err := GetOrCompute(firstCtx, f, "k", time.Minute, compute)
		firstErr <- err
	}()
	<-entered

	type result struct {
		v   string
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, _, err := GetOrCompute(context.Background(), f, "k", time.Minute, compute)
		second <- result{v, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "fresh", got.v)
	assert.Equal(t, int32(1), calls.Load())

	raw, ok := f.Get(context.Background(), "k")
	require.True(t, ok, "the shared compute still caches its result")
	assert.JSONEq(t, `"fresh"`, string(raw))
}

func TestGetOrCompute_UndecodableValueRecomputed(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)
	require.NoError(t, f.SetRaw(ctx, "k", []byte(`"not a number"`), time.Minute))

	v, outcome, err := GetOrCompute(ctx, f, "k", time.Minute, func(context.Context) (int, error) {
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.False(t, outcome.Hit)
}

func TestFacade_SetAndGetJSON(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	type invoice struct {
		ID     string  `json:"id"`
		Amount float64 `json:"amount"`
	}

	key := f.Key("invoices", OpItem, Filters{"id": String("inv-1")})
	require.NoError(t, f.Set(ctx, key, invoice{ID: "inv-1", Amount: 99.5}, f.TTL("invoices", OpItem)))

	got, ok, err := GetJSON[invoice](ctx, f, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, invoice{ID: "inv-1", Amount: 99.5}, got)

	_, ok, err = GetJSON[invoice](ctx, f, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, f.Set(ctx, key, func() {}, time.Minute), ErrSerialize)
}

func TestFacade_BatchAndPatterns(t *testing.T) {
	ctx := context.Background()
	f := newTestFacade(t)

	require.NoError(t, f.SetMany(ctx, map[string]any{
		"calendar:list:{}":  []string{"e1"},
		"calendar:count:{}": 1,
		"invoices:list:{}":  []string{"i1"},
	}, time.Minute))

	got := f.GetMany(ctx, []string{"calendar:list:{}", "invoices:list:{}"})
	assert.Len(t, got, 2)

	n, err := f.DeletePattern(ctx, CategoryPattern("calendar"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.Delete(ctx, "invoices:list:{}")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	count, err := f.Increment(ctx, "views", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}
