package invalidation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// WarmerConfig holds warmer configuration.
type WarmerConfig struct {
	// MaxConcurrency is the maximum number of refresh jobs running per batch
	MaxConcurrency int

	// Timeout per refresh job
	Timeout time.Duration
}

// DefaultWarmerConfig returns conservative defaults: refreshes compete with
// request handling for the repository.
func DefaultWarmerConfig() WarmerConfig {
	return WarmerConfig{
		MaxConcurrency: 4,
		Timeout:        10 * time.Second,
	}
}

// Job is a single refresh unit.
type Job func(ctx context.Context) error

// Warmer runs refresh jobs in the background with bounded concurrency.
// Jobs outlive the request that triggered them; Close cancels them.
type Warmer struct {
	config WarmerConfig
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu orders Submit's wg.Add against Close's wg.Wait
	mu     sync.Mutex
	closed bool
}

// NewWarmer creates a warmer.
func NewWarmer(config WarmerConfig, logger zerolog.Logger) *Warmer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultWarmerConfig().MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultWarmerConfig().Timeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Warmer{
		config: config,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit schedules jobs and returns immediately. Jobs submitted after Close
// are dropped.
func (w *Warmer) Submit(label string, jobs ...Job) {
	if len(jobs) == 0 {
		return
	}

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		w.run(label, jobs)
	}()
}

func (w *Warmer) run(label string, jobs []Job) {
	start := time.Now()
	var failed atomic.Int32

	g := new(errgroup.Group)
	g.SetLimit(w.config.MaxConcurrency)

	for i, job := range jobs {
		i, job := i, job
		if w.ctx.Err() != nil {
			w.logger.Debug().Str("label", label).Msg("Warmer stopping (closed)")
			break
		}
		g.Go(func() error {
			ctx, cancel := context.WithTimeout(w.ctx, w.config.Timeout)
			defer cancel()

			if err := job(ctx); err != nil {
				failed.Add(1)
				RefreshFailures.WithLabelValues(label).Inc()
				w.logger.Warn().
					Err(err).
					Str("label", label).
					Int("job", i).
					Msg("Cache refresh failed")
				return err
			}
			return nil
		})
	}
	_ = g.Wait()

	w.logger.Debug().
		Str("label", label).
		Int("jobs", len(jobs)).
		Int32("failed", failed.Load()).
		Dur("duration", time.Since(start)).
		Msg("Cache refresh complete")
}

// Wait blocks until every submitted batch has finished.
func (w *Warmer) Wait() {
	w.wg.Wait()
}

// Close cancels running jobs and waits for them to return.
func (w *Warmer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
}
