// Command cache-server serves cached business records over HTTP, backed by a
// Redis primary cache with an in-process fallback and an in-memory repository.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bizcache/pkg/api"
	"github.com/Sternrassler/bizcache/pkg/cache"
	"github.com/Sternrassler/bizcache/pkg/config"
	"github.com/Sternrassler/bizcache/pkg/delivery"
	"github.com/Sternrassler/bizcache/pkg/invalidation"
	"github.com/Sternrassler/bizcache/pkg/logging"
	"github.com/Sternrassler/bizcache/pkg/ratelimit"
	"github.com/Sternrassler/bizcache/pkg/redisconn"
	"github.com/Sternrassler/bizcache/pkg/repository"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		logger := logging.NewLogger(logging.ComponentServer)
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Setup(logging.Config{
		Level:   logging.LogLevel(cfg.Logging.Level),
		Pretty:  cfg.Logging.Pretty,
		Output:  os.Stderr,
		Service: "bizcache",
	})
	logger := logging.NewLogger(logging.ComponentServer)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, nil); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

// app is the wired server.
type app struct {
	handler http.Handler
	store   *cache.Store
	close   func()
}

// build wires every component from cfg. A primary that cannot be reached is
// logged and the store starts degraded.
func build(ctx context.Context, cfg *config.Config, repo repository.Repository) (*app, error) {
	var (
		client  *redis.Client
		closers []func()
	)
	if cfg.Cache.Enabled {
		c, err := redisconn.Open(ctx, cfg.Cache.RedisURL,
			redisconn.WithLogger(logging.NewLogger(logging.ComponentRedis)),
			redisconn.WithPoolSize(cfg.Cache.PoolSize))
		switch {
		case errors.Is(err, redisconn.ErrUnreachable):
			logger := logging.NewLogger(logging.ComponentRedis)
			logger.Warn().Err(err).
				Msg("Primary cache unreachable, starting on the local tier")
		case err != nil:
			return nil, err
		}
		client = c
		closers = append(closers, func() { _ = client.Close() })
	}

	var primary redis.UniversalClient
	if client != nil {
		primary = client
	}
	store := cache.NewStore(primary, cfg.Cache.Store(), logging.NewLogger(logging.ComponentCache))
	closers = append(closers, func() { _ = store.Close() })
	facade := cache.NewFacade(store, logging.NewLogger(logging.ComponentCache))

	codec := delivery.NewCodec(cfg.Delivery.Codec(), logging.NewLogger(logging.ComponentDelivery))
	responder := delivery.NewResponder(codec, logging.NewLogger(logging.ComponentDelivery))

	var invOpts []invalidation.Option
	if cfg.Warmer.Enabled {
		warmer := invalidation.NewWarmer(cfg.Warmer.Pool(), logging.NewLogger(logging.ComponentInvalidation))
		closers = append(closers, warmer.Close)
		invOpts = append(invOpts, invalidation.WithWarmer(warmer))
	}
	inv := invalidation.New(facade, logging.NewLogger(logging.ComponentInvalidation), invOpts...)

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter = ratelimit.NewLimiter(facade, cfg.RateLimit.Limiter(), logging.NewLogger(logging.ComponentRateLimit))
	}

	if repo == nil {
		repo = repository.NewMemory()
	}
	srv := api.New(api.Deps{
		Repo:        repo,
		Cache:       facade,
		Responder:   responder,
		Invalidator: inv,
		Limiter:     limiter,
		Health:      redisconn.Healthcheck(primary, cfg.Cache.OpTimeout),
		Logger:      logging.NewLogger(logging.ComponentAPI),
	})
	if cfg.Warmer.Enabled {
		srv.RegisterRefreshers(inv)
	}

	return &app{
		handler: srv.Routes(),
		store:   store,
		close: func() {
			// reverse order: warmer, store, client
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

// run serves until ctx is cancelled, then shuts down gracefully. ready, when
// non-nil, receives the bound address.
func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, ready chan<- string) error {
	a, err := build(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer a.close()

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return err
	}

	server := &http.Server{
		Handler:      a.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	logger.Info().
		Str("addr", ln.Addr().String()).
		Bool("cache_enabled", cfg.Cache.Enabled).
		Str("cache_state", a.store.State().String()).
		Msg("Starting cache server")
	if ready != nil {
		ready <- ln.Addr().String()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info().Dur("shutdown_timeout", cfg.Server.ShutdownTimeout).Msg("Server stopped")
	return nil
}
