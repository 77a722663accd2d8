// Package cache provides the two-tier response cache with a Redis primary and
// an in-process fallback.
//
// The package is organised leaf-first:
//
// - Deterministic key construction (BuildKey, CacheKey, Filters)
// - A static freshness table per resource category (TTL, TTLSeconds)
// - The two-tier engine with automatic failover (Store)
// - The handler-facing API with get-or-compute (Facade, GetOrCompute)
//
// # Basic Usage
//
//	// Create Redis client (nil runs on the local tier only)
//	redisClient := redis.NewClient(&redis.Options{
//		Addr: "localhost:6379",
//	})
//
//	store := cache.NewStore(redisClient, cache.Config{}, logger)
//	facade := cache.NewFacade(store, logger)
//
//	key := facade.Key("invoices", cache.OpList, cache.Filters{
//		"status": cache.String("open"),
//		"page":   cache.Int(1),
//	})
//	// invoices:list:{"page":1,"status":"open"}
//
//	invoices, outcome, err := cache.GetOrCompute(ctx, facade, key,
//		facade.TTL("invoices", cache.OpList),
//		func(ctx context.Context) ([]Invoice, error) {
//			return repo.ListInvoices(ctx, "open", 1)
//		})
//
// # Failover
//
// The store starts in StateUnknown; the first operation pings the primary.
// Any primary error or timeout moves the store to StatePrimaryDown and the
// same call is answered from the local tier. While down, no request waits on
// the primary. After the probe interval the next operation re-checks it with a
// ping and, if healthy, replays the deletes it missed before serving from it
// again. Each transition is logged once.
//
// Delete and DeletePattern always act on both tiers so a recovered primary
// cannot serve a value that was evicted during the outage.
//
// # Metrics
//
// The store exports Prometheus metrics:
//
//   - bizcache_cache_hits_total{tier} - Cache hits per tier
//   - bizcache_cache_misses_total{tier} - Cache misses per tier
//   - bizcache_cache_errors_total{operation} - Primary errors that caused a fallback
//   - bizcache_primary_up - 1 while the primary serves
//   - bizcache_tier_transitions_total{to} - Primary state changes
//   - bizcache_pattern_removed_total{tier} - Keys removed by pattern deletes
//   - bizcache_compute_duration_seconds - Producer run time on a miss
//
// The cache is best-effort and never the source of truth.
package cache
