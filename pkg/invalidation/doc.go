// Package invalidation maps mutations to the cache key patterns they make
// stale.
//
// The routing table is static: each (category, mutation kind) pair resolves
// to a fixed set of globs, optionally parameterized by the mutated record's
// id ({entityId}) and owning company ({ownerId}). Categories without a rule
// purge everything under "category:*". Purging more than necessary is
// acceptable; serving stale data is not.
//
//	inv := invalidation.New(facade, logger)
//	report := inv.Invalidate(ctx, "calendar", invalidation.Create,
//		invalidation.Context{OwnerID: "c-42"})
//
// Invalidation never fails the triggering write. Failed purges are logged as
// warnings and the entries expire with their TTL.
package invalidation
