package api

import (
	"context"

	"github.com/Sternrassler/bizcache/pkg/cache"
	"github.com/Sternrassler/bizcache/pkg/invalidation"
)

// RegisterRefreshers makes inv recompute each category's unfiltered count for
// the writing tenant after an invalidation, so the next count read is a hit.
func (s *Server) RegisterRefreshers(inv *invalidation.Invalidator, categories ...string) {
	if len(categories) == 0 {
		categories = cache.Categories()
	}
	for _, category := range categories {
		inv.OnRefresh(category, s.refreshCount(category))
	}
}

func (s *Server) refreshCount(category string) invalidation.RefreshFunc {
	return func(ctx context.Context, c invalidation.Context) error {
		if c.Tenant == "" {
			return nil
		}
		filters := cache.Filters{paramTenant: cache.String(c.Tenant)}
		_, _, err := s.count(ctx, c.Tenant, category, filters, nil)
		return err
	}
}
