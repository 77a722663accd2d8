// Package api is the HTTP boundary of the cache layer. It serves cached reads
// of repository records per tenant and purges the cache after every write.
//
// Routes:
//
//	GET    /api/{category}            list (filters, page, limit, sort from the query)
//	GET    /api/{category}/count      count of matching records
//	GET    /api/{category}/stats      aggregate over matching records
//	GET    /api/{category}/search?q=  substring search
//	GET    /api/{category}/{id}       single record
//	POST   /api/{category}            create
//	POST   /api/{category}/bulk       create many
//	PUT    /api/{category}/{id}       update
//	DELETE /api/{category}/{id}       delete
//	POST   /admin/cache/invalidate    purge a glob
//	GET    /admin/cache/stats         store diagnostics
//	GET    /health
//	GET    /metrics
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/bizcache/pkg/cache"
	"github.com/Sternrassler/bizcache/pkg/delivery"
	"github.com/Sternrassler/bizcache/pkg/invalidation"
	"github.com/Sternrassler/bizcache/pkg/metrics"
	"github.com/Sternrassler/bizcache/pkg/ratelimit"
	"github.com/Sternrassler/bizcache/pkg/repository"
)

// PrincipalFunc resolves the tenant a request acts for. It returns false for
// unauthenticated requests.
type PrincipalFunc func(r *http.Request) (tenant string, ok bool)

// HeaderPrincipal trusts a header set by an upstream gateway.
func HeaderPrincipal(header string) PrincipalFunc {
	return func(r *http.Request) (string, bool) {
		v := r.Header.Get(header)
		return v, v != ""
	}
}

// Deps are the collaborators of a Server. Limiter and Health are optional.
type Deps struct {
	Repo        repository.Repository
	Cache       *cache.Facade
	Responder   *delivery.Responder
	Invalidator *invalidation.Invalidator
	Limiter     *ratelimit.Limiter
	Principal   PrincipalFunc
	Health      func(ctx context.Context) error
	Logger      zerolog.Logger
}

// Server holds the handlers.
type Server struct {
	repo      repository.Repository
	cache     *cache.Facade
	responder *delivery.Responder
	inv       *invalidation.Invalidator
	limiter   *ratelimit.Limiter
	principal PrincipalFunc
	health    func(ctx context.Context) error
	logger    zerolog.Logger
}

// New creates a server. A nil Principal reads the tenant from X-Tenant.
func New(d Deps) *Server {
	if d.Principal == nil {
		d.Principal = HeaderPrincipal("X-Tenant")
	}
	return &Server{
		repo:      d.Repo,
		cache:     d.Cache,
		responder: d.Responder,
		inv:       d.Invalidator,
		limiter:   d.Limiter,
		principal: d.Principal,
		health:    d.Health,
		logger:    d.Logger,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.accessLog())
	r.Use(requestID)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/api/{category}", func(r chi.Router) {
			r.Use(validCategory)

			r.Get("/", s.handleList)
			r.Get("/count", s.handleCount)
			r.Get("/stats", s.handleStats)
			r.Get("/search", s.handleSearch)
			r.Get("/{id}", s.handleGet)

			r.Group(func(r chi.Router) {
				r.Use(s.rateLimit)
				r.Post("/", s.handleCreate)
				r.Post("/bulk", s.handleBulkCreate)
				r.Put("/{id}", s.handleUpdate)
				r.Delete("/{id}", s.handleDelete)
			})
		})

		r.Route("/admin/cache", func(r chi.Router) {
			r.Use(s.rateLimit)
			r.Post("/invalidate", s.handleInvalidatePattern)
			r.Get("/stats", s.handleCacheStats)
		})
	})

	return r
}
