package api

import (
	"net/http"
	"strings"

	"github.com/Sternrassler/bizcache/pkg/cache"
	"github.com/Sternrassler/bizcache/pkg/logging"
)

type invalidateRequest struct {
	Pattern string `json:"pattern"`
}

type invalidateResponse struct {
	Pattern string `json:"pattern"`
	Removed int    `json:"removed"`
}

// handleInvalidatePattern purges an arbitrary glob. Removal is global, not
// scoped to the caller's tenant.
func (s *Server) handleInvalidatePattern(w http.ResponseWriter, r *http.Request) {
	var req invalidateRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	req.Pattern = strings.TrimSpace(req.Pattern)
	if req.Pattern == "" {
		s.writeError(w, r, http.StatusBadRequest, "pattern is required")
		return
	}

	removed, err := s.cache.DeletePattern(r.Context(), req.Pattern)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info().
		Str("pattern", req.Pattern).
		Int("removed", removed).
		Str("tenant", TenantFromContext(r.Context())).
		Msg("Cache invalidated by admin")
	s.responder.JSON(w, r, http.StatusOK, invalidateResponse{Pattern: req.Pattern, Removed: removed})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	s.responder.JSON(w, r, http.StatusOK, s.cache.Store().Stats(r.Context()))
}

type healthResponse struct {
	Status  string `json:"status"`
	Cache   string `json:"cache"`
	Primary string `json:"primary,omitempty"`
}

// handleHealth always answers 200 while the server can serve: a degraded
// cache is reported, not failed.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Cache:  s.cache.Store().State().String(),
	}
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			resp.Primary = err.Error()
		} else {
			resp.Primary = "ok"
		}
	}
	if s.cache.Store().State() == cache.StatePrimaryDown {
		resp.Status = "degraded"
	}
	s.responder.JSON(w, r, http.StatusOK, resp)
}
