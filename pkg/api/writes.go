package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/Sternrassler/bizcache/pkg/invalidation"
	"github.com/Sternrassler/bizcache/pkg/repository"
)

const (
	maxBodyBytes = 1 << 20
	maxBulkItems = 1000
)

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// invalidate purges after a successful write. It never fails the write.
func (s *Server) invalidate(ctx context.Context, category string, kind invalidation.MutationKind, rec repository.Record) {
	s.inv.Invalidate(ctx, category, kind, invalidation.Context{
		EntityID: rec.ID(),
		OwnerID:  rec.CompanyID(),
		Tenant:   TenantFromContext(ctx),
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")

	var rec repository.Record
	if err := decodeBody(w, r, &rec); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	created, err := s.repo.Create(r.Context(), TenantFromContext(r.Context()), category, rec)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r.Context(), category, invalidation.Create, created)

	w.Header().Set("Location", "/api/"+category+"/"+created.ID())
	s.responder.JSON(w, r, http.StatusCreated, created)
}

func (s *Server) handleBulkCreate(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	tenant := TenantFromContext(r.Context())

	var recs []repository.Record
	if err := decodeBody(w, r, &recs); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if len(recs) == 0 || len(recs) > maxBulkItems {
		s.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("expected 1 to %d records", maxBulkItems))
		return
	}

	created := make([]repository.Record, 0, len(recs))
	owners := make(map[string]bool)
	for _, rec := range recs {
		c, err := s.repo.Create(r.Context(), tenant, category, rec)
		if err != nil {
			// what was written so far is already visible; purge before failing
			s.invalidateBulk(r.Context(), category, owners)
			s.fail(w, r, err)
			return
		}
		created = append(created, c)
		owners[c.CompanyID()] = true
	}
	s.invalidateBulk(r.Context(), category, owners)

	s.responder.JSON(w, r, http.StatusCreated, map[string]any{
		"data":  created,
		"count": len(created),
	})
}

// invalidateBulk runs one bulk invalidation per distinct owner.
func (s *Server) invalidateBulk(ctx context.Context, category string, owners map[string]bool) {
	if len(owners) == 0 {
		return
	}
	tenant := TenantFromContext(ctx)
	for owner := range owners {
		s.inv.Invalidate(ctx, category, invalidation.Bulk, invalidation.Context{
			OwnerID: owner,
			Tenant:  tenant,
		})
	}
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	id := chi.URLParam(r, "id")
	tenant := TenantFromContext(r.Context())

	var rec repository.Record
	if err := decodeBody(w, r, &rec); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	before, err := s.repo.Get(r.Context(), tenant, category, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	updated, err := s.repo.Update(r.Context(), tenant, category, id, rec)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.invalidate(r.Context(), category, invalidation.Update, updated)
	// moving a record between companies also stales the previous owner's reads
	if prev := before.CompanyID(); prev != "" && prev != updated.CompanyID() {
		s.invalidate(r.Context(), category, invalidation.Update, before)
	}

	s.responder.JSON(w, r, http.StatusOK, updated)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	id := chi.URLParam(r, "id")

	deleted, err := s.repo.Delete(r.Context(), TenantFromContext(r.Context()), category, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.invalidate(r.Context(), category, invalidation.Delete, deleted)

	w.WriteHeader(http.StatusNoContent)
}
