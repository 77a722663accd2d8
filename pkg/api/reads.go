package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Sternrassler/bizcache/pkg/cache"
	"github.com/Sternrassler/bizcache/pkg/delivery"
	"github.com/Sternrassler/bizcache/pkg/repository"
)

// Query parameters with a meaning beyond field filtering.
const (
	paramPage   = "page"
	paramLimit  = "limit"
	paramSort   = "sort"
	paramSearch = "q"
	paramTenant = "tenant"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

var reserved = map[string]bool{
	paramPage:   true,
	paramLimit:  true,
	paramSort:   true,
	paramSearch: true,
	paramTenant: true,
}

// listResult is what list and search reads cache.
type listResult struct {
	Items []repository.Record `json:"items"`
	Total int                 `json:"total"`
}

// Stats is the aggregate served by the stats read.
type Stats struct {
	Count    int                `json:"count"`
	ByStatus map[string]int     `json:"byStatus,omitempty"`
	Sums     map[string]float64 `json:"sums,omitempty"`
}

type countResult struct {
	Count int `json:"count"`
}

// read is a parsed read request.
type read struct {
	tenant   string
	category string
	query    repository.Query
	search   string
	filters  cache.Filters
}

func parseRead(r *http.Request) (read, error) {
	q, err := normalizeQuery(r.URL.Query())
	if err != nil {
		return read{}, err
	}

	page, err := intParam(q, paramPage, 1)
	if err != nil || page < 1 {
		return read{}, fmt.Errorf("invalid %s", paramPage)
	}
	limit, err := intParam(q, paramLimit, defaultLimit)
	if err != nil || limit < 1 {
		return read{}, fmt.Errorf("invalid %s", paramLimit)
	}
	limit = min(limit, maxLimit)

	rd := read{
		tenant:   TenantFromContext(r.Context()),
		category: chi.URLParam(r, "category"),
		search:   q.Get(paramSearch),
		query: repository.Query{
			Filters: make(map[string]string),
			Page:    page,
			Limit:   limit,
			Sort:    q.Get(paramSort),
		},
	}
	for name := range q {
		if !reserved[name] {
			rd.query.Filters[name] = q.Get(name)
		}
	}

	// tenant always comes from the principal, never from the query
	rd.filters = cache.FiltersFromQuery(q, paramPage, paramLimit, paramTenant).
		With(paramTenant, cache.String(rd.tenant))
	return rd, nil
}

// normalizeQuery drops empty values and rejects parameters given more than
// once. The cache key and the repository query are both built from its result.
func normalizeQuery(q url.Values) (url.Values, error) {
	out := make(url.Values, len(q))
	for name, values := range q {
		var kept []string
		for _, v := range values {
			if name == paramSearch {
				v = strings.TrimSpace(v)
			}
			if v != "" {
				kept = append(kept, v)
			}
		}
		switch len(kept) {
		case 0:
		case 1:
			out[name] = kept
		default:
			return nil, fmt.Errorf("parameter %s given more than once", name)
		}
	}
	return out, nil
}

func intParam(q url.Values, name string, def int) (int, error) {
	v := q.Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// paged returns filters that also pin the page, so every page has its own key.
func (rd read) paged() cache.Filters {
	return rd.filters.
		With(paramPage, cache.Int(int64(rd.query.Page))).
		With(paramLimit, cache.Int(int64(rd.query.Limit)))
}

func (rd read) pagination(total int) *delivery.Pagination {
	pages := 0
	if rd.query.Limit > 0 {
		pages = (total + rd.query.Limit - 1) / rd.query.Limit
	}
	return &delivery.Pagination{
		Page:       rd.query.Page,
		Limit:      rd.query.Limit,
		Total:      total,
		TotalPages: pages,
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	rd, err := parseRead(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	key := s.cache.Key(rd.category, cache.OpList, rd.paged())
	res, outcome, err := cache.GetOrCompute(r.Context(), s.cache, key, s.cache.TTL(rd.category, cache.OpList),
		func(ctx context.Context) (listResult, error) {
			items, err := s.repo.FetchByFilter(ctx, rd.tenant, rd.category, rd.query)
			if err != nil {
				return listResult{}, err
			}
			total, err := s.repo.Count(ctx, rd.tenant, rd.category, rd.query.Filters)
			if err != nil {
				return listResult{}, err
			}
			return listResult{Items: items, Total: total}, nil
		})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respond(w, r, delivery.Response{
		Data:       res.Items,
		Pagination: rd.pagination(res.Total),
		Outcome:    outcome,
		TTLSeconds: cache.TTLSeconds(rd.category, cache.OpList),
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	rd, err := parseRead(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if rd.search == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing q")
		return
	}

	key := s.cache.Key(rd.category, cache.OpSearch, rd.paged())
	res, outcome, err := cache.GetOrCompute(r.Context(), s.cache, key, s.cache.TTL(rd.category, cache.OpSearch),
		func(ctx context.Context) (listResult, error) {
			all := rd.query
			all.Page, all.Limit = 0, 0
			recs, err := s.repo.FetchByFilter(ctx, rd.tenant, rd.category, all)
			if err != nil {
				return listResult{}, err
			}
			hits := search(recs, rd.search)
			return listResult{Items: page(hits, rd.query.Page, rd.query.Limit), Total: len(hits)}, nil
		})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respond(w, r, delivery.Response{
		Data:       res.Items,
		Pagination: rd.pagination(res.Total),
		Outcome:    outcome,
		TTLSeconds: cache.TTLSeconds(rd.category, cache.OpSearch),
	})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	rd, err := parseRead(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, outcome, err := s.count(r.Context(), rd.tenant, rd.category, rd.filters, rd.query.Filters)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respond(w, r, delivery.Response{
		Data:       res,
		Outcome:    outcome,
		TTLSeconds: cache.TTLSeconds(rd.category, cache.OpCount),
	})
}

// count is shared with the background refresher.
func (s *Server) count(ctx context.Context, tenant, category string, keyFilters cache.Filters, repoFilters map[string]string) (countResult, cache.Outcome, error) {
	key := s.cache.Key(category, cache.OpCount, keyFilters)
	return cache.GetOrCompute(ctx, s.cache, key, s.cache.TTL(category, cache.OpCount),
		func(ctx context.Context) (countResult, error) {
			n, err := s.repo.Count(ctx, tenant, category, repoFilters)
			return countResult{Count: n}, err
		})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rd, err := parseRead(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	key := s.cache.Key(rd.category, cache.OpStats, rd.filters)
	res, outcome, err := cache.GetOrCompute(r.Context(), s.cache, key, s.cache.TTL(rd.category, cache.OpStats),
		func(ctx context.Context) (Stats, error) {
			all := rd.query
			all.Page, all.Limit = 0, 0
			recs, err := s.repo.FetchByFilter(ctx, rd.tenant, rd.category, all)
			if err != nil {
				return Stats{}, err
			}
			return aggregate(recs), nil
		})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respond(w, r, delivery.Response{
		Data:       res,
		Outcome:    outcome,
		TTLSeconds: cache.TTLSeconds(rd.category, cache.OpStats),
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	tenant := TenantFromContext(r.Context())
	category := chi.URLParam(r, "category")
	id := chi.URLParam(r, "id")

	key := s.cache.Key(category, cache.OpItem, cache.Filters{
		repository.FieldID: cache.String(id),
		paramTenant:        cache.String(tenant),
	})
	rec, outcome, err := cache.GetOrCompute(r.Context(), s.cache, key, s.cache.TTL(category, cache.OpItem),
		func(ctx context.Context) (repository.Record, error) {
			return s.repo.Get(ctx, tenant, category, id)
		})
	if err != nil {
		s.fail(w, r, err)
		return
	}

	s.respond(w, r, delivery.Response{
		Data:       rec,
		Outcome:    outcome,
		TTLSeconds: cache.TTLSeconds(category, cache.OpItem),
	})
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, resp delivery.Response) {
	if err := s.responder.Respond(w, r, resp); err != nil {
		s.fail(w, r, err)
	}
}

// search keeps records with a string field containing term, case-insensitively.
func search(recs []repository.Record, term string) []repository.Record {
	term = strings.ToLower(term)
	var out []repository.Record
	for _, rec := range recs {
		for _, v := range rec {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), term) {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}

func page(recs []repository.Record, p, limit int) []repository.Record {
	start := (p - 1) * limit
	if start >= len(recs) {
		return []repository.Record{}
	}
	return recs[start:min(start+limit, len(recs))]
}

// aggregate counts records, groups them by status and sums numeric fields.
func aggregate(recs []repository.Record) Stats {
	st := Stats{Count: len(recs)}
	for _, rec := range recs {
		if status, ok := rec["status"].(string); ok {
			if st.ByStatus == nil {
				st.ByStatus = make(map[string]int)
			}
			st.ByStatus[status]++
		}
		for k, v := range rec {
			n, ok := v.(float64)
			if !ok {
				continue
			}
			if st.Sums == nil {
				st.Sums = make(map[string]float64)
			}
			st.Sums[k] += n
		}
	}
	return st
}

func isNotFound(err error) bool {
	return errors.Is(err, repository.ErrNotFound)
}
