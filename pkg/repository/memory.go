package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type row struct {
	tenant string
	rec    Record
}

// Memory is a Repository held in process memory.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]row // category -> id -> row
	now  func() time.Time
}

var _ Repository = (*Memory)(nil)

// NewMemory creates an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{
		data: make(map[string]map[string]row),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) matching(tenant, category string, filters map[string]string) []Record {
	var out []Record
	for _, r := range m.data[category] {
		if r.tenant != tenant || !matches(r.rec, filters) {
			continue
		}
		out = append(out, r.rec)
	}
	return out
}

func matches(rec Record, filters map[string]string) bool {
	for field, want := range filters {
		v, ok := rec[field]
		if !ok || fmt.Sprint(v) != want {
			return false
		}
	}
	return true
}

// FetchByFilter returns the requested page of matching records.
func (m *Memory) FetchByFilter(ctx context.Context, tenant, category string, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	recs := m.matching(tenant, category, q.Filters)
	m.mu.RUnlock()

	sortRecords(recs, q.Sort)

	if q.Limit > 0 {
		page := max(q.Page, 1)
		start := (page - 1) * q.Limit
		if start >= len(recs) {
			return []Record{}, nil
		}
		recs = recs[start:min(start+q.Limit, len(recs))]
	}

	out := make([]Record, len(recs))
	for i, r := range recs {
		out[i] = clone(r)
	}
	return out, nil
}

// Count returns the number of matching records.
func (m *Memory) Count(ctx context.Context, tenant, category string, filters map[string]string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.matching(tenant, category, filters)), nil
}

// Get returns a single record.
func (m *Memory) Get(ctx context.Context, tenant, category, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.data[category][id]
	if !ok || r.tenant != tenant {
		return nil, fmt.Errorf("%s/%s: %w", category, id, ErrNotFound)
	}
	return clone(r.rec), nil
}

// Create stores rec under a new id and returns the stored copy.
func (m *Memory) Create(ctx context.Context, tenant, category string, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if category == "" {
		return nil, fmt.Errorf("%w: empty category", ErrInvalid)
	}

	stored := clone(rec)
	stored[FieldID] = uuid.NewString()
	ts := m.now().Format(time.RFC3339)
	stored[FieldCreatedAt] = ts
	stored[FieldUpdatedAt] = ts

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data[category] == nil {
		m.data[category] = make(map[string]row)
	}
	m.data[category][stored.ID()] = row{tenant: tenant, rec: stored}
	return clone(stored), nil
}

// Update merges rec into the stored record. The id and creation time cannot change.
func (m *Memory) Update(ctx context.Context, tenant, category, id string, rec Record) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.data[category][id]
	if !ok || r.tenant != tenant {
		return nil, fmt.Errorf("%s/%s: %w", category, id, ErrNotFound)
	}
	merged := clone(r.rec)
	for k, v := range rec {
		if k == FieldID || k == FieldCreatedAt {
			continue
		}
		merged[k] = v
	}
	merged[FieldUpdatedAt] = m.now().Format(time.RFC3339)
	m.data[category][id] = row{tenant: tenant, rec: merged}
	return clone(merged), nil
}

// Delete removes a record and returns it.
func (m *Memory) Delete(ctx context.Context, tenant, category, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.data[category][id]
	if !ok || r.tenant != tenant {
		return nil, fmt.Errorf("%s/%s: %w", category, id, ErrNotFound)
	}
	delete(m.data[category], id)
	return r.rec, nil
}

// sortRecords orders by field, numbers numerically and everything else by
// string form. Records without the field sort last. Ties fall back to id so
// pages are stable.
func sortRecords(recs []Record, field string) {
	desc := strings.HasPrefix(field, "-")
	field = strings.TrimPrefix(field, "-")
	if field == "" {
		field = FieldCreatedAt
	}

	sort.SliceStable(recs, func(i, j int) bool {
		c := compare(recs[i][field], recs[j][field])
		if c == 0 {
			return recs[i].ID() < recs[j].ID()
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func compare(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	fa, aNum := toFloat(a)
	fb, bNum := toFloat(b)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func clone(r Record) Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
