// Package testutil provides test doubles for the cache server.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/bizcache/pkg/repository"
)

// RepoBehavior injects latency or a failure into repository calls.
type RepoBehavior struct {
	Delay time.Duration
	Err   error
}

// MockRepo wraps a repository and records how often it is reached, so tests
// can tell cache hits from recomputations.
type MockRepo struct {
	inner repository.Repository

	mu        sync.RWMutex
	behaviors map[string]RepoBehavior // by method name
	calls     map[string]int
}

var _ repository.Repository = (*MockRepo)(nil)

// NewMockRepo wraps an empty in-memory repository.
func NewMockRepo() *MockRepo {
	return WrapRepo(repository.NewMemory())
}

// WrapRepo wraps inner.
func WrapRepo(inner repository.Repository) *MockRepo {
	return &MockRepo{
		inner:     inner,
		behaviors: make(map[string]RepoBehavior),
		calls:     make(map[string]int),
	}
}

// SetBehavior configures a method ("FetchByFilter", "Count", "Get", "Create",
// "Update", "Delete").
func (m *MockRepo) SetBehavior(method string, b RepoBehavior) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behaviors[method] = b
}

// Calls returns how often method was invoked.
func (m *MockRepo) Calls(method string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[method]
}

// Reset clears the call counters and behaviors.
func (m *MockRepo) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = make(map[string]int)
	m.behaviors = make(map[string]RepoBehavior)
}

func (m *MockRepo) enter(ctx context.Context, method string) error {
	m.mu.Lock()
	m.calls[method]++
	b := m.behaviors[method]
	m.mu.Unlock()

	if b.Delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.Delay):
		}
	}
	return b.Err
}

func (m *MockRepo) FetchByFilter(ctx context.Context, tenant, category string, q repository.Query) ([]repository.Record, error) {
	if err := m.enter(ctx, "FetchByFilter"); err != nil {
		return nil, err
	}
	return m.inner.FetchByFilter(ctx, tenant, category, q)
}

func (m *MockRepo) Count(ctx context.Context, tenant, category string, filters map[string]string) (int, error) {
	if err := m.enter(ctx, "Count"); err != nil {
		return 0, err
	}
	return m.inner.Count(ctx, tenant, category, filters)
}

func (m *MockRepo) Get(ctx context.Context, tenant, category, id string) (repository.Record, error) {
	if err := m.enter(ctx, "Get"); err != nil {
		return nil, err
	}
	return m.inner.Get(ctx, tenant, category, id)
}

func (m *MockRepo) Create(ctx context.Context, tenant, category string, rec repository.Record) (repository.Record, error) {
	if err := m.enter(ctx, "Create"); err != nil {
		return nil, err
	}
	return m.inner.Create(ctx, tenant, category, rec)
}

func (m *MockRepo) Update(ctx context.Context, tenant, category, id string, rec repository.Record) (repository.Record, error) {
	if err := m.enter(ctx, "Update"); err != nil {
		return nil, err
	}
	return m.inner.Update(ctx, tenant, category, id, rec)
}

func (m *MockRepo) Delete(ctx context.Context, tenant, category, id string) (repository.Record, error) {
	if err := m.enter(ctx, "Delete"); err != nil {
		return nil, err
	}
	return m.inner.Delete(ctx, tenant, category, id)
}

// Seed creates records for tenant and returns the stored copies.
func Seed(ctx context.Context, repo repository.Repository, tenant, category string, recs ...repository.Record) ([]repository.Record, error) {
	out := make([]repository.Record, 0, len(recs))
	for _, r := range recs {
		created, err := repo.Create(ctx, tenant, category, r)
		if err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}
