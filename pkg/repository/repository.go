// Package repository is the boundary to the application's data store. The
// cache layer only needs something that can fetch, count, and mutate plain
// records; Memory is an in-process implementation for the demo server and tests.
package repository

import (
	"context"
	"errors"
)

var (
	// ErrNotFound indicates the record does not exist for the tenant
	ErrNotFound = errors.New("repository: record not found")

	// ErrInvalid indicates a record or query the store cannot accept
	ErrInvalid = errors.New("repository: invalid input")
)

// Well-known record fields.
const (
	FieldID        = "id"
	FieldCompanyID = "companyId"
	FieldCreatedAt = "createdAt"
	FieldUpdatedAt = "updatedAt"
)

// Record is a plain JSON object.
type Record map[string]any

// ID returns the record's id, or "" if unset.
func (r Record) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

// CompanyID returns the owning company, or "" if unset.
func (r Record) CompanyID() string {
	s, _ := r[FieldCompanyID].(string)
	return s
}

// Query selects a page of records.
type Query struct {
	// Filters match record fields by their string form
	Filters map[string]string

	// Page is 1-based; Limit <= 0 returns every match
	Page  int
	Limit int

	// Sort names a field; a leading '-' sorts descending
	Sort string
}

// Repository stores records per tenant and category. Implementations must be
// safe for concurrent use.
type Repository interface {
	FetchByFilter(ctx context.Context, tenant, category string, q Query) ([]Record, error)
	Count(ctx context.Context, tenant, category string, filters map[string]string) (int, error)
	Get(ctx context.Context, tenant, category, id string) (Record, error)
	Create(ctx context.Context, tenant, category string, rec Record) (Record, error)
	Update(ctx context.Context, tenant, category, id string, rec Record) (Record, error)
	Delete(ctx context.Context, tenant, category, id string) (Record, error)
}
