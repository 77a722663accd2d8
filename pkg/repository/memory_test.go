package repository

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, m *Memory, tenant string, recs ...Record) []Record {
	t.Helper()
	out := make([]Record, 0, len(recs))
	for _, r := range recs {
		created, err := m.Create(context.Background(), tenant, "invoices", r)
		require.NoError(t, err)
		out = append(out, created)
	}
	return out
}

func TestMemory_CreateGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.Create(ctx, "acme", "invoices", Record{"amount": 10.0, FieldCompanyID: "c-1"})
	require.NoError(t, err)

	_, err = uuid.Parse(created.ID())
	require.NoError(t, err, "ids are UUIDs")
	assert.Equal(t, "c-1", created.CompanyID())
	assert.NotEmpty(t, created[FieldCreatedAt])

	got, err := m.Get(ctx, "acme", "invoices", created.ID())
	require.NoError(t, err)
	assert.Equal(t, created, got)

	_, err = m.Get(ctx, "other", "invoices", created.ID())
	assert.ErrorIs(t, err, ErrNotFound, "records are isolated per tenant")
}

func TestMemory_FetchByFilter(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	seed(t, m, "acme",
		Record{"status": "open", "amount": 30.0},
		Record{"status": "paid", "amount": 10.0},
		Record{"status": "open", "amount": 20.0},
	)
	seed(t, m, "globex", Record{"status": "open", "amount": 5.0})

	open, err := m.FetchByFilter(ctx, "acme", "invoices", Query{
		Filters: map[string]string{"status": "open"},
		Sort:    "amount",
	})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, 20.0, open[0]["amount"])
	assert.Equal(t, 30.0, open[1]["amount"])

	desc, err := m.FetchByFilter(ctx, "acme", "invoices", Query{Sort: "-amount", Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Len(t, desc, 1)
	assert.Equal(t, 10.0, desc[0]["amount"])

	beyond, err := m.FetchByFilter(ctx, "acme", "invoices", Query{Page: 5, Limit: 2})
	require.NoError(t, err)
	assert.Empty(t, beyond)

	n, err := m.Count(ctx, "acme", "invoices", map[string]string{"amount": "10"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMemory_UpdateDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := seed(t, m, "acme", Record{"status": "open"})[0]

	updated, err := m.Update(ctx, "acme", "invoices", rec.ID(), Record{"status": "paid", FieldID: "hijack"})
	require.NoError(t, err)
	assert.Equal(t, "paid", updated["status"])
	assert.Equal(t, rec.ID(), updated.ID())

	_, err = m.Update(ctx, "globex", "invoices", rec.ID(), Record{"status": "void"})
	assert.ErrorIs(t, err, ErrNotFound)

	deleted, err := m.Delete(ctx, "acme", "invoices", rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "paid", deleted["status"])

	_, err = m.Delete(ctx, "acme", "invoices", rec.ID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	rec := seed(t, m, "acme", Record{"status": "open"})[0]

	rec["status"] = "mutated"
	got, err := m.Get(ctx, "acme", "invoices", rec.ID())
	require.NoError(t, err)
	assert.Equal(t, "open", got["status"])
}

func TestMemory_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory().FetchByFilter(ctx, "acme", "invoices", Query{})
	assert.ErrorIs(t, err, context.Canceled)
}
