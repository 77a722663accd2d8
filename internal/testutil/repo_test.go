package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/bizcache/pkg/repository"
)

func TestMockRepo_CountsCalls(t *testing.T) {
	ctx := context.Background()
	m := NewMockRepo()

	recs, err := Seed(ctx, m, "acme", "invoices", repository.Record{"n": 1.0}, repository.Record{"n": 2.0})
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if _, err := m.Get(ctx, "acme", "invoices", recs[0].ID()); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if got := m.Calls("Create"); got != 2 {
		t.Errorf("Calls(Create) = %d, want 2", got)
	}
	if got := m.Calls("Get"); got != 1 {
		t.Errorf("Calls(Get) = %d, want 1", got)
	}

	m.Reset()
	if got := m.Calls("Create"); got != 0 {
		t.Errorf("Calls(Create) after Reset = %d, want 0", got)
	}
}

func TestMockRepo_Behavior(t *testing.T) {
	ctx := context.Background()
	m := NewMockRepo()
	boom := errors.New("boom")

	m.SetBehavior("Count", RepoBehavior{Err: boom})
	if _, err := m.Count(ctx, "acme", "invoices", nil); !errors.Is(err, boom) {
		t.Errorf("Count() error = %v, want boom", err)
	}

	m.SetBehavior("FetchByFilter", RepoBehavior{Delay: time.Second})
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := m.FetchByFilter(short, "acme", "invoices", repository.Query{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("FetchByFilter() error = %v, want deadline exceeded", err)
	}
}
