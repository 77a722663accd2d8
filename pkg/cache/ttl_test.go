package cache

import (
	"sort"
	"testing"
	"time"
)

func TestTTLSeconds(t *testing.T) {
	tests := []struct {
		name     string
		category string
		op       Operation
		want     int
	}{
		{"invoice list", "invoices", OpList, 300},
		{"invoice item", "invoices", OpItem, 600},
		{"company item", "companies", OpItem, 3600},
		{"calendar list", "calendar", OpList, 120},
		{"dashboard stats", "dashboard", OpStats, 60},
		{"accounts count", "accounts", OpCount, 3600},
		{"unknown category uses default", "widgets", OpList, 300},
		{"unknown category search", "widgets", OpSearch, 60},
		{"unknown operation uses list", "invoices", Operation("export"), 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TTLSeconds(tt.category, tt.op); got != tt.want {
				t.Errorf("TTLSeconds(%q, %q) = %d, want %d", tt.category, tt.op, got, tt.want)
			}
		})
	}
}

func TestTTL_Duration(t *testing.T) {
	if got := TTL("calendar", OpItem); got != 5*time.Minute {
		t.Errorf("TTL() = %v, want 5m", got)
	}
}

func TestTTLTable_Positive(t *testing.T) {
	ops := []Operation{OpList, OpItem, OpStats, OpCount, OpSearch}
	for _, c := range Categories() {
		for _, op := range ops {
			if TTLSeconds(c, op) <= 0 {
				t.Errorf("TTLSeconds(%q, %q) must be positive", c, op)
			}
		}
	}
}

func TestCategories_Sorted(t *testing.T) {
	got := Categories()
	if !sort.StringsAreSorted(got) {
		t.Errorf("Categories() not sorted: %v", got)
	}
	if len(got) != len(ttlTable) {
		t.Errorf("Categories() returned %d entries, want %d", len(got), len(ttlTable))
	}
}
