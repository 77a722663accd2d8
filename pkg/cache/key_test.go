package cache

import (
	"math"
	"net/url"
	"testing"
)

func TestCacheKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  CacheKey
		want string
	}{
		{
			name: "no filters",
			key:  CacheKey{Category: "invoices", Operation: "list"},
			want: "invoices:list:{}",
		},
		{
			name: "single string filter",
			key: CacheKey{
				Category:  "invoices",
				Operation: "list",
				Filters:   Filters{"status": String("open")},
			},
			want: `invoices:list:{"status":"open"}`,
		},
		{
			name: "filters sorted by name",
			key: CacheKey{
				Category:  "invoices",
				Operation: "list",
				Filters: Filters{
					"status": String("open"),
					"page":   Int(2),
					"limit":  Int(50),
				},
			},
			want: `invoices:list:{"limit":50,"page":2,"status":"open"}`,
		},
		{
			name: "mixed value kinds",
			key: CacheKey{
				Category:  "calendar",
				Operation: "search",
				Filters: Filters{
					"archived": Bool(false),
					"owner":    Null(),
					"amount":   Float(12.5),
					"tags":     Strings("b", "a"),
				},
			},
			want: `calendar:search:{"amount":12.5,"archived":false,"owner":null,"tags":["b","a"]}`,
		},
		{
			name: "nested object sorted",
			key: CacheKey{
				Category:  "transactions",
				Operation: "list",
				Filters: Filters{
					"range": Object(map[string]Value{
						"to":   String("2024-12-31"),
						"from": String("2024-01-01"),
					}),
				},
			},
			want: `transactions:list:{"range":{"from":"2024-01-01","to":"2024-12-31"}}`,
		},
		{
			name: "quotes escaped",
			key: CacheKey{
				Category:  "contacts",
				Operation: "search",
				Filters:   Filters{"q": String(`a"b`)},
			},
			want: `contacts:search:{"q":"a\"b"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("CacheKey.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildKey_Deterministic(t *testing.T) {
	a := Filters{"status": String("open"), "page": Int(1), "company": String("c-1")}
	b := Filters{"company": String("c-1"), "status": String("open"), "page": Int(1)}

	first := BuildKey("invoices", "list", a)
	for i := 0; i < 100; i++ {
		if got := BuildKey("invoices", "list", b); got != first {
			t.Fatalf("BuildKey() not deterministic: %v != %v", got, first)
		}
	}
}

func TestBuildKey_DistinctFilters(t *testing.T) {
	keys := map[string]bool{
		BuildKey("invoices", "list", Filters{"page": Int(1)}):      true,
		BuildKey("invoices", "list", Filters{"page": String("1")}): true,
		BuildKey("invoices", "list", Filters{"page": Int(2)}):      true,
		BuildKey("invoices", "count", Filters{"page": Int(1)}):     true,
		BuildKey("companies", "list", Filters{"page": Int(1)}):     true,
	}
	if len(keys) != 5 {
		t.Errorf("expected 5 distinct keys, got %d", len(keys))
	}
}

func TestBuildKey_NilAndEmptyFiltersCollapse(t *testing.T) {
	if BuildKey("invoices", "list", nil) != BuildKey("invoices", "list", Filters{}) {
		t.Error("nil and empty filters should produce the same key")
	}
}

func TestBuildKey_NaNPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for NaN filter value")
		}
	}()
	BuildKey("invoices", "list", Filters{"amount": Float(math.NaN())})
}

func TestFiltersFromQuery(t *testing.T) {
	q := url.Values{
		"status": {"open"},
		"tag":    {"a", "b"},
		"empty":  {""},
		"page":   {"3"},
	}

	f := FiltersFromQuery(q, "page")

	if _, ok := f["empty"]; ok {
		t.Error("empty query value should be dropped")
	}
	if _, ok := f["page"]; ok {
		t.Error("skipped parameter should be dropped")
	}
	if f["status"].Kind() != KindString {
		t.Errorf("status kind = %v, want string", f["status"].Kind())
	}
	if f["tag"].Kind() != KindArray {
		t.Errorf("tag kind = %v, want array", f["tag"].Kind())
	}

	want := `invoices:list:{"status":"open","tag":["a","b"]}`
	if got := BuildKey("invoices", "list", f); got != want {
		t.Errorf("BuildKey() = %v, want %v", got, want)
	}

	// "?status=" and no status collapse to the same key
	cleared := FiltersFromQuery(url.Values{"status": {""}})
	if BuildKey("invoices", "list", cleared) != BuildKey("invoices", "list", nil) {
		t.Error("cleared filter should produce the unfiltered key")
	}
}

func TestFilters_With(t *testing.T) {
	base := Filters{"status": String("open")}
	scoped := base.With("tenant", String("acme"))

	if _, ok := base["tenant"]; ok {
		t.Error("With() must not modify the receiver")
	}
	want := `invoices:list:{"status":"open","tenant":"acme"}`
	if got := BuildKey("invoices", "list", scoped); got != want {
		t.Errorf("BuildKey() = %v, want %v", got, want)
	}
}

func TestPatterns(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"category", CategoryPattern("calendar"), "calendar:*"},
		{"operation", OperationPattern("invoices", OpStats), "invoices:stats:*"},
		{"item key", ItemKey("invoices", "42"), `invoices:item:{"id":"42"}`},
		{"escape plain", EscapeGlob("acme"), "acme"},
		{"escape meta", EscapeGlob(`a*b?[c]\`), `a\*b\?\[c\]\\`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}
