package cache

import (
	"sort"
	"time"
)

// Operation is the kind of read a cache entry was produced by.
type Operation string

const (
	OpList   Operation = "list"
	OpItem   Operation = "item"
	OpStats  Operation = "stats"
	OpCount  Operation = "count"
	OpSearch Operation = "search"
)

// TTLSet holds the time-to-live, in seconds, of each operation of a category.
type TTLSet struct {
	List   int
	Item   int
	Stats  int
	Count  int
	Search int
}

// Seconds returns the TTL of op. Unknown operations get the list TTL.
func (s TTLSet) Seconds(op Operation) int {
	switch op {
	case OpItem:
		return s.Item
	case OpStats:
		return s.Stats
	case OpCount:
		return s.Count
	case OpSearch:
		return s.Search
	default:
		return s.List
	}
}

// defaultTTLSet applies to categories missing from ttlTable.
var defaultTTLSet = TTLSet{List: 300, Item: 600, Stats: 120, Count: 300, Search: 60}

// ttlTable is fixed at build time; changing a value requires a deployment.
var ttlTable = map[string]TTLSet{
	// invoices move through drafts and payments during the day
	"invoices": {List: 300, Item: 600, Stats: 120, Count: 300, Search: 60},
	// company master data rarely changes
	"companies": {List: 1800, Item: 3600, Stats: 600, Count: 1800, Search: 300},
	"calendar":  {List: 120, Item: 300, Stats: 120, Count: 120, Search: 60},
	// chart of accounts
	"accounts":     {List: 3600, Item: 3600, Stats: 900, Count: 3600, Search: 600},
	"transactions": {List: 180, Item: 600, Stats: 120, Count: 180, Search: 60},
	"contacts":     {List: 900, Item: 1800, Stats: 600, Count: 900, Search: 300},
	"dashboard":    {List: 60, Item: 60, Stats: 60, Count: 60, Search: 30},
}

// TTLFor returns the TTL set of a category.
func TTLFor(category string) TTLSet {
	if s, ok := ttlTable[category]; ok {
		return s
	}
	return defaultTTLSet
}

// TTLSeconds returns the TTL in seconds for a category/operation pair.
func TTLSeconds(category string, op Operation) int {
	return TTLFor(category).Seconds(op)
}

// TTL returns the TTL for a category/operation pair.
func TTL(category string, op Operation) time.Duration {
	return time.Duration(TTLSeconds(category, op)) * time.Second
}

// Categories lists the categories with an explicit TTL entry, sorted.
func Categories() []string {
	out := make([]string, 0, len(ttlTable))
	for c := range ttlTable {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
