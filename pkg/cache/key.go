package cache

import (
	"bytes"
	"strings"
)

// CacheKey represents a unique identifier for a cached response.
type CacheKey struct {
	// Category is the logical resource (e.g., "invoices", "calendar")
	Category string

	// Operation is the read kind (e.g., "list", "item", "stats")
	Operation string

	// Filters are the normalized request parameters
	Filters Filters
}

// String generates the deterministic cache key string.
// Format: category:operation:{"filter":"value",...}
//
// Example:
//
//	invoices:list:{"page":"1","status":"open"}
func (k CacheKey) String() string {
	return BuildKey(k.Category, k.Operation, k.Filters)
}

// BuildKey derives a cache key from a resource category, an operation and a
// filter set. Filter names are sorted before encoding, so two maps holding the
// same pairs always yield the same key.
func BuildKey(category, operation string, filters Filters) string {
	var buf bytes.Buffer
	buf.Grow(len(category) + len(operation) + 32)
	buf.WriteString(category)
	buf.WriteByte(':')
	buf.WriteString(operation)
	buf.WriteByte(':')
	encodeObject(&buf, filters)
	return buf.String()
}

// ItemKey is the key of a single-record read.
func ItemKey(category, id string) string {
	return BuildKey(category, string(OpItem), Filters{"id": String(id)})
}

// CategoryPattern matches every key of a category.
func CategoryPattern(category string) string {
	return category + ":*"
}

// OperationPattern matches every key of one operation within a category.
func OperationPattern(category string, op Operation) string {
	return category + ":" + string(op) + ":*"
}

// EscapeGlob escapes the glob metacharacters understood by DeletePattern so a
// literal value can be embedded into a pattern.
func EscapeGlob(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
