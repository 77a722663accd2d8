package invalidation

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/Sternrassler/bizcache/pkg/cache"
)

// MutationKind is the kind of write that triggers an invalidation.
type MutationKind string

const (
	Create MutationKind = "create"
	Update MutationKind = "update"
	Delete MutationKind = "delete"
	Bulk   MutationKind = "bulk"
)

// Placeholders substituted into rule patterns.
const (
	EntityPlaceholder = "{entityId}"
	OwnerPlaceholder  = "{ownerId}"
)

// Rule lists the key globs a mutation makes stale. EntityPatterns and
// OwnerPatterns carry a placeholder and are skipped when the mutation has no
// value for it.
type Rule struct {
	Patterns       []string
	EntityPatterns []string
	OwnerPatterns  []string
}

type route struct {
	category string
	kind     MutationKind
}

// collection matches every multi-record read of a category.
func collection(category string) []string {
	return []string{
		cache.OperationPattern(category, cache.OpList),
		cache.OperationPattern(category, cache.OpCount),
		cache.OperationPattern(category, cache.OpStats),
		cache.OperationPattern(category, cache.OpSearch),
	}
}

// item matches the single-record read of the mutated entity.
func item(category string) string {
	return category + ":" + string(cache.OpItem) + `:*"id":"` + EntityPlaceholder + `"*`
}

// ownedBy matches every read of category filtered by the owning company.
func ownedBy(category string) string {
	return category + `:*"companyId":"` + OwnerPlaceholder + `"*`
}

// companyDerived are the owning company's aggregates touched by any
// company-scoped write.
var companyDerived = []string{
	ownedByCompany(cache.OpStats),
	`companies:item:*"id":"` + OwnerPlaceholder + `"*`,
}

func ownedByCompany(op cache.Operation) string {
	return "companies:" + string(op) + `:*"companyId":"` + OwnerPlaceholder + `"*`
}

func concat(parts ...[]string) []string {
	var out []string
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// standard builds the rules shared by most categories: creates purge the
// collection reads, updates and deletes also purge the record itself, and
// bulk writes purge the whole category. The dashboard aggregates everything.
func standard(category string, extra ...string) map[route]Rule {
	owner := concat([]string{ownedBy(category)}, companyDerived)
	base := concat(collection(category), []string{"dashboard:*"}, extra)
	return map[route]Rule{
		{category, Create}: {Patterns: base, OwnerPatterns: owner},
		{category, Update}: {Patterns: base, EntityPatterns: []string{item(category)}, OwnerPatterns: owner},
		{category, Delete}: {Patterns: base, EntityPatterns: []string{item(category)}, OwnerPatterns: owner},
		{category, Bulk}:   {Patterns: concat([]string{cache.CategoryPattern(category), "dashboard:*"}, extra), OwnerPatterns: owner},
	}
}

// routes is the static routing table. Categories missing here fall back to
// purging the whole category.
var routes = func() map[route]Rule {
	table := map[route]Rule{}
	merge := func(m map[route]Rule) {
		for k, v := range m {
			table[k] = v
		}
	}

	// calendar reads were historically keyed under "events"
	merge(standard("calendar", "calendar:events:*"))
	// posting or paying an invoice changes bookkeeping aggregates
	merge(standard("invoices", "transactions:stats:*", "accounts:stats:*"))
	merge(standard("transactions", "accounts:*"))
	merge(standard("accounts", "transactions:stats:*"))
	merge(standard("contacts", "invoices:search:*"))

	companies := standard("companies")
	for _, kind := range []MutationKind{Update, Delete} {
		r := companies[route{"companies", kind}]
		// everything filtered by this company
		r.EntityPatterns = append(r.EntityPatterns, `*"companyId":"`+EntityPlaceholder+`"*`)
		companies[route{"companies", kind}] = r
	}
	merge(companies)

	table[route{"dashboard", Bulk}] = Rule{Patterns: []string{"dashboard:*"}}
	return table
}()

// lookup returns the rule for a mutation and whether it came from the table.
func lookup(category string, kind MutationKind) (Rule, bool) {
	if r, ok := routes[route{category, kind}]; ok {
		return r, true
	}
	return Rule{Patterns: []string{cache.CategoryPattern(cache.EscapeGlob(category))}}, false
}

// resolve substitutes the context into a rule and drops patterns whose
// placeholder has no value. Values are escaped so they match literally.
func resolve(r Rule, c Context) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, p := range r.Patterns {
		add(p)
	}
	if c.EntityID != "" {
		v := literal(c.EntityID)
		for _, p := range r.EntityPatterns {
			add(strings.ReplaceAll(p, EntityPlaceholder, v))
		}
	}
	if c.OwnerID != "" {
		v := literal(c.OwnerID)
		for _, p := range r.OwnerPatterns {
			add(strings.ReplaceAll(p, OwnerPlaceholder, v))
		}
	}
	return out
}

// literal renders a value the way it appears inside a key's JSON string and
// escapes it for glob matching.
func literal(v string) string {
	encoded, err := json.Marshal(v)
	if err != nil {
		return cache.EscapeGlob(v)
	}
	return cache.EscapeGlob(string(encoded[1 : len(encoded)-1]))
}
