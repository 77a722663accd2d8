package cache

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const (
	// DefaultLocalTTL applies when a write carries no TTL. It is kept short so a
	// fallback entry cannot outlive a long primary outage by much.
	DefaultLocalTTL = 5 * time.Second

	// DefaultCleanupInterval is how often the local janitor sweeps expired entries.
	DefaultCleanupInterval = time.Minute
)

// local is the in-process fallback tier. Expiry is checked on every read; the
// janitor only reclaims memory. Values are copied in and out so callers never
// share a slice with the store.
type local struct {
	items      *gocache.Cache
	defaultTTL time.Duration
}

func newLocal(defaultTTL, cleanupInterval time.Duration) *local {
	if defaultTTL <= 0 {
		defaultTTL = DefaultLocalTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &local{
		items:      gocache.New(defaultTTL, cleanupInterval),
		defaultTTL: defaultTTL,
	}
}

func (l *local) resolveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return l.defaultTTL
	}
	return ttl
}

func (l *local) get(key string) ([]byte, bool) {
	v, ok := l.items.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, false
	}
	return cloneBytes(b), true
}

func (l *local) entry(key string) (Entry, bool) {
	v, exp, ok := l.items.GetWithExpiration(key)
	if !ok {
		return Entry{}, false
	}
	b, _ := v.([]byte)
	return Entry{Key: key, Value: cloneBytes(b), ExpiresAt: exp}, true
}

func (l *local) set(key string, value []byte, ttl time.Duration) {
	l.items.Set(key, cloneBytes(value), l.resolveTTL(ttl))
}

func (l *local) del(key string) int {
	if _, ok := l.items.Get(key); !ok {
		l.items.Delete(key)
		return 0
	}
	l.items.Delete(key)
	return 1
}

func (l *local) deletePattern(pattern string) (int, error) {
	re, err := globToRegexp(pattern)
	if err != nil {
		return 0, err
	}
	removed := 0
	for key := range l.items.Items() {
		if re.MatchString(key) {
			l.items.Delete(key)
			removed++
		}
	}
	return removed, nil
}

func (l *local) getMany(keys []string) map[string][]byte {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := l.get(k); ok {
			out[k] = v
		}
	}
	return out
}

func (l *local) setMany(items map[string][]byte, ttl time.Duration) {
	for k, v := range items {
		l.set(k, v, ttl)
	}
}

// incrBy is a read-modify-write. Two callers racing on the same key can lose
// an update; callers needing exact counts must rely on the primary tier.
func (l *local) incrBy(key string, by int64) (int64, error) {
	return l.incrByUntil(key, by, time.Time{})
}

// incrByUntil is incrBy where a newly created counter expires at deadline
// instead of after the default TTL.
func (l *local) incrByUntil(key string, by int64, deadline time.Time) (int64, error) {
	ttl := l.defaultTTL
	if !deadline.IsZero() {
		if d := time.Until(deadline); d > 0 {
			ttl = d
		}
	}
	var current int64

	if e, ok := l.entry(key); ok && !e.IsExpired() {
		n, err := strconv.ParseInt(string(e.Value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrNotInteger, key)
		}
		current = n
		if remaining := e.TTL(); remaining > 0 {
			ttl = remaining
		}
	}

	next := current + by
	l.items.Set(key, []byte(strconv.FormatInt(next, 10)), ttl)
	return next, nil
}

func (l *local) len() int {
	return l.items.ItemCount()
}

func (l *local) flush() {
	l.items.Flush()
}

// globToRegexp translates a Redis-style glob into an anchored regular
// expression: '*' matches any run, '?' one character, '[...]' a class with
// optional '^' negation and ranges, and a backslash escapes the next
// character. Everything else is literal.
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)^`)
	rs := []rune(glob)
	for i := 0; i < len(rs); i++ {
		switch r := rs[i]; r {
		case '\\':
			if i+1 == len(rs) {
				b.WriteString(`\\`)
				continue
			}
			i++
			b.WriteString(regexp.QuoteMeta(string(rs[i])))
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		case '[':
			i = writeClass(&b, rs, i+1)
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteByte('$')
	return regexp.Compile(b.String())
}

// writeClass translates the class body starting at rs[i] and returns the
// index of its closing ']'. An unterminated class runs to the end of the glob.
// Reversed ranges are swapped, as Redis does.
func writeClass(b *strings.Builder, rs []rune, i int) int {
	negate := false
	if i < len(rs) && rs[i] == '^' {
		negate = true
		i++
	}

	var body strings.Builder
	for ; i < len(rs) && rs[i] != ']'; i++ {
		lo := rs[i]
		if lo == '\\' && i+1 < len(rs) {
			i++
			lo = rs[i]
		}
		if i+2 < len(rs) && rs[i+1] == '-' && rs[i+2] != ']' {
			i += 2
			hi := rs[i]
			if hi == '\\' && i+1 < len(rs) {
				i++
				hi = rs[i]
			}
			if lo > hi {
				lo, hi = hi, lo
			}
			body.WriteString(classRune(lo) + "-" + classRune(hi))
			continue
		}
		body.WriteString(classRune(lo))
	}

	switch {
	case body.Len() == 0 && negate:
		b.WriteByte('.')
	case body.Len() == 0:
		b.WriteString(`[^\x{0}-\x{10FFFF}]`)
	case negate:
		b.WriteString("[^" + body.String() + "]")
	default:
		b.WriteString("[" + body.String() + "]")
	}
	return i
}

func classRune(r rune) string {
	if strings.ContainsRune(`\]-[^`, r) {
		return `\` + string(r)
	}
	return string(r)
}
