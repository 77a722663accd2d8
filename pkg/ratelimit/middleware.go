package ratelimit

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
)

// SubjectFunc names the party a request is counted against. An empty subject
// exempts the request.
type SubjectFunc func(r *http.Request) string

// Middleware rejects requests over the limit with 429 Too Many Requests and
// a Retry-After header. Every counted response carries the X-RateLimit headers.
func (l *Limiter) Middleware(subject SubjectFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s := subject(r)
			if s == "" {
				next.ServeHTTP(w, r)
				return
			}

			d, err := l.Allow(r.Context(), s)
			if err != nil {
				// already logged; fail open
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set(HeaderLimit, strconv.Itoa(d.Limit))
			h.Set(HeaderRemaining, strconv.Itoa(d.Remaining()))
			h.Set(HeaderReset, strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retry := d.RetryAfter(l.now())
				h.Set(HeaderRetryAfter, strconv.Itoa(int(retry.Seconds())))
				h.Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"error":      "rate limit exceeded",
					"retryAfter": int(retry.Seconds()),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
