package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	l, mr := newTestLimiter(t, Config{Limit: 2, Window: time.Minute})
	fixedClock(l, mr, time.Date(2024, 5, 1, 12, 0, 45, 0, time.UTC))

	handler := l.Middleware(func(r *http.Request) string {
		return r.Header.Get("X-Tenant")
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func(tenant string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/invoices", nil)
		if tenant != "" {
			req.Header.Set("X-Tenant", tenant)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := do("acme")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "2", first.Header().Get(HeaderLimit))
	assert.Equal(t, "1", first.Header().Get(HeaderRemaining))

	assert.Equal(t, http.StatusNoContent, do("acme").Code)

	rejected := do("acme")
	assert.Equal(t, http.StatusTooManyRequests, rejected.Code)
	assert.Equal(t, "15", rejected.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "0", rejected.Header().Get(HeaderRemaining))
	assert.JSONEq(t, `{"error":"rate limit exceeded","retryAfter":15}`, rejected.Body.String())

	// no subject, not counted
	for i := 0; i < 5; i++ {
		rec := do("")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Header().Get(HeaderLimit))
	}
}

func TestMiddleware_FailsOpen(t *testing.T) {
	l := NewLimiter(failingCounter{}, Config{Limit: 1}, zerolog.Nop())
	handler := l.Middleware(func(*http.Request) string { return "acme" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
