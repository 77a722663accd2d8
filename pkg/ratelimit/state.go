// Package ratelimit implements a fixed-window request limiter on top of the
// cache's counters. Every subject gets a counter per window; the counter lives
// in the primary store so all server instances share it, and falls back to an
// approximate per-process count while the primary is down.
package ratelimit

import (
	"strconv"
	"time"
)

// Response headers set by the middleware.
const (
	HeaderLimit      = "X-RateLimit-Limit"
	HeaderRemaining  = "X-RateLimit-Remaining"
	HeaderReset      = "X-RateLimit-Reset"
	HeaderRetryAfter = "Retry-After"
)

// KeyPrefix namespaces limiter counters in the cache.
const KeyPrefix = "ratelimit"

// Decision is the outcome of one Allow call.
type Decision struct {
	// Allowed reports whether the request fits in the current window
	Allowed bool `json:"allowed"`

	// Limit is the number of requests a subject may make per window
	Limit int `json:"limit"`

	// Count is the number of requests seen in the window, this one included
	Count int64 `json:"count"`

	// ResetAt is when the current window ends
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns how many more requests fit in the window.
func (d Decision) Remaining() int {
	left := int64(d.Limit) - d.Count
	if left < 0 {
		return 0
	}
	return int(left)
}

// RetryAfter returns the wait until the window resets, rounded up to whole
// seconds as the Retry-After header requires. It is zero for allowed requests.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.Allowed {
		return 0
	}
	wait := d.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	return (wait + time.Second - 1).Truncate(time.Second)
}

// windowStart truncates now to the window boundary.
func windowStart(now time.Time, window time.Duration) time.Time {
	return now.Truncate(window)
}

func counterKey(subject string, start time.Time) string {
	return KeyPrefix + ":" + subject + ":" + strconv.FormatInt(start.Unix(), 10)
}
