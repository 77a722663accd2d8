package cache

import (
	"time"
)

// Entry is a cached value as held by one tier.
type Entry struct {
	// Key the value is stored under
	Key string `json:"key"`

	// Value is the serialized JSON payload
	Value []byte `json:"value"`

	// ExpiresAt is when the entry becomes stale (zero means no expiry)
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired returns true if the entry has expired.
func (e *Entry) IsExpired() bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().After(e.ExpiresAt)
}

// TTL returns the time until expiration.
// Returns 0 if already expired or if the entry never expires.
func (e *Entry) TTL() time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	ttl := time.Until(e.ExpiresAt)
	if ttl < 0 {
		return 0
	}
	return ttl
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
