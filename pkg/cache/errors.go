package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrSerialize indicates a value could not be encoded to JSON
	ErrSerialize = errors.New("cache: value is not JSON-serializable")

	// ErrNotInteger indicates Increment hit a value that is not an integer
	ErrNotInteger = errors.New("cache: value is not an integer")

	// ErrUnavailable indicates neither tier could serve the operation
	ErrUnavailable = errors.New("cache: all tiers unavailable")
)

// CacheError is the error returned by the primary-store adapter.
// Store treats any CacheError as a signal to use the local tier.
type CacheError struct {
	Op  string
	Key string
	Err error
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("primary %s %q: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("primary %s: %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CacheError) Unwrap() error {
	return e.Err
}
