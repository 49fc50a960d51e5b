// Package cache provides a generic, thread-safe response cache with TTL
// expiry, periodic sweep, and insertion-order size trimming.
//
// Both fetch paths of the sync layer (the adaptive poller and the batched
// preview service) share this cache type. TTL already bounds staleness, so
// size trimming keeps the N most-recently-inserted entries rather than
// tracking access order.
//
// All operations are thread-safe with built-in statistics (always enabled
// for observability) and optional Prometheus metrics via functional options.
package cache

import (
	"time"

	"github.com/ShadeREPO/elizaOS-sub000/errors"
)

// Cache represents the response cache interface, parameterized by value
// type V for type safety.
type Cache[V any] interface {
	// Get retrieves a fresh value by key. Returns the value and true if
	// present and within TTL, zero value and false otherwise. An expired
	// entry is evicted on read and reported as a miss.
	Get(key string) (V, bool)

	// Set stores a value with the given key and the current timestamp.
	// Returns true if a new entry was created, false if overwritten.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries in the cache.
	Size() int

	// Keys returns all keys whose entries are still fresh.
	Keys() []string

	// Stats returns cache statistics.
	Stats() *Statistics

	// Close shuts down the cache and its background sweep goroutine.
	Close() error
}

// EvictCallback is called when an entry is evicted from the cache.
type EvictCallback[V any] func(key string, value V)

// Entry represents a cache entry with its insertion metadata.
type Entry[V any] struct {
	Key        string
	Value      V
	InsertedAt time.Time
}

// Age returns how long ago the entry was inserted.
func (e *Entry[V]) Age() time.Duration {
	return time.Since(e.InsertedAt)
}

// validateKey validates a cache key for basic requirements.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
