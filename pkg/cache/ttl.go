package cache

import (
	"fmt"
	"sync"
	"time"
)

// ttlEntry represents an entry in the TTL cache.
type ttlEntry[V any] struct {
	key        string
	value      V
	insertedAt time.Time
}

// ttlCache is a thread-safe TTL cache with insertion-order size trimming.
// Entries expire ttl after insertion; a background sweep removes expired
// entries and trims the cache to maxEntries, oldest insertions first.
type ttlCache[V any] struct {
	mu            sync.RWMutex
	ttl           time.Duration
	sweepInterval time.Duration
	maxEntries    int // 0 means unbounded
	items         map[string]*ttlEntry[V]
	order         []string // keys in insertion order, oldest first
	stats         *Statistics
	metrics       *cacheMetrics
	evictFn       EvictCallback[V]

	// Background sweep coordination
	shutdown chan struct{}
	done     chan struct{}
}

func newTTLCache[V any](ttl, sweepInterval time.Duration, maxEntries int, opts *cacheOptions[V]) (*ttlCache[V], error) {
	var metrics *cacheMetrics
	if opts.metricsReg != nil && opts.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, err
		}
	}

	c := &ttlCache[V]{
		ttl:           ttl,
		sweepInterval: sweepInterval,
		maxEntries:    maxEntries,
		items:         make(map[string]*ttlEntry[V]),
		stats:         NewStatistics(),
		metrics:       metrics,
		evictFn:       opts.evictCallback,
		shutdown:      make(chan struct{}),
		done:          make(chan struct{}),
	}

	go c.sweepLoop()

	return c, nil
}

// isExpired checks freshness against the cache TTL at time now.
func (c *ttlCache[V]) isExpired(e *ttlEntry[V], now time.Time) bool {
	return now.Sub(e.insertedAt) >= c.ttl
}

// Get retrieves a value by key, evicting it if past TTL.
func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		var zero V
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false
	}

	if c.isExpired(entry, time.Now()) {
		c.mu.Lock()
		// Re-check under write lock; a Set may have refreshed the entry
		if current, still := c.items[key]; still && c.isExpired(current, time.Now()) {
			c.removeLocked(key)
			size := len(c.items)
			c.mu.Unlock()

			if c.evictFn != nil {
				c.evictFn(key, current.value)
			}
			c.stats.Eviction()
			c.stats.UpdateSize(int64(size))
			if c.metrics != nil {
				c.metrics.recordEviction()
				c.metrics.updateSize(size)
			}
		} else {
			c.mu.Unlock()
		}

		var zero V
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false
	}

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}
	return entry.value, true
}

// Set stores a value with the current timestamp. Overwriting a key moves it
// to the back of the insertion order so trimming evicts genuinely old data.
func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var trimmed []*ttlEntry[V]

	c.mu.Lock()
	_, exists := c.items[key]
	if exists {
		c.removeFromOrderLocked(key)
	}
	c.items[key] = &ttlEntry[V]{
		key:        key,
		value:      value,
		insertedAt: time.Now(),
	}
	c.order = append(c.order, key)

	// Trim to the size ceiling, oldest insertions first
	if c.maxEntries > 0 {
		for len(c.items) > c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			if e, ok := c.items[oldest]; ok {
				delete(c.items, oldest)
				trimmed = append(trimmed, e)
			}
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if c.evictFn != nil {
		for _, e := range trimmed {
			c.evictFn(e.key, e.value)
		}
	}

	c.stats.Set()
	for range trimmed {
		c.stats.Eviction()
	}
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		for range trimmed {
			c.metrics.recordEviction()
		}
		c.metrics.updateSize(size)
	}

	return !exists, nil
}

// Delete removes an entry by key.
func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		c.removeLocked(key)
	}
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		if c.evictFn != nil {
			c.evictFn(key, entry.value)
		}
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			c.metrics.recordDelete()
			c.metrics.updateSize(size)
		}
	}

	return exists, nil
}

// Clear removes all entries from the cache.
func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	evicted := c.items
	c.items = make(map[string]*ttlEntry[V])
	c.order = nil
	c.mu.Unlock()

	if c.evictFn != nil {
		for _, e := range evicted {
			c.evictFn(e.key, e.value)
		}
	}
	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}
	return nil
}

// Size returns the current number of entries in the cache.
func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Keys returns all keys with fresh entries.
// Expired-but-unswept keys are excluded.
func (c *ttlCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	now := time.Now()
	for key, entry := range c.items {
		if !c.isExpired(entry, now) {
			keys = append(keys, key)
		}
	}
	return keys
}

// Stats returns cache statistics.
func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

// Close shuts down the cache and stops the background sweep goroutine.
func (c *ttlCache[V]) Close() error {
	select {
	case <-c.shutdown:
		// Already shutting down
	default:
		close(c.shutdown)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for sweep goroutine to finish")
	}
}

// removeLocked deletes a key from both the map and the order slice.
// Caller must hold the write lock.
func (c *ttlCache[V]) removeLocked(key string) {
	delete(c.items, key)
	c.removeFromOrderLocked(key)
}

// removeFromOrderLocked drops a key from the insertion-order slice.
// Caller must hold the write lock.
func (c *ttlCache[V]) removeFromOrderLocked(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// sweepLoop periodically removes expired entries until shutdown.
func (c *ttlCache[V]) sweepLoop() {
	defer close(c.done)

	ticker := time.NewTicker(c.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep removes all expired entries and updates statistics.
func (c *ttlCache[V]) sweep() {
	now := time.Now()
	var expired []*ttlEntry[V]

	c.mu.Lock()
	for key, entry := range c.items {
		if c.isExpired(entry, now) {
			expired = append(expired, entry)
			c.removeLocked(key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if c.evictFn != nil {
		for _, entry := range expired {
			c.evictFn(entry.key, entry.value)
		}
	}

	if len(expired) > 0 {
		for range expired {
			c.stats.Eviction()
		}
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			for range expired {
				c.metrics.recordEviction()
			}
			c.metrics.updateSize(size)
		}
	}
}
