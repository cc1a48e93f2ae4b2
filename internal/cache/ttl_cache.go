// Package cache provides the in-process read-through caches in front of
// the effective role resolver and the membership slot lookup.
package cache

import (
	"sync"
	"time"

	"github.com/smallbiznis/greenroom/internal/clock"
)

// Cache is a TTL-bounded key/value store.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	// ExpireMatching marks every entry whose key satisfies the predicate
	// as expired. Entries are not removed, so the operation stays
	// proportional to the number of live entries.
	ExpireMatching(match func(K) bool)
	Flush()
}

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

type ttlCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	clk     clock.Clock
}

// NewTTLCache returns an empty cache driven by the injected clock.
func NewTTLCache[K comparable, V any](clk clock.Clock) Cache[K, V] {
	return &ttlCache[K, V]{
		entries: make(map[K]entry[V]),
		clk:     clk,
	}
}

func (c *ttlCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	item, ok := c.entries[key]
	c.mu.RUnlock()

	var zero V
	if !ok {
		return zero, false
	}
	if !item.expiresAt.After(c.clk.Now()) {
		c.mu.Lock()
		// Re-check under the write lock before dropping the entry.
		if current, still := c.entries[key]; still && !current.expiresAt.After(c.clk.Now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return zero, false
	}
	return item.value, true
}

func (c *ttlCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.clk.Now().Add(ttl),
	}
	c.mu.Unlock()
}

func (c *ttlCache[K, V]) ExpireMatching(match func(K) bool) {
	c.mu.Lock()
	for key, item := range c.entries {
		if match(key) {
			item.expiresAt = time.Time{}
			c.entries[key] = item
		}
	}
	c.mu.Unlock()
}

func (c *ttlCache[K, V]) Flush() {
	c.mu.Lock()
	c.entries = make(map[K]entry[V])
	c.mu.Unlock()
}
