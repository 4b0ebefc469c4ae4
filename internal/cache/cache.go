// Package cache is the one explicit TTL cache abstraction shared by the
// reconstructor and the feed aggregator. Entries are immutable snapshots:
// inserted once, read many times, replaced or expired by key, never mutated
// in place.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"kasocial/internal/metrics"
)

// Cache is a bounded TTL cache keyed by string. The zero value is not
// usable; construct with New.
type Cache[V any] struct {
	name string
	lru  *expirable.LRU[string, V]
}

// New creates a cache holding at most size entries, each expiring ttl after
// insertion. The name labels hit/miss metrics.
func New[V any](name string, size int, ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		name: name,
		lru:  expirable.NewLRU[string, V](size, nil, ttl),
	}
}

// Get returns the cached snapshot for key, if present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		metrics.CacheHits.WithLabelValues(c.name).Inc()
	} else {
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
	}
	return v, ok
}

// Set inserts or replaces the snapshot for key.
func (c *Cache[V]) Set(key string, value V) {
	c.lru.Add(key, value)
}

// Invalidate drops the entry for key, if any.
func (c *Cache[V]) Invalidate(key string) {
	c.lru.Remove(key)
}

// Purge drops every entry.
func (c *Cache[V]) Purge() {
	c.lru.Purge()
}
