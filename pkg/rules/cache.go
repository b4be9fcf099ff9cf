// Package rules memoizes program requirement, special case and school lookups
// and holds the fixed program tables the conversion rules are driven by.
package rules

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Loader fetches the value for a cache miss
type Loader[V any] func(ctx context.Context) (V, error)

// Cache is a concurrent read-through cache. The first caller for an uncached
// key performs the load; concurrent callers for the same key may load it again,
// and the last store wins. Errors are never cached.
type Cache[V any] struct {
	name    string
	cache   map[string]*cacheEntry[V]
	mu      sync.RWMutex
	maxSize int
	ttl     time.Duration
	hits    atomic.Int64
	misses  atomic.Int64
	// onHit is set before the cache is shared
	onHit func(name string, hit bool)
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// CacheConfig configures a cache
type CacheConfig struct {
	MaxSize int
	TTL     time.Duration
}

// DefaultCacheConfig returns sensible defaults
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxSize: 1000,
		TTL:     30 * time.Minute,
	}
}

// NewCache creates a new cache
func NewCache[V any](name string, config CacheConfig) *Cache[V] {
	if config.MaxSize <= 0 {
		config.MaxSize = DefaultCacheConfig().MaxSize
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig().TTL
	}
	return &Cache[V]{
		name:    name,
		cache:   make(map[string]*cacheEntry[V]),
		maxSize: config.MaxSize,
		ttl:     config.TTL,
	}
}

// Get returns the cached value for key, loading it on a miss
func (c *Cache[V]) Get(ctx context.Context, key string, load Loader[V]) (V, error) {
	c.mu.RLock()
	entry, exists := c.cache[key]
	c.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		c.record(true)
		return entry.value, nil
	}

	c.record(false)

	value, err := load(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// simple eviction: clear half when full
	if len(c.cache) >= c.maxSize {
		c.evictHalf()
	}

	c.cache[key] = &cacheEntry[V]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}

	return value, nil
}

func (c *Cache[V]) record(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.onHit != nil {
		c.onHit(c.name, hit)
	}
}

// evictHalf removes half the cache entries (must be called with lock held)
func (c *Cache[V]) evictHalf() {
	count := 0
	target := len(c.cache) / 2
	for key := range c.cache {
		delete(c.cache, key)
		count++
		if count >= target {
			break
		}
	}
}

// Invalidate removes a key from the cache
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.cache, key)
	c.mu.Unlock()
}

// Clear removes all entries from the cache
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	c.cache = make(map[string]*cacheEntry[V])
	c.mu.Unlock()
}

// CacheStats returns cache statistics
type CacheStats struct {
	Size   int
	Hits   int64
	Misses int64
}

func (c *Cache[V]) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{
		Size:   len(c.cache),
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
