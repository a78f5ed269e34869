package cachemanager

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/nsstore/internal/log"
)

// InMemoryCacheManager is a CacheManager backed by go-cache. useCase labels
// its log lines.
type InMemoryCacheManager[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache

	hits, misses, added, refused, evicted atomic.Int64
}

var _ CacheManager[string, int] = (*InMemoryCacheManager[string, int])(nil)

// NewInMemoryCacheManager creates a cache whose entries expire after
// defaultExpiration and are swept every cleanupInterval.
func NewInMemoryCacheManager[K ~string, V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[K, V] {
	c := &InMemoryCacheManager[K, V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
	c.cache.OnEvicted(func(string, any) {
		c.evicted.Add(1)
	})
	return c
}

// Get returns the live value stored under key.
func (c *InMemoryCacheManager[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zero V
	raw, found := c.cache.Get(string(key))
	if !found {
		c.misses.Add(1)
		return zero, false
	}
	v, ok := raw.(V)
	if !ok {
		c.misses.Add(1)
		log.Error(log.CatCache, "cached value has unexpected type", "use_case", c.useCase, "key", key)
		return zero, false
	}
	c.hits.Add(1)
	return v, true
}

// Set stores value under key, replacing any existing entry.
func (c *InMemoryCacheManager[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	c.cache.Set(string(key), value, ttl)
}

// Add stores value only when key is missing or expired. The check and the
// write happen under the cache's lock, so of several concurrent callers on
// one key exactly one succeeds.
func (c *InMemoryCacheManager[K, V]) Add(_ context.Context, key K, value V, ttl time.Duration) bool {
	if err := c.cache.Add(string(key), value, ttl); err != nil {
		c.refused.Add(1)
		log.Debug(log.CatCache, "cache add refused", "use_case", c.useCase, "key", key)
		return false
	}
	c.added.Add(1)
	return true
}

// Delete removes keys. Missing keys are ignored.
func (c *InMemoryCacheManager[K, V]) Delete(_ context.Context, keys ...K) error {
	for _, key := range keys {
		c.cache.Delete(string(key))
	}
	return nil
}

// Flush removes every entry.
func (c *InMemoryCacheManager[K, V]) Flush(_ context.Context) error {
	n := c.cache.ItemCount()
	c.cache.Flush()
	c.evicted.Add(int64(n))
	log.Debug(log.CatCache, "cache flushed", "use_case", c.useCase, "entries", n)
	return nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (c *InMemoryCacheManager[K, V]) Len() int {
	return c.cache.ItemCount()
}

// Stats returns a snapshot of the counters.
func (c *InMemoryCacheManager[K, V]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Added:   c.added.Load(),
		Refused: c.refused.Load(),
		Evicted: c.evicted.Load(),
	}
}
