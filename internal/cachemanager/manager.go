// Package cachemanager provides TTL caches keyed by strings.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is a TTL cache. A ttl of 0 means the cache's default
// expiration; a negative ttl means the entry never expires.
type CacheManager[K ~string, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	// Add stores value only if key is absent or expired and reports whether it did.
	Add(ctx context.Context, key K, value V, ttl time.Duration) bool
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
	Len() int
	Stats() Stats
}

// Stats counts cache outcomes since creation.
type Stats struct {
	Hits    int64
	Misses  int64
	Added   int64
	Refused int64 // Add calls that found a live entry
	Evicted int64 // entries removed by expiry, Delete or Flush
}
