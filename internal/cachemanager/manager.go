// Package cachemanager provides the engine's per-tick read caches: a
// generic TTL cache over go-cache plus a read-through wrapper that
// loads misses from the store. The scheduler flushes every cache at
// tick start, so reads within one tick are shared and ticks never see
// stale rows.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager is the store-agnostic cache seam the read-through
// wrapper builds on.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
}
