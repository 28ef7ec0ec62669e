package cachemanager

import (
	"context"
	"time"
)

// ReadThroughCache pairs a CacheManager with a loader. Misses invoke
// load and populate the cache with the wrapper's TTL; hits never touch
// the store. Send processors keep one per concern (settings,
// templates).
type ReadThroughCache[K comparable, V any] struct {
	cache CacheManager[K, V]
	load  func(ctx context.Context, key K) (V, error)
	ttl   time.Duration
}

// NewReadThroughCache creates the wrapper. The loader receives the
// cache key, so callers address both with one value.
func NewReadThroughCache[K comparable, V any](
	cache CacheManager[K, V],
	ttl time.Duration,
	load func(ctx context.Context, key K) (V, error),
) *ReadThroughCache[K, V] {
	return &ReadThroughCache[K, V]{cache: cache, load: load, ttl: ttl}
}

// Get returns the value for key, loading it on a miss. Load errors are
// returned without populating the cache.
func (r *ReadThroughCache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := r.cache.Get(ctx, key); ok {
		return v, nil
	}

	v, err := r.load(ctx, key)
	if err != nil {
		return v, err
	}
	r.cache.Set(ctx, key, v, r.ttl)
	return v, nil
}

// Flush clears the underlying cache.
func (r *ReadThroughCache[K, V]) Flush(ctx context.Context) error {
	return r.cache.Flush(ctx)
}
