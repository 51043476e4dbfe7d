package fetcher

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cacheEntry[V any] struct {
	value     V
	fetchedAt time.Time
}

// ttlCache is a concurrent map with a per-kind TTL. Misses are deduplicated
// through singleflight so concurrent callers for the same key produce exactly
// one upstream request. Stale entries are evicted lazily on read and by the
// periodic Sweep job.
type ttlCache[V any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry[V]
	group   singleflight.Group
	now     func() time.Time
}

func newTTLCache[V any](ttl time.Duration) *ttlCache[V] {
	return &ttlCache[V]{
		ttl:     ttl,
		entries: make(map[string]cacheEntry[V]),
		now:     time.Now,
	}
}

// Peek returns a live entry without touching upstream.
func (c *ttlCache[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.fetchedAt) > c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetOrFetch returns the cached value when live, otherwise calls fetch once
// per key (concurrent misses wait on the same flight) and stores the result.
// The hit flag is false for the caller whose flight actually hit upstream.
func (c *ttlCache[V]) GetOrFetch(key string, fetch func() (V, error)) (V, bool, error) {
	if v, ok := c.Peek(key); ok {
		return v, true, nil
	}

	type result struct {
		value  V
		shared bool
	}
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Double check: another flight may have just populated the entry.
		if v, ok := c.Peek(key); ok {
			return result{value: v, shared: true}, nil
		}
		fetched, err := fetch()
		if err != nil {
			var zero V
			return result{value: zero}, err
		}
		c.Put(key, fetched)
		return result{value: fetched}, nil
	})
	if err != nil {
		var zero V
		return zero, false, err
	}
	r := v.(result)
	return r.value, r.shared, nil
}

func (c *ttlCache[V]) Put(key string, value V) {
	c.mu.Lock()
	c.entries[key] = cacheEntry[V]{value: value, fetchedAt: c.now()}
	c.mu.Unlock()
}

func (c *ttlCache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *ttlCache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Sweep removes expired entries and reports how many were dropped.
func (c *ttlCache[V]) Sweep() int {
	cutoff := c.now().Add(-c.ttl)
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := 0
	for k, e := range c.entries {
		if e.fetchedAt.Before(cutoff) {
			delete(c.entries, k)
			dropped++
		}
	}
	return dropped
}
