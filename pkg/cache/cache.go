// Package cache provides a generic in-memory TTL cache with
// single-flight loading. It fronts every resolver that memoizes a
// network call (market metadata, token lookups) so bursty event
// arrival does not fan out into duplicate requests.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Cache is the generic read/write contract.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	GetOrLoad(ctx context.Context, key K, ttl time.Duration, loader func(context.Context) (V, error)) (V, error)
	Delete(key K)
	Clear()
	Size() int
}

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// InMemoryCache is a mutex-guarded map with per-entry expiry. Expired
// entries read as absent immediately; physical removal happens on the
// janitor tick or when the key is overwritten.
type InMemoryCache[K comparable, V any] struct {
	mu         sync.RWMutex
	items      map[K]item[V]
	defaultTTL time.Duration

	flight singleflight.Group

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewInMemoryCache creates a cache whose Set calls fall back to
// defaultTTL when given a zero TTL, and starts the background janitor.
// Call Close when the cache is no longer needed.
func NewInMemoryCache[K comparable, V any](defaultTTL time.Duration) *InMemoryCache[K, V] {
	c := &InMemoryCache[K, V]{
		items:      make(map[K]item[V]),
		defaultTTL: defaultTTL,
		stopCh:     make(chan struct{}),
	}
	go c.janitor()
	return c
}

// Get returns the live value for key. An expired entry reads as absent.
func (c *InMemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(it.expiresAt) {
		var zero V
		return zero, false
	}
	return it.value, true
}

// Set stores value under key. A zero ttl uses the cache default, which
// lets callers keep one code path for positive and negative results
// with different lifetimes.
func (c *InMemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	c.items[key] = item[V]{value: value, expiresAt: time.Now().Add(ttl)}
	c.mu.Unlock()
}

// GetOrLoad returns the cached value or runs loader to produce it.
// Concurrent calls for the same key share one in-flight load. A failed
// load is not cached: the in-flight marker is dropped when loader
// returns, so the next call retries instead of replaying the error.
func (c *InMemoryCache[K, V]) GetOrLoad(ctx context.Context, key K, ttl time.Duration, loader func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.flight.Do(fmt.Sprint(key), func() (any, error) {
		// Another flight may have landed between our miss and here.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// Delete removes key.
func (c *InMemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

// Clear drops every entry.
func (c *InMemoryCache[K, V]) Clear() {
	c.mu.Lock()
	c.items = make(map[K]item[V])
	c.mu.Unlock()
}

// Size reports the number of stored entries, expired ones included
// until the janitor removes them.
func (c *InMemoryCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the janitor goroutine. Safe to call more than once.
func (c *InMemoryCache[K, V]) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *InMemoryCache[K, V]) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.purgeExpired()
		case <-c.stopCh:
			return
		}
	}
}

func (c *InMemoryCache[K, V]) purgeExpired() {
	now := time.Now()
	c.mu.Lock()
	for k, it := range c.items {
		if now.After(it.expiresAt) {
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
}
