package cache

import (
	"sync"
	"time"
)

// TTL is a small in-memory cache whose entries expire after a fixed time.
type TTL[K comparable, V any] struct {
	mu    sync.RWMutex
	store map[K]entry[V]
	ttl   time.Duration
	now   func() time.Time
}

type entry[V any] struct {
	v  V
	ts time.Time
}

func NewTTL[K comparable, V any](ttl time.Duration) *TTL[K, V] {
	return &TTL[K, V]{store: make(map[K]entry[V]), ttl: ttl, now: time.Now}
}

// Get returns the cached value and true if present and not expired.
func (c *TTL[K, V]) Get(k K) (V, bool) {
	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.ts) > c.ttl {
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return e.v, true
}

func (c *TTL[K, V]) Set(k K, v V) {
	c.mu.Lock()
	c.store[k] = entry[V]{v: v, ts: c.now()}
	c.mu.Unlock()
}

func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}
