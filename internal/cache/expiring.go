// Package cache provides the time-bounded key/value store shared by the
// credential and gallery caches.
package cache

import (
	"sync"
	"time"
)

// entry pairs a cached value with the moment it was stored.
type entry[V any] struct {
	value    V
	cachedAt time.Time
}

// Expiring is a mutex-guarded map whose entries expire once they are older
// than the configured TTL. Lookups never delete; expired entries are removed
// by Sweep, which callers run once before a batch of lookups.
type Expiring[K comparable, V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[K]entry[V]
}

// Option configures an Expiring cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewExpiring creates an empty cache with the given time-to-live.
func NewExpiring[K comparable, V any](ttl time.Duration, opts ...Option) *Expiring[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return &Expiring[K, V]{
		ttl:     ttl,
		now:     o.now,
		entries: make(map[K]entry[V]),
	}
}

// TTL returns the configured time-to-live.
func (c *Expiring[K, V]) TTL() time.Duration {
	return c.ttl
}

// Now returns the current time according to the cache clock.
func (c *Expiring[K, V]) Now() time.Time {
	return c.now()
}

// Get returns the value for key if it is present and not older than the TTL.
func (c *Expiring[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().Sub(e.cachedAt) > c.ttl {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key, stamping it with the current time and
// replacing any previous entry.
func (c *Expiring[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry[V]{value: value, cachedAt: c.now()}
}

// Sweep removes every entry older than the TTL relative to now and returns
// how many were removed.
func (c *Expiring[K, V]) Sweep(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if now.Sub(e.cachedAt) > c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Invalidate removes key unconditionally and reports whether it was present.
func (c *Expiring[K, V]) Invalidate(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	return true
}

// Len returns the number of stored entries, including expired ones that have
// not been swept yet.
func (c *Expiring[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
