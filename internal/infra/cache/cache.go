// Package cache provides an in-memory TTL cache with hit/miss accounting.
package cache

import (
	"sync"
	"time"
)

// Recorder receives hit/miss counts; *observability.Metrics satisfies it.
type Recorder interface {
	IncrCacheHit(cache string)
	IncrCacheMiss(cache string)
}

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// InMemory is a thread-safe in-memory cache with TTL.
type InMemory[T any] struct {
	mu       sync.RWMutex
	items    map[string]entry[T]
	ttl      time.Duration
	name     string
	recorder Recorder
	now      func() time.Time
	stop     chan struct{}
	once     sync.Once
}

// Option configures an InMemory cache.
type Option func(*cacheOptions)

type cacheOptions struct {
	name     string
	recorder Recorder
	now      func() time.Time
}

// WithMetrics reports hits and misses under name.
func WithMetrics(name string, r Recorder) Option {
	return func(o *cacheOptions) {
		o.name = name
		o.recorder = r
	}
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *cacheOptions) { o.now = now }
}

// New creates a cache with the given TTL. A non-positive TTL disables
// caching: every Get misses.
func New[T any](ttl time.Duration, opts ...Option) *InMemory[T] {
	o := cacheOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &InMemory[T]{
		items:    make(map[string]entry[T]),
		ttl:      ttl,
		name:     o.name,
		recorder: o.recorder,
		now:      o.now,
		stop:     make(chan struct{}),
	}
	if ttl > 0 {
		go c.cleanup()
	}
	return c
}

// Get retrieves a value from the cache. Returns false if not found or expired.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok || !c.now().Before(e.expiresAt) {
		c.record(false)
		var zero T
		return zero, false
	}
	c.record(true)
	return e.value, true
}

// Set stores a value in the cache with the configured TTL.
func (c *InMemory[T]) Set(key string, value T) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry[T]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Delete removes a value from the cache.
func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.items, key)
}

// Len returns the number of stored entries, expired ones included.
func (c *InMemory[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close stops the background cleanup.
func (c *InMemory[T]) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *InMemory[T]) record(hit bool) {
	if c.recorder == nil {
		return
	}
	if hit {
		c.recorder.IncrCacheHit(c.name)
	} else {
		c.recorder.IncrCacheMiss(c.name)
	}
}

// cleanup periodically removes expired entries.
func (c *InMemory[T]) cleanup() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.evictExpired()
		}
	}
}

func (c *InMemory[T]) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, v := range c.items {
		if !now.Before(v.expiresAt) {
			delete(c.items, k)
		}
	}
}
