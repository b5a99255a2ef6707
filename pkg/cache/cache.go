package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Options configures a Cache.
type Options struct {
	// TTL is the freshness window for stored values.
	TTL time.Duration
	// MaxEntries bounds the number of keys; zero means unbounded.
	MaxEntries int
}

// MetricsHooks lets callers observe cache behaviour without coupling the
// cache to a metrics backend.
type MetricsHooks struct {
	OnHit      func(key string)
	OnMiss     func(key string)
	OnStore    func(key string)
	OnFallback func(key string)
}

type entry struct {
	value     interface{}
	expiresAt time.Time
	storedAt  time.Time
}

// Cache is a read-through TTL cache with single-flight loading. Expired
// entries are retained as last-known-good values so callers can fall back to
// them when a fresh load fails.
type Cache struct {
	mu      sync.RWMutex
	items   map[string]*entry
	order   []string
	opts    Options
	metrics MetricsHooks
	sf      singleflight.Group
}

// New creates a cache with the given options.
func New(opts Options, hooks MetricsHooks) *Cache {
	return &Cache{
		items:   make(map[string]*entry),
		order:   make([]string, 0, 64),
		opts:    opts,
		metrics: hooks,
	}
}

// Loader fetches a value for a key from the backing source.
type Loader func(ctx context.Context) (interface{}, error)

type loadResult struct {
	val interface{}
	err error
}

// Get returns the cached value for key if fresh, otherwise loads it through
// the loader. Concurrent callers for the same key coalesce into one load.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) (interface{}, error) {
	now := time.Now()
	c.mu.RLock()
	if e, ok := c.items[key]; ok && now.Before(e.expiresAt) {
		val := e.value
		c.mu.RUnlock()
		if c.metrics.OnHit != nil {
			c.metrics.OnHit(key)
		}
		return val, nil
	}
	c.mu.RUnlock()

	if c.metrics.OnMiss != nil {
		c.metrics.OnMiss(key)
	}
	result, _, _ := c.sf.Do(key, func() (interface{}, error) {
		val, err := loader(ctx)
		if err == nil {
			c.store(key, val)
		}
		return loadResult{val: val, err: err}, nil
	})
	res := result.(loadResult)
	return res.val, res.err
}

// Fallback returns the last-known-good value for key, stale or not.
func (c *Cache) Fallback(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if c.metrics.OnFallback != nil {
		defer c.metrics.OnFallback(key)
	}
	return e.value, true
}

// Set stores a value with the configured TTL.
func (c *Cache) Set(key string, val interface{}) {
	c.store(key, val)
}

func (c *Cache) store(key string, val interface{}) {
	now := time.Now()
	e := &entry{value: val, expiresAt: now.Add(c.opts.TTL), storedAt: now}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
	}
	c.items[key] = e
	c.evictIfNeeded()
	if c.metrics.OnStore != nil {
		c.metrics.OnStore(key)
	}
}

func (c *Cache) evictIfNeeded() {
	if c.opts.MaxEntries <= 0 || len(c.items) <= c.opts.MaxEntries {
		return
	}
	// FIFO eviction; keys are few and enumerable in practice
	excess := len(c.items) - c.opts.MaxEntries
	for excess > 0 && len(c.order) > 0 {
		victim := c.order[0]
		c.order = c.order[1:]
		delete(c.items, victim)
		excess--
	}
}

// Invalidate expires a single key immediately. The value stays available
// through Fallback until overwritten.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	if e, ok := c.items[key]; ok {
		e.expiresAt = time.Time{}
	}
	c.mu.Unlock()
}

// InvalidateAll expires every key.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	for _, e := range c.items {
		e.expiresAt = time.Time{}
	}
	c.mu.Unlock()
}

// Delete removes a key entirely, including its fallback value.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.items, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

// Len returns the number of stored keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
