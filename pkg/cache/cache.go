// Package cache provides the keyed TTL cache the segments service reads
// through. Stores are injected, so each service (and each test) owns its
// cache instead of sharing process-global state.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultTTL is how long a cached segment list stays fresh.
const DefaultTTL = 5 * time.Minute

// DefaultSize bounds the number of owners held at once.
const DefaultSize = 1024

// Store is a keyed cache with explicit invalidation.
type Store[V any] interface {
	// Get returns the value for key if present and fresh.
	Get(key string) (V, bool)
	// Set stores v under key, restarting its TTL.
	Set(key string, v V)
	// Invalidate drops key.
	Invalidate(key string)
	// InvalidateAll drops every entry.
	InvalidateAll()
	// Close releases the store. A closed store misses on every Get and
	// ignores Set.
	Close()
}

// Option configures a TTL cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock sets the clock entries are stamped and checked against.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// TTL is a Store whose entries expire a fixed duration after they are set.
// Expiry is checked on read, so the cache runs no background goroutine;
// the least recently used entry is evicted when the cache is full.
type TTL[V any] struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, entry[V]]
	ttl    time.Duration
	now    func() time.Time
	closed bool
}

var _ Store[int] = (*TTL[int])(nil)

// NewTTL returns a TTL cache holding up to size entries for ttl each.
// Non-positive arguments fall back to DefaultSize and DefaultTTL.
func NewTTL[V any](size int, ttl time.Duration, opts ...Option) *TTL[V] {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	// lru.New only fails for a non-positive size.
	l, _ := lru.New[string, entry[V]](size)
	return &TTL[V]{lru: l, ttl: ttl, now: o.now}
}

func (c *TTL[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	if c.closed {
		return zero, false
	}
	e, ok := c.lru.Get(key)
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expires) {
		c.lru.Remove(key)
		return zero, false
	}
	return e.value, true
}

func (c *TTL[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.lru.Add(key, entry[V]{value: v, expires: c.now().Add(c.ttl)})
}

func (c *TTL[V]) Invalidate(key string) { c.lru.Remove(key) }

func (c *TTL[V]) InvalidateAll() { c.lru.Purge() }

// Close drops every entry and stops further writes.
func (c *TTL[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.lru.Purge()
}

// Len reports the number of live entries, evicting expired ones.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for _, k := range c.lru.Keys() {
		if e, ok := c.lru.Peek(k); ok && !now.Before(e.expires) {
			c.lru.Remove(k)
		}
	}
	return c.lru.Len()
}

// TTL returns the configured entry lifetime.
func (c *TTL[V]) TTL() time.Duration { return c.ttl }
