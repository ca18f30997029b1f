// Package lrucache implements the bounded, age-aware keyed cache every
// aggregator builds on: a container/list-backed LRU generalized from
// cache-manager/cache.go's L1Cache to arbitrary key/value types via
// generics, plus the deferred-callback discipline spec §5 requires so
// that evictions never re-enter the aggregator's own lock.
//
// The original C++ client installs a thread-local staging buffer for the
// lifetime of each mutating call (Check/CacheResponse/Flush/FlushAll) and
// has the deleter push evicted items into it. Go has no goroutine-local
// storage, and reaching for one via a package global would just smuggle
// the same hazard back in under a different name — so the staging buffer
// here is an explicit parameter (*Staging), passed by the caller and
// drained by the caller once the lock is released. That is the idiomatic
// Go rendering of "scoped to the call that created it, guaranteed
// released on every exit path."
package lrucache

import (
	"container/list"
	"sync"
	"time"
)

// Evicted describes one entry the cache removed, handed to the caller
// after the lock has been released so it can be forwarded to a flush
// callback without risking re-entrant deadlock.
type Evicted[K comparable, V any] struct {
	Key   K
	Value V
}

// Staging accumulates entries evicted during one mutating call. Callers
// create one on the stack, pass its address into the Cache methods that
// may evict, and drain it after the call returns and the lock is no
// longer held.
type Staging[K comparable, V any] struct {
	items []Evicted[K, V]
}

// Drain returns and clears the accumulated evictions.
func (s *Staging[K, V]) Drain() []Evicted[K, V] {
	items := s.items
	s.items = nil
	return items
}

func (s *Staging[K, V]) push(key K, value V) {
	if s == nil {
		return
	}
	s.items = append(s.items, Evicted[K, V]{Key: key, Value: value})
}

type entry[K comparable, V any] struct {
	key        K
	value      V
	insertedAt time.Time
	element    *list.Element
}

// Cache is a fixed-capacity, key-value LRU with age-based eviction. A
// capacity of 0 means the cache is disabled: every operation behaves as
// if the cache were always empty, matching spec §4.3's "cache is disabled
// (size 0), fails with not-found" requirement at the aggregator layer.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*entry[K, V]
	order    *list.List
	capacity int
	maxAge   time.Duration
	now      func() time.Time
}

// New creates a Cache holding at most capacity entries; EvictAged removes
// entries older than maxAge. maxAge <= 0 disables age-based eviction
// (capacity eviction still applies).
func New[K comparable, V any](capacity int, maxAge time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		items:    make(map[K]*entry[K, V], capacity),
		order:    list.New(),
		capacity: capacity,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// Disabled reports whether this cache has zero capacity.
func (c *Cache[K, V]) Disabled() bool {
	return c.capacity <= 0
}

// Get returns the value stored for key and promotes it to most-recently-
// used. It does not itself apply age eviction — callers that care about
// staleness read the entry's age via GetWithAge and decide for themselves,
// since "stale but still servable" is a valid aggregator state (spec
// §4.3's refresh-but-still-return path).
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(e.element)
	return e.value, true
}

// GetWithAge returns the value and how long it has been since the entry
// was last inserted/updated via Put.
func (c *Cache[K, V]) GetWithAge(key K) (V, time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		var zero V
		return zero, 0, false
	}
	c.order.MoveToFront(e.element)
	return e.value, c.now().Sub(e.insertedAt), true
}

// Put inserts or replaces key's value, resetting its age, and evicts the
// least-recently-used entry if capacity is exceeded. Evictions are
// pushed onto staging rather than reported directly.
func (c *Cache[K, V]) Put(key K, value V, staging *Staging[K, V]) {
	if c.Disabled() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.items[key]; ok {
		e.value = value
		e.insertedAt = c.now()
		c.order.MoveToFront(e.element)
		return
	}

	e := &entry[K, V]{key: key, value: value, insertedAt: c.now()}
	e.element = c.order.PushFront(e)
	c.items[key] = e

	for len(c.items) > c.capacity {
		c.evictOldest(staging)
	}
}

// Delete removes key unconditionally, pushing it to staging if present.
func (c *Cache[K, V]) Delete(key K, staging *Staging[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return
	}
	c.removeElement(e)
	staging.push(e.key, e.value)
}

// EvictAged removes every entry older than maxAge, pushing each to
// staging. With maxAge <= 0 on the Cache this is a no-op.
func (c *Cache[K, V]) EvictAged(staging *Staging[K, V]) {
	if c.maxAge <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := c.now().Add(-c.maxAge)
	for el := c.order.Back(); el != nil; {
		e := el.Value.(*entry[K, V])
		prev := el.Prev()
		if e.insertedAt.Before(cutoff) {
			c.removeElement(e)
			staging.push(e.key, e.value)
		}
		el = prev
	}
}

// DrainAll removes every entry, pushing each to staging. Used by
// FlushAll (spec §4.3/§4.5: "drain everything; emit pending aggregates;
// reset").
func (c *Cache[K, V]) DrainAll(staging *Staging[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for el := c.order.Back(); el != nil; el = c.order.Back() {
		e := el.Value.(*entry[K, V])
		c.removeElement(e)
		staging.push(e.key, e.value)
	}
}

// Len reports the number of entries currently cached.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Cache[K, V]) evictOldest(staging *Staging[K, V]) {
	el := c.order.Back()
	if el == nil {
		return
	}
	e := el.Value.(*entry[K, V])
	c.removeElement(e)
	staging.push(e.key, e.value)
}

func (c *Cache[K, V]) removeElement(e *entry[K, V]) {
	c.order.Remove(e.element)
	delete(c.items, e.key)
}
