package cache

import (
	"container/list"
	"errors"
	"sync"

	"github.com/mealvault/mealvault/pkg/metrics"
)

// Cache is a bounded least-recently-used cache. A single mutex guards both
// the key map and the recency list, so concurrent callers are serialized but
// can never corrupt cache state or break the capacity bound.
//
// The cache is purely in-memory and strictly best-effort: it never surfaces
// errors to readers and is empty after a process restart.
type Cache[K comparable, V any] struct {
	mu       sync.Mutex
	name     string
	capacity int
	items    map[K]*list.Element
	order    *list.List // front = most recently touched
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// New constructs a bounded cache holding at most capacity entries. The name
// labels cache metrics and must be unique per instance.
func New[K comparable, V any](name string, capacity int) (*Cache[K, V], error) {
	if capacity < 1 {
		return nil, errors.New("cache: capacity must be at least 1")
	}
	return &Cache[K, V]{
		name:     name,
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
	}, nil
}

// Get returns the cached value and marks the key most-recently-used on a hit.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		metrics.CacheLookups.WithLabelValues(c.name, "hit").Inc()
		return elem.Value.(*entry[K, V]).value, true
	}

	metrics.CacheLookups.WithLabelValues(c.name, "miss").Inc()
	var zero V
	return zero, false
}

// Put inserts or overwrites the value for key, marking it most-recently-used.
// When the insert exceeds capacity the least-recently-touched entry is evicted.
func (c *Cache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		elem.Value.(*entry[K, V]).value = value
		return
	}

	if c.order.Len() >= c.capacity {
		c.evictOldest()
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})
}

// Invalidate removes the entry for key if present; missing keys are a no-op.
func (c *Cache[K, V]) Invalidate(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// Clear drops every entry.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
}

// Len reports the current number of cached entries.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache[K, V]) evictOldest() {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
		metrics.CacheEvictions.WithLabelValues(c.name).Inc()
	}
}

func (c *Cache[K, V]) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	delete(c.items, elem.Value.(*entry[K, V]).key)
}
