// Package cache provides a small in-process LRU cache with per-entry TTL.
// It backs the leaderboard read endpoints, where pages are recomputed at
// most once per calculation run.
package cache

import (
	"container/list"
	"sync"
	"time"
)

type entry[T any] struct {
	key      string
	value    T
	deadline time.Time
}

// LRU is a fixed-capacity cache; entries expire after the TTL and the
// least recently used entry is evicted when the cache is full.
type LRU[T any] struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	index map[string]*list.Element
	order *list.List // front = most recently used
}

// New creates an LRU holding at most cap entries for at most ttl each.
func New[T any](cap int, ttl time.Duration) *LRU[T] {
	return &LRU[T]{
		cap:   cap,
		ttl:   ttl,
		index: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Get returns the cached value and whether it was present and fresh.
func (c *LRU[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	el, ok := c.index[key]
	if !ok {
		return zero, false
	}
	e := el.Value.(*entry[T])
	if time.Now().After(e.deadline) {
		c.evict(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return e.value, true
}

// Set stores value under key, refreshing the TTL.
func (c *LRU[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := &entry[T]{key: key, value: value, deadline: time.Now().Add(c.ttl)}
	if el, ok := c.index[key]; ok {
		el.Value = e
		c.order.MoveToFront(el)
		return
	}

	c.index[key] = c.order.PushFront(e)
	if c.order.Len() > c.cap {
		if oldest := c.order.Back(); oldest != nil {
			c.evict(oldest)
		}
	}
}

// Delete removes key from the cache if present.
func (c *LRU[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.evict(el)
	}
}

// DeletePrefix removes every key beginning with prefix. Used to drop all
// cached pages for a month after a recalculation.
func (c *LRU[T]) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var stale []*list.Element
	for el := c.order.Front(); el != nil; el = el.Next() {
		e := el.Value.(*entry[T])
		if len(e.key) >= len(prefix) && e.key[:len(prefix)] == prefix {
			stale = append(stale, el)
		}
	}
	for _, el := range stale {
		c.evict(el)
	}
	return len(stale)
}

// PurgeExpired removes every expired entry and returns how many were dropped.
func (c *LRU[T]) PurgeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var stale []*list.Element
	for el := c.order.Front(); el != nil; el = el.Next() {
		if now.After(el.Value.(*entry[T]).deadline) {
			stale = append(stale, el)
		}
	}
	for _, el := range stale {
		c.evict(el)
	}
	return len(stale)
}

// Len returns the number of live entries, expired or not.
func (c *LRU[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

func (c *LRU[T]) evict(el *list.Element) {
	delete(c.index, el.Value.(*entry[T]).key)
	c.order.Remove(el)
}
