// Package cache is a small in-memory TTL cache.
package cache

import (
	"sync"
	"time"
)

// Cache maps string keys to values that expire after a per-entry TTL.
type Cache[T any] struct {
	mu   sync.RWMutex
	data map[string]entry[T]
	now  func() time.Time
}

type entry[T any] struct {
	value T
	exp   time.Time
}

// New returns an empty cache.
func New[T any]() *Cache[T] {
	return &Cache[T]{data: make(map[string]entry[T]), now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
	return c
}

// Get returns the cached value or false if absent or expired.
func (c *Cache[T]) Get(key string) (T, bool) {
	var zero T

	c.mu.RLock()
	item, ok := c.data[key]
	now := c.now()
	c.mu.RUnlock()
	if !ok || now.After(item.exp) {
		return zero, false
	}
	return item.value, true
}

// Set stores a value with the provided TTL.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	c.mu.Lock()
	c.data[key] = entry[T]{value: value, exp: c.now().Add(ttl)}
	c.mu.Unlock()
}

// Delete drops key.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.data, key)
	c.mu.Unlock()
}

// Prune removes expired entries and returns how many were dropped.
func (c *Cache[T]) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for k, item := range c.data {
		if now.After(item.exp) {
			delete(c.data, k)
			n++
		}
	}
	return n
}

// Len returns the number of stored entries, expired or not.
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
