/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package expirycache provides a bounded in-process map whose entries carry an absolute expiration time.
// Entries are evicted in LRU order when the cache is full and treated as absent once expired.
package expirycache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"
)

type cacheEntry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Cache is an LRU-bounded map with per-entry expiration and Prometheus metrics.
type Cache[K comparable, V any] struct {
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	lruList *list.List
	entries map[K]*list.Element

	metricsCollector MetricsCollector
}

// Options represents options for the cache.
type Options struct {
	// Now returns the current time. time.Now is used when nil.
	Now func() time.Time
}

// New creates a new Cache with the provided maximum number of entries.
// Metrics collector may be nil, in this case metrics are disabled.
func New[K comparable, V any](maxEntries int, metricsCollector MetricsCollector, opts Options) (*Cache[K, V], error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("maxEntries must be greater than 0")
	}
	if metricsCollector == nil {
		metricsCollector = disabledMetrics{}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[K, V]{
		maxEntries:       maxEntries,
		now:              now,
		lruList:          list.New(),
		entries:          make(map[K]*list.Element),
		metricsCollector: metricsCollector,
	}, nil
}

// UpdateFunc receives the live value of a key (found is false for a missing or expired entry)
// and returns the value and the absolute expiration time to store.
type UpdateFunc[V any] func(value V, expiresAt time.Time, found bool) (V, time.Time)

// Update atomically reads and replaces the entry for key.
func (c *Cache[K, V]) Update(key K, fn UpdateFunc[V]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var zero V
	elem, found := c.entries[key]
	if !found {
		c.metricsCollector.IncMisses()
		value, expiresAt := fn(zero, time.Time{}, false)
		c.addNew(key, value, expiresAt)
		return
	}

	entry := elem.Value.(*cacheEntry[K, V])
	if !entry.expiresAt.After(now) {
		c.metricsCollector.IncMisses()
		entry.value, entry.expiresAt = fn(zero, time.Time{}, false)
	} else {
		c.metricsCollector.IncHits()
		entry.value, entry.expiresAt = fn(entry.value, entry.expiresAt, true)
	}
	c.lruList.MoveToFront(elem)
}

// Get returns a live value by key.
func (c *Cache[K, V]) Get(key K) (value V, expiresAt time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.entries[key]
	if !found {
		c.metricsCollector.IncMisses()
		return value, expiresAt, false
	}
	entry := elem.Value.(*cacheEntry[K, V])
	if !entry.expiresAt.After(c.now()) {
		c.removeElement(elem)
		c.metricsCollector.IncMisses()
		return value, expiresAt, false
	}
	c.lruList.MoveToFront(elem)
	c.metricsCollector.IncHits()
	return entry.value, entry.expiresAt, true
}

// Len returns the number of entries in the cache including expired ones not yet cleaned up.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RemoveExpired drops every expired entry and returns how many were dropped.
func (c *Cache[K, V]) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, elem := range c.entries {
		if !elem.Value.(*cacheEntry[K, V]).expiresAt.After(now) {
			c.removeElement(elem)
			removed++
		}
	}
	return removed
}

// RunPeriodicCleanup removes expired entries every cleanupInterval until ctx is done.
// It's supposed to be run in a separate goroutine.
func (c *Cache[K, V]) RunPeriodicCleanup(ctx context.Context, cleanupInterval time.Duration) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RemoveExpired()
		}
	}
}

func (c *Cache[K, V]) addNew(key K, value V, expiresAt time.Time) {
	c.entries[key] = c.lruList.PushFront(&cacheEntry[K, V]{key: key, value: value, expiresAt: expiresAt})
	if len(c.entries) <= c.maxEntries {
		c.metricsCollector.SetAmount(len(c.entries))
		return
	}
	if oldest := c.lruList.Back(); oldest != nil {
		c.lruList.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry[K, V]).key)
		c.metricsCollector.AddEvictions(1)
	}
}

func (c *Cache[K, V]) removeElement(elem *list.Element) {
	c.lruList.Remove(elem)
	delete(c.entries, elem.Value.(*cacheEntry[K, V]).key)
	c.metricsCollector.SetAmount(len(c.entries))
}
