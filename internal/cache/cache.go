// Package cache provides a process-local result cache with LRU eviction,
// lazy TTL expiry and proactive eviction under memory pressure.
//
// Cache operations never fail the caller: internal problems degrade to a
// miss or an uncached value.
package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-rag/internal/logger"
)

// Default configuration values.
const (
	DefaultMaxSize         = 1000
	DefaultTTL             = time.Hour
	DefaultMemoryThreshold = 0.8
)

// ErrEmptyKey is returned by Set for an empty key.
var ErrEmptyKey = errors.New("cache: empty key")

// Options configures a Cache.
type Options struct {
	// MaxSize bounds the number of live entries (default: 1000).
	MaxSize int

	// DefaultTTL applies when Set is called with a non-positive ttl (default: 1h).
	DefaultTTL time.Duration

	// MemoryThreshold is the used-memory fraction above which a quarter
	// of the entries are evicted before an insert (default: 0.8).
	MemoryThreshold float64

	// Probe reports system memory. Nil disables the pressure check.
	Probe driven.MemoryProbe

	// Now overrides the clock for tests.
	Now func() time.Time
}

type entry[V any] struct {
	key       string
	value     V
	createdAt time.Time
	expiresAt time.Time
}

// Cache is a generic TTL/LRU cache safe for concurrent use.
type Cache[V any] struct {
	mu        sync.Mutex
	opts      Options
	items     map[string]*list.Element
	order     *list.List // front is most recently used
	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache with the given options.
func New[V any](opts Options) *Cache[V] {
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.MemoryThreshold <= 0 {
		opts.MemoryThreshold = DefaultMemoryThreshold
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Cache[V]{
		opts:  opts,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// Get returns the value for key. An expired entry is removed and
// reported as a miss.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}

	e := el.Value.(*entry[V])
	if c.opts.Now().After(e.expiresAt) {
		c.removeElement(el)
		c.misses++
		return zero, false
	}

	c.order.MoveToFront(el)
	c.hits++
	return e.value, true
}

// Set stores value under key for ttl. A non-positive ttl uses the default.
func (c *Cache[V]) Set(key string, value V, ttl time.Duration) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}

	underPressure := c.memoryPressure()

	c.mu.Lock()
	defer c.mu.Unlock()

	if underPressure {
		c.evictFraction()
	}

	now := c.opts.Now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry[V])
		e.value = value
		e.createdAt = now
		e.expiresAt = now.Add(ttl)
		c.order.MoveToFront(el)
		return nil
	}

	c.items[key] = c.order.PushFront(&entry[V]{
		key:       key,
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
	})

	for c.order.Len() > c.opts.MaxSize {
		c.evictOldest()
	}
	return nil
}

// GetOrSet returns the cached value for key or computes it with factory.
// A factory error is returned to the caller. If storing the computed
// value fails, the value is still returned uncached.
func (c *Cache[V]) GetOrSet(ctx context.Context, key string, factory func(context.Context) (V, error), ttl time.Duration) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := factory(ctx)
	if err != nil {
		return v, err
	}

	if err := c.Set(key, v, ttl); err != nil {
		logger.Warn("cache: store %q failed: %v", key, err)
	}
	return v, nil
}

// Delete removes key if present.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
}

// Clear removes every entry.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of stored entries, including expired ones not
// yet observed.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CleanupExpired removes every expired entry and returns how many were removed.
func (c *Cache[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.opts.Now()
	removed := 0
	for el := c.order.Back(); el != nil; {
		prev := el.Prev()
		if now.After(el.Value.(*entry[V]).expiresAt) {
			c.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Stats reports cache usage.
func (c *Cache[V]) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := domain.CacheStats{
		Size:      c.order.Len(),
		MaxSize:   c.opts.MaxSize,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// memoryPressure reports whether used memory exceeds the threshold.
// Probe failures and panics count as no pressure.
func (c *Cache[V]) memoryPressure() (pressure bool) {
	if c.opts.Probe == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Warn("cache: memory probe panicked: %v", r)
			pressure = false
		}
	}()

	stats, err := c.opts.Probe.Stats(context.Background())
	if err != nil {
		logger.Debug("cache: memory probe failed: %v", err)
		return false
	}
	return stats.UsedPercent > c.opts.MemoryThreshold
}

// evictFraction removes a quarter of the entries, oldest first, at least one.
// Caller must hold the lock.
func (c *Cache[V]) evictFraction() {
	n := max(1, c.order.Len()/4)
	for i := 0; i < n && c.order.Len() > 0; i++ {
		c.evictOldest()
	}
	logger.Debug("cache: evicted %d entries under memory pressure", n)
}

// evictOldest removes the least recently used entry. Caller must hold the lock.
func (c *Cache[V]) evictOldest() {
	if el := c.order.Back(); el != nil {
		c.removeElement(el)
		c.evictions++
	}
}

func (c *Cache[V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}
