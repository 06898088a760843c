package cache

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ttlEntry is a cache entry with its expiry and its position in the
// insertion-order list used for capacity eviction.
type ttlEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	elem      *list.Element
}

func (e *ttlEntry[V]) isExpired() bool {
	return time.Now().After(e.expiresAt)
}

// ttlCache is a thread-safe cache with TTL expiry and a capacity bound.
// When the capacity is reached the least-recently-written entry is evicted.
type ttlCache[V any] struct {
	mu              sync.RWMutex
	ttl             time.Duration
	maxSize         int
	cleanupInterval time.Duration
	items           map[string]*ttlEntry[V]
	order           *list.List // oldest entry at the front
	stats           *Statistics

	shutdown chan struct{}
	done     chan struct{}
}

func newTTLCache[V any](ctx context.Context, config Config) (*ttlCache[V], error) {
	c := &ttlCache[V]{
		ttl:             config.TTL,
		maxSize:         config.MaxSize,
		cleanupInterval: config.CleanupInterval,
		items:           make(map[string]*ttlEntry[V]),
		order:           list.New(),
		stats:           NewStatistics(),
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}

	go c.cleanup(ctx)

	return c, nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("cache: key cannot be empty")
	}
	if strings.ContainsAny(key, "\x00\n") {
		return fmt.Errorf("cache: key contains invalid characters")
	}
	return nil
}

// Get retrieves a value by key, checking for expiration. Set updates
// entries in place under the write lock, so the value and expiry must be
// read while the read lock is held.
func (c *ttlCache[V]) Get(key string) (V, bool) {
	var (
		value   V
		expired bool
	)
	c.mu.RLock()
	entry, exists := c.items[key]
	if exists {
		value = entry.value
		expired = entry.isExpired()
	}
	c.mu.RUnlock()

	if !exists {
		var zero V
		c.stats.Miss()
		return zero, false
	}

	if expired {
		c.mu.Lock()
		// Double-check under the write lock
		if current, still := c.items[key]; still && current.isExpired() {
			c.removeLocked(current)
			c.stats.Eviction()
		}
		c.mu.Unlock()

		var zero V
		c.stats.Miss()
		return zero, false
	}

	c.stats.Hit()
	return value, true
}

// Set stores a value, evicting the oldest entry when the cache is full.
func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	expiresAt := time.Now().Add(c.ttl)

	c.mu.Lock()
	existing, exists := c.items[key]
	if exists {
		existing.value = value
		existing.expiresAt = expiresAt
		c.order.MoveToBack(existing.elem)
		c.mu.Unlock()
		c.stats.Set()
		return false, nil
	}

	evicted := 0
	for len(c.items) >= c.maxSize {
		front := c.order.Front()
		if front == nil {
			break
		}
		c.removeLocked(front.Value.(*ttlEntry[V]))
		evicted++
	}

	entry := &ttlEntry[V]{key: key, value: value, expiresAt: expiresAt}
	entry.elem = c.order.PushBack(entry)
	c.items[key] = entry
	size := len(c.items)
	c.mu.Unlock()

	for i := 0; i < evicted; i++ {
		c.stats.Eviction()
	}
	c.stats.Set()
	c.stats.UpdateSize(int64(size))

	return true, nil
}

// Delete removes an entry by key.
func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		c.removeLocked(entry)
	}
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
	}
	return exists, nil
}

// Clear removes all entries from the cache.
func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	c.items = make(map[string]*ttlEntry[V])
	c.order.Init()
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	return nil
}

// Size returns the current number of entries in the cache.
func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns cache statistics.
func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

// Close stops the background cleanup goroutine.
func (c *ttlCache[V]) Close() error {
	select {
	case <-c.shutdown:
		// Already shutting down
	default:
		close(c.shutdown)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("cache: timeout waiting for cleanup goroutine")
	}
}

// removeLocked removes an entry from both the map and the order list.
// Caller must hold the write lock.
func (c *ttlCache[V]) removeLocked(entry *ttlEntry[V]) {
	delete(c.items, entry.key)
	c.order.Remove(entry.elem)
}

func (c *ttlCache[V]) cleanup(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *ttlCache[V]) removeExpired() {
	now := time.Now()
	removed := 0

	c.mu.Lock()
	for _, entry := range c.items {
		if now.After(entry.expiresAt) {
			c.removeLocked(entry)
			removed++
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if removed > 0 {
		for i := 0; i < removed; i++ {
			c.stats.Eviction()
		}
		c.stats.UpdateSize(int64(size))
	}
}
