// Package cache provides a generic, thread-safe result cache with combined
// TTL and capacity-based eviction.
//
// Entries expire after a configured TTL and the cache holds at most a
// configured number of entries, evicting in least-recently-written order
// when full. Statistics are always collected for observability.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Cache is a generic cache parameterized by value type V.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found
	// and not expired, zero value and false otherwise.
	Get(key string) (V, bool)

	// Set stores a value with the given key. Returns true if a new entry
	// was created, false if an existing one was updated.
	Set(key string, value V) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries.
	Size() int

	// Stats returns cache statistics, nil for caches that collect none.
	Stats() *Statistics

	// Close stops any background goroutines owned by the cache.
	Close() error
}

// Config contains cache creation parameters.
type Config struct {
	// Enabled determines whether caching is active. When false, New
	// returns a no-op cache that always misses.
	Enabled bool `yaml:"enabled"`

	// MaxSize is the maximum number of entries before capacity eviction.
	MaxSize int `yaml:"max_size"`

	// TTL is the time-to-live for entries.
	TTL time.Duration `yaml:"ttl"`

	// CleanupInterval is how often expired entries are swept in the
	// background.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:         true,
		MaxSize:         1000,
		TTL:             1 * time.Hour,
		CleanupInterval: 1 * time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.MaxSize <= 0 {
		return fmt.Errorf("cache: max_size must be positive, got %d", c.MaxSize)
	}
	if c.TTL <= 0 {
		return fmt.Errorf("cache: ttl must be positive, got %v", c.TTL)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cache: cleanup_interval must be positive, got %v", c.CleanupInterval)
	}
	return nil
}

// New creates a cache from the provided configuration. The context bounds
// the lifetime of the background cleanup goroutine.
func New[V any](ctx context.Context, config Config) (Cache[V], error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.Enabled {
		return NewNoop[V](), nil
	}
	return newTTLCache[V](ctx, config)
}

// NewNoop creates a cache that does nothing (always misses). Used when
// caching is disabled via configuration.
func NewNoop[V any]() Cache[V] {
	return &noopCache[V]{}
}

type noopCache[V any] struct{}

func (c *noopCache[V]) Get(_ string) (V, bool) {
	var zero V
	return zero, false
}

func (c *noopCache[V]) Set(_ string, _ V) (bool, error) { return false, nil }
func (c *noopCache[V]) Delete(_ string) (bool, error)   { return false, nil }
func (c *noopCache[V]) Clear() error                    { return nil }
func (c *noopCache[V]) Size() int                       { return 0 }
func (c *noopCache[V]) Stats() *Statistics              { return nil }
func (c *noopCache[V]) Close() error                    { return nil }
