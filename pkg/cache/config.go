package cache

import (
	"fmt"
	"time"

	"github.com/ShadeREPO/elizaOS-sub000/errors"
)

// Config contains configuration for cache creation.
type Config struct {
	// Enabled determines if caching is enabled. A disabled cache always
	// misses, forcing every read through the breaker-gated fetch path.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// TTL is the maximum age after which an entry is considered stale.
	TTL time.Duration `json:"ttl" yaml:"ttl"`

	// MaxEntries is the size ceiling. Once exceeded, the cache trims to
	// the most-recently-inserted entries. Zero means unbounded.
	MaxEntries int `json:"max_entries" yaml:"max_entries"`

	// SweepInterval is how often the background sweep removes expired entries.
	SweepInterval time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		TTL:           30 * time.Second,
		MaxEntries:    100,
		SweepInterval: time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.TTL <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("ttl must be positive, got %v", c.TTL))
	}
	if c.SweepInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("sweep_interval must be positive, got %v", c.SweepInterval))
	}
	if c.MaxEntries < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "cache", "Validate",
			fmt.Sprintf("max_entries cannot be negative, got %d", c.MaxEntries))
	}
	return nil
}

// New creates a cache based on the provided configuration.
// Returns a disabled cache (NewNoop) if config.Enabled is false.
func New[V any](config Config, options ...Option[V]) (Cache[V], error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "cache", "New", "config validation")
	}

	if !config.Enabled {
		return NewNoop[V](), nil
	}

	opts := applyOptions(options...)
	return newTTLCache[V](config.TTL, config.SweepInterval, config.MaxEntries, opts)
}

// NewNoop creates a cache that always misses.
// Used when caching is disabled via configuration.
func NewNoop[V any]() Cache[V] {
	return &noopCache[V]{}
}

// noopCache is a cache implementation that does nothing.
type noopCache[V any] struct{}

func (c *noopCache[V]) Get(_ string) (V, bool) {
	var zero V
	return zero, false
}

func (c *noopCache[V]) Set(_ string, _ V) (bool, error) { return false, nil }
func (c *noopCache[V]) Delete(_ string) (bool, error)   { return false, nil }
func (c *noopCache[V]) Clear() error                    { return nil }
func (c *noopCache[V]) Size() int                       { return 0 }
func (c *noopCache[V]) Keys() []string                  { return nil }
func (c *noopCache[V]) Stats() *Statistics              { return nil }
func (c *noopCache[V]) Close() error                    { return nil }
