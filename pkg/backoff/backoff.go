// Package backoff provides exponential backoff delay computation for the sync layer
package backoff

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Config provides backoff configuration
type Config struct {
	// Base is the delay for the first error (doubled per subsequent error)
	Base time.Duration `json:"base" yaml:"base"`

	// Max caps the computed delay regardless of error count
	Max time.Duration `json:"max" yaml:"max"`

	// JitterFactor is the fraction of the exponential delay added as
	// uniform random jitter. Zero disables jitter (useful in tests).
	JitterFactor float64 `json:"jitter_factor" yaml:"jitter_factor"`
}

// DefaultConfig returns sensible defaults matching the upstream API's
// rate-limit characteristics.
func DefaultConfig() Config {
	return Config{
		Base:         2 * time.Second,
		Max:          2 * time.Minute,
		JitterFactor: 0.3,
	}
}

// Calculator computes retry delays from consecutive error counts.
// It is pure aside from jitter randomness and safe for concurrent use.
type Calculator struct {
	base   time.Duration
	max    time.Duration
	jitter float64
}

// New creates a Calculator from config, applying defaults for zero fields.
func New(cfg Config) *Calculator {
	if cfg.Base <= 0 {
		cfg.Base = DefaultConfig().Base
	}
	if cfg.Max <= 0 {
		cfg.Max = DefaultConfig().Max
	}
	if cfg.JitterFactor < 0 {
		cfg.JitterFactor = 0
	}
	return &Calculator{
		base:   cfg.Base,
		max:    cfg.Max,
		jitter: cfg.JitterFactor,
	}
}

// Delay computes the backoff delay for the given consecutive error count:
// min(base * 2^errorCount + jitter, max), where jitter is uniform in
// [0, jitterFactor * exponentialDelay]. Jitter desynchronizes retry storms
// across many simultaneous clients.
func (c *Calculator) Delay(errorCount int) time.Duration {
	if errorCount < 0 {
		errorCount = 0
	}

	// Overflow guard: beyond ~63 doublings the result saturates anyway
	exp := float64(c.base) * math.Pow(2, float64(errorCount))
	if exp > float64(c.max) || math.IsInf(exp, 1) {
		return c.max
	}

	delay := exp
	if c.jitter > 0 {
		randMu.Lock()
		delay += randSource.Float64() * c.jitter * exp
		randMu.Unlock()
	}

	if delay > float64(c.max) {
		return c.max
	}
	return time.Duration(delay)
}

// Base returns the configured base delay
func (c *Calculator) Base() time.Duration {
	return c.base
}

// Max returns the configured maximum delay
func (c *Calculator) Max() time.Duration {
	return c.max
}
