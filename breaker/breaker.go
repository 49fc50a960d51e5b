// Package breaker provides the circuit breaker gating all upstream requests.
package breaker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ShadeREPO/elizaOS-sub000/errors"
	"github.com/ShadeREPO/elizaOS-sub000/metric"
	"github.com/ShadeREPO/elizaOS-sub000/pkg/backoff"
)

// State represents the circuit breaker state
type State int

// Possible breaker states
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config provides circuit breaker configuration
type Config struct {
	// ErrorThreshold is the consecutive-error count that opens the circuit
	ErrorThreshold int `json:"error_threshold" yaml:"error_threshold"`

	// CoolDown is the fixed window after opening during which all
	// requests are skipped. Independent of the rate-limit backoff.
	CoolDown time.Duration `json:"cool_down" yaml:"cool_down"`

	// MaxInFlight is the concurrency ceiling. Requests are skipped while
	// this many are already in flight. Zero means no ceiling.
	MaxInFlight int `json:"max_in_flight" yaml:"max_in_flight"`

	// Backoff configures the rate-limit backoff calculator
	Backoff backoff.Config `json:"backoff" yaml:"backoff"`
}

// DefaultConfig returns sensible breaker defaults
func DefaultConfig() Config {
	return Config{
		ErrorThreshold: 5,
		CoolDown:       time.Minute,
		MaxInFlight:    3,
		Backoff:        backoff.DefaultConfig(),
	}
}

// Validate checks if the configuration is valid
func (c Config) Validate() error {
	if c.ErrorThreshold <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "breaker", "Validate",
			fmt.Sprintf("error_threshold must be positive, got %d", c.ErrorThreshold))
	}
	if c.CoolDown <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "breaker", "Validate",
			fmt.Sprintf("cool_down must be positive, got %v", c.CoolDown))
	}
	if c.MaxInFlight < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "breaker", "Validate",
			fmt.Sprintf("max_in_flight cannot be negative, got %d", c.MaxInFlight))
	}
	return nil
}

// Snapshot is a point-in-time view of breaker state for diagnostics
type Snapshot struct {
	State             State         `json:"state"`
	ConsecutiveErrors int           `json:"consecutive_errors"`
	LastErrorAt       time.Time     `json:"last_error_at"`
	BackoffRemaining  time.Duration `json:"backoff_remaining"`
	InFlight          int           `json:"in_flight"`
}

// Breaker gates upstream requests based on consecutive-error history, a
// cool-down window, a rate-limit backoff, and an in-flight ceiling.
//
// State machine: CLOSED -> (errors >= threshold) OPEN -> (cool-down
// elapses) HALF-OPEN (next attempt allowed) -> CLOSED on success, OPEN
// again on failure. Cool-down elapsing alone never closes the circuit;
// only a subsequent success does.
type Breaker struct {
	mu                sync.Mutex
	consecutiveErrors int
	lastErrorAt       time.Time
	open              bool
	openedAt          time.Time
	backoffUntil      time.Time
	inFlight          int

	threshold   int
	coolDown    time.Duration
	maxInFlight int
	calc        *backoff.Calculator
	logger      *slog.Logger
	metrics     *metric.Metrics

	// now is replaceable in tests
	now func() time.Time
}

// Option is a functional option for configuring the Breaker
type Option func(*Breaker)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(b *Breaker) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMetrics exports breaker state through the core metrics
func WithMetrics(m *metric.Metrics) Option {
	return func(b *Breaker) {
		b.metrics = m
	}
}

// New creates a circuit breaker from config
func New(cfg Config, opts ...Option) (*Breaker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Breaker{
		threshold:   cfg.ErrorThreshold,
		coolDown:    cfg.CoolDown,
		maxInFlight: cfg.MaxInFlight,
		calc:        backoff.New(cfg.Backoff),
		logger:      slog.Default(),
		now:         time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// RecordSuccess resets error state and closes the circuit
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	wasOpen := b.open
	b.consecutiveErrors = 0
	b.open = false
	b.backoffUntil = time.Time{}
	b.mu.Unlock()

	if wasOpen {
		b.logger.Info("circuit breaker closed after successful request")
	}
	b.publishState()
}

// RecordError increments the consecutive-error count. A rate-limit status
// (429) additionally arms the backoff window. Reaching the threshold opens
// the circuit; an error during half-open re-opens it and restarts the
// cool-down window.
func (b *Breaker) RecordError(statusCode int) {
	b.mu.Lock()
	now := b.now()
	b.consecutiveErrors++
	b.lastErrorAt = now

	if statusCode == 429 {
		// Delay is computed from the error count before this failure so
		// the first 429 backs off by the base delay.
		delay := b.calc.Delay(b.consecutiveErrors - 1)
		b.backoffUntil = now.Add(delay)
		b.logger.Warn("rate limited by upstream",
			"consecutive_errors", b.consecutiveErrors,
			"backoff", delay)
	}

	opened := false
	if b.consecutiveErrors >= b.threshold {
		if !b.open {
			opened = true
		} else if now.Sub(b.openedAt) >= b.coolDown {
			// Half-open attempt failed: restart the cool-down window
			opened = true
		}
		if opened {
			b.open = true
			b.openedAt = now
		}
	}
	errs := b.consecutiveErrors
	b.mu.Unlock()

	if opened {
		b.logger.Warn("circuit breaker opened",
			"consecutive_errors", errs,
			"cool_down", b.coolDown)
	}
	b.publishState()
}

// ShouldSkip reports whether the next request must be skipped locally:
// the circuit is open and cool-down has not elapsed, a rate-limit backoff
// window is active, or the in-flight ceiling is reached.
func (b *Breaker) ShouldSkip() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shouldSkipLocked(b.now())
}

func (b *Breaker) shouldSkipLocked(now time.Time) bool {
	if b.open && now.Sub(b.openedAt) < b.coolDown {
		return true
	}
	if now.Before(b.backoffUntil) {
		return true
	}
	if b.maxInFlight > 0 && b.inFlight >= b.maxInFlight {
		return true
	}
	return false
}

// Acquire reserves an in-flight slot after passing the skip checks.
// Callers must Release() the slot when the request completes. The
// returned error carries the specific skip reason.
func (b *Breaker) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if b.open && now.Sub(b.openedAt) < b.coolDown {
		return errors.WrapTransient(errors.ErrCircuitOpen, "breaker", "Acquire", "circuit check")
	}
	if now.Before(b.backoffUntil) {
		return errors.WrapTransient(errors.ErrBackoffActive, "breaker", "Acquire", "backoff check")
	}
	if b.maxInFlight > 0 && b.inFlight >= b.maxInFlight {
		return errors.WrapTransient(errors.ErrTooManyInFlight, "breaker", "Acquire", "concurrency check")
	}

	b.inFlight++
	return nil
}

// Release frees an in-flight slot
func (b *Breaker) Release() {
	b.mu.Lock()
	if b.inFlight > 0 {
		b.inFlight--
	}
	b.mu.Unlock()
}

// IsOpen reports whether the circuit is open (including half-open)
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// ConsecutiveErrors returns the current consecutive-error count
func (b *Breaker) ConsecutiveErrors() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveErrors
}

// BackoffRemaining returns the remaining rate-limit backoff, or zero
func (b *Breaker) BackoffRemaining() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.backoffUntil.Sub(b.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// InFlight returns the number of reserved in-flight slots
func (b *Breaker) InFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inFlight
}

// State returns the current breaker state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked(b.now())
}

func (b *Breaker) stateLocked(now time.Time) State {
	if !b.open {
		return StateClosed
	}
	if now.Sub(b.openedAt) >= b.coolDown {
		return StateHalfOpen
	}
	return StateOpen
}

// Snapshot returns a point-in-time view of the breaker for diagnostics
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	remaining := b.backoffUntil.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{
		State:             b.stateLocked(now),
		ConsecutiveErrors: b.consecutiveErrors,
		LastErrorAt:       b.lastErrorAt,
		BackoffRemaining:  remaining,
		InFlight:          b.inFlight,
	}
}

// publishState pushes the current state to the metrics gauges if enabled
func (b *Breaker) publishState() {
	if b.metrics == nil {
		return
	}
	b.mu.Lock()
	now := b.now()
	state := b.stateLocked(now)
	remaining := b.backoffUntil.Sub(now)
	b.mu.Unlock()

	b.metrics.RecordBreakerState(int(state))
	b.metrics.RecordBackoff(remaining)
}
