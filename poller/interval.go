package poller

import (
	"fmt"
	"time"

	"github.com/ShadeREPO/elizaOS-sub000/errors"
)

// Config configures the adaptive poller.
type Config struct {
	// AgentID is the agent whose memories are polled
	AgentID string `json:"agent_id" yaml:"agent_id"`

	// TableName selects the upstream memory table (default "messages")
	TableName string `json:"table_name" yaml:"table_name"`

	// RoomID optionally scopes polling to one room
	RoomID string `json:"room_id" yaml:"room_id"`

	// ChannelID optionally scopes polling to one channel
	ChannelID string `json:"channel_id" yaml:"channel_id"`

	// BaseInterval is the cadence under normal conditions
	BaseInterval time.Duration `json:"base_interval" yaml:"base_interval"`

	// MinInterval is the floor: even under genuine activity the poller
	// never fetches more often than this
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"`

	// MaxIntervalFactor caps every scaled interval at
	// BaseInterval * MaxIntervalFactor, and is the interval used while
	// the circuit is open
	MaxIntervalFactor int `json:"max_interval_factor" yaml:"max_interval_factor"`

	// ErrorEmphasis multiplies the error-count scaling so error state
	// slows polling harder than plain empty-poll scaling
	ErrorEmphasis int `json:"error_emphasis" yaml:"error_emphasis"`

	// EmptyPollThreshold is how many consecutive no-growth polls trigger
	// empty-poll scaling
	EmptyPollThreshold int `json:"empty_poll_threshold" yaml:"empty_poll_threshold"`

	// InactivityThreshold is how long without caller presence before the
	// poller relaxes to InactiveFactor * BaseInterval
	InactivityThreshold time.Duration `json:"inactivity_threshold" yaml:"inactivity_threshold"`

	// InactiveFactor is the moderate multiple applied when the caller is
	// inactive
	InactiveFactor int `json:"inactive_factor" yaml:"inactive_factor"`

	// ActivityWindow is how recently data must have changed for the
	// poller to tighten toward MinInterval
	ActivityWindow time.Duration `json:"activity_window" yaml:"activity_window"`
}

// DefaultConfig returns sensible poller defaults.
func DefaultConfig() Config {
	return Config{
		TableName:           "messages",
		BaseInterval:        60 * time.Second,
		MinInterval:         15 * time.Second,
		MaxIntervalFactor:   30,
		ErrorEmphasis:       2,
		EmptyPollThreshold:  3,
		InactivityThreshold: 5 * time.Minute,
		InactiveFactor:      3,
		ActivityWindow:      2 * time.Minute,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.AgentID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "poller", "Validate", "agent_id is required")
	}
	if c.BaseInterval <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "poller", "Validate",
			fmt.Sprintf("base_interval must be positive, got %v", c.BaseInterval))
	}
	if c.MinInterval <= 0 || c.MinInterval > c.BaseInterval {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "poller", "Validate",
			fmt.Sprintf("min_interval must be in (0, base_interval], got %v", c.MinInterval))
	}
	if c.MaxIntervalFactor < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "poller", "Validate",
			fmt.Sprintf("max_interval_factor must be >= 1, got %d", c.MaxIntervalFactor))
	}
	if c.ErrorEmphasis < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "poller", "Validate",
			fmt.Sprintf("error_emphasis must be >= 1, got %d", c.ErrorEmphasis))
	}
	if c.EmptyPollThreshold < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "poller", "Validate",
			fmt.Sprintf("empty_poll_threshold must be >= 1, got %d", c.EmptyPollThreshold))
	}
	if c.InactiveFactor < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "poller", "Validate",
			fmt.Sprintf("inactive_factor must be >= 1, got %d", c.InactiveFactor))
	}
	return nil
}

// maxInterval is the hard ceiling for every computed interval.
func (c Config) maxInterval() time.Duration {
	return c.BaseInterval * time.Duration(c.MaxIntervalFactor)
}

// intervalInputs is the state snapshot the interval policy evaluates.
type intervalInputs struct {
	breakerOpen    bool
	errorCount     int
	backoffActive  bool
	emptyPolls     int
	lastActivityAt time.Time // caller presence
	lastChangeAt   time.Time // observed data growth
	now            time.Time
}

// nextInterval computes the delay before the next poll. Evaluated before
// each scheduling decision, in strict precedence order: breaker state,
// error state, empty-poll history, caller inactivity, recent activity.
func (c Config) nextInterval(in intervalInputs) time.Duration {
	maxInterval := c.maxInterval()

	// Open circuit: no point polling faster than the cool-down resolves
	if in.breakerOpen {
		return maxInterval
	}

	// Error state scales harder than empty-poll scaling for emphasis
	if in.errorCount > 0 || in.backoffActive {
		factor := in.errorCount
		if factor < 1 {
			factor = 1
		}
		scaled := c.BaseInterval * time.Duration(factor*c.ErrorEmphasis)
		if scaled > maxInterval {
			return maxInterval
		}
		return scaled
	}

	// Quiet data: stretch linearly with the number of empty polls
	if in.emptyPolls >= c.EmptyPollThreshold {
		scaled := c.BaseInterval * time.Duration(in.emptyPolls)
		if scaled > maxInterval {
			return maxInterval
		}
		return scaled
	}

	// Caller has gone away: relax moderately
	if !in.lastActivityAt.IsZero() && in.now.Sub(in.lastActivityAt) > c.InactivityThreshold {
		scaled := c.BaseInterval * time.Duration(c.InactiveFactor)
		if scaled > maxInterval {
			return maxInterval
		}
		return scaled
	}

	// Fresh data: tighten, but never below the configured floor
	if !in.lastChangeAt.IsZero() && in.now.Sub(in.lastChangeAt) < c.ActivityWindow {
		tightened := c.BaseInterval / 2
		if tightened < c.MinInterval {
			return c.MinInterval
		}
		return tightened
	}

	return c.BaseInterval
}
