package preview

import (
	"fmt"
	"time"

	"github.com/ShadeREPO/elizaOS-sub000/errors"
)

// Config configures the batched preview service.
type Config struct {
	// AgentID is the agent whose conversations are previewed
	AgentID string `json:"agent_id" yaml:"agent_id"`

	// DebounceDelay is how long the service waits after the last enqueue
	// before running a batch, so bursts coalesce into one run
	DebounceDelay time.Duration `json:"debounce_delay" yaml:"debounce_delay"`

	// MaxBatchSize is the most conversation ids one batch run drains
	MaxBatchSize int `json:"max_batch_size" yaml:"max_batch_size"`

	// SubBatchSize splits a drained batch into sequential groups
	SubBatchSize int `json:"sub_batch_size" yaml:"sub_batch_size"`

	// InterRequestDelay is the pause between items inside a sub-batch
	InterRequestDelay time.Duration `json:"inter_request_delay" yaml:"inter_request_delay"`

	// InterSubBatchDelay is the pause between sub-batches
	InterSubBatchDelay time.Duration `json:"inter_sub_batch_delay" yaml:"inter_sub_batch_delay"`

	// CooldownDuration is the global suspension applied after any item in
	// a batch is rate limited
	CooldownDuration time.Duration `json:"cooldown_duration" yaml:"cooldown_duration"`

	// CacheTTL bounds how long a fetched preview is served from cache
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`

	// CacheMaxEntries bounds the preview cache size
	CacheMaxEntries int `json:"cache_max_entries" yaml:"cache_max_entries"`
}

// DefaultConfig returns sensible preview service defaults.
func DefaultConfig() Config {
	return Config{
		DebounceDelay:      300 * time.Millisecond,
		MaxBatchSize:       10,
		SubBatchSize:       3,
		InterRequestDelay:  200 * time.Millisecond,
		InterSubBatchDelay: time.Second,
		CooldownDuration:   30 * time.Second,
		CacheTTL:           time.Minute,
		CacheMaxEntries:    200,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.AgentID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "preview", "Validate", "agent_id is required")
	}
	if c.DebounceDelay < 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "preview", "Validate",
			fmt.Sprintf("debounce_delay must be non-negative, got %v", c.DebounceDelay))
	}
	if c.MaxBatchSize < 1 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "preview", "Validate",
			fmt.Sprintf("max_batch_size must be >= 1, got %d", c.MaxBatchSize))
	}
	if c.SubBatchSize < 1 || c.SubBatchSize > c.MaxBatchSize {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "preview", "Validate",
			fmt.Sprintf("sub_batch_size must be in [1, max_batch_size], got %d", c.SubBatchSize))
	}
	if c.CooldownDuration <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "preview", "Validate",
			fmt.Sprintf("cooldown_duration must be positive, got %v", c.CooldownDuration))
	}
	if c.CacheTTL <= 0 {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "preview", "Validate",
			fmt.Sprintf("cache_ttl must be positive, got %v", c.CacheTTL))
	}
	return nil
}
