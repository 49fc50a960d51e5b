// Package config aggregates every tunable of the sync layer into one
// structure loadable from YAML with environment overrides. Components
// never read files or environment themselves; they receive their slice
// of this Config at construction time.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ShadeREPO/elizaOS-sub000/agentapi"
	"github.com/ShadeREPO/elizaOS-sub000/breaker"
	"github.com/ShadeREPO/elizaOS-sub000/errors"
	"github.com/ShadeREPO/elizaOS-sub000/pkg/cache"
	"github.com/ShadeREPO/elizaOS-sub000/poller"
	"github.com/ShadeREPO/elizaOS-sub000/preview"
)

// EventsConfig selects and configures the optional real-time change
// source. At most one of WebSocketURL and NATSURL is set; both empty
// means the poller runs without presence signals from a live session.
type EventsConfig struct {
	// WebSocketURL is the socket endpoint of the agent server
	WebSocketURL string `json:"websocket_url" yaml:"websocket_url"`

	// NATSURL and Subject select a NATS change feed instead
	NATSURL string `json:"nats_url" yaml:"nats_url"`
	Subject string `json:"subject" yaml:"subject"`
}

// Validate checks if the events configuration is valid.
func (c EventsConfig) Validate() error {
	if c.WebSocketURL != "" && c.NATSURL != "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			"websocket_url and nats_url are mutually exclusive")
	}
	if c.NATSURL != "" && c.Subject == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "Validate",
			"subject is required with nats_url")
	}
	return nil
}

// Config is the complete runtime configuration of one sync client.
type Config struct {
	// AgentID is the agent this client synchronizes with
	AgentID string `json:"agent_id" yaml:"agent_id"`

	API     agentapi.Config `json:"api" yaml:"api"`
	Cache   cache.Config    `json:"cache" yaml:"cache"`
	Breaker breaker.Config  `json:"breaker" yaml:"breaker"`
	Poller  poller.Config   `json:"poller" yaml:"poller"`
	Preview preview.Config  `json:"preview" yaml:"preview"`
	Events  EventsConfig    `json:"events" yaml:"events"`
}

// DefaultConfig returns the full default configuration. AgentID and the
// API base URL must still be supplied by the caller or the environment.
func DefaultConfig() Config {
	return Config{
		API:     agentapi.DefaultConfig(),
		Cache:   cache.DefaultConfig(),
		Breaker: breaker.DefaultConfig(),
		Poller:  poller.DefaultConfig(),
		Preview: preview.DefaultConfig(),
	}
}

// Load reads a YAML config file over the defaults and applies
// environment overrides. Durations accept Go syntax ("30s", "2m").
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, errors.WrapInvalid(err, "config", "Load", "read file")
	}

	// Decode against the yaml tags the component configs already carry
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return Config{}, errors.WrapInvalid(err, "config", "Load", "decode config")
	}

	cfg.applyEnv()
	cfg.propagate()
	return cfg, nil
}

// FromEnv builds a configuration from defaults plus environment
// overrides only, for deployments without a config file.
func FromEnv() Config {
	cfg := DefaultConfig()
	cfg.applyEnv()
	cfg.propagate()
	return cfg
}

// applyEnv layers PURLSYNC_* environment variables over the current
// values. Only the operational knobs are exposed this way; structural
// tuning stays in the file.
func (c *Config) applyEnv() {
	envString("PURLSYNC_AGENT_ID", &c.AgentID)
	envString("PURLSYNC_API_BASE_URL", &c.API.BaseURL)
	envString("PURLSYNC_API_KEY", &c.API.APIKey)
	envDuration("PURLSYNC_API_TIMEOUT", &c.API.Timeout)
	envDuration("PURLSYNC_POLL_INTERVAL", &c.Poller.BaseInterval)
	envDuration("PURLSYNC_CACHE_TTL", &c.Cache.TTL)
	envString("PURLSYNC_WEBSOCKET_URL", &c.Events.WebSocketURL)
	envString("PURLSYNC_NATS_URL", &c.Events.NATSURL)
	envString("PURLSYNC_NATS_SUBJECT", &c.Events.Subject)
}

// propagate copies the top-level AgentID into the sections that carry
// their own copy, so callers set it once.
func (c *Config) propagate() {
	if c.Poller.AgentID == "" {
		c.Poller.AgentID = c.AgentID
	}
	if c.Preview.AgentID == "" {
		c.Preview.AgentID = c.AgentID
	}
}

// Validate checks the whole configuration, failing on the first invalid
// section.
func (c Config) Validate() error {
	if c.AgentID == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "config", "Validate", "agent_id is required")
	}

	sections := []struct {
		name     string
		validate func() error
	}{
		{"api", c.API.Validate},
		{"cache", c.Cache.Validate},
		{"breaker", c.Breaker.Validate},
		{"poller", c.Poller.Validate},
		{"preview", c.Preview.Validate},
		{"events", c.Events.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envDuration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if d, err := time.ParseDuration(v); err == nil {
		*dst = d
	}
}
