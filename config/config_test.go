package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.AgentID = "agent-1"
	cfg.API.BaseURL = "http://localhost:3000"
	cfg.propagate()
	return cfg
}

func TestDefaultConfig_ValidAfterRequiredFields(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_RequiresAgentID(t *testing.T) {
	cfg := validConfig()
	cfg.AgentID = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_SectionFailureNamed(t *testing.T) {
	cfg := validConfig()
	cfg.Breaker.ErrorThreshold = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "breaker:")
}

func TestValidate_EventsExclusivity(t *testing.T) {
	cfg := validConfig()
	cfg.Events.WebSocketURL = "ws://localhost:3000/socket"
	cfg.Events.NATSURL = "nats://localhost:4222"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Events.NATSURL = "nats://localhost:4222"
	assert.Error(t, cfg.Validate(), "nats feed requires a subject")

	cfg.Events.Subject = "purl.events"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
agent_id: agent-42
api:
  base_url: http://agent.example:3000
  timeout: 5s
poller:
  base_interval: 30s
  min_interval: 10s
cache:
  ttl: 45s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "agent-42", cfg.AgentID)
	assert.Equal(t, "http://agent.example:3000", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Poller.BaseInterval)
	assert.Equal(t, 45*time.Second, cfg.Cache.TTL)

	// Untouched sections keep their defaults
	assert.Equal(t, DefaultConfig().Breaker.ErrorThreshold, cfg.Breaker.ErrorThreshold)

	// The top-level agent id propagates into the sections
	assert.Equal(t, "agent-42", cfg.Poller.AgentID)
	assert.Equal(t, "agent-42", cfg.Preview.AgentID)

	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("agent_id: [unclosed"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PURLSYNC_AGENT_ID", "agent-env")
	t.Setenv("PURLSYNC_API_BASE_URL", "http://env.example:3000")
	t.Setenv("PURLSYNC_POLL_INTERVAL", "90s")
	t.Setenv("PURLSYNC_API_TIMEOUT", "not-a-duration")

	cfg := FromEnv()
	assert.Equal(t, "agent-env", cfg.AgentID)
	assert.Equal(t, "http://env.example:3000", cfg.API.BaseURL)
	assert.Equal(t, 90*time.Second, cfg.Poller.BaseInterval)
	assert.Equal(t, DefaultConfig().API.Timeout, cfg.API.Timeout,
		"unparseable durations are ignored, not fatal")
	assert.Equal(t, "agent-env", cfg.Poller.AgentID)
}
