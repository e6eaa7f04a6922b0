package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLimits(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 20, cfg.Deliberation.MaxTurns)
	assert.Equal(t, 3, cfg.Deliberation.MaxStalls)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "council.yaml")
	data := []byte(`
deliberation:
  max_turns: 8
  invocation_timeout: 30s
redis:
  enabled: true
  addr: "redis:6379"
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("COUNCIL_DELIBERATION_MAX_STALLS", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Deliberation.MaxTurns)
	assert.Equal(t, 5, cfg.Deliberation.MaxStalls)
	assert.Equal(t, 30*time.Second, cfg.Deliberation.InvocationTimeout)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	// Untouched keys keep defaults.
	assert.Equal(t, 256, cfg.Streaming.RingCapacity)
}

func TestValidateRejectsZeroTurnLimit(t *testing.T) {
	cfg := Default()
	cfg.Deliberation.MaxTurns = 0
	assert.Error(t, cfg.Validate())
}

func TestBackendIsConfigured(t *testing.T) {
	b := BackendConfig{}
	assert.False(t, b.IsConfigured())
	b.APIKey = "sk-test"
	assert.True(t, b.IsConfigured())
	b.BaseURL = "https://your-resource.openai.azure.com/"
	assert.False(t, b.IsConfigured())
}
