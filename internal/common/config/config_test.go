package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 1024, cfg.Events.Capacity)
	assert.Equal(t, "ollama", cfg.LLM.DefaultProvider)
	assert.Equal(t, 10*time.Second, cfg.LLM.MetadataTimeoutDuration())
	assert.Equal(t, 120*time.Second, cfg.LLM.GenerateTimeoutDuration())
	assert.Equal(t, 600*time.Second, cfg.Agents.CleanupMaxAgeDuration())
	assert.True(t, cfg.Watcher.Enabled)

	ollama, ok := cfg.LLM.Providers["ollama"]
	require.True(t, ok)
	assert.True(t, ollama.Enabled)
	assert.Equal(t, "http://localhost:11434", ollama.BaseURL)

	claude, ok := cfg.CliAgents.Agents["claude"]
	require.True(t, ok)
	assert.Equal(t, "claude", claude.Command)
	assert.True(t, claude.UseCwd)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	yaml := `
logging:
  level: debug
events:
  capacity: 64
llm:
  defaultProvider: openai
  providers:
    openai:
      enabled: true
      apiKey: test-key
cliAgents:
  agents:
    custom:
      name: Custom CLI
      command: custom-cli
      enabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 64, cfg.Events.Capacity)
	assert.Equal(t, "openai", cfg.LLM.DefaultProvider)

	openai := cfg.LLM.Providers["openai"]
	assert.True(t, openai.Enabled)
	assert.Equal(t, "test-key", openai.APIKey)

	custom, ok := cfg.CliAgents.Agents["custom"]
	require.True(t, ok)
	assert.Equal(t, "custom-cli", custom.Command)
}

func TestLoadRejectsInvalidLevel(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("logging:\n  level: verbose\n"), 0o644))

	_, err := LoadWithPath(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
}

func TestLoadRejectsNonPositiveCapacity(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"),
		[]byte("events:\n  capacity: 0\n"), 0o644))

	_, err := LoadWithPath(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "events.capacity")
}

func TestLoadRejectsEnabledAgentWithoutCommand(t *testing.T) {
	dir := t.TempDir()
	yaml := `
cliAgents:
  agents:
    broken:
      name: Broken
      enabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	_, err := LoadWithPath(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "command is required")
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AXIOM_LOG_LEVEL", "warn")

	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}
