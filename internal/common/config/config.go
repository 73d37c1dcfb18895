// Package config provides configuration management for Axiom.
// It supports loading configuration from environment variables, config files, and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for Axiom.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Events    EventsConfig    `mapstructure:"events"`
	LLM       LLMConfig       `mapstructure:"llm"`
	CliAgents CliAgentsConfig `mapstructure:"cliAgents"`
	Agents    AgentsConfig    `mapstructure:"agents"`
	Watcher   WatcherConfig   `mapstructure:"watcher"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// EventsConfig holds event bus configuration.
type EventsConfig struct {
	// Capacity bounds the internal event queue. A full queue blocks the
	// slower producer instead of growing without limit.
	Capacity int `mapstructure:"capacity"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	// DefaultProvider is the provider id used when none is selected explicitly.
	DefaultProvider string `mapstructure:"defaultProvider"`

	// MetadataTimeout bounds model-listing and other metadata calls, in seconds.
	MetadataTimeout int `mapstructure:"metadataTimeout"`

	// GenerateTimeout bounds a single streaming generation call, in seconds.
	GenerateTimeout int `mapstructure:"generateTimeout"`

	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig holds per-provider settings.
type ProviderConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	APIKey       string `mapstructure:"apiKey"`
	BaseURL      string `mapstructure:"baseUrl"`
	DefaultModel string `mapstructure:"defaultModel"`
}

// CliAgentsConfig holds externally-spawned CLI agent definitions.
type CliAgentsConfig struct {
	Agents map[string]CliAgentConfig `mapstructure:"agents"`
}

// CliAgentConfig describes one external CLI coding agent run under a PTY.
type CliAgentConfig struct {
	Name        string            `mapstructure:"name"`
	Icon        string            `mapstructure:"icon"`
	Command     string            `mapstructure:"command"`
	DefaultArgs []string          `mapstructure:"defaultArgs"`
	UseCwd      bool              `mapstructure:"useCwd"`
	Env         map[string]string `mapstructure:"env"`
	Enabled     bool              `mapstructure:"enabled"`
}

// AgentsConfig holds agent registry housekeeping settings.
type AgentsConfig struct {
	// CleanupMaxAge is how long terminal agents are retained, in seconds.
	CleanupMaxAge int `mapstructure:"cleanupMaxAge"`

	// CleanupInterval is how often cleanup runs, in seconds.
	CleanupInterval int `mapstructure:"cleanupInterval"`
}

// WatcherConfig holds file watcher settings.
type WatcherConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// MetadataTimeoutDuration returns the metadata timeout as a time.Duration.
func (l *LLMConfig) MetadataTimeoutDuration() time.Duration {
	return time.Duration(l.MetadataTimeout) * time.Second
}

// GenerateTimeoutDuration returns the generation timeout as a time.Duration.
func (l *LLMConfig) GenerateTimeoutDuration() time.Duration {
	return time.Duration(l.GenerateTimeout) * time.Second
}

// CleanupMaxAgeDuration returns the cleanup max age as a time.Duration.
func (a *AgentsConfig) CleanupMaxAgeDuration() time.Duration {
	return time.Duration(a.CleanupMaxAge) * time.Second
}

// CleanupIntervalDuration returns the cleanup interval as a time.Duration.
func (a *AgentsConfig) CleanupIntervalDuration() time.Duration {
	return time.Duration(a.CleanupInterval) * time.Second
}

// detectDefaultLogFormat returns the appropriate log format based on environment.
func detectDefaultLogFormat() string {
	if env := os.Getenv("AXIOM_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stderr")

	// Event bus defaults
	v.SetDefault("events.capacity", 1024)

	// LLM defaults
	v.SetDefault("llm.defaultProvider", "ollama")
	v.SetDefault("llm.metadataTimeout", 10)
	v.SetDefault("llm.generateTimeout", 120)
	v.SetDefault("llm.providers.ollama.enabled", true)
	v.SetDefault("llm.providers.ollama.baseUrl", "http://localhost:11434")
	v.SetDefault("llm.providers.ollama.defaultModel", "gemma3:4b")
	v.SetDefault("llm.providers.openai.enabled", false)
	v.SetDefault("llm.providers.openai.baseUrl", "https://api.openai.com/v1")
	v.SetDefault("llm.providers.openai.defaultModel", "gpt-4o")
	v.SetDefault("llm.providers.claude.enabled", false)
	v.SetDefault("llm.providers.claude.baseUrl", "https://api.anthropic.com")
	v.SetDefault("llm.providers.claude.defaultModel", "claude-sonnet-4-20250514")

	// CLI agent defaults
	v.SetDefault("cliAgents.agents.claude.name", "Claude Code")
	v.SetDefault("cliAgents.agents.claude.icon", "🤖")
	v.SetDefault("cliAgents.agents.claude.command", "claude")
	v.SetDefault("cliAgents.agents.claude.useCwd", true)
	v.SetDefault("cliAgents.agents.claude.enabled", true)
	v.SetDefault("cliAgents.agents.gemini.name", "Gemini CLI")
	v.SetDefault("cliAgents.agents.gemini.icon", "✨")
	v.SetDefault("cliAgents.agents.gemini.command", "gemini")
	v.SetDefault("cliAgents.agents.gemini.useCwd", true)
	v.SetDefault("cliAgents.agents.gemini.enabled", true)

	// Registry housekeeping defaults
	v.SetDefault("agents.cleanupMaxAge", 600)
	v.SetDefault("agents.cleanupInterval", 30)

	// Watcher defaults
	v.SetDefault("watcher.enabled", true)
}

// Load reads configuration from environment variables, config file, and defaults.
// Environment variables use the prefix AXIOM_ with snake_case naming.
// Config file should be named config.yaml and placed in the current directory
// or ~/.axiom/.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default locations.
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults first
	setDefaults(v)

	// Configure environment variables
	v.SetEnvPrefix("AXIOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit bindings where env var naming differs from config key naming.
	_ = v.BindEnv("logging.level", "AXIOM_LOG_LEVEL")
	_ = v.BindEnv("llm.defaultProvider", "AXIOM_LLM_DEFAULT_PROVIDER")
	_ = v.BindEnv("llm.providers.openai.apiKey", "OPENAI_API_KEY", "AXIOM_OPENAI_API_KEY")
	_ = v.BindEnv("llm.providers.claude.apiKey", "ANTHROPIC_API_KEY", "AXIOM_CLAUDE_API_KEY")

	// Configure config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(home + "/.axiom")
	}

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validate checks that all required configuration fields are set.
func validate(cfg *Config) error {
	var errs []string

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if cfg.Events.Capacity <= 0 {
		errs = append(errs, "events.capacity must be positive")
	}

	if cfg.LLM.MetadataTimeout <= 0 {
		errs = append(errs, "llm.metadataTimeout must be positive")
	}
	if cfg.LLM.GenerateTimeout <= 0 {
		errs = append(errs, "llm.generateTimeout must be positive")
	}

	for id, agent := range cfg.CliAgents.Agents {
		if agent.Enabled && agent.Command == "" {
			errs = append(errs, fmt.Sprintf("cliAgents.agents.%s.command is required", id))
		}
	}

	if cfg.Agents.CleanupMaxAge <= 0 {
		errs = append(errs, "agents.cleanupMaxAge must be positive")
	}
	if cfg.Agents.CleanupInterval <= 0 {
		errs = append(errs, "agents.cleanupInterval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}

	return nil
}
