// Package config loads the typed configuration record: file parsing
// mechanics live outside the kernel's scope; this package only defines the
// shape and how it is loaded and hot-reloaded.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/agentforge/agentforge/internal/workspace"
)

// Config is the root configuration record.
type Config struct {
	Server     ServerConfig              `mapstructure:"server"`
	Defaults   DefaultsConfig            `mapstructure:"defaults"`
	Profiles   map[string]ProfileConfig  `mapstructure:"profiles"`
	Projects   map[string]ProjectConfig  `mapstructure:"projects"`
	Connectors map[string]ConnectorEntry `mapstructure:"connectors"`
	Database   DatabaseConfig            `mapstructure:"database"`
	Logging    LoggingConfig             `mapstructure:"logging"`
	Workspace  workspace.Config          `mapstructure:"workspace"`
}

// ServerConfig holds HTTP/WS listener settings (consumed by the out-of-scope dispatch layer).
type ServerConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	SecretKey string `mapstructure:"secret_key"`
}

// DefaultsConfig holds fleet-wide defaults.
type DefaultsConfig struct {
	MaxAgentsPerProject int               `mapstructure:"max_agents_per_project"`
	Sandbox             string            `mapstructure:"sandbox"` // "", "docker"
	ClaudeCommand       string            `mapstructure:"claude_command"`
	ClaudeEnv           map[string]string `mapstructure:"claude_env"`
	PollIntervalSeconds int               `mapstructure:"poll_interval_seconds"`
	AgentInstructions   string            `mapstructure:"agent_instructions"`
}

// PollInterval returns the configured poll interval, or a 3s default.
func (d DefaultsConfig) PollInterval() time.Duration {
	if d.PollIntervalSeconds <= 0 {
		return 3 * time.Second
	}
	return time.Duration(d.PollIntervalSeconds) * time.Second
}

// StartDirective is one step of a profile's start sequence.
type StartDirective struct {
	Action string `mapstructure:"action"` // wait | send | wait_for_idle
	Value  string `mapstructure:"value"`
}

// ProfileConfig describes a reusable agent profile.
type ProfileConfig struct {
	Description   string           `mapstructure:"description"`
	SystemPrompt  string           `mapstructure:"system_prompt"`
	Instructions  string           `mapstructure:"instructions"`
	StartSequence []StartDirective `mapstructure:"start_sequence"`
}

// ChannelConfig binds a chat channel to this project.
type ChannelConfig struct {
	ConnectorID string `mapstructure:"connector_id"`
	ChannelID   string `mapstructure:"channel_id"`
	ChannelName string `mapstructure:"channel_name"`
	Inbound     bool   `mapstructure:"inbound"`
	Outbound    bool   `mapstructure:"outbound"`
}

// ProjectConfig describes one git-backed project the fleet can spawn agents into.
type ProjectConfig struct {
	Path              string          `mapstructure:"path"`
	DefaultBranch     string          `mapstructure:"default_branch"`
	MaxAgents         int             `mapstructure:"max_agents"`
	Description       string          `mapstructure:"description"`
	AgentInstructions string          `mapstructure:"agent_instructions"`
	ContextFiles      []string        `mapstructure:"context_files"`
	Sandbox           string          `mapstructure:"sandbox"`
	Channels          []ChannelConfig `mapstructure:"channels"`
}

// ConnectorEntry configures one connector instance.
type ConnectorEntry struct {
	Type        string                 `mapstructure:"type"`
	Enabled     bool                   `mapstructure:"enabled"`
	Credentials map[string]string      `mapstructure:"credentials"`
	Settings    map[string]interface{} `mapstructure:"settings"`
}

// DatabaseConfig configures the Event & Snapshot Store's SQLite backend.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig configures the platform logger.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)

	v.SetDefault("defaults.max_agents_per_project", 3)
	v.SetDefault("defaults.sandbox", "")
	v.SetDefault("defaults.claude_command", "claude --dangerously-skip-permissions")
	v.SetDefault("defaults.poll_interval_seconds", 3)

	v.SetDefault("database.path", "./agentforge.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.outputPath", "stdout")
}

// Load reads configuration from env vars, an optional config file under
// configPath (or the working directory / /etc/agentforge/), and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AGENTFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/agentforge/")

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

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if err := cfg.Workspace.Validate(); err != nil {
		return fmt.Errorf("workspace: %w", err)
	}
	for name, p := range cfg.Projects {
		if p.Path == "" {
			return fmt.Errorf("project %q: path is required", name)
		}
		if p.MaxAgents < 0 {
			return fmt.Errorf("project %q: max_agents must be >= 0", name)
		}
	}
	return nil
}
