// Package config handles configuration loading for Helmsman. It supports XDG
// config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Helmsman.
type Config struct {
	Anthropic    AnthropicConfig    `mapstructure:"anthropic"`
	Agent        AgentConfig        `mapstructure:"agent"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Dispatch     DispatchConfig     `mapstructure:"dispatch"`
	Storage      StorageConfig      `mapstructure:"storage"`
}

// AnthropicConfig holds decision-service settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// Model is the decision-service model; empty selects the client default.
	Model string `mapstructure:"model"`
	// UseAWSBedrock routes API calls through AWS Bedrock.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// AgentConfig holds coding-agent subprocess settings.
type AgentConfig struct {
	// Binary is the agent executable; empty selects the claude CLI.
	Binary string `mapstructure:"binary"`
	// Model overrides the agent's default model when non-empty.
	Model string `mapstructure:"model"`
}

// ConversationConfig holds conversation-loop settings.
type ConversationConfig struct {
	// TurnBudget caps agent invocations per conversation.
	TurnBudget int `mapstructure:"turn_budget"`
	// CallGrace is how long finished call records stay visible.
	CallGrace time.Duration `mapstructure:"call_grace"`
}

// DispatchConfig holds dispatch-loop settings.
type DispatchConfig struct {
	// MaxIterations caps decision-service consultations per exchange.
	MaxIterations int `mapstructure:"max_iterations"`
}

// StorageConfig holds persistence settings.
type StorageConfig struct {
	// DBPath overrides the session database location.
	DBPath string `mapstructure:"db_path"`
}

// Load loads configuration with the following precedence, highest first:
// environment variables (ANTHROPIC_API_KEY), project config (.helmsman.yaml
// in the current directory or a parent), user config
// (~/.config/helmsman/config.yaml), built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("anthropic.aws_region", "AWS_REGION")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file, mainly for tests.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	return cfg, nil
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("agent.binary", cfg.Agent.Binary)
	v.Set("agent.model", cfg.Agent.Model)
	v.Set("conversation.turn_budget", cfg.Conversation.TurnBudget)
	v.Set("conversation.call_grace", cfg.Conversation.CallGrace.String())
	v.Set("dispatch.max_iterations", cfg.Dispatch.MaxIterations)
	v.Set("storage.db_path", cfg.Storage.DBPath)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file, or an
// empty string when none exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)
	v.SetDefault("agent.binary", "")
	v.SetDefault("agent.model", "")
	v.SetDefault("conversation.turn_budget", 10)
	v.SetDefault("conversation.call_grace", "60s")
	v.SetDefault("dispatch.max_iterations", 10)
	v.SetDefault("storage.db_path", "")
}

// getUserConfigDir returns the XDG config directory for Helmsman.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "helmsman")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "helmsman")
	}
	return filepath.Join(home, ".config", "helmsman")
}

// findProjectConfig searches for .helmsman.yaml in the current directory and
// parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".helmsman.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Conversation: ConversationConfig{
			TurnBudget: 10,
			CallGrace:  60 * time.Second,
		},
		Dispatch: DispatchConfig{
			MaxIterations: 10,
		},
	}
}
