// Package config handles configuration loading and management for fanout.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProjectConfigName is the per-project override file searched for upward from the working directory.
const ProjectConfigName = ".fanout.yaml"

// EnvPrefix is prepended to every environment override, e.g. FANOUT_DISPATCH_TIMEOUT.
const EnvPrefix = "FANOUT"

// Config holds all configuration for fanout.
type Config struct {
	Balancer BalancerConfig `mapstructure:"balancer"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	State    StateConfig    `mapstructure:"state"`
}

// BalancerConfig holds load balancer settings.
type BalancerConfig struct {
	// StepWeight is the load added per assigned step.
	StepWeight float64 `mapstructure:"step_weight"`
	// RequireTierClearance restricts clusters to agents cleared for the plan's tier.
	RequireTierClearance bool `mapstructure:"require_tier_clearance"`
}

// DispatchConfig holds sub-plan execution settings.
type DispatchConfig struct {
	// Timeout bounds each sub-plan. Zero disables the limit.
	Timeout time.Duration `mapstructure:"timeout"`
}

// EngineConfig holds settings for the built-in dry-run engine.
type EngineConfig struct {
	// SystemTools lists tools that require the system tier.
	SystemTools []string `mapstructure:"system_tools"`
	// StepDelay simulates work per step.
	StepDelay time.Duration `mapstructure:"step_delay"`
}

// LoggingConfig holds debug log settings.
type LoggingConfig struct {
	// Path is the debug log file. Empty means <project>/.fanout/logs/fanout.log.
	Path string `mapstructure:"path"`
}

// StateConfig holds persistence settings.
type StateConfig struct {
	// Path is the SQLite database file. Empty means <project>/.fanout/state.db.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (FANOUT_BALANCER_STEP_WEIGHT, ...)
// 2. Project config (.fanout.yaml in current directory or parent)
// 3. User config (~/.config/fanout/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := newViper()

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
		if err := projectViper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading project config %s: %w", projectConfig, err)
		}
		if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file on top of the defaults.
// Environment overrides still apply.
func LoadFromPath(path string) (*Config, error) {
	v := newViper()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

// Save writes the configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return SaveTo(filepath.Join(userConfigDir, "config.yaml"), cfg)
}

// SaveTo writes the configuration to path as YAML.
func SaveTo(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)

	v.Set("balancer.step_weight", cfg.Balancer.StepWeight)
	v.Set("balancer.require_tier_clearance", cfg.Balancer.RequireTierClearance)
	v.Set("dispatch.timeout", cfg.Dispatch.Timeout.String())
	v.Set("engine.system_tools", cfg.Engine.SystemTools)
	v.Set("engine.step_delay", cfg.Engine.StepDelay.String())
	v.Set("logging.path", cfg.Logging.Path)
	v.Set("state.path", cfg.State.Path)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Balancer: BalancerConfig{
			StepWeight: 0.25,
		},
		Dispatch: DispatchConfig{
			Timeout: 15 * time.Minute,
		},
		Engine: EngineConfig{
			SystemTools: []string{},
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Logging.Path = expandEnv(cfg.Logging.Path)
	cfg.State.Path = expandEnv(cfg.State.Path)

	if cfg.Balancer.StepWeight < 0 {
		return nil, fmt.Errorf("balancer.step_weight must not be negative, got %v", cfg.Balancer.StepWeight)
	}
	if cfg.Dispatch.Timeout < 0 {
		return nil, fmt.Errorf("dispatch.timeout must not be negative, got %v", cfg.Dispatch.Timeout)
	}
	return cfg, nil
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("balancer.step_weight", d.Balancer.StepWeight)
	v.SetDefault("balancer.require_tier_clearance", d.Balancer.RequireTierClearance)

	v.SetDefault("dispatch.timeout", d.Dispatch.Timeout.String())

	v.SetDefault("engine.system_tools", d.Engine.SystemTools)
	v.SetDefault("engine.step_delay", "0s")

	v.SetDefault("logging.path", "")
	v.SetDefault("state.path", "")
}

// getUserConfigDir returns the XDG config directory for fanout.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "fanout")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "fanout")
	}
	return filepath.Join(home, ".config", "fanout")
}

// findProjectConfig searches for .fanout.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
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

// expandEnv expands ${VAR} references in a string.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
