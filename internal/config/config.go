// Package config handles configuration loading for cohort. It supports XDG
// config paths, project-level overrides, and environment variables, and can
// re-read the file on change for runtime reconfiguration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/cohortlabs/cohort/internal/orchestrator"
	"github.com/cohortlabs/cohort/internal/strategy"
	"github.com/cohortlabs/cohort/pkg/models"
)

// Config holds all configuration for cohort.
type Config struct {
	Orchestration OrchestrationConfig `mapstructure:"orchestration"`
	Limits        LimitsConfig        `mapstructure:"limits"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Timeouts      TimeoutsConfig      `mapstructure:"timeouts"`
	Anthropic     AnthropicConfig     `mapstructure:"anthropic"`
	Memory        MemoryConfig        `mapstructure:"memory"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// OrchestrationConfig holds control-loop settings.
type OrchestrationConfig struct {
	// Mode selects how much work each task gets (disabled, analysis_only,
	// single_agent_fallback, full_orchestration, adaptive).
	Mode string `mapstructure:"mode"`
	// MemoryCeilingMB bounds the summed memory estimate of live tasks.
	MemoryCeilingMB float64 `mapstructure:"memory_ceiling_mb"`
	// EventBuffer sizes the progress event channel.
	EventBuffer int `mapstructure:"event_buffer"`
	// PlanRetention is how long finished plans stay queryable.
	PlanRetention time.Duration `mapstructure:"plan_retention"`
	// ConsensusThreshold is the swarm success threshold.
	ConsensusThreshold float64 `mapstructure:"consensus_threshold"`
	// FailOpenValidation downgrades missing pipeline inputs to warnings.
	FailOpenValidation bool `mapstructure:"fail_open_validation"`
}

// LimitsConfig bounds what one plan execution may consume.
type LimitsConfig struct {
	MaxConcurrentAgents int           `mapstructure:"max_concurrent_agents"`
	MaxMemoryMB         float64       `mapstructure:"max_memory_mb"`
	MaxWallClock        time.Duration `mapstructure:"max_wall_clock"`
}

// RetryConfig holds the per-step retry policy.
type RetryConfig struct {
	MaxRetries int           `mapstructure:"max_retries"`
	BaseDelay  time.Duration `mapstructure:"base_delay"`
	Multiplier float64       `mapstructure:"multiplier"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
}

// TimeoutsConfig holds per-role single-attempt timeouts.
type TimeoutsConfig struct {
	Planner    time.Duration `mapstructure:"planner"`
	Architect  time.Duration `mapstructure:"architect"`
	Researcher time.Duration `mapstructure:"researcher"`
	Coder      time.Duration `mapstructure:"coder"`
	Debugger   time.Duration `mapstructure:"debugger"`
	Tester     time.Duration `mapstructure:"tester"`
	Reviewer   time.Duration `mapstructure:"reviewer"`
	Documenter time.Duration `mapstructure:"documenter"`
	Default    time.Duration `mapstructure:"default"`
}

// AnthropicConfig holds Anthropic API settings for the execution backend.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseBedrock routes requests through AWS Bedrock credentials instead of
	// a direct API key.
	UseBedrock bool `mapstructure:"use_bedrock"`
}

// MemoryConfig holds the agent context store settings. An empty path keeps
// the no-op store.
type MemoryConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds debug logging settings.
type LoggingConfig struct {
	Debug bool   `mapstructure:"debug"`
	Dir   string `mapstructure:"dir"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (COHORT_*, ANTHROPIC_API_KEY)
// 2. Project config (.cohort/config.yaml in current directory or parent)
// 3. User config (~/.config/cohort/config.yaml)
// 4. Built-in defaults
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

	v.SetEnvPrefix("COHORT")
	v.AutomaticEnv()
	v.BindEnv("orchestration.mode", "COHORT_MODE")
	v.BindEnv("logging.debug", "COHORT_DEBUG")
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific file.
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

// unmarshal decodes the viper state and expands env references.
func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)
	cfg.Memory.Path = expandEnv(cfg.Memory.Path)
	cfg.Logging.Dir = expandEnv(cfg.Logging.Dir)
	return cfg, nil
}

// Orchestrator translates the file configuration into the orchestrator's
// runtime configuration.
func (c *Config) Orchestrator() (*orchestrator.Config, error) {
	mode := models.OrchestrationMode(c.Orchestration.Mode)
	if !mode.Valid() {
		return nil, fmt.Errorf("invalid orchestration mode %q", c.Orchestration.Mode)
	}

	sc := strategy.DefaultConfig()
	sc.Timeouts = map[models.AgentType]time.Duration{
		models.AgentTypePlanner:    c.Timeouts.Planner,
		models.AgentTypeArchitect:  c.Timeouts.Architect,
		models.AgentTypeResearcher: c.Timeouts.Researcher,
		models.AgentTypeCoder:      c.Timeouts.Coder,
		models.AgentTypeDebugger:   c.Timeouts.Debugger,
		models.AgentTypeTester:     c.Timeouts.Tester,
		models.AgentTypeReviewer:   c.Timeouts.Reviewer,
		models.AgentTypeDocumenter: c.Timeouts.Documenter,
	}
	sc.DefaultTimeout = c.Timeouts.Default
	sc.Retry = strategy.RetryPolicy{
		MaxRetries: c.Retry.MaxRetries,
		BaseDelay:  c.Retry.BaseDelay,
		Multiplier: c.Retry.Multiplier,
		MaxDelay:   c.Retry.MaxDelay,
	}
	sc.Limits = strategy.ResourceLimits{
		MaxConcurrentAgents: c.Limits.MaxConcurrentAgents,
		MaxMemoryMB:         c.Limits.MaxMemoryMB,
		MaxWallClock:        c.Limits.MaxWallClock,
	}
	sc.ConsensusThreshold = c.Orchestration.ConsensusThreshold
	sc.FailOpenValidation = c.Orchestration.FailOpenValidation

	return &orchestrator.Config{
		Mode:            mode,
		Strategy:        sc,
		MemoryCeilingMB: c.Orchestration.MemoryCeilingMB,
		EventBuffer:     c.Orchestration.EventBuffer,
		PlanRetention:   c.Orchestration.PlanRetention,
	}, nil
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it
// exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values, mirroring strategy.DefaultConfig.
func setDefaults(v *viper.Viper) {
	v.SetDefault("orchestration.mode", "adaptive")
	v.SetDefault("orchestration.memory_ceiling_mb", 4096)
	v.SetDefault("orchestration.event_buffer", 64)
	v.SetDefault("orchestration.plan_retention", "1h")
	v.SetDefault("orchestration.consensus_threshold", 0.75)
	v.SetDefault("orchestration.fail_open_validation", false)

	v.SetDefault("limits.max_concurrent_agents", 4)
	v.SetDefault("limits.max_memory_mb", 2048)
	v.SetDefault("limits.max_wall_clock", "30m")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", "1s")
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.max_delay", "30s")

	v.SetDefault("timeouts.planner", "5m")
	v.SetDefault("timeouts.architect", "5m")
	v.SetDefault("timeouts.researcher", "4m")
	v.SetDefault("timeouts.coder", "3m")
	v.SetDefault("timeouts.debugger", "3m")
	v.SetDefault("timeouts.tester", "2m")
	v.SetDefault("timeouts.reviewer", "2m")
	v.SetDefault("timeouts.documenter", "2m")
	v.SetDefault("timeouts.default", "3m")

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("memory.path", "")

	v.SetDefault("logging.debug", false)
	v.SetDefault("logging.dir", "")
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Orchestration: OrchestrationConfig{
			Mode:               "adaptive",
			MemoryCeilingMB:    4096,
			EventBuffer:        64,
			PlanRetention:      time.Hour,
			ConsensusThreshold: 0.75,
		},
		Limits: LimitsConfig{
			MaxConcurrentAgents: 4,
			MaxMemoryMB:         2048,
			MaxWallClock:        30 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			Multiplier: 2.0,
			MaxDelay:   30 * time.Second,
		},
		Timeouts: TimeoutsConfig{
			Planner:    5 * time.Minute,
			Architect:  5 * time.Minute,
			Researcher: 4 * time.Minute,
			Coder:      3 * time.Minute,
			Debugger:   3 * time.Minute,
			Tester:     2 * time.Minute,
			Reviewer:   2 * time.Minute,
			Documenter: 2 * time.Minute,
			Default:    3 * time.Minute,
		},
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-20250514",
		},
	}
}

// getUserConfigDir returns the XDG config directory for cohort.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "cohort")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "cohort")
	}
	return filepath.Join(home, ".config", "cohort")
}

// findProjectConfig searches for .cohort/config.yaml in the current directory
// and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".cohort", "config.yaml")
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
