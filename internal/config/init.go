package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// WriteDefault renders the default configuration as YAML at the given path,
// creating parent directories. Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(defaultFileContent())
	if err != nil {
		return fmt.Errorf("rendering default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Save writes the configuration to the user config file, overwriting any
// previous contents.
func Save(cfg *Config) error {
	path := GetUserConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(render(cfg))
	if err != nil {
		return fmt.Errorf("rendering config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// defaultFileContent mirrors Default() with durations rendered as strings so
// the generated YAML stays human-editable.
func defaultFileContent() map[string]any {
	cfg := Default()
	out := render(cfg)
	// The template ships an env reference instead of a literal key.
	out["anthropic"].(map[string]any)["api_key"] = "${ANTHROPIC_API_KEY}"
	return out
}

// render converts a Config into a YAML-friendly map with string durations.
func render(cfg *Config) map[string]any {
	return map[string]any{
		"orchestration": map[string]any{
			"mode":                 cfg.Orchestration.Mode,
			"memory_ceiling_mb":    cfg.Orchestration.MemoryCeilingMB,
			"event_buffer":         cfg.Orchestration.EventBuffer,
			"plan_retention":       cfg.Orchestration.PlanRetention.String(),
			"consensus_threshold":  cfg.Orchestration.ConsensusThreshold,
			"fail_open_validation": cfg.Orchestration.FailOpenValidation,
		},
		"limits": map[string]any{
			"max_concurrent_agents": cfg.Limits.MaxConcurrentAgents,
			"max_memory_mb":         cfg.Limits.MaxMemoryMB,
			"max_wall_clock":        cfg.Limits.MaxWallClock.String(),
		},
		"retry": map[string]any{
			"max_retries": cfg.Retry.MaxRetries,
			"base_delay":  cfg.Retry.BaseDelay.String(),
			"multiplier":  cfg.Retry.Multiplier,
			"max_delay":   cfg.Retry.MaxDelay.String(),
		},
		"timeouts": map[string]any{
			"planner":    cfg.Timeouts.Planner.String(),
			"architect":  cfg.Timeouts.Architect.String(),
			"researcher": cfg.Timeouts.Researcher.String(),
			"coder":      cfg.Timeouts.Coder.String(),
			"debugger":   cfg.Timeouts.Debugger.String(),
			"tester":     cfg.Timeouts.Tester.String(),
			"reviewer":   cfg.Timeouts.Reviewer.String(),
			"documenter": cfg.Timeouts.Documenter.String(),
			"default":    cfg.Timeouts.Default.String(),
		},
		"anthropic": map[string]any{
			"api_key":     cfg.Anthropic.APIKey,
			"model":       cfg.Anthropic.Model,
			"use_bedrock": cfg.Anthropic.UseBedrock,
		},
		"memory": map[string]any{
			"path": cfg.Memory.Path,
		},
		"logging": map[string]any{
			"debug": cfg.Logging.Debug,
			"dir":   cfg.Logging.Dir,
		},
	}
}
