package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cohortlabs/cohort/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify cohort configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/cohort/config.yaml
Project-specific overrides can be placed in .cohort/config.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a default configuration file. Writes the user config at
~/.config/cohort/config.yaml unless --project puts it at .cohort/config.yaml
in the current directory. Refuses to overwrite an existing file.`,
	RunE: runConfigInit,
}

var configInitProject bool

func init() {
	configInitCmd.Flags().BoolVar(&configInitProject, "project", false, "Write .cohort/config.yaml in the current directory")
	configCmd.AddCommand(configInitCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := config.GetUserConfigPath()
	if configInitProject {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("get working directory: %w", err)
		}
		path = cwd + "/.cohort/config.yaml"
	}

	if err := config.WriteDefault(path); err != nil {
		return err
	}
	fmt.Printf("%s Wrote default configuration to %s\n", color.GreenString("✓"), path)
	return nil
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("orchestration.mode: %s\n", cfg.Orchestration.Mode)
	fmt.Printf("orchestration.memory_ceiling_mb: %.0f\n", cfg.Orchestration.MemoryCeilingMB)
	fmt.Printf("orchestration.plan_retention: %s\n", cfg.Orchestration.PlanRetention)
	fmt.Printf("orchestration.consensus_threshold: %.2f\n", cfg.Orchestration.ConsensusThreshold)
	fmt.Printf("orchestration.fail_open_validation: %t\n", cfg.Orchestration.FailOpenValidation)
	fmt.Printf("limits.max_concurrent_agents: %d\n", cfg.Limits.MaxConcurrentAgents)
	fmt.Printf("limits.max_wall_clock: %s\n", cfg.Limits.MaxWallClock)
	fmt.Printf("retry.max_retries: %d\n", cfg.Retry.MaxRetries)
	fmt.Printf("retry.base_delay: %s\n", cfg.Retry.BaseDelay)
	fmt.Printf("anthropic.api_key: %s\n", config.MaskAPIKey(cfg.Anthropic.APIKey))
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("memory.path: %s\n", cfg.Memory.Path)
	fmt.Printf("logging.debug: %t\n", cfg.Logging.Debug)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the user config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "orchestration.mode":
		return cfg.Orchestration.Mode, nil
	case "orchestration.memory_ceiling_mb":
		return strconv.FormatFloat(cfg.Orchestration.MemoryCeilingMB, 'f', 0, 64), nil
	case "orchestration.plan_retention":
		return cfg.Orchestration.PlanRetention.String(), nil
	case "orchestration.consensus_threshold":
		return strconv.FormatFloat(cfg.Orchestration.ConsensusThreshold, 'f', 2, 64), nil
	case "orchestration.fail_open_validation":
		return strconv.FormatBool(cfg.Orchestration.FailOpenValidation), nil
	case "limits.max_concurrent_agents":
		return strconv.Itoa(cfg.Limits.MaxConcurrentAgents), nil
	case "limits.max_wall_clock":
		return cfg.Limits.MaxWallClock.String(), nil
	case "retry.max_retries":
		return strconv.Itoa(cfg.Retry.MaxRetries), nil
	case "retry.base_delay":
		return cfg.Retry.BaseDelay.String(), nil
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "memory.path":
		return cfg.Memory.Path, nil
	case "logging.debug":
		return strconv.FormatBool(cfg.Logging.Debug), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "orchestration.mode":
		cfg.Orchestration.Mode = value
	case "orchestration.memory_ceiling_mb":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for memory_ceiling_mb: %w", err)
		}
		cfg.Orchestration.MemoryCeilingMB = f
	case "orchestration.plan_retention":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for plan_retention: %w", err)
		}
		cfg.Orchestration.PlanRetention = d
	case "orchestration.consensus_threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for consensus_threshold: %w", err)
		}
		cfg.Orchestration.ConsensusThreshold = f
	case "orchestration.fail_open_validation":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for fail_open_validation: %w", err)
		}
		cfg.Orchestration.FailOpenValidation = b
	case "limits.max_concurrent_agents":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_concurrent_agents: %w", err)
		}
		cfg.Limits.MaxConcurrentAgents = n
	case "limits.max_wall_clock":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for max_wall_clock: %w", err)
		}
		cfg.Limits.MaxWallClock = d
	case "retry.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_retries: %w", err)
		}
		cfg.Retry.MaxRetries = n
	case "retry.base_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for base_delay: %w", err)
		}
		cfg.Retry.BaseDelay = d
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_bedrock: %w", err)
		}
		cfg.Anthropic.UseBedrock = b
	case "memory.path":
		cfg.Memory.Path = value
	case "logging.debug":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for logging.debug: %w", err)
		}
		cfg.Logging.Debug = b
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
