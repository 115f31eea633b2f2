package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cohortlabs/cohort/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "cohort",
	Short: "Task analysis and coordination strategy engine",
	Long: `Cohort analyzes development tasks, derives the agent roles they need,
and coordinates execution under the best-fitting strategy.

Core capabilities:
- Scores task complexity and classifies work from the task description
- Derives required agent roles (coder, tester, planner, ...)
- Selects among sequential, parallel, pipeline, hierarchical, and swarm
  coordination patterns
- Executes coordination plans with per-step retry, timeout, and recovery
- Streams progress events while a task runs`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (overrides discovery)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads configuration honoring the --config flag.
func loadConfig() (*config.Config, error) {
	if configFile != "" {
		cfg, err := config.LoadFromPath(configFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
