package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cohortlabs/cohort/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show resolved configuration and readiness",
	Long: `Display where configuration is coming from, which execution backend
is available, and whether the agent context store is configured.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println("Configuration:")
	userPath := config.GetUserConfigPath()
	if _, err := os.Stat(userPath); err == nil {
		fmt.Printf("  User config:    %s\n", userPath)
	} else {
		fmt.Printf("  User config:    %s (not present, run 'cohort config init')\n", userPath)
	}
	if projectPath := config.GetProjectConfigPath(); projectPath != "" {
		fmt.Printf("  Project config: %s\n", projectPath)
	} else {
		fmt.Printf("  Project config: (none)\n")
	}
	fmt.Printf("  Mode:           %s\n", cfg.Orchestration.Mode)
	fmt.Printf("  Memory ceiling: %.0f MB\n", cfg.Orchestration.MemoryCeilingMB)
	fmt.Printf("  Agent limit:    %d concurrent\n", cfg.Limits.MaxConcurrentAgents)

	fmt.Println()
	fmt.Println("Execution backend:")
	key, source, err := config.ResolveAPIKey(cfg)
	switch {
	case cfg.Anthropic.UseBedrock:
		fmt.Printf("  %s AWS Bedrock (model %s)\n", color.GreenString("✓"), cfg.Anthropic.Model)
	case err != nil:
		fmt.Printf("  %s no API key configured; only --dry-run will work\n", color.YellowString("⚠"))
	default:
		fmt.Printf("  %s Anthropic API key %s (from %s, model %s)\n",
			color.GreenString("✓"), config.MaskAPIKey(key), source, cfg.Anthropic.Model)
	}

	fmt.Println()
	fmt.Println("Agent context store:")
	if cfg.Memory.Path == "" {
		fmt.Printf("  %s not configured; step outputs are not persisted\n", color.YellowString("⚠"))
	} else {
		fmt.Printf("  %s sqlite at %s\n", color.GreenString("✓"), cfg.Memory.Path)
	}
	return nil
}
