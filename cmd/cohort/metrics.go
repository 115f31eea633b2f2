package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cohortlabs/cohort/internal/memory"
)

var metricsLimit int

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Summarize persisted coordination activity",
	Long: `Summarize what the configured agent context store has recorded:
recent tasks, the agents that worked on them, and the step outputs they
persisted. Requires memory.path to be set in configuration.`,
	RunE: runMetrics,
}

func init() {
	metricsCmd.Flags().IntVar(&metricsLimit, "limit", 200, "Maximum number of entries to summarize")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Memory.Path == "" {
		fmt.Println("No agent context store configured. Set memory.path to record activity.")
		return nil
	}

	store, err := memory.OpenSQLite(cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}
	defer store.Close()

	entries, err := store.Query(context.Background(), memory.Filter{
		Kind:  "step_output",
		Limit: metricsLimit,
	})
	if err != nil {
		return fmt.Errorf("querying memory store: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No recorded coordination activity yet.")
		return nil
	}

	// Newest first; group per task preserving that order.
	taskOrder := []string{}
	perTask := map[string]int{}
	agents := map[string]map[string]bool{}
	for _, e := range entries {
		if _, seen := perTask[e.TaskID]; !seen {
			taskOrder = append(taskOrder, e.TaskID)
			agents[e.TaskID] = map[string]bool{}
		}
		perTask[e.TaskID]++
		agents[e.TaskID][e.AgentID] = true
	}

	fmt.Printf("Recorded activity (%d step outputs across %d tasks):\n", len(entries), len(taskOrder))
	for _, taskID := range taskOrder {
		fmt.Printf("  %s: %d outputs from %d agents\n", taskID, perTask[taskID], len(agents[taskID]))
	}
	return nil
}
