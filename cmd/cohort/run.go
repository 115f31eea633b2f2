package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cohortlabs/cohort/internal/config"
	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/internal/memory"
	"github.com/cohortlabs/cohort/internal/orchestrator"
	"github.com/cohortlabs/cohort/pkg/models"
)

// timeRounding keeps printed durations readable.
const timeRounding = 10 * time.Millisecond

var (
	runDryRun bool
	runMode   string
	runWatch  bool
)

var runCmd = &cobra.Command{
	Use:   "run <task description>",
	Short: "Analyze and execute a task",
	Long: `Run a task through the full coordination loop: analyze it, acquire
the agent roles it needs, build a coordination plan, and execute it.

The orchestration mode comes from configuration (adaptive by default) and
can be overridden with --mode. With --dry-run the execution backend is a
deterministic stub, useful for inspecting plans without an API key.

Examples:
  cohort run "fix the race condition in the cache layer"
  cohort run --mode analysis_only "redesign the ingestion pipeline"
  cohort run --dry-run "add integration tests for the billing service"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Use a stub execution backend (no API calls)")
	runCmd.Flags().StringVar(&runMode, "mode", "", "Override the orchestration mode for this run")
	runCmd.Flags().BoolVar(&runWatch, "watch", false, "Reload orchestration settings when the config file changes")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runMode != "" {
		cfg.Orchestration.Mode = runMode
	}

	orchCfg, err := cfg.Orchestrator()
	if err != nil {
		return err
	}

	exec, err := buildExecutor(cfg)
	if err != nil {
		return err
	}

	opts, cleanup, err := buildOptions(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	orch := orchestrator.New(orchCfg, exec, opts...)
	defer orch.Close()

	if runWatch {
		if err := watchConfig(orch); err != nil {
			color.Yellow("config watch unavailable: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go streamEvents(orch, done)

	task := strings.Join(args, " ")
	result, err := orch.OrchestrateTask(ctx, task, nil)
	close(done)
	if err != nil {
		return err
	}

	printResult(result)
	if !result.Success {
		os.Exit(1)
	}
	return nil
}

// buildExecutor picks the execution backend: the Anthropic client unless
// --dry-run asked for the deterministic stub.
func buildExecutor(cfg *config.Config) (executor.Executor, error) {
	if runDryRun {
		return executor.NewScriptedExecutor(), nil
	}

	key, _, err := config.ResolveAPIKey(cfg)
	if err != nil && !cfg.Anthropic.UseBedrock {
		return nil, fmt.Errorf("%w (set ANTHROPIC_API_KEY or use --dry-run)", err)
	}
	return executor.NewAnthropicExecutor(executor.AnthropicConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        key,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
	})
}

// buildOptions wires the optional collaborators: sqlite memory store and
// file-backed debug logging. The returned cleanup closes what was opened.
func buildOptions(cfg *config.Config) ([]orchestrator.Option, func(), error) {
	var opts []orchestrator.Option
	cleanup := func() {}

	if cfg.Memory.Path != "" {
		store, err := memory.OpenSQLite(cfg.Memory.Path)
		if err != nil {
			return nil, cleanup, fmt.Errorf("opening memory store: %w", err)
		}
		opts = append(opts, orchestrator.WithStore(store))
	}

	if cfg.Logging.Debug {
		dir := cfg.Logging.Dir
		if dir == "" {
			dir, _ = os.Getwd()
		}
		logger := orchestrator.NewDebugLoggerForDir(dir)
		opts = append(opts, orchestrator.WithLogger(logger))
		cleanup = func() { logger.Close() }
	}

	return opts, cleanup, nil
}

// watchConfig hot-reloads orchestration mode, ceiling, and limits from the
// active config file.
func watchConfig(orch *orchestrator.Orchestrator) error {
	path := configFile
	if path == "" {
		path = config.GetProjectConfigPath()
	}
	if path == "" {
		path = config.GetUserConfigPath()
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no config file to watch at %s", path)
	}

	_, err := config.Watch(path, func(c *config.Config) {
		oc, err := c.Orchestrator()
		if err != nil {
			color.Yellow("ignoring config change: %v", err)
			return
		}
		if err := orch.UpdateConfig(oc.Mode, oc.MemoryCeilingMB, &oc.Strategy.Limits); err != nil {
			color.Yellow("ignoring config change: %v", err)
			return
		}
		color.Cyan("config reloaded: mode=%s", oc.Mode)
	})
	return err
}

// streamEvents renders orchestrator progress until done closes.
func streamEvents(orch *orchestrator.Orchestrator, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev, ok := <-orch.Events():
			if !ok {
				return
			}
			printEvent(ev)
		}
	}
}

func printEvent(ev orchestrator.Event) {
	stamp := ev.Timestamp.Format("15:04:05")
	switch ev.Type {
	case orchestrator.EventTaskAccepted:
		fmt.Printf("%s %s task %s: %s\n", stamp, color.CyanString("▸"), ev.TaskID, ev.Message)
	case orchestrator.EventAnalysisCompleted:
		fmt.Printf("%s %s analysis: %s (strategy %s)\n", stamp, color.CyanString("▸"), ev.Message, ev.Strategy)
	case orchestrator.EventAgentsCreated:
		fmt.Printf("%s %s %s\n", stamp, color.CyanString("▸"), ev.Message)
	case orchestrator.EventPlanCreated:
		fmt.Printf("%s %s plan %s: %s under %s\n", stamp, color.CyanString("▸"), ev.PlanID, ev.Message, ev.Strategy)
	case orchestrator.EventStrategyFallback:
		fmt.Printf("%s %s %s\n", stamp, color.YellowString("⚠"), ev.Message)
	case orchestrator.EventTaskCompleted:
		fmt.Printf("%s %s task %s completed\n", stamp, color.GreenString("✓"), ev.TaskID)
	case orchestrator.EventTaskFailed:
		fmt.Printf("%s %s task %s failed: %s\n", stamp, color.RedString("✗"), ev.TaskID, ev.Message)
	case orchestrator.EventTaskCancelled:
		fmt.Printf("%s %s task %s cancelled\n", stamp, color.YellowString("⚠"), ev.TaskID)
	}
}

func printResult(result *models.OrchestrationResult) {
	fmt.Println()
	if result.Success {
		fmt.Printf("%s Task %s completed in %s\n", color.GreenString("✓"), result.TaskID, result.Duration.Round(timeRounding))
	} else {
		fmt.Printf("%s Task %s failed after %s\n", color.RedString("✗"), result.TaskID, result.Duration.Round(timeRounding))
		if result.Error != "" {
			fmt.Printf("  Error: %s\n", result.Error)
		}
	}

	if result.Strategy != "" {
		fmt.Printf("  Strategy: %s", result.Strategy)
		if result.FallbackUsed {
			fmt.Printf(" (fallback)")
		}
		fmt.Println()
	}
	if result.AgentCount > 0 {
		fmt.Printf("  Agents: %d\n", result.AgentCount)
	}
	for _, w := range result.Warnings {
		fmt.Printf("  %s %s\n", color.YellowString("⚠"), w)
	}
}
