package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/cohortlabs/cohort/internal/analyzer"
	"github.com/cohortlabs/cohort/pkg/models"
)

var (
	analyzeFiles   []string
	analyzeImports []string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <task description>",
	Short: "Analyze a task without executing it",
	Long: `Analyze a task description and print the derived complexity,
categories, required agent roles, and recommended coordination strategy.

Nothing is executed; this is the ANALYSIS_ONLY surface as a one-shot command.

Examples:
  cohort analyze "fix typo in README"
  cohort analyze --file api.go --file api_test.go "refactor the handler layer"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringArrayVar(&analyzeFiles, "file", nil, "File the task is expected to touch (repeatable)")
	analyzeCmd.Flags().StringArrayVar(&analyzeImports, "import", nil, "Module the touched files import (repeatable)")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	text := strings.Join(args, " ")
	analysis := analyzer.Analyze(text, &analyzer.Context{
		Files:   analyzeFiles,
		Imports: analyzeImports,
	})

	fmt.Printf("Task: %s\n\n", text)
	fmt.Printf("  Complexity: %s\n", colorComplexity(analysis.Complexity))
	fmt.Printf("  Categories: %s\n", joinCategories(analysis.Categories))
	fmt.Printf("  Roles:      %s\n", joinTypes(analysis.RequiredAgentTypes))
	fmt.Printf("  Strategy:   %s (confidence %.2f)\n", color.CyanString(string(analysis.Strategy)), analysis.Confidence)
	fmt.Printf("  Risk:       %s\n", colorRisk(analysis.RiskLevel))
	fmt.Printf("  Estimate:   %d min, %.0f MB, %d CPU cores, ~%d API calls\n",
		analysis.EstimatedDurationMinutes,
		analysis.Resources.MemoryMB,
		analysis.Resources.CPUCores,
		analysis.Resources.APICalls)
	return nil
}

func colorComplexity(c float64) string {
	s := fmt.Sprintf("%.2f", c)
	switch {
	case c > 0.7:
		return color.RedString(s)
	case c > 0.4:
		return color.YellowString(s)
	default:
		return color.GreenString(s)
	}
}

func colorRisk(r models.RiskLevel) string {
	switch r {
	case models.RiskCritical, models.RiskHigh:
		return color.RedString(string(r))
	case models.RiskMedium:
		return color.YellowString(string(r))
	default:
		return color.GreenString(string(r))
	}
}

func joinCategories(categories []models.TaskCategory) string {
	parts := make([]string, len(categories))
	for i, c := range categories {
		parts[i] = string(c)
	}
	return strings.Join(parts, ", ")
}

func joinTypes(types []models.AgentType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
