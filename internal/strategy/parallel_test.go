package strategy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/pkg/models"
)

func TestParallel_PoolBound(t *testing.T) {
	cfg := testConfig()
	cfg.Limits.MaxConcurrentAgents = 2
	exec := executor.NewScriptedExecutor()
	exec.SetDelay(30 * time.Millisecond)
	par := NewParallel(cfg, testHandler())

	// Five coders all land in the implementation group and compete for the
	// two pool slots.
	types := []models.AgentType{
		models.AgentTypeCoder, models.AgentTypeCoder, models.AgentTypeCoder,
		models.AgentTypeCoder, models.AgentTypeCoder,
	}
	agents := agentsOfTypes(types...)
	plan, err := par.BuildPlan("t1", analysisFor(0.5, models.StrategyParallel, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}

	ok, err := par.Execute(context.Background(), plan, exec)
	if err != nil || !ok {
		t.Fatalf("Execute() = (%v, %v), want success", ok, err)
	}
	if got := exec.MaxConcurrent(); got > 2 {
		t.Errorf("MaxConcurrent = %d, want <= 2", got)
	}
	completed, _ := plan.Counts()
	if completed != 5 {
		t.Errorf("completed = %d, want 5", completed)
	}
}

func TestParallel_GroupOrdering(t *testing.T) {
	cfg := testConfig()
	exec := executor.NewScriptedExecutor()
	par := NewParallel(cfg, testHandler())

	types := []models.AgentType{
		models.AgentTypeCoder, models.AgentTypeTester,
		models.AgentTypeResearcher, models.AgentTypeDocumenter,
	}
	agents := agentsOfTypes(types...)
	plan, err := par.BuildPlan("t1", analysisFor(0.5, models.StrategyParallel, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}

	if ok, _ := par.Execute(context.Background(), plan, exec); !ok {
		t.Fatal("Execute() failed")
	}

	// Groups must start in order: analysis, implementation, qa, docs.
	groupOf := func(stepID string) string {
		for _, step := range plan.Steps {
			if step.ID != stepID {
				continue
			}
			switch step.AgentType {
			case models.AgentTypeResearcher, models.AgentTypePlanner:
				return groupAnalysis
			case models.AgentTypeCoder, models.AgentTypeDebugger:
				return groupImplementation
			case models.AgentTypeTester, models.AgentTypeReviewer:
				return groupQA
			default:
				return groupDocs
			}
		}
		return ""
	}

	rank := map[string]int{groupAnalysis: 0, groupImplementation: 1, groupQA: 2, groupDocs: 3}
	last := -1
	for _, stepID := range exec.Order() {
		r := rank[groupOf(stepID)]
		if r < last {
			t.Fatalf("execution order crossed group boundary backwards: %v", exec.Order())
		}
		last = r
	}
}

func TestParallel_DownstreamReceivesUpstreamOutputs(t *testing.T) {
	cfg := testConfig()
	exec := executor.NewScriptedExecutor()
	par := NewParallel(cfg, testHandler())

	types := []models.AgentType{models.AgentTypeResearcher, models.AgentTypeCoder}
	agents := agentsOfTypes(types...)
	plan, err := par.BuildPlan("t1", analysisFor(0.5, models.StrategyParallel, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}

	if ok, _ := par.Execute(context.Background(), plan, exec); !ok {
		t.Fatal("Execute() failed")
	}

	coderStep := plan.Steps[1]
	if coderStep.AgentType != models.AgentTypeCoder {
		t.Fatalf("unexpected step layout: %s", coderStep.AgentType)
	}
	if len(coderStep.Inputs) == 0 {
		t.Error("implementation step received no inputs from the analysis group")
	}
}

func TestParallel_ArtifactConflictDetection(t *testing.T) {
	cfg := testConfig()
	exec := executor.NewScriptedExecutor()
	par := NewParallel(cfg, testHandler())

	types := []models.AgentType{models.AgentTypeCoder, models.AgentTypeCoder}
	agents := agentsOfTypes(types...)
	plan, err := par.BuildPlan("t1", analysisFor(0.5, models.StrategyParallel, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}

	// Both coders report writing the same file.
	for _, step := range plan.Steps {
		exec.SetResult(step.ID, &executor.Result{
			Success: true,
			Outputs: map[string]models.StepOutput{
				"changes": {
					Format:     models.FormatFiles,
					Files:      []string{"main.go"},
					ProducedBy: step.ID,
				},
			},
		})
	}

	if ok, _ := par.Execute(context.Background(), plan, exec); !ok {
		t.Fatal("Execute() failed under failure isolation")
	}

	warned := false
	for _, w := range plan.Warnings() {
		if strings.Contains(w, "main.go") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("Warnings() = %v, want a conflict warning naming main.go", plan.Warnings())
	}
}

func TestParallel_ConflictFailsClosedWithoutIsolation(t *testing.T) {
	cfg := testConfig()
	cfg.Failure.IsolateFailures = false
	exec := executor.NewScriptedExecutor()
	par := NewParallel(cfg, testHandler())

	types := []models.AgentType{
		models.AgentTypeCoder, models.AgentTypeCoder, models.AgentTypeTester,
	}
	agents := agentsOfTypes(types...)
	plan, err := par.BuildPlan("t1", analysisFor(0.5, models.StrategyParallel, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}
	for _, step := range plan.Steps[:2] {
		exec.SetResult(step.ID, &executor.Result{
			Success: true,
			Outputs: map[string]models.StepOutput{
				"changes": {Format: models.FormatFiles, Files: []string{"main.go"}, ProducedBy: step.ID},
			},
		})
	}

	ok, _ := par.Execute(context.Background(), plan, exec)
	if ok {
		t.Fatal("Execute() succeeded despite unresolved conflict")
	}
	if got := plan.StepStatusOf(plan.Steps[2].ID); got != models.StepCancelled {
		t.Errorf("qa step = %s, want cancelled after conflict", got)
	}
}
