package strategy

import (
	"context"
	"testing"

	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/pkg/models"
)

func TestSequential_RolePriorityOrdering(t *testing.T) {
	cfg := testConfig()
	exec := executor.NewScriptedExecutor()
	seq := NewSequential(cfg, testHandler())

	// Deliberately shuffled input order.
	types := []models.AgentType{
		models.AgentTypeTester, models.AgentTypeCoder,
		models.AgentTypeResearcher, models.AgentTypePlanner,
	}
	agents := agentsOfTypes(types...)
	plan, err := seq.BuildPlan("t1", analysisFor(0.4, models.StrategySequential, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}

	wantOrder := []models.AgentType{
		models.AgentTypeResearcher, models.AgentTypePlanner,
		models.AgentTypeCoder, models.AgentTypeTester,
	}
	for i, step := range plan.Steps {
		if step.AgentType != wantOrder[i] {
			t.Fatalf("step %d type = %s, want %s", i, step.AgentType, wantOrder[i])
		}
	}
	// Each step depends on exactly the previous one.
	for i, step := range plan.Steps {
		if i == 0 {
			if len(step.DependsOn) != 0 {
				t.Errorf("first step DependsOn = %v, want none", step.DependsOn)
			}
			continue
		}
		if len(step.DependsOn) != 1 || step.DependsOn[0] != plan.Steps[i-1].ID {
			t.Errorf("step %d DependsOn = %v, want [%s]", i, step.DependsOn, plan.Steps[i-1].ID)
		}
	}

	ok, err := seq.Execute(context.Background(), plan, exec)
	if err != nil || !ok {
		t.Fatalf("Execute() = (%v, %v), want success", ok, err)
	}

	order := exec.Order()
	if len(order) != len(plan.Steps) {
		t.Fatalf("executed %d steps, want %d", len(order), len(plan.Steps))
	}
	for i, stepID := range order {
		if stepID != plan.Steps[i].ID {
			t.Fatalf("execution order = %v, want plan order", order)
		}
	}
	if got := plan.Status(); got != models.PlanCompleted {
		t.Errorf("plan status = %s, want completed", got)
	}
}

func TestSequential_OutputForwarding(t *testing.T) {
	cfg := testConfig()
	exec := executor.NewScriptedExecutor()
	seq := NewSequential(cfg, testHandler())

	types := []models.AgentType{models.AgentTypeCoder, models.AgentTypeTester}
	agents := agentsOfTypes(types...)
	plan, err := seq.BuildPlan("t1", analysisFor(0.3, models.StrategySequential, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}

	if ok, _ := seq.Execute(context.Background(), plan, exec); !ok {
		t.Fatal("Execute() failed")
	}

	second := plan.Steps[1]
	if len(second.Inputs) == 0 {
		t.Fatal("second step received no forwarded inputs")
	}
	for key, in := range second.Inputs {
		if in.ProducedBy != plan.Steps[0].ID {
			t.Errorf("input %s produced by %s, want %s", key, in.ProducedBy, plan.Steps[0].ID)
		}
	}
}

func TestSequential_CriticalFailureAborts(t *testing.T) {
	cfg := testConfig()
	exec := executor.NewScriptedExecutor()
	seq := NewSequential(cfg, testHandler())

	types := []models.AgentType{models.AgentTypeCoder, models.AgentTypeTester, models.AgentTypeDocumenter}
	agents := agentsOfTypes(types...)
	plan, err := seq.BuildPlan("t1", analysisFor(0.3, models.StrategySequential, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}
	plan.Steps[0].Critical = true
	exec.FailStep(plan.Steps[0].ID)

	ok, _ := seq.Execute(context.Background(), plan, exec)
	if ok {
		t.Fatal("Execute() succeeded, want abort")
	}
	if got := plan.Status(); got != models.PlanCancelled {
		t.Errorf("plan status = %s, want cancelled", got)
	}
	if got := plan.StepStatusOf(plan.Steps[1].ID); got != models.StepCancelled {
		t.Errorf("second step = %s, want cancelled", got)
	}
	if got := plan.StepStatusOf(plan.Steps[2].ID); got != models.StepCancelled {
		t.Errorf("third step = %s, want cancelled", got)
	}
}

func TestSequential_ToleratedFailureContinues(t *testing.T) {
	cfg := testConfig()
	exec := executor.NewScriptedExecutor()
	seq := NewSequential(cfg, testHandler())

	types := []models.AgentType{models.AgentTypeCoder, models.AgentTypeTester}
	agents := agentsOfTypes(types...)
	plan, err := seq.BuildPlan("t1", analysisFor(0.3, models.StrategySequential, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}
	exec.FailStep(plan.Steps[0].ID)

	ok, _ := seq.Execute(context.Background(), plan, exec)
	if ok {
		t.Fatal("Execute() reported success with a failed step")
	}
	// Under failure isolation the second step still runs.
	if got := plan.StepStatusOf(plan.Steps[1].ID); got != models.StepCompleted {
		t.Errorf("second step = %s, want completed", got)
	}
	if got := plan.Status(); got != models.PlanFailed {
		t.Errorf("plan status = %s, want failed", got)
	}
	if len(plan.Warnings()) == 0 {
		t.Error("expected a warning about the tolerated failure")
	}
}
