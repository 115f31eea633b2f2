package strategy

import (
	"context"
	"strings"
	"testing"

	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/pkg/models"
)

func TestBuildTree_Structure(t *testing.T) {
	types := []models.AgentType{
		models.AgentTypePlanner, models.AgentTypeArchitect, models.AgentTypeReviewer,
		models.AgentTypeCoder, models.AgentTypeDebugger, models.AgentTypeTester,
		models.AgentTypeResearcher, models.AgentTypeDocumenter,
	}
	agents := agentsOfTypes(types...)
	nodes := buildTree(agents)

	if len(nodes) != len(agents) {
		t.Fatalf("tree has %d nodes, want %d", len(nodes), len(agents))
	}

	// Exactly one root, and it is the planner.
	var roots []*hierarchyNode
	for _, node := range nodes {
		if node.parent == nil {
			roots = append(roots, node)
		}
	}
	if len(roots) != 1 {
		t.Fatalf("tree has %d roots, want 1", len(roots))
	}
	if roots[0].agent.Type != models.AgentTypePlanner {
		t.Errorf("root type = %s, want planner", roots[0].agent.Type)
	}

	// Acyclic: walking parent links from any node reaches the root without
	// revisiting a node.
	for _, node := range nodes {
		seen := map[string]bool{}
		for cur := node; cur != nil; cur = cur.parent {
			if seen[cur.agent.ID] {
				t.Fatalf("cycle through agent %s", cur.agent.ID)
			}
			seen[cur.agent.ID] = true
			if cur.parent != nil && cur.parent.level >= cur.level {
				t.Fatalf("parent of %s is not in a higher tier", cur.agent.ID)
			}
		}
	}
}

func TestBuildTree_PromotesWhenNoPlanner(t *testing.T) {
	types := []models.AgentType{
		models.AgentTypeArchitect, models.AgentTypeCoder, models.AgentTypeTester,
	}
	nodes := buildTree(agentsOfTypes(types...))

	var roots []*hierarchyNode
	for _, node := range nodes {
		if node.parent == nil {
			roots = append(roots, node)
		}
	}
	if len(roots) != 1 {
		t.Fatalf("tree has %d roots, want 1", len(roots))
	}
	if roots[0].agent.Type != models.AgentTypeArchitect {
		t.Errorf("promoted root type = %s, want architect", roots[0].agent.Type)
	}
}

func TestHierarchical_LevelsExecuteTopDown(t *testing.T) {
	cfg := testConfig()
	exec := executor.NewScriptedExecutor()
	h := NewHierarchical(cfg, testHandler())

	types := []models.AgentType{
		models.AgentTypePlanner, models.AgentTypeArchitect,
		models.AgentTypeCoder, models.AgentTypeTester, models.AgentTypeDocumenter,
	}
	agents := agentsOfTypes(types...)
	plan, err := h.BuildPlan("t1", analysisFor(0.8, models.StrategyHierarchical, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}

	ok, err := h.Execute(context.Background(), plan, exec)
	if err != nil || !ok {
		t.Fatalf("Execute() = (%v, %v), want success", ok, err)
	}
	if got := plan.Status(); got != models.PlanCompleted {
		t.Errorf("plan status = %s, want completed", got)
	}

	// The planner's step must start before every subordinate step.
	order := exec.Order()
	plannerFirst := false
	for _, step := range plan.Steps {
		if step.AgentType == models.AgentTypePlanner && len(order) > 0 && order[0] == step.ID {
			plannerFirst = true
		}
	}
	if !plannerFirst {
		t.Errorf("execution order = %v, want planner step first", order)
	}
}

func TestHierarchical_ParentResultsFeedSubordinates(t *testing.T) {
	cfg := testConfig()
	exec := executor.NewScriptedExecutor()
	h := NewHierarchical(cfg, testHandler())

	types := []models.AgentType{
		models.AgentTypePlanner, models.AgentTypeArchitect, models.AgentTypeCoder,
	}
	agents := agentsOfTypes(types...)
	plan, err := h.BuildPlan("t1", analysisFor(0.8, models.StrategyHierarchical, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}

	if ok, _ := h.Execute(context.Background(), plan, exec); !ok {
		t.Fatal("Execute() failed")
	}

	for _, step := range plan.Steps {
		if step.AgentType == models.AgentTypePlanner {
			continue
		}
		if len(step.Inputs) == 0 {
			t.Errorf("subordinate step %s (%s) received no parent inputs", step.ID, step.AgentType)
		}
	}
}

func TestHierarchical_EscalationRedelegates(t *testing.T) {
	cfg := testConfig()
	exec := executor.NewScriptedExecutor()
	h := NewHierarchical(cfg, testHandler())

	types := []models.AgentType{
		models.AgentTypePlanner, models.AgentTypeArchitect, models.AgentTypeCoder,
	}
	agents := agentsOfTypes(types...)
	plan, err := h.BuildPlan("t1", analysisFor(0.8, models.StrategyHierarchical, types...), agents, nil)
	if err != nil {
		t.Fatalf("BuildPlan() = %v", err)
	}

	var coderStep *models.CoordinationStep
	for _, step := range plan.Steps {
		if step.AgentType == models.AgentTypeCoder {
			coderStep = step
		}
	}
	// Exhaust the coder's own budget (initial attempt + retries), then let
	// the parent's re-delegated attempt succeed.
	exec.FailFirst(coderStep.ID, cfg.Retry.MaxRetries+1)

	ok, err := h.Execute(context.Background(), plan, exec)
	if err != nil || !ok {
		t.Fatalf("Execute() = (%v, %v), want success via escalation", ok, err)
	}
	if got := plan.StepStatusOf(coderStep.ID); got != models.StepCompleted {
		t.Errorf("escalated step = %s, want completed", got)
	}
	if got, want := exec.Attempts(coderStep.ID), cfg.Retry.MaxRetries+2; got != want {
		t.Errorf("Attempts = %d, want %d (own budget + one re-delegation)", got, want)
	}
	escalated := false
	for _, w := range plan.Warnings() {
		if strings.Contains(w, "escalated") {
			escalated = true
		}
	}
	if !escalated {
		t.Errorf("Warnings() = %v, want escalation notice", plan.Warnings())
	}
}
