package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/internal/recovery"
	"github.com/cohortlabs/cohort/pkg/models"
)

// Parallel group names in execution order.
const (
	groupAnalysis       = "analysis"
	groupArchitecture   = "architecture"
	groupImplementation = "implementation"
	groupQA             = "qa"
	groupDocs           = "docs"
)

// parallelGroupOrder fixes the execution order of groups; groups with no
// agents are skipped.
var parallelGroupOrder = []struct {
	name  string
	types []models.AgentType
}{
	{groupAnalysis, []models.AgentType{models.AgentTypeResearcher, models.AgentTypePlanner}},
	{groupArchitecture, []models.AgentType{models.AgentTypeArchitect}},
	{groupImplementation, []models.AgentType{models.AgentTypeCoder, models.AgentTypeDebugger}},
	{groupQA, []models.AgentType{models.AgentTypeTester, models.AgentTypeReviewer}},
	{groupDocs, []models.AgentType{models.AgentTypeDocumenter}},
}

// stepGroup is one batch of steps that may run concurrently.
type stepGroup struct {
	name  string
	steps []*models.CoordinationStep
}

// Parallel runs steps in five ordered groups. Steps inside a group run
// concurrently under a FIFO semaphore capped at MaxConcurrentAgents; each
// group waits for the previous one. After a group completes, file artifacts
// reported by its steps are checked for conflicts.
type Parallel struct {
	base
}

// NewParallel creates the parallel pattern.
func NewParallel(cfg *Config, errs *recovery.Handler) *Parallel {
	return &Parallel{base: newBase(cfg, errs)}
}

// Name implements Strategy.
func (p *Parallel) Name() models.StrategyKind { return models.StrategyParallel }

// CanHandle implements Strategy: parallelism needs at least two roles.
func (p *Parallel) CanHandle(analysis *models.TaskAnalysis) bool {
	return len(analysis.RequiredAgentTypes) >= 2
}

// ResourceRequirements implements Strategy: concurrent agents multiply the
// memory baseline up to the configured pool size.
func (p *Parallel) ResourceRequirements(analysis *models.TaskAnalysis) models.ResourceRequirements {
	r := analysis.Resources
	pool := p.cfg.CurrentLimits().MaxConcurrentAgents
	if n := len(analysis.RequiredAgentTypes); n < pool {
		pool = n
	}
	if pool > 1 {
		r.MemoryMB *= float64(pool)
	}
	return r
}

// BuildPlan implements Strategy: one step per agent, grouped by role, with
// each group depending on every step of the previous non-empty group.
func (p *Parallel) BuildPlan(planID string, analysis *models.TaskAnalysis, agents []*models.Agent, cfg *Config) (*models.CoordinationPlan, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w for plan %s", ErrNoAgents, planID)
	}
	c := p.config(cfg)

	var steps []*models.CoordinationStep
	var prevGroup []*models.CoordinationStep
	index := 0
	for _, g := range parallelGroupOrder {
		var group []*models.CoordinationStep
		for _, t := range g.types {
			for _, agent := range agents {
				if agent.Type != t {
					continue
				}
				step := newStep(planID, index, agent, c)
				for _, dep := range prevGroup {
					step.DependsOn = append(step.DependsOn, dep.ID)
				}
				group = append(group, step)
				steps = append(steps, step)
				index++
			}
		}
		if len(group) > 0 {
			prevGroup = group
		}
	}
	return models.NewPlan(planID, models.StrategyParallel, *analysis, steps, agents), nil
}

// groupsOf re-derives the execution groups from the plan's steps. The
// grouping is a pure function of agent types, so BuildPlan and Execute always
// agree.
func groupsOf(plan *models.CoordinationPlan) []stepGroup {
	var groups []stepGroup
	for _, g := range parallelGroupOrder {
		var group []*models.CoordinationStep
		for _, step := range plan.Steps {
			for _, t := range g.types {
				if step.AgentType == t {
					group = append(group, step)
					break
				}
			}
		}
		if len(group) > 0 {
			groups = append(groups, stepGroup{name: g.name, steps: group})
		}
	}
	return groups
}

// Execute implements Strategy.
func (p *Parallel) Execute(ctx context.Context, plan *models.CoordinationPlan, exec executor.Executor) (bool, error) {
	cfg := p.cfg
	plan.StartedAt = nowIfZero(plan.StartedAt)
	plan.SetStatus(models.PlanExecuting)

	sem := NewSemaphore(cfg.CurrentLimits().MaxConcurrentAgents)
	var prevGroup []*models.CoordinationStep

	for _, group := range groupsOf(plan) {
		if plan.Cancelled() || ctx.Err() != nil {
			break
		}

		// Forward the previous group's outputs before this group starts.
		for _, prev := range prevGroup {
			if plan.StepStatusOf(prev.ID) != models.StepCompleted {
				continue
			}
			for _, step := range group.steps {
				forwardOutputs(plan, prev.ID, step.ID)
			}
		}

		var wg sync.WaitGroup
		var abort bool
		var abortMu sync.Mutex

		for _, step := range group.steps {
			if !plan.DependenciesMet(step.ID) && !cfg.Failure.IsolateFailures {
				_ = plan.MarkStepFailed(step.ID, "dependencies not completed")
				continue
			}
			wg.Add(1)
			go func(step *models.CoordinationStep) {
				defer wg.Done()
				if err := sem.Acquire(ctx); err != nil {
					return
				}
				defer sem.Release()

				if ok := p.runStep(ctx, cfg, plan, step, exec, nil); !ok {
					if abortOnFailure(cfg, step) {
						abortMu.Lock()
						abort = true
						abortMu.Unlock()
					}
				}
			}(step)
		}
		wg.Wait()

		if conflicts := artifactConflicts(plan, group.steps); len(conflicts) > 0 {
			for _, path := range conflicts {
				plan.AddWarning("group %s: conflicting writes to %s", group.name, path)
			}
			if !cfg.Failure.IsolateFailures {
				plan.CancelRemaining()
				break
			}
		}

		if abort || (cfg.Failure.StopOnFirstFailure && failedAny(plan, group.steps)) {
			plan.CancelRemaining()
			break
		}
		prevGroup = group.steps
	}

	return finalize(ctx, plan), nil
}

// artifactConflicts returns file paths reported by more than one completed
// step in the group.
func artifactConflicts(plan *models.CoordinationPlan, steps []*models.CoordinationStep) []string {
	seen := make(map[string]string)
	var conflicts []string
	for _, step := range steps {
		for _, out := range plan.StepOutputs(step.ID) {
			if out.Format != models.FormatFiles {
				continue
			}
			for _, path := range out.Files {
				if owner, dup := seen[path]; dup && owner != step.ID {
					conflicts = append(conflicts, path)
					continue
				}
				seen[path] = step.ID
			}
		}
	}
	return conflicts
}

// failedAny reports whether any of the steps failed.
func failedAny(plan *models.CoordinationPlan, steps []*models.CoordinationStep) bool {
	for _, step := range steps {
		if plan.StepStatusOf(step.ID) == models.StepFailed {
			return true
		}
	}
	return false
}
