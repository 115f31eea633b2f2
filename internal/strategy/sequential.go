package strategy

import (
	"context"
	"fmt"

	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/internal/recovery"
	"github.com/cohortlabs/cohort/pkg/models"
)

// rolePriority fixes the execution order of roles in sequential plans:
// context gathering first, verdicts and documentation last.
var rolePriority = []models.AgentType{
	models.AgentTypeResearcher,
	models.AgentTypePlanner,
	models.AgentTypeArchitect,
	models.AgentTypeCoder,
	models.AgentTypeTester,
	models.AgentTypeDebugger,
	models.AgentTypeReviewer,
	models.AgentTypeDocumenter,
}

// orderAgents sorts agents by role priority, preserving the incoming order
// within a role. Unknown roles sort last.
func orderAgents(agents []*models.Agent) []*models.Agent {
	rank := make(map[models.AgentType]int, len(rolePriority))
	for i, t := range rolePriority {
		rank[t] = i
	}
	rankOf := func(t models.AgentType) int {
		if r, ok := rank[t]; ok {
			return r
		}
		return len(rolePriority)
	}

	out := make([]*models.Agent, len(agents))
	copy(out, agents)
	// Insertion sort keeps the order stable without pulling in sort.SliceStable
	// machinery for what is always a handful of agents.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && rankOf(out[j].Type) < rankOf(out[j-1].Type); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// Sequential chains one step per agent in role priority order, forwarding
// each step's outputs to the next. It is the universal fallback: it can
// handle any analysis.
type Sequential struct {
	base
}

// NewSequential creates the sequential pattern.
func NewSequential(cfg *Config, errs *recovery.Handler) *Sequential {
	return &Sequential{base: newBase(cfg, errs)}
}

// Name implements Strategy.
func (s *Sequential) Name() models.StrategyKind { return models.StrategySequential }

// CanHandle implements Strategy: sequential never refuses.
func (s *Sequential) CanHandle(analysis *models.TaskAnalysis) bool { return true }

// ResourceRequirements implements Strategy: one agent runs at a time, so the
// analysis baseline holds.
func (s *Sequential) ResourceRequirements(analysis *models.TaskAnalysis) models.ResourceRequirements {
	return analysis.Resources
}

// BuildPlan implements Strategy.
func (s *Sequential) BuildPlan(planID string, analysis *models.TaskAnalysis, agents []*models.Agent, cfg *Config) (*models.CoordinationPlan, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w for plan %s", ErrNoAgents, planID)
	}
	c := s.config(cfg)

	ordered := orderAgents(agents)
	steps := make([]*models.CoordinationStep, len(ordered))
	for i, agent := range ordered {
		step := newStep(planID, i, agent, c)
		if i > 0 {
			step.DependsOn = []string{steps[i-1].ID}
		}
		steps[i] = step
	}
	return models.NewPlan(planID, models.StrategySequential, *analysis, steps, agents), nil
}

// Execute implements Strategy: steps run strictly in order, each receiving
// the previous step's outputs. A critical failure (or any failure under
// StopOnFirstFailure) cancels the remainder.
func (s *Sequential) Execute(ctx context.Context, plan *models.CoordinationPlan, exec executor.Executor) (bool, error) {
	cfg := s.cfg
	plan.StartedAt = nowIfZero(plan.StartedAt)
	plan.SetStatus(models.PlanExecuting)

	for i, step := range plan.Steps {
		if plan.Cancelled() || ctx.Err() != nil {
			break
		}
		if !plan.DependenciesMet(step.ID) {
			_ = plan.MarkStepFailed(step.ID, "dependencies not completed")
			if abortOnFailure(cfg, step) {
				plan.CancelRemaining()
			}
			continue
		}

		if ok := s.runStep(ctx, cfg, plan, step, exec, nil); ok {
			if i+1 < len(plan.Steps) {
				forwardOutputs(plan, step.ID, plan.Steps[i+1].ID)
			}
			continue
		}

		if abortOnFailure(cfg, step) {
			plan.CancelRemaining()
			break
		}
		// Tolerated failure: the next step loses its dependency and will be
		// marked failed by the dependency check unless failures are isolated.
		if cfg.Failure.IsolateFailures && i+1 < len(plan.Steps) {
			next := plan.Steps[i+1]
			next.DependsOn = removeDep(next.DependsOn, step.ID)
			plan.AddWarning("step %s failed; continuing without its output", step.ID)
		}
	}

	return finalize(ctx, plan), nil
}

// removeDep returns deps without the given step ID.
func removeDep(deps []string, stepID string) []string {
	out := deps[:0]
	for _, d := range deps {
		if d != stepID {
			out = append(out, d)
		}
	}
	return out
}
