// Package strategy implements the five coordination patterns that turn a
// task analysis into an executable plan: sequential, parallel, pipeline,
// hierarchical, and swarm. All of them share one step execution core with
// per-attempt timeouts, retry backoff, and recovery routing; they differ in
// how they derive structure from the plan's agents and in what order steps
// run.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/internal/recovery"
	"github.com/cohortlabs/cohort/pkg/models"
)

// ErrUnknownStrategy indicates a strategy kind with no registered implementation.
var ErrUnknownStrategy = errors.New("unknown strategy")

// ErrNoAgents indicates a plan was requested with an empty agent set.
var ErrNoAgents = errors.New("no agents supplied")

// Strategy is one coordination pattern. BuildPlan derives the step graph from
// the analysis and agents; Execute runs it. A strategy may refuse an analysis
// via CanHandle, in which case the caller substitutes the sequential pattern.
type Strategy interface {
	// Name returns the pattern this strategy implements.
	Name() models.StrategyKind
	// CanHandle reports whether the pattern can serve the analysis.
	CanHandle(analysis *models.TaskAnalysis) bool
	// ResourceRequirements projects the pattern's resource envelope, which
	// may exceed the analysis baseline for concurrent patterns.
	ResourceRequirements(analysis *models.TaskAnalysis) models.ResourceRequirements
	// BuildPlan derives the concrete step graph. A nil cfg uses the
	// strategy's own configuration.
	BuildPlan(planID string, analysis *models.TaskAnalysis, agents []*models.Agent, cfg *Config) (*models.CoordinationPlan, error)
	// Execute runs the plan to a terminal status and reports success.
	Execute(ctx context.Context, plan *models.CoordinationPlan, exec executor.Executor) (bool, error)
}

var debugEnabled = os.Getenv("COHORT_DEBUG") != ""

// debugLogf writes strategy diagnostics when COHORT_DEBUG is set.
func debugLogf(format string, args ...any) {
	if debugEnabled {
		log.Printf(format, args...)
	}
}

// base carries the machinery shared by every pattern.
type base struct {
	cfg  *Config
	errs *recovery.Handler
}

func newBase(cfg *Config, errs *recovery.Handler) base {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if errs == nil {
		errs = recovery.NewHandler()
	}
	return base{cfg: cfg, errs: errs}
}

// config returns the override when given, the strategy's own otherwise.
func (b *base) config(override *Config) *Config {
	if override != nil {
		return override
	}
	return b.cfg
}

// actionFor describes the work a role performs, used as the step action text.
func actionFor(t models.AgentType) string {
	switch t {
	case models.AgentTypeResearcher:
		return "gather context, prior art, and constraints for the task"
	case models.AgentTypePlanner:
		return "decompose the task and sequence the work"
	case models.AgentTypeArchitect:
		return "produce design specifications and interface contracts"
	case models.AgentTypeCoder:
		return "implement the required changes"
	case models.AgentTypeTester:
		return "write and run tests against the produced changes"
	case models.AgentTypeDebugger:
		return "isolate and fix defects surfaced during implementation"
	case models.AgentTypeReviewer:
		return "review the produced work and render a verdict"
	case models.AgentTypeDocumenter:
		return "document the produced changes"
	default:
		return "perform assigned work"
	}
}

// newStep builds one step bound to an agent with config-derived budgets.
// Step IDs are deterministic within a plan.
func newStep(planID string, index int, agent *models.Agent, cfg *Config) *models.CoordinationStep {
	return &models.CoordinationStep{
		ID:         fmt.Sprintf("%s-step-%02d", planID, index+1),
		AgentID:    agent.ID,
		AgentType:  agent.Type,
		Action:     actionFor(agent.Type),
		Status:     models.StepPending,
		MaxRetries: cfg.Retry.MaxRetries,
		Timeout:    cfg.TimeoutFor(agent.Type),
		Priority:   index,
	}
}

// attempt runs a single execution attempt under the step's timeout. The
// executor races the deadline: whichever finishes first wins, and a timed-out
// attempt is reported as an error so the retry loop can categorize it.
func attempt(ctx context.Context, step *models.CoordinationStep, agent *models.Agent, exec executor.Executor) (*executor.Result, error) {
	attemptCtx := ctx
	if step.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		defer cancel()
	}

	type runResult struct {
		res *executor.Result
		err error
	}
	ch := make(chan runResult, 1)
	go func() {
		res, err := exec.Run(attemptCtx, step, agent)
		ch <- runResult{res, err}
	}()

	select {
	case r := <-ch:
		return r.res, r.err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("step %s timeout after %s: %w", step.ID, step.Timeout, attemptCtx.Err())
	}
}

// runStep drives one step to a terminal status: execute, categorize failures
// through the recovery handler, retry with backoff while the budget and the
// recovery outcome allow, then optionally escalate to a fallback agent before
// failing. Returns true iff the step completed.
func (b *base) runStep(ctx context.Context, cfg *Config, plan *models.CoordinationPlan, step *models.CoordinationStep, exec executor.Executor, fallback *models.Agent) bool {
	agent := plan.AgentByID(step.AgentID)
	if agent == nil {
		_ = plan.MarkStepFailed(step.ID, fmt.Sprintf("no agent %s in plan", step.AgentID))
		return false
	}

	for {
		if plan.Cancelled() || ctx.Err() != nil {
			return false
		}

		_ = plan.SetStepStatus(step.ID, models.StepExecuting)
		agent.SetStatus(models.AgentWorking)

		res, err := attempt(ctx, step, agent, exec)
		if err == nil && res != nil && res.Success {
			_ = plan.MarkStepCompleted(step.ID, res.Outputs)
			agent.RecordOutcome(true)
			agent.SetStatus(models.AgentReady)
			return true
		}
		if plan.Cancelled() || ctx.Err() != nil {
			// External cancellation: leave the step for CancelRemaining.
			return false
		}
		if err == nil {
			err = fmt.Errorf("step %s reported unsuccessful result", step.ID)
		}

		outcome := b.errs.Handle(ctx, recovery.Categorize(err, "", step.ID))
		debugLogf("[strategy] step %s attempt failed (%s via %s): %v",
			step.ID, outcome.FallbackAction, outcome.Strategy, err)

		if outcome.Recovered && step.RetryCount < step.MaxRetries && !plan.Cancelled() && ctx.Err() == nil {
			_ = plan.MarkStepRetrying(step.ID, err.Error())
			select {
			case <-time.After(cfg.Retry.Delay(step.RetryCount)):
			case <-ctx.Done():
				return false
			}
			continue
		}

		if fallback != nil && fallback.ID != agent.ID && !plan.Cancelled() && ctx.Err() == nil {
			plan.AddWarning("step %s escalated from agent %s to %s", step.ID, agent.ID, fallback.ID)
			res, ferr := attempt(ctx, step, fallback, exec)
			if ferr == nil && res != nil && res.Success {
				_ = plan.MarkStepCompleted(step.ID, res.Outputs)
				fallback.RecordOutcome(true)
				agent.RecordOutcome(false)
				agent.SetStatus(models.AgentError)
				return true
			}
		}

		_ = plan.MarkStepFailed(step.ID, err.Error())
		agent.RecordOutcome(false)
		agent.SetStatus(models.AgentError)
		return false
	}
}

// abortOnFailure reports whether a failed step must cancel the rest of the
// plan under the failure policy.
func abortOnFailure(cfg *Config, step *models.CoordinationStep) bool {
	return cfg.Failure.StopOnFirstFailure || cfg.critical(step)
}

// finalize settles the plan's terminal status from its counters and reports
// success. Context cancellation cancels all remaining steps first.
func finalize(ctx context.Context, plan *models.CoordinationPlan) bool {
	if ctx.Err() != nil && !plan.AllStepsTerminal() {
		plan.CancelRemaining()
	}

	completed, failed := plan.Counts()
	switch {
	case plan.Cancelled():
		plan.SetStatus(models.PlanCancelled)
		return false
	case failed > 0 || completed < plan.TotalSteps():
		plan.SetStatus(models.PlanFailed)
		return false
	default:
		plan.SetStatus(models.PlanCompleted)
		return true
	}
}

// nowIfZero returns t unchanged unless it is the zero time.
func nowIfZero(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}

// forwardOutputs copies a completed step's outputs into the target step's
// inputs, namespaced by the producing step.
func forwardOutputs(plan *models.CoordinationPlan, fromStepID, toStepID string) {
	outputs := plan.StepOutputs(fromStepID)
	if len(outputs) == 0 {
		return
	}
	inputs := make(map[string]models.StepOutput, len(outputs))
	for name, out := range outputs {
		inputs[fromStepID+"/"+name] = out
	}
	_ = plan.AddStepInputs(toStepID, inputs)
}
