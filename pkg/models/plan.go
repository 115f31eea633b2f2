package models

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrUnknownStep indicates a step ID was not found in the plan.
var ErrUnknownStep = errors.New("unknown step")

// StepStatus represents the lifecycle state of a coordination step.
type StepStatus string

const (
	// StepPending indicates the step is waiting on dependencies.
	StepPending StepStatus = "pending"
	// StepReady indicates all dependencies are satisfied.
	StepReady StepStatus = "ready"
	// StepExecuting indicates the step is running.
	StepExecuting StepStatus = "executing"
	// StepCompleted indicates the step finished successfully.
	StepCompleted StepStatus = "completed"
	// StepFailed indicates the step exhausted its retry budget.
	StepFailed StepStatus = "failed"
	// StepCancelled indicates the step was cancelled before completing.
	StepCancelled StepStatus = "cancelled"
	// StepRetryPending indicates the step failed and is waiting to retry.
	StepRetryPending StepStatus = "retry_pending"
)

// Valid returns true if the status is a known value.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepReady, StepExecuting, StepCompleted,
		StepFailed, StepCancelled, StepRetryPending:
		return true
	default:
		return false
	}
}

// Terminal returns true if the step will not transition further.
func (s StepStatus) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepCancelled
}

// PlanStatus represents the lifecycle state of a coordination plan.
type PlanStatus string

const (
	// PlanPlanning indicates the plan is being constructed.
	PlanPlanning PlanStatus = "planning"
	// PlanReady indicates the plan can be executed.
	PlanReady PlanStatus = "ready"
	// PlanExecuting indicates the plan is running.
	PlanExecuting PlanStatus = "executing"
	// PlanCompleted indicates every step completed.
	PlanCompleted PlanStatus = "completed"
	// PlanFailed indicates the plan had failures it could not tolerate.
	PlanFailed PlanStatus = "failed"
	// PlanCancelled indicates execution was cancelled.
	PlanCancelled PlanStatus = "cancelled"
	// PlanPaused indicates execution is temporarily suspended.
	PlanPaused PlanStatus = "paused"
)

// Valid returns true if the status is a known value.
func (s PlanStatus) Valid() bool {
	switch s {
	case PlanPlanning, PlanReady, PlanExecuting, PlanCompleted,
		PlanFailed, PlanCancelled, PlanPaused:
		return true
	default:
		return false
	}
}

// Terminal returns true if the plan will not transition further.
func (s PlanStatus) Terminal() bool {
	return s == PlanCompleted || s == PlanFailed || s == PlanCancelled
}

// OutputFormat tags the shape of a step output.
type OutputFormat string

const (
	// FormatText is free-form prose.
	FormatText OutputFormat = "text"
	// FormatCode is source code.
	FormatCode OutputFormat = "code"
	// FormatFiles is a list of created or modified file paths.
	FormatFiles OutputFormat = "files"
	// FormatReport is a structured findings report.
	FormatReport OutputFormat = "report"
	// FormatDecision is an approve/reject verdict.
	FormatDecision OutputFormat = "decision"
)

// Valid returns true if the format is a known value.
func (f OutputFormat) Valid() bool {
	switch f {
	case FormatText, FormatCode, FormatFiles, FormatReport, FormatDecision:
		return true
	default:
		return false
	}
}

// StepOutput is one tagged output produced by a step. The Format field
// selects which of the payload fields is meaningful; stage boundaries
// validate outputs before handing them to the next consumer.
type StepOutput struct {
	// Format tags which payload field carries the value.
	Format OutputFormat `json:"format"`
	// Text carries text, code, and report payloads.
	Text string `json:"text,omitempty"`
	// Files carries modified file paths for files payloads.
	Files []string `json:"files,omitempty"`
	// Fields carries key/value findings for report payloads.
	Fields map[string]string `json:"fields,omitempty"`
	// Approved carries the verdict for decision payloads.
	Approved bool `json:"approved,omitempty"`
	// ProducedBy is the ID of the step that produced this output.
	ProducedBy string `json:"produced_by,omitempty"`
}

// Validate checks that the output's format is known and that the payload
// matching the format is present.
func (o StepOutput) Validate() error {
	if !o.Format.Valid() {
		return fmt.Errorf("unknown output format %q", o.Format)
	}
	switch o.Format {
	case FormatText, FormatCode, FormatReport:
		if o.Text == "" && len(o.Fields) == 0 {
			return fmt.Errorf("%s output has no payload", o.Format)
		}
	case FormatFiles:
		if len(o.Files) == 0 {
			return errors.New("files output has no paths")
		}
	case FormatDecision:
		// A false verdict is a valid payload.
	}
	return nil
}

// CoordinationStep is one unit of delegated work bound to one agent.
// A step may only leave pending once every dependency is completed.
type CoordinationStep struct {
	// ID is the unique step identifier within a plan.
	ID string `json:"id"`
	// AgentID is the agent this step is assigned to.
	AgentID string `json:"agent_id"`
	// AgentType is the capability role required by this step.
	AgentType AgentType `json:"agent_type"`
	// Action describes the work to perform.
	Action string `json:"action"`
	// DependsOn lists step IDs that must complete first.
	DependsOn []string `json:"depends_on"`
	// Status is the step's lifecycle state.
	Status StepStatus `json:"status"`
	// RetryCount is the number of retries already consumed.
	RetryCount int `json:"retry_count"`
	// MaxRetries is the retry budget for this step.
	MaxRetries int `json:"max_retries"`
	// Timeout bounds a single execution attempt.
	Timeout time.Duration `json:"timeout"`
	// Priority orders steps within a group; lower runs earlier.
	Priority int `json:"priority"`
	// Critical marks steps whose failure aborts the rest of the plan.
	Critical bool `json:"critical"`
	// Inputs are outputs forwarded from completed dependencies.
	Inputs map[string]StepOutput `json:"inputs,omitempty"`
	// Outputs are what this step produced, keyed by output name.
	Outputs map[string]StepOutput `json:"outputs,omitempty"`
	// Error holds the final error message for failed steps.
	Error string `json:"error,omitempty"`
	// StartedAt is when the step first entered executing.
	StartedAt time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the step reached a terminal status.
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// CoordinationPlan is the concrete dependency graph of steps produced for
// one task under one strategy. All step transitions go through the plan so
// the completed/failed counters stay consistent with step state.
type CoordinationPlan struct {
	// ID is the unique plan identifier.
	ID string `json:"id"`
	// Strategy is the coordination pattern that built this plan.
	Strategy StrategyKind `json:"strategy"`
	// Analysis is a copy of the task analysis the plan was built from.
	Analysis TaskAnalysis `json:"analysis"`
	// Steps is the ordered list of coordination steps.
	Steps []*CoordinationStep `json:"steps"`
	// Agents are the capability holders assigned to this plan.
	Agents []*Agent `json:"agents"`
	// StartedAt is when execution began.
	StartedAt time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the plan reached a terminal status.
	CompletedAt time.Time `json:"completed_at,omitempty"`

	mu sync.RWMutex
	// status is the plan's lifecycle state.
	status PlanStatus
	// completedSteps counts steps that reached completed.
	completedSteps int
	// failedSteps counts steps that reached failed.
	failedSteps int
	// warnings accumulates non-fatal issues observed during execution.
	warnings []string
	// cancelled latches once CancelRemaining has run.
	cancelled bool
}

// NewPlan creates a plan in the planning state from an analysis, steps,
// and agents. Step statuses default to pending.
func NewPlan(id string, strategy StrategyKind, analysis TaskAnalysis, steps []*CoordinationStep, agents []*Agent) *CoordinationPlan {
	for _, s := range steps {
		if s.Status == "" {
			s.Status = StepPending
		}
	}
	return &CoordinationPlan{
		ID:       id,
		Strategy: strategy,
		Analysis: analysis,
		Steps:    steps,
		Agents:   agents,
		status:   PlanPlanning,
	}
}

// Status returns the plan's lifecycle state.
func (p *CoordinationPlan) Status() PlanStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.status
}

// SetStatus transitions the plan to the given state. Terminal states also
// record the completion timestamp.
func (p *CoordinationPlan) SetStatus(s PlanStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = s
	if s.Terminal() {
		p.CompletedAt = time.Now()
	}
}

// FinishedAt returns when the plan reached a terminal status, or the zero
// time if it has not.
func (p *CoordinationPlan) FinishedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.CompletedAt
}

// Cancelled reports whether CancelRemaining has run on this plan.
func (p *CoordinationPlan) Cancelled() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cancelled
}

// TotalSteps returns the number of steps in the plan.
func (p *CoordinationPlan) TotalSteps() int {
	return len(p.Steps)
}

// Counts returns the completed and failed step counters.
func (p *CoordinationPlan) Counts() (completed, failed int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.completedSteps, p.failedSteps
}

// Step returns the step with the given ID, or nil if not found.
func (p *CoordinationPlan) Step(id string) *CoordinationStep {
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// SetStepStatus transitions a step to a non-terminal status.
// Terminal transitions go through MarkStepCompleted, MarkStepFailed, or
// CancelRemaining so the counters stay consistent.
func (p *CoordinationPlan) SetStepStatus(stepID string, s StepStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := p.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}
	if step.Status.Terminal() || p.cancelled {
		return nil
	}
	if s == StepExecuting && step.StartedAt.IsZero() {
		step.StartedAt = time.Now()
	}
	step.Status = s
	return nil
}

// MarkStepCompleted records a successful step, storing its outputs and
// incrementing the completed counter.
func (p *CoordinationPlan) MarkStepCompleted(stepID string, outputs map[string]StepOutput) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := p.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}
	if step.Status.Terminal() {
		return nil
	}
	step.Status = StepCompleted
	step.Outputs = outputs
	step.CompletedAt = time.Now()
	p.completedSteps++
	return nil
}

// MarkStepRetrying records a failed attempt that will be retried: the retry
// counter increments and the step parks in retry_pending. Terminal steps and
// cancelled plans are left untouched.
func (p *CoordinationPlan) MarkStepRetrying(stepID, errMsg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := p.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}
	if step.Status.Terminal() || p.cancelled {
		return nil
	}
	step.RetryCount++
	step.Error = errMsg
	step.Status = StepRetryPending
	return nil
}

// MarkStepFailed records a step that exhausted its retry budget and
// increments the failed counter.
func (p *CoordinationPlan) MarkStepFailed(stepID string, errMsg string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := p.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}
	if step.Status.Terminal() {
		return nil
	}
	step.Status = StepFailed
	step.Error = errMsg
	step.CompletedAt = time.Now()
	p.failedSteps++
	return nil
}

// CancelRemaining transitions every non-terminal step to cancelled and
// latches the plan so no further work is admitted. Completed steps are
// never rolled back.
func (p *CoordinationPlan) CancelRemaining() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cancelled = true
	for _, s := range p.Steps {
		if !s.Status.Terminal() {
			s.Status = StepCancelled
			s.CompletedAt = time.Now()
		}
	}
}

// StepStatusOf returns the step's current status, or the zero value for an
// unknown step. Use this instead of reading the field when other goroutines
// may be transitioning the step.
func (p *CoordinationPlan) StepStatusOf(stepID string) StepStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if step := p.Step(stepID); step != nil {
		return step.Status
	}
	return ""
}

// StepOutputs returns a copy of the step's outputs.
func (p *CoordinationPlan) StepOutputs(stepID string) map[string]StepOutput {
	p.mu.RLock()
	defer p.mu.RUnlock()
	step := p.Step(stepID)
	if step == nil || step.Outputs == nil {
		return nil
	}
	out := make(map[string]StepOutput, len(step.Outputs))
	for k, v := range step.Outputs {
		out[k] = v
	}
	return out
}

// AddStepInputs merges the given outputs into the step's inputs, forwarding
// completed upstream work before the step runs.
func (p *CoordinationPlan) AddStepInputs(stepID string, inputs map[string]StepOutput) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	step := p.Step(stepID)
	if step == nil {
		return fmt.Errorf("%w: %s", ErrUnknownStep, stepID)
	}
	if step.Inputs == nil {
		step.Inputs = make(map[string]StepOutput, len(inputs))
	}
	for k, v := range inputs {
		step.Inputs[k] = v
	}
	return nil
}

// DependenciesMet reports whether every dependency of the step is completed.
func (p *CoordinationPlan) DependenciesMet(stepID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	step := p.Step(stepID)
	if step == nil {
		return false
	}
	for _, depID := range step.DependsOn {
		dep := p.Step(depID)
		if dep == nil || dep.Status != StepCompleted {
			return false
		}
	}
	return true
}

// AddWarning records a non-fatal issue observed during execution.
func (p *CoordinationPlan) AddWarning(format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

// Warnings returns a copy of the accumulated warnings.
func (p *CoordinationPlan) Warnings() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, len(p.warnings))
	copy(out, p.warnings)
	return out
}

// AllStepsTerminal reports whether every step reached a terminal status.
func (p *CoordinationPlan) AllStepsTerminal() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, s := range p.Steps {
		if !s.Status.Terminal() {
			return false
		}
	}
	return true
}

// AgentByID returns the plan agent with the given ID, or nil.
func (p *CoordinationPlan) AgentByID(id string) *Agent {
	for _, a := range p.Agents {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// AgentByType returns the first plan agent of the given type, or nil.
func (p *CoordinationPlan) AgentByType(t AgentType) *Agent {
	for _, a := range p.Agents {
		if a.Type == t {
			return a
		}
	}
	return nil
}
