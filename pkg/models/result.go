package models

import "time"

// OrchestrationMode controls how much work the orchestrator performs
// per incoming task.
type OrchestrationMode string

const (
	// ModeDisabled makes every task a no-op success.
	ModeDisabled OrchestrationMode = "disabled"
	// ModeAnalysisOnly runs the analyzer and never builds a plan.
	ModeAnalysisOnly OrchestrationMode = "analysis_only"
	// ModeSingleAgentFallback skips orchestration and reports fallback.
	ModeSingleAgentFallback OrchestrationMode = "single_agent_fallback"
	// ModeFullOrchestration always builds and executes a plan.
	ModeFullOrchestration OrchestrationMode = "full_orchestration"
	// ModeAdaptive orchestrates only when the task warrants it.
	ModeAdaptive OrchestrationMode = "adaptive"
)

// Valid returns true if the mode is a known value.
func (m OrchestrationMode) Valid() bool {
	switch m {
	case ModeDisabled, ModeAnalysisOnly, ModeSingleAgentFallback,
		ModeFullOrchestration, ModeAdaptive:
		return true
	default:
		return false
	}
}

// OrchestrationState is the per-task control loop state.
type OrchestrationState string

const (
	// StateInitializing indicates the task was accepted.
	StateInitializing OrchestrationState = "initializing"
	// StateCreatingAgents indicates capability holders are being acquired.
	StateCreatingAgents OrchestrationState = "creating_agents"
	// StatePlanning indicates a plan is being built.
	StatePlanning OrchestrationState = "planning"
	// StateExecuting indicates the plan is running.
	StateExecuting OrchestrationState = "executing"
	// StateCompleted indicates the task finished successfully.
	StateCompleted OrchestrationState = "completed"
	// StateFailed indicates the task finished unsuccessfully.
	StateFailed OrchestrationState = "failed"
	// StateCancelled indicates the task was cancelled.
	StateCancelled OrchestrationState = "cancelled"
)

// Valid returns true if the state is a known value.
func (s OrchestrationState) Valid() bool {
	switch s {
	case StateInitializing, StateCreatingAgents, StatePlanning,
		StateExecuting, StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the task will not transition further.
func (s OrchestrationState) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// OrchestrationResult is the outcome of one orchestrated task.
type OrchestrationResult struct {
	// TaskID identifies the orchestration task.
	TaskID string `json:"task_id"`
	// Success reports whether the task succeeded.
	Success bool `json:"success"`
	// Mode is the operating mode the task ran under.
	Mode OrchestrationMode `json:"mode"`
	// Strategy is the coordination pattern that executed, if any.
	Strategy StrategyKind `json:"strategy,omitempty"`
	// Analysis is the task analysis, present unless mode is disabled.
	Analysis *TaskAnalysis `json:"analysis,omitempty"`
	// PlanID is the executed plan's ID, if a plan was built.
	PlanID string `json:"plan_id,omitempty"`
	// AgentCount is the number of agents acquired for the task.
	AgentCount int `json:"agent_count"`
	// FallbackUsed reports whether the single-agent fallback path ran.
	FallbackUsed bool `json:"fallback_used"`
	// Error holds a human-readable failure description.
	Error string `json:"error,omitempty"`
	// Warnings accumulates non-fatal issues from the run.
	Warnings []string `json:"warnings,omitempty"`
	// Duration is the wall-clock time of the task.
	Duration time.Duration `json:"duration"`
}

// OrchestrationTask is the public status surface for one in-flight or
// finished task.
type OrchestrationTask struct {
	// ID identifies the task.
	ID string `json:"id"`
	// Text is the original task description.
	Text string `json:"text"`
	// State is the control loop state.
	State OrchestrationState `json:"state"`
	// Mode is the operating mode the task runs under.
	Mode OrchestrationMode `json:"mode"`
	// PlanID is the associated plan, if one was built.
	PlanID string `json:"plan_id,omitempty"`
	// Result holds the outcome once the task is terminal.
	Result *OrchestrationResult `json:"result,omitempty"`
	// CreatedAt is when the task was accepted.
	CreatedAt time.Time `json:"created_at"`
}
