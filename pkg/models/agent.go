package models

import (
	"sync"
	"time"
)

// successRateAlpha is the exponential moving average weight applied to each
// new outcome when updating an agent's success rate.
const successRateAlpha = 0.1

// AgentStatus represents the lifecycle state of an agent.
type AgentStatus string

const (
	// AgentInitializing indicates the agent is being set up.
	AgentInitializing AgentStatus = "initializing"
	// AgentReady indicates the agent can accept a step.
	AgentReady AgentStatus = "ready"
	// AgentWorking indicates the agent is executing a step.
	AgentWorking AgentStatus = "working"
	// AgentWaiting indicates the agent is blocked on input from another agent.
	AgentWaiting AgentStatus = "waiting"
	// AgentError indicates the agent's last step failed.
	AgentError AgentStatus = "error"
	// AgentCompleted indicates the agent finished all assigned work.
	AgentCompleted AgentStatus = "completed"
	// AgentTerminated indicates the agent was released at task end.
	AgentTerminated AgentStatus = "terminated"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentInitializing, AgentReady, AgentWorking, AgentWaiting,
		AgentError, AgentCompleted, AgentTerminated:
		return true
	default:
		return false
	}
}

// Terminal returns true if the agent will not execute further steps.
func (s AgentStatus) Terminal() bool {
	return s == AgentCompleted || s == AgentTerminated
}

// Agent is a capability holder to which coordination steps are assigned.
// Agents are owned by the orchestrator for the duration of one task and are
// terminated at task end regardless of outcome.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Type is the capability role this agent holds.
	Type AgentType `json:"type"`
	// Capabilities lists what this agent can do, used in step descriptions.
	Capabilities []string `json:"capabilities"`
	// CreatedAt is when the agent was created.
	CreatedAt time.Time `json:"created_at"`

	mu sync.Mutex
	// status is the current lifecycle state.
	status AgentStatus
	// successRate is an exponential moving average of step outcomes.
	successRate float64
	// outcomes counts recorded step outcomes.
	outcomes int
}

// NewAgent creates an agent of the given type in the initializing state.
func NewAgent(id string, t AgentType, capabilities []string) *Agent {
	return &Agent{
		ID:           id,
		Type:         t,
		Capabilities: capabilities,
		CreatedAt:    time.Now(),
		status:       AgentInitializing,
		successRate:  1.0,
	}
}

// Status returns the agent's current lifecycle state.
func (a *Agent) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// SetStatus transitions the agent to the given state.
func (a *Agent) SetStatus(s AgentStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// RecordOutcome folds one step outcome into the agent's success rate using
// an exponential moving average.
func (a *Agent) RecordOutcome(success bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sample := 0.0
	if success {
		sample = 1.0
	}
	a.successRate = a.successRate*(1-successRateAlpha) + sample*successRateAlpha
	a.outcomes++
}

// SuccessRate returns the agent's rolling success rate in [0,1].
func (a *Agent) SuccessRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.successRate
}

// Outcomes returns the number of recorded step outcomes.
func (a *Agent) Outcomes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcomes
}
