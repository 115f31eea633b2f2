package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cohortlabs/cohort/pkg/models"
)

// ScriptedExecutor is a deterministic Executor for tests and dry runs.
// By default every step succeeds with a text output describing the action.
// Individual steps can be scripted to fail, fail a number of times before
// succeeding, or block until the context is cancelled.
type ScriptedExecutor struct {
	mu sync.Mutex
	// failAlways lists step IDs that always fail.
	failAlways map[string]bool
	// failFirst maps step ID to the number of attempts that fail before
	// the step starts succeeding.
	failFirst map[string]int
	// hang lists step IDs that block until the context is done.
	hang map[string]bool
	// results maps step ID to a scripted result returned on success.
	results map[string]*Result
	// delay is an optional fixed latency applied to every attempt.
	delay time.Duration
	// attempts counts Run calls per step ID.
	attempts map[string]int
	// running tracks how many Run calls are currently in flight.
	running int
	// maxRunning records the highest observed concurrent Run count.
	maxRunning int
	// order records step IDs in the order their attempts started.
	order []string
}

// NewScriptedExecutor returns an executor where every step succeeds.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{
		failAlways: make(map[string]bool),
		failFirst:  make(map[string]int),
		hang:       make(map[string]bool),
		results:    make(map[string]*Result),
		attempts:   make(map[string]int),
	}
}

// FailStep scripts the step to fail on every attempt.
func (e *ScriptedExecutor) FailStep(stepID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failAlways[stepID] = true
}

// FailFirst scripts the step to fail its first n attempts, then succeed.
func (e *ScriptedExecutor) FailFirst(stepID string, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failFirst[stepID] = n
}

// HangStep scripts the step to block until its context is cancelled.
func (e *ScriptedExecutor) HangStep(stepID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hang[stepID] = true
}

// SetResult scripts the result a successful attempt of the step returns.
func (e *ScriptedExecutor) SetResult(stepID string, res *Result) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[stepID] = res
}

// SetDelay applies a fixed latency to every attempt.
func (e *ScriptedExecutor) SetDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.delay = d
}

// Attempts returns how many times the step was attempted.
func (e *ScriptedExecutor) Attempts(stepID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[stepID]
}

// MaxConcurrent returns the highest number of simultaneous Run calls seen.
func (e *ScriptedExecutor) MaxConcurrent() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxRunning
}

// Order returns step IDs in the order their attempts started.
func (e *ScriptedExecutor) Order() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// Run implements Executor.
func (e *ScriptedExecutor) Run(ctx context.Context, step *models.CoordinationStep, agent *models.Agent) (*Result, error) {
	e.mu.Lock()
	e.attempts[step.ID]++
	attempt := e.attempts[step.ID]
	e.order = append(e.order, step.ID)
	e.running++
	if e.running > e.maxRunning {
		e.maxRunning = e.running
	}
	fail := e.failAlways[step.ID] || attempt <= e.failFirst[step.ID]
	hang := e.hang[step.ID]
	scripted := e.results[step.ID]
	delay := e.delay
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running--
		e.mu.Unlock()
	}()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if fail {
		return nil, fmt.Errorf("scripted failure for step %s (attempt %d)", step.ID, attempt)
	}
	if scripted != nil {
		return scripted, nil
	}

	return &Result{
		Success: true,
		Outputs: map[string]models.StepOutput{
			"result": {
				Format:     models.FormatText,
				Text:       fmt.Sprintf("%s: %s", agent.Type, step.Action),
				ProducedBy: step.ID,
			},
		},
	}, nil
}
