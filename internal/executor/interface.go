// Package executor defines the abstract "execute a unit of work" capability
// the coordination core depends on, plus the shipped implementations.
package executor

import (
	"context"

	"github.com/cohortlabs/cohort/pkg/models"
)

// Result is what executing one step produced.
type Result struct {
	// Success reports whether the step's work succeeded.
	Success bool
	// Outputs are the step's tagged outputs, keyed by output name.
	Outputs map[string]models.StepOutput
}

// Executor runs one coordination step on behalf of one agent. The core never
// inspects how the capability is implemented; the CLI wires a real backend
// and tests substitute a deterministic fake.
type Executor interface {
	// Run executes the step and returns its result. A non-nil error means
	// the attempt itself failed (timeout, transport, backend); a Result
	// with Success=false means the work ran but did not succeed.
	Run(ctx context.Context, step *models.CoordinationStep, agent *models.Agent) (*Result, error)
}
