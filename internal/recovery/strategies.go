package recovery

import "context"

// Fallback action names surfaced to the orchestrator.
const (
	// ActionRetry signals the failure is transient and the step loop may
	// retry within its own budget.
	ActionRetry = "retry"
	// ActionExtendTimeout asks the caller to retry with a longer deadline.
	ActionExtendTimeout = "extend_timeout"
	// ActionReconnectAgent asks the caller to replace the failing agent.
	ActionReconnectAgent = "reconnect_agent"
	// ActionBackoff asks the caller to retry after backing off.
	ActionBackoff = "backoff_and_retry"
	// ActionReduceAgents degrades to fewer concurrent agents.
	ActionReduceAgents = "reduce_agent_count"
	// ActionSingleAgent degrades to single-agent execution.
	ActionSingleAgent = "single_agent_mode"
)

// builtinStrategies returns the default strategy chain, most specific first.
// The universal strategy handles everything and must stay last.
func builtinStrategies() []Strategy {
	return []Strategy{
		&timeoutRecovery{},
		&communicationRecovery{},
		&externalAPIRecovery{},
		&memoryRecovery{},
		&resourceRecovery{},
		&validationRecovery{},
		&universalRecovery{},
	}
}

// timeoutRecovery treats deadline expiries as transient and recommends a
// longer deadline on the next attempt.
type timeoutRecovery struct{}

func (*timeoutRecovery) Name() string              { return "timeout" }
func (*timeoutRecovery) CanHandle(c Category) bool { return c == CategoryTimeout }
func (*timeoutRecovery) MaxRetries() int           { return 2 }

func (*timeoutRecovery) Recover(ctx context.Context, cerr *CategorizedError, attempt int) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Outcome{Recovered: true, FallbackAction: ActionExtendTimeout}, nil
}

// communicationRecovery handles inter-agent messaging failures.
type communicationRecovery struct{}

func (*communicationRecovery) Name() string { return "communication" }
func (*communicationRecovery) CanHandle(c Category) bool {
	return c == CategoryAgentCommunication || c == CategoryInitialization
}
func (*communicationRecovery) MaxRetries() int { return 3 }

func (*communicationRecovery) Recover(ctx context.Context, cerr *CategorizedError, attempt int) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Outcome{Recovered: true, FallbackAction: ActionReconnectAgent}, nil
}

// externalAPIRecovery handles model-backend failures (rate limits,
// overloads) with a backoff recommendation.
type externalAPIRecovery struct{}

func (*externalAPIRecovery) Name() string              { return "external_api" }
func (*externalAPIRecovery) CanHandle(c Category) bool { return c == CategoryExternalAPI }
func (*externalAPIRecovery) MaxRetries() int           { return 3 }

func (*externalAPIRecovery) Recover(ctx context.Context, cerr *CategorizedError, attempt int) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Outcome{Recovered: true, FallbackAction: ActionBackoff}, nil
}

// memoryRecovery handles memory pressure: never retried locally, the run
// must shed agents instead.
type memoryRecovery struct{}

func (*memoryRecovery) Name() string              { return "memory" }
func (*memoryRecovery) CanHandle(c Category) bool { return c == CategoryMemory }
func (*memoryRecovery) MaxRetries() int           { return 0 }

func (*memoryRecovery) Recover(ctx context.Context, cerr *CategorizedError, attempt int) (*Outcome, error) {
	return &Outcome{Recovered: false, FallbackAction: ActionReduceAgents}, nil
}

// resourceRecovery handles non-memory resource exhaustion.
type resourceRecovery struct{}

func (*resourceRecovery) Name() string              { return "resource" }
func (*resourceRecovery) CanHandle(c Category) bool { return c == CategoryResource }
func (*resourceRecovery) MaxRetries() int           { return 1 }

func (*resourceRecovery) Recover(ctx context.Context, cerr *CategorizedError, attempt int) (*Outcome, error) {
	return &Outcome{Recovered: false, FallbackAction: ActionReduceAgents}, nil
}

// validationRecovery handles malformed inputs and outputs. Retrying the
// same input cannot help, so these are never recovered.
type validationRecovery struct{}

func (*validationRecovery) Name() string              { return "validation" }
func (*validationRecovery) CanHandle(c Category) bool { return c == CategoryValidation }
func (*validationRecovery) MaxRetries() int           { return 0 }

func (*validationRecovery) Recover(ctx context.Context, cerr *CategorizedError, attempt int) (*Outcome, error) {
	return &Outcome{Recovered: false, FallbackAction: ActionSingleAgent}, nil
}

// universalRecovery is the catch-all for coordination and unknown failures.
type universalRecovery struct{}

func (*universalRecovery) Name() string              { return "universal" }
func (*universalRecovery) CanHandle(c Category) bool { return true }
func (*universalRecovery) MaxRetries() int           { return 1 }

func (*universalRecovery) Recover(ctx context.Context, cerr *CategorizedError, attempt int) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Unknown failures are assumed transient; the step's own retry budget
	// bounds how often this recommendation is followed.
	return &Outcome{Recovered: true, FallbackAction: ActionRetry}, nil
}
