// Package recovery categorizes orchestration failures and runs registered
// recovery strategies against them. It keeps a bounded history of errors and
// derives a system health verdict from the recent window.
package recovery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// historyCap bounds the FIFO error history.
const historyCap = 1000

// Health window parameters: verdicts consider the most recent errors within
// a trailing time window.
const (
	healthWindow    = 5 * time.Minute
	healthWindowCap = 20
)

// Category classifies where a failure came from.
type Category string

const (
	// CategoryInitialization covers setup and agent creation failures.
	CategoryInitialization Category = "initialization"
	// CategoryAgentCommunication covers inter-agent messaging failures.
	CategoryAgentCommunication Category = "agent_communication"
	// CategoryCoordination covers plan and dependency failures.
	CategoryCoordination Category = "coordination"
	// CategoryResource covers resource exhaustion other than memory.
	CategoryResource Category = "resource"
	// CategoryTimeout covers deadline expiries.
	CategoryTimeout Category = "timeout"
	// CategoryValidation covers malformed inputs and outputs.
	CategoryValidation Category = "validation"
	// CategoryExternalAPI covers model-backend failures.
	CategoryExternalAPI Category = "external_api"
	// CategoryMemory covers memory pressure.
	CategoryMemory Category = "memory"
	// CategoryUnknown is the catch-all.
	CategoryUnknown Category = "unknown"
)

// Valid returns true if the category is a known value.
func (c Category) Valid() bool {
	switch c {
	case CategoryInitialization, CategoryAgentCommunication, CategoryCoordination,
		CategoryResource, CategoryTimeout, CategoryValidation,
		CategoryExternalAPI, CategoryMemory, CategoryUnknown:
		return true
	default:
		return false
	}
}

// Severity grades how serious a categorized error is.
type Severity string

const (
	// SeverityLow is routine and expected under load.
	SeverityLow Severity = "low"
	// SeverityMedium needs attention but not intervention.
	SeverityMedium Severity = "medium"
	// SeverityHigh degrades the current task.
	SeverityHigh Severity = "high"
	// SeverityCritical threatens the whole process.
	SeverityCritical Severity = "critical"
)

// Valid returns true if the severity is a known value.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// CategorizedError is one recorded failure.
type CategorizedError struct {
	// ID is the unique error identifier.
	ID string `json:"id"`
	// Category classifies the failure.
	Category Category `json:"category"`
	// Severity grades the failure.
	Severity Severity `json:"severity"`
	// Message is the underlying error text.
	Message string `json:"message"`
	// TaskID is the orchestration task the error occurred under, if any.
	TaskID string `json:"task_id,omitempty"`
	// StepID is the coordination step that failed, if any.
	StepID string `json:"step_id,omitempty"`
	// OccurredAt is when the error was recorded.
	OccurredAt time.Time `json:"occurred_at"`
}

// defaultSeverity maps categories to their usual severity.
var defaultSeverity = map[Category]Severity{
	CategoryInitialization:     SeverityHigh,
	CategoryAgentCommunication: SeverityMedium,
	CategoryCoordination:       SeverityHigh,
	CategoryResource:           SeverityHigh,
	CategoryTimeout:            SeverityMedium,
	CategoryValidation:         SeverityLow,
	CategoryExternalAPI:        SeverityMedium,
	CategoryMemory:             SeverityCritical,
	CategoryUnknown:            SeverityMedium,
}

// Categorize classifies an error by message heuristics and wraps it with
// severity and a timestamp.
func Categorize(err error, taskID, stepID string) *CategorizedError {
	msg := err.Error()
	lower := strings.ToLower(msg)

	var category Category
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline"):
		category = CategoryTimeout
	case strings.Contains(lower, "out of memory") || strings.Contains(lower, "oom") || strings.Contains(lower, "memory"):
		category = CategoryMemory
	case strings.Contains(lower, "connection") || strings.Contains(lower, "unreachable") || strings.Contains(lower, "broadcast"):
		category = CategoryAgentCommunication
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "api") || strings.Contains(lower, "overloaded"):
		category = CategoryExternalAPI
	case strings.Contains(lower, "invalid") || strings.Contains(lower, "validation") || strings.Contains(lower, "malformed"):
		category = CategoryValidation
	case strings.Contains(lower, "limit") || strings.Contains(lower, "exhausted") || strings.Contains(lower, "slot"):
		category = CategoryResource
	case strings.Contains(lower, "dependency") || strings.Contains(lower, "consensus") || strings.Contains(lower, "plan"):
		category = CategoryCoordination
	case strings.Contains(lower, "init"):
		category = CategoryInitialization
	default:
		category = CategoryUnknown
	}

	return &CategorizedError{
		ID:         uuid.New().String()[:8],
		Category:   category,
		Severity:   defaultSeverity[category],
		Message:    msg,
		TaskID:     taskID,
		StepID:     stepID,
		OccurredAt: time.Now(),
	}
}

// Outcome is the result of running a recovery strategy.
type Outcome struct {
	// Recovered reports whether the failure is considered transient and
	// worth retrying locally.
	Recovered bool
	// FallbackAction names the degradation to apply when not recovered
	// (e.g. "reduce_agent_count", "single_agent_mode").
	FallbackAction string
	// Strategy is the name of the strategy that produced this outcome.
	Strategy string
}

// Strategy attempts recovery for the error categories it can handle.
// Each strategy enforces its own retry budget: Recover is re-invoked with
// exponential backoff while it returns an error, up to MaxRetries times.
type Strategy interface {
	// Name identifies the strategy in outcomes and logs.
	Name() string
	// CanHandle reports whether the strategy applies to the category.
	CanHandle(c Category) bool
	// MaxRetries is the strategy's own retry budget.
	MaxRetries() int
	// Recover attempts recovery. A non-nil error means the attempt itself
	// failed and may be retried within the budget.
	Recover(ctx context.Context, cerr *CategorizedError, attempt int) (*Outcome, error)
}

// Handler routes categorized errors to the first matching registered
// strategy and keeps the bounded error history.
type Handler struct {
	mu sync.RWMutex
	// history is the FIFO of recorded errors, newest last.
	history []*CategorizedError
	// strategies are consulted in registration order.
	strategies []Strategy
	// baseDelay seeds the per-strategy retry backoff.
	baseDelay time.Duration
	// maxDelay caps the per-strategy retry backoff.
	maxDelay time.Duration
}

// NewHandler creates a handler with the built-in strategies registered,
// ending with the universal catch-all.
func NewHandler() *Handler {
	h := &Handler{
		baseDelay: 100 * time.Millisecond,
		maxDelay:  5 * time.Second,
	}
	for _, s := range builtinStrategies() {
		h.Register(s)
	}
	return h
}

// Register appends a recovery strategy. Order matters: the first strategy
// whose CanHandle matches wins.
func (h *Handler) Register(s Strategy) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.strategies = append(h.strategies, s)
}

// SetBackoff overrides the retry backoff used between strategy attempts.
func (h *Handler) SetBackoff(base, max time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.baseDelay = base
	h.maxDelay = max
}

// Handle records the error and runs the first matching strategy, honoring
// its retry budget with exponential backoff. The universal strategy
// guarantees a non-nil outcome.
func (h *Handler) Handle(ctx context.Context, cerr *CategorizedError) *Outcome {
	h.record(cerr)

	strategy := h.match(cerr.Category)
	if strategy == nil {
		// Unreachable with the built-ins registered, but never crash.
		return &Outcome{Recovered: false, FallbackAction: "single_agent_mode"}
	}

	var lastErr error
	for attempt := 1; attempt <= strategy.MaxRetries()+1; attempt++ {
		outcome, err := strategy.Recover(ctx, cerr, attempt)
		if err == nil {
			outcome.Strategy = strategy.Name()
			return outcome
		}
		lastErr = err

		if attempt <= strategy.MaxRetries() {
			delay := backoffDelay(h.baseDelay, h.maxDelay, attempt)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return &Outcome{Recovered: false, FallbackAction: "abort", Strategy: strategy.Name()}
			}
		}
	}

	debugLogf("[recovery] strategy %s exhausted retries for %s error: %v",
		strategy.Name(), cerr.Category, lastErr)
	return &Outcome{Recovered: false, FallbackAction: "single_agent_mode", Strategy: strategy.Name()}
}

// record appends to the FIFO history, evicting the oldest past the cap.
func (h *Handler) record(cerr *CategorizedError) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.history = append(h.history, cerr)
	if len(h.history) > historyCap {
		h.history = h.history[len(h.history)-historyCap:]
	}
}

// match returns the first registered strategy handling the category.
func (h *Handler) match(c Category) Strategy {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.strategies {
		if s.CanHandle(c) {
			return s
		}
	}
	return nil
}

// History returns a copy of the recorded errors, oldest first.
func (h *Handler) History() []*CategorizedError {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*CategorizedError, len(h.history))
	copy(out, h.history)
	return out
}

// HealthVerdict grades the handler's recent error window.
type HealthVerdict string

const (
	// HealthHealthy means the recent window is quiet.
	HealthHealthy HealthVerdict = "healthy"
	// HealthDegraded means the recent window shows sustained errors.
	HealthDegraded HealthVerdict = "degraded"
	// HealthCritical means a critical error occurred recently.
	HealthCritical HealthVerdict = "critical"
)

// Health computes the verdict from the trailing window: the most recent 20
// errors no older than 5 minutes. Any critical error makes the verdict
// critical; more than 3 high-severity errors or more than 10 errors total
// degrade it.
func (h *Handler) Health() HealthVerdict {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cutoff := time.Now().Add(-healthWindow)
	start := len(h.history) - healthWindowCap
	if start < 0 {
		start = 0
	}

	var total, high int
	for _, cerr := range h.history[start:] {
		if cerr.OccurredAt.Before(cutoff) {
			continue
		}
		total++
		switch cerr.Severity {
		case SeverityCritical:
			return HealthCritical
		case SeverityHigh:
			high++
		}
	}

	if high > 3 || total > 10 {
		return HealthDegraded
	}
	return HealthHealthy
}

// backoffDelay computes min(base*2^(attempt-1), max).
func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
