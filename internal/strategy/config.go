package strategy

import (
	"sync"
	"time"

	"github.com/cohortlabs/cohort/pkg/models"
)

// RetryPolicy controls per-step retry behavior.
type RetryPolicy struct {
	// MaxRetries is the retry budget per step.
	MaxRetries int `json:"max_retries"`
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration `json:"base_delay"`
	// Multiplier grows the delay on each subsequent retry.
	Multiplier float64 `json:"multiplier"`
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration `json:"max_delay"`
}

// Delay returns the backoff before retry k (1-based):
// min(base * multiplier^(k-1), maxDelay).
func (p RetryPolicy) Delay(k int) time.Duration {
	if k < 1 {
		k = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < k; i++ {
		delay *= p.Multiplier
		if time.Duration(delay) >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if time.Duration(delay) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// FailurePolicy controls how step failures propagate through a plan.
type FailurePolicy struct {
	// StopOnFirstFailure cancels the rest of the plan on any failure.
	StopOnFirstFailure bool `json:"stop_on_first_failure"`
	// FallbackStrategy names the pattern to degrade to when this one is
	// rejected or aborts.
	FallbackStrategy models.StrategyKind `json:"fallback_strategy"`
	// CriticalSteps lists step IDs whose failure always aborts the plan,
	// in addition to steps marked critical at build time.
	CriticalSteps []string `json:"critical_steps,omitempty"`
	// IsolateFailures tolerates non-critical failures: the rest of the
	// plan keeps running and the failure is reported at the end.
	IsolateFailures bool `json:"isolate_failures"`
}

// ResourceLimits bounds what one plan execution may consume.
type ResourceLimits struct {
	// MaxConcurrentAgents caps simultaneously executing steps.
	MaxConcurrentAgents int `json:"max_concurrent_agents"`
	// MaxMemoryMB is the memory ceiling used for health checks.
	MaxMemoryMB float64 `json:"max_memory_mb"`
	// MaxWallClock bounds total plan execution time; zero means unbounded.
	MaxWallClock time.Duration `json:"max_wall_clock"`
}

// Config carries the shared strategy tunables. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// Timeouts is the per-agent-type single-attempt timeout table.
	Timeouts map[models.AgentType]time.Duration `json:"timeouts"`
	// DefaultTimeout applies to agent types missing from the table.
	DefaultTimeout time.Duration `json:"default_timeout"`
	// Retry is the per-step retry policy.
	Retry RetryPolicy `json:"retry"`
	// Failure is the failure propagation policy.
	Failure FailurePolicy `json:"failure"`
	// Limits bounds plan resource usage. Once the config is shared with a
	// running manager, read through CurrentLimits and write through
	// SetLimits; hot reload swaps the limits while plans execute.
	Limits ResourceLimits `json:"limits"`
	// ConsensusThreshold is the swarm success threshold.
	ConsensusThreshold float64 `json:"consensus_threshold"`
	// FailOpenValidation lets pipeline stages run despite missing expected
	// inputs, downgrading the failure to a warning.
	FailOpenValidation bool `json:"fail_open_validation"`

	// limitsMu guards Limits against concurrent SetLimits calls from the
	// hot-reload path.
	limitsMu sync.RWMutex
}

// SetLimits replaces the resource limits. New values apply wherever the
// limits are next read: plan executions pick them up at start.
func (c *Config) SetLimits(l ResourceLimits) {
	c.limitsMu.Lock()
	c.Limits = l
	c.limitsMu.Unlock()
}

// CurrentLimits returns a snapshot of the resource limits.
func (c *Config) CurrentLimits() ResourceLimits {
	c.limitsMu.RLock()
	defer c.limitsMu.RUnlock()
	return c.Limits
}

// DefaultConfig returns the shipped tunables. Planning and review roles get
// longer single-attempt timeouts than mechanical roles.
func DefaultConfig() *Config {
	return &Config{
		Timeouts: map[models.AgentType]time.Duration{
			models.AgentTypePlanner:    5 * time.Minute,
			models.AgentTypeArchitect:  5 * time.Minute,
			models.AgentTypeResearcher: 4 * time.Minute,
			models.AgentTypeCoder:      3 * time.Minute,
			models.AgentTypeDebugger:   3 * time.Minute,
			models.AgentTypeTester:     2 * time.Minute,
			models.AgentTypeReviewer:   2 * time.Minute,
			models.AgentTypeDocumenter: 2 * time.Minute,
		},
		DefaultTimeout: 3 * time.Minute,
		Retry: RetryPolicy{
			MaxRetries: 3,
			BaseDelay:  time.Second,
			Multiplier: 2.0,
			MaxDelay:   30 * time.Second,
		},
		Failure: FailurePolicy{
			StopOnFirstFailure: false,
			FallbackStrategy:   models.StrategySequential,
			IsolateFailures:    true,
		},
		Limits: ResourceLimits{
			MaxConcurrentAgents: 4,
			MaxMemoryMB:         2048,
			MaxWallClock:        30 * time.Minute,
		},
		ConsensusThreshold: 0.75,
	}
}

// TimeoutFor returns the single-attempt timeout for an agent type.
func (c *Config) TimeoutFor(t models.AgentType) time.Duration {
	if d, ok := c.Timeouts[t]; ok {
		return d
	}
	return c.DefaultTimeout
}

// critical reports whether a step must abort the plan on failure.
func (c *Config) critical(step *models.CoordinationStep) bool {
	if step.Critical {
		return true
	}
	for _, id := range c.Failure.CriticalSteps {
		if id == step.ID {
			return true
		}
	}
	return false
}
