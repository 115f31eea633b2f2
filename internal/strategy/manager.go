package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/internal/graph"
	"github.com/cohortlabs/cohort/internal/recovery"
	"github.com/cohortlabs/cohort/pkg/models"
)

// ErrUnknownPlan indicates a plan ID with no live plan.
var ErrUnknownPlan = fmt.Errorf("unknown plan")

// Manager owns the strategy registry and the live plans of one orchestrator.
// There is no global registry: every orchestrator carries its own manager.
type Manager struct {
	cfg  *Config
	errs *recovery.Handler
	exec executor.Executor

	mu sync.RWMutex
	// order fixes iteration over the registry.
	order []models.StrategyKind
	// strategies maps kinds to implementations.
	strategies map[models.StrategyKind]Strategy
	// plans holds every plan created and not yet swept.
	plans map[string]*models.CoordinationPlan
}

// NewManager creates a manager with the five coordination patterns
// registered. A nil cfg uses DefaultConfig; a nil errs gets a fresh handler.
func NewManager(cfg *Config, exec executor.Executor, errs *recovery.Handler) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if errs == nil {
		errs = recovery.NewHandler()
	}
	m := &Manager{
		cfg:        cfg,
		errs:       errs,
		exec:       exec,
		strategies: make(map[models.StrategyKind]Strategy),
		plans:      make(map[string]*models.CoordinationPlan),
	}
	for _, s := range []Strategy{
		NewSequential(cfg, errs),
		NewParallel(cfg, errs),
		NewPipeline(cfg, errs),
		NewHierarchical(cfg, errs),
		NewSwarm(cfg, errs),
	} {
		m.order = append(m.order, s.Name())
		m.strategies[s.Name()] = s
	}
	return m
}

// Strategy returns the implementation for a kind.
func (m *Manager) Strategy(kind models.StrategyKind) (Strategy, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.strategies[kind]
	return s, ok
}

// Kinds returns the registered strategy kinds in registration order.
func (m *Manager) Kinds() []models.StrategyKind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.StrategyKind, len(m.order))
	copy(out, m.order)
	return out
}

// Select resolves the strategy for an analysis. When the analysis' chosen
// pattern is unregistered or refuses the analysis, the sequential fallback is
// substituted and the second return is true.
func (m *Manager) Select(analysis *models.TaskAnalysis) (Strategy, bool) {
	if s, ok := m.Strategy(analysis.Strategy); ok && s.CanHandle(analysis) {
		return s, false
	}
	fallback, _ := m.Strategy(models.StrategySequential)
	return fallback, true
}

// CreatePlan builds and registers a plan under the given strategy kind.
func (m *Manager) CreatePlan(kind models.StrategyKind, analysis *models.TaskAnalysis, agents []*models.Agent) (*models.CoordinationPlan, error) {
	s, ok := m.Strategy(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, kind)
	}

	planID := uuid.New().String()[:8]
	plan, err := s.BuildPlan(planID, analysis, agents, nil)
	if err != nil {
		return nil, fmt.Errorf("building %s plan: %w", kind, err)
	}
	// No strategy should emit a cyclic or dangling dependency; reject the
	// plan rather than deadlock during execution.
	if _, err := graph.Build(plan.Steps); err != nil {
		return nil, fmt.Errorf("validating %s plan: %w", kind, err)
	}
	plan.SetStatus(models.PlanReady)

	m.mu.Lock()
	m.plans[plan.ID] = plan
	m.mu.Unlock()
	debugLogf("[strategy] created %s plan %s with %d steps", kind, plan.ID, plan.TotalSteps())
	return plan, nil
}

// ExecutePlan runs a registered plan to a terminal status and reports
// success. The manager's wall-clock limit bounds the whole run.
func (m *Manager) ExecutePlan(ctx context.Context, planID string) (bool, error) {
	plan, ok := m.Plan(planID)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownPlan, planID)
	}
	s, ok := m.Strategy(plan.Strategy)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownStrategy, plan.Strategy)
	}

	if wallClock := m.cfg.CurrentLimits().MaxWallClock; wallClock > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wallClock)
		defer cancel()
	}
	return s.Execute(ctx, plan, m.exec)
}

// Plan returns a registered plan.
func (m *Manager) Plan(planID string) (*models.CoordinationPlan, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	plan, ok := m.plans[planID]
	return plan, ok
}

// Plans returns the live plans in no particular order.
func (m *Manager) Plans() []*models.CoordinationPlan {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.CoordinationPlan, 0, len(m.plans))
	for _, plan := range m.plans {
		out = append(out, plan)
	}
	return out
}

// CancelPlan cancels every remaining step of a live plan and marks the plan
// cancelled unless it already reached a terminal status. Completed steps are
// never rolled back.
func (m *Manager) CancelPlan(planID string) bool {
	plan, ok := m.Plan(planID)
	if !ok {
		return false
	}
	if plan.Status().Terminal() {
		return false
	}
	plan.CancelRemaining()
	plan.SetStatus(models.PlanCancelled)
	return true
}

// Sweep removes terminal plans older than the retention window and returns
// how many were removed.
func (m *Manager) Sweep(retention time.Duration) int {
	cutoff := time.Now().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, plan := range m.plans {
		if !plan.Status().Terminal() {
			continue
		}
		if finished := plan.FinishedAt(); !finished.IsZero() && finished.Before(cutoff) {
			delete(m.plans, id)
			removed++
		}
	}
	if removed > 0 {
		debugLogf("[strategy] swept %d terminal plans", removed)
	}
	return removed
}
