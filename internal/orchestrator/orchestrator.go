// Package orchestrator runs the per-task control loop: analyze the task,
// acquire agents, build a coordination plan under the selected strategy, and
// execute it. The orchestrator owns the task registry, lifetime metrics, and
// the event stream the CLI renders.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cohortlabs/cohort/internal/analyzer"
	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/internal/memory"
	"github.com/cohortlabs/cohort/internal/recovery"
	"github.com/cohortlabs/cohort/internal/strategy"
	"github.com/cohortlabs/cohort/pkg/models"
)

// healthMemoryFraction is the share of the memory ceiling live tasks may
// claim before the orchestrator reports unhealthy.
const healthMemoryFraction = 0.8

// adaptiveComplexityFloor is the complexity above which adaptive mode
// orchestrates instead of falling back to a single agent.
const adaptiveComplexityFloor = 0.4

// Config carries the orchestrator tunables.
type Config struct {
	// Mode controls how much work each task gets.
	Mode models.OrchestrationMode `json:"mode"`
	// Strategy is the shared strategy configuration.
	Strategy *strategy.Config `json:"strategy"`
	// MemoryCeilingMB bounds the summed memory estimate of live tasks.
	MemoryCeilingMB float64 `json:"memory_ceiling_mb"`
	// EventBuffer sizes the event channel.
	EventBuffer int `json:"event_buffer"`
	// PlanRetention is how long terminal plans stay queryable.
	PlanRetention time.Duration `json:"plan_retention"`
}

// DefaultConfig returns the shipped orchestrator tunables.
func DefaultConfig() *Config {
	return &Config{
		Mode:            models.ModeAdaptive,
		Strategy:        strategy.DefaultConfig(),
		MemoryCeilingMB: 4096,
		EventBuffer:     64,
		PlanRetention:   time.Hour,
	}
}

// AnalyzeFunc produces a task analysis from a description and context.
type AnalyzeFunc func(text string, taskCtx *analyzer.Context) *models.TaskAnalysis

// Health is the orchestrator's derived health snapshot.
type Health struct {
	// Healthy is the overall verdict.
	Healthy bool `json:"healthy"`
	// ErrorVerdict is the recovery handler's trailing-window verdict.
	ErrorVerdict recovery.HealthVerdict `json:"error_verdict"`
	// LiveTasks counts non-terminal tasks.
	LiveTasks int `json:"live_tasks"`
	// MemoryEstimateMB sums the live tasks' analysis estimates.
	MemoryEstimateMB float64 `json:"memory_estimate_mb"`
	// MemoryCeilingMB is the configured ceiling.
	MemoryCeilingMB float64 `json:"memory_ceiling_mb"`
	// Efficiency is the lifetime successful/total task ratio.
	Efficiency float64 `json:"efficiency"`
	// Uptime is how long this orchestrator has been running.
	Uptime time.Duration `json:"uptime"`
}

// taskEntry is the orchestrator's bookkeeping for one task.
type taskEntry struct {
	task     *models.OrchestrationTask
	analysis *models.TaskAnalysis
	agents   []*models.Agent
	cancel   context.CancelFunc
	// userCancelled marks tasks cancelled through CancelTask, which settle
	// as cancelled rather than failed.
	userCancelled bool
}

// Orchestrator is the coordination engine facade.
type Orchestrator struct {
	exec    executor.Executor
	manager *strategy.Manager
	errs    *recovery.Handler
	store   memory.Store
	emitter *EventEmitter
	logger  *DebugLogger
	analyze AnalyzeFunc
	started time.Time

	mu      sync.RWMutex
	cfg     *Config
	metrics *models.OrchestrationMetrics
	tasks   map[string]*taskEntry
}

// Option configures an Orchestrator at construction.
type Option func(*Orchestrator)

// WithLogger installs a debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithStore installs a memory store for per-agent context persistence.
func WithStore(s memory.Store) Option {
	return func(o *Orchestrator) { o.store = s }
}

// WithHandler installs a shared recovery handler.
func WithHandler(h *recovery.Handler) Option {
	return func(o *Orchestrator) { o.errs = h }
}

// WithAnalyzer overrides the analysis function.
func WithAnalyzer(fn AnalyzeFunc) Option {
	return func(o *Orchestrator) { o.analyze = fn }
}

// New creates an orchestrator around an executor. A nil cfg uses
// DefaultConfig; missing collaborators get working defaults.
func New(cfg *Config, exec executor.Executor, opts ...Option) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Strategy == nil {
		cfg.Strategy = strategy.DefaultConfig()
	}
	o := &Orchestrator{
		exec:    exec,
		cfg:     cfg,
		store:   memory.NopStore{},
		logger:  NopLogger(),
		analyze: analyzer.Analyze,
		emitter: NewEventEmitter(cfg.EventBuffer),
		metrics: models.NewOrchestrationMetrics(),
		tasks:   make(map[string]*taskEntry),
		started: time.Now(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.errs == nil {
		o.errs = recovery.NewHandler()
	}
	o.manager = strategy.NewManager(cfg.Strategy, exec, o.errs)
	setPackageLogger(o.logger)
	return o
}

// Events returns the orchestrator's event stream.
func (o *Orchestrator) Events() <-chan Event {
	return o.emitter.Events()
}

// Close releases the orchestrator's resources. Live tasks are cancelled.
func (o *Orchestrator) Close() error {
	o.mu.RLock()
	for _, entry := range o.tasks {
		if !entry.task.State.Terminal() {
			entry.cancel()
		}
	}
	o.mu.RUnlock()
	o.emitter.Close()
	return o.store.Close()
}

// mode returns the current operating mode.
func (o *Orchestrator) mode() models.OrchestrationMode {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg.Mode
}

// UpdateConfig applies a new mode, memory ceiling, and resource limits at
// runtime. Limits apply to plan executions started after the update.
func (o *Orchestrator) UpdateConfig(mode models.OrchestrationMode, ceilingMB float64, limits *strategy.ResourceLimits) error {
	if !mode.Valid() {
		return fmt.Errorf("invalid orchestration mode %q", mode)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cfg.Mode = mode
	if ceilingMB > 0 {
		o.cfg.MemoryCeilingMB = ceilingMB
	}
	if limits != nil {
		o.cfg.Strategy.SetLimits(*limits)
	}
	debugLog("[orchestrator] config updated: mode=%s ceiling=%.0fMB", mode, o.cfg.MemoryCeilingMB)
	return nil
}

// OrchestrateTask runs one task through the control loop under the current
// mode and returns its result. The error return covers malformed requests;
// execution failures are reported inside the result.
func (o *Orchestrator) OrchestrateTask(ctx context.Context, text string, taskCtx *analyzer.Context) (*models.OrchestrationResult, error) {
	mode := o.mode()
	start := time.Now()
	taskID := uuid.New().String()[:8]

	runCtx, cancel := context.WithCancel(ctx)
	entry := &taskEntry{
		task: &models.OrchestrationTask{
			ID:        taskID,
			Text:      text,
			State:     models.StateInitializing,
			Mode:      mode,
			CreatedAt: start,
		},
		cancel: cancel,
	}
	o.mu.Lock()
	o.tasks[taskID] = entry
	o.mu.Unlock()

	result := &models.OrchestrationResult{TaskID: taskID, Mode: mode}
	o.emitter.Emit(Event{Type: EventTaskAccepted, TaskID: taskID, Message: text})
	debugLog("[orchestrator] task %s accepted in mode %s", taskID, mode)

	defer func() {
		cancel()
		o.settle(entry, result, start)
		o.manager.Sweep(o.planRetention())
	}()

	if mode == models.ModeDisabled {
		result.Success = true
		return result, nil
	}

	analysis := o.analyze(text, taskCtx)
	result.Analysis = analysis
	o.mu.Lock()
	entry.analysis = analysis
	o.mu.Unlock()
	o.emitter.Emit(Event{
		Type:     EventAnalysisCompleted,
		TaskID:   taskID,
		Strategy: analysis.Strategy,
		Message:  fmt.Sprintf("complexity %.2f, %d roles", analysis.Complexity, len(analysis.RequiredAgentTypes)),
	})

	switch mode {
	case models.ModeAnalysisOnly:
		result.Success = true
	case models.ModeSingleAgentFallback:
		o.runSingleAgent(runCtx, entry, result, true)
	case models.ModeAdaptive:
		if analysis.Complexity > adaptiveComplexityFloor && len(analysis.RequiredAgentTypes) > 1 {
			o.orchestrate(runCtx, entry, result)
		} else {
			o.runSingleAgent(runCtx, entry, result, true)
		}
	case models.ModeFullOrchestration:
		if analysis.Strategy == models.StrategySingle {
			o.runSingleAgent(runCtx, entry, result, false)
		} else {
			o.orchestrate(runCtx, entry, result)
		}
	default:
		return nil, fmt.Errorf("invalid orchestration mode %q", mode)
	}
	return result, nil
}

// orchestrate is the full path: acquire agents, build a plan, execute it.
func (o *Orchestrator) orchestrate(ctx context.Context, entry *taskEntry, result *models.OrchestrationResult) {
	taskID := entry.task.ID
	analysis := entry.analysis

	o.setState(entry, models.StateCreatingAgents)
	agents := make([]*models.Agent, 0, len(analysis.RequiredAgentTypes))
	for _, t := range analysis.RequiredAgentTypes {
		agent := models.NewAgent(uuid.New().String()[:8], t, capabilitiesFor(t))
		agent.SetStatus(models.AgentReady)
		agents = append(agents, agent)
	}
	o.mu.Lock()
	entry.agents = agents
	o.mu.Unlock()
	result.AgentCount = len(agents)
	o.emitter.Emit(Event{Type: EventAgentsCreated, TaskID: taskID,
		Message: fmt.Sprintf("%d agents", len(agents))})

	o.setState(entry, models.StatePlanning)
	s, substituted := o.manager.Select(analysis)
	kind := analysis.Strategy
	if substituted {
		kind = s.Name()
		warning := fmt.Sprintf("strategy %s rejected the task; substituting %s", analysis.Strategy, kind)
		result.Warnings = append(result.Warnings, warning)
		o.emitter.Emit(Event{Type: EventStrategyFallback, TaskID: taskID, Strategy: kind, Message: warning})
		debugLog("[orchestrator] task %s: %s", taskID, warning)
	}

	plan, err := o.manager.CreatePlan(kind, analysis, agents)
	if err != nil {
		result.Error = fmt.Sprintf("plan creation failed: %v", err)
		return
	}
	result.PlanID = plan.ID
	result.Strategy = kind
	o.mu.Lock()
	entry.task.PlanID = plan.ID
	o.mu.Unlock()
	o.emitter.Emit(Event{Type: EventPlanCreated, TaskID: taskID, PlanID: plan.ID,
		Strategy: kind, Message: fmt.Sprintf("%d steps", plan.TotalSteps())})

	o.setState(entry, models.StateExecuting)
	ok, err := o.manager.ExecutePlan(ctx, plan.ID)
	result.Success = ok
	if err != nil {
		result.Error = err.Error()
	} else if !ok {
		result.Error = fmt.Sprintf("plan %s finished %s", plan.ID, plan.Status())
	}
	result.Warnings = append(result.Warnings, plan.Warnings()...)

	o.persistOutputs(taskID, plan)
}

// runSingleAgent executes the task as one synthetic step on one coder agent.
func (o *Orchestrator) runSingleAgent(ctx context.Context, entry *taskEntry, result *models.OrchestrationResult, fallback bool) {
	taskID := entry.task.ID

	o.setState(entry, models.StateCreatingAgents)
	agent := models.NewAgent(uuid.New().String()[:8], models.AgentTypeCoder, capabilitiesFor(models.AgentTypeCoder))
	agent.SetStatus(models.AgentReady)
	o.mu.Lock()
	entry.agents = []*models.Agent{agent}
	o.mu.Unlock()
	result.AgentCount = 1
	result.FallbackUsed = fallback
	result.Strategy = models.StrategySingle

	o.setState(entry, models.StateExecuting)
	step := &models.CoordinationStep{
		ID:        taskID + "-single",
		AgentID:   agent.ID,
		AgentType: models.AgentTypeCoder,
		Action:    entry.task.Text,
		Status:    models.StepExecuting,
		Timeout:   o.strategyConfig().TimeoutFor(models.AgentTypeCoder),
	}
	agent.SetStatus(models.AgentWorking)
	res, err := o.exec.Run(ctx, step, agent)
	switch {
	case err != nil:
		result.Error = err.Error()
		agent.RecordOutcome(false)
		o.errs.Handle(ctx, recovery.Categorize(err, taskID, step.ID))
	case res == nil || !res.Success:
		result.Error = "single agent execution did not succeed"
		agent.RecordOutcome(false)
	default:
		result.Success = true
		agent.RecordOutcome(true)
	}
	agent.SetStatus(models.AgentCompleted)
}

// persistOutputs saves completed step outputs as agent context entries.
// Persistence failures degrade to debug log lines.
func (o *Orchestrator) persistOutputs(taskID string, plan *models.CoordinationPlan) {
	for _, step := range plan.Steps {
		if plan.StepStatusOf(step.ID) != models.StepCompleted {
			continue
		}
		for name, out := range plan.StepOutputs(step.ID) {
			entry := memory.Entry{
				ID:      uuid.New().String()[:8],
				AgentID: step.AgentID,
				TaskID:  taskID,
				Kind:    "step_output",
				Content: fmt.Sprintf("%s/%s: %s", step.ID, name, out.Text),
			}
			if err := o.store.Save(context.Background(), entry); err != nil {
				debugLog("[orchestrator] persisting output of step %s: %v", step.ID, err)
			}
		}
	}
}

// settle finalizes the task entry: terminate agents, fold metrics, set the
// terminal state, and emit the terminal event.
func (o *Orchestrator) settle(entry *taskEntry, result *models.OrchestrationResult, start time.Time) {
	result.Duration = time.Since(start)

	o.mu.Lock()
	for _, agent := range entry.agents {
		agent.SetStatus(models.AgentTerminated)
	}
	state := models.StateFailed
	eventType := EventTaskFailed
	switch {
	case entry.userCancelled:
		state = models.StateCancelled
		eventType = EventTaskCancelled
	case result.Success:
		state = models.StateCompleted
		eventType = EventTaskCompleted
	}
	entry.task.State = state
	entry.task.Result = result

	var types []models.AgentType
	for _, agent := range entry.agents {
		types = append(types, agent.Type)
	}
	o.metrics.Record(result, types)
	o.mu.Unlock()

	o.emitter.Emit(Event{Type: eventType, TaskID: entry.task.ID, PlanID: result.PlanID,
		Strategy: result.Strategy, Message: result.Error})
	debugLog("[orchestrator] task %s settled %s after %s", entry.task.ID, state, result.Duration)
}

// CancelTask cancels a live task: its context is cancelled and any plan's
// remaining steps are marked cancelled. Returns false for unknown or
// already-terminal tasks.
func (o *Orchestrator) CancelTask(taskID string) bool {
	o.mu.Lock()
	entry, ok := o.tasks[taskID]
	if !ok || entry.task.State.Terminal() {
		o.mu.Unlock()
		return false
	}
	entry.userCancelled = true
	planID := entry.task.PlanID
	o.mu.Unlock()

	entry.cancel()
	if planID != "" {
		o.manager.CancelPlan(planID)
	}
	debugLog("[orchestrator] task %s cancelled", taskID)
	return true
}

// GetStatus returns a copy of the task's public status surface.
func (o *Orchestrator) GetStatus(taskID string) (models.OrchestrationTask, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	entry, ok := o.tasks[taskID]
	if !ok {
		return models.OrchestrationTask{}, false
	}
	return *entry.task, true
}

// GetPlan returns a live plan by ID.
func (o *Orchestrator) GetPlan(planID string) (*models.CoordinationPlan, bool) {
	return o.manager.Plan(planID)
}

// GetMetrics returns a deep copy of the lifetime metrics.
func (o *Orchestrator) GetMetrics() *models.OrchestrationMetrics {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.metrics.Clone()
}

// ResetMetrics zeroes the lifetime metrics.
func (o *Orchestrator) ResetMetrics() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.metrics = models.NewOrchestrationMetrics()
}

// GetHealth derives the health snapshot: healthy while the live tasks'
// summed memory estimate stays under 80% of the ceiling and the error window
// is not critical.
func (o *Orchestrator) GetHealth() Health {
	o.mu.RLock()
	var live int
	var estimate float64
	for _, entry := range o.tasks {
		if entry.task.State.Terminal() {
			continue
		}
		live++
		if entry.analysis != nil {
			estimate += entry.analysis.Resources.MemoryMB
		}
	}
	ceiling := o.cfg.MemoryCeilingMB
	efficiency := o.metrics.Efficiency
	o.mu.RUnlock()

	verdict := o.errs.Health()
	return Health{
		Healthy:          estimate < healthMemoryFraction*ceiling && verdict != recovery.HealthCritical,
		ErrorVerdict:     verdict,
		LiveTasks:        live,
		MemoryEstimateMB: estimate,
		MemoryCeilingMB:  ceiling,
		Efficiency:       efficiency,
		Uptime:           time.Since(o.started),
	}
}

// setState transitions the task's control loop state.
func (o *Orchestrator) setState(entry *taskEntry, state models.OrchestrationState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	entry.task.State = state
}

// strategyConfig returns the current strategy configuration.
func (o *Orchestrator) strategyConfig() *strategy.Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg.Strategy
}

// planRetention returns the configured plan retention window.
func (o *Orchestrator) planRetention() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.cfg.PlanRetention
}

// capabilitiesFor describes what each role brings, recorded on the agent.
func capabilitiesFor(t models.AgentType) []string {
	switch t {
	case models.AgentTypeCoder:
		return []string{"code_generation", "refactoring"}
	case models.AgentTypeTester:
		return []string{"test_authoring", "test_execution"}
	case models.AgentTypeDocumenter:
		return []string{"documentation"}
	case models.AgentTypeResearcher:
		return []string{"research", "context_gathering"}
	case models.AgentTypeDebugger:
		return []string{"defect_isolation", "bug_fixing"}
	case models.AgentTypeArchitect:
		return []string{"system_design", "interface_contracts"}
	case models.AgentTypePlanner:
		return []string{"decomposition", "sequencing"}
	case models.AgentTypeReviewer:
		return []string{"review", "verdicts"}
	default:
		return nil
	}
}
