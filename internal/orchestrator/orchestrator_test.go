package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cohortlabs/cohort/internal/analyzer"
	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/internal/strategy"
	"github.com/cohortlabs/cohort/pkg/models"
)

// fastConfig returns orchestrator tunables with millisecond backoffs so
// retry paths finish quickly in tests.
func fastConfig(mode models.OrchestrationMode) *Config {
	cfg := DefaultConfig()
	cfg.Mode = mode
	cfg.Strategy.Retry = strategy.RetryPolicy{
		MaxRetries: 1,
		BaseDelay:  time.Millisecond,
		Multiplier: 2.0,
		MaxDelay:   5 * time.Millisecond,
	}
	cfg.Strategy.Timeouts = map[models.AgentType]time.Duration{}
	cfg.Strategy.DefaultTimeout = time.Minute
	return cfg
}

// fixedAnalysis replaces the analyzer with one returning a canned analysis.
func fixedAnalysis(complexity float64, kind models.StrategyKind, types ...models.AgentType) AnalyzeFunc {
	return func(text string, taskCtx *analyzer.Context) *models.TaskAnalysis {
		return &models.TaskAnalysis{
			Complexity:         complexity,
			RequiredAgentTypes: types,
			Strategy:           kind,
			Confidence:         0.9,
			Resources:          models.ResourceRequirements{MemoryMB: 256},
			AnalyzedAt:         time.Now(),
		}
	}
}

// failingExecutor fails every attempt of every step.
type failingExecutor struct{}

func (failingExecutor) Run(ctx context.Context, step *models.CoordinationStep, agent *models.Agent) (*executor.Result, error) {
	return nil, errors.New("backend rejected the request")
}

// drainEvents reads all buffered events without blocking.
func drainEvents(o *Orchestrator) []Event {
	var out []Event
	for {
		select {
		case ev := <-o.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func eventTypes(events []Event) map[EventType]int {
	counts := make(map[EventType]int)
	for _, ev := range events {
		counts[ev.Type]++
	}
	return counts
}

func TestOrchestrateTask_ModeDisabled(t *testing.T) {
	exec := executor.NewScriptedExecutor()
	o := New(fastConfig(models.ModeDisabled), exec)
	defer o.Close()

	result, err := o.OrchestrateTask(context.Background(), "add a login form", nil)
	if err != nil {
		t.Fatalf("OrchestrateTask() error = %v", err)
	}
	if !result.Success {
		t.Error("result.Success = false, want true")
	}
	if result.Analysis != nil {
		t.Error("disabled mode produced an analysis")
	}
	if len(exec.Order()) != 0 {
		t.Errorf("disabled mode executed %d steps, want 0", len(exec.Order()))
	}

	task, ok := o.GetStatus(result.TaskID)
	if !ok {
		t.Fatalf("GetStatus(%s) not found", result.TaskID)
	}
	if task.State != models.StateCompleted {
		t.Errorf("task state = %s, want completed", task.State)
	}
}

func TestOrchestrateTask_ModeAnalysisOnly(t *testing.T) {
	exec := executor.NewScriptedExecutor()
	o := New(fastConfig(models.ModeAnalysisOnly), exec,
		WithAnalyzer(fixedAnalysis(0.7, models.StrategyParallel,
			models.AgentTypeCoder, models.AgentTypeTester)))
	defer o.Close()

	result, err := o.OrchestrateTask(context.Background(), "refactor the parser", nil)
	if err != nil {
		t.Fatalf("OrchestrateTask() error = %v", err)
	}
	if !result.Success {
		t.Error("result.Success = false, want true")
	}
	if result.Analysis == nil {
		t.Fatal("analysis_only mode produced no analysis")
	}
	if result.PlanID != "" {
		t.Errorf("analysis_only mode built plan %s", result.PlanID)
	}
	if len(exec.Order()) != 0 {
		t.Errorf("analysis_only mode executed %d steps, want 0", len(exec.Order()))
	}
}

func TestOrchestrateTask_SingleAgentFallback(t *testing.T) {
	exec := executor.NewScriptedExecutor()
	o := New(fastConfig(models.ModeSingleAgentFallback), exec,
		WithAnalyzer(fixedAnalysis(0.9, models.StrategySwarm,
			models.AgentTypeCoder, models.AgentTypeTester,
			models.AgentTypePlanner, models.AgentTypeArchitect)))
	defer o.Close()

	result, err := o.OrchestrateTask(context.Background(), "rewrite the scheduler", nil)
	if err != nil {
		t.Fatalf("OrchestrateTask() error = %v", err)
	}
	if !result.Success || !result.FallbackUsed {
		t.Errorf("(Success, FallbackUsed) = (%v, %v), want (true, true)",
			result.Success, result.FallbackUsed)
	}
	if result.AgentCount != 1 {
		t.Errorf("AgentCount = %d, want 1", result.AgentCount)
	}
	if result.Strategy != models.StrategySingle {
		t.Errorf("Strategy = %s, want single", result.Strategy)
	}

	order := exec.Order()
	if len(order) != 1 || !strings.HasSuffix(order[0], "-single") {
		t.Errorf("executed steps = %v, want one synthetic single step", order)
	}
}

func TestOrchestrateTask_AdaptiveDispatch(t *testing.T) {
	t.Run("simple task falls back to a single agent", func(t *testing.T) {
		exec := executor.NewScriptedExecutor()
		o := New(fastConfig(models.ModeAdaptive), exec,
			WithAnalyzer(fixedAnalysis(0.2, models.StrategySingle, models.AgentTypeCoder)))
		defer o.Close()

		result, err := o.OrchestrateTask(context.Background(), "fix a typo", nil)
		if err != nil {
			t.Fatalf("OrchestrateTask() error = %v", err)
		}
		if !result.Success || !result.FallbackUsed {
			t.Errorf("(Success, FallbackUsed) = (%v, %v), want (true, true)",
				result.Success, result.FallbackUsed)
		}
		if result.PlanID != "" {
			t.Errorf("simple task built plan %s", result.PlanID)
		}
	})

	t.Run("complex task is orchestrated", func(t *testing.T) {
		exec := executor.NewScriptedExecutor()
		o := New(fastConfig(models.ModeAdaptive), exec,
			WithAnalyzer(fixedAnalysis(0.8, models.StrategyParallel,
				models.AgentTypeCoder, models.AgentTypeTester, models.AgentTypeDocumenter)))
		defer o.Close()

		result, err := o.OrchestrateTask(context.Background(), "build the billing service", nil)
		if err != nil {
			t.Fatalf("OrchestrateTask() error = %v", err)
		}
		if !result.Success || result.FallbackUsed {
			t.Errorf("(Success, FallbackUsed) = (%v, %v), want (true, false)",
				result.Success, result.FallbackUsed)
		}
		if result.PlanID == "" {
			t.Fatal("complex task built no plan")
		}
		if result.Strategy != models.StrategyParallel {
			t.Errorf("Strategy = %s, want parallel", result.Strategy)
		}
		if result.AgentCount != 3 {
			t.Errorf("AgentCount = %d, want 3", result.AgentCount)
		}
		if got := len(exec.Order()); got != 3 {
			t.Errorf("executed %d steps, want 3", got)
		}
	})
}

func TestOrchestrateTask_FullModeSingleStrategy(t *testing.T) {
	exec := executor.NewScriptedExecutor()
	o := New(fastConfig(models.ModeFullOrchestration), exec,
		WithAnalyzer(fixedAnalysis(0.2, models.StrategySingle, models.AgentTypeCoder)))
	defer o.Close()

	result, err := o.OrchestrateTask(context.Background(), "bump a version string", nil)
	if err != nil {
		t.Fatalf("OrchestrateTask() error = %v", err)
	}
	// A single-strategy analysis under full orchestration is not a fallback,
	// it is the chosen coordination.
	if !result.Success || result.FallbackUsed {
		t.Errorf("(Success, FallbackUsed) = (%v, %v), want (true, false)",
			result.Success, result.FallbackUsed)
	}
	if result.Strategy != models.StrategySingle {
		t.Errorf("Strategy = %s, want single", result.Strategy)
	}
}

func TestOrchestrateTask_SubstitutesSequential(t *testing.T) {
	exec := executor.NewScriptedExecutor()
	// Swarm needs four distinct roles; two roles force a substitution.
	o := New(fastConfig(models.ModeFullOrchestration), exec,
		WithAnalyzer(fixedAnalysis(0.9, models.StrategySwarm,
			models.AgentTypeCoder, models.AgentTypeTester)))
	defer o.Close()

	result, err := o.OrchestrateTask(context.Background(), "migrate the data layer", nil)
	if err != nil {
		t.Fatalf("OrchestrateTask() error = %v", err)
	}
	if !result.Success {
		t.Fatalf("result = %+v, want success", result)
	}
	if result.Strategy != models.StrategySequential {
		t.Errorf("Strategy = %s, want substituted sequential", result.Strategy)
	}
	warned := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "substituting") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("Warnings = %v, want substitution notice", result.Warnings)
	}
	if counts := eventTypes(drainEvents(o)); counts[EventStrategyFallback] != 1 {
		t.Errorf("strategy_fallback events = %d, want 1", counts[EventStrategyFallback])
	}
}

func TestOrchestrateTask_FailureSettlesFailed(t *testing.T) {
	o := New(fastConfig(models.ModeFullOrchestration), failingExecutor{},
		WithAnalyzer(fixedAnalysis(0.8, models.StrategySequential,
			models.AgentTypeCoder, models.AgentTypeTester)))
	defer o.Close()

	result, err := o.OrchestrateTask(context.Background(), "doomed task", nil)
	if err != nil {
		t.Fatalf("OrchestrateTask() error = %v", err)
	}
	if result.Success {
		t.Error("result.Success = true, want false")
	}
	if result.Error == "" {
		t.Error("result.Error is empty for a failed task")
	}

	task, ok := o.GetStatus(result.TaskID)
	if !ok || task.State != models.StateFailed {
		t.Errorf("task state = %s, want failed", task.State)
	}
	if counts := eventTypes(drainEvents(o)); counts[EventTaskFailed] != 1 {
		t.Errorf("task_failed events = %d, want 1", counts[EventTaskFailed])
	}
}

func TestOrchestrateTask_EventSequence(t *testing.T) {
	exec := executor.NewScriptedExecutor()
	o := New(fastConfig(models.ModeFullOrchestration), exec,
		WithAnalyzer(fixedAnalysis(0.8, models.StrategySequential,
			models.AgentTypeCoder, models.AgentTypeTester)))
	defer o.Close()

	if _, err := o.OrchestrateTask(context.Background(), "ship it", nil); err != nil {
		t.Fatalf("OrchestrateTask() error = %v", err)
	}

	counts := eventTypes(drainEvents(o))
	for _, want := range []EventType{
		EventTaskAccepted, EventAnalysisCompleted, EventAgentsCreated,
		EventPlanCreated, EventTaskCompleted,
	} {
		if counts[want] != 1 {
			t.Errorf("%s events = %d, want 1", want, counts[want])
		}
	}
}

func TestMetrics_RecordAndReset(t *testing.T) {
	exec := executor.NewScriptedExecutor()
	o := New(fastConfig(models.ModeFullOrchestration), exec,
		WithAnalyzer(fixedAnalysis(0.8, models.StrategySequential,
			models.AgentTypeCoder, models.AgentTypeTester)))
	defer o.Close()

	if _, err := o.OrchestrateTask(context.Background(), "first", nil); err != nil {
		t.Fatalf("OrchestrateTask() error = %v", err)
	}

	if _, err := o.OrchestrateTask(context.Background(), "second", nil); err != nil {
		t.Fatalf("OrchestrateTask() error = %v", err)
	}

	m := o.GetMetrics()
	if m.TotalTasks != 2 || m.SuccessfulTasks != 2 {
		t.Errorf("(TotalTasks, SuccessfulTasks) = (%d, %d), want (2, 2)",
			m.TotalTasks, m.SuccessfulTasks)
	}
	if m.AvgAgentCount != 2 {
		t.Errorf("AvgAgentCount = %v, want 2", m.AvgAgentCount)
	}
	if m.StrategyUsage[models.StrategySequential] != 2 {
		t.Errorf("StrategyUsage[sequential] = %d, want 2", m.StrategyUsage[models.StrategySequential])
	}
	if m.AgentTypeUsage[models.AgentTypeCoder] != 2 {
		t.Errorf("AgentTypeUsage[coder] = %d, want 2", m.AgentTypeUsage[models.AgentTypeCoder])
	}
	if m.Efficiency != 1.0 {
		t.Errorf("Efficiency = %v, want 1.0", m.Efficiency)
	}

	// The returned metrics are a copy; mutating them must not leak back.
	m.TotalTasks = 99
	if got := o.GetMetrics().TotalTasks; got != 2 {
		t.Errorf("metrics leaked caller mutation: TotalTasks = %d", got)
	}

	o.ResetMetrics()
	if got := o.GetMetrics().TotalTasks; got != 0 {
		t.Errorf("TotalTasks after reset = %d, want 0", got)
	}
}

func TestCancelTask(t *testing.T) {
	exec := executor.NewScriptedExecutor()
	exec.SetDelay(200 * time.Millisecond)
	o := New(fastConfig(models.ModeFullOrchestration), exec,
		WithAnalyzer(fixedAnalysis(0.8, models.StrategySequential,
			models.AgentTypeCoder, models.AgentTypeTester)))
	defer o.Close()

	type outcome struct {
		result *models.OrchestrationResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := o.OrchestrateTask(context.Background(), "long haul", nil)
		done <- outcome{result, err}
	}()

	// Wait for the task to reach execution, then cancel it.
	var taskID string
	deadline := time.After(2 * time.Second)
	for taskID == "" {
		select {
		case <-deadline:
			t.Fatal("task never reached executing state")
		case <-time.After(5 * time.Millisecond):
		}
		for _, ev := range drainEvents(o) {
			if ev.Type == EventPlanCreated {
				taskID = ev.TaskID
			}
		}
	}
	if !o.CancelTask(taskID) {
		t.Fatal("CancelTask() = false for a live task")
	}

	got := <-done
	if got.err != nil {
		t.Fatalf("OrchestrateTask() error = %v", got.err)
	}
	if got.result.Success {
		t.Error("cancelled task reported success")
	}

	task, ok := o.GetStatus(taskID)
	if !ok || task.State != models.StateCancelled {
		t.Errorf("task state = %s, want cancelled", task.State)
	}
	if o.CancelTask(taskID) {
		t.Error("CancelTask() = true for a terminal task")
	}
	if o.CancelTask("missing") {
		t.Error("CancelTask() = true for an unknown task")
	}
}

func TestGetHealth(t *testing.T) {
	exec := executor.NewScriptedExecutor()
	o := New(fastConfig(models.ModeAdaptive), exec)
	defer o.Close()

	health := o.GetHealth()
	if !health.Healthy || health.LiveTasks != 0 {
		t.Errorf("idle health = %+v, want healthy with no live tasks", health)
	}
	if health.Uptime <= 0 {
		t.Errorf("Uptime = %s, want positive", health.Uptime)
	}

	// A live task whose estimate crosses 80% of the ceiling flips the
	// verdict.
	o.mu.Lock()
	o.tasks["hog"] = &taskEntry{
		task: &models.OrchestrationTask{ID: "hog", State: models.StateExecuting},
		analysis: &models.TaskAnalysis{
			Resources: models.ResourceRequirements{MemoryMB: o.cfg.MemoryCeilingMB},
		},
		cancel: func() {},
	}
	o.mu.Unlock()

	health = o.GetHealth()
	if health.Healthy {
		t.Errorf("health = %+v, want unhealthy above the memory ceiling", health)
	}
	if health.LiveTasks != 1 {
		t.Errorf("LiveTasks = %d, want 1", health.LiveTasks)
	}
}

func TestUpdateConfig(t *testing.T) {
	exec := executor.NewScriptedExecutor()
	o := New(fastConfig(models.ModeFullOrchestration), exec,
		WithAnalyzer(fixedAnalysis(0.8, models.StrategySequential, models.AgentTypeCoder)))
	defer o.Close()

	if err := o.UpdateConfig("warp_speed", 0, nil); err == nil {
		t.Error("UpdateConfig accepted an invalid mode")
	}

	if err := o.UpdateConfig(models.ModeDisabled, 8192, nil); err != nil {
		t.Fatalf("UpdateConfig() error = %v", err)
	}
	result, err := o.OrchestrateTask(context.Background(), "after reload", nil)
	if err != nil {
		t.Fatalf("OrchestrateTask() error = %v", err)
	}
	if result.Analysis != nil || result.PlanID != "" {
		t.Errorf("task after disabling still analyzed or planned: %+v", result)
	}
	if got := o.GetHealth().MemoryCeilingMB; got != 8192 {
		t.Errorf("MemoryCeilingMB = %v, want 8192", got)
	}
}

func TestUpdateConfig_ConcurrentWithExecution(t *testing.T) {
	exec := executor.NewScriptedExecutor()
	o := New(fastConfig(models.ModeFullOrchestration), exec,
		WithAnalyzer(fixedAnalysis(0.8, models.StrategyParallel,
			models.AgentTypeCoder, models.AgentTypeTester, models.AgentTypeDocumenter)))
	defer o.Close()

	// Hammer the hot-reload path while plans execute; the race detector
	// covers the limit reads inside the running strategies.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			limits := strategy.ResourceLimits{
				MaxConcurrentAgents: 1 + i%4,
				MaxMemoryMB:         2048,
				MaxWallClock:        30 * time.Minute,
			}
			if err := o.UpdateConfig(models.ModeFullOrchestration, 4096, &limits); err != nil {
				t.Errorf("UpdateConfig() error = %v", err)
				return
			}
		}
	}()

	for i := 0; i < 3; i++ {
		result, err := o.OrchestrateTask(context.Background(), "build the ingestion service", nil)
		if err != nil {
			t.Fatalf("OrchestrateTask() error = %v", err)
		}
		if !result.Success {
			t.Errorf("task %d: Success = false, want true", i)
		}
	}
	<-done
	drainEvents(o)
}
