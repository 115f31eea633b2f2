package strategy

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/internal/recovery"
	"github.com/cohortlabs/cohort/pkg/models"
)

// stageRole is the data-flow role a pipeline stage plays.
type stageRole string

const (
	// roleProducer originates data with no upstream inputs.
	roleProducer stageRole = "producer"
	// roleTransformer consumes upstream data and produces new data.
	roleTransformer stageRole = "transformer"
	// roleValidator checks upstream data and produces a verdict.
	roleValidator stageRole = "validator"
	// roleConsumer drains the buffers into final deliverables.
	roleConsumer stageRole = "consumer"
)

// stageFlow is the per-stage flow control discipline.
type stageFlow string

const (
	// flowBuffered collects outputs into the stage buffer before moving on.
	flowBuffered stageFlow = "buffered"
	// flowStreamed runs steps one at a time, forwarding as it goes.
	flowStreamed stageFlow = "streamed"
	// flowParallel runs the stage's steps concurrently.
	flowParallel stageFlow = "parallel"
	// flowValidated validates every output before buffering it.
	flowValidated stageFlow = "validated"
	// flowAggregated hands the entire buffer set to the stage.
	flowAggregated stageFlow = "aggregated"
)

// Pipeline buffer keys. Each stage publishes its outputs under its own key;
// downstream stages declare which keys they require.
const (
	bufferResearch       = "research_findings"
	bufferDesign         = "design_specifications"
	bufferImplementation = "implementation_artifacts"
	bufferValidation     = "validation_report"
	bufferDeliverables   = "final_deliverables"
)

// pipelineStage is one stage of the fixed pipeline shape.
type pipelineStage struct {
	name           string
	role           stageRole
	flow           stageFlow
	types          []models.AgentType
	expectedInputs []string
	outputKey      string
}

// pipelineShape is the fixed stage table. Stages with no matching agents are
// skipped, but expected inputs are not relaxed: a stage whose required buffer
// was never produced fails validation.
var pipelineShape = []pipelineStage{
	{
		name:      "research",
		role:      roleProducer,
		flow:      flowBuffered,
		types:     []models.AgentType{models.AgentTypeResearcher},
		outputKey: bufferResearch,
	},
	{
		name:      "design",
		role:      roleTransformer,
		flow:      flowStreamed,
		types:     []models.AgentType{models.AgentTypePlanner, models.AgentTypeArchitect},
		outputKey: bufferDesign,
	},
	{
		name:           "implementation",
		role:           roleTransformer,
		flow:           flowParallel,
		types:          []models.AgentType{models.AgentTypeCoder, models.AgentTypeDebugger},
		expectedInputs: []string{bufferDesign},
		outputKey:      bufferImplementation,
	},
	{
		name:           "qa",
		role:           roleValidator,
		flow:           flowValidated,
		types:          []models.AgentType{models.AgentTypeTester, models.AgentTypeReviewer},
		expectedInputs: []string{bufferImplementation},
		outputKey:      bufferValidation,
	},
	{
		name:      "output",
		role:      roleConsumer,
		flow:      flowAggregated,
		types:     []models.AgentType{models.AgentTypeDocumenter},
		outputKey: bufferDeliverables,
	},
}

// boundStage is a pipeline stage bound to the plan's concrete steps.
type boundStage struct {
	pipelineStage
	steps []*models.CoordinationStep
}

// Pipeline streams work through the fixed stage table, buffering each stage's
// outputs under its key and validating downstream expectations against the
// buffers. Missing expected inputs fail the whole stage unless validation is
// configured fail-open.
type Pipeline struct {
	base
}

// NewPipeline creates the pipeline pattern.
func NewPipeline(cfg *Config, errs *recovery.Handler) *Pipeline {
	return &Pipeline{base: newBase(cfg, errs)}
}

// Name implements Strategy.
func (p *Pipeline) Name() models.StrategyKind { return models.StrategyPipeline }

// CanHandle implements Strategy: a pipeline needs at least two populated
// stages to be worth its buffering overhead.
func (p *Pipeline) CanHandle(analysis *models.TaskAnalysis) bool {
	populated := 0
	for _, stage := range pipelineShape {
		for _, t := range stage.types {
			if analysis.RequiresType(t) {
				populated++
				break
			}
		}
	}
	return populated >= 2
}

// ResourceRequirements implements Strategy: buffers hold every intermediate
// artifact, so the memory baseline grows with the stage count.
func (p *Pipeline) ResourceRequirements(analysis *models.TaskAnalysis) models.ResourceRequirements {
	r := analysis.Resources
	r.MemoryMB *= 1.5
	return r
}

// BuildPlan implements Strategy: one step per agent, stage by stage, each
// stage depending on every step of the previous populated stage.
func (p *Pipeline) BuildPlan(planID string, analysis *models.TaskAnalysis, agents []*models.Agent, cfg *Config) (*models.CoordinationPlan, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w for plan %s", ErrNoAgents, planID)
	}
	c := p.config(cfg)

	var steps []*models.CoordinationStep
	var prevStage []*models.CoordinationStep
	index := 0
	for _, stage := range pipelineShape {
		var bound []*models.CoordinationStep
		for _, t := range stage.types {
			for _, agent := range agents {
				if agent.Type != t {
					continue
				}
				step := newStep(planID, index, agent, c)
				step.Action = fmt.Sprintf("[%s stage] %s", stage.name, step.Action)
				for _, dep := range prevStage {
					step.DependsOn = append(step.DependsOn, dep.ID)
				}
				bound = append(bound, step)
				steps = append(steps, step)
				index++
			}
		}
		if len(bound) > 0 {
			prevStage = bound
		}
	}
	return models.NewPlan(planID, models.StrategyPipeline, *analysis, steps, agents), nil
}

// stagesOf re-derives the populated stages from the plan's steps.
func stagesOf(plan *models.CoordinationPlan) []boundStage {
	var stages []boundStage
	for _, stage := range pipelineShape {
		var bound []*models.CoordinationStep
		for _, step := range plan.Steps {
			for _, t := range stage.types {
				if step.AgentType == t {
					bound = append(bound, step)
					break
				}
			}
		}
		if len(bound) > 0 {
			stages = append(stages, boundStage{pipelineStage: stage, steps: bound})
		}
	}
	return stages
}

// Execute implements Strategy.
func (p *Pipeline) Execute(ctx context.Context, plan *models.CoordinationPlan, exec executor.Executor) (bool, error) {
	cfg := p.cfg
	plan.StartedAt = nowIfZero(plan.StartedAt)
	plan.SetStatus(models.PlanExecuting)

	// buffers accumulate each stage's outputs under its buffer key.
	buffers := make(map[string][]models.StepOutput)

	for _, stage := range stagesOf(plan) {
		if plan.Cancelled() || ctx.Err() != nil {
			break
		}

		if missing := missingInputs(stage.expectedInputs, buffers); len(missing) > 0 {
			msg := fmt.Sprintf("stage %s missing expected inputs: %s",
				stage.name, strings.Join(missing, ", "))
			if cfg.FailOpenValidation {
				plan.AddWarning("%s (continuing fail-open)", msg)
			} else {
				for _, step := range stage.steps {
					_ = plan.MarkStepFailed(step.ID, msg)
				}
				plan.AddWarning("%s", msg)
				if cfg.Failure.StopOnFirstFailure {
					plan.CancelRemaining()
					break
				}
				continue
			}
		}

		feedStage(plan, stage, buffers)
		p.runStage(ctx, cfg, plan, stage, exec)

		for _, step := range stage.steps {
			if plan.StepStatusOf(step.ID) != models.StepCompleted {
				continue
			}
			for _, out := range plan.StepOutputs(step.ID) {
				if stage.flow == flowValidated {
					if err := out.Validate(); err != nil {
						plan.AddWarning("stage %s: dropped invalid output from %s: %v",
							stage.name, step.ID, err)
						continue
					}
				}
				buffers[stage.outputKey] = append(buffers[stage.outputKey], out)
			}
		}

		if cfg.Failure.StopOnFirstFailure && failedAny(plan, stage.steps) {
			plan.CancelRemaining()
			break
		}
	}

	return finalize(ctx, plan), nil
}

// runStage runs the stage's steps under its flow discipline: parallel stages
// use a WaitGroup, everything else runs in order.
func (p *Pipeline) runStage(ctx context.Context, cfg *Config, plan *models.CoordinationPlan, stage boundStage, exec executor.Executor) {
	if stage.flow == flowParallel {
		sem := NewSemaphore(cfg.CurrentLimits().MaxConcurrentAgents)
		var wg sync.WaitGroup
		for _, step := range stage.steps {
			wg.Add(1)
			go func(step *models.CoordinationStep) {
				defer wg.Done()
				if err := sem.Acquire(ctx); err != nil {
					return
				}
				defer sem.Release()
				p.runStep(ctx, cfg, plan, step, exec, nil)
			}(step)
		}
		wg.Wait()
		return
	}

	for _, step := range stage.steps {
		if plan.Cancelled() || ctx.Err() != nil {
			return
		}
		p.runStep(ctx, cfg, plan, step, exec, nil)
	}
}

// feedStage forwards the buffers a stage consumes into its steps' inputs.
// Consumers with aggregated flow receive every buffer.
func feedStage(plan *models.CoordinationPlan, stage boundStage, buffers map[string][]models.StepOutput) {
	keys := stage.expectedInputs
	if stage.flow == flowAggregated {
		keys = keys[:0:0]
		for key := range buffers {
			keys = append(keys, key)
		}
	} else if len(keys) == 0 && stage.role == roleTransformer {
		// Transformers without hard requirements still consume the research
		// buffer opportunistically.
		if _, ok := buffers[bufferResearch]; ok {
			keys = []string{bufferResearch}
		}
	}

	for _, key := range keys {
		entries := buffers[key]
		if len(entries) == 0 {
			continue
		}
		inputs := make(map[string]models.StepOutput, len(entries))
		for i, out := range entries {
			inputs[fmt.Sprintf("%s[%d]", key, i)] = out
		}
		for _, step := range stage.steps {
			_ = plan.AddStepInputs(step.ID, inputs)
		}
	}
}

// missingInputs returns the expected buffer keys with no entries.
func missingInputs(expected []string, buffers map[string][]models.StepOutput) []string {
	var missing []string
	for _, key := range expected {
		if len(buffers[key]) == 0 {
			missing = append(missing, key)
		}
	}
	return missing
}
