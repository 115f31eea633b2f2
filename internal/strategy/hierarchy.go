package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/internal/recovery"
	"github.com/cohortlabs/cohort/pkg/models"
)

// delegationCapacity is how many direct subordinates one node manages before
// the tree reports overload.
const delegationCapacity = 3

// hierarchyLevel names the tiers of the delegation tree, top down.
var hierarchyLevels = []struct {
	name  string
	types []models.AgentType
}{
	{"master", []models.AgentType{models.AgentTypePlanner}},
	{"senior", []models.AgentType{models.AgentTypeArchitect, models.AgentTypeReviewer}},
	{"worker", []models.AgentType{models.AgentTypeCoder, models.AgentTypeDebugger, models.AgentTypeTester}},
	{"support", []models.AgentType{models.AgentTypeResearcher, models.AgentTypeDocumenter}},
}

// hierarchyNode is one agent's position in the delegation tree.
type hierarchyNode struct {
	agent  *models.Agent
	parent *hierarchyNode
	// level is the tier index the node landed on after compaction.
	level int
}

// buildTree places agents into tiers and assigns parents round-robin within
// the previous tier. Empty tiers are compacted away; the top tier has no
// parents. If no planner exists the highest-priority agent is promoted to
// the top. The result is non-empty and acyclic by construction: parents are
// always in a strictly higher tier.
func buildTree(agents []*models.Agent) []*hierarchyNode {
	if len(agents) == 0 {
		return nil
	}

	claimed := make(map[string]bool, len(agents))
	var tiers [][]*hierarchyNode
	for _, level := range hierarchyLevels {
		var tier []*hierarchyNode
		for _, t := range level.types {
			for _, agent := range agents {
				if agent.Type == t && !claimed[agent.ID] {
					claimed[agent.ID] = true
					tier = append(tier, &hierarchyNode{agent: agent})
				}
			}
		}
		if len(tier) > 0 {
			tiers = append(tiers, tier)
		}
	}
	// Agents with roles outside the table join the bottom tier.
	var overflow []*hierarchyNode
	for _, agent := range agents {
		if !claimed[agent.ID] {
			overflow = append(overflow, &hierarchyNode{agent: agent})
		}
	}
	if len(overflow) > 0 {
		if len(tiers) == 0 {
			tiers = append(tiers, overflow)
		} else {
			tiers[len(tiers)-1] = append(tiers[len(tiers)-1], overflow...)
		}
	}

	// A single-node top tier is the master. A multi-node top tier promotes
	// its first node and demotes the rest one tier down.
	if len(tiers[0]) > 1 {
		master := tiers[0][0]
		rest := tiers[0][1:]
		tiers[0] = []*hierarchyNode{master}
		if len(tiers) == 1 {
			tiers = append(tiers, rest)
		} else {
			tiers[1] = append(rest, tiers[1]...)
		}
	}

	var nodes []*hierarchyNode
	for levelIdx, tier := range tiers {
		for i, node := range tier {
			node.level = levelIdx
			if levelIdx > 0 {
				prev := tiers[levelIdx-1]
				node.parent = prev[i%len(prev)]
			}
			nodes = append(nodes, node)
		}
	}
	return nodes
}

// treeLevels splits the nodes back into execution tiers, top down.
func treeLevels(nodes []*hierarchyNode) [][]*hierarchyNode {
	var levels [][]*hierarchyNode
	for _, node := range nodes {
		for node.level >= len(levels) {
			levels = append(levels, nil)
		}
		levels[node.level] = append(levels[node.level], node)
	}
	return levels
}

// Hierarchical delegates work down a tree: the master plans, seniors refine,
// workers implement, support wraps up. Tiers execute in order with nodes of a
// tier running concurrently; a failed node escalates to its parent, which
// re-runs the step once before the failure stands.
type Hierarchical struct {
	base
}

// NewHierarchical creates the hierarchical pattern.
func NewHierarchical(cfg *Config, errs *recovery.Handler) *Hierarchical {
	return &Hierarchical{base: newBase(cfg, errs)}
}

// Name implements Strategy.
func (h *Hierarchical) Name() models.StrategyKind { return models.StrategyHierarchical }

// CanHandle implements Strategy: a tree needs a master and subordinates.
func (h *Hierarchical) CanHandle(analysis *models.TaskAnalysis) bool {
	return len(analysis.RequiredAgentTypes) >= 3
}

// ResourceRequirements implements Strategy: delegation overhead adds roughly
// one coordination call per subordinate.
func (h *Hierarchical) ResourceRequirements(analysis *models.TaskAnalysis) models.ResourceRequirements {
	r := analysis.Resources
	if n := len(analysis.RequiredAgentTypes); n > 1 {
		r.APICalls += n - 1
	}
	return r
}

// BuildPlan implements Strategy: one step per node, depending on its parent's
// step so results flow down the tree.
func (h *Hierarchical) BuildPlan(planID string, analysis *models.TaskAnalysis, agents []*models.Agent, cfg *Config) (*models.CoordinationPlan, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w for plan %s", ErrNoAgents, planID)
	}
	c := h.config(cfg)

	nodes := buildTree(agents)
	stepByAgent := make(map[string]*models.CoordinationStep, len(nodes))
	steps := make([]*models.CoordinationStep, 0, len(nodes))
	for i, node := range nodes {
		step := newStep(planID, i, node.agent, c)
		stepByAgent[node.agent.ID] = step
		steps = append(steps, step)
	}
	overloaded := false
	children := make(map[string]int, len(nodes))
	for _, node := range nodes {
		if node.parent == nil {
			continue
		}
		stepByAgent[node.agent.ID].DependsOn = []string{stepByAgent[node.parent.agent.ID].ID}
		children[node.parent.agent.ID]++
		if children[node.parent.agent.ID] > delegationCapacity {
			overloaded = true
		}
	}

	plan := models.NewPlan(planID, models.StrategyHierarchical, *analysis, steps, agents)
	if overloaded {
		plan.AddWarning("delegation capacity %d exceeded; some nodes manage more subordinates", delegationCapacity)
	}
	return plan, nil
}

// Execute implements Strategy: tiers run top down, nodes within a tier
// concurrently. Parent outputs feed subordinate inputs; failures escalate to
// the parent agent for one re-delegated attempt inside the step runner.
func (h *Hierarchical) Execute(ctx context.Context, plan *models.CoordinationPlan, exec executor.Executor) (bool, error) {
	cfg := h.cfg
	plan.StartedAt = nowIfZero(plan.StartedAt)
	plan.SetStatus(models.PlanExecuting)

	nodes := buildTree(plan.Agents)
	stepOf := func(agentID string) *models.CoordinationStep {
		for _, step := range plan.Steps {
			if step.AgentID == agentID {
				return step
			}
		}
		return nil
	}

	sem := NewSemaphore(cfg.CurrentLimits().MaxConcurrentAgents)
	for _, level := range treeLevels(nodes) {
		if plan.Cancelled() || ctx.Err() != nil {
			break
		}

		var wg sync.WaitGroup
		var abort bool
		var abortMu sync.Mutex
		for _, node := range level {
			step := stepOf(node.agent.ID)
			if step == nil {
				continue
			}
			if node.parent != nil {
				parentStep := stepOf(node.parent.agent.ID)
				if parentStep != nil && plan.StepStatusOf(parentStep.ID) == models.StepCompleted {
					forwardOutputs(plan, parentStep.ID, step.ID)
				} else if !cfg.Failure.IsolateFailures {
					_ = plan.MarkStepFailed(step.ID, "parent delegation failed")
					continue
				}
			}

			var fallback *models.Agent
			if node.parent != nil {
				fallback = node.parent.agent
			}
			wg.Add(1)
			go func(step *models.CoordinationStep, fallback *models.Agent) {
				defer wg.Done()
				if err := sem.Acquire(ctx); err != nil {
					return
				}
				defer sem.Release()
				if ok := h.runStep(ctx, cfg, plan, step, exec, fallback); !ok {
					if abortOnFailure(cfg, step) {
						abortMu.Lock()
						abort = true
						abortMu.Unlock()
					}
				}
			}(step, fallback)
		}
		wg.Wait()

		if abort {
			plan.CancelRemaining()
			break
		}
	}

	return finalize(ctx, plan), nil
}
