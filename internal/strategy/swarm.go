package strategy

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/cohortlabs/cohort/internal/executor"
	"github.com/cohortlabs/cohort/internal/recovery"
	"github.com/cohortlabs/cohort/pkg/models"
)

// swarmRole is an agent's behavioral role inside the swarm, derived from its
// capability type.
type swarmRole string

const (
	roleCoordinator    swarmRole = "coordinator"
	roleSpecialist     swarmRole = "specialist"
	roleScout          swarmRole = "scout"
	roleSwarmValidator swarmRole = "validator"
	roleCommunicator   swarmRole = "communicator"
	roleMaintainer     swarmRole = "maintainer"
	roleWorker         swarmRole = "worker"
)

// swarmRoleOf maps capability types to swarm roles.
func swarmRoleOf(t models.AgentType) swarmRole {
	switch t {
	case models.AgentTypePlanner:
		return roleCoordinator
	case models.AgentTypeArchitect:
		return roleSpecialist
	case models.AgentTypeResearcher:
		return roleScout
	case models.AgentTypeTester, models.AgentTypeReviewer:
		return roleSwarmValidator
	case models.AgentTypeDocumenter:
		return roleCommunicator
	case models.AgentTypeDebugger:
		return roleMaintainer
	default:
		return roleWorker
	}
}

// baseAutonomy is how independently each role acts, in [0,1].
var baseAutonomy = map[swarmRole]float64{
	roleCoordinator:    0.9,
	roleScout:          0.8,
	roleSpecialist:     0.7,
	roleSwarmValidator: 0.6,
	roleMaintainer:     0.6,
	roleCommunicator:   0.5,
	roleWorker:         0.5,
}

// roleWeight is each role's vote weight in proposals and consensus.
var roleWeight = map[swarmRole]float64{
	roleCoordinator:    1.5,
	roleSpecialist:     1.2,
	roleSwarmValidator: 1.2,
	roleScout:          1.0,
	roleMaintainer:     1.0,
	roleWorker:         1.0,
	roleCommunicator:   0.9,
}

// swarmMember is one agent with its swarm-local attributes.
type swarmMember struct {
	agent    *models.Agent
	role     swarmRole
	autonomy float64
	// neighbors are indexes into the member slice.
	neighbors []int
}

// weight returns the member's consensus weight: the role weight scaled by the
// agent's rolling success rate.
func (m *swarmMember) weight() float64 {
	return roleWeight[m.role] * (0.5 + m.agent.SuccessRate()/2)
}

// claimBudget is how many steps the member may claim during task allocation.
// High-autonomy members take on extra work.
func (m *swarmMember) claimBudget() int {
	if m.autonomy >= 0.8 {
		return 2
	}
	return 1
}

// swarmNetwork is the small-world communication graph plus the message log.
type swarmNetwork struct {
	members []*swarmMember

	mu sync.Mutex
	// messages counts broadcasts delivered per member index.
	messages []int
}

// buildSwarm derives members and the small-world graph from the plan's
// agents. The neighbor radius is floor(log2(n))+1 on a ring; members sharing
// a role are also linked; every third member gets a deterministic long-range
// link to the opposite side of the ring. If no planner is present the first
// agent is promoted to coordinator.
func buildSwarm(agents []*models.Agent, complexity float64) *swarmNetwork {
	n := len(agents)
	members := make([]*swarmMember, n)
	hasCoordinator := false
	for i, agent := range agents {
		role := swarmRoleOf(agent.Type)
		if role == roleCoordinator {
			hasCoordinator = true
		}
		autonomy := baseAutonomy[role]
		if complexity > 0.7 {
			autonomy = math.Min(1.0, autonomy+0.1)
		}
		members[i] = &swarmMember{agent: agent, role: role, autonomy: autonomy}
	}
	if !hasCoordinator && n > 0 {
		members[0].role = roleCoordinator
		members[0].autonomy = baseAutonomy[roleCoordinator]
	}

	radius := int(math.Floor(math.Log2(float64(n)))) + 1
	linked := make(map[[2]int]bool)
	link := func(a, b int) {
		if a == b {
			return
		}
		key := [2]int{a, b}
		if a > b {
			key = [2]int{b, a}
		}
		if linked[key] {
			return
		}
		linked[key] = true
		members[a].neighbors = append(members[a].neighbors, b)
		members[b].neighbors = append(members[b].neighbors, a)
	}

	for i := 0; i < n; i++ {
		for d := 1; d <= radius && d < n; d++ {
			link(i, (i+d)%n)
		}
	}
	// Role-affinity links.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if members[i].role == members[j].role {
				link(i, j)
			}
		}
	}
	// Deterministic long-range shortcuts.
	for i := 0; i < n; i += 3 {
		link(i, (i+n/2)%n)
	}

	return &swarmNetwork{members: members, messages: make([]int, n)}
}

// broadcast delivers one message from a member to all its neighbors.
func (net *swarmNetwork) broadcast(from int) {
	net.mu.Lock()
	defer net.mu.Unlock()
	for _, to := range net.members[from].neighbors {
		net.messages[to]++
	}
}

// delivered returns the total number of delivered messages.
func (net *swarmNetwork) delivered() int {
	net.mu.Lock()
	defer net.mu.Unlock()
	total := 0
	for _, c := range net.messages {
		total += c
	}
	return total
}

// connected reports whether every member is reachable from member 0. The
// graph has no self loops and no duplicate edges by construction.
func (net *swarmNetwork) connected() bool {
	if len(net.members) == 0 {
		return false
	}
	seen := make(map[int]bool, len(net.members))
	queue := []int{0}
	seen[0] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range net.members[cur].neighbors {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return len(seen) == len(net.members)
}

// proposal is one coordinator's suggested execution ordering.
type proposal struct {
	coordinator int
	// order is the step execution order as member indexes.
	order []int
}

// consensusScore computes Σ(weight·confidence·success)/Σweight over the
// members, where confidence is the agent's rolling success rate and success
// is 1 when every step owned by the member completed.
func consensusScore(members []*swarmMember, succeeded map[string]bool) float64 {
	var num, den float64
	for _, m := range members {
		w := m.weight()
		den += w
		s := 0.0
		if succeeded[m.agent.ID] {
			s = 1.0
		}
		num += w * m.agent.SuccessRate() * s
	}
	if den == 0 {
		return 0
	}
	return num / den
}

// Swarm coordinates autonomous agents over a small-world graph in four
// phases: introduction exchange, weighted proposal voting, autonomy-sized
// step claiming with neighbor status broadcasts during execution, and a
// final weighted consensus that decides overall success.
type Swarm struct {
	base
}

// NewSwarm creates the swarm pattern.
func NewSwarm(cfg *Config, errs *recovery.Handler) *Swarm {
	return &Swarm{base: newBase(cfg, errs)}
}

// Name implements Strategy.
func (s *Swarm) Name() models.StrategyKind { return models.StrategySwarm }

// CanHandle implements Strategy: consensus over fewer than four members is
// dominated by a single vote.
func (s *Swarm) CanHandle(analysis *models.TaskAnalysis) bool {
	return len(analysis.RequiredAgentTypes) >= 4
}

// ResourceRequirements implements Strategy: every member may run at once and
// gossip multiplies API traffic.
func (s *Swarm) ResourceRequirements(analysis *models.TaskAnalysis) models.ResourceRequirements {
	r := analysis.Resources
	n := len(analysis.RequiredAgentTypes)
	if n > 1 {
		r.MemoryMB *= float64(n)
		r.APICalls *= 2
	}
	return r
}

// BuildPlan implements Strategy: one independent step per agent. Ordering
// and claiming happen at execution time through the swarm phases.
func (s *Swarm) BuildPlan(planID string, analysis *models.TaskAnalysis, agents []*models.Agent, cfg *Config) (*models.CoordinationPlan, error) {
	if len(agents) == 0 {
		return nil, fmt.Errorf("%w for plan %s", ErrNoAgents, planID)
	}
	c := s.config(cfg)

	steps := make([]*models.CoordinationStep, len(agents))
	for i, agent := range agents {
		steps[i] = newStep(planID, i, agent, c)
	}
	return models.NewPlan(planID, models.StrategySwarm, *analysis, steps, agents), nil
}

// Execute implements Strategy.
func (s *Swarm) Execute(ctx context.Context, plan *models.CoordinationPlan, exec executor.Executor) (bool, error) {
	cfg := s.cfg
	plan.StartedAt = nowIfZero(plan.StartedAt)
	plan.SetStatus(models.PlanExecuting)

	net := buildSwarm(plan.Agents, plan.Analysis.Complexity)

	// Phase 1: introduction exchange. Every member announces itself to its
	// neighborhood so later broadcasts have a known audience.
	var wg sync.WaitGroup
	for i := range net.members {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			net.broadcast(i)
		}(i)
	}
	wg.Wait()
	debugLogf("[swarm] plan %s: %d members, %d introductions delivered",
		plan.ID, len(net.members), net.delivered())

	// Phase 2: coordinators propose execution orderings; members vote with
	// their consensus weight. The winning proposal fixes the claim order.
	winning := voteOnProposals(net)

	// Phase 3: autonomous claiming and execution. Walking the winning order,
	// each member claims up to its autonomy-sized budget of steps it can
	// serve; members then run their claims concurrently, broadcasting status
	// to neighbors after each step.
	claims := claimSteps(net, winning.order, plan)
	sem := NewSemaphore(cfg.CurrentLimits().MaxConcurrentAgents)
	succeeded := make(map[string]bool, len(net.members))
	var resMu sync.Mutex

	for _, memberIdx := range winning.order {
		if plan.Cancelled() || ctx.Err() != nil {
			break
		}
		member := net.members[memberIdx]
		steps := claims[memberIdx]
		if len(steps) == 0 {
			// The member's step was claimed away; it contributed nothing and
			// counts as vacuously successful in the consensus.
			resMu.Lock()
			succeeded[member.agent.ID] = true
			resMu.Unlock()
			continue
		}
		wg.Add(1)
		go func(memberIdx int, member *swarmMember, steps []*models.CoordinationStep) {
			defer wg.Done()
			ok := true
			for _, step := range steps {
				if err := sem.Acquire(ctx); err != nil {
					ok = false
					break
				}
				if !s.runStep(ctx, cfg, plan, step, exec, nil) {
					ok = false
				}
				sem.Release()
				net.broadcast(memberIdx)
			}
			resMu.Lock()
			succeeded[member.agent.ID] = ok
			resMu.Unlock()
		}(memberIdx, member, steps)
	}
	wg.Wait()

	// Phase 4: weighted consensus decides overall success. A run whose
	// steps all completed can still be reported unsuccessful if the weighted
	// score stays under the threshold.
	score := consensusScore(net.members, succeeded)
	allDone := finalize(ctx, plan)
	if score < cfg.ConsensusThreshold {
		plan.AddWarning("consensus %.2f below threshold %.2f", score, cfg.ConsensusThreshold)
		if plan.Status() == models.PlanCompleted {
			plan.SetStatus(models.PlanFailed)
		}
		return false, nil
	}
	return allDone, nil
}

// voteOnProposals collects one ordering proposal per coordinator and tallies
// weighted votes. Members vote for the proposal whose coordinator carries the
// highest weight, which makes the election deterministic; ties resolve to the
// earliest proposal.
func voteOnProposals(net *swarmNetwork) proposal {
	var proposals []proposal
	for i, m := range net.members {
		if m.role != roleCoordinator {
			continue
		}
		// Each coordinator proposes the ring order starting at itself.
		order := make([]int, 0, len(net.members))
		for d := 0; d < len(net.members); d++ {
			order = append(order, (i+d)%len(net.members))
		}
		proposals = append(proposals, proposal{coordinator: i, order: order})
	}
	if len(proposals) == 0 {
		// No coordinator survived role mapping; fall back to plan order.
		order := make([]int, len(net.members))
		for i := range order {
			order[i] = i
		}
		return proposal{coordinator: -1, order: order}
	}

	best := proposals[0]
	bestVotes := 0.0
	for _, p := range proposals {
		votes := 0.0
		for _, m := range net.members {
			votes += m.weight() * net.members[p.coordinator].weight()
		}
		if votes > bestVotes {
			bestVotes = votes
			best = p
		}
	}
	return best
}

// claimSteps distributes the plan's steps over the members in the winning
// order. Every member first claims its own step; a member with budget left
// then claims unclaimed steps it can serve, where a coordinator can serve any
// step and other roles only steps bound to their own capability type. Claimed
// steps are rebound to the claiming agent.
func claimSteps(net *swarmNetwork, order []int, plan *models.CoordinationPlan) map[int][]*models.CoordinationStep {
	claimed := make(map[string]bool, len(plan.Steps))
	claims := make(map[int][]*models.CoordinationStep, len(net.members))

	for _, idx := range order {
		member := net.members[idx]
		budget := member.claimBudget()

		if step := stepOwnedBy(plan, member.agent.ID); step != nil && !claimed[step.ID] {
			claimed[step.ID] = true
			claims[idx] = append(claims[idx], step)
			budget--
		}
		for _, step := range plan.Steps {
			if budget == 0 {
				break
			}
			if claimed[step.ID] {
				continue
			}
			if member.role != roleCoordinator && step.AgentType != member.agent.Type {
				continue
			}
			claimed[step.ID] = true
			step.AgentID = member.agent.ID
			claims[idx] = append(claims[idx], step)
			budget--
		}
	}
	return claims
}

// stepOwnedBy returns the plan step assigned to the agent, or nil.
func stepOwnedBy(plan *models.CoordinationPlan, agentID string) *models.CoordinationStep {
	for _, step := range plan.Steps {
		if step.AgentID == agentID {
			return step
		}
	}
	return nil
}
