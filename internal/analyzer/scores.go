package analyzer

import "github.com/cohortlabs/cohort/pkg/models"

// strategyScore is one candidate pattern with its unnormalized score.
type strategyScore struct {
	kind  models.StrategyKind
	score float64
}

// selectStrategy chooses the coordination pattern for a task. A task needing
// exactly one agent type is always SINGLE. Otherwise five candidates are
// scored from complexity/agent-count heuristics, category bonuses, and
// context bonuses, then normalized by the maximum score. Ties break in
// evaluation order (sequential first): a later candidate replaces the leader
// only on a strictly greater score. If every score is zero, SEQUENTIAL is
// the default.
//
// The returned confidence is the winning score before normalization; the
// normalized value is always 1.0 and carries no information.
func selectStrategy(complexity float64, categories []models.TaskCategory, types []models.AgentType, taskCtx *Context) (models.StrategyKind, float64) {
	if len(types) == 1 {
		return models.StrategySingle, 1.0
	}

	agentCount := len(types)
	fileCount := len(taskCtx.Files)
	hasImports := len(taskCtx.Imports) > 0

	has := func(c models.TaskCategory) bool {
		for _, got := range categories {
			if got == c {
				return true
			}
		}
		return false
	}

	var sequential, parallel, pipeline, hierarchical, swarm float64

	// Complexity / agent-count heuristics.
	if complexity < 0.4 {
		sequential += 0.3
	}
	if agentCount <= 3 {
		sequential += 0.2
	}
	if complexity >= 0.4 && complexity < 0.7 {
		parallel += 0.2
	}
	if agentCount >= 3 {
		parallel += 0.3
	}
	if complexity >= 0.5 {
		pipeline += 0.2
	}
	if agentCount >= 4 {
		pipeline += 0.3
	}
	if complexity >= 0.7 {
		hierarchical += 0.4
	}
	if agentCount >= 5 {
		hierarchical += 0.3
	}
	if complexity >= 0.8 {
		swarm += 0.3
	}
	if agentCount >= 6 {
		swarm += 0.3
	}

	// Category bonuses.
	if has(models.CategoryBugFixing) {
		sequential += 0.2
	}
	if has(models.CategoryMaintenance) {
		sequential += 0.1
	}
	if has(models.CategoryTesting) {
		parallel += 0.3
	}
	if has(models.CategoryCodeGeneration) {
		parallel += 0.2
	}
	if has(models.CategoryCodeRefactoring) {
		pipeline += 0.3
	}
	if has(models.CategoryDeployment) {
		pipeline += 0.2
	}
	if has(models.CategoryArchitecture) {
		hierarchical += 0.4
		swarm += 0.1
	}
	if has(models.CategoryResearch) {
		hierarchical += 0.1
		swarm += 0.2
	}

	// Context bonuses.
	if fileCount >= 1 && fileCount <= 2 {
		sequential += 0.1
	}
	if fileCount >= 4 {
		parallel += 0.2
	}
	if hasImports {
		pipeline += 0.2
	}
	if fileCount >= 8 {
		hierarchical += 0.2
	}
	if fileCount >= 10 {
		swarm += 0.2
	}

	// Evaluation order is significant: later candidates replace the leader
	// only on a strictly greater score.
	candidates := []strategyScore{
		{models.StrategySequential, sequential},
		{models.StrategyParallel, parallel},
		{models.StrategyPipeline, pipeline},
		{models.StrategyHierarchical, hierarchical},
		{models.StrategySwarm, swarm},
	}

	best := candidates[0]
	var maxScore float64
	for _, c := range candidates {
		if c.score > maxScore {
			maxScore = c.score
		}
	}
	if maxScore == 0 {
		return models.StrategySequential, 0
	}
	for _, c := range candidates[1:] {
		if c.score/maxScore > best.score/maxScore {
			best = c
		}
	}
	return best.kind, best.score
}
