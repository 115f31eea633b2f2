package analyzer

import "github.com/cohortlabs/cohort/pkg/models"

// Keyword tiers for the complexity signal. High-tier matches contribute
// +0.8 each, medium +0.5, low -0.2; the summed signal is normalized by 10.
var (
	highComplexityKeywords = []string{
		"architecture", "distributed", "microservice", "security",
		"concurrency", "scalability", "migration", "migrate",
		"orchestrat", "integrat", "refactor", "optimize", "database",
		"authentication", "infrastructure", "protocol", "kubernetes",
	}
	mediumComplexityKeywords = []string{
		"implement", "design", "review", "api", "endpoint", "module",
		"service", "interface", "pipeline", "deploy", "configure",
		"parser", "cache", "queue",
	}
	lowComplexityKeywords = []string{
		"typo", "rename", "comment", "simple", "minor", "small",
		"tweak", "bump", "readme",
	}
)

// domainKeywords feed the domain-density signal, capped at 5 matches.
var domainKeywords = []string{
	"distributed", "microservice", "architecture", "security",
	"scalability", "database", "infrastructure", "deployment",
	"concurrency", "protocol", "consensus", "replication",
}

// categoryKeywords maps each task category to the substrings that select it.
// Matching is case-insensitive substring search; a text matching nothing
// defaults to code generation.
var categoryKeywords = map[models.TaskCategory][]string{
	models.CategoryCodeGeneration:  {"implement", "create", "add", "build", "write code", "generate"},
	models.CategoryCodeRefactoring: {"refactor", "restructure", "clean up", "simplify", "extract"},
	models.CategoryBugFixing:       {"bug", "crash", "broken", "regression", "defect", "not working"},
	models.CategoryTesting:         {"test", "coverage", "unit test", "integration test"},
	models.CategoryDocumentation:   {"document", "docs", "docstring", "changelog"},
	models.CategoryResearch:        {"research", "investigate", "explore", "evaluate", "compare"},
	models.CategoryArchitecture:    {"architecture", "design a", "system design", "microservice", "scalab"},
	models.CategoryDeployment:      {"deploy", "release", "rollout", "ci/cd", "provision"},
	models.CategoryMaintenance:     {"upgrade", "update dependencies", "maintain", "housekeeping", "chore"},
}

// categoryOrder fixes the evaluation order of categories so analysis output
// is deterministic.
var categoryOrder = []models.TaskCategory{
	models.CategoryCodeGeneration,
	models.CategoryCodeRefactoring,
	models.CategoryBugFixing,
	models.CategoryTesting,
	models.CategoryDocumentation,
	models.CategoryResearch,
	models.CategoryArchitecture,
	models.CategoryDeployment,
	models.CategoryMaintenance,
}

// categoryAgentTypes maps categories to the agent roles they require on top
// of the always-present coder.
var categoryAgentTypes = map[models.TaskCategory]models.AgentType{
	models.CategoryTesting:       models.AgentTypeTester,
	models.CategoryDocumentation: models.AgentTypeDocumenter,
	models.CategoryResearch:      models.AgentTypeResearcher,
	models.CategoryBugFixing:     models.AgentTypeDebugger,
	models.CategoryArchitecture:  models.AgentTypeArchitect,
}
