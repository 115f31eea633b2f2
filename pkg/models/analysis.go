// Package models defines the shared data model for task analysis,
// coordination plans, and orchestration results.
package models

import "time"

// TaskCategory classifies the kind of work a task describes.
type TaskCategory string

const (
	// CategoryCodeGeneration indicates new code is being written.
	CategoryCodeGeneration TaskCategory = "code_generation"
	// CategoryCodeRefactoring indicates existing code is being restructured.
	CategoryCodeRefactoring TaskCategory = "code_refactoring"
	// CategoryBugFixing indicates a defect is being repaired.
	CategoryBugFixing TaskCategory = "bug_fixing"
	// CategoryTesting indicates tests are being written or run.
	CategoryTesting TaskCategory = "testing"
	// CategoryDocumentation indicates docs are being produced.
	CategoryDocumentation TaskCategory = "documentation"
	// CategoryResearch indicates investigation or analysis work.
	CategoryResearch TaskCategory = "research"
	// CategoryArchitecture indicates system design work.
	CategoryArchitecture TaskCategory = "architecture"
	// CategoryDeployment indicates release or infrastructure work.
	CategoryDeployment TaskCategory = "deployment"
	// CategoryMaintenance indicates upkeep like dependency updates.
	CategoryMaintenance TaskCategory = "maintenance"
)

// Valid returns true if the category is a known value.
func (c TaskCategory) Valid() bool {
	switch c {
	case CategoryCodeGeneration, CategoryCodeRefactoring, CategoryBugFixing,
		CategoryTesting, CategoryDocumentation, CategoryResearch,
		CategoryArchitecture, CategoryDeployment, CategoryMaintenance:
		return true
	default:
		return false
	}
}

// AgentType is the capability role an agent holds. Steps are matched to
// agents by type.
type AgentType string

const (
	// AgentTypeCoder is the general-purpose implementation role.
	AgentTypeCoder AgentType = "coder"
	// AgentTypeTester writes and runs tests.
	AgentTypeTester AgentType = "tester"
	// AgentTypeDocumenter produces documentation.
	AgentTypeDocumenter AgentType = "documenter"
	// AgentTypeResearcher investigates and gathers context.
	AgentTypeResearcher AgentType = "researcher"
	// AgentTypeDebugger isolates and fixes defects.
	AgentTypeDebugger AgentType = "debugger"
	// AgentTypeArchitect makes system design decisions.
	AgentTypeArchitect AgentType = "architect"
	// AgentTypePlanner decomposes work and sequences it.
	AgentTypePlanner AgentType = "planner"
	// AgentTypeReviewer reviews produced work.
	AgentTypeReviewer AgentType = "reviewer"
)

// Valid returns true if the agent type is a known value.
func (t AgentType) Valid() bool {
	switch t {
	case AgentTypeCoder, AgentTypeTester, AgentTypeDocumenter, AgentTypeResearcher,
		AgentTypeDebugger, AgentTypeArchitect, AgentTypePlanner, AgentTypeReviewer:
		return true
	default:
		return false
	}
}

// StrategyKind identifies one of the coordination patterns.
type StrategyKind string

const (
	// StrategySingle means one agent handles the task without a plan.
	StrategySingle StrategyKind = "single"
	// StrategySequential chains steps one after another.
	StrategySequential StrategyKind = "sequential"
	// StrategyParallel runs independent groups with bounded concurrency.
	StrategyParallel StrategyKind = "parallel"
	// StrategyPipeline streams work through ordered stages.
	StrategyPipeline StrategyKind = "pipeline"
	// StrategyHierarchical delegates work down a tree of agents.
	StrategyHierarchical StrategyKind = "hierarchical"
	// StrategySwarm coordinates autonomous agents by weighted consensus.
	StrategySwarm StrategyKind = "swarm"
)

// Valid returns true if the strategy kind is a known value.
func (k StrategyKind) Valid() bool {
	switch k {
	case StrategySingle, StrategySequential, StrategyParallel,
		StrategyPipeline, StrategyHierarchical, StrategySwarm:
		return true
	default:
		return false
	}
}

// RiskLevel buckets the risk score of a task.
type RiskLevel string

const (
	// RiskLow means the task is routine.
	RiskLow RiskLevel = "low"
	// RiskMedium means the task needs normal care.
	RiskMedium RiskLevel = "medium"
	// RiskHigh means the task touches sensitive areas.
	RiskHigh RiskLevel = "high"
	// RiskCritical means the task can break the system if mishandled.
	RiskCritical RiskLevel = "critical"
)

// Valid returns true if the risk level is a known value.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	default:
		return false
	}
}

// ResourceRequirements estimates what a task needs to execute.
type ResourceRequirements struct {
	// MemoryMB is the estimated peak memory in megabytes.
	MemoryMB float64 `json:"memory_mb"`
	// CPUCores is the estimated number of cores.
	CPUCores int `json:"cpu_cores"`
	// APICalls is the estimated number of model API calls.
	APICalls int `json:"api_calls"`
	// TimeoutMinutes is the recommended wall-clock budget.
	TimeoutMinutes int `json:"timeout_minutes"`
}

// TaskAnalysis is the immutable result of analyzing one task description.
// It is produced once per task and its values are copied into the plan.
type TaskAnalysis struct {
	// Complexity is the weighted complexity score in [0.1, 1.0].
	Complexity float64 `json:"complexity"`
	// Categories are the matched task categories, never empty.
	Categories []TaskCategory `json:"categories"`
	// RequiredAgentTypes are the roles needed, always including coder.
	RequiredAgentTypes []AgentType `json:"required_agent_types"`
	// Strategy is the chosen coordination pattern.
	Strategy StrategyKind `json:"strategy"`
	// Confidence is the raw (pre-normalization) score of the winning strategy.
	Confidence float64 `json:"confidence"`
	// Resources estimates what executing the task requires.
	Resources ResourceRequirements `json:"resources"`
	// RiskLevel buckets the task's risk score.
	RiskLevel RiskLevel `json:"risk_level"`
	// EstimatedDurationMinutes is the projected wall-clock duration.
	EstimatedDurationMinutes int `json:"estimated_duration_minutes"`
	// AnalyzedAt is when the analysis was produced.
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// HasCategory reports whether the analysis matched the given category.
func (a *TaskAnalysis) HasCategory(c TaskCategory) bool {
	for _, got := range a.Categories {
		if got == c {
			return true
		}
	}
	return false
}

// RequiresType reports whether the analysis requires the given agent type.
func (a *TaskAnalysis) RequiresType(t AgentType) bool {
	for _, got := range a.RequiredAgentTypes {
		if got == t {
			return true
		}
	}
	return false
}
