// Package analyzer turns a natural-language task description into a
// TaskAnalysis: a complexity score, matched categories, the agent roles the
// task needs, and the coordination strategy that should execute it. Analysis
// is deterministic: identical inputs always produce identical output.
package analyzer

import (
	"math"
	"strings"
	"time"

	"github.com/cohortlabs/cohort/pkg/models"
)

// Complexity signal weights. They sum to 1.0; the result is clamped to
// [0.1, 1.0].
const (
	keywordWeight         = 0.25
	lengthWeight          = 0.15
	fileCountWeight       = 0.20
	domainDensityWeight   = 0.20
	interdependencyWeight = 0.20

	maxDescriptionLength = 1000
	maxFileSignal        = 10
	maxDomainMatches     = 5

	minComplexity = 0.1
	maxComplexity = 1.0
)

// Agent role thresholds on the complexity score.
const (
	plannerThreshold    = 0.5
	reviewerThreshold   = 0.6
	researcherThreshold = 0.8
)

// Context carries optional file metadata accompanying a task description.
type Context struct {
	// Files are paths the task is expected to touch.
	Files []string
	// Imports are modules the touched files import.
	Imports []string
}

// Analyze produces a TaskAnalysis for the given task text and optional
// context. Malformed input (empty text) yields the lowest-complexity default
// analysis rather than an error.
func Analyze(text string, taskCtx *Context) *models.TaskAnalysis {
	lower := strings.ToLower(strings.TrimSpace(text))
	if taskCtx == nil {
		taskCtx = &Context{}
	}

	complexity := scoreComplexity(lower, taskCtx)
	categories := classify(lower)
	types := requiredAgentTypes(complexity, categories)
	strategy, confidence := selectStrategy(complexity, categories, types, taskCtx)

	agentCount := len(types)
	return &models.TaskAnalysis{
		Complexity:               complexity,
		Categories:               categories,
		RequiredAgentTypes:       types,
		Strategy:                 strategy,
		Confidence:               confidence,
		Resources:                estimateResources(complexity, agentCount),
		RiskLevel:                assessRisk(complexity, categories),
		EstimatedDurationMinutes: estimateDuration(complexity, len(categories), agentCount),
		AnalyzedAt:               time.Now(),
	}
}

// scoreComplexity computes the weighted complexity score.
func scoreComplexity(lower string, taskCtx *Context) float64 {
	// Keyword signal: tier-weighted match count normalized by 10.
	var points float64
	for _, kw := range highComplexityKeywords {
		if strings.Contains(lower, kw) {
			points += 0.8
		}
	}
	for _, kw := range mediumComplexityKeywords {
		if strings.Contains(lower, kw) {
			points += 0.5
		}
	}
	for _, kw := range lowComplexityKeywords {
		if strings.Contains(lower, kw) {
			points -= 0.2
		}
	}
	keywordSignal := points / 10

	// Description length, capped at 1000 chars.
	lengthSignal := math.Min(float64(len(lower)), maxDescriptionLength) / maxDescriptionLength

	// File count, capped at 10 files.
	fileCount := len(taskCtx.Files)
	fileSignal := math.Min(float64(fileCount), maxFileSignal) / maxFileSignal

	// Domain keyword density, capped at 5 matches.
	domainMatches := 0
	for _, kw := range domainKeywords {
		if strings.Contains(lower, kw) {
			domainMatches++
		}
	}
	domainSignal := math.Min(float64(domainMatches), maxDomainMatches) / maxDomainMatches

	// Interdependency: files plus imports over 20, capped at 1.
	interdependency := math.Min(float64(fileCount+len(taskCtx.Imports))/20, 1.0)

	score := keywordSignal*keywordWeight +
		lengthSignal*lengthWeight +
		fileSignal*fileCountWeight +
		domainSignal*domainDensityWeight +
		interdependency*interdependencyWeight

	return math.Max(minComplexity, math.Min(maxComplexity, score))
}

// classify matches the lower-cased text against the category keyword lists.
// Texts matching nothing default to code generation.
func classify(lower string) []models.TaskCategory {
	var categories []models.TaskCategory
	for _, cat := range categoryOrder {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(lower, kw) {
				categories = append(categories, cat)
				break
			}
		}
	}
	if len(categories) == 0 {
		categories = []models.TaskCategory{models.CategoryCodeGeneration}
	}
	return categories
}

// requiredAgentTypes derives the roles the task needs. The general-purpose
// coder is always first; category roles and complexity-gated roles follow.
// Set semantics: duplicates collapse.
func requiredAgentTypes(complexity float64, categories []models.TaskCategory) []models.AgentType {
	types := []models.AgentType{models.AgentTypeCoder}
	seen := map[models.AgentType]bool{models.AgentTypeCoder: true}

	add := func(t models.AgentType) {
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}

	for _, cat := range categories {
		if t, ok := categoryAgentTypes[cat]; ok {
			add(t)
		}
	}
	if complexity > plannerThreshold || len(categories) > 2 {
		add(models.AgentTypePlanner)
	}
	if complexity > reviewerThreshold {
		add(models.AgentTypeReviewer)
	}
	if complexity > researcherThreshold {
		add(models.AgentTypeResearcher)
	}
	return types
}

// estimateResources projects the resource envelope for the task.
func estimateResources(complexity float64, agentCount int) models.ResourceRequirements {
	scale := 1 + 2*complexity
	rootN := math.Sqrt(float64(agentCount))
	return models.ResourceRequirements{
		MemoryMB:       100 * scale * rootN,
		CPUCores:       int(math.Ceil(scale)),
		APICalls:       int(math.Ceil(10 * scale * float64(agentCount))),
		TimeoutMinutes: int(math.Ceil(5 * scale * rootN)),
	}
}

// estimateDuration projects wall-clock minutes, discounted by the log of the
// agent count when more than one agent works the task.
func estimateDuration(complexity float64, categoryCount, agentCount int) int {
	parallelism := 1.0
	if agentCount > 1 {
		parallelism = math.Log(float64(agentCount)) + 1
	}
	return int(math.Ceil(10 * (1 + 5*complexity) * (float64(categoryCount) * 0.5) / parallelism))
}

// assessRisk buckets the risk score into a level. Architecture, deployment,
// and refactoring work push the score above the base complexity.
func assessRisk(complexity float64, categories []models.TaskCategory) models.RiskLevel {
	score := complexity
	for _, cat := range categories {
		switch cat {
		case models.CategoryArchitecture:
			score += 0.2
		case models.CategoryDeployment:
			score += 0.3
		case models.CategoryCodeRefactoring:
			score += 0.1
		}
	}

	switch {
	case score < 0.3:
		return models.RiskLow
	case score < 0.6:
		return models.RiskMedium
	case score < 0.8:
		return models.RiskHigh
	default:
		return models.RiskCritical
	}
}
