package models

import "time"

// OrchestrationMetrics aggregates outcomes across the orchestrator's
// lifetime. Averages are incremental means updated after every terminal
// task: avg' = (avg*(n-1) + x) / n.
type OrchestrationMetrics struct {
	// TotalTasks counts every task that reached a terminal state.
	TotalTasks int `json:"total_tasks"`
	// SuccessfulTasks counts tasks that completed successfully.
	SuccessfulTasks int `json:"successful_tasks"`
	// FailedTasks counts tasks that failed or were cancelled.
	FailedTasks int `json:"failed_tasks"`
	// AvgExecutionTime is the running mean of task wall-clock time.
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	// AvgAgentCount is the running mean of agents per task.
	AvgAgentCount float64 `json:"avg_agent_count"`
	// StrategyUsage counts tasks per coordination strategy.
	StrategyUsage map[StrategyKind]int `json:"strategy_usage"`
	// AgentTypeUsage counts acquired agents per type.
	AgentTypeUsage map[AgentType]int `json:"agent_type_usage"`
	// Efficiency is successful/total, zero before any task finishes.
	Efficiency float64 `json:"efficiency"`
}

// NewOrchestrationMetrics returns zeroed metrics with allocated histograms.
func NewOrchestrationMetrics() *OrchestrationMetrics {
	return &OrchestrationMetrics{
		StrategyUsage:  make(map[StrategyKind]int),
		AgentTypeUsage: make(map[AgentType]int),
	}
}

// Record folds one terminal task outcome into the metrics.
func (m *OrchestrationMetrics) Record(result *OrchestrationResult, agentTypes []AgentType) {
	m.TotalTasks++
	if result.Success {
		m.SuccessfulTasks++
	} else {
		m.FailedTasks++
	}

	n := m.TotalTasks
	m.AvgExecutionTime = time.Duration((int64(m.AvgExecutionTime)*int64(n-1) + int64(result.Duration)) / int64(n))
	m.AvgAgentCount = (m.AvgAgentCount*float64(n-1) + float64(result.AgentCount)) / float64(n)

	if result.Strategy != "" {
		m.StrategyUsage[result.Strategy]++
	}
	for _, t := range agentTypes {
		m.AgentTypeUsage[t]++
	}

	m.Efficiency = float64(m.SuccessfulTasks) / float64(m.TotalTasks)
}

// Clone returns a deep copy safe to hand to callers.
func (m *OrchestrationMetrics) Clone() *OrchestrationMetrics {
	out := *m
	out.StrategyUsage = make(map[StrategyKind]int, len(m.StrategyUsage))
	for k, v := range m.StrategyUsage {
		out.StrategyUsage[k] = v
	}
	out.AgentTypeUsage = make(map[AgentType]int, len(m.AgentTypeUsage))
	for k, v := range m.AgentTypeUsage {
		out.AgentTypeUsage[k] = v
	}
	return &out
}
