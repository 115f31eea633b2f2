package models

import (
	"math"
	"testing"
	"time"
)

func TestMetrics_IncrementalMeans(t *testing.T) {
	m := NewOrchestrationMetrics()

	m.Record(&OrchestrationResult{
		Success:    true,
		Strategy:   StrategySequential,
		AgentCount: 2,
		Duration:   10 * time.Second,
	}, []AgentType{AgentTypeCoder, AgentTypeTester})

	m.Record(&OrchestrationResult{
		Success:    false,
		Strategy:   StrategyParallel,
		AgentCount: 4,
		Duration:   30 * time.Second,
	}, []AgentType{AgentTypeCoder})

	if m.TotalTasks != 2 || m.SuccessfulTasks != 1 || m.FailedTasks != 1 {
		t.Errorf("counters = (%d, %d, %d), want (2, 1, 1)",
			m.TotalTasks, m.SuccessfulTasks, m.FailedTasks)
	}
	if m.AvgExecutionTime != 20*time.Second {
		t.Errorf("AvgExecutionTime = %v, want 20s", m.AvgExecutionTime)
	}
	if math.Abs(m.AvgAgentCount-3.0) > 1e-9 {
		t.Errorf("AvgAgentCount = %v, want 3.0", m.AvgAgentCount)
	}
	if math.Abs(m.Efficiency-0.5) > 1e-9 {
		t.Errorf("Efficiency = %v, want 0.5", m.Efficiency)
	}
	if m.StrategyUsage[StrategySequential] != 1 || m.StrategyUsage[StrategyParallel] != 1 {
		t.Errorf("StrategyUsage = %v, want one of each", m.StrategyUsage)
	}
	if m.AgentTypeUsage[AgentTypeCoder] != 2 {
		t.Errorf("AgentTypeUsage[coder] = %d, want 2", m.AgentTypeUsage[AgentTypeCoder])
	}
}

func TestMetrics_CloneIsIndependent(t *testing.T) {
	m := NewOrchestrationMetrics()
	m.Record(&OrchestrationResult{Success: true, Strategy: StrategySwarm, AgentCount: 5}, nil)

	clone := m.Clone()
	clone.StrategyUsage[StrategySwarm] = 99

	if m.StrategyUsage[StrategySwarm] != 1 {
		t.Errorf("mutating clone leaked into original: %v", m.StrategyUsage)
	}
}
