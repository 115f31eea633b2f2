package models

import (
	"math"
	"testing"
)

func TestAgentStatus_Valid(t *testing.T) {
	tests := []struct {
		name   string
		status AgentStatus
		want   bool
	}{
		{"initializing is valid", AgentInitializing, true},
		{"ready is valid", AgentReady, true},
		{"working is valid", AgentWorking, true},
		{"waiting is valid", AgentWaiting, true},
		{"error is valid", AgentError, true},
		{"completed is valid", AgentCompleted, true},
		{"terminated is valid", AgentTerminated, true},
		{"empty string is invalid", AgentStatus(""), false},
		{"unknown status is invalid", AgentStatus("sleeping"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.status.Valid(); got != tt.want {
				t.Errorf("AgentStatus(%q).Valid() = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestAgent_RecordOutcome(t *testing.T) {
	a := NewAgent("a1", AgentTypeCoder, []string{"implement"})

	if got := a.SuccessRate(); got != 1.0 {
		t.Fatalf("initial SuccessRate() = %v, want 1.0", got)
	}

	// One failure: 1.0*0.9 + 0.0*0.1 = 0.9
	a.RecordOutcome(false)
	if got := a.SuccessRate(); math.Abs(got-0.9) > 1e-9 {
		t.Errorf("after one failure SuccessRate() = %v, want 0.9", got)
	}

	// One success: 0.9*0.9 + 1.0*0.1 = 0.91
	a.RecordOutcome(true)
	if got := a.SuccessRate(); math.Abs(got-0.91) > 1e-9 {
		t.Errorf("after failure+success SuccessRate() = %v, want 0.91", got)
	}

	if got := a.Outcomes(); got != 2 {
		t.Errorf("Outcomes() = %d, want 2", got)
	}
}

func TestAgent_StatusTransitions(t *testing.T) {
	a := NewAgent("a1", AgentTypeTester, nil)

	if got := a.Status(); got != AgentInitializing {
		t.Fatalf("new agent status = %s, want %s", got, AgentInitializing)
	}

	a.SetStatus(AgentReady)
	a.SetStatus(AgentWorking)
	a.SetStatus(AgentTerminated)

	if got := a.Status(); got != AgentTerminated {
		t.Errorf("final status = %s, want %s", got, AgentTerminated)
	}
	if !a.Status().Terminal() {
		t.Error("terminated status should be terminal")
	}
}
