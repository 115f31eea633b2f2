package graph

import (
	"errors"
	"testing"

	"github.com/cohortlabs/cohort/pkg/models"
)

func steps(deps map[string][]string, order ...string) []*models.CoordinationStep {
	out := make([]*models.CoordinationStep, 0, len(order))
	for _, id := range order {
		out = append(out, &models.CoordinationStep{ID: id, DependsOn: deps[id]})
	}
	return out
}

func TestBuild_AcceptsDiamond(t *testing.T) {
	ss := steps(map[string][]string{
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}, "a", "b", "c", "d")

	if _, err := Build(ss); err != nil {
		t.Errorf("Build() = %v, want nil for an acyclic dependency graph", err)
	}
}

func TestBuild_RejectsCycle(t *testing.T) {
	t.Run("three-step loop", func(t *testing.T) {
		ss := steps(map[string][]string{
			"a": {"c"},
			"b": {"a"},
			"c": {"b"},
		}, "a", "b", "c")

		if _, err := Build(ss); !errors.Is(err, ErrCycleDetected) {
			t.Errorf("Build() error = %v, want ErrCycleDetected", err)
		}
	})

	t.Run("self dependency", func(t *testing.T) {
		ss := steps(map[string][]string{"a": {"a"}}, "a")

		if _, err := Build(ss); !errors.Is(err, ErrCycleDetected) {
			t.Errorf("Build() error = %v, want ErrCycleDetected", err)
		}
	})
}

func TestBuild_RejectsUnknownDependency(t *testing.T) {
	ss := steps(map[string][]string{"a": {"ghost"}}, "a")

	if _, err := Build(ss); err == nil {
		t.Error("Build() accepted a dependency on an unknown step")
	}
}
