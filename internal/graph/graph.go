// Package graph validates coordination step dependencies before a plan is
// registered for execution. Steps are nodes, and edges represent "blocked by"
// relationships.
package graph

import (
	"errors"
	"fmt"

	"github.com/cohortlabs/cohort/pkg/models"
)

// ErrCycleDetected indicates a circular dependency in a plan's steps.
var ErrCycleDetected = errors.New("circular dependency detected")

// StepGraph is a directed acyclic graph over a plan's coordination steps.
// It is built once per plan and read-only afterwards.
type StepGraph struct {
	// nodes maps step ID to the step itself.
	nodes map[string]*models.CoordinationStep
	// edges maps step ID to the IDs of steps it depends on.
	edges map[string][]string
}

// Build constructs the dependency graph from a plan's steps. Returns an
// error if a dependency references an unknown step or forms a cycle.
func Build(steps []*models.CoordinationStep) (*StepGraph, error) {
	g := &StepGraph{
		nodes: make(map[string]*models.CoordinationStep, len(steps)),
		edges: make(map[string][]string, len(steps)),
	}

	for _, step := range steps {
		g.nodes[step.ID] = step
		g.edges[step.ID] = nil
	}
	for _, step := range steps {
		for _, depID := range step.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return nil, fmt.Errorf("step %s depends on unknown step %s", step.ID, depID)
			}
			g.edges[step.ID] = append(g.edges[step.ID], depID)
		}
	}

	if g.hasCycle() {
		return nil, ErrCycleDetected
	}
	return g, nil
}

// hasCycle runs a depth-first search with coloring to detect back edges.
func (g *StepGraph) hasCycle() bool {
	// Color states: 0 = unvisited, 1 = in progress, 2 = done.
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 && visit(id) {
			return true
		}
	}
	return false
}
