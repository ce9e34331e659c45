// Package graph provides the union-find and dependency-graph structures
// used to partition and order plan steps.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ShayCichocki/fanout/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found between steps.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrUnknownDependency indicates a step depends on a step number that is not in the graph.
var ErrUnknownDependency = errors.New("dependency on unknown step")

// DependencyGraph is a directed graph of step dependencies.
// Steps are nodes, and edges represent "depends on" relationships.
// It is not safe for concurrent mutation; build it once and read it.
type DependencyGraph struct {
	// nodes lists step numbers in ascending order.
	nodes []int
	// edges maps a step to the steps it depends on.
	edges map[int][]int
	// reverse maps a step to the steps that depend on it.
	reverse map[int][]int
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		edges:   make(map[int][]int),
		reverse: make(map[int][]int),
	}
}

// Build constructs the graph from steps.
// Returns an error if a cycle is detected or a dependency references an unknown step.
func (g *DependencyGraph) Build(steps []models.Step) error {
	for _, s := range steps {
		if _, exists := g.edges[s.Number]; exists {
			return fmt.Errorf("duplicate step %d", s.Number)
		}
		g.nodes = append(g.nodes, s.Number)
		g.edges[s.Number] = nil
	}
	sort.Ints(g.nodes)

	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, exists := g.edges[dep]; !exists {
				return fmt.Errorf("step %d: %w %d", s.Number, ErrUnknownDependency, dep)
			}
			g.edges[s.Number] = append(g.edges[s.Number], dep)
			g.reverse[dep] = append(g.reverse[dep], s.Number)
		}
	}

	if g.HasCycle() {
		return ErrCycleDetected
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[int]int, len(g.nodes))

	var visit func(n int) bool
	visit = func(n int) bool {
		colors[n] = 1
		for _, dep := range g.edges[n] {
			switch colors[dep] {
			case 1:
				return true
			case 0:
				if visit(dep) {
					return true
				}
			}
		}
		colors[n] = 2
		return false
	}

	for _, n := range g.nodes {
		if colors[n] == 0 && visit(n) {
			return true
		}
	}
	return false
}

// TopologicalOrder returns step numbers so that every dependency comes
// before its dependents. Among ready steps the lowest number goes first,
// which makes the order deterministic.
func (g *DependencyGraph) TopologicalOrder() ([]int, error) {
	remaining := make(map[int]int, len(g.nodes))
	var ready []int
	for _, n := range g.nodes {
		remaining[n] = len(g.edges[n])
		if remaining[n] == 0 {
			ready = append(ready, n)
		}
	}

	order := make([]int, 0, len(g.nodes))
	for len(ready) > 0 {
		sort.Ints(ready)
		n := ready[0]
		ready = ready[1:]
		order = append(order, n)

		for _, dependent := range g.reverse[n] {
			remaining[dependent]--
			if remaining[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) != len(g.nodes) {
		return nil, ErrCycleDetected
	}
	return order, nil
}

// Size returns the number of steps in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.nodes)
}

// Dependencies returns the steps that n depends on.
func (g *DependencyGraph) Dependencies(n int) []int {
	return g.edges[n]
}

// Dependents returns the steps that depend directly on n.
func (g *DependencyGraph) Dependents(n int) []int {
	return g.reverse[n]
}

// TransitiveDependents returns every step that depends on n directly or
// indirectly, in ascending order.
func (g *DependencyGraph) TransitiveDependents(n int) []int {
	seen := make(map[int]bool)
	stack := append([]int(nil), g.reverse[n]...)
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, g.reverse[cur]...)
	}

	out := make([]int, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Ints(out)
	return out
}
