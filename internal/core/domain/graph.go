// Package domain contains the core domain models of the incremental engine: the task
// graph declared by the user, node identities and fingerprints, the previous run's
// dependency graph and the per-run validity state.
package domain

import (
	"iter"
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Graph is the task graph declared in the workspace configuration.
type Graph struct {
	root           string
	statePath      string
	tasks          map[InternedString]Task
	dependents     map[InternedString][]InternedString
	executionOrder []InternedString
}

// NewGraph creates a new empty Graph.
func NewGraph() *Graph {
	return &Graph{
		tasks:      make(map[InternedString]Task),
		dependents: make(map[InternedString][]InternedString),
	}
}

// Root returns the directory the workspace was loaded from.
func (g *Graph) Root() string {
	return g.root
}

// SetRoot sets the workspace directory. Task inputs and outputs are relative to it.
func (g *Graph) SetRoot(root string) {
	g.root = root
}

// StatePath returns where the dependency graph of the last run is persisted.
func (g *Graph) StatePath() string {
	return g.statePath
}

// SetStatePath sets the persisted dependency graph location.
func (g *Graph) SetStatePath(path string) {
	g.statePath = path
}

// AddTask adds a task to the graph.
// It returns an error if a task with the same name already exists.
func (g *Graph) AddTask(t *Task) error {
	if _, exists := g.tasks[t.Name]; exists {
		return zerr.With(ErrTaskAlreadyExists, "task_name", t.Name.String())
	}
	g.tasks[t.Name] = *t
	for _, dep := range t.Dependencies {
		g.dependents[dep] = append(g.dependents[dep], t.Name)
	}
	g.executionOrder = nil
	return nil
}

// GetTask returns the task with the given name.
func (g *Graph) GetTask(name InternedString) (Task, bool) {
	t, ok := g.tasks[name]
	return t, ok
}

// TaskCount returns the number of tasks.
func (g *Graph) TaskCount() int {
	return len(g.tasks)
}

// Dependents returns the tasks that directly depend on name.
func (g *Graph) Dependents(name InternedString) []InternedString {
	return g.dependents[name]
}

// sortedNames returns task names in lexical order so that Validate is deterministic.
func (g *Graph) sortedNames() []InternedString {
	names := make([]InternedString, 0, len(g.tasks))
	for name := range g.tasks {
		names = append(names, name)
	}
	slices.SortFunc(names, func(a, b InternedString) int {
		return strings.Compare(a.String(), b.String())
	})
	return names
}

// Validate checks for missing dependencies and cycles and computes a dependencies-first
// execution order.
func (g *Graph) Validate() error {
	const (
		unvisited = iota
		visiting
		visited
	)

	order := make([]InternedString, 0, len(g.tasks))
	marks := make(map[InternedString]int, len(g.tasks))
	var path []InternedString

	var visit func(u InternedString) error
	visit = func(u InternedString) error {
		marks[u] = visiting
		path = append(path, u)

		task, exists := g.tasks[u]
		if !exists {
			return zerr.With(ErrMissingDependency, "dependency", u.String())
		}

		for _, dep := range task.Dependencies {
			switch marks[dep] {
			case visiting:
				return zerr.With(ErrCycleDetected, "cycle", cyclePath(path, dep))
			case unvisited:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		marks[u] = visited
		path = path[:len(path)-1]
		order = append(order, u)
		return nil
	}

	for _, name := range g.sortedNames() {
		if marks[name] == unvisited {
			if err := visit(name); err != nil {
				return err
			}
		}
	}

	g.executionOrder = order
	return nil
}

// cyclePath renders the part of path starting at dep, closed with dep again.
func cyclePath(path []InternedString, dep InternedString) string {
	start := slices.Index(path, dep)
	if start < 0 {
		start = 0
	}
	parts := make([]string, 0, len(path)-start+1)
	for _, node := range path[start:] {
		parts = append(parts, node.String())
	}
	parts = append(parts, dep.String())
	return strings.Join(parts, " -> ")
}

// Walk returns an iterator that yields tasks in execution order.
// It assumes Validate() has been called and returned nil.
func (g *Graph) Walk() iter.Seq[Task] {
	return func(yield func(Task) bool) {
		for _, name := range g.executionOrder {
			if !yield(g.tasks[name]) {
				return
			}
		}
	}
}
