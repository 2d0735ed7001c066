package scheduler

import (
	"context"

	"go.trai.ch/incr/internal/core/domain"
	"go.trai.ch/incr/internal/engine/validator"
)

// PlanEntry is the predicted outcome of one task, without executing anything.
type PlanEntry struct {
	Task string
	// Reusable reports that the previous result would be reused.
	Reusable bool
	// New reports that the task has no record from a previous run.
	New bool
}

// Plan validates the selected tasks against the previous run and reports which of
// them a run would execute. Entries are in topological order. Nothing is saved.
func (s *Scheduler) Plan(ctx context.Context, graph *domain.Graph, targets []string, parallelism int) ([]PlanEntry, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}

	selected, _, err := resolveTasksToRun(graph, targets)
	if err != nil {
		return nil, err
	}

	var names []string
	var nodes []domain.DepNode
	for task := range graph.Walk() {
		if selected[task.Name] {
			names = append(names, task.Name.String())
			nodes = append(nodes, domain.TaskNode(task.Name.String()))
		}
	}

	prev, states := s.loadPrevious(graph.StatePath())
	fingerprints := newRunFingerprinter(graph, s.resolver, s.hasher)
	v := validator.New(prev, states, fingerprints,
		validator.WithLogger(s.logger), validator.WithMetrics(s.metrics))

	results, err := v.ResolveAll(ctx, nodes, parallelism)
	if err != nil {
		return nil, err
	}

	entries := make([]PlanEntry, len(results))
	for i, res := range results {
		entries[i] = PlanEntry{Task: names[i], Reusable: res.Reusable(), New: res.New}
	}
	return entries, nil
}
