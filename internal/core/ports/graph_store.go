package ports

import "go.trai.ch/incr/internal/core/domain"

// GraphStore persists the dependency graph between runs. Every operation names the
// state file explicitly, since it is only known once the configuration is loaded.
//
//go:generate go run go.uber.org/mock/mockgen -source=graph_store.go -destination=mocks/mock_graph_store.go -package=mocks
type GraphStore interface {
	// Load returns the graph saved by the previous run.
	// It returns an empty graph, not an error, when nothing was saved yet.
	Load(path string) (*domain.SerializedGraph, error)

	// Save replaces the persisted graph.
	Save(path string, graph *domain.SerializedGraph) error

	// Clear removes the persisted graph.
	Clear(path string) error
}
