package ports

import "go.trai.ch/incr/internal/core/domain"

// Metrics collects counters about validation and task execution.
//
//go:generate mockgen -source=metrics.go -destination=mocks/mock_metrics.go -package=mocks
type Metrics interface {
	// NodeResolved counts a previous-run node reaching a terminal state.
	NodeResolved(kind domain.DepKind, state domain.NodeState)
	// NodeNew counts a node that did not exist in the previous run.
	NodeNew(kind domain.DepKind)
	// FingerprintComputed counts a current-run fingerprint computation.
	FingerprintComputed(kind domain.DepKind)
	// TaskFinished counts a task reaching a terminal status.
	TaskFinished(status domain.TaskStatus)
	// Flush writes the collected metrics to the file at path. An empty path is a no-op.
	Flush(path string) error
}
