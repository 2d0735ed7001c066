// Package ports defines the core interfaces for the application.
package ports

import (
	"context"
	"io"

	"go.trai.ch/incr/internal/core/domain"
)

// Executor defines the interface for executing tasks.
//
//go:generate go run go.uber.org/mock/mockgen -source=executor.go -destination=mocks/mock_executor.go -package=mocks
type Executor interface {
	// Execute runs the given task in the workspace root dir, streaming its output to
	// stdout and stderr. It returns an error if the task execution fails.
	Execute(ctx context.Context, task *domain.Task, dir string, stdout, stderr io.Writer) error
}
