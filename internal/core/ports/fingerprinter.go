package ports

import (
	"context"

	"go.trai.ch/incr/internal/core/domain"
)

// Fingerprinter computes the current-run output fingerprint of a dep node that existed
// in the previous run.
//
// When the node cannot be reconstructed from the current run, for example because its
// task was removed, implementations return an error matching domain.ErrUnknownDepNode
// under errors.Is. Any other error aborts validation.
//
//go:generate mockgen -source=fingerprinter.go -destination=mocks/mock_fingerprinter.go -package=mocks
type Fingerprinter interface {
	Fingerprint(ctx context.Context, node domain.DepNode) (domain.Fingerprint, error)
}

// FingerprinterFunc adapts a function to the Fingerprinter interface.
type FingerprinterFunc func(ctx context.Context, node domain.DepNode) (domain.Fingerprint, error)

// Fingerprint calls f.
func (f FingerprinterFunc) Fingerprint(ctx context.Context, node domain.DepNode) (domain.Fingerprint, error) {
	return f(ctx, node)
}
