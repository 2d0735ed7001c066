package ports

import "go.trai.ch/incr/internal/core/domain"

// Hasher defines the interface for fingerprinting files on disk.
//
//go:generate mockgen -destination=mocks/mock_hasher.go -package=mocks -source=hasher.go
type Hasher interface {
	// HashFile fingerprints the content of one file. A missing file is not an error;
	// it hashes to domain.MissingFileFingerprint.
	HashFile(path string) (domain.Fingerprint, error)

	// HashOutputs fingerprints the listed outputs of a task, in order, relative to root.
	HashOutputs(root string, outputs []string) (domain.Fingerprint, error)
}
