package ports

// Verifier defines the interface for verifying file existence.
//
//go:generate mockgen -destination=mocks/mock_verifier.go -package=mocks -source=verifier.go
type Verifier interface {
	// VerifyOutputs checks if all output files exist in the given root directory.
	// It returns the outputs that are missing.
	VerifyOutputs(root string, outputs []string) ([]string, error)
}
