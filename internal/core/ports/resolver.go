package ports

// InputResolver defines the interface for resolving input files.
//
//go:generate mockgen -destination=mocks/mock_resolver.go -package=mocks -source=resolver.go
type InputResolver interface {
	// ResolveInputs expands the given input patterns to concrete file paths relative to
	// root. Directories are expanded to the files below them. A literal path that does not
	// exist is kept; a glob that matches nothing contributes no paths.
	ResolveInputs(inputs []string, root string) ([]string, error)
}
