package domain

const (
	// ConfigFileName is the name of the workspace configuration file.
	ConfigFileName = "incr.yaml"

	// DefaultStatePath is where the dependency graph is persisted, relative to the workspace root.
	DefaultStatePath = ".incr/graph.lz4"

	// ConfigVersion is the configuration format version understood by this build.
	ConfigVersion = "1"
)
