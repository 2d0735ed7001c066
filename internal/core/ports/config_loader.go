package ports

import "go.trai.ch/incr/internal/core/domain"

// ConfigLoader defines the interface for loading the build configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the configuration file at path, or the nearest one above the directory
	// path, and returns the validated task graph.
	Load(path string) (*domain.Graph, error)
}
