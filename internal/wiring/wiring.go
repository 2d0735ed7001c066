// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.trai.ch/incr/internal/adapters/cas"
	_ "go.trai.ch/incr/internal/adapters/config"
	_ "go.trai.ch/incr/internal/adapters/fs"
	_ "go.trai.ch/incr/internal/adapters/logger"
	_ "go.trai.ch/incr/internal/adapters/metrics"
	_ "go.trai.ch/incr/internal/adapters/shell"
	_ "go.trai.ch/incr/internal/adapters/telemetry/progrock"
	// Register app and engine nodes.
	_ "go.trai.ch/incr/internal/app"
	_ "go.trai.ch/incr/internal/engine/scheduler"
)
