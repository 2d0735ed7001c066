package scheduler

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/incr/internal/adapters/cas"                //nolint:depguard // Wired in engine wiring
	"go.trai.ch/incr/internal/adapters/fs"                 //nolint:depguard // Wired in engine wiring
	"go.trai.ch/incr/internal/adapters/logger"             //nolint:depguard // Wired in engine wiring
	"go.trai.ch/incr/internal/adapters/metrics"            //nolint:depguard // Wired in engine wiring
	"go.trai.ch/incr/internal/adapters/shell"              //nolint:depguard // Wired in engine wiring
	"go.trai.ch/incr/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/incr/internal/core/ports"
)

// NodeID is the unique identifier for the scheduler Graft node.
const NodeID graft.ID = "engine.scheduler"

func init() {
	graft.Register(graft.Node[*Scheduler]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			shell.NodeID,
			cas.NodeID,
			fs.HasherNodeID,
			fs.ResolverNodeID,
			fs.VerifierNodeID,
			progrock.NodeID,
			logger.NodeID,
			metrics.NodeID,
		},
		Run: func(ctx context.Context) (*Scheduler, error) {
			executor, err := graft.Dep[ports.Executor](ctx)
			if err != nil {
				return nil, err
			}

			store, err := graft.Dep[ports.GraphStore](ctx)
			if err != nil {
				return nil, err
			}

			hasher, err := graft.Dep[ports.Hasher](ctx)
			if err != nil {
				return nil, err
			}

			resolver, err := graft.Dep[ports.InputResolver](ctx)
			if err != nil {
				return nil, err
			}

			verifier, err := graft.Dep[ports.Verifier](ctx)
			if err != nil {
				return nil, err
			}

			telemetry, err := graft.Dep[ports.Telemetry](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			sink, err := graft.Dep[ports.Metrics](ctx)
			if err != nil {
				return nil, err
			}

			return NewScheduler(
				executor,
				store,
				hasher,
				resolver,
				verifier,
				telemetry,
				log,
				sink,
			), nil
		},
	})
}
