package ports

import (
	"context"
	"io"

	"go.trai.ch/incr/internal/core/domain"
)

//go:generate mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks

// Telemetry records the progress of a run as a set of vertices, one per task.
type Telemetry interface {
	// Record starts a new vertex and returns a context carrying it.
	Record(ctx context.Context, name string, opts ...VertexOption) (context.Context, Vertex)
	// Close flushes and ends the recording session.
	Close() error
}

// Vertex is one unit of recorded work.
type Vertex interface {
	// Stdout returns a writer for the standard output of the work.
	Stdout() io.Writer
	// Stderr returns a writer for the error output of the work.
	Stderr() io.Writer
	// Log records a message on the vertex.
	Log(level domain.LogLevel, msg string)
	// Complete marks the vertex finished. A nil err means success.
	Complete(err error)
	// Cached marks the vertex as reused from the previous run.
	Cached()
}

// VertexConfig holds the settings of a vertex being started.
type VertexConfig struct {
	// Inputs names the vertices this one waits for.
	Inputs []string
}

// VertexOption configures a vertex.
type VertexOption func(*VertexConfig)

// WithInputs declares the vertices a new vertex depends on.
func WithInputs(names ...string) VertexOption {
	return func(c *VertexConfig) {
		c.Inputs = append(c.Inputs, names...)
	}
}

type vertexKey struct{}

// ContextWithVertex returns a copy of ctx carrying v.
func ContextWithVertex(ctx context.Context, v Vertex) context.Context {
	return context.WithValue(ctx, vertexKey{}, v)
}

// VertexFromContext returns the vertex carried by ctx, if any.
func VertexFromContext(ctx context.Context) (Vertex, bool) {
	v, ok := ctx.Value(vertexKey{}).(Vertex)
	return v, ok
}
