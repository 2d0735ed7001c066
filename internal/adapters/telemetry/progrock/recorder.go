// Package progrock provides the Progrock implementation of the telemetry adapter.
package progrock

import (
	"context"
	"io"
	"sync"

	"github.com/opencontainers/go-digest"
	"github.com/vito/progrock"
	"go.trai.ch/incr/internal/core/ports"
)

var _ ports.Telemetry = (*Recorder)(nil)

// Recorder implements the ports.Telemetry interface using the vito/progrock library.
// Vertices are written to a progrock tape; when a console is set, task output and
// outcomes are mirrored to it line by line.
type Recorder struct {
	w   progrock.Writer
	rec *progrock.Recorder

	mu      sync.Mutex
	console io.Writer
}

// New creates a new Recorder with a default tape that mirrors to console.
// A nil console disables mirroring.
func New(console io.Writer) *Recorder {
	tape := progrock.NewTape()
	r := NewRecorder(tape)
	r.console = console
	return r
}

// NewRecorder creates a new Recorder with the given writer.
func NewRecorder(w progrock.Writer) *Recorder {
	rec := progrock.NewRecorder(w)
	return &Recorder{
		w:   w,
		rec: rec,
	}
}

// VertexDigest is the digest identifying the vertex of a named unit of work.
func VertexDigest(name string) digest.Digest {
	return digest.FromString(name)
}

// Record starts recording a new vertex. Inputs name other vertices by their
// unit of work, and are translated to their digests.
func (r *Recorder) Record(ctx context.Context, name string, opts ...ports.VertexOption) (context.Context, ports.Vertex) {
	cfg := &ports.VertexConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var vertexOpts []progrock.VertexOpt
	if len(cfg.Inputs) > 0 {
		inputs := make([]digest.Digest, len(cfg.Inputs))
		for i, in := range cfg.Inputs {
			inputs[i] = VertexDigest(in)
		}
		vertexOpts = append(vertexOpts, progrock.WithInputs(inputs...))
	}

	v := r.rec.Vertex(VertexDigest(name), name, vertexOpts...)
	vertex := &Vertex{vertex: v, name: name}
	if r.console != nil {
		vertex.console = &consoleWriter{mu: &r.mu, w: r.console, prefix: name + " | "}
	}
	return ports.ContextWithVertex(ctx, vertex), vertex
}

// Close flushes and closes the recording session.
func (r *Recorder) Close() error {
	// If the writer implements Close, call it.
	if c, ok := r.w.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
