package progrock_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/incr/internal/adapters/telemetry/progrock"
	"go.trai.ch/incr/internal/core/ports"
)

func TestNew(t *testing.T) {
	recorder := progrock.New(nil)
	assert.NotNil(t, recorder)
}

func TestRecorder_ContextCarriesVertex(t *testing.T) {
	recorder := progrock.New(nil)

	ctx, vertex := recorder.Record(context.Background(), "build", ports.WithInputs("gen"))
	got, ok := ports.VertexFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, vertex, got)

	vertex.Complete(nil)
	require.NoError(t, recorder.Close())
}

func TestRecorder_MirrorsToConsole(t *testing.T) {
	var console bytes.Buffer
	recorder := progrock.New(&console)

	_, build := recorder.Record(context.Background(), "build")
	_, err := build.Stdout().Write([]byte("compiling\nlink"))
	require.NoError(t, err)
	build.Complete(nil)

	_, gen := recorder.Record(context.Background(), "gen")
	gen.Cached()

	_, test := recorder.Record(context.Background(), "test")
	test.Complete(errors.New("exit status 1"))

	require.NoError(t, recorder.Close())

	assert.Equal(t,
		"build | compiling\n"+
			"build | link\n"+
			"build | done\n"+
			"gen | cached\n"+
			"test | failed: exit status 1\n",
		console.String())
}

func TestVertexDigest_Stable(t *testing.T) {
	assert.Equal(t, progrock.VertexDigest("build"), progrock.VertexDigest("build"))
	assert.NotEqual(t, progrock.VertexDigest("build"), progrock.VertexDigest("test"))
}
