package metrics_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/incr/internal/adapters/metrics"
	"go.trai.ch/incr/internal/core/domain"
)

func TestRecorder_Counts(t *testing.T) {
	r := metrics.New()

	r.NodeResolved(domain.KindTask, domain.StateGreen)
	r.NodeResolved(domain.KindTask, domain.StateGreen)
	r.NodeResolved(domain.KindSourceFile, domain.StateInvalid)
	r.NodeNew(domain.KindTaskDef)
	r.FingerprintComputed(domain.KindSourceFile)
	r.TaskFinished(domain.TaskCached)
	r.TaskFinished(domain.TaskFailed)

	count, err := testutil.GatherAndCount(r.Registry())
	require.NoError(t, err)
	assert.Equal(t, 6, count)

	count, err = testutil.GatherAndCount(r.Registry(), "incr_nodes_resolved_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "one series per kind and state")
}

func TestRecorder_FlushWritesTextfile(t *testing.T) {
	r := metrics.New()
	r.TaskFinished(domain.TaskCompleted)

	path := filepath.Join(t.TempDir(), "out", "incr.prom")
	require.NoError(t, r.Flush(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `incr_tasks_finished_total{status="completed"} 1`)
}

func TestRecorder_FlushWithoutPath(t *testing.T) {
	r := metrics.New()
	require.NoError(t, r.Flush(""))
}

func TestRecorder_Independent(t *testing.T) {
	a := metrics.New()
	b := metrics.New()
	a.NodeNew(domain.KindTask)

	count, err := testutil.GatherAndCount(b.Registry())
	require.NoError(t, err)
	assert.Zero(t, count)
}
