package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/incr/internal/core/domain"
)

func TestCurrentGraph_ReserveAndComplete(t *testing.T) {
	g := domain.NewCurrentGraph(4)
	src := g.Intern(domain.SourceFileNode("main.go"), fh1, nil)

	slot := g.Reserve()
	assert.Equal(t, 2, g.NodeCount())

	task := domain.TaskNode("build")
	require.NoError(t, g.Complete(slot, task, fh2, []domain.CurIndex{src}))

	idx, ok := g.Lookup(task)
	require.True(t, ok)
	assert.Equal(t, slot, idx)

	// A slot can only be filled once.
	err := g.Complete(slot, domain.TaskNode("other"), fh2, nil)
	require.ErrorContains(t, err, domain.ErrSlotNotReserved.Error())
}

func TestCurrentGraph_CompleteRejectsDuplicates(t *testing.T) {
	g := domain.NewCurrentGraph(0)
	task := domain.TaskNode("build")
	g.Intern(task, fh1, nil)

	slot := g.Reserve()
	err := g.Complete(slot, task, fh2, nil)
	require.ErrorContains(t, err, domain.ErrNodeAlreadyRecorded.Error())
}

func TestCurrentGraph_CompleteRejectsBadEdges(t *testing.T) {
	g := domain.NewCurrentGraph(0)
	slot := g.Reserve()

	err := g.Complete(slot, domain.TaskNode("build"), fh1, []domain.CurIndex{9})
	require.ErrorContains(t, err, domain.ErrIndexOutOfRange.Error())

	err = g.Complete(slot, domain.NullNode, fh1, nil)
	require.ErrorContains(t, err, domain.ErrSlotNotReserved.Error())
}

func TestCurrentGraph_InternIsIdempotent(t *testing.T) {
	g := domain.NewCurrentGraph(0)
	first := g.Intern(k1h1, fh1, nil)
	second := g.Intern(k1h1, fh2, nil)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, g.NodeCount())

	store, err := g.Serialize()
	require.NoError(t, err)
	assert.Equal(t, fh1, store.Fingerprint(domain.PrevIndex(first)))
}

func TestCurrentGraph_UncompletedReservationStaysNull(t *testing.T) {
	g := domain.NewCurrentGraph(0)
	g.Intern(k1h1, fh1, nil)
	g.Reserve()

	store, err := g.Serialize()
	require.NoError(t, err)

	prev, states := domain.NewPrevGraphAndState(store)
	assert.Equal(t, []domain.PrevIndex{1}, prev.Unused())
	assert.Equal(t, domain.StateInvalid, states.Load(1))
	assert.Equal(t, domain.StateUnknown, states.Load(0))
}

func TestCurrentGraph_PromoteCopiesClosure(t *testing.T) {
	// Previous run: 0 src, 1 def, 2 lib -> {0, 1}, 3 app -> {2, 0}
	src := domain.SourceFileNode("lib.go")
	def := domain.TaskDefNode("lib")
	lib := domain.TaskNode("lib")
	app := domain.TaskNode("app")
	store, err := domain.NewSerializedGraph(
		[]domain.DepNode{src, def, lib, app},
		[]domain.Fingerprint{fh1, fh2, domain.FingerprintString("lib"), domain.FingerprintString("app")},
		[][]domain.PrevIndex{nil, nil, {0, 1}, {2, 0}},
	)
	require.NoError(t, err)
	prev, _ := domain.NewPrevGraphAndState(store)

	g := domain.NewCurrentGraph(prev.NodeCount())
	root := g.Promote(prev, 3)
	assert.Equal(t, 4, g.NodeCount())

	// Promoting a dependency again links to the existing copy.
	again := g.Promote(prev, 2)
	libIdx, ok := g.Lookup(lib)
	require.True(t, ok)
	assert.Equal(t, libIdx, again)
	assert.Equal(t, 4, g.NodeCount())

	out, err := g.Serialize()
	require.NoError(t, err)
	next, _ := domain.NewPrevGraphAndState(out)

	appIdx, ok := next.LookupNode(app)
	require.True(t, ok)
	assert.Equal(t, domain.PrevIndex(root), appIdx)
	assert.Equal(t, domain.FingerprintString("app"), next.FingerprintByIndex(appIdx))

	var deps []domain.DepNode
	for _, e := range next.EdgesFrom(appIdx) {
		deps = append(deps, next.IndexToNode(e))
	}
	assert.Equal(t, []domain.DepNode{lib, src}, deps)
}

func TestCurrentGraph_PromoteLinksRecordedNodes(t *testing.T) {
	store, err := domain.NewSerializedGraph(
		[]domain.DepNode{k1h1, k2h2},
		[]domain.Fingerprint{fh1, fh2},
		[][]domain.PrevIndex{nil, {0}},
	)
	require.NoError(t, err)
	prev, _ := domain.NewPrevGraphAndState(store)

	g := domain.NewCurrentGraph(0)
	g.Intern(domain.TaskNode("unrelated"), fh1, nil)
	recorded := g.Intern(k1h1, fh1, nil)

	root := g.Promote(prev, 1)
	assert.Equal(t, 3, g.NodeCount())

	out, err := g.Serialize()
	require.NoError(t, err)
	assert.Equal(t, []domain.PrevIndex{domain.PrevIndex(recorded)}, out.EdgesFrom(domain.PrevIndex(root)))
}

func TestCurrentGraph_PromoteCyclePanics(t *testing.T) {
	store, err := domain.NewSerializedGraph(
		[]domain.DepNode{k1h1, k2h2},
		[]domain.Fingerprint{fh1, fh2},
		[][]domain.PrevIndex{{1}, {0}},
	)
	require.NoError(t, err)
	prev, _ := domain.NewPrevGraphAndState(store)

	g := domain.NewCurrentGraph(0)
	assert.Panics(t, func() { g.Promote(prev, 0) })
}
