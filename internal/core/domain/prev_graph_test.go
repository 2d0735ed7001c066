package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/incr/internal/core/domain"
)

var (
	k1h1 = domain.NewDepNode(domain.KindSourceFile, "h1")
	k2h2 = domain.NewDepNode(domain.KindTask, "h2")
	fh1  = domain.FingerprintString("content of h1")
	fh2  = domain.FingerprintString("content of h2")
)

// nullAndChain is the store [Null, K1#h1, K2#h2] with node2 -> node1.
func nullAndChain(t *testing.T) *domain.SerializedGraph {
	t.Helper()
	g, err := domain.NewSerializedGraph(
		[]domain.DepNode{domain.NullNode, k1h1, k2h2},
		[]domain.Fingerprint{domain.ZeroFingerprint, fh1, fh2},
		[][]domain.PrevIndex{nil, nil, {1}},
	)
	require.NoError(t, err)
	return g
}

func TestNewPrevGraphAndState_NullSlotIsUnused(t *testing.T) {
	prev, states := domain.NewPrevGraphAndState(nullAndChain(t))

	assert.Equal(t, []domain.PrevIndex{0}, prev.Unused())
	assert.Equal(t, 2, prev.IndexedCount())
	assert.Equal(t, 3, prev.NodeCount())

	idx, ok := prev.LookupNode(k1h1)
	require.True(t, ok)
	assert.Equal(t, domain.PrevIndex(1), idx)

	idx, ok = prev.LookupNode(k2h2)
	require.True(t, ok)
	assert.Equal(t, domain.PrevIndex(2), idx)

	assert.Equal(t,
		[]domain.NodeState{domain.StateInvalid, domain.StateUnknown, domain.StateUnknown},
		states.Snapshot())
	assert.Equal(t, []domain.PrevIndex{1}, prev.EdgesFrom(2))
	assert.Empty(t, prev.EdgesFrom(1))
}

func TestPrevGraph_IndexPartition(t *testing.T) {
	nodes := []domain.DepNode{
		domain.NullNode,
		domain.SourceFileNode("a.txt"),
		domain.NullNode,
		domain.TaskDefNode("build"),
		domain.TaskNode("build"),
		domain.NullNode,
	}
	fps := make([]domain.Fingerprint, len(nodes))
	edges := [][]domain.PrevIndex{nil, nil, nil, nil, {1, 3}, nil}
	store, err := domain.NewSerializedGraph(nodes, fps, edges)
	require.NoError(t, err)

	prev, states := domain.NewPrevGraphAndState(store)

	assert.Equal(t, store.Len(), prev.IndexedCount()+len(prev.Unused()))
	for _, i := range prev.Unused() {
		assert.True(t, store.Node(i).IsNull(), "unused slot %d", i)
		assert.Equal(t, domain.StateInvalid, states.Load(i))
	}
	for i, node := range store.Nodes() {
		if node.IsNull() {
			continue
		}
		assert.False(t, prev.IsUnused(i))
		assert.Equal(t, domain.StateUnknown, states.Load(i))

		got, ok := prev.LookupNode(node)
		require.True(t, ok)
		assert.Equal(t, i, got)
		assert.Equal(t, node, prev.IndexToNode(got))

		strict, err := prev.NodeToIndex(node)
		require.NoError(t, err)
		assert.Equal(t, i, strict)
	}
}

func TestPrevGraph_AbsentNode(t *testing.T) {
	prev, states := domain.NewPrevGraphAndState(nullAndChain(t))
	k3h9 := domain.NewDepNode(domain.KindTask, "h9")

	_, ok := prev.LookupNode(k3h9)
	assert.False(t, ok)

	_, ok = prev.FingerprintOf(k3h9)
	assert.False(t, ok)

	_, err := prev.NodeToIndex(k3h9)
	require.ErrorContains(t, err, domain.ErrNodeNotFound.Error())

	// A new node has no slot in the previous numbering.
	assert.Equal(t, 3, states.Len())
}

func TestPrevGraph_Fingerprints(t *testing.T) {
	prev, _ := domain.NewPrevGraphAndState(nullAndChain(t))

	fp, ok := prev.FingerprintOf(k2h2)
	require.True(t, ok)
	assert.Equal(t, fh2, fp)
	assert.Equal(t, fh1, prev.FingerprintByIndex(1))
}

func TestPrevGraph_NullNeverIndexed(t *testing.T) {
	prev, _ := domain.NewPrevGraphAndState(nullAndChain(t))

	_, ok := prev.LookupNode(domain.NullNode)
	assert.False(t, ok)
}

// Duplicate identities are not expected in a persisted graph. If they occur the later
// slot wins the lookup and the earlier one is only reachable through edges, so the
// index/unused partition no longer covers every slot.
func TestPrevGraph_DuplicateIdentityLastWins(t *testing.T) {
	store, err := domain.NewSerializedGraph(
		[]domain.DepNode{k1h1, domain.NullNode, k1h1},
		[]domain.Fingerprint{fh1, domain.ZeroFingerprint, fh2},
		[][]domain.PrevIndex{nil, nil, nil},
	)
	require.NoError(t, err)

	prev, states := domain.NewPrevGraphAndState(store)

	idx, ok := prev.LookupNode(k1h1)
	require.True(t, ok)
	assert.Equal(t, domain.PrevIndex(2), idx)

	fp, _ := prev.FingerprintOf(k1h1)
	assert.Equal(t, fh2, fp)

	assert.Equal(t, 1, prev.IndexedCount())
	assert.Len(t, prev.Unused(), 1)
	assert.Less(t, prev.IndexedCount()+len(prev.Unused()), prev.NodeCount())
	assert.Equal(t, domain.StateUnknown, states.Load(0))
}

func TestPrevGraph_Empty(t *testing.T) {
	prev, states := domain.NewPrevGraphAndState(nil)

	assert.Equal(t, 0, prev.NodeCount())
	assert.Equal(t, 0, states.Len())
	assert.Empty(t, prev.Unused())
}

func TestPrevGraph_IndexOutOfRangePanics(t *testing.T) {
	prev, _ := domain.NewPrevGraphAndState(nullAndChain(t))

	assert.Panics(t, func() { prev.IndexToNode(3) })
	assert.Panics(t, func() { prev.EdgesFrom(10) })
	assert.Panics(t, func() { prev.FingerprintByIndex(99) })
}
