package validator_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"testing/synctest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/incr/internal/core/domain"
	"go.trai.ch/incr/internal/core/ports"
	"go.trai.ch/incr/internal/core/ports/mocks"
	"go.trai.ch/incr/internal/engine/validator"
	"go.trai.ch/zerr"
	"go.uber.org/mock/gomock"
)

var (
	k1h1 = domain.NewDepNode(domain.KindSourceFile, "h1")
	k2h2 = domain.NewDepNode(domain.KindTask, "h2")
	fh1  = domain.FingerprintString("h1 output")
	fh2  = domain.FingerprintString("h2 output")
)

// fakeFingerprinter serves current fingerprints from a map and counts calls per node.
type fakeFingerprinter struct {
	mu      sync.Mutex
	current map[domain.DepNode]domain.Fingerprint
	calls   map[domain.DepNode]int
	errs    map[domain.DepNode]error
}

func newFakeFingerprinter(current map[domain.DepNode]domain.Fingerprint) *fakeFingerprinter {
	return &fakeFingerprinter{
		current: current,
		calls:   make(map[domain.DepNode]int),
		errs:    make(map[domain.DepNode]error),
	}
}

func (f *fakeFingerprinter) Fingerprint(_ context.Context, node domain.DepNode) (domain.Fingerprint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[node]++
	if err := f.errs[node]; err != nil {
		return domain.Fingerprint{}, err
	}
	fp, ok := f.current[node]
	if !ok {
		return domain.Fingerprint{}, domain.ErrUnknownDepNode
	}
	return fp, nil
}

func (f *fakeFingerprinter) callsFor(node domain.DepNode) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[node]
}

func buildGraph(t *testing.T, nodes []domain.DepNode, fps []domain.Fingerprint, edges [][]domain.PrevIndex) (*domain.PrevGraph, *domain.NodeStates) {
	t.Helper()
	store, err := domain.NewSerializedGraph(nodes, fps, edges)
	require.NoError(t, err)
	return domain.NewPrevGraphAndState(store)
}

// scenario is the store [Null, K1#h1, K2#h2] with K2 depending on K1.
func scenario(t *testing.T) (*domain.PrevGraph, *domain.NodeStates) {
	t.Helper()
	return buildGraph(t,
		[]domain.DepNode{domain.NullNode, k1h1, k2h2},
		[]domain.Fingerprint{domain.ZeroFingerprint, fh1, fh2},
		[][]domain.PrevIndex{nil, nil, {1}},
	)
}

func TestTryMarkGreen_UnchangedChainIsReused(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	prev, states := scenario(t)
	fp := mocks.NewMockFingerprinter(ctrl)
	fp.EXPECT().Fingerprint(gomock.Any(), k1h1).Return(fh1, nil).Times(1)
	fp.EXPECT().Fingerprint(gomock.Any(), k2h2).Return(fh2, nil).Times(1)

	v := validator.New(prev, states, fp)
	res, err := v.TryMarkGreen(context.Background(), k2h2)
	require.NoError(t, err)

	assert.True(t, res.Reusable())
	assert.Equal(t, domain.PrevIndex(2), res.Index)
	assert.Equal(t, domain.StateGreen, states.Load(1))
	assert.Equal(t, domain.StateGreen, states.Load(2))
}

func TestTryMarkGreen_ChangedDependencyInvalidatesDependent(t *testing.T) {
	prev, states := scenario(t)
	fp := newFakeFingerprinter(map[domain.DepNode]domain.Fingerprint{
		k1h1: domain.FingerprintString("edited"),
		k2h2: fh2,
	})

	v := validator.New(prev, states, fp)
	res, err := v.TryMarkGreen(context.Background(), k2h2)
	require.NoError(t, err)

	assert.False(t, res.Reusable())
	assert.Equal(t, domain.StateInvalid, res.State)
	assert.Equal(t, domain.StateInvalid, states.Load(1))
	assert.Equal(t, domain.StateInvalid, states.Load(2))
	// The dependent is invalidated without being fingerprinted.
	assert.Equal(t, 0, fp.callsFor(k2h2))
}

func TestTryMarkGreen_NewNode(t *testing.T) {
	prev, states := scenario(t)
	fp := newFakeFingerprinter(nil)

	v := validator.New(prev, states, fp)
	res, err := v.TryMarkGreen(context.Background(), domain.NewDepNode(domain.KindTask, "h9"))
	require.NoError(t, err)

	assert.True(t, res.New)
	assert.False(t, res.Reusable())
	assert.Equal(t,
		[]domain.NodeState{domain.StateInvalid, domain.StateUnknown, domain.StateUnknown},
		states.Snapshot())
}

func TestResolve_UnusedSlotIsInvalid(t *testing.T) {
	prev, states := scenario(t)
	fp := newFakeFingerprinter(nil)

	v := validator.New(prev, states, fp)
	state, err := v.Resolve(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInvalid, state)
}

func TestResolve_EdgeToUnusedSlotInvalidates(t *testing.T) {
	prev, states := buildGraph(t,
		[]domain.DepNode{domain.NullNode, k2h2},
		[]domain.Fingerprint{domain.ZeroFingerprint, fh2},
		[][]domain.PrevIndex{nil, {0}},
	)
	fp := newFakeFingerprinter(map[domain.DepNode]domain.Fingerprint{k2h2: fh2})

	state, err := validator.New(prev, states, fp).Resolve(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInvalid, state)
	assert.Equal(t, 0, fp.callsFor(k2h2))
}

func TestTryMarkGreen_Memoized(t *testing.T) {
	prev, states := scenario(t)
	fp := newFakeFingerprinter(map[domain.DepNode]domain.Fingerprint{k1h1: fh1, k2h2: fh2})
	v := validator.New(prev, states, fp)

	for range 3 {
		res, err := v.TryMarkGreen(context.Background(), k2h2)
		require.NoError(t, err)
		assert.True(t, res.Reusable())
	}
	assert.Equal(t, 1, fp.callsFor(k1h1))
	assert.Equal(t, 1, fp.callsFor(k2h2))
}

func TestTryMarkGreen_DiamondFingerprintsEachNodeOnce(t *testing.T) {
	bottom := domain.SourceFileNode("shared.go")
	left := domain.TaskNode("left")
	right := domain.TaskNode("right")
	top := domain.TaskNode("top")
	fps := []domain.Fingerprint{
		domain.FingerprintString("b"), domain.FingerprintString("l"),
		domain.FingerprintString("r"), domain.FingerprintString("t"),
	}
	prev, states := buildGraph(t,
		[]domain.DepNode{bottom, left, right, top},
		fps,
		[][]domain.PrevIndex{nil, {0}, {0}, {1, 2}},
	)
	fp := newFakeFingerprinter(map[domain.DepNode]domain.Fingerprint{
		bottom: fps[0], left: fps[1], right: fps[2], top: fps[3],
	})

	res, err := validator.New(prev, states, fp).TryMarkGreen(context.Background(), top)
	require.NoError(t, err)
	assert.True(t, res.Reusable())
	for _, n := range []domain.DepNode{bottom, left, right, top} {
		assert.Equal(t, 1, fp.callsFor(n), "node %s", n)
	}
}

func TestTryMarkGreen_InvalidDependencyStopsEarly(t *testing.T) {
	a := domain.SourceFileNode("a")
	b := domain.SourceFileNode("b")
	task := domain.TaskNode("t")
	prev, states := buildGraph(t,
		[]domain.DepNode{a, b, task},
		[]domain.Fingerprint{fh1, fh2, fh2},
		[][]domain.PrevIndex{nil, nil, {0, 1}},
	)
	fp := newFakeFingerprinter(map[domain.DepNode]domain.Fingerprint{
		a: domain.FingerprintString("changed"), b: fh2, task: fh2,
	})

	res, err := validator.New(prev, states, fp).TryMarkGreen(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInvalid, res.State)
	// Edges are visited in stored order; b is never needed.
	assert.Equal(t, 0, fp.callsFor(b))
	assert.Equal(t, domain.StateUnknown, states.Load(1))
}

func TestTryMarkGreen_UnknownDepNodeIsInvalid(t *testing.T) {
	prev, states := scenario(t)
	fp := newFakeFingerprinter(map[domain.DepNode]domain.Fingerprint{k2h2: fh2})

	res, err := validator.New(prev, states, fp).TryMarkGreen(context.Background(), k2h2)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInvalid, res.State)
	assert.Equal(t, domain.StateInvalid, states.Load(1))
}

func TestTryMarkGreen_FingerprintErrorReleasesClaims(t *testing.T) {
	prev, states := scenario(t)
	fp := newFakeFingerprinter(map[domain.DepNode]domain.Fingerprint{k1h1: fh1, k2h2: fh2})
	fp.errs[k2h2] = errors.New("disk on fire")
	v := validator.New(prev, states, fp)

	_, err := v.TryMarkGreen(context.Background(), k2h2)
	require.ErrorContains(t, err, "failed to fingerprint dep node")
	// The dependency was settled before the failure and stays settled.
	assert.Equal(t, domain.StateGreen, states.Load(1))
	assert.Equal(t, domain.StateUnknown, states.Load(2))

	delete(fp.errs, k2h2)
	res, err := v.TryMarkGreen(context.Background(), k2h2)
	require.NoError(t, err)
	assert.True(t, res.Reusable())
	assert.Equal(t, 1, fp.callsFor(k1h1))
}

func TestResolve_CycleInOneWalker(t *testing.T) {
	prev, states := buildGraph(t,
		[]domain.DepNode{k1h1, k2h2},
		[]domain.Fingerprint{fh1, fh2},
		[][]domain.PrevIndex{{1}, {0}},
	)
	fp := newFakeFingerprinter(map[domain.DepNode]domain.Fingerprint{k1h1: fh1, k2h2: fh2})

	_, err := validator.New(prev, states, fp).Resolve(context.Background(), 0)
	require.ErrorContains(t, err, domain.ErrCycleDetected.Error())

	zErr, ok := err.(*zerr.Error)
	require.True(t, ok, "expected *zerr.Error, got %T", err)
	assert.Equal(t, "0 -> 1 -> 0", zErr.Metadata()["cycle"])
	assert.Equal(t, []domain.NodeState{domain.StateUnknown, domain.StateUnknown}, states.Snapshot())
}

func TestResolve_CycleAcrossWalkers(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		// 0 -> {2, 1} and 1 -> {3, 0}; the leaves hold both walkers until each owns
		// its half of the cycle.
		a := domain.TaskNode("a")
		b := domain.TaskNode("b")
		leafA := domain.SourceFileNode("a.txt")
		leafB := domain.SourceFileNode("b.txt")
		fps := []domain.Fingerprint{fh1, fh2, fh1, fh2}
		prev, states := buildGraph(t,
			[]domain.DepNode{a, b, leafA, leafB},
			fps,
			[][]domain.PrevIndex{{2, 1}, {3, 0}, nil, nil},
		)

		gate := make(chan struct{})
		fp := func(ctx context.Context, node domain.DepNode) (domain.Fingerprint, error) {
			<-gate
			idx, _ := prev.LookupNode(node)
			return fps[idx], nil
		}
		v := validator.New(prev, states, ports.FingerprinterFunc(fp))

		errs := make([]error, 2)
		var wg sync.WaitGroup
		for i, root := range []domain.PrevIndex{0, 1} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = v.Resolve(context.Background(), root)
			}()
		}
		synctest.Wait()
		close(gate)
		wg.Wait()

		for i, err := range errs {
			require.ErrorContains(t, err, domain.ErrCycleDetected.Error(), "walker %d", i)
		}
		assert.Equal(t, domain.StateGreen, states.Load(2))
		assert.Equal(t, domain.StateGreen, states.Load(3))
		assert.Equal(t, domain.StateUnknown, states.Load(0))
		assert.Equal(t, domain.StateUnknown, states.Load(1))
	})
}

func TestResolveAll_ConcurrentIdempotence(t *testing.T) {
	prev, states := scenario(t)
	fp := newFakeFingerprinter(map[domain.DepNode]domain.Fingerprint{k1h1: fh1, k2h2: fh2})
	v := validator.New(prev, states, fp)

	nodes := make([]domain.DepNode, 64)
	for i := range nodes {
		if i%2 == 0 {
			nodes[i] = k2h2
		} else {
			nodes[i] = k1h1
		}
	}

	results, err := v.ResolveAll(context.Background(), nodes, 8)
	require.NoError(t, err)
	require.Len(t, results, len(nodes))
	for i, r := range results {
		assert.True(t, r.Reusable(), "result %d", i)
	}
	assert.Equal(t, 1, fp.callsFor(k1h1))
	assert.Equal(t, 1, fp.callsFor(k2h2))
}

func TestResolveAll_Order(t *testing.T) {
	prev, states := scenario(t)
	fp := newFakeFingerprinter(map[domain.DepNode]domain.Fingerprint{
		k1h1: domain.FingerprintString("changed"),
		k2h2: fh2,
	})
	fresh := domain.TaskNode("fresh")

	results, err := validator.New(prev, states, fp).ResolveAll(context.Background(),
		[]domain.DepNode{fresh, k2h2, k1h1}, 0)
	require.NoError(t, err)

	assert.True(t, results[0].New)
	assert.Equal(t, domain.StateInvalid, results[1].State)
	assert.Equal(t, domain.PrevIndex(1), results[2].Index)
	assert.Equal(t, domain.StateInvalid, results[2].State)
}

func TestResolve_CancelledWhileFingerprinting(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		prev, states := scenario(t)
		block := true
		fp := func(ctx context.Context, node domain.DepNode) (domain.Fingerprint, error) {
			if block {
				<-ctx.Done()
				return domain.Fingerprint{}, ctx.Err()
			}
			if node == k1h1 {
				return fh1, nil
			}
			return fh2, nil
		}
		v := validator.New(prev, states, ports.FingerprinterFunc(fp))

		ctx, cancel := context.WithCancel(context.Background())
		var err error
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, err = v.Resolve(ctx, 2)
		}()
		synctest.Wait()
		cancel()
		<-done

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, domain.StateUnknown, states.Load(1))
		assert.Equal(t, domain.StateUnknown, states.Load(2))

		block = false
		state, err := v.Resolve(context.Background(), 2)
		require.NoError(t, err)
		assert.Equal(t, domain.StateGreen, state)
	})
}

func TestResolve_WaiterCancelled(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		prev, states := scenario(t)
		gate := make(chan struct{})
		fp := func(_ context.Context, node domain.DepNode) (domain.Fingerprint, error) {
			<-gate
			if node == k1h1 {
				return fh1, nil
			}
			return fh2, nil
		}
		v := validator.New(prev, states, ports.FingerprinterFunc(fp))

		ownerDone := make(chan domain.NodeState, 1)
		go func() {
			s, _ := v.Resolve(context.Background(), 2)
			ownerDone <- s
		}()
		synctest.Wait()

		ctx, cancel := context.WithCancel(context.Background())
		var waitErr error
		waiterDone := make(chan struct{})
		go func() {
			defer close(waiterDone)
			_, waitErr = v.Resolve(ctx, 2)
		}()
		synctest.Wait()
		cancel()
		<-waiterDone
		require.ErrorIs(t, waitErr, context.Canceled)

		// The owner is unaffected by the waiter giving up.
		close(gate)
		assert.Equal(t, domain.StateGreen, <-ownerDone)
	})
}

func TestValidator_Metrics(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	prev, states := scenario(t)
	fp := newFakeFingerprinter(map[domain.DepNode]domain.Fingerprint{k1h1: fh1, k2h2: fh2})
	m := mocks.NewMockMetrics(ctrl)
	m.EXPECT().FingerprintComputed(domain.KindSourceFile)
	m.EXPECT().FingerprintComputed(domain.KindTask)
	m.EXPECT().NodeResolved(domain.KindSourceFile, domain.StateGreen)
	m.EXPECT().NodeResolved(domain.KindTask, domain.StateGreen)
	m.EXPECT().NodeNew(domain.KindTask)

	v := validator.New(prev, states, fp, validator.WithMetrics(m))
	_, err := v.TryMarkGreen(context.Background(), k2h2)
	require.NoError(t, err)
	_, err = v.TryMarkGreen(context.Background(), domain.TaskNode("fresh"))
	require.NoError(t, err)
}

func TestValidator_LogsCycles(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	prev, states := buildGraph(t,
		[]domain.DepNode{k1h1},
		[]domain.Fingerprint{fh1},
		[][]domain.PrevIndex{{0}},
	)
	logger := mocks.NewMockLogger(ctrl)
	logger.EXPECT().Warn("dependency cycle in previous graph: 0 -> 0")

	v := validator.New(prev, states, newFakeFingerprinter(nil), validator.WithLogger(logger))
	_, err := v.Resolve(context.Background(), 0)
	require.ErrorContains(t, err, domain.ErrCycleDetected.Error())
}
