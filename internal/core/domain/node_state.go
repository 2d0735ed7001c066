package domain

import (
	"sync/atomic"

	"go.trai.ch/zerr"
)

// NodeState is the validity of one previous-run node within the current run.
type NodeState uint32

const (
	// StateUnknown means the node has not been evaluated yet this run.
	StateUnknown NodeState = iota
	// StateInvalid means the cached result cannot be reused.
	StateInvalid
	// StateGreen means the node and all its dependencies are unchanged and the
	// cached result is reused without recomputation.
	StateGreen
)

// String returns the lowercase name of the state.
func (s NodeState) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateInvalid:
		return "invalid"
	case StateGreen:
		return "green"
	default:
		return "unknown"
	}
}

// Resolved reports whether s is terminal.
func (s NodeState) Resolved() bool {
	return s == StateInvalid || s == StateGreen
}

// NodeStates holds one atomic validity cell per previous-run slot. Each cell moves
// away from StateUnknown at most once per run.
type NodeStates struct {
	cells IndexVec[PrevIndex, atomic.Uint32]
}

func newNodeStates(n int) *NodeStates {
	return &NodeStates{cells: IndexVecFrom[PrevIndex](make([]atomic.Uint32, n))}
}

// init is only used while the owning PrevGraph is being built.
func (s *NodeStates) init(i PrevIndex, state NodeState) {
	s.cells.At(i).Store(uint32(state))
}

// Len returns the number of cells.
func (s *NodeStates) Len() int {
	return s.cells.Len()
}

// Load returns the current state of i.
func (s *NodeStates) Load(i PrevIndex) NodeState {
	return NodeState(s.cells.At(i).Load())
}

// Resolve moves i from StateUnknown to verdict and returns the value that sticks.
// When another caller resolved i first, its verdict is returned unchanged.
func (s *NodeStates) Resolve(i PrevIndex, verdict NodeState) NodeState {
	if !verdict.Resolved() {
		panic(zerr.With(zerr.With(zerr.New("cannot resolve node to a non-terminal state"),
			"index", uint32(i)), "state", verdict.String()))
	}
	cell := s.cells.At(i)
	if cell.CompareAndSwap(uint32(StateUnknown), uint32(verdict)) {
		return verdict
	}
	return NodeState(cell.Load())
}

// Snapshot copies all states.
func (s *NodeStates) Snapshot() []NodeState {
	out := make([]NodeState, s.cells.Len())
	for i := range out {
		out[i] = s.Load(PrevIndex(i))
	}
	return out
}

// Count returns how many cells currently hold state.
func (s *NodeStates) Count(state NodeState) int {
	n := 0
	for i := range s.cells.Len() {
		if s.Load(PrevIndex(i)) == state {
			n++
		}
	}
	return n
}
