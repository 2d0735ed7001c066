package domain

import "go.trai.ch/zerr"

// PrevGraph makes the previous run's SerializedGraph addressable by node identity.
// It is built once per run and is safe for concurrent reads afterwards.
type PrevGraph struct {
	data   *SerializedGraph
	index  map[DepNode]PrevIndex
	unused []PrevIndex
}

// NewPrevGraphAndState indexes data and derives the initial validity state of every
// slot in the same pass, so both share one numbering. Null slots are recorded as unused
// and start Invalid; every other slot starts Unknown. If data holds the same identity
// twice, the later slot wins the lookup entry.
func NewPrevGraphAndState(data *SerializedGraph) (*PrevGraph, *NodeStates) {
	if data == nil {
		data = EmptySerializedGraph()
	}

	n := data.Len()
	states := newNodeStates(n)
	index := make(map[DepNode]PrevIndex, n)
	var unused []PrevIndex

	for i, node := range data.Nodes() {
		if node.IsNull() {
			// Null slots come from indices the previous run allocated but never
			// finalized, or from pruned nodes.
			unused = append(unused, i)
			states.init(i, StateInvalid)
			continue
		}
		states.init(i, StateUnknown)
		index[node] = i
	}

	return &PrevGraph{data: data, index: index, unused: unused}, states
}

// Store returns the wrapped snapshot.
func (g *PrevGraph) Store() *SerializedGraph {
	return g.data
}

// EdgesFrom returns the dependencies node i had in the previous run, in recorded order.
func (g *PrevGraph) EdgesFrom(i PrevIndex) []PrevIndex {
	return g.data.EdgesFrom(i)
}

// IndexToNode returns the identity stored at i.
func (g *PrevGraph) IndexToNode(i PrevIndex) DepNode {
	return g.data.Node(i)
}

// NodeToIndex returns the index of a node that must have existed in the previous run.
// Use LookupNode when absence is an expected outcome.
func (g *PrevGraph) NodeToIndex(node DepNode) (PrevIndex, error) {
	i, ok := g.index[node]
	if !ok {
		return 0, zerr.With(ErrNodeNotFound, "node", node.String())
	}
	return i, nil
}

// LookupNode returns the index of node, or false if the node is new this run.
func (g *PrevGraph) LookupNode(node DepNode) (PrevIndex, bool) {
	i, ok := g.index[node]
	return i, ok
}

// FingerprintOf returns the previous output fingerprint of node, or false if the node is new.
func (g *PrevGraph) FingerprintOf(node DepNode) (Fingerprint, bool) {
	i, ok := g.index[node]
	if !ok {
		return Fingerprint{}, false
	}
	return g.data.Fingerprint(i), true
}

// FingerprintByIndex returns the fingerprint stored at i. Callers must not ask for an
// unused slot.
func (g *PrevGraph) FingerprintByIndex(i PrevIndex) Fingerprint {
	return g.data.Fingerprint(i)
}

// NodeCount returns the number of slots, Null placeholders included.
func (g *PrevGraph) NodeCount() int {
	return g.data.Len()
}

// IndexedCount returns the number of identities reachable through lookup.
func (g *PrevGraph) IndexedCount() int {
	return len(g.index)
}

// Unused returns the Null slots in ascending order.
func (g *PrevGraph) Unused() []PrevIndex {
	return g.unused
}

// IsUnused reports whether slot i holds no real node.
func (g *PrevGraph) IsUnused(i PrevIndex) bool {
	return g.data.Node(i).IsNull()
}
