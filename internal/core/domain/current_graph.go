package domain

import (
	"sync"

	"go.trai.ch/zerr"
)

// CurrentGraph records the nodes the current run produced or reused. At the end of
// the run it is serialized and becomes the next run's previous graph.
//
// Slots are allocated either finished (Intern, Promote) or as Null reservations
// (Reserve) that are filled once the node's work succeeds. Reservations that are
// never completed stay Null.
type CurrentGraph struct {
	mu           sync.Mutex
	nodes        IndexVec[CurIndex, DepNode]
	fingerprints IndexVec[CurIndex, Fingerprint]
	edges        IndexVec[CurIndex, []CurIndex]
	index        map[DepNode]CurIndex
	promoted     map[PrevIndex]CurIndex
}

// NewCurrentGraph returns an empty graph sized for about capacity nodes.
func NewCurrentGraph(capacity int) *CurrentGraph {
	return &CurrentGraph{
		nodes:        NewIndexVec[CurIndex, DepNode](capacity),
		fingerprints: NewIndexVec[CurIndex, Fingerprint](capacity),
		edges:        NewIndexVec[CurIndex, []CurIndex](capacity),
		index:        make(map[DepNode]CurIndex, capacity),
		promoted:     make(map[PrevIndex]CurIndex),
	}
}

func (g *CurrentGraph) push(node DepNode, fp Fingerprint, edges []CurIndex) CurIndex {
	idx := g.nodes.Push(node)
	g.fingerprints.Push(fp)
	g.edges.Push(edges)
	if !node.IsNull() {
		g.index[node] = idx
	}
	return idx
}

// Reserve allocates a Null slot for a node whose work has not finished yet.
func (g *CurrentGraph) Reserve() CurIndex {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.push(NullNode, ZeroFingerprint, nil)
}

// Complete fills a reserved slot.
func (g *CurrentGraph) Complete(idx CurIndex, node DepNode, fp Fingerprint, edges []CurIndex) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.nodes.InBounds(idx) || !g.nodes.Get(idx).IsNull() {
		return zerr.With(ErrSlotNotReserved, "index", uint32(idx))
	}
	if node.IsNull() {
		return zerr.With(ErrSlotNotReserved, "node", node.String())
	}
	if existing, ok := g.index[node]; ok {
		return zerr.With(zerr.With(ErrNodeAlreadyRecorded, "node", node.String()), "index", uint32(existing))
	}
	if err := g.checkEdges(edges); err != nil {
		return err
	}

	g.nodes.Set(idx, node)
	g.fingerprints.Set(idx, fp)
	g.edges.Set(idx, edges)
	g.index[node] = idx
	return nil
}

// Intern records node unless it is already present, and returns its index.
// An existing entry keeps its original fingerprint and edges.
func (g *CurrentGraph) Intern(node DepNode, fp Fingerprint, edges []CurIndex) CurIndex {
	g.mu.Lock()
	defer g.mu.Unlock()

	if idx, ok := g.index[node]; ok {
		return idx
	}
	if err := g.checkEdges(edges); err != nil {
		panic(err)
	}
	return g.push(node, fp, edges)
}

// Promote copies a reused previous-run node, and every dependency it had, into the
// current graph. Nodes that are already present are linked rather than copied.
func (g *CurrentGraph) Promote(prev *PrevGraph, root PrevIndex) CurIndex {
	g.mu.Lock()
	defer g.mu.Unlock()

	type frame struct {
		idx  PrevIndex
		next int
	}

	if idx, ok := g.promotedIndex(prev, root); ok {
		return idx
	}

	stack := []frame{{idx: root}}
	onStack := map[PrevIndex]bool{root: true}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		deps := prev.EdgesFrom(top.idx)

		if top.next < len(deps) {
			dep := deps[top.next]
			top.next++
			if _, ok := g.promotedIndex(prev, dep); !ok {
				if onStack[dep] {
					panic(zerr.With(ErrCycleDetected, "index", uint32(dep)))
				}
				onStack[dep] = true
				stack = append(stack, frame{idx: dep})
			}
			continue
		}

		edges := make([]CurIndex, len(deps))
		for i, dep := range deps {
			edges[i] = g.promoted[dep]
		}
		node := prev.IndexToNode(top.idx)
		cur := g.push(node, prev.FingerprintByIndex(top.idx), edges)
		g.promoted[top.idx] = cur
		delete(onStack, top.idx)
		stack = stack[:len(stack)-1]
	}

	return g.promoted[root]
}

// promotedIndex resolves a previous-run index that already has a current slot,
// either from an earlier promotion or because the same identity was recorded directly.
func (g *CurrentGraph) promotedIndex(prev *PrevGraph, i PrevIndex) (CurIndex, bool) {
	if idx, ok := g.promoted[i]; ok {
		return idx, true
	}
	if idx, ok := g.index[prev.IndexToNode(i)]; ok {
		g.promoted[i] = idx
		return idx, true
	}
	return 0, false
}

func (g *CurrentGraph) checkEdges(edges []CurIndex) error {
	for _, e := range edges {
		if !g.nodes.InBounds(e) {
			return zerr.With(ErrIndexOutOfRange, "index", uint32(e))
		}
	}
	return nil
}

// Lookup returns the current index of node.
func (g *CurrentGraph) Lookup(node DepNode) (CurIndex, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.index[node]
	return idx, ok
}

// NodeCount returns the number of slots, reservations included.
func (g *CurrentGraph) NodeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes.Len()
}

// Serialize snapshots the graph in the layout the next run loads. Current indices
// become the next run's previous indices one to one.
func (g *CurrentGraph) Serialize() (*SerializedGraph, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := g.nodes.Len()
	nodes := make([]DepNode, n)
	fps := make([]Fingerprint, n)
	edges := make([][]PrevIndex, n)

	for i, node := range g.nodes.All() {
		nodes[i] = node
		fps[i] = g.fingerprints.Get(i)
		deps := g.edges.Get(i)
		if node.IsNull() || len(deps) == 0 {
			continue
		}
		out := make([]PrevIndex, len(deps))
		for j, d := range deps {
			out[j] = PrevIndex(d)
		}
		edges[i] = out
	}

	return NewSerializedGraph(nodes, fps, edges)
}
