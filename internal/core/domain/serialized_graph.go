package domain

import (
	"iter"

	"go.trai.ch/zerr"
)

// edgeRange locates the dependency list of one node inside edgeData.
type edgeRange struct {
	start, end uint32
}

// SerializedGraph is the immutable snapshot of a finished run: one identity, one
// fingerprint and one ordered dependency list per node, all addressed by PrevIndex.
// It is built once from decoded data and only read afterwards.
type SerializedGraph struct {
	nodes        IndexVec[PrevIndex, DepNode]
	fingerprints IndexVec[PrevIndex, Fingerprint]
	edgeRanges   IndexVec[PrevIndex, edgeRange]
	edgeData     []PrevIndex
}

// EmptySerializedGraph returns a graph with no nodes.
func EmptySerializedGraph() *SerializedGraph {
	return &SerializedGraph{}
}

// NewSerializedGraph assembles a graph from three parallel arrays.
// It fails with ErrCorruptGraph when the arrays disagree in length or an edge points
// outside the graph.
func NewSerializedGraph(nodes []DepNode, fingerprints []Fingerprint, edges [][]PrevIndex) (*SerializedGraph, error) {
	if len(fingerprints) != len(nodes) || len(edges) != len(nodes) {
		return nil, zerr.With(zerr.With(zerr.With(ErrCorruptGraph,
			"nodes", len(nodes)),
			"fingerprints", len(fingerprints)),
			"edge_lists", len(edges))
	}

	total := 0
	for _, targets := range edges {
		total += len(targets)
	}

	ranges := NewIndexVec[PrevIndex, edgeRange](len(nodes))
	data := make([]PrevIndex, 0, total)
	for i, targets := range edges {
		start := uint32(len(data))
		for _, target := range targets {
			if int(target) >= len(nodes) {
				return nil, zerr.With(zerr.With(ErrCorruptGraph, "node", i), "edge_target", uint32(target))
			}
			data = append(data, target)
		}
		ranges.Push(edgeRange{start: start, end: uint32(len(data))})
	}

	return &SerializedGraph{
		nodes:        IndexVecFrom[PrevIndex](nodes),
		fingerprints: IndexVecFrom[PrevIndex](fingerprints),
		edgeRanges:   ranges,
		edgeData:     data,
	}, nil
}

// Len returns the number of slots, Null placeholders included.
func (g *SerializedGraph) Len() int {
	return g.nodes.Len()
}

// EdgeCount returns the total number of dependency edges.
func (g *SerializedGraph) EdgeCount() int {
	return len(g.edgeData)
}

// Node returns the identity stored at i.
func (g *SerializedGraph) Node(i PrevIndex) DepNode {
	return g.nodes.Get(i)
}

// Fingerprint returns the output fingerprint stored at i.
func (g *SerializedGraph) Fingerprint(i PrevIndex) Fingerprint {
	return g.fingerprints.Get(i)
}

// EdgesFrom returns the ordered dependencies of i. The slice aliases the graph
// and must not be modified.
func (g *SerializedGraph) EdgesFrom(i PrevIndex) []PrevIndex {
	r := g.edgeRanges.Get(i)
	return g.edgeData[r.start:r.end:r.end]
}

// Nodes iterates identities in index order.
func (g *SerializedGraph) Nodes() iter.Seq2[PrevIndex, DepNode] {
	return g.nodes.All()
}
