package stack

import (
	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/iterator"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// GraphView adapts a Graph to gonum's graph.Directed so gonum algorithms run
// directly on the arena. Node IDs are StateIDs; parallel edges collapse.
type GraphView struct {
	g *Graph
}

// View returns a gonum view of g.
func View(g *Graph) GraphView { return GraphView{g: g} }

func (v GraphView) valid(id int64) bool {
	return id >= 0 && id < int64(v.g.NumStates())
}

// Node implements graph.Graph.
func (v GraphView) Node(id int64) graph.Node {
	if !v.valid(id) {
		return nil
	}
	return simple.Node(id)
}

// Nodes implements graph.Graph.
func (v GraphView) Nodes() graph.Nodes {
	return iterator.NewImplicitNodes(0, v.g.NumStates(), func(id int) graph.Node { return simple.Node(id) })
}

func (v GraphView) neighbours(edges []EdgeID, target bool) graph.Nodes {
	ids := make([]int64, 0, len(edges))
	for _, eid := range edges {
		e := v.g.Edge(eid)
		if target {
			ids = append(ids, int64(e.Target))
		} else {
			ids = append(ids, int64(e.Source))
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)
	nodes := make([]graph.Node, len(ids))
	for i, id := range ids {
		nodes[i] = simple.Node(id)
	}
	return iterator.NewOrderedNodes(nodes)
}

// From implements graph.Graph.
func (v GraphView) From(id int64) graph.Nodes {
	if !v.valid(id) {
		return iterator.NewOrderedNodes(nil)
	}
	return v.neighbours(v.g.Out(StateID(id)), true)
}

// To implements graph.Directed.
func (v GraphView) To(id int64) graph.Nodes {
	if !v.valid(id) {
		return iterator.NewOrderedNodes(nil)
	}
	return v.neighbours(v.g.In(StateID(id)), false)
}

// HasEdgeFromTo implements graph.Directed.
func (v GraphView) HasEdgeFromTo(uid, vid int64) bool {
	if !v.valid(uid) || !v.valid(vid) {
		return false
	}
	for _, eid := range v.g.Out(StateID(uid)) {
		if v.g.Edge(eid).Target == StateID(vid) {
			return true
		}
	}
	return false
}

// HasEdgeBetween implements graph.Graph.
func (v GraphView) HasEdgeBetween(xid, yid int64) bool {
	return v.HasEdgeFromTo(xid, yid) || v.HasEdgeFromTo(yid, xid)
}

// Edge implements graph.Graph.
func (v GraphView) Edge(uid, vid int64) graph.Edge {
	if !v.HasEdgeFromTo(uid, vid) {
		return nil
	}
	return simple.Edge{F: simple.Node(uid), T: simple.Node(vid)}
}

// components returns the strongly connected components of g, successors
// before predecessors, each sorted by StateID.
func components(g *Graph) [][]StateID {
	sccs := topo.TarjanSCC(View(g))
	out := make([][]StateID, len(sccs))
	for i, c := range sccs {
		ids := make([]StateID, len(c))
		for j, n := range c {
			ids[j] = StateID(n.ID())
		}
		slices.Sort(ids)
		out[i] = ids
	}
	return out
}

// CyclicRegions returns the strongly connected components that contain a
// cycle: more than one state, or a single state with an edge to itself.
// Regions are ordered by their smallest StateID.
func CyclicRegions(g *Graph) [][]StateID {
	var regions [][]StateID
	for _, c := range components(g) {
		if len(c) > 1 || View(g).HasEdgeFromTo(int64(c[0]), int64(c[0])) {
			regions = append(regions, c)
		}
	}
	slices.SortFunc(regions, func(a, b []StateID) bool { return a[0] < b[0] })
	return regions
}
