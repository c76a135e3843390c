package stack

import "math"

// MaxPathResult is the heaviest path from the start state, or a cycle that
// proves there is none.
type MaxPathResult struct {
	Depth int      // bytes, when bounded
	Path  []EdgeID // witness of Depth, from the start state

	Unbounded bool
	Prefix    []EdgeID // start state to the first state of Cycle
	Cycle     []EdgeID // closed walk with non-zero total weight
}

// MaxPath computes the maximal path of the analyzer's graph.
func (a *Analyzer) MaxPath() MaxPathResult { return MaxPath(a.graph) }

// MaxPath computes the maximum stack depth reachable from the start state.
//
// Strongly connected components are processed successors first. Inside a
// component, breadth-first search assigns each state a potential p so that
// every intra-component edge u->v has p(v) = p(u) + w; an edge that breaks
// this closes a cycle of non-zero weight and the stack is unbounded.
// Otherwise every path inside the component from n to x weighs p(x) - p(n),
// and the best continuation from n is max over x of p(x) + exit(x), minus
// p(n), where exit(x) is the best edge leaving the component from x (or 0,
// stopping at x).
func MaxPath(g *Graph) MaxPathResult {
	n := g.NumStates()
	sccs := components(g)
	comp := make([]int, n)
	for ci, c := range sccs {
		for _, id := range c {
			comp[id] = ci
		}
	}

	pot := make([]int, n)
	seen := make([]bool, n)
	parent := make([]EdgeID, n)
	val := make([]int, n)
	best := make([]StateID, len(sccs))
	bestExit := make([]EdgeID, len(sccs))

	for ci, c := range sccs {
		root := c[0]
		seen[root] = true
		parent[root] = -1
		order := []StateID{root}
		for i := 0; i < len(order); i++ {
			u := order[i]
			for _, eid := range g.Out(u) {
				e := g.Edge(eid)
				if comp[e.Target] != ci {
					continue
				}
				if !seen[e.Target] {
					seen[e.Target] = true
					pot[e.Target] = pot[u] + e.Weight
					parent[e.Target] = eid
					order = append(order, e.Target)
					continue
				}
				if pot[e.Target] != pot[u]+e.Weight {
					return unboundedAt(g, comp, root, parent, pot, eid)
				}
			}
		}

		score, bx, be := math.MinInt, root, EdgeID(-1)
		for _, x := range order {
			ex, exEdge := 0, EdgeID(-1)
			for _, eid := range g.Out(x) {
				e := g.Edge(eid)
				if comp[e.Target] == ci {
					continue
				}
				if v := e.Weight + val[e.Target]; v > ex {
					ex, exEdge = v, eid
				}
			}
			if s := pot[x] + ex; s > score {
				score, bx, be = s, x, exEdge
			}
		}
		best[ci], bestExit[ci] = bx, be
		for _, x := range order {
			val[x] = score - pot[x]
		}
	}

	eden := g.Eden()
	res := MaxPathResult{Depth: val[eden]}
	for cur := eden; ; {
		ci := comp[cur]
		res.Path = append(res.Path, pathWithin(g, comp, cur, best[ci])...)
		e := bestExit[ci]
		if e < 0 {
			break
		}
		res.Path = append(res.Path, e)
		cur = g.Edge(e).Target
	}
	return res
}

// unboundedAt builds the witness for an inconsistent edge u->v inside the
// component rooted at root. With T the BFS tree paths and Q a path from v back
// to root, the closed walks T(u)+e+Q and T(v)+Q differ in weight by
// p(u)+w-p(v) != 0, so at least one of them has non-zero weight.
func unboundedAt(g *Graph, comp []int, root StateID, parent []EdgeID, pot []int, eid EdgeID) MaxPathResult {
	e := g.Edge(eid)
	back := pathWithin(g, comp, e.Target, root)

	cycle := append(treePath(g, parent, e.Source), eid)
	cycle = append(cycle, back...)
	if sumWeights(g, cycle) == 0 {
		cycle = append(treePath(g, parent, e.Target), back...)
	}
	return MaxPathResult{
		Unbounded: true,
		Prefix:    pathWithin(g, nil, g.Eden(), root),
		Cycle:     cycle,
	}
}

// treePath follows BFS parent edges from id back to the component root.
func treePath(g *Graph, parent []EdgeID, id StateID) []EdgeID {
	var rev []EdgeID
	for parent[id] >= 0 {
		rev = append(rev, parent[id])
		id = g.Edge(parent[id]).Source
	}
	path := make([]EdgeID, len(rev))
	for i, e := range rev {
		path[len(rev)-1-i] = e
	}
	return path
}

// pathWithin returns a shortest path (in edges) from src to dst. With comp
// set, the search stays inside src's component.
func pathWithin(g *Graph, comp []int, src, dst StateID) []EdgeID {
	if src == dst {
		return nil
	}
	via := map[StateID]EdgeID{src: -1}
	queue := []StateID{src}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, eid := range g.Out(u) {
			t := g.Edge(eid).Target
			if _, ok := via[t]; ok {
				continue
			}
			if comp != nil && comp[t] != comp[src] {
				continue
			}
			via[t] = eid
			if t == dst {
				var rev []EdgeID
				for id := dst; id != src; id = g.Edge(via[id]).Source {
					rev = append(rev, via[id])
				}
				path := make([]EdgeID, len(rev))
				for i, e := range rev {
					path[len(rev)-1-i] = e
				}
				return path
			}
			queue = append(queue, t)
		}
	}
	return nil
}
