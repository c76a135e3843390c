package stack

import (
	"fmt"
	"sync/atomic"

	"github.com/oisee/avrstack/pkg/cpu"
)

// EdgeKind types a transition. The kind fixes the stack delta.
type EdgeKind uint8

const (
	EdgeNormal EdgeKind = iota
	EdgePush
	EdgePop
	EdgeCall
	EdgeInt
	EdgeRet
	EdgeReti
	EdgeSpecial
)

var edgeNames = [...]string{"NORMAL", "PUSH", "POP", "CALL", "INT", "RET", "RETI", "SPECIAL"}

// Bytes pushed (positive) or popped (negative) by each kind. Calls and
// interrupts push a two-byte return address.
var edgeWeights = [...]int{0, 1, -1, 2, 2, 0, 0, 0}

func (k EdgeKind) String() string {
	if int(k) < len(edgeNames) {
		return edgeNames[k]
	}
	return fmt.Sprintf("edge(%d)", k)
}

// Weight returns the stack delta in bytes.
func (k EdgeKind) Weight() int {
	return edgeWeights[k]
}

// StateKind marks states that end in a return instruction.
type StateKind uint8

const (
	KindNormal StateKind = iota
	KindRet
	KindReti
)

func (k StateKind) String() string {
	switch k {
	case KindRet:
		return "RET"
	case KindReti:
		return "RETI"
	}
	return "NORMAL"
}

// EdgeID indexes Graph edges.
type EdgeID int32

// Edge is a weighted transition between two interned states.
type Edge struct {
	Source StateID
	Target StateID
	Kind   EdgeKind
	Weight int
}

// info is the per-state bookkeeping of the transition graph.
type info struct {
	kind       StateKind
	onFrontier bool
	explored   bool
	out        []EdgeID
	in         []EdgeID
	returns    *ReturnSet
}

// Graph is the state transition graph over a Cache. Nodes are StateIDs; every
// edge is linked from its source (out) and its target (in).
//
// Only the analyzer goroutine mutates a Graph. The counters are atomic so a
// monitor goroutine may read them while the analysis runs.
type Graph struct {
	cache    *Cache
	info     []info
	edges    []Edge
	frontier []StateID
	eden     StateID

	frontierCount atomic.Int64
	exploredCount atomic.Int64
	edgeCount     atomic.Int64
	stateCount    atomic.Int64
}

// NewGraph creates a graph whose only node is eden, placed on the frontier.
func NewGraph(eden cpu.State) *Graph {
	g := &Graph{cache: NewCache()}
	g.eden = g.Intern(eden)
	g.PushFrontier(g.eden)
	return g
}

// Intern adds s to the cache if needed and returns its node.
func (g *Graph) Intern(s cpu.State) StateID {
	id, created := g.cache.Intern(s)
	if created {
		g.info = append(g.info, info{})
		g.stateCount.Add(1)
	}
	return id
}

// Eden returns the start state.
func (g *Graph) Eden() StateID { return g.eden }

func (g *Graph) State(id StateID) cpu.State { return g.cache.State(id) }

func (g *Graph) PC(id StateID) uint16 { return g.cache.PC(id) }

func (g *Graph) Kind(id StateID) StateKind { return g.info[id].kind }

func (g *Graph) SetKind(id StateID, k StateKind) { g.info[id].kind = k }

// NumStates returns the number of interned states.
func (g *Graph) NumStates() int { return g.cache.Len() }

// NumEdges returns the number of edges.
func (g *Graph) NumEdges() int { return len(g.edges) }

// AddEdge links src to dst. An identical edge (same endpoints and kind) is
// not duplicated; added is false and its existing ID is returned.
func (g *Graph) AddEdge(src, dst StateID, kind EdgeKind) (id EdgeID, added bool) {
	for _, e := range g.info[src].out {
		if old := g.edges[e]; old.Target == dst && old.Kind == kind {
			return e, false
		}
	}
	id = EdgeID(len(g.edges))
	g.edges = append(g.edges, Edge{Source: src, Target: dst, Kind: kind, Weight: kind.Weight()})
	g.info[src].out = append(g.info[src].out, id)
	g.info[dst].in = append(g.info[dst].in, id)
	g.edgeCount.Add(1)
	return id, true
}

func (g *Graph) Edge(id EdgeID) Edge { return g.edges[id] }

// Out returns the edges leaving id. The slice must not be modified.
func (g *Graph) Out(id StateID) []EdgeID { return g.info[id].out }

// In returns the edges entering id. The slice must not be modified.
func (g *Graph) In(id StateID) []EdgeID { return g.info[id].in }

// PushFrontier schedules id for exploration. The frontier is LIFO.
func (g *Graph) PushFrontier(id StateID) {
	in := &g.info[id]
	if in.onFrontier || in.explored {
		return
	}
	in.onFrontier = true
	g.frontier = append(g.frontier, id)
	g.frontierCount.Add(1)
}

// PopFrontier removes the most recently pushed frontier state.
func (g *Graph) PopFrontier() (StateID, bool) {
	n := len(g.frontier)
	if n == 0 {
		return NoState, false
	}
	id := g.frontier[n-1]
	g.frontier = g.frontier[:n-1]
	g.info[id].onFrontier = false
	g.frontierCount.Add(-1)
	return id, true
}

// SetExplored marks a state that has left the frontier as explored.
func (g *Graph) SetExplored(id StateID) {
	in := &g.info[id]
	if in.onFrontier {
		panic(fmt.Sprintf("stack: state %d explored while on the frontier", id))
	}
	if !in.explored {
		in.explored = true
		g.exploredCount.Add(1)
	}
}

func (g *Graph) IsFrontier(id StateID) bool { return g.info[id].onFrontier }

func (g *Graph) IsExplored(id StateID) bool { return g.info[id].explored }

// Returns is the return set of id; nil when no return state reaches it yet.
func (g *Graph) Returns(id StateID) *ReturnSet { return g.info[id].returns }

func (g *Graph) ensureReturns(id StateID) *ReturnSet {
	in := &g.info[id]
	if in.returns == nil {
		in.returns = &ReturnSet{}
	}
	return in.returns
}

// DeleteReturnSets drops every return set to free memory. Only valid once no
// further propagation will run.
func (g *Graph) DeleteReturnSets() {
	for i := range g.info {
		g.info[i].returns = nil
	}
}

func (g *Graph) FrontierCount() int64 { return g.frontierCount.Load() }
func (g *Graph) ExploredCount() int64 { return g.exploredCount.Load() }
func (g *Graph) EdgeCount() int64     { return g.edgeCount.Load() }
func (g *Graph) StateCount() int64    { return g.stateCount.Load() }
