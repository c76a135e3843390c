package stack

import (
	"fmt"

	"github.com/oisee/avrstack/pkg/cpu"
)

// The policy turns stack-affecting instructions into graph edges. A call
// site never continues past the call during forward exploration; its return
// edges are inserted later by propagation (see propagate.go). Call sites are
// distinguished by the full caller state, so two callers of one function get
// independent return edges.

// interrupt adds an INT edge from id to the vector of interrupt num. The
// handler starts with interrupts disabled.
func (a *Analyzer) interrupt(id StateID, s cpu.State, num int) {
	s.SetFlag(cpu.FlagI, cpu.False)
	s.PC = cpu.VectorAddress(num, a.cfg.VectorSize)
	a.addEdge(id, EdgeInt, s)
}

func (a *Analyzer) call(id StateID, s cpu.State, target uint16) {
	s.PC = target
	a.addEdge(id, EdgeCall, s)
}

func (a *Analyzer) indirectCall(id StateID, s cpu.State) error {
	targets, ok := a.prog.IndirectTargets(s.PC)
	if !ok {
		return fmt.Errorf("%w: call at %04X", ErrNoIndirectTargets, s.PC)
	}
	for _, t := range targets {
		a.call(id, s, t)
	}
	return nil
}

func (a *Analyzer) indirectJump(id StateID, s cpu.State) error {
	targets, ok := a.prog.IndirectTargets(s.PC)
	if !ok {
		return fmt.Errorf("%w: jump at %04X", ErrNoIndirectTargets, s.PC)
	}
	for _, t := range targets {
		s.PC = t
		a.addEdge(id, EdgeNormal, s)
	}
	return nil
}

// ret marks id as a return state and queues it for propagation.
func (a *Analyzer) ret(id StateID, kind StateKind) {
	a.graph.SetKind(id, kind)
	a.newReturns = append(a.newReturns, id)
	a.pendingReturns.Add(1)
	if kind == KindReti {
		a.retiCount.Add(1)
	} else {
		a.retCount.Add(1)
	}
}

// addEdge interns s and links it from src. New states go on the frontier; a
// new edge into an already explored state is queued so the target's return
// set reaches the new predecessor.
func (a *Analyzer) addEdge(src StateID, kind EdgeKind, s cpu.State) {
	g := a.graph
	t := g.Intern(s)
	if a.trace {
		a.log.Tracef("        %c ==> [%d] %s", a.marker(t), t, s)
	}
	eid, added := g.AddEdge(src, t, kind)
	if !added {
		return
	}
	if a.trace {
		a.log.Tracef("adding edge [%d] --(%s,%d)--> [%d]", src, kind, kind.Weight(), t)
	}
	if g.IsExplored(t) {
		a.newEdges = append(a.newEdges, eid)
		a.pendingEdges.Add(1)
		return
	}
	g.PushFrontier(t)
}

// marker classifies a produced state for tracing: Explored, Frontier or New.
func (a *Analyzer) marker(id StateID) byte {
	switch {
	case a.graph.IsExplored(id):
		return 'E'
	case a.graph.IsFrontier(id):
		return 'F'
	}
	return 'N'
}
