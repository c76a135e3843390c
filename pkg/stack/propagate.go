package stack

import (
	"github.com/sirupsen/logrus"

	"github.com/oisee/avrstack/pkg/cpu"
)

// Return propagation. Forward exploration stops at every call, so the return
// edges of a call site are found by walking backwards from each return state
// until a CALL or INT edge is met, then stitching the caller to a copy of the
// return state. Every node on the way records the return states that reach it
// (its return set), so a later edge into an explored node can hand over the
// whole set without walking the callee again.

type walkItem struct {
	node  StateID
	delta []StateID
}

// processNewReturn propagates the most recently found return state.
func (a *Analyzer) processNewReturn() error {
	n := len(a.newReturns) - 1
	rt := a.newReturns[n]
	a.newReturns = a.newReturns[:n]
	a.pendingReturns.Add(-1)
	a.log.WithField("state", rt).Debug("propagating return state")
	return a.propagate(rt, []StateID{rt})
}

// processNewEdge hands the return set of an explored target to the source of
// the most recently added edge into it.
func (a *Analyzer) processNewEdge() error {
	g := a.graph
	n := len(a.newEdges) - 1
	eid := a.newEdges[n]
	a.newEdges = a.newEdges[:n]
	a.pendingEdges.Add(-1)

	e := g.Edge(eid)
	set := g.Returns(e.Target)
	if set.Len() == 0 {
		return nil
	}
	a.log.WithFields(logrus.Fields{
		"edge": eid, "kind": e.Kind, "returns": set.Len(),
	}).Debug("propagating returns over new edge")
	switch e.Kind {
	case EdgeCall, EdgeInt:
		return a.stitch(e, set.Items())
	}
	return a.propagate(e.Source, set.Items())
}

// propagate adds rets to the return set of from and walks backwards. Only the
// part of a set that is new to a node travels further, so the walk ends where
// every element is already known.
func (a *Analyzer) propagate(from StateID, rets []StateID) error {
	g := a.graph
	work := []walkItem{{node: from, delta: rets}}
	for len(work) > 0 {
		it := work[len(work)-1]
		work = work[:len(work)-1]

		set := g.ensureReturns(it.node)
		var delta []StateID
		for _, r := range it.delta {
			if set.Add(r) {
				delta = append(delta, r)
			}
		}
		if len(delta) == 0 {
			continue
		}
		// stitch may add in-edges to other nodes; this node's list is read
		// through its own header, so later appends are not visited here.
		for _, eid := range g.In(it.node) {
			e := g.Edge(eid)
			switch e.Kind {
			case EdgeCall, EdgeInt:
				if err := a.stitch(e, delta); err != nil {
					return err
				}
			default:
				work = append(work, walkItem{node: e.Source, delta: delta})
			}
		}
	}
	return nil
}

// stitch connects the source of a call or interrupt edge to the states it
// resumes in. A call resumes after the call instruction, an interrupt at the
// interrupted instruction. Returning through RETI re-enables interrupts.
func (a *Analyzer) stitch(e Edge, rets []StateID) error {
	g := a.graph
	callerPC := g.PC(e.Source)
	resume := callerPC
	if e.Kind == EdgeCall {
		next, err := a.prog.NextPC(callerPC)
		if err != nil {
			return err
		}
		resume = next
	}
	for _, r := range rets {
		s := g.State(r)
		kind := EdgeRet
		if g.Kind(r) == KindReti {
			kind = EdgeReti
			s.SetFlag(cpu.FlagI, cpu.True)
		}
		s.PC = resume
		a.addEdge(e.Source, kind, s)
	}
	return nil
}
