// Package stack bounds the worst-case stack depth of an AVR program by
// abstract interpretation.
//
// The Analyzer explores every abstract state reachable from reset, records
// transitions in a Graph whose edges carry stack deltas, connects each call or
// interrupt to the return states its callee reaches, and finally computes the
// heaviest path from the start state. A reachable cycle with non-zero weight
// makes the stack unbounded.
package stack

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/oisee/avrstack/pkg/cpu"
	"github.com/oisee/avrstack/pkg/inst"
	"github.com/oisee/avrstack/pkg/result"
)

// Program is the instruction stream the analysis reads.
type Program interface {
	cpu.Code
	Instruction(pc uint16) (inst.Instruction, error)
	IndirectTargets(pc uint16) ([]uint16, bool)
}

// Analyzer computes the stack bound of one program. It is single-use and not
// safe for concurrent use, except for Stats and Monitor.
type Analyzer struct {
	prog  Program
	cfg   Config
	log   *logrus.Entry
	trace bool
	graph *Graph

	// LIFO work lists, served one item at a time while the frontier is empty.
	newReturns []StateID
	newEdges   []EdgeID

	pendingReturns atomic.Int64
	pendingEdges   atomic.Int64
	retCount       atomic.Int64
	retiCount      atomic.Int64

	reserve []byte
}

// New creates an analyzer starting from the reset state (PC 0, everything zero).
func New(prog Program, cfg Config) *Analyzer {
	return NewFrom(prog, cfg, cpu.NewState())
}

// NewFrom creates an analyzer starting from an arbitrary state.
func NewFrom(prog Program, cfg Config, eden cpu.State) *Analyzer {
	cfg = cfg.withDefaults()
	log := cfg.Logger.WithField("component", "stack")
	return &Analyzer{
		prog:  prog,
		cfg:   cfg,
		log:   log,
		trace: log.Logger.IsLevelEnabled(logrus.TraceLevel),
		graph: NewGraph(eden),
	}
}

// Graph returns the transition graph built so far.
func (a *Analyzer) Graph() *Graph { return a.graph }

// Stats returns the current counters. Safe to call from another goroutine.
func (a *Analyzer) Stats() result.Stats {
	g := a.graph
	return result.Stats{
		States:           g.StateCount(),
		Frontier:         g.FrontierCount(),
		Explored:         g.ExploredCount(),
		Edges:            g.EdgeCount(),
		PendingReturns:   a.pendingReturns.Load(),
		PendingEdges:     a.pendingEdges.Load(),
		Returns:          a.retCount.Load(),
		ReturnInterrupts: a.retiCount.Load(),
	}
}

// Run builds the reachable state space and computes the bound.
//
// Fatal preconditions (fetch past the end, misaligned fetch, unannotated
// indirect transfer, unsupported opcode) are returned as errors. Running out
// of budget or a cancelled ctx yield a partial report with outcome Exhausted or
// Stopped.
func (a *Analyzer) Run(ctx context.Context) (*result.Report, error) {
	a.reserve = make([]byte, a.cfg.ReserveBytes)

	start := time.Now()
	outcome, err := a.build(ctx)
	buildTime := time.Since(start)
	if err != nil {
		return nil, err
	}
	a.log.WithFields(logrus.Fields{
		"states": a.graph.NumStates(),
		"edges":  a.graph.NumEdges(),
		"time":   buildTime,
	}).Info("state space built")

	if outcome != result.Bounded {
		a.reserve = nil
		rep := a.partial(outcome)
		rep.BuildTime = buildTime
		return rep, nil
	}

	check := time.Now()
	mp := a.MaxPath()
	rep := a.report(mp)
	rep.BuildTime = buildTime
	rep.TraverseTime = time.Since(check)
	rep.Stats.CyclicRegions = len(CyclicRegions(a.graph))
	if rep.Outcome == result.Bounded {
		a.log.WithField("bytes", rep.Depth).Info("maximum stack depth")
	} else {
		a.log.WithField("cycle", len(rep.Cycle)).Info("stack depth unbounded")
	}
	return rep, nil
}

// build is the fixpoint loop: frontier states first, then pending return
// propagation, then pending edge propagation, until all three are empty.
// ctx is polled every CheckEvery frontier states and before every
// propagation step.
func (a *Analyzer) build(ctx context.Context) (result.Outcome, error) {
	if ctx.Err() != nil {
		return result.Stopped, nil
	}
	explored := 0
	for {
		if id, ok := a.graph.PopFrontier(); ok {
			if err := a.explore(id); err != nil {
				return 0, err
			}
			explored++
			if explored%a.cfg.CheckEvery == 0 {
				if ctx.Err() != nil {
					a.log.WithField("explored", explored).Warn("analysis stopped")
					return result.Stopped, nil
				}
				if a.overBudget() {
					a.log.WithField("explored", explored).Warn("analysis out of budget")
					return result.Exhausted, nil
				}
			}
			continue
		}
		if len(a.newReturns) == 0 && len(a.newEdges) == 0 {
			return result.Bounded, nil
		}
		if ctx.Err() != nil {
			a.log.WithFields(logrus.Fields{
				"returns": len(a.newReturns), "edges": len(a.newEdges),
			}).Warn("analysis stopped during propagation")
			return result.Stopped, nil
		}
		var err error
		if len(a.newReturns) > 0 {
			err = a.processNewReturn()
		} else {
			err = a.processNewEdge()
		}
		if err != nil {
			return 0, err
		}
	}
}

func (a *Analyzer) overBudget() bool {
	if a.cfg.MaxStates > 0 && a.graph.NumStates() > a.cfg.MaxStates {
		return true
	}
	if a.cfg.MemoryLimit > 0 {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		if ms.HeapAlloc > a.cfg.MemoryLimit {
			return true
		}
	}
	return false
}

// explore interprets one frontier state and records its successors.
func (a *Analyzer) explore(id StateID) error {
	g := a.graph
	g.SetExplored(id)
	s := g.State(id)

	in, err := a.prog.Instruction(s.PC)
	if err != nil {
		return fmt.Errorf("state %d: %w", id, err)
	}
	if a.trace {
		a.log.Tracef("exploring [%d] %-14s %s", id, inst.Disassemble(in), s)
	}

	for _, num := range cpu.Interrupts(&s) {
		a.interrupt(id, s, num)
	}

	eff, err := cpu.Exec(&s, in, a.prog)
	if err != nil {
		return fmt.Errorf("state %d: %w", id, err)
	}
	return a.apply(id, s, eff)
}

// apply hands the interpreter's effect to the policy.
func (a *Analyzer) apply(id StateID, s cpu.State, eff cpu.Effect) error {
	switch eff.Kind {
	case cpu.Continue:
		for _, f := range eff.Forks {
			a.addEdge(id, EdgeNormal, f)
		}
		a.addEdge(id, EdgeNormal, s)
	case cpu.Push:
		a.addEdge(id, EdgePush, s)
	case cpu.Pop:
		a.addEdge(id, EdgePop, s)
	case cpu.Halt:
	case cpu.Call:
		a.call(id, s, eff.Target)
	case cpu.IndirectCall:
		return a.indirectCall(id, s)
	case cpu.IndirectJump:
		return a.indirectJump(id, s)
	case cpu.Return:
		a.ret(id, KindRet)
	case cpu.ReturnInterrupt:
		a.ret(id, KindReti)
	default:
		return fmt.Errorf("state %d: unhandled effect %v", id, eff.Kind)
	}
	return nil
}

// report turns the maximal path into a Report.
func (a *Analyzer) report(mp MaxPathResult) *result.Report {
	rep := &result.Report{Stats: a.Stats()}
	if mp.Unbounded {
		rep.Outcome = result.Unbounded
		rep.Path = a.steps(mp.Prefix, 0)
		rep.Cycle = a.steps(mp.Cycle, sumWeights(a.graph, mp.Prefix))
		return rep
	}
	rep.Outcome = result.Bounded
	rep.Depth = mp.Depth
	rep.Path = a.steps(mp.Path, 0)
	return rep
}

// partial reports an exhausted or stopped run with the distributions that
// show where the state space grew.
func (a *Analyzer) partial(outcome result.Outcome) *result.Report {
	g := a.graph
	sizes := result.NewDistribution("return set size")
	perPC := result.NewDistribution("states per pc")
	for id := StateID(0); int(id) < g.NumStates(); id++ {
		sizes.Record(g.Returns(id).Len())
		perPC.Record(int(g.PC(id)))
	}
	if outcome == result.Exhausted {
		g.DeleteReturnSets()
	}
	return &result.Report{
		Outcome:        outcome,
		Stats:          a.Stats(),
		ReturnSetSizes: sizes,
		StatesPerPC:    perPC,
	}
}

func sumWeights(g *Graph, path []EdgeID) int {
	w := 0
	for _, e := range path {
		w += g.Edge(e).Weight
	}
	return w
}

// steps renders edges as report steps, starting at the given depth.
func (a *Analyzer) steps(path []EdgeID, depth int) []result.Step {
	g := a.graph
	out := make([]result.Step, 0, len(path))
	for _, eid := range path {
		e := g.Edge(eid)
		src := g.State(e.Source)
		st := result.Step{
			Depth:    depth,
			Source:   int(e.Source),
			Target:   int(e.Target),
			PC:       src.PC,
			TargetPC: g.PC(e.Target),
			Kind:     e.Kind.String(),
			Weight:   e.Weight,
			State:    src.String(),
		}
		if in, err := a.prog.Instruction(src.PC); err == nil {
			st.Instruction = inst.Disassemble(in)
			st.Fallthrough = e.Weight == 0 && st.TargetPC == src.PC+uint16(inst.ByteSize(in.Op))
		}
		out = append(out, st)
		depth += e.Weight
	}
	return out
}
