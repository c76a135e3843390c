package stack

import (
	"testing"

	"github.com/oisee/avrstack/pkg/cpu"
)

func stateAt(pc uint16) cpu.State {
	s := cpu.NewState()
	s.PC = pc
	return s
}

func TestCacheInterning(t *testing.T) {
	c := NewCache()
	a := stateAt(2)
	id1, created := c.Intern(a)
	if !created || id1 != 0 {
		t.Fatalf("first Intern = %d,%v, want 0,true", id1, created)
	}
	b := stateAt(2)
	id2, created := c.Intern(b)
	if created || id2 != id1 {
		t.Errorf("equal state interned as %d (created %v), want %d", id2, created, id1)
	}
	b.SetReg(5, cpu.Unknown)
	id3, created := c.Intern(b)
	if !created || id3 == id1 {
		t.Errorf("different state interned as %d (created %v)", id3, created)
	}
	if got, ok := c.Lookup(a); !ok || got != id1 {
		t.Errorf("Lookup = %d,%v", got, ok)
	}
	if c.Len() != 2 || c.PC(id3) != 2 {
		t.Errorf("Len = %d, PC = %04X", c.Len(), c.PC(id3))
	}
}

func TestReturnSet(t *testing.T) {
	var nilSet *ReturnSet
	if nilSet.Len() != 0 || nilSet.Contains(3) || nilSet.Items() != nil {
		t.Error("nil set is not empty")
	}
	s := &ReturnSet{}
	if !s.Add(7) || s.Add(7) {
		t.Error("Add(7) twice: want true then false")
	}
	if s.Len() != 1 || !s.Contains(7) || s.Contains(0) {
		t.Errorf("single element set: len %d", s.Len())
	}
	for _, id := range []StateID{3, 9, 3, 0} {
		s.Add(id)
	}
	items := s.Items()
	want := []StateID{0, 3, 7, 9}
	if len(items) != len(want) {
		t.Fatalf("Items = %v, want %v", items, want)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("Items = %v, want %v", items, want)
			break
		}
	}
}

func TestFrontierExploredDisjoint(t *testing.T) {
	g := NewGraph(stateAt(0))
	if !g.IsFrontier(0) || g.IsExplored(0) {
		t.Fatal("eden must start on the frontier only")
	}
	id, ok := g.PopFrontier()
	if !ok || id != 0 {
		t.Fatalf("PopFrontier = %d,%v", id, ok)
	}
	g.SetExplored(id)
	g.PushFrontier(id)
	if g.IsFrontier(id) {
		t.Error("explored state pushed back onto the frontier")
	}
	if g.FrontierCount() != 0 || g.ExploredCount() != 1 {
		t.Errorf("counts frontier=%d explored=%d", g.FrontierCount(), g.ExploredCount())
	}

	b := g.Intern(stateAt(2))
	g.PushFrontier(b)
	g.PushFrontier(b)
	if g.FrontierCount() != 1 {
		t.Errorf("double push: frontier=%d, want 1", g.FrontierCount())
	}
	defer func() {
		if recover() == nil {
			t.Error("SetExplored on a frontier state did not panic")
		}
	}()
	g.SetExplored(b)
}

func TestAddEdgeDedup(t *testing.T) {
	g := NewGraph(stateAt(0))
	b := g.Intern(stateAt(2))
	e1, added := g.AddEdge(0, b, EdgeNormal)
	if !added {
		t.Fatal("first edge not added")
	}
	if e2, added := g.AddEdge(0, b, EdgeNormal); added || e2 != e1 {
		t.Errorf("duplicate edge added as %d", e2)
	}
	if _, added := g.AddEdge(0, b, EdgePush); !added {
		t.Error("edge of another kind was deduplicated")
	}
	if g.NumEdges() != 2 || len(g.Out(0)) != 2 || len(g.In(b)) != 2 {
		t.Errorf("edges=%d out=%d in=%d, want 2", g.NumEdges(), len(g.Out(0)), len(g.In(b)))
	}
	if w := g.Edge(1).Weight; w != 1 {
		t.Errorf("PUSH weight = %d, want 1", w)
	}
}

func TestEdgeWeights(t *testing.T) {
	want := map[EdgeKind]int{
		EdgeNormal: 0, EdgePush: 1, EdgePop: -1, EdgeCall: 2,
		EdgeInt: 2, EdgeRet: 0, EdgeReti: 0, EdgeSpecial: 0,
	}
	for k, w := range want {
		if k.Weight() != w {
			t.Errorf("%s weight = %d, want %d", k, k.Weight(), w)
		}
	}
}
