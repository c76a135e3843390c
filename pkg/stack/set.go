package stack

import "golang.org/x/exp/slices"

// ReturnSet is the set of return states reachable from a graph node without
// crossing a call or interrupt edge. Most nodes reach zero or one return
// state, so the first element is kept inline and a map is only built for more.
type ReturnSet struct {
	one StateID
	has bool
	m   map[StateID]struct{}
}

// Len returns the number of elements. A nil set is empty.
func (s *ReturnSet) Len() int {
	switch {
	case s == nil:
		return 0
	case s.m != nil:
		return len(s.m)
	case s.has:
		return 1
	}
	return 0
}

// Contains reports whether id is in the set.
func (s *ReturnSet) Contains(id StateID) bool {
	switch {
	case s == nil:
		return false
	case s.m != nil:
		_, ok := s.m[id]
		return ok
	}
	return s.has && s.one == id
}

// Add inserts id and reports whether it was not already present.
func (s *ReturnSet) Add(id StateID) bool {
	switch {
	case s.m != nil:
		if _, ok := s.m[id]; ok {
			return false
		}
		s.m[id] = struct{}{}
		return true
	case !s.has:
		s.one, s.has = id, true
		return true
	case s.one == id:
		return false
	}
	s.m = map[StateID]struct{}{s.one: {}, id: {}}
	return true
}

// Items returns the elements in ascending order.
func (s *ReturnSet) Items() []StateID {
	switch {
	case s == nil:
		return nil
	case s.m != nil:
		out := make([]StateID, 0, len(s.m))
		for id := range s.m {
			out = append(out, id)
		}
		slices.Sort(out)
		return out
	case s.has:
		return []StateID{s.one}
	}
	return nil
}
