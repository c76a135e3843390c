package stack

import "github.com/oisee/avrstack/pkg/cpu"

// StateID names an interned state. IDs are dense and assigned in creation order.
type StateID int32

// NoState is the zero-information StateID.
const NoState StateID = -1

// Cache hash-conses abstract states: structurally equal states always intern
// to the same StateID. States are never removed or modified once interned.
type Cache struct {
	states []cpu.State
	index  map[cpu.State]StateID
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{index: make(map[cpu.State]StateID, 1024)}
}

// Intern returns the ID of s, adding it if it is new.
func (c *Cache) Intern(s cpu.State) (id StateID, created bool) {
	if id, ok := c.index[s]; ok {
		return id, false
	}
	id = StateID(len(c.states))
	c.states = append(c.states, s)
	c.index[s] = id
	return id, true
}

// Lookup returns the ID of s without adding it.
func (c *Cache) Lookup(s cpu.State) (StateID, bool) {
	id, ok := c.index[s]
	return id, ok
}

// State returns a copy of the state with the given ID.
func (c *Cache) State(id StateID) cpu.State {
	return c.states[id]
}

// PC returns the program counter of a state without copying it.
func (c *Cache) PC(id StateID) uint16 {
	return c.states[id].PC
}

// Len returns the number of interned states.
func (c *Cache) Len() int {
	return len(c.states)
}
