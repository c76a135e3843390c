// Package program holds a decoded AVR flash image: instructions at byte
// addresses, symbolic labels and the indirect call/jump annotations the stack
// analysis needs to follow ICALL and IJMP.
package program

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/oisee/avrstack/pkg/inst"
)

var (
	ErrPastEnd      = errors.New("read past end of program")
	ErrMisaligned   = errors.New("misaligned instruction fetch")
	ErrUnknownLabel = errors.New("unknown label")
	ErrOverlap      = errors.New("instructions overlap")
)

// flashSize is the largest program the 16-bit byte PC can address.
const flashSize = 0x10000

type slot struct {
	in    inst.Instruction
	valid bool
}

// Program is a sparse flash image indexed by word address.
type Program struct {
	slots    []slot
	end      int
	labels   map[string]uint16
	indirect map[uint16][]uint16
}

// New returns an empty program.
func New() *Program {
	return &Program{
		labels:   make(map[string]uint16),
		indirect: make(map[uint16][]uint16),
	}
}

// FromInstructions lays seq out contiguously from address 0.
func FromInstructions(seq []inst.Instruction) *Program {
	p := New()
	pc := uint16(0)
	for _, in := range seq {
		// contiguous placement never overlaps
		_ = p.Place(pc, in)
		pc += uint16(inst.ByteSize(in.Op))
	}
	return p
}

// Place stores in at byte address pc.
func (p *Program) Place(pc uint16, in inst.Instruction) error {
	if pc&1 != 0 {
		return fmt.Errorf("%w: %04X", ErrMisaligned, pc)
	}
	size := inst.ByteSize(in.Op)
	if int(pc)+size > flashSize {
		return fmt.Errorf("%w: %s at %04X", ErrPastEnd, inst.Disassemble(in), pc)
	}
	w := int(pc / 2)
	words := size / 2
	for len(p.slots) < w+words {
		p.slots = append(p.slots, slot{})
	}
	for i := 0; i < words; i++ {
		if p.slots[w+i].valid || (i == 0 && w > 0 && p.covers(w-1)) {
			return fmt.Errorf("%w at %04X", ErrOverlap, pc)
		}
	}
	p.slots[w] = slot{in: in, valid: true}
	if e := int(pc) + size; e > p.end {
		p.end = e
	}
	return nil
}

// covers reports whether the instruction at word w extends into word w+1.
func (p *Program) covers(w int) bool {
	return p.slots[w].valid && inst.ByteSize(p.slots[w].in.Op) > 2
}

// End returns the byte address just past the last instruction. It is
// 0x10000 when the program fills the last flash word.
func (p *Program) End() int {
	return p.end
}

// Instruction returns the instruction starting at byte address pc.
func (p *Program) Instruction(pc uint16) (inst.Instruction, error) {
	if int(pc) >= p.end {
		return inst.Instruction{}, fmt.Errorf("%w: %04X (end %04X)", ErrPastEnd, pc, p.end)
	}
	if pc&1 != 0 || !p.slots[pc/2].valid {
		return inst.Instruction{}, fmt.Errorf("%w: no instruction starts at %04X", ErrMisaligned, pc)
	}
	return p.slots[pc/2].in, nil
}

// NextPC returns the address of the instruction following the one at pc.
func (p *Program) NextPC(pc uint16) (uint16, error) {
	in, err := p.Instruction(pc)
	if err != nil {
		return 0, err
	}
	return pc + uint16(inst.ByteSize(in.Op)), nil
}

// Each calls fn for every instruction in address order.
func (p *Program) Each(fn func(pc uint16, in inst.Instruction)) {
	for w, s := range p.slots {
		if s.valid {
			fn(uint16(2*w), s.in)
		}
	}
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	n := 0
	for _, s := range p.slots {
		if s.valid {
			n++
		}
	}
	return n
}

// SetIndirectTargets records the possible destinations of the ICALL/IJMP at site.
func (p *Program) SetIndirectTargets(site uint16, targets []uint16) {
	ts := slices.Clone(targets)
	slices.Sort(ts)
	p.indirect[site] = slices.Compact(ts)
}

// IndirectTargets returns the annotated destinations of the indirect transfer at
// pc. ok is false when the site has no annotation at all.
func (p *Program) IndirectTargets(pc uint16) (targets []uint16, ok bool) {
	targets, ok = p.indirect[pc]
	return targets, ok
}

// SetLabel defines or redefines a label.
func (p *Program) SetLabel(name string, addr uint16) {
	p.labels[name] = addr
}

// Label returns the address of a label.
func (p *Program) Label(name string) (uint16, bool) {
	a, ok := p.labels[name]
	return a, ok
}

// LabelsAt returns the sorted names of the labels defined at pc.
func (p *Program) LabelsAt(pc uint16) []string {
	var names []string
	for name, a := range p.labels {
		if a == pc {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Labels returns all label names, sorted.
func (p *Program) Labels() []string {
	names := maps.Keys(p.labels)
	slices.Sort(names)
	return names
}

// Resolve turns a label name or a number (decimal, 0x, $ or h-suffix hex)
// into a byte address.
func (p *Program) Resolve(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if a, ok := p.labels[s]; ok {
		return a, nil
	}
	v, err := parseNumber(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, s)
	}
	if v < 0 || v > 0xFFFF {
		return 0, fmt.Errorf("address %s out of range", s)
	}
	return uint16(v), nil
}

// parseNumber accepts 0x1F, $1F, 1Fh, 0b101 and signed decimal.
func parseNumber(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}

	var v int64
	var err error
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "0x"):
		v, err = strconv.ParseInt(lower[2:], 16, 32)
	case strings.HasPrefix(lower, "0b"):
		v, err = strconv.ParseInt(lower[2:], 2, 32)
	case lower[0] == '$':
		v, err = strconv.ParseInt(lower[1:], 16, 32)
	case len(lower) > 1 && strings.HasSuffix(lower, "h"):
		v, err = strconv.ParseInt(lower[:len(lower)-1], 16, 32)
	default:
		v, err = strconv.ParseInt(lower, 10, 32)
	}
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	if neg {
		v = -v
	}
	return int(v), nil
}
