package verify

import (
	"github.com/oisee/avrstack/pkg/cpu"
	"github.com/oisee/avrstack/pkg/inst"
)

// Case is one abstract input: an instruction applied to a state whose
// operand registers and SREG hold the given values. Every other register is
// known zero.
type Case struct {
	In   inst.Instruction
	A    cpu.Value // Rd, or Rr for BST/BLD
	B    cpu.Value // Rr, or the high byte of the pair for ADIW/SBIW/MOVW
	SREG cpu.Value
}

// State builds the abstract input state of c.
func (c Case) State() cpu.State {
	s := cpu.NewState()
	s.SREG = c.SREG
	a, b := operandRegs(c.In)
	s.SetReg(a, c.A)
	if b != a {
		s.SetReg(b, c.B)
	}
	return s
}

// operandRegs returns the registers c.A and c.B live in.
func operandRegs(in inst.Instruction) (a, b uint8) {
	switch inst.Catalog[in.Op].Form {
	case inst.FormWordK:
		return in.Rd, in.Rd + 1
	case inst.FormPair:
		return in.Rr, in.Rr + 1
	case inst.FormRegBit:
		return in.Rr, in.Rr
	case inst.FormRdRr:
		return in.Rd, in.Rr
	}
	return in.Rd, in.Rd
}

// Concretize calls fn for every byte v covers, in increasing order of the
// unknown bits. fn returns false to stop.
func Concretize(v cpu.Value, fn func(b uint8) bool) bool {
	free := ^v.Mask()
	sub := uint8(0)
	for {
		if !fn(v.Bits() | sub) {
			return false
		}
		if sub == free {
			return true
		}
		// next subset of free
		sub = (sub - free) & free
	}
}

// Width is the number of concretizations of v.
func Width(v cpu.Value) int {
	n := 1
	for m := ^v.Mask(); m != 0; m &= m - 1 {
		n *= 2
	}
	return n
}

// DefaultSamples is the operand lattice checked by default: boundary
// constants plus values with a few unknown bits in interesting places.
var DefaultSamples = []cpu.Value{
	cpu.Known(0x00),
	cpu.Known(0x01),
	cpu.Known(0x0F),
	cpu.Known(0x7F),
	cpu.Known(0x80),
	cpu.Known(0xFF),
	cpu.NewValue(0xFE, 0x00), // bit 0 unknown
	cpu.NewValue(0xF7, 0x07), // bit 3 unknown
	cpu.NewValue(0x7F, 0x7F), // bit 7 unknown
	cpu.NewValue(0xF0, 0x80), // low nibble unknown
	cpu.NewValue(0x0F, 0x0F), // high nibble unknown
	cpu.NewValue(0x66, 0x24), // scattered
}

// SREGSamples are the status registers each case is checked under.
var SREGSamples = []cpu.Value{
	cpu.Zero,
	cpu.Known(0x01),          // C
	cpu.Known(0x42),          // Z, T
	cpu.NewValue(0xFC, 0x00), // C, Z unknown
	cpu.NewValue(0xBF, 0xBF), // T unknown, rest set
}

var (
	immediates = []int{0x00, 0x01, 0x0F, 0x7F, 0x80, 0xFF}
	wordConsts = []int{1, 31, 63}
	bits       = []uint8{0, 3, 7}
)

// Cases expands ops into abstract cases over samples and SREGSamples.
func Cases(ops []inst.OpCode, samples []cpu.Value) []Case {
	var cases []Case
	add := func(in inst.Instruction, a, b cpu.Value) {
		for _, sr := range SREGSamples {
			cases = append(cases, Case{In: in, A: a, B: b, SREG: sr})
		}
	}
	for _, op := range ops {
		switch inst.Catalog[op].Form {
		case inst.FormRdRr:
			in := inst.Instruction{Op: op, Rd: 16, Rr: 17}
			for _, a := range samples {
				for _, b := range samples {
					add(in, a, b)
				}
				add(inst.Instruction{Op: op, Rd: 16, Rr: 16}, a, a)
			}
		case inst.FormRdK:
			for _, a := range samples {
				for _, k := range immediates {
					add(inst.Instruction{Op: op, Rd: 16, K: k}, a, a)
				}
			}
		case inst.FormWordK:
			for _, lo := range samples {
				for _, hi := range samples {
					for _, k := range wordConsts {
						add(inst.Instruction{Op: op, Rd: 24, K: k}, lo, hi)
					}
				}
			}
		case inst.FormPair:
			for _, lo := range samples {
				for _, hi := range samples {
					add(inst.Instruction{Op: op, Rd: 16, Rr: 18}, lo, hi)
				}
			}
		case inst.FormRegBit:
			for _, a := range samples {
				for _, bit := range bits {
					add(inst.Instruction{Op: op, Rr: 16, Bit: bit}, a, a)
				}
			}
		case inst.FormFlag:
			for bit := uint8(0); bit < 8; bit++ {
				add(inst.Instruction{Op: op, Bit: bit}, cpu.Zero, cpu.Zero)
			}
		default:
			for _, a := range samples {
				add(inst.Instruction{Op: op, Rd: 16}, a, a)
			}
		}
	}
	return cases
}
