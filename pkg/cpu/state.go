package cpu

import (
	"fmt"
	"strings"
)

// NumRegs is the size of the AVR general purpose register file.
const NumRegs = 32

// State is the abstract AVR processor state tracked by the stack analysis:
// a concrete program counter, the status register, the two interrupt mask
// IO registers and the 32 general purpose registers.
//
// State is a plain comparable value; copying it is the way to fork, and two
// States are the same abstract state exactly when they are ==.
type State struct {
	PC    uint16 // byte address
	SREG  Value
	EIMSK Value
	TIMSK Value
	Regs  [NumRegs]Value
}

// NewState returns the reset state: PC 0 and every tracked register known zero.
func NewState() State {
	s := State{SREG: Zero, EIMSK: Zero, TIMSK: Zero}
	for i := range s.Regs {
		s.Regs[i] = Zero
	}
	return s
}

// Equal returns true if two states are identical.
func (s State) Equal(o State) bool {
	return s == o
}

// Reg returns register r.
func (s *State) Reg(r uint8) Value {
	return s.Regs[r&31]
}

// SetReg stores a canonicalized value into register r.
func (s *State) SetReg(r uint8, v Value) {
	s.Regs[r&31] = v.Canon()
}

// Flag returns SREG bit n as a single-bit value.
func (s *State) Flag(n uint) Value {
	return s.SREG.Bit(n)
}

// SetFlag replaces SREG bit n.
func (s *State) SetFlag(n uint, b Value) {
	s.SREG = s.SREG.SetBit(n, b)
}

// IO reads an IO register by IO address. Only SREG, EIMSK and TIMSK are
// tracked; every other IO register reads as Unknown.
func (s *State) IO(addr int) Value {
	switch addr {
	case IOSREG:
		return s.SREG
	case IOEIMSK:
		return s.EIMSK
	case IOTIMSK:
		return s.TIMSK
	}
	return Unknown
}

// SetIO writes an IO register. Writes to untracked registers are dropped.
func (s *State) SetIO(addr int, v Value) {
	v = v.Canon()
	switch addr {
	case IOSREG:
		s.SREG = v
	case IOEIMSK:
		s.EIMSK = v
	case IOTIMSK:
		s.TIMSK = v
	}
}

// String renders the state on one line, registers in r0..r31 order.
func (s State) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "PC=%04X SREG=%s EIMSK=%s TIMSK=%s", s.PC, s.SREG, s.EIMSK, s.TIMSK)
	for _, r := range s.Regs {
		sb.WriteByte(' ')
		sb.WriteString(r.String())
	}
	return sb.String()
}
