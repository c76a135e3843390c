// Package verify checks the abstract transfer functions against a concrete
// model of the AVR ALU: for every concretization of an abstract input, the
// concrete result must be covered by the abstract result.
package verify

import (
	"github.com/oisee/avrstack/pkg/cpu"
	"github.com/oisee/avrstack/pkg/inst"
)

// Machine is the concrete register file and status register.
type Machine struct {
	Regs [cpu.NumRegs]uint8
	SREG uint8
}

func (m *Machine) flag(n uint) bool { return m.SREG>>n&1 != 0 }

func (m *Machine) setFlag(n uint, b bool) {
	if b {
		m.SREG |= 1 << n
	} else {
		m.SREG &^= 1 << n
	}
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nzvs sets N and Z from r, V as given and S = N xor V.
func (m *Machine) nzvs(r uint8, v bool) {
	n := r&0x80 != 0
	m.setFlag(cpu.FlagN, n)
	m.setFlag(cpu.FlagZ, r == 0)
	m.setFlag(cpu.FlagV, v)
	m.setFlag(cpu.FlagS, n != v)
}

// add computes a+b+c with the flags derived from wide arithmetic rather than
// from result bits.
func (m *Machine) add(a, b uint8, c bool) uint8 {
	ci := b2i(c)
	r := uint8(int(a) + int(b) + ci)
	sum := int(int8(a)) + int(int8(b)) + ci
	m.setFlag(cpu.FlagH, int(a&0xF)+int(b&0xF)+ci > 0xF)
	m.setFlag(cpu.FlagC, int(a)+int(b)+ci > 0xFF)
	m.nzvs(r, sum < -128 || sum > 127)
	return r
}

func (m *Machine) sub(a, b uint8, c, keepZ bool) uint8 {
	ci := b2i(c)
	zold := m.flag(cpu.FlagZ)
	r := uint8(int(a) - int(b) - ci)
	diff := int(int8(a)) - int(int8(b)) - ci
	m.setFlag(cpu.FlagH, int(a&0xF) < int(b&0xF)+ci)
	m.setFlag(cpu.FlagC, int(a) < int(b)+ci)
	m.nzvs(r, diff < -128 || diff > 127)
	if keepZ {
		m.setFlag(cpu.FlagZ, r == 0 && zold)
	}
	return r
}

func (m *Machine) logic(r uint8) uint8 {
	m.nzvs(r, false)
	return r
}

func (m *Machine) shiftLeft(a uint8, in bool) uint8 {
	r := a<<1 | uint8(b2i(in))
	c := a&0x80 != 0
	m.setFlag(cpu.FlagH, a&0x08 != 0)
	m.setFlag(cpu.FlagC, c)
	m.nzvs(r, (r&0x80 != 0) != c)
	return r
}

func (m *Machine) shiftRight(a uint8, top uint8) uint8 {
	r := a>>1 | top
	c := a&1 != 0
	m.setFlag(cpu.FlagC, c)
	m.nzvs(r, (r&0x80 != 0) != c)
	return r
}

func (m *Machine) word(rd uint8, k int) {
	w := int(m.Regs[rd+1])<<8 | int(m.Regs[rd])
	r := uint16(w + k)
	signed := int(int16(uint16(w))) + k
	m.Regs[rd], m.Regs[rd+1] = uint8(r), uint8(r>>8)
	n := r&0x8000 != 0
	v := signed < -32768 || signed > 32767
	m.setFlag(cpu.FlagN, n)
	m.setFlag(cpu.FlagZ, r == 0)
	m.setFlag(cpu.FlagV, v)
	m.setFlag(cpu.FlagS, n != v)
	m.setFlag(cpu.FlagC, w+k > 0xFFFF || w+k < 0)
}

func (m *Machine) mul(in inst.Instruction, signedA, signedB, fractional bool) {
	x, y := int(m.Regs[in.Rd]), int(m.Regs[in.Rr])
	if signedA {
		x = int(int8(m.Regs[in.Rd]))
	}
	if signedB {
		y = int(int8(m.Regs[in.Rr]))
	}
	p := uint16(x * y)
	m.setFlag(cpu.FlagC, p&0x8000 != 0)
	if fractional {
		p <<= 1
	}
	m.setFlag(cpu.FlagZ, p == 0)
	m.Regs[0], m.Regs[1] = uint8(p), uint8(p>>8)
}

// Step executes one ALU instruction. It reports false for opcodes the model
// does not cover (memory, IO, control flow).
func (m *Machine) Step(in inst.Instruction) bool {
	rd, rr := &m.Regs[in.Rd&31], m.Regs[in.Rr&31]
	k := uint8(in.K)
	switch in.Op {
	case inst.ADD:
		*rd = m.add(*rd, rr, false)
	case inst.ADC:
		*rd = m.add(*rd, rr, m.flag(cpu.FlagC))
	case inst.SUB:
		*rd = m.sub(*rd, rr, false, false)
	case inst.SUBI:
		*rd = m.sub(*rd, k, false, false)
	case inst.SBC:
		*rd = m.sub(*rd, rr, m.flag(cpu.FlagC), true)
	case inst.SBCI:
		*rd = m.sub(*rd, k, m.flag(cpu.FlagC), true)
	case inst.CP:
		m.sub(*rd, rr, false, false)
	case inst.CPC:
		m.sub(*rd, rr, m.flag(cpu.FlagC), true)
	case inst.CPI:
		m.sub(*rd, k, false, false)
	case inst.NEG:
		*rd = m.sub(0, *rd, false, false)
	case inst.INC:
		v := *rd == 0x7F
		*rd++
		m.nzvs(*rd, v)
	case inst.DEC:
		v := *rd == 0x80
		*rd--
		m.nzvs(*rd, v)
	case inst.ADIW:
		m.word(in.Rd, in.K)
	case inst.SBIW:
		m.word(in.Rd, -in.K)
	case inst.MUL:
		m.mul(in, false, false, false)
	case inst.MULS:
		m.mul(in, true, true, false)
	case inst.MULSU:
		m.mul(in, true, false, false)
	case inst.FMUL:
		m.mul(in, false, false, true)
	case inst.FMULS:
		m.mul(in, true, true, true)
	case inst.FMULSU:
		m.mul(in, true, false, true)
	case inst.AND:
		*rd = m.logic(*rd & rr)
	case inst.ANDI:
		*rd = m.logic(*rd & k)
	case inst.CBR:
		*rd = m.logic(*rd &^ k)
	case inst.OR:
		*rd = m.logic(*rd | rr)
	case inst.ORI, inst.SBR:
		*rd = m.logic(*rd | k)
	case inst.EOR:
		*rd = m.logic(*rd ^ rr)
	case inst.TST:
		m.logic(*rd)
	case inst.CLR:
		*rd = m.logic(0)
	case inst.SER:
		*rd = 0xFF
	case inst.COM:
		*rd = m.logic(^*rd)
		m.setFlag(cpu.FlagC, true)
	case inst.LSL:
		*rd = m.shiftLeft(*rd, false)
	case inst.ROL:
		*rd = m.shiftLeft(*rd, m.flag(cpu.FlagC))
	case inst.LSR:
		*rd = m.shiftRight(*rd, 0)
	case inst.ROR:
		*rd = m.shiftRight(*rd, uint8(b2i(m.flag(cpu.FlagC)))<<7)
	case inst.ASR:
		*rd = m.shiftRight(*rd, *rd&0x80)
	case inst.SWAP:
		*rd = *rd<<4 | *rd>>4
	case inst.MOV:
		*rd = rr
	case inst.MOVW:
		m.Regs[in.Rd], m.Regs[in.Rd+1] = m.Regs[in.Rr], m.Regs[in.Rr+1]
	case inst.LDI:
		*rd = k
	case inst.BSET:
		m.setFlag(uint(in.Bit), true)
	case inst.BCLR:
		m.setFlag(uint(in.Bit), false)
	case inst.BST:
		m.setFlag(cpu.FlagT, rr>>in.Bit&1 != 0)
	case inst.BLD:
		r := &m.Regs[in.Rr&31]
		if m.flag(cpu.FlagT) {
			*r |= 1 << in.Bit
		} else {
			*r &^= 1 << in.Bit
		}
	default:
		return false
	}
	return true
}

// Ops lists the opcodes Step models.
func Ops() []inst.OpCode {
	return []inst.OpCode{
		inst.ADD, inst.ADC, inst.SUB, inst.SUBI, inst.SBC, inst.SBCI,
		inst.CP, inst.CPC, inst.CPI, inst.NEG, inst.INC, inst.DEC,
		inst.ADIW, inst.SBIW,
		inst.MUL, inst.MULS, inst.MULSU, inst.FMUL, inst.FMULS, inst.FMULSU,
		inst.AND, inst.ANDI, inst.CBR, inst.OR, inst.ORI, inst.SBR, inst.EOR,
		inst.TST, inst.CLR, inst.SER, inst.COM,
		inst.LSL, inst.ROL, inst.LSR, inst.ROR, inst.ASR, inst.SWAP,
		inst.MOV, inst.MOVW, inst.LDI,
		inst.BSET, inst.BCLR, inst.BST, inst.BLD,
	}
}
