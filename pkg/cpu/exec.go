package cpu

import (
	"errors"
	"fmt"

	"github.com/oisee/avrstack/pkg/inst"
)

// ErrUnsupported is returned for opcodes Exec has no transfer function for.
var ErrUnsupported = errors.New("unsupported instruction")

// Code gives the transfer functions access to the instruction stream; skip
// instructions need the size of the instruction they skip.
type Code interface {
	NextPC(pc uint16) (uint16, error)
}

// EffectKind says what the caller must do with the state after Exec.
type EffectKind uint8

const (
	Continue        EffectKind = iota // s is the successor
	Push                              // s is the successor; one byte was pushed
	Pop                               // s is the successor; one byte was popped
	Halt                              // no successor
	Call                              // direct call to Target
	IndirectCall                      // call through Z; targets come from the program
	IndirectJump                      // jump through Z; targets come from the program
	Return                            // RET
	ReturnInterrupt                   // RETI
)

var effectNames = [...]string{"continue", "push", "pop", "halt", "call", "icall", "ijmp", "ret", "reti"}

func (k EffectKind) String() string {
	if int(k) < len(effectNames) {
		return effectNames[k]
	}
	return fmt.Sprintf("effect(%d)", k)
}

// Effect describes the control-flow outcome of one instruction.
// For Continue, Push and Pop the state passed to Exec has become the successor,
// PC included. Forks holds additional successors (taken branches) reached through
// plain edges. For the other kinds the state's PC is left at the instruction and
// the caller decides what follows.
type Effect struct {
	Kind   EffectKind
	Target uint16
	Forks  []State
}

// Delegated reports whether the stack policy, not the interpreter, produces the successors.
func (e Effect) Delegated() bool {
	return e.Kind >= Halt
}

// Exec runs one instruction on the abstract state s, which is modified in place.
// s.PC must be the address of in.
func Exec(s *State, in inst.Instruction, code Code) (Effect, error) {
	pc := s.PC
	if in.Op >= inst.OpCodeCount {
		return Effect{}, fmt.Errorf("%w: opcode %d at %04X", ErrUnsupported, in.Op, pc)
	}
	next := pc + uint16(inst.ByteSize(in.Op))
	s.PC = next
	eff := Effect{Kind: Continue}

	switch in.Op {
	// === Arithmetic ===
	case inst.ADD:
		s.SetReg(in.Rd, execAdd(s, s.Reg(in.Rd), s.Reg(in.Rr), False))
	case inst.ADC:
		s.SetReg(in.Rd, execAdd(s, s.Reg(in.Rd), s.Reg(in.Rr), s.Flag(FlagC)))
	case inst.SUB:
		s.SetReg(in.Rd, execSub(s, s.Reg(in.Rd), s.Reg(in.Rr), False, false))
	case inst.SUBI:
		s.SetReg(in.Rd, execSub(s, s.Reg(in.Rd), Known(uint8(in.K)), False, false))
	case inst.SBC:
		s.SetReg(in.Rd, execSub(s, s.Reg(in.Rd), s.Reg(in.Rr), s.Flag(FlagC), true))
	case inst.SBCI:
		s.SetReg(in.Rd, execSub(s, s.Reg(in.Rd), Known(uint8(in.K)), s.Flag(FlagC), true))
	case inst.NEG:
		s.SetReg(in.Rd, execSub(s, Zero, s.Reg(in.Rd), False, false))
	case inst.INC:
		r := Inc(s.Reg(in.Rd))
		setNZVS(s, r, Equal(r, Known(0x80)))
		s.SetReg(in.Rd, r)
	case inst.DEC:
		r := Dec(s.Reg(in.Rd))
		setNZVS(s, r, Equal(r, Known(0x7F)))
		s.SetReg(in.Rd, r)
	case inst.ADIW:
		execWord(s, in.Rd, in.K)
	case inst.SBIW:
		execWord(s, in.Rd, -in.K)
	case inst.MUL:
		execMul(s, in, false, false, false)
	case inst.MULS:
		execMul(s, in, true, true, false)
	case inst.MULSU:
		execMul(s, in, true, false, false)
	case inst.FMUL:
		execMul(s, in, false, false, true)
	case inst.FMULS:
		execMul(s, in, true, true, true)
	case inst.FMULSU:
		execMul(s, in, true, false, true)

	// === Logic ===
	case inst.AND:
		s.SetReg(in.Rd, execLogic(s, And(s.Reg(in.Rd), s.Reg(in.Rr))))
	case inst.ANDI:
		s.SetReg(in.Rd, execLogic(s, And(s.Reg(in.Rd), Known(uint8(in.K)))))
	case inst.CBR:
		s.SetReg(in.Rd, execLogic(s, And(s.Reg(in.Rd), Known(^uint8(in.K)))))
	case inst.TST:
		execLogic(s, s.Reg(in.Rd))
	case inst.OR:
		s.SetReg(in.Rd, execLogic(s, Or(s.Reg(in.Rd), s.Reg(in.Rr))))
	case inst.ORI, inst.SBR:
		s.SetReg(in.Rd, execLogic(s, Or(s.Reg(in.Rd), Known(uint8(in.K)))))
	case inst.EOR:
		if in.Rd == in.Rr {
			s.SetReg(in.Rd, execLogic(s, Zero))
		} else {
			s.SetReg(in.Rd, execLogic(s, Xor(s.Reg(in.Rd), s.Reg(in.Rr))))
		}
	case inst.CLR:
		s.SetReg(in.Rd, execLogic(s, Zero))
	case inst.COM:
		r := execLogic(s, Not(s.Reg(in.Rd)))
		s.SetFlag(FlagC, True)
		s.SetReg(in.Rd, r)
	case inst.SER:
		s.SetReg(in.Rd, Known(0xFF))

	// === Compares (no register written) ===
	case inst.CP:
		execSub(s, s.Reg(in.Rd), s.Reg(in.Rr), False, false)
	case inst.CPC:
		execSub(s, s.Reg(in.Rd), s.Reg(in.Rr), s.Flag(FlagC), true)
	case inst.CPI:
		execSub(s, s.Reg(in.Rd), Known(uint8(in.K)), False, false)

	// === Shifts ===
	case inst.LSL:
		s.SetReg(in.Rd, execShiftLeft(s, s.Reg(in.Rd), False))
	case inst.ROL:
		s.SetReg(in.Rd, execShiftLeft(s, s.Reg(in.Rd), s.Flag(FlagC)))
	case inst.LSR:
		s.SetReg(in.Rd, execShiftRight(s, s.Reg(in.Rd), False))
	case inst.ROR:
		s.SetReg(in.Rd, execShiftRight(s, s.Reg(in.Rd), s.Flag(FlagC)))
	case inst.ASR:
		rd := s.Reg(in.Rd)
		s.SetReg(in.Rd, execShiftRight(s, rd, rd.Bit(7)))
	case inst.SWAP:
		s.SetReg(in.Rd, Swap(s.Reg(in.Rd)))

	// === Status register bits ===
	case inst.BSET:
		s.SetFlag(uint(in.Bit), True)
	case inst.BCLR:
		s.SetFlag(uint(in.Bit), False)
	case inst.SEC, inst.CLC, inst.SEZ, inst.CLZ, inst.SEN, inst.CLN, inst.SEV, inst.CLV,
		inst.SES, inst.CLS, inst.SEH, inst.CLH, inst.SET, inst.CLT, inst.SEI, inst.CLI:
		bit, set, _ := inst.FlagBit(in.Op)
		s.SetFlag(uint(bit), Bool(set))
	case inst.BST:
		s.SetFlag(FlagT, s.Reg(in.Rr).Bit(uint(in.Bit)))
	case inst.BLD:
		s.SetReg(in.Rr, s.Reg(in.Rr).SetBit(uint(in.Bit), s.Flag(FlagT)))

	// === Register and IO transfer ===
	case inst.MOV:
		s.SetReg(in.Rd, s.Reg(in.Rr))
	case inst.MOVW:
		s.SetReg(in.Rd, s.Reg(in.Rr))
		s.SetReg(in.Rd+1, s.Reg(in.Rr+1))
	case inst.LDI:
		s.SetReg(in.Rd, Known(uint8(in.K)))
	case inst.IN:
		s.SetReg(in.Rd, s.IO(in.K))
	case inst.OUT:
		s.SetIO(in.K, s.Reg(in.Rr))
	case inst.SBI:
		s.SetIO(in.K, s.IO(in.K).SetBit(uint(in.Bit), True))
	case inst.CBI:
		s.SetIO(in.K, s.IO(in.K).SetBit(uint(in.Bit), False))

	// === Memory: data space is not modelled, loads produce Unknown ===
	case inst.LD, inst.LDD:
		s.SetReg(in.Rd, Unknown)
	case inst.LDPI:
		s.SetReg(in.Rd, Unknown)
		addPointer(s, in.Rr, 1)
	case inst.LDPD:
		s.SetReg(in.Rd, Unknown)
		addPointer(s, in.Rr, -1)
	case inst.LDS:
		s.SetReg(in.Rd, loadData(s, in.K))
	case inst.ST, inst.STD:
		// stores through pointers are not tracked
	case inst.STPI:
		addPointer(s, in.Rd, 1)
	case inst.STPD:
		addPointer(s, in.Rd, -1)
	case inst.STS:
		storeData(s, in.K, s.Reg(in.Rr))
	case inst.LPM, inst.ELPM:
		s.SetReg(0, Unknown)
	case inst.LPMD, inst.ELPMD:
		s.SetReg(in.Rd, Unknown)
	case inst.LPMPI, inst.ELPMPI:
		s.SetReg(in.Rd, Unknown)
		addPointer(s, inst.RegZ, 1)
	case inst.SPM, inst.NOP, inst.SLEEP, inst.WDR:
		// no tracked effect

	// === Conditional branches ===
	case inst.BRBS:
		eff = branch(s, s.Flag(uint(in.Bit)), inst.RelativeTarget(pc, in.K))
	case inst.BRBC:
		eff = branch(s, Not(s.Flag(uint(in.Bit))), inst.RelativeTarget(pc, in.K))
	case inst.BREQ:
		eff = branch(s, s.Flag(FlagZ), inst.RelativeTarget(pc, in.K))
	case inst.BRNE:
		eff = branch(s, Not(s.Flag(FlagZ)), inst.RelativeTarget(pc, in.K))
	case inst.BRCS, inst.BRLO:
		eff = branch(s, s.Flag(FlagC), inst.RelativeTarget(pc, in.K))
	case inst.BRCC, inst.BRSH:
		eff = branch(s, Not(s.Flag(FlagC)), inst.RelativeTarget(pc, in.K))
	case inst.BRMI:
		eff = branch(s, s.Flag(FlagN), inst.RelativeTarget(pc, in.K))
	case inst.BRPL:
		eff = branch(s, Not(s.Flag(FlagN)), inst.RelativeTarget(pc, in.K))
	case inst.BRLT:
		eff = branch(s, s.Flag(FlagS), inst.RelativeTarget(pc, in.K))
	case inst.BRGE:
		eff = branch(s, Not(s.Flag(FlagS)), inst.RelativeTarget(pc, in.K))
	case inst.BRHS:
		eff = branch(s, s.Flag(FlagH), inst.RelativeTarget(pc, in.K))
	case inst.BRHC:
		eff = branch(s, Not(s.Flag(FlagH)), inst.RelativeTarget(pc, in.K))
	case inst.BRTS:
		eff = branch(s, s.Flag(FlagT), inst.RelativeTarget(pc, in.K))
	case inst.BRTC:
		eff = branch(s, Not(s.Flag(FlagT)), inst.RelativeTarget(pc, in.K))
	case inst.BRVS:
		eff = branch(s, s.Flag(FlagV), inst.RelativeTarget(pc, in.K))
	case inst.BRVC:
		eff = branch(s, Not(s.Flag(FlagV)), inst.RelativeTarget(pc, in.K))
	case inst.BRIE:
		eff = branch(s, s.Flag(FlagI), inst.RelativeTarget(pc, in.K))
	case inst.BRID:
		eff = branch(s, Not(s.Flag(FlagI)), inst.RelativeTarget(pc, in.K))

	// === Skips ===
	case inst.CPSE:
		return skip(s, Equal(s.Reg(in.Rd), s.Reg(in.Rr)), code)
	case inst.SBRC:
		return skip(s, Not(s.Reg(in.Rr).Bit(uint(in.Bit))), code)
	case inst.SBRS:
		return skip(s, s.Reg(in.Rr).Bit(uint(in.Bit)), code)
	case inst.SBIC:
		return skip(s, Not(s.IO(in.K).Bit(uint(in.Bit))), code)
	case inst.SBIS:
		return skip(s, s.IO(in.K).Bit(uint(in.Bit)), code)

	// === Unconditional control flow ===
	case inst.RJMP:
		s.PC = inst.RelativeTarget(pc, in.K)
	case inst.JMP:
		s.PC = inst.AbsoluteTarget(in.K)
	case inst.RCALL:
		s.PC = pc
		eff = Effect{Kind: Call, Target: inst.RelativeTarget(pc, in.K)}
	case inst.CALL:
		s.PC = pc
		eff = Effect{Kind: Call, Target: inst.AbsoluteTarget(in.K)}
	case inst.ICALL, inst.EICALL:
		s.PC = pc
		eff = Effect{Kind: IndirectCall}
	case inst.IJMP, inst.EIJMP:
		s.PC = pc
		eff = Effect{Kind: IndirectJump}
	case inst.RET:
		s.PC = pc
		eff = Effect{Kind: Return}
	case inst.RETI:
		s.PC = pc
		eff = Effect{Kind: ReturnInterrupt}
	case inst.BREAK:
		s.PC = pc
		eff = Effect{Kind: Halt}

	// === Stack ===
	case inst.PUSH:
		eff = Effect{Kind: Push}
	case inst.POP:
		// the stack contents are not modelled
		s.SetReg(in.Rd, Unknown)
		eff = Effect{Kind: Pop}

	default:
		s.PC = pc
		return Effect{}, fmt.Errorf("%w: opcode %d at %04X", ErrUnsupported, in.Op, pc)
	}
	return eff, nil
}

// branch forks on a ternary condition. The fallthrough successor is s itself
// (PC already at the next instruction); a possibly taken branch is a copy.
func branch(s *State, cond Value, target uint16) Effect {
	switch cond {
	case True:
		s.PC = target
	case False:
	default:
		taken := *s
		taken.PC = target
		return Effect{Kind: Continue, Forks: []State{taken}}
	}
	return Effect{Kind: Continue}
}

// skip branches over the instruction that follows, whatever its size.
func skip(s *State, cond Value, code Code) (Effect, error) {
	target, err := code.NextPC(s.PC)
	if err != nil {
		return Effect{}, fmt.Errorf("skip at %04X: %w", s.PC-2, err)
	}
	return branch(s, cond, target), nil
}

func or3(a, b, c Value) Value  { return Or(Or(a, b), c) }
func and3(a, b, c Value) Value { return And(And(a, b), c) }

// setNZVS sets N from bit 7 of r, Z from r, V as given and S = N xor V.
func setNZVS(s *State, r, v Value) {
	n := r.Bit(7)
	s.SetFlag(FlagN, n)
	s.SetFlag(FlagZ, IsZero(r))
	s.SetFlag(FlagV, v)
	s.SetFlag(FlagS, Xor(n, v))
}

// execAdd computes a+b+c and the ADD/ADC flags.
func execAdd(s *State, a, b, c Value) Value {
	r := Add(a, b, c)
	rd3, rr3, r3 := a.Bit(3), b.Bit(3), r.Bit(3)
	rd7, rr7, r7 := a.Bit(7), b.Bit(7), r.Bit(7)
	s.SetFlag(FlagH, or3(And(rd3, rr3), And(rr3, Not(r3)), And(Not(r3), rd3)))
	s.SetFlag(FlagC, or3(And(rd7, rr7), And(rr7, Not(r7)), And(Not(r7), rd7)))
	setNZVS(s, r, Or(and3(rd7, rr7, Not(r7)), and3(Not(rd7), Not(rr7), r7)))
	return r
}

// execSub computes a-b-c and the SUB/SBC/CP flags. With keepZ, Z can only stay
// set (SBC, SBCI, CPC chain multi-byte compares through it).
func execSub(s *State, a, b, c Value, keepZ bool) Value {
	zold := s.Flag(FlagZ)
	r := Sub(a, b, c)
	rd3, rr3, r3 := a.Bit(3), b.Bit(3), r.Bit(3)
	rd7, rr7, r7 := a.Bit(7), b.Bit(7), r.Bit(7)
	s.SetFlag(FlagH, or3(And(Not(rd3), rr3), And(rr3, r3), And(r3, Not(rd3))))
	s.SetFlag(FlagC, or3(And(Not(rd7), rr7), And(rr7, r7), And(r7, Not(rd7))))
	setNZVS(s, r, Or(and3(rd7, Not(rr7), Not(r7)), and3(Not(rd7), rr7, r7)))
	if keepZ {
		s.SetFlag(FlagZ, And(IsZero(r), zold))
	}
	return r
}

// execLogic sets the flags shared by AND, OR, EOR, COM and friends.
func execLogic(s *State, r Value) Value {
	setNZVS(s, r, False)
	return r
}

func execShiftLeft(s *State, v, in Value) Value {
	r := ShiftLeft(v, in)
	c := v.Bit(7)
	s.SetFlag(FlagH, v.Bit(3))
	s.SetFlag(FlagC, c)
	setNZVS(s, r, Xor(r.Bit(7), c))
	return r
}

func execShiftRight(s *State, v, in Value) Value {
	r := ShiftRight(v, in)
	c := v.Bit(0)
	s.SetFlag(FlagC, c)
	setNZVS(s, r, Xor(r.Bit(7), c))
	return r
}

// execWord implements ADIW (k > 0) and SBIW (k < 0) on the pair rd+1:rd.
func execWord(s *State, rd uint8, k int) {
	rdh7 := s.Reg(rd + 1).Bit(7)
	lo, hi := AddWord(s.Reg(rd), s.Reg(rd+1), k)
	r15 := hi.Bit(7)
	var v, c Value
	if k >= 0 {
		v = And(Not(rdh7), r15)
		c = And(Not(r15), rdh7)
	} else {
		v = And(rdh7, Not(r15))
		c = And(r15, Not(rdh7))
	}
	s.SetFlag(FlagV, v)
	s.SetFlag(FlagN, r15)
	s.SetFlag(FlagZ, And(IsZero(lo), IsZero(hi)))
	s.SetFlag(FlagC, c)
	s.SetFlag(FlagS, Xor(r15, v))
	s.SetReg(rd, lo)
	s.SetReg(rd+1, hi)
}

// execMul writes the product into r1:r0. Products are exact when both operands
// are known and zero when either is known zero; otherwise nothing is known.
func execMul(s *State, in inst.Instruction, signedA, signedB, fractional bool) {
	a, b := s.Reg(in.Rd), s.Reg(in.Rr)
	lo, hi, c, z := Unknown, Unknown, Unknown, Unknown
	switch {
	case a.IsKnown() && b.IsKnown():
		x, y := int(a.Bits()), int(b.Bits())
		if signedA {
			x = int(int8(a.Bits()))
		}
		if signedB {
			y = int(int8(b.Bits()))
		}
		p := uint16(x * y)
		c = Bool(p&0x8000 != 0)
		if fractional {
			p <<= 1
		}
		lo, hi, z = Known(uint8(p)), Known(uint8(p>>8)), Bool(p == 0)
	case a == Zero || b == Zero:
		lo, hi, c, z = Zero, Zero, False, True
	}
	s.SetReg(0, lo)
	s.SetReg(1, hi)
	s.SetFlag(FlagC, c)
	s.SetFlag(FlagZ, z)
}

func addPointer(s *State, base uint8, k int) {
	lo, hi := AddWord(s.Reg(base), s.Reg(base+1), k)
	s.SetReg(base, lo)
	s.SetReg(base+1, hi)
}

// loadData reads a data-space address: registers and tracked IO registers are
// memory mapped, everything else is SRAM and reads as Unknown.
func loadData(s *State, addr int) Value {
	switch {
	case addr >= 0 && addr < NumRegs:
		return s.Reg(uint8(addr))
	case addr >= IOBase && addr < IOBase+IOCount:
		return s.IO(addr - IOBase)
	}
	return Unknown
}

func storeData(s *State, addr int, v Value) {
	switch {
	case addr >= 0 && addr < NumRegs:
		s.SetReg(uint8(addr), v)
	case addr >= IOBase && addr < IOBase+IOCount:
		s.SetIO(addr-IOBase, v)
	}
}
