package verify

import (
	"fmt"

	"github.com/oisee/avrstack/pkg/cpu"
	"github.com/oisee/avrstack/pkg/inst"
)

// Counterexample is a concrete input whose result the abstract transfer
// function does not cover.
type Counterexample struct {
	Case    Case
	A, B    uint8 // concrete operands
	SREG    uint8 // concrete status register
	Reg     int   // offending register, -1 for SREG
	Want    uint8 // concrete result
	Got     cpu.Value
	Message string
}

func (c Counterexample) String() string {
	where := "SREG"
	if c.Reg >= 0 {
		where = fmt.Sprintf("r%d", c.Reg)
	}
	if c.Message != "" {
		return fmt.Sprintf("%s: %s", inst.Disassemble(c.Case.In), c.Message)
	}
	return fmt.Sprintf("%s A=%02X B=%02X SREG=%02X: %s = %02X not covered by %s",
		inst.Disassemble(c.Case.In), c.A, c.B, c.SREG, where, c.Want, c.Got)
}

// noCode is the instruction stream for ALU checks; none of them skips.
type noCode struct{}

func (noCode) NextPC(pc uint16) (uint16, error) {
	return 0, fmt.Errorf("no instruction stream at %04X", pc)
}

// Check runs c through the abstract interpreter and through the concrete
// model for every concretization of its inputs. It returns the first
// counterexample found (nil if none) and the number of concretizations tried.
func Check(c Case) (*Counterexample, int64) {
	s := c.State()
	eff, err := cpu.Exec(&s, c.In, noCode{})
	if err != nil {
		return &Counterexample{Case: c, Reg: -1, Message: err.Error()}, 0
	}
	if eff.Kind != cpu.Continue || len(eff.Forks) != 0 {
		return &Counterexample{Case: c, Reg: -1, Message: "not a straight-line instruction: " + eff.Kind.String()}, 0
	}

	ra, rb := operandRegs(c.In)
	var n int64
	var found *Counterexample
	Concretize(c.A, func(a uint8) bool {
		return concretizeB(c, ra, rb, a, func(b uint8) bool {
			return Concretize(c.SREG, func(sr uint8) bool {
				n++
				var m Machine
				m.Regs[ra], m.Regs[rb] = a, b
				m.SREG = sr
				if !m.Step(c.In) {
					found = &Counterexample{Case: c, Reg: -1, Message: "no concrete model"}
					return false
				}
				if cx := covers(&s, &m); cx != nil {
					cx.Case, cx.A, cx.B, cx.SREG = c, a, b, sr
					found = cx
					return false
				}
				return true
			})
		})
	})
	return found, n
}

// concretizeB enumerates the second operand, which is tied to the first when
// both name the same register.
func concretizeB(c Case, ra, rb, a uint8, fn func(uint8) bool) bool {
	if ra == rb {
		return fn(a)
	}
	return Concretize(c.B, fn)
}

// covers compares a concrete machine against the abstract state.
func covers(s *cpu.State, m *Machine) *Counterexample {
	for r := 0; r < cpu.NumRegs; r++ {
		if v := s.Reg(uint8(r)); !v.Covers(m.Regs[r]) {
			return &Counterexample{Reg: r, Want: m.Regs[r], Got: v}
		}
	}
	if !s.SREG.Covers(m.SREG) {
		return &Counterexample{Reg: -1, Want: m.SREG, Got: s.SREG}
	}
	return nil
}
