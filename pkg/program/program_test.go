package program

import (
	"errors"
	"testing"

	"github.com/oisee/avrstack/pkg/inst"
)

func TestAssembleBasic(t *testing.T) {
	src := `
; reset
main:   LDI r16, 0      // clear
        RCALL f
        RET
f:      RET
`
	p, err := Assemble(src)
	if err != nil {
		t.Fatal(err)
	}
	if p.End() != 8 {
		t.Errorf("End = %04X, want 0008", p.End())
	}
	if a, ok := p.Label("f"); !ok || a != 6 {
		t.Errorf("label f = %04X,%v, want 0006", a, ok)
	}
	in, err := p.Instruction(2)
	if err != nil {
		t.Fatal(err)
	}
	if in.Op != inst.RCALL || inst.RelativeTarget(2, in.K) != 6 {
		t.Errorf("RCALL f: got %s (k=%d)", inst.Disassemble(in), in.K)
	}
}

func TestAssembleForms(t *testing.T) {
	tests := []struct {
		src  string
		want inst.Instruction
	}{
		{"ADD r16, r17", inst.Instruction{Op: inst.ADD, Rd: 16, Rr: 17}},
		{"ldi R20, 0xAB", inst.Instruction{Op: inst.LDI, Rd: 20, K: 0xAB}},
		{"LDI r16, -1", inst.Instruction{Op: inst.LDI, Rd: 16, K: 0xFF}},
		{"CPI r17, $10", inst.Instruction{Op: inst.CPI, Rd: 17, K: 0x10}},
		{"ANDI r18, 0Fh", inst.Instruction{Op: inst.ANDI, Rd: 18, K: 0x0F}},
		{"ADIW r24, 1", inst.Instruction{Op: inst.ADIW, Rd: 24, K: 1}},
		{"MOVW r30, r24", inst.Instruction{Op: inst.MOVW, Rd: 30, Rr: 24}},
		{"IN r16, 0x3F", inst.Instruction{Op: inst.IN, Rd: 16, K: 0x3F}},
		{"OUT 0x39, r16", inst.Instruction{Op: inst.OUT, K: 0x39, Rr: 16}},
		{"SBI 0x18, 3", inst.Instruction{Op: inst.SBI, K: 0x18, Bit: 3}},
		{"SBRC r5, 7", inst.Instruction{Op: inst.SBRC, Rr: 5, Bit: 7}},
		{"BSET 7", inst.Instruction{Op: inst.BSET, Bit: 7}},
		{"LD r0, X", inst.Instruction{Op: inst.LD, Rd: 0, Rr: inst.RegX}},
		{"LD r1, X+", inst.Instruction{Op: inst.LDPI, Rd: 1, Rr: inst.RegX}},
		{"LD r2, -Y", inst.Instruction{Op: inst.LDPD, Rd: 2, Rr: inst.RegY}},
		{"LDD r3, Y+5", inst.Instruction{Op: inst.LDD, Rd: 3, Rr: inst.RegY, K: 5}},
		{"ST Z+, r4", inst.Instruction{Op: inst.STPI, Rd: inst.RegZ, Rr: 4}},
		{"STD Z+1, r9", inst.Instruction{Op: inst.STD, Rd: inst.RegZ, Rr: 9, K: 1}},
		{"LDS r18, 0x0100", inst.Instruction{Op: inst.LDS, Rd: 18, K: 0x100}},
		{"STS 0x5F, r0", inst.Instruction{Op: inst.STS, K: 0x5F}},
		{"LPM", inst.Instruction{Op: inst.LPM}},
		{"LPM r7, Z", inst.Instruction{Op: inst.LPMD, Rd: 7, Rr: inst.RegZ}},
		{"LPM r7, Z+", inst.Instruction{Op: inst.LPMPI, Rd: 7, Rr: inst.RegZ}},
		{"ELPM r2, Z+", inst.Instruction{Op: inst.ELPMPI, Rd: 2, Rr: inst.RegZ}},
		{"PUSH ZL", inst.Instruction{Op: inst.PUSH, Rd: 30}},
		{"RJMP .-2", inst.Instruction{Op: inst.RJMP, K: -1}},
		{"BRBS 1, .+4", inst.Instruction{Op: inst.BRBS, Bit: 1, K: 2}},
		{"CALL 0x0100", inst.Instruction{Op: inst.CALL, K: 0x80}},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			p, err := Assemble(tc.src)
			if err != nil {
				t.Fatal(err)
			}
			got, err := p.Instruction(0)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("got %+v (%s), want %+v", got, inst.Disassemble(got), tc.want)
			}
		})
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown mnemonic", "FOO r1"},
		{"low register immediate", "LDI r3, 1"},
		{"immediate too wide", "LDI r16, 256"},
		{"unknown label", "RJMP nowhere"},
		{"duplicate label", "a: NOP\na: NOP"},
		{"branch out of range", "BREQ far\n.org 0x200\nfar: NOP"},
		{"odd org", ".org 3"},
		{"bad directive", ".byte 1"},
		{"overlap", "JMP 0\n.org 2\nNOP"},
		{"X displacement", "LDD r1, X+1"},
		{"operand count", "ADD r1"},
		{"odd register pair", "MOVW r1, r2"},
		{"past end of flash", ".org 0xFFFE\nJMP 0"},
		{"label past end of flash", ".org 0xFFFE\nNOP\nafter:"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Assemble(tc.src); err == nil {
				t.Errorf("Assemble(%q) succeeded, want error", tc.src)
			}
		})
	}
}

func TestAssembleUnknownLabelSentinel(t *testing.T) {
	_, err := Assemble("RCALL missing")
	if !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("err = %v, want ErrUnknownLabel", err)
	}
}

func TestOrgAndFetchErrors(t *testing.T) {
	p, err := Assemble(`
        RJMP main
        .org 4
isr:    RETI
main:   CALL isr
        NOP
`)
	if err != nil {
		t.Fatal(err)
	}
	if a, _ := p.Label("main"); a != 6 {
		t.Errorf("main = %04X, want 0006", a)
	}
	if next, err := p.NextPC(6); err != nil || next != 10 {
		t.Errorf("NextPC(CALL) = %04X, %v, want 000A", next, err)
	}

	tests := []struct {
		pc   uint16
		want error
	}{
		{2, ErrMisaligned},  // gap left by .org
		{5, ErrMisaligned},  // odd address
		{8, ErrMisaligned},  // second word of CALL
		{12, ErrPastEnd},    // past the last NOP
		{0xFFFE, ErrPastEnd},
	}
	for _, tc := range tests {
		if _, err := p.Instruction(tc.pc); !errors.Is(err, tc.want) {
			t.Errorf("Instruction(%04X) err = %v, want %v", tc.pc, err, tc.want)
		}
	}
	if p.Len() != 4 {
		t.Errorf("Len = %d, want 4", p.Len())
	}
}

func TestLastFlashWord(t *testing.T) {
	p, err := Assemble(`
        JMP last
        .org 0xFFFE
last:   RJMP last
`)
	if err != nil {
		t.Fatal(err)
	}
	if p.End() != 0x10000 {
		t.Errorf("End = %05X, want 10000", p.End())
	}
	in, err := p.Instruction(0xFFFE)
	if err != nil || in.Op != inst.RJMP {
		t.Errorf("Instruction(FFFE) = %s, %v", inst.Disassemble(in), err)
	}
	if err := New().Place(0xFFFE, inst.Instruction{Op: inst.CALL}); !errors.Is(err, ErrPastEnd) {
		t.Errorf("CALL at FFFE err = %v, want ErrPastEnd", err)
	}
}

func TestIndirectTargets(t *testing.T) {
	p := FromInstructions([]inst.Instruction{{Op: inst.ICALL}, {Op: inst.RET}})
	if _, ok := p.IndirectTargets(0); ok {
		t.Error("unannotated site reports targets")
	}
	p.SetIndirectTargets(0, []uint16{8, 2, 8})
	ts, ok := p.IndirectTargets(0)
	if !ok || len(ts) != 2 || ts[0] != 2 || ts[1] != 8 {
		t.Errorf("targets = %v,%v, want [2 8]", ts, ok)
	}
	p.SetIndirectTargets(2, nil)
	if ts, ok := p.IndirectTargets(2); !ok || len(ts) != 0 {
		t.Errorf("empty annotation = %v,%v, want [] true", ts, ok)
	}
}

func TestResolve(t *testing.T) {
	p := New()
	p.SetLabel("beef", 0x20)
	tests := []struct {
		s    string
		want uint16
	}{
		{"beef", 0x20}, // labels win over hex-looking names
		{"0x10", 0x10},
		{"$1A", 0x1A},
		{"10h", 0x10},
		{"42", 42},
	}
	for _, tc := range tests {
		got, err := p.Resolve(tc.s)
		if err != nil || got != tc.want {
			t.Errorf("Resolve(%q) = %04X, %v, want %04X", tc.s, got, err, tc.want)
		}
	}
	if _, err := p.Resolve("nope"); !errors.Is(err, ErrUnknownLabel) {
		t.Errorf("Resolve(nope) err = %v", err)
	}
}

func TestDisassembleRoundTrip(t *testing.T) {
	src := []string{
		"ADD r16, r17", "LDI r16, 0xAB", "LD r0, X+", "LDD r3, Y+5",
		"STD Z+1, r9", "LDS r18, 0x0100", "LPM r7, Z+", "BRBS 1, .+4", "RJMP .-2",
	}
	for _, s := range src {
		p, err := Assemble(s)
		if err != nil {
			t.Fatalf("Assemble(%q): %v", s, err)
		}
		in, _ := p.Instruction(0)
		if got := inst.Disassemble(in); got != s {
			t.Errorf("Disassemble(Assemble(%q)) = %q", s, got)
		}
	}
}
