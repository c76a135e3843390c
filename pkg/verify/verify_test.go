package verify

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/oisee/avrstack/pkg/cpu"
	"github.com/oisee/avrstack/pkg/inst"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestConcretize(t *testing.T) {
	tests := []struct {
		v    cpu.Value
		want []uint8
	}{
		{cpu.Known(0x5A), []uint8{0x5A}},
		{cpu.NewValue(0xFE, 0x10), []uint8{0x10, 0x11}},
		{cpu.NewValue(0xF6, 0x80), []uint8{0x80, 0x81, 0x88, 0x89}},
	}
	for _, tc := range tests {
		var got []uint8
		Concretize(tc.v, func(b uint8) bool {
			got = append(got, b)
			return true
		})
		if len(got) != len(tc.want) || Width(tc.v) != len(tc.want) {
			t.Errorf("Concretize(%s) = %02X, want %02X", tc.v, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("Concretize(%s) = %02X, want %02X", tc.v, got, tc.want)
				break
			}
		}
	}

	n := 0
	Concretize(cpu.Unknown, func(uint8) bool { n++; return true })
	if n != 256 {
		t.Errorf("Unknown has %d concretizations, want 256", n)
	}
}

func TestReference(t *testing.T) {
	tests := []struct {
		in       inst.Instruction
		rd, rr   uint8
		sreg     uint8
		want     uint8
		wantSREG uint8
	}{
		// 0x7F + 1: V, N, S, H
		{inst.Instruction{Op: inst.ADD, Rd: 16, Rr: 17}, 0x7F, 0x01, 0x00, 0x80, 0x2C},
		// 0xFF + 1: C, Z, H
		{inst.Instruction{Op: inst.ADD, Rd: 16, Rr: 17}, 0xFF, 0x01, 0x00, 0x00, 0x23},
		// 0 - 1: C, N, S, H
		{inst.Instruction{Op: inst.SUB, Rd: 16, Rr: 17}, 0x00, 0x01, 0x00, 0xFF, 0x35},
		// SBC keeps Z clear when it was clear
		{inst.Instruction{Op: inst.SBC, Rd: 16, Rr: 17}, 0x01, 0x00, 0x01, 0x00, 0x00},
		// LSR 0x01: C, Z, V = N^C, S
		{inst.Instruction{Op: inst.LSR, Rd: 16}, 0x01, 0, 0x00, 0x00, 0x1B},
		// NEG 0x80 stays 0x80 with V
		{inst.Instruction{Op: inst.NEG, Rd: 16}, 0x80, 0, 0x00, 0x80, 0x0D},
	}
	for _, tc := range tests {
		t.Run(inst.Disassemble(tc.in), func(t *testing.T) {
			var m Machine
			m.Regs[tc.in.Rd] = tc.rd
			if tc.in.Rr != tc.in.Rd {
				m.Regs[tc.in.Rr] = tc.rr
			}
			m.SREG = tc.sreg
			if !m.Step(tc.in) {
				t.Fatal("not modelled")
			}
			if m.Regs[tc.in.Rd] != tc.want || m.SREG != tc.wantSREG {
				t.Errorf("got %02X SREG=%02X, want %02X SREG=%02X",
					m.Regs[tc.in.Rd], m.SREG, tc.want, tc.wantSREG)
			}
		})
	}
}

func TestCheckReportsUnmodelled(t *testing.T) {
	c := Case{In: inst.Instruction{Op: inst.PUSH, Rd: 16}, A: cpu.Zero, B: cpu.Zero, SREG: cpu.Zero}
	if cx, _ := Check(c); cx == nil {
		t.Error("PUSH passed an ALU check")
	}
}

func TestCheckCounts(t *testing.T) {
	c := Case{
		In:   inst.Instruction{Op: inst.ADD, Rd: 16, Rr: 17},
		A:    cpu.NewValue(0xFC, 0x00),
		B:    cpu.NewValue(0xFE, 0x00),
		SREG: cpu.NewValue(0xFE, 0x00),
	}
	cx, n := Check(c)
	if cx != nil {
		t.Fatalf("unexpected counterexample: %s", cx)
	}
	if n != 4*2*2 {
		t.Errorf("checked %d concretizations, want 16", n)
	}
}

func TestSoundness(t *testing.T) {
	cfg := Config{Logger: quietLogger()}
	if testing.Short() {
		cfg.Samples = DefaultSamples[:8]
	}
	rep, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Cases == 0 || rep.Concretizations < rep.Cases {
		t.Fatalf("checked %d cases, %d concretizations", rep.Cases, rep.Concretizations)
	}
	for i, cx := range rep.Counterexamples {
		if i == 20 {
			t.Fatalf("... %d counterexamples in total", len(rep.Counterexamples))
		}
		t.Error(cx)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, Config{Logger: quietLogger()}); err == nil {
		t.Error("cancelled run returned no error")
	}
}
