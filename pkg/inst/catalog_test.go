package inst

import (
	"testing"
)

// TestCatalogCompleteness verifies every OpCode has a catalog entry.
func TestCatalogCompleteness(t *testing.T) {
	for op := OpCode(0); op < OpCodeCount; op++ {
		info := &Catalog[op]
		if info.Mnemonic == "" {
			t.Errorf("OpCode %d has no mnemonic", op)
		}
		if info.Size != 2 && info.Size != 4 {
			t.Errorf("OpCode %d (%s) has size %d, want 2 or 4", op, info.Mnemonic, info.Size)
		}
	}
}

func TestLongInstructions(t *testing.T) {
	long := map[OpCode]bool{CALL: true, JMP: true, LDS: true, STS: true}
	for op := OpCode(0); op < OpCodeCount; op++ {
		want := 2
		if long[op] {
			want = 4
		}
		if got := ByteSize(op); got != want {
			t.Errorf("%s: size %d, want %d", Catalog[op].Mnemonic, got, want)
		}
	}
}

func TestLookup(t *testing.T) {
	tests := []struct {
		mnemonic string
		want     OpCode
	}{
		{"add", ADD},
		{"LDI", LDI},
		{"ld", LD},
		{"St", ST},
		{"lpm", LPM},
		{"brne", BRNE},
		{"rcall", RCALL},
		{"sei", SEI},
	}
	for _, tc := range tests {
		got, ok := Lookup(tc.mnemonic)
		if !ok {
			t.Errorf("Lookup(%q) not found", tc.mnemonic)
			continue
		}
		if got != tc.want {
			t.Errorf("Lookup(%q) = %s, want %s", tc.mnemonic, Catalog[got].Mnemonic, Catalog[tc.want].Mnemonic)
		}
	}
	if _, ok := Lookup("LD A, B"); ok {
		t.Error("Lookup accepted a Z80 mnemonic")
	}
}

func TestDisassemble(t *testing.T) {
	tests := []struct {
		in   Instruction
		want string
	}{
		{Instruction{Op: NOP}, "NOP"},
		{Instruction{Op: ADD, Rd: 16, Rr: 17}, "ADD r16, r17"},
		{Instruction{Op: LDI, Rd: 16, K: 0xAB}, "LDI r16, 0xAB"},
		{Instruction{Op: RJMP, K: -1}, "RJMP .-2"},
		{Instruction{Op: RCALL, K: 3}, "RCALL .+6"},
		{Instruction{Op: CALL, K: 0x80}, "CALL 0x0100"},
		{Instruction{Op: IN, Rd: 1, K: 0x3F}, "IN r1, 0x3F"},
		{Instruction{Op: OUT, Rr: 24, K: 0x39}, "OUT 0x39, r24"},
		{Instruction{Op: SBIC, K: 0x16, Bit: 3}, "SBIC 0x16, 3"},
		{Instruction{Op: SBRS, Rr: 5, Bit: 7}, "SBRS r5, 7"},
		{Instruction{Op: LDPI, Rd: 0, Rr: RegX}, "LD r0, X+"},
		{Instruction{Op: LDPD, Rd: 2, Rr: RegZ}, "LD r2, -Z"},
		{Instruction{Op: LDD, Rd: 3, Rr: RegY, K: 5}, "LDD r3, Y+5"},
		{Instruction{Op: STPI, Rd: RegX, Rr: 4}, "ST X+, r4"},
		{Instruction{Op: STD, Rd: RegZ, Rr: 9, K: 1}, "STD Z+1, r9"},
		{Instruction{Op: LDS, Rd: 18, K: 0x0100}, "LDS r18, 0x0100"},
		{Instruction{Op: STS, Rr: 18, K: 0x0059}, "STS 0x0059, r18"},
		{Instruction{Op: LPMPI, Rd: 7}, "LPM r7, Z+"},
		{Instruction{Op: BRBS, Bit: 1, K: 2}, "BRBS 1, .+4"},
		{Instruction{Op: ADIW, Rd: 24, K: 1}, "ADIW r24, 0x01"},
		{Instruction{Op: MOVW, Rd: 30, Rr: 24}, "MOVW r30, r24"},
	}
	for _, tc := range tests {
		if got := Disassemble(tc.in); got != tc.want {
			t.Errorf("Disassemble(%+v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBranchTargets(t *testing.T) {
	if got := RelativeTarget(0x10, -1); got != 0x10 {
		t.Errorf("RelativeTarget(0x10, -1) = %04X, want 0010", got)
	}
	if got := RelativeTarget(0, 2); got != 6 {
		t.Errorf("RelativeTarget(0, 2) = %04X, want 0006", got)
	}
	if got := AbsoluteTarget(0x40); got != 0x80 {
		t.Errorf("AbsoluteTarget(0x40) = %04X, want 0080", got)
	}
}

func TestFlagBit(t *testing.T) {
	bit, set, ok := FlagBit(SEI)
	if !ok || bit != 7 || !set {
		t.Errorf("FlagBit(SEI) = %d, %v, %v", bit, set, ok)
	}
	bit, set, ok = FlagBit(CLZ)
	if !ok || bit != 1 || set {
		t.Errorf("FlagBit(CLZ) = %d, %v, %v", bit, set, ok)
	}
	if _, _, ok := FlagBit(ADD); ok {
		t.Error("FlagBit(ADD) reported a flag alias")
	}
}

func TestIsSkip(t *testing.T) {
	for _, op := range []OpCode{CPSE, SBRC, SBRS, SBIC, SBIS} {
		if !IsSkip(op) {
			t.Errorf("%s should be a skip", Catalog[op].Mnemonic)
		}
	}
	if IsSkip(BRNE) {
		t.Error("BRNE is not a skip")
	}
}
