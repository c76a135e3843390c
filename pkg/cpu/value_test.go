package cpu

import (
	"testing"
)

// canonicalValues returns every canonical Value (3^8 of them).
func canonicalValues() []Value {
	var vs []Value
	for mask := 0; mask < 256; mask++ {
		for bits := 0; bits < 256; bits++ {
			if bits&^mask != 0 {
				continue
			}
			vs = append(vs, NewValue(uint8(mask), uint8(bits)))
		}
	}
	return vs
}

// concretizations calls fn for every byte v covers.
func concretizations(v Value, fn func(uint8)) {
	for c := 0; c < 256; c++ {
		if v.Covers(uint8(c)) {
			fn(uint8(c))
		}
	}
}

func TestCanonIdempotent(t *testing.T) {
	for raw := 0; raw < 0x10000; raw++ {
		v := Value(raw)
		c := v.Canon()
		if c.Canon() != c {
			t.Fatalf("canon(canon(%04X)) = %04X, want %04X", raw, c.Canon(), c)
		}
		if uint8(c)&^c.Mask() != 0 {
			t.Fatalf("canon(%04X) = %04X has value bits outside mask", raw, c)
		}
	}
}

func TestConstants(t *testing.T) {
	if Known(0) != Zero {
		t.Errorf("Known(0) = %04X, want %04X", Known(0), Zero)
	}
	if Zero.Bit(0) != False || Known(1).Bit(0) != True || Unknown.Bit(5) != Unknown {
		t.Error("Bit does not produce True/False/Unknown")
	}
	if got := Known(0xA5).String(); got != "10100101" {
		t.Errorf("String = %q, want 10100101", got)
	}
	if got := NewValue(0xF0, 0x50).String(); got != "0101...." {
		t.Errorf("String = %q, want 0101....", got)
	}
}

func TestMergeLaws(t *testing.T) {
	samples := []Value{
		Zero, Unknown, Known(0xFF), Known(0x5A), Known(0x01),
		NewValue(0xF0, 0x30), NewValue(0x0F, 0x0A), NewValue(0x81, 0x80),
		NewValue(0x7E, 0x42), True, False,
	}
	for _, a := range samples {
		if Merge(a, a) != a.Canon() {
			t.Errorf("merge(%s,%s) = %s, want %s", a, a, Merge(a, a), a)
		}
		if Merge(a, Unknown) != Unknown {
			t.Errorf("merge(%s, unknown) = %s, want unknown", a, Merge(a, Unknown))
		}
		for _, b := range samples {
			if Merge(a, b) != Merge(b, a) {
				t.Errorf("merge not commutative for %s, %s", a, b)
			}
			for _, c := range samples {
				if Merge(Merge(a, b), c) != Merge(a, Merge(b, c)) {
					t.Errorf("merge not associative for %s, %s, %s", a, b, c)
				}
			}
		}
	}
}

func TestMergeKnownBytes(t *testing.T) {
	got := Merge(Known(0x0F), Known(0x0D))
	want := NewValue(0xFD, 0x0D)
	if got != want {
		t.Errorf("merge(0F,0D) = %s, want %s", got, want)
	}
}

func TestAddKnown(t *testing.T) {
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			got := Add(Known(uint8(a)), Known(uint8(b)), False)
			if want := Known(uint8(a + b)); got != want {
				t.Fatalf("add(%02X,%02X) = %s, want %s", a, b, got, want)
			}
			got = Sub(Known(uint8(a)), Known(uint8(b)), True)
			if want := Known(uint8(a - b - 1)); got != want {
				t.Fatalf("sub(%02X,%02X,1) = %s, want %s", a, b, got, want)
			}
		}
	}
}

func TestAddSound(t *testing.T) {
	for _, v := range canonicalValues() {
		for b := 0; b < 256; b++ {
			sum := Add(v, Known(uint8(b)), False)
			diff := Sub(v, Known(uint8(b)), False)
			concretizations(v, func(c uint8) {
				if !sum.Covers(c + uint8(b)) {
					t.Fatalf("add(%s,%02X) = %s does not cover %02X+%02X", v, b, sum, c, b)
				}
				if !diff.Covers(c - uint8(b)) {
					t.Fatalf("sub(%s,%02X) = %s does not cover %02X-%02X", v, b, diff, c, b)
				}
			})
		}
	}
}

func TestCarrySound(t *testing.T) {
	vals := []Value{Unknown, NewValue(0xF0, 0x70), NewValue(0xFE, 0x7E), Known(0xFF), Known(0x80)}
	for _, a := range vals {
		for _, b := range vals {
			sum := Add(a, b, Unknown)
			diff := Sub(a, b, Unknown)
			concretizations(a, func(x uint8) {
				concretizations(b, func(y uint8) {
					for c := uint8(0); c < 2; c++ {
						if !sum.Covers(x + y + c) {
							t.Fatalf("add(%s,%s,?) = %s misses %02X+%02X+%d", a, b, sum, x, y, c)
						}
						if !diff.Covers(x - y - c) {
							t.Fatalf("sub(%s,%s,?) = %s misses %02X-%02X-%d", a, b, diff, x, y, c)
						}
					}
				})
			})
		}
	}
}

func TestIncDecSound(t *testing.T) {
	for _, v := range canonicalValues() {
		inc, dec := Inc(v), Dec(v)
		concretizations(v, func(c uint8) {
			if !inc.Covers(c + 1) {
				t.Fatalf("inc(%s) = %s misses %02X", v, inc, c+1)
			}
			if !dec.Covers(c - 1) {
				t.Fatalf("dec(%s) = %s misses %02X", v, dec, c-1)
			}
		})
	}
}

func TestLogic(t *testing.T) {
	tests := []struct {
		name string
		got  Value
		want Value
	}{
		{"and known zero wins", And(Unknown, Known(0x0F)), NewValue(0xF0, 0x00)},
		{"or known one wins", Or(Unknown, Known(0x0F)), NewValue(0x0F, 0x0F)},
		{"xor needs both", Xor(NewValue(0xF0, 0xA0), Known(0xFF)), NewValue(0xF0, 0x50)},
		{"not flips known", Not(NewValue(0x0F, 0x05)), NewValue(0x0F, 0x0A)},
		{"swap nibbles", Swap(NewValue(0x0F, 0x05)), NewValue(0xF0, 0x50)},
		{"shift left", ShiftLeft(Known(0x81), True), Known(0x03)},
		{"shift right unknown in", ShiftRight(Known(0x81), Unknown), NewValue(0x7F, 0x40)},
		{"bool and", And(True, Unknown), Unknown},
		{"bool and false", And(False, Unknown), False},
		{"bool or true", Or(True, Unknown), True},
		{"bool not", Not(False), True},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %s (%04X), want %s (%04X)", tc.got, uint16(tc.got), tc.want, uint16(tc.want))
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		name string
		got  Value
		want Value
	}{
		{"zero is zero", IsZero(Zero), True},
		{"known one bit", IsZero(NewValue(0x01, 0x01)), False},
		{"all unknown", IsZero(Unknown), Unknown},
		{"known zero bits only", IsZero(NewValue(0xF0, 0)), Unknown},
		{"equal known", Equal(Known(7), Known(7)), True},
		{"differ known", Equal(Known(7), Known(6)), False},
		{"differ in common bit", Equal(NewValue(0x01, 0x01), NewValue(0x01, 0x00)), False},
		{"overlap agrees", Equal(NewValue(0x0F, 0x07), Known(0x07)), Unknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("got %s, want %s", tc.got, tc.want)
			}
		})
	}
}

func TestBitRoundTrip(t *testing.T) {
	v := NewValue(0x0F, 0x05)
	for n := uint(0); n < 8; n++ {
		for _, b := range []Value{True, False, Unknown} {
			got := v.SetBit(n, b).Bit(n)
			if got != b {
				t.Errorf("SetBit(%d, %s).Bit = %s", n, b, got)
			}
		}
	}
}

func TestAddWord(t *testing.T) {
	lo, hi := AddWord(Known(0xFF), Known(0x00), 1)
	if lo != Zero || hi != Known(0x01) {
		t.Errorf("00FF+1 = %s:%s, want 00000001:00000000", hi, lo)
	}
	lo, hi = AddWord(Zero, Zero, -1)
	if lo != Known(0xFF) || hi != Known(0xFF) {
		t.Errorf("0000-1 = %s:%s, want FFFF", hi, lo)
	}
	// unknown low byte: the carry into the high byte is unknown too
	lo, hi = AddWord(Unknown, Zero, 1)
	if lo != Unknown {
		t.Errorf("low byte = %s, want unknown", lo)
	}
	if hi.Bit(0) != Unknown || hi.Bit(7) != False {
		t.Errorf("high byte = %s, want 0000000.", hi)
	}
}
