package cpu

// Value is a three-valued abstraction of one byte: each bit is 0, 1 or unknown.
// The high byte is the known mask and the low byte the bit values. In canonical
// form every value bit whose mask bit is clear is also clear; all constructors
// and operations below return canonical values, so Values compare with ==.
type Value uint16

// Well-known values. True and False are single-bit values (bit 0 known).
const (
	Zero    Value = 0xFF00
	Unknown Value = 0x0000
	True    Value = 0x0101
	False   Value = 0x0100
)

// Known returns the fully known value b.
func Known(b uint8) Value {
	return 0xFF00 | Value(b)
}

// NewValue builds a canonical value from a known mask and bit values.
func NewValue(mask, bits uint8) Value {
	return Value(mask)<<8 | Value(bits&mask)
}

// Bool returns True or False.
func Bool(b bool) Value {
	if b {
		return True
	}
	return False
}

// Mask returns the known-bit mask.
func (v Value) Mask() uint8 { return uint8(v >> 8) }

// Bits returns the known bit values (unknown positions read as 0).
func (v Value) Bits() uint8 { return uint8(v) & uint8(v>>8) }

// Canon forces every unknown bit's value to 0.
func (v Value) Canon() Value {
	return NewValue(v.Mask(), uint8(v))
}

// IsKnown reports whether all eight bits are known.
func (v Value) IsKnown() bool { return v.Mask() == 0xFF }

// Ceil returns the largest concretization: every unknown bit set to 1.
func (v Value) Ceil() uint8 { return v.Bits() | ^v.Mask() }

// Floor returns the smallest concretization: every unknown bit set to 0.
func (v Value) Floor() uint8 { return v.Bits() }

// Covers reports whether the concrete byte c is one of v's concretizations.
func (v Value) Covers(c uint8) bool {
	return c&v.Mask() == v.Bits()
}

// Bit extracts bit n as a single-bit value (True, False or Unknown).
func (v Value) Bit(n uint) Value {
	return (v >> n) & 0x0101
}

// SetBit replaces bit n with the single-bit value b.
func (v Value) SetBit(n uint, b Value) Value {
	return (v &^ (0x0101 << n)) | ((b & 0x0101) << n)
}

// String renders the value most significant bit first, '.' for unknown bits.
func (v Value) String() string {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		switch v.Bit(uint(7 - i)) {
		case True:
			buf[i] = '1'
		case False:
			buf[i] = '0'
		default:
			buf[i] = '.'
		}
	}
	return string(buf[:])
}

// Merge is the lattice join: a bit stays known only if it is known and equal in both.
func Merge(a, b Value) Value {
	mask := a.Mask() & b.Mask() &^ (a.Bits() ^ b.Bits())
	return NewValue(mask, a.Bits())
}

// mergeBytes joins two concrete bytes and keeps only the bits in mask.
func mergeBytes(x, y, mask uint8) Value {
	return NewValue(mask&^(x^y), x)
}

// Add returns a+b+carry using the ceiling/floor technique. The carry into bit k is
// monotone in the low k bits of every operand, so a bit known in both operands whose
// value agrees between the all-ones and all-zeros concretizations holds for all of them.
func Add(a, b, carry Value) Value {
	hi := a.Ceil() + b.Ceil() + carry.Ceil()&1
	lo := a.Floor() + b.Floor() + carry.Floor()&1
	return mergeBytes(hi, lo, a.Mask()&b.Mask())
}

// Sub returns a-b-borrow. The borrow into bit k grows with b and shrinks with a,
// so the two extremes are ceil(a)-floor(b) and floor(a)-ceil(b).
func Sub(a, b, borrow Value) Value {
	hi := a.Ceil() - b.Floor() - borrow.Floor()&1
	lo := a.Floor() - b.Ceil() - borrow.Ceil()&1
	return mergeBytes(hi, lo, a.Mask()&b.Mask())
}

// Inc returns v+1.
func Inc(v Value) Value {
	return mergeBytes(v.Ceil()+1, v.Floor()+1, v.Mask())
}

// Dec returns v-1.
func Dec(v Value) Value {
	return mergeBytes(v.Ceil()-1, v.Floor()-1, v.Mask())
}

// And is bitwise AND: a result bit is known 0 if either side is known 0.
func And(a, b Value) Value {
	ones := a.Bits() & b.Bits()
	zeros := (a.Mask() &^ a.Bits()) | (b.Mask() &^ b.Bits())
	return NewValue(ones|zeros, ones)
}

// Or is bitwise OR: a result bit is known 1 if either side is known 1.
func Or(a, b Value) Value {
	ones := a.Bits() | b.Bits()
	zeros := (a.Mask() &^ a.Bits()) & (b.Mask() &^ b.Bits())
	return NewValue(ones|zeros, ones)
}

// Xor is bitwise XOR, known where both sides are known.
func Xor(a, b Value) Value {
	return NewValue(a.Mask()&b.Mask(), a.Bits()^b.Bits())
}

// Not flips every known bit.
func Not(v Value) Value {
	return NewValue(v.Mask(), ^v.Bits())
}

// Swap exchanges the two nibbles.
func Swap(v Value) Value {
	m, b := v.Mask(), v.Bits()
	return NewValue(m<<4|m>>4, b<<4|b>>4)
}

// ShiftLeft shifts v left by one, moving the single-bit value in into bit 0.
func ShiftLeft(v, in Value) Value {
	return NewValue(v.Mask()<<1, v.Bits()<<1).SetBit(0, in)
}

// ShiftRight shifts v right by one, moving the single-bit value in into bit 7.
func ShiftRight(v, in Value) Value {
	return NewValue(v.Mask()>>1, v.Bits()>>1).SetBit(7, in)
}

// IsZero answers "is v zero?": True if every bit is known 0, False if any bit is
// known 1, Unknown otherwise.
func IsZero(v Value) Value {
	switch {
	case v == Zero:
		return True
	case v.Bits() != 0:
		return False
	}
	return Unknown
}

// Equal answers "is a == b?": True if both are fully known and equal, False if some
// bit is known in both and differs, Unknown otherwise.
func Equal(a, b Value) Value {
	common := a.Mask() & b.Mask()
	switch {
	case (a.Bits()^b.Bits())&common != 0:
		return False
	case a.IsKnown() && b.IsKnown():
		return True
	}
	return Unknown
}

// AddWord adds the constant k to the 16-bit pair hi:lo.
func AddWord(lo, hi Value, k int) (Value, Value) {
	ceil := int(uint16(hi.Ceil())<<8|uint16(lo.Ceil())) + k
	floor := int(uint16(hi.Floor())<<8|uint16(lo.Floor())) + k
	return mergeBytes(uint8(ceil), uint8(floor), lo.Mask()),
		mergeBytes(uint8(ceil>>8), uint8(floor>>8), hi.Mask())
}
