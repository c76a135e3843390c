package cpu

// SREG bit positions.
const (
	FlagC uint = 0 // Carry
	FlagZ uint = 1 // Zero
	FlagN uint = 2 // Negative
	FlagV uint = 3 // Two's complement overflow
	FlagS uint = 4 // Sign, N xor V
	FlagH uint = 5 // Half carry
	FlagT uint = 6 // Bit copy storage
	FlagI uint = 7 // Global interrupt enable
)

// FlagNames indexes SREG bits by position.
var FlagNames = [8]string{"C", "Z", "N", "V", "S", "H", "T", "I"}

// IO addresses (IN/OUT space) of the registers the analysis cares about.
const (
	IOTIMSK = 0x37
	IOEIMSK = 0x39
	IOSREG  = 0x3F
)

// Data-space layout: the register file and IO space are memory mapped below SRAM.
const (
	IOBase  = 0x20 // data address of IO register 0
	IOCount = 0x40
)

// DefaultVectorSize is the distance in bytes between interrupt vectors when the
// table uses 4-byte JMP entries.
const DefaultVectorSize = 4

// Interrupts returns the interrupt numbers that may fire in s, in the order the
// analysis visits them: external interrupts from EIMSK first (bit n is interrupt
// n+2), then timer interrupts from TIMSK (bit n is interrupt 17-n). Nothing fires
// while the I flag is known clear.
func Interrupts(s *State) []int {
	if s.Flag(FlagI) == False {
		return nil
	}
	var nums []int
	for n := uint(0); n < 8; n++ {
		if s.EIMSK.Bit(n) != False {
			nums = append(nums, int(n)+2)
		}
	}
	for n := uint(0); n < 8; n++ {
		if s.TIMSK.Bit(n) != False {
			nums = append(nums, 17-int(n))
		}
	}
	return nums
}

// VectorAddress returns the byte address of interrupt num (1 is reset).
func VectorAddress(num, vectorSize int) uint16 {
	return uint16((num - 1) * vectorSize)
}
