package inst

// OpCode is a compact identifier for an AVR instruction (not the raw 16-bit encoding).
// Assembler aliases that the datasheet lists separately (CLR, TST, LSL, ...) get their
// own opcode so disassembly round-trips the source text.
type OpCode uint16

// Instruction is a decoded AVR instruction. Operand meaning depends on the opcode's Form:
//
//	Rd   destination register, or the pointer base (26, 28, 30) for ST/STD
//	Rr   source register, or the pointer base for LD/LDD/LPM/ELPM
//	K    immediate, IO address, data address, displacement, or branch offset/target in words
//	Bit  bit number for the bit-addressed forms
type Instruction struct {
	Op  OpCode
	Rd  uint8
	Rr  uint8
	K   int
	Bit uint8
}

// Pointer register bases.
const (
	RegX uint8 = 26
	RegY uint8 = 28
	RegZ uint8 = 30
)

// Form describes how an opcode's operands are written.
type Form uint8

const (
	FormNone     Form = iota // RET
	FormRdRr                 // ADD Rd, Rr
	FormRd                   // INC Rd
	FormRdK                  // LDI Rd, K
	FormWordK                // ADIW Rd, K (Rd is the low register of a pair)
	FormRel                  // RJMP k (signed word offset)
	FormAbs                  // JMP k (word address)
	FormFlagRel              // BRBS s, k
	FormRdIO                 // IN Rd, A
	FormIORr                 // OUT A, Rr
	FormIOBit                // SBI A, b
	FormRegBit               // SBRC Rr, b
	FormFlag                 // BSET s
	FormLoad                 // LD Rd, X
	FormLoadDisp             // LDD Rd, Y+q
	FormStore                // ST X, Rr
	FormStoreDisp            // STD Y+q, Rr
	FormRdData               // LDS Rd, k
	FormDataRr               // STS k, Rr
	FormRdZ                  // LPM Rd, Z
	FormPair                 // MOVW Rd, Rr (register pairs)
)

// Opcodes, grouped the way the AVR instruction set manual groups them.
const (
	// === Arithmetic and logic ===
	ADD OpCode = iota
	ADC
	ADIW
	SUB
	SUBI
	SBC
	SBCI
	SBIW
	AND
	ANDI
	OR
	ORI
	EOR
	COM
	NEG
	SBR
	CBR
	INC
	DEC
	TST
	CLR
	SER
	MUL
	MULS
	MULSU
	FMUL
	FMULS
	FMULSU

	// === Branches ===
	RJMP
	IJMP
	EIJMP
	JMP
	RCALL
	ICALL
	EICALL
	CALL
	RET
	RETI
	CPSE
	CP
	CPC
	CPI
	SBRC
	SBRS
	SBIC
	SBIS
	BRBS
	BRBC
	BREQ
	BRNE
	BRCS
	BRCC
	BRSH
	BRLO
	BRMI
	BRPL
	BRGE
	BRLT
	BRHS
	BRHC
	BRTS
	BRTC
	BRVS
	BRVC
	BRIE
	BRID

	// === Data transfer ===
	MOV
	MOVW
	LDI
	LD
	LDPI // LD Rd, X+
	LDPD // LD Rd, -X
	LDD
	LDS
	ST
	STPI // ST X+, Rr
	STPD // ST -X, Rr
	STD
	STS
	LPM   // LPM (r0 <- (Z))
	LPMD  // LPM Rd, Z
	LPMPI // LPM Rd, Z+
	ELPM
	ELPMD
	ELPMPI
	SPM
	IN
	OUT
	PUSH
	POP

	// === Bit and bit-test ===
	SBI
	CBI
	LSL
	LSR
	ROL
	ROR
	ASR
	SWAP
	BSET
	BCLR
	BST
	BLD
	SEC
	CLC
	SEN
	CLN
	SEZ
	CLZ
	SEI
	CLI
	SES
	CLS
	SEV
	CLV
	SET
	CLT
	SEH
	CLH

	// === MCU control ===
	BREAK
	NOP
	SLEEP
	WDR

	OpCodeCount
)

// IsBranch reports whether the opcode may transfer control somewhere other than the next instruction.
func IsBranch(op OpCode) bool {
	return op >= RJMP && op <= BRID
}

// IsSkip reports whether the opcode conditionally skips the following instruction.
func IsSkip(op OpCode) bool {
	switch op {
	case CPSE, SBRC, SBRS, SBIC, SBIS:
		return true
	}
	return false
}
