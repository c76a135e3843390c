package inst

import (
	"strconv"
	"strings"
)

// Info holds static metadata for an instruction opcode.
type Info struct {
	Mnemonic string // Assembly mnemonic (e.g., "ADD")
	Form     Form   // Operand layout
	Size     int    // Encoded size in bytes (2 or 4)
}

// Catalog maps each OpCode to its Info.
var Catalog [OpCodeCount]Info

// byMnemonic indexes the catalog for the assembler. Mnemonics shared by several
// addressing modes (LD, ST, LPM, ELPM) map to their plain form.
var byMnemonic map[string]OpCode

// AllOps returns all valid OpCode values (for enumeration).
func AllOps() []OpCode {
	ops := make([]OpCode, 0, OpCodeCount)
	for i := OpCode(0); i < OpCodeCount; i++ {
		ops = append(ops, i)
	}
	return ops
}

// Lookup returns the opcode for a mnemonic, case-insensitively.
func Lookup(mnemonic string) (OpCode, bool) {
	op, ok := byMnemonic[strings.ToUpper(mnemonic)]
	return op, ok
}

// ByteSize returns the encoded size of an instruction in bytes.
func ByteSize(op OpCode) int {
	return Catalog[op].Size
}

// SeqByteSize returns total byte size for a sequence of instructions.
func SeqByteSize(seq []Instruction) int {
	n := 0
	for i := range seq {
		n += ByteSize(seq[i].Op)
	}
	return n
}

// RelativeTarget returns the byte address reached by a relative branch of k words at pc.
func RelativeTarget(pc uint16, k int) uint16 {
	return uint16(int(pc) + 2 + 2*k)
}

// AbsoluteTarget returns the byte address of an absolute jump or call to word address k.
func AbsoluteTarget(k int) uint16 {
	return uint16(2 * k)
}

// Disassemble returns assembly text for an instruction.
// Relative branch offsets are printed in bytes (".+4"), absolute targets as byte addresses.
func Disassemble(in Instruction) string {
	info := &Catalog[in.Op]
	buf := make([]byte, 0, 24)
	buf = append(buf, info.Mnemonic...)

	switch info.Form {
	case FormNone:
		return string(buf)
	case FormRdRr:
		buf = appendReg(append(buf, ' '), in.Rd)
		buf = appendReg(append(buf, ", "...), in.Rr)
	case FormRd:
		buf = appendReg(append(buf, ' '), in.Rd)
	case FormRdK, FormWordK:
		buf = appendReg(append(buf, ' '), in.Rd)
		buf = appendHex8(append(buf, ", "...), uint8(in.K))
	case FormPair:
		buf = appendReg(append(buf, ' '), in.Rd)
		buf = appendReg(append(buf, ", "...), in.Rr)
	case FormRel:
		buf = appendOffset(append(buf, ' '), in.K)
	case FormAbs:
		buf = appendHex16(append(buf, ' '), AbsoluteTarget(in.K))
	case FormFlagRel:
		buf = strconv.AppendInt(append(buf, ' '), int64(in.Bit), 10)
		buf = appendOffset(append(buf, ", "...), in.K)
	case FormRdIO:
		buf = appendReg(append(buf, ' '), in.Rd)
		buf = appendHex8(append(buf, ", "...), uint8(in.K))
	case FormIORr:
		buf = appendHex8(append(buf, ' '), uint8(in.K))
		buf = appendReg(append(buf, ", "...), in.Rr)
	case FormIOBit:
		buf = appendHex8(append(buf, ' '), uint8(in.K))
		buf = strconv.AppendInt(append(buf, ", "...), int64(in.Bit), 10)
	case FormRegBit:
		buf = appendReg(append(buf, ' '), in.Rr)
		buf = strconv.AppendInt(append(buf, ", "...), int64(in.Bit), 10)
	case FormFlag:
		buf = strconv.AppendInt(append(buf, ' '), int64(in.Bit), 10)
	case FormLoad:
		buf = appendReg(append(buf, ' '), in.Rd)
		buf = appendPointer(append(buf, ", "...), in.Op, in.Rr)
	case FormLoadDisp:
		buf = appendReg(append(buf, ' '), in.Rd)
		buf = append(buf, ", "...)
		buf = append(buf, pointerName(in.Rr)...)
		buf = strconv.AppendInt(append(buf, '+'), int64(in.K), 10)
	case FormStore:
		buf = appendPointer(append(buf, ' '), in.Op, in.Rd)
		buf = appendReg(append(buf, ", "...), in.Rr)
	case FormStoreDisp:
		buf = append(buf, ' ')
		buf = append(buf, pointerName(in.Rd)...)
		buf = strconv.AppendInt(append(buf, '+'), int64(in.K), 10)
		buf = appendReg(append(buf, ", "...), in.Rr)
	case FormRdData:
		buf = appendReg(append(buf, ' '), in.Rd)
		buf = appendHex16(append(buf, ", "...), uint16(in.K))
	case FormDataRr:
		buf = appendHex16(append(buf, ' '), uint16(in.K))
		buf = appendReg(append(buf, ", "...), in.Rr)
	case FormRdZ:
		buf = appendReg(append(buf, ' '), in.Rd)
		if in.Op == LPMPI || in.Op == ELPMPI {
			buf = append(buf, ", Z+"...)
		} else {
			buf = append(buf, ", Z"...)
		}
	}
	return string(buf)
}

// DisassembleSeq joins a sequence with " : ".
func DisassembleSeq(seq []Instruction) string {
	var sb strings.Builder
	for i, in := range seq {
		if i > 0 {
			sb.WriteString(" : ")
		}
		sb.WriteString(Disassemble(in))
	}
	return sb.String()
}

func appendReg(buf []byte, r uint8) []byte {
	buf = append(buf, 'r')
	return strconv.AppendInt(buf, int64(r), 10)
}

func pointerName(r uint8) string {
	switch r {
	case RegX:
		return "X"
	case RegY:
		return "Y"
	case RegZ:
		return "Z"
	}
	return "?"
}

func appendPointer(buf []byte, op OpCode, r uint8) []byte {
	switch op {
	case LDPD, STPD:
		buf = append(buf, '-')
		return append(buf, pointerName(r)...)
	case LDPI, STPI:
		buf = append(buf, pointerName(r)...)
		return append(buf, '+')
	}
	return append(buf, pointerName(r)...)
}

func appendOffset(buf []byte, k int) []byte {
	buf = append(buf, '.')
	if k >= 0 {
		buf = append(buf, '+')
	}
	return strconv.AppendInt(buf, int64(2*k), 10)
}

func appendHex8(buf []byte, v uint8) []byte {
	const hex = "0123456789ABCDEF"
	return append(buf, '0', 'x', hex[v>>4], hex[v&0x0F])
}

func appendHex16(buf []byte, v uint16) []byte {
	const hex = "0123456789ABCDEF"
	return append(buf, '0', 'x', hex[v>>12], hex[(v>>8)&0x0F], hex[(v>>4)&0x0F], hex[v&0x0F])
}

func init() {
	// Two-register ALU and multiply: 2 bytes
	for _, e := range []struct {
		op       OpCode
		mnemonic string
	}{
		{ADD, "ADD"}, {ADC, "ADC"}, {SUB, "SUB"}, {SBC, "SBC"},
		{AND, "AND"}, {OR, "OR"}, {EOR, "EOR"}, {MOV, "MOV"},
		{CP, "CP"}, {CPC, "CPC"}, {CPSE, "CPSE"},
		{MUL, "MUL"}, {MULS, "MULS"}, {MULSU, "MULSU"},
		{FMUL, "FMUL"}, {FMULS, "FMULS"}, {FMULSU, "FMULSU"},
	} {
		Catalog[e.op] = Info{Mnemonic: e.mnemonic, Form: FormRdRr, Size: 2}
	}

	// Single register
	for _, e := range []struct {
		op       OpCode
		mnemonic string
	}{
		{COM, "COM"}, {NEG, "NEG"}, {INC, "INC"}, {DEC, "DEC"},
		{TST, "TST"}, {CLR, "CLR"}, {SER, "SER"},
		{LSL, "LSL"}, {LSR, "LSR"}, {ROL, "ROL"}, {ROR, "ROR"},
		{ASR, "ASR"}, {SWAP, "SWAP"}, {PUSH, "PUSH"}, {POP, "POP"},
	} {
		Catalog[e.op] = Info{Mnemonic: e.mnemonic, Form: FormRd, Size: 2}
	}

	// Register with 8-bit immediate
	for _, e := range []struct {
		op       OpCode
		mnemonic string
	}{
		{SUBI, "SUBI"}, {SBCI, "SBCI"}, {ANDI, "ANDI"}, {ORI, "ORI"},
		{SBR, "SBR"}, {CBR, "CBR"}, {CPI, "CPI"}, {LDI, "LDI"},
	} {
		Catalog[e.op] = Info{Mnemonic: e.mnemonic, Form: FormRdK, Size: 2}
	}
	Catalog[ADIW] = Info{"ADIW", FormWordK, 2}
	Catalog[SBIW] = Info{"SBIW", FormWordK, 2}
	Catalog[MOVW] = Info{"MOVW", FormPair, 2}

	// Control transfer
	Catalog[RJMP] = Info{"RJMP", FormRel, 2}
	Catalog[RCALL] = Info{"RCALL", FormRel, 2}
	Catalog[JMP] = Info{"JMP", FormAbs, 4}
	Catalog[CALL] = Info{"CALL", FormAbs, 4}
	Catalog[IJMP] = Info{"IJMP", FormNone, 2}
	Catalog[EIJMP] = Info{"EIJMP", FormNone, 2}
	Catalog[ICALL] = Info{"ICALL", FormNone, 2}
	Catalog[EICALL] = Info{"EICALL", FormNone, 2}
	Catalog[RET] = Info{"RET", FormNone, 2}
	Catalog[RETI] = Info{"RETI", FormNone, 2}
	Catalog[BRBS] = Info{"BRBS", FormFlagRel, 2}
	Catalog[BRBC] = Info{"BRBC", FormFlagRel, 2}

	// Conditional branches on a single SREG flag
	for _, e := range []struct {
		op       OpCode
		mnemonic string
	}{
		{BREQ, "BREQ"}, {BRNE, "BRNE"}, {BRCS, "BRCS"}, {BRCC, "BRCC"},
		{BRSH, "BRSH"}, {BRLO, "BRLO"}, {BRMI, "BRMI"}, {BRPL, "BRPL"},
		{BRGE, "BRGE"}, {BRLT, "BRLT"}, {BRHS, "BRHS"}, {BRHC, "BRHC"},
		{BRTS, "BRTS"}, {BRTC, "BRTC"}, {BRVS, "BRVS"}, {BRVC, "BRVC"},
		{BRIE, "BRIE"}, {BRID, "BRID"},
	} {
		Catalog[e.op] = Info{Mnemonic: e.mnemonic, Form: FormRel, Size: 2}
	}

	// Skips
	Catalog[SBRC] = Info{"SBRC", FormRegBit, 2}
	Catalog[SBRS] = Info{"SBRS", FormRegBit, 2}
	Catalog[SBIC] = Info{"SBIC", FormIOBit, 2}
	Catalog[SBIS] = Info{"SBIS", FormIOBit, 2}

	// Memory
	Catalog[LD] = Info{"LD", FormLoad, 2}
	Catalog[LDPI] = Info{"LD", FormLoad, 2}
	Catalog[LDPD] = Info{"LD", FormLoad, 2}
	Catalog[LDD] = Info{"LDD", FormLoadDisp, 2}
	Catalog[LDS] = Info{"LDS", FormRdData, 4}
	Catalog[ST] = Info{"ST", FormStore, 2}
	Catalog[STPI] = Info{"ST", FormStore, 2}
	Catalog[STPD] = Info{"ST", FormStore, 2}
	Catalog[STD] = Info{"STD", FormStoreDisp, 2}
	Catalog[STS] = Info{"STS", FormDataRr, 4}
	Catalog[LPM] = Info{"LPM", FormNone, 2}
	Catalog[LPMD] = Info{"LPM", FormRdZ, 2}
	Catalog[LPMPI] = Info{"LPM", FormRdZ, 2}
	Catalog[ELPM] = Info{"ELPM", FormNone, 2}
	Catalog[ELPMD] = Info{"ELPM", FormRdZ, 2}
	Catalog[ELPMPI] = Info{"ELPM", FormRdZ, 2}
	Catalog[SPM] = Info{"SPM", FormNone, 2}
	Catalog[IN] = Info{"IN", FormRdIO, 2}
	Catalog[OUT] = Info{"OUT", FormIORr, 2}

	// Bit operations
	Catalog[SBI] = Info{"SBI", FormIOBit, 2}
	Catalog[CBI] = Info{"CBI", FormIOBit, 2}
	Catalog[BSET] = Info{"BSET", FormFlag, 2}
	Catalog[BCLR] = Info{"BCLR", FormFlag, 2}
	Catalog[BST] = Info{"BST", FormRegBit, 2}
	Catalog[BLD] = Info{"BLD", FormRegBit, 2}

	// Flag set/clear aliases: SEx/CLx pairs in SREG bit order C Z N V S H T I
	flagOps := []struct {
		set, clr OpCode
		s, c     string
	}{
		{SEC, CLC, "SEC", "CLC"}, {SEZ, CLZ, "SEZ", "CLZ"},
		{SEN, CLN, "SEN", "CLN"}, {SEV, CLV, "SEV", "CLV"},
		{SES, CLS, "SES", "CLS"}, {SEH, CLH, "SEH", "CLH"},
		{SET, CLT, "SET", "CLT"}, {SEI, CLI, "SEI", "CLI"},
	}
	for _, f := range flagOps {
		Catalog[f.set] = Info{Mnemonic: f.s, Form: FormNone, Size: 2}
		Catalog[f.clr] = Info{Mnemonic: f.c, Form: FormNone, Size: 2}
	}

	Catalog[BREAK] = Info{"BREAK", FormNone, 2}
	Catalog[NOP] = Info{"NOP", FormNone, 2}
	Catalog[SLEEP] = Info{"SLEEP", FormNone, 2}
	Catalog[WDR] = Info{"WDR", FormNone, 2}

	byMnemonic = make(map[string]OpCode, OpCodeCount)
	for op := OpCode(0); op < OpCodeCount; op++ {
		if _, dup := byMnemonic[Catalog[op].Mnemonic]; !dup {
			byMnemonic[Catalog[op].Mnemonic] = op
		}
	}
}

// FlagBit returns the SREG bit a SEx/CLx alias operates on, and whether it sets it.
func FlagBit(op OpCode) (bit uint8, set bool, ok bool) {
	switch op {
	case SEC, CLC:
		return 0, op == SEC, true
	case SEZ, CLZ:
		return 1, op == SEZ, true
	case SEN, CLN:
		return 2, op == SEN, true
	case SEV, CLV:
		return 3, op == SEV, true
	case SES, CLS:
		return 4, op == SES, true
	case SEH, CLH:
		return 5, op == SEH, true
	case SET, CLT:
		return 6, op == SET, true
	case SEI, CLI:
		return 7, op == SEI, true
	}
	return 0, false, false
}
