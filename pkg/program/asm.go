package program

import (
	"fmt"
	"strings"

	"github.com/oisee/avrstack/pkg/inst"
)

// pending is one source instruction between the two assembler passes.
type pending struct {
	line int
	pc   uint16
	op   inst.OpCode
	ops  []string
}

// Assemble parses AVR assembly text into a Program.
//
// One instruction per line, optionally preceded by "label:" definitions.
// Comments start with ';' or "//". ".org ADDR" moves the location counter to a
// byte address. Branch, jump and call operands may be labels, byte addresses
// or ".+N"/".-N" offsets relative to the next instruction.
func Assemble(text string) (*Program, error) {
	p := New()
	var todo []pending
	pc := 0

	// Pass 1: labels, addresses and opcode selection.
	for i, raw := range strings.Split(text, "\n") {
		n := i + 1
		s := stripComment(raw)
		for {
			s = strings.TrimSpace(s)
			colon := strings.IndexByte(s, ':')
			if colon <= 0 || !isIdent(s[:colon]) {
				break
			}
			name := s[:colon]
			if pc >= flashSize {
				return nil, fmt.Errorf("line %d: label %q past the end of flash", n, name)
			}
			if _, dup := p.labels[name]; dup {
				return nil, fmt.Errorf("line %d: duplicate label %q", n, name)
			}
			p.labels[name] = uint16(pc)
			s = s[colon+1:]
		}
		if s == "" {
			continue
		}

		mnemonic, rest := splitMnemonic(s)
		if strings.HasPrefix(mnemonic, ".") {
			if !strings.EqualFold(mnemonic, ".org") {
				return nil, fmt.Errorf("line %d: unknown directive %s", n, mnemonic)
			}
			v, err := parseNumber(rest)
			if err != nil {
				return nil, fmt.Errorf("line %d: .org: %w", n, err)
			}
			if v < 0 || v > 0xFFFF || v&1 != 0 {
				return nil, fmt.Errorf("line %d: .org %s: not an even flash address", n, rest)
			}
			pc = v
			continue
		}

		ops := splitOperands(rest)
		op, err := selectOpcode(mnemonic, ops)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		todo = append(todo, pending{line: n, pc: uint16(pc), op: op, ops: ops})
		pc += inst.ByteSize(op)
		if pc > flashSize {
			return nil, fmt.Errorf("line %d: program exceeds 64K", n)
		}
	}

	// Pass 2: operands, now that every label is known.
	for _, t := range todo {
		in, err := p.encode(t)
		if err != nil {
			return nil, fmt.Errorf("line %d: %s: %w", t.line, inst.Catalog[t.op].Mnemonic, err)
		}
		if err := p.Place(t.pc, in); err != nil {
			return nil, fmt.Errorf("line %d: %w", t.line, err)
		}
	}
	return p, nil
}

func stripComment(s string) string {
	if i := strings.IndexByte(s, ';'); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "//"); i >= 0 {
		s = s[:i]
	}
	return s
}

func isIdent(s string) bool {
	for i, c := range s {
		switch {
		case c == '_' || c == '.' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return s != ""
}

func splitMnemonic(s string) (string, string) {
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		return s[:i], strings.TrimSpace(s[i+1:])
	}
	return s, ""
}

func splitOperands(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Pointer addressing modes.
type ptrMode uint8

const (
	ptrPlain ptrMode = iota
	ptrPostInc
	ptrPreDec
	ptrDisp
)

// parsePointer parses X, X+, -X, Y+q and the Y/Z equivalents.
func parsePointer(s string) (base uint8, mode ptrMode, disp int, err error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if strings.HasPrefix(s, "-") {
		mode = ptrPreDec
		s = s[1:]
	}
	if s == "" {
		return 0, 0, 0, fmt.Errorf("missing pointer register")
	}
	switch s[0] {
	case 'X':
		base = inst.RegX
	case 'Y':
		base = inst.RegY
	case 'Z':
		base = inst.RegZ
	default:
		return 0, 0, 0, fmt.Errorf("%q is not a pointer register", s)
	}
	rest := s[1:]
	switch {
	case rest == "":
	case mode == ptrPreDec:
		return 0, 0, 0, fmt.Errorf("bad pointer operand -%s", s)
	case rest == "+":
		mode = ptrPostInc
	case strings.HasPrefix(rest, "+"):
		if base == inst.RegX {
			return 0, 0, 0, fmt.Errorf("X has no displacement form")
		}
		q, err := parseNumber(rest[1:])
		if err != nil {
			return 0, 0, 0, err
		}
		if q < 0 || q > 63 {
			return 0, 0, 0, fmt.Errorf("displacement %d out of range 0..63", q)
		}
		mode, disp = ptrDisp, q
	default:
		return 0, 0, 0, fmt.Errorf("bad pointer operand %s", s)
	}
	return base, mode, disp, nil
}

// selectOpcode picks the addressing-mode variant of LD, ST, LPM and ELPM from
// the operand syntax. Sizes do not depend on label values, so pass 1 can lay out
// addresses before any label is resolved.
func selectOpcode(mnemonic string, ops []string) (inst.OpCode, error) {
	op, ok := inst.Lookup(mnemonic)
	if !ok {
		return 0, fmt.Errorf("unknown mnemonic %q", mnemonic)
	}
	switch op {
	case inst.LD, inst.LDD, inst.ST, inst.STD:
		if len(ops) != 2 {
			return 0, fmt.Errorf("%s needs 2 operands", mnemonic)
		}
		ptr := ops[1]
		if op == inst.ST || op == inst.STD {
			ptr = ops[0]
		}
		_, mode, _, err := parsePointer(ptr)
		if err != nil {
			return 0, err
		}
		load := op == inst.LD || op == inst.LDD
		switch mode {
		case ptrPlain:
			if load {
				return inst.LD, nil
			}
			return inst.ST, nil
		case ptrPostInc:
			if load {
				return inst.LDPI, nil
			}
			return inst.STPI, nil
		case ptrPreDec:
			if load {
				return inst.LDPD, nil
			}
			return inst.STPD, nil
		default:
			if load {
				return inst.LDD, nil
			}
			return inst.STD, nil
		}
	case inst.LPM, inst.ELPM:
		switch len(ops) {
		case 0:
			return op, nil
		case 2:
			post := strings.EqualFold(ops[1], "Z+")
			if !post && !strings.EqualFold(ops[1], "Z") {
				return 0, fmt.Errorf("%s reads through Z, got %q", mnemonic, ops[1])
			}
			switch {
			case op == inst.LPM && post:
				return inst.LPMPI, nil
			case op == inst.LPM:
				return inst.LPMD, nil
			case post:
				return inst.ELPMPI, nil
			default:
				return inst.ELPMD, nil
			}
		}
		return 0, fmt.Errorf("%s takes 0 or 2 operands", mnemonic)
	}
	return op, nil
}

var regAliases = map[string]uint8{
	"XL": 26, "XH": 27, "YL": 28, "YH": 29, "ZL": 30, "ZH": 31,
}

func parseReg(s string) (uint8, error) {
	u := strings.ToUpper(strings.TrimSpace(s))
	if r, ok := regAliases[u]; ok {
		return r, nil
	}
	if len(u) < 2 || u[0] != 'R' {
		return 0, fmt.Errorf("%q is not a register", s)
	}
	n, err := parseNumber(u[1:])
	if err != nil || n < 0 || n > 31 || u[1] == '-' || u[1] == '+' {
		return 0, fmt.Errorf("%q is not a register", s)
	}
	return uint8(n), nil
}

// value resolves a label or a number.
func (p *Program) value(s string) (int, error) {
	if a, ok := p.labels[strings.TrimSpace(s)]; ok {
		return int(a), nil
	}
	v, err := parseNumber(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, strings.TrimSpace(s))
	}
	return v, nil
}

func (p *Program) ranged(s string, lo, hi int) (int, error) {
	v, err := p.value(s)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("operand %s out of range %d..%d", s, lo, hi)
	}
	return v, nil
}

// relative returns the word offset k of a relative transfer at pc.
// limit bounds k to [-limit, limit).
func (p *Program) relative(s string, pc uint16, limit int) (int, error) {
	s = strings.TrimSpace(s)
	var k int
	if strings.HasPrefix(s, ".") && len(s) > 1 && (s[1] == '+' || s[1] == '-') {
		off, err := parseNumber(s[1:])
		if err != nil {
			return 0, err
		}
		if off&1 != 0 {
			return 0, fmt.Errorf("odd branch offset %s", s)
		}
		k = off / 2
	} else {
		t, err := p.value(s)
		if err != nil {
			return 0, err
		}
		if t&1 != 0 {
			return 0, fmt.Errorf("%w: target %s", ErrMisaligned, s)
		}
		k = (t - int(pc) - 2) / 2
	}
	if k < -limit || k >= limit {
		return 0, fmt.Errorf("target %s out of range", s)
	}
	return k, nil
}

func (p *Program) encode(t pending) (inst.Instruction, error) {
	in := inst.Instruction{Op: t.op}
	info := &inst.Catalog[t.op]
	ops := t.ops
	want := func(n int) error {
		if len(ops) != n {
			return fmt.Errorf("want %d operands, got %d", n, len(ops))
		}
		return nil
	}
	var err error

	switch info.Form {
	case inst.FormNone:
		err = want(0)

	case inst.FormRdRr, inst.FormPair:
		if err = want(2); err != nil {
			break
		}
		if in.Rd, err = parseReg(ops[0]); err != nil {
			break
		}
		in.Rr, err = parseReg(ops[1])
		if err == nil && info.Form == inst.FormPair && (in.Rd|in.Rr)&1 != 0 {
			err = fmt.Errorf("register pairs must start at an even register")
		}
		if err == nil && t.op >= inst.MULS && t.op <= inst.FMULSU {
			err = upperRegs(in.Rd, in.Rr, t.op == inst.MULS)
		}

	case inst.FormRd:
		if err = want(1); err != nil {
			break
		}
		in.Rd, err = parseReg(ops[0])
		if err == nil && t.op == inst.SER && in.Rd < 16 {
			err = fmt.Errorf("SER needs r16..r31")
		}

	case inst.FormRdK:
		if err = want(2); err != nil {
			break
		}
		if in.Rd, err = parseReg(ops[0]); err != nil {
			break
		}
		if in.Rd < 16 {
			err = fmt.Errorf("immediate forms need r16..r31")
			break
		}
		var k int
		if k, err = p.ranged(ops[1], -128, 255); err == nil {
			in.K = k & 0xFF
		}

	case inst.FormWordK:
		if err = want(2); err != nil {
			break
		}
		if in.Rd, err = parseReg(ops[0]); err != nil {
			break
		}
		if in.Rd < 24 || in.Rd&1 != 0 {
			err = fmt.Errorf("word immediate forms need r24, r26, r28 or r30")
			break
		}
		in.K, err = p.ranged(ops[1], 0, 63)

	case inst.FormRel:
		if err = want(1); err != nil {
			break
		}
		limit := 64
		if t.op == inst.RJMP || t.op == inst.RCALL {
			limit = 2048
		}
		in.K, err = p.relative(ops[0], t.pc, limit)

	case inst.FormAbs:
		if err = want(1); err != nil {
			break
		}
		var a int
		if a, err = p.ranged(ops[0], 0, 0xFFFF); err != nil {
			break
		}
		if a&1 != 0 {
			err = fmt.Errorf("%w: target %s", ErrMisaligned, ops[0])
			break
		}
		in.K = a / 2

	case inst.FormFlagRel:
		if err = want(2); err != nil {
			break
		}
		var b int
		if b, err = p.ranged(ops[0], 0, 7); err != nil {
			break
		}
		in.Bit = uint8(b)
		in.K, err = p.relative(ops[1], t.pc, 64)

	case inst.FormRdIO:
		if err = want(2); err != nil {
			break
		}
		if in.Rd, err = parseReg(ops[0]); err != nil {
			break
		}
		in.K, err = p.ranged(ops[1], 0, 63)

	case inst.FormIORr:
		if err = want(2); err != nil {
			break
		}
		if in.K, err = p.ranged(ops[0], 0, 63); err != nil {
			break
		}
		in.Rr, err = parseReg(ops[1])

	case inst.FormIOBit:
		if err = want(2); err != nil {
			break
		}
		if in.K, err = p.ranged(ops[0], 0, 31); err != nil {
			break
		}
		in.Bit, err = p.bit(ops[1])

	case inst.FormRegBit:
		if err = want(2); err != nil {
			break
		}
		if in.Rr, err = parseReg(ops[0]); err != nil {
			break
		}
		in.Bit, err = p.bit(ops[1])

	case inst.FormFlag:
		if err = want(1); err != nil {
			break
		}
		in.Bit, err = p.bit(ops[0])

	case inst.FormLoad, inst.FormLoadDisp:
		if err = want(2); err != nil {
			break
		}
		if in.Rd, err = parseReg(ops[0]); err != nil {
			break
		}
		in.Rr, _, in.K, err = parsePointer(ops[1])

	case inst.FormStore, inst.FormStoreDisp:
		if err = want(2); err != nil {
			break
		}
		if in.Rd, _, in.K, err = parsePointer(ops[0]); err != nil {
			break
		}
		in.Rr, err = parseReg(ops[1])

	case inst.FormRdData:
		if err = want(2); err != nil {
			break
		}
		if in.Rd, err = parseReg(ops[0]); err != nil {
			break
		}
		in.K, err = p.ranged(ops[1], 0, 0xFFFF)

	case inst.FormDataRr:
		if err = want(2); err != nil {
			break
		}
		if in.K, err = p.ranged(ops[0], 0, 0xFFFF); err != nil {
			break
		}
		in.Rr, err = parseReg(ops[1])

	case inst.FormRdZ:
		if err = want(2); err != nil {
			break
		}
		in.Rd, err = parseReg(ops[0])
		in.Rr = inst.RegZ

	default:
		err = fmt.Errorf("no operand encoder for form %d", info.Form)
	}
	return in, err
}

func (p *Program) bit(s string) (uint8, error) {
	b, err := p.ranged(s, 0, 7)
	return uint8(b), err
}

// upperRegs checks the register restrictions of the signed multiplies:
// MULS takes r16..r31, the others r16..r23.
func upperRegs(rd, rr uint8, wide bool) error {
	hi := uint8(23)
	if wide {
		hi = 31
	}
	if rd < 16 || rd > hi || rr < 16 || rr > hi {
		return fmt.Errorf("operands must be in r16..r%d", hi)
	}
	return nil
}
