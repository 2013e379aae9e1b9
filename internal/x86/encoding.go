// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"fmt"
	"strconv"
	"strings"
)

// Encoding includes the textual description of
// an x86 instruction's encoding, as described
// in the Intel manuals, plus a structured
// representation of the same information.
type Encoding struct {
	// The textual representation.
	Syntax string

	// Legacy prefixes.
	PrefixOpcodes     []byte   // Any opcodes that must prefix the instruction (such as fwait).
	NoVEXPrefixes     bool     // Whether non-mandatory prefixes 66, F2, and F3 are forbidden.
	NoRepPrefixes     bool     // Whether non-mandatory prefixes F2 and F3 are forbidden.
	MandatoryPrefixes []Prefix // Any mandatory prefixes that precede the opcode.

	// REX prefixes.
	REX   bool // Whether a REX prefix is always required.
	REX_W bool // Whether a REX prefix is always required with REX.W set.

	// VEX and XOP prefixes.
	VEX       bool  // Whether a VEX prefix is always required.
	XOP       bool  // Whether an XOP prefix is always required.
	VEX_L     bool  // Any VEX.L value.
	VEX_LIG   bool  // Whether to ignore VEX.L (or EVEX.L'L).
	VEXpp     uint8 // Any VEX.pp value that should be included (2 bits).
	VEXm_mmmm uint8 // Any VEX.m_mmmm value that should be included (5 bits).
	VEX_W     bool  // Any VEX.W value.
	VEX_WIG   bool  // Whether to ignore VEX.W.
	VEXis4    bool  // Whether a register is expected in the 4-bit immediate.

	// EVEX prefixes.
	EVEX     bool // Whether an EVEX prefix is always required.
	EVEX_Lp  bool // Any EVEX.L' value.
	Mask     bool // Any EVEX opmask support.
	Zero     bool // Any EVEX zeroing support.
	Rounding bool // Any EVEX embedded rounding support.
	Suppress bool // Any EVEX suppress all exceptions support.

	// Opcode data.
	Opcode           []byte // One or more opcode bytes.
	RegisterModifier int    // The opcode byte index where the register is encoded without a ModR/M byte, plus one. Zero for no modifier.
	StackIndex       int    // The opcode byte index where the FPU stack index is encoded, plus one. Zero for no index.

	// Code offset after the opcode.
	CodeOffset bool // Whether a code offset is expected.

	// ModR/M byte.
	ModRM    bool  // Whether a ModR/M byte is always required.
	ModRMmod uint8 // Any fixed value used as the ModR/M byte's mod field, plus one. Zero for no value. Five for any value except 0b11.
	ModRMreg uint8 // Any fixed value used as the ModR/M byte's reg field, plus one. Zero for no value.
	ModRMrm  uint8 // Any fixed value used as the ModR/M byte's r/m field, plus one. Zero for no value.

	// Vector SIB.
	VSIB bool // Whether the instruction uses the Vector SIB.

	// Immediates.
	ImpliedImmediate []byte // An immediate value implied by the encoding string.
}

// Vector returns whether the instruction
// is encoded with a VEX, XOP, or EVEX
// prefix.
func (e *Encoding) Vector() bool {
	return e.VEX || e.XOP || e.EVEX
}

// VectorSize returns the instruction's vector size,
// if any.
func (e *Encoding) VectorSize() int {
	if !e.Vector() {
		return 0
	}

	switch {
	case !e.VEX_L && !e.EVEX_Lp:
		return 128
	case e.VEX_L && !e.EVEX_Lp:
		return 256
	case !e.VEX_L && e.EVEX_Lp:
		return 512
	default:
		return 0
	}
}

// MandatoryPrefix returns the mandatory
// prefix out of 66, F2, and F3, or zero.
func (e *Encoding) MandatoryPrefix() Prefix {
	for _, p := range e.MandatoryPrefixes {
		switch p {
		case PrefixOperandSize, PrefixRepeatNot, PrefixRepeat:
			return p
		}
	}

	return 0
}

// ParseEncoding parses an instruction encoding
// in the syntax used by the Intel manuals, such
// as "REX.W + 0F AF /r" or "VEX.128.66.0F.WIG 58 /r".
func ParseEncoding(s string) (*Encoding, error) {
	// See the Intel x86 manuals, Volume 2A, section
	// 3.1.1.1 for the syntax. In brief:
	//
	// - NP: 66/F2/F3 prefixes beyond any in the
	//   opcode are not allowed.
	// - NFx: F2/F3 prefixes beyond any in the
	//   opcode are not allowed.
	// - /digit: the ModR/M reg field holds the digit.
	// - /r: the ModR/M byte holds a register and an
	//   r/m operand.
	// - cb, cw, cd, cp: a code offset follows the
	//   opcode.
	// - ib, iw, id, io: an immediate follows the
	//   opcode, ModR/M, SIB, and displacement.
	// - +rb, +rw, +rd, +ro: the low 3 bits of the
	//   opcode select a register.
	// - +i: the low 3 bits of the opcode select an
	//   x87 stack register.

	e := &Encoding{
		Syntax: s,
	}

	// Start with any prefixes.
	parts := strings.Fields(s)
	var rest []string
prefixes:
	for i, clause := range parts {
		switch clause {
		case "NP":
			e.NoVEXPrefixes = true
		case "NFx":
			e.NoRepPrefixes = true
		case "REX":
			e.REX = true
		case "REX.W":
			e.REX = true
			e.REX_W = true
		case "F0", "F2", "F3", "2E", "36", "3E", "26", "64", "65", "66", "67":
			b, _ := strconv.ParseUint(clause, 16, 8)
			e.MandatoryPrefixes = append(e.MandatoryPrefixes, Prefix(b))
		case "9B": // fwait.
			if len(parts[i:]) > 1 {
				e.PrefixOpcodes = append(e.PrefixOpcodes, 0x9b)
				continue
			}

			// If it's not a prefix opcode, we
			// stop here.
			fallthrough
		default:
			rest = parts[i:]
			break prefixes
		}
	}

	// Some specialised instructions place
	// another opcode byte after the ModR/M
	// byte, such as the 3DNow! suffix opcode.
	// We track whether we've seen /r yet to
	// tell these apart from the opcode.
	seenSlashR := false

	// Parse the remaining encoding
	// to identify the different fields.
	for _, clause := range rest {
		switch {
		case strings.HasSuffix(clause, "+rb"), strings.HasSuffix(clause, "+rw"), strings.HasSuffix(clause, "+rd"), strings.HasSuffix(clause, "+ro"):
			opcode, _, _ := strings.Cut(clause, "+")
			b, err := strconv.ParseUint(opcode, 16, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid opcode register modifier clause %q: %v", clause, err)
			}

			e.Opcode = append(e.Opcode, byte(b))
			e.RegisterModifier = len(e.Opcode)
			continue
		case strings.HasSuffix(clause, "+i"):
			opcode := strings.TrimSuffix(clause, "+i")
			b, err := strconv.ParseUint(opcode, 16, 8)
			if err != nil {
				return nil, fmt.Errorf("invalid FPU stack index clause %q: %v", clause, err)
			}

			e.Opcode = append(e.Opcode, byte(b))
			e.StackIndex = len(e.Opcode)
			continue
		case strings.HasPrefix(clause, "EVEX."):
			if err := e.parseVector(clause, "EVEX"); err != nil {
				return nil, err
			}

			continue
		case strings.HasPrefix(clause, "VEX."):
			if err := e.parseVector(clause, "VEX"); err != nil {
				return nil, err
			}

			continue
		case strings.HasPrefix(clause, "XOP."):
			if err := e.parseVector(clause, "XOP"); err != nil {
				return nil, err
			}

			continue
		case strings.Contains(clause, ":"):
			if err := e.parseModRM(clause); err != nil {
				return nil, err
			}

			continue
		}

		switch clause {
		// Unused syntax.
		case "+":
		// Opcode extensions.
		case "/0", "/1", "/2", "/3", "/4", "/5", "/6", "/7":
			digit := byte(clause[1] - '0')
			e.ModRMreg = digit + 1
			e.ModRM = true
			seenSlashR = true
		case "/r":
			e.ModRM = true
			seenSlashR = true
		case "cb", "cw", "cd", "cp":
			if e.CodeOffset {
				return nil, fmt.Errorf("invalid encoding clause: unexpected second code offset clause %q", clause)
			}

			e.CodeOffset = true
		case "ib", "iw", "id", "io":
			// The immediate is described
			// by the parameters.
		case "/is4":
			if e.VEXis4 {
				return nil, fmt.Errorf("invalid encoding clause: unexpected second %q clause", clause)
			}

			e.VEXis4 = true
		case "/vsib":
			e.VSIB = true
			e.ModRM = true
			seenSlashR = true
		default:
			b, err := strconv.ParseUint(clause, 16, 8)
			if err != nil {
				return nil, fmt.Errorf("bad encoding syntax %q: failed to handle encoding clause %q", s, clause)
			}

			if seenSlashR {
				e.ImpliedImmediate = append(e.ImpliedImmediate, byte(b))
			} else {
				e.Opcode = append(e.Opcode, byte(b))
			}
		}
	}

	if len(e.Opcode) == 0 {
		return nil, fmt.Errorf("bad encoding syntax %q: no opcode", s)
	}

	return e, nil
}

// parseVector handles a VEX, XOP, or
// EVEX clause, such as "VEX.128.66.0F.WIG".
func (e *Encoding) parseVector(clause, kind string) error {
	switch kind {
	case "VEX":
		e.VEX = true
	case "XOP":
		e.XOP = true
	case "EVEX":
		e.EVEX = true
	}

	for _, part := range strings.Split(clause, ".")[1:] {
		switch part {
		case "NDS", "NDD", "DDS":
			// The NDS/NDD/DDS terms can be ignored,
			// as their information is also encoded
			// in the parameter details.
		case "128", "L0", "LZ":
			e.VEX_L = false
		case "LIG", "LLIG":
			e.VEX_LIG = true
		case "256", "L1":
			e.VEX_L = true
		case "512":
			if kind != "EVEX" {
				return fmt.Errorf("invalid encoding clause %s: 512-bit vectors require EVEX", clause)
			}

			e.EVEX_Lp = true
		case "NP":
			e.VEXpp = 0b00
		case "66":
			e.VEXpp = 0b01
		case "F3":
			e.VEXpp = 0b10
		case "F2":
			e.VEXpp = 0b11
		case "0F":
			e.VEXm_mmmm = 0b0_0001
		case "0F38":
			e.VEXm_mmmm = 0b0_0010
		case "0F3A":
			e.VEXm_mmmm = 0b0_0011
		case "08", "09", "0A":
			if kind != "XOP" {
				return fmt.Errorf("invalid encoding clause %s: map %s requires XOP", clause, part)
			}

			b, _ := strconv.ParseUint(part, 16, 8)
			e.VEXm_mmmm = uint8(b)
		case "WIG":
			e.VEX_WIG = true
			e.VEX_W = false
		case "W0":
			e.VEX_W = false
		case "W1":
			e.VEX_W = true
		default:
			return fmt.Errorf("invalid encoding clause %s: bad %s clause %q", clause, kind, part)
		}
	}

	if e.VEXm_mmmm == 0 {
		return fmt.Errorf("invalid encoding clause %s: missing %s map", clause, kind)
	}

	return nil
}

// parseModRM handles a fixed ModR/M clause,
// such as "11:rrr:bbb".
func (e *Encoding) parseModRM(clause string) error {
	fields := strings.Split(clause, ":")
	if len(fields) != 3 {
		return fmt.Errorf("invalid encoding clause %s: failed to parse ModR/M fields", clause)
	}

	switch fields[0] {
	case "11":
		e.ModRMmod = 0b11 + 1
	case "!(11)":
		e.ModRMmod = 5 // Any value except 0b11.
	default:
		return fmt.Errorf("invalid encoding clause %s: invalid ModR/M.mod field %q", clause, fields[0])
	}

	field := func(s, wildcard, name string) (uint8, error) {
		if s == wildcard {
			return 0, nil
		}

		n, err := strconv.ParseUint(s, 2, 8)
		if err != nil || n > 0b111 {
			return 0, fmt.Errorf("invalid encoding clause %s: invalid ModR/M.%s field %q", clause, name, s)
		}

		return uint8(n) + 1, nil
	}

	var err error
	e.ModRMreg, err = field(fields[1], "rrr", "reg")
	if err != nil {
		return err
	}

	e.ModRMrm, err = field(fields[2], "bbb", "r/m")
	if err != nil {
		return err
	}

	e.ModRM = true

	return nil
}
