// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package x86 contains structured information on the
// x86 instruction set architecture, as needed to decode
// and print machine code.
package x86

import (
	"fmt"
	"strconv"
)

// Mode represents an x86
// CPU mode, as a number
// of bits.
type Mode struct {
	Int    uint8
	String string
}

var (
	Mode16 = Mode{16, "16"}
	Mode32 = Mode{32, "32"}
	Mode64 = Mode{64, "64"}
	Modes  = []Mode{Mode16, Mode32, Mode64}
)

// ParseMode returns the CPU mode with
// the given number of bits, such as
// "64".
func ParseMode(s string) (Mode, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return Mode{}, fmt.Errorf("invalid CPU mode %q", s)
	}

	for _, mode := range Modes {
		if int(mode.Int) == n {
			return mode, nil
		}
	}

	return Mode{}, fmt.Errorf("invalid CPU mode %q: must be 16, 32, or 64", s)
}

// Instruction includes structured information
// about one form of an x86 instruction. Each
// form has a unique ID, which is its index in
// Instructions.
type Instruction struct {
	ID         int          `json:"id"`
	Mnemonic   string       `json:"mnemonic"`         // The Intel name for the instruction, in lower case.
	UID        string       `json:"uid"`              // A unique identifier for the instruction.
	Syntax     string       `json:"syntax"`           // The Intel syntax for the instruction.
	Encoding   *Encoding    `json:"encoding"`         // The information on how the instruction is encoded.
	Tuple      TupleType    `json:"tuple,omitempty"`  // Any EVEX tuple type.
	Parameters []*Parameter `json:"parameters"`       // The instruction's operands, in Intel order.
	CPUID      []string     `json:"cpuid,omitempty"`  // CPUID feature flags required.
	Tags       []string     `json:"tags,omitempty"`   // Any additional attributes.

	Mode64 bool `json:"mode64"` // Whether the instruction is supported in 64-bit mode.
	Mode32 bool `json:"mode32"` // Whether the instruction is supported in 32-bit mode.
	Mode16 bool `json:"mode16"` // Whether the instruction is supported in 16-bit mode.

	OperandSize bool `json:"operandSize,omitempty"` // Whether this form is selected by the operand size override prefix.
	AddressSize bool `json:"addressSize,omitempty"` // Whether this form is selected by the address size override prefix.
	DataSize    int  `json:"dataSize,omitempty"`    // Data operation size in bits.

	Lock bool `json:"lock,omitempty"` // Whether the instruction accepts a LOCK prefix.
	Rep  bool `json:"rep,omitempty"`  // Whether the instruction accepts a REP prefix.
	RepE bool `json:"repe,omitempty"` // Whether the instruction accepts REPE and REPNE prefixes.
}

func (inst *Instruction) String() string {
	return inst.UID
}

// Supports returns whether inst is supported
// in the given CPU mode.
func (inst *Instruction) Supports(mode Mode) bool {
	switch mode.Int {
	case 16:
		return inst.Mode16
	case 32:
		return inst.Mode32
	case 64:
		return inst.Mode64
	default:
		panic("invalid mode " + mode.String)
	}
}

// Only64 returns whether inst is only
// supported in 64-bit mode.
func (inst *Instruction) Only64() bool {
	return inst.Mode64 && !inst.Mode32 && !inst.Mode16
}

// HasCPUID returns whether inst's CPUID
// contains the given feature.
func (inst *Instruction) HasCPUID(feature string) bool {
	for _, got := range inst.CPUID {
		if got == feature {
			return true
		}
	}

	return false
}

// HasTag returns whether inst has the
// given tag.
func (inst *Instruction) HasTag(tag string) bool {
	for _, got := range inst.Tags {
		if got == tag {
			return true
		}
	}

	return false
}

// DisplacementCompression returns
// the value N for the instruction,
// as described in Intel x86 manuals,
// Volume 2A, Section 2.7.5.
//
// An 8-bit displacement in an EVEX
// instruction is scaled by N.
func (inst *Instruction) DisplacementCompression(broadcast bool) (n int64, err error) {
	var inputSize int64
	if inst.Encoding.VEX_W {
		inputSize = 64
	} else {
		inputSize = 32
	}

	vectorSize := int64(inst.Encoding.VectorSize())
	if vectorSize == 0 || !inst.Encoding.EVEX {
		return 1, nil
	}

	switch inst.Tuple {
	case TupleNone:
		return 1, nil
	case TupleFull:
		if broadcast {
			return inputSize / 8, nil
		}

		return vectorSize / 8, nil
	case TupleHalf:
		if broadcast {
			return 4, nil
		}

		return vectorSize / 16, nil
	case TupleFullMem:
		return vectorSize / 8, nil
	case Tuple1Scalar:
		if inst.DataSize == 0 {
			return 1, fmt.Errorf("instruction %s has tuple type %s but no data size", inst.UID, inst.Tuple)
		}

		return int64(inst.DataSize) / 8, nil
	case Tuple1Fixed:
		return inputSize / 8, nil
	case Tuple2:
		return inputSize / 4, nil
	case Tuple4:
		return inputSize / 2, nil
	case Tuple8:
		return inputSize / 1, nil
	case TupleHalfMem:
		return vectorSize / 16, nil
	case TupleQuarterMem:
		return vectorSize / 32, nil
	case TupleEighthMem:
		return vectorSize / 64, nil
	case TupleMem128:
		return 16, nil
	case TupleMOVDDUP:
		switch vectorSize {
		case 128:
			return 8, nil
		case 256:
			return 32, nil
		case 512:
			return 64, nil
		}
	}

	return 1, fmt.Errorf("unknown tuple type: %s", inst.Tuple)
}

// TupleType contains an EVEX instruction
// tuple kind, as defined in Intel x86,
// Volume 2A, Section 2.6.5.
type TupleType uint8

const (
	TupleNone TupleType = iota
	TupleFull
	TupleHalf
	TupleFullMem
	Tuple1Scalar
	Tuple1Fixed
	Tuple2
	Tuple4
	Tuple8
	TupleHalfMem
	TupleQuarterMem
	TupleEighthMem
	TupleMem128
	TupleMOVDDUP
)

var TupleTypes = map[string]TupleType{
	"":              TupleNone,
	"None":          TupleNone,
	"Full":          TupleFull,
	"Half":          TupleHalf,
	"Full Mem":      TupleFullMem,
	"Tuple1 Scalar": Tuple1Scalar,
	"Tuple1 Fixed":  Tuple1Fixed,
	"Tuple2":        Tuple2,
	"Tuple4":        Tuple4,
	"Tuple8":        Tuple8,
	"Half Mem":      TupleHalfMem,
	"Quarter Mem":   TupleQuarterMem,
	"Eighth Mem":    TupleEighthMem,
	"Mem128":        TupleMem128,
	"MOVDDUP":       TupleMOVDDUP,
}

func (t TupleType) String() string {
	for name, got := range TupleTypes {
		if got == t && name != "" {
			return name
		}
	}

	return fmt.Sprintf("TupleType(%d)", t)
}

// Prefix represents a legacy x86 prefix.
type Prefix byte

const (
	PrefixLock        Prefix = 0xf0
	PrefixRepeatNot   Prefix = 0xf2
	PrefixRepeat      Prefix = 0xf3
	PrefixCS          Prefix = 0x2e
	PrefixSS          Prefix = 0x36
	PrefixDS          Prefix = 0x3e
	PrefixES          Prefix = 0x26
	PrefixFS          Prefix = 0x64
	PrefixGS          Prefix = 0x65
	PrefixOperandSize Prefix = 0x66
	PrefixAddressSize Prefix = 0x67
)

// Segment returns the segment register
// selected by a segment override prefix,
// or nil.
func (p Prefix) Segment() *Register {
	switch p {
	case PrefixCS:
		return CS
	case PrefixSS:
		return SS
	case PrefixDS:
		return DS
	case PrefixES:
		return ES
	case PrefixFS:
		return FS
	case PrefixGS:
		return GS
	}

	return nil
}

func (p Prefix) String() string {
	switch p {
	case PrefixLock:
		return "lock"
	case PrefixRepeatNot:
		return "repne"
	case PrefixRepeat:
		return "rep"
	case PrefixCS:
		return "cs"
	case PrefixSS:
		return "ss"
	case PrefixDS:
		return "ds"
	case PrefixES:
		return "es"
	case PrefixFS:
		return "fs"
	case PrefixGS:
		return "gs"
	case PrefixOperandSize:
		return "data16"
	case PrefixAddressSize:
		return "addr32"
	default:
		return fmt.Sprintf("Prefix(%#02x)", byte(p))
	}
}

func b2i(b bool) byte {
	if b {
		return 1
	}

	return 0
}

// VEX holds the payload of a VEX or XOP
// prefix. Two-byte VEX prefixes are
// expanded into the 3-byte form when
// read.
//
// Intel x86 manuals, Volume 2A,
// Section 2.3.5, Table 2-9.
//
// 3-byte form:
//
//	| 7  6  5  4   3  2  1  0 |
//	+-------------------------|
//	| 1  1  0  0   0  1  0  0 | // 0xc4 prefix (0x8f for XOP).
//	| R  X  B  m   m  m  m  m | // P0.
//	| W  v  v  v   v  L  p  p | // P1.
//
// 2-byte form:
//
//	| 7  6  5  4   3  2  1  0 |
//	+-------------------------|
//	| 1  1  0  0   0  1  0  1 | // 0xc5 prefix.
//	| R  v  v  v   v  L  p  p | // P0.
type VEX [2]byte

// VEX2 expands the payload of a 2-byte VEX
// prefix into the 3-byte form.
func VEX2(p0 byte) VEX {
	return VEX{p0&0x80 | 0b0110_0001, p0 & 0x7f}
}

// P0.
func (v VEX) R() bool      { return ((v[0] >> 7) & 1) == 1 }
func (v VEX) X() bool      { return ((v[0] >> 6) & 1) == 1 }
func (v VEX) B() bool      { return ((v[0] >> 5) & 1) == 1 }
func (v VEX) M_MMMM() byte { return v[0] & 0b1_1111 }

// P1.
func (v VEX) W() bool    { return ((v[1] >> 7) & 1) == 1 }
func (v VEX) VVVV() byte { return (v[1] >> 3) & 0b1111 }
func (v VEX) L() bool    { return ((v[1] >> 2) & 1) == 1 }
func (v VEX) PP() byte   { return v[1] & 0b11 }

func (v VEX) String() string {
	return fmt.Sprintf("{R: %b, X: %b, B: %b, m-mmmm: %05b, W: %b, vvvv: %04b, L: %b, pp: %02b}",
		b2i(v.R()), b2i(v.X()), b2i(v.B()), v.M_MMMM(),
		b2i(v.W()), v.VVVV(), b2i(v.L()), v.PP())
}

// EVEX holds the payload of an EVEX
// prefix.
//
// Intel x86 manuals, Volume 2A,
// Section 2.6.1, Table 2-11.
//
//	| 7  6  5  4   3  2  1  0 |
//	+-------------------------|
//	| 0  1  1  0   0  0  1  0 | // 0x62 prefix.
//	| R  X  B  R'  0  m  m  m | // P0.
//	| W  v  v  v   v  1  p  p | // P1.
//	| z  L' L  b   V' a  a  a | // P2.
type EVEX [3]byte

// P0.
func (p EVEX) R() bool   { return ((p[0] >> 7) & 1) == 1 }
func (p EVEX) X() bool   { return ((p[0] >> 6) & 1) == 1 }
func (p EVEX) B() bool   { return ((p[0] >> 5) & 1) == 1 }
func (p EVEX) Rp() bool  { return ((p[0] >> 4) & 1) == 1 }
func (p EVEX) MMM() byte { return p[0] & 0b111 }

// P1.
func (p EVEX) W() bool    { return ((p[1] >> 7) & 1) == 1 }
func (p EVEX) VVVV() byte { return (p[1] >> 3) & 0b1111 }
func (p EVEX) PP() byte   { return p[1] & 0b11 }

// P2.
func (p EVEX) Z() bool   { return ((p[2] >> 7) & 1) == 1 }
func (p EVEX) Lp() bool  { return ((p[2] >> 6) & 1) == 1 }
func (p EVEX) L() bool   { return ((p[2] >> 5) & 1) == 1 }
func (p EVEX) Br() bool  { return ((p[2] >> 4) & 1) == 1 }
func (p EVEX) Vp() bool  { return ((p[2] >> 3) & 1) == 1 }
func (p EVEX) AAA() byte { return p[2] & 0b111 }

// LL returns the combined L'L field.
func (p EVEX) LL() byte { return (p[2] >> 5) & 0b11 }

func (p EVEX) String() string {
	return fmt.Sprintf("{R: %b, X: %b, B: %b, R': %b, mm: %02b // W: %b, vvvv: %04b, pp: %02b // z: %b, L': %b, L: %b, b: %b, V': %b, aaa: %03b}",
		b2i(p.R()), b2i(p.X()), b2i(p.B()), b2i(p.Rp()), p.MMM(),
		b2i(p.W()), p.VVVV(), p.PP(),
		b2i(p.Z()), b2i(p.Lp()), b2i(p.L()), b2i(p.Br()), b2i(p.Vp()), p.AAA())
}

// REX holds a REX prefix byte.
//
// Intel x86 manuals, Volume 2A,
// Section 2.2.1.2, Table 2-4.
//
//	| 7  6  5  4   3  2  1  0 |
//	+-------------------------|
//	| 0  1  0  0   W  R  X  B |
type REX byte

func (r REX) On() bool { return ((r >> 6) & 1) == 1 }
func (r REX) W() bool  { return ((r >> 3) & 1) == 1 }
func (r REX) R() bool  { return ((r >> 2) & 1) == 1 }
func (r REX) X() bool  { return ((r >> 1) & 1) == 1 }
func (r REX) B() bool  { return ((r >> 0) & 1) == 1 }

// Bits returns the extension bit for
// each field, as a 0 or 1.
func (r REX) Bits() (w, rr, x, b byte) {
	return b2i(r.W()), b2i(r.R()), b2i(r.X()), b2i(r.B())
}

func (r REX) String() string {
	out := []byte("0100WRXB")
	for i, c := range []byte("WRXB") {
		if (r>>(3-i))&1 == 0 {
			out[4+i] = '0'
		} else {
			out[4+i] = c
		}
	}

	return string(out)
}

// ModRM holds a ModR/M byte.
//
// Intel x86 manuals, Volume 2A,
// Section 2.1.5, Figure 2-1.
//
//	| 7  6  5  4   3  2  1  0 |
//	+-------------------------|
//	| mod  | reg     | r/m    |
type ModRM byte

func (m ModRM) Mod() byte { return byte(m) >> 6 }
func (m ModRM) Reg() byte { return (byte(m) >> 3) & 0b111 }
func (m ModRM) RM() byte  { return byte(m) & 0b111 }

func (m ModRM) String() string {
	return fmt.Sprintf("{mod: %02b, reg: %03b, r/m: %03b}", m.Mod(), m.Reg(), m.RM())
}

// SIB holds a Scale/Index/Base byte.
//
//	| 7  6  5  4   3  2  1  0 |
//	+-------------------------|
//	| scale | index  | base   |
type SIB byte

func (s SIB) Scale() byte { return byte(s) >> 6 }
func (s SIB) Index() byte { return (byte(s) >> 3) & 0b111 }
func (s SIB) Base() byte  { return byte(s) & 0b111 }

func (s SIB) String() string {
	return fmt.Sprintf("{scale: %02b, index: %03b, base: %03b}", s.Scale(), s.Index(), s.Base())
}
