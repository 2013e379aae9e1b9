// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"strings"

	"firefly-os.dev/tools/disasm/internal/x86"
)

// Rounding is an EVEX embedded rounding
// mode.
type Rounding uint8

const (
	RoundNone    Rounding = iota
	RoundNearest          // Round to nearest, suppressing exceptions.
	RoundDown             // Round down, suppressing exceptions.
	RoundUp               // Round up, suppressing exceptions.
	RoundZero             // Round toward zero, suppressing exceptions.
	RoundSAE              // Suppress all exceptions.
)

func (r Rounding) String() string {
	switch r {
	case RoundNearest:
		return "rn-sae"
	case RoundDown:
		return "rd-sae"
	case RoundUp:
		return "ru-sae"
	case RoundZero:
		return "rz-sae"
	case RoundSAE:
		return "sae"
	default:
		return ""
	}
}

// Inst is a decoded instruction.
type Inst struct {
	Form     *x86.Instruction // The instruction form.
	Mode     x86.Mode
	Addr     uint64
	Len      int
	Bytes    []byte
	Prefixes []x86.Prefix // Legacy prefixes, in the order they appear.
	REX      x86.REX      // Any REX prefix that took effect.
	Vector   VectorKind
	VEX      x86.VEX // Any VEX or XOP prefix, in the 3-byte form.
	EVEX     x86.EVEX

	OpSize   int // Operand size in bits.
	AddrSize int // Address size in bits.

	HasModRM bool
	ModRM    x86.ModRM
	HasSIB   bool
	SIB      x86.SIB
	Disp     int64
	DispSize int // In bytes.

	Mask     *x86.Register // Any EVEX opmask.
	Zeroing  bool
	Rounding Rounding

	Args []x86.Arg

	rules rule
}

// ID returns the instruction's ID, which is
// its index in x86.Instructions.
func (i *Inst) ID() int {
	return i.Form.ID
}

// Next returns the address of the following
// instruction.
func (i *Inst) Next() uint64 {
	return i.Addr + uint64(i.Len)
}

// HasPrefix returns whether the instruction
// includes the given legacy prefix.
func (i *Inst) HasPrefix(p x86.Prefix) bool {
	for _, got := range i.Prefixes {
		if got == p {
			return true
		}
	}

	return false
}

// String returns a simple Intel-style
// representation of the instruction. Use
// the printer package for complete output.
func (i *Inst) String() string {
	var b strings.Builder
	b.WriteString(i.Form.Mnemonic)
	for j, arg := range i.Args {
		if j == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(", ")
		}

		b.WriteString(arg.String())
	}

	return b.String()
}

// inst completes the decoded instruction.
func (s *state) inst(form *x86.Instruction, args []x86.Arg) *Inst {
	inst := &Inst{
		Form:     form,
		Mode:     s.mode,
		Addr:     s.cur.addr,
		Len:      s.cur.n,
		Bytes:    s.cur.bytes(),
		Prefixes: append([]x86.Prefix(nil), s.prefixes...),
		REX:      s.rex,
		Vector:   s.vector,
		OpSize:   s.opSize,
		AddrSize: s.addrSize,
		HasModRM: s.hasModRM,
		ModRM:    s.modrm,
		HasSIB:   s.hasSIB,
		SIB:      s.sib,
		Disp:     s.disp,
		DispSize: s.dispSize,
		Args:     args,
		rules:    s.rules,
	}

	switch s.vector {
	case VEX2, VEX3, XOP:
		inst.VEX = s.vex
	case EVEX:
		inst.EVEX = s.evex
		enc := form.Encoding
		if enc.Mask && s.evex.AAA() != 0 {
			inst.Mask = x86.RegistersOpmask[s.evex.AAA()]
		}

		inst.Zeroing = enc.Zero && s.evex.Z()
		if s.evex.Br() && (!s.hasModRM || s.modrm.Mod() == 0b11) {
			switch {
			case enc.Rounding:
				inst.Rounding = RoundNearest + Rounding(s.evex.LL())
			case enc.Suppress:
				inst.Rounding = RoundSAE
			}
		}
	}

	return inst
}
