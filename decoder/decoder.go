// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package decoder decodes x86 machine code into
// structured instructions, using the instruction
// table in the x86 package.
//
// Decoding proceeds in stages. Legacy prefixes
// and any REX, VEX, XOP, or EVEX prefix are read
// first, followed by the opcode. The prefixes,
// CPU mode, and opcode map select one of a small
// number of contexts, which in turn select a
// decision from the opcode tables. The decision
// may consult the ModR/M byte to determine the
// instruction form. A few rules then correct the
// form for cases the tables cannot express,
// before the operands are read and translated.
package decoder

import (
	"fmt"

	"firefly-os.dev/tools/disasm/internal/x86"
)

// VectorKind identifies the vector
// extension prefix on an instruction.
type VectorKind uint8

const (
	NoVector VectorKind = iota
	VEX2                // Two-byte VEX (C5).
	VEX3                // Three-byte VEX (C4).
	XOP                 // AMD XOP (8F).
	EVEX                // EVEX (62).
)

func (k VectorKind) String() string {
	switch k {
	case NoVector:
		return "none"
	case VEX2:
		return "VEX2"
	case VEX3:
		return "VEX3"
	case XOP:
		return "XOP"
	case EVEX:
		return "EVEX"
	default:
		return fmt.Sprintf("VectorKind(%d)", k)
	}
}

// state holds the progress of a single
// call to Decode.
type state struct {
	cur  cursor
	mode x86.Mode

	// Legacy prefixes.
	prefixes  []x86.Prefix
	lock      bool
	rep       bool       // F3 seen.
	repne     bool       // F2 seen.
	opsize    bool       // 66 seen.
	adsize    bool       // 67 seen.
	repeat    x86.Prefix // The last of F2 and F3.
	segment   x86.Prefix // The last segment override.
	mandatory x86.Prefix // Any mandatory prefix.

	// REX and vector prefixes.
	rex    x86.REX
	vector VectorKind
	vex    x86.VEX
	evex   x86.EVEX

	// Effective extension bits, with any
	// inversion undone.
	w, r, x, b, rp, vp byte
	vvvv               byte
	pp                 byte

	// Opcode.
	opMap    opcodeMap
	opcode   byte
	opcodeAt int

	// ModR/M, SIB, and displacement.
	modrm       x86.ModRM
	hasModRM    bool
	modrmAt     int
	sib         x86.SIB
	hasSIB      bool
	addressRead bool
	disp        int64
	dispSize    int // In bytes.

	// Derived sizes, in bits.
	opSize   int
	addrSize int

	// Immediates, in the order they
	// are encoded.
	imms  [2]int64
	nimms int

	// Disambiguation rules whose
	// precondition held.
	rules rule
}

// Decode decodes the instruction at addr
// in the given CPU mode.
//
// Any error returned is an *Error, wrapping
// one of the Err values in this package.
// Decode is safe for concurrent use.
func Decode(r Reader, addr uint64, mode x86.Mode) (*Inst, error) {
	switch mode.Int {
	case 16, 32, 64:
	default:
		return nil, &Error{Addr: addr, Err: fmt.Errorf("%w: CPU mode %d", ErrInvalidMode, mode.Int)}
	}

	s := &state{
		cur:  cursor{r: r, addr: addr},
		mode: mode,
	}

	inst, err := s.decode()
	if err != nil {
		return nil, &Error{Addr: addr, Len: s.cur.n, Err: err}
	}

	return inst, nil
}

// DecodeBytes decodes the instruction at the
// start of b, which is loaded at addr.
func DecodeBytes(b []byte, addr uint64, mode x86.Mode) (*Inst, error) {
	return Decode(Code{Addr: addr, Data: b}, addr, mode)
}

func (s *state) decode() (*Inst, error) {
	inst, err := s.recognize()
	if inst != nil || err != nil {
		return inst, err
	}

	if err := s.readPrefixes(); err != nil {
		return nil, err
	}

	if err := s.readVector(); err != nil {
		return nil, err
	}

	s.extend()
	s.sizes()
	if err := s.readOpcode(); err != nil {
		return nil, err
	}

	form, err := s.resolve()
	if err != nil {
		return nil, err
	}

	if err := s.checkVVVV(form); err != nil {
		return nil, err
	}

	if usesModRM[form.ID] {
		if err := s.readModRM(); err != nil {
			return nil, err
		}

		// No SIB byte or displacement follows.
		if ignoresMod(form) {
			s.addressRead = true
		}

		if err := s.readAddress(); err != nil {
			return nil, err
		}
	} else {
		s.unreadModRM()
	}

	if err := s.readImmediates(form); err != nil {
		return nil, err
	}

	args, err := s.operands(form)
	if err != nil {
		return nil, err
	}

	if err := s.checkLock(form, args); err != nil {
		return nil, err
	}

	return s.inst(form, args), nil
}

// checkLock returns an error if a LOCK prefix
// is applied to an instruction that cannot
// accept it, or whose destination is not in
// memory.
func (s *state) checkLock(form *x86.Instruction, args []x86.Arg) error {
	if !s.lock {
		return nil
	}

	if !form.Lock {
		return fmt.Errorf("%w: lock on %s", ErrIllegalPrefix, form.Mnemonic)
	}

	if len(args) == 0 {
		return fmt.Errorf("%w: lock on %s with no operands", ErrIllegalPrefix, form.Mnemonic)
	}

	if _, ok := args[0].(*x86.Memory); !ok {
		return fmt.Errorf("%w: lock on %s with register destination", ErrIllegalPrefix, form.Mnemonic)
	}

	return nil
}
