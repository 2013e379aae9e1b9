// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"

	"firefly-os.dev/tools/disasm/internal/x86"
)

func isLegacyPrefix(b byte) bool {
	switch x86.Prefix(b) {
	case x86.PrefixLock, x86.PrefixRepeatNot, x86.PrefixRepeat,
		x86.PrefixCS, x86.PrefixSS, x86.PrefixDS, x86.PrefixES, x86.PrefixFS, x86.PrefixGS,
		x86.PrefixOperandSize, x86.PrefixAddressSize:
		return true
	}

	return false
}

func (s *state) isREX(b byte) bool {
	return s.mode.Int == 64 && b&0xf0 == 0x40
}

// readPrefixes reads any legacy and REX
// prefixes.
func (s *state) readPrefixes() error {
	for {
		b, err := s.cur.peek(0)
		if err != nil {
			return err
		}

		if s.isREX(b) {
			s.cur.next()
			s.rex = x86.REX(b)
			continue
		}

		if !isLegacyPrefix(b) {
			return nil
		}

		s.cur.next()
		p := x86.Prefix(b)
		s.prefixes = append(s.prefixes, p)

		// A REX prefix must come last.
		s.rex = 0

		// The prefix is mandatory if it is
		// followed directly by the opcode
		// escape or a REX prefix. F2 and F3
		// take precedence over 66.
		next, err := s.cur.peek(0)
		adjacent := err == nil && (next == 0x0f || s.isREX(next))
		switch p {
		case x86.PrefixLock:
			s.lock = true
		case x86.PrefixRepeatNot, x86.PrefixRepeat:
			if p == x86.PrefixRepeat {
				s.rep = true
			} else {
				s.repne = true
			}

			s.repeat = p
			if adjacent || (err == nil && next == byte(x86.PrefixOperandSize)) {
				s.mandatory = p
			}
		case x86.PrefixOperandSize:
			s.opsize = true
			if adjacent && s.mandatory == 0 {
				s.mandatory = p
			}
		case x86.PrefixAddressSize:
			s.adsize = true
		default:
			s.segment = p
		}
	}
}

// readVector reads any VEX, XOP, or EVEX
// prefix.
func (s *state) readVector() error {
	b, err := s.cur.peek(0)
	if err != nil {
		return err
	}

	switch b {
	case 0x62, 0xc4, 0xc5, 0x8f:
	default:
		return nil
	}

	p0, err := s.cur.peek(1)
	if err != nil {
		return err
	}

	// Outside 64-bit mode, these bytes are
	// also legacy opcodes taking a memory
	// operand, so the prefix requires what
	// would be a register ModR/M byte.
	register := s.mode.Int == 64 || p0&0xc0 == 0xc0
	switch b {
	case 0x62:
		if !register || p0&0x0c != 0 {
			return nil
		}

		p1, err := s.cur.peek(2)
		if err != nil {
			return err
		}

		if p1&0x04 == 0 {
			return nil
		}

		p2, err := s.cur.peek(3)
		if err != nil {
			return err
		}

		s.vector = EVEX
		s.evex = x86.EVEX{p0, p1, p2}
	case 0xc4:
		if !register {
			return nil
		}

		p1, err := s.cur.peek(2)
		if err != nil {
			return err
		}

		s.vector = VEX3
		s.vex = x86.VEX{p0, p1}
	case 0xc5:
		if !register {
			return nil
		}

		s.vector = VEX2
		s.vex = x86.VEX2(p0)
	case 0x8f:
		// Otherwise, this is POP r/m.
		if (p0>>3)&0b111 == 0 {
			return nil
		}

		p1, err := s.cur.peek(2)
		if err != nil {
			return err
		}

		s.vector = XOP
		s.vex = x86.VEX{p0, p1}
	}

	if err := s.cur.skip(s.vectorLen()); err != nil {
		return err
	}

	switch {
	case s.rex != 0:
		return fmt.Errorf("%w: REX prefix before %s prefix", ErrIllegalPrefix, s.vector)
	case s.lock, s.opsize, s.rep, s.repne:
		return fmt.Errorf("%w: legacy prefix before %s prefix", ErrIllegalPrefix, s.vector)
	}

	return nil
}

// checkVVVV returns an error if a vector
// prefix names a register in vvvv (or in
// EVEX.V') for a form with no such operand.
// The field must then hold 1111.
func (s *state) checkVVVV(form *x86.Instruction) error {
	if s.vector == NoVector {
		return nil
	}

	vsib := false
	for _, param := range form.Parameters {
		switch param.Encoding {
		case x86.EncodingVEXvvvv:
			return nil
		case x86.EncodingSIB:
			vsib = true
		}
	}

	// With a vector SIB operand, EVEX.V'
	// extends the index register instead.
	if s.vvvv != 0 || (s.vp != 0 && !vsib) {
		return fmt.Errorf("%w: %s with %s.vvvv %04b", ErrUnrecognized, form.Mnemonic, s.vector, ^s.vvvv&0b1111)
	}

	return nil
}

// vectorLen returns the length in bytes
// of the vector prefix.
func (s *state) vectorLen() int {
	switch s.vector {
	case VEX2:
		return 2
	case VEX3, XOP:
		return 3
	case EVEX:
		return 4
	}

	return 0
}

func inverted(b bool) byte {
	if b {
		return 0
	}

	return 1
}

func bit(b bool) byte {
	if b {
		return 1
	}

	return 0
}

// extend determines the effective register
// extension bits.
func (s *state) extend() {
	switch s.vector {
	case NoVector:
		s.w, s.r, s.x, s.b = s.rex.Bits()
	case EVEX:
		e := s.evex
		s.w = bit(e.W())
		s.r, s.x, s.b = inverted(e.R()), inverted(e.X()), inverted(e.B())
		s.rp, s.vp = inverted(e.Rp()), inverted(e.Vp())
		s.vvvv = ^e.VVVV() & 0b1111
		s.pp = e.PP()
	default:
		v := s.vex
		s.w = bit(v.W())
		s.r, s.x, s.b = inverted(v.R()), inverted(v.X()), inverted(v.B())
		s.vvvv = ^v.VVVV() & 0b1111
		s.pp = v.PP()
	}

	if s.mode.Int != 64 {
		s.r, s.x, s.b, s.rp, s.vp = 0, 0, 0, 0, 0
		s.vvvv &= 0b111
	}
}

// sizes determines the operand and
// address sizes.
func (s *state) sizes() {
	switch s.mode.Int {
	case 64:
		switch {
		case s.w == 1 && s.vector == NoVector:
			s.opSize = 64
		case s.opsize:
			s.opSize = 16
		default:
			s.opSize = 32
		}

		s.addrSize = 64
		if s.adsize {
			s.addrSize = 32
		}
	case 32:
		s.opSize, s.addrSize = 32, 32
		if s.opsize {
			s.opSize = 16
		}

		if s.adsize {
			s.addrSize = 16
		}
	case 16:
		s.opSize, s.addrSize = 16, 16
		if s.opsize {
			s.opSize = 32
		}

		if s.adsize {
			s.addrSize = 32
		}
	}
}

// mask returns the attribute mask for the
// instruction, once the opcode is known.
func (s *state) mask() attr {
	var m attr
	if s.mode.Int == 64 {
		m |= attr64
	}

	if s.vector != NoVector {
		m |= ppAttr(s.pp)
		if s.w == 1 && s.mode.Int == 64 {
			m |= attrREXW
		}

		if s.vector != EVEX {
			m |= attrVEX
			if s.vex.L() {
				m |= attrVEXL
			}

			return m
		}

		e := s.evex
		m |= attrEVEX
		if e.L() {
			m |= attrVEXL
		}

		if e.Lp() {
			m |= attrEVEXL2
		}

		if e.Z() {
			m |= attrEVEXKZ
		}

		if e.AAA() != 0 {
			m |= attrEVEXK
		}

		if e.Br() {
			m |= attrEVEXB
		}

		return m
	}

	switch s.mandatory {
	case 0:
		if s.opsize && s.mode.Int != 16 {
			m |= attrOpsize
		}

		if s.adsize {
			m |= attrAdsize
		}

		switch {
		case s.opMap == mapOneByte:
			// PAUSE.
			if s.repeat == x86.PrefixRepeat && s.opcode == 0x90 {
				m |= attrXS
			}
		case s.repeat == x86.PrefixRepeat:
			m |= attrXS
		case s.repeat == x86.PrefixRepeatNot:
			m |= attrXD
		}
	case x86.PrefixRepeat:
		m |= attrXS
	case x86.PrefixRepeatNot:
		m |= attrXD
	case x86.PrefixOperandSize:
		if s.mode.Int != 16 {
			m |= attrOpsize
		}

		if s.adsize {
			m |= attrAdsize
		}
	}

	if s.w == 1 {
		m |= attrREXW
	}

	if s.mode.Int == 16 {
		switch {
		case s.opMap == mapOneByte && s.opcode == 0xe3:
			// JCXZ and JECXZ.
			m ^= attrAdsize
		case !s.opsize && s.opMap == mapOneByte && (s.opcode == 0xe8 || s.opcode == 0xe9),
			!s.opsize && s.opMap == map0F && s.opcode&0xf0 == 0x80:
			m |= attrOpsize
		}
	}

	return m
}
