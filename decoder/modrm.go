// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"

	"firefly-os.dev/tools/disasm/internal/x86"
)

// readModRM reads the ModR/M byte, if it
// has not been read already.
func (s *state) readModRM() error {
	if s.hasModRM {
		return nil
	}

	b, err := s.cur.next()
	if err != nil {
		return err
	}

	s.modrm = x86.ModRM(b)
	s.hasModRM = true
	s.modrmAt = s.cur.n - 1

	return nil
}

// unreadModRM returns a ModR/M byte that was
// read to select a form that turned out not
// to have one.
func (s *state) unreadModRM() {
	if s.hasModRM && !s.addressRead && s.modrmAt == s.cur.n-1 {
		s.cur.n--
		s.modrm = 0
		s.hasModRM = false
	}
}

// readAddress reads any SIB byte and
// displacement that follow the ModR/M
// byte.
func (s *state) readAddress() error {
	if !s.hasModRM || s.addressRead {
		return nil
	}

	s.addressRead = true
	mod, rm := s.modrm.Mod(), s.modrm.RM()
	if mod == 0b11 {
		return nil
	}

	var size int
	if s.addrSize == 16 {
		switch {
		case mod == 0b00 && rm == 0b110:
			size = 2
		case mod == 0b01:
			size = 1
		case mod == 0b10:
			size = 2
		}
	} else {
		if rm == 0b100 {
			b, err := s.cur.next()
			if err != nil {
				return err
			}

			s.sib = x86.SIB(b)
			s.hasSIB = true
		}

		switch mod {
		case 0b00:
			if rm == 0b101 || (s.hasSIB && s.sib.Base() == 0b101) {
				size = 4
			}
		case 0b01:
			size = 1
		case 0b10:
			size = 4
		}
	}

	if size == 0 {
		return nil
	}

	disp, err := s.cur.int(size)
	if err != nil {
		return err
	}

	s.disp = disp
	s.dispSize = size

	return nil
}

// segmentOverride returns the segment
// register selected by any segment
// override prefix. In 64-bit mode, only
// FS and GS have any effect.
func (s *state) segmentOverride() *x86.Register {
	if s.segment == 0 {
		return nil
	}

	if s.mode.Int == 64 && s.segment != x86.PrefixFS && s.segment != x86.PrefixGS {
		return nil
	}

	return s.segment.Segment()
}

// Base and index registers for 16-bit
// addressing, by r/m.
var (
	base16 = [8]*x86.Register{
		x86.BX, x86.BX, x86.BP, x86.BP,
		nil, nil, x86.BP, x86.BX,
	}
	index16 = [8]*x86.Register{
		x86.SI, x86.DI, x86.SI, x86.DI,
		x86.SI, x86.DI, nil, nil,
	}
)

// memory builds the memory operand
// described by the ModR/M byte.
func (s *state) memory(form *x86.Instruction, param *x86.Parameter) (*x86.Memory, error) {
	if !s.hasModRM || s.modrm.Mod() == 0b11 {
		return nil, fmt.Errorf("%w: %s operand without a memory address", ErrUnrecognized, param.Syntax)
	}

	mem := &x86.Memory{
		Segment:      s.segmentOverride(),
		Displacement: s.disp,
		DispSize:     s.dispSize,
		Bits:         param.Bits,
	}

	if param.Broadcast() && s.vector == EVEX && s.evex.Br() {
		mem.Broadcast = form.Encoding.VectorSize() / param.Bits
	}

	if s.vector == EVEX && s.dispSize == 1 {
		n, err := form.DisplacementCompression(mem.Broadcast != 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
		}

		mem.Displacement *= n
	}

	mod, rm := s.modrm.Mod(), s.modrm.RM()
	vsib := param.Encoding == x86.EncodingSIB
	if s.addrSize == 16 {
		if vsib {
			return nil, fmt.Errorf("%w: vector SIB with 16-bit addressing", ErrUnrecognized)
		}

		if mod == 0b00 && rm == 0b110 {
			return mem, nil
		}

		mem.Base = base16[rm]
		if index16[rm] != nil {
			if mem.Base == nil {
				mem.Base = index16[rm]
			} else {
				mem.Index = index16[rm]
				mem.Scale = 1
			}
		}

		return mem, nil
	}

	if !s.hasSIB {
		if vsib {
			return nil, fmt.Errorf("%w: vector SIB operand without SIB byte", ErrUnrecognized)
		}

		if mod == 0b00 && rm == 0b101 {
			if s.mode.Int == 64 {
				mem.Base = x86.RIP
				if s.addrSize == 32 {
					mem.Base = x86.EIP
				}
			}

			return mem, nil
		}

		mem.Base = x86.GeneralPurpose(s.addrSize, rm|s.b<<3, true)

		return mem, nil
	}

	base := s.sib.Base()
	if !(mod == 0b00 && base == 0b101) {
		mem.Base = x86.GeneralPurpose(s.addrSize, base|s.b<<3, true)
	}

	index := s.sib.Index() | s.x<<3
	switch {
	case vsib:
		index |= s.vp << 4
		mem.Index = x86.Vector(param.Registers[0].Bits, index)
	case index != 0b100:
		mem.Index = x86.GeneralPurpose(s.addrSize, index, true)
	}

	if mem.Index != nil {
		mem.Scale = 1 << s.sib.Scale()
	}

	return mem, nil
}
