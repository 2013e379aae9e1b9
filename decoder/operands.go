// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"

	"firefly-os.dev/tools/disasm/internal/x86"
)

// readImmediates reads any code offset,
// memory offset, immediate, and /is4 byte,
// in the order they are encoded.
func (s *state) readImmediates(form *x86.Instruction) error {
	for _, param := range form.Parameters {
		var size int
		signed := true
		switch param.Encoding {
		case x86.EncodingCodeOffset:
			if param.Type == x86.TypeFarPointer {
				return fmt.Errorf("%w: far pointer operand in %s", ErrUnsupported, form.Mnemonic)
			}

			size = param.Bits / 8
		case x86.EncodingDisplacement:
			size = s.addrSize / 8
			signed = false
		case x86.EncodingImmediate:
			size = param.Bits / 8
			signed = param.Type == x86.TypeSignedImmediate
		case x86.EncodingVEXis4:
			size = 1
			signed = false
		default:
			continue
		}

		if s.nimms == len(s.imms) {
			return fmt.Errorf("%w: %s has more than %d immediates", ErrUnsupported, form.Mnemonic, len(s.imms))
		}

		var v int64
		var err error
		if signed {
			v, err = s.cur.int(size)
		} else {
			var u uint64
			u, err = s.cur.uint(size)
			v = int64(u)
		}

		if err != nil {
			return err
		}

		s.imms[s.nimms] = v
		s.nimms++
	}

	return nil
}

// duplicates lists the parameter encodings
// that supply at most one operand. Any later
// operand with the same encoding repeats the
// first.
var duplicates = map[x86.ParameterEncoding]bool{
	x86.EncodingVEXvvvv: true,
	x86.EncodingModRMreg: true,
	x86.EncodingModRMrm:  true,
}

// operands translates the operands of the
// instruction.
func (s *state) operands(form *x86.Instruction) ([]x86.Arg, error) {
	args := make([]x86.Arg, 0, len(form.Parameters))
	seen := make(map[x86.ParameterEncoding]x86.Arg)
	imm := 0
	for _, param := range form.Parameters {
		if prev, ok := seen[param.Encoding]; ok && duplicates[param.Encoding] {
			args = append(args, prev)
			continue
		}

		var arg x86.Arg
		var err error
		switch param.Encoding {
		case x86.EncodingCodeOffset, x86.EncodingDisplacement, x86.EncodingImmediate, x86.EncodingVEXis4:
			arg, err = s.immediate(param, s.imms[imm])
			imm++
		default:
			arg, err = s.operand(form, param)
		}

		if err != nil {
			return nil, err
		}

		seen[param.Encoding] = arg
		args = append(args, arg)
	}

	return args, nil
}

// immediate translates an operand encoded
// after the opcode and addressing bytes.
func (s *state) immediate(param *x86.Parameter, v int64) (x86.Arg, error) {
	switch param.Encoding {
	case x86.EncodingCodeOffset:
		target := s.cur.addr + uint64(s.cur.n) + uint64(v)
		if s.mode.Int != 64 {
			if s.opSize == 16 {
				target &= 0xffff
			} else {
				target &= 0xffff_ffff
			}
		}

		return x86.Imm(target), nil
	case x86.EncodingDisplacement:
		return &x86.Memory{
			Segment:      s.segmentOverride(),
			Displacement: v,
			DispSize:     s.addrSize / 8,
			Bits:         param.Bits,
			Absolute:     true,
		}, nil
	case x86.EncodingVEXis4:
		index := byte(v) >> 4
		if s.mode.Int != 64 {
			index &= 0b111
		}

		return x86.Vector(param.Bits, index), nil
	default:
		return x86.Imm(v), nil
	}
}

// operand translates an operand encoded in
// the prefixes, opcode, or addressing bytes.
func (s *state) operand(form *x86.Instruction, param *x86.Parameter) (x86.Arg, error) {
	switch param.Encoding {
	case x86.EncodingNone:
		switch param.Type {
		case x86.TypeRegister, x86.TypeStackIndex:
			return param.Registers[0], nil
		case x86.TypeStringDst:
			return s.stringOperand(param, true), nil
		case x86.TypeStringSrc:
			return s.stringOperand(param, false), nil
		case x86.TypeSignedImmediate:
			return x86.Imm(1), nil
		}
	case x86.EncodingVEXvvvv:
		return s.register(param, s.vvvv|s.vp<<4)
	case x86.EncodingRegisterModifier:
		return x86.GeneralPurpose(param.Bits, s.opcode&0b111|s.b<<3, s.rex != 0), nil
	case x86.EncodingStackIndex:
		return x86.RegistersStackIndices[s.modrm.RM()], nil
	case x86.EncodingModRMreg:
		return s.register(param, s.modrm.Reg()|s.r<<3|s.rp<<4)
	case x86.EncodingModRMrm:
		if param.Type == x86.TypeMemory {
			return s.memory(form, param)
		}

		index := s.modrm.RM() | s.b<<3
		if s.vector == EVEX {
			index |= s.x << 4
		}

		return s.register(param, index)
	case x86.EncodingSIB:
		return s.memory(form, param)
	}

	return nil, fmt.Errorf("%w: %s operand %s", ErrUnsupported, form.Mnemonic, param.Syntax)
}

// register returns the register in the
// parameter's register file with the
// given encoding.
func (s *state) register(param *x86.Parameter, index byte) (*x86.Register, error) {
	file := param.Registers
	switch file[0].Type {
	case x86.TypeGeneralPurpose:
		return x86.GeneralPurpose(param.Bits, index, s.rex != 0), nil
	case x86.TypeXMM, x86.TypeYMM, x86.TypeZMM:
		return x86.Vector(param.Bits, index), nil
	case x86.TypeSegment:
		index &= 0b111
		if int(index) >= len(file) {
			return nil, fmt.Errorf("%w: segment register %d", ErrInvalidMode, index)
		}

		return file[index], nil
	case x86.TypeControl, x86.TypeDebug:
		reg := file[index&0b1111]
		if reg.MinMode > s.mode.Int {
			return nil, fmt.Errorf("%w: %s", ErrInvalidMode, reg.Name)
		}

		return reg, nil
	default:
		return file[index&0b111], nil
	}
}

// stringOperand returns the memory operand
// implied by a string instruction.
func (s *state) stringOperand(param *x86.Parameter, dst bool) *x86.Memory {
	mem := &x86.Memory{Bits: param.Bits}
	switch s.addrSize {
	case 16:
		mem.Base = param.Registers[0]
	case 32:
		mem.Base = param.Registers[1]
	default:
		mem.Base = param.Registers[2]
	}

	switch {
	case dst && s.mode.Int != 64:
		mem.Segment = x86.ES
	case !dst:
		mem.Segment = s.segmentOverride()
		if mem.Segment == nil && s.mode.Int != 64 {
			mem.Segment = x86.DS
		}
	}

	return mem
}
