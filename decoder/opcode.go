// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"
)

// opcodeMap identifies an opcode table.
type opcodeMap uint8

const (
	mapOneByte opcodeMap = iota
	map0F
	map0F38
	map0F3A
	map3DNow // 0F 0F, selected by the trailing byte.
	mapXOP8
	mapXOP9
	mapXOPA
	numMaps
)

func (m opcodeMap) String() string {
	switch m {
	case mapOneByte:
		return "one-byte"
	case map0F:
		return "0F"
	case map0F38:
		return "0F 38"
	case map0F3A:
		return "0F 3A"
	case map3DNow:
		return "0F 0F"
	case mapXOP8:
		return "XOP 8"
	case mapXOP9:
		return "XOP 9"
	case mapXOPA:
		return "XOP A"
	default:
		return fmt.Sprintf("opcodeMap(%d)", m)
	}
}

// vectorMap returns the opcode map
// selected by a VEX, XOP, or EVEX
// map field.
func vectorMap(kind VectorKind, field byte) (opcodeMap, bool) {
	if kind == XOP {
		switch field {
		case 0x08:
			return mapXOP8, true
		case 0x09:
			return mapXOP9, true
		case 0x0a:
			return mapXOPA, true
		}

		return 0, false
	}

	switch field {
	case 1:
		return map0F, true
	case 2:
		return map0F38, true
	case 3:
		return map0F3A, true
	}

	return 0, false
}

// readOpcode reads the opcode bytes,
// selecting the opcode map. For 3DNow!
// instructions, the ModR/M byte and any
// SIB and displacement are read too, as
// they precede the opcode suffix.
func (s *state) readOpcode() error {
	if s.vector != NoVector {
		var field byte
		switch s.vector {
		case EVEX:
			field = s.evex.MMM()
		default:
			field = s.vex.M_MMMM()
		}

		m, ok := vectorMap(s.vector, field)
		if !ok {
			return fmt.Errorf("%w: %s map %#x", ErrUnrecognized, s.vector, field)
		}

		op, err := s.cur.next()
		if err != nil {
			return err
		}

		s.opMap = m
		s.opcode = op
		s.opcodeAt = s.cur.n - 1

		return nil
	}

	op, err := s.cur.next()
	if err != nil {
		return err
	}

	if op != 0x0f {
		s.opMap = mapOneByte
		s.opcode = op
		s.opcodeAt = s.cur.n - 1

		return nil
	}

	op, err = s.cur.next()
	if err != nil {
		return err
	}

	switch op {
	case 0x38, 0x3a:
		if op == 0x38 {
			s.opMap = map0F38
		} else {
			s.opMap = map0F3A
		}

		op, err = s.cur.next()
		if err != nil {
			return err
		}
	case 0x0f:
		s.opMap = map3DNow
		if err := s.readModRM(); err != nil {
			return err
		}

		if err := s.readAddress(); err != nil {
			return err
		}

		op, err = s.cur.next()
		if err != nil {
			return err
		}
	default:
		s.opMap = map0F
	}

	s.opcode = op
	s.opcodeAt = s.cur.n - 1

	return nil
}
