// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"fmt"
	"strings"
)

// Arg is a decoded operand. It is one
// of *Register, *Memory, or Imm.
type Arg interface {
	isArg()
	String() string
}

// Imm is an immediate operand. Relative
// branch targets are stored as the
// absolute destination address.
type Imm int64

func (i Imm) isArg()         {}
func (i Imm) String() string { return fmt.Sprintf("%#x", int64(i)) }

// Memory represents an x86 memory
// reference.
type Memory struct {
	Segment      *Register // Any segment override.
	Base         *Register
	Index        *Register
	Scale        uint8
	Displacement int64
	DispSize     int  // The encoded displacement size in bytes.
	Bits         int  // The size of the memory access, or zero if unknown.
	Broadcast    int  // The number of broadcast elements, or zero.
	Absolute     bool // Whether the address is a bare offset, as in moffs operands.
}

func (m *Memory) isArg() {}

func (m *Memory) String() string {
	var s strings.Builder
	if m.Segment != nil {
		s.WriteString(m.Segment.Name)
		s.WriteByte(':')
	}

	s.WriteByte('[')
	plus := false
	if m.Base != nil {
		s.WriteString(m.Base.Name)
		plus = true
	}

	if m.Index != nil {
		if plus {
			s.WriteByte('+')
		}

		fmt.Fprintf(&s, "%s*%d", m.Index.Name, m.Scale)
		plus = true
	}

	if m.Displacement != 0 || !plus {
		if plus && m.Displacement >= 0 {
			s.WriteByte('+')
		}

		fmt.Fprintf(&s, "%#x", m.Displacement)
	}

	s.WriteByte(']')

	return s.String()
}

func (m *Memory) GoString() string {
	first := true
	var s strings.Builder
	join := func() {
		if !first {
			s.WriteString(", ")
		}

		first = false
	}

	s.WriteByte('{')
	if m.Segment != nil {
		join()
		fmt.Fprintf(&s, "Segment: %s", m.Segment)
	}
	if m.Base != nil {
		join()
		fmt.Fprintf(&s, "Base: %s", m.Base)
	}
	if m.Index != nil {
		join()
		fmt.Fprintf(&s, "Index: %s", m.Index)
	}
	if m.Scale != 0 {
		join()
		fmt.Fprintf(&s, "Scale: %d", m.Scale)
	}
	if m.Displacement != 0 || first {
		join()
		fmt.Fprintf(&s, "Displacement: %#x", m.Displacement)
	}
	if m.Bits != 0 {
		join()
		fmt.Fprintf(&s, "Bits: %d", m.Bits)
	}
	if m.Broadcast != 0 {
		join()
		fmt.Fprintf(&s, "Broadcast: 1to%d", m.Broadcast)
	}
	s.WriteByte('}')

	return s.String()
}
