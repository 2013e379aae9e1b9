// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package printer

import (
	"fmt"
	"strings"

	"firefly-os.dev/tools/disasm/internal/x86"
)

// sizeKeyword returns the Intel name for
// a memory operand of the given size.
func sizeKeyword(bits int) string {
	switch bits {
	case 8:
		return "byte"
	case 16:
		return "word"
	case 32:
		return "dword"
	case 48:
		return "fword"
	case 64:
		return "qword"
	case 80:
		return "tbyte"
	case 128:
		return "xmmword"
	case 256:
		return "ymmword"
	case 512:
		return "zmmword"
	}

	return ""
}

// intelMemory renders a memory operand in
// Intel or MASM syntax.
func (b *builder) intelMemory(m *x86.Memory) string {
	plus, minus := " + ", " - "
	if b.opts.Syntax == MASM {
		plus, minus = "+", "-"
	}

	var s strings.Builder
	if size := sizeKeyword(m.Bits); size != "" {
		s.WriteString(size)
		s.WriteString(" ptr ")
	}

	if m.Segment != nil {
		s.WriteString(m.Segment.Name)
		s.WriteByte(':')
	}

	s.WriteByte('[')
	switch {
	case m.Absolute, m.Base == nil && m.Index == nil:
		s.WriteString(b.hex(uint64(m.Displacement) & sizeMask(b.inst.AddrSize)))
	default:
		sep := ""
		if m.Base != nil {
			s.WriteString(m.Base.Name)
			sep = plus
		}

		if m.Index != nil {
			s.WriteString(sep)
			s.WriteString(m.Index.Name)
			if m.Scale > 1 {
				fmt.Fprintf(&s, "*%d", m.Scale)
			}
		}

		switch {
		case m.Displacement > 0:
			s.WriteString(plus)
			s.WriteString(b.unsignedNumber(uint64(m.Displacement)))
		case m.Displacement < 0:
			s.WriteString(minus)
			s.WriteString(b.unsignedNumber(uint64(-m.Displacement)))
		}
	}

	s.WriteByte(']')
	if m.Broadcast > 0 {
		fmt.Fprintf(&s, "{1to%d}", m.Broadcast)
	}

	return s.String()
}
