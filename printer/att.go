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

// attMemory renders a memory operand as
// segment:disp(base,index,scale).
func (b *builder) attMemory(m *x86.Memory) string {
	var s strings.Builder
	if m.Segment != nil {
		s.WriteString("%")
		s.WriteString(m.Segment.Name)
		s.WriteByte(':')
	}

	switch {
	case m.Absolute, m.Base == nil && m.Index == nil:
		s.WriteString(b.hex(uint64(m.Displacement) & sizeMask(b.inst.AddrSize)))
	default:
		if m.Displacement != 0 {
			s.WriteString(b.signedNumber(m.Displacement))
		}

		s.WriteByte('(')
		if m.Base != nil {
			s.WriteString("%")
			s.WriteString(m.Base.Name)
		}

		if m.Index != nil {
			s.WriteString(",%")
			s.WriteString(m.Index.Name)
			if m.Scale > 1 {
				fmt.Fprintf(&s, ",%d", m.Scale)
			}
		}

		s.WriteByte(')')
	}

	if m.Broadcast > 0 {
		fmt.Fprintf(&s, "{1to%d}", m.Broadcast)
	}

	return s.String()
}

// attRenames lists the AT&T names of
// instructions that differ from Intel.
var attRenames = map[string]string{
	"cbw":    "cbtw",
	"cwde":   "cwtl",
	"cdqe":   "cltq",
	"cwd":    "cwtd",
	"cdq":    "cltd",
	"cqo":    "cqto",
	"movsxd": "movslq",
}

// noSuffix lists instruction prefixes
// whose memory operands do not take an
// AT&T size suffix.
var noSuffix = []string{
	"prefetch",
	"clflush",
	"clwb",
	"cldemote",
	"invlpg",
	"set",
}

// x87Suffixes maps the x87 memory operands
// to their AT&T mnemonic suffix.
var x87Suffixes = map[*x86.Parameter]string{
	x86.ParamM32fp:  "s",
	x86.ParamM64fp:  "l",
	x86.ParamM80fp:  "t",
	x86.ParamM16int: "s",
	x86.ParamM32int: "l",
	x86.ParamM64int: "ll",
}

// sizeSuffix returns the AT&T suffix for
// an integer operand size.
func sizeSuffix(bits int) string {
	switch bits {
	case 8:
		return "b"
	case 16:
		return "w"
	case 32:
		return "l"
	case 64:
		return "q"
	}

	return ""
}

// attMnemonic returns the AT&T mnemonic for
// an instruction form in the given mode.
// A size suffix is added only where no
// register operand determines the size.
func attMnemonic(form *x86.Instruction, mode x86.Mode) string {
	name := form.Mnemonic
	if renamed, ok := attRenames[name]; ok {
		return renamed
	}

	params := form.Parameters
	switch name {
	case "movzx", "movsx":
		if len(params) == 2 {
			return name[:4] + sizeSuffix(params[1].Bits) + sizeSuffix(params[0].Bits)
		}
	case "mov":
		for _, param := range params {
			if mode.Int == 64 && (param.Type == x86.TypeMemoryOffset || param == x86.ParamImm64) {
				return "movabs"
			}
		}
	}

	var register, str bool
	var memory, immediate *x86.Parameter
	for _, param := range params {
		switch param.Type {
		case x86.TypeRegister, x86.TypeStackIndex:
			register = true
		case x86.TypeStringDst, x86.TypeStringSrc:
			str = true
		case x86.TypeMemory:
			if suffix, ok := x87Suffixes[param]; ok {
				return name + suffix
			}

			if memory == nil {
				memory = param
			}
		case x86.TypeSignedImmediate, x86.TypeUnsignedImmediate:
			immediate = param
		}
	}

	switch {
	case str:
		// movsd is movsl.
		if strings.HasSuffix(name, "d") {
			return name[:len(name)-1] + "l"
		}

		return name
	case register, form.Encoding.Vector():
		return name
	}

	for _, prefix := range noSuffix {
		if strings.HasPrefix(name, prefix) {
			return name
		}
	}

	switch {
	case memory != nil:
		switch memory {
		case x86.ParamM8, x86.ParamM16, x86.ParamM32, x86.ParamM64:
			return name + sizeSuffix(memory.Bits)
		}
	case immediate != nil && name == "push":
		switch {
		case form.OperandSize:
			return name + "w"
		case mode.Int == 64:
			return name + "q"
		default:
			return name + "l"
		}
	}

	return name
}
