// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package printer

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"firefly-os.dev/tools/disasm/decoder"
	"firefly-os.dev/tools/disasm/internal/x86"
)

func TestDetail(t *testing.T) {
	type operand struct {
		Kind   OperandKind
		Size   int
		Access Access
	}

	tests := []struct {
		Name      string
		Mode      x86.Mode
		Code      string
		Operands  []operand
		Read      Flags
		Written   Flags
		Groups    Groups
		Condition string
	}{
		{
			Name:     "lock add",
			Mode:     x86.Mode64,
			Code:     "f0 01 00",
			Operands: []operand{{KindMemory, 32, ReadWrite}, {KindRegister, 32, Read}},
			Written:  CF | PF | AF | ZF | SF | OF,
		},
		{
			Name:     "mov",
			Mode:     x86.Mode64,
			Code:     "48 89 c8",
			Operands: []operand{{KindRegister, 64, Write}, {KindRegister, 64, Read}},
		},
		{
			Name:     "cmp",
			Mode:     x86.Mode64,
			Code:     "39 c8",
			Operands: []operand{{KindRegister, 32, Read}, {KindRegister, 32, Read}},
			Written:  CF | PF | AF | ZF | SF | OF,
		},
		{
			Name:     "inc",
			Mode:     x86.Mode32,
			Code:     "ff 00",
			Operands: []operand{{KindMemory, 32, ReadWrite}},
			Written:  PF | AF | ZF | SF | OF,
		},
		{
			Name:     "adc imm",
			Mode:     x86.Mode64,
			Code:     "83 d0 01",
			Operands: []operand{{KindRegister, 32, ReadWrite}, {KindImmediate, 32, Read}},
			Read:     CF,
			Written:  CF | PF | AF | ZF | SF | OF,
		},
		{
			Name:     "add imm sign extended",
			Mode:     x86.Mode64,
			Code:     "48 83 c0 ff",
			Operands: []operand{{KindRegister, 64, ReadWrite}, {KindImmediate, 64, Read}},
			Written:  CF | PF | AF | ZF | SF | OF,
		},
		{
			Name:     "add al imm",
			Mode:     x86.Mode64,
			Code:     "04 01",
			Operands: []operand{{KindRegister, 8, ReadWrite}, {KindImmediate, 8, Read}},
			Written:  CF | PF | AF | ZF | SF | OF,
		},
		{
			Name:     "shl by one",
			Mode:     x86.Mode64,
			Code:     "d1 e0",
			Operands: []operand{{KindRegister, 32, ReadWrite}, {KindImmediate, 8, Read}},
			Written:  CF | PF | AF | ZF | SF | OF,
		},
		{
			Name:     "div",
			Mode:     x86.Mode64,
			Code:     "f7 f1",
			Operands: []operand{{KindRegister, 32, Read}},
			Written:  CF | PF | AF | ZF | SF | OF,
		},
		{
			Name:     "mul memory",
			Mode:     x86.Mode32,
			Code:     "f6 20",
			Operands: []operand{{KindMemory, 8, Read}},
			Written:  CF | PF | AF | ZF | SF | OF,
		},
		{
			Name:     "imul three operands",
			Mode:     x86.Mode64,
			Code:     "6b c1 10",
			Operands: []operand{{KindRegister, 32, Write}, {KindRegister, 32, Read}, {KindImmediate, 32, Read}},
			Written:  CF | PF | AF | ZF | SF | OF,
		},
		{
			Name:     "imul two operands",
			Mode:     x86.Mode64,
			Code:     "0f af c1",
			Operands: []operand{{KindRegister, 32, ReadWrite}, {KindRegister, 32, Read}},
			Written:  CF | PF | AF | ZF | SF | OF,
		},
		{
			Name:     "nop memory",
			Mode:     x86.Mode64,
			Code:     "0f 1f 00",
			Operands: []operand{{KindMemory, 32, 0}},
		},
		{
			Name:     "prefetcht0",
			Mode:     x86.Mode64,
			Code:     "0f 18 08",
			Operands: []operand{{KindMemory, 8, Read}},
		},
		{
			Name:     "clflush",
			Mode:     x86.Mode64,
			Code:     "0f ae 38",
			Operands: []operand{{KindMemory, 8, Read}},
		},
		{
			Name:     "fld",
			Mode:     x86.Mode32,
			Code:     "d9 00",
			Operands: []operand{{KindMemory, 32, Read}},
		},
		{
			Name:     "fstp",
			Mode:     x86.Mode32,
			Code:     "dd 18",
			Operands: []operand{{KindMemory, 64, Write}},
		},
		{
			Name:     "lodsb",
			Mode:     x86.Mode64,
			Code:     "ac",
			Operands: []operand{{KindRegister, 8, Write}, {KindMemory, 8, Read}},
			Read:     DF,
		},
		{
			Name:     "scasb",
			Mode:     x86.Mode64,
			Code:     "ae",
			Operands: []operand{{KindRegister, 8, Read}, {KindMemory, 8, Read}},
			Read:     DF,
			Written:  CF | PF | AF | ZF | SF | OF,
		},
		{
			Name:     "movsd string",
			Mode:     x86.Mode32,
			Code:     "a5",
			Operands: []operand{{KindMemory, 32, Write}, {KindMemory, 32, Read}},
			Read:     DF,
		},
		{
			Name:     "je",
			Mode:     x86.Mode64,
			Code:     "74 00",
			Operands: []operand{{KindImmediate, 8, Read}},
			Read:     ZF,
			Groups:   GroupJump | GroupBranchRelative,
		},
		{
			Name:     "call",
			Mode:     x86.Mode64,
			Code:     "e8 00 00 00 00",
			Operands: []operand{{KindImmediate, 32, Read}},
			Groups:   GroupCall | GroupBranchRelative,
		},
		{
			Name:     "indirect call",
			Mode:     x86.Mode64,
			Code:     "ff d0",
			Operands: []operand{{KindRegister, 64, Read}},
			Groups:   GroupCall,
		},
		{
			Name:   "ret",
			Mode:   x86.Mode64,
			Code:   "c3",
			Groups: GroupRet,
		},
		{
			Name:     "rep movsb",
			Mode:     x86.Mode64,
			Code:     "f3 a4",
			Operands: []operand{{KindMemory, 8, Write}, {KindMemory, 8, Read}},
			Read:     DF,
		},
		{
			Name:     "sse movsd",
			Mode:     x86.Mode64,
			Code:     "f2 0f 10 c1",
			Operands: []operand{{KindRegister, 128, ReadWrite}, {KindRegister, 128, Read}},
		},
		{
			Name:     "vaddps",
			Mode:     x86.Mode64,
			Code:     "c5 f8 58 c1",
			Operands: []operand{{KindRegister, 128, Write}, {KindRegister, 128, Read}, {KindRegister, 128, Read}},
		},
		{
			Name:      "cmpps alias",
			Mode:      x86.Mode64,
			Code:      "0f c2 c1 02",
			Operands:  []operand{{KindRegister, 128, ReadWrite}, {KindRegister, 128, Read}},
			Condition: "le",
		},
		{
			Name:     "sete",
			Mode:     x86.Mode64,
			Code:     "0f 94 c0",
			Operands: []operand{{KindRegister, 8, Write}},
			Read:     ZF,
		},
		{
			Name:     "cmovl",
			Mode:     x86.Mode64,
			Code:     "0f 4c c1",
			Operands: []operand{{KindRegister, 32, ReadWrite}, {KindRegister, 32, Read}},
			Read:     SF | OF,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			inst := decode(t, test.Mode, 0, test.Code)
			d := Print(inst, Options{}).Detail
			var got []operand
			for _, op := range d.Operands {
				got = append(got, operand{op.Kind, op.Size, op.Access})
			}

			if diff := cmp.Diff(test.Operands, got); diff != "" {
				t.Errorf("Print(%x): operands (-want, +got)\n%s", inst.Bytes, diff)
			}

			if d.FlagsRead != test.Read || d.FlagsWritten != test.Written {
				t.Errorf("Print(%x): got flags read %s, written %s, want %s, %s", inst.Bytes, d.FlagsRead, d.FlagsWritten, test.Read, test.Written)
			}

			if d.Groups != test.Groups {
				t.Errorf("Print(%x): got groups %q, want %q", inst.Bytes, d.Groups, test.Groups)
			}

			if d.Condition != test.Condition {
				t.Errorf("Print(%x): got condition %q, want %q", inst.Bytes, d.Condition, test.Condition)
			}
		})
	}
}

func TestDetailEncoding(t *testing.T) {
	inst := decode(t, x86.Mode64, 0, "62 f1 7c d9 58 40 01")
	d := Print(inst, Options{}).Detail
	if d.Mask != x86.RegistersOpmask[1] || !d.Zeroing || d.Broadcast != 16 {
		t.Errorf("EVEX detail: got mask %v, zeroing %v, broadcast %d", d.Mask, d.Zeroing, d.Broadcast)
	}

	if !d.HasModRM || d.ModRM != 0x40 || d.Disp != 1 || d.DispSize != 1 {
		t.Errorf("EVEX detail: got ModR/M %v, displacement %d (%d bytes)", d.ModRM, d.Disp, d.DispSize)
	}

	inst = decode(t, x86.Mode64, 0, "62 f1 7c 38 58 c2")
	d = Print(inst, Options{}).Detail
	if d.Rounding != decoder.RoundDown {
		t.Errorf("EVEX detail: got rounding %v, want %v", d.Rounding, decoder.RoundDown)
	}

	inst = decode(t, x86.Mode64, 0, "66 48 8b 04 88")
	d = Print(inst, Options{}).Detail
	want := []x86.Prefix{x86.PrefixOperandSize}
	if diff := cmp.Diff(want, d.Prefixes); diff != "" {
		t.Errorf("prefixes (-want, +got)\n%s", diff)
	}

	if d.REX != 0x48 || d.OpSize != 64 || d.AddrSize != 64 || !d.HasSIB || d.SIB != 0x88 {
		t.Errorf("got REX %v, sizes %d/%d, SIB %v", d.REX, d.OpSize, d.AddrSize, d.SIB)
	}

	inst = decode(t, x86.Mode64, 0, "66 0f 3a 44 c1 00")
	d = Print(inst, Options{}).Detail
	if len(d.Features) == 0 {
		t.Errorf("pclmulqdq: no CPUID features")
	}
}

func TestFlagsString(t *testing.T) {
	if got, want := (CF | ZF | OF).String(), "CF|ZF|OF"; got != want {
		t.Errorf("Flags.String(): got %q, want %q", got, want)
	}

	if got, want := (GroupJump | GroupBranchRelative).String(), "jump|branch_relative"; got != want {
		t.Errorf("Groups.String(): got %q, want %q", got, want)
	}
}
