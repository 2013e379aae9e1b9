// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package printer renders decoded x86 instructions as assembly
// text in Intel, AT&T, or MASM syntax.
//
// Print never fails. An instruction that cannot be rendered is
// printed as data, using the .byte directive.
package printer

import (
	"fmt"
	"strings"

	"firefly-os.dev/tools/disasm/decoder"
	"firefly-os.dev/tools/disasm/internal/x86"
)

// Syntax selects an assembly dialect.
type Syntax uint8

const (
	Intel Syntax = iota
	ATT
	MASM
)

func (s Syntax) String() string {
	switch s {
	case Intel:
		return "intel"
	case ATT:
		return "att"
	case MASM:
		return "masm"
	default:
		return fmt.Sprintf("Syntax(%d)", s)
	}
}

// ParseSyntax returns the syntax with the
// given name.
func ParseSyntax(s string) (Syntax, error) {
	switch strings.ToLower(s) {
	case "intel":
		return Intel, nil
	case "att", "at&t", "gnu":
		return ATT, nil
	case "masm":
		return MASM, nil
	}

	return 0, fmt.Errorf("unrecognised syntax %q", s)
}

// Options control the rendering.
type Options struct {
	Syntax Syntax

	// UnsignedImmediates prints every
	// immediate as an unsigned value,
	// masked to the operand size.
	UnsignedImmediates bool
}

// Text is a rendered instruction.
type Text struct {
	Prefixes []string // Any printed prefixes, such as "lock".
	Mnemonic string
	Operands string
	Detail   *Detail // Nil for data.
}

func (t *Text) String() string {
	var b strings.Builder
	for _, prefix := range t.Prefixes {
		b.WriteString(prefix)
		b.WriteByte(' ')
	}

	b.WriteString(t.Mnemonic)
	if t.Operands != "" {
		b.WriteByte(' ')
		b.WriteString(t.Operands)
	}

	return b.String()
}

// Print renders the instruction.
//
// Print is safe for concurrent use.
func Print(inst *decoder.Inst, opts Options) *Text {
	if inst == nil {
		return Data(nil, opts)
	}

	form := inst.Form
	if form == nil || form.ID < 0 || form.ID >= len(x86.Instructions) || x86.Instructions[form.ID] != form || len(inst.Args) != len(form.Parameters) {
		return Data(inst.Bytes, opts)
	}

	b := &builder{
		opts:   opts,
		inst:   inst,
		form:   form,
		args:   inst.Args,
		params: form.Parameters,
	}

	text := &Text{
		Prefixes: b.prefixes(),
		Mnemonic: mnemonic(form, inst.Mode, opts.Syntax),
	}

	if name, cond, ok := matchAlias(form, inst.Args); ok {
		text.Mnemonic = name
		b.condition = cond
		b.args = b.args[:len(b.args)-1]
		b.params = b.params[:len(b.params)-1]
	}

	text.Operands = b.operands()
	text.Detail = b.detail()

	return text
}

// Data renders bytes that are not an
// instruction.
func Data(data []byte, opts Options) *Text {
	b := &builder{opts: opts}
	var s strings.Builder
	for i, v := range data {
		if i > 0 {
			s.WriteString(", ")
		}

		s.WriteString(b.hex(uint64(v)))
	}

	return &Text{Mnemonic: ".byte", Operands: s.String()}
}

// builder holds the state for rendering
// one instruction.
type builder struct {
	opts      Options
	inst      *decoder.Inst
	form      *x86.Instruction
	args      []x86.Arg
	params    []*x86.Parameter
	condition string // Any predicate folded into the mnemonic.
}

// prefixes returns the legacy prefixes
// to print. Only the prefixes the
// instruction accepts are printed.
func (b *builder) prefixes() []string {
	var out []string
	if b.inst.HasPrefix(x86.PrefixLock) && b.form.Lock {
		out = append(out, "lock")
	}

	var repeat x86.Prefix
	for _, p := range b.inst.Prefixes {
		if p == x86.PrefixRepeat || p == x86.PrefixRepeatNot {
			repeat = p
		}
	}

	switch {
	case repeat == x86.PrefixRepeat && b.form.RepE:
		out = append(out, "repe")
	case repeat == x86.PrefixRepeat && b.form.Rep:
		out = append(out, "rep")
	case repeat == x86.PrefixRepeatNot && (b.form.RepE || b.form.Rep):
		// F2 repeats MOVS, STOS, and the
		// like just as F3 does.
		out = append(out, "repne")
	}

	return out
}

// operands renders the operand list.
func (b *builder) operands() string {
	if len(b.args) == 0 {
		return ""
	}

	parts := make([]string, len(b.args))
	for i, arg := range b.args {
		parts[i] = b.operand(i, arg)
	}

	if b.inst.Rounding != decoder.RoundNone {
		parts = append(parts, "{"+b.inst.Rounding.String()+"}")
	}

	if b.opts.Syntax == ATT {
		for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
			parts[i], parts[j] = parts[j], parts[i]
		}

		return strings.Join(parts, ",")
	}

	return strings.Join(parts, ", ")
}

// operand renders the i'th operand.
func (b *builder) operand(i int, arg x86.Arg) string {
	var s string
	switch arg := arg.(type) {
	case *x86.Register:
		s = b.register(arg)
		if b.indirect() {
			s = "*" + s
		}
	case *x86.Memory:
		if b.opts.Syntax == ATT {
			s = b.attMemory(arg)
			if b.indirect() {
				s = "*" + s
			}
		} else {
			s = b.intelMemory(arg)
		}
	case x86.Imm:
		s = b.immediate(b.params[i], int64(arg))
	default:
		s = fmt.Sprint(arg)
	}

	// EVEX masking decorates the destination.
	if i == 0 && b.inst.Mask != nil {
		s += " {" + b.register(b.inst.Mask) + "}"
		if b.inst.Zeroing {
			s += " {z}"
		}
	}

	return s
}

// indirect returns whether the instruction
// is a branch through a register or memory
// operand, which AT&T marks with '*'.
func (b *builder) indirect() bool {
	if b.opts.Syntax != ATT {
		return false
	}

	switch b.form.Mnemonic {
	case "call", "jmp":
		return true
	}

	return false
}

func (b *builder) register(reg *x86.Register) string {
	if b.opts.Syntax == ATT {
		return "%" + reg.Name
	}

	return reg.Name
}

// immediate renders an immediate operand.
func (b *builder) immediate(param *x86.Parameter, v int64) string {
	var s string
	switch {
	case param.Type == x86.TypeRelativeAddress:
		// Branch targets are addresses.
		return b.hex(uint64(v))
	case v < 0 && b.unsigned(param):
		s = b.unsignedNumber(uint64(v) & sizeMask(b.immediateSize(param)))
	default:
		s = b.signedNumber(v)
	}

	if b.opts.Syntax == ATT {
		return "$" + s
	}

	return s
}

// unsigned returns whether an immediate
// is printed without a sign.
func (b *builder) unsigned(param *x86.Parameter) bool {
	return b.opts.UnsignedImmediates || param.Type == x86.TypeUnsignedImmediate || bitwise[b.form.Mnemonic]
}

// immediateSize returns the width in bits
// to which an immediate is masked, which
// is the size of the destination where
// there is one.
func (b *builder) immediateSize(param *x86.Parameter) int {
	for _, p := range b.params {
		if p.Encoding == x86.EncodingImmediate || p.Type == x86.TypeSignedImmediate || p.Type == x86.TypeUnsignedImmediate {
			continue
		}

		if p.Bits > 0 && p.Bits <= 64 {
			return p.Bits
		}
	}

	return param.Bits
}

// bitwise lists the logic instructions,
// whose immediates are bit patterns.
var bitwise = map[string]bool{
	"and":  true,
	"or":   true,
	"xor":  true,
	"test": true,
	"not":  true,
	"andn": true,
}

func sizeMask(bits int) uint64 {
	if bits <= 0 || bits >= 64 {
		return ^uint64(0)
	}

	return 1<<bits - 1
}
