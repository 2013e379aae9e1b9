// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"
	"strings"

	"firefly-os.dev/tools/disasm/internal/x86"
)

// rule identifies a correction applied after
// the opcode tables have selected a form.
type rule uint8

const (
	ruleMoffs       rule = 1 << iota // MOV with a memory offset (A0-A3).
	ruleOperandSize                  // 16-bit equivalent forms.
	ruleVectorW                      // VEX.W outside 64-bit mode.
	ruleNOP                          // 90 with REX.B is XCHG.
)

var ruleNames = []string{"moffs", "operand size", "vector W", "nop"}

func (r rule) String() string {
	var names []string
	for i, name := range ruleNames {
		if r&(1<<i) != 0 {
			names = append(names, name)
		}
	}

	return strings.Join(names, "+")
}

// equiv16 maps the ID of each form with a
// 32-bit operand size to the equivalent
// form with a 16-bit operand size.
var equiv16 = make(map[int]*x86.Instruction)

// equivKey returns a description of inst
// that is the same for its 16-bit and
// 32-bit operand size forms.
func equivKey(inst *x86.Instruction) string {
	var b strings.Builder
	for _, field := range strings.Fields(inst.Encoding.Syntax) {
		switch field {
		case "NP":
			continue
		case "cw":
			field = "cd"
		case "iw":
			field = "id"
		}

		field = strings.Replace(field, "+rw", "+rd", 1)
		b.WriteString(field)
		b.WriteByte(' ')
	}

	b.WriteByte('|')
	for _, param := range inst.Parameters {
		uid := param.UID
		if uid == "AX" {
			uid = "EAX"
		}

		b.WriteString(strings.ReplaceAll(uid, "16", "32"))
		b.WriteByte(',')
	}

	return b.String()
}

func init() {
	forms16 := make(map[string]*x86.Instruction)
	for _, inst := range x86.Instructions {
		if !inst.OperandSize {
			continue
		}

		key := equivKey(inst)
		if forms16[key] == nil {
			forms16[key] = inst
		}
	}

	for _, inst := range x86.Instructions {
		if inst.OperandSize || inst.Encoding.REX_W || inst.Encoding.Vector() {
			continue
		}

		if form := forms16[equivKey(inst)]; form != nil {
			equiv16[inst.ID] = form
		}
	}
}

// applicableRules returns the corrections whose
// preconditions hold for an instruction
// with attribute mask m.
func (s *state) applicableRules(m attr) rule {
	var r rule
	mode16 := s.mode.Int == 16
	if s.opMap == mapOneByte && s.opcode&0xfc == 0xa0 {
		r |= ruleMoffs
	}

	// Vector encodings carry 66 in pp.
	if (mode16 || s.opsize) && m&attrOpsize == 0 && s.vector == NoVector {
		r |= ruleOperandSize
	}

	if s.vector != NoVector && s.mode.Int != 64 && s.w == 1 {
		r |= ruleVectorW
	}

	if s.opMap == mapOneByte && s.opcode == 0x90 && s.vector == NoVector && s.rex.B() {
		r |= ruleNOP
	}

	return r
}

// resolve selects the instruction form for
// the opcode. At most one rule can replace
// the form selected by the opcode tables,
// and the rules are considered in order.
func (s *state) resolve() (*x86.Instruction, error) {
	m := s.mask()
	form, err := s.lookupForm(m, s.opMap, s.opcode)
	if err != nil {
		return nil, err
	}

	mode16 := s.mode.Int == 16
	s.rules = s.applicableRules(m)
	switch {
	case s.rules&ruleMoffs != 0:
		alt := m
		if s.opsize {
			alt |= attrOpsize
		}

		if s.adsize {
			alt |= attrAdsize
		}

		if mode16 {
			alt ^= attrOpsize | attrAdsize
		}

		form, err = s.lookupForm(alt, s.opMap, s.opcode)
		if err != nil {
			return nil, err
		}
	case s.rules&ruleOperandSize != 0:
		alt, err := s.lookupForm(m|attrOpsize, s.opMap, s.opcode)
		if err != nil {
			return nil, err
		}

		// A mandatory F2 or F3 takes precedence
		// over 66.
		repeat := s.mandatory == x86.PrefixRepeat || s.mandatory == x86.PrefixRepeatNot
		switch {
		case alt == nil:
		case form != nil && equiv16[form.ID] == alt && mode16 != s.opsize:
			form = alt
		case alt.Encoding.MandatoryPrefix() == x86.PrefixOperandSize && s.opsize && !repeat:
			form = alt
		}
	case s.rules&ruleVectorW != 0:
		alt, err := s.lookupForm(m|attrREXW, s.opMap, s.opcode)
		if err != nil {
			return nil, err
		}

		if alt != nil && !alt.Only64() {
			form = alt
		}
	case s.rules&ruleNOP != 0:
		alt, err := s.lookupForm(m, mapOneByte, 0x91)
		if err != nil {
			return nil, err
		}

		if alt != nil {
			form = alt
		}
	}

	if form == nil {
		return nil, s.unresolved(m)
	}

	if !form.Supports(s.mode) {
		return nil, fmt.Errorf("%w: %s is not valid in %d-bit mode", ErrInvalidMode, form.Syntax, s.mode.Int)
	}

	return form, nil
}

// unresolved returns the error for an
// opcode with no valid form, checking
// whether it would be valid if the CPU
// mode were (or were not) 64-bit mode.
func (s *state) unresolved(m attr) error {
	form, err := s.lookupForm(m^attr64, s.opMap, s.opcode)
	if err != nil {
		return err
	}

	if form != nil {
		return fmt.Errorf("%w: %s is not valid in %d-bit mode", ErrInvalidMode, form.Syntax, s.mode.Int)
	}

	return fmt.Errorf("%w: opcode %#02x in map %s", ErrUnrecognized, s.opcode, s.opMap)
}
