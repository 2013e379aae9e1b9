// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"

	"firefly-os.dev/tools/disasm/internal/x86"
)

// recognizer matches an exact byte sequence
// that is decoded without consulting the
// opcode tables.
type recognizer struct {
	uid     string
	pattern []byte

	// Set at init.
	form     *x86.Instruction
	prefixes []x86.Prefix
	opMap    opcodeMap
	opcode   byte
	modrm    int // Any fixed ModR/M byte, or -1.
}

// recognizers are checked in order, before
// normal decoding.
var recognizers = []*recognizer{
	{uid: "ENDBR64", pattern: []byte{0xf3, 0x0f, 0x1e, 0xfa}},
	{uid: "ENDBR32", pattern: []byte{0xf3, 0x0f, 0x1e, 0xfb}},
	{uid: "UD0", pattern: []byte{0x0f, 0xff}},
}

func init() {
	for _, r := range recognizers {
		r.form = x86.InstructionsByUID[r.uid]
		if r.form == nil {
			tableErrors = append(tableErrors, fmt.Errorf("recognizer: no instruction %s", r.uid))
			continue
		}

		m, opcodes, cand, err := place(r.form)
		if err != nil {
			r.form = nil
			tableErrors = append(tableErrors, fmt.Errorf("recognizer: %v", err))
			continue
		}

		r.opMap = m
		r.opcode = opcodes[0]
		r.modrm = cand.fixed
		for _, b := range r.pattern {
			if !isLegacyPrefix(b) {
				break
			}

			r.prefixes = append(r.prefixes, x86.Prefix(b))
		}
	}
}

// recognize checks the input against the
// recognizers, returning the instruction
// if one matches.
func (s *state) recognize() (*Inst, error) {
	for _, r := range recognizers {
		if r.form == nil || !r.form.Supports(s.mode) || !s.matches(r.pattern) {
			continue
		}

		if err := s.cur.skip(len(r.pattern)); err != nil {
			return nil, err
		}

		s.prefixes = r.prefixes
		for _, p := range r.prefixes {
			switch p {
			case x86.PrefixRepeat:
				s.rep = true
				s.repeat = p
			case x86.PrefixRepeatNot:
				s.repne = true
				s.repeat = p
			}
		}

		if len(r.prefixes) > 0 {
			s.mandatory = r.prefixes[len(r.prefixes)-1]
		}

		s.sizes()
		s.opMap = r.opMap
		s.opcode = r.opcode
		s.opcodeAt = len(r.pattern) - 1
		if r.modrm >= 0 {
			s.modrm = x86.ModRM(r.modrm)
			s.hasModRM = true
			s.addressRead = true
			s.modrmAt = len(r.pattern) - 1
			s.opcodeAt--
		}

		return s.inst(r.form, nil), nil
	}

	return nil, nil
}

// matches returns whether the next bytes
// of input are pattern.
func (s *state) matches(pattern []byte) bool {
	for i, want := range pattern {
		got, err := s.cur.peek(i)
		if err != nil || got != want {
			return false
		}
	}

	return true
}
