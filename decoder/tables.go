// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"fmt"
	"strconv"
	"strings"

	"firefly-os.dev/tools/disasm/internal/x86"
)

// decisionKind describes how a decision
// selects a form using the ModR/M byte.
type decisionKind uint8

const (
	decisionOne       decisionKind = iota // One form, whatever the ModR/M byte.
	decisionSplitRM                       // Memory form, then register form.
	decisionSplitReg                      // Eight memory forms by reg, then eight register forms by reg.
	decisionSplitMisc                     // Eight memory forms by reg, then 64 register forms by reg and r/m.
	decisionFull                          // One form for each ModR/M value.
)

func (k decisionKind) String() string {
	switch k {
	case decisionOne:
		return "ONE"
	case decisionSplitRM:
		return "SPLITRM"
	case decisionSplitReg:
		return "SPLITREG"
	case decisionSplitMisc:
		return "SPLITMISC"
	case decisionFull:
		return "FULL"
	default:
		return fmt.Sprintf("decisionKind(%d)", k)
	}
}

// decision selects the instruction form
// for one opcode in one context. A nil
// form means the encoding is invalid.
type decision struct {
	kind  decisionKind
	modrm bool // Whether the ModR/M byte must be read.
	forms []*x86.Instruction
}

func (d *decision) lookup(modrm x86.ModRM) *x86.Instruction {
	m := byte(modrm)
	switch d.kind {
	case decisionOne:
		return d.forms[0]
	case decisionSplitRM:
		if m >= 0xc0 {
			return d.forms[1]
		}

		return d.forms[0]
	case decisionSplitReg:
		if m >= 0xc0 {
			return d.forms[8+modrm.Reg()]
		}

		return d.forms[modrm.Reg()]
	case decisionSplitMisc:
		if m >= 0xc0 {
			return d.forms[8+m&0x3f]
		}

		return d.forms[modrm.Reg()]
	default:
		return d.forms[m]
	}
}

// opcodeTable holds the decisions for
// each opcode in one map and context.
type opcodeTable [256]*decision

// tables holds the opcode tables for each
// map, indexed by context number. A nil
// table has no valid opcodes.
var tables [numMaps][]*opcodeTable

// tableErrors records instruction forms
// that could not be placed in the opcode
// tables. Those forms are never decoded.
var tableErrors []error

// usesModRM records whether each form,
// by ID, is followed by a ModR/M byte.
var usesModRM []bool

// candidate is an instruction form placed
// in an opcode slot.
type candidate struct {
	inst      *x86.Instruction
	exact     bool // No register in the opcode byte.
	modrm     bool // Whether the form has a ModR/M byte.
	fixed     int  // Any fixed ModR/M byte, or -1.
	stackReg  int  // Any fixed reg field for an x87 stack index form, or -1.
	broadcast bool // Whether the form has a broadcast operand.
	anyMod    bool // Whether r/m names a register whatever the mod field.
}

// ignoresMod returns whether the r/m field of
// the form always names a register, whatever
// the mod field holds. This is true of MOV to
// and from the control and debug registers.
func ignoresMod(inst *x86.Instruction) bool {
	op := inst.Encoding.Opcode
	return !inst.Encoding.Vector() && len(op) == 2 && op[0] == 0x0f && op[1]&0xfc == 0x20
}

// place determines the opcode map and the
// opcode bytes under which inst is decoded.
func place(inst *x86.Instruction) (m opcodeMap, opcodes []byte, c *candidate, err error) {
	enc := inst.Encoding
	c = &candidate{
		inst:     inst,
		exact:    enc.RegisterModifier == 0,
		modrm:    enc.ModRM,
		fixed:    -1,
		stackReg: -1,
		anyMod:   ignoresMod(inst),
	}

	for _, param := range inst.Parameters {
		if param.Broadcast() {
			c.broadcast = true
		}
	}

	op := enc.Opcode
	switch {
	case enc.Vector():
		var kind VectorKind
		if enc.XOP {
			kind = XOP
		}

		var ok bool
		m, ok = vectorMap(kind, enc.VEXm_mmmm)
		if !ok {
			return 0, nil, nil, fmt.Errorf("%s: invalid map %#x", inst.UID, enc.VEXm_mmmm)
		}
	case len(op) >= 3 && op[0] == 0x0f && op[1] == 0x38:
		m, op = map0F38, op[2:]
	case len(op) >= 3 && op[0] == 0x0f && op[1] == 0x3a:
		m, op = map0F3A, op[2:]
	case len(op) == 2 && op[0] == 0x0f && op[1] == 0x0f:
		if len(enc.ImpliedImmediate) != 1 || !enc.ModRM {
			return 0, nil, nil, fmt.Errorf("%s: 3DNow! form without opcode suffix", inst.UID)
		}

		return map3DNow, enc.ImpliedImmediate, c, nil
	case len(op) >= 2 && op[0] == 0x0f:
		m, op = map0F, op[1:]
	default:
		m = mapOneByte
	}

	index := len(enc.Opcode) - len(op) // Index of the primary opcode byte.
	switch len(op) {
	case 1:
	case 2:
		c.modrm = true
		if enc.StackIndex == index+2 {
			c.stackReg = int(x86.ModRM(op[1]).Reg())
		} else {
			c.fixed = int(op[1])
		}
	default:
		return 0, nil, nil, fmt.Errorf("%s: %d opcode bytes in map %s", inst.UID, len(op), m)
	}

	if enc.RegisterModifier == 0 {
		return m, op[:1], c, nil
	}

	if enc.RegisterModifier != index+1 || len(op) != 1 {
		return 0, nil, nil, fmt.Errorf("%s: register modifier on byte %d", inst.UID, enc.RegisterModifier)
	}

	for i := byte(0); i < 8; i++ {
		// Slot 90 is NOP.
		if m == mapOneByte && op[0] == 0x90 && i == 0 {
			continue
		}

		opcodes = append(opcodes, op[0]+i)
	}

	return m, opcodes, c, nil
}

// ppAttr returns the attribute selected
// by a VEX.pp value.
func ppAttr(pp uint8) attr {
	switch pp {
	case 0b01:
		return attrOpsize
	case 0b10:
		return attrXS
	case 0b11:
		return attrXD
	}

	return 0
}

// lengthMatches returns whether the
// vector length in c suits enc.
func lengthMatches(enc *x86.Encoding, c attr) bool {
	if enc.VEX_LIG {
		return true
	}

	if !enc.EVEX {
		return enc.VEX_L == (c&attrVEXL != 0)
	}

	switch enc.VectorSize() {
	case 128:
		return c&(attrVEXL|attrEVEXL2) == 0
	case 256:
		return c&attrVEXL != 0
	case 512:
		return c&attrEVEXL2 != 0
	}

	return false
}

// matchContext returns whether the form can
// be decoded in context c, along with the
// number of attributes in c that the form
// relies on.
func (cand *candidate) matchContext(c attr) (int, bool) {
	inst := cand.inst
	enc := inst.Encoding
	if c&attr64 != 0 {
		if !inst.Mode64 {
			return 0, false
		}
	} else if !inst.Mode32 && !inst.Mode16 {
		return 0, false
	}

	var used attr
	switch {
	case enc.EVEX:
		if c&attrEVEX == 0 {
			return 0, false
		}

		used |= attrEVEX
		pp := ppAttr(enc.VEXpp)
		if c&(attrOpsize|attrXS|attrXD) != pp {
			return 0, false
		}

		used |= pp
		if !enc.VEX_WIG {
			if enc.VEX_W != (c&attrREXW != 0) {
				return 0, false
			}

			used |= c & attrREXW
		}

		// With EVEX.b, the length bits may
		// hold a rounding mode instead.
		if c&attrEVEXB == 0 {
			if !lengthMatches(enc, c) {
				return 0, false
			}

			if !enc.VEX_LIG {
				used |= c & (attrVEXL | attrEVEXL2)
			}
		} else {
			if !enc.Rounding && !enc.Suppress && !cand.broadcast {
				return 0, false
			}

			used |= attrEVEXB
		}

		switch {
		case c&attrEVEXKZ != 0:
			if !enc.Mask || !enc.Zero {
				return 0, false
			}

			used |= attrEVEXKZ
		case c&attrEVEXK != 0:
			if !enc.Mask {
				return 0, false
			}

			used |= attrEVEXK
		}
	case enc.VEX || enc.XOP:
		if c&attrVEX == 0 {
			return 0, false
		}

		used |= attrVEX
		pp := ppAttr(enc.VEXpp)
		if c&(attrOpsize|attrXS|attrXD) != pp {
			return 0, false
		}

		used |= pp
		if !enc.VEX_WIG {
			if enc.VEX_W != (c&attrREXW != 0) {
				return 0, false
			}

			used |= c & attrREXW
		}

		if !lengthMatches(enc, c) {
			return 0, false
		}

		if !enc.VEX_LIG {
			used |= c & attrVEXL
		}
	default:
		if c&(attrVEX|attrEVEX) != 0 {
			return 0, false
		}

		switch enc.MandatoryPrefix() {
		case x86.PrefixOperandSize:
			used |= attrOpsize
		case x86.PrefixRepeat:
			used |= attrXS
		case x86.PrefixRepeatNot:
			used |= attrXD
		}

		if c&used != used {
			return 0, false
		}

		if enc.NoVEXPrefixes && c&(attrOpsize|attrXS|attrXD)&^used != 0 {
			return 0, false
		}

		if enc.NoRepPrefixes && c&(attrXS|attrXD)&^used != 0 {
			return 0, false
		}

		if enc.REX_W {
			if c&attrREXW == 0 {
				return 0, false
			}

			used |= attrREXW
		}

		if inst.OperandSize {
			if c&attrOpsize == 0 || c&attrREXW != 0 {
				return 0, false
			}

			used |= attrOpsize
		}

		if inst.AddressSize {
			if c&attrAdsize == 0 {
				return 0, false
			}

			used |= attrAdsize
		}
	}

	return used.count(), true
}

// matchModRM returns whether the form can be
// decoded with the given ModR/M byte in
// context c, along with a bonus for more
// specific encodings.
func (cand *candidate) matchModRM(c attr, modrm x86.ModRM) (int, bool) {
	bonus := 0
	if cand.exact {
		bonus++
	}

	if !cand.modrm {
		return bonus, true
	}

	enc := cand.inst.Encoding
	mod := modrm.Mod()
	if cand.fixed >= 0 {
		if byte(modrm) != byte(cand.fixed) {
			return 0, false
		}

		bonus += 2
	}

	if cand.stackReg >= 0 {
		if mod != 0b11 || int(modrm.Reg()) != cand.stackReg {
			return 0, false
		}

		bonus++
	}

	switch enc.ModRMmod {
	case 0:
	case 5:
		if mod == 0b11 {
			return 0, false
		}
	default:
		if mod != enc.ModRMmod-1 {
			return 0, false
		}
	}

	if enc.ModRMreg != 0 {
		if modrm.Reg() != enc.ModRMreg-1 {
			return 0, false
		}

		bonus++
	}

	if enc.ModRMrm != 0 && modrm.RM() != enc.ModRMrm-1 {
		return 0, false
	}

	for _, param := range cand.inst.Parameters {
		if param.Encoding != x86.EncodingModRMrm && param.Encoding != x86.EncodingSIB {
			continue
		}

		switch param.Type {
		case x86.TypeMemory:
			if mod == 0b11 {
				return 0, false
			}
		case x86.TypeRegister:
			if mod != 0b11 && !cand.anyMod {
				return 0, false
			}
		}
	}

	if enc.EVEX {
		b := c&attrEVEXB != 0
		switch {
		case b && mod == 0b11:
			if !enc.Rounding && !enc.Suppress {
				return 0, false
			}
		case b:
			if !cand.broadcast || !lengthMatches(enc, c) {
				return 0, false
			}
		case mod != 0b11 && cand.broadcast:
			return 0, false
		}
	}

	return bonus, true
}

// scored is a candidate that matches
// a context.
type scored struct {
	*candidate
	score int
}

// tableBuilder builds the opcode tables,
// sharing identical decisions.
type tableBuilder struct {
	decisions map[string]*decision // By candidate set and context.
	shared    map[string]*decision // By content.
	tables    map[opcodeTable]*opcodeTable
}

// decide builds the decision for a slot in
// context c.
func (b *tableBuilder) decide(c attr, cands []*candidate) *decision {
	var matches []scored
	var key strings.Builder
	for _, cand := range cands {
		score, ok := cand.matchContext(c)
		if !ok {
			continue
		}

		matches = append(matches, scored{cand, score})
		key.WriteString(strconv.Itoa(cand.inst.ID))
		key.WriteByte(':')
		key.WriteString(strconv.Itoa(score))
		key.WriteByte(',')
	}

	if len(matches) == 0 {
		return nil
	}

	if c&attrEVEX != 0 {
		key.WriteString(strconv.Itoa(int(c & (attrEVEXB | attrVEXL | attrEVEXL2))))
	}

	if d, ok := b.decisions[key.String()]; ok {
		return d
	}

	modrm := false
	for _, match := range matches {
		if match.modrm {
			modrm = true
		}
	}

	var forms [256]*x86.Instruction
	n := 1
	if modrm {
		n = len(forms)
	}

	for m := 0; m < n; m++ {
		var best *x86.Instruction
		bestScore := -1
		for _, match := range matches {
			bonus, ok := match.matchModRM(c, x86.ModRM(m))
			if !ok {
				continue
			}

			score := 8*match.score + bonus
			if score > bestScore || (score == bestScore && match.inst.ID < best.ID) {
				best = match.inst
				bestScore = score
			}
		}

		forms[m] = best
	}

	d := b.share(compress(modrm, &forms))
	b.decisions[key.String()] = d

	return d
}

// compress picks the smallest decision kind
// that represents forms.
func compress(modrm bool, forms *[256]*x86.Instruction) *decision {
	if !modrm {
		if forms[0] == nil {
			return nil
		}

		return &decision{kind: decisionOne, forms: forms[:1]}
	}

	var one, memSame, regSame, memByReg, regByReg = true, true, true, true, true
	for m, form := range forms {
		if form != forms[0] {
			one = false
		}

		if m < 0xc0 {
			if form != forms[0] {
				memSame = false
			}

			if form != forms[m&0x38] {
				memByReg = false
			}
		} else {
			if form != forms[0xc0] {
				regSame = false
			}

			if form != forms[0xc0|m&0x38] {
				regByReg = false
			}
		}
	}

	switch {
	case one:
		if forms[0] == nil {
			return nil
		}

		return &decision{kind: decisionOne, modrm: true, forms: forms[:1]}
	case memSame && regSame:
		return &decision{kind: decisionSplitRM, modrm: true, forms: []*x86.Instruction{forms[0], forms[0xc0]}}
	case memByReg && regByReg:
		d := &decision{kind: decisionSplitReg, modrm: true, forms: make([]*x86.Instruction, 16)}
		for reg := 0; reg < 8; reg++ {
			d.forms[reg] = forms[reg<<3]
			d.forms[8+reg] = forms[0xc0|reg<<3]
		}

		return d
	case memByReg:
		d := &decision{kind: decisionSplitMisc, modrm: true, forms: make([]*x86.Instruction, 72)}
		for reg := 0; reg < 8; reg++ {
			d.forms[reg] = forms[reg<<3]
		}

		copy(d.forms[8:], forms[0xc0:])

		return d
	default:
		return &decision{kind: decisionFull, modrm: true, forms: append([]*x86.Instruction(nil), forms[:]...)}
	}
}

// share returns an existing decision equal
// to d, if there is one.
func (b *tableBuilder) share(d *decision) *decision {
	if d == nil {
		return nil
	}

	var key strings.Builder
	fmt.Fprintf(&key, "%d,%v", d.kind, d.modrm)
	for _, form := range d.forms {
		key.WriteByte(',')
		if form == nil {
			key.WriteByte('-')
		} else {
			key.WriteString(strconv.Itoa(form.ID))
		}
	}

	if got, ok := b.shared[key.String()]; ok {
		return got
	}

	b.shared[key.String()] = d

	return d
}

func init() {
	var slots [numMaps][256][]*candidate
	usesModRM = make([]bool, len(x86.Instructions))
	for _, inst := range x86.Instructions {
		if len(inst.Encoding.PrefixOpcodes) != 0 {
			continue
		}

		m, opcodes, cand, err := place(inst)
		if err != nil {
			tableErrors = append(tableErrors, err)
			continue
		}

		usesModRM[inst.ID] = cand.modrm
		for _, op := range opcodes {
			slots[m][op] = append(slots[m][op], cand)
		}
	}

	b := &tableBuilder{
		decisions: make(map[string]*decision),
		shared:    make(map[string]*decision),
		tables:    make(map[opcodeTable]*opcodeTable),
	}

	for m := range slots {
		tables[m] = make([]*opcodeTable, len(contexts))
		for i, c := range contexts {
			var table opcodeTable
			empty := true
			for op, cands := range slots[m] {
				if len(cands) == 0 {
					continue
				}

				if d := b.decide(c, cands); d != nil {
					table[op] = d
					empty = false
				}
			}

			if empty {
				continue
			}

			if got, ok := b.tables[table]; ok {
				tables[m][i] = got
				continue
			}

			t := new(opcodeTable)
			*t = table
			b.tables[table] = t
			tables[m][i] = t
		}
	}
}

// lookupForm returns the form for an opcode
// in context mask m, reading the ModR/M byte
// if necessary. A nil form means no form is
// valid.
func (s *state) lookupForm(m attr, opMap opcodeMap, opcode byte) (*x86.Instruction, error) {
	table := tables[opMap][contextOf[m]]
	if table == nil {
		return nil, nil
	}

	d := table[opcode]
	if d == nil {
		return nil, nil
	}

	if d.modrm {
		if err := s.readModRM(); err != nil {
			return nil, err
		}
	}

	return d.lookup(s.modrm), nil
}
