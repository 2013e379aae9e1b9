// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package printer

import (
	"strings"

	"firefly-os.dev/tools/disasm/decoder"
	"firefly-os.dev/tools/disasm/internal/x86"
)

// Detail is the structured description of
// a rendered instruction.
type Detail struct {
	ID       int
	UID      string
	Operands []Operand

	Condition    string // Any comparison predicate.
	FlagsRead    Flags
	FlagsWritten Flags
	Groups       Groups
	Features     []string // CPUID features.

	Prefixes []x86.Prefix
	REX      x86.REX
	OpSize   int // In bits.
	AddrSize int // In bits.
	HasModRM bool
	ModRM    x86.ModRM
	HasSIB   bool
	SIB      x86.SIB
	Disp     int64
	DispSize int // In bytes.

	Mask      *x86.Register
	Zeroing   bool
	Broadcast int
	Rounding  decoder.Rounding
}

// OperandKind identifies the type of an
// operand.
type OperandKind uint8

const (
	KindRegister OperandKind = iota + 1
	KindImmediate
	KindMemory
)

func (k OperandKind) String() string {
	switch k {
	case KindRegister:
		return "reg"
	case KindImmediate:
		return "imm"
	case KindMemory:
		return "mem"
	}

	return "invalid"
}

// Access describes how an instruction uses
// an operand.
type Access uint8

const (
	Read Access = 1 << iota
	Write

	ReadWrite = Read | Write
)

func (a Access) String() string {
	switch a {
	case Read:
		return "r"
	case Write:
		return "w"
	case ReadWrite:
		return "rw"
	}

	return "-"
}

// Operand describes one operand.
type Operand struct {
	Kind     OperandKind
	Size     int // In bits, or zero if unknown.
	Access   Access
	Register *x86.Register // For KindRegister.
	Memory   *x86.Memory   // For KindMemory.
	Imm      int64         // For KindImmediate.
}

// Flags is a set of RFLAGS bits.
type Flags uint16

const (
	CF Flags = 1 << iota
	PF
	AF
	ZF
	SF
	TF
	IF
	DF
	OF

	arithmetic = CF | PF | AF | ZF | SF | OF
	allFlags   = arithmetic | TF | IF | DF
)

var flagNames = []string{"CF", "PF", "AF", "ZF", "SF", "TF", "IF", "DF", "OF"}

func (f Flags) String() string {
	var names []string
	for i, name := range flagNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}

	return strings.Join(names, "|")
}

// Groups is a set of instruction groups.
type Groups uint8

const (
	GroupJump Groups = 1 << iota
	GroupCall
	GroupRet
	GroupInt
	GroupIret
	GroupPrivilege
	GroupBranchRelative
)

var groupNames = []string{"jump", "call", "ret", "int", "iret", "privilege", "branch_relative"}

func (g Groups) String() string {
	var names []string
	for i, name := range groupNames {
		if g&(1<<i) != 0 {
			names = append(names, name)
		}
	}

	return strings.Join(names, "|")
}

// detail builds the detail record.
func (b *builder) detail() *Detail {
	inst := b.inst
	d := &Detail{
		ID:        b.form.ID,
		UID:       b.form.UID,
		Operands:  make([]Operand, len(b.args)),
		Condition: b.condition,
		Groups:    groups(b.form),
		Features:  b.form.CPUID,
		Prefixes:  inst.Prefixes,
		REX:       inst.REX,
		OpSize:    inst.OpSize,
		AddrSize:  inst.AddrSize,
		HasModRM:  inst.HasModRM,
		ModRM:     inst.ModRM,
		HasSIB:    inst.HasSIB,
		SIB:       inst.SIB,
		Disp:      inst.Disp,
		DispSize:  inst.DispSize,
		Mask:      inst.Mask,
		Zeroing:   inst.Zeroing,
		Rounding:  inst.Rounding,
	}

	d.FlagsRead, d.FlagsWritten = flags(b.form)
	for i, arg := range b.args {
		op := &d.Operands[i]
		op.Access = access(b.form, i)
		switch arg := arg.(type) {
		case *x86.Register:
			op.Kind = KindRegister
			op.Register = arg
			op.Size = arg.Bits
		case *x86.Memory:
			op.Kind = KindMemory
			op.Memory = arg
			op.Size = arg.Bits
			if arg.Broadcast > 0 {
				d.Broadcast = arg.Broadcast
			}
		case x86.Imm:
			op.Kind = KindImmediate
			op.Imm = int64(arg)
			op.Size = b.params[i].Bits

			// Signed immediates are extended
			// to the destination's size.
			param := b.params[i]
			if i > 0 && param.Type == x86.TypeSignedImmediate && param.Encoding == x86.EncodingImmediate && d.Operands[0].Size > param.Bits {
				op.Size = d.Operands[0].Size
			}
		}
	}

	return d
}

// groups returns the groups an instruction
// form belongs to.
func groups(form *x86.Instruction) Groups {
	var g Groups
	for _, tag := range form.Tags {
		switch tag {
		case "branch":
			g |= GroupJump
		case "call":
			g |= GroupCall
		case "ret":
			g |= GroupRet
		case "int":
			g |= GroupInt
		case "iret":
			g |= GroupIret
		case "privileged":
			g |= GroupPrivilege
		}
	}

	for _, param := range form.Parameters {
		if param.Type == x86.TypeRelativeAddress {
			g |= GroupBranchRelative
		}
	}

	return g
}

// readOnly lists the instructions that
// do not write their first operand.
var readOnly = map[string]bool{
	"bt":       true,
	"call":     true,
	"cmp":      true,
	"comisd":   true,
	"comiss":   true,
	"jmp":      true,
	"out":      true,
	"ptest":    true,
	"push":     true,
	"test":     true,
	"ucomisd":  true,
	"ucomiss":  true,
	"vcomisd":  true,
	"vcomiss":  true,
	"vptest":   true,
	"vucomisd": true,
	"vucomiss": true,
}

// writeOnly lists the instructions that
// overwrite their first operand without
// reading it.
var writeOnly = map[string]bool{
	"bsf":      true,
	"bsr":      true,
	"in":       true,
	"lddqu":    true,
	"lea":      true,
	"lzcnt":    true,
	"mov":      true,
	"movapd":   true,
	"movaps":   true,
	"movd":     true,
	"movdqa":   true,
	"movdqu":   true,
	"movmskpd": true,
	"movmskps": true,
	"movq":     true,
	"movsb":    true,
	"movsq":    true,
	"movsw":    true,
	"movsx":    true,
	"movsxd":   true,
	"movupd":   true,
	"movups":   true,
	"movzx":    true,
	"pmovmskb": true,
	"pop":      true,
	"popcnt":   true,
	"stosb":    true,
	"stosd":    true,
	"stosq":    true,
	"stosw":    true,
	"tzcnt":    true,
}

// readWriteAll lists the instructions that
// read and write every operand.
var readWriteAll = map[string]bool{
	"cmpxchg": true,
	"xadd":    true,
	"xchg":    true,
}

// accessKey identifies the forms of a
// mnemonic with a number of operands.
type accessKey struct {
	mnemonic string
	operands int
}

// accessPatterns lists the operand accesses
// of the forms the general rules in
// defaultAccess get wrong.
var accessPatterns = map[accessKey][]Access{
	// Implicit accumulators.
	{"div", 1}:  {Read},
	{"idiv", 1}: {Read},
	{"imul", 1}: {Read},
	{"mul", 1}:  {Read},
	{"imul", 3}: {Write, Read, Read},

	// Only the address is used.
	{"nop", 1}:    {0},
	{"invlpg", 1}: {0},

	{"prefetchnta", 1}: {Read},
	{"prefetcht0", 1}:  {Read},
	{"prefetcht1", 1}:  {Read},
	{"prefetcht2", 1}:  {Read},
	{"prefetchw", 1}:   {Read},
	{"clflush", 1}:     {Read},
	{"bound", 2}:       {Read, Read},

	// Loads and stores of processor state.
	{"fxrstor", 1}:   {Read},
	{"fxrstor64", 1}: {Read},
	{"xrstor", 1}:    {Read},
	{"ldmxcsr", 1}:   {Read},
	{"lgdt", 1}:      {Read},
	{"lidt", 1}:      {Read},
	{"lldt", 1}:      {Read},
	{"ltr", 1}:       {Read},
	{"lmsw", 1}:      {Read},
	{"verr", 1}:      {Read},
	{"verw", 1}:      {Read},
	{"fxsave", 1}:    {Write},
	{"fxsave64", 1}:  {Write},
	{"xsave", 1}:     {Write},
	{"xsaveopt", 1}:  {Write},
	{"stmxcsr", 1}:   {Write},
	{"sgdt", 1}:      {Write},
	{"sidt", 1}:      {Write},
	{"sldt", 1}:      {Write},
	{"str", 1}:       {Write},
	{"smsw", 1}:      {Write},

	// x87.
	{"fld", 1}:     {Read},
	{"fild", 1}:    {Read},
	{"fbld", 1}:    {Read},
	{"fldcw", 1}:   {Read},
	{"fldenv", 1}:  {Read},
	{"frstor", 1}:  {Read},
	{"fcom", 1}:    {Read},
	{"fcomp", 1}:   {Read},
	{"fucom", 1}:   {Read},
	{"fucomp", 1}:  {Read},
	{"fcomi", 2}:   {Read, Read},
	{"fcomip", 2}:  {Read, Read},
	{"fucomi", 2}:  {Read, Read},
	{"fucomip", 2}: {Read, Read},
	{"fst", 1}:     {Write},
	{"fstp", 1}:    {Write},
	{"fist", 1}:    {Write},
	{"fistp", 1}:   {Write},
	{"fisttp", 1}:  {Write},
	{"fbstp", 1}:   {Write},
	{"fnstcw", 1}:  {Write},
	{"fnstenv", 1}: {Write},
	{"fnsave", 1}:  {Write},
	{"fnstsw", 1}:  {Write},
	{"ffree", 1}:   {Write},
	{"ffreep", 1}:  {Write},
	{"fxch", 1}:    {ReadWrite},

	// Strings.
	{"lodsb", 2}: {Write, Read},
	{"lodsw", 2}: {Write, Read},
	{"lodsd", 2}: {Write, Read},
	{"lodsq", 2}: {Write, Read},
	{"scasb", 2}: {Read, Read},
	{"scasw", 2}: {Read, Read},
	{"scasd", 2}: {Read, Read},
	{"scasq", 2}: {Read, Read},
	{"cmpsb", 2}: {Read, Read},
	{"cmpsw", 2}: {Read, Read},
	{"cmpsd", 2}: {Read, Read},
	{"cmpsq", 2}: {Read, Read},
	{"outsb", 2}: {Read, Read},
	{"outsw", 2}: {Read, Read},
	{"outsd", 2}: {Read, Read},
}

// accesses holds the operand accesses of
// each instruction form, by form ID.
var accesses = make([][]Access, len(x86.Instructions))

func init() {
	for _, form := range x86.Instructions {
		n := len(form.Parameters)
		if pattern, ok := accessPatterns[accessKey{form.Mnemonic, n}]; ok {
			accesses[form.ID] = pattern
			continue
		}

		pattern := make([]Access, n)
		for i := range pattern {
			pattern[i] = defaultAccess(form, i)
		}

		accesses[form.ID] = pattern
	}
}

// access returns how the i'th operand of
// an instruction form is used.
func access(form *x86.Instruction, i int) Access {
	if pattern := accesses[form.ID]; i < len(pattern) {
		return pattern[i]
	}

	return Read
}

// defaultAccess derives how the i'th operand
// of an instruction form is used from its
// mnemonic and parameters.
func defaultAccess(form *x86.Instruction, i int) Access {
	name := form.Mnemonic
	params := form.Parameters
	switch {
	case readWriteAll[name]:
		return ReadWrite
	case i > 0:
		return Read
	case readOnly[name], strings.HasPrefix(name, "j"):
		return Read
	case writeOnly[name], strings.HasPrefix(name, "set"), strings.HasPrefix(name, "cvt"):
		return Write
	case params[0].Type == x86.TypeStringDst:
		return Write
	}

	// Vector forms with a separate source
	// register write the destination.
	for _, param := range params {
		if param.Encoding == x86.EncodingVEXvvvv {
			return Write
		}
	}

	if strings.HasPrefix(name, "vmov") || strings.HasPrefix(name, "vcvt") || strings.HasPrefix(name, "vbroadcast") {
		return Write
	}

	return ReadWrite
}

// conditionFlags maps each condition code
// to the flags it tests.
var conditionFlags = map[string]Flags{
	"o": OF, "no": OF,
	"b": CF, "c": CF, "nae": CF, "ae": CF, "nb": CF, "nc": CF,
	"e": ZF, "z": ZF, "ne": ZF, "nz": ZF,
	"be": CF | ZF, "na": CF | ZF, "a": CF | ZF, "nbe": CF | ZF,
	"s": SF, "ns": SF,
	"p": PF, "pe": PF, "np": PF, "po": PF,
	"l": SF | OF, "nge": SF | OF, "ge": SF | OF, "nl": SF | OF,
	"le": ZF | SF | OF, "ng": ZF | SF | OF, "g": ZF | SF | OF, "nle": ZF | SF | OF,
}

// flagEffects maps mnemonics to the flags
// they read and write.
var flagEffects = map[string][2]Flags{
	"adc":     {CF, arithmetic},
	"add":     {0, arithmetic},
	"and":     {0, arithmetic},
	"bsf":     {0, arithmetic},
	"bsr":     {0, arithmetic},
	"bt":      {0, arithmetic},
	"btc":     {0, arithmetic},
	"btr":     {0, arithmetic},
	"bts":     {0, arithmetic},
	"clc":     {0, CF},
	"cld":     {0, DF},
	"cli":     {0, IF},
	"cmc":     {CF, CF},
	"cmp":     {0, arithmetic},
	"cmpsb":   {DF, arithmetic},
	"cmpsw":   {DF, arithmetic},
	"cmpsd":   {DF, arithmetic},
	"cmpsq":   {DF, arithmetic},
	"cmpxchg": {0, arithmetic},
	"comisd":  {0, arithmetic},
	"comiss":  {0, arithmetic},
	"dec":     {0, arithmetic &^ CF},
	"div":     {0, arithmetic},
	"idiv":    {0, arithmetic},
	"imul":    {0, arithmetic},
	"inc":     {0, arithmetic &^ CF},
	"iret":    {0, allFlags},
	"iretd":   {0, allFlags},
	"iretq":   {0, allFlags},
	"lahf":    {SF | ZF | AF | PF | CF, 0},
	"lodsb":   {DF, 0},
	"lodsw":   {DF, 0},
	"lodsd":   {DF, 0},
	"lodsq":   {DF, 0},
	"lzcnt":   {0, arithmetic},
	"movsb":   {DF, 0},
	"movsw":   {DF, 0},
	"movsq":   {DF, 0},
	"mul":     {0, arithmetic},
	"neg":     {0, arithmetic},
	"or":      {0, arithmetic},
	"popcnt":  {0, arithmetic},
	"popf":    {0, allFlags},
	"popfd":   {0, allFlags},
	"popfq":   {0, allFlags},
	"pushf":   {allFlags, 0},
	"pushfd":  {allFlags, 0},
	"pushfq":  {allFlags, 0},
	"rcl":     {CF, CF | OF},
	"rcr":     {CF, CF | OF},
	"rol":     {0, CF | OF},
	"ror":     {0, CF | OF},
	"sahf":    {0, SF | ZF | AF | PF | CF},
	"sar":     {0, arithmetic},
	"sbb":     {CF, arithmetic},
	"scasb":   {DF, arithmetic},
	"scasw":   {DF, arithmetic},
	"scasd":   {DF, arithmetic},
	"scasq":   {DF, arithmetic},
	"shl":     {0, arithmetic},
	"shr":     {0, arithmetic},
	"stc":     {0, CF},
	"std":     {0, DF},
	"sti":     {0, IF},
	"stosb":   {DF, 0},
	"stosw":   {DF, 0},
	"stosd":   {DF, 0},
	"stosq":   {DF, 0},
	"sub":     {0, arithmetic},
	"test":    {0, arithmetic},
	"tzcnt":   {0, arithmetic},
	"ucomisd": {0, arithmetic},
	"ucomiss": {0, arithmetic},
	"xadd":    {0, arithmetic},
	"xor":     {0, arithmetic},
}

// flags returns the flags read and written
// by an instruction form.
func flags(form *x86.Instruction) (read, written Flags) {
	name := form.Mnemonic
	switch name {
	case "movsd", "cmpsd":
		// The SSE forms share the string
		// mnemonics.
		if form.Encoding.MandatoryPrefix() != 0 || form.Encoding.Vector() {
			return 0, 0
		}

		if name == "movsd" {
			return DF, 0
		}
	}

	if effect, ok := flagEffects[name]; ok {
		return effect[0], effect[1]
	}

	for _, prefix := range []string{"cmov", "set", "j"} {
		if cc, ok := strings.CutPrefix(name, prefix); ok {
			return conditionFlags[cc], 0
		}
	}

	return 0, 0
}
