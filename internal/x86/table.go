// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	_ "embed"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

//go:embed x86.csv
var x86csv string

var (
	// Instructions contains every instruction
	// form, indexed by ID.
	Instructions []*Instruction

	// InstructionsByUID maps each instruction
	// form's UID to the form.
	InstructionsByUID map[string]*Instruction

	// InstructionsByMnemonic maps each mnemonic
	// to its instruction forms.
	InstructionsByMnemonic map[string][]*Instruction

	// TableErrors records any rows in the
	// instruction table that could not be
	// parsed. Those rows are skipped.
	TableErrors []error
)

func init() {
	Instructions, TableErrors = ParseTable(strings.NewReader(x86csv))
	InstructionsByUID = make(map[string]*Instruction, len(Instructions))
	InstructionsByMnemonic = make(map[string][]*Instruction)
	for _, inst := range Instructions {
		InstructionsByUID[inst.UID] = inst
		InstructionsByMnemonic[inst.Mnemonic] = append(InstructionsByMnemonic[inst.Mnemonic], inst)
	}
}

// tableHeader is the expected header
// of the instruction table.
var tableHeader = []string{"syntax", "encoding", "valid32", "valid64", "cpuid", "tags", "tuple"}

// ParseTable reads an instruction table in
// CSV form, producing one instruction per
// parameter combination. Each instruction's
// ID is its index in the result.
//
// Rows that cannot be parsed are reported
// in errs and skipped.
func ParseTable(r io.Reader) (insts []*Instruction, errs []error) {
	cr := csv.NewReader(r)
	cr.Comment = '#'
	cr.FieldsPerRecord = len(tableHeader)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, []error{fmt.Errorf("failed to read header: %v", err)}
	}

	for i, want := range tableHeader {
		if header[i] != want {
			return nil, []error{fmt.Errorf("invalid header: column %d is %q, want %q", i, header[i], want)}
		}
	}

	uids := make(map[string]int)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			errs = append(errs, err)
			continue
		}

		forms, err := parseRow(row)
		if err != nil {
			line, _ := cr.FieldPos(0)
			errs = append(errs, fmt.Errorf("line %d: %s: %v", line, row[0], err))
			continue
		}

		for _, inst := range forms {
			// Some forms are listed more than
			// once with different encodings,
			// such as the 82 aliases of 80.
			uids[inst.UID]++
			if n := uids[inst.UID]; n > 1 {
				inst.UID = fmt.Sprintf("%s_%d", inst.UID, n)
			}

			inst.ID = len(insts)
			insts = append(insts, inst)
		}
	}

	return insts, errs
}

func parseValidity(s string) (bool, error) {
	switch s {
	case "V":
		return true, nil
	case "I", "N.E.", "N.S.":
		return false, nil
	}

	return false, fmt.Errorf("invalid mode validity %q", s)
}

// parseRow parses one row of the instruction
// table, returning a form for each parameter
// combination.
func parseRow(row []string) ([]*Instruction, error) {
	syntax, enc, valid32, valid64, cpuid, tags, tuple := row[0], row[1], row[2], row[3], row[4], row[5], row[6]
	encoding, err := ParseEncoding(enc)
	if err != nil {
		return nil, err
	}

	mode32, err := parseValidity(valid32)
	if err != nil {
		return nil, err
	}

	mode64, err := parseValidity(valid64)
	if err != nil {
		return nil, err
	}

	tupleType, ok := TupleTypes[tuple]
	if !ok {
		return nil, fmt.Errorf("invalid tuple type %q", tuple)
	}

	mnemonic, rest, _ := strings.Cut(syntax, " ")
	base := &Instruction{
		Mnemonic: strings.ToLower(mnemonic),
		Syntax:   syntax,
		Encoding: encoding,
		Tuple:    tupleType,
		CPUID:    strings.Fields(cpuid),
		Tags:     strings.Fields(tags),
		Mode64:   mode64,
		Mode32:   mode32,
		Mode16:   mode32,
	}

	for _, tag := range base.Tags {
		switch tag {
		case "o16":
			base.OperandSize = true
		case "a16", "adsize":
			base.AddressSize = true
		case "lock":
			base.Lock = true
		case "rep":
			base.Rep = true
		case "repe":
			base.Rep = true
			base.RepE = true
		case "no16":
			base.Mode16 = false
		case "only16":
			base.Mode32 = false
		case "alias", "default64", "branch", "call", "ret", "int", "iret", "privileged":
			// Informational tags.
		default:
			return nil, fmt.Errorf("unknown tag %q", tag)
		}
	}

	var args []string
	if rest = strings.TrimSpace(rest); rest != "" {
		args = strings.Split(rest, ",")
	}

	for i := range args {
		var mask, zero, rounding, suppress bool
		arg := strings.TrimSpace(args[i])
		arg, zero = strings.CutSuffix(arg, "{z}")
		arg, mask = strings.CutSuffix(arg, "{k1}")
		if !mask {
			arg, mask = strings.CutSuffix(arg, "{k2}")
		}
		arg, rounding = strings.CutSuffix(arg, "{er}")
		arg, suppress = strings.CutSuffix(arg, "{sae}")
		args[i] = strings.TrimSpace(arg)
		if i == 0 {
			encoding.Mask = mask
			encoding.Zero = zero
		}

		if rounding {
			encoding.Rounding = true
			encoding.Suppress = true
		}

		if suppress {
			encoding.Suppress = true
		}
	}

	combinations, err := ParameterCombinations(args)
	if err != nil {
		return nil, err
	}

	if len(combinations) == 0 {
		base.UID = uid(base)
		return []*Instruction{base}, nil
	}

	forms := make([]*Instruction, len(combinations))
	for i, params := range combinations {
		inst := *base
		inst.Parameters = params
		if inst.Tuple == Tuple1Scalar {
			for _, param := range params {
				if param.Memory() {
					inst.DataSize = param.Bits
				}
			}
		}

		inst.UID = uid(&inst)
		forms[i] = &inst
	}

	return forms, nil
}

// uid derives the unique identifier for an
// instruction form from its mnemonic, its
// parameters, and its encoding.
func uid(inst *Instruction) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(inst.Mnemonic))
	for _, param := range inst.Parameters {
		b.WriteByte('_')
		b.WriteString(param.UID)
	}

	switch {
	case inst.Encoding.EVEX:
		b.WriteString("_EVEX")
	case inst.Encoding.XOP:
		b.WriteString("_XOP")
	case inst.Encoding.VEX:
		b.WriteString("_VEX")
	}

	if inst.AddressSize {
		b.WriteString("_A16")
	}

	return b.String()
}

// ParameterCombinations takes a set of x86
// instruction arguments in Intel syntax and
// produces the set of parameter combinations.
//
// For simple argument sets, there will be a
// single combination, matching the arguments.
// Arguments like "r/m32" that accept either a
// register or a memory operand are split into
// one combination for each.
//
// The result is either an error or an arbitrary
// number of combinations, where each combination
// is a sequence of parameters equal in length to
// the number of arguments, and in the same order.
func ParameterCombinations(args []string) (combinations [][]*Parameter, err error) {
	if len(args) == 0 {
		return nil, nil
	}

	optionSets := make([][]*Parameter, len(args))
	for i, arg := range args {
		// Normalise the arg.
		switch arg {
		case "mem":
			arg = "m"
		case "mm", "xmm", "ymm", "zmm":
			arg += "1"
		case "ST(0)":
			arg = "ST"
		}

		if got, ok := commonExpansions[arg]; ok {
			optionSets[i] = got
			continue
		}

		param, ok := Parameters[arg]
		if !ok {
			return nil, fmt.Errorf("could not find parameter definition for %q", arg)
		}

		optionSets[i] = []*Parameter{param}
	}

	// Expand the combinations.
	numOptions := 1
	for _, set := range optionSets {
		numOptions *= len(set)
	}

	combinations = make([][]*Parameter, numOptions)

	// Iterate through the sets of options
	// like an odometer, starting with the
	// first of each and advancing the last
	// index after each combination.
	indices := make([]int, len(optionSets))
	for i := range combinations {
		combinations[i] = make([]*Parameter, len(args))
		for j, k := range indices {
			combinations[i][j] = optionSets[j][k]
		}

		for n := len(indices) - 1; n >= 0; n-- {
			indices[n]++
			if indices[n] < len(optionSets[n]) {
				break
			}

			indices[n] = 0
		}
	}

	return combinations, nil
}

var commonExpansions = map[string][]*Parameter{
	"k2/m8":             {ParamK2, ParamM8},
	"k2/m16":            {ParamK2, ParamM16},
	"k2/m32":            {ParamK2, ParamM32},
	"k2/m64":            {ParamK2, ParamM64},
	"mm2/m32":           {ParamMM2, ParamM32},
	"mm2/m64":           {ParamMM2, ParamM64},
	"r16/r32/m16":       {ParamRmr16, ParamRmr32, ParamM16},
	"r32/m8":            {ParamRmr32, ParamM8},
	"r32/m16":           {ParamRmr32, ParamM16},
	"r32/m32":           {ParamRmr32, ParamM32},
	"r64/m16":           {ParamRmr64, ParamM16},
	"r64/m64":           {ParamRmr64, ParamM64},
	"r/m8":              {ParamRmr8, ParamM8},
	"r/m16":             {ParamRmr16, ParamM16},
	"r/m32":             {ParamRmr32, ParamM32},
	"r/m64":             {ParamRmr64, ParamM64},
	"xmm2/m8":           {ParamXMM2, ParamM8},
	"xmm2/m16":          {ParamXMM2, ParamM16},
	"xmm2/m32":          {ParamXMM2, ParamM32},
	"xmm2/m64":          {ParamXMM2, ParamM64},
	"xmm2/m128":         {ParamXMM2, ParamM128},
	"xmm2/m64/m32bcst":  {ParamXMM2, ParamM64, ParamM32bcst},
	"xmm2/m128/m32bcst": {ParamXMM2, ParamM128, ParamM32bcst},
	"xmm2/m128/m64bcst": {ParamXMM2, ParamM128, ParamM64bcst},
	"ymm2/m256":         {ParamYMM2, ParamM256},
	"ymm2/m256/m32bcst": {ParamYMM2, ParamM256, ParamM32bcst},
	"ymm2/m256/m64bcst": {ParamYMM2, ParamM256, ParamM64bcst},
	"zmm2/m512":         {ParamZMM2, ParamM512},
	"zmm2/m512/m32bcst": {ParamZMM2, ParamM512, ParamM32bcst},
	"zmm2/m512/m64bcst": {ParamZMM2, ParamM512, ParamM64bcst},
}
