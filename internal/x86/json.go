// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"encoding/hex"
	"encoding/json"
)

type jsonEncoding struct {
	Syntax string `json:"syntax"`

	// Legacy prefixes.
	PrefixOpcodes     string `json:"prefixOpcodes,omitempty"`
	NoVEXPrefixes     bool   `json:"noVexPrefixes,omitempty"`
	NoRepPrefixes     bool   `json:"noRepPrefixes,omitempty"`
	MandatoryPrefixes string `json:"mandatoryPrefixes,omitempty"`

	// REX prefixes.
	REX   bool `json:"rex,omitempty"`
	REX_W bool `json:"rexW,omitempty"`

	// VEX and XOP prefixes.
	VEX       bool  `json:"vex,omitempty"`
	XOP       bool  `json:"xop,omitempty"`
	VEX_L     bool  `json:"vexL,omitempty"`
	VEX_LIG   bool  `json:"vexLig,omitempty"`
	VEXpp     uint8 `json:"vexPp,omitempty"`
	VEXm_mmmm uint8 `json:"vexMmmmm,omitempty"`
	VEX_W     bool  `json:"vexW,omitempty"`
	VEX_WIG   bool  `json:"vexWig,omitempty"`
	VEXis4    bool  `json:"vexIs4,omitempty"`

	// EVEX prefixes.
	EVEX     bool `json:"evex,omitempty"`
	EVEX_Lp  bool `json:"evexLp,omitempty"`
	Mask     bool `json:"mask,omitempty"`
	Zero     bool `json:"zero,omitempty"`
	Rounding bool `json:"rounding,omitempty"`
	Suppress bool `json:"suppress,omitempty"`

	// Opcode data.
	Opcode           string `json:"opcode"`
	RegisterModifier int    `json:"registerModifier,omitempty"`
	StackIndex       int    `json:"stackIndex,omitempty"`
	CodeOffset       bool   `json:"codeOffset,omitempty"`

	// ModR/M byte.
	ModRM    bool  `json:"modRm,omitempty"`
	ModRMmod uint8 `json:"modRmMod,omitempty"`
	ModRMreg uint8 `json:"modRmReg,omitempty"`
	ModRMrm  uint8 `json:"modRmRm,omitempty"`
	VSIB     bool  `json:"vsib,omitempty"`

	ImpliedImmediate string `json:"impliedImmediate,omitempty"`
}

// MarshalJSON encodes the encoding, with
// each byte sequence in hexadecimal.
func (e *Encoding) MarshalJSON() ([]byte, error) {
	j := jsonEncoding{
		Syntax: e.Syntax,

		PrefixOpcodes: hex.EncodeToString(e.PrefixOpcodes),
		NoVEXPrefixes: e.NoVEXPrefixes,
		NoRepPrefixes: e.NoRepPrefixes,

		REX:   e.REX,
		REX_W: e.REX_W,

		VEX:       e.VEX,
		XOP:       e.XOP,
		VEX_L:     e.VEX_L,
		VEX_LIG:   e.VEX_LIG,
		VEXpp:     e.VEXpp,
		VEXm_mmmm: e.VEXm_mmmm,
		VEX_W:     e.VEX_W,
		VEX_WIG:   e.VEX_WIG,
		VEXis4:    e.VEXis4,

		EVEX:     e.EVEX,
		EVEX_Lp:  e.EVEX_Lp,
		Mask:     e.Mask,
		Zero:     e.Zero,
		Rounding: e.Rounding,
		Suppress: e.Suppress,

		Opcode:           hex.EncodeToString(e.Opcode),
		RegisterModifier: e.RegisterModifier,
		StackIndex:       e.StackIndex,
		CodeOffset:       e.CodeOffset,

		ModRM:    e.ModRM,
		ModRMmod: e.ModRMmod,
		ModRMreg: e.ModRMreg,
		ModRMrm:  e.ModRMrm,
		VSIB:     e.VSIB,

		ImpliedImmediate: hex.EncodeToString(e.ImpliedImmediate),
	}

	if len(e.MandatoryPrefixes) > 0 {
		prefixes := make([]byte, len(e.MandatoryPrefixes))
		for i, prefix := range e.MandatoryPrefixes {
			prefixes[i] = byte(prefix)
		}

		j.MandatoryPrefixes = hex.EncodeToString(prefixes)
	}

	return json.Marshal(j)
}

type jsonInstruction struct {
	ID          int          `json:"id"`
	Mnemonic    string       `json:"mnemonic"`
	UID         string       `json:"uid"`
	Syntax      string       `json:"syntax"`
	Encoding    *Encoding    `json:"encoding"`
	Tuple       string       `json:"tuple,omitempty"`
	Parameters  []*Parameter `json:"parameters,omitempty"`
	CPUID       []string     `json:"cpuid,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Modes       []string     `json:"modes"`
	OperandSize bool         `json:"operandSize,omitempty"`
	AddressSize bool         `json:"addressSize,omitempty"`
}

// MarshalJSON encodes the instruction form
// as it appears in the instruction table.
func (inst *Instruction) MarshalJSON() ([]byte, error) {
	j := jsonInstruction{
		ID:          inst.ID,
		Mnemonic:    inst.Mnemonic,
		UID:         inst.UID,
		Syntax:      inst.Syntax,
		Encoding:    inst.Encoding,
		Parameters:  inst.Parameters,
		CPUID:       inst.CPUID,
		Tags:        inst.Tags,
		Modes:       []string{},
		OperandSize: inst.OperandSize,
		AddressSize: inst.AddressSize,
	}

	if inst.Tuple != TupleNone {
		j.Tuple = inst.Tuple.String()
	}

	for _, mode := range Modes {
		if inst.Supports(mode) {
			j.Modes = append(j.Modes, mode.String)
		}
	}

	return json.Marshal(j)
}
