// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package printer

import (
	"strings"

	"firefly-os.dev/tools/disasm/internal/x86"
)

// Comparison predicates, indexed by their
// immediate value.
var (
	ssePredicates = []string{"eq", "lt", "le", "unord", "neq", "nlt", "nle", "ord"}

	avxPredicates = []string{
		"eq", "lt", "le", "unord", "neq", "nlt", "nle", "ord",
		"eq_uq", "nge", "ngt", "false", "neq_oq", "ge", "gt", "true",
		"eq_os", "lt_oq", "le_oq", "unord_s", "neq_us", "nlt_uq", "nle_uq", "ord_s",
		"eq_us", "nge_uq", "ngt_uq", "false_os", "neq_os", "ge_oq", "gt_oq", "true_us",
	}

	xopPredicates = []string{"lt", "le", "gt", "ge", "eq", "neq", "false", "true"}
)

// alias describes the instructions whose
// trailing immediate selects a predicate
// that is printed as part of the mnemonic.
type alias struct {
	stem  string // The mnemonic before the predicate.
	names []string
}

var aliases = map[string]alias{
	"cmpps":  {"cmp", ssePredicates},
	"cmppd":  {"cmp", ssePredicates},
	"cmpss":  {"cmp", ssePredicates},
	"cmpsd":  {"cmp", ssePredicates},
	"vcmpps": {"vcmp", avxPredicates},
	"vcmppd": {"vcmp", avxPredicates},
	"vcmpss": {"vcmp", avxPredicates},
	"vcmpsd": {"vcmp", avxPredicates},
	"vpcomb": {"vpcom", xopPredicates},
	"vpcomw": {"vpcom", xopPredicates},
	"vpcomd": {"vpcom", xopPredicates},
	"vpcomq": {"vpcom", xopPredicates},

	"vpcomub": {"vpcom", xopPredicates},
	"vpcomuw": {"vpcom", xopPredicates},
	"vpcomud": {"vpcom", xopPredicates},
	"vpcomuq": {"vpcom", xopPredicates},
}

// clmulAliases maps the PCLMULQDQ immediate
// to the quadwords it selects.
var clmulAliases = map[int64]string{
	0x00: "lqlq",
	0x01: "hqlq",
	0x10: "lqhq",
	0x11: "hqhq",
}

// matchAlias returns the alias mnemonic for
// an instruction whose final operand is a
// predicate immediate, plus the predicate.
// The caller drops the immediate.
func matchAlias(form *x86.Instruction, args []x86.Arg) (name, condition string, ok bool) {
	n := len(args)
	if n == 0 || form.Parameters[n-1].Encoding != x86.EncodingImmediate {
		return "", "", false
	}

	imm, ok := args[n-1].(x86.Imm)
	if !ok {
		return "", "", false
	}

	switch form.Mnemonic {
	case "pclmulqdq", "vpclmulqdq":
		sel, ok := clmulAliases[int64(imm)]
		if !ok {
			return "", "", false
		}

		stem := strings.TrimSuffix(form.Mnemonic, "qdq")

		return stem + sel + "dq", "", true
	}

	a, ok := aliases[form.Mnemonic]
	if !ok || imm < 0 || int64(imm) >= int64(len(a.names)) {
		return "", "", false
	}

	pred := a.names[imm]
	suffix := strings.TrimPrefix(form.Mnemonic, a.stem)

	return a.stem + pred + suffix, pred, true
}
