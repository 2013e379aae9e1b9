// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package printer

import (
	"sync"

	"firefly-os.dev/tools/disasm/internal/x86"
)

type mnemonicKey struct {
	id     int
	mode   uint8
	syntax Syntax
}

// mnemonics caches the mnemonic for each
// instruction form, by mode and syntax.
var mnemonics sync.Map // mnemonicKey -> string.

// mnemonic returns the mnemonic for the
// form, before any alias is applied.
func mnemonic(form *x86.Instruction, mode x86.Mode, syntax Syntax) string {
	key := mnemonicKey{id: form.ID, mode: mode.Int, syntax: syntax}
	if got, ok := mnemonics.Load(key); ok {
		return got.(string)
	}

	var name string
	switch syntax {
	case ATT:
		name = attMnemonic(form, mode)
	default:
		name = form.Mnemonic
	}

	got, _ := mnemonics.LoadOrStore(key, name)

	return got.(string)
}
