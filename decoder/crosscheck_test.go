// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"bytes"
	"testing"

	"golang.org/x/arch/x86/x86asm"
)

// TestCrosscheck compares instruction lengths
// with the x86asm decoder, which handles the
// legacy encodings.
func TestCrosscheck(t *testing.T) {
	// x86asm honours 66 on near branches
	// in 64-bit mode.
	differs := map[string]bool{
		"jmp rel32 operand size": true,
	}

	for _, test := range decodeTests {
		code := mustHex(t, test.Code)
		if differs[test.Name] || code[0] == 0xc4 || code[0] == 0xc5 || code[0] == 0x62 || code[0] == 0x8f {
			continue
		}

		// x86asm decodes ENDBR as a NOP with
		// a ModR/M byte and reads a ModR/M
		// byte for UD0.
		if recognized(code) {
			continue
		}

		want, err := x86asm.Decode(code, int(test.Mode.Int))
		if err != nil {
			continue
		}

		inst, err := DecodeBytes(code, test.Addr, test.Mode)
		if err != nil {
			t.Errorf("%s: DecodeBytes(%x): %v", test.Name, code, err)
			continue
		}

		if inst.Len != want.Len {
			t.Errorf("%s: DecodeBytes(%x): got length %d, x86asm decoded %d bytes as %s", test.Name, code, inst.Len, want.Len, x86asm.IntelSyntax(want, test.Addr, nil))
		}
	}
}

// recognized returns whether code starts
// with a recognizer pattern.
func recognized(code []byte) bool {
	for _, r := range recognizers {
		if bytes.HasPrefix(code, r.pattern) {
			return true
		}
	}

	return false
}
