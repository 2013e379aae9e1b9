// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package listing

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"rsc.io/diff"

	"firefly-os.dev/tools/disasm/decoder"
	"firefly-os.dev/tools/disasm/internal/config"
	"firefly-os.dev/tools/disasm/internal/x86"
	"firefly-os.dev/tools/disasm/printer"
)

// push rbp; mov rbp, rsp; an invalid byte;
// mov eax, 1; ret.
var code = []byte{0x55, 0x48, 0x89, 0xe5, 0x06, 0xb8, 0x01, 0x00, 0x00, 0x00, 0xc3}

func TestDisassemble(t *testing.T) {
	tests := []struct {
		Name   string
		Syntax printer.Syntax
		Want   string
	}{
		{
			Name:   "intel",
			Syntax: printer.Intel,
			Want: `    1000:  55                             push rbp
    1001:  48 89 e5                       mov rbp, rsp
    1004:  06                             .byte 0x6
    1005:  b8 01 00 00 00                 mov eax, 1
    100a:  c3                             ret
`,
		},
		{
			Name:   "att",
			Syntax: printer.ATT,
			Want: `    1000:  55                             push %rbp
    1001:  48 89 e5                       mov %rsp,%rbp
    1004:  06                             .byte 0x6
    1005:  b8 01 00 00 00                 mov $0x1,%eax
    100a:  c3                             ret
`,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			var buf bytes.Buffer
			var skipped []uint64
			w := NewWriter(&buf, printer.Options{Syntax: test.Syntax}, false)
			err := w.Disassemble(code, 0x1000, x86.Mode64, func(addr uint64, err error) {
				if !errors.Is(err, decoder.ErrInvalidMode) {
					t.Errorf("skipped %#x: got error %v, want %v", addr, err, decoder.ErrInvalidMode)
				}

				skipped = append(skipped, addr)
			})
			if err != nil {
				t.Fatalf("Disassemble(): %v", err)
			}

			if got := buf.String(); got != test.Want {
				t.Fatalf("Disassemble():\n%s", diff.Format(got, test.Want))
			}

			if len(skipped) != 1 || skipped[0] != 0x1004 {
				t.Fatalf("Disassemble(): got skipped %x, want [1004]", skipped)
			}
		})
	}
}

func TestColor(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, printer.Options{}, true)
	err := w.Disassemble([]byte{0xc3, 0x06}, 0, x86.Mode64, nil)
	if err != nil {
		t.Fatalf("Disassemble(): %v", err)
	}

	got := buf.String()
	for _, want := range []string{colorMnemonic + "ret" + colorReset, colorBad + ".byte 0x6" + colorReset, colorAddr} {
		if !strings.Contains(got, want) {
			t.Errorf("Disassemble(): missing %q in %q", want, got)
		}
	}

	if UseColor(config.ColorAlways, nil) != true || UseColor(config.ColorNever, nil) != false {
		t.Errorf("UseColor(): explicit settings not honoured")
	}
}

func TestLabel(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, printer.Options{}, false)
	err := w.Label(0x401000, ".text")
	if err != nil {
		t.Fatal(err)
	}

	if got, want := buf.String(), "\n0000000000401000 <.text>:\n"; got != want {
		t.Errorf("Label():\n  Got:  %q\n  Want: %q", got, want)
	}
}
