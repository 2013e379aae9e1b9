// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decode

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"rsc.io/diff"

	"firefly-os.dev/tools/disasm/internal/config"
	"firefly-os.dev/tools/disasm/internal/listing"
)

func TestParseHex(t *testing.T) {
	tests := []struct {
		Name string
		In   string
		Want []byte
		Err  bool
	}{
		{
			Name: "spaced",
			In:   "48 89 c8",
			Want: []byte{0x48, 0x89, 0xc8},
		},
		{
			Name: "packed",
			In:   "4889c8",
			Want: []byte{0x48, 0x89, 0xc8},
		},
		{
			Name: "prefixed",
			In:   "0x48, 0x89,0XC8",
			Want: []byte{0x48, 0x89, 0xc8},
		},
		{
			Name: "comments",
			In:   "# prologue\n55 ; push rbp\n\tc3\r\n",
			Want: []byte{0x55, 0xc3},
		},
		{
			Name: "empty",
			In:   "",
			Want: []byte{},
		},
		{
			Name: "odd",
			In:   "48 8",
			Err:  true,
		},
		{
			Name: "invalid",
			In:   "zz",
			Err:  true,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got, err := ParseHex(test.In)
			if test.Err {
				if err == nil {
					t.Fatalf("ParseHex(%q): got %x, want error", test.In, got)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseHex(%q): %v", test.In, err)
			}

			if diff := cmp.Diff(test.Want, got); diff != "" {
				t.Fatalf("ParseHex(%q): (-want, +got)\n%s", test.In, diff)
			}
		})
	}
}

func TestGolden(t *testing.T) {
	names, err := filepath.Glob(filepath.Join("testdata", "*.hex"))
	if err != nil {
		t.Fatal(err)
	}

	if len(names) == 0 {
		t.Fatal("no test data")
	}

	for _, name := range names {
		base := strings.TrimSuffix(filepath.Base(name), ".hex")
		t.Run(base, func(t *testing.T) {
			input, err := os.ReadFile(name)
			if err != nil {
				t.Fatal(err)
			}

			want, err := os.ReadFile(filepath.Join("testdata", base+".golden"))
			if err != nil {
				t.Fatal(err)
			}

			code, err := ParseHex(string(input))
			if err != nil {
				t.Fatal(err)
			}

			var buf bytes.Buffer
			cfg := config.Default()
			d := &Decoder{
				Config:     cfg,
				Out:        listing.NewWriter(&buf, cfg.Options(), false),
				W:          &buf,
				Crosscheck: true,
				Detail:     true,
			}

			err = d.Decode(code, 0x1000)
			if err != nil {
				t.Fatalf("Decode(): %v", err)
			}

			if got := buf.String(); got != string(want) {
				t.Fatalf("Decode():\n%s", diff.Format(got, string(want)))
			}
		})
	}
}

func TestDump(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	d := &Decoder{
		Config: cfg,
		Out:    listing.NewWriter(&buf, cfg.Options(), false),
		W:      &buf,
		Dump:   true,
	}

	err := d.Decode([]byte{0x48, 0x89, 0xc8}, 0)
	if err != nil {
		t.Fatalf("Decode(): %v", err)
	}

	got := buf.String()
	for _, want := range []string{"mov rax, rcx", "(*decoder.Inst)", "MOV_Rmr64_R64"} {
		if !strings.Contains(got, want) {
			t.Errorf("Decode(): missing %q in:\n%s", want, got)
		}
	}
}
