// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"firefly-os.dev/tools/disasm/internal/x86"
	"firefly-os.dev/tools/disasm/printer"
)

func TestParse(t *testing.T) {
	tests := []struct {
		Name string
		Data string
		Want *Config
		Err  string
	}{
		{
			Name: "empty",
			Data: "",
			Want: Default(),
		},
		{
			Name: "all keys",
			Data: `
				mode = 32
				syntax = "att"
				unsigned-immediates = true
				color = "never"
				jobs = 3
			`,
			Want: &Config{
				Mode:               x86.Mode32,
				Syntax:             printer.ATT,
				UnsignedImmediates: true,
				Color:              ColorNever,
				Jobs:               3,
			},
		},
		{
			Name: "some keys",
			Data: `syntax = "masm"`,
			Want: &Config{
				Mode:   x86.Mode64,
				Syntax: printer.MASM,
				Color:  ColorAuto,
				Jobs:   runtime.GOMAXPROCS(0),
			},
		},
		{
			Name: "bad mode",
			Data: `mode = 8`,
			Err:  "invalid CPU mode",
		},
		{
			Name: "bad syntax",
			Data: `syntax = "plan9"`,
			Err:  "plan9",
		},
		{
			Name: "bad color",
			Data: `color = "sometimes"`,
			Err:  "invalid color",
		},
		{
			Name: "bad jobs",
			Data: `jobs = 0`,
			Err:  "invalid jobs",
		},
		{
			Name: "unknown key",
			Data: `verbose = true`,
			Err:  `unknown key "verbose"`,
		},
		{
			Name: "wrong type",
			Data: `mode = "64"`,
			Err:  "mode",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got := Default()
			err := got.Parse([]byte(test.Data))
			if test.Err != "" {
				if err == nil || !strings.Contains(err.Error(), test.Err) {
					t.Fatalf("Parse(): got error %v, want %q", err, test.Err)
				}

				return
			}

			if err != nil {
				t.Fatalf("Parse(): unexpected error: %v", err)
			}

			if diff := cmp.Diff(test.Want, got); diff != "" {
				t.Fatalf("Parse(): (-want, +got)\n%s", diff)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.toml")
	err := os.WriteFile(name, []byte("mode = 16\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	got, err := Load(name)
	if err != nil {
		t.Fatalf("Load(): %v", err)
	}

	if got.Mode != x86.Mode16 {
		t.Errorf("Load(): got mode %s, want 16", got.Mode.String)
	}

	_, err = Load(filepath.Join(dir, "missing.toml"))
	if err == nil {
		t.Errorf("Load(): got no error for a missing file")
	}

	got, err = Load("")
	if err != nil || got.Mode != x86.Mode64 {
		t.Errorf("Load(\"\"): got %v, %v, want defaults", got, err)
	}
}

func TestFlags(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "config.toml")
	err := os.WriteFile(name, []byte("mode = 16\nsyntax = \"att\"\njobs = 2\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	flags := flag.NewFlagSet("test", flag.ContinueOnError)
	load := Flags(flags)
	err = flags.Parse([]string{"-config", name, "-syntax", "masm", "-unsigned"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := load()
	if err != nil {
		t.Fatalf("load(): %v", err)
	}

	want := &Config{
		Mode:               x86.Mode16, // From the file.
		Syntax:             printer.MASM,
		UnsignedImmediates: true,
		Color:              ColorAuto,
		Jobs:               2,
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("load(): (-want, +got)\n%s", diff)
	}

	flags = flag.NewFlagSet("test", flag.ContinueOnError)
	load = Flags(flags)
	err = flags.Parse([]string{"-config", name, "-j", "0"})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := load(); err == nil {
		t.Errorf("load(): got no error for -j 0")
	}
}
