// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"firefly-os.dev/tools/disasm/internal/x86"
)

func TestLookup(t *testing.T) {
	mode32 := x86.Mode32
	tests := []struct {
		Name string
		Mode *x86.Mode
		UIDs []string
		Reg  *Register
		Err  string
	}{
		{
			Name: "popcnt",
			UIDs: []string{
				"POPCNT_R16_Rmr16", "POPCNT_R16_M16",
				"POPCNT_R32_Rmr32", "POPCNT_R32_M32",
				"POPCNT_R64_Rmr64", "POPCNT_R64_M64",
			},
		},
		{
			Name: "POPCNT",
			Mode: &mode32,
			UIDs: []string{
				"POPCNT_R16_Rmr16", "POPCNT_R16_M16",
				"POPCNT_R32_Rmr32", "POPCNT_R32_M32",
			},
		},
		{
			Name: "POPCNT_R32_Rmr32",
			UIDs: []string{"POPCNT_R32_Rmr32"},
		},
		{
			Name: "RAX",
			Reg: &Register{
				Name:    "rax",
				Type:    "general purpose register",
				Bits:    64,
				MinMode: 64,
			},
		},
		{
			Name: "k1",
			Reg: &Register{
				Name: "k1",
				Type: "opmask register",
				Bits: 64,
				Reg:  1,
			},
		},
		{
			Name: "nosuch",
			Err:  "no instruction or register found",
		},
		{
			Name: "POPCNT_R64_Rmr64",
			Mode: &mode32,
			Err:  "no instruction forms valid in 32-bit mode",
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			def, err := Lookup(test.Name, test.Mode)
			if test.Err != "" {
				if err == nil || !strings.Contains(err.Error(), test.Err) {
					t.Fatalf("Lookup(%q): got error %v, want %q", test.Name, err, test.Err)
				}

				return
			}

			if err != nil {
				t.Fatalf("Lookup(%q): %v", test.Name, err)
			}

			var uids []string
			for _, inst := range def.Instructions {
				uids = append(uids, inst.UID)
			}

			if diff := cmp.Diff(test.UIDs, uids); diff != "" {
				t.Errorf("Lookup(%q): instructions (-want, +got)\n%s", test.Name, diff)
			}

			if diff := cmp.Diff(test.Reg, def.Register); diff != "" {
				t.Errorf("Lookup(%q): register (-want, +got)\n%s", test.Name, diff)
			}
		})
	}
}

func TestMainText(t *testing.T) {
	var buf bytes.Buffer
	err := Main(context.Background(), &buf, []string{"popcnt", "eax"})
	if err != nil {
		t.Fatalf("Main(): %v", err)
	}

	got := buf.String()
	for _, want := range []string{
		"popcnt:\n",
		"\tPOPCNT_R32_Rmr32: POPCNT r32, r/m32\n",
		"\t\tencoding: F3 0F B8 /r\n",
		"\t\tcpuid:    POPCNT\n",
		"\n\neax: register\n",
		"\tbits:  32\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("Main(): missing %q in:\n%s", want, got)
		}
	}
}

func TestMainJSON(t *testing.T) {
	var buf bytes.Buffer
	err := Main(context.Background(), &buf, []string{"-json", "-mode", "64", "cpuid"})
	if err != nil {
		t.Fatalf("Main(): %v", err)
	}

	var got struct {
		Name         string
		Instructions []struct {
			UID      string
			Encoding struct {
				Opcode string
			}
			Modes []string
		}
	}

	err = json.Unmarshal(buf.Bytes(), &got)
	if err != nil {
		t.Fatalf("Main(): invalid JSON: %v\n%s", err, buf.Bytes())
	}

	if got.Name != "cpuid" || len(got.Instructions) != 1 {
		t.Fatalf("Main(): got %+v", got)
	}

	inst := got.Instructions[0]
	if inst.UID != "CPUID" || inst.Encoding.Opcode != "0fa2" || !strings.Contains(strings.Join(inst.Modes, ","), "64") {
		t.Errorf("Main(): got %+v", inst)
	}
}
