// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package x86 prints the disassembler's understanding
// of x86 instructions and registers.
package x86

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"firefly-os.dev/tools/disasm/internal/x86"
)

var program = filepath.Base(os.Args[0])

// Main prints information about the given
// instruction mnemonics, instruction UIDs,
// and registers.
func Main(ctx context.Context, w io.Writer, args []string) error {
	flags := flag.NewFlagSet("x86", flag.ExitOnError)

	var help, asJSON bool
	var mode string
	flags.BoolVar(&help, "h", false, "Show this message and exit.")
	flags.BoolVar(&asJSON, "json", false, "Print the definitions as JSON.")
	flags.StringVar(&mode, "mode", "", "Only show instruction forms valid in the given CPU mode (16, 32, or 64).")

	flags.Usage = func() {
		log.Printf("Usage:\n  %s %s [OPTIONS] NAME...\n\n", program, flags.Name())
		flags.PrintDefaults()
		os.Exit(2)
	}

	err := flags.Parse(args)
	if err != nil || help || flags.NArg() == 0 {
		flags.Usage()
	}

	var only *x86.Mode
	if mode != "" {
		m, err := x86.ParseMode(mode)
		if err != nil {
			return err
		}

		only = &m
	}

	var buf bytes.Buffer
	for i, name := range flags.Args() {
		if i > 0 && !asJSON {
			// Add a spacer.
			buf.WriteByte('\n')
		}

		def, err := Lookup(name, only)
		if err != nil {
			return err
		}

		if asJSON {
			data, err := json.MarshalIndent(def, "", "\t")
			if err != nil {
				return fmt.Errorf("failed to encode %s: %v", name, err)
			}

			buf.Write(data)
			buf.WriteByte('\n')
			continue
		}

		def.print(&buf)
	}

	_, err = w.Write(buf.Bytes())

	return err
}

// Definition describes what a name refers to.
type Definition struct {
	Name         string             `json:"name"`
	Register     *Register          `json:"register,omitempty"`
	Instructions []*x86.Instruction `json:"instructions,omitempty"`
}

// Register describes a register.
type Register struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Bits    int    `json:"bits,omitempty"`
	Reg     byte   `json:"reg"`
	MinMode uint8  `json:"minMode,omitempty"`
	EVEX    bool   `json:"evex,omitempty"`
}

// Lookup returns the definition of a register
// name, instruction mnemonic, or instruction
// UID. If mode is not nil, only the instruction
// forms valid in that mode are included.
func Lookup(name string, mode *x86.Mode) (*Definition, error) {
	if reg := x86.RegistersByName[strings.ToLower(name)]; reg != nil {
		return &Definition{
			Name: reg.Name,
			Register: &Register{
				Name:    reg.Name,
				Type:    reg.Type.String(),
				Bits:    reg.Bits,
				Reg:     reg.Reg,
				MinMode: reg.MinMode,
				EVEX:    reg.EVEX,
			},
		}, nil
	}

	var forms []*x86.Instruction
	if inst := x86.InstructionsByUID[name]; inst != nil {
		forms = []*x86.Instruction{inst}
	} else {
		forms = x86.InstructionsByMnemonic[strings.ToLower(name)]
	}

	if len(forms) == 0 {
		return nil, fmt.Errorf("%s: no instruction or register found", name)
	}

	def := &Definition{Name: strings.ToLower(name)}
	for _, form := range forms {
		if mode == nil || form.Supports(*mode) {
			def.Instructions = append(def.Instructions, form)
		}
	}

	if len(def.Instructions) == 0 {
		return nil, fmt.Errorf("%s: no instruction forms valid in %s-bit mode", name, mode.String)
	}

	return def, nil
}

func (def *Definition) print(w *bytes.Buffer) {
	if reg := def.Register; reg != nil {
		fmt.Fprintf(w, "%s: register\n", reg.Name)
		fmt.Fprintf(w, "\ttype:  %s\n", reg.Type)
		if reg.Bits != 0 {
			fmt.Fprintf(w, "\tbits:  %d\n", reg.Bits)
		}
		fmt.Fprintf(w, "\treg:   %#05b\n", reg.Reg)
		if reg.MinMode != 0 {
			fmt.Fprintf(w, "\tmode:  %d\n", reg.MinMode)
		}
		if reg.EVEX {
			fmt.Fprintf(w, "\tEVEX:  only\n")
		}

		return
	}

	fmt.Fprintf(w, "%s:\n", def.Name)
	for _, inst := range def.Instructions {
		fmt.Fprintf(w, "\t%s: %s\n", inst.UID, inst.Syntax)
		fmt.Fprintf(w, "\t\tencoding: %s\n", inst.Encoding.Syntax)

		var modes []string
		for _, mode := range x86.Modes {
			if inst.Supports(mode) {
				modes = append(modes, mode.String)
			}
		}
		fmt.Fprintf(w, "\t\tmodes:    %s\n", strings.Join(modes, ", "))

		if len(inst.Parameters) > 0 {
			params := make([]string, len(inst.Parameters))
			for i, param := range inst.Parameters {
				params[i] = fmt.Sprintf("%s (%s, %s)", param.UID, param.Type, param.Encoding)
			}
			fmt.Fprintf(w, "\t\toperands: %s\n", strings.Join(params, "; "))
		}
		if len(inst.CPUID) > 0 {
			fmt.Fprintf(w, "\t\tcpuid:    %s\n", strings.Join(inst.CPUID, ", "))
		}
		if len(inst.Tags) > 0 {
			fmt.Fprintf(w, "\t\ttags:     %s\n", strings.Join(inst.Tags, ", "))
		}
		if inst.Tuple != x86.TupleNone {
			fmt.Fprintf(w, "\t\ttuple:    %s\n", inst.Tuple)
		}
	}
}
