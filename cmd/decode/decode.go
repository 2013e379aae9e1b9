// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package decode disassembles machine code given in
// hexadecimal.
package decode

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"golang.org/x/arch/x86/x86asm"

	"firefly-os.dev/tools/disasm/decoder"
	"firefly-os.dev/tools/disasm/internal/config"
	"firefly-os.dev/tools/disasm/internal/listing"
	"firefly-os.dev/tools/disasm/printer"
)

var program = filepath.Base(os.Args[0])

// Main disassembles the machine code in the
// arguments, or in stdin if there are none.
func Main(ctx context.Context, w io.Writer, args []string) error {
	flags := flag.NewFlagSet("decode", flag.ExitOnError)

	var help, crosscheck, dump, detail bool
	var addr string
	flags.BoolVar(&help, "h", false, "Show this message and exit.")
	flags.StringVar(&addr, "addr", "0", "The address of the first instruction.")
	flags.BoolVar(&crosscheck, "crosscheck", false, "Compare each instruction's length with the x86asm decoder.")
	flags.BoolVar(&dump, "dump", false, "Print the decoded instruction structure.")
	flags.BoolVar(&detail, "detail", false, "Print each instruction's operands, flags, and groups.")
	load := config.Flags(flags)

	flags.Usage = func() {
		log.Printf("Usage:\n  %s %s [OPTIONS] [HEX...]\n\n", program, flags.Name())
		flags.PrintDefaults()
		os.Exit(2)
	}

	err := flags.Parse(args)
	if err != nil || help {
		flags.Usage()
	}

	cfg, err := load()
	if err != nil {
		return err
	}

	start, err := strconv.ParseUint(strings.TrimPrefix(addr, "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("invalid -addr %q: %v", addr, err)
	}

	var text string
	if flags.NArg() == 0 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %v", err)
		}

		text = string(data)
	} else {
		text = strings.Join(flags.Args(), " ")
	}

	code, err := ParseHex(text)
	if err != nil {
		return err
	}

	color := w == io.Writer(os.Stdout) && listing.UseColor(cfg.Color, os.Stdout)
	d := &Decoder{
		Config:     cfg,
		Out:        listing.NewWriter(w, cfg.Options(), color),
		W:          w,
		Crosscheck: crosscheck,
		Dump:       dump,
		Detail:     detail,
	}

	return d.Decode(code, start)
}

// ParseHex parses machine code in hexadecimal.
// Whitespace, commas, and any "0x" prefixes
// are ignored, as are comments starting with
// '#' or ';' and running to the end of the
// line.
func ParseHex(s string) ([]byte, error) {
	var b strings.Builder
	for _, line := range strings.Split(s, "\n") {
		if i := strings.IndexAny(line, "#;"); i >= 0 {
			line = line[:i]
		}

		for _, field := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' || r == '\r' }) {
			field = strings.TrimPrefix(strings.TrimPrefix(field, "0x"), "0X")
			b.WriteString(field)
		}
	}

	code, err := hex.DecodeString(b.String())
	if err != nil {
		return nil, fmt.Errorf("invalid machine code: %v", err)
	}

	return code, nil
}

// Decoder writes a listing of machine code.
type Decoder struct {
	Config *config.Config
	Out    *listing.Writer
	W      io.Writer // For any details.

	Crosscheck bool
	Dump       bool
	Detail     bool
}

// Decode disassembles the code, which is
// loaded at addr.
func (d *Decoder) Decode(code []byte, addr uint64) error {
	it := decoder.NewIterator(code, addr, d.Config.Mode)
	for {
		at := it.Addr()
		inst, err := it.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			log.Printf("%#x: %v", at, err)
			err = d.Out.Data(at, it.Skip(1))
			if err != nil {
				return err
			}

			continue
		}

		err = d.Out.Inst(inst)
		if err != nil {
			return err
		}

		if d.Crosscheck {
			d.crosscheck(inst, code[at-addr:])
		}

		if d.Detail {
			err = writeDetail(d.W, printer.Print(inst, d.Config.Options()).Detail)
			if err != nil {
				return err
			}
		}

		if d.Dump {
			cfg := spew.ConfigState{Indent: "\t", DisablePointerAddresses: true, DisableMethods: true, MaxDepth: 3}
			cfg.Fdump(d.W, inst)
		}
	}
}

// crosscheck logs any instruction whose length
// differs from the one x86asm decodes.
func (d *Decoder) crosscheck(inst *decoder.Inst, code []byte) {
	got, err := x86asm.Decode(code, int(d.Config.Mode.Int))
	if err != nil {
		return
	}

	if got.Len != inst.Len {
		log.Printf("%#x: decoded %d bytes as %s, x86asm decoded %d bytes as %s", inst.Addr, inst.Len, inst, got.Len, x86asm.IntelSyntax(got, inst.Addr, nil))
	}
}

func writeDetail(w io.Writer, d *printer.Detail) error {
	if d == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\t; %s", d.UID)
	for i, op := range d.Operands {
		if i == 0 {
			b.WriteString(" ")
		} else {
			b.WriteString(",")
		}

		fmt.Fprintf(&b, "%s%d:%s", op.Kind, op.Size, op.Access)
	}

	if d.Condition != "" {
		fmt.Fprintf(&b, " cond=%s", d.Condition)
	}

	if d.FlagsRead != 0 {
		fmt.Fprintf(&b, " reads=%s", d.FlagsRead)
	}

	if d.FlagsWritten != 0 {
		fmt.Fprintf(&b, " writes=%s", d.FlagsWritten)
	}

	if d.Groups != 0 {
		fmt.Fprintf(&b, " groups=%s", d.Groups)
	}

	if len(d.Features) > 0 {
		fmt.Fprintf(&b, " cpuid=%s", strings.Join(d.Features, ","))
	}

	b.WriteByte('\n')
	_, err := io.WriteString(w, b.String())

	return err
}
