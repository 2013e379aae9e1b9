// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package dump disassembles the executable code in
// ELF binaries and raw files.
package dump

import (
	"bytes"
	"context"
	"debug/elf"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/arch/x86/x86asm"
	"golang.org/x/sync/errgroup"

	"firefly-os.dev/tools/disasm/decoder"
	"firefly-os.dev/tools/disasm/internal/config"
	"firefly-os.dev/tools/disasm/internal/listing"
	"firefly-os.dev/tools/disasm/internal/x86"
)

var program = filepath.Base(os.Args[0])

// Main disassembles the files named in the
// arguments.
func Main(ctx context.Context, w io.Writer, args []string) error {
	flags := flag.NewFlagSet("dump", flag.ExitOnError)

	var help, raw, verbose, crosscheck bool
	var addr, sections string
	flags.BoolVar(&help, "h", false, "Show this message and exit.")
	flags.BoolVar(&raw, "raw", false, "Treat each file as raw machine code, even if it is an ELF binary.")
	flags.StringVar(&addr, "addr", "0", "The address of the first instruction in a raw file.")
	flags.StringVar(&sections, "sections", "", "A comma-separated list of ELF sections to disassemble (default: all executable sections).")
	flags.BoolVar(&verbose, "v", false, "Log each byte that could not be decoded.")
	flags.BoolVar(&crosscheck, "crosscheck", false, "Compare instruction lengths with the x86asm decoder.")
	load := config.Flags(flags)

	flags.Usage = func() {
		log.Printf("Usage:\n  %s %s [OPTIONS] FILE...\n\n", program, flags.Name())
		flags.PrintDefaults()
		os.Exit(2)
	}

	err := flags.Parse(args)
	if err != nil || help {
		flags.Usage()
	}

	if flags.NArg() == 0 {
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

	// The CPU mode is taken from an ELF
	// binary unless it was set explicitly.
	var modeSet bool
	flags.Visit(func(f *flag.Flag) {
		if f.Name == "mode" {
			modeSet = true
		}
	})

	var only []string
	if sections != "" {
		only = strings.Split(sections, ",")
	}

	var all []*Section
	for _, name := range flags.Args() {
		data, err := os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read %s: %v", name, err)
		}

		var secs []*Section
		if raw {
			secs = []*Section{{File: name, Name: filepath.Base(name), Addr: start, Mode: cfg.Mode, Code: data}}
		} else {
			secs, err = Load(name, data, start, cfg.Mode, modeSet, only)
			if err != nil {
				return err
			}
		}

		all = append(all, secs...)
	}

	d := &Dumper{
		Config:     cfg,
		Color:      w == io.Writer(os.Stdout) && listing.UseColor(cfg.Color, os.Stdout),
		Verbose:    verbose,
		Crosscheck: crosscheck,
	}

	return d.Dump(ctx, w, all)
}

// Section is a block of machine code.
type Section struct {
	File string
	Name string
	Addr uint64
	Mode x86.Mode
	Code []byte
}

var elfMagic = []byte(elf.ELFMAG)

// Load returns the code in a file. ELF binaries
// are split into their executable sections, or
// into the named sections if only is non-empty.
// Any other file is treated as raw code loaded
// at addr.
func Load(name string, data []byte, addr uint64, mode x86.Mode, modeSet bool, only []string) ([]*Section, error) {
	if !bytes.HasPrefix(data, elfMagic) {
		return []*Section{{File: name, Name: filepath.Base(name), Addr: addr, Mode: mode, Code: data}}, nil
	}

	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF binary %s: %v", name, err)
	}

	defer f.Close()

	if !modeSet {
		switch f.Machine {
		case elf.EM_X86_64:
			mode = x86.Mode64
		case elf.EM_386:
			mode = x86.Mode32
		default:
			return nil, fmt.Errorf("%s: unsupported machine %s", name, f.Machine)
		}
	}

	wanted := make(map[string]bool)
	for _, sec := range only {
		wanted[sec] = true
	}

	var secs []*Section
	for _, sec := range f.Sections {
		if sec.Type != elf.SHT_PROGBITS {
			continue
		}

		if len(wanted) > 0 {
			if !wanted[sec.Name] {
				continue
			}

			delete(wanted, sec.Name)
		} else if sec.Flags&elf.SHF_EXECINSTR == 0 {
			continue
		}

		code, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("failed to read section %s in %s: %v", sec.Name, name, err)
		}

		secs = append(secs, &Section{File: name, Name: sec.Name, Addr: sec.Addr, Mode: mode, Code: code})
	}

	if len(wanted) > 0 {
		missing := make([]string, 0, len(wanted))
		for sec := range wanted {
			missing = append(missing, sec)
		}

		sort.Strings(missing)

		return nil, fmt.Errorf("%s: no section %s", name, strings.Join(missing, ", "))
	}

	return secs, nil
}

// Dumper disassembles sections concurrently.
type Dumper struct {
	Config     *config.Config
	Color      bool
	Verbose    bool
	Crosscheck bool
}

// Dump writes a listing of each section, in
// order.
func (d *Dumper) Dump(ctx context.Context, w io.Writer, sections []*Section) error {
	out := make([][]byte, len(sections))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(d.Config.Jobs)
	for i, sec := range sections {
		i, sec := i, sec
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			var buf bytes.Buffer
			lw := listing.NewWriter(&buf, d.Config.Options(), d.Color)
			err := lw.Label(sec.Addr, sec.Name)
			if err != nil {
				return err
			}

			var skipped int
			err = lw.Disassemble(sec.Code, sec.Addr, sec.Mode, func(addr uint64, err error) {
				skipped++
				if d.Verbose {
					log.Printf("%s: %s: %#x: skipping byte: %v", sec.File, sec.Name, addr, err)
				}
			})
			if err != nil {
				return err
			}

			if skipped > 0 && !d.Verbose {
				log.Printf("%s: %s: skipped %d undecodable bytes", sec.File, sec.Name, skipped)
			}

			if d.Crosscheck {
				if n := Crosscheck(sec); n > 0 {
					log.Printf("%s: %s: %d instructions differ in length from x86asm", sec.File, sec.Name, n)
				}
			}

			out[i] = buf.Bytes()

			return nil
		})
	}

	err := g.Wait()
	if err != nil {
		return err
	}

	for _, b := range out {
		_, err = w.Write(b)
		if err != nil {
			return err
		}
	}

	return nil
}

// Crosscheck decodes the section with both
// decoders and returns the number of
// instructions whose lengths differ. Bytes
// that x86asm rejects are not counted.
func Crosscheck(sec *Section) (differ int) {
	it := decoder.NewIterator(sec.Code, sec.Addr, sec.Mode)
	for {
		off := int(it.Addr() - sec.Addr)
		inst, err := it.Next()
		if errors.Is(err, io.EOF) {
			return differ
		}

		if err != nil {
			it.Skip(1)
			continue
		}

		want, err := x86asm.Decode(sec.Code[off:], int(sec.Mode.Int))
		if err == nil && want.Len != inst.Len {
			differ++
		}
	}
}
