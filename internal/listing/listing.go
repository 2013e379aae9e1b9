// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package listing writes disassembly listings.
package listing

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"firefly-os.dev/tools/disasm/decoder"
	"firefly-os.dev/tools/disasm/internal/config"
	"firefly-os.dev/tools/disasm/internal/x86"
	"firefly-os.dev/tools/disasm/printer"
)

// ANSI escape sequences.
const (
	colorReset    = "\x1b[0m"
	colorAddr     = "\x1b[2m"
	colorMnemonic = "\x1b[1;36m"
	colorBad      = "\x1b[31m"
)

// bytesWidth is the width of the
// machine code column.
const bytesWidth = 3*10 - 1

// UseColor reports whether output to f
// should be colourised.
func UseColor(c config.Color, f *os.File) bool {
	switch c {
	case config.ColorAlways:
		return true
	case config.ColorNever:
		return false
	}

	return term.IsTerminal(int(f.Fd()))
}

// Writer writes a disassembly listing.
type Writer struct {
	w     io.Writer
	opts  printer.Options
	color bool
}

// NewWriter returns a listing writer that
// renders instructions with the given
// options.
func NewWriter(w io.Writer, opts printer.Options, color bool) *Writer {
	return &Writer{w: w, opts: opts, color: color}
}

func (w *Writer) paint(color, s string) string {
	if !w.color || s == "" {
		return s
	}

	return color + s + colorReset
}

func (w *Writer) line(addr uint64, code []byte, text string) error {
	var hex strings.Builder
	for i, b := range code {
		if i > 0 {
			hex.WriteByte(' ')
		}

		fmt.Fprintf(&hex, "%02x", b)
	}

	_, err := fmt.Fprintf(w.w, "%s  %-*s  %s\n", w.paint(colorAddr, fmt.Sprintf("%8x:", addr)), bytesWidth, hex.String(), text)

	return err
}

// Inst writes one decoded instruction.
func (w *Writer) Inst(inst *decoder.Inst) error {
	text := printer.Print(inst, w.opts)
	mnemonic := w.paint(colorMnemonic, text.Mnemonic)
	var b strings.Builder
	for _, prefix := range text.Prefixes {
		b.WriteString(prefix)
		b.WriteByte(' ')
	}

	b.WriteString(mnemonic)
	if text.Operands != "" {
		b.WriteByte(' ')
		b.WriteString(text.Operands)
	}

	return w.line(inst.Addr, inst.Bytes, b.String())
}

// Data writes bytes that could not be
// decoded.
func (w *Writer) Data(addr uint64, data []byte) error {
	return w.line(addr, data, w.paint(colorBad, printer.Data(data, w.opts).String()))
}

// Label writes a heading, such as a
// section name.
func (w *Writer) Label(addr uint64, name string) error {
	_, err := fmt.Fprintf(w.w, "\n%016x <%s>:\n", addr, name)

	return err
}

// Disassemble writes a listing of the code,
// which is loaded at addr. Undecodable bytes
// are written one at a time as data. If skipped
// is not nil, it is called for each byte that
// could not be decoded.
func (w *Writer) Disassemble(code []byte, addr uint64, mode x86.Mode, skipped func(addr uint64, err error)) error {
	it := decoder.NewIterator(code, addr, mode)
	for {
		inst, err := it.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			if skipped != nil {
				skipped(it.Addr(), err)
			}

			at := it.Addr()
			err = w.Data(at, it.Skip(1))
			if err != nil {
				return err
			}

			continue
		}

		err = w.Inst(inst)
		if err != nil {
			return err
		}
	}
}
