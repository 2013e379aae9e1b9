// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"io"

	"firefly-os.dev/tools/disasm/internal/x86"
)

// Iterator decodes successive instructions
// from a block of machine code.
type Iterator struct {
	code Code
	mode x86.Mode
	off  int
}

// NewIterator returns an iterator over the
// machine code b, which is loaded at addr.
func NewIterator(b []byte, addr uint64, mode x86.Mode) *Iterator {
	return &Iterator{
		code: Code{Addr: addr, Data: b},
		mode: mode,
	}
}

// Addr returns the address of the next
// instruction.
func (it *Iterator) Addr() uint64 {
	return it.code.Addr + uint64(it.off)
}

// Remaining returns the number of bytes
// not yet decoded.
func (it *Iterator) Remaining() int {
	return len(it.code.Data) - it.off
}

// Next decodes the next instruction. Next
// returns io.EOF once all of the code has
// been decoded.
//
// If the instruction cannot be decoded, Next
// returns the error and does not advance.
// Use Skip to continue past bad data.
func (it *Iterator) Next() (*Inst, error) {
	if it.off >= len(it.code.Data) {
		return nil, io.EOF
	}

	inst, err := Decode(it.code, it.Addr(), it.mode)
	if err != nil {
		return nil, err
	}

	it.off += inst.Len

	return inst, nil
}

// Skip advances past n bytes, returning
// them.
func (it *Iterator) Skip(n int) []byte {
	if rest := it.Remaining(); n > rest {
		n = rest
	}

	b := it.code.Data[it.off : it.off+n]
	it.off += n

	return b
}
