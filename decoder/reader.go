// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"golang.org/x/crypto/cryptobyte"
)

// MaxLen is the length in bytes of the
// longest valid x86 instruction.
const MaxLen = 15

// Reader provides random access to the
// bytes of machine code by address.
//
// ReadByteAt must return ErrOutOfRange
// (or an error wrapping it) for any
// address it cannot read.
type Reader interface {
	ReadByteAt(addr uint64) (byte, error)
}

// Code is a Reader for a contiguous
// block of machine code, loaded at
// Addr.
type Code struct {
	Addr uint64
	Data []byte
}

var _ Reader = Code{}

func (c Code) ReadByteAt(addr uint64) (byte, error) {
	if addr < c.Addr {
		return 0, ErrOutOfRange
	}

	off := addr - c.Addr
	s := cryptobyte.String(c.Data)
	if off >= uint64(len(s)) || !s.Skip(int(off)) {
		return 0, ErrOutOfRange
	}

	var b uint8
	if !s.ReadUint8(&b) {
		return 0, ErrOutOfRange
	}

	return b, nil
}

// cursor reads the bytes of a single
// instruction, enforcing the length
// limit.
type cursor struct {
	r    Reader
	addr uint64 // Address of the first byte.
	n    int    // Bytes consumed.
	buf  [MaxLen]byte
}

// next consumes one byte.
func (c *cursor) next() (byte, error) {
	if c.n >= MaxLen {
		return 0, ErrTooLong
	}

	b, err := c.r.ReadByteAt(c.addr + uint64(c.n))
	if err != nil {
		return 0, classify(err)
	}

	c.buf[c.n] = b
	c.n++

	return b, nil
}

// peek returns the byte i bytes past
// the cursor without consuming it.
func (c *cursor) peek(i int) (byte, error) {
	if c.n+i >= MaxLen {
		return 0, ErrTooLong
	}

	b, err := c.r.ReadByteAt(c.addr + uint64(c.n+i))
	if err != nil {
		return 0, classify(err)
	}

	return b, nil
}

// skip consumes n bytes that have
// already been peeked.
func (c *cursor) skip(n int) error {
	for i := 0; i < n; i++ {
		if _, err := c.next(); err != nil {
			return err
		}
	}

	return nil
}

// uint reads a little-endian value of
// size bytes. On failure, nothing is
// consumed.
func (c *cursor) uint(size int) (uint64, error) {
	start := c.n
	var v uint64
	for i := 0; i < size; i++ {
		b, err := c.next()
		if err != nil {
			c.n = start
			return 0, err
		}

		v |= uint64(b) << (8 * i)
	}

	return v, nil
}

// int reads a little-endian value of
// size bytes, sign-extending it.
func (c *cursor) int(size int) (int64, error) {
	v, err := c.uint(size)
	if err != nil {
		return 0, err
	}

	shift := 64 - 8*size

	return int64(v<<shift) >> shift, nil
}

// bytes returns a copy of the bytes
// consumed so far.
func (c *cursor) bytes() []byte {
	b := make([]byte, c.n)
	copy(b, c.buf[:c.n])

	return b
}
