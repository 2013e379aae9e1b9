// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"errors"
	"fmt"
)

// Decoding failures. Every error returned
// by Decode wraps exactly one of these.
var (
	ErrOutOfRange    = errors.New("read out of range")
	ErrUnrecognized  = errors.New("unrecognized instruction")
	ErrTooLong       = errors.New("instruction exceeds 15 bytes")
	ErrIllegalPrefix = errors.New("illegal prefix")
	ErrInvalidMode   = errors.New("invalid in this CPU mode")
	ErrUnsupported   = errors.New("unsupported encoding")
)

// Error describes a failure to decode the
// instruction at Addr.
type Error struct {
	Addr uint64
	Len  int // The number of bytes consumed before the failure.
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("decoding %#x: %v", e.Addr, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// sentinels lists the decoding failures,
// in the order they are checked.
var sentinels = []error{
	ErrOutOfRange,
	ErrTooLong,
	ErrUnrecognized,
	ErrIllegalPrefix,
	ErrInvalidMode,
	ErrUnsupported,
}

// classify returns err if it wraps one
// of the decoding failures, or wraps err
// in ErrOutOfRange otherwise. Any other
// error can only have come from a Reader.
func classify(err error) error {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	return fmt.Errorf("%w: %v", ErrOutOfRange, err)
}
