// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package printer

import (
	"strconv"
	"strings"
)

// signedNumber formats v in the current
// syntax.
func (b *builder) signedNumber(v int64) string {
	if v < 0 {
		return "-" + b.unsignedNumber(uint64(-v))
	}

	return b.unsignedNumber(uint64(v))
}

// unsignedNumber formats v in the current
// syntax. Intel and MASM print small values
// in decimal.
func (b *builder) unsignedNumber(v uint64) string {
	if v <= 9 && b.opts.Syntax != ATT {
		return strconv.FormatUint(v, 10)
	}

	return b.hex(v)
}

// hex formats v in hexadecimal.
func (b *builder) hex(v uint64) string {
	if b.opts.Syntax != MASM {
		return "0x" + strconv.FormatUint(v, 16)
	}

	s := strings.ToUpper(strconv.FormatUint(v, 16))
	if s[0] >= 'A' {
		s = "0" + s
	}

	return s + "h"
}
