// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package decoder

import (
	"math/bits"
	"strings"
)

// attr is a set of attributes describing
// the prefixes and mode of an instruction
// being decoded.
type attr uint16

const (
	attr64     attr = 1 << iota // 64-bit mode.
	attrXS                      // F3 prefix, or VEX.pp = F3.
	attrXD                      // F2 prefix, or VEX.pp = F2.
	attrREXW                    // REX.W, VEX.W, or EVEX.W.
	attrOpsize                  // 66 prefix, or VEX.pp = 66.
	attrAdsize                  // 67 prefix.
	attrVEX                     // VEX or XOP prefix.
	attrVEXL                    // VEX.L or EVEX.L.
	attrEVEX                    // EVEX prefix.
	attrEVEXL2                  // EVEX.L'.
	attrEVEXK                   // EVEX opmask.
	attrEVEXKZ                  // EVEX opmask with zeroing.
	attrEVEXB                   // EVEX.b.

	numAttrMasks = 1 << iota
)

var attrNames = []string{
	"64BIT", "XS", "XD", "REXW", "OPSIZE", "ADSIZE", "VEX",
	"VEXL", "EVEX", "EVEXL2", "EVEXK", "EVEXKZ", "EVEXB",
}

func (a attr) String() string {
	if a == 0 {
		return "IC"
	}

	var names []string
	for i, name := range attrNames {
		if a&(1<<i) != 0 {
			names = append(names, name)
		}
	}

	return strings.Join(names, "+")
}

// count returns the number of attributes
// in a.
func (a attr) count() int {
	return bits.OnesCount16(uint16(a))
}

// legacyContexts lists the canonical
// contexts for instructions without a
// vector prefix. A mask selects the first
// context whose attributes it contains.
var legacyContexts = []attr{
	attr64 | attrREXW | attrXS,
	attr64 | attrREXW | attrXD,
	attr64 | attrREXW | attrOpsize,
	attr64 | attrREXW | attrAdsize,
	attr64 | attrXD | attrOpsize,
	attr64 | attrXD | attrAdsize,
	attr64 | attrXS | attrOpsize,
	attr64 | attrXS | attrAdsize,
	attr64 | attrXS,
	attr64 | attrXD,
	attr64 | attrOpsize | attrAdsize,
	attr64 | attrOpsize,
	attr64 | attrAdsize,
	attr64 | attrREXW,
	attr64,
	attrXS | attrOpsize,
	attrXD | attrOpsize,
	attrXS | attrAdsize,
	attrXD | attrAdsize,
	attrXS,
	attrXD,
	attrOpsize | attrAdsize,
	attrOpsize,
	attrAdsize,
	0,
}

// canonical returns the context selected
// by the attribute mask m.
func canonical(m attr) attr {
	if m&(attrVEX|attrEVEX) == 0 {
		for _, c := range legacyContexts {
			if m&c == c {
				return c
			}
		}

		return 0
	}

	c := m & (attr64 | attrREXW)
	evex := m&attrEVEX != 0
	switch {
	case evex:
		c |= attrEVEX
		if m&attrEVEXL2 != 0 {
			c |= attrEVEXL2
		} else if m&attrVEXL != 0 {
			c |= attrVEXL
		}
	default:
		c |= attrVEX | m&attrVEXL
	}

	switch {
	case m&attrOpsize != 0:
		c |= attrOpsize
	case m&attrXD != 0:
		c |= attrXD
	case m&attrXS != 0:
		c |= attrXS
	}

	if evex {
		switch {
		case m&attrEVEXKZ != 0:
			c |= attrEVEXKZ
		case m&attrEVEXK != 0:
			c |= attrEVEXK
		}

		c |= m & attrEVEXB
	}

	return c
}

var (
	// contexts holds each canonical
	// context, indexed by number.
	contexts []attr

	// contextOf maps every attribute mask
	// to the number of its context.
	contextOf [numAttrMasks]uint16
)

func init() {
	index := make(map[attr]uint16)
	for m := attr(0); m < numAttrMasks; m++ {
		c := canonical(m)
		i, ok := index[c]
		if !ok {
			i = uint16(len(contexts))
			index[c] = i
			contexts = append(contexts, c)
		}

		contextOf[m] = i
	}
}
