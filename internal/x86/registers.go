// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Register contains information about
// an x86 register, including its size
// in bits and its encoding.
type Register struct {
	Name    string       `json:"name"`
	Type    RegisterType `json:"-"`
	Bits    int          `json:"-"`
	Reg     byte         `json:"-"` // The 5-bit encoding of the register.
	MinMode uint8        `json:"-"` // Any CPU mode requirements as a number of bits.
	EVEX    bool         `json:"-"` // Whether the register can only be used with EVEX encoding.
}

func (r *Register) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Name)
}

func (r *Register) isArg()            {}
func (r *Register) String() string    { return r.Name }
func (r *Register) UpperName() string { return strings.ToUpper(r.Name) }

// registerFile builds a set of registers of
// the same type, in encoding order. Registers
// from index 8 onwards need a REX prefix, and
// registers from index 16 onwards need EVEX.
func registerFile(typ RegisterType, bits int, names ...string) []*Register {
	regs := make([]*Register, len(names))
	for i, name := range names {
		reg := &Register{Name: name, Type: typ, Bits: bits, Reg: byte(i)}
		if i >= 8 && (typ == TypeGeneralPurpose || typ >= TypeXMM) {
			reg.MinMode = 64
		}

		if i >= 16 {
			reg.EVEX = true
		}

		regs[i] = reg
	}

	return regs
}

// numbered returns the names prefix0 to
// prefixN-1, each followed by suffix.
func numbered(prefix, suffix string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("%s%d%s", prefix, i, suffix)
	}

	return names
}

func gprs(bits int, low []string, suffix string) []*Register {
	names := append(low, numbered("r", suffix, 16)[8:]...)
	regs := registerFile(TypeGeneralPurpose, bits, names...)
	for i, reg := range regs {
		if bits == 64 || (bits == 8 && i >= 4) {
			reg.MinMode = 64
		}
	}

	return regs
}

// legacy8 returns the 8-bit registers
// available without a REX prefix.
func legacy8(rex []*Register) []*Register {
	high := registerFile(TypeGeneralPurpose, 8, "ah", "ch", "dh", "bh")
	for i, reg := range high {
		reg.Reg = byte(i + 4)
	}

	return append(rex[:4:4], high...)
}

// Register files, indexed by encoding.
var (
	Registers8bitGeneralPurpose  = gprs(8, []string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil"}, "b")
	Registers8bitLegacy          = legacy8(Registers8bitGeneralPurpose)
	Registers16bitGeneralPurpose = gprs(16, []string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di"}, "w")
	Registers32bitGeneralPurpose = gprs(32, []string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}, "d")
	Registers64bitGeneralPurpose = gprs(64, []string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi"}, "")
	Registers16bitSegment        = registerFile(TypeSegment, 16, "es", "cs", "ss", "ds", "fs", "gs")
	RegistersStackIndices        = registerFile(TypeX87, 80, numbered("st(", ")", 8)...)
	RegistersControl             = registerFile(TypeControl, 64, numbered("cr", "", 16)...)
	RegistersDebug               = registerFile(TypeDebug, 64, numbered("dr", "", 16)...)
	RegistersOpmask              = registerFile(TypeOpmask, 64, numbered("k", "", 8)...)
	Registers64bitMMX            = registerFile(TypeMMX, 64, numbered("mm", "", 8)...)
	Registers128bitXMM           = registerFile(TypeXMM, 128, numbered("xmm", "", 32)...)
	Registers256bitYMM           = registerFile(TypeYMM, 256, numbered("ymm", "", 32)...)
	Registers512bitZMM           = registerFile(TypeZMM, 512, numbered("zmm", "", 32)...)
	RegistersInstructionPointer  = []*Register{
		{Name: "ip", Type: TypeInstructionPointer, Bits: 16},
		{Name: "eip", Type: TypeInstructionPointer, Bits: 32},
		{Name: "rip", Type: TypeInstructionPointer, Bits: 64, MinMode: 64},
	}
)

// Registers referenced by name.
var (
	AL, CL, DL, BL = Registers8bitLegacy[0], Registers8bitLegacy[1], Registers8bitLegacy[2], Registers8bitLegacy[3]
	AH, CH, DH, BH = Registers8bitLegacy[4], Registers8bitLegacy[5], Registers8bitLegacy[6], Registers8bitLegacy[7]

	AX, CX, DX, BX = Registers16bitGeneralPurpose[0], Registers16bitGeneralPurpose[1], Registers16bitGeneralPurpose[2], Registers16bitGeneralPurpose[3]
	SP, BP, SI, DI = Registers16bitGeneralPurpose[4], Registers16bitGeneralPurpose[5], Registers16bitGeneralPurpose[6], Registers16bitGeneralPurpose[7]

	EAX, ECX, EDX, EBX = Registers32bitGeneralPurpose[0], Registers32bitGeneralPurpose[1], Registers32bitGeneralPurpose[2], Registers32bitGeneralPurpose[3]
	ESP, EBP, ESI, EDI = Registers32bitGeneralPurpose[4], Registers32bitGeneralPurpose[5], Registers32bitGeneralPurpose[6], Registers32bitGeneralPurpose[7]

	RAX, RCX, RDX, RBX = Registers64bitGeneralPurpose[0], Registers64bitGeneralPurpose[1], Registers64bitGeneralPurpose[2], Registers64bitGeneralPurpose[3]
	RSP, RBP, RSI, RDI = Registers64bitGeneralPurpose[4], Registers64bitGeneralPurpose[5], Registers64bitGeneralPurpose[6], Registers64bitGeneralPurpose[7]
	R8                 = Registers64bitGeneralPurpose[8]

	ES, CS, SS = Registers16bitSegment[0], Registers16bitSegment[1], Registers16bitSegment[2]
	DS, FS, GS = Registers16bitSegment[3], Registers16bitSegment[4], Registers16bitSegment[5]

	IP, EIP, RIP = RegistersInstructionPointer[0], RegistersInstructionPointer[1], RegistersInstructionPointer[2]

	ST0  = RegistersStackIndices[0]
	CR8  = RegistersControl[8]
	K0   = RegistersOpmask[0]
	XMM0 = Registers128bitXMM[0]
)

// Registers contains every register
// the decoder can produce.
var Registers = concat(
	Registers8bitGeneralPurpose, Registers8bitLegacy[4:],
	Registers16bitGeneralPurpose, Registers32bitGeneralPurpose, Registers64bitGeneralPurpose,
	RegistersInstructionPointer, Registers16bitSegment, RegistersStackIndices,
	RegistersControl, RegistersDebug, RegistersOpmask, Registers64bitMMX,
	Registers128bitXMM, Registers256bitYMM, Registers512bitZMM,
)

func concat(sets ...[]*Register) []*Register {
	var out []*Register
	for _, set := range sets {
		out = append(out, set...)
	}

	return out
}

// RegisterSizes maps the names of fixed-size
// register names (lower case) to their size
// in bits.
var RegisterSizes = make(map[string]int)

var RegistersByName = make(map[string]*Register)

func init() {
	for _, reg := range Registers {
		RegisterSizes[reg.Name] = reg.Bits
		RegistersByName[reg.Name] = reg
	}
}

// GeneralPurpose returns the general purpose
// register with the given size and encoding.
// Without a REX prefix, the 8-bit encodings
// 4 to 7 select AH, CH, DH, and BH.
func GeneralPurpose(bits int, index byte, rex bool) *Register {
	index &= 0b1111
	switch bits {
	case 8:
		if !rex && index < 8 {
			return Registers8bitLegacy[index]
		}

		return Registers8bitGeneralPurpose[index]
	case 16:
		return Registers16bitGeneralPurpose[index]
	case 32:
		return Registers32bitGeneralPurpose[index]
	case 64:
		return Registers64bitGeneralPurpose[index]
	}

	return nil
}

// Vector returns the vector register with
// the given size and encoding.
func Vector(bits int, index byte) *Register {
	index &= 0b1_1111
	switch bits {
	case 64:
		return Registers64bitMMX[index&0b111]
	case 128:
		return Registers128bitXMM[index]
	case 256:
		return Registers256bitYMM[index]
	case 512:
		return Registers512bitZMM[index]
	}

	return nil
}

// RegisterType categorises an x86
// register.
type RegisterType uint8

const (
	_ RegisterType = iota
	TypeGeneralPurpose
	TypeInstructionPointer
	TypeSegment
	TypeX87
	TypeControl
	TypeDebug
	TypeOpmask
	TypeMMX
	TypeXMM
	TypeYMM
	TypeZMM
)

func (t RegisterType) String() string {
	switch t {
	case TypeGeneralPurpose:
		return "general purpose register"
	case TypeInstructionPointer:
		return "instruction pointer register"
	case TypeSegment:
		return "segment register"
	case TypeX87:
		return "x87 register"
	case TypeControl:
		return "control register"
	case TypeDebug:
		return "debug register"
	case TypeOpmask:
		return "opmask register"
	case TypeMMX:
		return "MMX register"
	case TypeXMM:
		return "XMM register"
	case TypeYMM:
		return "YMM register"
	case TypeZMM:
		return "ZMM register"
	default:
		return fmt.Sprintf("RegisterType(%d)", t)
	}
}
