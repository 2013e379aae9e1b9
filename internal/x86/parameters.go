// Copyright 2023 The Firefly Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package x86

import (
	"encoding/json"
	"fmt"
)

// Parameter includes structured information
// about a parameter to an x86 instruction.
type Parameter struct {
	Type      ParameterType     // The parameter type.
	Encoding  ParameterEncoding // The way the operand is encoded in machine code.
	UID       string            // The unique identifier of the parameter.
	Bits      int               // The parameter size in bits.
	Syntax    string            // The Intel syntax for the parameter.
	Registers []*Register       // The set of acceptable registers (if any) for this operand.
}

func (p *Parameter) String() string {
	return fmt.Sprintf("%s %s (%s)", p.Type, p.Syntax, p.Encoding)
}

func (p *Parameter) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Syntax)
}

// Broadcast returns whether the parameter is
// an EVEX broadcast memory operand.
func (p *Parameter) Broadcast() bool {
	switch p {
	case ParamM16bcst, ParamM32bcst, ParamM64bcst:
		return true
	}

	return false
}

// Memory returns whether the parameter is
// a memory operand in the ModR/M byte.
func (p *Parameter) Memory() bool {
	return p.Type == TypeMemory && (p.Encoding == EncodingModRMrm || p.Encoding == EncodingSIB)
}

// ParameterType categories a parameter
// to an x86 instruction.
type ParameterType uint8

const (
	_                     ParameterType = iota
	TypeSignedImmediate                 // A signed integer literal.
	TypeUnsignedImmediate               // An unsigned integer literal.
	TypeRegister                        // A register selection.
	TypeStackIndex                      // An x87 FPU stack index.
	TypeRelativeAddress                 // An address offset from the instruction pointer.
	TypeFarPointer                      // A segment selector and absolute address offset pair.
	TypeMemory                          // A memory address expression.
	TypeMemoryOffset                    // A memory offset expression.
	TypeStringDst                       // A memory address for a string destination.
	TypeStringSrc                       // A memory address for a string source.
)

func (t ParameterType) String() string {
	switch t {
	case TypeSignedImmediate:
		return "signed immediate"
	case TypeUnsignedImmediate:
		return "unsigned immediate"
	case TypeRegister:
		return "register"
	case TypeStackIndex:
		return "stack index"
	case TypeRelativeAddress:
		return "relative address"
	case TypeFarPointer:
		return "far pointer"
	case TypeMemory:
		return "memory"
	case TypeMemoryOffset:
		return "memory offset"
	case TypeStringDst:
		return "string destination"
	case TypeStringSrc:
		return "string source"
	default:
		return fmt.Sprintf("ParameterType(%d)", t)
	}
}

// ParameterEncoding represents a way in
// which an x86 instruction's parameter
// is encoded (or not) in the machine
// code.
type ParameterEncoding uint8

const (
	_                        ParameterEncoding = iota
	EncodingNone                               // The parameter is required in the assembly but is not encoded.
	EncodingVEXvvvv                            // The parameter is encoded in the VEX.vvvv field of the machine code.
	EncodingRegisterModifier                   // The parameter is encoded in the opcode byte.
	EncodingStackIndex                         // The parameter is an x87 stack index, encoded in the opcode byte.
	EncodingCodeOffset                         // The parameter is encoded as a code offset after the opcode.
	EncodingModRMreg                           // The parameter is encoded in the ModR/M.reg field of the machine code.
	EncodingModRMrm                            // The parameter is encoded in the ModR/M.rm field of the machine code.
	EncodingSIB                                // The parameter is encoded in the SIB byte.
	EncodingDisplacement                       // The parameter is encoded in the displacement field of the machine code.
	EncodingImmediate                          // The parameter is encoded in the immediate field of the machine code.
	EncodingVEXis4                             // The parameter is encoded in the VEX /is4 immediate byte.
)

func (e ParameterEncoding) String() string {
	switch e {
	case EncodingNone:
		return "none"
	case EncodingVEXvvvv:
		return "VEX.vvvv"
	case EncodingRegisterModifier:
		return "register modifier"
	case EncodingStackIndex:
		return "stack index"
	case EncodingCodeOffset:
		return "code offset"
	case EncodingModRMreg:
		return "ModR/M reg"
	case EncodingModRMrm:
		return "ModR/M r/m"
	case EncodingSIB:
		return "SIB"
	case EncodingDisplacement:
		return "displacement"
	case EncodingImmediate:
		return "immediate"
	case EncodingVEXis4:
		return "VEX /is4"
	default:
		return fmt.Sprintf("ParameterEncoding(%d)", e)
	}
}

func fixed(uid string, bits int, reg *Register) *Parameter {
	return &Parameter{TypeRegister, EncodingNone, uid, bits, uid, []*Register{reg}}
}

// Define the parameters.
var (
	// Explicit unencoded register literals.
	ParamAL       = fixed("AL", 8, AL)
	ParamCL       = fixed("CL", 8, CL)
	ParamAX       = fixed("AX", 16, AX)
	ParamDX       = fixed("DX", 16, DX)
	ParamEAX      = fixed("EAX", 32, EAX)
	ParamECX      = fixed("ECX", 32, ECX)
	ParamRAX      = fixed("RAX", 64, RAX)
	ParamXMM0     = fixed("XMM0", 128, XMM0)
	ParamES       = fixed("ES", 16, ES)
	ParamCS       = fixed("CS", 16, CS)
	ParamSS       = fixed("SS", 16, SS)
	ParamDS       = fixed("DS", 16, DS)
	ParamFS       = fixed("FS", 16, FS)
	ParamGS       = fixed("GS", 16, GS)
	ParamST       = &Parameter{TypeStackIndex, EncodingNone, "ST", 80, "ST", []*Register{ST0}}
	ParamStrDst8  = &Parameter{TypeStringDst, EncodingNone, "StrDst8", 8, "[es:edi:8]", []*Register{DI, EDI, RDI}}
	ParamStrDst16 = &Parameter{TypeStringDst, EncodingNone, "StrDst16", 16, "[es:edi:16]", []*Register{DI, EDI, RDI}}
	ParamStrDst32 = &Parameter{TypeStringDst, EncodingNone, "StrDst32", 32, "[es:edi:32]", []*Register{DI, EDI, RDI}}
	ParamStrDst64 = &Parameter{TypeStringDst, EncodingNone, "StrDst64", 64, "[rdi:64]", []*Register{DI, EDI, RDI}}
	ParamStrSrc8  = &Parameter{TypeStringSrc, EncodingNone, "StrSrc8", 8, "[ds:esi:8]", []*Register{SI, ESI, RSI}}
	ParamStrSrc16 = &Parameter{TypeStringSrc, EncodingNone, "StrSrc16", 16, "[ds:esi:16]", []*Register{SI, ESI, RSI}}
	ParamStrSrc32 = &Parameter{TypeStringSrc, EncodingNone, "StrSrc32", 32, "[ds:esi:32]", []*Register{SI, ESI, RSI}}
	ParamStrSrc64 = &Parameter{TypeStringSrc, EncodingNone, "StrSrc64", 64, "[rsi:64]", []*Register{SI, ESI, RSI}}
	Param1        = &Parameter{TypeSignedImmediate, EncodingNone, "1", 8, "1", nil}

	// VEX.vvvv register selection.
	ParamR32V = &Parameter{TypeRegister, EncodingVEXvvvv, "R32V", 32, "r32V", Registers32bitGeneralPurpose}
	ParamR64V = &Parameter{TypeRegister, EncodingVEXvvvv, "R64V", 64, "r64V", Registers64bitGeneralPurpose}
	ParamKV   = &Parameter{TypeRegister, EncodingVEXvvvv, "KV", 64, "kV", RegistersOpmask}
	ParamXMMV = &Parameter{TypeRegister, EncodingVEXvvvv, "XMMV", 128, "xmmV", Registers128bitXMM}
	ParamYMMV = &Parameter{TypeRegister, EncodingVEXvvvv, "YMMV", 256, "ymmV", Registers256bitYMM}
	ParamZMMV = &Parameter{TypeRegister, EncodingVEXvvvv, "ZMMV", 512, "zmmV", Registers512bitZMM}

	// Registers encoded in the opcode.
	ParamR8op  = &Parameter{TypeRegister, EncodingRegisterModifier, "R8op", 8, "r8op", Registers8bitGeneralPurpose}
	ParamR16op = &Parameter{TypeRegister, EncodingRegisterModifier, "R16op", 16, "r16op", Registers16bitGeneralPurpose}
	ParamR32op = &Parameter{TypeRegister, EncodingRegisterModifier, "R32op", 32, "r32op", Registers32bitGeneralPurpose}
	ParamR64op = &Parameter{TypeRegister, EncodingRegisterModifier, "R64op", 64, "r64op", Registers64bitGeneralPurpose}

	// FPU stack index literals.
	ParamSTi = &Parameter{TypeStackIndex, EncodingStackIndex, "STi", 80, "ST(i)", RegistersStackIndices}

	// Relative or absolute address.
	ParamRel8     = &Parameter{TypeRelativeAddress, EncodingCodeOffset, "Rel8", 8, "rel8", nil}
	ParamRel16    = &Parameter{TypeRelativeAddress, EncodingCodeOffset, "Rel16", 16, "rel16", nil}
	ParamRel32    = &Parameter{TypeRelativeAddress, EncodingCodeOffset, "Rel32", 32, "rel32", nil}
	ParamPtr16v16 = &Parameter{TypeFarPointer, EncodingCodeOffset, "Ptr16v16", 32, "ptr16:16", nil}
	ParamPtr16v32 = &Parameter{TypeFarPointer, EncodingCodeOffset, "Ptr16v32", 48, "ptr16:32", nil}

	// ModR/M.reg register selection.
	ParamR8       = &Parameter{TypeRegister, EncodingModRMreg, "R8", 8, "r8", Registers8bitGeneralPurpose}
	ParamR16      = &Parameter{TypeRegister, EncodingModRMreg, "R16", 16, "r16", Registers16bitGeneralPurpose}
	ParamR32      = &Parameter{TypeRegister, EncodingModRMreg, "R32", 32, "r32", Registers32bitGeneralPurpose}
	ParamR64      = &Parameter{TypeRegister, EncodingModRMreg, "R64", 64, "r64", Registers64bitGeneralPurpose}
	ParamSreg     = &Parameter{TypeRegister, EncodingModRMreg, "Sreg", 16, "Sreg", Registers16bitSegment}
	ParamCR0toCR7 = &Parameter{TypeRegister, EncodingModRMreg, "CR0toCR7", 64, "CR0-CR7", RegistersControl}
	ParamDR0toDR7 = &Parameter{TypeRegister, EncodingModRMreg, "DR0toDR7", 64, "DR0-DR7", RegistersDebug}
	ParamK1       = &Parameter{TypeRegister, EncodingModRMreg, "K1", 64, "k1", RegistersOpmask}
	ParamMM1      = &Parameter{TypeRegister, EncodingModRMreg, "MM1", 64, "mm1", Registers64bitMMX}
	ParamXMM1     = &Parameter{TypeRegister, EncodingModRMreg, "XMM1", 128, "xmm1", Registers128bitXMM}
	ParamYMM1     = &Parameter{TypeRegister, EncodingModRMreg, "YMM1", 256, "ymm1", Registers256bitYMM}
	ParamZMM1     = &Parameter{TypeRegister, EncodingModRMreg, "ZMM1", 512, "zmm1", Registers512bitZMM}

	// ModR/M register selection or memory address.
	ParamRmr8        = &Parameter{TypeRegister, EncodingModRMrm, "Rmr8", 8, "rmr8", Registers8bitGeneralPurpose}
	ParamRmr16       = &Parameter{TypeRegister, EncodingModRMrm, "Rmr16", 16, "rmr16", Registers16bitGeneralPurpose}
	ParamRmr32       = &Parameter{TypeRegister, EncodingModRMrm, "Rmr32", 32, "rmr32", Registers32bitGeneralPurpose}
	ParamRmr64       = &Parameter{TypeRegister, EncodingModRMrm, "Rmr64", 64, "rmr64", Registers64bitGeneralPurpose}
	ParamK2          = &Parameter{TypeRegister, EncodingModRMrm, "K2", 64, "k2", RegistersOpmask}
	ParamMM2         = &Parameter{TypeRegister, EncodingModRMrm, "MM2", 64, "mm2", Registers64bitMMX}
	ParamXMM2        = &Parameter{TypeRegister, EncodingModRMrm, "XMM2", 128, "xmm2", Registers128bitXMM}
	ParamYMM2        = &Parameter{TypeRegister, EncodingModRMrm, "YMM2", 256, "ymm2", Registers256bitYMM}
	ParamZMM2        = &Parameter{TypeRegister, EncodingModRMrm, "ZMM2", 512, "zmm2", Registers512bitZMM}
	ParamM           = &Parameter{TypeMemory, EncodingModRMrm, "M", 0, "m", nil}
	ParamM8          = &Parameter{TypeMemory, EncodingModRMrm, "M8", 8, "m8", nil}
	ParamM16         = &Parameter{TypeMemory, EncodingModRMrm, "M16", 16, "m16", nil}
	ParamM16bcst     = &Parameter{TypeMemory, EncodingModRMrm, "M16bcst", 16, "m16bcst", nil}
	ParamM32         = &Parameter{TypeMemory, EncodingModRMrm, "M32", 32, "m32", nil}
	ParamM32bcst     = &Parameter{TypeMemory, EncodingModRMrm, "M32bcst", 32, "m32bcst", nil}
	ParamM64         = &Parameter{TypeMemory, EncodingModRMrm, "M64", 64, "m64", nil}
	ParamM64bcst     = &Parameter{TypeMemory, EncodingModRMrm, "M64bcst", 64, "m64bcst", nil}
	ParamM80bcd      = &Parameter{TypeMemory, EncodingModRMrm, "M80bcd", 80, "m80bcd", nil}
	ParamM128        = &Parameter{TypeMemory, EncodingModRMrm, "M128", 128, "m128", nil}
	ParamM256        = &Parameter{TypeMemory, EncodingModRMrm, "M256", 256, "m256", nil}
	ParamM512        = &Parameter{TypeMemory, EncodingModRMrm, "M512", 512, "m512", nil}
	ParamM512byte    = &Parameter{TypeMemory, EncodingModRMrm, "M512byte", 0, "m512byte", nil}
	ParamM32fp       = &Parameter{TypeMemory, EncodingModRMrm, "M32fp", 32, "m32fp", nil}
	ParamM64fp       = &Parameter{TypeMemory, EncodingModRMrm, "M64fp", 64, "m64fp", nil}
	ParamM80fp       = &Parameter{TypeMemory, EncodingModRMrm, "M80fp", 80, "m80fp", nil}
	ParamM16int      = &Parameter{TypeMemory, EncodingModRMrm, "M16int", 16, "m16int", nil}
	ParamM32int      = &Parameter{TypeMemory, EncodingModRMrm, "M32int", 32, "m32int", nil}
	ParamM64int      = &Parameter{TypeMemory, EncodingModRMrm, "M64int", 64, "m64int", nil}
	ParamM16v16      = &Parameter{TypeMemory, EncodingModRMrm, "M16v16", 32, "m16:16", nil}
	ParamM16v32      = &Parameter{TypeMemory, EncodingModRMrm, "M16v32", 48, "m16:32", nil}
	ParamM16v64      = &Parameter{TypeMemory, EncodingModRMrm, "M16v64", 80, "m16:64", nil}
	ParamM16x16      = &Parameter{TypeMemory, EncodingModRMrm, "M16x16", 32, "m16&16", nil}
	ParamM16x32      = &Parameter{TypeMemory, EncodingModRMrm, "M16x32", 48, "m16&32", nil}
	ParamM16x64      = &Parameter{TypeMemory, EncodingModRMrm, "M16x64", 80, "m16&64", nil}
	ParamM32x32      = &Parameter{TypeMemory, EncodingModRMrm, "M32x32", 64, "m32&32", nil}
	ParamM2byte      = &Parameter{TypeMemory, EncodingModRMrm, "M2byte", 16, "m2byte", nil}
	ParamM14l28byte  = &Parameter{TypeMemory, EncodingModRMrm, "M14l28byte", 0, "m14/28byte", nil}
	ParamM94l108byte = &Parameter{TypeMemory, EncodingModRMrm, "M94l108byte", 0, "m94/108byte", nil}

	// VSIB vector sets.
	ParamVm32x = &Parameter{TypeMemory, EncodingSIB, "Vm32x", 32, "vm32x", Registers128bitXMM}
	ParamVm32y = &Parameter{TypeMemory, EncodingSIB, "Vm32y", 32, "vm32y", Registers256bitYMM}
	ParamVm32z = &Parameter{TypeMemory, EncodingSIB, "Vm32z", 32, "vm32z", Registers512bitZMM}
	ParamVm64x = &Parameter{TypeMemory, EncodingSIB, "Vm64x", 64, "vm64x", Registers128bitXMM}
	ParamVm64y = &Parameter{TypeMemory, EncodingSIB, "Vm64y", 64, "vm64y", Registers256bitYMM}
	ParamVm64z = &Parameter{TypeMemory, EncodingSIB, "Vm64z", 64, "vm64z", Registers512bitZMM}

	// Memory values only in the displacement field.
	ParamMoffs8  = &Parameter{TypeMemoryOffset, EncodingDisplacement, "Moffs8", 8, "moffs8", nil}
	ParamMoffs16 = &Parameter{TypeMemoryOffset, EncodingDisplacement, "Moffs16", 16, "moffs16", nil}
	ParamMoffs32 = &Parameter{TypeMemoryOffset, EncodingDisplacement, "Moffs32", 32, "moffs32", nil}
	ParamMoffs64 = &Parameter{TypeMemoryOffset, EncodingDisplacement, "Moffs64", 64, "moffs64", nil}

	// Immediate values.
	ParamImm8   = &Parameter{TypeSignedImmediate, EncodingImmediate, "Imm8", 8, "imm8", nil}
	ParamImm16  = &Parameter{TypeSignedImmediate, EncodingImmediate, "Imm16", 16, "imm16", nil}
	ParamImm32  = &Parameter{TypeSignedImmediate, EncodingImmediate, "Imm32", 32, "imm32", nil}
	ParamImm64  = &Parameter{TypeSignedImmediate, EncodingImmediate, "Imm64", 64, "imm64", nil}
	ParamImm8u  = &Parameter{TypeUnsignedImmediate, EncodingImmediate, "Imm8u", 8, "imm8u", nil}
	ParamImm16u = &Parameter{TypeUnsignedImmediate, EncodingImmediate, "Imm16u", 16, "imm16u", nil}

	// VEX /is4 register selection
	ParamXMMIH = &Parameter{TypeRegister, EncodingVEXis4, "XMMIH", 128, "xmmIH", Registers128bitXMM}
	ParamYMMIH = &Parameter{TypeRegister, EncodingVEXis4, "YMMIH", 256, "ymmIH", Registers256bitYMM}
)

// Parameters maps the Intel syntax of each
// parameter to its definition.
var Parameters = make(map[string]*Parameter)

func init() {
	for _, param := range []*Parameter{
		ParamAL, ParamCL, ParamAX, ParamDX, ParamEAX, ParamECX, ParamRAX, ParamXMM0,
		ParamES, ParamCS, ParamSS, ParamDS, ParamFS, ParamGS, ParamST,
		ParamStrDst8, ParamStrDst16, ParamStrDst32, ParamStrDst64,
		ParamStrSrc8, ParamStrSrc16, ParamStrSrc32, ParamStrSrc64, Param1,
		ParamR32V, ParamR64V, ParamKV, ParamXMMV, ParamYMMV, ParamZMMV,
		ParamR8op, ParamR16op, ParamR32op, ParamR64op, ParamSTi,
		ParamRel8, ParamRel16, ParamRel32, ParamPtr16v16, ParamPtr16v32,
		ParamR8, ParamR16, ParamR32, ParamR64, ParamSreg, ParamCR0toCR7, ParamDR0toDR7,
		ParamK1, ParamMM1, ParamXMM1, ParamYMM1, ParamZMM1,
		ParamRmr8, ParamRmr16, ParamRmr32, ParamRmr64, ParamK2, ParamMM2, ParamXMM2, ParamYMM2, ParamZMM2,
		ParamM, ParamM8, ParamM16, ParamM16bcst, ParamM32, ParamM32bcst, ParamM64, ParamM64bcst,
		ParamM80bcd, ParamM128, ParamM256, ParamM512, ParamM512byte,
		ParamM32fp, ParamM64fp, ParamM80fp, ParamM16int, ParamM32int, ParamM64int,
		ParamM16v16, ParamM16v32, ParamM16v64, ParamM16x16, ParamM16x32, ParamM16x64, ParamM32x32,
		ParamM2byte, ParamM14l28byte, ParamM94l108byte,
		ParamVm32x, ParamVm32y, ParamVm32z, ParamVm64x, ParamVm64y, ParamVm64z,
		ParamMoffs8, ParamMoffs16, ParamMoffs32, ParamMoffs64,
		ParamImm8, ParamImm16, ParamImm32, ParamImm64, ParamImm8u, ParamImm16u,
		ParamXMMIH, ParamYMMIH,
	} {
		if Parameters[param.Syntax] != nil {
			panic("duplicate parameter " + param.Syntax)
		}

		Parameters[param.Syntax] = param
	}
}
