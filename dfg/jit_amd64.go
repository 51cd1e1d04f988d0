//go:build amd64

/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package dfg

// Reg is a hardware register index. GPR indices 0-15 follow the x86-64
// encoding order (RAX..R15); FPR indices address XMM0-XMM15 the same way.
type Reg = int

const numGPR = 16
const numFPR = 16

const (
	RegRAX = 0
	RegRCX = 1
	RegRDX = 2
	RegRBX = 3
	RegRSP = 4
	RegRBP = 5
	RegRSI = 6
	RegRDI = 7
	RegR8  = 8
	RegR9  = 9
	RegR10 = 10
	RegR11 = 11
	RegR12 = 12
	RegR13 = 13
	RegR14 = 14
	RegR15 = 15
)

// --- raw byte emission ---

func emitByte(buf []byte, pos int, b byte) int {
	buf[pos] = b
	return pos + 1
}

func emitBytes(buf []byte, pos int, bs ...byte) int {
	for _, b := range bs {
		buf[pos] = b
		pos++
	}
	return pos
}

func emitU32(buf []byte, pos int, v uint32) int {
	buf[pos] = byte(v)
	buf[pos+1] = byte(v >> 8)
	buf[pos+2] = byte(v >> 16)
	buf[pos+3] = byte(v >> 24)
	return pos + 4
}

func emitU64(buf []byte, pos int, v uint64) int {
	pos = emitU32(buf, pos, uint32(v))
	return emitU32(buf, pos, uint32(v>>32))
}

// --- MOV reg,reg / reg,mem / reg,imm ---

// EncodeMovRegReg writes MOV dst, src (64-bit GPR->GPR) and returns the new
// position. Used by C7 replay for OpRegMove entries between two GPRs.
func EncodeMovRegReg(buf []byte, pos int, dst, src Reg) int {
	rex := byte(0x48)
	if src >= 8 {
		rex |= 0x04
	}
	if dst >= 8 {
		rex |= 0x01
	}
	modrm := byte(0xC0) | (byte(src&7) << 3) | byte(dst&7)
	return emitBytes(buf, pos, rex, 0x89, modrm)
}

// EncodeMovRegImm64 writes MOV reg, imm64.
func EncodeMovRegImm64(buf []byte, pos int, dst Reg, imm uint64) int {
	rex := byte(0x48)
	if dst >= 8 {
		rex |= 0x01
	}
	pos = emitBytes(buf, pos, rex, 0xB8|byte(dst&7))
	return emitU64(buf, pos, imm)
}

// encodeRegMemOp writes <opcode> dst, [base+disp] (REX.W r64, r/m64).
func encodeRegMemOp(buf []byte, pos int, opcode byte, dst, base Reg, disp int32) int {
	rex := byte(0x48)
	if dst >= 8 {
		rex |= 0x04
	}
	if base >= 8 {
		rex |= 0x01
	}
	baseEnc := byte(base & 7)
	dstEnc := byte(dst & 7)
	if disp == 0 && baseEnc != 5 {
		modrm := (dstEnc << 3) | baseEnc
		if baseEnc == 4 {
			return emitBytes(buf, pos, rex, opcode, modrm, 0x24)
		}
		return emitBytes(buf, pos, rex, opcode, modrm)
	} else if disp >= -128 && disp <= 127 {
		modrm := 0x40 | (dstEnc << 3) | baseEnc
		if baseEnc == 4 {
			return emitBytes(buf, pos, rex, opcode, modrm, 0x24, byte(int8(disp)))
		}
		return emitBytes(buf, pos, rex, opcode, modrm, byte(int8(disp)))
	}
	modrm := 0x80 | (dstEnc << 3) | baseEnc
	if baseEnc == 4 {
		pos = emitBytes(buf, pos, rex, opcode, modrm, 0x24)
	} else {
		pos = emitBytes(buf, pos, rex, opcode, modrm)
	}
	return emitU32(buf, pos, uint32(disp))
}

// EncodeMovRegMem writes MOV dst, [base+disp32] (spill-slot load).
func EncodeMovRegMem(buf []byte, pos int, dst, base Reg, disp int32) int {
	return encodeRegMemOp(buf, pos, 0x8B, dst, base, disp)
}

// EncodeMovMemReg writes MOV [base+disp32], src (spill-slot store).
func EncodeMovMemReg(buf []byte, pos int, base Reg, disp int32, src Reg) int {
	rex := byte(0x48)
	if src >= 8 {
		rex |= 0x04
	}
	if base >= 8 {
		rex |= 0x01
	}
	baseEnc := byte(base & 7)
	srcEnc := byte(src & 7)
	modrm := 0x80 | (srcEnc << 3) | baseEnc
	if baseEnc == 4 {
		pos = emitBytes(buf, pos, rex, 0x89, modrm, 0x24)
	} else {
		pos = emitBytes(buf, pos, rex, 0x89, modrm)
	}
	return emitU32(buf, pos, uint32(disp))
}

// --- SSE mov for FPR bank ---

func encodeMovqXmmXmm(buf []byte, pos int, dst, src Reg) int {
	d, s := dst, src
	rex := byte(0)
	if d >= 8 || s >= 8 {
		rex = 0x40
		if d >= 8 {
			rex |= 0x04
		}
		if s >= 8 {
			rex |= 0x01
		}
	}
	modrm := byte(0xC0) | (byte(d&7) << 3) | byte(s&7)
	if rex != 0 {
		return emitBytes(buf, pos, 0x66, rex, 0x0F, 0x7E, modrm)
	}
	return emitBytes(buf, pos, 0x66, 0x0F, 0x7E, modrm)
}

// encodeXmmMemOp writes <prefix> [REX] 0F <opcode> /r, the shared modrm+disp
// addressing logic from encodeRegMemOp specialized for SSE mem operands:
// `reg` is the XMM register named by the opcode's /r, `base` the GPR holding
// the memory operand's base address.
func encodeXmmMemOp(buf []byte, pos int, prefix, opcode byte, reg, base Reg, disp int32) int {
	rex := byte(0)
	if reg >= 8 {
		rex |= 0x04
	}
	if base >= 8 {
		rex |= 0x01
	}
	if rex != 0 {
		rex |= 0x40
	}
	pos = emitByte(buf, pos, prefix)
	if rex != 0 {
		pos = emitByte(buf, pos, rex)
	}
	pos = emitBytes(buf, pos, 0x0F, opcode)

	baseEnc := byte(base & 7)
	regEnc := byte(reg & 7)
	if disp == 0 && baseEnc != 5 {
		modrm := (regEnc << 3) | baseEnc
		if baseEnc == 4 {
			return emitBytes(buf, pos, modrm, 0x24)
		}
		return emitBytes(buf, pos, modrm)
	} else if disp >= -128 && disp <= 127 {
		modrm := 0x40 | (regEnc << 3) | baseEnc
		if baseEnc == 4 {
			return emitBytes(buf, pos, modrm, 0x24, byte(int8(disp)))
		}
		return emitBytes(buf, pos, modrm, byte(int8(disp)))
	}
	modrm := 0x80 | (regEnc << 3) | baseEnc
	if baseEnc == 4 {
		pos = emitBytes(buf, pos, modrm, 0x24)
	} else {
		pos = emitBytes(buf, pos, modrm)
	}
	return emitU32(buf, pos, uint32(disp))
}

// EncodeMovqXmmMem writes MOVQ dst, [base+disp32] (F3 0F 7E /r): an FPR-bank
// spill-slot load, the XMM/mem counterpart of EncodeMovRegMem (§4.7 OpRegLoad
// replay, codeblock.go).
func EncodeMovqXmmMem(buf []byte, pos int, dst, base Reg, disp int32) int {
	return encodeXmmMemOp(buf, pos, 0xF3, 0x7E, dst, base, disp)
}

// EncodeMovqMemXmm writes MOVQ [base+disp32], src (66 0F D6 /r): an FPR-bank
// spill-slot store, the XMM/mem counterpart of EncodeMovMemReg (§4.7
// OpRegSpill replay, codeblock.go).
func EncodeMovqMemXmm(buf []byte, pos int, base Reg, disp int32, src Reg) int {
	return encodeXmmMemOp(buf, pos, 0x66, 0xD6, src, base, disp)
}

// encodeMovqGprXmm writes the cross-bank reg-reg move: MOVQ xmm, gpr (0x66
// REX.W 0F 6E /r) when toXmm is true, or MOVQ gpr, xmm (0x66 REX.W 0F 7E /r)
// otherwise. Used when a value produced in one bank is consumed by a
// use-kind that demands the other (§4.5 "cross-bank move").
func encodeMovqGprXmm(buf []byte, pos int, xmmReg, gprReg Reg, toXmm bool) int {
	rex := byte(0x48)
	if xmmReg >= 8 {
		rex |= 0x04
	}
	if gprReg >= 8 {
		rex |= 0x01
	}
	modrm := byte(0xC0) | (byte(xmmReg&7) << 3) | byte(gprReg&7)
	op := byte(0x7E)
	if toXmm {
		op = 0x6E
	}
	return emitBytes(buf, pos, 0x66, rex, 0x0F, op, modrm)
}

const crossBankMoveLen = 5

// --- ALU ---

func encodeAluRegReg(buf []byte, pos int, opcode byte, dst, src Reg) int {
	rex := byte(0x48)
	if src >= 8 {
		rex |= 0x04
	}
	if dst >= 8 {
		rex |= 0x01
	}
	modrm := byte(0xC0) | (byte(src&7) << 3) | byte(dst&7)
	return emitBytes(buf, pos, rex, opcode, modrm)
}

// --- control flow ---

// CondCode mirrors the x86-64 Jcc condition nibble.
type CondCode byte

const (
	CcE  CondCode = 0x04
	CcNE CondCode = 0x05
	CcL  CondCode = 0x0C
	CcGE CondCode = 0x0D
	CcLE CondCode = 0x0E
	CcG  CondCode = 0x0F
	CcB  CondCode = 0x02
	CcAE CondCode = 0x03
)

// EncodeJcc writes a 6-byte Jcc rel32 with a placeholder displacement,
// returning the new position and the offset of the 4-byte displacement
// field (for later patching by the block sequencer, §4.9).
func EncodeJcc(buf []byte, pos int, cc CondCode) (newPos, dispAt int) {
	pos = emitBytes(buf, pos, 0x0F, 0x80|byte(cc))
	dispAt = pos
	pos = emitU32(buf, pos, 0)
	return pos, dispAt
}

// EncodeJmp writes a 5-byte JMP rel32 with a placeholder displacement.
func EncodeJmp(buf []byte, pos int) (newPos, dispAt int) {
	pos = emitByte(buf, pos, 0xE9)
	dispAt = pos
	pos = emitU32(buf, pos, 0)
	return pos, dispAt
}

// PatchRel32 fills in a previously emitted rel32 displacement once the
// target address is known.
func PatchRel32(buf []byte, dispAt int, fromEnd, target int) {
	off := int32(target - fromEnd)
	emitU32(buf, dispAt, uint32(off))
}

// EncodeUd2 writes the 2-byte ud2 instruction (§4.9: zero-successor
// terminator; also used for trailing-pad guard bytes, §4.10 step 7).
func EncodeUd2(buf []byte, pos int) int {
	return emitBytes(buf, pos, 0x0F, 0x0B)
}

// EncodeTestRegReg writes TEST reg, reg (for brDecision-in-GPR condition
// materialization, §4.9).
func EncodeTestRegReg(buf []byte, pos int, r Reg) int {
	return encodeAluRegReg(buf, pos, 0x85, r, r)
}

// EncodeCmpMemImm8 writes CMPQ $0, disp(base) (for brDecision-on-stack
// condition materialization, §4.9).
func EncodeCmpMemImm8(buf []byte, pos int, base Reg, disp int32, imm8 byte) int {
	rex := byte(0x48)
	if base >= 8 {
		rex |= 0x01
	}
	baseEnc := byte(base & 7)
	modrm := 0x80 | (7 << 3) | baseEnc // /7 = CMP
	if baseEnc == 4 {
		pos = emitBytes(buf, pos, rex, 0x83, modrm, 0x24)
	} else {
		pos = emitBytes(buf, pos, rex, 0x83, modrm)
	}
	pos = emitU32(buf, pos, uint32(int32(disp)))
	return emitByte(buf, pos, imm8)
}

// --- multi-byte NOP table, for loop-header alignment (§4.9) ---

var multiByteNop = [][]byte{
	{},
	{0x90},
	{0x66, 0x90},
	{0x0F, 0x1F, 0x00},
	{0x0F, 0x1F, 0x40, 0x00},
	{0x0F, 0x1F, 0x44, 0x00, 0x00},
	{0x66, 0x0F, 0x1F, 0x44, 0x00, 0x00},
	{0x0F, 0x1F, 0x80, 0x00, 0x00, 0x00, 0x00},
	{0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x66, 0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x66, 0x66, 0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x66, 0x66, 0x66, 0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x66, 0x66, 0x66, 0x66, 0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x66, 0x66, 0x66, 0x66, 0x66, 0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
	{0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x66, 0x0F, 0x1F, 0x84, 0x00, 0x00, 0x00, 0x00, 0x00},
}

// EncodePadding writes n bytes of NOP padding, picking the longest
// multi-byte NOP (up to 15 bytes) from the table per chunk (§4.9).
func EncodePadding(buf []byte, pos int, n int) int {
	for n > 0 {
		chunk := n
		if chunk > 15 {
			chunk = 15
		}
		pos = emitBytes(buf, pos, multiByteNop[chunk]...)
		n -= chunk
	}
	return pos
}

// --- C7 size accounting helpers (§4.7: exact size of every RegMove/
// RegSpill/RegLoad/materialize-constant entry) ---

func regMoveLen(bank RegBank, dst, src int) int {
	if dst == src {
		return 0
	}
	if bank == BankGPR {
		return 3 // REX + opcode + modrm
	}
	return 5 // 66 + REX + 0F + 7E + modrm
}

func regSpillLen(bank RegBank, reg int) int {
	_ = reg
	if bank == BankFPR {
		return 9 // 66/F3 + REX + 0F + opcode + modrm + disp32, worst case
	}
	return 8 // REX + opcode + modrm(+SIB) + disp32, worst case
}

func regLoadLen(bank RegBank, reg int) int {
	return regSpillLen(bank, reg)
}

func movImmLen(bank RegBank) int {
	if bank == BankGPR {
		return 10 // REX + 0xB8+r + imm64
	}
	return 15 // materialize into a GPR scratch (10) then MOVQ xmm, r64 (5)
}

// nopAlignTo16 is a small convenience wrapped by the block sequencer: how
// many padding bytes are needed to bring `cur` up to the next 16-byte
// boundary.
func nopAlignTo16(cur int) int {
	rem := cur % 16
	if rem == 0 {
		return 0
	}
	return 16 - rem
}

// Fixed instruction lengths the block sequencer (§4.9) consults when sizing
// a terminator before any byte has actually been written.
const (
	jmpLen        = 5 // EncodeJmp: E9 + rel32
	jccLen        = 6 // EncodeJcc: 0F 8x + rel32
	testRegRegLen = 3 // EncodeTestRegReg: REX + 0x85 + modrm
	cmpMemImm8Len = 9 // EncodeCmpMemImm8, worst case with SIB byte
)
