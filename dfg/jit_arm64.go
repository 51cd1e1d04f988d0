//go:build arm64

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

// §1 scopes this core to x86-64 only ("emits native x86-64 machine code").
// This file exists purely so the package still builds on arm64 hosts,
// mirroring the teacher's own jit_arm64.go: every encoder here panics.
// TODO: port the amd64 encoders once arm64 is in scope.

type Reg = int

const numGPR = 31
const numFPR = 32

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

func notImplemented() {
	panic("dfg: arm64 backend not implemented, §1 scopes this core to x86-64")
}

func EncodeMovRegReg(buf []byte, pos int, dst, src Reg) int                     { notImplemented(); return 0 }
func EncodeMovRegImm64(buf []byte, pos int, dst Reg, imm uint64) int           { notImplemented(); return 0 }
func EncodeMovRegMem(buf []byte, pos int, dst, base Reg, disp int32) int       { notImplemented(); return 0 }
func EncodeMovMemReg(buf []byte, pos int, base Reg, disp int32, src Reg) int   { notImplemented(); return 0 }
func EncodeJcc(buf []byte, pos int, cc CondCode) (int, int)                    { notImplemented(); return 0, 0 }
func EncodeJmp(buf []byte, pos int) (int, int)                                 { notImplemented(); return 0, 0 }
func PatchRel32(buf []byte, dispAt int, fromEnd, target int)                   { notImplemented() }
func EncodeUd2(buf []byte, pos int) int                                       { notImplemented(); return 0 }
func EncodeTestRegReg(buf []byte, pos int, r Reg) int                          { notImplemented(); return 0 }
func EncodeCmpMemImm8(buf []byte, pos int, base Reg, disp int32, imm8 byte) int { notImplemented(); return 0 }
func EncodePadding(buf []byte, pos int, n int) int                            { notImplemented(); return 0 }
func regMoveLen(bank RegBank, dst, src int) int                               { notImplemented(); return 0 }
func regSpillLen(bank RegBank, reg int) int                                   { notImplemented(); return 0 }
func regLoadLen(bank RegBank, reg int) int                                    { notImplemented(); return 0 }
func movImmLen(bank RegBank) int                                             { notImplemented(); return 0 }
func nopAlignTo16(cur int) int                                                { notImplemented(); return 0 }

const (
	jmpLen        = 5
	jccLen        = 6
	testRegRegLen = 3
	cmpMemImm8Len = 9
	crossBankMoveLen = 5
)

func encodeMovqGprXmm(buf []byte, pos int, xmmReg, gprReg Reg, toXmm bool) int {
	notImplemented()
	return 0
}

func encodeMovqXmmXmm(buf []byte, pos int, dst, src Reg) int { notImplemented(); return 0 }

func encodeAluRegReg(buf []byte, pos int, opcode byte, dst, src Reg) int { notImplemented(); return 0 }

func EncodeMovqXmmMem(buf []byte, pos int, dst, base Reg, disp int32) int { notImplemented(); return 0 }

func EncodeMovqMemXmm(buf []byte, pos int, base Reg, disp int32, src Reg) int { notImplemented(); return 0 }
