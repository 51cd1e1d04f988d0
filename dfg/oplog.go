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

import "github.com/docker/go-units"

// LogEntryKind is the closed set of C7 entries (§4.7).
type LogEntryKind int

const (
	OpRegMove LogEntryKind = iota
	OpRegSpill
	OpRegLoad
	OpMaterializeConst
	OpCodegenRegAllocEnabled
	OpCodegenRegAllocDisabled
	OpCustomRegAllocEnabled
	OpCustomRegAllocDisabled
	// OpBlockJump is C9's terminator record (§4.9): a symbolic description of
	// the jump(s) needed to reach a block's successors, sized here and
	// turned into real bytes by C10's replay once block offsets are known.
	OpBlockJump
)

// LogEntry is one append-only, self-sized C7 record. Unlike the original's
// inline-variant encoding (no pointers between entries, sized for direct
// byte-stream replay), this module represents it as a plain Go struct: Go
// has no need to hand-roll a variant-length binary encoding for an
// in-process slice the way a C++ arena-backed log does, so the "self-sized,
// no pointers" property is satisfied trivially by value semantics instead.
type LogEntry struct {
	Kind LogEntryKind

	ValueID   int
	Reg       int
	Reg2      int
	Bank      RegBank
	Slot      int32
	ConstID   int32
	CrossBank bool // OpRegMove only: Reg names a register in the other bank

	// Used by OpCodegen*: the stencil ordinal, the chosen register
	// configuration, and the physical operand/output/brDecision slots.
	CodegenFuncOrd int32
	VariantOrd     int32
	OperandSlots   []int32
	OutputSlot     int32
	BrSlot         int32
	NodeData       int64
	LiteralData    []uint64 // CodegenCustomOp* only

	// SlowPathData bytes this entry contributes, filled once the stencil's
	// size table has been consulted.
	SlowPathDataLen int

	// OpBlockJump fields (§4.9). CondReg/CondSpillSlot are mutually
	// exclusive: a branch-decision value always ends up register-resident
	// under this allocator's WorkForCodegen contract, so CondSpillSlot is
	// normally noSlot; it exists so a future allocator change that lets the
	// condition spill doesn't need a new LogEntryKind. TrueTarget is the
	// sole successor for an unconditional jump. FalseTarget is -1 unless
	// this is a two-way branch.
	CondReg        int32
	CondSpillSlot  int32
	TrueTarget     int32
	FalseTarget    int32
	TrueFallsThru  bool
	FalseFallsThru bool
}

// OpLog is C7: an append-only record of low-level operations plus the
// running fast-path/slow-path/data-section size counters that let C10
// allocate JIT memory before a single byte of real machine code exists.
type OpLog struct {
	entries []LogEntry

	FastPathLen int64
	SlowPathLen int64
	DataSecLen  int64
	DataSecAlign int64

	stencils StencilLibrary
}

// NewOpLog creates an empty log bound to a stencil library (§6 "Stencil
// library" contract) for size-table lookups.
func NewOpLog(lib StencilLibrary) *OpLog {
	return &OpLog{stencils: lib, DataSecAlign: 1}
}

// Append records one entry and grows the running size counters via
// UpdateJITCodeSize (§4.7).
func (l *OpLog) Append(e LogEntry) {
	l.entries = append(l.entries, e)
	l.updateJITCodeSize(&l.entries[len(l.entries)-1])
}

func (l *OpLog) Entries() []LogEntry { return l.entries }

// updateJITCodeSize is the virtual "UpdateJITCodeSize(info)" of §4.7: for
// reg moves, the exact byte length of the encoded move; for spills/loads, a
// conservative fixed estimate (the real encoding is architecture-specific,
// resolved by the amd64 emitter in jit_amd64.go at replay time); for
// stencil-backed entries, the precomputed per-ordinal size table.
func (l *OpLog) updateJITCodeSize(e *LogEntry) {
	switch e.Kind {
	case OpRegMove:
		if e.CrossBank {
			l.FastPathLen += crossBankMoveLen
		} else {
			l.FastPathLen += int64(regMoveLen(e.Bank, e.Reg, e.Reg2))
		}
	case OpRegSpill:
		l.FastPathLen += int64(regSpillLen(e.Bank, e.Reg))
	case OpRegLoad:
		l.FastPathLen += int64(regLoadLen(e.Bank, e.Reg))
	case OpMaterializeConst:
		l.FastPathLen += int64(movImmLen(e.Bank))
	case OpCodegenRegAllocEnabled, OpCodegenRegAllocDisabled,
		OpCustomRegAllocEnabled, OpCustomRegAllocDisabled:
		sz := l.stencils.Size(e.CodegenFuncOrd)
		l.FastPathLen += int64(sz.FastPathLen)
		l.SlowPathLen += int64(sz.SlowPathLen)
		l.DataSecLen += int64(sz.DataSecLen)
		if int64(sz.DataSecAlign) > l.DataSecAlign {
			l.DataSecAlign = int64(sz.DataSecAlign)
		}
		e.SlowPathDataLen = sz.SlowPathDataLen
	case OpBlockJump:
		l.FastPathLen += int64(blockJumpLen(e))
	}
}

// blockJumpLen sizes one OpBlockJump entry (§4.9): a two-way branch costs a
// condition test plus a Jcc (inverted to target the false side when the true
// side falls through), plus an extra Jmp only when neither side falls
// through; a one-way terminator costs nothing if it falls through,
// otherwise one Jmp.
func blockJumpLen(e *LogEntry) int {
	if e.TrueTarget < 0 && e.FalseTarget < 0 {
		return int(e.NodeData) // leading alignment pad, exact byte count
	}
	if e.FalseTarget < 0 {
		if e.TrueFallsThru {
			return 0
		}
		return jmpLen
	}
	n := jccLen
	if e.CondSpillSlot != noSlot {
		n = cmpMemImm8Len + jccLen
	} else {
		n = testRegRegLen + jccLen
	}
	if !e.TrueFallsThru && !e.FalseFallsThru {
		n += jmpLen
	}
	return n
}

// HumanSizes formats the three running totals for diagnostics, using
// go-units the way the teacher's operational tooling favors human-readable
// byte counts over hand-rolled KiB math (SPEC_FULL "DOMAIN STACK").
func (l *OpLog) HumanSizes() string {
	return "fast=" + units.HumanSize(float64(l.FastPathLen)) +
		" slow=" + units.HumanSize(float64(l.SlowPathLen)) +
		" data=" + units.HumanSize(float64(l.DataSecLen))
}
