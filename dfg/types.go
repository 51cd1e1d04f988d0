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

// TypeMask is a bit-vector over the closed set of guest-language type kinds
// (tInt32, tDouble, tBoolean, tString, tTable, ... up to 64 kinds). §4.1's
// automata and §4.2's selector both operate purely on these bit-vectors; the
// concrete kind→bit assignment lives with the host VM (out of scope, §1) and
// is irrelevant to the core besides its width.
type TypeMask uint64

const (
	tEmpty TypeMask = 0
	tTop   TypeMask = ^TypeMask(0)

	// A handful of named bits used by the built-in node handlers (§4.3) and
	// by the test stencil library (§6). The full taxonomy is host-VM defined;
	// these are the ones spec.md names explicitly.
	tNil     TypeMask = 1 << 0
	tBool    TypeMask = 1 << 1
	tInt32   TypeMask = 1 << 2
	tDouble  TypeMask = 1 << 3
	tString  TypeMask = 1 << 4
	tTable   TypeMask = 1 << 5
	tFunc    TypeMask = 1 << 6
	tOpaque  TypeMask = 1 << 7 // unboxed-but-untyped sentinel used by SetLocal (§4.3)
	numKinds          = 8
)

// UseKind is the closed enum an Edge carries once the speculation assignment
// pass (C3) has run: a handful of fixed sentinel ordinals, followed by one
// ordinal per proven type-mask automaton leaf, followed by two ordinals
// (check, check-and-flip) per strength-reduction rule.
type UseKind int32

const (
	UseUntyped         UseKind = 0
	UseKnownCapturedVar UseKind = 1
	UseKnownUnboxedInt64 UseKind = 2
	UseUnreachable     UseKind = 3
	UseAlwaysOsrExit   UseKind = 4
	FirstProvenUseKind UseKind = 5
)

// numTypeMaskOrdinals is the total number of type-mask ordinals C1's table
// holds, including the two trivial entries (the all-bits mask and the empty
// mask) that never need a proven use-kind of their own, mirrored from
// x_list_of_type_speculation_masks.size().
const numTypeMaskOrdinals = 16

// FirstUnprovenUseKind is computed, not hard-coded, per SPEC_FULL: it sits
// immediately after the block of proven (no-check) use-kinds, one per
// non-trivial type-mask ordinal (numTypeMaskOrdinals minus the two trivials).
const FirstUnprovenUseKind UseKind = FirstProvenUseKind + (numTypeMaskOrdinals - 2)

// IsProven reports whether the use-kind was statically established and so
// requires no runtime check: the captured-var and unboxed-int64 kinds and
// the proven range. UseUnreachable and UseAlwaysOsrExit are not counted as
// proven.
func (u UseKind) IsProven() bool {
	return u == UseKnownCapturedVar || u == UseKnownUnboxedInt64 ||
		(u >= FirstProvenUseKind && u < FirstUnprovenUseKind)
}

// RuleIndex extracts the strength-reduction rule index and flip bit from an
// unproven use-kind, per §3: FirstUnprovenUseKind + 2*r + f.
func (u UseKind) RuleIndex() (rule int, flip bool) {
	if u < FirstUnprovenUseKind {
		return -1, false
	}
	off := int(u - FirstUnprovenUseKind)
	return off / 2, off%2 == 1
}

// RegBank distinguishes the two banks C5 allocates independently (§2, C5).
type RegBank int

const (
	BankGPR RegBank = iota
	BankFPR
)

func (b RegBank) String() string {
	if b == BankGPR {
		return "GPR"
	}
	return "FPR"
}

// noSlot / noReg are sentinel "not assigned" values used throughout
// ValueRegAllocInfo, ValueUseRAInfo and the spill slot allocator.
const (
	noReg  int8  = -1
	noSlot int32 = -1
)
