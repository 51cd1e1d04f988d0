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

import "github.com/google/btree"

// spillSlot is a btree.Item wrapping a free frame slot index, so the
// per-block free list (§4.6) supports ordered min-extraction and range
// deletion instead of a hand-rolled sorted slice.
type spillSlot int32

func (s spillSlot) Less(than btree.Item) bool { return s < than.(spillSlot) }

// RecoverySourceKind distinguishes the three ways an OSR shadow slot can be
// reconstructed (§4.6 ProcessShadowStore).
type RecoverySourceKind int

const (
	RecoverFromSpillSlot RecoverySourceKind = iota
	RecoverFromRegSpillArea
	RecoverFromConstant
)

// RecoverySource is what one shadow-stack slot currently recovers to.
type RecoverySource struct {
	Kind RecoverySourceKind
	Slot int32 // valid for RecoverFromSpillSlot/RecoverFromRegSpillArea
	ConstID int32 // valid for RecoverFromConstant
}

// ValueManager is C6: owns cross-bank/stack state, the spill slot allocator
// and the OSR exit map.
type ValueManager struct {
	values map[int]*ValueRegAllocInfo

	freeSlots  *btree.BTree
	totalSlots int32 // current frame length (grows monotonically within a block)
	maxSlots   int32 // historical max -> becomes the compiled block's slot count

	pinnedRangeBase int32 // -1 when no range is pinned
	pinnedRangeLen  int32
	assertNoGrowth  bool

	// osr maps shadow-stack slot -> recovery source. shadowOwners is the
	// reverse index (valueID -> shadow slots naming it) so a spill/relocate
	// can find every entry that must be kept consistent, emulating the
	// original's doubly-linked list without unsafe aliasing.
	osr          map[int32]RecoverySource
	osrByValue   map[int32][]int32 // shadowSlot list, keyed by the valueID that was live when ProcessShadowStore ran
	shadowValueOf map[int32]int    // shadowSlot -> valueID, for NoteLoad/NoteRelocate upkeep

	log *OpLog

	regSpillAreaNext int32
}

// NewValueManager constructs C6 with firstSlot as the first usable frame
// slot (earlier slots belong to fixed frame layout: saved regs, args, etc).
func NewValueManager(firstSlot int32, log *OpLog) *ValueManager {
	return &ValueManager{
		values:          map[int]*ValueRegAllocInfo{},
		freeSlots:       btree.New(32),
		totalSlots:      firstSlot,
		maxSlots:        firstSlot,
		pinnedRangeBase: -1,
		osr:             map[int32]RecoverySource{},
		osrByValue:      map[int32][]int32{},
		shadowValueOf:   map[int32]int{},
		log:             log,
	}
}

// Info returns (creating if necessary) the reg-alloc bookkeeping for a value.
func (vm *ValueManager) Info(valueID int) *ValueRegAllocInfo {
	info, ok := vm.values[valueID]
	if !ok {
		info = newValueRegAllocInfo()
		vm.values[valueID] = info
	}
	return info
}

// RegisterConstant marks a value as constant-like, per §3 lifecycle:
// "Constants are allocated and registered in a graph-wide table before
// codegen; their reg-alloc info is reset by each block."
func (vm *ValueManager) RegisterConstant(valueID int, constID int32) {
	info := vm.Info(valueID)
	info.IsConstantLike = true
	info.ConstID = constID
}

// ResetForBlock drops every value's transient reg-alloc state and resets the
// spill-slot free list and OSR map to the per-block-entry baseline, per the
// §3 cross-block invariant.
func (vm *ValueManager) ResetForBlock(baseline map[int32]RecoverySource) {
	vm.values = map[int]*ValueRegAllocInfo{}
	vm.freeSlots = btree.New(32)
	vm.pinnedRangeBase = -1
	vm.assertNoGrowth = false
	vm.osr = map[int32]RecoverySource{}
	vm.osrByValue = map[int32][]int32{}
	vm.shadowValueOf = map[int32]int{}
	for slot, src := range baseline {
		vm.osr[slot] = src
	}
}

// AllocateSpillSlot returns a slot index from the free list, or grows the
// frame by one slot if the free list is empty. Panics (StackOverflow) if the
// frame would exceed a 16-bit slot index (§7).
func (vm *ValueManager) AllocateSpillSlot() int32 {
	if min := vm.freeSlots.Min(); min != nil {
		vm.freeSlots.Delete(min)
		return int32(min.(spillSlot))
	}
	if vm.assertNoGrowth {
		panic("dfg: spill slot allocation attempted while a physical range is pinned")
	}
	slot := vm.totalSlots
	vm.totalSlots++
	if vm.totalSlots > vm.maxSlots {
		vm.maxSlots = vm.totalSlots
	}
	if vm.totalSlots > (1<<16)-1 {
		abortf(StackOverflow, "stack frame grew to %d slots, exceeds 16-bit limit", vm.totalSlots)
	}
	return slot
}

// FreeSpillSlot returns a slot to the free list (§3: "after which its spill
// slot, if any, is released").
func (vm *ValueManager) FreeSpillSlot(slot int32) {
	vm.freeSlots.ReplaceOrInsert(spillSlot(slot))
}

// AllocatePhysicalRange reserves n contiguous slots at the current frame end
// (required for range operands, §4.6) and toggles the "assert no new
// allocations" flag so any accidental growth under the pinned range is
// caught immediately.
func (vm *ValueManager) AllocatePhysicalRange(n int) int32 {
	base := vm.totalSlots
	vm.totalSlots += int32(n)
	if vm.totalSlots > vm.maxSlots {
		vm.maxSlots = vm.totalSlots
	}
	if vm.totalSlots > (1<<16)-1 {
		abortf(StackOverflow, "stack frame grew to %d slots, exceeds 16-bit limit", vm.totalSlots)
	}
	vm.pinnedRangeBase = base
	vm.pinnedRangeLen = int32(n)
	vm.assertNoGrowth = true
	return base
}

// ShrinkPhysicalFrameLength shrinks the frame back to newLen once a range
// operand's actual tail is known to be shorter than reserved (§4.8 step 5:
// "shrink the frame to the last output slot").
func (vm *ValueManager) ShrinkPhysicalFrameLength(newLen int32) {
	vm.assertNoGrowth = false
	if newLen < vm.totalSlots {
		vm.totalSlots = newLen
	}
	vm.pinnedRangeBase = -1
}

// TotalSlots / MaxSlots expose the current and historical-max frame length.
func (vm *ValueManager) TotalSlots() int32 { return vm.totalSlots }
func (vm *ValueManager) MaxSlots() int32   { return vm.maxSlots }

// SpillValue allocates (if needed) and returns valueID's spill slot,
// updating every OSR shadow entry that currently names it so the spilled
// copy becomes authoritative (§3 invariant: the spilled copy is
// authoritative for OSR recovery if older).
func (vm *ValueManager) SpillValue(valueID int, bank RegBank, regIdx int) int32 {
	info := vm.Info(valueID)
	if info.SpillSlot == noSlot {
		info.SpillSlot = vm.AllocateSpillSlot()
	}
	vm.updateOSRForValue(valueID, RecoverySource{Kind: RecoverFromSpillSlot, Slot: info.SpillSlot})
	switch bank {
	case BankGPR:
		info.GPRIdx = noReg
	case BankFPR:
		info.FPRIdx = noReg
	}
	return info.SpillSlot
}

// NoteLoad / NoteRelocate update Info() bookkeeping and the OSR map after
// RegAllocator materializes or moves a value into a register.
func (vm *ValueManager) NoteLoad(valueID int, bank RegBank, regIdx int) {
	info := vm.Info(valueID)
	switch bank {
	case BankGPR:
		info.GPRIdx = int8(regIdx)
	case BankFPR:
		info.FPRIdx = int8(regIdx)
	}
	vm.updateOSRForValue(valueID, vm.registerRecoverySource(bank, regIdx))
}

func (vm *ValueManager) NoteRelocate(valueID int, bank RegBank, regIdx int) {
	vm.NoteLoad(valueID, bank, regIdx)
}

// registerRecoverySource models recovering a value directly from its
// register by way of the "register-spill area": a fixed per-register OSR
// staging slot reserved at frame setup, mirroring the original's design
// where a live register's value is still recoverable without forcing a
// real spill (§4.6 ProcessShadowStore: "a register-spill-area slot").
func (vm *ValueManager) registerRecoverySource(bank RegBank, regIdx int) RecoverySource {
	return RecoverySource{Kind: RecoverFromRegSpillArea, Slot: int32(bank)<<16 | int32(regIdx)}
}

// ProcessShadowStore records shadowSlot's recovery source for valueID,
// tracking the reverse index so later spills/relocations of valueID keep
// this entry in sync (§4.6).
func (vm *ValueManager) ProcessShadowStore(valueID int, shadowSlot int32) {
	info := vm.Info(valueID)
	var src RecoverySource
	switch {
	case info.IsConstantLike:
		src = RecoverySource{Kind: RecoverFromConstant, ConstID: info.ConstID}
	case info.SpillSlot != noSlot:
		src = RecoverySource{Kind: RecoverFromSpillSlot, Slot: info.SpillSlot}
	case info.GPRIdx != noReg:
		src = vm.registerRecoverySource(BankGPR, int(info.GPRIdx))
	case info.FPRIdx != noReg:
		src = vm.registerRecoverySource(BankFPR, int(info.FPRIdx))
	default:
		panic("dfg: ProcessShadowStore on a value with no known location")
	}
	vm.osr[shadowSlot] = src
	vm.shadowValueOf[shadowSlot] = valueID
	vm.osrByValue[int32(valueID)] = append(vm.osrByValue[int32(valueID)], shadowSlot)
}

// updateOSRForValue refreshes every shadow slot on record for valueID.
func (vm *ValueManager) updateOSRForValue(valueID int, src RecoverySource) {
	for _, slot := range vm.osrByValue[int32(valueID)] {
		vm.osr[slot] = src
	}
}

// ProcessSetLocal rewrites the shadow slot for local L's interpreter slot so
// it points at L's physical slot, since after a SetLocal the local's
// physical storage is authoritative for the rest of the block and beyond
// (§4.6).
func (vm *ValueManager) ProcessSetLocal(interpreterSlot int32, valueID int) {
	if old, ok := vm.shadowValueOf[interpreterSlot]; ok {
		slots := vm.osrByValue[int32(old)]
		for i, s := range slots {
			if s == interpreterSlot {
				vm.osrByValue[int32(old)] = append(slots[:i], slots[i+1:]...)
				break
			}
		}
		delete(vm.shadowValueOf, interpreterSlot)
	}
	// The local's physical slot is the frame slot processSetLocal stores
	// the value into, which is the interpreter slot's own index.
	vm.osr[interpreterSlot] = RecoverySource{Kind: RecoverFromSpillSlot, Slot: interpreterSlot}
}

// OSRSnapshot returns a copy of the current shadow-slot map, used both for
// property 3 assertions and to seed the next block's baseline.
func (vm *ValueManager) OSRSnapshot() map[int32]RecoverySource {
	out := make(map[int32]RecoverySource, len(vm.osr))
	for k, v := range vm.osr {
		out[k] = v
	}
	return out
}

// Die releases valueID's spill slot (if any) back to the free list — called
// by the node processor once a value's last use has been consumed (§3
// lifecycle: "dies at the last use").
func (vm *ValueManager) Die(valueID int) {
	info, ok := vm.values[valueID]
	if !ok {
		return
	}
	if info.SpillSlot != noSlot {
		vm.FreeSpillSlot(info.SpillSlot)
		info.SpillSlot = noSlot
	}
}

// AssertSpillAccounting implements property 5: at any inter-node point, the
// free list and the in-use set partition [firstSpillSlot, totalSlots).
func (vm *ValueManager) AssertSpillAccounting(firstSlot int32) {
	inUse := map[int32]bool{}
	for _, info := range vm.values {
		if info.SpillSlot != noSlot {
			inUse[info.SpillSlot] = true
		}
	}
	free := map[int32]bool{}
	vm.freeSlots.Ascend(func(it btree.Item) bool {
		free[int32(it.(spillSlot))] = true
		return true
	})
	for s := firstSlot; s < vm.totalSlots; s++ {
		if inUse[s] && free[s] {
			panic("dfg: spill slot accounting violated: slot both in-use and free")
		}
	}
}
