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

import "testing"

// property 5: at each inter-node point, free-list ⊎ in-use-set ==
// [firstSpillSlot, totalSlots) and the two are disjoint.
func TestAssertSpillAccountingPassesForWellFormedState(t *testing.T) {
	vm := NewValueManager(0, nil)

	slotA := vm.SpillValue(1, BankGPR, 0)
	vm.AssertSpillAccounting(0) // slotA in-use, nothing free yet: fine

	slotB := vm.SpillValue(2, BankGPR, 1)
	if slotA == slotB {
		t.Fatalf("two live values got the same spill slot: %d", slotA)
	}
	vm.AssertSpillAccounting(0)

	vm.Die(1) // frees slotA back to the free list
	vm.AssertSpillAccounting(0)

	// slotA should be handed back out before the frame grows further.
	slotC := vm.SpillValue(3, BankGPR, 0)
	if slotC != slotA {
		t.Fatalf("AllocateSpillSlot did not reuse the freed slot: got %d, want %d", slotC, slotA)
	}
	vm.AssertSpillAccounting(0)
}

// property 4: liveness round-trip — every spilled value that dies frees its
// spill slot back to the free list, and a value not yet spilled has no slot
// to free (Die is a safe no-op for it).
func TestDieFreesSpillSlotAndIsNoOpWithoutOne(t *testing.T) {
	vm := NewValueManager(0, nil)

	// Die on a value that was never registered at all.
	vm.Die(999)
	vm.AssertSpillAccounting(0)

	slot := vm.SpillValue(1, BankGPR, 0)
	vm.Die(1)
	info := vm.Info(1)
	if info.SpillSlot != noSlot {
		t.Fatalf("SpillSlot = %d after Die, want noSlot", info.SpillSlot)
	}

	// The freed slot is reused rather than growing the frame.
	if got := vm.SpillValue(2, BankGPR, 0); got != slot {
		t.Fatalf("freed slot %d was not reused, got %d instead", slot, got)
	}
}

// Deliberately violate property 5 by marking a slot free without going
// through Die (which would have cleared the owning value's SpillSlot):
// AssertSpillAccounting must panic when a slot is simultaneously in the
// in-use set and the free list.
func TestAssertSpillAccountingPanicsOnOverlap(t *testing.T) {
	vm := NewValueManager(0, nil)
	slot := vm.SpillValue(1, BankGPR, 0)
	vm.FreeSpillSlot(slot) // now free, but info.SpillSlot still == slot (in-use)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("AssertSpillAccounting did not panic on an overlapping slot")
		}
	}()
	vm.AssertSpillAccounting(0)
}

// ProcessShadowStore/OSR bookkeeping: property 3, OSR map consistency.
func TestProcessShadowStoreRecordsRecoverySourceMatchingCurrentLocation(t *testing.T) {
	vm := NewValueManager(0, nil)

	vm.RegisterConstant(1, 7)
	vm.ProcessShadowStore(1, 0)
	src, ok := vm.OSRSnapshot()[0]
	if !ok || src.Kind != RecoverFromConstant || src.ConstID != 7 {
		t.Fatalf("shadow slot 0 = %+v, want RecoverFromConstant const 7", src)
	}

	vm.NoteLoad(2, BankGPR, 3)
	vm.ProcessShadowStore(2, 1)
	src, ok = vm.OSRSnapshot()[1]
	if !ok || src.Kind != RecoverFromRegSpillArea {
		t.Fatalf("shadow slot 1 = %+v, want RecoverFromRegSpillArea", src)
	}

	// Spilling value 2 must retroactively update shadow slot 1, since it
	// was live when ProcessShadowStore ran (the "spilled copy is
	// authoritative if older" invariant).
	newSlot := vm.SpillValue(2, BankGPR, 3)
	src, ok = vm.OSRSnapshot()[1]
	if !ok || src.Kind != RecoverFromSpillSlot || src.Slot != newSlot {
		t.Fatalf("shadow slot 1 after spill = %+v, want RecoverFromSpillSlot %d", src, newSlot)
	}
}

func TestAllocatePhysicalRangeReservesContiguousSlotsAndPinsGrowth(t *testing.T) {
	vm := NewValueManager(2, nil)
	base := vm.AllocatePhysicalRange(3)
	if base != 2 {
		t.Fatalf("base = %d, want 2 (first usable slot)", base)
	}
	if vm.TotalSlots() != 5 {
		t.Fatalf("TotalSlots() = %d, want 5", vm.TotalSlots())
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("AllocateSpillSlot did not panic while a physical range is pinned")
		}
	}()
	vm.AllocateSpillSlot()
}

func TestShrinkPhysicalFrameLengthUnpinsAndShrinks(t *testing.T) {
	vm := NewValueManager(0, nil)
	vm.AllocatePhysicalRange(4)
	vm.ShrinkPhysicalFrameLength(1)
	if vm.TotalSlots() != 1 {
		t.Fatalf("TotalSlots() = %d, want 1", vm.TotalSlots())
	}
	// No longer pinned: allocating a fresh spill slot must not panic.
	vm.AllocateSpillSlot()
}
