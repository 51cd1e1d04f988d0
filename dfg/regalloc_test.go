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

// setResident directly installs valueID as the occupant of regIdx, bypassing
// LoadRegister — which assumes a value already has a location somewhere to
// load from (constant table, spill slot, or the other bank) and is not the
// right tool for seeding a bank with values that were "produced" straight
// into a register the way a real node's output is (see nodeproc.go's
// emitGenericCodegen, which assigns res.OutputReg directly).
func setResident(a *RegAllocator, regIdx, valueID int, nextUse int32) {
	a.regs[regIdx] = regEntry{valueID: valueID, state: packRegState(nextUse, false, regIdx)}
	a.byValue[valueID] = regIdx
}

func TestEvictUntilEvictsFarthestNextUseFirst(t *testing.T) {
	vm := NewValueManager(0, nil)
	log := NewOpLog(nil)
	gpr := NewRegAllocator(BankGPR, 4, vm, log)

	setResident(gpr, 0, 10, 50) // farthest
	setResident(gpr, 1, 11, 10) // nearest
	setResident(gpr, 2, 12, 30)
	setResident(gpr, 3, 13, 5) // nearest

	gpr.EvictUntil(2, false)

	if _, ok := gpr.ValueReg(10); ok {
		t.Fatalf("value 10 (nextUse=50, farthest) should have been evicted first")
	}
	if _, ok := gpr.ValueReg(12); ok {
		t.Fatalf("value 12 (nextUse=30, second farthest) should have been evicted second")
	}
	if _, ok := gpr.ValueReg(11); !ok {
		t.Fatalf("value 11 (nextUse=10) should still be resident")
	}
	if _, ok := gpr.ValueReg(13); !ok {
		t.Fatalf("value 13 (nextUse=5, nearest) should still be resident")
	}
	if got := gpr.countScratch(); got != 2 {
		t.Fatalf("countScratch() = %d, want 2", got)
	}

	vm.AssertSpillAccounting(0)
}

func TestEvictUntilStopsOnceEnoughFree(t *testing.T) {
	vm := NewValueManager(0, nil)
	log := NewOpLog(nil)
	gpr := NewRegAllocator(BankGPR, 4, vm, log)
	setResident(gpr, 0, 1, 10)

	gpr.EvictUntil(4, false) // already 3 scratch + would evict the 4th
	if _, ok := gpr.ValueReg(1); ok {
		t.Fatalf("value 1 should have been evicted to satisfy free=4 with only 4 registers")
	}
	if got := gpr.countScratch(); got != 4 {
		t.Fatalf("countScratch() = %d, want 4", got)
	}
}

func TestWorkForCodegenReusesLastUseInput(t *testing.T) {
	vm := NewValueManager(0, nil)
	log := NewOpLog(nil)
	gpr := NewRegAllocator(BankGPR, 4, vm, log)
	setResident(gpr, 0, 5, 100)

	desc := CodegenDesc{
		Inputs:          []ValueUseRAInfo{{ValueID: 5, Bank: BankGPR, IsLastUse: true, NextUseIdx: noSlot}},
		HasOutput:       true,
		OutputValueID:   6,
		ReuseCandidates: []int{0},
		NextSpillAllIdx: noSlot,
	}
	res := gpr.WorkForCodegen(desc)

	if res.OutputReuses != 0 {
		t.Fatalf("OutputReuses = %d, want 0 (input is last-used, eligible for reuse)", res.OutputReuses)
	}
	if res.OutputReg != res.InputRegs[0] {
		t.Fatalf("OutputReg = %d, want == InputRegs[0] = %d", res.OutputReg, res.InputRegs[0])
	}
	if regIdx, ok := gpr.ValueReg(6); !ok || regIdx != res.OutputReg {
		t.Fatalf("output value 6 not resident at OutputReg after WorkForCodegen")
	}
}

func TestWorkForCodegenDoesNotReuseWhenInputStillLive(t *testing.T) {
	vm := NewValueManager(0, nil)
	log := NewOpLog(nil)
	gpr := NewRegAllocator(BankGPR, 4, vm, log)
	setResident(gpr, 1, 7, 20)

	desc := CodegenDesc{
		Inputs:          []ValueUseRAInfo{{ValueID: 7, Bank: BankGPR, IsLastUse: false, NextUseIdx: 20}},
		HasOutput:       true,
		OutputValueID:   8,
		ReuseCandidates: []int{0},
		NextSpillAllIdx: noSlot,
	}
	res := gpr.WorkForCodegen(desc)

	if res.OutputReuses != -1 {
		t.Fatalf("OutputReuses = %d, want -1 (input is still live, must not be clobbered)", res.OutputReuses)
	}
	if res.OutputReg == res.InputRegs[0] {
		t.Fatalf("OutputReg must not alias a still-live input's register")
	}
}

// When an output reuses an input register but a brDecision also needs a
// register, WorkForCodegen must never leave the two aliasing different
// registers for the "same" logical slot: it swaps OutputReg/BrReg so the
// brDecision claims the reused register and the output takes the freshly
// picked one instead.
func TestWorkForCodegenSwapsRolesWhenReuseWouldClobberBrDecision(t *testing.T) {
	vm := NewValueManager(0, nil)
	log := NewOpLog(nil)
	gpr := NewRegAllocator(BankGPR, 2, vm, log) // tight register file: forces the swap path
	setResident(gpr, 0, 9, noSlot)

	desc := CodegenDesc{
		Inputs:          []ValueUseRAInfo{{ValueID: 9, Bank: BankGPR, IsLastUse: true, NextUseIdx: noSlot}},
		HasOutput:       true,
		OutputValueID:   10,
		HasBrDecision:   true,
		BrValueID:       11,
		ReuseCandidates: []int{0},
		NextSpillAllIdx: noSlot,
	}
	res := gpr.WorkForCodegen(desc)

	if res.OutputReuses < 0 {
		t.Fatalf("expected chooseReuse to have picked input 0 before the swap")
	}
	reusedReg := res.InputRegs[res.OutputReuses]
	if res.BrReg != reusedReg {
		t.Fatalf("BrReg = %d, want %d (the reused input's register, after the role swap)", res.BrReg, reusedReg)
	}
	if res.OutputReg == reusedReg {
		t.Fatalf("OutputReg must have moved off the reused register once BrReg claimed it")
	}
}

func TestProcessRangedOperandsOrdersByFarthestNextUseAndDedupes(t *testing.T) {
	vm := NewValueManager(0, nil)
	log := NewOpLog(nil)
	gpr := NewRegAllocator(BankGPR, 8, vm, log)

	pending := []ValueUseRAInfo{
		{ValueID: 1, Bank: BankGPR, NextUseIdx: 5},
		{ValueID: 2, Bank: BankGPR, NextUseIdx: 50},
		{ValueID: 1, Bank: BankGPR, NextUseIdx: 5}, // duplicate: same value, same use
		{ValueID: 3, Bank: BankGPR, NextUseIdx: 20},
	}
	out := gpr.ProcessRangedOperands(pending)

	if len(out) != 3 {
		t.Fatalf("len(out) = %d, want 3 (duplicate collapsed)", len(out))
	}
	if out[0].ValueID != 2 {
		t.Fatalf("out[0].ValueID = %d, want 2 (farthest next-use first)", out[0].ValueID)
	}
	if out[len(out)-1].ValueID != 1 {
		t.Fatalf("out[last].ValueID = %d, want 1 (nearest next-use last)", out[len(out)-1].ValueID)
	}
}
