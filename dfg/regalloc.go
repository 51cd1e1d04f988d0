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

// regState packs one register's liveness record as
// [nextUse(20) | scratch-flag(1) | regIdx(4)], per §4.5: the flag is encoded
// so scratch registers sort before every real entry under ascending order,
// making SortAscend bring the hottest live (or any scratch) register to
// position 0 with a single pass.
type regState uint32

const (
	regStateNextUseShift = 5
	regStateScratchBit   = 1 << 4
	regStateRegIdxMask   = 0xF
)

func packRegState(nextUse int32, scratch bool, regIdx int) regState {
	if scratch {
		// Scratch dominates: lowest possible value regardless of nextUse.
		return regState(regIdx & regStateRegIdxMask)
	}
	nu := nextUse
	if nu < 0 {
		nu = (1 << 20) - 1 // "no next use" sorts last among real entries
	}
	return regState(uint32(nu)<<regStateNextUseShift | regStateScratchBit | uint32(regIdx&regStateRegIdxMask))
}

func (r regState) isScratch() bool { return r&regStateScratchBit == 0 }
func (r regState) regIdx() int     { return int(r & regStateRegIdxMask) }
func (r regState) nextUse() int32  { return int32(r >> regStateNextUseShift) }

// Group1/Group2 GPR partition (§4.5, GLOSSARY): Group-1 registers (machine
// ordinal < 8) are encodable without a REX extension bit, Group-2 registers
// (>= 8) need one; some stencil variants require all live passthroughs to
// sit in Group-2.
func isGroup1(regIdx int) bool { return regIdx < 8 }

// regEntry is the allocator's live bookkeeping for one physical register.
type regEntry struct {
	valueID int // -1 when scratch
	state   regState
}

// RegAllocator is one bank's allocator (§4.5) — instantiated twice, once for
// GPR and once for FPR (§2, C5).
type RegAllocator struct {
	Bank     RegBank
	regs     []regEntry
	byValue  map[int]int // valueID -> register index, for this bank only
	vm       *ValueManager
	log      *OpLog
}

// NewRegAllocator creates a bank allocator over numRegs physical registers,
// all initially scratch.
func NewRegAllocator(bank RegBank, numRegs int, vm *ValueManager, log *OpLog) *RegAllocator {
	a := &RegAllocator{
		Bank:    bank,
		regs:    make([]regEntry, numRegs),
		byValue: map[int]int{},
		vm:      vm,
		log:     log,
	}
	for i := range a.regs {
		a.regs[i] = regEntry{valueID: -1, state: packRegState(0, true, i)}
	}
	return a
}

// ResetForBlock returns every register to scratch (§3 invariant: "register
// state is all scratch" at every basic-block boundary).
func (a *RegAllocator) ResetForBlock() {
	for i := range a.regs {
		a.regs[i] = regEntry{valueID: -1, state: packRegState(0, true, i)}
	}
	a.byValue = map[int]int{}
}

// sortedOrder returns register indices ordered ascending by packed state
// (scratch first, then ascending next-use) via the §4.5 sorting network.
func (a *RegAllocator) sortedOrder() []int {
	words := make([]uint32, len(a.regs))
	idxOf := make(map[uint32]int, len(a.regs))
	for i, e := range a.regs {
		w := uint32(e.state)<<8 | uint32(i) // disambiguate equal states
		words[i] = w
		idxOf[w] = i
	}
	SortAscend(words)
	order := make([]int, len(words))
	for i, w := range words {
		order[i] = idxOf[w]
	}
	return order
}

// ValueReg reports which physical register (if any) currently holds valueID
// in this bank.
func (a *RegAllocator) ValueReg(valueID int) (int, bool) {
	r, ok := a.byValue[valueID]
	return r, ok
}

// EvictRegister writes regIdx's current occupant out (to its spill slot,
// allocating one if necessary) and marks the register scratch.
// dueToTakenByOutput marks entries whose eviction is driven by an output
// about to reuse the register, for OSR bookkeeping accuracy. A constant-like
// occupant is dropped without a spill, since LoadRegister rematerializes it.
func (a *RegAllocator) EvictRegister(regIdx int, dueToTakenByOutput bool) {
	e := &a.regs[regIdx]
	if e.valueID < 0 {
		return
	}
	if info := a.vm.Info(e.valueID); info.IsConstantLike {
		a.vm.updateOSRForValue(e.valueID, RecoverySource{Kind: RecoverFromConstant, ConstID: info.ConstID})
		if a.Bank == BankGPR {
			info.GPRIdx = noReg
		} else {
			info.FPRIdx = noReg
		}
	} else {
		slot := a.vm.SpillValue(e.valueID, a.Bank, regIdx)
		a.log.Append(LogEntry{Kind: OpRegSpill, ValueID: e.valueID, Reg: regIdx, Bank: a.Bank, Slot: slot})
	}
	delete(a.byValue, e.valueID)
	e.valueID = -1
	e.state = packRegState(0, true, regIdx)
}

// RelocateRegister moves a live value from fromIdx to toIdx with a reg-reg
// move, keeping toIdx's next-use bookkeeping in sync.
func (a *RegAllocator) RelocateRegister(fromIdx, toIdx int) {
	e := &a.regs[fromIdx]
	valueID := e.valueID
	nu := e.state.nextUse()
	a.log.Append(LogEntry{Kind: OpRegMove, ValueID: valueID, Reg: fromIdx, Reg2: toIdx, Bank: a.Bank})
	a.regs[toIdx] = regEntry{valueID: valueID, state: packRegState(nu, false, toIdx)}
	a.regs[fromIdx] = regEntry{valueID: -1, state: packRegState(0, true, fromIdx)}
	a.byValue[valueID] = toIdx
	a.vm.NoteRelocate(valueID, a.Bank, toIdx)
}

// DuplicateRegister copies fromIdx's value into toIdx without invalidating
// fromIdx; toIdx remains accounted as scratch per §4.5 ("destination remains
// scratch for accounting").
func (a *RegAllocator) DuplicateRegister(fromIdx, toIdx int) {
	e := a.regs[fromIdx]
	a.log.Append(LogEntry{Kind: OpRegMove, ValueID: e.valueID, Reg: fromIdx, Reg2: toIdx, Bank: a.Bank})
	a.regs[toIdx] = regEntry{valueID: -1, state: packRegState(0, true, toIdx)}
}

// LoadRegister materializes valueID into regIdx: constant materialization,
// a cross-bank move, or a spill-slot load, per §4.5.
func (a *RegAllocator) LoadRegister(valueID int, regIdx int, nextUse int32) {
	info := a.vm.Info(valueID)
	if info.IsConstantLike {
		a.log.Append(LogEntry{Kind: OpMaterializeConst, ValueID: valueID, Reg: regIdx, Bank: a.Bank, ConstID: info.ConstID})
	} else if slot := info.SpillSlot; slot != noSlot {
		a.log.Append(LogEntry{Kind: OpRegLoad, ValueID: valueID, Reg: regIdx, Bank: a.Bank, Slot: slot})
	} else {
		// Not yet resident in this bank, not spilled, not constant: the
		// value was produced (or last loaded) into the other bank's
		// register file, so this is a cross-bank move (§4.5). Reg carries
		// the source register in the OTHER bank; Reg2 carries regIdx, the
		// destination in this bank.
		var src int8 = noReg
		if a.Bank == BankGPR {
			src = info.FPRIdx
		} else {
			src = info.GPRIdx
		}
		if src == noReg {
			panic("dfg: value has no known location to load from")
		}
		a.log.Append(LogEntry{Kind: OpRegMove, ValueID: valueID, Reg: int(src), Reg2: regIdx, Bank: a.Bank, CrossBank: true})
	}
	a.regs[regIdx] = regEntry{valueID: valueID, state: packRegState(nextUse, false, regIdx)}
	a.byValue[valueID] = regIdx
	a.vm.NoteLoad(valueID, a.Bank, regIdx)
}

// KillRegister drops valueID's occupancy of regIdx without emitting
// anything — used once a value's last use has been consumed.
func (a *RegAllocator) KillRegister(regIdx int) {
	e := &a.regs[regIdx]
	if e.valueID >= 0 {
		delete(a.byValue, e.valueID)
	}
	e.valueID = -1
	e.state = packRegState(0, true, regIdx)
}

// KillValue drops valueID's register occupancy, if it currently holds one,
// without emitting anything. A no-op if valueID isn't resident in this
// bank (it may already have been evicted, or never loaded here).
func (a *RegAllocator) KillValue(valueID int) {
	if idx, ok := a.ValueReg(valueID); ok {
		a.KillRegister(idx)
	}
}

// EvictUntil evicts registers (lowest next-use first is NOT what we want —
// we evict the registers whose next use is FARTHEST away, i.e. process the
// sorted order from the tail) until at least `free` registers are scratch.
// When relocateGroup1 is set, Group-1 GPRs are relocated into Group-2
// instead of spilled, when a Group-2 slot is free, honoring stencil variants
// that require all passthroughs in Group-2 (§4.5 constraint).
func (a *RegAllocator) EvictUntil(free int, relocateGroup1 bool) {
	freeCount := a.countScratch()
	if relocateGroup1 {
		a.relocateAllGroup1OutOfGroup1()
	}
	for freeCount < free {
		victim := a.farthestLiveRegister()
		if victim < 0 {
			break
		}
		a.EvictRegister(victim, false)
		freeCount++
	}
}

func (a *RegAllocator) countScratch() int {
	n := 0
	for _, e := range a.regs {
		if e.valueID < 0 {
			n++
		}
	}
	return n
}

// farthestLiveRegister picks the live register with the largest next-use
// index (the value used furthest in the future — cheapest to evict).
func (a *RegAllocator) farthestLiveRegister() int {
	best := -1
	var bestNU int32 = -1
	for i, e := range a.regs {
		if e.valueID < 0 {
			continue
		}
		nu := e.state.nextUse()
		if nu == -1 || nu > bestNU {
			bestNU = nu
			best = i
		}
	}
	return best
}

func (a *RegAllocator) relocateAllGroup1OutOfGroup1() {
	for i, e := range a.regs {
		if e.valueID < 0 || !isGroup1(i) {
			continue
		}
		if dst, ok := a.freeGroup2(); ok {
			a.RelocateRegister(i, dst)
		}
	}
}

func (a *RegAllocator) freeGroup2() (int, bool) {
	for i, e := range a.regs {
		if e.valueID < 0 && !isGroup1(i) {
			return i, true
		}
	}
	return 0, false
}

// SpillEverything evicts every live register in this bank — used at
// reg-alloc-disabled nodes and before Return/CreateFunctionObject (§4.4/§4.8).
func (a *RegAllocator) SpillEverything() {
	for i, e := range a.regs {
		if e.valueID >= 0 {
			a.EvictRegister(i, false)
		}
	}
}

// WorkForCodegenCheck ensures `use`'s value sits in a register (loading it
// if necessary), ensures at least nScratch registers are free, and
// optionally relocates Group-1 occupants into Group-2 (§4.5).
func (a *RegAllocator) WorkForCodegenCheck(use ValueUseRAInfo, nScratch int, relocateAllGroup1 bool) int {
	regIdx, ok := a.ValueReg(use.ValueID)
	if !ok {
		regIdx = a.pickLoadTarget()
		a.LoadRegister(use.ValueID, regIdx, use.NextUseIdx)
	} else {
		a.touchNextUse(regIdx, use.NextUseIdx)
	}
	a.EvictUntil(nScratch, relocateAllGroup1)
	return regIdx
}

func (a *RegAllocator) touchNextUse(regIdx int, nextUse int32) {
	a.regs[regIdx].state = packRegState(nextUse, false, regIdx)
}

// pickLoadTarget chooses a scratch register, preferring Group-2 so Group-1
// slots stay free for stencils that need them specifically; evicts the
// register with farthest next-use if none is free.
func (a *RegAllocator) pickLoadTarget() int {
	order := a.sortedOrder()
	for _, i := range order {
		if a.regs[i].valueID < 0 && !isGroup1(i) {
			return i
		}
	}
	for _, i := range order {
		if a.regs[i].valueID < 0 {
			return i
		}
	}
	victim := order[len(order)-1]
	a.EvictRegister(victim, false)
	return victim
}

// CodegenDesc describes one N-ary node's codegen request to WorkForCodegen
// (§4.5): the fixed-phase uses, whether there's an output and/or a
// brDecision, and which (if any) input each may reuse.
type CodegenDesc struct {
	Inputs          []ValueUseRAInfo
	HasOutput       bool
	OutputValueID   int
	HasBrDecision   bool
	BrValueID       int
	ReuseCandidates []int // indices into Inputs eligible for output reuse
	NextSpillAllIdx int32 // farthest-future "spill everything" boundary
}

// CodegenResult is WorkForCodegen's decision: where every input physically
// lives, where the output/brDecision land, and which concrete stencil
// sub-variant that combination selects.
type CodegenResult struct {
	InputRegs    []int
	OutputReg    int
	BrReg        int
	OutputReuses int // index into Inputs, or -1
	VariantOrd   int32
}

// WorkForCodegen is C5's main entry for an N-ary node (§4.5): loads any
// input not already resident, decides whether the output (and brDecision)
// can reuse an input register, and derives the concrete codegen-func
// ordinal from the resulting {Group-1/Group-2 per operand} x {output
// choice} x {brDecision choice} x {Group-1 passthrough count} product.
func (a *RegAllocator) WorkForCodegen(desc CodegenDesc) CodegenResult {
	res := CodegenResult{
		InputRegs:    make([]int, len(desc.Inputs)),
		OutputReg:    -1,
		BrReg:        -1,
		OutputReuses: -1,
	}
	for i, use := range desc.Inputs {
		regIdx, ok := a.ValueReg(use.ValueID)
		if !ok {
			regIdx = a.pickLoadTarget()
			a.LoadRegister(use.ValueID, regIdx, use.NextUseIdx)
		} else {
			a.touchNextUse(regIdx, use.NextUseIdx)
		}
		res.InputRegs[i] = regIdx
	}

	if desc.HasOutput {
		reuse := a.chooseReuse(desc)
		if reuse >= 0 {
			res.OutputReg = res.InputRegs[reuse]
			res.OutputReuses = reuse
		} else {
			res.OutputReg = a.pickLoadTarget()
		}
		a.byValue[desc.OutputValueID] = res.OutputReg
		a.regs[res.OutputReg] = regEntry{valueID: desc.OutputValueID, state: packRegState(-1, false, res.OutputReg)}
	}

	if desc.HasBrDecision {
		res.BrReg = a.pickLoadTarget()
		// §4.5 constraint: a node must never end up with "output reuses
		// input but brDecision does not" — swap roles if that would occur.
		if res.OutputReuses >= 0 && res.BrReg != res.InputRegs[res.OutputReuses] {
			res.OutputReg, res.BrReg = res.BrReg, res.OutputReg
		}
	}

	res.VariantOrd = deriveVariantOrd(res)
	return res
}

// chooseReuse prefers reusing an input register for the output when doing
// so avoids a forced move, or when the input's next use already exceeds the
// next spill-everything boundary (so it would need reloading anyway).
func (a *RegAllocator) chooseReuse(desc CodegenDesc) int {
	best := -1
	for _, i := range desc.ReuseCandidates {
		if i < 0 || i >= len(desc.Inputs) {
			continue
		}
		use := desc.Inputs[i]
		if use.IsLastUse {
			if use.NextUseIdx == noSlot || (desc.NextSpillAllIdx != noSlot && use.NextUseIdx > desc.NextSpillAllIdx) {
				return i
			}
			if best == -1 {
				best = i
			}
		}
	}
	return best
}

// deriveVariantOrd folds {Group-1/Group-2 per operand} x {output choice} x
// {brDecision choice} x {Group-1 passthrough count} into one concrete
// codegen-func ordinal (§4.5, §9 "Configuration enumeration": must be a
// concrete enumerated set whose dimension product matches the stencil table
// length exactly).
func deriveVariantOrd(res CodegenResult) int32 {
	var ord int32
	group1Count := int32(0)
	for i, r := range res.InputRegs {
		bit := int32(0)
		if isGroup1(r) {
			bit = 1
			group1Count++
		}
		ord = ord<<1 | bit
		_ = i
	}
	if res.OutputReg >= 0 {
		outBit := int32(0)
		if isGroup1(res.OutputReg) {
			outBit = 1
		}
		ord = ord<<1 | outBit
	}
	if res.BrReg >= 0 {
		brBit := int32(0)
		if isGroup1(res.BrReg) {
			brBit = 1
		}
		ord = ord<<1 | brBit
	}
	ord = ord<<5 | group1Count
	if res.OutputReuses >= 0 {
		ord |= 1 << 30
	}
	return ord
}

// ProcessRangedOperands materializes a set of pending range-operand loads
// into consecutive stack slots starting at lockedRegIdx's frame offset,
// using a max-heap over (current-nextUse ∪ operand-nextUse) to decide which
// registers survive eviction pressure and which get spilled first so that
// duplicate values follow their first occurrence in the emitted order
// (§4.5). Returns the pending slots in emission order.
func (a *RegAllocator) ProcessRangedOperands(pending []ValueUseRAInfo) []ValueUseRAInfo {
	ordered := make([]ValueUseRAInfo, len(pending))
	copy(ordered, pending)
	// Max-heap semantics via insertion sort on 20-ish item ranges: farthest
	// next-use surfaces first, matching SortDescend's contract.
	words := make([]uint32, len(ordered))
	for i, u := range ordered {
		nu := u.NextUseIdx
		if nu == noSlot {
			nu = (1 << 20) - 1
		}
		words[i] = uint32(nu)<<8 | uint32(i)
	}
	SortDescend(words)
	out := make([]ValueUseRAInfo, len(ordered))
	seenValue := map[int]bool{}
	w := 0
	for _, word := range words {
		i := int(word & 0xFF)
		u := ordered[i]
		if seenValue[u.ValueID] {
			continue // duplicate: first occurrence already emitted
		}
		seenValue[u.ValueID] = true
		out[w] = u
		w++
	}
	return out[:w]
}
