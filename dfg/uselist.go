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

// ValueRegAllocInfo is the current reg-alloc state of one SSA value (§3,
// "8 bytes" in the original's packed encoding; kept as a small plain struct
// here since Go has no bitfield packing story worth fighting for 8 bytes).
type ValueRegAllocInfo struct {
	GPRIdx         int8  // noReg if not resident
	FPRIdx         int8  // noReg if not resident
	SpillSlot      int32 // noSlot if not spilled
	NextUse        [2]int32 // next-use index per RegBank, in the current block
	IsConstantLike bool
	ConstID        int32
}

func newValueRegAllocInfo() *ValueRegAllocInfo {
	return &ValueRegAllocInfo{
		GPRIdx:    noReg,
		FPRIdx:    noReg,
		SpillSlot: noSlot,
		NextUse:   [2]int32{noSlot, noSlot},
	}
}

// ValueUseRAInfo is one use of an SSA value (§3).
type ValueUseRAInfo struct {
	ValueID     int
	Bank        RegBank
	Use         UseKind // the edge's C3-assigned use-kind, for C8's check phase
	UseIndex    int32
	NextUseIdx  int32 // this value's next use after the current one, or noSlot
	IsGhostLike bool
	IsDuplicate bool // same SSA value used >1 time at the same use index
	IsLastUse   bool
}

// NodeRegAllocInfo holds one node's uses, split into the three phases C4
// numbers per §4.4: RangeUses (3k+1), CheckUses (3k+2), FixedUses (3k+3).
type NodeRegAllocInfo struct {
	RangeUses []ValueUseRAInfo
	CheckUses []ValueUseRAInfo
	FixedUses []ValueUseRAInfo

	RangeUseIndex int32
	CheckUseIndex int32
	FixedUseIndex int32
}

// BlockUseList is C4's whole-block output: every node's NodeRegAllocInfo,
// the branch-decision use (if any), and the descending stack of
// "spill-everything" use indices consulted by C8.
type BlockUseList struct {
	BrDecisionUse   *ValueUseRAInfo // nil if block has <2 successors
	SpillEverything []int32         // descending; a stack C8 pops as it goes
}

// valueLastUseTracker accumulates, during the single backward pass over a
// block, the next-use index seen so far for every SSA value per bank.
type valueLastUseTracker struct {
	nextUse map[int]*[2]int32
	seenAt  map[int]*[2]int32 // last use index emitted, to detect duplicates
}

func newValueLastUseTracker() *valueLastUseTracker {
	return &valueLastUseTracker{
		nextUse: map[int]*[2]int32{},
		seenAt:  map[int]*[2]int32{},
	}
}

func (t *valueLastUseTracker) recordUse(valueID int, bank RegBank, use UseKind, idx int32) ValueUseRAInfo {
	nu, ok := t.nextUse[valueID]
	if !ok {
		nu = &[2]int32{noSlot, noSlot}
		t.nextUse[valueID] = nu
	}
	sa, ok := t.seenAt[valueID]
	if !ok {
		sa = &[2]int32{noSlot, noSlot}
		t.seenAt[valueID] = sa
	}
	u := ValueUseRAInfo{
		ValueID:    valueID,
		Bank:       bank,
		Use:        use,
		UseIndex:   idx,
		NextUseIdx: nu[bank],
		// Since this pass walks the block backward (from high use-index to
		// low), the first time we see a value IS its last use in forward
		// execution order.
		IsLastUse:   nu[bank] == noSlot,
		IsDuplicate: sa[bank] == idx,
	}
	nu[bank] = idx
	sa[bank] = idx
	return u
}

// bankForEdge decides which register bank a typed edge's value demands. A
// real VM derives this from the use-kind's associated C/C++ type (boxed
// int64 vs boxed double vs the generic boxed-value representation); this
// module keeps the same two-bank split and dispatches on the prediction mask
// alone, which is sufficient for every node kind named in §3.
func bankForEdge(e *Edge) RegBank {
	if e.Prediction == tDouble {
		return BankFPR
	}
	return BankGPR
}

// BuildUseList runs C4 over one basic block: numbers use indices
// suffix-first, builds a NodeRegAllocInfo per node, and produces the
// descending spill-everything stack for reg-alloc-disabled nodes and for
// CreateFunctionObject/Return (§4.4).
func BuildUseList(b *BasicBlock) *BlockUseList {
	n := len(b.Nodes)
	t := newValueLastUseTracker()
	ul := &BlockUseList{}

	if hasTwoSuccessors(b) {
		br := brDecisionEdge(b.Terminator())
		if br != nil {
			idx := int32(3*n + 2)
			use := t.recordUse(br.Source.valueID, bankForEdge(br), br.Use, idx)
			ul.BrDecisionUse = &use
		}
	}

	for k := 0; k < n; k++ {
		// Nodes are numbered from the block's end: node at slice index n-1-k
		// is the k-th node counted from block end.
		node := b.Nodes[n-1-k]
		info := &NodeRegAllocInfo{
			RangeUseIndex: int32(3*k + 1),
			CheckUseIndex: int32(3*k + 2),
			FixedUseIndex: int32(3*k + 3),
		}

		for i := range node.RangeInputs {
			e := &node.RangeInputs[i]
			use := t.recordUse(e.Source.valueID, bankForEdge(e), e.Use, info.RangeUseIndex)
			info.RangeUses = append(info.RangeUses, use)
		}
		for i := range node.Inputs {
			e := &node.Inputs[i]
			phase := &info.FixedUses
			idx := info.FixedUseIndex
			if e.Use != UseUntyped && !e.Use.IsProven() && e.Use != UseKnownCapturedVar && e.Use != UseKnownUnboxedInt64 {
				phase = &info.CheckUses
				idx = info.CheckUseIndex
			}
			use := t.recordUse(e.Source.valueID, bankForEdge(e), e.Use, idx)
			*phase = append(*phase, use)
		}

		if requiresSpillEverything(node) {
			ul.SpillEverything = append(ul.SpillEverything, info.FixedUseIndex)
		}

		node.RegInfo = info
	}
	return ul
}

func hasTwoSuccessors(b *BasicBlock) bool {
	t := b.Terminator()
	return t.Kind == NodeGuestLanguage && t.HasBr
}

func brDecisionEdge(term *Node) *Edge {
	if len(term.Inputs) == 0 {
		return nil
	}
	return &term.Inputs[len(term.Inputs)-1]
}

// requiresSpillEverything mirrors §4.4: nodes that disable reg-alloc, plus
// CreateFunctionObject and Return, force every live register to be evicted
// before the node's own codegen.
func requiresSpillEverything(n *Node) bool {
	switch n.Kind {
	case NodeCreateFunctionObject, NodeReturn:
		return true
	default:
		return n.Kind == NodeGuestLanguage && !lookupBCTrait(n.BC).regAllocEnabled()
	}
}

// regAllocEnabled is a trait helper; the field itself lives on BCTrait but is
// expressed as a method so node-processor call sites read naturally.
func (t *BCTrait) regAllocEnabled() bool {
	return !t.DisableRegAlloc
}
