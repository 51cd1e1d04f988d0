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

// SequenceBlocks is C9 (§4.9): a DFS walk over the graph's control-flow edges
// that fixes the order blocks are handed to C8/C10, and marks every block
// reached while still on the DFS stack as a back-edge target (loop header)
// so C10 knows to 16-byte-align it.
func SequenceBlocks(g *Graph) []*BasicBlock {
	n := len(g.Blocks)
	visited := make([]bool, n)
	onStack := make([]bool, n)
	indexOf := make(map[*BasicBlock]int, n)
	for i, b := range g.Blocks {
		indexOf[b] = i
	}

	order := make([]*BasicBlock, 0, n)
	var visit func(b *BasicBlock)
	visit = func(b *BasicBlock) {
		i := indexOf[b]
		if visited[i] {
			return
		}
		visited[i] = true
		onStack[i] = true
		b.ordInCodegenOrder = len(order)
		order = append(order, b)
		for _, succ := range b.Successors() {
			si := indexOf[succ]
			if onStack[si] {
				succ.isBackEdgeTarget = true
			}
			visit(succ)
		}
		onStack[i] = false
	}
	visit(g.EntryBlock())

	// Blocks unreachable from the entry (shouldn't occur in a well-formed
	// graph, but C9 doesn't assume one) still need a codegen slot.
	for i, b := range g.Blocks {
		if !visited[i] {
			b.ordInCodegenOrder = len(order)
			order = append(order, b)
		}
	}
	return order
}

// successorOrd returns succ's position in codegen order.
func successorOrd(succ *BasicBlock) int32 { return int32(succ.ordInCodegenOrder) }

// EmitTerminator is C9's other half: given the block's position in `order`
// and its already-reg-allocated branch-decision use (if any, from C4's
// BrDecisionUse), append the OpBlockJump log entry describing how to reach
// its successors. Fallthrough elision compares each candidate target's
// codegen-order ordinal against the position right after b in `order`.
func EmitTerminator(log *OpLog, gpr *RegAllocator, order []*BasicBlock, b *BasicBlock, brUse *ValueUseRAInfo) {
	succ := b.Successors()
	nextOrd := int32(-1)
	if b.ordInCodegenOrder+1 < len(order) {
		nextOrd = int32(order[b.ordInCodegenOrder+1].ordInCodegenOrder)
	}

	switch len(succ) {
	case 0:
		return
	case 1:
		target := successorOrd(succ[0])
		log.Append(LogEntry{
			Kind:          OpBlockJump,
			TrueTarget:    target,
			FalseTarget:   -1,
			CondReg:       -1,
			CondSpillSlot: noSlot,
			TrueFallsThru: target == nextOrd,
		})
	case 2:
		trueOrd := successorOrd(succ[0])
		falseOrd := successorOrd(succ[1])
		e := LogEntry{
			Kind:           OpBlockJump,
			TrueTarget:     trueOrd,
			FalseTarget:    falseOrd,
			CondSpillSlot:  noSlot,
			TrueFallsThru:  trueOrd == nextOrd,
			FalseFallsThru: falseOrd == nextOrd,
		}
		if brUse == nil {
			panic("dfg: two-successor block has no branch-decision use")
		}
		if regIdx, ok := gpr.ValueReg(brUse.ValueID); ok {
			e.CondReg = int32(regIdx)
		} else {
			e.CondReg = -1
			e.CondSpillSlot = gpr.vm.Info(brUse.ValueID).SpillSlot
		}
		log.Append(e)
	default:
		panic("dfg: block has more than two successors")
	}
}
