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

// newReturnOnlyGraph builds a one-block graph whose only node is a Return,
// with the given return-value edges wired in as RangeInputs (§4.8: Return's
// operands are materialized through the same range-phase machinery as
// CreateVariadicRes/PrependVariadicRes).
func newReturnOnlyGraph(numLocals int, ret *Node) *Graph {
	g := NewGraph(numLocals)
	g.Blocks = []*BasicBlock{{Nodes: []*Node{ret}}}
	return g
}

// scenario S1: entry block containing only Return() with zero inputs.
// Expected (§8): a single builtinOrdReturn stencil entry with no operand
// slots followed immediately by the block's empty terminator (Return has no
// successors, so EmitTerminator appends nothing, §4.9 case 0) — the ud2
// itself lives inside the Return stencil's own emission.
func TestCompileReturnOfNoValuesScenarioS1(t *testing.T) {
	g := newReturnOnlyGraph(0, &Node{Kind: NodeReturn})

	cb, err := Compile(g, CompileOptions{Stencils: NewDemoStencilLibrary(), FirstSpillSlot: 0})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if cb.FrameSlots != 0 {
		t.Fatalf("FrameSlots = %d, want 0 (no return values, nothing else live)", cb.FrameSlots)
	}
	if len(cb.OSRMap) != 0 {
		t.Fatalf("OSRMap = %v, want empty (Return never touches a shadow slot)", cb.OSRMap)
	}
	if cb.Size() != demoReturnLen {
		t.Fatalf("Size() = %d, want exactly demoReturnLen (%d): the fast path is nothing but the Return stencil's reservation", cb.Size(), demoReturnLen)
	}
}

// scenario S2: entry block with Return(UnboxedConstant(k=42)). The constant
// is materialized into the return value's range slot before the Return
// stencil runs, occupying exactly one frame slot.
func TestCompileReturnOfOneConstantScenarioS2(t *testing.T) {
	g := NewGraph(0)
	g.Constants = []ConstantInfo{{BoxedValue: 42}}

	c := &Node{Kind: NodeUnboxedConstant, Data: 0}
	ret := &Node{Kind: NodeReturn, RangeInputs: []Edge{{Source: c, Use: UseKnownUnboxedInt64, Prediction: tOpaque}}}
	g.Blocks = []*BasicBlock{{Nodes: []*Node{c, ret}}}

	cb, err := Compile(g, CompileOptions{Stencils: NewDemoStencilLibrary(), FirstSpillSlot: 0})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if cb.FrameSlots != 1 {
		t.Fatalf("FrameSlots = %d, want 1 (one return-value slot)", cb.FrameSlots)
	}
	if g.Constants[0].BoxedValue != 42 {
		t.Fatalf("constant table entry 0 mutated: %+v", g.Constants[0])
	}
	if cb.Size() <= demoReturnLen {
		t.Fatalf("Size() = %d, want more than the bare Return reservation (%d): materializing and spilling the constant into its range slot must contribute bytes too", cb.Size(), demoReturnLen)
	}
}

// scenario S3: entry block A ends in a conditional branch to {B, A} — a
// self-loop. A is therefore its own back-edge target and must be padded to a
// 16-byte boundary; since A is also the very first block in codegen order its
// own fastPathOffset is 0 (trivially aligned) but S3's substantive claim is
// block order and which block the allocator marks as a back-edge target.
func TestCompileTwoBlockBranchWithBackEdgeScenarioS3(t *testing.T) {
	g := NewGraph(0)
	g.Constants = []ConstantInfo{{BoxedValue: 1}}
	a := &BasicBlock{}
	b := &BasicBlock{}

	cond := &Node{Kind: NodeUnboxedConstant, Data: 0}
	branch := &Node{
		Kind:          NodeGuestLanguage,
		BC:            demoGuestBCBranch,
		HasBr:         true,
		Inputs:        []Edge{{Source: cond, Use: UseKnownUnboxedInt64, Prediction: tOpaque}},
		BranchTargets: []*BasicBlock{b, a}, // [trueTarget=B, falseTarget=A] per §4.9 ordering
	}
	a.Nodes = []*Node{cond, branch}

	ret := &Node{Kind: NodeReturn}
	b.Nodes = []*Node{ret}

	g.Blocks = []*BasicBlock{a, b}

	order := SequenceBlocks(g)
	if len(order) != 2 || order[0] != a || order[1] != b {
		t.Fatalf("SequenceBlocks order = %v, want [A, B]", order)
	}
	if !a.isBackEdgeTarget {
		t.Fatalf("A (self-loop target, reached while still on the DFS stack) must be marked as a back-edge target")
	}
	if b.isBackEdgeTarget {
		t.Fatalf("B (reached once, not on the DFS stack) must not be marked as a back-edge target")
	}

	cb, err := Compile(g, CompileOptions{Stencils: NewDemoStencilLibrary(), FirstSpillSlot: 0})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// property 9: every back-edge-target block starts 16-byte aligned.
	if a.fastPathOffset%16 != 0 {
		t.Fatalf("A.fastPathOffset = %d, not 16-byte aligned", a.fastPathOffset)
	}
	if cb.Size() == 0 {
		t.Fatalf("Size() = 0, want a nonzero compiled block")
	}
}

// scenario S4: a block sets local L0 = GetLocal-free constant, then reads it
// back out via SetLocal's own speculation bookkeeping; after AssignSpeculation
// L0's mask reflects the constant's prediction, and after Compile the OSR map
// entry for L0's shadow slot names its physical slot.
func TestCompileGetLocalSetLocalRoundTripScenarioS4(t *testing.T) {
	g := NewGraph(1)
	g.Constants = []ConstantInfo{{BoxedValue: 7}}

	c := &Node{Kind: NodeUnboxedConstant, Data: 0}
	set := &Node{Kind: NodeSetLocal, Data: 0, Inputs: []Edge{{Source: c, Use: UseKnownUnboxedInt64, Prediction: tOpaque}}}
	ret := &Node{Kind: NodeReturn}
	g.Blocks = []*BasicBlock{{Nodes: []*Node{c, set, ret}}}

	AssignSpeculation(g)
	if g.LogicalVars[0].SpeculationMask != tOpaque {
		t.Fatalf("L0.SpeculationMask = %v, want tOpaque (SetLocal's input is statically unboxed)", g.LogicalVars[0].SpeculationMask)
	}
	if set.Inputs[0].Use != UseKnownUnboxedInt64 {
		t.Fatalf("SetLocal's own edge use-kind = %v, want UseKnownUnboxedInt64 once the local's mask is tOpaque", set.Inputs[0].Use)
	}

	cb, err := Compile(g, CompileOptions{Stencils: NewDemoStencilLibrary(), FirstSpillSlot: 0})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	src, ok := cb.OSRMap[g.LogicalVars[0].InterpreterSlot]
	if !ok {
		t.Fatalf("OSR map has no entry for L0's shadow slot %d", g.LogicalVars[0].InterpreterSlot)
	}
	// property 3: after the SetLocal the recovery source names L0's physical
	// slot, the frame slot processSetLocal stored the value into (the
	// interpreter slot's own index), not the constant that flowed into it.
	if src.Kind != RecoverFromSpillSlot || src.Slot != g.LogicalVars[0].InterpreterSlot {
		t.Fatalf("L0's recovery source = %+v, want RecoverFromSpillSlot slot %d (ProcessSetLocal's rewrite)", src, g.LogicalVars[0].InterpreterSlot)
	}
}

// property 1: determinism — compiling the same graph twice from scratch
// produces byte-identical code.
func TestCompileIsDeterministic(t *testing.T) {
	build := func() *Graph {
		g := NewGraph(0)
		g.Constants = []ConstantInfo{{BoxedValue: 42}}
		c := &Node{Kind: NodeUnboxedConstant, Data: 0}
		ret := &Node{Kind: NodeReturn, RangeInputs: []Edge{{Source: c, Use: UseKnownUnboxedInt64, Prediction: tOpaque}}}
		g.Blocks = []*BasicBlock{{Nodes: []*Node{c, ret}}}
		return g
	}

	cb1, err := Compile(build(), CompileOptions{Stencils: NewDemoStencilLibrary(), FirstSpillSlot: 0})
	if err != nil {
		t.Fatalf("Compile #1: %v", err)
	}
	cb2, err := Compile(build(), CompileOptions{Stencils: NewDemoStencilLibrary(), FirstSpillSlot: 0})
	if err != nil {
		t.Fatalf("Compile #2: %v", err)
	}
	if cb1.Size() != cb2.Size() {
		t.Fatalf("Size() differs between two compiles of the same graph: %d vs %d", cb1.Size(), cb2.Size())
	}
	if len(cb1.Code) != len(cb2.Code) {
		t.Fatalf("Code length differs: %d vs %d", len(cb1.Code), len(cb2.Code))
	}
	for i := range cb1.Code {
		if cb1.Code[i] != cb2.Code[i] {
			t.Fatalf("Code differs at byte %d: %#x vs %#x", i, cb1.Code[i], cb2.Code[i])
		}
	}
}
