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

// The stencil ordinal space (§4.7/§6) is flat across every codegen-emitting
// log entry, regardless of LogEntryKind, so the handful of built-in node
// kinds that emit their own fixed stencil reserve a small range below any
// BCTrait.CodegenOrdBase to avoid colliding with guest-language ordinals.
const (
	builtinOrdVariadicRes          int32 = 0
	builtinOrdCreateFunctionObject int32 = 1
	builtinOrdReturn               int32 = 2
	builtinOrdAlwaysOsrExit        int32 = 3
)

// NodeProcessor is C8: walks one basic block's nodes in program order,
// driving C5 (RegAllocator, one per bank) and C6 (ValueManager) per node
// and appending the resulting low-level operations to C7 (OpLog).
type NodeProcessor struct {
	g   *Graph
	gpr *RegAllocator
	fpr *RegAllocator
	vm  *ValueManager
	log *OpLog
}

// NewNodeProcessor wires one block's processor to the shared per-compile
// collaborators. gpr/fpr must already be reset for the block being
// processed (ResetForBlock), and vm must already carry this block's OSR
// baseline.
func NewNodeProcessor(g *Graph, gpr, fpr *RegAllocator, vm *ValueManager, log *OpLog) *NodeProcessor {
	return &NodeProcessor{g: g, gpr: gpr, fpr: fpr, vm: vm, log: log}
}

func (p *NodeProcessor) bank(b RegBank) *RegAllocator {
	if b == BankFPR {
		return p.fpr
	}
	return p.gpr
}

// ProcessBlock runs every node in b through its per-node schedule, using
// the use list C4 built for the same block.
func (p *NodeProcessor) ProcessBlock(b *BasicBlock, ul *BlockUseList) {
	spillEverything := ul.SpillEverything // descending stack, popped as we go
	for _, n := range b.Nodes {
		info := n.RegInfo
		if info == nil {
			panic("dfg: node processed before its use-list info was built")
		}
		if len(spillEverything) > 0 && spillEverything[len(spillEverything)-1] == info.FixedUseIndex {
			spillEverything = spillEverything[:len(spillEverything)-1]
			p.gpr.SpillEverything()
			p.fpr.SpillEverything()
		}
		p.processNode(n)
		p.killDeadUses(info)
	}
}

// processNode dispatches to a specialized handler for built-in node kinds,
// or the generic check+codegen schedule for guest-language nodes.
func (p *NodeProcessor) processNode(n *Node) {
	switch n.Kind {
	case NodeConstant, NodeUnboxedConstant, NodeUndefValue:
		p.vm.RegisterConstant(n.valueID, int32(n.Data))
	case NodeArgument, NodeGetNumVariadicArgs, NodeGetKthVariadicArg,
		NodeGetFunctionObject, NodeGetKthVariadicRes, NodeGetNumVariadicRes,
		NodeGetUpvalueImmutable, NodeGetUpvalueMutable, NodeNop, NodePhi:
		// Pure value-producing nodes with no operands to load: their
		// output simply becomes resident the first time something uses
		// it (lazy materialization via RegAllocator.LoadRegister).
	case NodeGetLocal:
		p.processGetLocal(n)
	case NodeSetLocal:
		p.processSetLocal(n)
	case NodeGetCapturedVar, NodeSetCapturedVar, NodeCreateCapturedVar:
		p.runCheckPhase(n)
		p.emitGenericCodegen(n)
	case NodeSetUpvalue:
		p.runCheckPhase(n)
		p.emitGenericCodegen(n)
	case NodeCreateVariadicRes, NodePrependVariadicRes:
		p.processVariadicRes(n)
	case NodeCheckU64InBound, NodeI64SubSaturateToZero:
		p.runCheckPhase(n)
		p.emitGenericCodegen(n)
	case NodeCreateFunctionObject:
		p.processCreateFunctionObject(n)
	case NodeReturn:
		p.processReturn(n)
	case NodeShadowStore:
		p.processShadowStore(n)
	case NodeShadowStoreUndefToRange:
		p.processShadowStoreUndefToRange(n)
	case NodePhantom:
		// Phantom nodes exist only for OSR bookkeeping metadata, never for
		// real machine code — nothing to emit.
	case NodeGuestLanguage:
		p.processGuestLanguage(n)
	default:
		panic("dfg: node processor has no handler for this kind")
	}
}

// runRangePhase materializes a node's range operands into a freshly
// reserved contiguous stack range, in the order C5's max-heap-ish
// ProcessRangedOperands picks, then records each value's slot via a
// plain register-bank op so C10 can replay it like any other store.
func (p *NodeProcessor) runRangePhase(n *Node) int32 {
	if len(n.RegInfo.RangeUses) == 0 {
		return noSlot
	}
	ordered := p.gpr.ProcessRangedOperands(n.RegInfo.RangeUses)
	base := p.vm.AllocatePhysicalRange(len(ordered))
	for i, use := range ordered {
		a := p.bank(use.Bank)
		regIdx, ok := a.ValueReg(use.ValueID)
		if !ok {
			regIdx = a.WorkForCodegenCheck(use, 1, false)
		}
		slot := base + int32(i)
		p.log.Append(LogEntry{Kind: OpRegSpill, ValueID: use.ValueID, Reg: regIdx, Bank: use.Bank, Slot: slot})
	}
	return base
}

// runCheckPhase emits a type-check stencil (or nothing, for proven edges)
// for every check-phase use of n, ensuring the checked value is resident
// in a register first.
func (p *NodeProcessor) runCheckPhase(n *Node) {
	for _, use := range n.RegInfo.CheckUses {
		p.emitCheckForUse(use)
	}
}

func (p *NodeProcessor) emitCheckForUse(use ValueUseRAInfo) {
	a := p.bank(use.Bank)
	regIdx := a.WorkForCodegenCheck(use, 1, false)
	edgeUse := use.Use
	if edgeUse.IsProven() || edgeUse == UseUntyped {
		return
	}
	if edgeUse == UseAlwaysOsrExit {
		p.log.Append(LogEntry{Kind: OpCustomRegAllocDisabled, ValueID: use.ValueID, Reg: regIdx, Bank: use.Bank, CodegenFuncOrd: builtinOrdAlwaysOsrExit})
		return
	}
	stencil := lookupTypeCheckStencil(edgeUse)
	p.log.Append(LogEntry{
		Kind:           OpCodegenRegAllocEnabled,
		ValueID:        use.ValueID,
		CodegenFuncOrd: stencil.Ord,
		OperandSlots:   []int32{int32(regIdx)},
		OutputSlot:     -1,
		BrSlot:         -1,
	})
}

// emitGenericCodegen is the fallback C8 path for any node without a
// BCTrait.Codegen override: load every fixed-phase operand, optionally
// pick an output register, and append one stencil-backed log entry whose
// ordinal folds the node's own base ordinal with the variant WorkForCodegen
// derived from the chosen registers.
func (p *NodeProcessor) emitGenericCodegen(n *Node) {
	info := n.RegInfo
	desc := CodegenDesc{
		Inputs:          info.FixedUses,
		HasOutput:       n.HasOutput,
		OutputValueID:   n.valueID,
		NextSpillAllIdx: noSlot,
	}
	if len(desc.Inputs) > 0 {
		desc.ReuseCandidates = []int{0}
	}
	res := p.gpr.WorkForCodegen(desc)
	slots := make([]int32, len(res.InputRegs))
	for i, r := range res.InputRegs {
		slots[i] = int32(r)
	}
	kind := OpCodegenRegAllocEnabled
	ord := int32(n.DfgVariantOrd) + res.VariantOrd
	p.log.Append(LogEntry{
		Kind:           kind,
		ValueID:        n.valueID,
		CodegenFuncOrd: ord,
		VariantOrd:     res.VariantOrd,
		OperandSlots:   slots,
		OutputSlot:     int32(res.OutputReg),
		NodeData:       n.Data,
	})
}

// processGuestLanguage runs the full C8 schedule for a guest-language
// node: range phase, check phase, then the BCKind's own codegen (either a
// generated Codegen closure, or the generic fallback for reg-alloc
// disabled / trivial nodes).
func (p *NodeProcessor) processGuestLanguage(n *Node) {
	t := lookupBCTrait(n.BC)
	if !t.regAllocEnabled() {
		p.gpr.SpillEverything()
		p.fpr.SpillEverything()
		p.log.Append(LogEntry{Kind: OpCustomRegAllocDisabled, NodeData: n.Data, CodegenFuncOrd: t.CodegenOrdBase})
		return
	}
	if t.HasRangeOperand {
		base := p.runRangePhase(n)
		n.Data = n.Data<<16 | int64(base&0xFFFF)
	}
	p.runCheckPhase(n)
	if t.Codegen != nil {
		t.Codegen(p, n)
		return
	}
	p.emitGenericCodegenWithBase(n, t.CodegenOrdBase)
}

func (p *NodeProcessor) emitGenericCodegenWithBase(n *Node, base int32) {
	info := n.RegInfo
	desc := CodegenDesc{
		Inputs:        info.FixedUses,
		HasOutput:     n.HasOutput,
		OutputValueID: n.valueID,
		HasBrDecision: n.HasBr,
	}
	if n.HasBr && len(desc.Inputs) > 0 {
		desc.BrValueID = desc.Inputs[len(desc.Inputs)-1].ValueID
	}
	if len(desc.Inputs) > 0 {
		desc.ReuseCandidates = []int{0}
	}
	res := p.gpr.WorkForCodegen(desc)
	slots := make([]int32, len(res.InputRegs))
	for i, r := range res.InputRegs {
		slots[i] = int32(r)
	}
	n.DfgVariantOrd = res.VariantOrd
	p.log.Append(LogEntry{
		Kind:           OpCodegenRegAllocEnabled,
		ValueID:        n.valueID,
		CodegenFuncOrd: base + res.VariantOrd,
		VariantOrd:     res.VariantOrd,
		OperandSlots:   slots,
		OutputSlot:     int32(res.OutputReg),
		BrSlot:         int32(res.BrReg),
		NodeData:       n.Data,
	})
}

// processGetLocal materializes a local variable read: since a local's
// physical storage is just whatever OSR recovery source ProcessSetLocal
// last recorded for it, GetLocal emits no machine code of its own in this
// model — the reading node simply becomes resident, lazily, the first
// time a later node consumes it.
func (p *NodeProcessor) processGetLocal(n *Node) {
	_ = p.g.LogicalVars[n.Data]
}

// processSetLocal ensures the assigned value is resident, points the
// interpreter slot's OSR recovery source at the local's physical slot, and
// emits the store into that slot.
func (p *NodeProcessor) processSetLocal(n *Node) {
	in := &n.Inputs[0]
	use := firstUse(n.RegInfo)
	a := p.bank(use.Bank)
	regIdx := a.WorkForCodegenCheck(use, 1, false)
	slot := p.g.LogicalVars[n.Data].InterpreterSlot
	p.vm.ProcessSetLocal(slot, in.Source.valueID)
	p.log.Append(LogEntry{Kind: OpRegSpill, ValueID: in.Source.valueID, Reg: regIdx, Bank: use.Bank, Slot: slot})
}

func firstUse(info *NodeRegAllocInfo) ValueUseRAInfo {
	if len(info.CheckUses) > 0 {
		return info.CheckUses[0]
	}
	return info.FixedUses[0]
}

// processVariadicRes handles CreateVariadicRes/PrependVariadicRes: the
// count/head operand is known-unboxed (assigned by C3), the rest flow
// through the range phase as the tail values.
func (p *NodeProcessor) processVariadicRes(n *Node) {
	base := p.runRangePhase(n)
	head := firstUse(n.RegInfo)
	regIdx := p.gpr.WorkForCodegenCheck(head, 1, false)
	// CodegenFuncOrd 0 names the fixed built-in stencil family for this
	// node kind (CreateVariadicRes/PrependVariadicRes share one stencil,
	// distinguished only by n.Kind at replay time) — there is no
	// per-BCKind trait to consult since this is a built-in kind, not a
	// guest-language one.
	p.log.Append(LogEntry{
		Kind:           OpCodegenRegAllocEnabled,
		ValueID:        n.valueID,
		CodegenFuncOrd: builtinOrdVariadicRes,
		OperandSlots:   []int32{int32(regIdx)},
		OutputSlot:     int32(base),
		NodeData:       n.Data,
	})
}

// processCreateFunctionObject materializes every upvalue into a contiguous
// range at the frame end, then spills whatever else is still live (§4.4):
// closure creation captures the current frame, so nothing may be left
// resident only in a register.
func (p *NodeProcessor) processCreateFunctionObject(n *Node) {
	base := p.runRangePhase(n)
	p.gpr.SpillEverything()
	p.fpr.SpillEverything()
	slots := make([]int32, 0, len(n.RangeInputs))
	if base != noSlot {
		for i := range n.RangeInputs {
			slots = append(slots, base+int32(i))
		}
	}
	p.log.Append(LogEntry{
		Kind:           OpCustomRegAllocEnabled,
		ValueID:        n.valueID,
		OperandSlots:   slots,
		NodeData:       n.Data,
		CodegenFuncOrd: builtinOrdCreateFunctionObject,
		OutputSlot:     -1,
		BrSlot:         -1,
	})
}

// processReturn materializes every return value into a contiguous range at
// the frame end (the "fixed result region", §4.8) via the same range-phase
// machinery CreateVariadicRes/PrependVariadicRes use, then spills whatever
// else is still live before emitting the return sequence: nothing may be
// left resident only in a register across a call boundary the caller
// doesn't know about (§4.4/§4.8).
func (p *NodeProcessor) processReturn(n *Node) {
	base := p.runRangePhase(n)
	p.gpr.SpillEverything()
	p.fpr.SpillEverything()
	slots := make([]int32, 0, len(n.RangeInputs))
	if base != noSlot {
		for i := range n.RangeInputs {
			slots = append(slots, base+int32(i))
		}
	}
	p.log.Append(LogEntry{
		Kind:           OpCustomRegAllocDisabled,
		ValueID:        n.valueID,
		OperandSlots:   slots,
		NodeData:       n.Data,
		CodegenFuncOrd: builtinOrdReturn,
		OutputSlot:     -1,
		BrSlot:         -1,
	})
}

// processShadowStore records an OSR recovery source for a logical shadow
// slot without otherwise affecting register state (§4.6).
func (p *NodeProcessor) processShadowStore(n *Node) {
	if len(n.Inputs) == 0 {
		return
	}
	p.vm.ProcessShadowStore(n.Inputs[0].Source.valueID, int32(n.Data))
}

// processShadowStoreUndefToRange clears a contiguous run of shadow slots
// to the "recover as undef constant" source, used when a variadic result
// tail shrinks (§4.6/§4.8 step 5).
func (p *NodeProcessor) processShadowStoreUndefToRange(n *Node) {
	base := int32(n.Data >> 32)
	count := int32(n.Data & 0xFFFFFFFF)
	for i := int32(0); i < count; i++ {
		p.vm.osr[base+i] = RecoverySource{Kind: RecoverFromConstant, ConstID: -1}
	}
}

// killDeadUses releases every value whose last use this node consumed:
// the spill slot (if any) goes back to the free list, and the register
// (if the value was never spilled) is freed for reuse without a spill.
func (p *NodeProcessor) killDeadUses(info *NodeRegAllocInfo) {
	killOne := func(u ValueUseRAInfo) {
		if !u.IsLastUse {
			return
		}
		p.bank(u.Bank).KillValue(u.ValueID)
		p.vm.Die(u.ValueID)
	}
	for _, u := range info.RangeUses {
		killOne(u)
	}
	for _, u := range info.CheckUses {
		killOne(u)
	}
	for _, u := range info.FixedUses {
		killOne(u)
	}
}
