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

// This file stands in for Deegen's offline-generated stencil library (§1,
// §6 "Stencil library" / "Type-check implementation library"): a small,
// real-but-unoptimized set of emit routines covering the four built-in
// codegen-func ordinals, a handful of type-check stencils for the demo
// strength-reduction rules below, and a generic guest-language arithmetic
// BCKind used by tests that want to exercise the fallback codegen path.
// A production host VM supplies its own library generated the way the
// teacher's tools/jitgen does (see tools/stencilgen).

const (
	demoTypeCheckOrdBase int32 = 10 // one ordinal per (rule, flip) pair
	demoAddOrdBase       int32 = 100
	demoBranchOrdBase    int32 = 200
	demoGuestBCAdd       BCKind = 1
	demoGuestBCBranch    BCKind = 2
)

func init() {
	DeclareStrengthReductionRule(StrengthReductionRule{CheckMask: tBool, PrecondMask: tTop, ImplName: "IsBoolean", Cost: 1})
	DeclareStrengthReductionRule(StrengthReductionRule{CheckMask: tInt32, PrecondMask: tTop, ImplName: "IsInt32", Cost: 1})
	DeclareStrengthReductionRule(StrengthReductionRule{CheckMask: tDouble, PrecondMask: tTop, ImplName: "IsDouble", Cost: 2})
	DeclareStrengthReductionRule(StrengthReductionRule{CheckMask: tString, PrecondMask: tTop, ImplName: "IsString", Cost: 3})

	for i := range strengthReductionTable {
		for flip := int32(0); flip < 2; flip++ {
			ord := demoTypeCheckOrdBase + 2*int32(i) + flip
			uk := FirstUnprovenUseKind + UseKind(2*int32(i)) + UseKind(flip)
			DeclareTypeCheckStencil(&TypeCheckStencil{
				UseKind: uk,
				Bank:    BankGPR,
				Ord:     ord,
				Size:    StencilSize{FastPathLen: demoCheckLen},
				Emit:    emitDemoTypeCheck,
			})
		}
	}

	DeclareBCTrait(demoGuestBCAdd, &BCTrait{
		Name:            "DemoAdd",
		NumInputs:       2,
		HasDirectOutput: true,
		SpecAssign:      specAssignDemoAdd,
		CodegenOrdBase:  demoAddOrdBase,
	})

	DeclareBCTrait(demoGuestBCBranch, &BCTrait{
		Name:           "DemoBranch",
		NumInputs:      1,
		HasBrDecision:  true,
		CodegenOrdBase: demoBranchOrdBase,
	})
}

// specAssignDemoAdd requires both operands to be proven/checked int32s,
// demonstrating a guest BCKind that actually narrows its inputs via
// e.Required rather than accepting whatever the upstream prediction already
// was (§4.2/§4.3).
func specAssignDemoAdd(g *Graph, n *Node) {
	for i := range n.Inputs {
		n.Inputs[i].Required = tInt32
		assignTypedEdge(&n.Inputs[i])
	}
}

const demoCheckLen = 8
const demoReturnLen = 256
const demoCreateFuncLen = 256
const demoVariadicResLen = 32
const demoOsrExitLen = 8
const demoAddLen = 24
const demoBranchLen = 8

// NewDemoStencilLibrary builds the demo StencilLibrary used by this
// package's own tests and available to any caller that wants a working,
// if unoptimized, library without writing its own (§6).
func NewDemoStencilLibrary() StencilLibrary {
	m := NewStencilLibrary()
	m.Register(builtinOrdVariadicRes, StencilSize{FastPathLen: demoVariadicResLen}, emitDemoVariadicRes)
	m.Register(builtinOrdCreateFunctionObject, StencilSize{FastPathLen: demoCreateFuncLen}, emitDemoCreateFunctionObject)
	m.Register(builtinOrdReturn, StencilSize{FastPathLen: demoReturnLen}, emitDemoReturn)
	m.Register(builtinOrdAlwaysOsrExit, StencilSize{FastPathLen: demoOsrExitLen}, emitDemoAlwaysOsrExit)
	for i := range strengthReductionTable {
		for flip := int32(0); flip < 2; flip++ {
			ord := demoTypeCheckOrdBase + 2*int32(i) + flip
			m.Register(ord, StencilSize{FastPathLen: demoCheckLen}, emitDemoTypeCheck)
		}
	}
	return &demoGuestLibrary{fixed: m}
}

// demoGuestLibrary wraps the statically-registered builtin/type-check
// ordinals with a procedural fallback for the guest-language arithmetic
// ordinal family: WorkForCodegen's {Group-1/Group-2}x{output}x{reuse}
// enumeration (§4.5) produces a sparse ordinal space (up to bit 30 for the
// output-reuse flag) that isn't worth pre-registering by hand entry-by-entry
// the way a real Deegen-emitted table would be.
type demoGuestLibrary struct {
	fixed *mapStencilLibrary
}

func (d *demoGuestLibrary) guestFamily(ord int32) (isAdd, isBranch bool) {
	bare := ord &^ (1 << 30)
	return bare >= demoAddOrdBase && bare < demoBranchOrdBase, bare >= demoBranchOrdBase
}

func (d *demoGuestLibrary) Size(ord int32) StencilSize {
	isAdd, isBranch := d.guestFamily(ord)
	switch {
	case isAdd:
		return StencilSize{FastPathLen: demoAddLen}
	case isBranch:
		return StencilSize{FastPathLen: demoBranchLen}
	default:
		return d.fixed.Size(ord)
	}
}

func (d *demoGuestLibrary) Emit(ord int32, pcs *StencilPCs, cfg RegConfig, nodeData int64, literals []uint64) (int, int, int, int) {
	isAdd, isBranch := d.guestFamily(ord)
	switch {
	case isAdd:
		return emitDemoAdd(pcs, cfg, nodeData, literals)
	case isBranch:
		return emitDemoBranch(pcs, cfg, nodeData, literals)
	default:
		return d.fixed.Emit(ord, pcs, cfg, nodeData, literals)
	}
}

// emitDemoReturn round-trips each return value through its materialized
// range slot (load, then store back) before the ud2 stand-in for the real
// trampoline back to the interpreter (§4.8, out of scope per §1). With zero
// operands this degenerates to exactly the ud2 terminator alone (scenario
// S1); with one constant operand it emits one load/store pair plus ud2
// (scenario S2).
func emitDemoReturn(pcs *StencilPCs, cfg RegConfig, nodeData int64, literals []uint64) (int, int, int, int) {
	pos := 0
	for _, slot := range cfg.OperandRegs {
		pos = EncodeMovRegMem(pcs.FastPath, pos, RegRAX, RegRBP, spillDisp(int32(slot)))
		pos = EncodeMovMemReg(pcs.FastPath, pos, RegRBP, spillDisp(int32(slot)), RegRAX)
	}
	pos = EncodeUd2(pcs.FastPath, pos)
	return pos, 0, 0, 0
}

// emitDemoCreateFunctionObject round-trips every upvalue slot the same way
// emitDemoReturn does, standing in for the real closure-allocation call
// (§4.4, out of scope per §1).
func emitDemoCreateFunctionObject(pcs *StencilPCs, cfg RegConfig, nodeData int64, literals []uint64) (int, int, int, int) {
	pos := 0
	for _, slot := range cfg.OperandRegs {
		pos = EncodeMovRegMem(pcs.FastPath, pos, RegRAX, RegRBP, spillDisp(int32(slot)))
		pos = EncodeMovMemReg(pcs.FastPath, pos, RegRBP, spillDisp(int32(slot)), RegRAX)
	}
	return pos, 0, 0, 0
}

// emitDemoVariadicRes stores the head register into the range base slot.
func emitDemoVariadicRes(pcs *StencilPCs, cfg RegConfig, nodeData int64, literals []uint64) (int, int, int, int) {
	pos := 0
	if len(cfg.OperandRegs) > 0 {
		pos = EncodeMovMemReg(pcs.FastPath, pos, RegRBP, spillDisp(int32(cfg.OutputReg)), cfg.OperandRegs[0])
	}
	return pos, 0, 0, 0
}

// emitDemoAlwaysOsrExit stands in for the real "always deoptimize" path
// (§4.2's TriviallyFalse outcome): a ud2, since the real OSR-exit trampoline
// is out of scope (§1).
func emitDemoAlwaysOsrExit(pcs *StencilPCs, cfg RegConfig, nodeData int64, literals []uint64) (int, int, int, int) {
	return EncodeUd2(pcs.FastPath, 0), 0, 0, 0
}

// emitDemoTypeCheck stands in for a real boxed-value type test: a single
// test-reg-reg against the checked operand. A production library's version
// of this would branch to a slow path on failure; this demo always falls
// through, which is sound only because every demo strength-reduction rule
// above is declared with PrecondMask=tTop and never actually drives a graph
// whose values could be anything but the checked type in the tests below.
func emitDemoTypeCheck(pcs *StencilPCs, cfg RegConfig, nodeData int64, literals []uint64) (int, int, int, int) {
	if len(cfg.OperandRegs) == 0 {
		return 0, 0, 0, 0
	}
	return EncodeTestRegReg(pcs.FastPath, 0, cfg.OperandRegs[0]), 0, 0, 0
}

// emitDemoBranch materializes the branch-decision value into cfg.BrReg, the
// register EmitTerminator later reads to build the conditional jump (§4.9):
// a no-op when the condition is already there.
func emitDemoBranch(pcs *StencilPCs, cfg RegConfig, nodeData int64, literals []uint64) (int, int, int, int) {
	if len(cfg.OperandRegs) == 0 || cfg.OperandRegs[0] == cfg.BrReg {
		return 0, 0, 0, 0
	}
	return EncodeMovRegReg(pcs.FastPath, 0, cfg.BrReg, cfg.OperandRegs[0]), 0, 0, 0
}

// emitDemoAdd writes a real three-operand add: move the first input into
// the output (unless already aliased by reuse) then add-in the second.
func emitDemoAdd(pcs *StencilPCs, cfg RegConfig, nodeData int64, literals []uint64) (int, int, int, int) {
	if len(cfg.OperandRegs) < 2 || cfg.OutputReg < 0 {
		return 0, 0, 0, 0
	}
	pos := 0
	if cfg.OutputReg != cfg.OperandRegs[0] {
		pos = EncodeMovRegReg(pcs.FastPath, pos, cfg.OutputReg, cfg.OperandRegs[0])
	}
	// 0x01 is ADD r/m64, r64 — dst += src (Intel SDM vol. 2A).
	pos = encodeAluRegReg(pcs.FastPath, pos, 0x01, cfg.OutputReg, cfg.OperandRegs[1])
	return pos, 0, 0, 0
}
