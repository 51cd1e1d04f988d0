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

import "github.com/google/uuid"

// CompileOptions carries the one real external collaborator the core needs
// from its host VM (§6 "Stencil library") plus the frame layout constant
// that varies per calling convention.
type CompileOptions struct {
	Stencils       StencilLibrary
	FirstSpillSlot int32
}

// Compile runs the whole single-pass pipeline (§2) over g: C3 speculation
// assignment, C9 block sequencing, then C4/C5/C6/C7/C8 per block in codegen
// order, finishing with C10 materialization into a ready-to-run code block.
//
// Every panic(*CompileError) raised anywhere in the pipeline (the five abort
// kinds in errors.go) is converted to a returned error here; any other
// panic is a malformed-Graph programming error and is left to propagate,
// mirroring the teacher's convention of panicking on interpreter invariant
// violations rather than threading an error return through every call.
func Compile(g *Graph, opts CompileOptions) (cb *DfgCodeBlock, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ce, ok := r.(*CompileError); ok {
				err = ce
				return
			}
			panic(r)
		}
	}()

	beginCompile()
	defer func() {
		var size int64
		if cb != nil {
			size = int64(cb.Size())
		}
		endCompile(size)
	}()
	buildID := uuid.New()

	g.AssignValueIDs()
	AssignSpeculation(g)
	order := SequenceBlocks(g)

	log := NewOpLog(opts.Stencils)
	vm := NewValueManager(opts.FirstSpillSlot, log)
	gpr := NewRegAllocator(BankGPR, numGPR, vm, log)
	fpr := NewRegAllocator(BankFPR, numFPR, vm, log)
	np := NewNodeProcessor(g, gpr, fpr, vm, log)

	baseline := map[int32]RecoverySource{}
	for _, b := range order {
		gpr.ResetForBlock()
		fpr.ResetForBlock()
		vm.ResetForBlock(baseline)

		b.logStart = len(log.Entries())
		if b.isBackEdgeTarget {
			// A non-branch OpBlockJump entry (both targets -1) is this
			// block's leading alignment pad, NodeData holding the exact
			// byte count (§4.9): exact, not a worst-case reservation,
			// since every preceding entry's reserved length equals what
			// C10 actually emits for it (see codeblock.go's replay).
			n := nopAlignTo16(int(log.FastPathLen))
			log.Append(LogEntry{Kind: OpBlockJump, TrueTarget: -1, FalseTarget: -1, CondReg: -1, CondSpillSlot: noSlot, NodeData: int64(n)})
		}
		b.fastPathOffset = int(log.FastPathLen)

		ul := BuildUseList(b)
		np.ProcessBlock(b, ul)
		EmitTerminator(log, gpr, order, b, ul.BrDecisionUse)

		b.logEnd = len(log.Entries())
		b.fastPathLen = int(log.FastPathLen) - b.fastPathOffset

		vm.AssertSpillAccounting(opts.FirstSpillSlot)
		baseline = vm.OSRSnapshot()
	}

	cb, merr := MaterializeCodeBlock(g, order, log, opts.Stencils, vm, buildID)
	if merr != nil {
		return nil, merr
	}
	return cb, nil
}
