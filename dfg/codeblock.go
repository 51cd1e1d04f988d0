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

// DfgCodeBlock is C10's product (§6 "Output"): one JIT-compiled function,
// sections laid out consecutively in a single executable page [fast path |
// slow path | data section | SlowPathData stream].
type DfgCodeBlock struct {
	Page *JITPage // nil when built over a caller-supplied buffer (tests)
	Code []byte   // the first Size() bytes of Page.Bytes() when Page != nil (the page itself is rounded up to whole OS pages)

	SlowPathOffset     int
	DataSecOffset      int
	SlowPathDataOffset int

	FrameSlots int32
	OSRMap     map[int32]RecoverySource
	BuildID    uuid.UUID
}

func (cb *DfgCodeBlock) Size() int { return len(cb.Code) }

// align rounds n up to the next multiple of a (a must be a power of two).
func align(n int64, a int64) int64 {
	if a <= 1 {
		return n
	}
	return (n + a - 1) &^ (a - 1)
}

// MaterializeCodeBlock replays C7's symbolic log into real machine code
// (§4.10): it sizes every section from the log's running totals, allocates
// exactly that much executable memory once, replays every entry in codegen
// order, patches every cross-block jump, and finalizes the page read+execute.
//
// Byte-exactness discipline: the log's running totals are RESERVATIONS, not
// measurements — regSpillLen/regLoadLen/movImmLen return a fixed worst-case
// length for an architecture-specific encoding that can legitimately be
// shorter (e.g. a spill slot displacement that happens to fit in one byte).
// Replay always pads a shorter real encoding out to its reservation with
// NOPs, so every offset computed during the symbolic C7 pass — in
// particular every BasicBlock.fastPathOffset the compile loop already
// recorded — remains exactly correct; no second sizing pass is needed.
func MaterializeCodeBlock(g *Graph, order []*BasicBlock, log *OpLog, lib StencilLibrary, vm *ValueManager, buildID uuid.UUID) (*DfgCodeBlock, error) {
	fastLen := log.FastPathLen
	slowLen := log.SlowPathLen
	dataOff := align(fastLen+slowLen, log.DataSecAlign)
	dataLen := log.DataSecLen
	slowDataOff := dataOff + dataLen
	slowDataLen := totalSlowPathDataLen(log)
	total := int(slowDataOff + slowDataLen)

	page, err := AllocJITPage(total)
	if err != nil {
		return nil, newCompileError(JITMemoryExhausted, "%v", err)
	}
	buf := page.Bytes()

	labels := newBlockLabels(len(order))
	fastPos := 0
	slowPos := int(fastLen)
	dataPos := int(dataOff)
	slowDataPos := int(slowDataOff)

	for _, b := range order {
		labels.SetOffset(b.ordInCodegenOrder, b.fastPathOffset)
		for _, e := range log.Entries()[b.logStart:b.logEnd] {
			replayEntry(buf, &e, lib, g, &fastPos, &slowPos, &dataPos, &slowDataPos, labels)
		}
		if fastPos != b.fastPathOffset+b.fastPathLen {
			panic("dfg: block fast-path replay length disagrees with C7's precomputed size")
		}
	}
	labels.Resolve(buf)

	if err := page.Finalize(); err != nil {
		return nil, newCompileError(JITMemoryExhausted, "%v", err)
	}

	return &DfgCodeBlock{
		Page:               page,
		Code:               buf[:total],
		SlowPathOffset:     int(fastLen),
		DataSecOffset:      int(dataOff),
		SlowPathDataOffset: int(slowDataOff),
		FrameSlots:         vm.MaxSlots(),
		OSRMap:             vm.OSRSnapshot(),
		BuildID:            buildID,
	}, nil
}

func totalSlowPathDataLen(log *OpLog) int64 {
	var n int64
	for _, e := range log.Entries() {
		n += int64(e.SlowPathDataLen)
	}
	return n
}

// padTo emits NOPs so pos advances to exactly target, regardless of how
// many bytes the real encoding just before it actually wrote.
func padTo(buf []byte, pos, target int) int {
	if target > pos {
		return EncodePadding(buf, pos, target-pos)
	}
	return pos
}

func replayEntry(buf []byte, e *LogEntry, lib StencilLibrary, g *Graph, fastPos, slowPos, dataPos, slowDataPos *int, labels *blockLabels) {
	switch e.Kind {
	case OpRegMove:
		start := *fastPos
		if e.CrossBank {
			var end int
			if e.Bank == BankFPR {
				end = encodeMovqGprXmm(buf, start, e.Reg2, e.Reg, true)
			} else {
				end = encodeMovqGprXmm(buf, start, e.Reg, e.Reg2, false)
			}
			*fastPos = padTo(buf, end, start+crossBankMoveLen)
			return
		}
		reserved := regMoveLen(e.Bank, e.Reg, e.Reg2)
		if reserved == 0 {
			return
		}
		var end int
		if e.Bank == BankGPR {
			end = EncodeMovRegReg(buf, start, e.Reg2, e.Reg)
		} else {
			end = encodeMovqXmmXmm(buf, start, e.Reg2, e.Reg)
		}
		*fastPos = padTo(buf, end, start+reserved)
	case OpRegSpill:
		start := *fastPos
		var end int
		if e.Bank == BankFPR {
			end = EncodeMovqMemXmm(buf, start, RegRBP, spillDisp(e.Slot), e.Reg)
		} else {
			end = EncodeMovMemReg(buf, start, RegRBP, spillDisp(e.Slot), e.Reg)
		}
		*fastPos = padTo(buf, end, start+regSpillLen(e.Bank, e.Reg))
	case OpRegLoad:
		start := *fastPos
		var end int
		if e.Bank == BankFPR {
			end = EncodeMovqXmmMem(buf, start, e.Reg, RegRBP, spillDisp(e.Slot))
		} else {
			end = EncodeMovRegMem(buf, start, e.Reg, RegRBP, spillDisp(e.Slot))
		}
		*fastPos = padTo(buf, end, start+regLoadLen(e.Bank, e.Reg))
	case OpMaterializeConst:
		start := *fastPos
		imm := g.Constants[e.ConstID].BoxedValue
		var end int
		if e.Bank == BankGPR {
			end = EncodeMovRegImm64(buf, start, e.Reg, imm)
		} else {
			end = EncodeMovRegImm64(buf, start, scratchGPRForFPRLoad, imm)
			end = encodeMovqGprXmm(buf, end, e.Reg, scratchGPRForFPRLoad, true)
		}
		*fastPos = padTo(buf, end, start+movImmLen(e.Bank))
	case OpCodegenRegAllocEnabled, OpCustomRegAllocEnabled:
		replayStencil(buf, e, lib, fastPos, slowPos, dataPos, slowDataPos)
	case OpCodegenRegAllocDisabled, OpCustomRegAllocDisabled:
		replayStencil(buf, e, lib, fastPos, slowPos, dataPos, slowDataPos)
	case OpBlockJump:
		replayBlockJump(buf, e, fastPos, labels)
	}
}

// scratchGPRForFPRLoad is the fixed GPR a boxed double constant is
// materialized through before the SSE move into its XMM destination (§4.7
// movImmLen's FPR case). R11 is always free for this: every variant of
// WorkForCodegen's codegen-func ordinal enumeration (§4.5) keeps at least
// one Group-2 register out of the live set at any point fast-path code runs.
const scratchGPRForFPRLoad = RegR11

// spillDisp converts a value-manager spill slot index into its RBP-relative
// byte displacement, 8 bytes per slot, growing downward from the frame base
// the way the teacher's native stack frames are laid out.
func spillDisp(slot int32) int32 { return -8 * (slot + 1) }

func replayStencil(buf []byte, e *LogEntry, lib StencilLibrary, fastPos, slowPos, dataPos, slowDataPos *int) {
	// Custom-op entries (CreateFunctionObject/Return/…) repurpose
	// OperandRegs as spill-slot numbers rather than physical registers —
	// each Emit function knows which convention its own ordinal uses, so
	// C10 just forwards the raw ints unchanged (§6, demo library concern).
	cfg := RegConfig{VariantOrd: e.VariantOrd}
	if len(e.OperandSlots) > 0 {
		cfg.OperandRegs = make([]int, len(e.OperandSlots))
		for i, s := range e.OperandSlots {
			cfg.OperandRegs[i] = int(s)
		}
	}
	cfg.OutputReg = int(e.OutputSlot)
	cfg.BrReg = int(e.BrSlot)

	sz := lib.Size(e.CodegenFuncOrd)
	pcs := &StencilPCs{
		FastPath:     buf[*fastPos:],
		SlowPath:     buf[*slowPos:],
		DataSec:      buf[*dataPos:],
		SlowPathData: buf[*slowDataPos:],
	}
	fastN, slowN, dataN, slowPathDataN := lib.Emit(e.CodegenFuncOrd, pcs, cfg, e.NodeData, nil)
	*fastPos = padTo(buf, *fastPos+fastN, *fastPos+sz.FastPathLen)
	*slowPos = padTo(buf, *slowPos+slowN, *slowPos+sz.SlowPathLen)
	*dataPos += dataN
	if dataN < sz.DataSecLen {
		*dataPos += sz.DataSecLen - dataN
	}
	*slowDataPos += slowPathDataN
}

// replayBlockJump turns one C9 terminator record into real bytes: either a
// fixed-length alignment pad, or the test/compare + Jcc/Jmp sequence that
// reaches the block's one or two successors, recording a blockLabels fixup
// for every target that doesn't fall through.
func replayBlockJump(buf []byte, e *LogEntry, fastPos *int, labels *blockLabels) {
	if e.TrueTarget < 0 && e.FalseTarget < 0 {
		*fastPos = EncodePadding(buf, *fastPos, int(e.NodeData))
		return
	}
	if e.FalseTarget < 0 {
		if e.TrueFallsThru {
			return
		}
		pos, dispAt := EncodeJmp(buf, *fastPos)
		labels.AddFixup(dispAt, pos, int(e.TrueTarget))
		*fastPos = pos
		return
	}

	start := *fastPos
	pos := start
	if e.CondReg >= 0 {
		pos = EncodeTestRegReg(buf, pos, int(e.CondReg))
	} else {
		pos = EncodeCmpMemImm8(buf, pos, RegRBP, spillDisp(e.CondSpillSlot), 0)
	}
	var dispAt int
	if e.TrueFallsThru {
		// Inverted test: jump to the false target on zero, fall through
		// into the true target otherwise, so no Jmp is needed.
		pos, dispAt = EncodeJcc(buf, pos, CcE)
		labels.AddFixup(dispAt, pos, int(e.FalseTarget))
	} else {
		pos, dispAt = EncodeJcc(buf, pos, CcNE)
		labels.AddFixup(dispAt, pos, int(e.TrueTarget))
		if !e.FalseFallsThru {
			var jmpDispAt int
			pos, jmpDispAt = EncodeJmp(buf, pos)
			labels.AddFixup(jmpDispAt, pos, int(e.FalseTarget))
		}
	}
	*fastPos = padTo(buf, pos, start+blockJumpLen(e))
}
