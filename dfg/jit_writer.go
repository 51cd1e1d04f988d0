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

// blockFixup records one forward or back reference to a basic block's
// start offset that must be patched once every block's final position in
// the fast-path section is known (C9's two-pass block sequencing: lay out
// blocks first, patch branch targets second).
type blockFixup struct {
	patchAt int // byte offset of the rel32 field within the fast-path buffer
	fromEnd int // byte offset of the instruction's end (PC-relative base)
	target  int // destination block's ordinal in codegen order
}

// blockLabels is the §4.9/C9 replacement for the old per-function
// label/fixup table: instead of labels placed ad hoc while emitting a
// single function body, every basic block IS a label (its offset is
// recorded once the sequencer fixes its position), and every terminator
// that jumps to a block records a fixup against that block's ordinal.
// This is the same two-phase "place all labels, then patch all forward
// references" discipline the original per-function JIT writer used,
// generalized from instruction-local labels to whole basic blocks.
type blockLabels struct {
	offsets []int // offsets[i] = byte offset of block i in the fast-path section, -1 until known
	fixups  []blockFixup
}

// newBlockLabels preallocates offset slots for numBlocks basic blocks.
func newBlockLabels(numBlocks int) *blockLabels {
	offs := make([]int, numBlocks)
	for i := range offs {
		offs[i] = -1
	}
	return &blockLabels{offsets: offs}
}

// SetOffset records block i's final position in the fast-path buffer.
func (l *blockLabels) SetOffset(block, offset int) {
	l.offsets[block] = offset
}

// AddFixup records a forward (or back) reference to a block from a
// not-yet-patched rel32 field.
func (l *blockLabels) AddFixup(patchAt, fromEnd, target int) {
	l.fixups = append(l.fixups, blockFixup{patchAt: patchAt, fromEnd: fromEnd, target: target})
}

// Resolve patches every recorded fixup against buf now that every block's
// offset is known. Must run after all blocks have been placed.
func (l *blockLabels) Resolve(buf []byte) {
	for _, f := range l.fixups {
		target := l.offsets[f.target]
		if target < 0 {
			panic("dfg: unresolved basic block offset during fixup patching")
		}
		PatchRel32(buf, f.patchAt, f.fromEnd, target)
	}
}
