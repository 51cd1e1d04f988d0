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

import "fmt"

// StencilSize is the compile-time-constant per-ordinal size descriptor §6
// says every stencil carries: "(fastPathLen, slowPathLen, dataSecLen,
// dataSecAlign)". SlowPathDataLen is the per-node SlowPathData byte count
// the emit routine will additionally stream out (§4.7/§3 "SlowPathData").
type StencilSize struct {
	FastPathLen     int
	SlowPathLen     int
	DataSecLen      int
	DataSecAlign    int
	SlowPathDataLen int
}

// RegConfig is the register configuration passed to an emit routine: the
// concrete physical registers chosen for every operand, the output and the
// branch decision, exactly as WorkForCodegen (§4.5) decided them.
type RegConfig struct {
	OperandRegs []int
	OutputReg   int
	BrReg       int
	VariantOrd  int32
}

// StencilPCs are the four write cursors an emit routine advances, per §6:
// "write raw bytes into pcs.fastPathAddr / pcs.slowPathAddr / pcs.dataSecAddr
// / pcs.slowPathDataAddr and advance them". Represented here as byte slices
// (fast/slow/data sections, and the SlowPathData stream) rather than raw
// pointers, since the core owns the buffers outright. Each slice runs from
// its write cursor to the end of the whole code buffer; C10 lays the
// sections out back to back with no trailing pad between them (see
// codeblock.go), so a write past a section's reserved length lands in the
// bytes of whatever follows it.
type StencilPCs struct {
	FastPath     []byte
	SlowPath     []byte
	DataSec      []byte
	SlowPathData []byte
}

// StencilEmitFunc writes one node's machine code for one codegen-func
// ordinal, given its chosen register configuration, its node-specific data
// pointer, and (for CodegenCustomOp* entries) a literal-data array opaque to
// the allocator (§4.7). Returns the number of bytes it actually wrote to
// each section/stream so C10 can assert against the precomputed offsets
// (property 2).
type StencilEmitFunc func(pcs *StencilPCs, cfg RegConfig, nodeData int64, literals []uint64) (fastN, slowN, dataN, slowPathDataN int)

// StencilLibrary is §6's "Stencil library" external collaborator: a
// compile-time array of sizes plus an array of emit functions, one per
// codegen-function ordinal. Deegen pre-generates this offline (§1, out of
// scope); this module models it as a Go interface with a demo
// implementation (demo_stencils.go / tests) standing in for Deegen's output.
type StencilLibrary interface {
	Size(ord int32) StencilSize
	Emit(ord int32, pcs *StencilPCs, cfg RegConfig, nodeData int64, literals []uint64) (fastN, slowN, dataN, slowPathDataN int)
}

// TypeCheckStencil is §6's "Type-check implementation library" entry: one
// pre-generated stencil per non-trivial use-kind, varying over {GPR or FPR
// operand} x {Group-1/Group-2} x {Group-1 passthrough count}.
type TypeCheckStencil struct {
	UseKind           UseKind
	Bank              RegBank
	OperandGroup1     bool
	Group1Passthrough int
	Ord               int32 // ordinal into the shared stencil library's codegen-function table
	Size              StencilSize
	Emit              StencilEmitFunc
}

var typeCheckStencils = map[UseKind]*TypeCheckStencil{}

// DeclareTypeCheckStencil registers one entry of the type-check
// implementation library (compile-time constant table, per the ambient
// stack's Declare-style registry convention).
func DeclareTypeCheckStencil(s *TypeCheckStencil) {
	typeCheckStencils[s.UseKind] = s
	noteRegistration("type-check-stencils", fmt.Sprintf("use-kind %d: bank=%s fast=%dB", s.UseKind, s.Bank, s.Size.FastPathLen))
}

func lookupTypeCheckStencil(u UseKind) *TypeCheckStencil {
	s, ok := typeCheckStencils[u]
	if !ok {
		panic("dfg: no type-check stencil registered for use-kind")
	}
	return s
}

// mapStencilLibrary is a StencilLibrary backed by a plain map, used by both
// the demo library (demo_stencils.go) and tests.
type mapStencilLibrary struct {
	sizes map[int32]StencilSize
	emits map[int32]StencilEmitFunc
}

// NewStencilLibrary builds a StencilLibrary from ordinal->(size,emit) pairs.
func NewStencilLibrary() *mapStencilLibrary {
	return &mapStencilLibrary{sizes: map[int32]StencilSize{}, emits: map[int32]StencilEmitFunc{}}
}

func (m *mapStencilLibrary) Register(ord int32, size StencilSize, emit StencilEmitFunc) {
	m.sizes[ord] = size
	m.emits[ord] = emit
}

func (m *mapStencilLibrary) Size(ord int32) StencilSize {
	s, ok := m.sizes[ord]
	if !ok {
		panic("dfg: no stencil registered for ordinal")
	}
	return s
}

func (m *mapStencilLibrary) Emit(ord int32, pcs *StencilPCs, cfg RegConfig, nodeData int64, literals []uint64) (int, int, int, int) {
	e, ok := m.emits[ord]
	if !ok {
		panic("dfg: no stencil emit function registered for ordinal")
	}
	return e(pcs, cfg, nodeData, literals)
}
