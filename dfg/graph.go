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

// NodeKind is the closed tagged-sum-type discriminant for Node (§3, §9
// "polymorphic node dispatch": a tagged sum type, not virtual dispatch).
type NodeKind int32

const (
	NodeConstant NodeKind = iota
	NodeUnboxedConstant
	NodeUndefValue
	NodeArgument
	NodeGetNumVariadicArgs
	NodeGetKthVariadicArg
	NodeGetFunctionObject
	NodeGetLocal
	NodeSetLocal
	NodeCreateCapturedVar
	NodeGetCapturedVar
	NodeSetCapturedVar
	NodeGetKthVariadicRes
	NodeGetNumVariadicRes
	NodeCreateVariadicRes
	NodePrependVariadicRes
	NodeCheckU64InBound
	NodeI64SubSaturateToZero
	NodeCreateFunctionObject
	NodeGetUpvalueImmutable
	NodeGetUpvalueMutable
	NodeSetUpvalue
	NodeReturn
	NodeShadowStore
	NodeShadowStoreUndefToRange
	NodePhantom
	NodeNop
	NodePhi
	// NodeGuestLanguage is not itself a concrete kind: nodes at or above this
	// ordinal are guest-language nodes and BCKind (below) selects their
	// concrete behaviour via the trait table.
	NodeGuestLanguage
)

// BCKind is the ordinal into the guest-language bytecode taxonomy (GLOSSARY).
// It only has meaning on nodes whose Kind >= NodeGuestLanguage.
type BCKind int32

// BCTrait describes, at compile time, everything about a guest-language
// bytecode kind that C3/C4/C8 need without switching on BCKind directly — the
// trait table is the Go-native analogue of Deegen's per-BCKind generated
// metadata (out of scope, §1).
type BCTrait struct {
	Name            string
	NumInputs       int
	HasDirectOutput bool
	NumExtraOutputs int
	HasBrDecision   bool
	HasRangeOperand bool
	DisableRegAlloc bool
	// SpecAssign is the per-BCKind generated function C3 dispatches to
	// (§4.3 "dispatch on BCKind to a generated function").
	SpecAssign func(g *Graph, n *Node)
	// Codegen is the per-BCKind generated function C8 dispatches to for
	// guest-language nodes. nil means the node processor's generic
	// fallback path handles this kind (load fixed inputs, pick an output
	// register, emit one stencil-backed log entry).
	Codegen func(p *NodeProcessor, n *Node)
	// CodegenOrdBase is the first ordinal in the stencil library's
	// codegen-function table reserved for this BCKind; the concrete
	// ordinal actually invoked is CodegenOrdBase + variant, where variant
	// is whatever WorkForCodegen derived for the node's chosen registers.
	CodegenOrdBase int32
}

var bcTraits = map[BCKind]*BCTrait{}

// DeclareBCTrait registers a guest-language bytecode kind's compile-time
// trait descriptor. Mirrors the teacher's Declare-style compile-time
// registry (scm/declare.go), standing in for Deegen's offline code
// generation of the same table (§1, out of scope).
func DeclareBCTrait(kind BCKind, trait *BCTrait) {
	bcTraits[kind] = trait
	noteRegistration("bytecode-traits", fmt.Sprintf("%s (kind %d): inputs=%d output=%v", trait.Name, kind, trait.NumInputs, trait.HasDirectOutput))
}

func lookupBCTrait(kind BCKind) *BCTrait {
	t, ok := bcTraits[kind]
	if !ok {
		panic("dfg: no BCTrait registered for BCKind")
	}
	return t
}

// Edge is a (source node, output ordinal) pair plus the fields C3 fills in.
type Edge struct {
	Source       *Node
	OutputOrd    int8
	Use          UseKind
	PredictNoNaN bool // "prediction-mask-is-double-not-NaN" flag, §3
	Prediction   TypeMask

	// Required is the type mask this use-site actually demands of the
	// value (§4.2's "checkMask"), set by a guest-language BCKind's
	// SpecAssign when the consuming operation needs something narrower
	// than what's already known. Left tEmpty (unset) by built-in nodes and
	// by callers that don't narrow further, in which case C3 treats the
	// requirement as tTop — "accept anything already proven" — so the edge
	// proves itself from Prediction alone with no runtime check.
	Required TypeMask
}

// Node is the polymorphic SSA node (§3). Built-in kinds use Kind directly;
// guest-language kinds set Kind=NodeGuestLanguage and BC to the concrete
// BCKind, with shape questions answered via bcTraits.
type Node struct {
	Kind NodeKind
	BC   BCKind

	Inputs      []Edge
	RangeInputs []Edge // present only when the node has a range operand

	HasOutput   bool
	NumExtraOut int
	HasBr       bool

	// DfgVariantOrd is the stencil family selected by C3 for guest-language
	// nodes that cover more than one combination of operand use-kinds.
	DfgVariantOrd int32

	// Data is node-specific inline data: constant ordinal for
	// Constant/UnboxedConstant, logical variable index for Get/SetLocal,
	// captured-var index, upvalue index, shadow-store slot, etc. Interpreted
	// per Kind by the node processor (C8).
	Data int64

	// BranchTargets holds this node's successor blocks when it terminates a
	// block: empty for Return, one entry for an unconditional terminator,
	// two entries (true-target, false-target) for a HasBr-decision branch
	// (§4.9). Set by graph construction, consumed by the block sequencer.
	BranchTargets []*BasicBlock

	// RegInfo is populated by the use-list builder (C4) for every node and
	// consumed by C5/C6/C8. nil until C4 has run on this node's block.
	RegInfo *NodeRegAllocInfo

	// value identifies this node's own SSA output for reg-alloc bookkeeping
	// (every node that HasOutput "is" exactly one SSA value, itself).
	valueID int
}

// BasicBlock is an ordered list of Nodes; the last node is the terminator.
type BasicBlock struct {
	Nodes []*Node

	// ordInCodegenOrder is filled by C9 (§3).
	ordInCodegenOrder int

	// isBackEdgeTarget is set by C9's DFS when this block is reached while
	// still on the DFS stack.
	isBackEdgeTarget bool

	// fastPathOffset/fastPathLen are filled in by the compile orchestrator
	// as it runs C8 block-by-block: the exact byte range, within the final
	// fast-path section, this block's own entries occupy. Exact rather than
	// estimated, since every C7 entry's reserved length is the length C10
	// actually emits (short encodings are padded out to the reservation).
	fastPathOffset int
	fastPathLen    int

	// logStart/logEnd index into the shared OpLog's entry slice: this
	// block's own entries are log.Entries()[logStart:logEnd].
	logStart int
	logEnd   int
}

func (b *BasicBlock) Terminator() *Node {
	if len(b.Nodes) == 0 {
		panic("dfg: basic block has no nodes")
	}
	return b.Nodes[len(b.Nodes)-1]
}

// Successors returns 0, 1 or 2 successor blocks depending on the terminator
// node kind: Return has none, an unconditional terminator has one, and a
// HasBr-decision branch has two, ordered [trueTarget, falseTarget].
func (b *BasicBlock) Successors() []*BasicBlock {
	return b.Terminator().BranchTargets
}

// LogicalVariableInfo is per-local metadata (§3): accumulates the union of
// every SetLocal's contributed speculation across the whole graph.
type LogicalVariableInfo struct {
	SpeculationMask TypeMask
	InterpreterSlot int32 // shadow-stack slot this local occupies for OSR
}

// ConstantInfo describes one entry of the graph-wide constant table.
type ConstantInfo struct {
	// BoxedValue is an opaque 8-byte-wide payload (a boxed TValue in the
	// real VM); the core only needs to know its size and bit pattern.
	BoxedValue uint64
}

// Graph is the single-pass pipeline's input (§3, §6 "Input").
type Graph struct {
	Blocks []*BasicBlock

	Constants       []ConstantInfo
	LogicalVars     []*LogicalVariableInfo
	NumSlots        int // interpreter shadow-stack slot count
	NumFixedArgs    int
	HasVariadicArgs bool

	// x_minNilFillReturnValues mirrors the original's named constant (S1/S2).
	MinNilFillReturnValues int

	nextValueID int
}

// EntryBlock returns the graph's entry block (index 0, per §3).
func (g *Graph) EntryBlock() *BasicBlock {
	if len(g.Blocks) == 0 {
		panic("dfg: graph has no basic blocks")
	}
	return g.Blocks[0]
}

// ForEachConstantLikeNode walks every constant-producing node in the graph:
// Constant, UnboxedConstant and UndefValue (§3 "Provides
// ForEachConstantLikeNode").
func (g *Graph) ForEachConstantLikeNode(f func(n *Node)) {
	for _, b := range g.Blocks {
		for _, n := range b.Nodes {
			switch n.Kind {
			case NodeConstant, NodeUnboxedConstant, NodeUndefValue:
				f(n)
			}
		}
	}
}

// AssignValueIDs assigns a dense SSA value identity to every node, whether
// or not it produces an output. Compile calls it once, before C3.
func (g *Graph) AssignValueIDs() {
	id := 0
	for _, b := range g.Blocks {
		for _, n := range b.Nodes {
			n.valueID = id
			id++
		}
	}
	g.nextValueID = id
}

// NewGraph constructs an empty graph with n pre-sized logical variable slots,
// ready for BasicBlocks/Constants/Nodes to be appended by a builder.
func NewGraph(numLocals int) *Graph {
	g := &Graph{
		LogicalVars:            make([]*LogicalVariableInfo, numLocals),
		MinNilFillReturnValues: 0,
	}
	for i := range g.LogicalVars {
		g.LogicalVars[i] = &LogicalVariableInfo{InterpreterSlot: int32(i)}
	}
	return g
}
