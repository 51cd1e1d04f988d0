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

// typeMaskAutomataByTarget caches one C1 automaton per distinct check mask
// queried by the selector, built lazily — generated per target check mask to
// accelerate run-time selection (§4.2).
var typeMaskAutomataByTarget = map[TypeMask]*TypeMaskAutomaton{}

func automatonFor(checkMask TypeMask) *TypeMaskAutomaton {
	if a, ok := typeMaskAutomataByTarget[checkMask]; ok {
		return a
	}
	items := make([]TypeMaskItem, 0, len(strengthReductionTable)+2)
	for i, r := range strengthReductionTable {
		items = append(items, TypeMaskItem{Mask: r.PrecondMask, Answer: int32(i)})
	}
	a := BuildTypeMaskAutomaton(items)
	typeMaskAutomataByTarget[checkMask] = a
	return a
}

// pendingSetLocal records a SetLocal whose edge use-kind assignment is
// deferred to the second micro-pass, per the original's two-pass scheme
// (SPEC_FULL "SUPPLEMENTED FEATURES").
type pendingSetLocal struct {
	node    *Node
	varIdx  int
}

// AssignSpeculation runs C3 over the whole graph: for every node, pick a
// use-kind per input edge; for SetLocal, defer to a second pass so every
// local's speculation mask is fully unioned before any SetLocal's own edge
// is finalized.
func AssignSpeculation(g *Graph) {
	var pending []pendingSetLocal

	for _, b := range g.Blocks {
		for _, n := range b.Nodes {
			if n.Kind == NodeSetLocal {
				assignSetLocalMask(g, n)
				pending = append(pending, pendingSetLocal{node: n, varIdx: int(n.Data)})
				continue
			}
			assignNodeSpeculation(g, n)
		}
	}

	// second micro-pass: now that every local's mask is final, assign the
	// deferred SetLocal edges' own use-kinds (§4.3 last sentence).
	for _, p := range pending {
		finalizeSetLocalEdge(g, p)
	}
}

// assignNodeSpeculation dispatches built-in hard-coded rules or the
// per-BCKind generated function for guest-language nodes (§4.3).
func assignNodeSpeculation(g *Graph, n *Node) {
	switch n.Kind {
	case NodeSetUpvalue:
		// "SetUpvalue's first operand is KnownUnboxedInt64" (§4.3).
		if len(n.Inputs) > 0 {
			n.Inputs[0].Use = UseKnownUnboxedInt64
		}
		for i := 1; i < len(n.Inputs); i++ {
			assignUntypedEdge(&n.Inputs[i])
		}
	case NodeCreateVariadicRes:
		// "CreateVariadicRes's count operand is KnownUnboxedInt64" (§4.3).
		if len(n.Inputs) > 0 {
			n.Inputs[0].Use = UseKnownUnboxedInt64
		}
		for i := 1; i < len(n.Inputs); i++ {
			assignUntypedEdge(&n.Inputs[i])
		}
	case NodeGetCapturedVar, NodeSetCapturedVar, NodeCreateCapturedVar:
		for i := range n.Inputs {
			n.Inputs[i].Use = UseKnownCapturedVar
		}
	case NodeCheckU64InBound, NodeI64SubSaturateToZero:
		for i := range n.Inputs {
			n.Inputs[i].Use = UseKnownUnboxedInt64
		}
	case NodeGuestLanguage:
		t := lookupBCTrait(n.BC)
		if t.SpecAssign != nil {
			t.SpecAssign(g, n)
		} else {
			for i := range n.Inputs {
				assignUntypedEdge(&n.Inputs[i])
			}
		}
	default:
		// Constant/UnboxedConstant/UndefValue/Argument/GetLocal/Return/
		// Phantom/ShadowStore/Nop/Phi/etc: no typed inputs to speculate on
		// beyond whatever SelectTypeCheck-driven edges the caller already
		// set; anything left default-initialized is Untyped.
		for i := range n.Inputs {
			if n.Inputs[i].Use == UseUntyped && n.Inputs[i].Prediction != tTop {
				assignTypedEdge(&n.Inputs[i])
			}
		}
	}
	for i := range n.RangeInputs {
		if n.RangeInputs[i].Use == UseUntyped && n.RangeInputs[i].Prediction != tTop {
			assignTypedEdge(&n.RangeInputs[i])
		}
	}
}

func assignUntypedEdge(e *Edge) {
	e.Use = UseUntyped
}

// assignTypedEdge picks a use-kind for one typed input edge by consulting
// C2's selector with the edge's propagated prediction as the precondition
// and e.Required as the check mask the consuming operation actually demands
// (§4.2). e.Required defaults to tTop (set by nothing more specific than
// "accept anything already proven") when the caller never narrowed it, which
// makes the edge prove itself from Prediction alone with no runtime check —
// guest-language SpecAssign functions set Required explicitly to force a real
// check against a narrower type than the edge's own prediction.
func assignTypedEdge(e *Edge) {
	if e.Prediction == tEmpty {
		e.Use = UseUnreachable
		return
	}
	checkMask := e.Required
	if checkMask == tEmpty {
		checkMask = tTop
	}
	d := SelectTypeCheck(checkMask, e.Prediction)
	switch d.Kind {
	case TriviallyTrue:
		e.Use = FirstProvenUseKind + UseKind(automatonFor(e.Prediction).Query(e.Prediction))
	case TriviallyFalse:
		e.Use = UseAlwaysOsrExit
	case CallFunction:
		e.Use = FirstUnprovenUseKind + UseKind(2*d.Rule)
	case CallFunctionAndFlip:
		e.Use = FirstUnprovenUseKind + UseKind(2*d.Rule+1)
	}
}

// assignSetLocalMask implements the first half of §4.3's SetLocal handling:
// grow the target logical variable's speculation mask, without yet deciding
// the input edge's own use-kind.
func assignSetLocalMask(g *Graph, n *Node) {
	v := g.LogicalVars[n.Data]
	in := &n.Inputs[0]
	if in.Use == UseKnownUnboxedInt64 || (len(n.Inputs) > 0 && isStaticallyNonBoxed(in)) {
		v.SpeculationMask |= tOpaque
		return
	}
	mask := minimalCoveringSpeculation(in.Prediction)
	if allowsGarbage(in.Prediction) {
		mask |= tNil
	}
	v.SpeculationMask |= mask
}

// finalizeSetLocalEdge is the second micro-pass: assign the SetLocal's own
// input edge the cheapest use-kind consistent with the now-final mask.
func finalizeSetLocalEdge(g *Graph, p pendingSetLocal) {
	v := g.LogicalVars[p.varIdx]
	in := &p.node.Inputs[0]
	if v.SpeculationMask == tOpaque {
		in.Use = UseKnownUnboxedInt64
		return
	}
	assignTypedEdge(in)
}

func isStaticallyNonBoxed(e *Edge) bool {
	return e.Use == UseKnownUnboxedInt64
}

// minimalCoveringSpeculation returns the mask a SetLocal's input, predicted
// as `mask`, contributes to its logical variable's speculation mask. It
// returns `mask` itself (tEmpty for tEmpty): the prediction is not rounded
// up to a coarser speculation mask. GetLocal nodes do not read the
// resulting logical-variable mask (see DESIGN.md, Open Question 1).
func minimalCoveringSpeculation(mask TypeMask) TypeMask {
	if mask == tEmpty {
		return tEmpty
	}
	return mask
}

func allowsGarbage(mask TypeMask) bool {
	return mask&tNil != 0
}
