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

// StrengthReductionRule is one Deegen-emitted rule descriptor (§4.2):
// "(checkMask, precondMask, implFn, estimatedCost)". ImplFn is opaque to the
// selector — it is only ever referenced by RuleIndex/use-kind, resolved to an
// actual type-check stencil later by the node processor (C8).
type StrengthReductionRule struct {
	CheckMask TypeMask
	PrecondMask TypeMask
	ImplName  string
	Cost      int
}

// strengthReductionTable is the compile-time constant rule table (§4.2),
// populated via DeclareStrengthReductionRule at package init time — the
// Go-native analogue of what Deegen emits offline (§1, out of scope).
var strengthReductionTable []StrengthReductionRule

// DeclareStrengthReductionRule registers one rule in the compile-time table.
func DeclareStrengthReductionRule(r StrengthReductionRule) {
	strengthReductionTable = append(strengthReductionTable, r)
	noteRegistration("strength-reduction-rules", fmt.Sprintf("%s: check=%#x precond=%#x cost=%d", r.ImplName, uint64(r.CheckMask), uint64(r.PrecondMask), r.Cost))
}

// Decision is C2's output: one of the four possibilities §4.2 names.
type Decision struct {
	Kind DecisionKind
	Rule int // valid when Kind is CallFunction/CallFunctionAndFlip
}

type DecisionKind int

const (
	TriviallyTrue DecisionKind = iota
	TriviallyFalse
	CallFunction
	CallFunctionAndFlip
)

// costOf mirrors §4.2's cost layout exactly: trivial = 1, rule = 2*cost+2,
// flipped-rule = 2*cost+3 (so a same-cost rule always beats its flip).
func costOfRule(cost int) int     { return 2*cost + 2 }
func costOfFlipped(cost int) int  { return 2*cost + 3 }

// SelectTypeCheck implements §4.2: cap the check by the precondition, then
// pick TriviallyFalse/TriviallyTrue/the cheapest rule or flipped rule.
func SelectTypeCheck(checkMask, preconditionMask TypeMask) Decision {
	target := checkMask & preconditionMask
	if target == tEmpty {
		return Decision{Kind: TriviallyFalse}
	}
	if target == preconditionMask {
		return Decision{Kind: TriviallyTrue}
	}

	bestRule, bestRuleCost := -1, -1
	bestFlip, bestFlipCost := -1, -1
	for i, r := range strengthReductionTable {
		if r.PrecondMask&preconditionMask != preconditionMask {
			continue // rule.precondition must be a superset of preconditionMask
		}
		if r.CheckMask&preconditionMask == target&preconditionMask {
			c := costOfRule(r.Cost)
			if bestRuleCost == -1 || c < bestRuleCost {
				bestRule, bestRuleCost = i, c
			}
		}
		flipped := (^r.CheckMask) & preconditionMask
		if flipped == target&preconditionMask {
			c := costOfFlipped(r.Cost)
			if bestFlipCost == -1 || c < bestFlipCost {
				bestFlip, bestFlipCost = i, c
			}
		}
	}

	switch {
	case bestRule == -1 && bestFlip == -1:
		abortf(NoSelectionFound, "no strength-reduction rule covers check=%#x precond=%#x", checkMask, preconditionMask)
		panic("unreachable")
	case bestRule == -1:
		return Decision{Kind: CallFunctionAndFlip, Rule: bestFlip}
	case bestFlip == -1 || bestRuleCost <= bestFlipCost:
		return Decision{Kind: CallFunction, Rule: bestRule}
	default:
		return Decision{Kind: CallFunctionAndFlip, Rule: bestFlip}
	}
}

// RuleCost returns the raw, undoubled declared cost of rule i.
func RuleCost(i int) int {
	return strengthReductionTable[i].Cost
}
