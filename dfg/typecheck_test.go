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

// withClearedStrengthReductionTable swaps the package-level rule table for
// the duration of fn, so these tests don't depend on (or disturb) whatever
// demo_stencils.go's init() registered.
func withClearedStrengthReductionTable(t *testing.T, rules []StrengthReductionRule, fn func()) {
	t.Helper()
	saved := strengthReductionTable
	strengthReductionTable = nil
	for _, r := range rules {
		strengthReductionTable = append(strengthReductionTable, r)
	}
	defer func() { strengthReductionTable = saved }()
	fn()
}

// property 8: for identical predicates the selector picks the lowest-cost
// rule; ties break toward "no flip".
func TestSelectTypeCheckPicksLowestCostRule(t *testing.T) {
	rules := []StrengthReductionRule{
		{CheckMask: tInt32, PrecondMask: tTop, ImplName: "IsInt32Expensive", Cost: 9},
		{CheckMask: tInt32, PrecondMask: tTop, ImplName: "IsInt32Cheap", Cost: 1},
	}
	withClearedStrengthReductionTable(t, rules, func() {
		d := SelectTypeCheck(tInt32, tTop)
		if d.Kind != CallFunction {
			t.Fatalf("Kind = %v, want CallFunction", d.Kind)
		}
		if d.Rule != 1 {
			t.Fatalf("Rule = %d, want 1 (the cost-1 rule, not the cost-9 one)", d.Rule)
		}
	})
}

func TestSelectTypeCheckTiesBreakTowardNoFlip(t *testing.T) {
	// A direct rule and a flipped rule of equal declared cost: costOfRule
	// (2c+2) always beats costOfFlipped (2c+3) for the same c, so the
	// direct (non-flip) rule must win even though both are "available".
	rules := []StrengthReductionRule{
		{CheckMask: tInt32, PrecondMask: tTop, ImplName: "IsInt32", Cost: 1},
		{CheckMask: ^tInt32, PrecondMask: tTop, ImplName: "NotInt32", Cost: 1},
	}
	withClearedStrengthReductionTable(t, rules, func() {
		d := SelectTypeCheck(tInt32, tTop)
		if d.Kind != CallFunction {
			t.Fatalf("Kind = %v, want CallFunction (direct rule, not a flip)", d.Kind)
		}
		if d.Rule != 0 {
			t.Fatalf("Rule = %d, want 0 (the direct rule)", d.Rule)
		}
	})
}

func TestSelectTypeCheckTrivialOutcomes(t *testing.T) {
	rules := []StrengthReductionRule{
		{CheckMask: tInt32, PrecondMask: tTop, ImplName: "IsInt32", Cost: 1},
	}
	withClearedStrengthReductionTable(t, rules, func() {
		if d := SelectTypeCheck(tInt32, tInt32); d.Kind != TriviallyTrue {
			t.Fatalf("checkMask==preconditionMask: Kind = %v, want TriviallyTrue", d.Kind)
		}
		if d := SelectTypeCheck(tDouble, tInt32); d.Kind != TriviallyFalse {
			t.Fatalf("disjoint masks: Kind = %v, want TriviallyFalse", d.Kind)
		}
	})
}

func TestSelectTypeCheckUsesFlipWhenCheaper(t *testing.T) {
	// Only a flipped rule covers the target: must pick CallFunctionAndFlip.
	rules := []StrengthReductionRule{
		{CheckMask: ^tInt32, PrecondMask: tTop, ImplName: "NotInt32", Cost: 1},
	}
	withClearedStrengthReductionTable(t, rules, func() {
		d := SelectTypeCheck(tInt32, tTop)
		if d.Kind != CallFunctionAndFlip {
			t.Fatalf("Kind = %v, want CallFunctionAndFlip", d.Kind)
		}
		if d.Rule != 0 {
			t.Fatalf("Rule = %d, want 0", d.Rule)
		}
	})
}

// scenario S5: a use that must be a boolean (check mask {tBool}) on a value
// about which nothing is known yet (precondition {tTop}): the selector
// returns CallFunction with the cheapest boolean-check rule, and the edge's
// use-kind encodes FirstUnprovenUseKind + 2*ruleIdx.
func TestSpeculationAssignmentForBooleanTypedInputScenarioS5(t *testing.T) {
	rules := []StrengthReductionRule{
		{CheckMask: tBool, PrecondMask: tTop, ImplName: "IsBoolean", Cost: 1},
	}
	withClearedStrengthReductionTable(t, rules, func() {
		d := SelectTypeCheck(tBool, tTop)
		if d.Kind != CallFunction {
			t.Fatalf("Kind = %v, want CallFunction", d.Kind)
		}
		if d.Rule != 0 {
			t.Fatalf("Rule = %d, want 0", d.Rule)
		}
		if got, want := costOfRule(RuleCost(d.Rule)), 2*1+2; got != want {
			t.Fatalf("cost = %d, want %d (table's declared cost for this rule)", got, want)
		}

		// Drive the same outcome through assignTypedEdge: Edge.Required is
		// the check mask and Edge.Prediction the precondition — this is the
		// direct regression test for Edge.Required/Edge.Prediction both
		// feeding SelectTypeCheck.
		e := &Edge{Prediction: tTop, Required: tBool}
		assignTypedEdge(e)
		want := FirstUnprovenUseKind + UseKind(2*d.Rule)
		if e.Use != want {
			t.Fatalf("Edge.Use = %d, want %d (FirstUnprovenUseKind + 2*ruleIdx)", e.Use, want)
		}
		rule, flip := e.Use.RuleIndex()
		if rule != 0 || flip {
			t.Fatalf("RuleIndex() = (%d, %v), want (0, false)", rule, flip)
		}
	})
}

func TestAssignTypedEdgeUnreachableOnEmptyPrediction(t *testing.T) {
	e := &Edge{Prediction: tEmpty}
	assignTypedEdge(e)
	if e.Use != UseUnreachable {
		t.Fatalf("Use = %d, want UseUnreachable", e.Use)
	}
}

// Edge.Required narrows the check independently of Prediction: a
// guest-language SpecAssign that demands tInt32 from an edge whose own
// Prediction is wider (tTop) must drive the selector with checkMask=tInt32,
// not checkMask=tTop.
func TestAssignTypedEdgeHonorsRequiredOverPrediction(t *testing.T) {
	rules := []StrengthReductionRule{
		{CheckMask: tInt32, PrecondMask: tTop, ImplName: "IsInt32", Cost: 1},
	}
	withClearedStrengthReductionTable(t, rules, func() {
		e := &Edge{Prediction: tTop, Required: tInt32}
		assignTypedEdge(e)
		if e.Use.IsProven() {
			t.Fatalf("Use = %d should require a runtime check (Required narrower than Prediction)", e.Use)
		}
		rule, flip := e.Use.RuleIndex()
		if rule != 0 || flip {
			t.Fatalf("RuleIndex() = (%d, %v), want (0, false)", rule, flip)
		}
	})
}
