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

import (
	"math/rand"
	"testing"
)

// referenceClosedSet mirrors BuildTypeMaskAutomaton's own preprocessing
// (closure under AND, then guarantee a tTop fallback item) so the brute
// force oracle below queries the exact same item set the automaton compiled.
func referenceClosedSet(items []TypeMaskItem) []TypeMaskItem {
	closed := closeUnderIntersection(items)
	for _, it := range closed {
		if it.Mask == tTop {
			return closed
		}
	}
	return append(closed, TypeMaskItem{Mask: tTop, Answer: -1})
}

// bruteForceAnswer computes the "minimum-aᵢ answer" property 7 names: the
// infimum (bitwise AND) of every item whose mask is a superset of x is, by
// closure under intersection, itself present in the closed set — it is the
// tightest valid overapproximation of x, and its answer is what the
// automaton must return.
func bruteForceAnswer(closed []TypeMaskItem, x TypeMask) int32 {
	infimum := tTop
	for _, it := range closed {
		if it.Mask&x == x {
			infimum &= it.Mask
		}
	}
	for _, it := range closed {
		if it.Mask == infimum {
			return it.Answer
		}
	}
	panic("bruteForceAnswer: infimum not present in closed set")
}

func TestTypeMaskAutomatonMatchesBruteForceOracle(t *testing.T) {
	items := []TypeMaskItem{
		{Mask: tBool, Answer: 0},
		{Mask: tInt32, Answer: 1},
		{Mask: tBool | tInt32, Answer: 2},
		{Mask: tDouble, Answer: 3},
		{Mask: tString, Answer: 4},
	}
	a := BuildTypeMaskAutomaton(items)
	closed := referenceClosedSet(items)

	rng := rand.New(rand.NewSource(7))
	universe := tBool | tInt32 | tDouble | tString | tNil
	for i := 0; i < 2000; i++ {
		x := TypeMask(rng.Uint64()) & universe
		want := bruteForceAnswer(closed, x)
		got := a.Query(x)
		if got != want {
			t.Fatalf("Query(%#x) = %d, want %d (brute force)", uint64(x), got, want)
		}
	}
}

func TestTypeMaskAutomatonSingleBitEntryDispatch(t *testing.T) {
	items := []TypeMaskItem{
		{Mask: tBool, Answer: 0},
		{Mask: tInt32, Answer: 1},
		{Mask: tDouble, Answer: 2},
	}
	a := BuildTypeMaskAutomaton(items)
	closed := referenceClosedSet(items)
	for _, bit := range []TypeMask{tBool, tInt32, tDouble, tString} {
		want := bruteForceAnswer(closed, bit)
		if got := a.Query(bit); got != want {
			t.Fatalf("Query(%#x) = %d, want %d", uint64(bit), got, want)
		}
	}
}

// scenario S6: {10010} with rule table [{00010->A,10000->B,10010->C,11111->fail}],
// which closing under AND extends by one item, the empty mask
// (00010 & 10000), plus the tTop fallback item.
func TestAutomatonLeafOptimizedQueryScenarioS6(t *testing.T) {
	const (
		ansA int32 = 1
		ansB int32 = 2
		ansC int32 = 3
		ansFail int32 = -1
	)
	items := []TypeMaskItem{
		{Mask: 0b00010, Answer: ansA},
		{Mask: 0b10000, Answer: ansB},
		{Mask: 0b10010, Answer: ansC},
		{Mask: 0b11111, Answer: ansFail},
	}
	a := BuildTypeMaskAutomaton(items)

	cases := []struct {
		x    TypeMask
		want int32
	}{
		{0b10010, ansC},
		{0b10000, ansB},
		{0b11110, ansFail},
	}
	for _, c := range cases {
		if got := a.Query(c.x); got != c.want {
			t.Fatalf("Query(%#b) = %d, want %d", uint64(c.x), got, c.want)
		}
	}
}

func TestCloseUnderIntersectionKeepsFirstSeenAnswerOnCollision(t *testing.T) {
	items := []TypeMaskItem{
		{Mask: tBool, Answer: 100},
		{Mask: tInt32, Answer: 200},
	}
	// tBool & tInt32 == tEmpty is already absent from items, so closure adds
	// it once, with the first item's answer (100), per the documented
	// "lower original index wins" tie-break.
	closed := closeUnderIntersection(items)
	found := false
	for _, it := range closed {
		if it.Mask == tEmpty {
			found = true
			if it.Answer != 100 {
				t.Fatalf("closure of empty mask got answer %d, want 100 (first-seen)", it.Answer)
			}
		}
	}
	if !found {
		t.Fatalf("closure did not add the empty-mask intersection item")
	}
}
