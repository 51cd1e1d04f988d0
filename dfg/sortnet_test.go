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

// property 6: non-decreasing/non-increasing output, and a permutation of
// the input, for 2 <= N <= 16.
func isPermutation(orig, sorted []uint32) bool {
	if len(orig) != len(sorted) {
		return false
	}
	count := map[uint32]int{}
	for _, v := range orig {
		count[v]++
	}
	for _, v := range sorted {
		count[v]--
	}
	for _, c := range count {
		if c != 0 {
			return false
		}
	}
	return true
}

func TestSortAscendIsNonDecreasingPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 2; n <= 16; n++ {
		orig := make([]uint32, n)
		for i := range orig {
			orig[i] = uint32(rng.Intn(1 << 20))
		}
		a := append([]uint32(nil), orig...)
		SortAscend(a)
		if !isPermutation(orig, a) {
			t.Fatalf("n=%d: SortAscend result is not a permutation of input", n)
		}
		for i := 1; i < len(a); i++ {
			if a[i-1] > a[i] {
				t.Fatalf("n=%d: SortAscend result not non-decreasing at %d: %v", n, i, a)
			}
		}
	}
}

func TestSortDescendIsNonIncreasingPermutation(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for n := 2; n <= 16; n++ {
		orig := make([]uint32, n)
		for i := range orig {
			orig[i] = uint32(rng.Intn(1 << 20))
		}
		a := append([]uint32(nil), orig...)
		SortDescend(a)
		if !isPermutation(orig, a) {
			t.Fatalf("n=%d: SortDescend result is not a permutation of input", n)
		}
		for i := 1; i < len(a); i++ {
			if a[i-1] < a[i] {
				t.Fatalf("n=%d: SortDescend result not non-increasing at %d: %v", n, i, a)
			}
		}
	}
}

func TestSortAscendHandlesDuplicatesAndSingleton(t *testing.T) {
	a := []uint32{5}
	SortAscend(a)
	if a[0] != 5 {
		t.Fatalf("singleton mutated: %v", a)
	}

	b := []uint32{3, 3, 1, 2, 1}
	orig := append([]uint32(nil), b...)
	SortAscend(b)
	if !isPermutation(orig, b) {
		t.Fatalf("duplicates not preserved as a permutation: %v", b)
	}
	for i := 1; i < len(b); i++ {
		if b[i-1] > b[i] {
			t.Fatalf("not non-decreasing with duplicates: %v", b)
		}
	}
}
