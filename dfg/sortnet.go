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

// SortAscend sorts regState values (the packed
// [nextUse(20)|scratch-flag(1)|regIdx(4)] words from §4.5) ascending
// in-place. The original hard-codes an optimal compare-exchange network per
// N from a third-party table (sorting_network.h); this module satisfies the
// same contract — property 6: stable-enough permutation, non-decreasing
// output, any 2<=N<=16 — with plain insertion sort, per SPEC_FULL's
// documented simplification (no portable Go equivalent of a constexpr
// compare-exchange network is worth reproducing for N<=16 packed uint32s).
func SortAscend(a []uint32) {
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i - 1
		for j >= 0 && a[j] > v {
			a[j+1] = a[j]
			j--
		}
		a[j+1] = v
	}
}

// SortDescend sorts descending in-place, same contract as SortAscend.
func SortDescend(a []uint32) {
	for i := 1; i < len(a); i++ {
		v := a[i]
		j := i - 1
		for j >= 0 && a[j] < v {
			a[j+1] = a[j]
			j--
		}
		a[j+1] = v
	}
}
