/*
Copyright (C) 2023-2026  Carl-Philip Hänsch

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
	"fmt"
	"sort"
	"strings"
)

// componentCatalog mirrors the old Declare/Help registry pattern, but for
// the compile-time tables this package builds at init time instead of
// user-callable functions: bytecode traits (DeclareBCTrait), strength
// reduction rules (DeclareStrengthReductionRule) and type-check stencils
// (DeclareTypeCheckStencil) all register themselves here under a component
// name so operators can ask "what's wired up" without reading source.
type componentCatalog struct {
	entries map[string][]string
}

var catalog = &componentCatalog{entries: make(map[string][]string)}

// noteRegistration appends a one-line description under a component name.
// Called by the Declare* functions in graph.go / typecheck.go / stencil.go.
func noteRegistration(component, line string) {
	catalog.entries[component] = append(catalog.entries[component], line)
}

// Help prints the registered entries for one component, or an overview of
// all components when name is empty — same two-mode shape as the
// interpreter's own (help) builtin.
func Help(name string) {
	if name == "" {
		fmt.Println("Registered dfg components:")
		fmt.Println("")
		names := make([]string, 0, len(catalog.entries))
		for k := range catalog.entries {
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			fmt.Printf("  %s: %d entries\n", k, len(catalog.entries[k]))
		}
		fmt.Println("")
		fmt.Println("call Help(\"component\") for the full list of a component's entries")
		return
	}
	lines, ok := catalog.entries[name]
	if !ok {
		panic("dfg: no such component: " + name)
	}
	fmt.Println("Entries for: " + name)
	fmt.Println("===")
	fmt.Println(strings.Join(lines, "\n"))
}
