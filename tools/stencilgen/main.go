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

// stencilgen loads the dfg package, finds every function whose signature
// matches StencilEmitFunc, and reports its SSA shape: basic-block count,
// instruction count, and whether it contains a call (a real stencil's fast
// path should be branch-light and call-free — a Deegen-style audit, not a
// code generator for the stencils themselves, which this module's core
// treats as an external collaborator it only consumes (§6 "Stencil
// library"). Mirrors the teacher's tools/jitgen, which loads a package via
// golang.org/x/tools/go/packages, builds SSA via golang.org/x/tools/go/ssa,
// and walks the resulting functions rather than the raw AST.
//
// Usage:
//
//	go run ./tools/stencilgen [pkg]   # defaults to ./dfg
package main

import (
	"fmt"
	"go/types"
	"os"

	"golang.org/x/tools/go/packages"
	"golang.org/x/tools/go/ssa"
	"golang.org/x/tools/go/ssa/ssautil"
)

func main() {
	pkgPath := "./dfg"
	if len(os.Args) > 1 {
		pkgPath = os.Args[1]
	}

	cfg := &packages.Config{
		Mode: packages.NeedFiles | packages.NeedSyntax | packages.NeedTypes |
			packages.NeedTypesInfo | packages.NeedDeps | packages.NeedImports | packages.NeedName,
	}
	pkgs, err := packages.Load(cfg, pkgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stencilgen: failed to load %s: %v\n", pkgPath, err)
		os.Exit(1)
	}
	if len(pkgs) == 0 {
		fmt.Fprintf(os.Stderr, "stencilgen: no packages found at %s\n", pkgPath)
		os.Exit(1)
	}
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			fmt.Fprintf(os.Stderr, "stencilgen: %v\n", e)
		}
	}

	prog, _ := ssautil.AllPackages(pkgs, 0)
	prog.Build()

	var found int
	for fn := range ssautil.AllFunctions(prog) {
		if fn.Synthetic != "" || fn.Blocks == nil {
			continue
		}
		if !looksLikeStencilEmitFunc(fn.Signature) {
			continue
		}
		found++
		report(fn)
	}
	if found == 0 {
		fmt.Printf("stencilgen: no StencilEmitFunc-shaped functions found in %s\n", pkgPath)
	}
}

// looksLikeStencilEmitFunc matches dfg.StencilEmitFunc's shape structurally
// (4 params, 4 int results) rather than by exact named-type identity, so the
// tool works whether the candidate is a free function, a method value, or a
// function assigned into the StencilLibrary registry under a different
// local name.
func looksLikeStencilEmitFunc(sig *types.Signature) bool {
	if sig.Params().Len() != 4 || sig.Results().Len() != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		if b, ok := sig.Results().At(i).Type().Underlying().(*types.Basic); !ok || b.Kind() != types.Int {
			return false
		}
	}
	return true
}

func report(fn *ssa.Function) {
	var instrs int
	var calls int
	for _, b := range fn.Blocks {
		instrs += len(b.Instrs)
		for _, instr := range b.Instrs {
			if _, ok := instr.(*ssa.Call); ok {
				calls++
			}
		}
	}
	tag := "OK"
	if calls > 0 {
		tag = "WARN: calls a function on the fast path"
	}
	fmt.Printf("  %-36s blocks=%-3d instrs=%-4d %s\n", fn.Name(), len(fn.Blocks), instrs, tag)
}
