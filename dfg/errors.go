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

// ErrorKind enumerates the five abort kinds from the error handling design.
// None of these are recoverable: the core has no partial-compile state to
// unwind, so every kind is reported and then the compile is abandoned.
type ErrorKind int

const (
	AutomataTooLarge ErrorKind = iota
	OffsetOverflow
	NoSelectionFound
	JITMemoryExhausted
	StackOverflow
)

func (k ErrorKind) String() string {
	switch k {
	case AutomataTooLarge:
		return "AutomataTooLarge"
	case OffsetOverflow:
		return "OffsetOverflow"
	case NoSelectionFound:
		return "NoSelectionFound"
	case JITMemoryExhausted:
		return "JITMemoryExhausted"
	case StackOverflow:
		return "StackOverflow"
	default:
		return "UnknownErrorKind"
	}
}

// CompileError is returned by the few core entry points that can fail
// without violating an invariant of a well-formed Graph (JIT memory
// exhaustion, in particular, is a resource condition, not a bug). Every
// other violation is a programming error and is reported with panic(string)
// instead, mirroring the teacher's convention of panicking on malformed
// interpreter state rather than threading an error return through every call.
type CompileError struct {
	Kind    ErrorKind
	Message string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("dfg: %s: %s", e.Kind, e.Message)
}

func newCompileError(kind ErrorKind, format string, args ...interface{}) *CompileError {
	return &CompileError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// abortf panics with a CompileError. Used for the five abort kinds that a
// well-formed Graph should never trigger but that resource exhaustion or a
// malformed input can still reach.
func abortf(kind ErrorKind, format string, args ...interface{}) {
	panic(newCompileError(kind, format, args...))
}
