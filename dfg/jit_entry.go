//go:build linux || darwin

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
	"fmt"
	"sync"
	"syscall"
	"unsafe"
)

// JITPage is one mmap'd region handed out by JITAllocator. It starts
// writable so C10 can stream stencil output into it, then flips
// irreversibly to executable via Finalize (W^X discipline) — matching
// §6's "JIT memory allocator: alloc(size) -> executable_ptr, no free in
// this path": there is no call that hands a page back to the OS.
type JITPage struct {
	rw         []byte
	addr       uintptr
	size       int
	executable bool
}

// Bytes returns the writable slice stencils write into. Panics once the
// page has been finalized, since the writable alias is gone by then.
func (p *JITPage) Bytes() []byte {
	if p.executable {
		panic("dfg: JITPage already finalized, no longer writable")
	}
	return p.rw
}

// Addr is the address the page executes from once finalized.
func (p *JITPage) Addr() uintptr { return p.addr }

// Size is the page-rounded byte length of the mapping.
func (p *JITPage) Size() int { return p.size }

// Finalize flips the mapping from RW to RX. Idempotent. There is
// deliberately no inverse: once a DfgCodeBlock is live, nothing in this
// package ever reclaims its pages.
func (p *JITPage) Finalize() error {
	if p.executable {
		return nil
	}
	if err := syscall.Mprotect(p.rw, syscall.PROT_READ|syscall.PROT_EXEC); err != nil {
		return fmt.Errorf("dfg: mprotect RX failed: %w", err)
	}
	p.executable = true
	return nil
}

// JITAllocator is §6's "JIT memory allocator" collaborator. A process
// normally uses the package-level default via AllocJITPage; the type is
// exported so tests can construct an isolated instance.
type JITAllocator struct {
	mu    sync.Mutex
	pages []*JITPage
}

var defaultJITAllocator = &JITAllocator{}

// AllocJITPage reserves size bytes from the default allocator.
func AllocJITPage(size int) (*JITPage, error) {
	return defaultJITAllocator.Alloc(size)
}

// Alloc reserves size bytes of fresh, page-aligned memory, initially
// writable. size is rounded up to the OS page size.
func (a *JITAllocator) Alloc(size int) (*JITPage, error) {
	if size <= 0 {
		return nil, fmt.Errorf("dfg: JIT alloc size must be positive, got %d", size)
	}
	pageSize := syscall.Getpagesize()
	rounded := ((size + pageSize - 1) / pageSize) * pageSize
	rw, err := syscall.Mmap(-1, 0, rounded, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_PRIVATE|syscall.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("dfg: mmap failed: %w", err)
	}
	p := &JITPage{rw: rw, addr: uintptr(unsafe.Pointer(&rw[0])), size: rounded}
	a.mu.Lock()
	a.pages = append(a.pages, p)
	a.mu.Unlock()
	return p, nil
}

// TotalAllocated sums every page size this allocator has ever handed out.
func (a *JITAllocator) TotalAllocated() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var total int64
	for _, p := range a.pages {
		total += int64(p.size)
	}
	return total
}
