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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
)

func TestCompileOrReuseCachesAfterFirstBuild(t *testing.T) {
	c := NewCompileCache()
	var builds int32
	build := func() (*DfgCodeBlock, error) {
		atomic.AddInt32(&builds, 1)
		return &DfgCodeBlock{FrameSlots: 3}, nil
	}

	cb1, err := c.CompileOrReuse("fn-a", build)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cb2, err := c.CompileOrReuse("fn-a", build)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb1 != cb2 {
		t.Fatalf("second call returned a different *DfgCodeBlock, want the cached one")
	}
	if got := atomic.LoadInt32(&builds); got != 1 {
		t.Fatalf("build ran %d times, want 1", got)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}

// Two goroutines racing to compile the same key must be coalesced by the
// singleflight.Group into exactly one real build (compile_cache.go's stated
// contract).
func TestCompileOrReuseCoalescesConcurrentBuildsForSameKey(t *testing.T) {
	c := NewCompileCache()
	var builds int32
	release := make(chan struct{})
	build := func() (*DfgCodeBlock, error) {
		atomic.AddInt32(&builds, 1)
		<-release // hold the build open until release is closed
		return &DfgCodeBlock{}, nil
	}

	const n = 8
	results := make([]*DfgCodeBlock, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.CompileOrReuse("fn-shared", build)
		}(i)
	}
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: unexpected error: %v", i, err)
		}
	}
	for i := 1; i < n; i++ {
		if results[i] != results[0] {
			t.Fatalf("caller %d got a different *DfgCodeBlock than caller 0", i)
		}
	}
	if got := atomic.LoadInt32(&builds); got != 1 {
		t.Fatalf("build ran %d times across %d racing callers, want 1", got, n)
	}
}

func TestCompileOrReuseDoesNotCacheAFailedBuild(t *testing.T) {
	c := NewCompileCache()
	wantErr := errors.New("compile failed")
	var builds int32
	failOnce := func() (*DfgCodeBlock, error) {
		n := atomic.AddInt32(&builds, 1)
		if n == 1 {
			return nil, wantErr
		}
		return &DfgCodeBlock{}, nil
	}

	_, err := c.CompileOrReuse("fn-b", failOnce)
	if !errors.Is(err, wantErr) {
		t.Fatalf("first call error = %v, want %v", err, wantErr)
	}
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after a failed build, want 0", c.Len())
	}

	cb, err := c.CompileOrReuse("fn-b", failOnce)
	if err != nil {
		t.Fatalf("second call: unexpected error: %v", err)
	}
	if cb == nil {
		t.Fatalf("second call: expected a cached code block, got nil")
	}
	if got := atomic.LoadInt32(&builds); got != 2 {
		t.Fatalf("build ran %d times, want 2 (retried after the failure)", got)
	}
}

func TestCompileCacheForgetForcesRebuild(t *testing.T) {
	c := NewCompileCache()
	var builds int32
	build := func() (*DfgCodeBlock, error) {
		atomic.AddInt32(&builds, 1)
		return &DfgCodeBlock{}, nil
	}

	if _, err := c.CompileOrReuse("fn-c", build); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c.Forget("fn-c")
	if c.Len() != 0 {
		t.Fatalf("Len() = %d after Forget, want 0", c.Len())
	}
	if _, err := c.CompileOrReuse("fn-c", build); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := atomic.LoadInt32(&builds); got != 2 {
		t.Fatalf("build ran %d times, want 2 (one before Forget, one after)", got)
	}
}
