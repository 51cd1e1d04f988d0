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
	"sync"

	"golang.org/x/sync/singleflight"
)

// CompileCache wraps Compile with a content-keyed cache plus a
// singleflight.Group, so two goroutines racing to compile the same Graph
// (identified by the caller-supplied key, typically a hash of the guest
// function's bytecode) block on one compile instead of each allocating its
// own JIT page for the same code (SPEC_FULL "DOMAIN STACK").
//
// The cached result is never evicted by this type — callers that need
// eviction (e.g. on guest-side invalidation) call Forget.
type CompileCache struct {
	group singleflight.Group

	mu      sync.RWMutex
	results map[string]*DfgCodeBlock
}

// NewCompileCache returns an empty cache.
func NewCompileCache() *CompileCache {
	return &CompileCache{results: map[string]*DfgCodeBlock{}}
}

// CompileOrReuse returns the cached DfgCodeBlock for key if present;
// otherwise it calls build (normally a closure over Compile and this key's
// Graph/CompileOptions), caching the first successful result and sharing it
// with every other caller that raced in under the same key. A failed build
// is never cached, so a subsequent call retries.
func (c *CompileCache) CompileOrReuse(key string, build func() (*DfgCodeBlock, error)) (*DfgCodeBlock, error) {
	c.mu.RLock()
	if cb, ok := c.results[key]; ok {
		c.mu.RUnlock()
		return cb, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		cb, err := build()
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.results[key] = cb
		c.mu.Unlock()
		return cb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*DfgCodeBlock), nil
}

// Forget drops key's cached result, if any, so the next CompileOrReuse call
// rebuilds it.
func (c *CompileCache) Forget(key string) {
	c.mu.Lock()
	delete(c.results, key)
	c.mu.Unlock()
}

// Len reports how many distinct keys currently hold a cached code block.
func (c *CompileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}
