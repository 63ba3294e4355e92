// Copyright 2025-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs indexed, pure work items on a bounded set of
// goroutines. Enumeration is embarrassingly parallel across candidate
// configurations, with no shared mutable state beyond read-only inputs, so
// the pool offers only a parallel-for: synchronization is limited to handing
// out indices and waiting for completion.
package workerspool

import (
	"runtime"
	"sync"
	"sync/atomic"
)

type Pool struct {
	// maxParallelism is a soft target on the number of concurrent workers.
	// 0 disables parallelism (work runs inline), < 0 means one worker per
	// item.
	maxParallelism int
}

// New returns a Pool with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return &Pool{maxParallelism: runtime.NumCPU()}
}

// NewWithParallelism returns a Pool with the given parallelism target.
func NewWithParallelism(maxParallelism int) *Pool {
	return &Pool{maxParallelism: maxParallelism}
}

// MaxParallelism returns the configured parallelism target.
func (p *Pool) MaxParallelism() int { return p.maxParallelism }

// For calls fn(i) for every i in [0, n), spreading calls across the pool's
// workers, and returns when all calls finished. fn must be safe to call
// concurrently; indices are handed out in order but completions interleave.
func (p *Pool) For(n int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if p.maxParallelism == 0 || n == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}

	workers := p.maxParallelism
	if workers < 0 || workers > n {
		workers = n
	}
	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for {
				i := int(next.Add(1)) - 1
				if i >= n {
					return
				}
				fn(i)
			}
		}()
	}
	wg.Wait()
}
