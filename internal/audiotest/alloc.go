// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"errors"
	"sync"
)

var ErrAllocFailed = errors.New("allocation refused")

// CountingAllocator satisfies frame.Allocator and tracks outstanding
// buffers. FailAt makes the n-th Alloc call (1-based) fail and ShortAt
// makes it return one sample less than asked.
type CountingAllocator struct {
	mu      sync.Mutex
	allocs  int
	frees   int
	FailAt  int
	ShortAt int
}

func (a *CountingAllocator) Alloc(n int) ([]float32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.FailAt > 0 && a.allocs+1 == a.FailAt {
		a.FailAt = 0
		return nil, ErrAllocFailed
	}
	a.allocs++

	if a.ShortAt > 0 && a.allocs == a.ShortAt {
		a.ShortAt = 0
		return make([]float32, n-1), nil
	}
	return make([]float32, n), nil
}

func (a *CountingAllocator) Free([]float32) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.frees++
}

func (a *CountingAllocator) Allocs() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.allocs
}

func (a *CountingAllocator) Frees() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.frees
}

// Live is the number of buffers allocated and not yet freed.
func (a *CountingAllocator) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.allocs - a.frees
}
