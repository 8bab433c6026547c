// SPDX-License-Identifier: EPL-2.0

package frame

import (
	"errors"
	"testing"

	"github.com/ik5/framebridge/internal/audiotest"
)

func TestBufferPool_Reconfigure(t *testing.T) {
	t.Parallel()

	alloc := &audiotest.CountingAllocator{}
	pool := NewBufferPool(alloc)
	if !pool.Empty() {
		t.Fatal("new pool is not empty")
	}

	if err := pool.Reconfigure(2, 3, 64); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	if got := alloc.Allocs(); got != 2*2+2*3 {
		t.Errorf("allocs = %d, want 10", got)
	}
	if len(pool.InputMain()) != 2 || len(pool.InputStaging()) != 2 ||
		len(pool.OutputMain()) != 3 || len(pool.OutputStaging()) != 3 {
		t.Fatalf("set sizes = %d/%d/%d/%d", len(pool.InputMain()), len(pool.InputStaging()),
			len(pool.OutputMain()), len(pool.OutputStaging()))
	}
	for _, buf := range pool.OutputMain() {
		if len(buf) != 64 {
			t.Errorf("buffer length = %d, want 64", len(buf))
		}
	}
	if pool.Inputs() != 2 || pool.Outputs() != 3 || pool.FrameSize() != 64 {
		t.Errorf("counts = %d/%d/%d", pool.Inputs(), pool.Outputs(), pool.FrameSize())
	}

	// Unchanged layout is a no-op.
	if err := pool.Reconfigure(2, 3, 64); err != nil {
		t.Fatal(err)
	}
	if alloc.Allocs() != 10 || alloc.Frees() != 0 {
		t.Errorf("no-op reconfigure allocated %d, freed %d", alloc.Allocs(), alloc.Frees())
	}

	// A change frees exactly what the old layout allocated.
	if err := pool.Reconfigure(4, 2, 64); err != nil {
		t.Fatal(err)
	}
	if alloc.Frees() != 10 {
		t.Errorf("frees = %d, want 10", alloc.Frees())
	}
	if alloc.Live() != 2*4+2*2 {
		t.Errorf("live = %d, want 12", alloc.Live())
	}

	pool.Release()
	if alloc.Live() != 0 {
		t.Errorf("live after Release = %d, want 0", alloc.Live())
	}
	if !pool.Empty() {
		t.Error("pool not empty after Release")
	}
}

func TestBufferPool_AllocationFailureLeavesEmpty(t *testing.T) {
	t.Parallel()

	alloc := &audiotest.CountingAllocator{FailAt: 5}
	pool := NewBufferPool(alloc)

	err := pool.Reconfigure(2, 2, 128)
	if !errors.Is(err, ErrAllocation) {
		t.Fatalf("Reconfigure() error = %v, want ErrAllocation", err)
	}
	if !errors.Is(err, audiotest.ErrAllocFailed) {
		t.Errorf("Reconfigure() error = %v, want allocator cause", err)
	}
	if !pool.Empty() || pool.Inputs() != 0 || pool.Outputs() != 0 {
		t.Error("pool not empty after failed allocation")
	}
	if alloc.Live() != 0 {
		t.Errorf("live = %d after failure, want 0", alloc.Live())
	}

	// The same layout is retried rather than treated as unchanged.
	if err := pool.Reconfigure(2, 2, 128); err != nil {
		t.Fatalf("retry error = %v", err)
	}
	if alloc.Live() != 8 {
		t.Errorf("live = %d, want 8", alloc.Live())
	}
}

func TestBufferPool_ShortBufferLeavesEmpty(t *testing.T) {
	t.Parallel()

	alloc := &audiotest.CountingAllocator{ShortAt: 3}
	pool := NewBufferPool(alloc)

	if err := pool.Reconfigure(2, 2, 64); !errors.Is(err, ErrAllocation) {
		t.Fatalf("Reconfigure() error = %v, want ErrAllocation", err)
	}
	if !pool.Empty() || pool.FrameSize() != 0 {
		t.Error("pool not empty after a short buffer")
	}
	if alloc.Live() != 0 {
		t.Errorf("live = %d after a short buffer, want 0", alloc.Live())
	}

	if err := pool.Reconfigure(2, 2, 64); err != nil {
		t.Fatalf("retry error = %v", err)
	}
}

func TestBufferPool_InvalidLayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		in, out, frame int
	}{
		{name: "negative inputs", in: -1, out: 2, frame: 64},
		{name: "too many outputs", in: 1, out: MaxChannels + 1, frame: 64},
		{name: "zero frame", in: 1, out: 1, frame: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pool := NewBufferPool(nil)
			if err := pool.Reconfigure(tt.in, tt.out, tt.frame); !errors.Is(err, ErrInvalidLayout) {
				t.Errorf("Reconfigure() error = %v, want ErrInvalidLayout", err)
			}
		})
	}
}

func TestBufferPool_Clear(t *testing.T) {
	t.Parallel()

	pool := NewBufferPool(nil)
	if err := pool.Reconfigure(1, 1, 4); err != nil {
		t.Fatal(err)
	}
	pool.OutputMain()[0][2] = 1
	pool.InputStaging()[0][1] = 1

	pool.Clear()
	for _, set := range [][][]float32{pool.InputMain(), pool.InputStaging(), pool.OutputMain(), pool.OutputStaging()} {
		if !allZero(set) {
			t.Fatal("Clear() left data behind")
		}
	}
}
