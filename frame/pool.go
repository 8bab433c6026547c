// SPDX-License-Identifier: EPL-2.0

package frame

import "fmt"

// Allocator hands out channel buffers. Free receives every buffer Alloc
// returned once the pool is done with it.
type Allocator interface {
	Alloc(n int) ([]float32, error)
	Free(buf []float32)
}

type heapAllocator struct{}

func (heapAllocator) Alloc(n int) ([]float32, error) { return make([]float32, n), nil }
func (heapAllocator) Free([]float32)                 {}

// BufferPool owns the four buffer sets a processor works with: a main and
// a staging set for inputs, and the same for outputs. Every buffer holds
// one frame.
type BufferPool struct {
	alloc Allocator

	numIn     int
	numOut    int
	frameSize int

	inputMain     [][]float32
	inputStaging  [][]float32
	outputMain    [][]float32
	outputStaging [][]float32
}

// NewBufferPool returns an empty pool. A nil alloc uses the Go heap.
func NewBufferPool(alloc Allocator) *BufferPool {
	if alloc == nil {
		alloc = heapAllocator{}
	}
	return &BufferPool{alloc: alloc}
}

// Matches reports whether the pool already holds this layout.
func (p *BufferPool) Matches(numIn, numOut, frameSize int) bool {
	return p.numIn == numIn && p.numOut == numOut && p.frameSize == frameSize
}

// Reconfigure resizes the pool. It does nothing when the layout is
// unchanged. Otherwise the current buffers are released using the counts
// they were allocated with and fresh ones are allocated. If an allocation
// fails the pool is left empty.
func (p *BufferPool) Reconfigure(numIn, numOut, frameSize int) error {
	if numIn < 0 || numOut < 0 || numIn > MaxChannels || numOut > MaxChannels {
		return fmt.Errorf("%w: %d inputs, %d outputs", ErrInvalidLayout, numIn, numOut)
	}
	if frameSize <= 0 {
		return fmt.Errorf("%w: frame size %d", ErrInvalidLayout, frameSize)
	}
	if p.Matches(numIn, numOut, frameSize) {
		return nil
	}

	p.Release()

	sets := []*[][]float32{&p.inputMain, &p.inputStaging, &p.outputMain, &p.outputStaging}
	for i, set := range sets {
		count := numIn
		if i >= 2 {
			count = numOut
		}
		*set = make([][]float32, count)
		for c := range count {
			buf, err := p.alloc.Alloc(frameSize)
			if err != nil {
				p.Release()
				return fmt.Errorf("%w: %d samples: %w", ErrAllocation, frameSize, err)
			}
			if len(buf) < frameSize {
				p.alloc.Free(buf)
				p.Release()
				return fmt.Errorf("%w: got %d of %d samples", ErrAllocation, len(buf), frameSize)
			}
			(*set)[c] = buf[:frameSize]
		}
	}

	p.numIn, p.numOut, p.frameSize = numIn, numOut, frameSize

	return nil
}

// Release frees every buffer and empties the pool.
func (p *BufferPool) Release() {
	for _, set := range []*[][]float32{&p.inputMain, &p.inputStaging, &p.outputMain, &p.outputStaging} {
		for _, buf := range *set {
			if buf != nil {
				p.alloc.Free(buf)
			}
		}
		*set = nil
	}
	p.numIn, p.numOut, p.frameSize = 0, 0, 0
}

// Clear zeroes every buffer without releasing it.
func (p *BufferPool) Clear() {
	for _, set := range [][][]float32{p.inputMain, p.inputStaging, p.outputMain, p.outputStaging} {
		for _, buf := range set {
			clear(buf)
		}
	}
}

func (p *BufferPool) InputMain() [][]float32     { return p.inputMain }
func (p *BufferPool) InputStaging() [][]float32  { return p.inputStaging }
func (p *BufferPool) OutputMain() [][]float32    { return p.outputMain }
func (p *BufferPool) OutputStaging() [][]float32 { return p.outputStaging }
func (p *BufferPool) Inputs() int                { return p.numIn }
func (p *BufferPool) Outputs() int               { return p.numOut }
func (p *BufferPool) FrameSize() int             { return p.frameSize }

// Empty reports whether the pool holds no buffers.
func (p *BufferPool) Empty() bool {
	return p.inputMain == nil && p.outputMain == nil
}
