// SPDX-License-Identifier: EPL-2.0

package frame

import "sync/atomic"

// Stats is a snapshot of a processor's counters.
type Stats struct {
	Blocks          uint64
	FramesProcessed uint64
	FramesSkipped   uint64
	UnderrunBlocks  uint64
	ConfigErrors    uint64
	Reallocations   uint64
}

type counters struct {
	blocks          atomic.Uint64
	framesProcessed atomic.Uint64
	framesSkipped   atomic.Uint64
	underrunBlocks  atomic.Uint64
	configErrors    atomic.Uint64
	reallocations   atomic.Uint64
}

func (c *counters) record(res Result) {
	if res.Frames > 0 {
		c.framesProcessed.Add(uint64(res.Frames))
	}
	if res.Skipped > 0 {
		c.framesSkipped.Add(uint64(res.Skipped))
	}
	if res.Underrun {
		c.underrunBlocks.Add(1)
	}
}

func (c *counters) snapshot() Stats {
	return Stats{
		Blocks:          c.blocks.Load(),
		FramesProcessed: c.framesProcessed.Load(),
		FramesSkipped:   c.framesSkipped.Load(),
		UnderrunBlocks:  c.underrunBlocks.Load(),
		ConfigErrors:    c.configErrors.Load(),
		Reallocations:   c.reallocations.Load(),
	}
}
