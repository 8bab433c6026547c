// SPDX-License-Identifier: EPL-2.0

package frame

// RunFunc runs the codec on one frame and reports whether it ran. It
// returns false when the codec is not ready.
type RunFunc func(in, out [][]float32) bool

// Result summarizes one block.
type Result struct {
	Frames   int  // frames the codec processed
	Skipped  int  // frames dropped because the codec was not ready
	Underrun bool // part of the block was emitted as silence
}

// Accumulator regroups host blocks into codec frames.
//
// Blocks whose length is a multiple of the frame size are cut into whole
// frames (the chunked path): each chunk first emits the previous chunk's
// result from the output staging set, then runs the codec on itself.
//
// Any other block length goes through the accumulation path, split at
// frame boundaries so one block may complete zero, one or several frames.
// Each position emits the previous frame's output before the new input is
// stored, and a completed frame is processed into the output main set.
//
// Both paths delay the signal by exactly one frame. Silence is emitted
// wherever the previous frame was never produced.
type Accumulator struct {
	frameSize int
	inAcc     int
	outAcc    int
	// valid is set while the output buffers hold a frame the codec produced.
	valid bool
}

func NewAccumulator(frameSize int) *Accumulator {
	return &Accumulator{frameSize: frameSize}
}

// Reset drops partial frames and marks the output as not yet produced.
func (a *Accumulator) Reset() {
	a.inAcc, a.outAcc = 0, 0
	a.valid = false
}

// SetFrameSize changes the frame size and resets.
func (a *Accumulator) SetFrameSize(frameSize int) {
	a.frameSize = frameSize
	a.Reset()
}

// Fill is how many samples of the current frame have been stored.
func (a *Accumulator) Fill() int { return a.inAcc }

// Process consumes n samples per channel from in and writes n samples per
// channel to out. in and out must carry pool.Inputs() and pool.Outputs()
// channels of at least n samples each.
func (a *Accumulator) Process(in, out [][]float32, n int, pool *BufferPool, run RunFunc) Result {
	if n%a.frameSize == 0 {
		return a.chunked(in, out, n, pool, run)
	}
	return a.accumulate(in, out, n, pool, run)
}

// chunked emits the previous chunk's output before processing the current
// one. outputStaging and valid carry over between host blocks so the delay
// stays one frame on both paths.
func (a *Accumulator) chunked(in, out [][]float32, n int, pool *BufferPool, run RunFunc) Result {
	var res Result
	f := a.frameSize
	staging := pool.OutputStaging()
	inStaging := pool.InputStaging()

	for off := 0; off < n; off += f {
		if a.valid {
			for c, buf := range staging {
				copy(out[c][off:off+f], buf)
			}
		} else {
			for c := range staging {
				clear(out[c][off : off+f])
			}
			res.Underrun = true
		}

		for c, buf := range inStaging {
			copy(buf, in[c][off:off+f])
		}
		a.runFrame(inStaging, staging, run, &res)
	}

	return res
}

func (a *Accumulator) accumulate(in, out [][]float32, n int, pool *BufferPool, run RunFunc) Result {
	var res Result
	f := a.frameSize
	inMain := pool.InputMain()
	outMain := pool.OutputMain()

	for pos := 0; pos < n; {
		seg := min(n-pos, f-a.inAcc)

		if a.valid {
			for c, buf := range outMain {
				copy(out[c][pos:pos+seg], buf[a.outAcc:a.outAcc+seg])
			}
		} else {
			for c := range outMain {
				clear(out[c][pos : pos+seg])
			}
			res.Underrun = true
		}

		for c, buf := range inMain {
			copy(buf[a.inAcc:a.inAcc+seg], in[c][pos:pos+seg])
		}

		a.inAcc += seg
		a.outAcc += seg
		pos += seg

		if a.inAcc == f {
			a.runFrame(inMain, outMain, run, &res)
			a.inAcc, a.outAcc = 0, 0
		}
	}

	return res
}

func (a *Accumulator) runFrame(in, out [][]float32, run RunFunc, res *Result) {
	if run(in, out) {
		res.Frames++
		a.valid = true
		return
	}

	for _, buf := range out {
		clear(buf)
	}
	res.Skipped++
	a.valid = false
}
