// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"fmt"
	"io"
)

// maxEmptyReads bounds how many (0, nil) reads the resampler tolerates from
// its source before giving up with io.ErrNoProgress.
const maxEmptyReads = 100

// Resampler streams src at a new sample rate using Catmull-Rom
// interpolation over a four-frame window. It works on interleaved samples and
// keeps the channel count. A one-pole low-pass runs ahead of the interpolator
// when downsampling. Equal rates pass straight through.
type Resampler struct {
	src      Source
	dstRate  int
	ratio    float64 // source frames per output frame
	channels int

	// window[0..3] hold frames t-1, t, t+1, t+2; pos is the fractional
	// offset between window[1] and window[2].
	window [4][]float32
	real   [4]bool
	pos    float64

	primed bool
	eof    bool
	done   bool

	lowpass bool
	alpha   float32
	lpState []float32
	lpSeed  bool
}

func NewResampler(src Source, dstRate int) *Resampler {
	channels := src.Channels()
	r := &Resampler{
		src:      src,
		dstRate:  dstRate,
		ratio:    float64(src.SampleRate()) / float64(dstRate),
		channels: channels,
	}

	for i := range r.window {
		r.window[i] = make([]float32, channels)
	}

	if r.ratio > 1 {
		r.lowpass = true
		r.alpha = 0.5
		r.lpState = make([]float32, channels)
	}

	return r
}

func (r *Resampler) SampleRate() int { return r.dstRate }
func (r *Resampler) Channels() int   { return r.channels }
func (r *Resampler) BufSize() int    { return r.src.BufSize() }

func (r *Resampler) Close() error {
	if err := r.src.Close(); err != nil {
		return fmt.Errorf("resampler: %w", err)
	}

	return nil
}

func (r *Resampler) passthrough() bool {
	return r.src.SampleRate() == r.dstRate
}

// fetch reads exactly one frame into dst. It reports false once the source
// is exhausted; a trailing partial frame is dropped.
func (r *Resampler) fetch(dst []float32) (bool, error) {
	if r.eof {
		return false, nil
	}

	got, empty := 0, 0
	for got < r.channels {
		n, err := r.src.ReadSamples(dst[got:])
		got += n
		if err == io.EOF {
			r.eof = true
			break
		}
		if err != nil {
			return false, fmt.Errorf("resampler: %w", err)
		}
		if n == 0 {
			empty++
			if empty >= maxEmptyReads {
				return false, io.ErrNoProgress
			}
		}
	}
	if got < r.channels {
		r.eof = true
		return false, nil
	}

	if r.lowpass {
		if !r.lpSeed {
			copy(r.lpState, dst)
			r.lpSeed = true
		}
		for c, v := range dst {
			r.lpState[c] += r.alpha * (v - r.lpState[c])
			dst[c] = r.lpState[c]
		}
	}

	return true, nil
}

func (r *Resampler) prime() error {
	for i := 1; i < len(r.window); i++ {
		ok, err := r.fetch(r.window[i])
		if err != nil {
			return err
		}
		r.real[i] = ok
		if !ok {
			break
		}
	}

	// The first frame doubles as its own predecessor.
	copy(r.window[0], r.window[1])
	r.real[0] = r.real[1]
	r.primed = true

	return nil
}

// advance slides the window one source frame forward.
func (r *Resampler) advance() error {
	head := r.window[0]
	copy(r.window[:3], r.window[1:])
	copy(r.real[:3], r.real[1:])
	r.window[3] = head

	ok, err := r.fetch(head)
	if err != nil {
		return err
	}
	r.real[3] = ok

	return nil
}

func (r *Resampler) ReadSamples(dst []float32) (int, error) {
	if r.channels == 0 || len(dst)%r.channels != 0 {
		return 0, ErrInvalidDstSize
	}
	if r.passthrough() {
		return r.src.ReadSamples(dst)
	}
	if !r.primed {
		if err := r.prime(); err != nil {
			return 0, err
		}
	}

	frames := len(dst) / r.channels
	written := 0
	for written < frames && !r.done {
		for r.pos >= 1 {
			r.pos--
			if err := r.advance(); err != nil {
				return written * r.channels, err
			}
		}
		if !r.real[1] || !r.real[2] {
			r.done = true
			break
		}

		next := r.window[3]
		if !r.real[3] {
			next = r.window[2]
		}

		t := float32(r.pos)
		out := dst[written*r.channels : (written+1)*r.channels]
		for c := range out {
			out[c] = catmullRom(r.window[0][c], r.window[1][c], r.window[2][c], next[c], t)
		}

		written++
		r.pos += r.ratio
	}

	if r.done {
		return written * r.channels, io.EOF
	}

	return written * r.channels, nil
}

// catmullRom interpolates between y1 and y2 at t in [0, 1).
func catmullRom(y0, y1, y2, y3, t float32) float32 {
	a := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	b := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	c := -0.5*y0 + 0.5*y2

	return ((a*t+b)*t+c)*t + y1
}
