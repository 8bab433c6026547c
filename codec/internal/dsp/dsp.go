// SPDX-License-Identifier: EPL-2.0

// Package dsp holds the small real-time filters shared by the codecs.
// Nothing here allocates after construction.
package dsp

import "math"

// Line is the recent history of one signal, sized for FIR filtering of
// fixed frames: the last taps-1 samples of the previous frame followed by
// the current frame.
type Line struct {
	buf  []float32
	keep int
}

func NewLine(taps, frameSize int) *Line {
	keep := max(taps-1, 0)
	return &Line{buf: make([]float32, keep+frameSize), keep: keep}
}

// Push stores the current frame. len(x) must not exceed the frame size.
func (l *Line) Push(x []float32) {
	copy(l.buf[l.keep:], x)
}

// Accumulate adds the current frame filtered by h to dst. len(h) must not
// exceed the taps the line was built for.
func (l *Line) Accumulate(dst, h []float32) {
	base := l.keep
	for t := range dst {
		var acc float32
		for j, c := range h {
			acc += c * l.buf[base+t-j]
		}
		dst[t] += acc
	}
}

// Advance keeps the tail of a frame of n samples for the next one.
func (l *Line) Advance(n int) {
	copy(l.buf[:l.keep], l.buf[n:n+l.keep])
}

// Reset clears the history.
func (l *Line) Reset() { clear(l.buf) }

// LowpassCoeff is the one-pole smoothing coefficient for a cutoff of fc Hz.
func LowpassCoeff(fc float64, rate int) float64 {
	return 1 - math.Exp(-2*math.Pi*fc/float64(rate))
}

// OnePole is a first-order low-pass. The complementary high-pass is the
// input minus the low-pass output.
type OnePole struct {
	A     float64
	state float64
}

// Split writes the low band of x to low and the high band to high. Either may
// alias x.
func (p *OnePole) Split(x, low, high []float32) {
	s := p.state
	for t, v := range x {
		s += p.A * (float64(v) - s)
		l := float32(s)
		h := v - l
		low[t], high[t] = l, h
	}
	p.state = s
}
