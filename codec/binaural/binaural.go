// SPDX-License-Identifier: EPL-2.0

// Package binaural renders an ambisonic stream to two ears through
// spherical-harmonic domain filters fitted to a set of HRIRs.
//
// Fitting runs during expensive initialization; sound-field rotation is
// recomputed on the control path and applies from the next frame.
package binaural

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ik5/framebridge/asset"
	"github.com/ik5/framebridge/codec/ambi"
	"github.com/ik5/framebridge/codec/internal/dsp"
	"github.com/ik5/framebridge/frame"
)

const FrameSize = 128

// defaultPoints is the direction count of the built-in HRIR set.
const defaultPoints = 240

var (
	ErrLayout   = errors.New("binaural: unsupported channel layout")
	ErrHRIRRate = errors.New("binaural: HRIR sample rate differs from the stream")
	ErrClosed   = errors.New("binaural: closed")
)

type settings struct {
	rate    int
	numIn   int
	order   int
	hrirs   *asset.HRIRSet
	method  Method
	maxRE   bool
	preproc Preproc
	norm    ambi.Norm
	diffuse bool
	truncEQ bool
}

type state struct {
	numIn        int
	input        ambi.InputMap
	filtL, filtR [][]float32
	lines        []*dsp.Line
	conv, rot    [][]float32
	hrirs        *asset.HRIRSet
}

type rotation struct {
	k int
	m []float32
}

type Codec struct {
	mu     sync.Mutex
	s      settings
	rotOn  bool
	orient ambi.Orientation
	closed bool

	state atomic.Pointer[state]
	rot   atomic.Pointer[rotation]
}

func New() *Codec {
	return &Codec{s: settings{method: LS, maxRE: true, preproc: PreprocNone, norm: ambi.N3D}}
}

var _ frame.Codec = (*Codec)(nil)

func (c *Codec) FrameSize() int { return FrameSize }

func (c *Codec) Init(sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrLayout, sampleRate)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.rate = sampleRate
	return nil
}

// Configure takes the order from a complete stream of 4 to 64 channels.
// Output is always stereo.
func (c *Codec) Configure(numIn, numOut int) error {
	order := ambi.OrderOf(numIn)
	if !ambi.IsComplete(numIn) || ambi.CheckOrder(order) != nil {
		return fmt.Errorf("%w: %d inputs", ErrLayout, numIn)
	}
	if numOut != 2 {
		return fmt.Errorf("%w: %d outputs, want 2", ErrLayout, numOut)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.numIn, c.s.order = numIn, order
	return c.publishRotationLocked()
}

// SetHRIRs selects a measured set; nil selects the built-in spherical-head
// set.
func (c *Codec) SetHRIRs(h *asset.HRIRSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.hrirs = h
}

func (c *Codec) SetMethod(m Method) error {
	if m < LS || m > MagLS {
		return fmt.Errorf("%w: %d", ErrUnknownMethod, m)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.method = m
	return nil
}

func (c *Codec) SetMaxRE(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.maxRE = on
}

func (c *Codec) SetPreproc(p Preproc) error {
	if p < PreprocNone || p > PreprocAll {
		return fmt.Errorf("%w: %d", ErrUnknownPreproc, p)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.preproc = p
	return nil
}

func (c *Codec) SetNorm(n ambi.Norm) error {
	if n < ambi.N3D || n > ambi.FuMa {
		return fmt.Errorf("%w: %d", ambi.ErrUnknownNorm, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.norm = n
	return nil
}

// SetDiffuseMatching scales the filters so the rendered diffuse field has
// the energy of the HRIR set.
func (c *Codec) SetDiffuseMatching(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.diffuse = on
}

// SetTruncationEQ compensates the high-frequency loss of order truncation.
func (c *Codec) SetTruncationEQ(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.truncEQ = on
}

// SetRotation enables or disables sound-field rotation. It applies live.
func (c *Codec) SetRotation(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rotOn = on
	return c.publishRotationLocked()
}

// SetOrientation sets the rotation angles, each in [-180, 180] degrees, and
// their flips. It applies live.
func (c *Codec) SetOrientation(o ambi.Orientation) error {
	for _, a := range []struct {
		name string
		v    float64
	}{{"yaw", o.Yaw}, {"pitch", o.Pitch}, {"roll", o.Roll}} {
		if err := frame.CheckRange(a.name, a.v, -180, 180); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.orient
	c.orient = o
	if err := c.publishRotationLocked(); err != nil {
		c.orient = prev
		return err
	}
	return nil
}

func (c *Codec) Orientation() ambi.Orientation {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.orient
}

func (c *Codec) publishRotationLocked() error {
	if !c.rotOn || c.s.order == 0 {
		c.rot.Store(nil)
		return nil
	}
	m, err := ambi.RotationMatrix(c.s.order, c.orient)
	if err != nil {
		return fmt.Errorf("rotation: %w", err)
	}
	c.rot.Store(&rotation{k: ambi.Channels(c.s.order), m: m})
	return nil
}

// HRIRs is the set the current filters were fitted to, or nil before the
// first initialization.
func (c *Codec) HRIRs() *asset.HRIRSet {
	if st := c.state.Load(); st != nil {
		return st.hrirs
	}
	return nil
}

func (c *Codec) InitializeExpensiveState() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	s := c.s
	c.mu.Unlock()

	if s.numIn == 0 {
		return fmt.Errorf("%w: not configured", ErrLayout)
	}
	input, err := ambi.NewInputMap(s.order, ambi.OrderACN, s.norm)
	if err != nil {
		return err
	}

	h := s.hrirs
	if h == nil {
		h = asset.DefaultHRIRs(s.rate, defaultPoints)
	}
	if h.SampleRate != s.rate {
		return fmt.Errorf("%w: %d Hz, stream %d Hz", ErrHRIRRate, h.SampleRate, s.rate)
	}

	left, right, err := fit(fitOptions{
		method:  s.method,
		maxRE:   s.maxRE,
		preproc: s.preproc,
		diffuse: s.diffuse,
		truncEQ: s.truncEQ,
		order:   s.order,
		hrirs:   h,
	})
	if err != nil {
		return err
	}

	st := &state{
		numIn: s.numIn,
		input: input,
		filtL: left,
		filtR: right,
		lines: make([]*dsp.Line, s.numIn),
		conv:  planar(s.numIn, FrameSize),
		rot:   planar(s.numIn, FrameSize),
		hrirs: h,
	}
	for i := range st.lines {
		st.lines[i] = dsp.NewLine(h.Taps(), FrameSize)
	}

	c.state.Store(st)
	return nil
}

func (c *Codec) Process(in, out [][]float32, numIn, numOut, frameLength int) {
	for o := range numOut {
		clear(out[o][:frameLength])
	}

	st := c.state.Load()
	if st == nil || st.numIn != numIn || numOut != 2 || frameLength > FrameSize {
		return
	}

	n := frameLength
	st.input.Apply(st.conv, in, n)

	src := st.conv
	if r := c.rot.Load(); r != nil && r.k == numIn {
		for i := range numIn {
			y := st.rot[i][:n]
			clear(y)
			row := r.m[i*numIn : (i+1)*numIn]
			for j, g := range row {
				if g == 0 {
					continue
				}
				x := st.conv[j][:n]
				for t := range y {
					y[t] += g * x[t]
				}
			}
		}
		src = st.rot
	}

	left, right := out[0][:n], out[1][:n]
	for ch, line := range st.lines {
		line.Push(src[ch][:n])
		line.Accumulate(left, st.filtL[ch])
		line.Accumulate(right, st.filtR[ch])
		line.Advance(n)
	}
}

func (c *Codec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.state.Store(nil)
	c.rot.Store(nil)
	return nil
}

func planar(ch, n int) [][]float32 {
	b := make([][]float32, ch)
	for i := range b {
		b[i] = make([]float32, n)
	}
	return b
}
