// SPDX-License-Identifier: EPL-2.0

// Package ambidec decodes an ambisonic stream to a loudspeaker layout, or
// binaurally through virtual loudspeakers.
//
// Decoding runs in two bands split by a first-order crossover at the
// transition frequency; each band has its own method and max-rE weighting.
// The decoding order is capped by what the layout can carry.
package ambidec

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ik5/framebridge/asset"
	"github.com/ik5/framebridge/codec/ambi"
	"github.com/ik5/framebridge/codec/internal/dsp"
	"github.com/ik5/framebridge/frame"
)

const (
	FrameSize   = 128
	MaxSpeakers = 64
)

const (
	Low  = 0
	High = 1
)

const (
	defaultOrder      = 1
	defaultSpeakers   = 4
	defaultTransition = 800.0
	defaultHRIRPoints = 64
)

var (
	ErrLayout        = errors.New("ambidec: unsupported channel layout")
	ErrOrderMismatch = errors.New("ambidec: input channels do not match the ambisonic order")
	ErrHRIRRate      = errors.New("ambidec: HRIR sample rate differs from the stream")
	ErrClosed        = errors.New("ambidec: closed")
)

// Band holds the per-band decoder settings.
type Band struct {
	Method Method
	MaxRE  bool
}

// settings is the control-side copy, guarded by Codec.mu.
type settings struct {
	rate       int
	numIn      int
	numOut     int
	order      int
	count      int
	speakers   [MaxSpeakers]ambi.Direction
	binaural   bool
	bands      [2]Band
	transition float64
	norm       ambi.Norm
	chOrder    ambi.ChannelOrder
	preproc    bool
	hrirs      *asset.HRIRSet
}

type state struct {
	numIn, numOut int
	numSpk        int
	k             int // channels the decoder reads
	input         ambi.InputMap
	low, high     []float32 // numSpk x k
	split         []dsp.OnePole
	conv, lowBand [][]float32

	binaural     bool
	spk          [][]float32
	hrirL, hrirR [][]float32
	lines        []*dsp.Line
}

type Codec struct {
	mu     sync.Mutex
	s      settings
	closed bool

	state atomic.Pointer[state]
}

func New() *Codec {
	c := &Codec{s: settings{
		order:      defaultOrder,
		count:      defaultSpeakers,
		bands:      [2]Band{{Method: AllRAD}, {Method: AllRAD, MaxRE: true}},
		transition: defaultTransition,
	}}
	copy(c.s.speakers[:], ambi.DefaultLayout(defaultSpeakers))
	return c
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

// Configure checks the host layout against the configured order and
// output count.
func (c *Codec) Configure(numIn, numOut int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if want := ambi.Channels(c.s.order); numIn != want {
		return fmt.Errorf("%w: %d channels, order %d needs %d", ErrOrderMismatch, numIn, c.s.order, want)
	}
	if want := c.outputsLocked(); numOut != want {
		return fmt.Errorf("%w: %d outputs, want %d", ErrLayout, numOut, want)
	}
	c.s.numIn, c.s.numOut = numIn, numOut
	return nil
}

// Outputs is the output channel count the current settings need.
func (c *Codec) Outputs() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.outputsLocked()
}

func (c *Codec) outputsLocked() int {
	if c.s.binaural {
		return 2
	}
	return c.s.count
}

func (c *Codec) Order() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.s.order
}

// SetOrder sets the ambisonic order of the input stream.
func (c *Codec) SetOrder(order int) error {
	if err := ambi.CheckOrder(order); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.order = order
	return nil
}

// SetSpeakerCount resizes the layout and restores its default directions.
func (c *Codec) SetSpeakerCount(n int) error {
	if err := frame.CheckRange("loudspeakers", float64(n), 1, MaxSpeakers); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if n != c.s.count {
		c.s.count = n
		copy(c.s.speakers[:n], ambi.DefaultLayout(n))
	}
	return nil
}

// SetSpeakerDirection moves loudspeaker index, counted from 1.
func (c *Codec) SetSpeakerDirection(index int, azimuth, elevation float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := frame.CheckRange("loudspeaker", float64(index), 1, float64(c.s.count)); err != nil {
		return err
	}
	if err := frame.CheckRange("elevation", elevation, -90, 90); err != nil {
		return err
	}
	c.s.speakers[index-1] = ambi.Direction{Azimuth: ambi.WrapAzimuth(azimuth), Elevation: elevation}
	return nil
}

// Speakers lists the current layout.
func (c *Codec) Speakers() []ambi.Direction {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]ambi.Direction(nil), c.s.speakers[:c.s.count]...)
}

// SetBinaural switches between loudspeaker and binaural output. The output
// count changes, so the host must reconfigure.
func (c *Codec) SetBinaural(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.binaural = on
}

func (c *Codec) SetBand(band int, b Band) error {
	if band != Low && band != High {
		return fmt.Errorf("%w: band %d", frame.ErrOutOfRange, band)
	}
	if b.Method < SAD || b.Method > AllRAD {
		return fmt.Errorf("%w: %d", ErrUnknownMethod, b.Method)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.bands[band] = b
	return nil
}

// Band returns the settings of band Low or High.
func (c *Codec) Band(band int) Band {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.s.bands[band&1]
}

// SetTransition sets the crossover frequency in Hz.
func (c *Codec) SetTransition(hz float64) error {
	if err := frame.CheckRange("transition", hz, 500, 2000); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.transition = hz
	return nil
}

// SetConventions selects the input normalization and channel order. FuMa
// conventions are checked against the order at initialization.
func (c *Codec) SetConventions(n ambi.Norm, o ambi.ChannelOrder) error {
	if n < ambi.N3D || n > ambi.FuMa {
		return fmt.Errorf("%w: %d", ambi.ErrUnknownNorm, n)
	}
	if o != ambi.OrderACN && o != ambi.OrderFuMa {
		return fmt.Errorf("%w: %d", ambi.ErrUnknownOrder, o)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.norm, c.s.chOrder = n, o
	return nil
}

// SetHRIRs sets the responses used in binaural mode; nil selects the
// built-in spherical-head set.
func (c *Codec) SetHRIRs(h *asset.HRIRSet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.hrirs = h
}

// SetHRIRPreprocessing toggles diffuse-field equalization of the HRIRs.
func (c *Codec) SetHRIRPreprocessing(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.s.preproc = on
}

func (c *Codec) InitializeExpensiveState() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	s := c.s
	c.mu.Unlock()

	if s.numIn == 0 || s.numIn != ambi.Channels(s.order) {
		return fmt.Errorf("%w: not configured for order %d", ErrLayout, s.order)
	}

	st, err := build(s)
	if err != nil {
		return err
	}
	c.state.Store(st)
	return nil
}

func build(s settings) (*state, error) {
	input, err := ambi.NewInputMap(s.order, s.chOrder, s.norm)
	if err != nil {
		return nil, err
	}

	spk := s.speakers[:s.count]
	decOrder := min(s.order, max(1, ambi.OrderOf(s.count)))
	k := ambi.Channels(decOrder)

	st := &state{
		numIn:    s.numIn,
		numOut:   s.numOut,
		numSpk:   s.count,
		k:        k,
		input:    input,
		split:    make([]dsp.OnePole, k),
		conv:     planar(s.numIn, FrameSize),
		lowBand:  planar(k, FrameSize),
		binaural: s.binaural,
	}
	for b, dst := range []*[]float32{&st.low, &st.high} {
		d, err := decodingMatrix(s.bands[b].Method, decOrder, spk, s.bands[b].MaxRE)
		if err != nil {
			return nil, err
		}
		*dst = ambi.Float32(d)
	}
	a := dsp.LowpassCoeff(s.transition, s.rate)
	for i := range st.split {
		st.split[i].A = a
	}

	if s.binaural {
		if err := st.buildBinaural(s, spk); err != nil {
			return nil, err
		}
	}

	return st, nil
}

func (st *state) buildBinaural(s settings, spk []ambi.Direction) error {
	h := s.hrirs
	if h == nil {
		h = asset.DefaultHRIRs(s.rate, defaultHRIRPoints)
	}
	if h.SampleRate != s.rate {
		return fmt.Errorf("%w: %d Hz, stream %d Hz", ErrHRIRRate, h.SampleRate, s.rate)
	}

	gain := float32(1)
	if s.preproc {
		var e float64
		for i := range h.Left {
			e += energy(h.Left[i]) + energy(h.Right[i])
		}
		if e > 0 {
			gain = float32(1 / math.Sqrt(e/float64(2*len(h.Left))))
		}
	}

	taps := h.Taps()
	st.spk = planar(len(spk), FrameSize)
	st.hrirL = make([][]float32, len(spk))
	st.hrirR = make([][]float32, len(spk))
	st.lines = make([]*dsp.Line, len(spk))
	for o, d := range spk {
		n := ambi.Nearest(h.Directions, d)
		st.hrirL[o] = scaled(h.Left[n], gain)
		st.hrirR[o] = scaled(h.Right[n], gain)
		st.lines[o] = dsp.NewLine(taps, FrameSize)
	}
	return nil
}

func (c *Codec) Process(in, out [][]float32, numIn, numOut, frameLength int) {
	for o := range numOut {
		clear(out[o][:frameLength])
	}

	st := c.state.Load()
	if st == nil || st.numIn != numIn || st.numOut != numOut || frameLength > FrameSize {
		return
	}

	n := frameLength
	st.input.Apply(st.conv, in, n)
	for k := range st.k {
		x := st.conv[k][:n]
		st.split[k].Split(x, st.lowBand[k][:n], x)
	}

	dst := out
	if st.binaural {
		dst = st.spk
		for o := range st.spk {
			clear(st.spk[o][:n])
		}
	}

	k := st.k
	for o := range st.numSpk {
		y := dst[o][:n]
		lowRow := st.low[o*k : (o+1)*k]
		highRow := st.high[o*k : (o+1)*k]
		for ch := range k {
			gl, gh := lowRow[ch], highRow[ch]
			if gl == 0 && gh == 0 {
				continue
			}
			lb, hb := st.lowBand[ch][:n], st.conv[ch][:n]
			for t := range y {
				y[t] += gl*lb[t] + gh*hb[t]
			}
		}
	}

	if st.binaural {
		left, right := out[0][:n], out[1][:n]
		for o, line := range st.lines {
			line.Push(st.spk[o][:n])
			line.Accumulate(left, st.hrirL[o])
			line.Accumulate(right, st.hrirR[o])
			line.Advance(n)
		}
	}
}

func (c *Codec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.state.Store(nil)
	return nil
}

func planar(ch, n int) [][]float32 {
	b := make([][]float32, ch)
	for i := range b {
		b[i] = make([]float32, n)
	}
	return b
}

func energy(x []float32) float64 {
	var e float64
	for _, v := range x {
		e += float64(v) * float64(v)
	}
	return e
}

func scaled(x []float32, g float32) []float32 {
	out := make([]float32, len(x))
	for i, v := range x {
		out[i] = v * g
	}
	return out
}
