// SPDX-License-Identifier: EPL-2.0

// Package panner is an amplitude panner that places up to 64 mono sources
// on a loudspeaker layout.
//
// Gains come from a table precomputed over a 2 by 5 degree grid during
// expensive initialization. Source directions apply live: Process picks
// the new table cell and ramps each gain across one frame.
package panner

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/ik5/framebridge/codec/ambi"
	"github.com/ik5/framebridge/frame"
)

const (
	FrameSize   = 64
	MaxSources  = 64
	MinSpeakers = 2
	MaxSpeakers = 64
)

const (
	azStep = 2
	elStep = 5
	azBins = 360 / azStep
	elBins = 180/elStep + 1
)

const (
	defaultDTT    = 0.5
	defaultSpread = 0.0
)

var (
	ErrLayout = errors.New("panner: unsupported channel layout")
	ErrClosed = errors.New("panner: closed")
)

type sources [MaxSources]ambi.Direction

// state is everything Process reads, built by InitializeExpensiveState.
type state struct {
	numIn, numOut int
	table         []float32 // azBins*elBins cells of numOut gains
	prev          [][]float32
}

func (s *state) cell(d ambi.Direction) []float32 {
	ai := int(math.Round((ambi.WrapAzimuth(d.Azimuth)+180)/azStep)) % azBins
	ei := int(math.Round((d.Elevation + 90) / elStep))
	ei = max(0, min(elBins-1, ei))
	off := (ei*azBins + ai) * s.numOut
	return s.table[off : off+s.numOut]
}

type Codec struct {
	mu       sync.Mutex
	rate     int
	numIn    int
	numOut   int
	speakers [MaxSpeakers]ambi.Direction
	dtt      float64
	spread   float64
	closed   bool

	src   atomic.Pointer[sources]
	state atomic.Pointer[state]
}

func New() *Codec {
	c := &Codec{dtt: defaultDTT, spread: defaultSpread}
	copy(c.speakers[:], ambi.DefaultLayout(MaxSpeakers))
	c.src.Store(&sources{})
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

	c.rate = sampleRate
	return nil
}

// Configure accepts 1 to 64 sources and 2 to 64 loudspeakers. A new
// loudspeaker count restores the default layout and spreads the sources
// evenly around the listener.
func (c *Codec) Configure(numIn, numOut int) error {
	if numIn < 1 || numIn > MaxSources {
		return fmt.Errorf("%w: %d sources", ErrLayout, numIn)
	}
	if numOut < MinSpeakers || numOut > MaxSpeakers {
		return fmt.Errorf("%w: %d loudspeakers", ErrLayout, numOut)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if numOut != c.numOut {
		copy(c.speakers[:numOut], ambi.DefaultLayout(numOut))

		src := new(sources)
		for i := range src {
			src[i] = ambi.Direction{Azimuth: ambi.WrapAzimuth(360 / float64(numOut) * float64(i))}
		}
		c.src.Store(src)
	}
	c.numIn, c.numOut = numIn, numOut
	return nil
}

// SetSourceDirection moves source i (0-based). It applies from the next
// frame without reinitialization.
func (c *Codec) SetSourceDirection(i int, azimuth, elevation float64) error {
	if err := frame.CheckRange("source", float64(i), 0, MaxSources-1); err != nil {
		return err
	}
	if err := frame.CheckRange("elevation", elevation, -90, 90); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := *c.src.Load()
	next[i] = ambi.Direction{Azimuth: ambi.WrapAzimuth(azimuth), Elevation: elevation}
	c.src.Store(&next)
	return nil
}

func (c *Codec) SourceDirection(i int) ambi.Direction {
	return c.src.Load()[i]
}

// SetSpeakerDirection moves loudspeaker i (0-based). It takes effect at the
// next expensive initialization.
func (c *Codec) SetSpeakerDirection(i int, azimuth, elevation float64) error {
	if err := frame.CheckRange("loudspeaker", float64(i), 0, MaxSpeakers-1); err != nil {
		return err
	}
	if err := frame.CheckRange("elevation", elevation, -90, 90); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.speakers[i] = ambi.Direction{Azimuth: ambi.WrapAzimuth(azimuth), Elevation: elevation}
	return nil
}

// SetDTT sets the distance-to-listener compensation: 0 keeps amplitude
// sums at unity, 1 keeps energy at unity.
func (c *Codec) SetDTT(v float64) error {
	if err := frame.CheckRange("dtt", v, 0, 1); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.dtt = v
	return nil
}

// SetSpread widens each source, in degrees.
func (c *Codec) SetSpread(deg float64) error {
	if err := frame.CheckRange("spread", deg, 0, 90); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.spread = deg
	return nil
}

// Gains returns the loudspeaker gains for source i at its current
// direction, or nil before initialization.
func (c *Codec) Gains(i int) []float32 {
	st := c.state.Load()
	if st == nil || i < 0 || i >= MaxSources {
		return nil
	}
	return append([]float32(nil), st.cell(c.src.Load()[i])...)
}

func (c *Codec) InitializeExpensiveState() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	numIn, numOut := c.numIn, c.numOut
	speakers := append([]ambi.Direction(nil), c.speakers[:numOut]...)
	dtt, spread := c.dtt, c.spread
	c.mu.Unlock()

	if numIn == 0 || numOut < MinSpeakers {
		return fmt.Errorf("%w: not configured", ErrLayout)
	}

	st := &state{
		numIn:  numIn,
		numOut: numOut,
		table:  buildTable(speakers, dtt, spread),
		prev:   make([][]float32, numIn),
	}
	src := c.src.Load()
	for i := range st.prev {
		st.prev[i] = append([]float32(nil), st.cell(src[i])...)
	}

	c.state.Store(st)
	return nil
}

// buildTable fills one normalized gain vector per grid cell. A gain is
// max(0, cos(angle))^k with k falling as spread grows; vectors are scaled
// so the p-norm is one, p = 1 + dtt.
func buildTable(speakers []ambi.Direction, dtt, spread float64) []float32 {
	n := len(speakers)
	k := 1 + 15*(1-spread/90)
	p := 1 + dtt

	vecs := make([][3]float64, n)
	for i, s := range speakers {
		vecs[i] = s.Vector()
	}

	table := make([]float32, azBins*elBins*n)
	g := make([]float64, n)
	for ei := range elBins {
		for ai := range azBins {
			d := ambi.Direction{Azimuth: float64(ai*azStep - 180), Elevation: float64(ei*elStep - 90)}
			v := d.Vector()

			var norm float64
			for i, s := range vecs {
				dot := v[0]*s[0] + v[1]*s[1] + v[2]*s[2]
				g[i] = math.Pow(max(0, dot), k)
				norm += math.Pow(g[i], p)
			}
			if norm < 1e-12 {
				clear(g)
				g[ambi.Nearest(speakers, d)] = 1
				norm = 1
			}
			norm = math.Pow(norm, 1/p)

			cell := table[(ei*azBins+ai)*n:]
			for i := range g {
				cell[i] = float32(g[i] / norm)
			}
		}
	}
	return table
}

func (c *Codec) Process(in, out [][]float32, numIn, numOut, frameLength int) {
	for o := range numOut {
		clear(out[o][:frameLength])
	}

	st := c.state.Load()
	if st == nil || st.numIn != numIn || st.numOut != numOut {
		return
	}

	src := c.src.Load()
	step := 1 / float32(frameLength)
	for i := range numIn {
		x := in[i][:frameLength]
		target := st.cell(src[i])
		prev := st.prev[i]

		for o := range numOut {
			g0, g1 := prev[o], target[o]
			y := out[o][:frameLength]
			if g0 == g1 {
				if g1 == 0 {
					continue
				}
				for t, v := range x {
					y[t] += v * g1
				}
				continue
			}
			d := (g1 - g0) * step
			g := g0
			for t, v := range x {
				g += d
				y[t] += v * g
			}
		}
		copy(prev, target)
	}
}

func (c *Codec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	c.state.Store(nil)
	return nil
}
