// SPDX-License-Identifier: EPL-2.0

// Package doa estimates the direction of the dominant sound source in an
// ambisonic stream from the smoothed pseudo-intensity vector of its first
// order channels. It has no audio outputs; the estimate is read with
// Latest.
package doa

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ik5/framebridge/codec/ambi"
	"github.com/ik5/framebridge/frame"
)

const FrameSize = 64

const (
	defaultAveraging = 0.5
	defaultMinDB     = -60.0
	defaultMaxDB     = 0.0

	// Gate limits in dBFS.
	floorDB = -120.0
	ceilDB  = 20.0
)

var (
	ErrLayout = errors.New("doa: unsupported channel layout")
	ErrGate   = errors.New("doa: minimum energy must be below maximum")
	ErrClosed = errors.New("doa: closed")
)

// Estimate is the latest direction of arrival. Frames counts the frames
// that passed the energy gate since the last initialization.
type Estimate struct {
	Azimuth   float64
	Elevation float64
	Energy    float64 // dBFS of the omnidirectional channel
	Frames    uint64
}

// params apply live.
type params struct {
	avg          float64
	minDB, maxDB float64
}

type state struct {
	numIn  int
	gain   [4]float64 // W Y Z X to N3D
	ix     [3]float64
	frames uint64
}

type Codec struct {
	mu     sync.Mutex
	numIn  int
	norm   ambi.Norm
	closed bool

	params atomic.Pointer[params]
	state  atomic.Pointer[state]

	// Latest estimate, written only by Process under a sequence lock.
	seq     atomic.Uint64
	az, el  atomic.Uint64
	energy  atomic.Uint64
	counted atomic.Uint64
}

func New() *Codec {
	c := &Codec{norm: ambi.N3D}
	c.params.Store(&params{avg: defaultAveraging, minDB: defaultMinDB, maxDB: defaultMaxDB})
	c.energy.Store(math.Float64bits(math.Inf(-1)))
	return c
}

var _ frame.Codec = (*Codec)(nil)

func (c *Codec) FrameSize() int { return FrameSize }

func (c *Codec) Init(sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrLayout, sampleRate)
	}
	return nil
}

// Configure accepts a complete ambisonic stream of order 1 to 7 and no
// outputs.
func (c *Codec) Configure(numIn, numOut int) error {
	if numIn < 4 || !ambi.IsComplete(numIn) || ambi.OrderOf(numIn) > ambi.MaxOrder {
		return fmt.Errorf("%w: %d inputs", ErrLayout, numIn)
	}
	if numOut != 0 {
		return fmt.Errorf("%w: %d outputs, want 0", ErrLayout, numOut)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.numIn = numIn
	return nil
}

// SetNorm selects the input normalization. It takes effect at the next
// expensive initialization.
func (c *Codec) SetNorm(n ambi.Norm) error {
	if n < ambi.N3D || n > ambi.FuMa {
		return fmt.Errorf("%w: %d", ambi.ErrUnknownNorm, n)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.norm = n
	return nil
}

// SetAveraging sets the smoothing coefficient in [0, 1); 0 tracks each
// frame. It applies live.
func (c *Codec) SetAveraging(v float64) error {
	if err := frame.CheckRange("averaging", v, 0, 0.999); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	next := *c.params.Load()
	next.avg = v
	c.params.Store(&next)
	return nil
}

// SetEnergyGate limits estimation to frames whose omnidirectional energy,
// in dBFS, lies in [minDB, maxDB]. It applies live.
func (c *Codec) SetEnergyGate(minDB, maxDB float64) error {
	if err := frame.CheckRange("min_db", minDB, floorDB, ceilDB); err != nil {
		return err
	}
	if err := frame.CheckRange("max_db", maxDB, floorDB, ceilDB); err != nil {
		return err
	}
	if minDB >= maxDB {
		return fmt.Errorf("%w: %g >= %g", ErrGate, minDB, maxDB)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := *c.params.Load()
	next.minDB, next.maxDB = minDB, maxDB
	c.params.Store(&next)
	return nil
}

// EnergyGate returns the current gate in dBFS.
func (c *Codec) EnergyGate() (minDB, maxDB float64) {
	p := c.params.Load()
	return p.minDB, p.maxDB
}

func (c *Codec) InitializeExpensiveState() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.numIn == 0 {
		return fmt.Errorf("%w: not configured", ErrLayout)
	}

	// Only the first order channels contribute, so the conversion is built
	// for order 1 whatever the stream carries.
	m, err := ambi.NewInputMap(1, ambi.OrderACN, c.norm)
	if err != nil {
		return err
	}
	st := &state{numIn: c.numIn}
	for k := range st.gain {
		st.gain[k] = float64(m.Gain[k])
	}
	c.state.Store(st)
	return nil
}

func (c *Codec) Process(in, _ [][]float32, numIn, _, frameLength int) {
	st := c.state.Load()
	if st == nil || st.numIn != numIn || frameLength == 0 {
		return
	}
	p := c.params.Load()

	w, y, z, x := in[0][:frameLength], in[1][:frameLength], in[2][:frameLength], in[3][:frameLength]
	var energy float64
	var i [3]float64
	for t := range w {
		wv := float64(w[t]) * st.gain[0]
		energy += wv * wv
		i[0] += wv * float64(x[t]) * st.gain[3]
		i[1] += wv * float64(y[t]) * st.gain[1]
		i[2] += wv * float64(z[t]) * st.gain[2]
	}
	energy /= float64(frameLength)

	db := math.Inf(-1)
	if energy > 0 {
		db = 10 * math.Log10(energy)
	}
	if db < p.minDB || db > p.maxDB {
		return
	}

	for k := range st.ix {
		st.ix[k] = p.avg*st.ix[k] + (1-p.avg)*i[k]/float64(frameLength)
	}
	st.frames++
	d := ambi.FromVector(st.ix)

	c.seq.Add(1)
	c.az.Store(math.Float64bits(d.Azimuth))
	c.el.Store(math.Float64bits(d.Elevation))
	c.energy.Store(math.Float64bits(db))
	c.counted.Store(st.frames)
	c.seq.Add(1)
}

// Latest returns the most recent estimate. It never blocks the processing
// goroutine.
func (c *Codec) Latest() Estimate {
	for {
		s := c.seq.Load()
		if s&1 == 1 {
			runtime.Gosched()
			continue
		}
		e := Estimate{
			Azimuth:   math.Float64frombits(c.az.Load()),
			Elevation: math.Float64frombits(c.el.Load()),
			Energy:    math.Float64frombits(c.energy.Load()),
			Frames:    c.counted.Load(),
		}
		if c.seq.Load() == s {
			return e
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
