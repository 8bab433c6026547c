// SPDX-License-Identifier: EPL-2.0

package asset

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ik5/framebridge/audio"
	"github.com/ik5/framebridge/codec/ambi"
)

// MaxTaps bounds the length of a loaded impulse response.
const MaxTaps = 512

// HRIRSet holds one impulse response pair per measured direction.
type HRIRSet struct {
	SampleRate int
	Directions []ambi.Direction
	Left       [][]float32
	Right      [][]float32
}

// Taps is the impulse response length.
func (h *HRIRSet) Taps() int {
	if len(h.Left) == 0 {
		return 0
	}
	return len(h.Left[0])
}

// Manifest describes an HRIR file: an audio file with a left and a right
// channel per direction, in the listed order.
//
//	file: kemar.wav
//	directions:
//	  - [0, 0]
//	  - [30, 0]
type Manifest struct {
	File       string       `yaml:"file"`
	Directions [][2]float64 `yaml:"directions"`
}

// ReadManifest parses the manifest at path. The audio file is resolved
// relative to the manifest.
func ReadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrManifest, path, err)
	}
	defer f.Close()

	var m Manifest
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrManifest, path, err)
	}
	if m.File == "" {
		return nil, fmt.Errorf("%w: %s: file is required", ErrManifest, path)
	}
	if len(m.Directions) == 0 {
		return nil, fmt.Errorf("%w: %s: no directions", ErrManifest, path)
	}
	for i, d := range m.Directions {
		if d[1] < -90 || d[1] > 90 {
			return nil, fmt.Errorf("%w: %s: directions[%d] elevation %g outside [-90, 90]", ErrManifest, path, i, d[1])
		}
	}
	if !filepath.IsAbs(m.File) {
		m.File = filepath.Join(filepath.Dir(path), m.File)
	}

	return &m, nil
}

// LoadHRIRs reads the manifest at path and its audio file, resampled to
// rate. Responses longer than MaxTaps are truncated.
func LoadHRIRs(reg *audio.Registry, path string, rate int) (*HRIRSet, error) {
	if err := Exists(path); err != nil {
		return nil, err
	}
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}

	set, err := Load(reg, m.File, rate)
	if err != nil {
		return nil, err
	}
	if len(set.Channels) != 2*len(m.Directions) {
		return nil, fmt.Errorf("%w: %d channels for %d directions", ErrChannelLayout, len(set.Channels), len(m.Directions))
	}

	taps := min(set.Frames(), MaxTaps)
	h := &HRIRSet{
		SampleRate: set.SampleRate,
		Directions: make([]ambi.Direction, len(m.Directions)),
		Left:       make([][]float32, len(m.Directions)),
		Right:      make([][]float32, len(m.Directions)),
	}
	for i, d := range m.Directions {
		h.Directions[i] = ambi.Direction{Azimuth: ambi.WrapAzimuth(d[0]), Elevation: d[1]}
		h.Left[i] = set.Channels[2*i][:taps:taps]
		h.Right[i] = set.Channels[2*i+1][:taps:taps]
	}

	return h, nil
}

// headRadius is the spherical head radius in meters.
const headRadius = 0.0875

const speedOfSound = 343.0

// DefaultHRIRs synthesizes a spherical-head HRIR set at rate over n
// directions, for use when no measured set is configured. Each response is
// a fractionally delayed impulse following the Woodworth interaural delay,
// with a one-pole head shadow on the far ear.
func DefaultHRIRs(rate, n int) *HRIRSet {
	const taps = 64

	dirs := ambi.Fibonacci(n)
	h := &HRIRSet{
		SampleRate: rate,
		Directions: dirs,
		Left:       make([][]float32, n),
		Right:      make([][]float32, n),
	}

	for i, d := range dirs {
		v := d.Vector()
		// Lateral angle: positive toward the left ear.
		lateral := math.Asin(max(-1, min(1, v[1])))
		itd := headRadius / speedOfSound * (lateral + math.Sin(lateral))

		base := 8.0
		delayL := base + math.Max(0, -itd)*float64(rate)
		delayR := base + math.Max(0, itd)*float64(rate)

		shadowL := 0.5 * (1 + v[1])
		shadowR := 0.5 * (1 - v[1])

		h.Left[i] = shadowedImpulse(taps, delayL, 0.35+0.65*shadowL, shadowL)
		h.Right[i] = shadowedImpulse(taps, delayR, 0.35+0.65*shadowR, shadowR)
	}

	return h
}

// shadowedImpulse is a linearly interpolated impulse at delay, low-passed
// by a one-pole filter whose cutoff falls as exposure drops.
func shadowedImpulse(taps int, delay, gain, exposure float64) []float32 {
	ir := make([]float64, taps)
	i := int(delay)
	frac := delay - float64(i)
	if i < taps {
		ir[i] = gain * (1 - frac)
	}
	if i+1 < taps {
		ir[i+1] = gain * frac
	}

	a := 0.2 + 0.8*exposure
	state := 0.0
	out := make([]float32, taps)
	for t, x := range ir {
		state += a * (x - state)
		out[t] = float32(state)
	}
	return out
}
