// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"io"
	"math"
)

// MockSource generates interleaved samples from a waveform function. It
// satisfies audio.Source.
type MockSource struct {
	sampleRate   int
	channels     int
	totalSamples int // per channel
	generated    int
	waveform     func(sample int, channel int) float32
}

func NewMockSource(sampleRate, channels, totalSamples int, waveform func(sample int, channel int) float32) *MockSource {
	return &MockSource{
		sampleRate:   sampleRate,
		channels:     channels,
		totalSamples: totalSamples,
		waveform:     waveform,
	}
}

func NewSilentSource(sampleRate, channels, totalSamples int) *MockSource {
	return NewMockSource(sampleRate, channels, totalSamples, func(int, int) float32 { return 0 })
}

func NewSineSource(sampleRate, channels, totalSamples int, frequency float64) *MockSource {
	return NewMockSource(sampleRate, channels, totalSamples, func(sample int, _ int) float32 {
		t := float64(sample) / float64(sampleRate)
		return float32(math.Sin(2 * math.Pi * frequency * t))
	})
}

func NewConstantSource(sampleRate, channels, totalSamples int, value float32) *MockSource {
	return NewMockSource(sampleRate, channels, totalSamples, func(int, int) float32 { return value })
}

// NewRampSource yields ChannelRamp(channel, sample) for every sample.
func NewRampSource(sampleRate, channels, totalSamples int) *MockSource {
	return NewMockSource(sampleRate, channels, totalSamples, func(sample int, channel int) float32 {
		return ChannelRamp(channel, sample)
	})
}

func (m *MockSource) SampleRate() int { return m.sampleRate }
func (m *MockSource) Channels() int   { return m.channels }
func (m *MockSource) BufSize() int    { return 4096 }
func (m *MockSource) Close() error    { return nil }

// Reset rewinds the generator.
func (m *MockSource) Reset() {
	m.generated = 0
}

func (m *MockSource) ReadSamples(dst []float32) (int, error) {
	if m.generated >= m.totalSamples {
		return 0, io.EOF
	}

	frames := min(len(dst)/m.channels, m.totalSamples-m.generated)
	for f := range frames {
		for ch := range m.channels {
			dst[f*m.channels+ch] = m.waveform(m.generated+f, ch)
		}
	}
	m.generated += frames

	if m.generated >= m.totalSamples {
		return frames * m.channels, io.EOF
	}

	return frames * m.channels, nil
}

// StalledSource never produces data and never ends.
type StalledSource struct {
	Rate  int
	Chans int
}

func (s StalledSource) SampleRate() int                  { return s.Rate }
func (s StalledSource) Channels() int                    { return s.Chans }
func (s StalledSource) BufSize() int                     { return 64 }
func (s StalledSource) Close() error                     { return nil }
func (s StalledSource) ReadSamples([]float32) (int, error) { return 0, nil }

// RampValue is a non-zero, index-dependent sample value in (0, 1].
func RampValue(i int) float32 {
	return float32(i%4096+1) / 4096
}

// ChannelRamp scales RampValue so every channel carries distinct values.
func ChannelRamp(channel, i int) float32 {
	return float32(channel+1) * RampValue(i) / 64
}

// FillRamp writes ChannelRamp values for sample indices start.. into every
// channel of dst.
func FillRamp(dst [][]float32, start int) {
	for c, ch := range dst {
		for i := range ch {
			ch[i] = ChannelRamp(c, start+i)
		}
	}
}

// Planar allocates channels slices of n zeroed samples.
func Planar(channels, n int) [][]float32 {
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, n)
	}

	return out
}
