// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"fmt"
	"io"
)

// Deinterleave splits frames*channels interleaved samples of src into the
// channel slices of dst and returns the number of frames copied. Each dst
// slice must hold at least that many frames.
func Deinterleave(dst [][]float32, src []float32) (int, error) {
	channels := len(dst)
	if channels == 0 {
		return 0, ErrChannelCount
	}
	if len(src)%channels != 0 {
		return 0, ErrInvalidDstSize
	}

	frames := len(src) / channels
	for c, ch := range dst {
		if len(ch) < frames {
			return 0, fmt.Errorf("channel %d holds %d frames, need %d", c, len(ch), frames)
		}
		for f := range frames {
			ch[f] = src[f*channels+c]
		}
	}

	return frames, nil
}

// Interleave writes the first frames samples of every channel in src into
// dst, which needs room for frames*len(src) values.
func Interleave(dst []float32, src [][]float32, frames int) error {
	channels := len(src)
	if channels == 0 {
		return ErrChannelCount
	}
	if len(dst) < frames*channels {
		return fmt.Errorf("%w: have %d, need %d", ErrInvalidDstSize, len(dst), frames*channels)
	}

	for c, ch := range src {
		for f := range frames {
			dst[f*channels+c] = ch[f]
		}
	}

	return nil
}

// ReadAll drains src into one slice per channel.
func ReadAll(src Source) ([][]float32, error) {
	channels := src.Channels()
	if channels <= 0 {
		return nil, ErrChannelCount
	}

	size := src.BufSize()
	if size <= 0 {
		size = 4096
	}
	size -= size % channels
	if size == 0 {
		size = channels
	}

	out := make([][]float32, channels)
	buf := make([]float32, size)
	for {
		n, err := src.ReadSamples(buf)
		n -= n % channels
		for f := range n / channels {
			for c := range channels {
				out[c] = append(out[c], buf[f*channels+c])
			}
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
	}
}

// PlanarSource serves per-channel slices as an interleaved Source.
type PlanarSource struct {
	sampleRate int
	data       [][]float32
	frames     int
	pos        int
}

// NewPlanarSource wraps data, which must hold equal-length channels.
func NewPlanarSource(sampleRate int, data [][]float32) *PlanarSource {
	frames := 0
	if len(data) > 0 {
		frames = len(data[0])
		for _, ch := range data[1:] {
			frames = min(frames, len(ch))
		}
	}

	return &PlanarSource{sampleRate: sampleRate, data: data, frames: frames}
}

func (p *PlanarSource) SampleRate() int { return p.sampleRate }
func (p *PlanarSource) Channels() int   { return len(p.data) }
func (p *PlanarSource) BufSize() int    { return 1024 * max(len(p.data), 1) }
func (p *PlanarSource) Close() error    { return nil }

func (p *PlanarSource) ReadSamples(dst []float32) (int, error) {
	channels := len(p.data)
	if channels == 0 || len(dst)%channels != 0 {
		return 0, ErrInvalidDstSize
	}
	if p.pos >= p.frames {
		return 0, io.EOF
	}

	frames := min(len(dst)/channels, p.frames-p.pos)
	for f := range frames {
		for c, ch := range p.data {
			dst[f*channels+c] = ch[p.pos+f]
		}
	}
	p.pos += frames

	return frames * channels, nil
}
