// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/ik5/framebridge/utils"
)

var ErrWriterClosed = errors.New("wav writer closed")

// Writer encodes float32 audio as integer PCM WAV. The header is finalized
// on Close, so the destination must be seekable.
type Writer struct {
	enc      *wav.Encoder
	buf      *goaudio.IntBuffer
	channels int
	bitDepth int
	frames   int64
	closed   bool
}

// NewWriter prepares a WAV stream of the given layout. bitDepth must be 16,
// 24 or 32.
func NewWriter(w io.WriteSeeker, sampleRate, channels, bitDepth int) (*Writer, error) {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}
	if channels < 1 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedWavChannel, channels)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate %d", sampleRate)
	}

	return &Writer{
		enc: wav.NewEncoder(w, sampleRate, bitDepth, channels, pcmFormat),
		buf: &goaudio.IntBuffer{
			Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
			SourceBitDepth: bitDepth,
		},
		channels: channels,
		bitDepth: bitDepth,
	}, nil
}

// WriteInterleaved appends whole frames of interleaved samples.
func (w *Writer) WriteInterleaved(samples []float32) error {
	if w.closed {
		return ErrWriterClosed
	}
	if len(samples)%w.channels != 0 {
		return fmt.Errorf("%d samples is not a whole number of %d-channel frames", len(samples), w.channels)
	}

	w.grow(len(samples))
	for i, x := range samples {
		w.buf.Data[i] = utils.Float32ToPCM(x, w.bitDepth)
	}

	return w.flush(len(samples) / w.channels)
}

// WritePlanar appends the first frames samples of every channel.
func (w *Writer) WritePlanar(data [][]float32, frames int) error {
	if w.closed {
		return ErrWriterClosed
	}
	if len(data) != w.channels {
		return fmt.Errorf("got %d channels, writer has %d", len(data), w.channels)
	}

	w.grow(frames * w.channels)
	for c, ch := range data {
		if len(ch) < frames {
			return fmt.Errorf("channel %d holds %d frames, need %d", c, len(ch), frames)
		}
		for f, x := range ch[:frames] {
			w.buf.Data[f*w.channels+c] = utils.Float32ToPCM(x, w.bitDepth)
		}
	}

	return w.flush(frames)
}

func (w *Writer) grow(n int) {
	if cap(w.buf.Data) < n {
		w.buf.Data = make([]int, n)
	}
	w.buf.Data = w.buf.Data[:n]
}

func (w *Writer) flush(frames int) error {
	if frames == 0 {
		return nil
	}
	if err := w.enc.Write(w.buf); err != nil {
		return fmt.Errorf("writing wav pcm: %w", err)
	}
	w.frames += int64(frames)

	return nil
}

// Frames reports how many frames have been written.
func (w *Writer) Frames() int64 { return w.frames }

// Close finalizes the header. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("finalizing wav: %w", err)
	}

	return nil
}
