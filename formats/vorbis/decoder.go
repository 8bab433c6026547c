// SPDX-License-Identifier: EPL-2.0

package vorbis

import (
	"errors"
	"fmt"
	"io"

	"github.com/ik5/framebridge/audio"
	"github.com/jfreymuth/oggvorbis"
)

var ErrNoChannels = errors.New("vorbis stream has no channels")

// oggReader is the part of oggvorbis.Reader the source needs. Read fills
// interleaved values and returns how many it wrote.
type oggReader interface {
	SampleRate() int
	Channels() int
	Length() int64
	Read([]float32) (int, error)
}

type source struct {
	dec        oggReader
	sampleRate int
	channels   int
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int    { return 1024 * s.channels }

// Frames is the stream length in frames, 0 when unknown.
func (s *source) Frames() int64 { return s.dec.Length() }

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if len(dst)%s.channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}

	n, err := s.dec.Read(dst)
	if err != nil && err != io.EOF {
		return n, fmt.Errorf("decoding vorbis: %w", err)
	}

	return n, err
}

type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening vorbis stream: %w", err)
	}
	if dec.Channels() < 1 {
		return nil, ErrNoChannels
	}

	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		channels:   dec.Channels(),
	}, nil
}
