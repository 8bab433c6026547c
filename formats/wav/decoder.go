// SPDX-License-Identifier: EPL-2.0

package wav

import (
	"bytes"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/ik5/framebridge/audio"
	"github.com/ik5/framebridge/utils"
)

const pcmFormat = 1

// MaxChannels bounds the channel count accepted from a file header.
const MaxChannels = 64

// pcmReader is the part of wav.Decoder the source needs.
type pcmReader interface {
	PCMBuffer(buf *goaudio.IntBuffer) (int, error)
}

type source struct {
	dec        pcmReader
	sampleRate int
	channels   int
	bitDepth   int
	frames     int64
	intBuf     *goaudio.IntBuffer
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return s.channels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int    { return 1024 * s.channels }

// Frames is the frame count announced by the data chunk.
func (s *source) Frames() int64 { return s.frames }

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if len(dst)%s.channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}

	if s.intBuf == nil || cap(s.intBuf.Data) < len(dst) {
		s.intBuf = &goaudio.IntBuffer{
			Data:   make([]int, len(dst)),
			Format: &goaudio.Format{SampleRate: s.sampleRate, NumChannels: s.channels},
		}
	}
	s.intBuf.Data = s.intBuf.Data[:len(dst)]

	n, err := s.dec.PCMBuffer(s.intBuf)
	if err != nil {
		return 0, fmt.Errorf("reading wav pcm: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}

	for i, v := range s.intBuf.Data[:n] {
		if s.bitDepth == 8 {
			// 8-bit WAV is unsigned.
			v -= 128
		}
		dst[i] = utils.PCMToFloat32(v, s.bitDepth)
	}

	return n, nil
}

// Decoder reads integer PCM WAV files of 8, 16, 24 or 32 bits with up to
// MaxChannels channels.
type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("reading wav data: %w", err)
		}
		rs = bytes.NewReader(data)
	}

	dec := wav.NewDecoder(rs)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, ErrNotWavFile
	}
	if dec.WavAudioFormat != pcmFormat {
		return nil, fmt.Errorf("%w: format tag %d", ErrUnsupportedWavFormat, dec.WavAudioFormat)
	}

	bitDepth := int(dec.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedBitDepth, bitDepth)
	}

	channels := int(dec.NumChans)
	if channels < 1 || channels > MaxChannels {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedWavChannel, channels)
	}

	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("seeking to wav pcm: %w", err)
	}

	return &source{
		dec:        dec,
		sampleRate: int(dec.SampleRate),
		channels:   channels,
		bitDepth:   bitDepth,
		frames:     dec.PCMLen() / int64(channels*bitDepth/8),
	}, nil
}
