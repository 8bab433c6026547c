// SPDX-License-Identifier: EPL-2.0

package mp3

import (
	"encoding/binary"
	"fmt"
	"io"

	gomp3 "github.com/hajimehoshi/go-mp3"
	"github.com/ik5/framebridge/audio"
	"github.com/ik5/framebridge/utils"
)

// go-mp3 always yields 16-bit little-endian stereo.
const (
	channels      = 2
	bytesPerFrame = 4
)

// mp3Reader is the part of gomp3.Decoder the source needs.
type mp3Reader interface {
	Read([]byte) (int, error)
	SampleRate() int
	Length() int64
}

type source struct {
	dec        mp3Reader
	sampleRate int
	buf        []byte
	// carry holds bytes of a frame split across two reads.
	carry  [bytesPerFrame]byte
	carryN int
}

func (s *source) SampleRate() int { return s.sampleRate }
func (s *source) Channels() int   { return channels }
func (s *source) Close() error    { return nil }
func (s *source) BufSize() int    { return cap(s.buf) / 2 } // samples, not bytes

// Frames is the decoded length in frames, or -1 when the stream is not
// seekable and the length is unknown.
func (s *source) Frames() int64 {
	n := s.dec.Length()
	if n < 0 {
		return -1
	}
	return n / bytesPerFrame
}

func (s *source) ReadSamples(dst []float32) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if len(dst)%channels != 0 {
		return 0, audio.ErrInvalidDstSize
	}

	need := len(dst) * 2
	if cap(s.buf) < need {
		s.buf = make([]byte, need)
	}
	s.buf = s.buf[:need]

	copy(s.buf, s.carry[:s.carryN])
	n, err := s.dec.Read(s.buf[s.carryN:])
	n += s.carryN
	s.carryN = 0

	whole := n - n%bytesPerFrame
	if rest := n - whole; rest > 0 && err == nil {
		s.carryN = copy(s.carry[:], s.buf[whole:n])
	}

	for i := range whole / 2 {
		v := int16(binary.LittleEndian.Uint16(s.buf[2*i:]))
		dst[i] = utils.PCMToFloat32(int(v), 16)
	}

	if err != nil && err != io.EOF {
		return whole / 2, fmt.Errorf("decoding mp3: %w", err)
	}

	return whole / 2, err
}

type Decoder struct{}

func (Decoder) Decode(r io.Reader) (audio.Source, error) {
	dec, err := gomp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("opening mp3 stream: %w", err)
	}

	return &source{
		dec:        dec,
		sampleRate: dec.SampleRate(),
		buf:        make([]byte, 8192),
	}, nil
}
