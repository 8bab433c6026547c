// SPDX-License-Identifier: EPL-2.0

package aiff

import (
	"bytes"
	"errors"
	"io"
	"testing"

	goaudio "github.com/go-audio/audio"
)

type mockAiffReader struct {
	samples []int
	offset  int
	err     error
}

func (m *mockAiffReader) PCMBuffer(buf *goaudio.IntBuffer) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	if m.offset >= len(m.samples) {
		return 0, io.EOF
	}

	n := copy(buf.Data, m.samples[m.offset:])
	m.offset += n
	if m.offset >= len(m.samples) {
		return n, io.EOF
	}

	return n, nil
}

func newTestSource(bitDepth, channels int, samples []int) *source {
	return &source{
		dec:        &mockAiffReader{samples: samples},
		sampleRate: 44100,
		channels:   channels,
		bitDepth:   bitDepth,
	}
}

func TestDecoder_InvalidInput(t *testing.T) {
	t.Parallel()

	for _, data := range [][]byte{[]byte("This is not AIFF data"), {}} {
		if _, err := (Decoder{}).Decode(bytes.NewReader(data)); !errors.Is(err, ErrNotAiffFile) {
			t.Errorf("Decode(%q) error = %v, want ErrNotAiffFile", data, err)
		}
	}
}

func TestSource_ReadSamples_BitDepths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		bitDepth int
		samples  []int
		want     []float32
	}{
		{name: "8 bit", bitDepth: 8, samples: []int{0, 64, -128}, want: []float32{0, 0.5, -1}},
		{name: "16 bit", bitDepth: 16, samples: []int{0, 16384, -16384, -32768}, want: []float32{0, 0.5, -0.5, -1}},
		{name: "24 bit", bitDepth: 24, samples: []int{4194304, -8388608}, want: []float32{0.5, -1}},
		{name: "32 bit", bitDepth: 32, samples: []int{1 << 30, -1 << 31}, want: []float32{0.5, -1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := newTestSource(tt.bitDepth, 1, tt.samples)
			dst := make([]float32, 8)
			n, err := src.ReadSamples(dst)
			if err != nil && !errors.Is(err, io.EOF) {
				t.Fatalf("ReadSamples() error = %v", err)
			}
			if n != len(tt.want) {
				t.Fatalf("n = %d, want %d", n, len(tt.want))
			}
			for i, w := range tt.want {
				if dst[i] != w {
					t.Errorf("dst[%d] = %v, want %v", i, dst[i], w)
				}
			}
		})
	}
}

func TestSource_ReadSamples_EOF(t *testing.T) {
	t.Parallel()

	src := newTestSource(16, 1, []int{100, 200})
	dst := make([]float32, 2)

	if n, _ := src.ReadSamples(dst); n != 2 {
		t.Fatalf("first read n = %d, want 2", n)
	}
	if n, err := src.ReadSamples(dst); n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("second read = (%d, %v), want (0, EOF)", n, err)
	}
}

func TestSource_ReadSamples_Error(t *testing.T) {
	t.Parallel()

	src := newTestSource(16, 2, nil)
	src.dec = &mockAiffReader{err: io.ErrUnexpectedEOF}

	_, err := src.ReadSamples(make([]float32, 4))
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("ReadSamples() error = %v, want wrapped ErrUnexpectedEOF", err)
	}
}

func TestSource_Metadata(t *testing.T) {
	t.Parallel()

	src := newTestSource(16, 2, make([]int, 10))
	if src.SampleRate() != 44100 || src.Channels() != 2 {
		t.Errorf("layout = %d x %d", src.SampleRate(), src.Channels())
	}
	if src.BufSize() != 4096 {
		t.Errorf("BufSize() before first read = %d, want 4096", src.BufSize())
	}
	if n, err := src.ReadSamples(nil); n != 0 || err != nil {
		t.Errorf("ReadSamples(nil) = (%d, %v)", n, err)
	}
}

func BenchmarkSource_ReadSamples(b *testing.B) {
	samples := make([]int, 1<<16)
	buf := make([]float32, 4096)
	b.ReportAllocs()

	for b.Loop() {
		src := newTestSource(24, 2, samples)
		for {
			if _, err := src.ReadSamples(buf); err != nil {
				break
			}
		}
	}
}
