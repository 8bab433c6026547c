// SPDX-License-Identifier: EPL-2.0

package audio

import (
	"errors"
	"io"
	"math"
	"testing"

	"github.com/ik5/framebridge/internal/audiotest"
)

func TestMonoMixer_Mix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		channels int
		value    func(ch int) float32
		want     float32
	}{
		{name: "mono passthrough", channels: 1, value: func(int) float32 { return 0.4 }, want: 0.4},
		{name: "stereo", channels: 2, value: func(ch int) float32 { return []float32{0.2, 0.6}[ch] }, want: 0.4},
		{name: "quad", channels: 4, value: func(ch int) float32 { return float32(ch) * 0.1 }, want: 0.15},
		{name: "ambisonic third order", channels: 16, value: func(ch int) float32 { return float32(ch%2) }, want: 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := audiotest.NewMockSource(8000, tt.channels, 500, func(_ int, ch int) float32 {
				return tt.value(ch)
			})
			mixer := NewMonoMixer(src)
			if mixer.Channels() != 1 {
				t.Fatalf("Channels() = %d, want 1", mixer.Channels())
			}

			got := drain(t, mixer, 64)
			if len(got) != 500 {
				t.Fatalf("len = %d, want 500", len(got))
			}
			for i, v := range got {
				if math.Abs(float64(v-tt.want)) > 1e-6 {
					t.Fatalf("got[%d] = %v, want %v", i, v, tt.want)
				}
			}
		})
	}
}

func TestMonoMixer_EmptyBuffer(t *testing.T) {
	t.Parallel()

	mixer := NewMonoMixer(audiotest.NewSilentSource(8000, 2, 10))

	n, err := mixer.ReadSamples(nil)
	if n != 0 || err != nil {
		t.Errorf("ReadSamples(nil) = (%d, %v), want (0, nil)", n, err)
	}
}

func TestMonoMixer_EOF(t *testing.T) {
	t.Parallel()

	mixer := NewMonoMixer(audiotest.NewSilentSource(8000, 2, 10))
	_ = drain(t, mixer, 4)

	if n, err := mixer.ReadSamples(make([]float32, 4)); n != 0 || !errors.Is(err, io.EOF) {
		t.Errorf("after EOF ReadSamples() = (%d, %v)", n, err)
	}
}

func TestMonoMixer_GrowsScratch(t *testing.T) {
	t.Parallel()

	mixer := NewMonoMixer(audiotest.NewConstantSource(8000, 8, 10000, 0.25))

	buf := make([]float32, 2048)
	n, err := mixer.ReadSamples(buf)
	if err != nil {
		t.Fatalf("ReadSamples() error = %v", err)
	}
	if n != 2048 {
		t.Errorf("n = %d, want 2048", n)
	}
}

func TestMonoMixer_PreservesMetadata(t *testing.T) {
	t.Parallel()

	mixer := NewMonoMixer(audiotest.NewSilentSource(22050, 2, 10))
	if mixer.SampleRate() != 22050 {
		t.Errorf("SampleRate() = %d, want 22050", mixer.SampleRate())
	}
	if err := mixer.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func BenchmarkMonoMixer_StereoToMono(b *testing.B) {
	src := audiotest.NewSineSource(44100, 2, 1<<30, 440)
	mixer := NewMonoMixer(src)
	buf := make([]float32, 4096)
	b.ReportAllocs()

	for b.Loop() {
		_, _ = mixer.ReadSamples(buf)
	}
}
