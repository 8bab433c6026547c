// SPDX-License-Identifier: EPL-2.0

package node

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ik5/framebridge/asset"
	"github.com/ik5/framebridge/codec/ambi"
	"github.com/ik5/framebridge/codec/ambidec"
	"github.com/ik5/framebridge/codec/binaural"
	"github.com/ik5/framebridge/frame"
	"github.com/ik5/framebridge/formats"
	"github.com/ik5/framebridge/internal/config"
)

func testEnv() Env {
	return Env{
		SampleRate: 48000,
		BlockSize:  64,
		Logger:     slog.New(slog.DiscardHandler),
		Assets:     asset.NewLoader(formats.NewRegistry()),
	}
}

func awaitReady(t *testing.T, n Node) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.Processor().AwaitReady(ctx); err != nil {
		t.Fatalf("%s AwaitReady() = %v", n.Name(), err)
	}
}

func closeOnCleanup(t *testing.T, n Node) {
	t.Cleanup(func() {
		if err := n.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	})
}

func planar(ch, n int) [][]float32 {
	b := make([][]float32, ch)
	for i := range b {
		b[i] = make([]float32, n)
	}
	return b
}

// planeWave fills one block of a sine plane wave from d, starting at
// sample offset.
func planeWave(dst [][]float32, order int, d ambi.Direction, offset int) {
	y := make([]float64, ambi.Channels(order))
	ambi.Basis(order, d.Azimuth, d.Elevation, y)
	for c := range dst {
		for t := range dst[c] {
			dst[c][t] = float32(0.5 * math.Sin(2*math.Pi*float64(offset+t)/48) * y[c])
		}
	}
}

func energy(x []float32) float64 {
	var e float64
	for _, v := range x {
		e += float64(v) * float64(v)
	}
	return e
}

func TestAmbisonicHelpers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		nch      int
		order    int
		complete bool
	}{
		{0, -1, false},
		{1, 0, false},
		{3, 0, false},
		{4, 1, true},
		{8, 1, false},
		{9, 2, true},
		{16, 3, true},
		{64, 7, true},
	}
	for _, tt := range tests {
		if got := AmbisonicOrder(tt.nch); got != tt.order {
			t.Errorf("AmbisonicOrder(%d) = %d, want %d", tt.nch, got, tt.order)
		}
		if got := IsAmbisonicLayout(tt.nch); got != tt.complete {
			t.Errorf("IsAmbisonicLayout(%d) = %v, want %v", tt.nch, got, tt.complete)
		}
	}
	for order := range 8 {
		if got, want := AmbisonicChannels(order), ambi.Channels(order); got != want {
			t.Errorf("AmbisonicChannels(%d) = %d, want %d", order, got, want)
		}
	}
}

func TestRegistry_Default(t *testing.T) {
	t.Parallel()

	kinds := Default.Kinds()
	want := []config.Kind{config.KindBinaural, config.KindDecoder, config.KindDOA, config.KindPanner}
	if len(kinds) != len(want) {
		t.Fatalf("len(Kinds()) = %d, want %d", len(kinds), len(want))
	}
	for i, info := range kinds {
		if info.Kind != want[i] {
			t.Errorf("Kinds()[%d] = %q, want %q", i, info.Kind, want[i])
		}
		if info.FrameSize <= 0 || info.Channels == "" || info.New == nil {
			t.Errorf("kind %q info incomplete: %+v", info.Kind, info)
		}
	}

	if _, err := Default.New(config.NodeConfig{Name: "x", Kind: "mixer"}, testEnv()); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("New(mixer) = %v, want ErrUnknownKind", err)
	}

	r := NewRegistry()
	r.Register(Info{Kind: config.KindDOA, FrameSize: 1})
	if info, ok := r.Get(config.KindDOA); !ok || info.FrameSize != 1 {
		t.Errorf("Get(doa) = %+v, %v", info, ok)
	}
	if _, ok := r.Get(config.KindPanner); ok {
		t.Error("Get(panner) found in an empty registry")
	}
}

func TestBinaural_RendersAndRotatesLive(t *testing.T) {
	t.Parallel()

	n, err := NewBinaural("ears", &config.BinauralConfig{Order: 1, Method: "lsdiff"}, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	closeOnCleanup(t, n)

	if _, err := n.Reconfigure(9); !errors.Is(err, ErrLayout) {
		t.Errorf("Reconfigure(9) at order 1 = %v, want ErrLayout", err)
	}
	l, err := n.Reconfigure(4)
	if err != nil {
		t.Fatal(err)
	}
	if l.Outputs != 2 || l.BlockSize != 64 {
		t.Errorf("layout = %+v, want 2 outputs of 64", l)
	}
	awaitReady(t, n)

	if n.HRIRs() == nil {
		t.Error("HRIRs() = nil after initialization")
	}

	render := func() (left, right float64) {
		in, out := planar(4, 64), planar(2, 64)
		for b := range 8 {
			planeWave(in, 1, ambi.Direction{}, b*64)
			if err := n.Processor().Process(in, out); err != nil {
				t.Fatal(err)
			}
			if b >= 4 {
				left += energy(out[0])
				right += energy(out[1])
			}
		}
		return left, right
	}

	if err := n.SetRotation(true); err != nil {
		t.Fatal(err)
	}
	if err := n.SetOrientation(ambi.Orientation{Yaw: 90}); err != nil {
		t.Fatal(err)
	}
	if got := n.Processor().Status(); got != frame.StatusReady {
		t.Fatalf("Status() after a live setting = %v, want ready", got)
	}
	if left, right := render(); left <= right {
		t.Errorf("yaw 90 of a front source: left %.4f not above right %.4f", left, right)
	}

	if err := n.SetOrientation(ambi.Orientation{Yaw: 200}); !errors.Is(err, frame.ErrOutOfRange) {
		t.Errorf("SetOrientation(yaw 200) = %v, want ErrOutOfRange", err)
	}
	if got := n.Orientation().Yaw; got != 90 {
		t.Errorf("Orientation().Yaw after a rejected change = %v, want 90", got)
	}
}

func TestBinaural_StructuralSettingReinitializes(t *testing.T) {
	t.Parallel()

	n, err := NewBinaural("ears", nil, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	closeOnCleanup(t, n)

	if _, err := n.Reconfigure(16); err != nil {
		t.Fatal(err)
	}
	awaitReady(t, n)

	if err := n.SetMethod(binaural.Method(42)); !errors.Is(err, binaural.ErrUnknownMethod) {
		t.Errorf("SetMethod(42) = %v", err)
	}
	if got := n.Processor().Status(); got != frame.StatusReady {
		t.Errorf("Status() after a rejected setting = %v, want ready", got)
	}

	if err := n.SetMethod(binaural.MagLS); err != nil {
		t.Fatal(err)
	}
	awaitReady(t, n)
	if err := n.SetPreproc(binaural.PreprocAll); err != nil {
		t.Fatal(err)
	}
	awaitReady(t, n)

	in, out := planar(16, 64), planar(2, 64)
	var e float64
	for b := range 6 {
		planeWave(in, 3, ambi.Direction{Azimuth: 45}, b*64)
		if err := n.Processor().Process(in, out); err != nil {
			t.Fatal(err)
		}
		e += energy(out[0]) + energy(out[1])
	}
	if e == 0 {
		t.Error("no output after reinitialization")
	}
}

func TestBinaural_HRIRFile(t *testing.T) {
	t.Parallel()

	n, err := NewBinaural("ears", nil, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	closeOnCleanup(t, n)
	if _, err := n.Reconfigure(4); err != nil {
		t.Fatal(err)
	}
	awaitReady(t, n)

	dir := t.TempDir()
	if err := n.SetHRIRFile(filepath.Join(dir, "missing.yaml")); !errors.Is(err, asset.ErrNotFound) {
		t.Errorf("SetHRIRFile(missing) = %v, want ErrNotFound", err)
	}
	if got := n.Processor().Status(); got != frame.StatusReady {
		t.Errorf("Status() after a missing file = %v, want ready", got)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("file: kemar.wav\ndirections: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := n.SetHRIRFile(bad); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := n.Processor().AwaitReady(ctx); !errors.Is(err, asset.ErrManifest) {
		t.Errorf("AwaitReady() with a bad manifest = %v, want ErrManifest", err)
	}
	if got := n.Processor().Status(); got != frame.StatusUninitialized {
		t.Errorf("Status() = %v, want uninitialized", got)
	}

	if err := n.UseDefaultHRIRs(); err != nil {
		t.Fatal(err)
	}
	awaitReady(t, n)
}

func TestDecoder_OrderFromHost(t *testing.T) {
	t.Parallel()

	n, err := NewDecoder("room", &config.DecoderConfig{Speakers: 6}, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	closeOnCleanup(t, n)

	if _, err := n.Reconfigure(5); !errors.Is(err, ErrLayout) {
		t.Errorf("Reconfigure(5) = %v, want ErrLayout", err)
	}
	l, err := n.Reconfigure(9)
	if err != nil {
		t.Fatal(err)
	}
	if n.Order() != 2 || l.Outputs != 6 {
		t.Errorf("order %d, %d outputs, want 2 and 6", n.Order(), l.Outputs)
	}
	awaitReady(t, n)

	if err := n.SetBinaural(true); err != nil {
		t.Fatal(err)
	}
	if l, _ := n.Processor().Layout(); l.Outputs != 2 {
		t.Errorf("binaural layout outputs = %d, want 2", l.Outputs)
	}
	awaitReady(t, n)

	if err := n.SetSpeakerCount(8); err != nil {
		t.Fatal(err)
	}
	if l, _ := n.Processor().Layout(); l.Outputs != 2 {
		t.Errorf("binaural layout outputs after 8 speakers = %d, want 2", l.Outputs)
	}
	if err := n.SetBinaural(false); err != nil {
		t.Fatal(err)
	}
	if l, _ := n.Processor().Layout(); l.Outputs != 8 {
		t.Errorf("layout outputs = %d, want 8", l.Outputs)
	}
	awaitReady(t, n)

	if err := n.SetSpeakerDirection(9, 0, 0); !errors.Is(err, frame.ErrOutOfRange) {
		t.Errorf("SetSpeakerDirection(9) with 8 speakers = %v", err)
	}
}

func TestDecoder_ConfiguredOrder(t *testing.T) {
	t.Parallel()

	n, err := NewDecoder("room", &config.DecoderConfig{
		Order:      1,
		Speakers:   3,
		Directions: []config.Direction{{30, 0}, {-30, 0}, {180, 0}},
		High:       config.BandConfig{Method: "epad"},
	}, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	closeOnCleanup(t, n)

	if _, err := n.Reconfigure(9); !errors.Is(err, ambidec.ErrOrderMismatch) {
		t.Errorf("Reconfigure(9) at order 1 = %v, want ErrOrderMismatch", err)
	}
	if _, err := n.Reconfigure(4); err != nil {
		t.Fatal(err)
	}
	awaitReady(t, n)

	spk := n.Speakers()
	if len(spk) != 3 || spk[2].Azimuth != 180 {
		t.Errorf("Speakers() = %+v", spk)
	}
}

func TestPanner_ConfiguredDirectionsSurviveLayout(t *testing.T) {
	t.Parallel()

	n, err := NewPanner("pan", &config.PannerConfig{
		Sources: []config.Direction{{90, 0}},
		Outputs: 4,
	}, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	closeOnCleanup(t, n)

	if _, err := n.Reconfigure(2); !errors.Is(err, ErrLayout) {
		t.Errorf("Reconfigure(2) for 1 source = %v, want ErrLayout", err)
	}
	if _, err := n.Reconfigure(1); err != nil {
		t.Fatal(err)
	}
	awaitReady(t, n)

	if got := n.SourceDirection(0); got.Azimuth != 90 {
		t.Errorf("SourceDirection(0) = %+v, want azimuth 90", got)
	}
	g := n.Gains(0)
	if len(g) != 4 {
		t.Fatalf("len(Gains(0)) = %d, want 4", len(g))
	}
	for o, v := range g {
		if o != 1 && v >= g[1] {
			t.Errorf("speaker %d gain %v >= speaker at 90 degrees %v", o, v, g[1])
		}
	}

	if err := n.SetSourceDirection(0, -90, 0); err != nil {
		t.Fatal(err)
	}
	if got := n.Processor().Status(); got != frame.StatusReady {
		t.Errorf("Status() after moving a source = %v, want ready", got)
	}
	if err := n.SetDTT(1.5); !errors.Is(err, frame.ErrOutOfRange) {
		t.Errorf("SetDTT(1.5) = %v, want ErrOutOfRange", err)
	}
}

func TestNewPanner_Rejects(t *testing.T) {
	t.Parallel()

	if _, err := NewPanner("pan", nil, testEnv()); !errors.Is(err, ErrLayout) {
		t.Errorf("NewPanner(nil) = %v, want ErrLayout", err)
	}
	if _, err := NewPanner("pan", &config.PannerConfig{Inputs: 1, Outputs: 1}, testEnv()); !errors.Is(err, ErrLayout) {
		t.Errorf("NewPanner(1 speaker) = %v, want ErrLayout", err)
	}
}

func TestDOA_Tracks(t *testing.T) {
	t.Parallel()

	minDB := -40.0
	n, err := NewDOA("tracker", &config.DOAConfig{MinDB: &minDB}, testEnv())
	if err != nil {
		t.Fatal(err)
	}
	closeOnCleanup(t, n)

	l, err := n.Reconfigure(4)
	if err != nil {
		t.Fatal(err)
	}
	if l.Outputs != 0 {
		t.Errorf("layout outputs = %d, want 0", l.Outputs)
	}
	awaitReady(t, n)

	in, out := planar(4, 64), [][]float32{}
	src := ambi.Direction{Azimuth: 90}
	for b := range 16 {
		planeWave(in, 1, src, b*64)
		if err := n.Processor().Process(in, out); err != nil {
			t.Fatal(err)
		}
	}

	est := n.Estimate()
	if est.Frames == 0 {
		t.Fatal("Estimate() counted no frames")
	}
	if d := ambi.Angle(ambi.Direction{Azimuth: est.Azimuth, Elevation: est.Elevation}, src); d > 1 {
		t.Errorf("estimate %+v is %.2f degrees off", est, d)
	}

	if err := n.SetEnergyGate(0, -10); err == nil {
		t.Error("SetEnergyGate(0, -10) = nil")
	}
	if _, err := n.Reconfigure(5); !errors.Is(err, ErrLayout) {
		t.Errorf("Reconfigure(5) = %v, want ErrLayout", err)
	}
}

func TestRegistry_BuildsFromConfig(t *testing.T) {
	t.Parallel()

	env := testEnv()
	for _, cfg := range []config.NodeConfig{
		{Name: "a", Kind: config.KindBinaural},
		{Name: "b", Kind: config.KindDecoder},
		{Name: "c", Kind: config.KindPanner, Panner: &config.PannerConfig{Inputs: 2, Outputs: 2}},
		{Name: "d", Kind: config.KindDOA},
	} {
		n, err := Default.New(cfg, env)
		if err != nil {
			t.Errorf("New(%s) = %v", cfg.Kind, err)
			continue
		}
		if n.Name() != cfg.Name || n.Kind() != cfg.Kind {
			t.Errorf("node = %q %q, want %q %q", n.Name(), n.Kind(), cfg.Name, cfg.Kind)
		}
		if err := n.Close(); err != nil {
			t.Errorf("Close() = %v", err)
		}
	}
}
