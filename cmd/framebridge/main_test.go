// SPDX-License-Identifier: EPL-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ik5/framebridge/formats"
	"github.com/ik5/framebridge/formats/wav"
	"github.com/ik5/framebridge/internal/config"
)

const testConfig = `
engine:
  sample_rate: 48000
  block_size: 256
log:
  level: error
nodes:
  - name: pan
    kind: panner
    panner:
      inputs: 1
      outputs: 4
  - name: tracker
    kind: doa
    doa:
      order: 1
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeInput(t *testing.T, frames int, channels ...[]float32) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "in.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	w, err := wav.NewWriter(f, 48000, len(channels), 16)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.WritePlanar(channels, frames); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func constant(n int, v float32) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = v
	}
	return s
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestNodesCommand(t *testing.T) {
	out, err := execute(t, "nodes")
	if err != nil {
		t.Fatal(err)
	}
	for _, kind := range []string{"binaural", "decoder", "panner", "doa"} {
		if !strings.Contains(out, kind) {
			t.Errorf("nodes output misses %q:\n%s", kind, out)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	cfgPath := writeFile(t, "ok.yaml", testConfig)
	out, err := execute(t, "validate", "--config", cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "2 nodes ok") {
		t.Errorf("validate output = %q", out)
	}

	bad := writeFile(t, "bad.yaml", `
nodes:
  - name: ears
    kind: binaural
    binaural:
      order: 1
      hrir: /does/not/exist.yaml
`)
	if _, err := execute(t, "validate", "--config", bad); err == nil {
		t.Error("validate accepted a missing HRIR file")
	}

	invalid := writeFile(t, "invalid.yaml", "engine:\n  block_size: 0\n")
	if _, err := execute(t, "validate", "--config", invalid); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("validate = %v, want ErrInvalid", err)
	}
}

func TestRenderCommand_Panner(t *testing.T) {
	cfgPath := writeFile(t, "cfg.yaml", testConfig)
	in := writeInput(t, 1000, constant(1000, 0.5))
	out := filepath.Join(t.TempDir(), "out.wav")

	if _, err := execute(t, "render", "--config", cfgPath, "--node", "pan", "--bits", "24", in, out); err != nil {
		t.Fatal(err)
	}

	src, err := formats.NewRegistry().Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	if got := src.Channels(); got != 4 {
		t.Fatalf("output channels = %d, want 4", got)
	}
	if got := src.SampleRate(); got != 48000 {
		t.Errorf("output rate = %d, want 48000", got)
	}

	var frames int
	buf := make([]float32, 4*256)
	for {
		n, err := src.ReadSamples(buf)
		frames += n / 4
		if errors.Is(err, io.EOF) || n == 0 {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}
	if frames != 1000 {
		t.Errorf("output frames = %d, want 1000", frames)
	}
}

func TestRenderCommand_DOAPrintsEstimate(t *testing.T) {
	cfgPath := writeFile(t, "cfg.yaml", testConfig)
	w := constant(2048, 0.25)
	in := writeInput(t, 2048, w, constant(2048, 0), constant(2048, 0), constant(2048, 0))

	out, err := execute(t, "render", "--config", cfgPath, "--node", "tracker", in)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "azimuth ") {
		t.Errorf("render output = %q, want an estimate", out)
	}
}

func TestRunRender_Errors(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(testConfig))
	if err != nil {
		t.Fatal(err)
	}
	in := writeInput(t, 100, constant(100, 0.1))

	tests := []struct {
		name   string
		opts   renderOptions
		output string
		want   error
	}{
		{"unknown node", renderOptions{node: "nope", bits: 16}, "out.wav", errNoNode},
		{"missing output", renderOptions{node: "pan", bits: 16}, "", errNoOutput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runRender(context.Background(), io.Discard, cfg, &tt.opts, in, tt.output)
			if !errors.Is(err, tt.want) {
				t.Errorf("runRender() = %v, want %v", err, tt.want)
			}
		})
	}

	t.Run("bad bit depth", func(t *testing.T) {
		opts := renderOptions{node: "pan", bits: 12}
		out := filepath.Join(t.TempDir(), "out.wav")
		if err := runRender(context.Background(), io.Discard, cfg, &opts, in, out); !errors.Is(err, wav.ErrUnsupportedBitDepth) {
			t.Errorf("runRender() = %v, want ErrUnsupportedBitDepth", err)
		}
	})
}
