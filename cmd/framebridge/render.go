// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/ik5/framebridge"
	"github.com/ik5/framebridge/audio"
	"github.com/ik5/framebridge/formats"
	"github.com/ik5/framebridge/formats/wav"
	"github.com/ik5/framebridge/internal/config"
	"github.com/ik5/framebridge/node"
)

var (
	errNoNode   = errors.New("node not found in config")
	errNoOutput = errors.New("an output path is required for nodes with outputs")
)

type renderOptions struct {
	node  string
	block int
	mono  bool
	bits  int
	raw   bool
}

func renderCommand(root *rootOptions) *cobra.Command {
	opts := &renderOptions{}

	cmd := &cobra.Command{
		Use:   "render --node NAME INPUT [OUTPUT.wav]",
		Short: "Render an audio file through a configured node",
		Long: `Render decodes INPUT (wav, aiff, mp3 or ogg), resamples it to the engine
rate when needed and runs it through the named node block by block. The
result is written to OUTPUT as a multichannel WAV file. A doa node has no
outputs and prints its final estimate instead.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			output := ""
			if len(args) == 2 {
				output = args[1]
			}
			return runRender(ctx, cmd.OutOrStdout(), cfg, opts, args[0], output)
		},
	}

	cmd.Flags().StringVarP(&opts.node, "node", "n", "", "Name of the node to render through")
	cmd.Flags().IntVarP(&opts.block, "block", "b", 0, "Host block size, overriding engine.block_size")
	cmd.Flags().BoolVar(&opts.mono, "mono", false, "Mix the input down to one channel first")
	cmd.Flags().IntVar(&opts.bits, "bits", 16, "Output bit depth: 16, 24 or 32")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "Keep the codec latency at the start of the output")
	_ = cmd.MarkFlagRequired("node")

	return cmd
}

func runRender(ctx context.Context, stdout io.Writer, cfg *config.Config, opts *renderOptions, input, output string) (err error) {
	nc, ok := cfg.Node(opts.node)
	if !ok {
		return fmt.Errorf("%w: %q", errNoNode, opts.node)
	}
	if nc.Kind != config.KindDOA && output == "" {
		return errNoOutput
	}
	switch opts.bits {
	case 16, 24, 32:
	default:
		return fmt.Errorf("%w: %d", wav.ErrUnsupportedBitDepth, opts.bits)
	}
	if opts.block < 0 {
		return fmt.Errorf("block size %d must be positive", opts.block)
	}

	reg := formats.NewRegistry()
	eng, err := startEngine(ctx, cfg, reg)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, eng.shutdown(ctx)) }()

	src, err := reg.Open(input)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()
	if opts.mono {
		src = audio.NewMonoMixer(src)
	}

	block := cfg.Engine.BlockSize
	if opts.block > 0 {
		block = opts.block
	}

	n, err := node.Default.New(nc, eng.env(block))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, n.Close()) }()

	layout, err := n.Reconfigure(src.Channels())
	if err != nil {
		return fmt.Errorf("node %s: %w", n.Name(), err)
	}
	defer eng.track(n.Processor())()

	eng.logger.Info("rendering",
		"node", n.Name(),
		"kind", n.Kind(),
		"input", input,
		"input_rate", src.SampleRate(),
		"inputs", layout.Inputs,
		"outputs", layout.Outputs,
		"block", layout.BlockSize)

	out, err := framebridge.Render(ctx, src, n.Processor(), framebridge.WithLatencyCompensation(!opts.raw))
	if err != nil {
		return err
	}

	st := n.Processor().Stats()
	eng.logger.Info("rendered",
		"node", n.Name(),
		"blocks", st.Blocks,
		"frames", st.FramesProcessed,
		"skipped", st.FramesSkipped,
		"underruns", st.UnderrunBlocks)

	if d, ok := n.(*node.DOA); ok {
		e := d.Estimate()
		_, err = fmt.Fprintf(stdout, "azimuth %.1f elevation %.1f energy %.1f dB frames %d\n",
			e.Azimuth, e.Elevation, e.Energy, e.Frames)
		return err
	}
	return writeWAV(output, out, layout.SampleRate, opts.bits)
}

func writeWAV(path string, data [][]float32, rate, bits int) (err error) {
	frames := 0
	if len(data) > 0 {
		frames = len(data[0])
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	w, err := wav.NewWriter(f, rate, len(data), bits)
	if err != nil {
		return err
	}
	if err := w.WritePlanar(data, frames); err != nil {
		_ = w.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return w.Close()
}
