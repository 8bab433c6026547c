// SPDX-License-Identifier: EPL-2.0

package framebridge

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ik5/framebridge/audio"
	"github.com/ik5/framebridge/frame"
)

var (
	ErrSourceChannels = errors.New("source channels do not match the processor inputs")
	ErrStalled        = errors.New("source stopped producing samples")
)

// maxStalls is how many empty reads in a row end a render.
const maxStalls = 64

// RenderOption configures Render.
type RenderOption func(*renderOptions)

type renderOptions struct {
	compensate bool
	onBlock    func(block int)
}

// WithLatencyCompensation drops the processor's frame of latency from the
// start of the output and flushes it at the end, so output sample i lines
// up with input sample i. It is on by default.
func WithLatencyCompensation(on bool) RenderOption {
	return func(o *renderOptions) { o.compensate = on }
}

// WithBlockHook calls fn after every processed host block.
func WithBlockHook(fn func(block int)) RenderOption {
	return func(o *renderOptions) { o.onBlock = fn }
}

// Render drives p from src the way a host would: in blocks of the
// configured block size, after waiting for the codec to become ready. It
// returns one slice per output channel, as long as the input.
//
// src must carry one channel per processor input; it is resampled when its
// rate differs from the layout's. Render does not close src.
//
// Example:
//
//	src, _ := registry.Open("in.wav")
//	out, err := framebridge.Render(ctx, src, n.Processor())
func Render(ctx context.Context, src audio.Source, p *frame.Processor, opts ...RenderOption) ([][]float32, error) {
	o := renderOptions{compensate: true}
	for _, opt := range opts {
		opt(&o)
	}

	l, ok := p.Layout()
	if !ok {
		return nil, frame.ErrNotConfigured
	}
	if src.Channels() != l.Inputs {
		return nil, fmt.Errorf("%w: %d channels, %d inputs", ErrSourceChannels, src.Channels(), l.Inputs)
	}
	if src.SampleRate() != l.SampleRate {
		src = audio.NewResampler(src, l.SampleRate)
	}

	if err := p.AwaitReady(ctx); err != nil {
		return nil, fmt.Errorf("wait for %s: %w", p.Name(), err)
	}

	n := l.BlockSize
	in, out := planar(l.Inputs, n), planar(l.Outputs, n)
	buf := make([]float32, n*l.Inputs)
	result := make([][]float32, l.Outputs)

	skip := 0
	if o.compensate {
		skip = p.FrameSize()
	}

	var fed, frames int
	eof := false
	for block := 0; !eof || fed < frames+skip; block++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		got := 0
		if !eof {
			var err error
			if got, eof, err = readBlock(src, buf); err != nil {
				return nil, err
			}
		}
		clear(buf[got*l.Inputs:])
		frames += got

		if _, err := audio.Deinterleave(in, buf); err != nil {
			return nil, err
		}
		if err := p.Process(in, out); err != nil {
			return nil, fmt.Errorf("block %d: %w", block, err)
		}
		if from := max(0, skip-fed); from < n {
			for c := range out {
				result[c] = append(result[c], out[c][from:]...)
			}
		}
		fed += n

		if o.onBlock != nil {
			o.onBlock(block)
		}
	}

	for c := range result {
		result[c] = result[c][:min(len(result[c]), frames)]
	}
	return result, nil
}

// readBlock fills buf with whole frames from src and returns how many it
// read. A frame cut short by the end of the stream is completed with
// silence.
func readBlock(src audio.Source, buf []float32) (frames int, eof bool, err error) {
	channels := src.Channels()
	got, stalls := 0, 0
	for got < len(buf) {
		k, err := src.ReadSamples(buf[got:])
		got += k
		if errors.Is(err, io.EOF) {
			eof = true
			break
		}
		if err != nil {
			return 0, false, fmt.Errorf("read source: %w", err)
		}
		if k > 0 {
			stalls = 0
			continue
		}
		if stalls++; stalls >= maxStalls {
			return 0, false, ErrStalled
		}
	}
	frames = (got + channels - 1) / channels
	clear(buf[got : frames*channels])
	return frames, eof, nil
}

func planar(ch, n int) [][]float32 {
	b := make([][]float32, ch)
	for i := range b {
		b[i] = make([]float32, n)
	}
	return b
}
