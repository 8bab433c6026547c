// SPDX-License-Identifier: EPL-2.0

// Package audio provides the sample-stream primitives the engine is fed
// from.
//
// # Source Interface
//
// Every decoder and stream processor implements Source:
//
//	type Source interface {
//	    SampleRate() int
//	    Channels() int
//	    ReadSamples(dst []float32) (int, error)
//	    BufSize() int
//	    Close() error
//	}
//
// Samples are interleaved float32 in [-1, 1]. A read returning io.EOF ends
// the stream; n may be non-zero on that final read.
//
// # Resampling
//
// Resampler converts the rate with Catmull-Rom interpolation and a one-pole
// low-pass ahead of it when downsampling:
//
//	r := audio.NewResampler(src, 48000)
//
// # Planar Data
//
// The frame engine works on one slice per channel. Deinterleave,
// Interleave, ReadAll and PlanarSource move data between the two layouts.
//
// # Format Registry
//
// Registry maps file extensions to decoders. Open picks a decoder from the
// path and ties the file's lifetime to the returned Source:
//
//	registry := audio.NewRegistry()
//	registry.Register("wav", wav.Decoder{})
//	src, err := registry.Open("ir.wav")
package audio
