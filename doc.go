// SPDX-License-Identifier: EPL-2.0

// Package framebridge adapts hosts that deliver audio in blocks of any
// length to codecs that only consume fixed frames.
//
// The adapter itself lives in the frame subpackage. A [frame.Processor]
// wraps one codec, regroups host blocks into codec frames with exactly one
// frame of latency, and runs the codec's slow initialization on a
// background task while the host keeps receiving silence.
//
// # Nodes
//
// The node subpackage builds ready-made processors from configuration:
//
//   - binaural renders an ambisonic stream to two ears through HRIRs
//   - decoder decodes an ambisonic stream to a loudspeaker layout
//   - panner places mono sources on a loudspeaker layout
//   - doa estimates the direction of the dominant source
//
// # Offline Rendering
//
// [Render] drives a processor from an [audio.Source] the way a host would,
// which is what the framebridge command does with files:
//
//	reg := formats.NewRegistry()
//	src, _ := reg.Open("scene.wav")
//	defer src.Close()
//
//	n, _ := node.NewBinaural("ears", &config.BinauralConfig{Order: 1}, env)
//	defer n.Close()
//	n.Reconfigure(src.Channels())
//
//	out, err := framebridge.Render(ctx, src, n.Processor())
//
// # Formats
//
// Inputs and HRIR files may be WAV, AIFF, MP3 or Ogg Vorbis, through the
// decoders in formats. formats/wav also writes multichannel PCM.
//
// # Real-Time Rules
//
// frame.Processor.Process never allocates, locks or logs. Everything else,
// including node setters, belongs on the control path.
package framebridge
