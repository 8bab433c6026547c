// SPDX-License-Identifier: EPL-2.0

// Package wav reads and writes integer PCM WAV files on top of
// github.com/go-audio/wav.
//
// # Decoding
//
// Decoder accepts 8, 16, 24 and 32-bit integer PCM with up to MaxChannels
// channels, which covers seventh-order ambisonic recordings:
//
//	src, err := wav.Decoder{}.Decode(file)
//
// Samples come back as interleaved float32 in [-1, 1). Non-seekable readers
// are buffered in memory first.
//
// # Encoding
//
// Writer takes planar or interleaved float32 and encodes 16, 24 or 32-bit
// PCM. The header sizes are patched on Close, so the destination has to be
// an io.WriteSeeker such as *os.File:
//
//	w, err := wav.NewWriter(f, 48000, 2, 24)
//	err = w.WritePlanar(out, frames)
//	err = w.Close()
//
// # Errors
//
//   - ErrNotWavFile: the RIFF/WAVE header is missing or unreadable
//   - ErrUnsupportedWavFormat: the format tag is not integer PCM
//   - ErrUnsupportedBitDepth: the depth is outside 8/16/24/32
//   - ErrUnsupportedWavChannel: the channel count is 0 or above MaxChannels
package wav
