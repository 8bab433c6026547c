// SPDX-License-Identifier: EPL-2.0

// Package aiff decodes AIFF files through github.com/go-audio/aiff.
//
// Integer PCM of 8, 16, 24 and 32 bits is accepted, with any channel count
// the header declares. Samples are normalized by the bit depth to float32
// in [-1, 1):
//
//	src, err := aiff.Decoder{}.Decode(file)
//
// go-audio needs an io.ReadSeeker; other readers are buffered in memory.
package aiff
