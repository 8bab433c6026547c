// SPDX-License-Identifier: EPL-2.0

// Package vorbis decodes Ogg Vorbis through github.com/jfreymuth/oggvorbis.
//
// The decoder already yields float32, so samples are handed through without
// conversion. Multichannel streams, such as ambisonic recordings stored as
// Vorbis, keep their channel count.
package vorbis
