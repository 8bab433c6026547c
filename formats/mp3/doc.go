// SPDX-License-Identifier: EPL-2.0

// Package mp3 decodes MPEG-1/2 Layer III through
// github.com/hajimehoshi/go-mp3.
//
// The decoder always produces 16-bit stereo, so the source reports two
// channels regardless of the file's channel mode. Reads are whole frames;
// a frame split across two decoder reads is carried over.
package mp3
