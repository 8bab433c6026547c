// SPDX-License-Identifier: EPL-2.0

// Package formats wires every bundled decoder into an audio.Registry.
package formats

import (
	"github.com/ik5/framebridge/audio"
	"github.com/ik5/framebridge/formats/aiff"
	"github.com/ik5/framebridge/formats/mp3"
	"github.com/ik5/framebridge/formats/vorbis"
	"github.com/ik5/framebridge/formats/wav"
)

// Register adds the bundled decoders to r under their usual extensions.
func Register(r *audio.Registry) {
	r.Register("wav", wav.Decoder{})
	r.Register("wave", wav.Decoder{})
	r.Register("aif", aiff.Decoder{})
	r.Register("aiff", aiff.Decoder{})
	r.Register("mp3", mp3.Decoder{})
	r.Register("ogg", vorbis.Decoder{})
	r.Register("oga", vorbis.Decoder{})
}

// NewRegistry returns a registry holding the bundled decoders.
func NewRegistry() *audio.Registry {
	r := audio.NewRegistry()
	Register(r)
	return r
}
