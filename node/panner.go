// SPDX-License-Identifier: EPL-2.0

package node

import (
	"errors"
	"fmt"

	"github.com/ik5/framebridge/codec/ambi"
	"github.com/ik5/framebridge/codec/panner"
	"github.com/ik5/framebridge/frame"
	"github.com/ik5/framebridge/internal/config"
)

// Panner places mono sources on a loudspeaker layout.
type Panner struct {
	base
	codec *panner.Codec

	inputs, outputs int // configured counts; zero inputs follow the host
	sources         []config.Direction
	speakers        []config.Direction
	applied         int // loudspeaker count the directions were applied for
}

// NewPanner builds a panner node. cfg must name the loudspeaker count or
// list the loudspeakers.
func NewPanner(name string, cfg *config.PannerConfig, env Env) (*Panner, error) {
	if cfg == nil {
		return nil, fmt.Errorf("panner node %q: %w: no loudspeakers configured", name, ErrLayout)
	}

	c := panner.New()
	n := &Panner{codec: c, sources: cfg.Sources, speakers: cfg.Speakers}
	n.inputs, n.outputs = cfg.Channels()
	if n.outputs < panner.MinSpeakers || n.outputs > panner.MaxSpeakers {
		return nil, fmt.Errorf("panner node %q: %w: %d loudspeakers", name, ErrLayout, n.outputs)
	}

	var errs []error
	if cfg.DTT != nil {
		errs = append(errs, c.SetDTT(*cfg.DTT))
	}
	if cfg.Spread != nil {
		errs = append(errs, c.SetSpread(*cfg.Spread))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("panner node %q: %w", name, err)
	}

	b, err := newBase(name, config.KindPanner, env, c)
	if err != nil {
		return nil, err
	}
	n.base = b
	return n, nil
}

// Reconfigure takes one source per host channel unless a source count is
// configured. The configured directions replace the defaults whenever the
// loudspeaker count is applied for the first time.
func (n *Panner) Reconfigure(inputs int) (frame.Layout, error) {
	if n.inputs != 0 && inputs != n.inputs {
		return frame.Layout{}, fmt.Errorf("%w: %d channels for %d sources", ErrLayout, inputs, n.inputs)
	}

	if n.applied != n.outputs {
		if err := n.codec.Configure(inputs, n.outputs); err != nil {
			return frame.Layout{}, err
		}
		if err := n.applyDirections(); err != nil {
			return frame.Layout{}, err
		}
		n.applied = n.outputs
	}

	l := n.env.layout(inputs, n.outputs)
	return l, n.proc.Reconfigure(l)
}

func (n *Panner) applyDirections() error {
	for i, d := range n.sources {
		if err := n.codec.SetSourceDirection(i, d[0], d[1]); err != nil {
			return fmt.Errorf("source %d: %w", i, err)
		}
	}
	for i, d := range n.speakers {
		if err := n.codec.SetSpeakerDirection(i, d[0], d[1]); err != nil {
			return fmt.Errorf("loudspeaker %d: %w", i, err)
		}
	}
	return nil
}

// SetSourceDirection moves source i, counted from 0, from the next frame.
func (n *Panner) SetSourceDirection(i int, azimuth, elevation float64) error {
	return n.apply("source", false, n.codec.SetSourceDirection(i, azimuth, elevation))
}

func (n *Panner) SetSpeakerDirection(i int, azimuth, elevation float64) error {
	return n.apply("loudspeaker", true, n.codec.SetSpeakerDirection(i, azimuth, elevation))
}

func (n *Panner) SetDTT(v float64) error {
	return n.apply("dtt", true, n.codec.SetDTT(v))
}

func (n *Panner) SetSpread(deg float64) error {
	return n.apply("spread", true, n.codec.SetSpread(deg))
}

func (n *Panner) SourceDirection(i int) ambi.Direction { return n.codec.SourceDirection(i) }

// Gains are the loudspeaker gains of source i, nil before initialization.
func (n *Panner) Gains(i int) []float32 { return n.codec.Gains(i) }
