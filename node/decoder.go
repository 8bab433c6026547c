// SPDX-License-Identifier: EPL-2.0

package node

import (
	"fmt"

	"github.com/ik5/framebridge/asset"
	"github.com/ik5/framebridge/codec/ambi"
	"github.com/ik5/framebridge/codec/ambidec"
	"github.com/ik5/framebridge/frame"
	"github.com/ik5/framebridge/internal/config"
)

// Decoder decodes an ambisonic stream to loudspeakers or, in binaural
// mode, to two ears.
type Decoder struct {
	base
	codec    *ambidec.Codec
	hrir     *hrirCodec
	assets   *asset.Loader
	fromHost bool
}

// NewDecoder builds a decoder node. A nil cfg, or an order of zero, takes
// the order from the host's channel count.
func NewDecoder(name string, cfg *config.DecoderConfig, env Env) (*Decoder, error) {
	if cfg == nil {
		cfg = &config.DecoderConfig{}
	}

	c := ambidec.New()
	n := &Decoder{codec: c, assets: env.Assets, fromHost: cfg.Order == 0}
	n.hrir = newHRIRCodec(c, env.Assets, c.SetHRIRs)

	if err := n.configure(cfg); err != nil {
		return nil, fmt.Errorf("decoder node %q: %w", name, err)
	}

	b, err := newBase(name, config.KindDecoder, env, n.hrir)
	if err != nil {
		return nil, err
	}
	n.base = b
	return n, nil
}

func (n *Decoder) configure(cfg *config.DecoderConfig) error {
	c := n.codec
	if cfg.Order != 0 {
		if err := c.SetOrder(cfg.Order); err != nil {
			return err
		}
	}
	if cfg.Speakers != 0 {
		if err := c.SetSpeakerCount(cfg.Speakers); err != nil {
			return err
		}
	}
	for i, d := range cfg.Directions {
		if err := c.SetSpeakerDirection(i+1, d[0], d[1]); err != nil {
			return fmt.Errorf("loudspeaker %d: %w", i+1, err)
		}
	}
	c.SetBinaural(cfg.Binaural)
	c.SetHRIRPreprocessing(cfg.HRIRPreproc)
	if cfg.HRIR != "" {
		if err := n.hrir.SetPath(cfg.HRIR); err != nil {
			return err
		}
	}

	for band, bc := range [2]config.BandConfig{ambidec.Low: cfg.Low, ambidec.High: cfg.High} {
		b := c.Band(band)
		if bc.Method != "" {
			m, err := ambidec.ParseMethod(bc.Method)
			if err != nil {
				return err
			}
			b.Method = m
		}
		if bc.MaxRE != nil {
			b.MaxRE = *bc.MaxRE
		}
		if err := c.SetBand(band, b); err != nil {
			return err
		}
	}
	if cfg.TransitionHz != nil {
		if err := c.SetTransition(*cfg.TransitionHz); err != nil {
			return err
		}
	}

	norm, order := ambi.N3D, ambi.OrderACN
	var err error
	if cfg.Norm != "" {
		if norm, err = ambi.ParseNorm(cfg.Norm); err != nil {
			return err
		}
	}
	if cfg.ChannelOrder != "" {
		if order, err = ambi.ParseChannelOrder(cfg.ChannelOrder); err != nil {
			return err
		}
	}
	return c.SetConventions(norm, order)
}

// Reconfigure takes the order from inputs when none is configured. With an
// order configured, a host stream of a different order is reported by the
// codec.
func (n *Decoder) Reconfigure(inputs int) (frame.Layout, error) {
	if n.fromHost {
		if err := checkAmbisonic(0, inputs); err != nil {
			return frame.Layout{}, err
		}
		if err := n.codec.SetOrder(AmbisonicOrder(inputs)); err != nil {
			return frame.Layout{}, err
		}
	}

	l := n.env.layout(inputs, n.codec.Outputs())
	return l, n.proc.Reconfigure(l)
}

// outputsChanged follows a setting that may change the output count: the
// host layout is reapplied when it did, the codec is refreshed otherwise.
func (n *Decoder) outputsChanged(setting string, err error) error {
	if err != nil {
		return n.apply(setting, false, err)
	}
	l, ok := n.proc.Layout()
	if !ok {
		return nil
	}
	if want := n.codec.Outputs(); want != l.Outputs {
		n.logger.Info("output count changed", "setting", setting, "from", l.Outputs, "to", want)
		l.Outputs = want
		return n.apply(setting, false, n.proc.Reconfigure(l))
	}
	return n.apply(setting, true, nil)
}

// SetOrder fixes the input order. The host must send a stream of that
// order from the next Reconfigure.
func (n *Decoder) SetOrder(order int) error {
	err := n.codec.SetOrder(order)
	if err == nil {
		n.fromHost = false
	}
	return n.apply("order", true, err)
}

func (n *Decoder) SetSpeakerCount(count int) error {
	return n.outputsChanged("speakers", n.codec.SetSpeakerCount(count))
}

// SetSpeakerDirection moves loudspeaker index, counted from 1.
func (n *Decoder) SetSpeakerDirection(index int, azimuth, elevation float64) error {
	return n.apply("direction", true, n.codec.SetSpeakerDirection(index, azimuth, elevation))
}

// SetBinaural switches between loudspeaker and binaural output, which
// reconfigures the host layout.
func (n *Decoder) SetBinaural(on bool) error {
	n.codec.SetBinaural(on)
	return n.outputsChanged("binaural", nil)
}

func (n *Decoder) SetBand(band int, b ambidec.Band) error {
	return n.apply("band", true, n.codec.SetBand(band, b))
}

func (n *Decoder) SetTransition(hz float64) error {
	return n.apply("transition", true, n.codec.SetTransition(hz))
}

func (n *Decoder) SetConventions(norm ambi.Norm, order ambi.ChannelOrder) error {
	return n.apply("conventions", true, n.codec.SetConventions(norm, order))
}

func (n *Decoder) SetHRIRFile(path string) error {
	err := n.hrir.SetPath(path)
	if err == nil && path != "" {
		n.assets.Forget(path)
	}
	return n.apply("hrir", true, err)
}

func (n *Decoder) UseDefaultHRIRs() error {
	return n.apply("default_hrirs", true, n.hrir.SetPath(""))
}

func (n *Decoder) SetHRIRPreprocessing(on bool) error {
	n.codec.SetHRIRPreprocessing(on)
	return n.apply("hrir_preproc", true, nil)
}

func (n *Decoder) Order() int                 { return n.codec.Order() }
func (n *Decoder) Outputs() int               { return n.codec.Outputs() }
func (n *Decoder) Speakers() []ambi.Direction { return n.codec.Speakers() }
