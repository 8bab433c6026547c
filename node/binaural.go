// SPDX-License-Identifier: EPL-2.0

package node

import (
	"fmt"

	"github.com/ik5/framebridge/asset"
	"github.com/ik5/framebridge/codec/ambi"
	"github.com/ik5/framebridge/codec/binaural"
	"github.com/ik5/framebridge/frame"
	"github.com/ik5/framebridge/internal/config"
)

// Binaural renders an ambisonic stream to two ears.
type Binaural struct {
	base
	codec  *binaural.Codec
	hrir   *hrirCodec
	assets *asset.Loader
	order  int // 0 takes the order from the host
}

// NewBinaural builds a binaural node. A nil cfg selects every default.
func NewBinaural(name string, cfg *config.BinauralConfig, env Env) (*Binaural, error) {
	if cfg == nil {
		cfg = &config.BinauralConfig{}
	}

	c := binaural.New()
	n := &Binaural{codec: c, assets: env.Assets, order: cfg.Order}
	n.hrir = newHRIRCodec(c, env.Assets, c.SetHRIRs)

	if err := n.configure(cfg); err != nil {
		return nil, fmt.Errorf("binaural node %q: %w", name, err)
	}

	b, err := newBase(name, config.KindBinaural, env, n.hrir)
	if err != nil {
		return nil, err
	}
	n.base = b
	return n, nil
}

func (n *Binaural) configure(cfg *config.BinauralConfig) error {
	if cfg.Order != 0 {
		if err := ambi.CheckOrder(cfg.Order); err != nil {
			return err
		}
	}
	if cfg.HRIR != "" && !cfg.DefaultHRIRs {
		if err := n.hrir.SetPath(cfg.HRIR); err != nil {
			return err
		}
	}
	if cfg.Method != "" {
		m, err := binaural.ParseMethod(cfg.Method)
		if err != nil {
			return err
		}
		if err := n.codec.SetMethod(m); err != nil {
			return err
		}
	}
	if cfg.MaxRE != nil {
		n.codec.SetMaxRE(*cfg.MaxRE)
	}
	if cfg.Preproc != "" {
		p, err := binaural.ParsePreproc(cfg.Preproc)
		if err != nil {
			return err
		}
		if err := n.codec.SetPreproc(p); err != nil {
			return err
		}
	}
	if cfg.Norm != "" {
		norm, err := ambi.ParseNorm(cfg.Norm)
		if err != nil {
			return err
		}
		if err := n.codec.SetNorm(norm); err != nil {
			return err
		}
	}
	n.codec.SetDiffuseMatching(cfg.DiffuseMatching)
	n.codec.SetTruncationEQ(cfg.TruncationEQ)

	r := cfg.Rotation
	if err := n.codec.SetOrientation(ambi.Orientation{
		Yaw: r.Yaw, Pitch: r.Pitch, Roll: r.Roll,
		FlipYaw: r.FlipYaw, FlipPitch: r.FlipPitch, FlipRoll: r.FlipRoll,
	}); err != nil {
		return err
	}
	return n.codec.SetRotation(r.Enabled)
}

// Reconfigure accepts a complete stream of the configured order, or of any
// order 1 to 7 when none is configured.
func (n *Binaural) Reconfigure(inputs int) (frame.Layout, error) {
	if err := checkAmbisonic(n.order, inputs); err != nil {
		return frame.Layout{}, err
	}

	l := n.env.layout(inputs, 2)
	return l, n.proc.Reconfigure(l)
}

// SetHRIRFile selects the HRIR manifest at path. A missing file is
// rejected before the codec is touched; a file that fails to load leaves
// the node uninitialized.
func (n *Binaural) SetHRIRFile(path string) error {
	err := n.hrir.SetPath(path)
	if err == nil && path != "" {
		n.assets.Forget(path)
	}
	return n.apply("hrir", true, err)
}

// UseDefaultHRIRs selects the built-in spherical-head set.
func (n *Binaural) UseDefaultHRIRs() error {
	return n.apply("default_hrirs", true, n.hrir.SetPath(""))
}

func (n *Binaural) SetMethod(m binaural.Method) error {
	return n.apply("method", true, n.codec.SetMethod(m))
}

func (n *Binaural) SetMaxRE(on bool) error {
	n.codec.SetMaxRE(on)
	return n.apply("max_re", true, nil)
}

func (n *Binaural) SetPreproc(p binaural.Preproc) error {
	return n.apply("preproc", true, n.codec.SetPreproc(p))
}

func (n *Binaural) SetNorm(norm ambi.Norm) error {
	return n.apply("norm", true, n.codec.SetNorm(norm))
}

func (n *Binaural) SetDiffuseMatching(on bool) error {
	n.codec.SetDiffuseMatching(on)
	return n.apply("diffuse_matching", true, nil)
}

func (n *Binaural) SetTruncationEQ(on bool) error {
	n.codec.SetTruncationEQ(on)
	return n.apply("truncation_eq", true, nil)
}

// SetRotation and SetOrientation apply from the next frame.
func (n *Binaural) SetRotation(on bool) error {
	return n.apply("rotation", false, n.codec.SetRotation(on))
}

func (n *Binaural) SetOrientation(o ambi.Orientation) error {
	return n.apply("orientation", false, n.codec.SetOrientation(o))
}

func (n *Binaural) Orientation() ambi.Orientation { return n.codec.Orientation() }

// HRIRs is the set the current filters were fitted to.
func (n *Binaural) HRIRs() *asset.HRIRSet { return n.codec.HRIRs() }
