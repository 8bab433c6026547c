// SPDX-License-Identifier: EPL-2.0

package node

import (
	"fmt"

	"github.com/ik5/framebridge/codec/ambi"
	"github.com/ik5/framebridge/codec/doa"
	"github.com/ik5/framebridge/frame"
	"github.com/ik5/framebridge/internal/config"
)

// DOA tracks the direction of the dominant source. It has no audio
// outputs.
type DOA struct {
	base
	codec *doa.Codec
	order int
}

func NewDOA(name string, cfg *config.DOAConfig, env Env) (*DOA, error) {
	if cfg == nil {
		cfg = &config.DOAConfig{}
	}

	c := doa.New()
	n := &DOA{codec: c, order: cfg.Order}
	if err := n.configure(cfg); err != nil {
		return nil, fmt.Errorf("doa node %q: %w", name, err)
	}

	b, err := newBase(name, config.KindDOA, env, c)
	if err != nil {
		return nil, err
	}
	n.base = b
	return n, nil
}

func (n *DOA) configure(cfg *config.DOAConfig) error {
	if cfg.Order != 0 {
		if err := ambi.CheckOrder(cfg.Order); err != nil {
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
	if cfg.Averaging != nil {
		if err := n.codec.SetAveraging(*cfg.Averaging); err != nil {
			return err
		}
	}
	if cfg.MinDB != nil || cfg.MaxDB != nil {
		lo, hi := n.codec.EnergyGate()
		if cfg.MinDB != nil {
			lo = *cfg.MinDB
		}
		if cfg.MaxDB != nil {
			hi = *cfg.MaxDB
		}
		if err := n.codec.SetEnergyGate(lo, hi); err != nil {
			return err
		}
	}
	return nil
}

// Reconfigure accepts a complete ambisonic stream of the configured order,
// or of any order 1 to 7 when none is configured.
func (n *DOA) Reconfigure(inputs int) (frame.Layout, error) {
	if err := checkAmbisonic(n.order, inputs); err != nil {
		return frame.Layout{}, err
	}

	l := n.env.layout(inputs, 0)
	return l, n.proc.Reconfigure(l)
}

func (n *DOA) SetNorm(norm ambi.Norm) error {
	return n.apply("norm", true, n.codec.SetNorm(norm))
}

// SetAveraging and SetEnergyGate apply from the next frame.
func (n *DOA) SetAveraging(v float64) error {
	return n.apply("averaging", false, n.codec.SetAveraging(v))
}

func (n *DOA) SetEnergyGate(minDB, maxDB float64) error {
	return n.apply("energy_gate", false, n.codec.SetEnergyGate(minDB, maxDB))
}

// Estimate is the latest direction of arrival. It is safe to call while
// the host is processing.
func (n *DOA) Estimate() doa.Estimate { return n.codec.Latest() }
