// SPDX-License-Identifier: EPL-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ik5/framebridge/codec/ambi"
	"github.com/ik5/framebridge/codec/ambidec"
	"github.com/ik5/framebridge/codec/binaural"
	"github.com/ik5/framebridge/internal/logging"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over [Defaults] and validates
// the result. Unknown fields are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if cfg.Engine.SampleRate < 8000 || cfg.Engine.SampleRate > 384000 {
		add("engine.sample_rate %d is out of range [8000, 384000]", cfg.Engine.SampleRate)
	}
	if cfg.Engine.BlockSize < 1 || cfg.Engine.BlockSize > 8192 {
		add("engine.block_size %d is out of range [1, 8192]", cfg.Engine.BlockSize)
	}
	if cfg.Engine.NoticeQueue < 1 {
		add("engine.notice_queue %d must be positive", cfg.Engine.NoticeQueue)
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		add("log.level: %w", err)
	}
	if cfg.Log.Format != logging.FormatText && cfg.Log.Format != logging.FormatJSON {
		add("log.format %q is invalid; valid values: text, json", cfg.Log.Format)
	}
	if f := cfg.Log.File; f != nil {
		if f.Path == "" {
			add("log.file.path is required when log.file is set")
		}
		if f.MaxSizeMB < 0 || f.MaxBackups < 0 || f.MaxAgeDays < 0 {
			add("log.file limits must not be negative")
		}
	}

	seen := make(map[string]int, len(cfg.Nodes))
	for i, n := range cfg.Nodes {
		prefix := fmt.Sprintf("nodes[%d]", i)
		if n.Name == "" {
			add("%s.name is required", prefix)
		} else {
			if prev, ok := seen[n.Name]; ok {
				add("%s.name %q is a duplicate of nodes[%d]", prefix, n.Name, prev)
			}
			seen[n.Name] = i
		}
		if !n.Kind.IsValid() {
			add("%s.kind %q is invalid; valid values: binaural, decoder, panner, doa", prefix, n.Kind)
			continue
		}
		errs = append(errs, validateSections(prefix, n)...)

		switch n.Kind {
		case KindBinaural:
			errs = append(errs, validateBinaural(prefix+".binaural", n.Binaural)...)
		case KindDecoder:
			errs = append(errs, validateDecoder(prefix+".decoder", n.Decoder)...)
		case KindPanner:
			errs = append(errs, validatePanner(prefix+".panner", n.Panner)...)
		case KindDOA:
			errs = append(errs, validateDOA(prefix+".doa", n.DOA)...)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

func validateSections(prefix string, n NodeConfig) []error {
	var errs []error
	sections := []struct {
		kind    Kind
		present bool
	}{
		{KindBinaural, n.Binaural != nil},
		{KindDecoder, n.Decoder != nil},
		{KindPanner, n.Panner != nil},
		{KindDOA, n.DOA != nil},
	}
	for _, s := range sections {
		if s.present && s.kind != n.Kind {
			errs = append(errs, fmt.Errorf("%s: %s section on a %s node", prefix, s.kind, n.Kind))
		}
	}
	return errs
}

func checkOrder(prefix string, order int, allowZero bool) error {
	if order == 0 && allowZero {
		return nil
	}
	if err := ambi.CheckOrder(order); err != nil {
		return fmt.Errorf("%s.order: %w", prefix, err)
	}
	return nil
}

func checkRange(field string, v, lo, hi float64) error {
	if v < lo || v > hi {
		return fmt.Errorf("%s %g is out of range [%g, %g]", field, v, lo, hi)
	}
	return nil
}

func checkDirections(prefix string, dirs []Direction) []error {
	var errs []error
	for i, d := range dirs {
		if err := checkRange(fmt.Sprintf("%s[%d] elevation", prefix, i), d[1], -90, 90); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// checkNorm parses norm and rejects FuMa above first order. An order of
// zero is not known yet and passes.
func checkNorm(prefix, norm string, order int) error {
	if norm == "" {
		return nil
	}
	n, err := ambi.ParseNorm(norm)
	if err != nil {
		return fmt.Errorf("%s.norm: %w", prefix, err)
	}
	if n == ambi.FuMa && order > 1 {
		return fmt.Errorf("%s.norm: %w", prefix, ambi.ErrFuMaOrder)
	}
	return nil
}

func validateBinaural(prefix string, b *BinauralConfig) []error {
	if b == nil {
		return nil
	}
	var errs []error
	order := max(b.Order, 1)
	if err := checkOrder(prefix, b.Order, true); err != nil {
		errs = append(errs, err)
	}
	if b.Method != "" {
		if _, err := binaural.ParseMethod(b.Method); err != nil {
			errs = append(errs, fmt.Errorf("%s.method: %w", prefix, err))
		}
	}
	if b.Preproc != "" {
		if _, err := binaural.ParsePreproc(b.Preproc); err != nil {
			errs = append(errs, fmt.Errorf("%s.preproc: %w", prefix, err))
		}
	}
	if err := checkNorm(prefix, b.Norm, order); err != nil {
		errs = append(errs, err)
	}
	r := b.Rotation
	for _, a := range []struct {
		name string
		v    float64
	}{{"yaw", r.Yaw}, {"pitch", r.Pitch}, {"roll", r.Roll}} {
		if err := checkRange(prefix+".rotation."+a.name, a.v, -180, 180); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func validateDecoder(prefix string, d *DecoderConfig) []error {
	if d == nil {
		return nil
	}
	var errs []error
	if err := checkOrder(prefix, d.Order, true); err != nil {
		errs = append(errs, err)
	}
	if d.Speakers < 0 || d.Speakers > ambidec.MaxSpeakers {
		errs = append(errs, fmt.Errorf("%s.speakers %d is out of range [1, %d]", prefix, d.Speakers, ambidec.MaxSpeakers))
	}
	if count := d.Speakers; count > 0 && len(d.Directions) > count {
		errs = append(errs, fmt.Errorf("%s.directions has %d entries for %d speakers", prefix, len(d.Directions), count))
	}
	errs = append(errs, checkDirections(prefix+".directions", d.Directions)...)
	for _, band := range []struct {
		name string
		cfg  BandConfig
	}{{"low", d.Low}, {"high", d.High}} {
		if band.cfg.Method == "" {
			continue
		}
		if _, err := ambidec.ParseMethod(band.cfg.Method); err != nil {
			errs = append(errs, fmt.Errorf("%s.%s.method: %w", prefix, band.name, err))
		}
	}
	if d.TransitionHz != nil {
		if err := checkRange(prefix+".transition_hz", *d.TransitionHz, 500, 2000); err != nil {
			errs = append(errs, err)
		}
	}
	if err := checkNorm(prefix, d.Norm, d.Order); err != nil {
		errs = append(errs, err)
	}
	if d.ChannelOrder != "" {
		o, err := ambi.ParseChannelOrder(d.ChannelOrder)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%s.channel_order: %w", prefix, err))
		case o == ambi.OrderFuMa && d.Order > 1:
			errs = append(errs, fmt.Errorf("%s.channel_order: %w", prefix, ambi.ErrFuMaOrder))
		}
	}
	return errs
}

func validatePanner(prefix string, p *PannerConfig) []error {
	if p == nil {
		return []error{fmt.Errorf("%s is required to size the node", prefix)}
	}
	var errs []error
	in, out := p.Channels()
	if in < 1 || in > 64 {
		errs = append(errs, fmt.Errorf("%s: %d sources is out of range [1, 64]", prefix, in))
	}
	if out < 2 || out > 64 {
		errs = append(errs, fmt.Errorf("%s: %d loudspeakers is out of range [2, 64]", prefix, out))
	}
	errs = append(errs, checkDirections(prefix+".sources", p.Sources)...)
	errs = append(errs, checkDirections(prefix+".speakers", p.Speakers)...)
	if p.DTT != nil {
		if err := checkRange(prefix+".dtt", *p.DTT, 0, 1); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Spread != nil {
		if err := checkRange(prefix+".spread", *p.Spread, 0, 90); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Channels is the source and loudspeaker count: the larger of the explicit
// count and the number of listed directions.
func (p *PannerConfig) Channels() (inputs, outputs int) {
	return max(p.Inputs, len(p.Sources)), max(p.Outputs, len(p.Speakers))
}

func validateDOA(prefix string, d *DOAConfig) []error {
	if d == nil {
		return nil
	}
	var errs []error
	if err := checkOrder(prefix, d.Order, true); err != nil {
		errs = append(errs, err)
	}
	if d.Norm != "" {
		if _, err := ambi.ParseNorm(d.Norm); err != nil {
			errs = append(errs, fmt.Errorf("%s.norm: %w", prefix, err))
		}
	}
	if d.Averaging != nil {
		if err := checkRange(prefix+".averaging", *d.Averaging, 0, 0.999); err != nil {
			errs = append(errs, err)
		}
	}
	if d.MinDB != nil && d.MaxDB != nil && *d.MinDB >= *d.MaxDB {
		errs = append(errs, fmt.Errorf("%s.min_db %g must be below max_db %g", prefix, *d.MinDB, *d.MaxDB))
	}
	for _, g := range []struct {
		name string
		v    *float64
	}{{"min_db", d.MinDB}, {"max_db", d.MaxDB}} {
		if g.v == nil {
			continue
		}
		if err := checkRange(prefix+"."+g.name, *g.v, -120, 20); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
