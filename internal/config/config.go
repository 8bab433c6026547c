// SPDX-License-Identifier: EPL-2.0

// Package config provides the YAML configuration schema and loader for the
// framebridge engine and its nodes.
package config

// Kind names a node type.
type Kind string

const (
	KindBinaural Kind = "binaural"
	KindDecoder  Kind = "decoder"
	KindPanner   Kind = "panner"
	KindDOA      Kind = "doa"
)

// IsValid reports whether k is a recognised node kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindBinaural, KindDecoder, KindPanner, KindDOA:
		return true
	}
	return false
}

const (
	DefaultSampleRate  = 48000
	DefaultBlockSize   = 64
	DefaultNoticeQueue = 64
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// Config is the root configuration structure. It is typically loaded with
// [Load] or [LoadFromReader].
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
	Nodes   []NodeConfig  `yaml:"nodes"`
}

// EngineConfig is the host side of every node.
type EngineConfig struct {
	SampleRate  int `yaml:"sample_rate"`
	BlockSize   int `yaml:"block_size"`
	NoticeQueue int `yaml:"notice_queue"`
}

type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// File, when set, sends logs to a rotated file instead of stderr.
	File *LogFileConfig `yaml:"file"`
}

type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type MetricsConfig struct {
	// ListenAddr serves /metrics when set (e.g. ":9464").
	ListenAddr string `yaml:"listen_addr"`
}

// NodeConfig describes one processing node. Only the section matching Kind
// is read.
type NodeConfig struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind"`

	Binaural *BinauralConfig `yaml:"binaural"`
	Decoder  *DecoderConfig  `yaml:"decoder"`
	Panner   *PannerConfig   `yaml:"panner"`
	DOA      *DOAConfig      `yaml:"doa"`
}

// Direction is an [azimuth, elevation] pair in degrees.
type Direction [2]float64

type RotationConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Yaw       float64 `yaml:"yaw"`
	Pitch     float64 `yaml:"pitch"`
	Roll      float64 `yaml:"roll"`
	FlipYaw   bool    `yaml:"flip_yaw"`
	FlipPitch bool    `yaml:"flip_pitch"`
	FlipRoll  bool    `yaml:"flip_roll"`
}

type BinauralConfig struct {
	// Order is the ambisonic order of the input, 1 to 7.
	Order int `yaml:"order"`

	// HRIR is an HRIR manifest path. Empty, or DefaultHRIRs, selects the
	// built-in set.
	HRIR         string `yaml:"hrir"`
	DefaultHRIRs bool   `yaml:"default_hrirs"`

	Method          string         `yaml:"method"`
	MaxRE           *bool          `yaml:"max_re"`
	Preproc         string         `yaml:"preproc"`
	Norm            string         `yaml:"norm"`
	DiffuseMatching bool           `yaml:"diffuse_matching"`
	TruncationEQ    bool           `yaml:"truncation_eq"`
	Rotation        RotationConfig `yaml:"rotation"`
}

type BandConfig struct {
	Method string `yaml:"method"`
	MaxRE  *bool  `yaml:"max_re"`
}

type DecoderConfig struct {
	// Order is the ambisonic order of the input. Zero takes it from the
	// host's channel count.
	Order int `yaml:"order"`

	// Speakers is the loudspeaker count, 1 to 64.
	Speakers   int         `yaml:"speakers"`
	Directions []Direction `yaml:"directions"`

	Binaural     bool       `yaml:"binaural"`
	HRIR         string     `yaml:"hrir"`
	HRIRPreproc  bool       `yaml:"hrir_preproc"`
	Low          BandConfig `yaml:"low"`
	High         BandConfig `yaml:"high"`
	TransitionHz *float64   `yaml:"transition_hz"`
	Norm         string     `yaml:"norm"`
	ChannelOrder string     `yaml:"channel_order"`
}

type PannerConfig struct {
	// Sources lists one direction per input. Missing entries keep the
	// default even spread.
	Sources  []Direction `yaml:"sources"`
	Inputs   int         `yaml:"inputs"`
	Speakers []Direction `yaml:"speakers"`
	Outputs  int         `yaml:"outputs"`
	DTT      *float64    `yaml:"dtt"`
	Spread   *float64    `yaml:"spread"`
}

type DOAConfig struct {
	Order     int      `yaml:"order"`
	Norm      string   `yaml:"norm"`
	Averaging *float64 `yaml:"averaging"`
	MinDB     *float64 `yaml:"min_db"`
	MaxDB     *float64 `yaml:"max_db"`
}

// Defaults returns a Config with every engine and log default filled in.
func Defaults() *Config {
	return &Config{
		Engine: EngineConfig{
			SampleRate:  DefaultSampleRate,
			BlockSize:   DefaultBlockSize,
			NoticeQueue: DefaultNoticeQueue,
		},
		Log: LogConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// Node returns the node named name.
func (c *Config) Node(name string) (NodeConfig, bool) {
	for _, n := range c.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeConfig{}, false
}
