// SPDX-License-Identifier: EPL-2.0

package node

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/ik5/framebridge/asset"
	"github.com/ik5/framebridge/codec/ambi"
	"github.com/ik5/framebridge/frame"
	"github.com/ik5/framebridge/internal/config"
)

var (
	ErrUnknownKind = errors.New("unknown node kind")
	ErrLayout      = errors.New("host layout does not fit the node")
)

// Node is a named processor for one of the built-in kinds.
type Node interface {
	Name() string
	Kind() config.Kind

	// Processor is the frame adapter the host drives.
	Processor() *frame.Processor

	// Reconfigure derives the host layout for a stream of inputs channels,
	// applies it and requests initialization.
	Reconfigure(inputs int) (frame.Layout, error)

	Close() error
}

// Env is what every node shares with the engine.
type Env struct {
	SampleRate int
	BlockSize  int

	Spawner   frame.Spawner
	Notices   *frame.NoticeQueue
	Allocator frame.Allocator
	Logger    *slog.Logger
	Assets    *asset.Loader

	// Lifecycle options are passed to every processor.
	Lifecycle []frame.LifecycleOption
}

func (e Env) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e Env) layout(inputs, outputs int) frame.Layout {
	return frame.Layout{Inputs: inputs, Outputs: outputs, BlockSize: e.BlockSize, SampleRate: e.SampleRate}
}

func (e Env) processor(name string, c frame.Codec) (*frame.Processor, error) {
	return frame.NewProcessor(name, c,
		frame.WithSpawner(e.Spawner),
		frame.WithNotices(e.Notices),
		frame.WithAllocator(e.Allocator),
		frame.WithLogger(e.logger()),
		frame.WithLifecycleOptions(e.Lifecycle...),
	)
}

// AmbisonicOrder is the highest order a stream of nch channels carries
// completely.
func AmbisonicOrder(nch int) int {
	if nch < 1 {
		return -1
	}
	return int(math.Floor(math.Sqrt(float64(nch)))) - 1
}

func AmbisonicChannels(order int) int {
	return (order + 1) * (order + 1)
}

// IsAmbisonicLayout reports whether nch is a complete ambisonic stream of
// order 1 or higher.
func IsAmbisonicLayout(nch int) bool {
	order := AmbisonicOrder(nch)
	return order >= 1 && AmbisonicChannels(order) == nch
}

// checkAmbisonic accepts a complete stream of the given order, or of any
// order 1 to 7 when order is zero.
func checkAmbisonic(order, inputs int) error {
	if order != 0 && inputs != AmbisonicChannels(order) {
		return fmt.Errorf("%w: %d channels, order %d needs %d", ErrLayout, inputs, order, AmbisonicChannels(order))
	}
	if !IsAmbisonicLayout(inputs) || AmbisonicOrder(inputs) > ambi.MaxOrder {
		return fmt.Errorf("%w: %d channels is not an ambisonic stream of order 1 to %d", ErrLayout, inputs, ambi.MaxOrder)
	}
	return nil
}

// base carries what every node kind has in common.
type base struct {
	name   string
	kind   config.Kind
	proc   *frame.Processor
	env    Env
	logger *slog.Logger
}

func newBase(name string, kind config.Kind, env Env, c frame.Codec) (base, error) {
	p, err := env.processor(name, c)
	if err != nil {
		return base{}, fmt.Errorf("%s node %q: %w", kind, name, err)
	}
	return base{
		name:   name,
		kind:   kind,
		proc:   p,
		env:    env,
		logger: env.logger().With("node", name, "kind", string(kind)),
	}, nil
}

func (b *base) Name() string                { return b.name }
func (b *base) Kind() config.Kind           { return b.kind }
func (b *base) Processor() *frame.Processor { return b.proc }
func (b *base) Close() error                { return b.proc.Close() }

// apply logs a rejected setting and leaves the codec untouched. A
// structural change that was accepted re-initializes the codec.
func (b *base) apply(setting string, structural bool, err error) error {
	if err != nil {
		b.logger.Warn("setting rejected", "setting", setting, "err", err)
		return fmt.Errorf("%s: %w", setting, err)
	}
	if structural {
		b.proc.Refresh()
	}
	return nil
}

// hrirCodec loads the HRIR set at path before the wrapped codec's expensive
// initialization. A load failure is an initialization failure. An empty
// path selects the codec's built-in set.
type hrirCodec struct {
	frame.Codec
	loader *asset.Loader
	set    func(*asset.HRIRSet)

	mu   sync.Mutex
	path string
	rate int
}

func newHRIRCodec(c frame.Codec, loader *asset.Loader, set func(*asset.HRIRSet)) *hrirCodec {
	return &hrirCodec{Codec: c, loader: loader, set: set}
}

func (h *hrirCodec) Init(sampleRate int) error {
	h.mu.Lock()
	h.rate = sampleRate
	h.mu.Unlock()

	return h.Codec.Init(sampleRate)
}

// SetPath checks that path exists before recording it.
func (h *hrirCodec) SetPath(path string) error {
	if path != "" {
		if err := asset.Exists(path); err != nil {
			return err
		}
		if h.loader == nil {
			return fmt.Errorf("HRIR file %s: no asset loader", path)
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.path = path
	return nil
}

func (h *hrirCodec) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.path
}

func (h *hrirCodec) InitializeExpensiveState() error {
	h.mu.Lock()
	path, rate := h.path, h.rate
	h.mu.Unlock()

	var set *asset.HRIRSet
	if path != "" {
		var err error
		if set, err = h.loader.HRIRs(path, rate); err != nil {
			return fmt.Errorf("load HRIRs: %w", err)
		}
	}
	h.set(set)

	return h.Codec.InitializeExpensiveState()
}
