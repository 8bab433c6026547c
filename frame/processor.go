// SPDX-License-Identifier: EPL-2.0

package frame

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Layout is the host-side configuration of a processor.
type Layout struct {
	Inputs     int
	Outputs    int
	BlockSize  int
	SampleRate int
}

func (l Layout) validate() error {
	var errs []error
	if l.Inputs < 0 || l.Inputs > MaxChannels {
		errs = append(errs, fmt.Errorf("%d inputs outside [0, %d]", l.Inputs, MaxChannels))
	}
	if l.Outputs < 0 || l.Outputs > MaxChannels {
		errs = append(errs, fmt.Errorf("%d outputs outside [0, %d]", l.Outputs, MaxChannels))
	}
	if l.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("block size %d", l.BlockSize))
	}
	if l.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate %d", l.SampleRate))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidLayout, errors.Join(errs...))
	}

	return nil
}

// Option configures a Processor.
type Option func(*options)

type options struct {
	spawner   Spawner
	notices   *NoticeQueue
	alloc     Allocator
	logger    *slog.Logger
	lifecycle []LifecycleOption
}

// WithSpawner runs initialization tasks on s.
func WithSpawner(s Spawner) Option {
	return func(o *options) { o.spawner = s }
}

// WithNotices posts initialization notices to q.
func WithNotices(q *NoticeQueue) Option {
	return func(o *options) { o.notices = q }
}

// WithAllocator allocates channel buffers from a.
func WithAllocator(a Allocator) Option {
	return func(o *options) { o.alloc = a }
}

// WithLogger sets the control-path logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithLifecycleOptions passes options through to the processor's Lifecycle.
func WithLifecycleOptions(opts ...LifecycleOption) Option {
	return func(o *options) { o.lifecycle = append(o.lifecycle, opts...) }
}

// Processor drives one codec from host blocks.
type Processor struct {
	name   string
	codec  Codec
	logger *slog.Logger

	pool *BufferPool
	acc  *Accumulator
	life *Lifecycle
	run  RunFunc

	stats      counters
	configured atomic.Bool

	mu     sync.Mutex
	layout Layout
	closed bool
}

// NewProcessor wraps codec. Nothing is allocated until Reconfigure.
func NewProcessor(name string, codec Codec, opts ...Option) (*Processor, error) {
	if codec == nil {
		return nil, errors.New("nil codec")
	}
	frameSize := codec.FrameSize()
	if frameSize <= 0 {
		return nil, fmt.Errorf("%w: codec frame size %d", ErrInvalidLayout, frameSize)
	}

	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	p := &Processor{
		name:   name,
		codec:  codec,
		logger: o.logger.With("node", name),
		pool:   NewBufferPool(o.alloc),
		acc:    NewAccumulator(frameSize),
		life:   NewLifecycle(name, codec, o.spawner, o.notices, o.lifecycle...),
	}
	p.run = p.runCodec

	return p, nil
}

func (p *Processor) runCodec(in, out [][]float32) bool {
	if p.life.Status() != StatusReady {
		return false
	}
	p.codec.Process(in, out, p.pool.Inputs(), p.pool.Outputs(), p.pool.FrameSize())
	return true
}

// Reconfigure applies a host layout. A sample-rate change re-initializes
// the codec; a channel change resizes the buffers and reconfigures the
// codec. Either invalidates the codec. A block-size change alone only
// resets the accumulator. Initialization is then requested, which does
// nothing when the codec is already ready or initializing.
func (p *Processor) Reconfigure(l Layout) error {
	if err := l.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}

	prev, wasConfigured := p.layout, p.configured.Load()
	rateChanged := !wasConfigured || l.SampleRate != prev.SampleRate
	channelsChanged := !wasConfigured || l.Inputs != prev.Inputs || l.Outputs != prev.Outputs

	if rateChanged || channelsChanged {
		p.life.Invalidate()
	}

	if rateChanged {
		if err := p.codec.Init(l.SampleRate); err != nil {
			p.configured.Store(false)
			return fmt.Errorf("init codec at %d Hz: %w", l.SampleRate, err)
		}
	}

	if channelsChanged {
		frameSize := p.codec.FrameSize()
		if !p.pool.Matches(l.Inputs, l.Outputs, frameSize) {
			if err := p.pool.Reconfigure(l.Inputs, l.Outputs, frameSize); err != nil {
				p.configured.Store(false)
				return err
			}
			p.stats.reallocations.Add(1)
		}
		if err := p.codec.Configure(l.Inputs, l.Outputs); err != nil {
			p.configured.Store(false)
			return fmt.Errorf("configure codec %d in, %d out: %w", l.Inputs, l.Outputs, err)
		}
		p.pool.Clear()
	}

	if rateChanged || channelsChanged || l.BlockSize != prev.BlockSize {
		p.acc.Reset()
	}

	p.layout = l
	p.configured.Store(true)

	if p.life.RequestInitialization() {
		p.logger.Debug("initialization requested",
			"inputs", l.Inputs, "outputs", l.Outputs,
			"block", l.BlockSize, "frame", p.codec.FrameSize(), "rate", l.SampleRate)
	}

	return nil
}

// Process runs one host block. in and out must match the configured layout
// in channel count and block length; on any mismatch out is zeroed and a
// sentinel error returned.
func (p *Processor) Process(in, out [][]float32) error {
	p.stats.blocks.Add(1)

	if !p.configured.Load() {
		zero(out)
		p.stats.configErrors.Add(1)
		return ErrNotConfigured
	}

	l := p.layout
	if len(in) != l.Inputs || len(out) != l.Outputs {
		zero(out)
		p.stats.configErrors.Add(1)
		return ErrChannelMismatch
	}
	for _, ch := range in {
		if len(ch) != l.BlockSize {
			zero(out)
			p.stats.configErrors.Add(1)
			return ErrBlockLength
		}
	}
	for _, ch := range out {
		if len(ch) != l.BlockSize {
			zero(out)
			p.stats.configErrors.Add(1)
			return ErrBlockLength
		}
	}

	p.stats.record(p.acc.Process(in, out, l.BlockSize, p.pool, p.run))

	return nil
}

func zero(out [][]float32) {
	for _, ch := range out {
		clear(ch)
	}
}

// Invalidate marks the codec not ready, for a parameter change that needs
// a new expensive initialization.
func (p *Processor) Invalidate() { p.life.Invalidate() }

// RequestInitialization asks for a background initialization. It does
// nothing before the first Reconfigure.
func (p *Processor) RequestInitialization() bool {
	if !p.configured.Load() {
		return false
	}
	return p.life.RequestInitialization()
}

// Refresh invalidates and re-requests initialization.
func (p *Processor) Refresh() bool {
	p.life.Invalidate()
	return p.RequestInitialization()
}

func (p *Processor) Status() Status { return p.life.Status() }
func (p *Processor) FrameSize() int { return p.codec.FrameSize() }
func (p *Processor) Name() string   { return p.name }
func (p *Processor) Stats() Stats   { return p.stats.snapshot() }

// Lifecycle exposes the codec's lifecycle for callers that wait on it.
func (p *Processor) Lifecycle() *Lifecycle { return p.life }

// Layout returns the configured layout and whether there is one.
func (p *Processor) Layout() (Layout, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.layout, p.configured.Load()
}

// AwaitReady blocks until the codec is ready, ctx ends, or initialization
// failed.
func (p *Processor) AwaitReady(ctx context.Context) error {
	return p.life.AwaitReady(ctx)
}

// Close waits for a running initialization, releases the buffers and
// closes the codec. Later calls return nil.
func (p *Processor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.configured.Store(false)

	start := time.Now()
	p.life.Close()
	p.pool.Release()
	p.logger.Debug("processor closed", "waited", time.Since(start))

	if err := p.codec.Close(); err != nil {
		return fmt.Errorf("close codec: %w", err)
	}

	return nil
}
