// SPDX-License-Identifier: EPL-2.0

package audiotest

import (
	"errors"
	"sync"
	"sync/atomic"
)

// ErrInjected is returned by InitHook implementations that simulate a failed
// initialization.
var ErrInjected = errors.New("injected init failure")

// PassthroughCodec copies input channel c to output channel c and zeroes
// any extra outputs. It satisfies frame.Codec and records how it was driven.
type PassthroughCodec struct {
	Frame int

	// InitHook, when set, runs inside InitializeExpensiveState. Set it before
	// the codec is handed to a processor.
	InitHook func() error

	mu         sync.Mutex
	sampleRate int
	numIn      int
	numOut     int

	InitCalls      atomic.Int32
	ConfigureCalls atomic.Int32
	ProcessCalls   atomic.Int64
	active         atomic.Int32
	MaxActive      atomic.Int32
	Closed         atomic.Bool
}

func NewPassthroughCodec(frameSize int) *PassthroughCodec {
	return &PassthroughCodec{Frame: frameSize}
}

func (p *PassthroughCodec) Init(sampleRate int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.sampleRate = sampleRate
	return nil
}

func (p *PassthroughCodec) FrameSize() int { return p.Frame }

func (p *PassthroughCodec) Configure(numIn, numOut int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.numIn, p.numOut = numIn, numOut
	p.ConfigureCalls.Add(1)
	return nil
}

// Counts returns the channel counts last passed to Configure.
func (p *PassthroughCodec) Counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.numIn, p.numOut
}

func (p *PassthroughCodec) SampleRate() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.sampleRate
}

func (p *PassthroughCodec) InitializeExpensiveState() error {
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		peak := p.MaxActive.Load()
		if n <= peak || p.MaxActive.CompareAndSwap(peak, n) {
			break
		}
	}

	p.InitCalls.Add(1)
	if p.InitHook != nil {
		return p.InitHook()
	}

	return nil
}

func (p *PassthroughCodec) Process(in, out [][]float32, numIn, numOut, frameLength int) {
	p.ProcessCalls.Add(1)
	for c := range numOut {
		dst := out[c][:frameLength]
		if c < numIn {
			copy(dst, in[c][:frameLength])
			continue
		}
		clear(dst)
	}
}

func (p *PassthroughCodec) Close() error {
	p.Closed.Store(true)
	return nil
}

// Gate blocks InitHook callers until released. Entered receives one value
// per call that reached the gate.
type Gate struct {
	Entered chan struct{}
	release chan struct{}
	err     error
}

func NewGate() *Gate {
	return &Gate{
		Entered: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

// Hook is an InitHook that waits on the gate.
func (g *Gate) Hook() error {
	g.Entered <- struct{}{}
	<-g.release
	return g.err
}

// Release lets one waiting caller continue with err as its result.
func (g *Gate) Release(err error) {
	g.err = err
	g.release <- struct{}{}
}
