// SPDX-License-Identifier: EPL-2.0

package frame

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ik5/framebridge/internal/audiotest"
)

func stereo(block int) Layout {
	return Layout{Inputs: 2, Outputs: 2, BlockSize: block, SampleRate: 48000}
}

func TestProcessor_OutputIsInputDelayedByOneFrame(t *testing.T) {
	t.Parallel()

	const frameSize = 128

	for _, n := range []int{64, 128, 256, 48, 300} {
		t.Run(fmt.Sprintf("block=%d", n), func(t *testing.T) {
			t.Parallel()

			p := newTestProcessor(t, audiotest.NewPassthroughCodec(frameSize))
			if err := p.Reconfigure(stereo(n)); err != nil {
				t.Fatalf("Reconfigure() error = %v", err)
			}
			awaitReady(t, p)

			out := stream(t, p, 2, n, 12)
			total := len(out[0])
			for c := range out {
				for i := range frameSize {
					if out[c][i] != 0 {
						t.Fatalf("n=%d: out[%d][%d] = %v before the first frame", n, c, i, out[c][i])
					}
				}
				for i := frameSize; i < total; i++ {
					if want := audiotest.ChannelRamp(c, i-frameSize); out[c][i] != want {
						t.Fatalf("n=%d: out[%d][%d] = %v, want %v", n, c, i, out[c][i], want)
					}
				}
			}
		})
	}
}

func TestProcessor_LargeBlocksRunSeveralFrames(t *testing.T) {
	t.Parallel()

	codec := audiotest.NewPassthroughCodec(128)
	p := newTestProcessor(t, codec)
	if err := p.Reconfigure(stereo(256)); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	awaitReady(t, p)

	stream(t, p, 2, 256, 3)

	if got := codec.ProcessCalls.Load(); got != 6 {
		t.Errorf("codec calls = %d, want 6", got)
	}
	st := p.Stats()
	if st.Blocks != 3 || st.FramesProcessed != 6 || st.FramesSkipped != 0 {
		t.Errorf("stats = %+v", st)
	}
}

func TestProcessor_SilentUntilReady(t *testing.T) {
	t.Parallel()

	gate := audiotest.NewGate()
	codec := audiotest.NewPassthroughCodec(128)
	codec.InitHook = gate.Hook
	p := newTestProcessor(t, codec)
	t.Cleanup(func() { gate.Release(nil) })

	if err := p.Reconfigure(stereo(128)); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	receive(t, gate.Entered)
	if p.Status() != StatusInitializing {
		t.Fatalf("status = %v, want initializing", p.Status())
	}

	out := stream(t, p, 2, 128, 4)
	if !allZero(out) {
		t.Error("output not silent while initializing")
	}
	if got := codec.ProcessCalls.Load(); got != 0 {
		t.Errorf("codec ran %d times before ready", got)
	}
	st := p.Stats()
	if st.FramesSkipped != 4 || st.UnderrunBlocks != 4 {
		t.Errorf("stats = %+v, want 4 skipped frames and 4 underruns", st)
	}
}

func TestProcessor_FailedInitializationRecovers(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	codec := audiotest.NewPassthroughCodec(64)
	codec.InitHook = func() error {
		if attempts.Add(1) == 1 {
			return audiotest.ErrInjected
		}
		return nil
	}
	p := newTestProcessor(t, codec)

	if err := p.Reconfigure(stereo(64)); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	if err := p.AwaitReady(t.Context()); !errors.Is(err, audiotest.ErrInjected) {
		t.Fatalf("AwaitReady() error = %v, want injected failure", err)
	}
	if p.Status() != StatusUninitialized {
		t.Fatalf("status = %v, want uninitialized", p.Status())
	}
	if out := stream(t, p, 2, 64, 3); !allZero(out) {
		t.Error("failed codec produced output")
	}

	p.Lifecycle().Wait()
	if !p.Refresh() {
		t.Fatal("Refresh() = false after failure")
	}
	awaitReady(t, p)

	if out := stream(t, p, 2, 64, 3); allZero(out) {
		t.Error("recovered codec still silent")
	}
}

func TestProcessor_ReconfigureSameLayoutIsNoop(t *testing.T) {
	t.Parallel()

	alloc := &audiotest.CountingAllocator{}
	codec := audiotest.NewPassthroughCodec(64)
	p := newTestProcessor(t, codec, WithAllocator(alloc))

	if err := p.Reconfigure(stereo(32)); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	awaitReady(t, p)
	allocs := alloc.Allocs()

	for range 3 {
		if err := p.Reconfigure(stereo(32)); err != nil {
			t.Fatalf("Reconfigure() error = %v", err)
		}
	}

	if p.Status() != StatusReady {
		t.Errorf("status = %v, want ready", p.Status())
	}
	if got := codec.ConfigureCalls.Load(); got != 1 {
		t.Errorf("configure calls = %d, want 1", got)
	}
	if got := codec.InitCalls.Load(); got != 1 {
		t.Errorf("init calls = %d, want 1", got)
	}
	if got := alloc.Allocs(); got != allocs {
		t.Errorf("allocs = %d, want %d", got, allocs)
	}
	if got := p.Stats().Reallocations; got != 1 {
		t.Errorf("reallocations = %d, want 1", got)
	}
}

func TestProcessor_ChannelChangeBalancesBuffers(t *testing.T) {
	t.Parallel()

	alloc := &audiotest.CountingAllocator{}
	codec := audiotest.NewPassthroughCodec(64)
	p := newTestProcessor(t, codec, WithAllocator(alloc))

	if err := p.Reconfigure(stereo(64)); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	if got := alloc.Live(); got != 8 {
		t.Errorf("live buffers = %d, want 8", got)
	}

	quad := Layout{Inputs: 4, Outputs: 2, BlockSize: 64, SampleRate: 48000}
	if err := p.Reconfigure(quad); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	if got := alloc.Live(); got != 12 {
		t.Errorf("live buffers = %d, want 12", got)
	}
	if in, out := codec.Counts(); in != 4 || out != 2 {
		t.Errorf("codec configured with %d in, %d out", in, out)
	}
	if got := p.Stats().Reallocations; got != 2 {
		t.Errorf("reallocations = %d, want 2", got)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if got := alloc.Live(); got != 0 {
		t.Errorf("live buffers after Close = %d, want 0", got)
	}
	if !codec.Closed.Load() {
		t.Error("codec not closed")
	}
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestProcessor_AllocationFailure(t *testing.T) {
	t.Parallel()

	alloc := &audiotest.CountingAllocator{FailAt: 3}
	p := newTestProcessor(t, audiotest.NewPassthroughCodec(64), WithAllocator(alloc))

	err := p.Reconfigure(stereo(64))
	if !errors.Is(err, ErrAllocation) || !errors.Is(err, audiotest.ErrAllocFailed) {
		t.Fatalf("Reconfigure() error = %v, want allocation failure", err)
	}
	if got := alloc.Live(); got != 0 {
		t.Errorf("live buffers = %d, want 0", got)
	}

	in, out := audiotest.Planar(2, 64), audiotest.Planar(2, 64)
	if err := p.Process(in, out); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Process() error = %v, want ErrNotConfigured", err)
	}

	// The allocator only fails once.
	if err := p.Reconfigure(stereo(64)); err != nil {
		t.Fatalf("retry Reconfigure() error = %v", err)
	}
	awaitReady(t, p)
}

func TestProcessor_ProcessRejectsBadShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in, out [][]float32
		want    error
	}{
		{name: "missing input", in: audiotest.Planar(1, 64), out: audiotest.Planar(2, 64), want: ErrChannelMismatch},
		{name: "extra output", in: audiotest.Planar(2, 64), out: audiotest.Planar(3, 64), want: ErrChannelMismatch},
		{name: "short input", in: audiotest.Planar(2, 32), out: audiotest.Planar(2, 64), want: ErrBlockLength},
		{name: "long output", in: audiotest.Planar(2, 64), out: audiotest.Planar(2, 65), want: ErrBlockLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := newTestProcessor(t, audiotest.NewPassthroughCodec(64))
			if err := p.Reconfigure(stereo(64)); err != nil {
				t.Fatalf("Reconfigure() error = %v", err)
			}
			for _, ch := range tt.out {
				for i := range ch {
					ch[i] = 1
				}
			}

			if err := p.Process(tt.in, tt.out); !errors.Is(err, tt.want) {
				t.Errorf("Process() error = %v, want %v", err, tt.want)
			}
			if !allZero(tt.out) {
				t.Error("output not zeroed on error")
			}
			if got := p.Stats().ConfigErrors; got != 1 {
				t.Errorf("config errors = %d, want 1", got)
			}
		})
	}
}

func TestProcessor_NotConfigured(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, audiotest.NewPassthroughCodec(64))
	out := audiotest.Planar(2, 64)
	out[0][0] = 1

	if err := p.Process(audiotest.Planar(2, 64), out); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Process() error = %v, want ErrNotConfigured", err)
	}
	if out[0][0] != 0 {
		t.Error("output not zeroed")
	}
	if p.RequestInitialization() {
		t.Error("RequestInitialization() = true before Reconfigure")
	}
	if _, ok := p.Layout(); ok {
		t.Error("Layout() reports a configuration")
	}
}

func TestProcessor_InvalidLayout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		layout Layout
	}{
		{name: "too many inputs", layout: Layout{Inputs: MaxChannels + 1, Outputs: 2, BlockSize: 64, SampleRate: 48000}},
		{name: "negative outputs", layout: Layout{Inputs: 2, Outputs: -1, BlockSize: 64, SampleRate: 48000}},
		{name: "zero block", layout: Layout{Inputs: 2, Outputs: 2, SampleRate: 48000}},
		{name: "zero rate", layout: Layout{Inputs: 2, Outputs: 2, BlockSize: 64}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			codec := audiotest.NewPassthroughCodec(64)
			p := newTestProcessor(t, codec)
			if err := p.Reconfigure(tt.layout); !errors.Is(err, ErrInvalidLayout) {
				t.Errorf("Reconfigure() error = %v, want ErrInvalidLayout", err)
			}
			if codec.ConfigureCalls.Load() != 0 {
				t.Error("codec configured with an invalid layout")
			}
		})
	}
}

func TestProcessor_ReconfigureAfterClose(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, audiotest.NewPassthroughCodec(64))
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := p.Reconfigure(stereo(64)); !errors.Is(err, ErrClosed) {
		t.Errorf("Reconfigure() error = %v, want ErrClosed", err)
	}
}

func TestProcessor_SampleRateChangeReinitializes(t *testing.T) {
	t.Parallel()

	codec := audiotest.NewPassthroughCodec(64)
	p := newTestProcessor(t, codec)
	if err := p.Reconfigure(stereo(64)); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	awaitReady(t, p)

	l := stereo(64)
	l.SampleRate = 44100
	if err := p.Reconfigure(l); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	awaitReady(t, p)

	if got := codec.SampleRate(); got != 44100 {
		t.Errorf("codec rate = %d, want 44100", got)
	}
	if got := codec.InitCalls.Load(); got != 2 {
		t.Errorf("init calls = %d, want 2", got)
	}
}

func TestProcessor_BlockSizeChangeKeepsCodecReady(t *testing.T) {
	t.Parallel()

	codec := audiotest.NewPassthroughCodec(64)
	p := newTestProcessor(t, codec)
	if err := p.Reconfigure(stereo(64)); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	awaitReady(t, p)

	if err := p.Reconfigure(stereo(48)); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	if p.Status() != StatusReady {
		t.Errorf("status = %v, want ready", p.Status())
	}
	if got := codec.InitCalls.Load(); got != 1 {
		t.Errorf("init calls = %d, want 1", got)
	}

	// The accumulator restarted, so the first frame is silent again.
	out := stream(t, p, 2, 48, 2)
	for i := range 64 {
		if out[0][i] != 0 {
			t.Fatalf("out[0][%d] = %v after block size change", i, out[0][i])
		}
	}
}

func TestProcessor_CloseWaitsForInitialization(t *testing.T) {
	t.Parallel()

	gate := audiotest.NewGate()
	codec := audiotest.NewPassthroughCodec(64)
	codec.InitHook = gate.Hook
	p := newTestProcessor(t, codec)

	if err := p.Reconfigure(stereo(64)); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	receive(t, gate.Entered)

	done := make(chan struct{})
	go func() {
		_ = p.Close()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Close() returned while initialization was running")
	case <-time.After(20 * time.Millisecond):
	}
	if codec.Closed.Load() {
		t.Fatal("codec closed while initialization was running")
	}

	gate.Release(nil)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close() did not return")
	}
	if !codec.Closed.Load() {
		t.Error("codec not closed")
	}
}

func TestProcessor_TransitionHook(t *testing.T) {
	t.Parallel()

	var log transitionLog
	p := newTestProcessor(t, audiotest.NewPassthroughCodec(64),
		WithLifecycleOptions(WithTransitionHook(log.hook)))

	if err := p.Reconfigure(stereo(64)); err != nil {
		t.Fatalf("Reconfigure() error = %v", err)
	}
	awaitReady(t, p)

	got := log.snapshot()
	if len(got) != 2 || got[1] != [2]Status{StatusInitializing, StatusReady} {
		t.Errorf("transitions = %v", got)
	}
}

func TestProcessor_NewRejectsBadCodec(t *testing.T) {
	t.Parallel()

	if _, err := NewProcessor("nil", nil); err == nil {
		t.Error("NewProcessor(nil) succeeded")
	}
	if _, err := NewProcessor("zero", audiotest.NewPassthroughCodec(0)); !errors.Is(err, ErrInvalidLayout) {
		t.Errorf("NewProcessor() error = %v, want ErrInvalidLayout", err)
	}
}

func TestProcessor_ProcessDoesNotAllocate(t *testing.T) {
	for _, n := range []int{48, 256} {
		p := newTestProcessor(t, audiotest.NewPassthroughCodec(128))
		if err := p.Reconfigure(stereo(n)); err != nil {
			t.Fatalf("Reconfigure() error = %v", err)
		}
		awaitReady(t, p)

		in, out := audiotest.Planar(2, n), audiotest.Planar(2, n)
		audiotest.FillRamp(in, 0)
		allocs := testing.AllocsPerRun(200, func() {
			_ = p.Process(in, out)
		})
		if allocs != 0 {
			t.Errorf("n=%d: Process allocated %v times per call", n, allocs)
		}
	}
}

// heldSpawner keeps tasks until the test runs them.
type heldSpawner struct {
	mu    sync.Mutex
	tasks []func()
}

func (s *heldSpawner) Go(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tasks = append(s.tasks, fn)
}

func (s *heldSpawner) take() []func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.tasks
	s.tasks = nil
	return tasks
}

// configureHookCodec runs beforeConfigure ahead of every Configure call.
type configureHookCodec struct {
	*audiotest.PassthroughCodec
	beforeConfigure func()
}

func (c *configureHookCodec) Configure(numIn, numOut int) error {
	if c.beforeConfigure != nil {
		c.beforeConfigure()
	}
	return c.PassthroughCodec.Configure(numIn, numOut)
}

func TestProcessor_TaskStartedDuringReconfigureIsSuperseded(t *testing.T) {
	t.Parallel()

	spawner := &heldSpawner{}
	codec := &configureHookCodec{PassthroughCodec: audiotest.NewPassthroughCodec(64)}

	var builtFor atomic.Int32
	var first sync.Once
	snapshotted := make(chan struct{})
	release := make(chan struct{})
	codec.InitHook = func() error {
		in, _ := codec.Counts()
		builtFor.Store(int32(in))
		first.Do(func() {
			close(snapshotted)
			<-release
		})
		return nil
	}
	p := newTestProcessor(t, codec, WithSpawner(spawner))

	if err := p.Reconfigure(Layout{Inputs: 1, Outputs: 1, BlockSize: 64, SampleRate: 48000}); err != nil {
		t.Fatalf("Reconfigure(mono) error = %v", err)
	}
	held := spawner.take()
	if len(held) != 1 {
		t.Fatalf("spawned %d tasks, want 1", len(held))
	}

	// The task for the mono layout starts after the stereo change was
	// invalidated and reads the codec before Configure updates it.
	codec.beforeConfigure = func() {
		go held[0]()
		receive(t, snapshotted)
	}
	if err := p.Reconfigure(stereo(64)); err != nil {
		t.Fatalf("Reconfigure(stereo) error = %v", err)
	}
	codec.beforeConfigure = nil
	close(release)

	awaitReady(t, p)
	if got := builtFor.Load(); got != 2 {
		t.Errorf("ready with state built for %d inputs, want 2", got)
	}
	if extra := spawner.take(); len(extra) != 0 {
		t.Errorf("spawned %d extra tasks, want the rerun on the running task", len(extra))
	}
}

func BenchmarkProcessor_Process(b *testing.B) {
	p, err := NewProcessor("bench", audiotest.NewPassthroughCodec(128))
	if err != nil {
		b.Fatal(err)
	}
	defer p.Close()
	if err := p.Reconfigure(stereo(48)); err != nil {
		b.Fatal(err)
	}
	if err := p.AwaitReady(b.Context()); err != nil {
		b.Fatal(err)
	}

	in, out := audiotest.Planar(2, 48), audiotest.Planar(2, 48)
	b.ReportAllocs()
	for b.Loop() {
		_ = p.Process(in, out)
	}
}
