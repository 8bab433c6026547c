// SPDX-License-Identifier: EPL-2.0

package frame

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// pollInterval is how often AwaitReady re-checks the status.
const pollInterval = 2 * time.Millisecond

// LifecycleOption configures a Lifecycle.
type LifecycleOption func(*Lifecycle)

// WithTransitionHook calls fn on every status change. fn may run on a
// background task and must not block.
func WithTransitionHook(fn func(from, to Status)) LifecycleOption {
	return func(l *Lifecycle) { l.hook = fn }
}

// WithInitObserver calls fn after every initialization attempt that was not
// superseded, with its duration and result.
func WithInitObserver(fn func(node string, elapsed time.Duration, err error)) LifecycleOption {
	return func(l *Lifecycle) { l.observe = fn }
}

// Lifecycle tracks a codec's readiness and runs its expensive
// initialization in the background.
//
// The status word is the only state the real-time path reads. At most one
// initialization task runs per lifecycle. A request that arrives after
// Invalidate while a task is still running queues a single rerun, which
// that task picks up once its superseded attempt returns. A generation
// counter, bumped by Invalidate and by every accepted request, keeps
// superseded results from ever marking the codec ready.
type Lifecycle struct {
	name    string
	codec   Codec
	spawner Spawner
	notices *NoticeQueue
	hook    func(from, to Status)
	observe func(node string, elapsed time.Duration, err error)

	status atomic.Int32
	gen    atomic.Uint64

	mu       sync.Mutex
	inFlight bool
	pending  bool
	closed   bool
	lastErr  error
	wg       sync.WaitGroup
}

// NewLifecycle returns an uninitialized lifecycle. A nil spawner runs tasks
// on plain goroutines; a nil notices queue discards notices.
func NewLifecycle(name string, codec Codec, spawner Spawner, notices *NoticeQueue, opts ...LifecycleOption) *Lifecycle {
	if spawner == nil {
		spawner = goSpawner{}
	}

	l := &Lifecycle{
		name:    name,
		codec:   codec,
		spawner: spawner,
		notices: notices,
	}
	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Status is safe to call from the real-time path.
func (l *Lifecycle) Status() Status {
	return Status(l.status.Load())
}

func (l *Lifecycle) transition(from, to Status) bool {
	if !l.status.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	if l.hook != nil {
		l.hook(from, to)
	}
	return true
}

// Invalidate marks the codec uninitialized. An initialization already in
// flight becomes superseded.
func (l *Lifecycle) Invalidate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.gen.Add(1)
	l.pending = false
	if prev := Status(l.status.Swap(int32(StatusUninitialized))); prev != StatusUninitialized && l.hook != nil {
		l.hook(prev, StatusUninitialized)
	}
}

// RequestInitialization starts a background initialization unless the codec
// is already ready or initializing. It reports whether a task was started or
// a rerun queued.
func (l *Lifecycle) RequestInitialization() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return false
	}

	switch l.Status() {
	case StatusReady, StatusInitializing:
		return false
	}

	// A task that read its generation before this request may have seen
	// settings older than the ones being requested.
	l.gen.Add(1)
	l.transition(StatusUninitialized, StatusInitializing)
	l.lastErr = nil

	if l.inFlight {
		l.pending = true
		return true
	}

	l.inFlight = true
	l.wg.Add(1)
	l.spawner.Go(l.run)

	return true
}

func (l *Lifecycle) run() {
	defer l.wg.Done()

	for {
		gen := l.gen.Load()
		start := time.Now()
		l.notices.Post(Notice{Node: l.name, Kind: NoticeStarted, At: start})

		err := l.initialize()
		elapsed := time.Since(start)

		l.mu.Lock()
		if l.gen.Load() != gen {
			rerun := l.pending && !l.closed
			l.pending = false
			if !rerun {
				l.inFlight = false
			}
			l.mu.Unlock()

			l.notices.Post(Notice{
				Node:    l.name,
				Kind:    NoticeSuperseded,
				Message: "configuration changed during initialization",
				Err:     err,
				Elapsed: elapsed,
			})
			if rerun {
				continue
			}
			return
		}

		l.inFlight = false
		l.pending = false
		notice := Notice{Node: l.name, Elapsed: elapsed, Err: err}
		if err != nil {
			l.lastErr = err
			l.transition(StatusInitializing, StatusUninitialized)
			notice.Kind = NoticeFailed
			notice.Message = "initialization failed"
		} else {
			l.transition(StatusInitializing, StatusReady)
			notice.Kind = NoticeReady
		}
		l.mu.Unlock()

		l.notices.Post(notice)
		if l.observe != nil {
			l.observe(l.name, elapsed, err)
		}
		return
	}
}

func (l *Lifecycle) initialize() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInitPanic, r)
		}
	}()

	return l.codec.InitializeExpensiveState()
}

// Err is the error of the last initialization attempt, or nil.
func (l *Lifecycle) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lastErr
}

// InFlight reports whether an initialization task is running.
func (l *Lifecycle) InFlight() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.inFlight
}

// Wait blocks until no initialization task is running. It must not race
// with RequestInitialization.
func (l *Lifecycle) Wait() {
	l.wg.Wait()
}

// AwaitReady blocks until the codec is ready, ctx ends, or the last attempt
// failed with nothing further in flight.
func (l *Lifecycle) AwaitReady(ctx context.Context) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if l.Status() == StatusReady {
			return nil
		}

		l.mu.Lock()
		idle := !l.inFlight && l.Status() == StatusUninitialized
		err := l.lastErr
		l.mu.Unlock()
		if idle {
			if err != nil {
				return err
			}
			return ErrNotRequested
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close refuses further requests and waits for a running task to finish.
func (l *Lifecycle) Close() {
	l.mu.Lock()
	l.closed = true
	l.pending = false
	l.mu.Unlock()

	l.wg.Wait()
}
