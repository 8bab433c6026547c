// SPDX-License-Identifier: EPL-2.0

// Package worker runs background initialization tasks for the processors.
package worker

import (
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var ErrTaskPanic = errors.New("background task panicked")

// Pool runs fire-and-forget tasks and joins them at shutdown. It satisfies
// frame.Spawner. A panicking task is recovered and reported by Wait.
type Pool struct {
	g      errgroup.Group
	panics atomic.Uint64
}

func New() *Pool {
	return &Pool{}
}

// Go starts fn on a new goroutine. It never blocks.
func (p *Pool) Go(fn func()) {
	p.g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				p.panics.Add(1)
				err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
			}
		}()

		fn()
		return nil
	})
}

// Wait blocks until every task has returned and reports the first panic.
// No task may be started while Wait runs.
func (p *Pool) Wait() error {
	return p.g.Wait()
}

// Panics counts recovered task panics.
func (p *Pool) Panics() uint64 {
	return p.panics.Load()
}
