// SPDX-License-Identifier: EPL-2.0

package frame

import (
	"sync/atomic"
	"time"
)

// NoticeKind classifies an initialization event.
type NoticeKind int

const (
	NoticeStarted NoticeKind = iota
	NoticeReady
	NoticeFailed
	NoticeSuperseded
)

func (k NoticeKind) String() string {
	switch k {
	case NoticeStarted:
		return "started"
	case NoticeReady:
		return "ready"
	case NoticeFailed:
		return "failed"
	case NoticeSuperseded:
		return "superseded"
	default:
		return "unknown"
	}
}

// Notice is posted by background initialization for the control path to
// report. Elapsed is set on every kind but NoticeStarted.
type Notice struct {
	Node    string
	Kind    NoticeKind
	Message string
	Err     error
	Elapsed time.Duration
	At      time.Time
}

// NoticeQueue is a bounded queue with many producers and one consumer.
// Post never blocks; notices that do not fit are counted and dropped.
// A nil *NoticeQueue drops everything.
type NoticeQueue struct {
	ch      chan Notice
	dropped atomic.Uint64
}

func NewNoticeQueue(size int) *NoticeQueue {
	if size < 1 {
		size = 1
	}
	return &NoticeQueue{ch: make(chan Notice, size)}
}

// Post enqueues n and reports whether it was accepted.
func (q *NoticeQueue) Post(n Notice) bool {
	if q == nil {
		return false
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}

	select {
	case q.ch <- n:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// C is the receive side for the consumer.
func (q *NoticeQueue) C() <-chan Notice { return q.ch }

// Dropped counts notices lost to a full queue.
func (q *NoticeQueue) Dropped() uint64 {
	if q == nil {
		return 0
	}
	return q.dropped.Load()
}
