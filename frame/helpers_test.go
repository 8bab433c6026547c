// SPDX-License-Identifier: EPL-2.0

package frame

import (
	"context"
	"testing"
	"time"

	"github.com/ik5/framebridge/internal/audiotest"
)

func newTestProcessor(t *testing.T, codec Codec, opts ...Option) *Processor {
	t.Helper()

	p, err := NewProcessor("test", codec, opts...)
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })

	return p
}

func awaitReady(t *testing.T, p *Processor) {
	t.Helper()

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	if err := p.AwaitReady(ctx); err != nil {
		t.Fatalf("AwaitReady() error = %v", err)
	}
}

func receive(t *testing.T, ch <-chan struct{}) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for initialization to start")
	}
}

func nextNotice(t *testing.T, q *NoticeQueue) Notice {
	t.Helper()

	select {
	case n := <-q.C():
		return n
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for notice")
		return Notice{}
	}
}

// stream pushes blocks ramp blocks of length n through p and returns the
// concatenated output.
func stream(t *testing.T, p *Processor, channels, n, blocks int) [][]float32 {
	t.Helper()

	in := audiotest.Planar(channels, n)
	out := audiotest.Planar(channels, n)
	got := make([][]float32, channels)
	for b := range blocks {
		audiotest.FillRamp(in, b*n)
		if err := p.Process(in, out); err != nil {
			t.Fatalf("Process() block %d error = %v", b, err)
		}
		for c := range out {
			got[c] = append(got[c], out[c]...)
		}
	}

	return got
}

func allZero(chs [][]float32) bool {
	for _, ch := range chs {
		for _, v := range ch {
			if v != 0 {
				return false
			}
		}
	}
	return true
}
