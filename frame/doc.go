// SPDX-License-Identifier: EPL-2.0

// Package frame adapts a host that delivers audio in blocks of n samples
// per channel to a codec that only consumes fixed frames of F samples.
//
// A Processor owns four parts:
//
//   - BufferPool holds the per-channel input and output buffers, sized from
//     the channel counts and the codec's frame size.
//   - Accumulator regroups host blocks into codec frames. Its output is the
//     input delayed by exactly F samples whatever the block length n.
//   - Lifecycle tracks whether the codec is ready and runs its expensive
//     initialization on a background task, one at a time per codec.
//   - Codec is the processing core itself, supplied by the caller.
//
// Process is the real-time entry point. It never allocates, never locks and
// never logs; when the codec is not ready it emits silence and carries on.
// Reconfigure, Refresh and Close are control-path calls and must not run
// concurrently with Process. Initialization progress is reported through a
// NoticeQueue that the control path drains.
package frame
