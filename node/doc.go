// SPDX-License-Identifier: EPL-2.0

// Package node builds the processing nodes a host drives: binaural
// rendering, loudspeaker decoding, amplitude panning and direction of
// arrival estimation. Each node wraps a codec in a [frame.Processor].
//
// # Settings
//
// Node setters validate their value and log a rejection at warn level,
// leaving the previous value in place. Structural settings, such as a
// decoding method or an HRIR file, invalidate the codec and request a new
// background initialization; the node emits silence until it completes.
// Live settings, such as a rotation or a source direction, apply from the
// next frame.
//
// HRIR files are loaded through the [asset.Loader] during initialization,
// so a file that fails to decode is reported as a failed initialization
// and leaves the node silent. A path that does not exist is rejected
// immediately.
//
// # Layouts
//
// [Node.Reconfigure] derives the host layout from the input channel count
// and the node's configuration. A decoder whose output count depends on a
// setting reapplies its layout itself; hosts should read
// [frame.Processor.Layout] after changing it.
package node
