// SPDX-License-Identifier: EPL-2.0

package frame

// MaxChannels bounds the input and output channel counts of a processor.
const MaxChannels = 64

// Codec is a processing core that works on fixed frames.
//
// Init, Configure and Close run on the control path. InitializeExpensiveState
// runs only on a background task and may overlap with setters the codec
// exposes; implementations guard pending settings with their own lock and
// publish the state Process reads atomically. Process runs on the real-time
// path, only while the owning Lifecycle reports StatusReady, and must not
// block or allocate.
type Codec interface {
	// Init sets the sample rate. It is cheap.
	Init(sampleRate int) error
	// FrameSize is the fixed number of samples per channel Process consumes.
	FrameSize() int
	// Configure records channel counts for the next expensive initialization.
	Configure(numIn, numOut int) error
	// InitializeExpensiveState builds filters, tables and anything else that
	// is too slow for the real-time path.
	InitializeExpensiveState() error
	// Process consumes one frame from in and writes one frame to out.
	Process(in, out [][]float32, numIn, numOut, frameLength int)
	Close() error
}

// Spawner starts background tasks. internal/worker.Pool satisfies it.
type Spawner interface {
	Go(fn func())
}

type goSpawner struct{}

func (goSpawner) Go(fn func()) { go fn() }
