// SPDX-License-Identifier: EPL-2.0

package frame

// Status is the readiness of a codec.
type Status int32

const (
	StatusUninitialized Status = iota
	StatusInitializing
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	default:
		return "unknown"
	}
}
