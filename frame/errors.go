// SPDX-License-Identifier: EPL-2.0

package frame

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrChannelMismatch = errors.New("channel count does not match configuration")
	ErrBlockLength     = errors.New("block length does not match configuration")
	ErrNotConfigured   = errors.New("processor not configured")
	ErrInvalidLayout   = errors.New("invalid channel layout")
	ErrAllocation      = errors.New("buffer allocation failed")
	ErrOutOfRange      = errors.New("parameter out of range")
	ErrClosed          = errors.New("processor closed")
	ErrInitPanic       = errors.New("codec initialization panicked")
	ErrNotRequested    = errors.New("initialization not requested")
)

// RangeError reports a parameter outside its accepted interval. It matches
// ErrOutOfRange with errors.Is.
type RangeError struct {
	Param    string
	Value    float64
	Min, Max float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s = %g outside [%g, %g]", e.Param, e.Value, e.Min, e.Max)
}

func (e *RangeError) Unwrap() error { return ErrOutOfRange }

// CheckRange returns a *RangeError unless lo <= v <= hi.
func CheckRange(param string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return &RangeError{Param: param, Value: v, Min: lo, Max: hi}
	}
	return nil
}
