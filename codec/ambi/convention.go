// SPDX-License-Identifier: EPL-2.0

package ambi

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrUnknownNorm  = errors.New("unknown normalization")
	ErrUnknownOrder = errors.New("unknown channel order")
	ErrFuMaOrder    = errors.New("FuMa is only defined for first order")
)

// Norm is an ambisonic normalization convention.
type Norm int

const (
	N3D Norm = iota
	SN3D
	FuMa
)

func (n Norm) String() string {
	switch n {
	case N3D:
		return "n3d"
	case SN3D:
		return "sn3d"
	case FuMa:
		return "fuma"
	default:
		return "unknown"
	}
}

// ParseNorm accepts n3d, sn3d and fuma in any case.
func ParseNorm(s string) (Norm, error) {
	switch strings.ToLower(s) {
	case "n3d":
		return N3D, nil
	case "sn3d":
		return SN3D, nil
	case "fuma":
		return FuMa, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownNorm, s)
}

// ChannelOrder is an ambisonic channel ordering convention.
type ChannelOrder int

const (
	OrderACN ChannelOrder = iota
	OrderFuMa
)

func (o ChannelOrder) String() string {
	if o == OrderFuMa {
		return "fuma"
	}
	return "acn"
}

func ParseChannelOrder(s string) (ChannelOrder, error) {
	switch strings.ToLower(s) {
	case "acn":
		return OrderACN, nil
	case "fuma":
		return OrderFuMa, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOrder, s)
}

// InputMap converts an incoming stream to ACN/N3D: ACN channel k reads
// input channel Index[k] scaled by Gain[k].
type InputMap struct {
	Index []int
	Gain  []float32
}

// NewInputMap builds the conversion for a stream of the given order and
// conventions. FuMa ordering or normalization requires order 1.
func NewInputMap(order int, chOrder ChannelOrder, norm Norm) (InputMap, error) {
	if (chOrder == OrderFuMa || norm == FuMa) && order != 1 {
		return InputMap{}, fmt.Errorf("%w: order %d", ErrFuMaOrder, order)
	}

	k := Channels(order)
	m := InputMap{Index: make([]int, k), Gain: make([]float32, k)}
	for i := range k {
		m.Index[i] = i
		switch norm {
		case N3D:
			m.Gain[i] = 1
		case SN3D:
			m.Gain[i] = float32(math.Sqrt(float64(2*Degree(i) + 1)))
		case FuMa:
			if i == 0 {
				m.Gain[i] = math.Sqrt2
			} else {
				m.Gain[i] = float32(math.Sqrt(3))
			}
		}
	}

	if chOrder == OrderFuMa {
		// FuMa is W X Y Z; ACN is W Y Z X.
		copy(m.Index, []int{0, 2, 3, 1})
	}

	return m, nil
}

// Apply converts one frame from in into dst, both holding len(m.Index)
// channels of n samples.
func (m InputMap) Apply(dst, in [][]float32, n int) {
	for k, src := range m.Index {
		g := m.Gain[k]
		s := in[src][:n]
		d := dst[k][:n]
		for i, v := range s {
			d[i] = v * g
		}
	}
}
