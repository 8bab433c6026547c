// SPDX-License-Identifier: EPL-2.0

// Package ambi holds the spherical-harmonic math shared by the codecs:
// real harmonics in ACN order with N3D normalization, input conventions,
// max-rE weights, direction grids and sound-field rotation.
package ambi

import (
	"errors"
	"fmt"
	"math"
)

// MaxOrder is the highest ambisonic order the codecs accept.
const MaxOrder = 7

var ErrOrder = errors.New("unsupported ambisonic order")

// Channels is the channel count of a full-sphere stream of the given order.
func Channels(order int) int {
	return (order + 1) * (order + 1)
}

// OrderOf is the highest order a stream of nch channels can carry, or -1
// for no channels.
func OrderOf(nch int) int {
	if nch <= 0 {
		return -1
	}
	return int(math.Floor(math.Sqrt(float64(nch)))) - 1
}

// IsComplete reports whether nch is exactly (order+1)^2 for some order.
func IsComplete(nch int) bool {
	return nch > 0 && Channels(OrderOf(nch)) == nch
}

// CheckOrder rejects orders outside [1, MaxOrder].
func CheckOrder(order int) error {
	if order < 1 || order > MaxOrder {
		return fmt.Errorf("%w: %d", ErrOrder, order)
	}
	return nil
}

// ACN is the channel index of degree l and index m.
func ACN(l, m int) int {
	return l*l + l + m
}

// Degree returns the degree l of ACN channel k.
func Degree(k int) int {
	return int(math.Floor(math.Sqrt(float64(k))))
}

// Basis writes the N3D real spherical harmonics up to order for direction
// (azimuth, elevation) in degrees into dst, which must hold Channels(order)
// values.
func Basis(order int, azimuth, elevation float64, dst []float64) {
	az := azimuth * math.Pi / 180
	x := math.Sin(elevation * math.Pi / 180)
	cx := math.Sqrt(max(0, 1-x*x))

	for m := 0; m <= order; m++ {
		// P_m^m, then upward in l.
		pmm := 1.0
		for i := 1; i <= m; i++ {
			pmm *= float64(2*i-1) * cx
		}

		prev, cur := 0.0, pmm
		for l := m; l <= order; l++ {
			if l == m+1 {
				prev, cur = cur, x*float64(2*m+1)*pmm
			} else if l > m+1 {
				next := (float64(2*l-1)*x*cur - float64(l+m-1)*prev) / float64(l-m)
				prev, cur = cur, next
			}

			n := normN3D(l, m)
			if m == 0 {
				dst[ACN(l, 0)] = n * cur
				continue
			}
			dst[ACN(l, m)] = n * cur * math.Cos(float64(m)*az)
			dst[ACN(l, -m)] = n * cur * math.Sin(float64(m)*az)
		}
	}
}

func normN3D(l, m int) float64 {
	ratio := 1.0
	for k := l - m + 1; k <= l+m; k++ {
		ratio /= float64(k)
	}
	n := float64(2*l+1) * ratio
	if m != 0 {
		n *= 2
	}
	return math.Sqrt(n)
}

// MaxREWeights returns per-channel max-rE weights for order, normalized so
// the omnidirectional channel has weight 1.
func MaxREWeights(order int) []float64 {
	theta := 137.9 * math.Pi / 180 / (float64(order) + 1.51)
	x := math.Cos(theta)

	// Legendre polynomials P_l(x).
	p := make([]float64, order+1)
	p[0] = 1
	if order >= 1 {
		p[1] = x
	}
	for l := 2; l <= order; l++ {
		p[l] = (float64(2*l-1)*x*p[l-1] - float64(l-1)*p[l-2]) / float64(l)
	}

	w := make([]float64, Channels(order))
	for k := range w {
		w[k] = p[Degree(k)]
	}
	return w
}
