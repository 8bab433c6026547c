// SPDX-License-Identifier: EPL-2.0

package ambi

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Orientation is a yaw-pitch-roll rotation in degrees. Positive yaw turns
// the sound field to the left, positive pitch tilts the front upward.
type Orientation struct {
	Yaw, Pitch, Roll             float64
	FlipYaw, FlipPitch, FlipRoll bool
}

func (o Orientation) matrix() [3][3]float64 {
	yaw, pitch, roll := o.Yaw, o.Pitch, o.Roll
	if o.FlipYaw {
		yaw = -yaw
	}
	if o.FlipPitch {
		pitch = -pitch
	}
	if o.FlipRoll {
		roll = -roll
	}

	rz := rot(2, yaw)
	ry := rot(1, -pitch)
	rx := rot(0, roll)
	return mul3(rz, mul3(ry, rx))
}

func rot(axis int, deg float64) [3][3]float64 {
	s, c := math.Sincos(deg * math.Pi / 180)
	switch axis {
	case 0:
		return [3][3]float64{{1, 0, 0}, {0, c, -s}, {0, s, c}}
	case 1:
		return [3][3]float64{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
	default:
		return [3][3]float64{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
	}
}

func mul3(a, b [3][3]float64) [3][3]float64 {
	var r [3][3]float64
	for i := range 3 {
		for j := range 3 {
			for k := range 3 {
				r[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return r
}

// applyInverse computes m^T v, the inverse rotation of v.
func applyInverse(m [3][3]float64, v [3]float64) [3]float64 {
	var r [3]float64
	for i := range 3 {
		for k := range 3 {
			r[i] += m[k][i] * v[k]
		}
	}
	return r
}

// RotationMatrix returns the Channels(order) square matrix, flattened
// row-major, that rotates an ACN/N3D sound field by o. A source encoded at
// direction d comes out encoded at the rotated direction.
func RotationMatrix(order int, o Orientation) ([]float32, error) {
	k := Channels(order)
	grid := Fibonacci(4 * k)
	r := o.matrix()

	rotated := make([]Direction, len(grid))
	for i, d := range grid {
		rotated[i] = FromVector(applyInverse(r, d.Vector()))
	}

	pinv, err := PseudoInverse(BasisMatrix(order, grid))
	if err != nil {
		return nil, err
	}

	var m mat.Dense
	m.Mul(pinv, BasisMatrix(order, rotated))
	return Float32(&m), nil
}
