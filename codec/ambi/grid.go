// SPDX-License-Identifier: EPL-2.0

package ambi

import "math"

// Direction is a point on the sphere in degrees. Azimuth is counterclockwise
// from the front, elevation upward from the horizontal plane.
type Direction struct {
	Azimuth   float64
	Elevation float64
}

// Vector is the unit vector (front, left, up).
func (d Direction) Vector() [3]float64 {
	az := d.Azimuth * math.Pi / 180
	el := d.Elevation * math.Pi / 180
	return [3]float64{
		math.Cos(el) * math.Cos(az),
		math.Cos(el) * math.Sin(az),
		math.Sin(el),
	}
}

// FromVector is the direction of v, which need not be normalized.
func FromVector(v [3]float64) Direction {
	return Direction{
		Azimuth:   math.Atan2(v[1], v[0]) * 180 / math.Pi,
		Elevation: math.Atan2(v[2], math.Hypot(v[0], v[1])) * 180 / math.Pi,
	}
}

// Angle is the great-circle distance between a and b in degrees.
func Angle(a, b Direction) float64 {
	va, vb := a.Vector(), b.Vector()
	dot := va[0]*vb[0] + va[1]*vb[1] + va[2]*vb[2]
	return math.Acos(max(-1, min(1, dot))) * 180 / math.Pi
}

// WrapAzimuth maps az into (-180, 180].
func WrapAzimuth(az float64) float64 {
	az = math.Mod(az, 360)
	if az > 180 {
		az -= 360
	} else if az <= -180 {
		az += 360
	}
	return az
}

// Fibonacci spreads n directions nearly uniformly over the sphere.
func Fibonacci(n int) []Direction {
	dirs := make([]Direction, n)
	golden := math.Pi * (3 - math.Sqrt(5))
	for i := range n {
		z := 1 - (2*float64(i)+1)/float64(n)
		dirs[i] = Direction{
			Azimuth:   WrapAzimuth(float64(i) * golden * 180 / math.Pi),
			Elevation: math.Asin(z) * 180 / math.Pi,
		}
	}
	return dirs
}

// Ring spaces n directions evenly on the horizontal plane, starting at the
// front.
func Ring(n int) []Direction {
	dirs := make([]Direction, n)
	for i := range n {
		dirs[i] = Direction{Azimuth: WrapAzimuth(360 / float64(n) * float64(i))}
	}
	return dirs
}

// Nearest is the index of the direction in dirs closest to d.
func Nearest(dirs []Direction, d Direction) int {
	best, bestAngle := 0, math.Inf(1)
	for i, c := range dirs {
		if a := Angle(c, d); a < bestAngle {
			best, bestAngle = i, a
		}
	}
	return best
}

// DefaultLayout is the loudspeaker layout used until directions are set: a
// horizontal ring for up to eight speakers, a spherical spread beyond.
func DefaultLayout(n int) []Direction {
	if n <= 8 {
		return Ring(n)
	}
	return Fibonacci(n)
}
