// SPDX-License-Identifier: EPL-2.0

package ambidec

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/ik5/framebridge/codec/ambi"
)

var ErrUnknownMethod = errors.New("ambidec: unknown decoding method")

// Method is a loudspeaker decoding method.
type Method int

const (
	SAD    Method = iota // sampling
	MMD                  // mode matching
	EPAD                 // energy preserving
	AllRAD               // all-round, through a virtual t-design-like layout
)

func (m Method) String() string {
	switch m {
	case SAD:
		return "sad"
	case MMD:
		return "mmd"
	case EPAD:
		return "epad"
	case AllRAD:
		return "allrad"
	default:
		return "unknown"
	}
}

func ParseMethod(s string) (Method, error) {
	for m := SAD; m <= AllRAD; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

const (
	virtualSpeakers = 240
	normGrid        = 256
)

// decodingMatrix returns the len(spk) x Channels(order) matrix decoding an
// N3D stream onto spk, scaled so a plane wave carries unit energy on
// average over the sphere.
func decodingMatrix(method Method, order int, spk []ambi.Direction, maxRE bool) (*mat.Dense, error) {
	y := ambi.BasisMatrix(order, spk)
	l := len(spk)

	d := new(mat.Dense)
	switch method {
	case SAD:
		d.Scale(1/float64(l), y)
	case MMD:
		p, err := ambi.PseudoInverse(y.T())
		if err != nil {
			return nil, fmt.Errorf("mode matching: %w", err)
		}
		d = p
	case EPAD:
		var svd mat.SVD
		if !svd.Factorize(y, mat.SVDThin) {
			return nil, fmt.Errorf("energy preserving: %w", ambi.ErrSingular)
		}
		var u, v mat.Dense
		svd.UTo(&u)
		svd.VTo(&v)
		d.Mul(&u, v.T())
	case AllRAD:
		virt := ambi.Fibonacci(virtualSpeakers)
		var dv mat.Dense
		dv.Scale(1/float64(virtualSpeakers), ambi.BasisMatrix(order, virt))
		d.Mul(panGains(spk, virt), &dv)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMethod, method)
	}

	if maxRE {
		w := ambi.MaxREWeights(order)
		d.Apply(func(_, k int, v float64) float64 { return v * w[k] }, d)
	}

	return normalize(d, order), nil
}

// panGains is the len(spk) x len(virt) matrix panning each virtual speaker
// onto the real ones, energy normalized.
func panGains(spk, virt []ambi.Direction) *mat.Dense {
	const sharpness = 4

	g := mat.NewDense(len(spk), len(virt), nil)
	col := make([]float64, len(spk))
	for t, v := range virt {
		vv := v.Vector()
		var e float64
		for o, s := range spk {
			sv := s.Vector()
			dot := vv[0]*sv[0] + vv[1]*sv[1] + vv[2]*sv[2]
			col[o] = math.Pow(max(0, dot), sharpness)
			e += col[o] * col[o]
		}
		if e < 1e-12 {
			clear(col)
			col[ambi.Nearest(spk, v)] = 1
			e = 1
		}
		e = math.Sqrt(e)
		for o := range col {
			g.Set(o, t, col[o]/e)
		}
	}
	return g
}

func normalize(d *mat.Dense, order int) *mat.Dense {
	y := ambi.BasisMatrix(order, ambi.Fibonacci(normGrid))

	var g mat.Dense
	g.Mul(y, d.T())
	e := mat.Norm(&g, 2) // Frobenius
	if e == 0 {
		return d
	}
	scale := math.Sqrt(normGrid) / e
	d.Scale(scale, d)
	return d
}
