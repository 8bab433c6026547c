// SPDX-License-Identifier: EPL-2.0

package ambi

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var ErrSingular = errors.New("matrix has no usable singular values")

// BasisMatrix is the len(dirs) x Channels(order) matrix of harmonics
// sampled at dirs.
func BasisMatrix(order int, dirs []Direction) *mat.Dense {
	k := Channels(order)
	y := mat.NewDense(len(dirs), k, nil)
	row := make([]float64, k)
	for i, d := range dirs {
		Basis(order, d.Azimuth, d.Elevation, row)
		y.SetRow(i, row)
	}
	return y
}

// PseudoInverse computes the Moore-Penrose inverse of a through its SVD,
// discarding singular values below 1e-10 of the largest.
func PseudoInverse(a mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, ErrSingular
	}

	values := svd.Values(nil)
	if len(values) == 0 || values[0] == 0 {
		return nil, ErrSingular
	}
	tol := values[0] * 1e-10
	inv := make([]float64, len(values))
	for i, s := range values {
		if s > tol {
			inv[i] = 1 / s
		}
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var vs mat.Dense
	vs.Apply(func(_, j int, x float64) float64 { return x * inv[j] }, &v)

	var p mat.Dense
	p.Mul(&vs, u.T())
	return &p, nil
}

// Float32 flattens m row-major.
func Float32(m mat.Matrix) []float32 {
	r, c := m.Dims()
	out := make([]float32, r*c)
	for i := range r {
		for j := range c {
			out[i*c+j] = float32(m.At(i, j))
		}
	}
	return out
}
