// SPDX-License-Identifier: EPL-2.0

package binaural

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/ik5/framebridge/asset"
	"github.com/ik5/framebridge/codec/ambi"
)

var (
	ErrUnknownMethod  = errors.New("binaural: unknown decoding method")
	ErrUnknownPreproc = errors.New("binaural: unknown HRIR pre-processing")
)

// Method selects how the spherical-harmonic filters are fitted to the HRIRs.
type Method int

const (
	LS        Method = iota // least squares
	LSDiff                  // least squares with diffuse-field energy matching
	SPR                     // spatial resampling
	TimeAlign               // least squares on onset-aligned responses
	MagLS                   // time-aligned fit with diffuse-field matching
)

var methodNames = [...]string{"ls", "lsdiff", "spr", "timealign", "magls"}

func (m Method) String() string {
	if m < LS || m > MagLS {
		return "unknown"
	}
	return methodNames[m]
}

func ParseMethod(s string) (Method, error) {
	for i, name := range methodNames {
		if strings.EqualFold(s, name) {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Preproc is the HRIR conditioning applied before fitting.
type Preproc int

const (
	PreprocNone  Preproc = iota
	PreprocEQ            // diffuse-field equalization
	PreprocPhase         // common onset removal, keeping interaural delay
	PreprocAll
)

var preprocNames = [...]string{"none", "eq", "phase", "all"}

func (p Preproc) String() string {
	if p < PreprocNone || p > PreprocAll {
		return "unknown"
	}
	return preprocNames[p]
}

func ParsePreproc(s string) (Preproc, error) {
	for i, name := range preprocNames {
		if strings.EqualFold(s, name) {
			return Preproc(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownPreproc, s)
}

// fitOptions are the structural settings that shape the filters.
type fitOptions struct {
	method  Method
	maxRE   bool
	preproc Preproc
	diffuse bool
	truncEQ bool
	order   int
	hrirs   *asset.HRIRSet
}

// fit returns the left and right filters, Channels(order) rows of taps
// each, that render an N3D stream binaurally.
func fit(o fitOptions) (left, right [][]float32, err error) {
	h := o.hrirs
	l, r := copySet(h.Left), copySet(h.Right)

	if o.preproc == PreprocPhase || o.preproc == PreprocAll {
		removeCommonOnset(l, r)
	}
	if o.preproc == PreprocEQ || o.preproc == PreprocAll {
		equalize(l, r)
	}
	if o.method == TimeAlign || o.method == MagLS {
		alignOnsets(l)
		alignOnsets(r)
	}

	y := ambi.BasisMatrix(o.order, h.Directions)
	var proj *mat.Dense
	switch o.method {
	case SPR:
		proj = new(mat.Dense)
		proj.Scale(1/float64(len(h.Directions)), y.T())
	default:
		proj, err = ambi.PseudoInverse(y)
		if err != nil {
			return nil, nil, fmt.Errorf("fit HRIRs: %w", err)
		}
	}

	var weights []float64
	if o.maxRE {
		weights = ambi.MaxREWeights(o.order)
	}
	matchDiffuse := o.diffuse || o.method == LSDiff || o.method == MagLS

	ears := [2][][]float32{l, r}
	var out [2][][]float32
	for e, irs := range ears {
		hm := toDense(irs)
		var f mat.Dense
		f.Mul(proj, hm)
		if weights != nil {
			f.Apply(func(k, _ int, v float64) float64 { return v * weights[k] }, &f)
		}
		if matchDiffuse {
			f.Scale(energyRatio(y, &f, hm), &f)
		}
		if o.truncEQ {
			f.Scale(energyRatio(y, difference(&f), difference(hm)), &f)
		}
		out[e] = rows(&f)
	}

	return out[0], out[1], nil
}

// energyRatio is the gain that gives the reconstruction y·f the energy of
// target.
func energyRatio(y mat.Matrix, f, target *mat.Dense) float64 {
	var rec mat.Dense
	rec.Mul(y, f)
	er := mat.Norm(&rec, 2)
	if er == 0 {
		return 1
	}
	return mat.Norm(target, 2) / er
}

// difference is the first difference along each row, a crude high-pass.
func difference(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	d := mat.NewDense(r, c, nil)
	for i := range r {
		prev := 0.0
		for j := range c {
			v := m.At(i, j)
			d.Set(i, j, v-prev)
			prev = v
		}
	}
	return d
}

func toDense(irs [][]float32) *mat.Dense {
	taps := len(irs[0])
	m := mat.NewDense(len(irs), taps, nil)
	for i, ir := range irs {
		for j, v := range ir {
			m.Set(i, j, float64(v))
		}
	}
	return m
}

func rows(m *mat.Dense) [][]float32 {
	r, c := m.Dims()
	out := make([][]float32, r)
	for i := range r {
		out[i] = make([]float32, c)
		for j := range c {
			out[i][j] = float32(m.At(i, j))
		}
	}
	return out
}

func copySet(irs [][]float32) [][]float32 {
	out := make([][]float32, len(irs))
	for i, ir := range irs {
		out[i] = append([]float32(nil), ir...)
	}
	return out
}

// onset is the first sample reaching a tenth of the peak.
func onset(ir []float32) int {
	var peak float32
	for _, v := range ir {
		peak = max(peak, abs(v))
	}
	if peak == 0 {
		return 0
	}
	for i, v := range ir {
		if abs(v) >= peak/10 {
			return i
		}
	}
	return 0
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

// advance shifts ir earlier by n samples, zero filling the tail.
func advance(ir []float32, n int) {
	if n <= 0 {
		return
	}
	n = min(n, len(ir))
	copy(ir, ir[n:])
	clear(ir[len(ir)-n:])
}

// alignOnsets moves every response to the earliest onset in the set.
func alignOnsets(irs [][]float32) {
	first := math.MaxInt
	onsets := make([]int, len(irs))
	for i, ir := range irs {
		onsets[i] = onset(ir)
		first = min(first, onsets[i])
	}
	for i, ir := range irs {
		advance(ir, onsets[i]-first)
	}
}

// removeCommonOnset shifts each direction's pair so its earlier ear starts
// at the set's earliest onset. The interaural delay is kept.
func removeCommonOnset(l, r [][]float32) {
	pair := make([]int, len(l))
	first := math.MaxInt
	for i := range l {
		pair[i] = min(onset(l[i]), onset(r[i]))
		first = min(first, pair[i])
	}
	for i := range l {
		advance(l[i], pair[i]-first)
		advance(r[i], pair[i]-first)
	}
}

// equalize scales the set to unit mean energy per response.
func equalize(l, r [][]float32) {
	var e float64
	for i := range l {
		for _, v := range l[i] {
			e += float64(v) * float64(v)
		}
		for _, v := range r[i] {
			e += float64(v) * float64(v)
		}
	}
	if e == 0 {
		return
	}
	g := float32(1 / math.Sqrt(e/float64(2*len(l))))
	for _, set := range [][][]float32{l, r} {
		for _, ir := range set {
			for j := range ir {
				ir[j] *= g
			}
		}
	}
}
