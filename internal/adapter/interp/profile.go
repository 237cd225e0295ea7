package interp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/interp"
)

// VerticalProfile linearly interpolates a profile sampled at depths onto
// targets. Masked samples are dropped first. Targets outside the span of the
// remaining samples are NaN; there is no extrapolation.
func VerticalProfile(depths, values, targets []float64) []float64 {
	out := make([]float64, len(targets))
	for i := range out {
		out[i] = math.NaN()
	}

	type sample struct{ z, v float64 }
	var valid []sample
	for i := range depths {
		if i >= len(values) || math.IsNaN(depths[i]) || math.IsNaN(values[i]) {
			continue
		}
		valid = append(valid, sample{depths[i], values[i]})
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].z < valid[j].z })

	// Collapse repeated depths; the fit needs strictly increasing abscissae.
	xs := make([]float64, 0, len(valid))
	ys := make([]float64, 0, len(valid))
	for _, s := range valid {
		if n := len(xs); n > 0 && xs[n-1] == s.z {
			continue
		}
		xs = append(xs, s.z)
		ys = append(ys, s.v)
	}

	switch len(xs) {
	case 0:
		return out
	case 1:
		for i, z := range targets {
			if z == xs[0] {
				out[i] = ys[0]
			}
		}
		return out
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return out
	}
	lo, hi := xs[0], xs[len(xs)-1]
	for i, z := range targets {
		if math.IsNaN(z) || z < lo || z > hi {
			continue
		}
		out[i] = pl.Predict(z)
	}
	return out
}
