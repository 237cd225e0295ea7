package spatial

import "math"

// Influence radius bounds in metres.
const (
	MinRadius = 5000.0
	MaxRadius = 50000.0
)

// Window is a half-open index range [Min, Max) along one axis.
type Window struct {
	Min int
	Max int
}

// Len returns the number of indices in the window.
func (w Window) Len() int {
	return w.Max - w.Min
}

// Contains reports whether i lies inside the window.
func (w Window) Contains(i int) bool {
	return i >= w.Min && i < w.Max
}

// ResolveWindow computes, per axis, a window covering every neighbour index
// plus padding. Spreads under 2 are widened by 2 on each side first, then a
// quarter of the spread is added on each side, and the result is clipped to
// [0, length].
func ResolveWindow(indices [][]int, lengths []int) []Window {
	out := make([]Window, len(lengths))
	for axis, length := range lengths {
		var idx []int
		if axis < len(indices) {
			idx = indices[axis]
		}
		if len(idx) == 0 {
			out[axis] = Window{Min: 0, Max: length}
			continue
		}
		lo, hi := idx[0], idx[0]
		for _, v := range idx[1:] {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi-lo < 2 {
			lo -= 2
			hi += 2
		}
		extent := hi - lo
		if extent < 2 {
			extent = 2
		}
		pad := extent / 4
		lo -= pad
		hi += pad

		out[axis] = Window{
			Min: clamp(lo, 0, length),
			Max: clamp(hi+1, 0, length),
		}
	}
	return out
}

// InfluenceRadius returns the farthest neighbour's surface distance clipped
// to [MinRadius, MaxRadius]. Padded slots are ignored.
func InfluenceRadius(dist2 [][]float64) float64 {
	maxDist := 0.0
	for _, row := range dist2 {
		for _, d2 := range row {
			if math.IsInf(d2, 1) || math.IsNaN(d2) {
				continue
			}
			if d := SurfaceDistance(d2); d > maxDist {
				maxDist = d
			}
		}
	}
	return math.Max(MinRadius, math.Min(MaxRadius, maxDist))
}

// clamp ensures value is within [minVal, maxVal] range.
func clamp(value, minVal, maxVal int) int {
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}
