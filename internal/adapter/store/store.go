// Package store defines the read-only storage contract the grid adapters
// consume, with helpers shared by every backend.
package store

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/spf13/cast"

	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// ErrClosed indicates use of a dataset after Close.
var ErrClosed = errors.New("store: dataset is closed")

// DefaultDepthDimensions are the dimension names recognised as vertical
// axes, in lookup order.
var DefaultDepthDimensions = []string{"depth", "deptht", "depthu", "depthv", "depthw", "z", "siglay", "siglev"}

// Variable is a named, read-only n-dimensional array.
type Variable interface {
	Name() string
	Dims() []string
	Shape() []int
	Attrs() map[string]any
	// Read returns the hyperslab described by sel (one range per dimension).
	Read(sel []ndarray.Range) (*ndarray.Array, error)
}

// Dataset is an open handle on one model output.
type Dataset interface {
	Variables() domain.VariableList
	Variable(key string) (Variable, error)
	HasVariable(key string) bool
	// HasCoord reports whether a coordinate variable named name exists.
	HasCoord(name string) bool
	// Depths returns the values of the dataset's primary depth axis.
	Depths() ([]float64, error)
	DepthDimensions() []string
	Timestamps() ([]time.Time, error)
	// TimeIndex returns the index of t on the time axis.
	TimeIndex(t time.Time) (int, error)
	Close() error
}

// ReadAll reads a whole variable.
func ReadAll(v Variable) (*ndarray.Array, error) {
	shape := v.Shape()
	sel := make([]ndarray.Range, len(shape))
	for i, n := range shape {
		sel[i] = ndarray.All(n)
	}
	return v.Read(sel)
}

// Describe builds the domain description of a variable from its
// attributes (long_name, units, valid_min, valid_max).
func Describe(v Variable) domain.Variable {
	attrs := v.Attrs()
	out := domain.Variable{
		Key:        v.Name(),
		Name:       AttrString(attrs, "long_name"),
		Unit:       AttrString(attrs, "units"),
		Dimensions: v.Dims(),
	}
	if out.Name == "" {
		out.Name = v.Name()
	}
	if f, ok := AttrFloat(attrs, "valid_min"); ok {
		out.ValidMin = &f
	}
	if f, ok := AttrFloat(attrs, "valid_max"); ok {
		out.ValidMax = &f
	}
	return out
}

// DescribeAll builds a VariableList from every variable named in keys.
func DescribeAll(ds interface {
	Variable(key string) (Variable, error)
}, keys []string) (domain.VariableList, error) {
	vars := make([]domain.Variable, 0, len(keys))
	for _, k := range keys {
		v, err := ds.Variable(k)
		if err != nil {
			return domain.VariableList{}, err
		}
		vars = append(vars, Describe(v))
	}
	return domain.NewVariableList(vars...)
}

// AttrString returns a string attribute, or "".
func AttrString(attrs map[string]any, name string) string {
	v, ok := attrs[name]
	if !ok {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	return s
}

// AttrFloat returns the first value of a numeric attribute.
func AttrFloat(attrs map[string]any, name string) (float64, bool) {
	v, ok := attrs[name]
	if !ok || v == nil {
		return 0, false
	}
	if s, ok := v.([]float64); ok {
		if len(s) == 0 {
			return 0, false
		}
		return s[0], true
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}

// DepthDimension returns the first of dims that is a depth dimension.
func DepthDimension(dims, depthDims []string) (string, bool) {
	for _, d := range dims {
		for _, dd := range depthDims {
			if d == dd {
				return d, true
			}
		}
	}
	return "", false
}

// FindTime returns the index of the timestamp in ts closest to t. A relTol
// of zero requires an exact match; otherwise the closest ts[i] must satisfy
// |ts[i]-t| <= relTol*|t| in Unix seconds.
func FindTime(ts []time.Time, t time.Time, relTol float64) (int, error) {
	target := float64(t.UnixNano()) / 1e9
	best, bestDiff := -1, math.Inf(1)
	for i, v := range ts {
		if relTol == 0 {
			if v.Equal(t) {
				return i, nil
			}
			continue
		}
		diff := math.Abs(float64(v.UnixNano())/1e9 - target)
		if diff <= relTol*math.Abs(target) && diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: %s", domain.ErrTimeNotFound, t.UTC().Format(time.RFC3339))
	}
	return best, nil
}

// TimeRange resolves start and end to an inclusive index range with index.
// A zero start selects the first time and a zero end selects start alone.
// Reversed ends are swapped.
func TimeRange(index func(time.Time) (int, error), start, end time.Time) (int, int, error) {
	i0 := 0
	if !start.IsZero() {
		var err error
		if i0, err = index(start); err != nil {
			return 0, 0, err
		}
	}
	if end.IsZero() {
		return i0, i0, nil
	}
	i1, err := index(end)
	if err != nil {
		return 0, 0, err
	}
	if i1 < i0 {
		i0, i1 = i1, i0
	}
	return i0, i1, nil
}
