// Package ndarray provides a small labeled n-dimensional float64 array.
//
// Arrays are row-major. Missing (masked) samples are stored as NaN, so the
// mask travels with the data through every operation.
package ndarray

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrShape indicates incompatible or malformed shapes.
	ErrShape = errors.New("ndarray: shape mismatch")
	// ErrSelection indicates an out-of-range selection.
	ErrSelection = errors.New("ndarray: selection out of range")
)

// Range selects [Start, Stop) along one axis. A Single range selects exactly
// one index and drops the axis from the result.
type Range struct {
	Start  int
	Stop   int
	Single bool
}

// All selects a whole axis of length n.
func All(n int) Range {
	return Range{Start: 0, Stop: n}
}

// Index selects a single index and drops the axis.
func Index(i int) Range {
	return Range{Start: i, Stop: i + 1, Single: true}
}

// Span selects [start, stop) keeping the axis.
func Span(start, stop int) Range {
	return Range{Start: start, Stop: stop}
}

// Len returns the number of selected indices.
func (r Range) Len() int {
	if r.Stop < r.Start {
		return 0
	}
	return r.Stop - r.Start
}

// Array is a labeled n-dimensional array of float64 values.
type Array struct {
	Dims  []string
	Shape []int
	Data  []float64
}

// New returns a zero-filled array.
func New(dims []string, shape []int) *Array {
	return &Array{
		Dims:  append([]string(nil), dims...),
		Shape: append([]int(nil), shape...),
		Data:  make([]float64, product(shape)),
	}
}

// Full returns an array filled with v.
func Full(dims []string, shape []int, v float64) *Array {
	a := New(dims, shape)
	for i := range a.Data {
		a.Data[i] = v
	}
	return a
}

// Masked returns an array where every sample is missing.
func Masked(dims []string, shape []int) *Array {
	return Full(dims, shape, math.NaN())
}

// Scalar returns a 0-d array holding v.
func Scalar(v float64) *Array {
	return &Array{Data: []float64{v}}
}

// FromSlice wraps data without copying.
func FromSlice(dims []string, shape []int, data []float64) (*Array, error) {
	if len(dims) != len(shape) {
		return nil, fmt.Errorf("%w: %d dims for %d axes", ErrShape, len(dims), len(shape))
	}
	if product(shape) != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShape, shape, product(shape), len(data))
	}
	return &Array{Dims: dims, Shape: shape, Data: data}, nil
}

// Vector wraps a 1-d slice.
func Vector(dim string, data []float64) *Array {
	return &Array{Dims: []string{dim}, Shape: []int{len(data)}, Data: data}
}

// Size returns the number of elements.
func (a *Array) Size() int {
	return len(a.Data)
}

// NDim returns the number of axes.
func (a *Array) NDim() int {
	return len(a.Shape)
}

// IsScalar reports whether a holds a single value with no axes.
func (a *Array) IsScalar() bool {
	return len(a.Shape) == 0
}

// Value returns the first element, or NaN for an empty array.
func (a *Array) Value() float64 {
	if len(a.Data) == 0 {
		return math.NaN()
	}
	return a.Data[0]
}

// Axis returns the position of the named dimension, or -1.
func (a *Array) Axis(name string) int {
	for i, d := range a.Dims {
		if d == name {
			return i
		}
	}
	return -1
}

// Strides returns the row-major element strides.
func (a *Array) Strides() []int {
	return strides(a.Shape)
}

// Offset returns the flat offset of idx.
func (a *Array) Offset(idx ...int) int {
	off := 0
	st := a.Strides()
	for i, v := range idx {
		off += v * st[i]
	}
	return off
}

// At returns the element at idx.
func (a *Array) At(idx ...int) float64 {
	return a.Data[a.Offset(idx...)]
}

// Set stores v at idx.
func (a *Array) Set(v float64, idx ...int) {
	a.Data[a.Offset(idx...)] = v
}

// Clone returns a deep copy.
func (a *Array) Clone() *Array {
	return &Array{
		Dims:  append([]string(nil), a.Dims...),
		Shape: append([]int(nil), a.Shape...),
		Data:  append([]float64(nil), a.Data...),
	}
}

// Map returns a new array with f applied to every element.
func (a *Array) Map(f func(float64) float64) *Array {
	out := a.Clone()
	for i, v := range out.Data {
		out.Data[i] = f(v)
	}
	return out
}

// Select copies the hyperslab described by sel. Single ranges drop their axis.
func (a *Array) Select(sel []Range) (*Array, error) {
	if len(sel) != len(a.Shape) {
		return nil, fmt.Errorf("%w: %d ranges for %d axes", ErrSelection, len(sel), len(a.Shape))
	}
	count := make([]int, len(sel))
	for i, r := range sel {
		if r.Start < 0 || r.Stop > a.Shape[i] || r.Stop < r.Start {
			return nil, fmt.Errorf("%w: axis %d [%d, %d) of %d", ErrSelection, i, r.Start, r.Stop, a.Shape[i])
		}
		count[i] = r.Len()
	}

	var dims []string
	var shape []int
	for i, r := range sel {
		if r.Single {
			continue
		}
		dims = append(dims, a.dimName(i))
		shape = append(shape, count[i])
	}
	out := New(dims, shape)
	if len(out.Data) == 0 {
		return out, nil
	}

	st := a.Strides()
	base := 0
	for i, r := range sel {
		base += r.Start * st[i]
	}
	n := 0
	eachIndex(count, func(idx []int) {
		off := base
		for i, v := range idx {
			off += v * st[i]
		}
		out.Data[n] = a.Data[off]
		n++
	})
	return out, nil
}

// Transpose returns a copy with axes permuted so that result axis i is
// a's axis order[i].
func (a *Array) Transpose(order []int) (*Array, error) {
	if len(order) != len(a.Shape) {
		return nil, fmt.Errorf("%w: permutation %v for %d axes", ErrShape, order, len(a.Shape))
	}
	dims := make([]string, len(order))
	shape := make([]int, len(order))
	seen := make([]bool, len(order))
	for i, o := range order {
		if o < 0 || o >= len(order) || seen[o] {
			return nil, fmt.Errorf("%w: invalid permutation %v", ErrShape, order)
		}
		seen[o] = true
		dims[i] = a.dimName(o)
		shape[i] = a.Shape[o]
	}
	out := New(dims, shape)
	st := a.Strides()
	n := 0
	eachIndex(shape, func(idx []int) {
		off := 0
		for i, v := range idx {
			off += v * st[order[i]]
		}
		out.Data[n] = a.Data[off]
		n++
	})
	return out, nil
}

// Broadcast expands a onto the target dims and shape by name. Every axis of a
// must appear in dims with the same length (or length 1).
func (a *Array) Broadcast(dims []string, shape []int) (*Array, error) {
	st := a.Strides()
	mapped := make([]int, len(dims))
	for i := range mapped {
		mapped[i] = -1
	}
	for j, d := range a.Dims {
		found := false
		for i, td := range dims {
			if td != d {
				continue
			}
			if a.Shape[j] != shape[i] && a.Shape[j] != 1 {
				return nil, fmt.Errorf("%w: axis %q has length %d, want %d", ErrShape, d, a.Shape[j], shape[i])
			}
			if a.Shape[j] != 1 {
				mapped[i] = st[j]
			}
			found = true
			break
		}
		if !found && a.Shape[j] != 1 {
			return nil, fmt.Errorf("%w: axis %q not present in %v", ErrShape, d, dims)
		}
	}
	out := New(dims, shape)
	n := 0
	eachIndex(shape, func(idx []int) {
		off := 0
		for i, v := range idx {
			if mapped[i] >= 0 {
				off += v * mapped[i]
			}
		}
		out.Data[n] = a.Data[off]
		n++
	})
	return out, nil
}

// Combine applies f element-wise over a and b after aligning their axes by
// name. Result axes follow order (when it names them) and then any remaining
// axes of a and b in order of appearance.
func Combine(a, b *Array, order []string, f func(x, y float64) float64) (*Array, error) {
	dims, shape, err := unionAxes(a, b, order)
	if err != nil {
		return nil, err
	}
	ab, err := a.Broadcast(dims, shape)
	if err != nil {
		return nil, err
	}
	bb, err := b.Broadcast(dims, shape)
	if err != nil {
		return nil, err
	}
	for i := range ab.Data {
		ab.Data[i] = f(ab.Data[i], bb.Data[i])
	}
	return ab, nil
}

// Align broadcasts every array onto the union of their axes, ordered as in
// Combine.
func Align(order []string, arrays ...*Array) ([]*Array, error) {
	if len(arrays) == 0 {
		return nil, nil
	}
	acc := &Array{Dims: arrays[0].Dims, Shape: arrays[0].Shape}
	for _, arr := range arrays[1:] {
		dims, shape, err := unionAxes(acc, arr, order)
		if err != nil {
			return nil, err
		}
		acc = &Array{Dims: dims, Shape: shape}
	}
	dims, shape, err := unionAxes(acc, &Array{}, order)
	if err != nil {
		return nil, err
	}
	out := make([]*Array, len(arrays))
	for i, arr := range arrays {
		if out[i], err = arr.Broadcast(dims, shape); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func unionAxes(a, b *Array, order []string) ([]string, []int, error) {
	lengths := make(map[string]int)
	var seen []string
	add := func(arr *Array) error {
		for i, d := range arr.Dims {
			n := arr.Shape[i]
			if prev, ok := lengths[d]; ok {
				switch {
				case prev == n || n == 1:
				case prev == 1:
					lengths[d] = n
				default:
					return fmt.Errorf("%w: axis %q has lengths %d and %d", ErrShape, d, prev, n)
				}
				continue
			}
			lengths[d] = n
			seen = append(seen, d)
		}
		return nil
	}
	if err := add(a); err != nil {
		return nil, nil, err
	}
	if err := add(b); err != nil {
		return nil, nil, err
	}

	var dims []string
	used := make(map[string]bool)
	for _, d := range order {
		if _, ok := lengths[d]; ok && !used[d] {
			dims = append(dims, d)
			used[d] = true
		}
	}
	for _, d := range seen {
		if !used[d] {
			dims = append(dims, d)
			used[d] = true
		}
	}
	shape := make([]int, len(dims))
	for i, d := range dims {
		shape[i] = lengths[d]
	}
	return dims, shape, nil
}

func (a *Array) dimName(i int) string {
	if i < len(a.Dims) {
		return a.Dims[i]
	}
	return fmt.Sprintf("dim_%d", i)
}

func product(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func strides(shape []int) []int {
	st := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= shape[i]
	}
	return st
}

// eachIndex calls fn with every index of shape in row-major order. The slice
// passed to fn is reused between calls.
func eachIndex(shape []int, fn func(idx []int)) {
	if product(shape) == 0 {
		return
	}
	idx := make([]int, len(shape))
	for {
		fn(idx)
		i := len(shape) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return
		}
	}
}

// Unravel converts a flat row-major offset into an index for shape.
func Unravel(flat int, shape []int) []int {
	idx := make([]int, len(shape))
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] == 0 {
			continue
		}
		idx[i] = flat % shape[i]
		flat /= shape[i]
	}
	return idx
}
