// Package memory implements an in-memory dataset, used for generated
// fixtures and tests.
package memory

import (
	"fmt"
	"sync"
	"time"

	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// Variable is an in-memory variable.
type Variable struct {
	name  string
	attrs map[string]any
	data  *ndarray.Array
}

// Name returns the variable key.
func (v *Variable) Name() string { return v.name }

// Dims returns the dimension names.
func (v *Variable) Dims() []string { return append([]string(nil), v.data.Dims...) }

// Shape returns the axis lengths.
func (v *Variable) Shape() []int { return append([]int(nil), v.data.Shape...) }

// Attrs returns a copy of the attributes.
func (v *Variable) Attrs() map[string]any {
	out := make(map[string]any, len(v.attrs))
	for k, a := range v.attrs {
		out[k] = a
	}
	return out
}

// Read copies the selected hyperslab.
func (v *Variable) Read(sel []ndarray.Range) (*ndarray.Array, error) {
	out, err := v.data.Select(sel)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", v.name, err)
	}
	return out, nil
}

// Dataset is an in-memory store.Dataset.
type Dataset struct {
	mu        sync.RWMutex
	order     []string
	vars      map[string]*Variable
	times     []time.Time
	depthVar  string
	depthDims []string
	timeTol   float64
	closed    bool
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{
		vars:      make(map[string]*Variable),
		depthDims: store.DefaultDepthDimensions,
	}
}

// Add registers a variable. It replaces an existing variable of the same name.
func (d *Dataset) Add(name string, data *ndarray.Array, attrs map[string]any) *Dataset {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.vars[name]; !ok {
		d.order = append(d.order, name)
	}
	if attrs == nil {
		attrs = map[string]any{}
	}
	d.vars[name] = &Variable{name: name, attrs: attrs, data: data}
	return d
}

// SetTimes sets the time axis and adds a matching coordinate variable
// named dim in seconds since the Unix epoch.
func (d *Dataset) SetTimes(dim string, ts []time.Time) *Dataset {
	secs := make([]float64, len(ts))
	for i, t := range ts {
		secs[i] = float64(t.Unix())
	}
	d.Add(dim, ndarray.Vector(dim, secs), map[string]any{"units": "seconds since 1970-01-01 00:00:00"})
	d.mu.Lock()
	d.times = append([]time.Time(nil), ts...)
	d.mu.Unlock()
	return d
}

// SetDepth names the variable holding the primary depth axis.
func (d *Dataset) SetDepth(name string) *Dataset {
	d.mu.Lock()
	d.depthVar = name
	d.mu.Unlock()
	return d
}

// SetTimeTolerance sets the relative tolerance used by TimeIndex.
func (d *Dataset) SetTimeTolerance(rel float64) *Dataset {
	d.mu.Lock()
	d.timeTol = rel
	d.mu.Unlock()
	return d
}

// Variables describes every variable in insertion order.
func (d *Dataset) Variables() domain.VariableList {
	d.mu.RLock()
	keys := append([]string(nil), d.order...)
	d.mu.RUnlock()
	list, err := store.DescribeAll(d, keys)
	if err != nil {
		return domain.VariableList{}
	}
	return list
}

// Variable returns the named variable.
func (d *Dataset) Variable(key string) (store.Variable, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, store.ErrClosed
	}
	v, ok := d.vars[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownVariable, key)
	}
	return v, nil
}

// HasVariable reports whether key exists.
func (d *Dataset) HasVariable(key string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.vars[key]
	return ok
}

// HasCoord reports whether a coordinate variable exists.
func (d *Dataset) HasCoord(name string) bool {
	return d.HasVariable(name)
}

// Depths returns the primary depth axis.
func (d *Dataset) Depths() ([]float64, error) {
	d.mu.RLock()
	name := d.depthVar
	d.mu.RUnlock()
	if name == "" {
		for _, dim := range d.DepthDimensions() {
			if d.HasVariable(dim) {
				name = dim
				break
			}
		}
	}
	if name == "" {
		return nil, domain.ErrNoDepthAxis
	}
	v, err := d.Variable(name)
	if err != nil {
		return nil, err
	}
	arr, err := store.ReadAll(v)
	if err != nil {
		return nil, err
	}
	return arr.Data, nil
}

// DepthDimensions returns the recognised vertical dimension names.
func (d *Dataset) DepthDimensions() []string {
	return append([]string(nil), d.depthDims...)
}

// Timestamps returns the time axis.
func (d *Dataset) Timestamps() ([]time.Time, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]time.Time(nil), d.times...), nil
}

// TimeIndex locates t on the time axis.
func (d *Dataset) TimeIndex(t time.Time) (int, error) {
	ts, _ := d.Timestamps()
	d.mu.RLock()
	tol := d.timeTol
	d.mu.RUnlock()
	return store.FindTime(ts, t, tol)
}

// Close marks the dataset closed.
func (d *Dataset) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
