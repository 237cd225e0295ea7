// Package netcdf serves model output stored in NetCDF files through the
// store.Dataset contract.
package netcdf

import (
	"fmt"
	"strings"
	"sync"
	"time"

	nc "github.com/fhs/go-netcdf/netcdf"
	"github.com/sirupsen/logrus"

	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// timeNames are the variable names probed for the time axis.
var timeNames = []string{"time_counter", "time", "t", "Time"}

// Options configure an opened dataset.
type Options struct {
	// TimeTolerance is the relative tolerance used by TimeIndex.
	TimeTolerance   float64
	DepthDimensions []string
	Logger          logrus.FieldLogger
}

// Dataset is a NetCDF file opened read-only. The underlying C library is
// not safe for concurrent use, so every read holds the dataset lock.
type Dataset struct {
	path string
	opts Options
	log  logrus.FieldLogger

	mu     sync.Mutex
	file   nc.Dataset
	closed bool
	order  []string
	vars   map[string]*Variable

	timesOnce sync.Once
	times     []time.Time
	timesErr  error
}

// Variable is one NetCDF variable.
type Variable struct {
	ds     *Dataset
	v      nc.Var
	typ    nc.Type
	name   string
	dims   []string
	shape  []int
	attrs  map[string]any
	fill   []float64
	scale  float64
	offset float64
}

// Open opens path and reads its variable metadata.
func Open(path string, opts Options) (*Dataset, error) {
	if len(opts.DepthDimensions) == 0 {
		opts.DepthDimensions = store.DefaultDepthDimensions
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	f, err := nc.OpenFile(path, nc.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file: %w", err)
	}

	ds := &Dataset{
		path: path,
		opts: opts,
		log:  opts.Logger.WithField("dataset", path),
		file: f,
		vars: make(map[string]*Variable),
	}
	if err := ds.scan(); err != nil {
		_ = f.Close()
		return nil, err
	}
	ds.log.WithField("variables", len(ds.order)).Debug("opened NetCDF dataset")
	return ds, nil
}

func (d *Dataset) scan() error {
	n, err := d.file.NVars()
	if err != nil {
		return fmt.Errorf("failed to count variables: %w", err)
	}
	for i := 0; i < n; i++ {
		v := d.file.VarN(i)
		name, err := v.Name()
		if err != nil {
			return fmt.Errorf("failed to read variable %d name: %w", i, err)
		}
		typ, err := v.Type()
		if err != nil {
			return fmt.Errorf("failed to get type of %s: %w", name, err)
		}
		dims, err := v.Dims()
		if err != nil {
			return fmt.Errorf("failed to get dimensions of %s: %w", name, err)
		}
		variable := &Variable{
			ds:     d,
			v:      v,
			typ:    typ,
			name:   name,
			dims:   make([]string, len(dims)),
			shape:  make([]int, len(dims)),
			attrs:  make(map[string]any),
			scale:  1,
			offset: 0,
		}
		for j, dim := range dims {
			dn, err := dim.Name()
			if err != nil {
				return fmt.Errorf("failed to get dimension name of %s: %w", name, err)
			}
			dl, err := dim.Len()
			if err != nil {
				return fmt.Errorf("failed to get dimension length of %s: %w", name, err)
			}
			variable.dims[j] = dn
			variable.shape[j] = int(dl)
		}

		na, err := v.NAttrs()
		if err != nil {
			return fmt.Errorf("failed to count attributes of %s: %w", name, err)
		}
		for j := 0; j < na; j++ {
			a, err := v.AttrN(j)
			if err != nil {
				continue
			}
			if val := readAttr(a); val != nil {
				variable.attrs[a.Name()] = val
			}
		}
		variable.packing()

		d.order = append(d.order, name)
		d.vars[name] = variable
	}
	return nil
}

// packing derives fill values and the linear unpacking from attributes.
func (v *Variable) packing() {
	for _, name := range []string{"_FillValue", "missing_value"} {
		if f, ok := store.AttrFloat(v.attrs, name); ok {
			v.fill = append(v.fill, f)
			if v.typ == nc.FLOAT {
				v.fill = append(v.fill, float64(float32(f)))
			}
		}
	}
	if s, ok := store.AttrFloat(v.attrs, "scale_factor"); ok && s != 0 {
		v.scale = s
	}
	if o, ok := store.AttrFloat(v.attrs, "add_offset"); ok {
		v.offset = o
	}
}

// Path returns the file path.
func (d *Dataset) Path() string {
	return d.path
}

// Variables describes every variable in file order.
func (d *Dataset) Variables() domain.VariableList {
	list, err := store.DescribeAll(d, d.order)
	if err != nil {
		d.log.WithError(err).Warn("failed to describe variables")
		return domain.VariableList{}
	}
	return list
}

// Variable returns the named variable.
func (d *Dataset) Variable(key string) (store.Variable, error) {
	v, ok := d.vars[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownVariable, key)
	}
	return v, nil
}

// HasVariable reports whether key exists.
func (d *Dataset) HasVariable(key string) bool {
	_, ok := d.vars[key]
	return ok
}

// HasCoord reports whether a coordinate variable exists.
func (d *Dataset) HasCoord(name string) bool {
	return d.HasVariable(name)
}

// DepthDimensions returns the recognised vertical dimension names.
func (d *Dataset) DepthDimensions() []string {
	return append([]string(nil), d.opts.DepthDimensions...)
}

// Depths returns the first 1-D depth coordinate variable found.
func (d *Dataset) Depths() ([]float64, error) {
	for _, name := range d.opts.DepthDimensions {
		v, ok := d.vars[name]
		if !ok || len(v.dims) != 1 {
			continue
		}
		arr, err := store.ReadAll(v)
		if err != nil {
			return nil, err
		}
		return arr.Data, nil
	}
	return nil, domain.ErrNoDepthAxis
}

// Timestamps decodes the time axis once.
func (d *Dataset) Timestamps() ([]time.Time, error) {
	d.timesOnce.Do(func() {
		d.times, d.timesErr = d.readTimes()
	})
	return d.times, d.timesErr
}

func (d *Dataset) readTimes() ([]time.Time, error) {
	for _, name := range timeNames {
		v, ok := d.vars[name]
		if !ok || len(v.dims) != 1 {
			continue
		}
		units := store.AttrString(v.attrs, "units")
		if !strings.Contains(units, " since ") {
			continue
		}
		arr, err := store.ReadAll(v)
		if err != nil {
			return nil, fmt.Errorf("failed to read time axis %s: %w", name, err)
		}
		return DecodeTimes(arr.Data, units)
	}
	return nil, nil
}

// TimeIndex locates t on the time axis.
func (d *Dataset) TimeIndex(t time.Time) (int, error) {
	ts, err := d.Timestamps()
	if err != nil {
		return 0, err
	}
	return store.FindTime(ts, t, d.opts.TimeTolerance)
}

// Close releases the file handle. It is safe to call more than once.
func (d *Dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", d.path, err)
	}
	return nil
}

// Name returns the variable key.
func (v *Variable) Name() string { return v.name }

// Dims returns the dimension names.
func (v *Variable) Dims() []string { return append([]string(nil), v.dims...) }

// Shape returns the axis lengths.
func (v *Variable) Shape() []int { return append([]int(nil), v.shape...) }

// Attrs returns a copy of the decoded attributes.
func (v *Variable) Attrs() map[string]any {
	out := make(map[string]any, len(v.attrs))
	for k, a := range v.attrs {
		out[k] = a
	}
	return out
}

// Read reads a hyperslab, masking fill values as NaN and unpacking
// scale_factor/add_offset.
func (v *Variable) Read(sel []ndarray.Range) (*ndarray.Array, error) {
	if len(sel) != len(v.shape) {
		return nil, fmt.Errorf("%w: %d ranges for %d axes of %s", ndarray.ErrSelection, len(sel), len(v.shape), v.name)
	}

	//nolint:gosec // G115: selections are validated non-negative.
	start := make([]uint64, len(sel))
	count := make([]uint64, len(sel))
	var dims []string
	var shape []int
	for i, r := range sel {
		if r.Start < 0 || r.Stop > v.shape[i] || r.Stop < r.Start {
			return nil, fmt.Errorf("%w: axis %s [%d, %d) of %d", ndarray.ErrSelection, v.dims[i], r.Start, r.Stop, v.shape[i])
		}
		start[i] = uint64(r.Start)
		count[i] = uint64(r.Len())
		if !r.Single {
			dims = append(dims, v.dims[i])
			shape = append(shape, r.Len())
		}
	}

	v.ds.mu.Lock()
	if v.ds.closed {
		v.ds.mu.Unlock()
		return nil, store.ErrClosed
	}
	data, err := readSlice(v.v, v.typ, start, count)
	v.ds.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", v.name, err)
	}

	unpack(data, v.fill, v.scale, v.offset)
	return ndarray.FromSlice(dims, shape, data)
}
