package model

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go.ngs.io/oceangrid/internal/adapter/interp"
	"go.ngs.io/oceangrid/internal/adapter/spatial"
	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// timeDims are the dimension names treated as the time axis.
var timeDims = []string{"time_counter", "time", "t"}

// coordGrid is a horizontal grid with its lazily built index. lat and lon
// are flattened row-major over dims.
type coordGrid struct {
	latName, lonName string
	dims             []string
	shape            []int
	lat, lon         []float64
	index            *spatial.Index
}

// window flattens the coordinates inside w.
func (g *coordGrid) window(w []spatial.Window) interp.Points {
	pts := interp.Points{Shape: make([]int, len(w))}
	for i, win := range w {
		pts.Shape[i] = win.Len()
	}
	st := make([]int, len(g.shape))
	acc := 1
	for i := len(g.shape) - 1; i >= 0; i-- {
		st[i] = acc
		acc *= g.shape[i]
	}
	idx := make([]int, len(w))
	for i := range idx {
		idx[i] = w[i].Min
	}
	for {
		off := 0
		for i, v := range idx {
			off += v * st[i]
		}
		pts.Lat = append(pts.Lat, g.lat[off])
		pts.Lon = append(pts.Lon, g.lon[off])

		a := len(idx) - 1
		for ; a >= 0; a-- {
			idx[a]++
			if idx[a] < w[a].Max {
				break
			}
			idx[a] = w[a].Min
		}
		if a < 0 {
			return pts
		}
	}
}

// engine implements the composite operations shared by both adapters on
// top of a sampler.
type engine struct {
	ds      store.Dataset
	opts    Options
	log     logrus.FieldLogger
	s       sampler
	cache   *requestCache
	timeIdx func(t time.Time) (int, error)

	varsOnce sync.Once
	vars     domain.VariableList

	mu    sync.Mutex
	grids map[string]*coordGrid
}

func newEngine(ds store.Dataset, opts Options) *engine {
	opts = opts.withDefaults()
	return &engine{
		ds:      ds,
		opts:    opts,
		log:     opts.Logger,
		cache:   newRequestCache(opts.CacheSize),
		timeIdx: ds.TimeIndex,
		grids:   make(map[string]*coordGrid),
	}
}

// Dataset returns the underlying dataset.
func (e *engine) Dataset() store.Dataset {
	return e.ds
}

// Variables returns the dataset's variables, listed once per handle.
func (e *engine) Variables() domain.VariableList {
	e.varsOnce.Do(func() {
		e.vars = e.ds.Variables()
	})
	return e.vars
}

// Close releases cached state and the dataset.
func (e *engine) Close() error {
	e.cache.clear()
	e.mu.Lock()
	e.grids = make(map[string]*coordGrid)
	e.mu.Unlock()
	return e.ds.Close()
}

// grid returns the cached grid for a coordinate pair, building it with
// load on first use.
func (e *engine) grid(latName, lonName string, load func() (*coordGrid, error)) (*coordGrid, error) {
	key := latName + "," + lonName
	e.mu.Lock()
	defer e.mu.Unlock()
	if g, ok := e.grids[key]; ok {
		return g, nil
	}
	g, err := load()
	if err != nil {
		return nil, err
	}
	g.index, err = spatial.NewIndex(g.lat, g.lon, g.shape)
	if err != nil {
		return nil, fmt.Errorf("failed to index %s/%s: %w", latName, lonName, err)
	}
	e.log.WithFields(logrus.Fields{"lat": latName, "lon": lonName, "points": g.index.Len()}).Debug("built spatial index")
	e.grids[key] = g
	return g, nil
}

// timeRange resolves start/end to an inclusive index range.
func (e *engine) timeRange(start, end time.Time) (int, int, error) {
	return store.TimeRange(e.timeIdx, start, end)
}

// layout describes how a read maps onto a variable's dimensions.
type layout struct {
	sel      []ndarray.Range
	timeDim  string
	timeSel  ndarray.Range
	depthDim string
	depthIdx int
	times    []time.Time
}

// selection builds the read ranges for v: spatial axes from windows, the
// time axis from the request, the depth axis from the depth selector.
func (e *engine) selection(v store.Variable, g *coordGrid, windows []spatial.Window, r request) (layout, error) {
	dims := v.Dims()
	shape := v.Shape()
	out := layout{sel: make([]ndarray.Range, len(dims)), depthIdx: -1}

	depthDim, hasDepth := store.DepthDimension(dims, e.ds.DepthDimensions())
	if r.allDepths && !hasDepth {
		return layout{}, fmt.Errorf("%w: %s", domain.ErrNoDepthAxis, v.Name())
	}

	for i, d := range dims {
		out.sel[i] = ndarray.All(shape[i])
		if g != nil {
			if a := indexOf(g.dims, d); a >= 0 {
				out.sel[i] = ndarray.Span(windows[a].Min, windows[a].Max)
				continue
			}
		}
		switch {
		case indexOf(timeDims, d) >= 0 && out.timeDim == "":
			out.timeDim = d
			i0, i1, err := e.timeRange(r.start, r.end)
			if err != nil {
				return layout{}, err
			}
			if i1 >= shape[i] {
				return layout{}, fmt.Errorf("%w: time index %d of %d", domain.ErrTimeNotFound, i1, shape[i])
			}
			if r.end.IsZero() {
				out.sel[i] = ndarray.Index(i0)
			} else {
				out.sel[i] = ndarray.Span(i0, i1+1)
			}
			out.timeSel = out.sel[i]
			if ts, err := e.ds.Timestamps(); err == nil && len(ts) > i1 {
				out.times = append([]time.Time(nil), ts[i0:i1+1]...)
			}
		case hasDepth && d == depthDim:
			out.depthDim = d
			if r.allDepths || r.depth.Bottom {
				continue
			}
			if r.depth.Index < 0 || r.depth.Index >= shape[i] {
				return layout{}, fmt.Errorf("%w: depth index %d out of range [0, %d)", domain.ErrInvalidQuery, r.depth.Index, shape[i])
			}
			out.sel[i] = ndarray.Index(r.depth.Index)
			out.depthIdx = r.depth.Index
		}
	}
	return out, nil
}

// spatialAxes returns the positions of the grid dims in arr.
func spatialAxes(arr *ndarray.Array, g *coordGrid) ([]int, error) {
	axes := make([]int, len(g.dims))
	for i, d := range g.dims {
		axes[i] = arr.Axis(d)
		if axes[i] < 0 {
			return nil, fmt.Errorf("%w: data has no %s axis", domain.ErrUnknownCoordinatePair, d)
		}
	}
	return axes, nil
}

// plan selects neighbours on g for the request targets and prepares the
// resampling plan over the returned window.
func (e *engine) plan(g *coordGrid, r request) (*interp.Plan, []spatial.Window, error) {
	nb, err := g.index.Query(r.lat, r.lon, e.opts.Neighbours)
	if err != nil {
		return nil, nil, err
	}
	windows := spatial.ResolveWindow(g.index.AxisIndices(nb), g.shape)
	plan, err := interp.NewPlan(g.window(windows), interp.Points{
		Lat:   r.lat,
		Lon:   r.lon,
		Dims:  r.targetDims,
		Shape: r.targetShape,
	}, interp.Options{
		Method:     e.opts.Method,
		Neighbours: e.opts.Neighbours,
		Radius:     spatial.InfluenceRadius(nb.Dist2),
		Workers:    e.opts.Workers,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to plan resampling: %w", err)
	}
	return plan, windows, nil
}

// bottom reduces the depth axis to the deepest non-missing sample of each
// column. It also returns the chosen layer index per column, NaN where the
// column is entirely masked.
func bottom(arr *ndarray.Array, depthDim string) (*ndarray.Array, *ndarray.Array, error) {
	axis := arr.Axis(depthDim)
	if axis < 0 {
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrNoDepthAxis, depthDim)
	}
	values, err := alongAxis(arr, axis, 0, func(col, out []float64) {
		out[0] = math.NaN()
		for k := len(col) - 1; k >= 0; k-- {
			if !math.IsNaN(col[k]) {
				out[0] = col[k]
				return
			}
		}
	})
	if err != nil {
		return nil, nil, err
	}
	chosen, err := alongAxis(arr, axis, 0, func(col, out []float64) {
		out[0] = math.NaN()
		for k := len(col) - 1; k >= 0; k-- {
			if !math.IsNaN(col[k]) {
				out[0] = float64(k)
				return
			}
		}
	})
	if err != nil {
		return nil, nil, err
	}
	return values, chosen, nil
}

// alongAxis applies fn to every 1-D column of arr along axis. With n == 0
// the axis is dropped and fn writes one value; otherwise the axis is
// replaced by one of length n.
func alongAxis(arr *ndarray.Array, axis, n int, fn func(col, out []float64)) (*ndarray.Array, error) {
	order := make([]int, 0, arr.NDim())
	for i := 0; i < arr.NDim(); i++ {
		if i != axis {
			order = append(order, i)
		}
	}
	order = append(order, axis)
	t, err := arr.Transpose(order)
	if err != nil {
		return nil, err
	}

	width := arr.Shape[axis]
	outWidth := n
	if n == 0 {
		outWidth = 1
	}
	cols := 1
	if width > 0 {
		cols = t.Size() / width
	}
	data := make([]float64, cols*outWidth)
	for c := 0; c < cols; c++ {
		fn(t.Data[c*width:(c+1)*width], data[c*outWidth:(c+1)*outWidth])
	}

	dims := append([]string(nil), t.Dims[:len(t.Dims)-1]...)
	shape := append([]int(nil), t.Shape[:len(t.Shape)-1]...)
	if n == 0 {
		return ndarray.FromSlice(dims, shape, data)
	}
	dims = append(dims, arr.Dims[axis])
	shape = append(shape, n)
	out, err := ndarray.FromSlice(dims, shape, data)
	if err != nil {
		return nil, err
	}
	// Move the axis back to its original position.
	back := make([]int, out.NDim())
	for i := range back {
		switch {
		case i < axis:
			back[i] = i
		case i == axis:
			back[i] = out.NDim() - 1
		default:
			back[i] = i - 1
		}
	}
	return out.Transpose(back)
}

// pick gathers arr values at the per-column layer indices in chosen.
func pick(arr *ndarray.Array, depthDim string, chosen *ndarray.Array) (*ndarray.Array, error) {
	axis := arr.Axis(depthDim)
	if axis < 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoDepthAxis, depthDim)
	}
	full, err := chosen.Broadcast(dropAxis(arr.Dims, axis), dropAxisInts(arr.Shape, axis))
	if err != nil {
		return nil, err
	}
	c := 0
	return alongAxis(arr, axis, 0, func(col, out []float64) {
		k := full.Data[c]
		c++
		if math.IsNaN(k) {
			out[0] = math.NaN()
			return
		}
		out[0] = col[int(k)]
	})
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func dropAxis(dims []string, axis int) []string {
	out := append([]string(nil), dims[:axis]...)
	return append(out, dims[axis+1:]...)
}

func dropAxisInts(shape []int, axis int) []int {
	out := append([]int(nil), shape[:axis]...)
	return append(out, shape[axis+1:]...)
}

// apply resamples arr with plan over the grid axes.
func (e *engine) apply(ctx context.Context, plan *interp.Plan, arr *ndarray.Array, g *coordGrid) (*ndarray.Array, error) {
	axes, err := spatialAxes(arr, g)
	if err != nil {
		return nil, err
	}
	return plan.Apply(ctx, arr, axes)
}

// related builds the read ranges of a supporting variable (coordinates,
// bathymetry, sigma levels) matching the window and time range of lay.
// Every other axis is read whole.
func related(v store.Variable, g *coordGrid, windows []spatial.Window, lay layout) []ndarray.Range {
	dims := v.Dims()
	shape := v.Shape()
	sel := make([]ndarray.Range, len(dims))
	for i, d := range dims {
		sel[i] = ndarray.All(shape[i])
		if a := indexOf(g.dims, d); a >= 0 {
			sel[i] = ndarray.Span(windows[a].Min, windows[a].Max)
			continue
		}
		if lay.timeDim != "" && indexOf(timeDims, d) >= 0 {
			sel[i] = lay.timeSel
		}
	}
	return sel
}

// neighbourhood is the data read around a set of targets.
type neighbourhood struct {
	v       store.Variable
	g       *coordGrid
	plan    *interp.Plan
	windows []spatial.Window
	lay     layout
	data    *ndarray.Array
}

// read reads the variable over the neighbourhood of the request targets.
func (e *engine) read(ctx context.Context, r request) (*neighbourhood, error) {
	v, err := e.ds.Variable(r.variable)
	if err != nil {
		return nil, err
	}
	g, err := e.s.locate(v)
	if err != nil {
		return nil, err
	}
	plan, windows, err := e.plan(g, r)
	if err != nil {
		return nil, err
	}
	lay, err := e.selection(v, g, windows, r)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := v.Read(lay.sel)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", r.variable, err)
	}
	return &neighbourhood{v: v, g: g, plan: plan, windows: windows, lay: lay, data: data}, nil
}

// sample reads the neighbourhood of the targets and resamples it.
func (e *engine) sample(ctx context.Context, r request) (*Result, error) {
	nb, err := e.read(ctx, r)
	if err != nil {
		return nil, err
	}

	data := nb.data
	var chosen *ndarray.Array
	if r.depth.Bottom && !r.allDepths && nb.lay.depthDim != "" {
		if data, chosen, err = bottom(data, nb.lay.depthDim); err != nil {
			return nil, err
		}
	}
	values, err := e.apply(ctx, nb.plan, data, nb.g)
	if err != nil {
		return nil, err
	}
	res := &Result{Values: values, Times: nb.lay.times}
	if !r.returnDepth || nb.lay.depthDim == "" {
		return res, nil
	}

	depths, err := e.s.depths(ctx, nb.v, nb.g, nb.windows, nb.lay, chosen)
	if err != nil {
		return nil, err
	}
	if !hasAnyDim(depths, nb.g.dims) {
		res.Depths = depths
		return res, nil
	}
	if res.Depths, err = e.apply(ctx, nb.plan, depths, nb.g); err != nil {
		return nil, fmt.Errorf("failed to resample depths: %w", err)
	}
	return res, nil
}

// raw returns the neighbourhood of the targets without resampling.
func (e *engine) raw(ctx context.Context, r request) (*RawResult, error) {
	nb, err := e.read(ctx, r)
	if err != nil {
		return nil, err
	}
	lat, lon, err := nb.g.windowCoords(nb.windows)
	if err != nil {
		return nil, err
	}
	return &RawResult{Values: nb.data, Lat: lat, Lon: lon, Times: nb.lay.times}, nil
}

// windowCoords returns the coordinates inside windows shaped like the grid.
func (g *coordGrid) windowCoords(windows []spatial.Window) (*ndarray.Array, *ndarray.Array, error) {
	pts := g.window(windows)
	lat, err := ndarray.FromSlice(append([]string(nil), g.dims...), pts.Shape, pts.Lat)
	if err != nil {
		return nil, nil, err
	}
	lon, err := ndarray.FromSlice(append([]string(nil), g.dims...), pts.Shape, pts.Lon)
	if err != nil {
		return nil, nil, err
	}
	return lat, lon, nil
}

func hasAnyDim(a *ndarray.Array, dims []string) bool {
	for _, d := range dims {
		if a.Axis(d) >= 0 {
			return true
		}
	}
	return false
}
