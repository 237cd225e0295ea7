// Package interp resamples gridded ocean-model output onto arbitrary target
// locations and interpolates vertical profiles.
package interp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"go.ngs.io/oceangrid/internal/adapter/spatial"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// Method selects how neighbour values are combined.
type Method string

const (
	Gaussian Method = "gaussian"
	Bilinear Method = "bilinear"
	Inverse  Method = "inverse"
	Nearest  Method = "nearest"
)

// DefaultNeighbours is the number of source points consulted per target.
const DefaultNeighbours = 10

// PointDim names the output axis when several unshaped targets are resampled.
const PointDim = "point"

var (
	// ErrUnknownMethod indicates an unsupported interpolation method name.
	ErrUnknownMethod = errors.New("interp: unknown method")
	// ErrLayout indicates data whose spatial axes do not match the plan.
	ErrLayout = errors.New("interp: data layout does not match source grid")
)

// ParseMethod resolves a method name. An empty name selects Gaussian.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Gaussian, nil
	case Gaussian, Bilinear, Inverse, Nearest:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMethod, s)
	}
}

// Points is a set of geographic locations. For a source grid Shape is the
// shape of the spatial axes (e.g. [ny, nx]); for targets Dims and Shape
// describe the spatial axes of the result.
type Points struct {
	Lat   []float64
	Lon   []float64
	Dims  []string
	Shape []int
}

// Len returns the number of locations.
func (p Points) Len() int {
	return len(p.Lat)
}

// Options tune a resampling plan.
type Options struct {
	Method     Method
	Neighbours int
	// Radius of influence in metres. Zero derives it from the target
	// neighbourhoods with spatial.InfluenceRadius.
	Radius float64
	// Workers bounds layer parallelism. Values below 1 use GOMAXPROCS.
	Workers int
}

// Plan holds the neighbour selection and distances from a source grid to a
// set of targets. A Plan can be applied to any number of layers or
// variables that share the source grid.
type Plan struct {
	method      Method
	radius      float64
	workers     int
	sourceSize  int
	sourceShape []int
	flat        [][]int
	dist        [][]float64
	targetDims  []string
	targetShape []int
}

// NewPlan selects the neighbours of every target among the source points.
func NewPlan(source, target Points, opts Options) (*Plan, error) {
	method := opts.Method
	if method == "" {
		method = Gaussian
	}
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	if len(target.Lat) != len(target.Lon) {
		return nil, fmt.Errorf("%w: %d target latitudes, %d longitudes", spatial.ErrCoordinateLength, len(target.Lat), len(target.Lon))
	}
	k := opts.Neighbours
	if k < 1 {
		k = DefaultNeighbours
	}
	if method == Nearest && opts.Neighbours < 1 {
		k = 1
	}

	ix, err := spatial.NewIndex(source.Lat, source.Lon, source.Shape)
	if err != nil {
		return nil, fmt.Errorf("failed to index source grid: %w", err)
	}
	if k > ix.Len() {
		k = ix.Len()
	}
	nb, err := ix.Query(target.Lat, target.Lon, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query neighbours: %w", err)
	}

	radius := opts.Radius
	if radius <= 0 {
		radius = spatial.InfluenceRadius(nb.Dist2)
	}

	dist := make([][]float64, len(nb.Dist2))
	for i, row := range nb.Dist2 {
		dist[i] = make([]float64, len(row))
		for j, d2 := range row {
			dist[i][j] = spatial.SurfaceDistance(d2)
		}
	}

	dims, shape := targetLayout(target)
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Plan{
		method:      method,
		radius:      radius,
		workers:     workers,
		sourceSize:  len(source.Lat),
		sourceShape: ix.Shape(),
		flat:        nb.Flat,
		dist:        dist,
		targetDims:  dims,
		targetShape: shape,
	}, nil
}

func targetLayout(target Points) ([]string, []int) {
	if len(target.Shape) > 0 {
		dims := target.Dims
		if len(dims) != len(target.Shape) {
			dims = make([]string, len(target.Shape))
			for i := range dims {
				dims[i] = fmt.Sprintf("%s_%d", PointDim, i)
			}
		}
		return append([]string(nil), dims...), append([]int(nil), target.Shape...)
	}
	if target.Len() == 1 {
		return nil, nil
	}
	return []string{PointDim}, []int{target.Len()}
}

// Radius returns the radius of influence in metres.
func (p *Plan) Radius() float64 {
	return p.radius
}

// Apply resamples data whose spatial axes (listed in spatialAxes, in
// source-grid order) match the plan's source grid. Every other axis is
// treated as an independent layer. The result keeps the non-spatial axes
// and places the target axes where the first spatial axis was.
func (p *Plan) Apply(ctx context.Context, data *ndarray.Array, spatialAxes []int) (*ndarray.Array, error) {
	if len(spatialAxes) == 0 {
		return nil, fmt.Errorf("%w: no spatial axes", ErrLayout)
	}
	isSpatial := make(map[int]bool, len(spatialAxes))
	size := 1
	for _, a := range spatialAxes {
		if a < 0 || a >= data.NDim() || isSpatial[a] {
			return nil, fmt.Errorf("%w: invalid spatial axis %d", ErrLayout, a)
		}
		isSpatial[a] = true
		size *= data.Shape[a]
	}
	if size != p.sourceSize {
		return nil, fmt.Errorf("%w: %d spatial samples, plan expects %d", ErrLayout, size, p.sourceSize)
	}

	// Move spatial axes innermost.
	var order, layerAxes []int
	for a := 0; a < data.NDim(); a++ {
		if !isSpatial[a] {
			order = append(order, a)
			layerAxes = append(layerAxes, a)
		}
	}
	order = append(order, spatialAxes...)
	src, err := data.Transpose(order)
	if err != nil {
		return nil, err
	}

	layers := 1
	for _, a := range layerAxes {
		layers *= data.Shape[a]
	}
	targets := len(p.flat)
	out := make([]float64, layers*targets)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for l := 0; l < layers; l++ {
		layer := src.Data[l*size : (l+1)*size]
		dst := out[l*targets : (l+1)*targets]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			p.resampleLayer(layer, dst)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return p.assemble(data, layerAxes, spatialAxes, out)
}

// assemble shapes the flat [layers..., targets...] result back into the
// original axis order.
func (p *Plan) assemble(data *ndarray.Array, layerAxes, spatialAxes []int, values []float64) (*ndarray.Array, error) {
	var dims []string
	var shape []int
	for _, a := range layerAxes {
		dims = append(dims, data.Dims[a])
		shape = append(shape, data.Shape[a])
	}
	dims = append(dims, p.targetDims...)
	shape = append(shape, p.targetShape...)
	inter, err := ndarray.FromSlice(dims, shape, values)
	if err != nil {
		return nil, err
	}

	first := spatialAxes[0]
	for _, a := range spatialAxes {
		if a < first {
			first = a
		}
	}
	nLayer := len(layerAxes)
	var order []int
	for i, a := range layerAxes {
		if a > first && len(order) == i {
			for t := range p.targetDims {
				order = append(order, nLayer+t)
			}
		}
		order = append(order, i)
	}
	if len(order) == nLayer {
		for t := range p.targetDims {
			order = append(order, nLayer+t)
		}
	}
	identity := true
	for i, o := range order {
		if i != o {
			identity = false
			break
		}
	}
	if identity {
		return inter, nil
	}
	return inter.Transpose(order)
}

// resampleLayer fills dst from one spatial layer.
func (p *Plan) resampleLayer(layer, dst []float64) {
	weights := make([]float64, 0, DefaultNeighbours)
	vals := make([]float64, 0, DefaultNeighbours)
	for t, row := range p.flat {
		weights = weights[:0]
		vals = vals[:0]
		for j, f := range row {
			if f == spatial.Missing {
				continue
			}
			r := p.dist[t][j]
			if r > p.radius {
				continue
			}
			v := layer[f]
			if math.IsNaN(v) {
				continue
			}
			if p.method == Nearest {
				vals = append(vals, v)
				break
			}
			weights = append(weights, p.weight(r))
			vals = append(vals, v)
		}
		dst[t] = p.combine(weights, vals)
	}
}

func (p *Plan) weight(r float64) float64 {
	r = math.Max(r, epsilon)
	r = math.Min(r, math.MaxFloat64)
	switch p.method {
	case Bilinear:
		return 1 / r
	case Inverse:
		return 1 / (r * r)
	default:
		sigma := p.radius / 2
		return math.Exp(-(r / sigma) * (r / sigma))
	}
}

func (p *Plan) combine(weights, vals []float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
	if p.method == Nearest {
		return vals[0]
	}
	total := floats.Sum(weights)
	if total == 0 || math.IsInf(total, 0) || math.IsNaN(total) {
		return math.NaN()
	}
	return floats.Dot(weights, vals) / total
}

// epsilon is the float64 machine epsilon.
const epsilon = 2.220446049250313e-16

// Resample builds a plan and applies it in one step.
func Resample(ctx context.Context, data *ndarray.Array, spatialAxes []int, source, target Points, opts Options) (*ndarray.Array, error) {
	plan, err := NewPlan(source, target, opts)
	if err != nil {
		return nil, err
	}
	return plan.Apply(ctx, data, spatialAxes)
}
