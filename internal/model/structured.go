package model

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.ngs.io/oceangrid/internal/adapter/spatial"
	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// CoordinatePairs are the latitude/longitude variable pairs tried, in
// order, when a variable does not name its coordinates.
var CoordinatePairs = [][2]string{
	{"nav_lat_u", "nav_lon_u"},
	{"nav_lat_v", "nav_lon_v"},
	{"nav_lat", "nav_lon"},
	{"latitude_u", "longitude_u"},
	{"latitude_v", "longitude_v"},
	{"latitude", "longitude"},
	{"lat", "lon"},
}

// Structured adapts datasets on regular or curvilinear grids (NEMO, HYCOM,
// regular lat/lon products).
type Structured struct {
	*engine
}

var _ Model = (*Structured)(nil)

// NewStructured wraps ds.
func NewStructured(ds store.Dataset, opts Options) *Structured {
	s := &Structured{engine: newEngine(ds, opts)}
	s.s = s
	return s
}

// CoordinatePair returns the latitude and longitude variable names for v.
func (s *Structured) CoordinatePair(v store.Variable) (string, string, error) {
	if names := store.AttrString(v.Attrs(), "coordinates"); names != "" {
		var lat, lon string
		for _, n := range strings.Fields(names) {
			lower := strings.ToLower(n)
			switch {
			case lat == "" && strings.Contains(lower, "lat") && s.ds.HasCoord(n):
				lat = n
			case lon == "" && strings.Contains(lower, "lon") && s.ds.HasCoord(n):
				lon = n
			}
		}
		if lat != "" && lon != "" {
			return lat, lon, nil
		}
	}
	for _, p := range CoordinatePairs {
		if s.ds.HasCoord(p[0]) && s.ds.HasCoord(p[1]) {
			return p[0], p[1], nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", domain.ErrUnknownCoordinatePair, v.Name())
}

func (s *Structured) locate(v store.Variable) (*coordGrid, error) {
	latName, lonName, err := s.CoordinatePair(v)
	if err != nil {
		return nil, err
	}
	return s.grid(latName, lonName, func() (*coordGrid, error) {
		return s.loadGrid(latName, lonName)
	})
}

// loadGrid reads a coordinate pair. 1-D axes are expanded to a 2-D mesh.
func (s *Structured) loadGrid(latName, lonName string) (*coordGrid, error) {
	latVar, err := s.ds.Variable(latName)
	if err != nil {
		return nil, err
	}
	lonVar, err := s.ds.Variable(lonName)
	if err != nil {
		return nil, err
	}
	lat, err := readCoord(latVar)
	if err != nil {
		return nil, err
	}
	lon, err := readCoord(lonVar)
	if err != nil {
		return nil, err
	}

	g := &coordGrid{latName: latName, lonName: lonName}
	switch {
	case lat.NDim() == 1 && lon.NDim() == 1:
		g.dims = []string{lat.Dims[0], lon.Dims[0]}
		g.shape = []int{lat.Shape[0], lon.Shape[0]}
		g.lat, g.lon = meshgrid(lat.Data, lon.Data)
	case lat.NDim() == 2 && lon.NDim() == 2:
		if lat.Shape[0] != lon.Shape[0] || lat.Shape[1] != lon.Shape[1] {
			return nil, fmt.Errorf("%w: %s%v and %s%v differ in shape", domain.ErrUnknownCoordinatePair, latName, lat.Shape, lonName, lon.Shape)
		}
		g.dims = append([]string(nil), lat.Dims...)
		g.shape = append([]int(nil), lat.Shape...)
		g.lat, g.lon = lat.Data, lon.Data
	default:
		return nil, fmt.Errorf("%w: %s has %d axes, %s has %d", domain.ErrUnknownCoordinatePair, latName, lat.NDim(), lonName, lon.NDim())
	}
	return g, nil
}

// readCoord reads a coordinate variable, taking the first index of any
// leading axis beyond the horizontal ones (NEMO stores nav_lat per time).
func readCoord(v store.Variable) (*ndarray.Array, error) {
	shape := v.Shape()
	sel := make([]ndarray.Range, len(shape))
	for i, n := range shape {
		sel[i] = ndarray.All(n)
		if i < len(shape)-2 {
			sel[i] = ndarray.Index(0)
		}
	}
	arr, err := v.Read(sel)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", v.Name(), err)
	}
	return arr, nil
}

func (s *Structured) depths(_ context.Context, _ store.Variable, _ *coordGrid, _ []spatial.Window, lay layout, chosen *ndarray.Array) (*ndarray.Array, error) {
	depths, err := s.axisDepths(lay.depthDim)
	if err != nil {
		return nil, err
	}
	switch {
	case chosen != nil:
		return chosen.Map(func(k float64) float64 {
			if math.IsNaN(k) || int(k) >= len(depths) {
				return math.NaN()
			}
			return depths[int(k)]
		}), nil
	case lay.depthIdx >= 0:
		if lay.depthIdx >= len(depths) {
			return ndarray.Scalar(math.NaN()), nil
		}
		return ndarray.Scalar(depths[lay.depthIdx]), nil
	default:
		return ndarray.Vector(lay.depthDim, append([]float64(nil), depths...)), nil
	}
}

// axisDepths reads the 1-D coordinate variable named after depthDim
// (depthw, depthu, ...), falling back to the dataset's primary depth axis.
func (s *Structured) axisDepths(depthDim string) ([]float64, error) {
	if depthDim != "" && s.ds.HasCoord(depthDim) {
		v, err := s.ds.Variable(depthDim)
		if err != nil {
			return nil, err
		}
		if dims := v.Dims(); len(dims) == 1 && dims[0] == depthDim {
			arr, err := store.ReadAll(v)
			if err != nil {
				return nil, fmt.Errorf("failed to read depth axis %s: %w", depthDim, err)
			}
			return arr.Data, nil
		}
	}
	return s.ds.Depths()
}

// subset returns the raw window covering the query box. West > East
// selects a box crossing the antimeridian.
func (s *Structured) subset(ctx context.Context, q SubsetQuery) (*RawResult, error) {
	if q.South > q.North {
		return nil, fmt.Errorf("%w: south %g is north of %g", domain.ErrInvalidQuery, q.South, q.North)
	}
	v, err := s.ds.Variable(q.Variable)
	if err != nil {
		return nil, err
	}
	g, err := s.locate(v)
	if err != nil {
		return nil, err
	}

	lo := make([]int, len(g.shape))
	hi := make([]int, len(g.shape))
	for i := range lo {
		lo[i], hi[i] = math.MaxInt, -1
	}
	for flat := range g.lat {
		if !inBox(g.lat[flat], g.lon[flat], q) {
			continue
		}
		for a, i := range ndarray.Unravel(flat, g.shape) {
			lo[a] = min(lo[a], i)
			hi[a] = max(hi[a], i)
		}
	}
	windows := make([]spatial.Window, len(g.shape))
	for a := range windows {
		if hi[a] < 0 {
			return nil, fmt.Errorf("%w: no grid points inside the box", domain.ErrInvalidQuery)
		}
		windows[a] = spatial.Window{Min: lo[a], Max: hi[a] + 1}
	}

	lay, err := s.selection(v, g, windows, request{
		variable:  q.Variable,
		depth:     q.Depth,
		allDepths: q.AllDepths,
		start:     q.Start,
		end:       q.End,
	})
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := v.Read(lay.sel)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", q.Variable, err)
	}
	if q.Depth.Bottom && !q.AllDepths && lay.depthDim != "" {
		if data, _, err = bottom(data, lay.depthDim); err != nil {
			return nil, err
		}
	}
	lat, lon, err := g.windowCoords(windows)
	if err != nil {
		return nil, err
	}
	return &RawResult{Values: data, Lat: lat, Lon: lon, Times: lay.times}, nil
}

func inBox(lat, lon float64, q SubsetQuery) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) || lat < q.South || lat > q.North {
		return false
	}
	if q.West <= q.East {
		return lon >= q.West && lon <= q.East
	}
	return lon >= q.West || lon <= q.East
}
