package model

import (
	"context"
	"fmt"
	"time"

	"go.ngs.io/oceangrid/internal/adapter/spatial"
	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// Mesh dimension and variable names (FVCOM conventions).
const (
	NodeDim    = "node"
	ElementDim = "nele"
	// MeshTimeTolerance is the relative error allowed when matching times.
	MeshTimeTolerance = 1e-7
)

// Mesh adapts unstructured triangular-mesh datasets. Variables live either
// on nodes (lat, lon) or on element centres (latc, lonc).
type Mesh struct {
	*engine
}

var _ Model = (*Mesh)(nil)

// NewMesh wraps ds.
func NewMesh(ds store.Dataset, opts Options) *Mesh {
	m := &Mesh{engine: newEngine(ds, opts)}
	m.s = m
	m.timeIdx = func(t time.Time) (int, error) {
		ts, err := ds.Timestamps()
		if err != nil {
			return 0, err
		}
		return store.FindTime(ts, t, MeshTimeTolerance)
	}
	return m
}

func (m *Mesh) locate(v store.Variable) (*coordGrid, error) {
	dims := v.Dims()
	switch {
	case indexOf(dims, NodeDim) >= 0:
		return m.meshGrid("lat", "lon", NodeDim)
	case indexOf(dims, ElementDim) >= 0:
		return m.meshGrid("latc", "lonc", ElementDim)
	default:
		return nil, fmt.Errorf("%w: %s has neither %s nor %s", domain.ErrUnknownCoordinatePair, v.Name(), NodeDim, ElementDim)
	}
}

func (m *Mesh) meshGrid(latName, lonName, dim string) (*coordGrid, error) {
	return m.grid(latName, lonName, func() (*coordGrid, error) {
		if !m.ds.HasCoord(latName) || !m.ds.HasCoord(lonName) {
			return nil, fmt.Errorf("%w: %s/%s", domain.ErrUnknownCoordinatePair, latName, lonName)
		}
		lat, err := m.readVector(latName)
		if err != nil {
			return nil, err
		}
		lon, err := m.readVector(lonName)
		if err != nil {
			return nil, err
		}
		if len(lat) != len(lon) {
			return nil, fmt.Errorf("%w: %d %s, %d %s", spatial.ErrCoordinateLength, len(lat), latName, len(lon), lonName)
		}
		return &coordGrid{
			latName: latName,
			lonName: lonName,
			dims:    []string{dim},
			shape:   []int{len(lat)},
			lat:     lat,
			lon:     lon,
		}, nil
	})
}

func (m *Mesh) readVector(name string) ([]float64, error) {
	v, err := m.ds.Variable(name)
	if err != nil {
		return nil, err
	}
	arr, err := store.ReadAll(v)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return arr.Data, nil
}

// depths reconstructs layer depths from sigma coordinates:
// z = -(sigma*(h+zeta) + zeta), positive down.
func (m *Mesh) depths(ctx context.Context, v store.Variable, g *coordGrid, windows []spatial.Window, lay layout, chosen *ndarray.Array) (*ndarray.Array, error) {
	z, err := m.sigmaDepths(ctx, v, g, windows, lay)
	if err != nil {
		return nil, err
	}
	switch {
	case chosen != nil:
		return pick(z, lay.depthDim, chosen)
	case lay.depthIdx >= 0:
		sel := make([]ndarray.Range, z.NDim())
		for i, d := range z.Dims {
			sel[i] = ndarray.All(z.Shape[i])
			if d == lay.depthDim {
				sel[i] = ndarray.Index(lay.depthIdx)
			}
		}
		return z.Select(sel)
	default:
		return z, nil
	}
}

func (m *Mesh) sigmaDepths(ctx context.Context, v store.Variable, g *coordGrid, windows []spatial.Window, lay layout) (*ndarray.Array, error) {
	read := func(name string) (*ndarray.Array, error) {
		sv, err := m.ds.Variable(name)
		if err != nil {
			return nil, err
		}
		return sv.Read(related(sv, g, windows, lay))
	}

	if g.dims[0] == ElementDim {
		nodes, err := m.meshGrid("lat", "lon", NodeDim)
		if err != nil {
			return nil, err
		}
		centres := g.window(windows)
		plan, nodeWindows, err := m.plan(nodes, request{
			lat:         centres.Lat,
			lon:         centres.Lon,
			targetDims:  []string{ElementDim},
			targetShape: []int{centres.Len()},
		})
		if err != nil {
			return nil, err
		}
		read = func(name string) (*ndarray.Array, error) {
			sv, err := m.ds.Variable(name)
			if err != nil {
				return nil, err
			}
			arr, err := sv.Read(related(sv, nodes, nodeWindows, lay))
			if err != nil {
				return nil, err
			}
			if !hasAnyDim(arr, nodes.dims) {
				return arr, nil
			}
			return m.apply(ctx, plan, arr, nodes)
		}
	}

	sigma, err := read(lay.depthDim)
	if err != nil {
		return nil, fmt.Errorf("failed to read sigma levels: %w", err)
	}
	h, err := read("h")
	if err != nil {
		return nil, fmt.Errorf("failed to read bathymetry: %w", err)
	}
	zeta := ndarray.Scalar(0)
	if m.ds.HasVariable("zeta") {
		if zeta, err = read("zeta"); err != nil {
			return nil, fmt.Errorf("failed to read surface elevation: %w", err)
		}
	}

	order := v.Dims()
	total, err := ndarray.Combine(h, zeta, order, func(a, b float64) float64 { return a + b })
	if err != nil {
		return nil, err
	}
	scaled, err := ndarray.Combine(sigma, total, order, func(a, b float64) float64 { return a * b })
	if err != nil {
		return nil, err
	}
	return ndarray.Combine(scaled, zeta, order, func(a, b float64) float64 { return -(a + b) })
}

func (m *Mesh) subset(context.Context, SubsetQuery) (*RawResult, error) {
	return nil, fmt.Errorf("%w: subset on an unstructured mesh", domain.ErrUnsupported)
}
