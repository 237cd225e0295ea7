package model

import (
	"context"
	"fmt"

	"go.ngs.io/oceangrid/internal/adapter/interp"
	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/geo"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// Area target axes.
const (
	LatDim = "lat"
	LonDim = "lon"
)

func pointRequest(q PointQuery) (request, error) {
	if len(q.Lat) == 0 || len(q.Lat) != len(q.Lon) {
		return request{}, fmt.Errorf("%w: %d latitudes, %d longitudes", domain.ErrInvalidQuery, len(q.Lat), len(q.Lon))
	}
	if q.Variable == "" {
		return request{}, fmt.Errorf("%w: no variable", domain.ErrInvalidQuery)
	}
	return request{
		lat:         q.Lat,
		lon:         q.Lon,
		variable:    q.Variable,
		depth:       q.Depth,
		start:       q.Start,
		end:         q.End,
		returnDepth: q.ReturnDepth,
	}, nil
}

// GetPoint resamples the variable at the query locations on one depth
// layer (or the bottom).
func (e *engine) GetPoint(ctx context.Context, q PointQuery) (*Result, error) {
	return cached(e.cache, "point", q, func() (*Result, error) {
		r, err := pointRequest(q)
		if err != nil {
			return nil, err
		}
		return e.sample(ctx, r)
	})
}

// GetProfile resamples the whole water column at the query locations.
func (e *engine) GetProfile(ctx context.Context, q PointQuery) (*Result, error) {
	return cached(e.cache, "profile", q, func() (*Result, error) {
		r, err := pointRequest(q)
		if err != nil {
			return nil, err
		}
		r.allDepths = true
		r.returnDepth = true
		return e.sample(ctx, r)
	})
}

// GetRawPoint returns the native window around the query locations.
func (e *engine) GetRawPoint(ctx context.Context, q PointQuery) (*RawResult, error) {
	return cached(e.cache, "raw", q, func() (*RawResult, error) {
		r, err := pointRequest(q)
		if err != nil {
			return nil, err
		}
		return e.raw(ctx, r)
	})
}

// Subset returns the raw window covering the query box.
func (e *engine) Subset(ctx context.Context, q SubsetQuery) (*RawResult, error) {
	return cached(e.cache, "subset", q, func() (*RawResult, error) {
		return e.s.subset(ctx, q)
	})
}

// GetArea resamples onto the grid spanned by q.Lat x q.Lon.
func (e *engine) GetArea(ctx context.Context, q AreaQuery) (*Result, error) {
	return cached(e.cache, "area", q, func() (*Result, error) {
		if len(q.Lat) == 0 || len(q.Lon) == 0 {
			return nil, fmt.Errorf("%w: empty area", domain.ErrInvalidQuery)
		}
		lat, lon := meshgrid(q.Lat, q.Lon)
		return e.sample(ctx, request{
			lat:         lat,
			lon:         lon,
			targetDims:  []string{LatDim, LonDim},
			targetShape: []int{len(q.Lat), len(q.Lon)},
			variable:    q.Variable,
			depth:       q.Depth,
			start:       q.Time,
		})
	})
}

// GetPath samples the variable along the great-circle path through
// q.Points.
func (e *engine) GetPath(ctx context.Context, q PathQuery) (*PathResult, error) {
	return cached(e.cache, "path", q, func() (*PathResult, error) {
		return e.path(ctx, q, false)
	})
}

// GetPathProfile samples the whole water column along a path.
func (e *engine) GetPathProfile(ctx context.Context, q PathQuery) (*PathResult, error) {
	return cached(e.cache, "pathprofile", q, func() (*PathResult, error) {
		return e.path(ctx, q, true)
	})
}

func (e *engine) path(ctx context.Context, q PathQuery, profile bool) (*PathResult, error) {
	if len(q.Points) < 2 {
		return nil, fmt.Errorf("%w: a path needs at least two points", domain.ErrInvalidQuery)
	}
	samples := q.Samples
	if samples < 2 {
		samples = 100
	}
	p := geo.SamplePath(q.Points, samples)
	res, err := e.sample(ctx, request{
		lat:         p.Lats(),
		lon:         p.Lons(),
		targetDims:  []string{interp.PointDim},
		targetShape: []int{len(p.Points)},
		variable:    q.Variable,
		depth:       q.Depth,
		allDepths:   profile,
		start:       q.Time,
		returnDepth: profile,
	})
	if err != nil {
		return nil, err
	}
	return &PathResult{Path: p, Result: *res}, nil
}

// GetTimeseriesPoint resamples one layer at each time in [Start, End]. A
// zero End runs to the last timestamp.
func (e *engine) GetTimeseriesPoint(ctx context.Context, q PointQuery) (*Result, error) {
	return cached(e.cache, "timeseries", q, func() (*Result, error) {
		r, err := e.timeseries(q)
		if err != nil {
			return nil, err
		}
		return e.sample(ctx, r)
	})
}

// GetTimeseriesProfile resamples the water column at each time in
// [Start, End].
func (e *engine) GetTimeseriesProfile(ctx context.Context, q PointQuery) (*Result, error) {
	return cached(e.cache, "timeseriesprofile", q, func() (*Result, error) {
		r, err := e.timeseries(q)
		if err != nil {
			return nil, err
		}
		r.allDepths = true
		r.returnDepth = true
		return e.sample(ctx, r)
	})
}

func (e *engine) timeseries(q PointQuery) (request, error) {
	r, err := pointRequest(q)
	if err != nil {
		return request{}, err
	}
	ts, err := e.ds.Timestamps()
	if err != nil {
		return request{}, err
	}
	if len(ts) == 0 {
		return request{}, fmt.Errorf("%w: dataset has no time axis", domain.ErrTimeNotFound)
	}
	if r.start.IsZero() {
		r.start = ts[0]
	}
	if r.end.IsZero() {
		r.end = ts[len(ts)-1]
	}
	return r, nil
}

// GetProfileDepths interpolates the profile at each location onto the
// target depths. Targets outside a column's valid span are NaN.
func (e *engine) GetProfileDepths(ctx context.Context, q PointQuery, depths []float64) (*Result, error) {
	key := struct {
		Q      PointQuery
		Depths []float64
	}{q, depths}
	return cached(e.cache, "profiledepths", key, func() (*Result, error) {
		if len(depths) == 0 {
			return nil, fmt.Errorf("%w: no target depths", domain.ErrInvalidQuery)
		}
		r, err := pointRequest(q)
		if err != nil {
			return nil, err
		}
		r.allDepths = true
		r.returnDepth = true
		prof, err := e.sample(ctx, r)
		if err != nil {
			return nil, err
		}
		depthDim, ok := store.DepthDimension(prof.Values.Dims, e.ds.DepthDimensions())
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrNoDepthAxis, q.Variable)
		}
		values, err := toDepths(prof.Values, prof.Depths, depthDim, depths)
		if err != nil {
			return nil, err
		}
		return &Result{
			Values: values,
			Depths: ndarray.Vector(depthDim, append([]float64(nil), depths...)),
			Times:  prof.Times,
		}, nil
	})
}

// toDepths interpolates every column of values along depthDim onto
// targets, using the column's own depths.
func toDepths(values, depths *ndarray.Array, depthDim string, targets []float64) (*ndarray.Array, error) {
	aligned, err := ndarray.Align(values.Dims, values, depths)
	if err != nil {
		return nil, fmt.Errorf("failed to align depths with values: %w", err)
	}
	v, d := aligned[0], aligned[1]
	axis := v.Axis(depthDim)

	columns := make([][]float64, 0)
	if _, err := alongAxis(d, axis, 0, func(col, out []float64) {
		columns = append(columns, append([]float64(nil), col...))
		out[0] = 0
	}); err != nil {
		return nil, err
	}
	c := 0
	return alongAxis(v, axis, len(targets), func(col, out []float64) {
		copy(out, interp.VerticalProfile(columns[c], col, targets))
		c++
	})
}

// meshgrid flattens the rows x cols grid row-major.
func meshgrid(rows, cols []float64) ([]float64, []float64) {
	lat := make([]float64, 0, len(rows)*len(cols))
	lon := make([]float64, 0, len(rows)*len(cols))
	for _, y := range rows {
		for _, x := range cols {
			lat = append(lat, y)
			lon = append(lon, x)
		}
	}
	return lat, lon
}
