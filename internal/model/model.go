// Package model adapts structured (curvilinear) and unstructured (mesh)
// ocean-model datasets to one query surface: points, profiles, areas,
// paths and timeseries, resampled from the native grid.
package model

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/groupcache/lru"
	"github.com/sirupsen/logrus"

	"go.ngs.io/oceangrid/internal/adapter/interp"
	"go.ngs.io/oceangrid/internal/adapter/spatial"
	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/geo"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// DefaultCacheSize is the number of request results kept per adapter.
const DefaultCacheSize = 64

// Options configure an adapter.
type Options struct {
	Method     interp.Method
	Neighbours int
	Workers    int
	// CacheSize bounds the request cache. Negative disables it.
	CacheSize int
	Logger    logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.Method == "" {
		o.Method = interp.Gaussian
	}
	if o.Neighbours < 1 {
		o.Neighbours = interp.DefaultNeighbours
	}
	if o.CacheSize == 0 {
		o.CacheSize = DefaultCacheSize
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

// PointQuery selects a variable at one or more locations.
type PointQuery struct {
	Lat      []float64
	Lon      []float64
	Depth    domain.DepthSelector
	Variable string
	Start    time.Time
	// End selects a time range [Start, End]. Zero selects Start only.
	End         time.Time
	ReturnDepth bool
}

// AreaQuery selects a variable on a regular lat/lon target grid.
type AreaQuery struct {
	Lat      []float64 // Target grid rows.
	Lon      []float64 // Target grid columns.
	Depth    domain.DepthSelector
	Variable string
	Time     time.Time
}

// PathQuery selects a variable along a great-circle path.
type PathQuery struct {
	Points   []geo.LatLon
	Samples  int
	Depth    domain.DepthSelector
	Variable string
	Time     time.Time
}

// SubsetQuery selects the raw window covering a lat/lon box.
type SubsetQuery struct {
	Variable string
	South    float64
	North    float64
	West     float64
	East     float64
	Depth    domain.DepthSelector
	// AllDepths ignores Depth and keeps the whole vertical axis.
	AllDepths bool
	Start     time.Time
	End       time.Time
}

// Result holds resampled values. Results may be shared through the request
// cache and must not be modified.
type Result struct {
	Values *ndarray.Array
	// Depths is set for profiles and when requested; it broadcasts
	// against Values by dimension name.
	Depths *ndarray.Array
	Times  []time.Time
}

// RawResult holds window data without resampling.
type RawResult struct {
	Values *ndarray.Array
	Lat    *ndarray.Array
	Lon    *ndarray.Array
	Times  []time.Time
}

// PathResult is a result sampled along a path.
type PathResult struct {
	Path geo.Path
	Result
}

// Model is implemented by both grid adapters.
type Model interface {
	Dataset() store.Dataset
	Variables() domain.VariableList
	GetPoint(ctx context.Context, q PointQuery) (*Result, error)
	GetProfile(ctx context.Context, q PointQuery) (*Result, error)
	GetRawPoint(ctx context.Context, q PointQuery) (*RawResult, error)
	GetArea(ctx context.Context, q AreaQuery) (*Result, error)
	GetPath(ctx context.Context, q PathQuery) (*PathResult, error)
	GetPathProfile(ctx context.Context, q PathQuery) (*PathResult, error)
	GetTimeseriesPoint(ctx context.Context, q PointQuery) (*Result, error)
	GetTimeseriesProfile(ctx context.Context, q PointQuery) (*Result, error)
	GetProfileDepths(ctx context.Context, q PointQuery, depths []float64) (*Result, error)
	Subset(ctx context.Context, q SubsetQuery) (*RawResult, error)
	Close() error
}

// request is the normalised form every composite operation reduces to.
type request struct {
	lat, lon    []float64
	targetDims  []string
	targetShape []int
	variable    string
	depth       domain.DepthSelector
	allDepths   bool
	start, end  time.Time
	returnDepth bool
}

// sampler is the grid-specific part of an adapter.
type sampler interface {
	// locate returns the horizontal grid v is defined on.
	locate(v store.Variable) (*coordGrid, error)
	// depths returns the depth of every window sample selected by lay,
	// reduced like the data (chosen holds bottom indices when set).
	depths(ctx context.Context, v store.Variable, g *coordGrid, windows []spatial.Window, lay layout, chosen *ndarray.Array) (*ndarray.Array, error)
	subset(ctx context.Context, q SubsetQuery) (*RawResult, error)
}

// requestCache is a bounded LRU of results keyed by the canonical query.
type requestCache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

func newRequestCache(size int) *requestCache {
	if size < 0 {
		return nil
	}
	return &requestCache{lru: lru.New(size)}
}

func (c *requestCache) get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Get(key)
}

func (c *requestCache) add(key string, v any) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lru.Add(key, v)
	c.mu.Unlock()
}

func (c *requestCache) clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lru.Clear()
	c.mu.Unlock()
}

// cached runs fn unless a result for op and query is cached.
func cached[T any](c *requestCache, op string, query any, fn func() (*T, error)) (*T, error) {
	key := fmt.Sprintf("%s|%+v", op, query)
	if v, ok := c.get(key); ok {
		return v.(*T), nil
	}
	out, err := fn()
	if err != nil {
		return nil, err
	}
	c.add(key, out)
	return out, nil
}
