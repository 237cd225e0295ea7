// Package spatial locates the grid cells nearest to geographic points and
// turns those neighbourhoods into extraction windows.
package spatial

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"go.ngs.io/oceangrid/internal/geo"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// Missing is the index reported for neighbour slots that could not be
// filled because the index holds fewer than k points.
const Missing = -1

var (
	// ErrEmptyIndex indicates an index built from no points.
	ErrEmptyIndex = errors.New("spatial: index has no points")
	// ErrCoordinateLength indicates lat and lon arrays of different lengths.
	ErrCoordinateLength = errors.New("spatial: latitude and longitude lengths differ")
)

// point is a grid point embedded on the unit sphere.
type point struct {
	X, Y, Z float64
	Flat    int // Flat index into the source coordinate array.
}

// Compare implements kdtree.Comparable.
func (p point) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(point)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("spatial: illegal dimension")
	}
}

// Dims implements kdtree.Comparable.
func (p point) Dims() int { return 3 }

// Distance returns the squared chord distance.
func (p point) Distance(c kdtree.Comparable) float64 {
	q := c.(point)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

type points []point

func (p points) Index(i int) kdtree.Comparable        { return p[i] }
func (p points) Len() int                              { return len(p) }
func (p points) Slice(start, end int) kdtree.Interface { return p[start:end] }
func (p points) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(plane{points: p, Dim: d}, kdtree.MedianOfRandoms(plane{points: p, Dim: d}, 100))
}

// plane implements kdtree.SortSlicer over one axis.
type plane struct {
	points
	kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.points[i].X < p.points[j].X
	case 1:
		return p.points[i].Y < p.points[j].Y
	case 2:
		return p.points[i].Z < p.points[j].Z
	default:
		panic("spatial: illegal dimension")
	}
}

func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{points: p.points[start:end], Dim: p.Dim}
}

func (p plane) Swap(i, j int) {
	p.points[i], p.points[j] = p.points[j], p.points[i]
}

func embed(latDeg, lonDeg float64, flat int) point {
	φ := geo.Deg2Rad(latDeg)
	λ := geo.Deg2Rad(lonDeg)
	return point{
		X:    math.Cos(φ) * math.Cos(λ),
		Y:    math.Cos(φ) * math.Sin(λ),
		Z:    math.Sin(φ),
		Flat: flat,
	}
}

// Index answers k-nearest queries over a fixed set of grid points. It is
// read-only once built and safe for concurrent queries.
type Index struct {
	tree  *kdtree.Tree
	shape []int
	n     int
}

// NewIndex builds an index over flattened lat/lon arrays whose original
// shape is shape (e.g. [ny, nx] for a curvilinear grid, [n] for mesh nodes).
// Points with NaN coordinates are skipped.
func NewIndex(lat, lon []float64, shape []int) (*Index, error) {
	if len(lat) != len(lon) {
		return nil, fmt.Errorf("%w: %d != %d", ErrCoordinateLength, len(lat), len(lon))
	}
	if len(shape) == 0 {
		shape = []int{len(lat)}
	}
	size := 1
	for _, s := range shape {
		size *= s
	}
	if size != len(lat) {
		return nil, fmt.Errorf("spatial: shape %v does not hold %d points", shape, len(lat))
	}

	pts := make(points, 0, len(lat))
	for i := range lat {
		if math.IsNaN(lat[i]) || math.IsNaN(lon[i]) {
			continue
		}
		pts = append(pts, embed(lat[i], lon[i], i))
	}
	if len(pts) == 0 {
		return nil, ErrEmptyIndex
	}

	return &Index{
		tree:  kdtree.New(pts, false),
		shape: append([]int(nil), shape...),
		n:     len(pts),
	}, nil
}

// Len returns the number of indexed points.
func (ix *Index) Len() int {
	return ix.n
}

// Shape returns the shape of the source coordinate arrays.
func (ix *Index) Shape() []int {
	return append([]int(nil), ix.shape...)
}

// Neighbours holds k-nearest results, one row per query point, ordered by
// increasing distance.
type Neighbours struct {
	Dist2 [][]float64 // Squared chord distances on the unit sphere.
	Flat  [][]int     // Flat indices into the source arrays, Missing when padded.
}

// Query returns the k nearest indexed points to each (lat, lon). When the
// index holds fewer than k points the remaining slots are padded with
// Missing and +Inf.
func (ix *Index) Query(lat, lon []float64, k int) (Neighbours, error) {
	if len(lat) != len(lon) {
		return Neighbours{}, fmt.Errorf("%w: %d != %d", ErrCoordinateLength, len(lat), len(lon))
	}
	if k < 1 {
		k = 1
	}
	res := Neighbours{
		Dist2: make([][]float64, len(lat)),
		Flat:  make([][]int, len(lat)),
	}
	for q := range lat {
		keeper := kdtree.NewNKeeper(k)
		ix.tree.NearestSet(keeper, embed(lat[q], lon[q], Missing))

		found := make([]kdtree.ComparableDist, 0, k)
		for _, cd := range keeper.Heap {
			if cd.Comparable == nil {
				continue
			}
			found = append(found, cd)
		}
		sort.SliceStable(found, func(i, j int) bool {
			if found[i].Dist == found[j].Dist {
				return found[i].Comparable.(point).Flat < found[j].Comparable.(point).Flat
			}
			return found[i].Dist < found[j].Dist
		})

		d2 := make([]float64, k)
		flat := make([]int, k)
		for i := 0; i < k; i++ {
			if i < len(found) {
				d2[i] = found[i].Dist
				flat[i] = found[i].Comparable.(point).Flat
				continue
			}
			d2[i] = math.Inf(1)
			flat[i] = Missing
		}
		res.Dist2[q] = d2
		res.Flat[q] = flat
	}
	return res, nil
}

// Unravel maps a flat index back onto the source shape.
func (ix *Index) Unravel(flat int) []int {
	return ndarray.Unravel(flat, ix.shape)
}

// AxisIndices unravels every non-missing neighbour and groups the indices
// per axis of the source shape, ready for ResolveWindow.
func (ix *Index) AxisIndices(n Neighbours) [][]int {
	axes := make([][]int, len(ix.shape))
	for _, row := range n.Flat {
		for _, f := range row {
			if f == Missing {
				continue
			}
			idx := ix.Unravel(f)
			for a := range axes {
				axes[a] = append(axes[a], idx[a])
			}
		}
	}
	return axes
}

// SurfaceDistance converts a squared chord distance on the unit sphere to an
// approximate surface distance in metres.
func SurfaceDistance(dist2 float64) float64 {
	return math.Sqrt(dist2) * geo.EarthRadius
}
