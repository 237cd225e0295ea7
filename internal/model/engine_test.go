package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/oceangrid/internal/adapter/spatial"
	"go.ngs.io/oceangrid/internal/ndarray"
)

func TestBottom_DeepestValidPerColumn(t *testing.T) {
	nan := math.NaN()
	// time x depth x point
	arr, err := ndarray.FromSlice([]string{"time", "depth", "point"}, []int{1, 3, 3}, []float64{
		1, 2, nan,
		4, nan, nan,
		7, nan, nan,
	})
	require.NoError(t, err)

	values, chosen, err := bottom(arr, "depth")
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "point"}, values.Dims)
	assert.Equal(t, 7.0, values.At(0, 0))
	assert.Equal(t, 2.0, values.At(0, 1))
	assert.True(t, math.IsNaN(values.At(0, 2)))
	assert.Equal(t, 2.0, chosen.At(0, 0))
	assert.Equal(t, 0.0, chosen.At(0, 1))
	assert.True(t, math.IsNaN(chosen.At(0, 2)))

	picked, err := pick(arr.Map(func(v float64) float64 { return 10 }), "depth", chosen)
	require.NoError(t, err)
	assert.Equal(t, 10.0, picked.At(0, 0))
	assert.True(t, math.IsNaN(picked.At(0, 2)))
}

func TestAlongAxis_KeepsAxisPosition(t *testing.T) {
	arr := ndarray.New([]string{"a", "depth", "b"}, []int{2, 3, 2})
	for i := range arr.Data {
		arr.Data[i] = float64(i)
	}
	out, err := alongAxis(arr, 1, 2, func(col, out []float64) {
		out[0] = col[0]
		out[1] = col[len(col)-1]
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "depth", "b"}, out.Dims)
	assert.Equal(t, []int{2, 2, 2}, out.Shape)
	assert.Equal(t, arr.At(1, 0, 1), out.At(1, 0, 1))
	assert.Equal(t, arr.At(1, 2, 1), out.At(1, 1, 1))
}

func TestCoordGridWindow(t *testing.T) {
	lat, lon := meshgrid([]float64{0, 1, 2}, []float64{10, 11, 12, 13})
	g := &coordGrid{dims: []string{"y", "x"}, shape: []int{3, 4}, lat: lat, lon: lon}
	pts := g.window(windowsOf(1, 3, 2, 4))
	assert.Equal(t, []int{2, 2}, pts.Shape)
	assert.Equal(t, []float64{1, 1, 2, 2}, pts.Lat)
	assert.Equal(t, []float64{12, 13, 12, 13}, pts.Lon)
}

func TestRequestCacheKeys(t *testing.T) {
	c := newRequestCache(2)
	calls := 0
	fn := func() (*Result, error) {
		calls++
		return &Result{}, nil
	}
	_, _ = cached(c, "point", PointQuery{Variable: "a"}, fn)
	_, _ = cached(c, "point", PointQuery{Variable: "a"}, fn)
	_, _ = cached(c, "profile", PointQuery{Variable: "a"}, fn)
	assert.Equal(t, 2, calls)

	var disabled *requestCache
	_, _ = cached(disabled, "point", PointQuery{Variable: "a"}, fn)
	assert.Equal(t, 3, calls)
}

func windowsOf(y0, y1, x0, x1 int) []spatial.Window {
	return []spatial.Window{{Min: y0, Max: y1}, {Min: x0, Max: x1}}
}
