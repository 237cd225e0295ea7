package interp

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/oceangrid/internal/ndarray"
)

// curvilinear returns a ny x nx grid and a field f(lat, lon) sampled on it.
func curvilinear(ny, nx int, f func(lat, lon float64) float64) (Points, []float64) {
	src := Points{Shape: []int{ny, nx}}
	var data []float64
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			lat := 40 + 0.1*float64(j)
			lon := -70 + 0.1*float64(i) + 0.01*float64(j)
			src.Lat = append(src.Lat, lat)
			src.Lon = append(src.Lon, lon)
			data = append(data, f(lat, lon))
		}
	}
	return src, data
}

func TestParseMethod(t *testing.T) {
	for _, name := range []string{"gaussian", "Bilinear", " inverse ", "nearest"} {
		_, err := ParseMethod(name)
		assert.NoError(t, err, name)
	}
	m, err := ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, Gaussian, m)

	_, err = ParseMethod("cubic")
	assert.ErrorIs(t, err, ErrUnknownMethod)
}

func TestResample_RoundTripNearest(t *testing.T) {
	src, values := curvilinear(6, 7, func(lat, lon float64) float64 { return lat*100 + lon })
	data, err := ndarray.FromSlice([]string{"y", "x"}, []int{6, 7}, values)
	require.NoError(t, err)

	target := Points{Lat: src.Lat, Lon: src.Lon}
	out, err := Resample(context.Background(), data, []int{0, 1}, src, target, Options{Method: Nearest, Neighbours: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{PointDim}, out.Dims)
	assert.Equal(t, values, out.Data)
}

func TestResample_RoundTripWeighted(t *testing.T) {
	src, values := curvilinear(6, 7, func(lat, lon float64) float64 { return lat - lon })
	data, err := ndarray.FromSlice([]string{"y", "x"}, []int{6, 7}, values)
	require.NoError(t, err)

	for _, m := range []Method{Bilinear, Inverse} {
		target := Points{Lat: src.Lat[10:12], Lon: src.Lon[10:12]}
		out, err := Resample(context.Background(), data, []int{0, 1}, src, target, Options{Method: m})
		require.NoError(t, err)
		assert.InDeltaSlice(t, values[10:12], out.Data, 1e-6, string(m))
	}
}

func TestResample_ConstantFieldIsPreserved(t *testing.T) {
	src, values := curvilinear(5, 5, func(float64, float64) float64 { return 7.5 })
	data, err := ndarray.FromSlice([]string{"y", "x"}, []int{5, 5}, values)
	require.NoError(t, err)

	target := Points{Lat: []float64{40.17, 40.22}, Lon: []float64{-69.83, -69.79}}
	for _, m := range []Method{Gaussian, Bilinear, Inverse, Nearest} {
		out, err := Resample(context.Background(), data, []int{0, 1}, src, target, Options{Method: m})
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{7.5, 7.5}, out.Data, 1e-9, string(m))
	}
}

func TestResample_MaskedNeighbourhoodIsNaN(t *testing.T) {
	src, values := curvilinear(4, 4, func(float64, float64) float64 { return math.NaN() })
	data, err := ndarray.FromSlice([]string{"y", "x"}, []int{4, 4}, values)
	require.NoError(t, err)

	target := Points{Lat: []float64{40.1}, Lon: []float64{-69.9}}
	for _, m := range []Method{Gaussian, Bilinear, Inverse, Nearest} {
		out, err := Resample(context.Background(), data, []int{0, 1}, src, target, Options{Method: m})
		require.NoError(t, err)
		assert.True(t, out.IsScalar())
		assert.True(t, math.IsNaN(out.Value()), m)
	}
}

func TestResample_MaskIsPerLayer(t *testing.T) {
	src, surface := curvilinear(4, 4, func(float64, float64) float64 { return 1 })
	values := append([]float64(nil), surface...)
	for range surface {
		values = append(values, math.NaN())
	}
	data, err := ndarray.FromSlice([]string{"depth", "y", "x"}, []int{2, 4, 4}, values)
	require.NoError(t, err)

	target := Points{Lat: []float64{40.15}, Lon: []float64{-69.85}}
	out, err := Resample(context.Background(), data, []int{1, 2}, src, target, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"depth"}, out.Dims)
	assert.InDelta(t, 1.0, out.Data[0], 1e-12)
	assert.True(t, math.IsNaN(out.Data[1]))
}

func TestResample_PartiallyMaskedIgnoresMissing(t *testing.T) {
	src, values := curvilinear(4, 4, func(lat, _ float64) float64 {
		if lat > 40.15 {
			return math.NaN()
		}
		return 3
	})
	data, err := ndarray.FromSlice([]string{"y", "x"}, []int{4, 4}, values)
	require.NoError(t, err)

	target := Points{Lat: []float64{40.15}, Lon: []float64{-69.85}}
	out, err := Resample(context.Background(), data, []int{0, 1}, src, target, Options{Method: Inverse})
	require.NoError(t, err)
	assert.InDelta(t, 3.0, out.Value(), 1e-12)
}

func TestResample_LayoutAndAxisPlacement(t *testing.T) {
	src, surface := curvilinear(3, 4, func(lat, lon float64) float64 { return lat })
	var values []float64
	for ti := 0; ti < 2; ti++ {
		for d := 0; d < 3; d++ {
			for _, v := range surface {
				values = append(values, v+float64(10*ti+d))
			}
		}
	}
	data, err := ndarray.FromSlice([]string{"time", "depth", "y", "x"}, []int{2, 3, 3, 4}, values)
	require.NoError(t, err)

	target := Points{
		Lat:   []float64{40.0, 40.1, 40.2, 40.0},
		Lon:   []float64{-70.0, -69.89, -69.78, -69.7},
		Dims:  []string{"lat", "lon"},
		Shape: []int{2, 2},
	}
	out, err := Resample(context.Background(), data, []int{2, 3}, src, target, Options{Method: Nearest})
	require.NoError(t, err)
	assert.Equal(t, []string{"time", "depth", "lat", "lon"}, out.Dims)
	assert.Equal(t, []int{2, 3, 2, 2}, out.Shape)
	assert.InDelta(t, 40.1+12, out.At(1, 2, 0, 1), 1e-9)
}

func TestResample_SpatialAxesFirst(t *testing.T) {
	src, surface := curvilinear(2, 2, func(lat, lon float64) float64 { return lat })
	// y, x, depth layout
	var values []float64
	for _, v := range surface {
		values = append(values, v, v+100)
	}
	data, err := ndarray.FromSlice([]string{"y", "x", "depth"}, []int{2, 2, 2}, values)
	require.NoError(t, err)

	target := Points{Lat: src.Lat, Lon: src.Lon}
	out, err := Resample(context.Background(), data, []int{0, 1}, src, target, Options{Method: Nearest})
	require.NoError(t, err)
	assert.Equal(t, []string{PointDim, "depth"}, out.Dims)
	assert.Equal(t, []int{4, 2}, out.Shape)
	assert.InDelta(t, surface[3]+100, out.At(3, 1), 1e-9)
}

func TestResample_ParallelMatchesSequential(t *testing.T) {
	src, surface := curvilinear(8, 8, func(lat, lon float64) float64 { return math.Sin(lat) * math.Cos(lon) })
	var values []float64
	for l := 0; l < 16; l++ {
		for i, v := range surface {
			if (i+l)%7 == 0 {
				values = append(values, math.NaN())
				continue
			}
			values = append(values, v*float64(l+1))
		}
	}
	data, err := ndarray.FromSlice([]string{"depth", "y", "x"}, []int{16, 8, 8}, values)
	require.NoError(t, err)

	target := Points{Lat: []float64{40.33, 40.41, 40.57}, Lon: []float64{-69.62, -69.55, -69.4}}
	seq, err := Resample(context.Background(), data, []int{1, 2}, src, target, Options{Workers: 1})
	require.NoError(t, err)
	par, err := Resample(context.Background(), data, []int{1, 2}, src, target, Options{Workers: 8})
	require.NoError(t, err)
	assert.Equal(t, seq.Data, par.Data)
}

func TestPlan_LayoutMismatch(t *testing.T) {
	src, _ := curvilinear(3, 3, func(float64, float64) float64 { return 0 })
	plan, err := NewPlan(src, Points{Lat: []float64{40}, Lon: []float64{-70}}, Options{})
	require.NoError(t, err)

	data := ndarray.New([]string{"y", "x"}, []int{2, 2})
	_, err = plan.Apply(context.Background(), data, []int{0, 1})
	assert.ErrorIs(t, err, ErrLayout)
}

func TestPlan_CancelledContext(t *testing.T) {
	src, values := curvilinear(3, 3, func(float64, float64) float64 { return 0 })
	data, err := ndarray.FromSlice([]string{"y", "x"}, []int{3, 3}, values)
	require.NoError(t, err)
	plan, err := NewPlan(src, Points{Lat: []float64{40}, Lon: []float64{-70}}, Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = plan.Apply(ctx, data, []int{0, 1})
	assert.ErrorIs(t, err, context.Canceled)
}
