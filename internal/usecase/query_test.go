package usecase

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/adapter/store/calculated"
	"go.ngs.io/oceangrid/internal/adapter/store/memory"
	"go.ngs.io/oceangrid/internal/adapter/store/opener"
	"go.ngs.io/oceangrid/internal/config"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/geo"
	"go.ngs.io/oceangrid/internal/ndarray"
)

var day = time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)

func regular(config.Dataset) (store.Dataset, error) {
	lats := []float64{40, 40.5, 41, 41.5, 42}
	lons := []float64{-70, -69.5, -69, -68.5, -68}
	temp := ndarray.Full([]string{"time", "depth", "lat", "lon"}, []int{2, 3, 5, 5}, 285)
	temp.Set(math.NaN(), 0, 2, 0, 0)
	return memory.New().
		Add("lat", ndarray.Vector("lat", lats), nil).
		Add("lon", ndarray.Vector("lon", lons), nil).
		Add("depth", ndarray.Vector("depth", []float64{0, 10, 20}), map[string]any{"units": "m"}).
		Add("temp", temp, map[string]any{"long_name": "Temperature", "units": "K"}).
		SetTimes("time", []time.Time{day, day.Add(24 * time.Hour)}), nil
}

func newUseCase() *QueryUseCase {
	datasets := []config.Dataset{{
		ID:  "regular",
		URL: "regular.nc",
		Variables: map[string]calculated.Definition{
			"temp_c": {Equation: "temp - 273.15", LongName: "Temperature", Units: "Celsius"},
		},
	}}
	return NewQueryUseCase(datasets, opener.New(datasets, opener.Options{Open: regular}))
}

func TestValidate(t *testing.T) {
	base := QueryRequest{Operation: OpPoint, Dataset: "d", Variable: "v", Lat: []float64{1}, Lon: []float64{2}}
	require.NoError(t, base.Validate())

	cases := map[string]func(r *QueryRequest){
		"no dataset":      func(r *QueryRequest) { r.Dataset = "" },
		"no variable":     func(r *QueryRequest) { r.Variable = "" },
		"unpaired":        func(r *QueryRequest) { r.Lon = nil },
		"latitude":        func(r *QueryRequest) { r.Lat = []float64{91} },
		"longitude":       func(r *QueryRequest) { r.Lon = []float64{-181} },
		"reversed times":  func(r *QueryRequest) { r.Start, r.End = day, day.Add(-time.Hour) },
		"short path":      func(r *QueryRequest) { r.Operation = OpPath },
		"no depths":       func(r *QueryRequest) { r.Operation = OpProfileDepths },
		"inverted box":    func(r *QueryRequest) { r.Operation, r.South, r.North = OpSubset, 10, 5 },
		"unknown":         func(r *QueryRequest) { r.Operation = "volume" },
		"too many points": func(r *QueryRequest) { r.Lat, r.Lon = make([]float64, MaxPoints+1), make([]float64, MaxPoints+1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			r := base
			mutate(&r)
			require.ErrorIs(t, r.Validate(), domain.ErrInvalidQuery)
		})
	}
}

func TestExecute_Point(t *testing.T) {
	uc := newUseCase()
	resp, err := uc.Execute(context.Background(), QueryRequest{
		Operation: OpPoint, Dataset: "regular", Variable: "temp_c",
		Lat: []float64{41}, Lon: []float64{-69}, Start: day,
	})
	require.NoError(t, err)
	assert.Equal(t, "Celsius", resp.Variable.Unit)
	require.Len(t, resp.Values.Values, 1)
	assert.InDelta(t, 11.85, float64(resp.Values.Values[0]), 1e-9)
	require.NotNil(t, resp.Depths)
	assert.Equal(t, Float(0), resp.Depths.Values[0])
}

func TestExecute_TimeseriesAndProfile(t *testing.T) {
	uc := newUseCase()
	resp, err := uc.Execute(context.Background(), QueryRequest{
		Operation: OpTimeseries, Dataset: "regular", Variable: "temp",
		Lat: []float64{41}, Lon: []float64{-69},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, resp.Values.Shape)
	assert.Equal(t, []string{"2020-06-01T00:00:00Z", "2020-06-02T00:00:00Z"}, resp.Times)

	resp, err = uc.Execute(context.Background(), QueryRequest{
		Operation: OpProfile, Dataset: "regular", Variable: "temp",
		Lat: []float64{41}, Lon: []float64{-69}, Start: day,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"depth"}, resp.Values.Dims)
	assert.Equal(t, []Float{0, 10, 20}, resp.Depths.Values)
}

func TestExecute_PathAndSubset(t *testing.T) {
	uc := newUseCase()
	resp, err := uc.Execute(context.Background(), QueryRequest{
		Operation: OpPath, Dataset: "regular", Variable: "temp",
		Path:  []geo.LatLon{{Lat: 40.5, Lon: -69.5}, {Lat: 41.5, Lon: -68.5}},
		Start: day,
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Path)
	assert.Len(t, resp.Path.Lat, resp.Values.Shape[0])

	resp, err = uc.Execute(context.Background(), QueryRequest{
		Operation: OpSubset, Dataset: "regular", Variable: "temp",
		South: 40.2, North: 41.2, West: -69.8, East: -68.8, Start: day,
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, resp.Values.Shape)
	assert.Equal(t, []int{2, 2}, resp.Lat.Shape)
}

func TestExecute_Errors(t *testing.T) {
	uc := newUseCase()
	_, err := uc.Execute(context.Background(), QueryRequest{
		Operation: OpPoint, Dataset: "missing", Variable: "temp", Lat: []float64{41}, Lon: []float64{-69},
	})
	require.ErrorIs(t, err, opener.ErrUnknownDataset)

	_, err = uc.Execute(context.Background(), QueryRequest{
		Operation: OpPoint, Dataset: "regular", Variable: "salt", Lat: []float64{41}, Lon: []float64{-69},
	})
	require.ErrorIs(t, err, domain.ErrUnknownVariable)
}

func TestVariables(t *testing.T) {
	vars, err := newUseCase().Variables(context.Background(), "regular")
	require.NoError(t, err)
	keys := make([]string, len(vars))
	for i, v := range vars {
		keys[i] = v.Key
	}
	assert.Contains(t, keys, "temp")
	assert.Contains(t, keys, "temp_c")
}

func TestSeries_EncodesNaNAsNull(t *testing.T) {
	s := NewSeries(ndarray.Vector("depth", []float64{1.5, math.NaN(), math.Inf(1)}))
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"dims":["depth"],"shape":[3],"values":[1.5,null,null]}`, string(b))
	assert.Nil(t, NewSeries(nil))
}
