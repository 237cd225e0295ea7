package main

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/oceangrid/internal/adapter/store/opener"
	"go.ngs.io/oceangrid/internal/config"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/model"
)

var (
	testRegion = Region{LatMin: 42, LatMax: 46, LonMin: -66, LonMax: -62, Resolution: 0.25}
	t0         = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func TestStructured(t *testing.T) {
	ds := Structured(testRegion, 10, Times(t0, time.Hour, 3))
	assert.Equal(t, config.KindStructured, opener.Detect(ds))

	v, err := ds.Variable("votemper")
	require.NoError(t, err)
	assert.Equal(t, []int{3, 10, 17, 17}, v.Shape())

	m := model.NewStructured(ds, model.Options{})
	defer m.Close()
	res, err := m.GetPoint(context.Background(), model.PointQuery{
		Lat:      []float64{44},
		Lon:      []float64{-64},
		Variable: "votemper",
		Start:    t0,
	})
	require.NoError(t, err)
	assert.InDelta(t, temperature(44, 0.5, 0), res.Values.Value(), 0.2)

	res, err = m.GetPoint(context.Background(), model.PointQuery{
		Lat:      []float64{44},
		Lon:      []float64{-64},
		Depth:    domain.BottomDepth,
		Variable: "votemper",
		Start:    t0,
	})
	require.NoError(t, err)
	assert.Less(t, res.Values.Value(), temperature(44, 0.5, 0))
}

func TestMesh(t *testing.T) {
	ds := Mesh(testRegion, 10, Times(t0, time.Hour, 2))
	assert.Equal(t, config.KindMesh, opener.Detect(ds))

	u, err := ds.Variable("u")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 10, 2 * 16 * 16}, u.Shape())

	m := model.NewMesh(ds, model.Options{})
	defer m.Close()
	res, err := m.GetProfile(context.Background(), model.PointQuery{
		Lat:      []float64{44},
		Lon:      []float64{-64},
		Variable: "temp",
		Start:    t0.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, []int{10}, res.Values.Shape)
	top, deep := res.Values.Data[0], res.Values.Data[9]
	assert.False(t, math.IsNaN(top))
	assert.Greater(t, top, deep)
	assert.Greater(t, res.Depths.Data[9], res.Depths.Data[0])
}

func TestTimes(t *testing.T) {
	ts := Times(t0, 30*time.Minute, 3)
	assert.Equal(t, []time.Time{t0, t0.Add(30 * time.Minute), t0.Add(time.Hour)}, ts)
}
