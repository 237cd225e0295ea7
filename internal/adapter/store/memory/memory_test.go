package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/ndarray"
)

func TestDataset_VariablesDescribeAttributes(t *testing.T) {
	ds := New().
		Add("votemper", ndarray.New([]string{"deptht", "y", "x"}, []int{2, 2, 2}), map[string]any{
			"long_name": "Water temperature",
			"units":     "Kelvin",
			"valid_min": float32(173),
			"valid_max": "373",
		}).
		Add("deptht", ndarray.Vector("deptht", []float64{0.5, 10}), nil)

	vars := ds.Variables()
	require.Equal(t, 2, vars.Len())
	v, ok := vars.Get("votemper")
	require.True(t, ok)
	assert.Equal(t, "Water temperature", v.Name)
	assert.Equal(t, "Kelvin", v.Unit)
	require.NotNil(t, v.ValidMin)
	require.NotNil(t, v.ValidMax)
	assert.Equal(t, 173.0, *v.ValidMin)
	assert.Equal(t, 373.0, *v.ValidMax)

	depth, ok := vars.Get("deptht")
	require.True(t, ok)
	assert.Equal(t, "deptht", depth.Name)

	depths, err := ds.Depths()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 10}, depths)
}

func TestDataset_UnknownVariable(t *testing.T) {
	_, err := New().Variable("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownVariable)

	_, err = New().Depths()
	assert.ErrorIs(t, err, domain.ErrNoDepthAxis)
}

func TestDataset_TimeIndex(t *testing.T) {
	t0 := time.Date(2014, 2, 1, 0, 0, 0, 0, time.UTC)
	ds := New().SetTimes("time_counter", []time.Time{t0, t0.Add(time.Hour)})

	i, err := ds.TimeIndex(t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	_, err = ds.TimeIndex(t0.Add(time.Minute))
	assert.ErrorIs(t, err, domain.ErrTimeNotFound)

	ds.SetTimeTolerance(1e-7)
	i, err = ds.TimeIndex(t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, i)

	lo, hi, err := store.TimeRange(ds.TimeIndex, t0.Add(time.Hour), t0)
	require.NoError(t, err)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 1, hi)

	lo, hi, err = store.TimeRange(ds.TimeIndex, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 0, hi)
}

func TestDataset_TimeIndexPicksClosest(t *testing.T) {
	t0 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := New().
		SetTimes("time", []time.Time{t0, t0.Add(100 * time.Second), t0.Add(200 * time.Second)}).
		SetTimeTolerance(1e-7)

	i, err := ds.TimeIndex(t0.Add(110 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, i)

	i, err = ds.TimeIndex(t0.Add(190 * time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, i)
}

func TestDataset_ClosedRejectsReads(t *testing.T) {
	ds := New().Add("a", ndarray.Scalar(1), nil)
	require.NoError(t, ds.Close())
	_, err := ds.Variable("a")
	assert.ErrorIs(t, err, store.ErrClosed)
}
