package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistance_OneDegreeOfLatitude(t *testing.T) {
	d := Distance(LatLon{0, 0}, LatLon{1, 0})
	assert.InDelta(t, EarthRadius*math.Pi/180, d, 1e-6)
}

func TestDistance_AcrossDateline(t *testing.T) {
	d := Distance(LatLon{0, 179.5}, LatLon{0, -179.5})
	assert.InDelta(t, EarthRadius*math.Pi/180, d, 1e-6)
}

func TestBearing(t *testing.T) {
	assert.InDelta(t, 0, Bearing(LatLon{0, 0}, LatLon{1, 0}), 1e-9)
	assert.InDelta(t, 90, Bearing(LatLon{0, 0}, LatLon{0, 1}), 1e-9)
	assert.InDelta(t, 180, Bearing(LatLon{1, 0}, LatLon{0, 0}), 1e-9)
}

func TestIntermediate_Midpoint(t *testing.T) {
	mid := Intermediate(LatLon{0, 0}, LatLon{0, 10}, 0.5)
	assert.InDelta(t, 0, mid.Lat, 1e-9)
	assert.InDelta(t, 5, mid.Lon, 1e-9)
}

func TestSamplePath_ProportionalAndClamped(t *testing.T) {
	vertices := []LatLon{{0, 0}, {0, 3}, {0, 4}}
	p := SamplePath(vertices, 40)
	require.LessOrEqual(t, len(p.Points), 40)
	require.Len(t, p.Distances, len(p.Points))
	assert.Equal(t, vertices[0], p.Points[0])
	assert.InDelta(t, 4, p.Points[len(p.Points)-1].Lon, 1e-9)

	// Distances are cumulative and non-decreasing.
	for i := 1; i < len(p.Distances); i++ {
		assert.GreaterOrEqual(t, p.Distances[i], p.Distances[i-1])
	}
	assert.InDelta(t, Distance(vertices[0], vertices[2]), p.Distances[len(p.Distances)-1], 1)
}

func TestSamplePath_MinimumTwoPerSegment(t *testing.T) {
	// The short segment would get less than one point by proportion.
	vertices := []LatLon{{0, 0}, {0, 10}, {0, 10.001}}
	p := SamplePath(vertices, 10)
	assert.InDelta(t, 10.001, p.Points[len(p.Points)-1].Lon, 1e-9)
	assert.LessOrEqual(t, len(p.Points), 10)
}

func TestSamplePath_SinglePoint(t *testing.T) {
	p := SamplePath([]LatLon{{45, -63}}, 100)
	require.Len(t, p.Points, 1)
	assert.Equal(t, 0.0, p.Distances[0])
}
