package interp

import (
	"math"
	"testing"
)

func TestVerticalProfile(t *testing.T) {
	depths := []float64{0, 10, 20, 30}
	values := []float64{20, 18, math.NaN(), 10}

	got := VerticalProfile(depths, values, []float64{0, 5, 20, 30, 35, -1})
	want := []float64{20, 19, 14, 10, math.NaN(), math.NaN()}

	for i := range want {
		if math.IsNaN(want[i]) {
			if !math.IsNaN(got[i]) {
				t.Errorf("target %d: expected NaN, got %v", i, got[i])
			}
			continue
		}
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("target %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestVerticalProfile_SingleSample(t *testing.T) {
	got := VerticalProfile([]float64{5, 10}, []float64{1, math.NaN()}, []float64{5, 6})
	if got[0] != 1 {
		t.Errorf("expected 1 at the only valid depth, got %v", got[0])
	}
	if !math.IsNaN(got[1]) {
		t.Errorf("expected NaN away from the only valid depth, got %v", got[1])
	}
}

func TestVerticalProfile_AllMasked(t *testing.T) {
	got := VerticalProfile([]float64{0, 1}, []float64{math.NaN(), math.NaN()}, []float64{0.5})
	if !math.IsNaN(got[0]) {
		t.Errorf("expected NaN, got %v", got[0])
	}
}
