package netcdf

import (
	"testing"
	"time"
)

func TestDecodeTimes(t *testing.T) {
	tests := []struct {
		units string
		value float64
		want  time.Time
	}{
		{"seconds since 1950-01-01 00:00:00", 86400, time.Date(1950, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"days since 1858-11-17 00:00:00", 56900.5, time.Date(2014, 8, 31, 12, 0, 0, 0, time.UTC)},
		{"hours since 1900-01-01", 1, time.Date(1900, 1, 1, 1, 0, 0, 0, time.UTC)},
		{"minutes since 2000-01-01T00:00:00Z", 90, time.Date(2000, 1, 1, 1, 30, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := DecodeTimes([]float64{tt.value}, tt.units)
		if err != nil {
			t.Fatalf("%s: %v", tt.units, err)
		}
		if !got[0].Equal(tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.units, tt.want, got[0])
		}

		back, err := EncodeTimes(got, tt.units)
		if err != nil || back[0] != tt.value {
			t.Errorf("%s: round trip gave %v, %v", tt.units, back, err)
		}
	}
}

func TestDecodeTimes_BadUnits(t *testing.T) {
	for _, units := range []string{"", "days", "fortnights since 2000-01-01", "days since yesterday"} {
		if _, err := DecodeTimes([]float64{0}, units); err == nil {
			t.Errorf("%q: expected error", units)
		}
	}
}
