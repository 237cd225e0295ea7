package netcdf

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// ErrTimeUnits indicates a time axis whose units are not "<unit> since <epoch>".
var ErrTimeUnits = errors.New("netcdf: unsupported time units")

var epochLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"2006-1-2 15:4:5",
	"2006-1-2",
}

// DecodeTimes converts CF-style numeric times ("days since 1950-01-01") to
// UTC timestamps.
func DecodeTimes(values []float64, units string) ([]time.Time, error) {
	step, epoch, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			return nil, fmt.Errorf("%w: missing time value at index %d", ErrTimeUnits, i)
		}
		// Round to the second; float time axes carry representation noise.
		secs := math.Round(v * step.Seconds())
		out[i] = epoch.Add(time.Duration(secs) * time.Second)
	}
	return out, nil
}

// EncodeTimes is the inverse of DecodeTimes.
func EncodeTimes(ts []time.Time, units string) ([]float64, error) {
	step, epoch, err := parseTimeUnits(units)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(ts))
	for i, t := range ts {
		out[i] = t.Sub(epoch).Seconds() / step.Seconds()
	}
	return out, nil
}

func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, fmt.Errorf("%w: %q", ErrTimeUnits, units)
	}

	var step time.Duration
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "secs", "sec", "s":
		step = time.Second
	case "minutes", "minute", "mins", "min":
		step = time.Minute
	case "hours", "hour", "hrs", "hr", "h":
		step = time.Hour
	case "days", "day", "d":
		step = 24 * time.Hour
	default:
		return 0, time.Time{}, fmt.Errorf("%w: %q", ErrTimeUnits, units)
	}

	ref := strings.TrimSpace(parts[1])
	ref = strings.TrimSuffix(ref, " UTC")
	ref = strings.TrimSuffix(ref, "Z")
	ref = strings.TrimSuffix(ref, " +00:00")
	ref = strings.TrimSuffix(ref, "+00:00")
	ref = strings.TrimSpace(ref)
	if i := strings.IndexByte(ref, '.'); i > 0 {
		ref = ref[:i]
	}
	for _, layout := range epochLayouts {
		if t, err := time.ParseInLocation(layout, ref, time.UTC); err == nil {
			return step, t, nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("%w: epoch %q", ErrTimeUnits, parts[1])
}
