package usecase

import (
	"math"
	"strconv"

	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/geo"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// Float is a float64 that encodes NaN and infinities as JSON null.
type Float float64

// MarshalJSON implements json.Marshaler.
func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v, 'g', -1, 64), nil
}

// Series is a labeled array in row-major order.
type Series struct {
	Dims   []string `json:"dims"`
	Shape  []int    `json:"shape"`
	Values []Float  `json:"values"`
}

// NewSeries converts arr. A nil array yields nil.
func NewSeries(arr *ndarray.Array) *Series {
	if arr == nil {
		return nil
	}
	s := &Series{
		Dims:   append([]string{}, arr.Dims...),
		Shape:  append([]int{}, arr.Shape...),
		Values: make([]Float, len(arr.Data)),
	}
	for i, v := range arr.Data {
		s.Values[i] = Float(v)
	}
	return s
}

// QueryResponse contains query results.
type QueryResponse struct {
	Dataset   string       `json:"dataset"`
	Operation Operation    `json:"operation"`
	Variable  VariableInfo `json:"variable"`
	Values    *Series      `json:"values"`
	Depths    *Series      `json:"depths,omitempty"`
	Lat       *Series      `json:"lat,omitempty"`
	Lon       *Series      `json:"lon,omitempty"`
	Times     []string     `json:"times,omitempty"`
	Path      *PathInfo    `json:"path,omitempty"`
}

// DatasetInfo describes a catalogue entry.
type DatasetInfo struct {
	ID   string `json:"id"`
	Type string `json:"type,omitempty"`
}

// VariableInfo describes a variable.
type VariableInfo struct {
	Key        string   `json:"key"`
	Name       string   `json:"name"`
	Unit       string   `json:"unit"`
	Dimensions []string `json:"dimensions,omitempty"`
	ValidMin   *Float   `json:"valid_min,omitempty"`
	ValidMax   *Float   `json:"valid_max,omitempty"`
}

func newVariableInfo(v domain.Variable) VariableInfo {
	info := VariableInfo{
		Key:        v.Key,
		Name:       v.Name,
		Unit:       v.Unit,
		Dimensions: v.Dimensions,
	}
	if v.ValidMin != nil {
		f := Float(*v.ValidMin)
		info.ValidMin = &f
	}
	if v.ValidMax != nil {
		f := Float(*v.ValidMax)
		info.ValidMax = &f
	}
	return info
}

// PathInfo describes the sampled path.
type PathInfo struct {
	Lat      []float64 `json:"lat"`
	Lon      []float64 `json:"lon"`
	Distance []float64 `json:"distance_m"`
	Bearing  []float64 `json:"bearing_deg"`
}

func newPathInfo(p geo.Path) *PathInfo {
	return &PathInfo{
		Lat:      p.Lats(),
		Lon:      p.Lons(),
		Distance: roundAll(p.Distances, 1),
		Bearing:  roundAll(p.Bearings, 2),
	}
}

// roundAll rounds every value to precision decimals.
func roundAll(vals []float64, precision int) []float64 {
	out := make([]float64, len(vals))
	for i, v := range vals {
		out[i] = roundToDecimal(v, precision)
	}
	return out
}

// Helper function to round to decimal places.
func roundToDecimal(val float64, precision int) float64 {
	multiplier := math.Pow(10, float64(precision))
	return math.Round(val*multiplier) / multiplier
}
