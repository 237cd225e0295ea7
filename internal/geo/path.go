package geo

import "math"

// Path is a sampled route with the cumulative distance to each point.
type Path struct {
	Points    []LatLon
	Distances []float64 // Metres from the first point.
	Bearings  []float64 // Bearing of the segment each point was sampled on.
}

// Lats returns the latitudes of the sampled points.
func (p Path) Lats() []float64 {
	out := make([]float64, len(p.Points))
	for i, pt := range p.Points {
		out[i] = pt.Lat
	}
	return out
}

// Lons returns the longitudes of the sampled points.
func (p Path) Lons() []float64 {
	out := make([]float64, len(p.Points))
	for i, pt := range p.Points {
		out[i] = pt.Lon
	}
	return out
}

// SamplePath distributes roughly n points along the polyline through
// vertices. Each segment receives points in proportion to its share of the
// total length, with at least two per segment; the result is thinned evenly
// when that exceeds n.
func SamplePath(vertices []LatLon, n int) Path {
	if len(vertices) == 0 {
		return Path{}
	}
	if len(vertices) == 1 || n < 2 {
		return Path{Points: []LatLon{vertices[0]}, Distances: []float64{0}, Bearings: []float64{0}}
	}

	segLen := make([]float64, len(vertices)-1)
	total := 0.0
	for i := 1; i < len(vertices); i++ {
		segLen[i-1] = Distance(vertices[i-1], vertices[i])
		total += segLen[i-1]
	}

	var path Path
	for i := 1; i < len(vertices); i++ {
		count := 2
		if total > 0 {
			count = int(math.Ceil(float64(n) * segLen[i-1] / total))
		}
		if count < 2 {
			count = 2
		}
		bearing := Bearing(vertices[i-1], vertices[i])
		pts := Between(vertices[i-1], vertices[i], count)
		if i > 1 {
			// First point repeats the previous segment's last point.
			pts = pts[1:]
		}
		for _, p := range pts {
			path.Points = append(path.Points, p)
			path.Bearings = append(path.Bearings, bearing)
		}
	}

	path.Distances = make([]float64, len(path.Points))
	for i := 1; i < len(path.Points); i++ {
		path.Distances[i] = path.Distances[i-1] + Distance(path.Points[i-1], path.Points[i])
	}

	if len(path.Points) > n {
		path = thin(path, n)
	}
	return path
}

func thin(p Path, n int) Path {
	out := Path{
		Points:    make([]LatLon, n),
		Distances: make([]float64, n),
		Bearings:  make([]float64, n),
	}
	last := len(p.Points) - 1
	for i := 0; i < n; i++ {
		j := int(math.Round(float64(i) * float64(last) / float64(n-1)))
		out.Points[i] = p.Points[j]
		out.Distances[i] = p.Distances[j]
		out.Bearings[i] = p.Bearings[j]
	}
	return out
}
