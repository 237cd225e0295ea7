// Package geo provides great-circle geometry on a spherical Earth.
package geo

import "math"

// EarthRadius is the equatorial radius in metres used for surface distances.
const EarthRadius = 6378137.0

// LatLon is a geographic position in degrees.
type LatLon struct {
	Lat float64
	Lon float64
}

// Deg2Rad converts degrees to radians.
func Deg2Rad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Rad2Deg converts radians to degrees.
func Rad2Deg(rad float64) float64 {
	return rad * 180.0 / math.Pi
}

// Distance returns the haversine surface distance in metres.
func Distance(a, b LatLon) float64 {
	return EarthRadius * angularDistance(a, b)
}

func angularDistance(a, b LatLon) float64 {
	φ1, φ2 := Deg2Rad(a.Lat), Deg2Rad(b.Lat)
	dφ := φ2 - φ1
	dλ := Deg2Rad(b.Lon - a.Lon)
	h := math.Sin(dφ/2)*math.Sin(dφ/2) + math.Cos(φ1)*math.Cos(φ2)*math.Sin(dλ/2)*math.Sin(dλ/2)
	return 2 * math.Atan2(math.Sqrt(h), math.Sqrt(math.Max(0, 1-h)))
}

// Bearing returns the initial great-circle bearing from a to b in degrees
// clockwise from north, in [0, 360).
func Bearing(a, b LatLon) float64 {
	φ1, φ2 := Deg2Rad(a.Lat), Deg2Rad(b.Lat)
	dλ := Deg2Rad(b.Lon - a.Lon)
	y := math.Sin(dλ) * math.Cos(φ2)
	x := math.Cos(φ1)*math.Sin(φ2) - math.Sin(φ1)*math.Cos(φ2)*math.Cos(dλ)
	return math.Mod(Rad2Deg(math.Atan2(y, x))+360, 360)
}

// Intermediate returns the point a fraction f of the way from a to b along
// the great circle.
func Intermediate(a, b LatLon, f float64) LatLon {
	δ := angularDistance(a, b)
	if δ == 0 {
		return a
	}
	φ1, λ1 := Deg2Rad(a.Lat), Deg2Rad(a.Lon)
	φ2, λ2 := Deg2Rad(b.Lat), Deg2Rad(b.Lon)
	wa := math.Sin((1-f)*δ) / math.Sin(δ)
	wb := math.Sin(f*δ) / math.Sin(δ)
	x := wa*math.Cos(φ1)*math.Cos(λ1) + wb*math.Cos(φ2)*math.Cos(λ2)
	y := wa*math.Cos(φ1)*math.Sin(λ1) + wb*math.Cos(φ2)*math.Sin(λ2)
	z := wa*math.Sin(φ1) + wb*math.Sin(φ2)
	return LatLon{
		Lat: Rad2Deg(math.Atan2(z, math.Hypot(x, y))),
		Lon: Rad2Deg(math.Atan2(y, x)),
	}
}

// Between returns n points from a to b inclusive, evenly spaced along the
// great circle.
func Between(a, b LatLon, n int) []LatLon {
	if n < 2 {
		return []LatLon{a}
	}
	pts := make([]LatLon, n)
	for i := 0; i < n; i++ {
		pts[i] = Intermediate(a, b, float64(i)/float64(n-1))
	}
	return pts
}
