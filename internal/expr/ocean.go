package expr

import (
	"fmt"
	"math"

	"go.ngs.io/oceangrid/internal/geo"
	"go.ngs.io/oceangrid/internal/ndarray"
)

const (
	gravity     = 9.80665   // m s-2
	earthOmega  = 7.2921e-5 // rad s-1
	minCoriolis = 1e-12
)

func oceanFunctions() []Function {
	return []Function{
		elementwise("magnitude", 2, func(x []float64) float64 { return math.Hypot(x[0], x[1]) }),
		elementwise("bearing", 2, func(x []float64) float64 {
			deg := math.Atan2(x[0], x[1]) * 180 / math.Pi
			return math.Mod(deg+360, 360)
		}),
		elementwise("sspeed", 3, func(x []float64) float64 { return soundSpeed(x[0], x[1], x[2]) }),
		elementwise("density", 2, func(x []float64) float64 { return density(x[0], x[1]) }),
		geometric("geostrophic_x", 1, func(g grid, f [][]float64, j, i int) float64 {
			c := g.coriolis(j, i)
			return -gravity / c * g.ddy(f[0], j, i)
		}),
		geometric("geostrophic_y", 1, func(g grid, f [][]float64, j, i int) float64 {
			c := g.coriolis(j, i)
			return gravity / c * g.ddx(f[0], j, i)
		}),
		geometric("vorticity", 2, func(g grid, f [][]float64, j, i int) float64 {
			return g.ddx(f[1], j, i) - g.ddy(f[0], j, i)
		}),
		geometric("divergence", 2, func(g grid, f [][]float64, j, i int) float64 {
			return g.ddx(f[0], j, i) + g.ddy(f[1], j, i)
		}),
		geometric("gradient", 1, func(g grid, f [][]float64, j, i int) float64 {
			return math.Hypot(g.ddx(f[0], j, i), g.ddy(f[0], j, i))
		}),
	}
}

// soundSpeed is the Mackenzie (1981) sound speed in m/s for depth in m,
// temperature in degrees C and practical salinity.
func soundSpeed(depth, temp, salt float64) float64 {
	t, s, d := temp, salt-35, depth
	return 1448.96 + 4.591*t - 5.304e-2*t*t + 2.374e-4*t*t*t +
		1.340*s + 1.630e-2*d + 1.675e-7*d*d -
		1.025e-2*t*s - 7.139e-13*t*d*d*d
}

// density is the UNESCO EOS-80 surface density in kg/m3 for temperature in
// degrees C and practical salinity.
func density(temp, salt float64) float64 {
	t, s := temp, salt
	rhoW := 999.842594 + 6.793952e-2*t - 9.095290e-3*t*t + 1.001685e-4*t*t*t -
		1.120083e-6*t*t*t*t + 6.536332e-9*t*t*t*t*t
	a := 0.824493 - 4.0899e-3*t + 7.6438e-5*t*t - 8.2467e-7*t*t*t + 5.3875e-9*t*t*t*t
	b := -5.72466e-3 + 1.0227e-4*t - 1.6546e-6*t*t
	return rhoW + a*s + b*s*math.Sqrt(s) + 4.8314e-4*s*s
}

// grid is the horizontal geometry of the trailing two data axes.
type grid struct {
	ny, nx   int
	lat, lon []float64
}

func newGrid(lat, lon *ndarray.Array) (grid, error) {
	switch {
	case lat.NDim() == 2 && lon.NDim() == 2:
		if lat.Shape[0] != lon.Shape[0] || lat.Shape[1] != lon.Shape[1] {
			return grid{}, fmt.Errorf("%w: latitude %v and longitude %v", ErrDimensionMismatch, lat.Shape, lon.Shape)
		}
		return grid{ny: lat.Shape[0], nx: lat.Shape[1], lat: lat.Data, lon: lon.Data}, nil
	case lat.NDim() == 1 && lon.NDim() == 1:
		ny, nx := lat.Shape[0], lon.Shape[0]
		g := grid{ny: ny, nx: nx, lat: make([]float64, ny*nx), lon: make([]float64, ny*nx)}
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				g.lat[j*nx+i] = lat.Data[j]
				g.lon[j*nx+i] = lon.Data[i]
			}
		}
		return g, nil
	default:
		return grid{}, fmt.Errorf("%w: latitude and longitude must both be 1-D or 2-D", ErrDimensionMismatch)
	}
}

func (g grid) point(j, i int) geo.LatLon {
	k := j*g.nx + i
	return geo.LatLon{Lat: g.lat[k], Lon: g.lon[k]}
}

func (g grid) coriolis(j, i int) float64 {
	c := 2 * earthOmega * math.Sin(geo.Deg2Rad(g.lat[j*g.nx+i]))
	if math.Abs(c) < minCoriolis {
		return math.NaN()
	}
	return c
}

// ddx is the centred (one-sided at the edges) derivative along the x axis.
func (g grid) ddx(f []float64, j, i int) float64 {
	i0, i1 := max(i-1, 0), min(i+1, g.nx-1)
	if i0 == i1 {
		return math.NaN()
	}
	d := geo.Distance(g.point(j, i0), g.point(j, i1))
	if d == 0 {
		return math.NaN()
	}
	return (f[j*g.nx+i1] - f[j*g.nx+i0]) / d
}

// ddy is the centred (one-sided at the edges) derivative along the y axis.
func (g grid) ddy(f []float64, j, i int) float64 {
	j0, j1 := max(j-1, 0), min(j+1, g.ny-1)
	if j0 == j1 {
		return math.NaN()
	}
	d := geo.Distance(g.point(j0, i), g.point(j1, i))
	if d == 0 {
		return math.NaN()
	}
	return (f[j1*g.nx+i] - f[j0*g.nx+i]) / d
}

// geometric wraps a function of n fields that needs grid spacing. The
// equation passes the fields followed by latitude and longitude.
func geometric(name string, n int, f func(g grid, fields [][]float64, j, i int) float64) Function {
	return Function{
		Name:    name,
		MinArgs: n + 2,
		MaxArgs: n + 2,
		Call: func(order []string, args []*ndarray.Array) (*ndarray.Array, error) {
			g, err := newGrid(args[n], args[n+1])
			if err != nil {
				return nil, err
			}
			fields, err := ndarray.Align(order, args[:n]...)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
			}
			shape := fields[0].Shape
			nd := len(shape)
			if nd < 2 || shape[nd-2] != g.ny || shape[nd-1] != g.nx {
				return nil, fmt.Errorf("%w: data %v does not end in grid shape [%d %d]", ErrDimensionMismatch, shape, g.ny, g.nx)
			}

			out := fields[0].Clone()
			size := g.ny * g.nx
			if size == 0 {
				return out, nil
			}
			layer := make([][]float64, n)
			for l := 0; l < out.Size()/size; l++ {
				for k := range fields {
					layer[k] = fields[k].Data[l*size : (l+1)*size]
				}
				for j := 0; j < g.ny; j++ {
					for i := 0; i < g.nx; i++ {
						out.Data[l*size+j*g.nx+i] = f(g, layer, j, i)
					}
				}
			}
			return out, nil
		},
	}
}
