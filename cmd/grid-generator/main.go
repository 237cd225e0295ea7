// Package main generates synthetic NEMO-like and FVCOM-like model output
// for local development and smoke tests.
package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go.ngs.io/oceangrid/internal/adapter/store/memory"
	"go.ngs.io/oceangrid/internal/adapter/store/netcdf"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// Region defines the geographic bounds and resolution of a generated grid.
type Region struct {
	LatMin     float64
	LatMax     float64
	LonMin     float64
	LonMax     float64
	Resolution float64 // degrees
}

func (r Region) size() (int, int) {
	nLat := int(math.Round((r.LatMax-r.LatMin)/r.Resolution)) + 1
	nLon := int(math.Round((r.LonMax-r.LonMin)/r.Resolution)) + 1
	return nLat, nLon
}

var (
	outDir   string
	region   Region
	levels   int
	steps    int
	start    string
	interval time.Duration
)

var rootCmd = &cobra.Command{
	Use:          "grid-generator",
	Short:        "Generate synthetic ocean model output",
	SilenceUsage: true,
}

var structuredCmd = &cobra.Command{
	Use:   "structured",
	Short: "Write a curvilinear NEMO-like file (nemo.nc)",
	RunE: func(cmd *cobra.Command, args []string) error {
		t0, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		ds := Structured(region, levels, Times(t0, interval, steps))
		return write(filepath.Join(outDir, "nemo.nc"), ds,
			[]string{"nav_lat", "nav_lon", "deptht", "time_counter", "votemper", "vosaline", "sossheig"})
	},
}

var meshCmd = &cobra.Command{
	Use:   "mesh",
	Short: "Write a triangular FVCOM-like file (fvcom.nc)",
	RunE: func(cmd *cobra.Command, args []string) error {
		t0, err := time.Parse(time.RFC3339, start)
		if err != nil {
			return fmt.Errorf("invalid start time: %w", err)
		}
		ds := Mesh(region, levels, Times(t0, interval, steps))
		return write(filepath.Join(outDir, "fvcom.nc"), ds,
			[]string{"lat", "lon", "latc", "lonc", "siglay", "h", "time", "zeta", "temp", "u", "v"})
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&outDir, "out", "./data", "output directory for NetCDF files")
	flags.Float64Var(&region.LatMin, "lat-min", 42.0, "minimum latitude")
	flags.Float64Var(&region.LatMax, "lat-max", 46.0, "maximum latitude")
	flags.Float64Var(&region.LonMin, "lon-min", -66.0, "minimum longitude")
	flags.Float64Var(&region.LonMax, "lon-max", -62.0, "maximum longitude")
	flags.Float64Var(&region.Resolution, "resolution", 0.1, "grid resolution in degrees")
	flags.IntVar(&levels, "levels", 20, "number of vertical levels")
	flags.IntVar(&steps, "steps", 24, "number of time steps")
	flags.StringVar(&start, "start", "2024-01-01T00:00:00Z", "first timestamp (RFC3339)")
	flags.DurationVar(&interval, "interval", time.Hour, "time step")

	rootCmd.AddCommand(structuredCmd, meshCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func write(path string, ds *memory.Dataset, keys []string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	nLat, nLon := region.size()
	logrus.WithFields(logrus.Fields{
		"grid":   fmt.Sprintf("%d x %d", nLat, nLon),
		"levels": levels,
		"steps":  steps,
	}).Infof("Generating %s", path)
	if err := netcdf.Write(path, ds, keys); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	logrus.Infof("Generated %s", path)
	return nil
}

// Times returns n timestamps starting at t0.
func Times(t0 time.Time, step time.Duration, n int) []time.Time {
	ts := make([]time.Time, n)
	for i := range ts {
		ts[i] = t0.Add(time.Duration(i) * step)
	}
	return ts
}

// seafloor returns a smooth bathymetry in metres. Cells shallower than
// zero are land.
func seafloor(lat, lon float64, r Region) float64 {
	cy := (r.LatMin + r.LatMax) / 2
	cx := (r.LonMin + r.LonMax) / 2
	dy := (lat - cy) / (r.LatMax - r.LatMin + 1e-9)
	dx := (lon - cx) / (r.LonMax - r.LonMin + 1e-9)
	return 2000*(0.5-math.Hypot(dx, dy)) + 300*math.Sin(lat*math.Pi/3)*math.Cos(lon*math.Pi/4)
}

// temperature in Celsius, cooling with depth and drifting with time.
func temperature(lat, depth float64, step int) float64 {
	return 4 + 14*math.Exp(-depth/300) - 0.3*(lat-40) + 0.5*math.Sin(float64(step)*2*math.Pi/24)
}

// Structured builds a curvilinear grid slightly rotated from the
// lat/lon axes, with a stretched depth axis and a land mask.
func Structured(r Region, levels int, ts []time.Time) *memory.Dataset {
	ny, nx := r.size()
	nt := len(ts)

	depths := make([]float64, levels)
	for k := range depths {
		f := float64(k) / float64(max(levels-1, 1))
		depths[k] = 0.5 + 4999.5*f*f*f
	}

	navLat := ndarray.New([]string{"y", "x"}, []int{ny, nx})
	navLon := ndarray.New([]string{"y", "x"}, []int{ny, nx})
	floor := make([]float64, ny*nx)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			lat := r.LatMin + float64(y)*r.Resolution + 0.01*float64(x)*r.Resolution
			lon := r.LonMin + float64(x)*r.Resolution - 0.01*float64(y)*r.Resolution
			navLat.Set(lat, y, x)
			navLon.Set(lon, y, x)
			floor[y*nx+x] = seafloor(lat, lon, r)
		}
	}

	shape := []int{nt, levels, ny, nx}
	dims := []string{"time_counter", "deptht", "y", "x"}
	temp := ndarray.Masked(dims, shape)
	salt := ndarray.Masked(dims, shape)
	ssh := ndarray.Masked([]string{"time_counter", "y", "x"}, []int{nt, ny, nx})
	for t := 0; t < nt; t++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				if floor[y*nx+x] <= 0 {
					continue
				}
				lat := navLat.At(y, x)
				ssh.Set(0.4*math.Sin(float64(t)*2*math.Pi/12.42+lat), t, y, x)
				for k, d := range depths {
					if d > floor[y*nx+x] {
						break
					}
					temp.Set(temperature(lat, d, t), t, k, y, x)
					salt.Set(31+4*(1-math.Exp(-d/200)), t, k, y, x)
				}
			}
		}
	}

	return memory.New().
		Add("nav_lat", navLat, map[string]any{"units": "degrees_north", "long_name": "Latitude"}).
		Add("nav_lon", navLon, map[string]any{"units": "degrees_east", "long_name": "Longitude"}).
		Add("deptht", ndarray.Vector("deptht", depths), map[string]any{"units": "m", "positive": "down"}).
		Add("votemper", temp, map[string]any{"units": "degC", "long_name": "Temperature"}).
		Add("vosaline", salt, map[string]any{"units": "PSU", "long_name": "Salinity"}).
		Add("sossheig", ssh, map[string]any{"units": "m", "long_name": "Sea Surface Height"}).
		SetTimes("time_counter", ts)
}

// Mesh builds a triangulated node grid: each rectangular cell is split
// into two elements whose centres carry the velocities.
func Mesh(r Region, levels int, ts []time.Time) *memory.Dataset {
	ny, nx := r.size()
	nt := len(ts)
	nodes := ny * nx

	lat := make([]float64, nodes)
	lon := make([]float64, nodes)
	h := make([]float64, nodes)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			i := y*nx + x
			lat[i] = r.LatMin + float64(y)*r.Resolution
			lon[i] = r.LonMin + float64(x)*r.Resolution
			h[i] = math.Max(seafloor(lat[i], lon[i], r), 5)
		}
	}

	var latc, lonc []float64
	for y := 0; y+1 < ny; y++ {
		for x := 0; x+1 < nx; x++ {
			a, b, c, d := y*nx+x, y*nx+x+1, (y+1)*nx+x, (y+1)*nx+x+1
			for _, tri := range [][3]int{{a, b, c}, {b, d, c}} {
				latc = append(latc, (lat[tri[0]]+lat[tri[1]]+lat[tri[2]])/3)
				lonc = append(lonc, (lon[tri[0]]+lon[tri[1]]+lon[tri[2]])/3)
			}
		}
	}
	elements := len(latc)

	siglay := ndarray.New([]string{"siglay", "node"}, []int{levels, nodes})
	for k := 0; k < levels; k++ {
		for n := 0; n < nodes; n++ {
			siglay.Set(-(float64(k)+0.5)/float64(levels), k, n)
		}
	}

	zeta := ndarray.New([]string{"time", "node"}, []int{nt, nodes})
	temp := ndarray.New([]string{"time", "siglay", "node"}, []int{nt, levels, nodes})
	u := ndarray.New([]string{"time", "siglay", "nele"}, []int{nt, levels, elements})
	v := ndarray.New([]string{"time", "siglay", "nele"}, []int{nt, levels, elements})
	for t := 0; t < nt; t++ {
		phase := float64(t) * 2 * math.Pi / 12.42
		for n := 0; n < nodes; n++ {
			z := 0.8 * math.Sin(phase+lon[n])
			zeta.Set(z, t, n)
			for k := 0; k < levels; k++ {
				depth := -(siglay.At(k, n)*(h[n]+z) + z)
				temp.Set(temperature(lat[n], depth, t), t, k, n)
			}
		}
		for e := 0; e < elements; e++ {
			for k := 0; k < levels; k++ {
				decay := 1 - 0.5*float64(k)/float64(levels)
				u.Set(0.6*decay*math.Cos(phase), t, k, e)
				v.Set(0.2*decay*math.Sin(phase+latc[e]), t, k, e)
			}
		}
	}

	return memory.New().
		Add("lat", ndarray.Vector("node", lat), map[string]any{"units": "degrees_north"}).
		Add("lon", ndarray.Vector("node", lon), map[string]any{"units": "degrees_east"}).
		Add("latc", ndarray.Vector("nele", latc), map[string]any{"units": "degrees_north"}).
		Add("lonc", ndarray.Vector("nele", lonc), map[string]any{"units": "degrees_east"}).
		Add("siglay", siglay, map[string]any{"long_name": "Sigma Layers", "positive": "up"}).
		Add("h", ndarray.Vector("node", h), map[string]any{"units": "m", "long_name": "Bathymetry"}).
		Add("zeta", zeta, map[string]any{"units": "m", "long_name": "Water Surface Elevation"}).
		Add("temp", temp, map[string]any{"units": "degC", "long_name": "Temperature"}).
		Add("u", u, map[string]any{"units": "m s-1", "long_name": "Eastward Water Velocity"}).
		Add("v", v, map[string]any{"units": "m s-1", "long_name": "Northward Water Velocity"}).
		SetTimes("time", ts)
}
