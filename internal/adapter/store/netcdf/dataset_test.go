package netcdf

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	nc "github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/adapter/store/memory"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// createPackedNC writes a 2x3 short variable with scale/offset and a fill value.
func createPackedNC(t *testing.T, path string) {
	t.Helper()
	f, err := nc.CreateFile(path, nc.CLOBBER)
	if err != nil {
		t.Fatalf("create nc: %v", err)
	}
	defer f.Close()

	yDim, _ := f.AddDim("y", 2)
	xDim, _ := f.AddDim("x", 3)
	v, err := f.AddVar("sossheig", nc.SHORT, []nc.Dim{yDim, xDim})
	if err != nil {
		t.Fatalf("add var: %v", err)
	}
	if err := v.Attr("scale_factor").WriteFloat64s([]float64{0.01}); err != nil {
		t.Fatalf("write scale: %v", err)
	}
	if err := v.Attr("add_offset").WriteFloat64s([]float64{1}); err != nil {
		t.Fatalf("write offset: %v", err)
	}
	if err := v.Attr("_FillValue").WriteInt16s([]int16{-32767}); err != nil {
		t.Fatalf("write fill: %v", err)
	}
	if err := v.Attr("long_name").WriteBytes([]byte("Sea surface height")); err != nil {
		t.Fatalf("write long_name: %v", err)
	}
	if err := f.EndDef(); err != nil {
		t.Fatalf("enddef: %v", err)
	}
	if err := v.WriteInt16s([]int16{0, 100, -32767, 50, 25, 10}); err != nil {
		t.Fatalf("write data: %v", err)
	}
}

func TestRead_UnpacksAndMasks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packed.nc")
	createPackedNC(t, path)

	ds, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ds.Close()

	v, err := ds.Variable("sossheig")
	if err != nil {
		t.Fatalf("Variable: %v", err)
	}
	arr, err := v.Read([]ndarray.Range{ndarray.All(2), ndarray.Span(1, 3)})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got := arr.Shape; len(got) != 2 || got[0] != 2 || got[1] != 2 {
		t.Fatalf("unexpected shape %v", got)
	}
	want := []float64{2, math.NaN(), 1.25, 1.1}
	for i, w := range want {
		if math.IsNaN(w) {
			if !math.IsNaN(arr.Data[i]) {
				t.Errorf("index %d: expected NaN, got %v", i, arr.Data[i])
			}
			continue
		}
		if math.Abs(arr.Data[i]-w) > 1e-9 {
			t.Errorf("index %d: expected %v, got %v", i, w, arr.Data[i])
		}
	}

	desc := ds.Variables()
	got, ok := desc.Get("sossheig")
	if !ok || got.Name != "Sea surface height" {
		t.Errorf("unexpected description %+v", got)
	}
}

func TestRead_SingleRangeDropsAxis(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packed.nc")
	createPackedNC(t, path)

	ds, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ds.Close()

	v, _ := ds.Variable("sossheig")
	arr, err := v.Read([]ndarray.Range{ndarray.Index(1), ndarray.Index(0)})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !arr.IsScalar() || math.Abs(arr.Value()-1.5) > 1e-9 {
		t.Errorf("expected scalar 1.5, got %v %v", arr.Shape, arr.Data)
	}

	if _, err := v.Read([]ndarray.Range{ndarray.All(3), ndarray.All(3)}); err == nil {
		t.Error("expected out-of-range selection to fail")
	}
}

func TestWriteOpen_RoundTrip(t *testing.T) {
	t0 := time.Date(2014, 2, 1, 12, 0, 0, 0, time.UTC)
	src := memory.New().
		Add("deptht", ndarray.Vector("deptht", []float64{0.5, 10, 50}), map[string]any{"units": "m"}).
		Add("votemper", mustArray(t, []string{"time_counter", "deptht", "x"}, []int{2, 3, 2},
			[]float64{290, 291, 285, 286, 280, math.NaN(), 292, 293, 287, 288, 281, math.NaN()}),
			map[string]any{"units": "Kelvin", "long_name": "Water temperature", "valid_min": 173.0}).
		SetTimes("time_counter", []time.Time{t0, t0.Add(24 * time.Hour)})

	path := filepath.Join(t.TempDir(), "nemo.nc")
	if err := Write(path, src, []string{"time_counter", "deptht", "votemper"}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ds, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ds.Close()

	ts, err := ds.Timestamps()
	if err != nil {
		t.Fatalf("Timestamps: %v", err)
	}
	if len(ts) != 2 || !ts[1].Equal(t0.Add(24*time.Hour)) {
		t.Errorf("unexpected timestamps %v", ts)
	}
	idx, err := ds.TimeIndex(t0.Add(24 * time.Hour))
	if err != nil || idx != 1 {
		t.Errorf("TimeIndex = %d, %v", idx, err)
	}
	if _, err := ds.TimeIndex(t0.Add(time.Hour)); err == nil {
		t.Error("expected unknown time to fail")
	}

	depths, err := ds.Depths()
	if err != nil || len(depths) != 3 || depths[2] != 50 {
		t.Errorf("Depths = %v, %v", depths, err)
	}

	v, _ := ds.Variable("votemper")
	arr, err := store.ReadAll(v)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !math.IsNaN(arr.At(1, 2, 1)) || arr.At(1, 2, 0) != 281 {
		t.Errorf("unexpected data %v", arr.Data)
	}

	desc, _ := ds.Variables().Get("votemper")
	if desc.ValidMin == nil || *desc.ValidMin != 173 || desc.Unit != "Kelvin" {
		t.Errorf("unexpected description %+v", desc)
	}
}

func TestDataset_UnknownVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packed.nc")
	createPackedNC(t, path)
	ds, err := Open(path, Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer ds.Close()

	if _, err := ds.Variable("vosaline"); err == nil {
		t.Error("expected error for unknown variable")
	}
	if _, err := ds.Depths(); err != domain.ErrNoDepthAxis {
		t.Errorf("expected ErrNoDepthAxis, got %v", err)
	}
}

func TestOpen_MissingFile(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.nc"), Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func mustArray(t *testing.T, dims []string, shape []int, data []float64) *ndarray.Array {
	t.Helper()
	a, err := ndarray.FromSlice(dims, shape, data)
	if err != nil {
		t.Fatal(err)
	}
	return a
}
