package netcdf

import (
	"fmt"
	"math"
	"sort"

	nc "github.com/fhs/go-netcdf/netcdf"

	"go.ngs.io/oceangrid/internal/adapter/store"
)

// FillValue marks missing samples in written files.
const FillValue = 1e20

// Write stores the named variables of src in a new NetCDF file at path,
// replacing any existing file. NaN samples are written as FillValue.
func Write(path string, src store.Dataset, keys []string) error {
	f, err := nc.CreateFile(path, nc.CLOBBER)
	if err != nil {
		return fmt.Errorf("failed to create NetCDF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	type pending struct {
		v    nc.Var
		data []float64
	}
	dims := make(map[string]nc.Dim)
	lengths := make(map[string]int)
	var writes []pending

	for _, key := range keys {
		v, err := src.Variable(key)
		if err != nil {
			return err
		}
		arr, err := store.ReadAll(v)
		if err != nil {
			return err
		}

		var ncDims []nc.Dim
		for i, name := range v.Dims() {
			n := v.Shape()[i]
			if prev, ok := lengths[name]; ok {
				if prev != n {
					return fmt.Errorf("dimension %s has lengths %d and %d", name, prev, n)
				}
				ncDims = append(ncDims, dims[name])
				continue
			}
			//nolint:gosec // G115: dimension lengths are non-negative.
			d, err := f.AddDim(name, uint64(n))
			if err != nil {
				return fmt.Errorf("failed to add dimension %s: %w", name, err)
			}
			dims[name] = d
			lengths[name] = n
			ncDims = append(ncDims, d)
		}

		nv, err := f.AddVar(key, nc.DOUBLE, ncDims)
		if err != nil {
			return fmt.Errorf("failed to add variable %s: %w", key, err)
		}

		attrs := v.Attrs()
		data := append([]float64(nil), arr.Data...)
		masked := false
		for i, x := range data {
			if math.IsNaN(x) {
				data[i] = FillValue
				masked = true
			}
		}
		if _, ok := attrs["_FillValue"]; masked && !ok {
			attrs["_FillValue"] = FillValue
		}
		if err := writeAttrs(nv, attrs); err != nil {
			return fmt.Errorf("failed to write attributes of %s: %w", key, err)
		}
		writes = append(writes, pending{v: nv, data: data})
	}

	if err := f.EndDef(); err != nil {
		return fmt.Errorf("failed to end define mode: %w", err)
	}
	for i, w := range writes {
		if err := w.v.WriteFloat64s(w.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", keys[i], err)
		}
	}
	return nil
}

func writeAttrs(v nc.Var, attrs map[string]any) error {
	names := make([]string, 0, len(attrs))
	for k := range attrs {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		a := v.Attr(name)
		var err error
		switch val := attrs[name].(type) {
		case string:
			err = a.WriteBytes([]byte(val))
		case float64:
			err = a.WriteFloat64s([]float64{val})
		case float32:
			err = a.WriteFloat64s([]float64{float64(val)})
		case int:
			err = a.WriteFloat64s([]float64{float64(val)})
		case []float64:
			err = a.WriteFloat64s(val)
		default:
			continue
		}
		if err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
	}
	return nil
}
