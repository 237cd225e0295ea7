package netcdf

import (
	"fmt"
	"math"
	"strings"

	nc "github.com/fhs/go-netcdf/netcdf"
)

// readSlice reads a hyperslab of any supported numeric type as float64.
func readSlice(v nc.Var, t nc.Type, start, count []uint64) ([]float64, error) {
	total := 1
	for _, c := range count {
		total *= int(c)
	}
	if total == 0 {
		return []float64{}, nil
	}
	scalar := len(count) == 0

	switch t {
	case nc.DOUBLE:
		data := make([]float64, total)
		var err error
		if scalar {
			err = v.ReadFloat64s(data)
		} else {
			err = v.ReadFloat64Slice(data, start, count)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read float64 subset: %w", err)
		}
		return data, nil
	case nc.FLOAT:
		tmp := make([]float32, total)
		var err error
		if scalar {
			err = v.ReadFloat32s(tmp)
		} else {
			err = v.ReadFloat32Slice(tmp, start, count)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read float32 subset: %w", err)
		}
		data := make([]float64, total)
		for i, val := range tmp {
			data[i] = float64(val)
		}
		return data, nil
	case nc.INT:
		tmp := make([]int32, total)
		var err error
		if scalar {
			err = v.ReadInt32s(tmp)
		} else {
			err = v.ReadInt32Slice(tmp, start, count)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read int32 subset: %w", err)
		}
		data := make([]float64, total)
		for i, val := range tmp {
			data[i] = float64(val)
		}
		return data, nil
	case nc.SHORT:
		tmp := make([]int16, total)
		var err error
		if scalar {
			err = v.ReadInt16s(tmp)
		} else {
			err = v.ReadInt16Slice(tmp, start, count)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read int16 subset: %w", err)
		}
		data := make([]float64, total)
		for i, val := range tmp {
			data[i] = float64(val)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported data type: %v (expected DOUBLE, FLOAT, INT, or SHORT)", t)
	}
}

// readAttr decodes an attribute into a string, a float64 or a []float64.
// Unsupported types yield nil.
func readAttr(a nc.Attr) any {
	t, err := a.Type()
	if err != nil {
		return nil
	}
	n, err := a.Len()
	if err != nil || n == 0 {
		return nil
	}

	var vals []float64
	switch t {
	case nc.CHAR:
		buf := make([]byte, n)
		if err := a.ReadBytes(buf); err != nil {
			return nil
		}
		return strings.TrimRight(string(buf), "\x00")
	case nc.DOUBLE:
		vals = make([]float64, n)
		if err := a.ReadFloat64s(vals); err != nil {
			return nil
		}
	case nc.FLOAT:
		tmp := make([]float32, n)
		if err := a.ReadFloat32s(tmp); err != nil {
			return nil
		}
		vals = make([]float64, n)
		for i, v := range tmp {
			vals[i] = float64(v)
		}
	case nc.INT:
		tmp := make([]int32, n)
		if err := a.ReadInt32s(tmp); err != nil {
			return nil
		}
		vals = make([]float64, n)
		for i, v := range tmp {
			vals[i] = float64(v)
		}
	case nc.SHORT:
		tmp := make([]int16, n)
		if err := a.ReadInt16s(tmp); err != nil {
			return nil
		}
		vals = make([]float64, n)
		for i, v := range tmp {
			vals[i] = float64(v)
		}
	default:
		return nil
	}
	if len(vals) == 1 {
		return vals[0]
	}
	return vals
}

// unpack masks fill values as NaN and applies scale_factor/add_offset.
func unpack(data []float64, fill []float64, scale, offset float64) {
	for i, v := range data {
		masked := false
		for _, f := range fill {
			if v == f {
				masked = true
				break
			}
		}
		if masked {
			data[i] = math.NaN()
			continue
		}
		data[i] = v*scale + offset
	}
}
