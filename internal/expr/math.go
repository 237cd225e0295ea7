package expr

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"go.ngs.io/oceangrid/internal/ndarray"
)

// unary wraps an element-wise function of one argument.
func unary(name string, f func(float64) float64) Function {
	return Function{
		Name:    name,
		MinArgs: 1,
		MaxArgs: 1,
		Call: func(_ []string, args []*ndarray.Array) (*ndarray.Array, error) {
			return args[0].Map(f), nil
		},
	}
}

// elementwise wraps a function of n aligned arguments.
func elementwise(name string, n int, f func(x []float64) float64) Function {
	return Function{
		Name:    name,
		MinArgs: n,
		MaxArgs: n,
		Call: func(order []string, args []*ndarray.Array) (*ndarray.Array, error) {
			return apply(order, args, f)
		},
	}
}

// apply aligns args and evaluates f at every element.
func apply(order []string, args []*ndarray.Array, f func(x []float64) float64) (*ndarray.Array, error) {
	aligned, err := ndarray.Align(order, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}
	out := aligned[0].Clone()
	x := make([]float64, len(aligned))
	for i := range out.Data {
		for j, a := range aligned {
			x[j] = a.Data[i]
		}
		out.Data[i] = f(x)
	}
	return out, nil
}

// reducer returns the reduction of a single argument over all of its
// valid elements, or the element-wise reduction of several arguments.
func reducer(name string, f func(vals []float64) float64) Function {
	return Function{
		Name:    name,
		MinArgs: 1,
		MaxArgs: -1,
		Call: func(order []string, args []*ndarray.Array) (*ndarray.Array, error) {
			if len(args) == 1 {
				return ndarray.Scalar(f(valid(args[0].Data))), nil
			}
			return apply(order, args, func(x []float64) float64 { return f(valid(x)) })
		},
	}
}

func valid(data []float64) []float64 {
	out := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

func mathFunctions() []Function {
	return []Function{
		unary("sin", math.Sin),
		unary("cos", math.Cos),
		unary("tan", math.Tan),
		unary("asin", math.Asin),
		unary("acos", math.Acos),
		unary("atan", math.Atan),
		unary("sqrt", math.Sqrt),
		unary("abs", math.Abs),
		unary("exp", math.Exp),
		unary("ln", math.Log),
		unary("log10", math.Log10),
		unary("degrees", func(v float64) float64 { return v * 180 / math.Pi }),
		unary("radians", func(v float64) float64 { return v * math.Pi / 180 }),
		elementwise("atan2", 2, func(x []float64) float64 { return math.Atan2(x[0], x[1]) }),
		elementwise("pow", 2, func(x []float64) float64 { return math.Pow(x[0], x[1]) }),
		reducer("min", func(v []float64) float64 {
			if len(v) == 0 {
				return math.NaN()
			}
			return floats.Min(v)
		}),
		reducer("max", func(v []float64) float64 {
			if len(v) == 0 {
				return math.NaN()
			}
			return floats.Max(v)
		}),
		reducer("sum", func(v []float64) float64 {
			if len(v) == 0 {
				return math.NaN()
			}
			return floats.Sum(v)
		}),
		reducer("mean", func(v []float64) float64 {
			if len(v) == 0 {
				return math.NaN()
			}
			return floats.Sum(v) / float64(len(v))
		}),
	}
}
