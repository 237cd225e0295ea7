// Package expr parses and evaluates the algebraic equations that define
// calculated variables.
//
// Equations combine numbers, the constants pi and e, variable references,
// the operators + - * / ^ and calls into a Registry of functions. Unary
// minus binds tighter than every binary operator and ^ is right
// associative, so -2^2 is 4 and 2^3^2 is 512.
package expr

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// Lookup resolves variable references while evaluating.
type Lookup interface {
	Variable(key string) (store.Variable, error)
}

// Expression is a compiled equation. It holds no per-evaluation state and is
// safe for concurrent use.
type Expression struct {
	src  string
	root node
	vars []string
}

// Compile parses equation against reg.
func Compile(equation string, reg Registry) (*Expression, error) {
	root, vars, err := parse(equation, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %q: %w", equation, err)
	}
	return &Expression{src: equation, root: root, vars: vars}, nil
}

// String returns the source equation.
func (e *Expression) String() string {
	return e.src
}

// Tree returns the fully parenthesised expression tree.
func (e *Expression) Tree() string {
	return e.root.String()
}

// Variables returns the referenced variable names in order of first use.
func (e *Expression) Variables() []string {
	return append([]string(nil), e.vars...)
}

// Dimensions is the inferred dimensionality of an expression.
type Dimensions struct {
	Names []string
	// Ambiguous is set when two referenced variables have dimension tuples of
	// equal length but different names.
	Ambiguous bool
}

// InferDims adopts the longest dimension tuple among the referenced
// variables.
func (e *Expression) InferDims(src Lookup) (Dimensions, error) {
	var out Dimensions
	for _, name := range e.vars {
		v, err := src.Variable(name)
		if err != nil {
			return Dimensions{}, err
		}
		dims := v.Dims()
		switch {
		case len(dims) > len(out.Names):
			out.Names = dims
			out.Ambiguous = false
		case len(dims) == len(out.Names) && !sameDims(dims, out.Names):
			out.Ambiguous = true
		}
	}
	return out, nil
}

func sameDims(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[string]bool, len(a))
	for _, d := range a {
		seen[d] = true
	}
	for _, d := range b {
		if !seen[d] {
			return false
		}
	}
	return true
}

// Context carries the per-call inputs of an evaluation.
type Context struct {
	// Source resolves variable references.
	Source Lookup
	// Dims names the evaluation index axes. Nil infers them.
	Dims []string
	// Index selects along each of Dims. Nil selects everything.
	Index  []ndarray.Range
	Logger logrus.FieldLogger
}

// state is the evaluation scratch space for one call.
type state struct {
	ctx   Context
	order []string
	pos   map[string]int
}

// Evaluate computes the expression over ctx.Index. Variables are read with
// the ranges of the index axes they share; a variable indexed by an axis
// outside ctx.Dims is ErrDimensionMismatch. When dimensions are inferred
// and ambiguous the result is entirely masked.
func (e *Expression) Evaluate(ctx Context) (*ndarray.Array, error) {
	if ctx.Logger == nil {
		ctx.Logger = logrus.StandardLogger()
	}
	if ctx.Dims == nil {
		dims, err := e.InferDims(ctx.Source)
		if err != nil {
			return nil, err
		}
		ctx.Dims = dims.Names
		if dims.Ambiguous {
			ctx.Logger.WithField("equation", e.src).Warn("variables have equal rank but different dimensions; result is masked")
			return e.masked(ctx)
		}
	}
	if ctx.Index != nil && len(ctx.Index) != len(ctx.Dims) {
		return nil, fmt.Errorf("%w: %d ranges for dimensions %v", ErrDimensionMismatch, len(ctx.Index), ctx.Dims)
	}

	s := &state{ctx: ctx, pos: make(map[string]int, len(ctx.Dims))}
	for i, d := range ctx.Dims {
		s.pos[d] = i
		if ctx.Index == nil || !ctx.Index[i].Single {
			s.order = append(s.order, d)
		}
	}
	return e.root.eval(s)
}

// masked returns an all-NaN array shaped by the index, sized from the
// referenced variables when no index is given.
func (e *Expression) masked(ctx Context) (*ndarray.Array, error) {
	if ctx.Index != nil && len(ctx.Index) == len(ctx.Dims) {
		var dims []string
		var shape []int
		for i, r := range ctx.Index {
			if !r.Single {
				dims = append(dims, ctx.Dims[i])
				shape = append(shape, r.Len())
			}
		}
		return ndarray.Masked(dims, shape), nil
	}
	shape, err := DimLengths(ctx.Source, e.vars, ctx.Dims)
	if err != nil {
		return nil, err
	}
	return ndarray.Masked(ctx.Dims, shape), nil
}

// DimLengths finds the length of each of dims among the named variables.
// Dimensions that no variable carries have length 1.
func DimLengths(src Lookup, vars, dims []string) ([]int, error) {
	shape := make([]int, len(dims))
	for i := range shape {
		shape[i] = 1
	}
	for _, name := range vars {
		v, err := src.Variable(name)
		if err != nil {
			return nil, err
		}
		vs := v.Shape()
		for j, d := range v.Dims() {
			for i, want := range dims {
				if d == want {
					shape[i] = vs[j]
				}
			}
		}
	}
	return shape, nil
}

func (s *state) read(name string) (*ndarray.Array, error) {
	v, err := s.ctx.Source.Variable(name)
	if err != nil {
		return nil, err
	}
	dims := v.Dims()
	shape := v.Shape()
	sel := make([]ndarray.Range, len(dims))
	for i, d := range dims {
		p, ok := s.pos[d]
		if !ok {
			return nil, fmt.Errorf("%w: %s is indexed by %s, not in %v", ErrDimensionMismatch, name, d, s.ctx.Dims)
		}
		if s.ctx.Index == nil {
			sel[i] = ndarray.All(shape[i])
			continue
		}
		sel[i] = s.ctx.Index[p]
	}
	arr, err := v.Read(sel)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return arr, nil
}
