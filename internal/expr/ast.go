package expr

import (
	"fmt"
	"math"
	"strings"

	"go.ngs.io/oceangrid/internal/ndarray"
)

// node is a parsed expression tree node.
type node interface {
	eval(s *state) (*ndarray.Array, error)
	String() string
}

type numberNode struct {
	v float64
}

func (n numberNode) eval(*state) (*ndarray.Array, error) {
	return ndarray.Scalar(n.v), nil
}

func (n numberNode) String() string {
	return fmt.Sprintf("%g", n.v)
}

type varNode struct {
	name string
}

func (n varNode) eval(s *state) (*ndarray.Array, error) {
	return s.read(n.name)
}

func (n varNode) String() string {
	return n.name
}

type negNode struct {
	x node
}

func (n negNode) eval(s *state) (*ndarray.Array, error) {
	x, err := n.x.eval(s)
	if err != nil {
		return nil, err
	}
	return x.Map(func(v float64) float64 { return -v }), nil
}

func (n negNode) String() string {
	return "(-" + n.x.String() + ")"
}

type binaryNode struct {
	op   byte
	l, r node
}

func (n binaryNode) eval(s *state) (*ndarray.Array, error) {
	l, err := n.l.eval(s)
	if err != nil {
		return nil, err
	}
	r, err := n.r.eval(s)
	if err != nil {
		return nil, err
	}
	var f func(a, b float64) float64
	switch n.op {
	case '+':
		f = func(a, b float64) float64 { return a + b }
	case '-':
		f = func(a, b float64) float64 { return a - b }
	case '*':
		f = func(a, b float64) float64 { return a * b }
	case '/':
		f = func(a, b float64) float64 { return a / b }
	case '^':
		f = math.Pow
	default:
		return nil, fmt.Errorf("%w: operator %q", ErrSyntax, n.op)
	}
	out, err := ndarray.Combine(l, r, s.order, f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
	}
	return out, nil
}

func (n binaryNode) String() string {
	return "(" + n.l.String() + " " + string(n.op) + " " + n.r.String() + ")"
}

type callNode struct {
	fn   Function
	args []node
}

func (n callNode) eval(s *state) (*ndarray.Array, error) {
	args := make([]*ndarray.Array, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(s)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	out, err := n.fn.Call(s.order, args)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", n.fn.Name, err)
	}
	return out, nil
}

func (n callNode) String() string {
	parts := make([]string, len(n.args))
	for i, a := range n.args {
		parts[i] = a.String()
	}
	return n.fn.Name + "(" + strings.Join(parts, ", ") + ")"
}
