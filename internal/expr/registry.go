package expr

import (
	"fmt"
	"sort"
	"strconv"

	"go.ngs.io/oceangrid/internal/ndarray"
)

// Function is a callable available to equations. Call receives evaluated
// arguments and the preferred output axis order.
type Function struct {
	Name    string
	MinArgs int
	MaxArgs int // -1 for variadic
	Call    func(order []string, args []*ndarray.Array) (*ndarray.Array, error)
}

func (f Function) arity() string {
	switch {
	case f.MaxArgs < 0:
		return "at least " + strconv.Itoa(f.MinArgs) + " arguments"
	case f.MinArgs == f.MaxArgs:
		return strconv.Itoa(f.MinArgs) + " arguments"
	default:
		return fmt.Sprintf("%d to %d arguments", f.MinArgs, f.MaxArgs)
	}
}

// Registry is an immutable set of functions keyed by name.
type Registry struct {
	funcs map[string]Function
}

// NewRegistry builds a registry, rejecting duplicate or reserved names.
func NewRegistry(fns ...Function) (Registry, error) {
	r := Registry{funcs: make(map[string]Function, len(fns))}
	for _, f := range fns {
		if f.Name == "" || f.Call == nil {
			return Registry{}, fmt.Errorf("expr: incomplete function %q", f.Name)
		}
		if _, ok := constants[f.Name]; ok {
			return Registry{}, fmt.Errorf("expr: function name %q is a constant", f.Name)
		}
		if _, ok := r.funcs[f.Name]; ok {
			return Registry{}, fmt.Errorf("expr: duplicate function %q", f.Name)
		}
		r.funcs[f.Name] = f
	}
	return r, nil
}

// Lookup returns the named function.
func (r Registry) Lookup(name string) (Function, bool) {
	f, ok := r.funcs[name]
	return f, ok
}

// Names returns the registered names in sorted order.
func (r Registry) Names() []string {
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// With returns a new registry extended by fns.
func (r Registry) With(fns ...Function) (Registry, error) {
	all := make([]Function, 0, len(r.funcs)+len(fns))
	for _, n := range r.Names() {
		all = append(all, r.funcs[n])
	}
	return NewRegistry(append(all, fns...)...)
}

var defaultRegistry = func() Registry {
	fns := append(mathFunctions(), oceanFunctions()...)
	r, err := NewRegistry(fns...)
	if err != nil {
		panic(err)
	}
	return r
}()

// DefaultRegistry returns the built-in functions.
func DefaultRegistry() Registry {
	return defaultRegistry
}
