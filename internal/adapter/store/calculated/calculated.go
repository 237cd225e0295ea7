// Package calculated layers equation-defined variables over a raw dataset.
package calculated

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"go.ngs.io/oceangrid/internal/adapter/store"
	"go.ngs.io/oceangrid/internal/domain"
	"go.ngs.io/oceangrid/internal/expr"
	"go.ngs.io/oceangrid/internal/ndarray"
)

// ErrCycle indicates calculated variables that depend on each other.
var ErrCycle = errors.New("calculated: circular variable definitions")

// Definition describes a calculated variable.
type Definition struct {
	Equation string
	LongName string
	Units    string
	ValidMin *float64
	ValidMax *float64
	// Dims declares the output dimensions. Empty infers them from the
	// referenced variables.
	Dims []string
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithRegistry sets the function registry used to compile equations.
func WithRegistry(reg expr.Registry) Option {
	return func(d *Dataset) { d.reg = reg }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Dataset) { d.log = l }
}

type compiled struct {
	e   *expr.Expression
	err error
}

// Dataset wraps a raw dataset and substitutes calculated variables.
// Listing and metadata always reflect a definition when one exists; inside
// the equation of key K, a reference to K reads the raw variable.
type Dataset struct {
	store.Dataset

	defs map[string]Definition
	reg  expr.Registry
	log  logrus.FieldLogger

	mu    sync.Mutex
	cache map[string]compiled
}

// New wraps raw with defs.
func New(raw store.Dataset, defs map[string]Definition, opts ...Option) *Dataset {
	d := &Dataset{
		Dataset: raw,
		defs:    make(map[string]Definition, len(defs)),
		reg:     expr.DefaultRegistry(),
		log:     logrus.StandardLogger(),
		cache:   make(map[string]compiled),
	}
	for k, def := range defs {
		d.defs[k] = def
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// IsCalculated reports whether key has a definition.
func (d *Dataset) IsCalculated(key string) bool {
	_, ok := d.defs[key]
	return ok
}

// compile returns the cached expression for an equation.
func (d *Dataset) compile(equation string) (*expr.Expression, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.cache[equation]
	if !ok {
		c.e, c.err = expr.Compile(equation, d.reg)
		d.cache[equation] = c
	}
	return c.e, c.err
}

// HasVariable reports whether key is calculated or raw.
func (d *Dataset) HasVariable(key string) bool {
	return d.IsCalculated(key) || d.Dataset.HasVariable(key)
}

// Variable returns the calculated variable for key when defined, the raw
// variable otherwise.
func (d *Dataset) Variable(key string) (store.Variable, error) {
	def, ok := d.defs[key]
	if !ok {
		return d.Dataset.Variable(key)
	}
	if err := d.checkCycle(key, nil); err != nil {
		return nil, err
	}
	e, err := d.compile(def.Equation)
	if err != nil {
		return nil, fmt.Errorf("calculated variable %s: %w", key, err)
	}

	v := &Variable{ds: d, key: key, def: def, expr: e, scope: scope{ds: d, self: key}}
	if d.Dataset.HasVariable(key) {
		if v.raw, err = d.Dataset.Variable(key); err != nil {
			return nil, err
		}
	}
	if len(def.Dims) > 0 {
		v.dims = expr.Dimensions{Names: append([]string(nil), def.Dims...)}
	} else if v.dims, err = e.InferDims(v.scope); err != nil {
		return nil, fmt.Errorf("calculated variable %s: %w", key, err)
	}
	return v, nil
}

// checkCycle walks the calculated dependencies of key.
func (d *Dataset) checkCycle(key string, path []string) error {
	for _, p := range path {
		if p == key {
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(append(path, key), " -> "))
		}
	}
	def, ok := d.defs[key]
	if !ok {
		return nil
	}
	e, err := d.compile(def.Equation)
	if err != nil {
		return fmt.Errorf("calculated variable %s: %w", key, err)
	}
	path = append(path, key)
	for _, dep := range e.Variables() {
		if dep == key {
			continue
		}
		if err := d.checkCycle(dep, path); err != nil {
			return err
		}
	}
	return nil
}

// Variables lists the raw variables with calculated definitions layered
// over them, followed by calculated-only variables in key order.
func (d *Dataset) Variables() domain.VariableList {
	raw := d.Dataset.Variables()
	vars := raw.All()
	for i, v := range vars {
		if d.IsCalculated(v.Key) {
			vars[i] = d.describe(v.Key, &v)
		}
	}

	var extra []string
	for k := range d.defs {
		if !raw.Contains(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		vars = append(vars, d.describe(k, nil))
	}

	list, err := domain.NewVariableList(vars...)
	if err != nil {
		d.log.WithError(err).Warn("failed to list calculated variables")
		return raw
	}
	return list
}

// describe layers a definition over base (the raw description, if any).
func (d *Dataset) describe(key string, base *domain.Variable) domain.Variable {
	def := d.defs[key]
	out := domain.Variable{Key: key, Name: key}
	if base != nil {
		out = *base
	}
	if def.LongName != "" {
		out.Name = def.LongName
	}
	if def.Units != "" {
		out.Unit = def.Units
	}
	if def.ValidMin != nil {
		out.ValidMin = def.ValidMin
	}
	if def.ValidMax != nil {
		out.ValidMax = def.ValidMax
	}
	if len(def.Dims) > 0 {
		out.Dimensions = append([]string(nil), def.Dims...)
		return out
	}
	v, err := d.Variable(key)
	if err != nil {
		d.log.WithError(err).WithField("variable", key).Warn("failed to infer calculated variable dimensions")
		return out
	}
	out.Dimensions = v.Dims()
	return out
}

// scope resolves references made from inside the definition of self.
type scope struct {
	ds   *Dataset
	self string
}

func (s scope) Variable(key string) (store.Variable, error) {
	if key == s.self {
		return s.ds.Dataset.Variable(key)
	}
	return s.ds.Variable(key)
}

// Variable is a calculated variable. Reads evaluate its equation.
type Variable struct {
	ds    *Dataset
	key   string
	def   Definition
	expr  *expr.Expression
	raw   store.Variable
	dims  expr.Dimensions
	scope scope
}

// Name returns the variable key.
func (v *Variable) Name() string { return v.key }

// Dims returns the declared or inferred dimensions.
func (v *Variable) Dims() []string { return append([]string(nil), v.dims.Names...) }

// Shape returns the length of each dimension among the referenced variables.
func (v *Variable) Shape() []int {
	shape, err := expr.DimLengths(v.scope, v.expr.Variables(), v.dims.Names)
	if err != nil {
		v.ds.log.WithError(err).WithField("variable", v.key).Warn("failed to size calculated variable")
		return make([]int, len(v.dims.Names))
	}
	return shape
}

// Attrs returns the raw attributes, if any, overridden by the definition.
func (v *Variable) Attrs() map[string]any {
	out := make(map[string]any)
	if v.raw != nil {
		for k, a := range v.raw.Attrs() {
			out[k] = a
		}
	}
	if v.def.LongName != "" {
		out["long_name"] = v.def.LongName
	}
	if v.def.Units != "" {
		out["units"] = v.def.Units
	}
	if v.def.ValidMin != nil {
		out["valid_min"] = *v.def.ValidMin
	}
	if v.def.ValidMax != nil {
		out["valid_max"] = *v.def.ValidMax
	}
	out["equation"] = v.def.Equation
	return out
}

// Read evaluates the equation over sel, one range per dimension.
func (v *Variable) Read(sel []ndarray.Range) (*ndarray.Array, error) {
	if len(sel) != len(v.dims.Names) {
		return nil, fmt.Errorf("%w: %d ranges for %s%v", ndarray.ErrSelection, len(sel), v.key, v.dims.Names)
	}
	var dims []string
	var shape []int
	for i, r := range sel {
		if !r.Single {
			dims = append(dims, v.dims.Names[i])
			shape = append(shape, r.Len())
		}
	}
	if v.dims.Ambiguous {
		v.ds.log.WithFields(logrus.Fields{
			"variable": v.key,
			"equation": v.def.Equation,
		}).Warn("variables have equal rank but different dimensions; result is masked")
		return ndarray.Masked(dims, shape), nil
	}

	out, err := v.expr.Evaluate(expr.Context{
		Source: v.scope,
		Dims:   v.dims.Names,
		Index:  sel,
		Logger: v.ds.log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate %s: %w", v.key, err)
	}
	return out.Broadcast(dims, shape)
}
