package domain

import (
	"fmt"
	"strings"
)

// Variable describes a dataset variable. It is immutable once constructed.
type Variable struct {
	Key        string   // Identifier used in requests and equations.
	Name       string   // Human-readable long name.
	Unit       string   // Physical unit.
	Dimensions []string // Ordered dimension names.
	ValidMin   *float64 // Optional lower bound of valid data.
	ValidMax   *float64 // Optional upper bound of valid data.
}

// HasDimension reports whether the variable is indexed by dim.
func (v Variable) HasDimension(dim string) bool {
	for _, d := range v.Dimensions {
		if d == dim {
			return true
		}
	}
	return false
}

// String returns "key (name) [unit]".
func (v Variable) String() string {
	var b strings.Builder
	b.WriteString(v.Key)
	if v.Name != "" && v.Name != v.Key {
		fmt.Fprintf(&b, " (%s)", v.Name)
	}
	if v.Unit != "" {
		fmt.Fprintf(&b, " [%s]", v.Unit)
	}
	return b.String()
}

// VariableList is an ordered collection of variables with unique keys.
type VariableList struct {
	vars  []Variable
	index map[string]int
}

// NewVariableList builds a list, rejecting duplicate keys.
func NewVariableList(vars ...Variable) (VariableList, error) {
	l := VariableList{
		vars:  make([]Variable, 0, len(vars)),
		index: make(map[string]int, len(vars)),
	}
	for _, v := range vars {
		if _, ok := l.index[v.Key]; ok {
			return VariableList{}, fmt.Errorf("%w: %s", ErrDuplicateVariable, v.Key)
		}
		l.index[v.Key] = len(l.vars)
		l.vars = append(l.vars, v)
	}
	return l, nil
}

// Len returns the number of variables.
func (l VariableList) Len() int {
	return len(l.vars)
}

// At returns the variable at position i.
func (l VariableList) At(i int) Variable {
	return l.vars[i]
}

// Get looks up a variable by key.
func (l VariableList) Get(key string) (Variable, bool) {
	i, ok := l.index[key]
	if !ok {
		return Variable{}, false
	}
	return l.vars[i], true
}

// Contains reports whether key is in the list.
func (l VariableList) Contains(key string) bool {
	_, ok := l.index[key]
	return ok
}

// Keys returns the keys in order.
func (l VariableList) Keys() []string {
	keys := make([]string, len(l.vars))
	for i, v := range l.vars {
		keys[i] = v.Key
	}
	return keys
}

// All returns a copy of the variables in order.
func (l VariableList) All() []Variable {
	return append([]Variable(nil), l.vars...)
}
