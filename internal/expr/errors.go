package expr

import "errors"

// Structural errors. They surface on first use of the offending expression.
var (
	// ErrSyntax indicates a malformed equation.
	ErrSyntax = errors.New("expr: syntax error")
	// ErrUnknownFunction indicates a call to a name missing from the registry.
	ErrUnknownFunction = errors.New("expr: unknown function")
	// ErrArity indicates a function called with the wrong number of arguments.
	ErrArity = errors.New("expr: wrong number of arguments")
	// ErrDimensionMismatch indicates a variable indexed by a dimension absent
	// from the evaluation index, or arrays that cannot be aligned.
	ErrDimensionMismatch = errors.New("expr: dimension mismatch")
)
