package domain

import "errors"

// Configuration errors. They are returned synchronously and never degraded
// into missing data.
var (
	// ErrUnknownCoordinatePair indicates no known lat/lon variable pair matches a variable.
	ErrUnknownCoordinatePair = errors.New("no known latitude/longitude variable pair")
	// ErrUnsupported indicates an operation the grid model cannot perform.
	ErrUnsupported = errors.New("operation not supported for this grid model")
	// ErrNoDepthAxis indicates a profile was requested for a surface-only variable.
	ErrNoDepthAxis = errors.New("variable has no depth dimension")
	// ErrUnknownVariable indicates a variable key that is not in the dataset.
	ErrUnknownVariable = errors.New("unknown variable")
	// ErrDuplicateVariable indicates two variables share a key.
	ErrDuplicateVariable = errors.New("duplicate variable key")
	// ErrTimeNotFound indicates a timestamp that does not match the time axis.
	ErrTimeNotFound = errors.New("timestamp not found in dataset")
	// ErrInvalidQuery indicates malformed request parameters.
	ErrInvalidQuery = errors.New("invalid query")
)
