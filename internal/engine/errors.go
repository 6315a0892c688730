package engine

import "errors"

// Validation failures raised by the cube. They are never transient: the
// offending call returns one of these, wrapped with context, and leaves the
// cube untouched. Match with errors.Is.
var (
	ErrDuplicateDimension     = errors.New("dimension already exists")
	ErrInvalidDataType        = errors.New("invalid data type")
	ErrDimensionalityMismatch = errors.New("record width does not match dimension count")
	ErrUnknownDimension       = errors.New("unknown dimension")
	ErrNonNumericDimension    = errors.New("dimension is not numeric")
	ErrInvalidCriterion       = errors.New("invalid criterion")
	ErrInvalidOperator        = errors.New("invalid operator")
	ErrUnknownAggregation     = errors.New("unknown aggregation")
	ErrInvalidRecordShape     = errors.New("record is neither a tuple nor a mapping")
	ErrInvalidValue           = errors.New("value does not fit dimension type")
)
