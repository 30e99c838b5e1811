package inference

import "github.com/pkg/errors"

var (
	// ErrUnknownOp is returned for an operator type without inference rule.
	ErrUnknownOp = errors.New("unknown operator type")

	// ErrAttribute is returned when a required attribute is missing, or an attribute has the wrong type.
	ErrAttribute = errors.New("invalid attribute")

	// ErrInputCount is returned when an operator receives a number of inputs it doesn't accept.
	ErrInputCount = errors.New("invalid number of inputs")

	// ErrDTypeMismatch is returned when the dtypes of the operands are incompatible.
	ErrDTypeMismatch = errors.New("dtype mismatch")

	// ErrDuplicateWrite is returned when a value is written twice in a build pass.
	ErrDuplicateWrite = errors.New("value written more than once")
)
