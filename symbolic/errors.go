package symbolic

import "github.com/pkg/errors"

// Error kinds returned (wrapped with context) by the symbolic algebra.
// Use errors.Is to test for them.
var (
	// ErrRankMismatch is returned when a shape is required to have a rank different from the one already declared.
	ErrRankMismatch = errors.New("rank mismatch")

	// ErrBroadcast is returned when two concrete dimensions cannot be broadcast together.
	ErrBroadcast = errors.New("incompatible dimensions for broadcast")

	// ErrValueMismatch is returned when two concrete values that describe the same thing disagree.
	ErrValueMismatch = errors.New("value mismatch")

	// ErrDivideByZeroDimension is returned when dividing a dimension by a concrete zero.
	ErrDivideByZeroDimension = errors.New("division of dimension by zero")

	// ErrNonIntegerDivision is returned when an exact division of concrete values leaves a remainder.
	ErrNonIntegerDivision = errors.New("dimension division is not exact")

	// ErrAxisOutOfRange is returned for axes outside of [-rank, rank).
	ErrAxisOutOfRange = errors.New("axis out of range")

	// ErrMaxRankExceeded is returned when an operation would create a shape with rank > MaxRank.
	ErrMaxRankExceeded = errors.New("maximum rank exceeded")

	// ErrInvalidValue is returned for arguments that are statically known to be invalid, e.g. squeezing an axis
	// whose dimension is known not to be 1.
	ErrInvalidValue = errors.New("invalid value")
)
