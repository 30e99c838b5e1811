package graphir

import (
	"github.com/gomlx/shapegraph/internal/linearize"
	"github.com/pkg/errors"
)

var (
	// ErrCycleDetected is returned when the graph has a dependency cycle, only possible through Builder.Bind.
	ErrCycleDetected = linearize.ErrCycleDetected

	// ErrDanglingInput is returned when an output traces back to a value that was never added to the builder:
	// a ValueRef from another builder, an absent value, or an unbound placeholder.
	ErrDanglingInput = errors.New("dangling input")

	// ErrBuilderFinalized is returned when adding to a builder after it was compiled.
	ErrBuilderFinalized = errors.New("builder already compiled")

	// ErrInputMismatch is returned when the given inputs don't match what is expected: e.g. the wrong number of
	// inputs given to Forward, or a duplicate input name.
	ErrInputMismatch = errors.New("input mismatch")
)
