// Package inference implements the per-operator shape, dtype and partial value inference rules, and the context
// that stores what is known about each value of a graph during a build or replay pass.
package inference

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/pkg/errors"
)

// Mode of a Context.
type Mode int

const (
	// ModeBuild is used while building a new graph: every value is written exactly once, and a second write
	// is an error.
	ModeBuild Mode = iota

	// ModeReplay is used while replaying an existing IR: a value may be written more than once (e.g. from the
	// IR's recorded information and again by its operator's rule) and writes are merged.
	ModeReplay
)

// String implements fmt.Stringer.
func (m Mode) String() string {
	switch m {
	case ModeBuild:
		return "Build"
	case ModeReplay:
		return "Replay"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// DefaultMaxPartialLength is the default maximum length of the partially evaluated contents of a value.
const DefaultMaxPartialLength = 16

// ValueInfo is what is known about one value.
type ValueInfo struct {
	DType dtypes.DType
	Shape symbolic.Shape

	// Partial holds the (partially) known contents of integer or boolean values, flattened.
	// It is nil if nothing is known about the contents.
	Partial *symbolic.PartialArray
}

// String implements fmt.Stringer.
func (info ValueInfo) String() string {
	if info.Partial == nil {
		return fmt.Sprintf("%s%s", DTypeName(info.DType), info.Shape)
	}
	return fmt.Sprintf("%s%s=%s", DTypeName(info.DType), info.Shape, info.Partial)
}

// Context stores the best known information about the values of a graph, keyed by value id.
//
// Reads of values never written return fully unknown information. A Context is used by one pass only and is not
// safe for concurrent use.
type Context struct {
	mode             Mode
	maxPartialLength int
	values           map[int]ValueInfo
}

// NewContext creates an empty context for a pass in the given mode.
func NewContext(mode Mode) *Context {
	return &Context{
		mode:             mode,
		maxPartialLength: DefaultMaxPartialLength,
		values:           make(map[int]ValueInfo),
	}
}

// WithMaxPartialLength sets the maximum length of partially evaluated contents: longer ones are discarded.
// It returns the context itself, so calls can be chained.
func (ctx *Context) WithMaxPartialLength(length int) *Context {
	ctx.maxPartialLength = length
	return ctx
}

// MaxPartialLength returns the configured maximum length of partially evaluated contents.
func (ctx *Context) MaxPartialLength() int { return ctx.maxPartialLength }

// Mode returns the mode of the context.
func (ctx *Context) Mode() Mode { return ctx.mode }

// Has returns whether the value was written.
func (ctx *Context) Has(id int) bool {
	_, found := ctx.values[id]
	return found
}

// Info returns what is known about the value. Values never written return an invalid dtype and unknown shape.
func (ctx *Context) Info(id int) ValueInfo {
	info, found := ctx.values[id]
	if !found {
		return ValueInfo{DType: dtypes.InvalidDType, Shape: symbolic.UnknownShape()}
	}
	return info
}

// Shape returns the best known shape of the value.
func (ctx *Context) Shape(id int) symbolic.Shape { return ctx.Info(id).Shape }

// DType returns the dtype of the value, or dtypes.InvalidDType if it is not known.
func (ctx *Context) DType(id int) dtypes.DType { return ctx.Info(id).DType }

// Partial returns the best known contents of the value. It is never nil: if nothing is known, it returns an
// array of unknown length, or of unknown elements if the number of elements is known.
func (ctx *Context) Partial(id int) *symbolic.PartialArray {
	info := ctx.Info(id)
	if info.Partial != nil {
		return info.Partial
	}
	if length := info.Shape.Length(); length.IsValue() && length.Value() <= ctx.maxPartialLength {
		return symbolic.NewPartialArray(length.Value())
	}
	return symbolic.UnknownPartialArray()
}

// Set writes what is known about a value.
//
// In ModeBuild writing a value twice fails with ErrDuplicateWrite. In ModeReplay the new information is merged
// with what was known: shapes and contents are joined with symbolic.MaxDefinedShape and
// symbolic.MaxDefinedPartialArray, and contradictions are returned as errors.
func (ctx *Context) Set(id int, info ValueInfo) error {
	previous, found := ctx.values[id]
	if !found {
		ctx.values[id] = ctx.normalize(info)
		return nil
	}
	if ctx.mode == ModeBuild {
		return errors.Wrapf(ErrDuplicateWrite, "value #%d", id)
	}
	merged, err := mergeInfo(previous, info)
	if err != nil {
		return errors.WithMessagef(err, "merging information of value #%d", id)
	}
	ctx.values[id] = ctx.normalize(merged)
	return nil
}

// normalize drops partial contents that can't or shouldn't be tracked.
func (ctx *Context) normalize(info ValueInfo) ValueInfo {
	if info.Partial == nil {
		return info
	}
	if !carriesPartial(info.DType) || info.Partial.IsUnknown() ||
		(info.Partial.HasLength() && info.Partial.Length() > ctx.maxPartialLength) {
		info.Partial = nil
	}
	return info
}

func mergeInfo(a, b ValueInfo) (ValueInfo, error) {
	var merged ValueInfo
	switch {
	case a.DType == dtypes.InvalidDType:
		merged.DType = b.DType
	case b.DType == dtypes.InvalidDType || a.DType == b.DType:
		merged.DType = a.DType
	default:
		return merged, errors.Wrapf(ErrDTypeMismatch, "%s vs %s", DTypeName(a.DType), DTypeName(b.DType))
	}
	var err error
	merged.Shape, err = symbolic.MaxDefinedShape(a.Shape, b.Shape)
	if err != nil {
		return merged, err
	}
	switch {
	case a.Partial == nil:
		merged.Partial = b.Partial
	case b.Partial == nil:
		merged.Partial = a.Partial
	default:
		merged.Partial, err = symbolic.MaxDefinedPartialArray(a.Partial, b.Partial)
		if err != nil {
			return merged, err
		}
	}
	return merged, nil
}
