// Package symbolic implements the algebra used to reason about tensor shapes and small integer tensors before
// any numeric computation happens.
//
//   - Dim: the size of one axis. It is either Unknown, a concrete non-negative value or a named parameter
//     (e.g. a dynamic batch size).
//   - Shape: up to MaxRank dimensions, with a possibly unknown rank.
//   - Element: a compile-time abstract integer: the value (not the size) of one element of a tensor.
//   - PartialArray: a partially evaluated 1-D integer tensor, typically a "shape" or "axes" operand.
//
// Unknown information is never an error: it propagates. Only contradictions between known values are reported,
// as errors wrapping one of the package's Err* kinds.
package symbolic

import (
	"fmt"
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// ParamID identifies a named symbolic parameter, e.g. 'N' for a batch dimension.
// Two dimensions with the same ParamID are known to be equal at run time.
type ParamID rune

// String implements fmt.Stringer.
func (p ParamID) String() string { return string(p) }

type dimKind uint8

const (
	dimUnknown dimKind = iota
	dimValue
	dimParam
)

// Dim is the size of one tensor axis: Unknown, a concrete value (>= 0) or a named parameter.
//
// Dim is a comparable value type: two Dims are == only if they have the same kind and payload.
// The zero value is Unknown.
type Dim struct {
	kind  dimKind
	value int
	param ParamID
}

var (
	// Zero is the concrete dimension 0.
	Zero = DimValue(0)

	// One is the concrete dimension 1.
	One = DimValue(1)
)

// Unknown returns a dimension with no information.
func Unknown() Dim { return Dim{} }

// DimValue returns a concrete dimension. It panics if v is negative.
func DimValue(v int) Dim {
	if v < 0 {
		exceptions.Panicf("symbolic.DimValue(%d): dimensions cannot be negative", v)
	}
	return Dim{kind: dimValue, value: v}
}

// DimParam returns a named symbolic dimension.
func DimParam(p ParamID) Dim { return Dim{kind: dimParam, param: p} }

// IsUnknown returns whether nothing is known about the dimension.
func (d Dim) IsUnknown() bool { return d.kind == dimUnknown }

// IsValue returns whether the dimension is concrete.
func (d Dim) IsValue() bool { return d.kind == dimValue }

// IsParam returns whether the dimension is a named parameter.
func (d Dim) IsParam() bool { return d.kind == dimParam }

// Value returns the concrete value of the dimension. It panics if the dimension is not concrete.
func (d Dim) Value() int {
	if d.kind != dimValue {
		exceptions.Panicf("Dim.Value() called on non-concrete dimension %s", d)
	}
	return d.value
}

// Param returns the parameter id of the dimension. It panics if the dimension is not a parameter.
func (d Dim) Param() ParamID {
	if d.kind != dimParam {
		exceptions.Panicf("Dim.Param() called on non-parameter dimension %s", d)
	}
	return d.param
}

// EqualsValue returns whether d is the concrete value v.
func (d Dim) EqualsValue(v int) bool { return d.kind == dimValue && d.value == v }

// Equal returns whether both dimensions have the same kind and payload.
func (d Dim) Equal(other Dim) bool { return d == other }

// String implements fmt.Stringer: "?" for unknown, the number for values and the parameter name for parameters.
func (d Dim) String() string {
	switch d.kind {
	case dimValue:
		return strconv.Itoa(d.value)
	case dimParam:
		return d.param.String()
	default:
		return "?"
	}
}

// ToElement converts the dimension to the corresponding abstract element value.
func (d Dim) ToElement() Element {
	switch d.kind {
	case dimValue:
		return ElementValue(d.value)
	case dimParam:
		return ElementParam(d.param)
	default:
		return UnknownElement()
	}
}

// Add returns d+other. Concrete values fold, and adding a concrete 0 is the identity.
func (d Dim) Add(other Dim) Dim {
	switch {
	case d.IsValue() && other.IsValue():
		return DimValue(d.value + other.value)
	case d.EqualsValue(0):
		return other
	case other.EqualsValue(0):
		return d
	}
	return Unknown()
}

// AddInt returns d+v, where v may be negative (e.g. for negative paddings).
// It panics with ErrInvalidValue if the result is a negative concrete value.
func (d Dim) AddInt(v int) Dim {
	out, err := tryAddInt(d, v)
	if err != nil {
		panic(err)
	}
	return out
}

// Sub returns d-other. Subtracting a parameter from itself yields Zero.
// It panics with ErrInvalidValue if both are concrete and the result would be negative.
func (d Dim) Sub(other Dim) Dim {
	switch {
	case d.IsValue() && other.IsValue():
		if d.value < other.value {
			panic(errors.Wrapf(ErrInvalidValue, "dimension %d-%d results in negative dimension", d.value, other.value))
		}
		return DimValue(d.value - other.value)
	case other.EqualsValue(0):
		return d
	case d.IsParam() && d == other:
		return Zero
	}
	return Unknown()
}

// Mul returns d*other: concrete values fold, 0 is absorbing and 1 is the identity.
func (d Dim) Mul(other Dim) Dim {
	switch {
	case d.IsValue() && other.IsValue():
		return DimValue(d.value * other.value)
	case d.EqualsValue(0) || other.EqualsValue(0):
		return Zero
	case d.EqualsValue(1):
		return other
	case other.EqualsValue(1):
		return d
	}
	return Unknown()
}

// Div returns the exact division d/other.
//
// It fails with ErrDivideByZeroDimension if other is a concrete 0, and with ErrNonIntegerDivision if both are
// concrete and d is not a multiple of other.
func (d Dim) Div(other Dim) (Dim, error) {
	if other.EqualsValue(0) {
		return Unknown(), errors.Wrapf(ErrDivideByZeroDimension, "%s/%s", d, other)
	}
	switch {
	case d.IsValue() && other.IsValue():
		if d.value%other.value != 0 {
			return Unknown(), errors.Wrapf(ErrNonIntegerDivision, "%s/%s", d, other)
		}
		return DimValue(d.value / other.value), nil
	case other.EqualsValue(1):
		return d, nil
	case d.EqualsValue(0):
		return Zero, nil
	case d.IsParam() && d == other:
		return One, nil
	}
	return Unknown(), nil
}

// Rounding selects how DivideWithRounding rounds non-exact results.
type Rounding int

const (
	RoundFloor Rounding = iota
	RoundCeil
	RoundNearest
)

// DivideWithRounding divides the dimension by the positive integer v, rounding as requested.
// Used by the pooling and convolution output-size formulas.
func (d Dim) DivideWithRounding(v int, rounding Rounding) Dim {
	if v <= 0 {
		panic(errors.Wrapf(ErrDivideByZeroDimension, "DivideWithRounding(%s, %d): divisor must be positive", d, v))
	}
	if v == 1 {
		return d
	}
	if !d.IsValue() {
		return Unknown()
	}
	switch rounding {
	case RoundCeil:
		return DimValue((d.value + v - 1) / v)
	case RoundNearest:
		return DimValue((2*d.value + v) / (2 * v))
	default:
		return DimValue(d.value / v)
	}
}

// BroadcastDim returns the broadcast of two dimensions of aligned axes.
//
// A concrete 1 broadcasts to anything; equal dimensions broadcast to themselves; two different concrete values
// fail with ErrBroadcast. Anything else can't be proven compatible (or incompatible) and yields Unknown.
func BroadcastDim(a, b Dim) (Dim, error) {
	switch {
	case a.EqualsValue(1):
		return b, nil
	case b.EqualsValue(1):
		return a, nil
	case a == b:
		return a, nil
	case a.IsValue() && b.IsValue():
		return Unknown(), errors.Wrapf(ErrBroadcast, "dimensions %s and %s", a, b)
	}
	return Unknown(), nil
}

// MaxDefinedDim joins two dimensions known to describe the same axis, keeping the most informative one:
// Value over Param over Unknown. Two different parameters resolve to the smaller ParamID, so the join is
// commutative. Two different concrete values fail with ErrValueMismatch.
func MaxDefinedDim(a, b Dim) (Dim, error) {
	switch {
	case a == b:
		return a, nil
	case a.IsValue() && b.IsValue():
		return Unknown(), errors.Wrapf(ErrValueMismatch, "dimensions %s and %s", a, b)
	case a.IsValue():
		return a, nil
	case b.IsValue():
		return b, nil
	case a.IsParam() && b.IsParam():
		if a.param < b.param {
			return a, nil
		}
		return b, nil
	case a.IsParam():
		return a, nil
	}
	return b, nil
}

// GCD returns the greatest common divisor of two dimensions.
// One short-circuits everything; otherwise it is only known if both dimensions are concrete.
func GCD(a, b Dim) Dim {
	if a.EqualsValue(1) || b.EqualsValue(1) {
		return One
	}
	if !a.IsValue() || !b.IsValue() {
		return Unknown()
	}
	x, y := a.value, b.value
	for y != 0 {
		x, y = y, x%y
	}
	return DimValue(x)
}

// LessThan returns true only if both dimensions are concrete and d < other.
func (d Dim) LessThan(other Dim) bool { return d.IsValue() && other.IsValue() && d.value < other.value }

// GreaterThan returns true only if both dimensions are concrete and d > other.
func (d Dim) GreaterThan(other Dim) bool { return d.IsValue() && other.IsValue() && d.value > other.value }

// LessOrEqual returns true only if both dimensions are concrete and d <= other.
func (d Dim) LessOrEqual(other Dim) bool { return d.IsValue() && other.IsValue() && d.value <= other.value }

// GreaterOrEqual returns true only if both dimensions are concrete and d >= other.
func (d Dim) GreaterOrEqual(other Dim) bool {
	return d.IsValue() && other.IsValue() && d.value >= other.value
}

// GoString implements fmt.GoStringer, used by %#v.
func (d Dim) GoString() string {
	switch d.kind {
	case dimValue:
		return fmt.Sprintf("symbolic.DimValue(%d)", d.value)
	case dimParam:
		return fmt.Sprintf("symbolic.DimParam(%q)", rune(d.param))
	default:
		return "symbolic.Unknown()"
	}
}
