package symbolic

import (
	"strconv"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Element is the compile-time abstract value of one element of an integer tensor: Unknown, a concrete integer
// (possibly negative) or a named parameter.
//
// It mirrors Dim, but it describes the contents of a tensor, not the size of an axis. Elements with a parameter
// typically come from taking the Shape of a tensor with symbolic dimensions.
type Element struct {
	kind  dimKind
	value int
	param ParamID
}

// UnknownElement returns an element with no information.
func UnknownElement() Element { return Element{} }

// ElementValue returns a concrete element.
func ElementValue(v int) Element { return Element{kind: dimValue, value: v} }

// ElementParam returns an element that equals the named parameter.
func ElementParam(p ParamID) Element { return Element{kind: dimParam, param: p} }

// ElementBool returns the concrete element 1 for true and 0 for false.
func ElementBool(b bool) Element {
	if b {
		return ElementValue(1)
	}
	return ElementValue(0)
}

// IsUnknown returns whether nothing is known about the element.
func (e Element) IsUnknown() bool { return e.kind == dimUnknown }

// IsValue returns whether the element is concrete.
func (e Element) IsValue() bool { return e.kind == dimValue }

// IsParam returns whether the element is a named parameter.
func (e Element) IsParam() bool { return e.kind == dimParam }

// Value returns the concrete value. It panics if the element is not concrete.
func (e Element) Value() int {
	if e.kind != dimValue {
		exceptions.Panicf("Element.Value() called on non-concrete element %s", e)
	}
	return e.value
}

// Param returns the parameter id of the element. It panics if the element is not a parameter.
func (e Element) Param() ParamID {
	if e.kind != dimParam {
		exceptions.Panicf("Element.Param() called on non-parameter element %s", e)
	}
	return e.param
}

// EqualsValue returns whether e is the concrete value v.
func (e Element) EqualsValue(v int) bool { return e.kind == dimValue && e.value == v }

// Equal returns whether both elements have the same kind and payload.
func (e Element) Equal(other Element) bool { return e == other }

// String implements fmt.Stringer.
func (e Element) String() string {
	switch e.kind {
	case dimValue:
		return strconv.Itoa(e.value)
	case dimParam:
		return e.param.String()
	default:
		return "?"
	}
}

// ToDim converts the element to a dimension. Negative values can't be dimensions and become Unknown.
func (e Element) ToDim() Dim {
	switch {
	case e.kind == dimValue && e.value >= 0:
		return DimValue(e.value)
	case e.kind == dimParam:
		return DimParam(e.param)
	}
	return Unknown()
}

// Add returns e+other.
func (e Element) Add(other Element) Element {
	switch {
	case e.IsValue() && other.IsValue():
		return ElementValue(e.value + other.value)
	case e.EqualsValue(0):
		return other
	case other.EqualsValue(0):
		return e
	}
	return UnknownElement()
}

// Sub returns e-other. A parameter minus itself is 0.
func (e Element) Sub(other Element) Element {
	switch {
	case e.IsValue() && other.IsValue():
		return ElementValue(e.value - other.value)
	case other.EqualsValue(0):
		return e
	case e.IsParam() && e == other:
		return ElementValue(0)
	}
	return UnknownElement()
}

// Mul returns e*other: 0 is absorbing and 1 is the identity.
func (e Element) Mul(other Element) Element {
	switch {
	case e.IsValue() && other.IsValue():
		return ElementValue(e.value * other.value)
	case e.EqualsValue(0) || other.EqualsValue(0):
		return ElementValue(0)
	case e.EqualsValue(1):
		return other
	case other.EqualsValue(1):
		return e
	}
	return UnknownElement()
}

// Div returns the integer division e/other, truncated toward zero like integer tensor division.
// Division by a concrete 0 is a run-time matter and yields Unknown.
func (e Element) Div(other Element) Element {
	switch {
	case other.EqualsValue(0):
		return UnknownElement()
	case e.IsValue() && other.IsValue():
		return ElementValue(e.value / other.value)
	case other.EqualsValue(1):
		return e
	case e.IsParam() && e == other:
		return ElementValue(1)
	}
	return UnknownElement()
}

// Mod returns e mod other, with the sign of the divisor (as integer tensor Mod with fmod=0).
func (e Element) Mod(other Element) Element {
	if !e.IsValue() || !other.IsValue() || other.value == 0 {
		return UnknownElement()
	}
	r := e.value % other.value
	if r != 0 && (r < 0) != (other.value < 0) {
		r += other.value
	}
	return ElementValue(r)
}

// Neg returns -e.
func (e Element) Neg() Element {
	if e.IsValue() {
		return ElementValue(-e.value)
	}
	return UnknownElement()
}

// Abs returns |e|. Parameters are sizes, hence non-negative, and are returned as is.
func (e Element) Abs() Element {
	switch {
	case e.IsValue() && e.value < 0:
		return ElementValue(-e.value)
	case e.IsValue() || e.IsParam():
		return e
	}
	return UnknownElement()
}

// Max returns the maximum of both elements, if it can be decided.
func (e Element) Max(other Element) Element {
	switch {
	case e == other:
		return e
	case e.IsValue() && other.IsValue():
		return ElementValue(max(e.value, other.value))
	}
	return UnknownElement()
}

// Min returns the minimum of both elements, if it can be decided.
func (e Element) Min(other Element) Element {
	switch {
	case e == other:
		return e
	case e.IsValue() && other.IsValue():
		return ElementValue(min(e.value, other.value))
	}
	return UnknownElement()
}

// MaxDefinedElement joins two elements known to describe the same value: Value over Param over Unknown.
// Two different concrete values fail with ErrValueMismatch.
func MaxDefinedElement(a, b Element) (Element, error) {
	switch {
	case a == b:
		return a, nil
	case a.IsValue() && b.IsValue():
		return UnknownElement(), errors.Wrapf(ErrValueMismatch, "elements %s and %s", a, b)
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
