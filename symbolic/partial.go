package symbolic

import (
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// PartialArray is a partially evaluated integer tensor, stored flat: its length may be unknown, and when known
// each element is an Element.
//
// It is used for the small "shape", "axes" or "indices" operands of shape manipulating operators, whose contents
// are often known (or partially known) at build time. The logical shape of the tensor is tracked separately;
// for a scalar the array has length 1.
//
// A PartialArray is created with a fixed length and mutated (with Set) only while it is being constructed.
type PartialArray struct {
	hasLength bool
	elements  []Element
}

// NewPartialArray returns an array of the given length with all elements Unknown.
func NewPartialArray(length int) *PartialArray {
	if length < 0 {
		exceptions.Panicf("symbolic.NewPartialArray(%d): negative length", length)
	}
	return &PartialArray{hasLength: true, elements: make([]Element, length)}
}

// UnknownPartialArray returns an array of unknown length.
func UnknownPartialArray() *PartialArray { return &PartialArray{} }

// PartialFromInts returns a fully known array.
func PartialFromInts(values ...int) *PartialArray {
	p := NewPartialArray(len(values))
	for ii, v := range values {
		p.elements[ii] = ElementValue(v)
	}
	return p
}

// PartialFromElements returns an array with the given elements.
func PartialFromElements(elements ...Element) *PartialArray {
	p := NewPartialArray(len(elements))
	copy(p.elements, elements)
	return p
}

// PartialFromShape returns the dimensions of the shape as an array, which is the contents of the tensor
// returned by a Shape operator. An unknown rank yields an array of unknown length.
func PartialFromShape(s Shape) *PartialArray {
	if !s.hasRank {
		return UnknownPartialArray()
	}
	p := NewPartialArray(s.rank)
	for axis, d := range s.dims[:s.rank] {
		p.elements[axis] = d.ToElement()
	}
	return p
}

// HasLength returns whether the length of the array is known.
func (p *PartialArray) HasLength() bool { return p.hasLength }

// Length returns the length of the array. It panics if the length is unknown.
func (p *PartialArray) Length() int {
	if !p.hasLength {
		exceptions.Panicf("PartialArray.Length() called on array of unknown length")
	}
	return len(p.elements)
}

// Get returns the element at index i. It panics if i is out of range.
func (p *PartialArray) Get(i int) Element {
	if i < 0 || i >= len(p.elements) {
		exceptions.Panicf("PartialArray.Get(%d) out of range for array %s", i, p)
	}
	return p.elements[i]
}

// Set sets the element at index i. It panics if i is out of range.
func (p *PartialArray) Set(i int, e Element) {
	if i < 0 || i >= len(p.elements) {
		exceptions.Panicf("PartialArray.Set(%d) out of range for array %s", i, p)
	}
	p.elements[i] = e
}

// Elements returns a copy of the elements, or nil if the length is unknown.
func (p *PartialArray) Elements() []Element {
	if !p.hasLength {
		return nil
	}
	out := make([]Element, len(p.elements))
	copy(out, p.elements)
	return out
}

// Clone returns a copy of the array.
func (p *PartialArray) Clone() *PartialArray {
	return &PartialArray{hasLength: p.hasLength, elements: p.Elements()}
}

// IsFullyKnown returns whether the length and all elements are concrete.
func (p *PartialArray) IsFullyKnown() bool {
	if !p.hasLength {
		return false
	}
	for _, e := range p.elements {
		if !e.IsValue() {
			return false
		}
	}
	return true
}

// IsUnknown returns whether nothing at all is known about the array contents.
func (p *PartialArray) IsUnknown() bool {
	if !p.hasLength {
		return true
	}
	for _, e := range p.elements {
		if !e.IsUnknown() {
			return false
		}
	}
	return true
}

// ToInts returns the concrete contents, if the array is fully known.
func (p *PartialArray) ToInts() ([]int, bool) {
	if !p.IsFullyKnown() {
		return nil, false
	}
	ints := make([]int, len(p.elements))
	for ii, e := range p.elements {
		ints[ii] = e.value
	}
	return ints, true
}

// ToShape interprets the array as a shape: its length is the rank and its elements the dimensions.
// Negative concrete elements fail with ErrInvalidValue.
func (p *PartialArray) ToShape() (Shape, error) {
	if !p.hasLength {
		return UnknownShape(), nil
	}
	s, err := newShape(len(p.elements))
	if err != nil {
		return UnknownShape(), errors.WithMessagef(err, "converting %s to shape", p)
	}
	for axis, e := range p.elements {
		if e.IsValue() && e.value < 0 {
			return UnknownShape(), errors.Wrapf(ErrInvalidValue, "converting %s to shape: negative dimension", p)
		}
		s.dims[axis] = e.ToDim()
	}
	return s, nil
}

// Gather returns the element referenced by index, with negative indices wrapping around.
// A non-concrete index, or an unknown length when wrapping is needed, yields Unknown.
// A concrete index out of range fails with ErrAxisOutOfRange.
func (p *PartialArray) Gather(index Element) (Element, error) {
	if !index.IsValue() || !p.hasLength {
		return UnknownElement(), nil
	}
	i := index.value
	if i < 0 {
		i += len(p.elements)
	}
	if i < 0 || i >= len(p.elements) {
		return UnknownElement(), errors.Wrapf(ErrAxisOutOfRange, "index %d for array of length %d", index.value, len(p.elements))
	}
	return p.elements[i], nil
}

// GatherAll gathers every index of indices, returning an array with the same length as indices.
func (p *PartialArray) GatherAll(indices *PartialArray) (*PartialArray, error) {
	if !indices.hasLength {
		return UnknownPartialArray(), nil
	}
	out := NewPartialArray(len(indices.elements))
	for ii, index := range indices.elements {
		e, err := p.Gather(index)
		if err != nil {
			return UnknownPartialArray(), err
		}
		out.elements[ii] = e
	}
	return out, nil
}

// Slice returns the elements selected by start:end:step, with the same clamping rules as SliceRange.
func (p *PartialArray) Slice(start, end, step int) (*PartialArray, error) {
	if step == 0 {
		return UnknownPartialArray(), errors.Wrapf(ErrInvalidValue, "slice step cannot be 0")
	}
	if !p.hasLength {
		return UnknownPartialArray(), nil
	}
	first, count := SliceRange(len(p.elements), start, end, step)
	out := NewPartialArray(count)
	for ii := range count {
		out.elements[ii] = p.elements[first+ii*step]
	}
	return out, nil
}

// ConcatPartial concatenates the arrays. If any length is unknown, the result has unknown length.
func ConcatPartial(arrays ...*PartialArray) *PartialArray {
	var elements []Element
	for _, p := range arrays {
		if !p.hasLength {
			return UnknownPartialArray()
		}
		elements = append(elements, p.elements...)
	}
	return PartialFromElements(elements...)
}

// Reshape returns the same elements for a tensor reshaped to the given concrete dimensions.
// The number of elements must match the length of the array.
func (p *PartialArray) Reshape(dims []int) (*PartialArray, error) {
	size := 1
	for _, d := range dims {
		size *= d
	}
	if !p.hasLength {
		return NewPartialArray(size), nil
	}
	if size != len(p.elements) {
		return UnknownPartialArray(), errors.Wrapf(ErrValueMismatch, "reshaping array of length %d to dimensions %v", len(p.elements), dims)
	}
	return p.Clone(), nil
}

// Map applies fn to every element.
func (p *PartialArray) Map(fn func(Element) Element) *PartialArray {
	if !p.hasLength {
		return UnknownPartialArray()
	}
	out := NewPartialArray(len(p.elements))
	for ii, e := range p.elements {
		out.elements[ii] = fn(e)
	}
	return out
}

// BroadcastPartial combines two flat arrays element by element with fn. An array of length 1 is broadcast to the
// length of the other one; other different lengths fail with ErrBroadcast.
func BroadcastPartial(a, b *PartialArray, fn func(x, y Element) Element) (*PartialArray, error) {
	if !a.hasLength || !b.hasLength {
		return UnknownPartialArray(), nil
	}
	lenA, lenB := len(a.elements), len(b.elements)
	length := max(lenA, lenB)
	if lenA != lenB && lenA != 1 && lenB != 1 {
		return UnknownPartialArray(), errors.Wrapf(ErrBroadcast, "arrays %s and %s", a, b)
	}
	if lenA == 0 || lenB == 0 {
		length = 0
	}
	out := NewPartialArray(length)
	for ii := range length {
		x, y := a.elements[min(ii, lenA-1)], b.elements[min(ii, lenB-1)]
		out.elements[ii] = fn(x, y)
	}
	return out, nil
}

// MaxDefinedPartialArray joins two arrays known to describe the same tensor, element by element with
// MaxDefinedElement. Known lengths that differ fail with ErrValueMismatch.
func MaxDefinedPartialArray(a, b *PartialArray) (*PartialArray, error) {
	if !a.hasLength {
		return b.Clone(), nil
	}
	if !b.hasLength {
		return a.Clone(), nil
	}
	if len(a.elements) != len(b.elements) {
		return UnknownPartialArray(), errors.Wrapf(ErrValueMismatch, "merging arrays %s and %s of different lengths", a, b)
	}
	out := NewPartialArray(len(a.elements))
	for ii := range a.elements {
		e, err := MaxDefinedElement(a.elements[ii], b.elements[ii])
		if err != nil {
			return UnknownPartialArray(), errors.WithMessagef(err, "merging arrays %s and %s at index %d", a, b, ii)
		}
		out.elements[ii] = e
	}
	return out, nil
}

// Equal returns whether both arrays carry exactly the same information.
func (p *PartialArray) Equal(other *PartialArray) bool {
	if p.hasLength != other.hasLength || len(p.elements) != len(other.elements) {
		return false
	}
	for ii, e := range p.elements {
		if e != other.elements[ii] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer. E.g.: "[1, N, ?]", or "[*]" for an unknown length.
func (p *PartialArray) String() string {
	if !p.hasLength {
		return "[*]"
	}
	parts := make([]string, len(p.elements))
	for ii, e := range p.elements {
		parts[ii] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
