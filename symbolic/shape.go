package symbolic

import (
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// MaxRank is the maximum rank of any shape.
const MaxRank = 8

// Shape is the (partially known) shape of a tensor: its rank may be unknown, and when known each of its
// dimensions is a Dim.
//
// Dimensions are stored inline, so a Shape is a comparable value that needs no allocation. Unused dimension
// slots are always Unknown, so == compares shapes correctly.
type Shape struct {
	hasRank bool
	rank    int
	dims    [MaxRank]Dim
}

// UnknownShape returns a shape of unknown rank.
func UnknownShape() Shape { return Shape{} }

// UnknownOfRank returns a shape of the given rank with all dimensions Unknown.
// It panics if rank is negative or larger than MaxRank.
func UnknownOfRank(rank int) Shape {
	s, err := newShape(rank)
	if err != nil {
		panic(err)
	}
	return s
}

// newShape returns a shape of the given rank with all dimensions Unknown, or an error if rank > MaxRank.
func newShape(rank int) (Shape, error) {
	if rank < 0 {
		exceptions.Panicf("symbolic: negative rank %d", rank)
	}
	if rank > MaxRank {
		return Shape{}, errors.Wrapf(ErrMaxRankExceeded, "rank %d > MaxRank=%d", rank, MaxRank)
	}
	return Shape{hasRank: true, rank: rank}, nil
}

// MakeShape returns a shape with the given dimensions. It panics if more than MaxRank dimensions are given.
func MakeShape(dims ...Dim) Shape {
	s := UnknownOfRank(len(dims))
	copy(s.dims[:], dims)
	return s
}

// Make returns a fully concrete shape. It panics for negative dimensions or more than MaxRank dimensions.
func Make(dims ...int) Shape {
	s := UnknownOfRank(len(dims))
	for axis, d := range dims {
		s.dims[axis] = DimValue(d)
	}
	return s
}

// Scalar returns the rank-0 shape.
func Scalar() Shape { return Shape{hasRank: true} }

// HasRank returns whether the rank of the shape is known.
func (s Shape) HasRank() bool { return s.hasRank }

// Rank returns the rank of the shape. It panics if the rank is unknown: check with HasRank first.
func (s Shape) Rank() int {
	if !s.hasRank {
		exceptions.Panicf("Shape.Rank() called on shape with unknown rank")
	}
	return s.rank
}

// IsScalar returns whether the shape is known to have rank 0.
func (s Shape) IsScalar() bool { return s.hasRank && s.rank == 0 }

// Dim returns the dimension of the given axis. Negative axes count from the end.
// It panics if the rank is unknown or the axis is out of range.
func (s Shape) Dim(axis int) Dim {
	adjusted, err := s.NormalizeAxis(axis)
	if err != nil {
		panic(err)
	}
	return s.dims[adjusted]
}

// Dims returns a copy of the dimensions, or nil if the rank is unknown.
func (s Shape) Dims() []Dim {
	if !s.hasRank {
		return nil
	}
	dims := make([]Dim, s.rank)
	copy(dims, s.dims[:s.rank])
	return dims
}

// WithDim returns a copy of the shape with the dimension of axis replaced.
func (s Shape) WithDim(axis int, d Dim) Shape {
	adjusted, err := s.NormalizeAxis(axis)
	if err != nil {
		panic(err)
	}
	s.dims[adjusted] = d
	return s
}

// NormalizeAxis converts a possibly negative axis in [-rank, rank) to [0, rank).
func (s Shape) NormalizeAxis(axis int) (int, error) {
	if !s.hasRank {
		return 0, errors.Wrapf(ErrAxisOutOfRange, "axis %d of shape with unknown rank", axis)
	}
	return normalizeAxis(axis, s.rank)
}

func normalizeAxis(axis, rank int) (int, error) {
	adjusted := axis
	if adjusted < 0 {
		adjusted += rank
	}
	if adjusted < 0 || adjusted >= rank {
		return 0, errors.Wrapf(ErrAxisOutOfRange, "axis %d for rank %d", axis, rank)
	}
	return adjusted, nil
}

// IsFullyKnown returns whether the rank and all dimensions are concrete.
func (s Shape) IsFullyKnown() bool {
	if !s.hasRank {
		return false
	}
	for _, d := range s.dims[:s.rank] {
		if !d.IsValue() {
			return false
		}
	}
	return true
}

// ToInts returns the concrete dimensions, if the shape is fully known.
func (s Shape) ToInts() ([]int, bool) {
	if !s.IsFullyKnown() {
		return nil, false
	}
	ints := make([]int, s.rank)
	for axis, d := range s.dims[:s.rank] {
		ints[axis] = d.value
	}
	return ints, true
}

// Length returns the number of elements of a tensor with this shape, the product of its dimensions.
func (s Shape) Length() Dim {
	if !s.hasRank {
		return Unknown()
	}
	length := One
	for _, d := range s.dims[:s.rank] {
		length = length.Mul(d)
	}
	return length
}

// Equal returns whether both shapes carry exactly the same information.
func (s Shape) Equal(other Shape) bool { return s == other }

// String implements fmt.Stringer. E.g.: "(?, 3, 224, 224)", "()" for a scalar and "(*)" for unknown rank.
func (s Shape) String() string {
	if !s.hasRank {
		return "(*)"
	}
	parts := make([]string, s.rank)
	for axis, d := range s.dims[:s.rank] {
		parts[axis] = d.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// DeclareRank returns the shape constrained to the given rank: an unknown-rank shape becomes a shape of
// that rank with unknown dimensions. It fails with ErrRankMismatch if a different rank was already known.
func (s Shape) DeclareRank(rank int) (Shape, error) {
	if !s.hasRank {
		return newShape(rank)
	}
	if s.rank != rank {
		return s, errors.Wrapf(ErrRankMismatch, "shape %s declared with rank %d", s, rank)
	}
	return s, nil
}

// MaxDefinedShape joins two shapes known to describe the same tensor, dimension by dimension.
// It fails with ErrRankMismatch if both ranks are known and differ, or ErrValueMismatch if concrete dimensions
// disagree.
func MaxDefinedShape(a, b Shape) (Shape, error) {
	if !a.hasRank {
		return b, nil
	}
	if !b.hasRank {
		return a, nil
	}
	if a.rank != b.rank {
		return Shape{}, errors.Wrapf(ErrRankMismatch, "merging shapes %s and %s", a, b)
	}
	out := a
	for axis := range a.rank {
		d, err := MaxDefinedDim(a.dims[axis], b.dims[axis])
		if err != nil {
			return Shape{}, errors.WithMessagef(err, "merging shapes %s and %s at axis %d", a, b, axis)
		}
		out.dims[axis] = d
	}
	return out, nil
}
