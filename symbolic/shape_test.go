package symbolic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeBasics(t *testing.T) {
	s := MakeShape(Unknown(), DimValue(3), DimParam('N'))
	assert.True(t, s.HasRank())
	assert.Equal(t, 3, s.Rank())
	assert.Equal(t, DimParam('N'), s.Dim(-1))
	assert.Equal(t, "(?, 3, N)", s.String())
	assert.Equal(t, "()", Scalar().String())
	assert.Equal(t, "(*)", UnknownShape().String())
	assert.False(t, s.IsFullyKnown())
	assert.Panics(t, func() { _ = UnknownShape().Rank() })
	assert.Panics(t, func() { _ = UnknownOfRank(MaxRank + 1) })

	_, err := s.NormalizeAxis(3)
	require.ErrorIs(t, err, ErrAxisOutOfRange)
	axis, err := s.NormalizeAxis(-3)
	require.NoError(t, err)
	assert.Equal(t, 0, axis)

	// Round trip of a fully known shape.
	ints, ok := Make(2, 3, 4).ToInts()
	require.True(t, ok)
	assert.Equal(t, []int{2, 3, 4}, ints)
	assert.Equal(t, Make(2, 3, 4), Make(ints...))
	assert.Equal(t, DimValue(24), Make(2, 3, 4).Length())

	// Shapes built in different ways compare equal.
	assert.True(t, Make(2, 3).Equal(MakeShape(Make(2, 3, 4).Dims()[:2]...)))
	assert.False(t, Make(2, 3).Equal(UnknownOfRank(2)))
}

func TestDeclareRankAndMerge(t *testing.T) {
	s, err := UnknownShape().DeclareRank(2)
	require.NoError(t, err)
	assert.Equal(t, UnknownOfRank(2), s)
	_, err = Make(2, 3).DeclareRank(3)
	require.ErrorIs(t, err, ErrRankMismatch)

	merged, err := MaxDefinedShape(MakeShape(Unknown(), DimParam('N')), MakeShape(DimValue(5), Unknown()))
	require.NoError(t, err)
	assert.Equal(t, MakeShape(DimValue(5), DimParam('N')), merged)

	merged, err = MaxDefinedShape(UnknownShape(), Make(1, 2))
	require.NoError(t, err)
	assert.Equal(t, Make(1, 2), merged)

	_, err = MaxDefinedShape(Make(1, 2), Make(1, 3))
	require.ErrorIs(t, err, ErrValueMismatch)
	_, err = MaxDefinedShape(Make(1, 2), Make(1, 2, 3))
	require.ErrorIs(t, err, ErrRankMismatch)
}

func TestBroadcastShapes(t *testing.T) {
	image := MakeShape(Unknown(), DimValue(3), DimValue(224), DimValue(224))
	got, err := Broadcast(image, Scalar())
	require.NoError(t, err)
	assert.Equal(t, image, got)

	got, err = Broadcast(Make(3, 1, 5), MakeShape(DimParam('N'), One))
	require.NoError(t, err)
	assert.Equal(t, MakeShape(DimValue(3), DimParam('N'), DimValue(5)), got)

	got, err = Broadcast(UnknownShape(), Make(2))
	require.NoError(t, err)
	assert.False(t, got.HasRank())

	_, err = Broadcast(Make(2, 3), Make(4, 3))
	require.ErrorIs(t, err, ErrBroadcast)

	got, err = BroadcastAll(Make(2, 1), Make(1, 3), Scalar())
	require.NoError(t, err)
	assert.Equal(t, Make(2, 3), got)
}

func TestMatMulShape(t *testing.T) {
	tests := []struct {
		a, b, want Shape
	}{
		{Make(2, 3), Make(3, 4), Make(2, 4)},
		{Make(3), Make(3, 4), Make(4)},
		{Make(2, 3), Make(3), Make(2)},
		{Make(3), Make(3), Scalar()},
		{Make(5, 1, 2, 3), Make(7, 3, 4), Make(5, 7, 2, 4)},
		{MakeShape(DimParam('B'), DimValue(2), DimValue(3)), MakeShape(DimValue(3), Unknown()),
			MakeShape(DimParam('B'), DimValue(2), Unknown())},
	}
	for _, test := range tests {
		got, err := MatMul(test.a, test.b)
		require.NoError(t, err, "MatMul(%s, %s)", test.a, test.b)
		assert.Equal(t, test.want, got, "MatMul(%s, %s)", test.a, test.b)
	}
	_, err := MatMul(Make(2, 3), Make(4, 5))
	require.ErrorIs(t, err, ErrValueMismatch)
	_, err = MatMul(Scalar(), Make(4, 5))
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestReduce(t *testing.T) {
	s := MakeShape(DimParam('N'), DimValue(0), DimValue(5))
	got, err := s.Reduce([]int{1, -1}, true)
	require.NoError(t, err)
	assert.Equal(t, MakeShape(DimParam('N'), Zero, One), got)

	got, err = s.Reduce([]int{0}, false)
	require.NoError(t, err)
	assert.Equal(t, Make(0, 5), got)

	got, err = s.Reduce(nil, false)
	require.NoError(t, err)
	assert.Equal(t, Scalar(), got)

	got, err = UnknownShape().Reduce(nil, false)
	require.NoError(t, err)
	assert.Equal(t, Scalar(), got)

	_, err = s.Reduce([]int{1, 1}, false)
	require.ErrorIs(t, err, ErrInvalidValue)
	_, err = s.Reduce([]int{3}, false)
	require.ErrorIs(t, err, ErrAxisOutOfRange)
}

func TestSliceDim(t *testing.T) {
	slice := func(dim Dim, start, end, step int) Dim {
		got, err := SliceDim(dim, ElementValue(start), ElementValue(end), ElementValue(step))
		require.NoError(t, err)
		return got
	}
	assert.Equal(t, DimValue(6), slice(DimValue(10), 2, 8, 1))
	assert.Equal(t, DimValue(10), slice(DimValue(10), -1, math.MinInt32, -1))
	assert.Equal(t, DimValue(10), slice(DimValue(10), -1, math.MinInt64, -1))
	assert.Equal(t, DimValue(3), slice(DimValue(10), 0, 8, 3))
	assert.Equal(t, DimValue(4), slice(DimValue(10), 8, 0, -2))
	assert.Equal(t, DimValue(2), slice(DimValue(10), -3, -1, 1))
	assert.Equal(t, Zero, slice(DimValue(10), 8, 2, 1))
	assert.Equal(t, DimValue(10), slice(DimValue(10), -100, 100, 1))
	assert.Equal(t, Zero, slice(Zero, -1, math.MinInt32, -1))

	// Extreme steps select a single element.
	assert.Equal(t, One, slice(DimValue(10), 0, 10, math.MaxInt64))
	assert.Equal(t, One, slice(DimValue(10), 9, math.MinInt64, math.MinInt64))
	assert.Equal(t, One, slice(DimValue(10), 3, math.MaxInt64, math.MaxInt64-1))
	assert.Equal(t, Zero, slice(DimValue(10), 9, 9, math.MinInt64))
	first, count := SliceRange(10, -1, math.MinInt64, math.MinInt64)
	assert.Equal(t, 9, first)
	assert.Equal(t, 1, count)

	// Symbolic shortcuts.
	n := DimParam('N')
	assert.Equal(t, n, slice(n, 0, math.MaxInt32, 1))
	assert.Equal(t, n, slice(n, -1, math.MinInt32, -1))
	assert.Equal(t, Zero, slice(n, 3, 3, 1))
	assert.Equal(t, Unknown(), slice(n, 1, math.MaxInt32, 1))
	got, err := SliceDim(n, ElementValue(0), ElementParam('N'), ElementValue(1))
	require.NoError(t, err)
	assert.Equal(t, n, got)
	got, err = SliceDim(Unknown(), ElementParam('K'), ElementParam('K'), ElementValue(1))
	require.NoError(t, err)
	assert.Equal(t, Zero, got)

	_, err = SliceDim(n, ElementValue(0), ElementValue(1), ElementValue(0))
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestSqueezeUnsqueeze(t *testing.T) {
	s := MakeShape(One, DimParam('N'), One, DimValue(3))
	got, err := s.Squeeze([]int{0, -2})
	require.NoError(t, err)
	assert.Equal(t, MakeShape(DimParam('N'), DimValue(3)), got)

	_, err = s.Squeeze([]int{3})
	require.ErrorIs(t, err, ErrInvalidValue)

	// Inferred axes need all dimensions known.
	got, err = s.Squeeze(nil)
	require.NoError(t, err)
	assert.False(t, got.HasRank())
	got, err = Make(1, 4, 1).Squeeze(nil)
	require.NoError(t, err)
	assert.Equal(t, Make(4), got)

	got, err = Make(4, 5).Unsqueeze([]int{0, -1})
	require.NoError(t, err)
	assert.Equal(t, Make(1, 4, 5, 1), got)

	_, err = Make(1, 1, 1, 1, 1, 1, 1).Unsqueeze([]int{0, 1})
	require.ErrorIs(t, err, ErrMaxRankExceeded)
	_, err = Make(4).Unsqueeze([]int{0, 0})
	require.ErrorIs(t, err, ErrInvalidValue)
}

func TestConcat(t *testing.T) {
	got, err := Concat([]Shape{Make(5, 3), Make(5, 4)}, 1)
	require.NoError(t, err)
	assert.Equal(t, Make(5, 7), got)

	_, err = Concat([]Shape{Make(5, 3), Make(6, 4)}, 1)
	require.ErrorIs(t, err, ErrValueMismatch)

	got, err = Concat([]Shape{MakeShape(Unknown(), DimValue(2)), MakeShape(DimValue(5), DimParam('N'))}, -1)
	require.NoError(t, err)
	assert.Equal(t, MakeShape(DimValue(5), Unknown()), got)

	got, err = Concat([]Shape{Make(2), MakeShape(Zero)}, 0)
	require.NoError(t, err)
	assert.Equal(t, Make(2), got)

	got, err = Concat([]Shape{Make(5, 3), UnknownShape()}, 0)
	require.NoError(t, err)
	assert.False(t, got.HasRank())

	_, err = Concat([]Shape{Make(5, 3), Make(5)}, 0)
	require.ErrorIs(t, err, ErrRankMismatch)
}

func TestReshape(t *testing.T) {
	got, err := Make(2, 3, 4).Reshape(PartialFromInts(-1, 4), false)
	require.NoError(t, err)
	assert.Equal(t, Make(6, 4), got)

	n := DimParam('N')
	got, err = MakeShape(n, DimValue(3), DimValue(4)).Reshape(PartialFromElements(ElementParam('N'), ElementValue(-1)), false)
	require.NoError(t, err)
	assert.Equal(t, MakeShape(n, DimValue(12)), got)

	got, err = MakeShape(n, DimValue(3), DimValue(4)).Reshape(PartialFromInts(0, 0, 2, 2), false)
	require.NoError(t, err)
	assert.Equal(t, MakeShape(n, DimValue(3), DimValue(2), DimValue(2)), got)

	got, err = Make(0, 3).Reshape(PartialFromInts(0, 3), true)
	require.NoError(t, err)
	assert.Equal(t, Make(0, 3), got)

	got, err = MakeShape(Unknown(), DimValue(4)).Reshape(PartialFromInts(-1, 2), false)
	require.NoError(t, err)
	assert.Equal(t, MakeShape(Unknown(), DimValue(2)), got)

	got, err = Make(2, 3).Reshape(UnknownPartialArray(), false)
	require.NoError(t, err)
	assert.False(t, got.HasRank())

	_, err = Make(2, 3).Reshape(PartialFromInts(-1, -1), false)
	require.ErrorIs(t, err, ErrInvalidValue)
	_, err = Make(2, 3).Reshape(PartialFromInts(4, -1), false)
	require.ErrorIs(t, err, ErrNonIntegerDivision)
	_, err = Make(2, 3).Reshape(PartialFromInts(5), false)
	require.ErrorIs(t, err, ErrValueMismatch)
}

func TestOtherShapeOps(t *testing.T) {
	t.Run("Pad", func(t *testing.T) {
		got, err := Make(4, 5).Pad([]Element{ElementValue(1), ElementValue(-1), ElementValue(2), ElementValue(0)})
		require.NoError(t, err)
		assert.Equal(t, Make(7, 4), got)
		got, err = Make(4, 5).Pad([]Element{UnknownElement(), ElementValue(0), ElementValue(0), ElementValue(0)})
		require.NoError(t, err)
		assert.Equal(t, MakeShape(Unknown(), DimValue(5)), got)
		_, err = Make(1).Pad([]Element{ElementValue(-1), ElementValue(-1)})
		require.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("Tile", func(t *testing.T) {
		got, err := MakeShape(DimParam('N'), DimValue(3)).Tile([]Element{ElementValue(1), ElementValue(2)})
		require.NoError(t, err)
		assert.Equal(t, MakeShape(DimParam('N'), DimValue(6)), got)
		_, err = Make(2).Tile([]Element{ElementValue(1), ElementValue(2)})
		require.ErrorIs(t, err, ErrRankMismatch)
	})

	t.Run("Transpose", func(t *testing.T) {
		got, err := MakeShape(DimParam('N'), DimValue(3), DimValue(5)).Transpose([]int{2, 0, 1})
		require.NoError(t, err)
		assert.Equal(t, MakeShape(DimValue(5), DimParam('N'), DimValue(3)), got)
		got, err = Make(2, 3).Transpose(nil)
		require.NoError(t, err)
		assert.Equal(t, Make(3, 2), got)
		_, err = Make(2, 3).Transpose([]int{0, 0})
		require.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("Flatten", func(t *testing.T) {
		got, err := Make(2, 3, 4).Flatten(1)
		require.NoError(t, err)
		assert.Equal(t, Make(2, 12), got)
		got, err = Make(2, 3, 4).Flatten(0)
		require.NoError(t, err)
		assert.Equal(t, Make(1, 24), got)
		got, err = MakeShape(DimParam('N'), DimValue(3)).Flatten(1)
		require.NoError(t, err)
		assert.Equal(t, MakeShape(DimParam('N'), DimValue(3)), got)
	})

	t.Run("Gather", func(t *testing.T) {
		got, err := Gather(Make(5, 6, 7), MakeShape(DimParam('N'), DimValue(2)), 1)
		require.NoError(t, err)
		assert.Equal(t, MakeShape(DimValue(5), DimParam('N'), DimValue(2), DimValue(7)), got)
		got, err = Gather(Make(5), Scalar(), 0)
		require.NoError(t, err)
		assert.Equal(t, Scalar(), got)
	})

	t.Run("Resize", func(t *testing.T) {
		got, err := MakeShape(DimParam('N'), DimValue(3), DimValue(7)).Resize([]float32{1, 1, 1.5})
		require.NoError(t, err)
		assert.Equal(t, MakeShape(DimParam('N'), DimValue(3), DimValue(10)), got)
	})

	t.Run("ConvOutputDim", func(t *testing.T) {
		got, err := ConvOutputDim(DimValue(224), 7, 2, 1, 6, false)
		require.NoError(t, err)
		assert.Equal(t, DimValue(112), got)
		got, err = ConvOutputDim(DimValue(5), 2, 2, 1, 0, true)
		require.NoError(t, err)
		assert.Equal(t, DimValue(3), got)
		got, err = ConvOutputDim(DimParam('H'), 1, 1, 1, 0, false)
		require.NoError(t, err)
		assert.Equal(t, DimParam('H'), got)
		_, err = ConvOutputDim(DimValue(2), 5, 1, 1, 0, false)
		require.ErrorIs(t, err, ErrInvalidValue)
	})
}
