package symbolic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// someDims is a mix of all kinds of dimensions, used by the law tests.
var someDims = []Dim{Unknown(), Zero, One, DimValue(3), DimValue(7), DimParam('N'), DimParam('M')}

func TestDimArithmetic(t *testing.T) {
	n := DimParam('N')
	assert.Equal(t, DimValue(5), DimValue(2).Add(DimValue(3)))
	assert.Equal(t, n, Zero.Add(n))
	assert.Equal(t, Unknown(), n.Add(One))

	assert.Equal(t, DimValue(6), DimValue(2).Mul(DimValue(3)))
	assert.Equal(t, Zero, Zero.Mul(Unknown()))
	assert.Equal(t, n, One.Mul(n))
	assert.Equal(t, Unknown(), n.Mul(DimParam('M')))

	assert.Equal(t, DimValue(4), DimValue(3).AddInt(1))
	assert.Equal(t, Unknown(), n.AddInt(2))
	assert.Equal(t, n, n.AddInt(0))
	require.Panics(t, func() { _ = DimValue(1).AddInt(-2) })
	require.Panics(t, func() { _ = DimValue(-1) })

	t.Run("Sub", func(t *testing.T) {
		for _, x := range someDims {
			if x.IsUnknown() {
				assert.Equal(t, Unknown(), x.Sub(x))
				continue
			}
			assert.Equal(t, Zero, x.Sub(x), "%s - %s", x, x)
		}
		assert.Equal(t, Unknown(), n.Sub(DimParam('M')))
		assert.Equal(t, DimValue(4), DimValue(7).Sub(DimValue(3)))
		require.Panics(t, func() { _ = DimValue(3).Sub(DimValue(7)) })
	})

	t.Run("Div", func(t *testing.T) {
		d, err := DimValue(12).Div(DimValue(4))
		require.NoError(t, err)
		assert.Equal(t, DimValue(3), d)

		d, err = n.Div(n)
		require.NoError(t, err)
		assert.Equal(t, One, d)

		d, err = n.Div(DimValue(2))
		require.NoError(t, err)
		assert.Equal(t, Unknown(), d)

		_, err = DimValue(12).Div(DimValue(5))
		require.ErrorIs(t, err, ErrNonIntegerDivision)
		_, err = n.Div(Zero)
		require.ErrorIs(t, err, ErrDivideByZeroDimension)
	})

	t.Run("DivideWithRounding", func(t *testing.T) {
		assert.Equal(t, DimValue(3), DimValue(7).DivideWithRounding(2, RoundFloor))
		assert.Equal(t, DimValue(4), DimValue(7).DivideWithRounding(2, RoundCeil))
		assert.Equal(t, DimValue(2), DimValue(5).DivideWithRounding(3, RoundNearest))
		assert.Equal(t, n, n.DivideWithRounding(1, RoundCeil))
		assert.Equal(t, Unknown(), n.DivideWithRounding(2, RoundCeil))
	})
}

func TestBroadcastDim(t *testing.T) {
	for a := range 5 {
		for b := range 5 {
			got, err := BroadcastDim(DimValue(a), DimValue(b))
			if a == b || a == 1 || b == 1 {
				require.NoError(t, err, "Broadcast(%d, %d)", a, b)
				want := a
				if a == 1 {
					want = b
				}
				assert.Equal(t, DimValue(want), got, "Broadcast(%d, %d)", a, b)
			} else {
				require.ErrorIs(t, err, ErrBroadcast, "Broadcast(%d, %d)", a, b)
			}
		}
	}
	for _, x := range someDims {
		got, err := BroadcastDim(x, One)
		require.NoError(t, err)
		assert.Equal(t, x, got)
		got, err = BroadcastDim(One, x)
		require.NoError(t, err)
		assert.Equal(t, x, got)
	}
	got, err := BroadcastDim(DimParam('N'), DimValue(3))
	require.NoError(t, err)
	assert.Equal(t, Unknown(), got)
}

func TestMaxDefinedDim(t *testing.T) {
	for _, a := range someDims {
		got, err := MaxDefinedDim(a, a)
		require.NoError(t, err)
		assert.Equal(t, a, got, "idempotent for %s", a)
		for _, b := range someDims {
			ab, errAB := MaxDefinedDim(a, b)
			ba, errBA := MaxDefinedDim(b, a)
			if a.IsValue() && b.IsValue() && a != b {
				require.ErrorIs(t, errAB, ErrValueMismatch)
				require.ErrorIs(t, errBA, ErrValueMismatch)
				continue
			}
			require.NoError(t, errAB)
			require.NoError(t, errBA)
			assert.Equal(t, ab, ba, "commutative for %s, %s", a, b)
		}
	}
	got, err := MaxDefinedDim(Unknown(), DimParam('N'))
	require.NoError(t, err)
	assert.Equal(t, DimParam('N'), got)
	got, err = MaxDefinedDim(DimParam('N'), DimValue(3))
	require.NoError(t, err)
	assert.Equal(t, DimValue(3), got)
}

func TestGCD(t *testing.T) {
	assert.Equal(t, DimValue(4), GCD(DimValue(12), DimValue(8)))
	for _, x := range someDims {
		assert.Equal(t, One, GCD(x, One))
		if x.IsValue() {
			assert.Equal(t, x, GCD(x, x))
		}
	}
	assert.Equal(t, Unknown(), GCD(DimParam('N'), DimValue(4)))
	assert.Equal(t, Unknown(), GCD(Unknown(), DimValue(4)))
}

func TestDimComparisons(t *testing.T) {
	assert.True(t, DimValue(2).LessThan(DimValue(3)))
	assert.False(t, DimValue(2).LessThan(DimParam('N')))
	assert.False(t, DimParam('N').GreaterOrEqual(DimParam('N')))
	assert.True(t, DimValue(3).GreaterOrEqual(DimValue(3)))
	assert.True(t, DimValue(4).GreaterThan(DimValue(3)))
	assert.True(t, DimValue(3).LessOrEqual(DimValue(3)))
}

func TestDimString(t *testing.T) {
	assert.Equal(t, "?", Unknown().String())
	assert.Equal(t, "7", DimValue(7).String())
	assert.Equal(t, "N", DimParam('N').String())
	assert.Equal(t, "symbolic.DimParam('N')", DimParam('N').GoString())
}

func TestElement(t *testing.T) {
	n := ElementParam('N')
	assert.Equal(t, ElementValue(-3), ElementValue(2).Sub(ElementValue(5)))
	assert.Equal(t, ElementValue(0), n.Sub(n))
	assert.Equal(t, ElementValue(-2), ElementValue(-7).Div(ElementValue(3)))
	assert.Equal(t, UnknownElement(), ElementValue(1).Div(ElementValue(0)))
	assert.Equal(t, ElementValue(2), ElementValue(-7).Mod(ElementValue(3)))
	assert.Equal(t, ElementValue(-1), ElementValue(7).Mod(ElementValue(-4)))
	assert.Equal(t, n, n.Abs())
	assert.Equal(t, ElementValue(3), ElementValue(-3).Abs())
	assert.Equal(t, ElementValue(1), ElementBool(true))
	assert.Equal(t, Unknown(), ElementValue(-1).ToDim())
	assert.Equal(t, DimParam('N'), n.ToDim())
	assert.Equal(t, n, DimParam('N').ToElement())

	_, err := MaxDefinedElement(ElementValue(1), ElementValue(2))
	require.ErrorIs(t, err, ErrValueMismatch)
	got, err := MaxDefinedElement(UnknownElement(), n)
	require.NoError(t, err)
	assert.Equal(t, n, got)
}
