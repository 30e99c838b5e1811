package graphir

import (
	"fmt"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/shapegraph/inference"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

var batchDim = symbolic.DimParam('N')

func newTestBuilder() (*Builder, *RecordingDiagnostics) {
	diagnostics := &RecordingDiagnostics{}
	return NewBuilder().WithDiagnostics(diagnostics), diagnostics
}

// checkTopological verifies the ordering properties of a compiled model.
func checkTopological(t *testing.T, model *Model) {
	t.Helper()
	for ii, input := range model.Inputs {
		assert.Equal(t, ii, input.ID, "input %q", input.Name)
	}
	for _, op := range model.Operators {
		for _, in := range op.Inputs {
			for _, out := range op.Outputs {
				if in != inference.NoValue {
					assert.Less(t, in, out, "%s(%v) -> %v", op.Op, op.Inputs, op.Outputs)
				}
			}
		}
	}
}

func TestBuilder(t *testing.T) {
	t.Run("inference", func(t *testing.T) {
		b, diagnostics := newTestBuilder()
		x := must.M1(b.AddNamedInput("x", dtypes.Float32, symbolic.MakeShape(batchDim, symbolic.DimValue(3))))
		assert.Equal(t, "#0", x.String())
		shape := must.M1(b.Apply(inference.OpShape, nil, x))
		assert.Equal(t, "int64(2)=[N, 3]", b.Info(shape).String())
		assert.Equal(t, dtypes.Int64, b.DType(shape))

		y := must.M1(b.Apply(inference.OpAdd, nil, x, must.M1(b.AddConstantValues([]int{3}, []float32{1, 2, 3}))))
		assert.Equal(t, "(N, 3)", b.Shape(y).String())
		assert.Equal(t, 4, b.NumValues())
		require.Len(t, diagnostics.Debug, 2)
		assert.Contains(t, diagnostics.Debug[1], "Add")
	})

	t.Run("failed operators are not added", func(t *testing.T) {
		b, _ := newTestBuilder()
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(2, 3)))
		y := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(4)))
		_, err := b.Apply(inference.OpAdd, nil, x, y)
		require.ErrorIs(t, err, symbolic.ErrBroadcast)
		assert.Equal(t, 2, b.NumValues())

		_, err = b.Apply(inference.OpMul, nil, x, must.M1(b.AddScalar(2)))
		require.ErrorIs(t, err, inference.ErrDTypeMismatch)
		b.AllowDTypePromotion(true)
		z := must.M1(b.Apply(inference.OpMul, nil, x, must.M1(b.AddScalar(2))))
		assert.Equal(t, dtypes.Float32, b.DType(z))
	})

	t.Run("multiple outputs", func(t *testing.T) {
		b, _ := newTestBuilder()
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(10, 4)))
		parts := must.M1(b.ApplyOperator(inference.OpSplit, inference.Attributes{"axis": 0, "num_outputs": 2}, x))
		require.Len(t, parts, 2)
		assert.Equal(t, "(5, 4)", b.Shape(parts[1]).String())
		_, err := b.Apply(inference.OpSplit, inference.Attributes{"axis": 0, "num_outputs": 2}, x)
		require.Error(t, err)
	})

	t.Run("optional inputs", func(t *testing.T) {
		b, _ := newTestBuilder()
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(1, 3, 8, 8)))
		sizes := must.M1(b.AddInts(1, 3, 16, 16))
		resized := must.M1(b.Apply(inference.OpResize, nil, x, None(), None(), sizes))
		assert.Equal(t, "(1, 3, 16, 16)", b.Shape(resized).String())
		model := must.M1(b.Compile(resized))
		require.Len(t, model.Operators, 1)
		assert.Equal(t, []int{0, inference.NoValue, inference.NoValue, 1}, model.Operators[0].Inputs)
	})

	t.Run("warnings", func(t *testing.T) {
		b, diagnostics := newTestBuilder()
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(1, 3, 8, 8)))
		scales := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(4)))
		resized := must.M1(b.Apply(inference.OpResize, nil, x, None(), scales))
		assert.Equal(t, "(?, ?, ?, ?)", b.Shape(resized).String())
		require.Len(t, diagnostics.Warnings, 1)
		assert.Contains(t, diagnostics.Warnings[0], "scales are not known")
	})

	t.Run("inputs", func(t *testing.T) {
		b, _ := newTestBuilder()
		_, err := b.AddNamedInput("x", dtypes.Float32, symbolic.Make(2))
		require.NoError(t, err)
		_, err = b.AddNamedInput("x", dtypes.Float32, symbolic.Make(2))
		require.ErrorIs(t, err, ErrInputMismatch)
		_, err = b.AddNamedInput("y", dtypes.InvalidDType, symbolic.Make(2))
		require.ErrorIs(t, err, inference.ErrDTypeMismatch)

		z := must.M1(b.AddGoMLXInput("z", shapes.Make(dtypes.Int32, 5, 7)))
		assert.Equal(t, "int32(5, 7)", b.Info(z).String())
		assert.Equal(t, "input_2", must.M1(b.Compile(must.M1(b.AddInput(dtypes.Float32, symbolic.Scalar())))).Inputs[2].Name)
	})

	t.Run("foreign and absent values", func(t *testing.T) {
		b, _ := newTestBuilder()
		other, _ := newTestBuilder()
		foreign := must.M1(other.AddInput(dtypes.Float32, symbolic.Make(2)))
		_, err := b.Apply(inference.OpNeg, nil, foreign)
		require.ErrorIs(t, err, ErrDanglingInput)
		_, err = b.Compile(foreign)
		require.ErrorIs(t, err, ErrDanglingInput)
		_, err = b.Compile(None())
		require.ErrorIs(t, err, ErrDanglingInput)
		assert.Equal(t, dtypes.InvalidDType, b.DType(foreign))
		assert.Equal(t, "None", None().String())
	})

	t.Run("finalized", func(t *testing.T) {
		b, _ := newTestBuilder()
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(2)))
		_, err := b.Compile(x)
		require.NoError(t, err)
		_, err = b.AddInput(dtypes.Float32, symbolic.Make(2))
		require.ErrorIs(t, err, ErrBuilderFinalized)
		_, err = b.Apply(inference.OpNeg, nil, x)
		require.ErrorIs(t, err, ErrBuilderFinalized)
		_, err = b.AddScalar(1)
		require.ErrorIs(t, err, ErrBuilderFinalized)
	})
}

func TestCompile(t *testing.T) {
	t.Run("diamond", func(t *testing.T) {
		b, _ := newTestBuilder()
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(4)))
		one := must.M1(b.AddConstantValues(nil, []float32{1}))
		left := must.M1(b.Apply(inference.OpAdd, nil, x, one))
		right := must.M1(b.Apply(inference.OpSub, nil, x, one))
		top := must.M1(b.Apply(inference.OpMul, nil, left, right))
		model := must.M1(b.Compile(top))
		checkTopological(t, model)
		assert.Len(t, model.Constants, 1)
		assert.Len(t, model.Operators, 3)
		assert.Equal(t, 5, model.NumValues())
		assert.Equal(t, []int{4}, model.OutputIDs())
	})

	t.Run("unused values", func(t *testing.T) {
		b, _ := newTestBuilder()
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(4)))
		unused := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(4)))
		_ = must.M1(b.Apply(inference.OpNeg, nil, unused))
		y := must.M1(b.Apply(inference.OpRelu, nil, x))
		model := must.M1(b.Compile(y, x))
		checkTopological(t, model)
		assert.Len(t, model.Inputs, 2)
		assert.Len(t, model.Operators, 1)
		assert.Equal(t, []int{2, 0}, model.OutputIDs())
		assert.Equal(t, "output_1", model.Outputs[1].Name)
	})

	t.Run("names", func(t *testing.T) {
		b, _ := newTestBuilder()
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(4)))
		model := must.M1(b.CompileWithNames([]string{"identity"}, []ValueRef{x}))
		assert.Equal(t, "identity", model.Outputs[0].Name)

		b, _ = newTestBuilder()
		x = must.M1(b.AddInput(dtypes.Float32, symbolic.Make(4)))
		_, err := b.CompileWithNames([]string{"a", "b"}, []ValueRef{x})
		require.Error(t, err)
	})

	t.Run("deep chain", func(t *testing.T) {
		b, _ := newTestBuilder()
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(4)))
		for range 10_000 {
			x = must.M1(b.Apply(inference.OpRelu, nil, x))
		}
		model := must.M1(b.Compile(x))
		assert.Len(t, model.Operators, 10_000)
		assert.Equal(t, []int{10_000}, model.OutputIDs())
	})
}

func TestPlaceholder(t *testing.T) {
	t.Run("bound", func(t *testing.T) {
		b, _ := newTestBuilder()
		p := must.M1(b.Placeholder(dtypes.Float32, symbolic.MakeShape(symbolic.Unknown(), symbolic.DimValue(3))))
		z := must.M1(b.Apply(inference.OpRelu, nil, p))
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.MakeShape(batchDim, symbolic.DimValue(3))))
		y := must.M1(b.Apply(inference.OpNeg, nil, x))
		require.NoError(t, b.Bind(p, y))
		require.ErrorIs(t, b.Bind(p, y), ErrInputMismatch)

		model := must.M1(b.Compile(z))
		checkTopological(t, model)
		require.Len(t, model.Operators, 2)
		assert.Equal(t, inference.OpNeg, model.Operators[0].Op)
		assert.Equal(t, []int{1}, model.Operators[1].Inputs)
		assert.Equal(t, 3, model.NumValues())
	})

	t.Run("bind errors", func(t *testing.T) {
		b, _ := newTestBuilder()
		p := must.M1(b.Placeholder(dtypes.Float32, symbolic.Make(3)))
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(3)))
		require.ErrorIs(t, b.Bind(x, p), ErrInputMismatch)
		require.ErrorIs(t, b.Bind(p, must.M1(b.AddInts(1, 2, 3))), inference.ErrDTypeMismatch)
		require.ErrorIs(t, b.Bind(p, must.M1(b.AddInput(dtypes.Float32, symbolic.Make(4)))), symbolic.ErrValueMismatch)
		require.ErrorIs(t, b.Bind(p, None()), ErrDanglingInput)

		numValues := b.NumValues()
		_, err := b.Placeholder(dtypes.InvalidDType, symbolic.Make(3))
		require.ErrorIs(t, err, inference.ErrDTypeMismatch)
		assert.Equal(t, numValues, b.NumValues())
	})

	t.Run("unbound", func(t *testing.T) {
		b, _ := newTestBuilder()
		p := must.M1(b.Placeholder(dtypes.Float32, symbolic.Make(3)))
		y := must.M1(b.Apply(inference.OpNeg, nil, p))
		_, err := b.Compile(y)
		require.ErrorIs(t, err, ErrDanglingInput)
	})

	t.Run("cycle", func(t *testing.T) {
		b, _ := newTestBuilder()
		x := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(3)))
		p := must.M1(b.Placeholder(dtypes.Float32, symbolic.Make(3)))
		y := must.M1(b.Apply(inference.OpAdd, nil, p, x))
		require.NoError(t, b.Bind(p, y))
		_, err := b.Compile(y)
		require.ErrorIs(t, err, ErrCycleDetected)
	})
}

func TestConstants(t *testing.T) {
	b, _ := newTestBuilder()
	ints := must.M1(b.AddInts(2, 3, -1))
	assert.Equal(t, "int64(3)=[2, 3, -1]", b.Info(ints).String())
	assert.Equal(t, "int64()=[7]", b.Info(must.M1(b.AddScalar(7))).String())

	flags := must.M1(b.AddConstantValues([]int{2}, []bool{true, false}))
	assert.Equal(t, "bool(2)=[1, 0]", b.Info(flags).String())

	halves := must.M1(b.AddConstantValues([]int{2}, []float16.Float16{float16.Fromfloat32(0.5), float16.Fromfloat32(1)}))
	assert.Equal(t, "float16(2)", b.Info(halves).String())

	raw := must.M1(b.AddConstant(dtypes.Int32, []int{2}, []byte{1, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}))
	assert.Equal(t, []int{1, -1}, must.M1(b.Materialize(raw)))

	_, err := b.AddConstantValues([]int{3}, []float32{1, 2})
	require.ErrorIs(t, err, symbolic.ErrValueMismatch)
	_, err = b.AddConstant(dtypes.Int64, []int{-1}, nil)
	require.ErrorIs(t, err, symbolic.ErrInvalidValue)
	_, err = b.AddConstantValues(nil, []string{"a"})
	require.Error(t, err)

	// Contents beyond the maximum length are not tracked.
	b.WithMaxPartialLength(2)
	long := must.M1(b.AddInts(1, 2, 3))
	assert.Equal(t, "int64(3)", b.Info(long).String())
	assert.Equal(t, 2, b.Config().MaxPartialLength)
}

func TestMaterialize(t *testing.T) {
	b, _ := newTestBuilder()
	x := must.M1(b.AddNamedInput("x", dtypes.Float32, symbolic.MakeShape(batchDim, symbolic.DimValue(3))))
	shape := must.M1(b.Apply(inference.OpShape, nil, x))
	features := must.M1(b.Apply(inference.OpGather, nil, shape, must.M1(b.AddInts(1))))
	assert.Equal(t, []int{3}, must.M1(b.Materialize(features)))

	_, err := b.Materialize(shape)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `inputs=[]`)
	assert.Contains(t, err.Error(), `unresolved shapes of ["x"]`)

	// The data of x is never needed through Shape: only the data of offsets is.
	offsets := must.M1(b.AddNamedInput("offsets", dtypes.Int64, symbolic.Make(2)))
	shifted := must.M1(b.Apply(inference.OpAdd, nil, shape, offsets))
	_, err = b.Materialize(shifted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `inputs=["offsets"]`)
	assert.Contains(t, err.Error(), `unresolved shapes of ["x"]`)

	relu := must.M1(b.Apply(inference.OpRelu, nil, x))
	_, err = b.Materialize(must.M1(b.Apply(inference.OpShape, nil, relu)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `inputs=[]`)
	assert.Contains(t, err.Error(), fmt.Sprintf(`unresolved shapes of ["%s"]`, relu))

	p := must.M1(b.Placeholder(dtypes.Int64, symbolic.Make(2)))
	sum := must.M1(b.Apply(inference.OpAdd, nil, p, must.M1(b.AddInts(1, 1))))
	_, err = b.Materialize(sum)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "placeholders=[")
}

func TestProvenance(t *testing.T) {
	b, _ := newTestBuilder()
	x := must.M1(b.AddInput(dtypes.Float32, symbolic.MakeShape(batchDim, symbolic.DimValue(3))))
	static := must.M1(b.AddInput(dtypes.Float32, symbolic.Make(2, 3)))
	axis := must.M1(b.AddInts(1))

	assert.Equal(t, ProvenanceUnknown, b.Provenance(x))
	assert.Equal(t, ProvenanceConstant, b.Provenance(axis))

	shape := must.M1(b.Apply(inference.OpShape, nil, x))
	assert.Equal(t, ProvenanceInputShape, b.Provenance(shape))
	gathered := must.M1(b.Apply(inference.OpGather, nil, shape, axis))
	assert.Equal(t, ProvenanceInputShape, b.Provenance(gathered))
	assert.Equal(t, ProvenanceConstant, b.Provenance(must.M1(b.Apply(inference.OpShape, nil, static))))

	nonZero := must.M1(b.Apply(inference.OpNonZero, nil, x))
	assert.Equal(t, ProvenanceDataDependent, b.Provenance(nonZero))
	nonZeroShape := must.M1(b.Apply(inference.OpShape, nil, nonZero))
	assert.Equal(t, ProvenanceDataDependent, b.Provenance(nonZeroShape))
	assert.Equal(t, "data_dependent", b.Provenance(nonZeroShape).String())

	assert.Equal(t, ProvenanceUnknown, b.Provenance(must.M1(b.Apply(inference.OpRelu, nil, x))))
	assert.Equal(t, ProvenanceUnknown, b.Provenance(None()))
	assert.True(t, IsDataDependentOp(inference.OpTopK))
	assert.False(t, IsDataDependentOp(inference.OpAdd))
}
