package inference

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
)

// This file holds the rules of the neural network operators: contractions, windows, reductions and the
// data-dependent operators.

func init() {
	register(OpMatMul, &Rule{MinInputs: 2, MaxInputs: 2, Infer: func(c *Call) {
		c.SetOutput(0, c.Promote(0, 1), must.M1(symbolic.MatMul(c.InputShape(0), c.InputShape(1))))
	}})
	register(OpGemm, &Rule{MinInputs: 2, MaxInputs: 3, Infer: inferGemm})
	register(OpConv, &Rule{MinInputs: 2, MaxInputs: 3, Infer: inferWindow})
	register(OpMaxPool, &Rule{MinInputs: 1, MaxInputs: 1, Outputs: optionalOutputs(2), Infer: inferWindow})
	register(OpAveragePool, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferWindow})
	register(OpGlobalAveragePool, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferGlobalPool})
	for _, op := range []OpType{OpReduceSum, OpReduceMean, OpReduceMax, OpReduceMin} {
		register(op, &Rule{MinInputs: 1, MaxInputs: 2, Infer: inferReduce})
	}
	register(OpArgMax, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferArgMax})
	register(OpResize, &Rule{MinInputs: 1, MaxInputs: 4, Infer: inferResize})
	register(OpTopK, &Rule{MinInputs: 2, MaxInputs: 2, Outputs: func(*Call) int { return 2 }, Infer: inferTopK})
	register(OpNonZero, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferNonZero})
	register(OpSoftmax, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferSoftmax})
	register(OpLayerNormalization, &Rule{MinInputs: 1, MaxInputs: 3, Outputs: optionalOutputs(3),
		Infer: inferLayerNormalization})
}

// optionalOutputs counts the outputs of operators whose trailing outputs are optional: the "num_outputs"
// attribute selects how many are produced, between 1 (the default) and maxOutputs.
func optionalOutputs(maxOutputs int) func(c *Call) int {
	return func(c *Call) int {
		n := getIntAttrOr(c, "num_outputs", 1)
		if n < 1 || n > maxOutputs {
			panic(errors.Wrapf(ErrAttribute, "%s produces between 1 and %d outputs, got num_outputs=%d", c.Op, maxOutputs, n))
		}
		return n
	}
}

func inferGemm(c *Call) {
	a := must.M1(c.InputShape(0).DeclareRank(2))
	b := must.M1(c.InputShape(1).DeclareRank(2))
	if getBoolAttrOr(c, "transA", false) {
		a = must.M1(a.Transpose(nil))
	}
	if getBoolAttrOr(c, "transB", false) {
		b = must.M1(b.Transpose(nil))
	}
	out := must.M1(symbolic.MatMul(a, b))
	if c.HasInput(2) {
		if _, err := symbolic.Broadcast(c.InputShape(2), out); err != nil {
			panic(errors.WithMessagef(err, "Gemm bias of shape %s for output %s", c.InputShape(2), out))
		}
	}
	c.SetOutput(0, c.Promote(0, 1, 2), out)
}

func repeatInt(value, n int) []int {
	out := make([]int, n)
	for ii := range out {
		out[ii] = value
	}
	return out
}

// inferWindow infers Conv, MaxPool and AveragePool: operators sliding a window over the spatial axes
// (all axes after batch and channels).
func inferWindow(c *Call) {
	x := c.InputShape(0)
	isConv := c.Op == OpConv
	dtype := c.InputDType(0)
	if isConv {
		dtype = c.Promote(0, 1, 2)
	}
	if !x.HasRank() {
		setWindowOutputs(c, dtype, x)
		return
	}
	spatial := x.Rank() - 2
	if spatial < 1 {
		panic(errors.Wrapf(symbolic.ErrRankMismatch, "%s input must have rank >= 3, got shape %s", c.Op, x))
	}

	channels := x.Dim(1)
	kernel := getIntsAttrOr(c, "kernel_shape", nil)
	if isConv {
		w := must.M1(c.InputShape(1).DeclareRank(x.Rank()))
		channels = w.Dim(0)
		group := getIntAttrOr(c, "group", 1)
		if inChannels := w.Dim(1).Mul(symbolic.DimValue(group)); inChannels.IsValue() && x.Dim(1).IsValue() && inChannels != x.Dim(1) {
			panic(errors.Wrapf(symbolic.ErrValueMismatch, "Conv input %s has %s channels, kernel %s with group=%d expects %s",
				x, x.Dim(1), w, group, inChannels))
		}
		if kernel == nil {
			if dims, ok := symbolic.MakeShape(w.Dims()[2:]...).ToInts(); ok {
				kernel = dims
			}
		}
	} else if kernel == nil {
		panic(errors.Wrapf(ErrAttribute, "%s is missing required attribute %q", c.Op, "kernel_shape"))
	}
	if kernel != nil && len(kernel) != spatial {
		panic(errors.Wrapf(ErrAttribute, "%s kernel_shape %v doesn't match input shape %s", c.Op, kernel, x))
	}
	strides := getIntsAttrOr(c, "strides", repeatInt(1, spatial))
	dilations := getIntsAttrOr(c, "dilations", repeatInt(1, spatial))
	pads := getIntsAttrOr(c, "pads", repeatInt(0, 2*spatial))
	autoPad := getStringAttrOr(c, "auto_pad", "NOTSET")
	ceilMode := getBoolAttrOr(c, "ceil_mode", false)
	if len(strides) != spatial || len(dilations) != spatial || len(pads) != 2*spatial {
		panic(errors.Wrapf(ErrAttribute, "%s strides=%v, dilations=%v, pads=%v don't match input shape %s",
			c.Op, strides, dilations, pads, x))
	}

	out := x.WithDim(1, channels)
	for ii := range spatial {
		in := x.Dim(2 + ii)
		var d symbolic.Dim
		switch {
		case autoPad == "SAME_UPPER" || autoPad == "SAME_LOWER":
			d = in.DivideWithRounding(strides[ii], symbolic.RoundCeil)
		case kernel == nil:
			d = symbolic.Unknown()
		case autoPad == "VALID":
			d = must.M1(symbolic.ConvOutputDim(in, kernel[ii], strides[ii], dilations[ii], 0, ceilMode))
		case autoPad == "NOTSET":
			d = must.M1(symbolic.ConvOutputDim(in, kernel[ii], strides[ii], dilations[ii], pads[ii]+pads[ii+spatial], ceilMode))
		default:
			panic(errors.Wrapf(ErrAttribute, "%s: unknown auto_pad %q", c.Op, autoPad))
		}
		out = out.WithDim(2+ii, d)
	}
	setWindowOutputs(c, dtype, out)
}

// setWindowOutputs sets the output of a window operator and, for MaxPool, the optional indices output.
func setWindowOutputs(c *Call, dtype dtypes.DType, out symbolic.Shape) {
	c.SetOutput(0, dtype, out)
	if c.NumOutputs() > 1 {
		c.SetOutput(1, dtypes.Int64, out)
	}
}

func inferGlobalPool(c *Call) {
	x := c.InputShape(0)
	if x.HasRank() {
		if x.Rank() < 3 {
			panic(errors.Wrapf(symbolic.ErrRankMismatch, "%s input must have rank >= 3, got shape %s", c.Op, x))
		}
		for axis := 2; axis < x.Rank(); axis++ {
			x = x.WithDim(axis, symbolic.One)
		}
	}
	c.SetOutput(0, c.InputDType(0), x)
}

func inferReduce(c *Call) {
	s := c.InputShape(0)
	dtype := c.InputDType(0)
	keepDims := getBoolAttrOr(c, "keepdims", true)
	axes, count, known := axesOperand(c, "axes", 1)
	switch {
	case known && len(axes) == 0 && getBoolAttrOr(c, "noop_with_empty_axes", false):
		c.SetOutput(0, dtype, s)
		passPartial(c)
		return
	case !known:
		out := symbolic.UnknownShape()
		if s.HasRank() && keepDims {
			out = symbolic.UnknownOfRank(s.Rank())
		} else if s.HasRank() && count >= 0 {
			out = must.M1(out.DeclareRank(s.Rank() - count))
		}
		c.SetOutput(0, dtype, out)
		return
	}
	c.SetOutput(0, dtype, must.M1(s.Reduce(axes, keepDims)))

	// Fold reductions of 1-D contents, e.g. the number of elements from the product of a shape.
	data := c.InputPartial(0)
	if !s.HasRank() || s.Rank() != 1 || !data.HasLength() || data.Length() == 0 {
		return
	}
	var fold func(a, b symbolic.Element) symbolic.Element
	switch c.Op {
	case OpReduceSum:
		fold = symbolic.Element.Add
	case OpReduceMax:
		fold = symbolic.Element.Max
	case OpReduceMin:
		fold = symbolic.Element.Min
	default:
		return
	}
	result := data.Get(0)
	for ii := 1; ii < data.Length(); ii++ {
		result = fold(result, data.Get(ii))
	}
	c.SetOutputPartial(0, symbolic.PartialFromElements(result))
}

func inferArgMax(c *Call) {
	axis := getIntAttrOr(c, "axis", 0)
	keepDims := getBoolAttrOr(c, "keepdims", true)
	c.SetOutput(0, dtypes.Int64, must.M1(c.InputShape(0).Reduce([]int{axis}, keepDims)))
}

func inferResize(c *Call) {
	s := c.InputShape(0)
	dtype := c.InputDType(0)
	if c.HasInput(3) {
		out := must.M1(c.InputPartial(3).ToShape())
		if s.HasRank() {
			out = must.M1(out.DeclareRank(s.Rank()))
		}
		c.SetOutput(0, dtype, out)
		return
	}
	if scales := getFloatsAttrOr(c, "scales", nil); scales != nil {
		c.SetOutput(0, dtype, must.M1(s.Resize(scales)))
		return
	}
	c.Warnf("scales are not known at build time, output dimensions of %s are unknown", s)
	if s.HasRank() {
		s = symbolic.UnknownOfRank(s.Rank())
	}
	c.SetOutput(0, dtype, s)
}

func inferTopK(c *Call) {
	s := c.InputShape(0)
	if s.HasRank() {
		axis := must.M1(s.NormalizeAxis(getIntAttrOr(c, "axis", -1)))
		k := scalarOperand(c, 1)
		if k.IsValue() && s.Dim(axis).IsValue() && k.Value() > s.Dim(axis).Value() {
			panic(errors.Wrapf(symbolic.ErrInvalidValue, "TopK with k=%s larger than dimension %s of %s", k, s.Dim(axis), s))
		}
		s = s.WithDim(axis, k.ToDim())
	}
	c.SetOutput(0, c.InputDType(0), s)
	c.SetOutput(1, dtypes.Int64, s)
}

func inferNonZero(c *Call) {
	s := c.InputShape(0)
	rank := symbolic.Unknown()
	if s.HasRank() {
		rank = symbolic.DimValue(s.Rank())
	}
	c.SetOutput(0, dtypes.Int64, symbolic.MakeShape(rank, symbolic.Unknown()))
}

func inferSoftmax(c *Call) {
	s := c.InputShape(0)
	if s.HasRank() {
		must.M1(s.NormalizeAxis(getIntAttrOr(c, "axis", -1)))
	}
	c.SetOutput(0, c.InputDType(0), s)
}

// inferLayerNormalization sets the normalized output and, if requested, the mean and inverse standard
// deviation outputs, which are reduced over the normalized axes.
func inferLayerNormalization(c *Call) {
	s := c.InputShape(0)
	c.SetOutput(0, c.Promote(0, 1, 2), s)
	if c.NumOutputs() == 1 {
		return
	}
	stats := s
	if s.HasRank() {
		axis := must.M1(s.NormalizeAxis(getIntAttrOr(c, "axis", -1)))
		for ; axis < s.Rank(); axis++ {
			stats = stats.WithDim(axis, symbolic.One)
		}
	}
	for ii := 1; ii < c.NumOutputs(); ii++ {
		c.SetOutput(ii, dtypes.Float32, stats)
	}
}
