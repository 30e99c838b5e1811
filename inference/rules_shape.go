package inference

import (
	"math"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
)

// This file holds the rules of the operators that manipulate shapes, or that compute on (small) integer tensors
// holding shapes, axes or indices. These are the ones where partial evaluation matters.

func init() {
	register(OpCast, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferCast})
	register(OpShape, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferShape})
	register(OpSize, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferSize})
	register(OpReshape, &Rule{MinInputs: 2, MaxInputs: 2, Infer: inferReshape})
	register(OpFlatten, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferFlatten})
	register(OpSqueeze, &Rule{MinInputs: 1, MaxInputs: 2, Infer: inferSqueeze})
	register(OpUnsqueeze, &Rule{MinInputs: 1, MaxInputs: 2, Infer: inferUnsqueeze})
	register(OpTranspose, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferTranspose})
	register(OpConcat, &Rule{MinInputs: 1, MaxInputs: -1, Infer: inferConcat})
	register(OpSlice, &Rule{MinInputs: 3, MaxInputs: 5, Infer: inferSlice})
	register(OpGather, &Rule{MinInputs: 2, MaxInputs: 2, Infer: inferGather})
	register(OpExpand, &Rule{MinInputs: 2, MaxInputs: 2, Infer: inferExpand})
	register(OpTile, &Rule{MinInputs: 2, MaxInputs: 2, Infer: inferTile})
	register(OpPad, &Rule{MinInputs: 1, MaxInputs: 4, Infer: inferPad})
	register(OpConstantOfShape, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferConstantOfShape})
	register(OpRange, &Rule{MinInputs: 3, MaxInputs: 3, Infer: inferRange})
	register(OpSplit, &Rule{MinInputs: 1, MaxInputs: 2, Outputs: splitOutputs, Infer: inferSplit})
}

// passPartial forwards the known contents of input 0 to output 0: for operators that only change the shape.
func passPartial(c *Call) {
	c.SetOutputPartial(0, c.InputPartial(0))
}

// withLength returns p, or an array of unknown elements of the given length if p's length is unknown.
// It panics if p has a different known length.
func withLength(c *Call, p *symbolic.PartialArray, length int) *symbolic.PartialArray {
	if !p.HasLength() {
		return symbolic.NewPartialArray(length)
	}
	if p.Length() != length {
		panic(errors.Wrapf(ErrInputCount, "%s: operand %s should have length %d", c.Op, p, length))
	}
	return p
}

// axesOperand returns the axes given either as the attribute attrName or as the input inputIdx.
// If the axes are not known, it returns known=false and the number of axes (or -1 if that is not known either).
func axesOperand(c *Call, attrName string, inputIdx int) (axes []int, count int, known bool) {
	if _, found := c.Attrs[attrName]; found {
		axes = mustGetIntsAttr(c, attrName)
		return axes, len(axes), true
	}
	if !c.HasInput(inputIdx) {
		return nil, 0, true
	}
	p := c.InputPartial(inputIdx)
	if ints, ok := p.ToInts(); ok {
		return ints, len(ints), true
	}
	if p.HasLength() {
		return nil, p.Length(), false
	}
	return nil, -1, false
}

func inferCast(c *Call) {
	from, to := c.InputDType(0), mustGetDTypeAttr(c, "to")
	c.SetOutput(0, to, c.InputShape(0))
	switch {
	case !carriesPartial(from):
		return
	case to == dtypes.Bool:
		c.SetOutputPartial(0, c.InputPartial(0).Map(func(e symbolic.Element) symbolic.Element {
			if e.IsValue() {
				return symbolic.ElementBool(e.Value() != 0)
			}
			return symbolic.UnknownElement()
		}))
	case to.IsInt():
		passPartial(c)
	}
}

func inferShape(c *Call) {
	s := c.InputShape(0)
	if !s.HasRank() {
		c.SetOutput(0, dtypes.Int64, symbolic.UnknownOfRank(1))
		return
	}
	start := getIntAttrOr(c, "start", 0)
	end := getIntAttrOr(c, "end", math.MaxInt32)
	dims := must.M1(symbolic.PartialFromShape(s).Slice(start, end, 1))
	c.SetOutput(0, dtypes.Int64, symbolic.Make(dims.Length()))
	c.SetOutputPartial(0, dims)
}

func inferSize(c *Call) {
	c.SetOutput(0, dtypes.Int64, symbolic.Scalar())
	c.SetOutputPartial(0, symbolic.PartialFromElements(c.InputShape(0).Length().ToElement()))
}

func inferReshape(c *Call) {
	out := must.M1(c.InputShape(0).Reshape(c.InputPartial(1), getBoolAttrOr(c, "allowzero", false)))
	c.SetOutput(0, c.InputDType(0), out)
	if dims, ok := out.ToInts(); ok {
		if p, err := c.InputPartial(0).Reshape(dims); err == nil {
			c.SetOutputPartial(0, p)
		}
	}
}

func inferFlatten(c *Call) {
	c.SetOutput(0, c.InputDType(0), must.M1(c.InputShape(0).Flatten(getIntAttrOr(c, "axis", 1))))
	passPartial(c)
}

func inferSqueeze(c *Call) {
	s := c.InputShape(0)
	axes, count, known := axesOperand(c, "axes", 1)
	out := symbolic.UnknownShape()
	switch {
	case known:
		out = must.M1(s.Squeeze(axes))
	case count >= 0 && s.HasRank():
		out = must.M1(out.DeclareRank(s.Rank() - count))
	}
	c.SetOutput(0, c.InputDType(0), out)
	passPartial(c)
}

func inferUnsqueeze(c *Call) {
	s := c.InputShape(0)
	axes, count, known := axesOperand(c, "axes", 1)
	if known && count == 0 {
		panic(errors.Wrapf(ErrAttribute, "Unsqueeze requires axes"))
	}
	out := symbolic.UnknownShape()
	switch {
	case known:
		out = must.M1(s.Unsqueeze(axes))
	case count >= 0 && s.HasRank():
		out = must.M1(out.DeclareRank(s.Rank() + count))
	}
	c.SetOutput(0, c.InputDType(0), out)
	passPartial(c)
}

func inferTranspose(c *Call) {
	perm := getIntsAttrOr(c, "perm", nil)
	c.SetOutput(0, c.InputDType(0), must.M1(c.InputShape(0).Transpose(perm)))
	if c.InputIsSmall(0) {
		passPartial(c)
	}
}

func inferConcat(c *Call) {
	axis := mustGetIntAttr(c, "axis")
	inputs := make([]int, c.NumInputs())
	shapes := make([]symbolic.Shape, c.NumInputs())
	partials := make([]*symbolic.PartialArray, c.NumInputs())
	small := true
	for ii := range inputs {
		inputs[ii] = ii
		shapes[ii] = c.InputShape(ii)
		partials[ii] = c.InputPartial(ii)
		small = small && c.InputIsSmall(ii)
	}
	c.SetOutput(0, c.Promote(inputs...), must.M1(symbolic.Concat(shapes, axis)))
	if small {
		c.SetOutputPartial(0, symbolic.ConcatPartial(partials...))
	}
}

func inferSlice(c *Call) {
	data := c.InputShape(0)
	dtype := c.InputDType(0)
	if !data.HasRank() {
		c.SetOutput(0, dtype, data)
		return
	}
	rank := data.Rank()
	starts, ends := c.InputPartial(1), c.InputPartial(2)
	n := -1
	switch {
	case starts.HasLength():
		n = starts.Length()
	case ends.HasLength():
		n = ends.Length()
	}
	var axes []int
	if c.HasInput(3) {
		var ok bool
		axes, ok = c.InputPartial(3).ToInts()
		if !ok {
			c.SetOutput(0, dtype, symbolic.UnknownOfRank(rank))
			return
		}
		n = len(axes)
	} else if n >= 0 {
		axes = make([]int, n)
		for ii := range axes {
			axes[ii] = ii
		}
	}
	if n < 0 {
		c.SetOutput(0, dtype, symbolic.UnknownOfRank(rank))
		return
	}
	starts, ends = withLength(c, starts, n), withLength(c, ends, n)
	ones := make([]int, n)
	for ii := range ones {
		ones[ii] = 1
	}
	steps := symbolic.PartialFromInts(ones...)
	if c.HasInput(4) {
		steps = withLength(c, c.InputPartial(4), n)
	}

	out := data
	for ii, axis := range axes {
		adjusted := must.M1(data.NormalizeAxis(axis))
		out = out.WithDim(adjusted, must.M1(symbolic.SliceDim(data.Dim(adjusted), starts.Get(ii), ends.Get(ii), steps.Get(ii))))
	}
	c.SetOutput(0, dtype, out)

	if rank != 1 || n != 1 {
		return
	}
	start, end, step := starts.Get(0), ends.Get(0), steps.Get(0)
	if start.IsValue() && end.IsValue() && step.IsValue() {
		c.SetOutputPartial(0, must.M1(c.InputPartial(0).Slice(start.Value(), end.Value(), step.Value())))
	}
}

func inferGather(c *Call) {
	data, indices := c.InputShape(0), c.InputShape(1)
	if dtype := c.InputDType(1); dtype != dtypes.InvalidDType && !dtype.IsInt() {
		panic(errors.Wrapf(ErrDTypeMismatch, "Gather indices must be integers, got %s", DTypeName(dtype)))
	}
	axis := getIntAttrOr(c, "axis", 0)
	c.SetOutput(0, c.InputDType(0), must.M1(symbolic.Gather(data, indices, axis)))
	if data.HasRank() && data.Rank() == 1 && c.InputIsSmall(1) {
		c.SetOutputPartial(0, must.M1(c.InputPartial(0).GatherAll(c.InputPartial(1))))
	}
}

func inferExpand(c *Call) {
	target := must.M1(c.InputPartial(1).ToShape())
	out := must.M1(symbolic.Broadcast(c.InputShape(0), target))
	c.SetOutput(0, c.InputDType(0), out)
	if !c.InputIsSmall(0) || !out.HasRank() || out.Rank() > 1 {
		return
	}
	if length := out.Length(); length.IsValue() && length.Value() <= c.MaxPartialLength() {
		first := func(a, _ symbolic.Element) symbolic.Element { return a }
		c.SetOutputPartial(0, must.M1(symbolic.BroadcastPartial(c.InputPartial(0), symbolic.NewPartialArray(length.Value()), first)))
	}
}

func inferTile(c *Call) {
	s := c.InputShape(0)
	repeats := c.InputPartial(1)
	if !repeats.HasLength() {
		if s.HasRank() {
			s = symbolic.UnknownOfRank(s.Rank())
		}
		c.SetOutput(0, c.InputDType(0), s)
		return
	}
	out := must.M1(s.Tile(repeats.Elements()))
	c.SetOutput(0, c.InputDType(0), out)
	if s.HasRank() && s.Rank() == 1 && repeats.Get(0).IsValue() {
		data := c.InputPartial(0)
		if !data.HasLength() || data.Length()*repeats.Get(0).Value() > c.MaxPartialLength() {
			return
		}
		copies := make([]*symbolic.PartialArray, repeats.Get(0).Value())
		for ii := range copies {
			copies[ii] = data
		}
		c.SetOutputPartial(0, symbolic.ConcatPartial(copies...))
	}
}

func inferPad(c *Call) {
	s := c.InputShape(0)
	dtype := c.InputDType(0)
	var pads *symbolic.PartialArray
	if _, found := c.Attrs["pads"]; found {
		pads = symbolic.PartialFromInts(mustGetIntsAttr(c, "pads")...)
	} else if c.HasInput(1) {
		pads = c.InputPartial(1)
	} else {
		panic(errors.Wrapf(ErrAttribute, "Pad requires pads, as an attribute or as input #1"))
	}
	if !s.HasRank() {
		if pads.HasLength() && !c.HasInput(3) {
			c.SetOutput(0, dtype, must.M1(s.Pad(pads.Elements())))
		} else {
			c.SetOutput(0, dtype, s)
		}
		return
	}
	rank := s.Rank()
	if !pads.HasLength() {
		c.SetOutput(0, dtype, symbolic.UnknownOfRank(rank))
		return
	}
	full := pads.Elements()
	if c.HasInput(3) {
		axes, ok := c.InputPartial(3).ToInts()
		if !ok {
			c.SetOutput(0, dtype, symbolic.UnknownOfRank(rank))
			return
		}
		pads = withLength(c, pads, 2*len(axes))
		full = make([]symbolic.Element, 2*rank)
		for ii := range full {
			full[ii] = symbolic.ElementValue(0)
		}
		for ii, axis := range axes {
			adjusted := must.M1(s.NormalizeAxis(axis))
			full[adjusted] = pads.Get(ii)
			full[adjusted+rank] = pads.Get(ii + len(axes))
		}
	}
	c.SetOutput(0, dtype, must.M1(s.Pad(full)))
}

func inferConstantOfShape(c *Call) {
	out := must.M1(c.InputPartial(0).ToShape())
	dtype := getDTypeAttrOr(c, "dtype", dtypes.Float32)
	c.SetOutput(0, dtype, out)
	length := out.Length()
	if !carriesPartial(dtype) || !length.IsValue() || length.Value() > c.MaxPartialLength() {
		return
	}
	value := int(getFloatAttrOr(c, "value", 0))
	values := make([]int, length.Value())
	for ii := range values {
		values[ii] = value
	}
	c.SetOutputPartial(0, symbolic.PartialFromInts(values...))
}

// scalarOperand returns the single element of a scalar (or 1-element) input, or Unknown.
func scalarOperand(c *Call, i int) symbolic.Element {
	p := c.InputPartial(i)
	if !p.HasLength() || p.Length() != 1 {
		return symbolic.UnknownElement()
	}
	return p.Get(0)
}

// rangeLength returns max(ceil((limit-start)/delta), 0).
func rangeLength(start, limit, delta int) int {
	switch {
	case delta > 0 && limit > start:
		return (limit - start + delta - 1) / delta
	case delta < 0 && start > limit:
		return (start - limit - delta - 1) / -delta
	}
	return 0
}

func inferRange(c *Call) {
	dtype := c.Promote(0, 1, 2)
	start, limit, delta := scalarOperand(c, 0), scalarOperand(c, 1), scalarOperand(c, 2)
	if delta.EqualsValue(0) {
		panic(errors.Wrapf(symbolic.ErrInvalidValue, "Range with delta 0"))
	}
	if !start.IsValue() || !limit.IsValue() || !delta.IsValue() {
		length := symbolic.Unknown()
		if start.EqualsValue(0) && delta.EqualsValue(1) {
			length = limit.ToDim()
		}
		c.SetOutput(0, dtype, symbolic.MakeShape(length))
		return
	}
	n := rangeLength(start.Value(), limit.Value(), delta.Value())
	c.SetOutput(0, dtype, symbolic.Make(n))
	if n <= c.MaxPartialLength() {
		values := make([]int, n)
		for ii := range values {
			values[ii] = start.Value() + ii*delta.Value()
		}
		c.SetOutputPartial(0, symbolic.PartialFromInts(values...))
	}
}

func splitOutputs(c *Call) int {
	if c.HasInput(1) {
		if p := c.InputPartial(1); p.HasLength() {
			return p.Length()
		}
		panic(errors.Wrapf(ErrAttribute, "Split: number of outputs can't be inferred from the split sizes; set num_outputs"))
	}
	if _, found := c.Attrs["split"]; found {
		return len(mustGetIntsAttr(c, "split"))
	}
	return mustGetIntAttr(c, "num_outputs")
}

func inferSplit(c *Call) {
	s := c.InputShape(0)
	dtype := c.InputDType(0)
	n := c.NumOutputs()
	if !s.HasRank() {
		for ii := range n {
			c.SetOutput(ii, dtype, s)
		}
		return
	}
	axis := must.M1(s.NormalizeAxis(getIntAttrOr(c, "axis", 0)))
	dim := s.Dim(axis)

	sizes := make([]symbolic.Dim, n)
	switch {
	case c.HasInput(1):
		for ii, e := range withLength(c, c.InputPartial(1), n).Elements() {
			sizes[ii] = e.ToDim()
		}
	case c.Attrs["split"] != nil:
		for ii, size := range mustGetIntsAttr(c, "split") {
			sizes[ii] = symbolic.DimValue(size)
		}
	case n == 1:
		sizes[0] = dim
	case dim.IsValue():
		chunk := dim.DivideWithRounding(n, symbolic.RoundCeil).Value()
		last := dim.Value() - chunk*(n-1)
		if last < 0 {
			panic(errors.Wrapf(symbolic.ErrInvalidValue, "Split of dimension %s in %d outputs", dim, n))
		}
		for ii := range sizes {
			sizes[ii] = symbolic.DimValue(chunk)
		}
		sizes[n-1] = symbolic.DimValue(last)
	}

	total := symbolic.Zero
	for _, size := range sizes {
		total = total.Add(size)
	}
	if total.IsValue() && dim.IsValue() && total != dim {
		panic(errors.Wrapf(symbolic.ErrValueMismatch, "Split sizes %v don't add up to dimension %s", sizes, dim))
	}

	data := c.InputPartial(0)
	offset := 0
	for ii, size := range sizes {
		c.SetOutput(ii, dtype, s.WithDim(axis, size))
		if s.Rank() == 1 && data.HasLength() && size.IsValue() && offset >= 0 {
			c.SetOutputPartial(ii, must.M1(data.Slice(offset, offset+size.Value(), 1)))
			offset += size.Value()
		} else {
			offset = -1
		}
	}
}
