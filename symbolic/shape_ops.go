package symbolic

import (
	"math"
	"slices"

	"github.com/chewxy/math32"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/pkg/errors"
)

// This file implements the shape-level operations built on the Dim algebra.

// Broadcast returns the numpy-style broadcast of two shapes: shapes are right-aligned, the shorter one is
// padded with 1s on the left, and each aligned pair of dimensions is broadcast with BroadcastDim.
// An unknown rank on either side yields an unknown-rank result.
func Broadcast(a, b Shape) (Shape, error) {
	if !a.hasRank || !b.hasRank {
		return UnknownShape(), nil
	}
	rank := max(a.rank, b.rank)
	out, err := newShape(rank)
	if err != nil {
		return out, err
	}
	for axis := range rank {
		da, db := One, One
		if idx := axis - (rank - a.rank); idx >= 0 {
			da = a.dims[idx]
		}
		if idx := axis - (rank - b.rank); idx >= 0 {
			db = b.dims[idx]
		}
		out.dims[axis], err = BroadcastDim(da, db)
		if err != nil {
			return UnknownShape(), errors.WithMessagef(err, "broadcasting shapes %s and %s (output axis %d)", a, b, axis)
		}
	}
	return out, nil
}

// BroadcastAll broadcasts any number of shapes together. With no shapes it returns a scalar.
func BroadcastAll(shapes ...Shape) (Shape, error) {
	out := Scalar()
	for _, s := range shapes {
		var err error
		out, err = Broadcast(out, s)
		if err != nil {
			return UnknownShape(), err
		}
	}
	return out, nil
}

// MatMul returns the shape of the matrix multiplication of a and b, with numpy semantics: rank-1 operands are
// promoted to matrices (1×K or K×1) and the added axis removed from the result, and leading (batch) axes are
// broadcast. Concrete contracting dimensions must match.
func MatMul(a, b Shape) (Shape, error) {
	if !a.hasRank || !b.hasRank {
		return UnknownShape(), nil
	}
	if a.rank == 0 || b.rank == 0 {
		return UnknownShape(), errors.Wrapf(ErrInvalidValue, "MatMul(%s, %s) of a scalar", a, b)
	}
	squeezeM, squeezeN := a.rank == 1, b.rank == 1
	if squeezeM {
		a = MakeShape(One, a.dims[0])
	}
	if squeezeN {
		b = MakeShape(b.dims[0], One)
	}
	kA, kB := a.dims[a.rank-1], b.dims[b.rank-2]
	if kA.IsValue() && kB.IsValue() && kA != kB {
		return UnknownShape(), errors.Wrapf(ErrValueMismatch, "MatMul(%s, %s) contracting dimensions %s != %s", a, b, kA, kB)
	}
	batchA := MakeShape(a.dims[:a.rank-2]...)
	batchB := MakeShape(b.dims[:b.rank-2]...)
	batch, err := Broadcast(batchA, batchB)
	if err != nil {
		return UnknownShape(), errors.WithMessagef(err, "MatMul(%s, %s) batch axes", a, b)
	}
	dims := batch.Dims()
	if !squeezeM {
		dims = append(dims, a.dims[a.rank-2])
	}
	if !squeezeN {
		dims = append(dims, b.dims[b.rank-1])
	}
	if len(dims) > MaxRank {
		return UnknownShape(), errors.Wrapf(ErrMaxRankExceeded, "MatMul(%s, %s)", a, b)
	}
	return MakeShape(dims...), nil
}

// normalizeAxes normalizes a list of axes for the given rank, and checks for duplicates.
func normalizeAxes(axes []int, rank int) ([]int, error) {
	seen := sets.Make[int]()
	normalized := make([]int, len(axes))
	for ii, axis := range axes {
		adjusted, err := normalizeAxis(axis, rank)
		if err != nil {
			return nil, err
		}
		if seen.Has(adjusted) {
			return nil, errors.Wrapf(ErrInvalidValue, "axis %d repeated in %v", axis, axes)
		}
		seen.Insert(adjusted)
		normalized[ii] = adjusted
	}
	return normalized, nil
}

// Reduce returns the shape after reducing the given axes. Reduced axes become One, except axes that are
// statically Zero, which stay Zero. If keepDims is false the reduced axes are removed.
// An empty list of axes reduces all axes.
func (s Shape) Reduce(axes []int, keepDims bool) (Shape, error) {
	if !s.hasRank {
		if len(axes) == 0 && !keepDims {
			return Scalar(), nil
		}
		return UnknownShape(), nil
	}
	if len(axes) == 0 {
		axes = make([]int, s.rank)
		for axis := range s.rank {
			axes[axis] = axis
		}
	}
	normalized, err := normalizeAxes(axes, s.rank)
	if err != nil {
		return UnknownShape(), errors.WithMessagef(err, "Reduce(%s, axes=%v)", s, axes)
	}
	out := s
	for _, axis := range normalized {
		if !s.dims[axis].EqualsValue(0) {
			out.dims[axis] = One
		}
	}
	if keepDims {
		return out, nil
	}
	dims := make([]Dim, 0, s.rank)
	for axis, d := range out.dims[:s.rank] {
		if !slices.Contains(normalized, axis) {
			dims = append(dims, d)
		}
	}
	return MakeShape(dims...), nil
}

// SliceRange returns the first index and the number of elements selected by slicing an axis of the given
// length with start:end:step. Negative start/end count from the end and are then clamped to the axis, taking
// the direction of step into account. step must not be 0.
func SliceRange(length, start, end, step int) (first, count int) {
	if start < 0 {
		start += length
	}
	if end < 0 {
		end += length
	}
	if step > 0 {
		start = min(max(start, 0), length)
		end = min(max(end, 0), length)
		if end <= start {
			return start, 0
		}
		return start, (end-start-1)/step + 1
	}
	start = min(max(start, 0), length-1)
	end = min(max(end, -1), length-1)
	if start <= end {
		return start, 0
	}
	if step == math.MinInt {
		return start, 1
	}
	return start, (start-end-1)/(-step) + 1
}

// SliceDim returns the dimension of an axis of size dim after slicing it with start:end:step.
//
// With everything concrete it uses SliceRange. Otherwise, a few cases are resolved symbolically: start == end
// selects nothing; 0:MAX:1 (or 0:dim:1) and -1:MIN:-1 select the whole axis.
func SliceDim(dim Dim, start, end, step Element) (Dim, error) {
	if step.EqualsValue(0) {
		return Unknown(), errors.Wrapf(ErrInvalidValue, "slice step cannot be 0")
	}
	if dim.IsValue() && start.IsValue() && end.IsValue() && step.IsValue() {
		_, count := SliceRange(dim.value, start.value, end.value, step.value)
		return DimValue(count), nil
	}
	if !start.IsUnknown() && start == end {
		return Zero, nil
	}
	if step.EqualsValue(1) && start.EqualsValue(0) {
		if end.IsValue() && (end.value >= math.MaxInt32 || (dim.IsValue() && end.value >= dim.value)) {
			return dim, nil
		}
		if end.IsParam() && dim.IsParam() && end.param == dim.param {
			return dim, nil
		}
	}
	if step.EqualsValue(-1) && start.EqualsValue(-1) && end.IsValue() && end.value <= math.MinInt32 {
		return dim, nil
	}
	return Unknown(), nil
}

// Squeeze removes the given axes, which must not be statically known to be different from 1.
// With no axes, it removes every axis known to be 1: if some dimension is not concrete, the resulting rank
// can't be known.
func (s Shape) Squeeze(axes []int) (Shape, error) {
	if !s.hasRank {
		return UnknownShape(), nil
	}
	if len(axes) == 0 {
		dims := make([]Dim, 0, s.rank)
		for _, d := range s.dims[:s.rank] {
			if !d.IsValue() {
				return UnknownShape(), nil
			}
			if d.value != 1 {
				dims = append(dims, d)
			}
		}
		return MakeShape(dims...), nil
	}
	normalized, err := normalizeAxes(axes, s.rank)
	if err != nil {
		return UnknownShape(), errors.WithMessagef(err, "Squeeze(%s, axes=%v)", s, axes)
	}
	dims := make([]Dim, 0, s.rank)
	for axis, d := range s.dims[:s.rank] {
		if !slices.Contains(normalized, axis) {
			dims = append(dims, d)
			continue
		}
		if d.IsValue() && d.value != 1 {
			return UnknownShape(), errors.Wrapf(ErrInvalidValue, "Squeeze(%s, axes=%v): axis %d has dimension %s", s, axes, axis, d)
		}
	}
	return MakeShape(dims...), nil
}

// Unsqueeze inserts axes of dimension 1 at the given positions, which refer to the output shape.
func (s Shape) Unsqueeze(axes []int) (Shape, error) {
	if !s.hasRank {
		return UnknownShape(), nil
	}
	outRank := s.rank + len(axes)
	out, err := newShape(outRank)
	if err != nil {
		return UnknownShape(), errors.WithMessagef(err, "Unsqueeze(%s, axes=%v)", s, axes)
	}
	normalized, err := normalizeAxes(axes, outRank)
	if err != nil {
		return UnknownShape(), errors.WithMessagef(err, "Unsqueeze(%s, axes=%v)", s, axes)
	}
	srcAxis := 0
	for axis := range outRank {
		if slices.Contains(normalized, axis) {
			out.dims[axis] = One
			continue
		}
		out.dims[axis] = s.dims[srcAxis]
		srcAxis++
	}
	return out, nil
}

// Concat returns the shape of the concatenation of the given shapes on axis. The concatenated axis is summed,
// and all other axes must be compatible: they are merged with MaxDefinedDim. If any input has an unknown rank,
// the result has an unknown rank.
func Concat(shapes []Shape, axis int) (Shape, error) {
	if len(shapes) == 0 {
		return UnknownShape(), errors.Wrapf(ErrInvalidValue, "Concat() of no shapes")
	}
	for _, s := range shapes {
		if !s.hasRank {
			return UnknownShape(), nil
		}
	}
	out := shapes[0]
	adjusted, err := out.NormalizeAxis(axis)
	if err != nil {
		return UnknownShape(), errors.WithMessagef(err, "Concat(axis=%d) of %v", axis, shapes)
	}
	for ii, s := range shapes[1:] {
		if s.rank != out.rank {
			return UnknownShape(), errors.Wrapf(ErrRankMismatch, "Concat(axis=%d): input #%d has shape %s, input #0 has shape %s",
				axis, ii+1, s, shapes[0])
		}
		for a := range s.rank {
			if a == adjusted {
				out.dims[a] = out.dims[a].Add(s.dims[a])
				continue
			}
			out.dims[a], err = MaxDefinedDim(out.dims[a], s.dims[a])
			if err != nil {
				return UnknownShape(), errors.WithMessagef(err, "Concat(axis=%d): input #%d has shape %s, input #0 has shape %s",
					axis, ii+1, s, shapes[0])
			}
		}
	}
	return out, nil
}

// Pad returns the shape after padding: pads holds the begin paddings for every axis followed by the end
// paddings, as in ONNX. Negative paddings crop.
func (s Shape) Pad(pads []Element) (Shape, error) {
	if !s.hasRank {
		if len(pads)%2 != 0 {
			return UnknownShape(), errors.Wrapf(ErrInvalidValue, "Pad() with odd number of paddings %v", pads)
		}
		return newShape(len(pads) / 2)
	}
	if len(pads) != 2*s.rank {
		return UnknownShape(), errors.Wrapf(ErrRankMismatch, "Pad(%s) requires %d paddings, got %v", s, 2*s.rank, pads)
	}
	out := s
	for axis := range s.rank {
		total := pads[axis].Add(pads[axis+s.rank])
		if !total.IsValue() {
			out.dims[axis] = Unknown()
			continue
		}
		d, err := tryAddInt(s.dims[axis], total.value)
		if err != nil {
			return UnknownShape(), errors.WithMessagef(err, "Pad(%s, pads=%v) axis %d", s, pads, axis)
		}
		out.dims[axis] = d
	}
	return out, nil
}

// tryAddInt is the non-panicking version of Dim.AddInt.
func tryAddInt(d Dim, v int) (Dim, error) {
	if v == 0 {
		return d, nil
	}
	if !d.IsValue() {
		return Unknown(), nil
	}
	if d.value+v < 0 {
		return Unknown(), errors.Wrapf(ErrInvalidValue, "dimension %d%+d results in negative dimension", d.value, v)
	}
	return DimValue(d.value + v), nil
}

// Tile returns the shape after repeating each axis by the corresponding number of repeats.
func (s Shape) Tile(repeats []Element) (Shape, error) {
	if !s.hasRank {
		return newShape(len(repeats))
	}
	if len(repeats) != s.rank {
		return UnknownShape(), errors.Wrapf(ErrRankMismatch, "Tile(%s) requires %d repeats, got %v", s, s.rank, repeats)
	}
	out := s
	for axis := range s.rank {
		r := repeats[axis]
		if r.IsValue() && r.value < 0 {
			return UnknownShape(), errors.Wrapf(ErrInvalidValue, "Tile(%s, repeats=%v): negative repeat", s, repeats)
		}
		out.dims[axis] = s.dims[axis].Mul(r.ToDim())
	}
	return out, nil
}

// Resize returns the shape after scaling every axis by the given factor: floor(dim * scale).
func (s Shape) Resize(scales []float32) (Shape, error) {
	if !s.hasRank {
		return newShape(len(scales))
	}
	if len(scales) != s.rank {
		return UnknownShape(), errors.Wrapf(ErrRankMismatch, "Resize(%s) requires %d scales, got %v", s, s.rank, scales)
	}
	out := s
	for axis, scale := range scales {
		switch {
		case scale <= 0:
			return UnknownShape(), errors.Wrapf(ErrInvalidValue, "Resize(%s, scales=%v): scales must be positive", s, scales)
		case scale == 1:
			continue
		case s.dims[axis].IsValue():
			out.dims[axis] = DimValue(int(math32.Floor(float32(s.dims[axis].value) * scale)))
		default:
			out.dims[axis] = Unknown()
		}
	}
	return out, nil
}

// Transpose permutes the axes. A nil permutation reverses the axes.
func (s Shape) Transpose(perm []int) (Shape, error) {
	if !s.hasRank {
		if perm == nil {
			return UnknownShape(), nil
		}
		return newShape(len(perm))
	}
	if perm == nil {
		perm = make([]int, s.rank)
		for axis := range s.rank {
			perm[axis] = s.rank - 1 - axis
		}
	}
	if len(perm) != s.rank {
		return UnknownShape(), errors.Wrapf(ErrRankMismatch, "Transpose(%s, perm=%v)", s, perm)
	}
	normalized, err := normalizeAxes(perm, s.rank)
	if err != nil {
		return UnknownShape(), errors.WithMessagef(err, "Transpose(%s, perm=%v)", s, perm)
	}
	out := s
	for axis, from := range normalized {
		out.dims[axis] = s.dims[from]
	}
	return out, nil
}

// Flatten reshapes to rank 2: the product of the axes before axis, and the product of the remaining ones.
// axis is in [-rank, rank].
func (s Shape) Flatten(axis int) (Shape, error) {
	if !s.hasRank {
		return newShape(2)
	}
	adjusted := axis
	if adjusted < 0 {
		adjusted += s.rank
	}
	if adjusted < 0 || adjusted > s.rank {
		return UnknownShape(), errors.Wrapf(ErrAxisOutOfRange, "Flatten(%s, axis=%d)", s, axis)
	}
	outer := MakeShape(s.dims[:adjusted]...).Length()
	inner := MakeShape(s.dims[adjusted:s.rank]...).Length()
	return MakeShape(outer, inner), nil
}

// Gather returns the shape of gathering indices from data on the given axis:
// data.dims[:axis] + indices.dims + data.dims[axis+1:].
func Gather(data, indices Shape, axis int) (Shape, error) {
	if !data.hasRank || !indices.hasRank {
		return UnknownShape(), nil
	}
	adjusted, err := data.NormalizeAxis(axis)
	if err != nil {
		return UnknownShape(), errors.WithMessagef(err, "Gather(data=%s, indices=%s)", data, indices)
	}
	dims := make([]Dim, 0, data.rank-1+indices.rank)
	dims = append(dims, data.dims[:adjusted]...)
	dims = append(dims, indices.dims[:indices.rank]...)
	dims = append(dims, data.dims[adjusted+1:data.rank]...)
	if len(dims) > MaxRank {
		return UnknownShape(), errors.Wrapf(ErrMaxRankExceeded, "Gather(data=%s, indices=%s, axis=%d)", data, indices, axis)
	}
	return MakeShape(dims...), nil
}

// Reshape returns the shape after reshaping s to the (partially known) target shape.
//
// A target element -1 is inferred from the remaining dimensions, and 0 copies the input dimension of the same
// axis, unless allowZero is set. Common factors between input and output (equal parameters or values) are
// cancelled before inferring, so (N, 3, 4) reshaped to (N, -1) resolves to (N, 12).
func (s Shape) Reshape(target *PartialArray, allowZero bool) (Shape, error) {
	if !target.HasLength() {
		return UnknownShape(), nil
	}
	out, err := newShape(target.Length())
	if err != nil {
		return UnknownShape(), errors.WithMessagef(err, "Reshape(%s, %s)", s, target)
	}
	inferAxis := -1
	for axis := range out.rank {
		e := target.Get(axis)
		switch {
		case e.EqualsValue(-1):
			if inferAxis >= 0 {
				return UnknownShape(), errors.Wrapf(ErrInvalidValue, "Reshape(%s, %s): more than one -1", s, target)
			}
			inferAxis = axis
		case e.EqualsValue(0) && !allowZero:
			if s.hasRank && axis < s.rank {
				out.dims[axis] = s.dims[axis]
			} else if s.hasRank {
				return UnknownShape(), errors.Wrapf(ErrAxisOutOfRange, "Reshape(%s, %s): 0 refers to axis %d", s, target, axis)
			}
		case e.IsValue() && e.value < -1:
			return UnknownShape(), errors.Wrapf(ErrInvalidValue, "Reshape(%s, %s): invalid dimension %d", s, target, e.value)
		default:
			out.dims[axis] = e.ToDim()
		}
	}
	if !s.hasRank {
		return out, nil
	}

	others := make([]Dim, 0, out.rank)
	for axis, d := range out.dims[:out.rank] {
		if axis != inferAxis {
			others = append(others, d)
		}
	}
	inRemaining, outRemaining := cancelCommonFactors(s.Dims(), others)
	inLength := MakeShape(inRemaining...).Length()
	outLength := MakeShape(outRemaining...).Length()
	if inferAxis >= 0 {
		if outLength.EqualsValue(0) {
			return out, nil
		}
		out.dims[inferAxis], err = inLength.Div(outLength)
		if err != nil {
			return UnknownShape(), errors.WithMessagef(err, "Reshape(%s, %s): can't infer -1", s, target)
		}
		return out, nil
	}
	if inLength.IsValue() && outLength.IsValue() && inLength != outLength {
		return UnknownShape(), errors.Wrapf(ErrValueMismatch, "Reshape(%s, %s): number of elements differ", s, target)
	}
	return out, nil
}

// cancelCommonFactors removes pairs of equal (parameter or value) dimensions from both lists.
func cancelCommonFactors(a, b []Dim) ([]Dim, []Dim) {
	remainingB := slices.Clone(b)
	remainingA := make([]Dim, 0, len(a))
	for _, d := range a {
		if d.IsUnknown() {
			remainingA = append(remainingA, d)
			continue
		}
		if idx := slices.Index(remainingB, d); idx >= 0 {
			remainingB = slices.Delete(remainingB, idx, idx+1)
			continue
		}
		remainingA = append(remainingA, d)
	}
	return remainingA, remainingB
}

// ConvOutputDim returns the output size of a convolution or pooling window over an axis of size in:
// (in + padTotal - dilation*(kernel-1) - 1) / stride + 1, rounded down, or up if ceilMode is set.
func ConvOutputDim(in Dim, kernel, stride, dilation, padTotal int, ceilMode bool) (Dim, error) {
	if stride <= 0 || dilation <= 0 || kernel <= 0 {
		return Unknown(), errors.Wrapf(ErrInvalidValue, "kernel=%d, stride=%d and dilation=%d must be positive", kernel, stride, dilation)
	}
	offset := padTotal - dilation*(kernel-1) - 1
	if stride == 1 && !ceilMode {
		out, err := tryAddInt(in, offset+1)
		if err != nil || (out.EqualsValue(0) && in.IsValue()) {
			return Unknown(), errors.Wrapf(ErrInvalidValue, "input dimension %s too small for kernel %d (dilation %d, padding %d)",
				in, kernel, dilation, padTotal)
		}
		return out, nil
	}
	span, err := tryAddInt(in, offset)
	if err != nil {
		return Unknown(), errors.WithMessagef(err, "input dimension %s too small for kernel %d (dilation %d, padding %d)",
			in, kernel, dilation, padTotal)
	}
	rounding := RoundFloor
	if ceilMode {
		rounding = RoundCeil
	}
	return span.DivideWithRounding(stride, rounding).AddInt(1), nil
}
