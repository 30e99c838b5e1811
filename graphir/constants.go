package graphir

import (
	"bytes"
	"encoding/binary"
	"math"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapegraph/inference"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// AddConstant adds a constant with the given dtype, dimensions and raw data, in little-endian order.
// The length of data must match the shape. Use nil dims for a scalar.
//
// The contents of small integer and boolean constants are used by the partial evaluation of shapes.
func (b *Builder) AddConstant(dtype dtypes.DType, dims []int, data []byte) (ValueRef, error) {
	if err := b.checkNotFinalized(); err != nil {
		return None(), errors.WithMessagef(err, "adding constant")
	}
	c := &Constant{DType: dtype, Dims: slices.Clone(dims), Data: slices.Clone(data)}
	if err := c.validate(); err != nil {
		return None(), err
	}
	return b.addConstantNode(c)
}

// AddConstantValues adds a constant from a flat slice of Go values: []float32, []float64, []float16.Float16,
// []int64, []int32, []int16, []int8, []uint8, []bool or []int (stored as Int64). Use nil dims for a scalar.
func (b *Builder) AddConstantValues(dims []int, values any) (ValueRef, error) {
	dtype, data, err := encodeValues(values)
	if err != nil {
		return None(), err
	}
	return b.AddConstant(dtype, dims, data)
}

// AddScalar is a shortcut to add an Int64 scalar constant.
func (b *Builder) AddScalar(value int) (ValueRef, error) {
	return b.AddConstantValues(nil, []int64{int64(value)})
}

// AddInts is a shortcut to add a 1-D Int64 constant, e.g. a shape or a list of axes.
func (b *Builder) AddInts(values ...int) (ValueRef, error) {
	return b.AddConstantValues([]int{len(values)}, values)
}

// Length returns the number of elements of the constant.
func (c *Constant) Length() int {
	length := 1
	for _, d := range c.Dims {
		length *= d
	}
	return length
}

// Shape returns the shape of the constant.
func (c *Constant) Shape() symbolic.Shape { return symbolic.Make(c.Dims...) }

func (c *Constant) validate() error {
	if c.DType == dtypes.InvalidDType || c.DType.Size() <= 0 {
		return errors.Wrapf(inference.ErrDTypeMismatch, "constant with unsupported dtype %s", inference.DTypeName(c.DType))
	}
	if len(c.Dims) > symbolic.MaxRank {
		return errors.Wrapf(symbolic.ErrMaxRankExceeded, "constant with dimensions %v", c.Dims)
	}
	for _, d := range c.Dims {
		if d < 0 {
			return errors.Wrapf(symbolic.ErrInvalidValue, "constant with negative dimension in %v", c.Dims)
		}
	}
	if want := c.Length() * c.DType.Size(); len(c.Data) != want {
		return errors.Wrapf(symbolic.ErrValueMismatch, "constant %s%v requires %d bytes of data, got %d",
			inference.DTypeName(c.DType), c.Dims, want, len(c.Data))
	}
	return nil
}

// constantInfo returns the inferred information of a constant: its contents are decoded if it holds at most
// maxPartialLength integers or booleans.
func constantInfo(c *Constant, maxPartialLength int) (inference.ValueInfo, error) {
	if err := c.validate(); err != nil {
		return inference.ValueInfo{}, err
	}
	info := inference.ValueInfo{DType: c.DType, Shape: c.Shape()}
	if c.Length() > maxPartialLength {
		return info, nil
	}
	if ints, ok := c.Ints(); ok {
		info.Partial = symbolic.PartialFromInts(ints...)
	}
	return info, nil
}

// Ints returns the flat contents of an integer or boolean constant as ints. It returns false for other dtypes.
func (c *Constant) Ints() ([]int, bool) {
	size := c.DType.Size()
	n := len(c.Data) / max(size, 1)
	ints := make([]int, n)
	le := binary.LittleEndian
	for ii := range n {
		raw := c.Data[ii*size : (ii+1)*size]
		switch c.DType {
		case dtypes.Bool, dtypes.Uint8:
			ints[ii] = int(raw[0])
		case dtypes.Int8:
			ints[ii] = int(int8(raw[0]))
		case dtypes.Int16:
			ints[ii] = int(int16(le.Uint16(raw)))
		case dtypes.Uint16:
			ints[ii] = int(le.Uint16(raw))
		case dtypes.Int32:
			ints[ii] = int(int32(le.Uint32(raw)))
		case dtypes.Uint32:
			ints[ii] = int(le.Uint32(raw))
		case dtypes.Int64:
			ints[ii] = int(int64(le.Uint64(raw)))
		case dtypes.Uint64:
			v := le.Uint64(raw)
			if v > math.MaxInt64 {
				return nil, false
			}
			ints[ii] = int(v)
		default:
			return nil, false
		}
	}
	return ints, true
}

// encodeValues converts a flat slice of Go values to its dtype and little-endian raw data.
func encodeValues(values any) (dtypes.DType, []byte, error) {
	var dtype dtypes.DType
	switch v := values.(type) {
	case []float32:
		dtype = dtypes.Float32
	case []float64:
		dtype = dtypes.Float64
	case []float16.Float16:
		dtype = dtypes.Float16
	case []int64:
		dtype = dtypes.Int64
	case []int32:
		dtype = dtypes.Int32
	case []int16:
		dtype = dtypes.Int16
	case []int8:
		dtype = dtypes.Int8
	case []uint8:
		dtype = dtypes.Uint8
	case []bool:
		dtype = dtypes.Bool
	case []int:
		dtype = dtypes.Int64
		values = sliceMap(v, func(x int) int64 { return int64(x) })
	default:
		return dtypes.InvalidDType, nil, errors.Errorf("unsupported constant values of type %T", values)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, values); err != nil {
		return dtypes.InvalidDType, nil, errors.Wrapf(err, "encoding constant values of type %T", values)
	}
	return dtype, buf.Bytes(), nil
}

// sliceMap executes the given function sequentially for every element on in, and returns a mapped slice.
func sliceMap[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}
