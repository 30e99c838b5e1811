// Package togomlx contains conversion utilities between symbolic shapes and GoMLX shapes.
package togomlx

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/pkg/errors"
)

// Shape converts a dtype and a fully known symbolic shape to GoMLX shapes.Shape (it includes the dtype).
func Shape(dtype dtypes.DType, s symbolic.Shape) (shape shapes.Shape, err error) {
	if dtype == dtypes.InvalidDType {
		err = errors.New("invalid dtype")
		return
	}
	dims, ok := s.ToInts()
	if !ok {
		err = errors.Errorf("shape %s is not fully known", s)
		return
	}
	shape = shapes.Make(dtype, dims...)
	return
}

// FromShape converts a GoMLX shapes.Shape to its dtype and symbolic shape. Negative dimensions are converted to
// unknown dimensions.
func FromShape(shape shapes.Shape) (dtype dtypes.DType, s symbolic.Shape, err error) {
	dtype = shape.DType
	if dtype == dtypes.InvalidDType {
		err = errors.New("GoMLX shape has an invalid dtype")
		return
	}
	if len(shape.Dimensions) > symbolic.MaxRank {
		err = errors.Wrapf(symbolic.ErrMaxRankExceeded, "GoMLX shape %s", shape)
		return
	}
	dims := make([]symbolic.Dim, len(shape.Dimensions))
	for axis, dim := range shape.Dimensions {
		if dim < 0 {
			dims[axis] = symbolic.Unknown()
		} else {
			dims[axis] = symbolic.DimValue(dim)
		}
	}
	s = symbolic.MakeShape(dims...)
	return
}
