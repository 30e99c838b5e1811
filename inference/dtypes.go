package inference

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

var dtypeNames = map[dtypes.DType]string{
	dtypes.Bool:       "bool",
	dtypes.Int8:       "int8",
	dtypes.Int16:      "int16",
	dtypes.Int32:      "int32",
	dtypes.Int64:      "int64",
	dtypes.Uint8:      "uint8",
	dtypes.Uint16:     "uint16",
	dtypes.Uint32:     "uint32",
	dtypes.Uint64:     "uint64",
	dtypes.Float16:    "float16",
	dtypes.BFloat16:   "bfloat16",
	dtypes.Float32:    "float32",
	dtypes.Float64:    "float64",
	dtypes.Complex64:  "complex64",
	dtypes.Complex128: "complex128",
}

var dtypesByName = func() map[string]dtypes.DType {
	m := make(map[string]dtypes.DType, len(dtypeNames))
	for dtype, name := range dtypeNames {
		m[name] = dtype
	}
	return m
}()

// DTypeName returns the lower-case name used for dtypes in the IR text and JSON forms, e.g. "float32".
func DTypeName(dtype dtypes.DType) string {
	if name, found := dtypeNames[dtype]; found {
		return name
	}
	return "invalid"
}

// ParseDType converts a dtype name (as returned by DTypeName) to a dtype.
func ParseDType(name string) (dtypes.DType, error) {
	if dtype, found := dtypesByName[name]; found {
		return dtype, nil
	}
	return dtypes.InvalidDType, errors.Errorf("unsupported/unknown data type %q", name)
}

// carriesPartial returns whether values of the dtype are partially evaluated: only integer and boolean values.
func carriesPartial(dtype dtypes.DType) bool {
	return dtype.IsInt() || dtype == dtypes.Bool
}

// DTypePromotionConfig controls how dtype mismatches between operands are handled.
type DTypePromotionConfig struct {
	// AllowPromotion enables automatic dtype promotion. If false (default),
	// dtype mismatches are errors.
	AllowPromotion bool

	// PrioritizeFloat16 prefers Float16 over Float32 when promoting.
	// Only applies when AllowPromotion is true.
	PrioritizeFloat16 bool
}

// promoteDTypes returns the common dtype of the operands, following the promotion rules.
// It panics with ErrDTypeMismatch if promotion is not allowed and dtypes differ.
//
// When PrioritizeFloat16 is enabled, Float16+Float32 promotes to Float16.
// Otherwise, standard promotion rules apply: Float64 > Float32 > Float16 > Int64 > ...
func promoteDTypes(config DTypePromotionConfig, operands ...dtypes.DType) dtypes.DType {
	target := dtypes.InvalidDType
	for _, dtype := range operands {
		if dtype == dtypes.InvalidDType || dtype == target {
			continue
		}
		if target == dtypes.InvalidDType {
			target = dtype
			continue
		}
		if !config.AllowPromotion {
			panic(errors.Wrapf(ErrDTypeMismatch, "%s vs %s (implicit casting is disabled, see AllowDTypePromotion)",
				DTypeName(target), DTypeName(dtype)))
		}
		if config.PrioritizeFloat16 &&
			((target == dtypes.Float16 && dtype == dtypes.Float32) || (target == dtypes.Float32 && dtype == dtypes.Float16)) {
			target = dtypes.Float16
			continue
		}
		if dtypePriority(dtype) > dtypePriority(target) {
			target = dtype
		}
	}
	return target
}

// dtypePriority returns a priority value for dtype promotion.
// Higher values are preferred in mixed-type operations.
func dtypePriority(dt dtypes.DType) int {
	switch dt {
	case dtypes.Complex128:
		return 110
	case dtypes.Complex64:
		return 105
	case dtypes.Float64:
		return 100
	case dtypes.Float32:
		return 90
	case dtypes.Float16, dtypes.BFloat16:
		return 80
	case dtypes.Int64:
		return 70
	case dtypes.Int32:
		return 60
	case dtypes.Int16:
		return 50
	case dtypes.Int8:
		return 40
	case dtypes.Uint64:
		return 35
	case dtypes.Uint32:
		return 30
	case dtypes.Uint16:
		return 25
	case dtypes.Uint8:
		return 20
	case dtypes.Bool:
		return 10
	default:
		return 0
	}
}
