package inference

import (
	"math"
	"slices"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/pkg/errors"
)

// Attributes are the static parameters of an operator, e.g. "axis" or "perm".
//
// Values can be Go ints (any width), floats, strings, bools, dtypes.DType, or slices of those. Slices of any
// (as produced by decoders like YAML or JSON) are accepted as long as their elements have the right kind.
type Attributes map[string]any

// Clone returns a shallow copy of the attributes.
func (attrs Attributes) Clone() Attributes {
	out := make(Attributes, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// SortedKeys returns the attribute names in sorted order.
func (attrs Attributes) SortedKeys() []string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// getAttr returns the given attribute. If required is true, it panics with ErrAttribute if the attribute
// is missing.
func getAttr(c *Call, name string, required bool) (any, bool) {
	value, found := c.Attrs[name]
	if !found && required {
		panic(errors.Wrapf(ErrAttribute, "%s is missing required attribute %q", c.Op, name))
	}
	return value, found
}

func attrTypeError(c *Call, name, want string, value any) {
	panic(errors.Wrapf(ErrAttribute, "%s attribute %q must be %s, got %#v (%T)", c.Op, name, want, value, value))
}

func toInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case uint8:
		return int(v), true
	case uint16:
		return int(v), true
	case uint32:
		return int(v), true
	case uint64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toInts(value any) ([]int, bool) {
	if v, ok := toInt(value); ok {
		return []int{v}, true
	}
	switch v := value.(type) {
	case []int:
		return slices.Clone(v), true
	case []int64:
		return sliceMap(v, func(x int64) int { return int(x) }), true
	case []int32:
		return sliceMap(v, func(x int32) int { return int(x) }), true
	case []any:
		ints := make([]int, len(v))
		for ii, x := range v {
			var ok bool
			if ints[ii], ok = toInt(x); !ok {
				return nil, false
			}
		}
		return ints, true
	}
	return nil, false
}

func toFloat(value any) (float32, bool) {
	switch v := value.(type) {
	case float32:
		return v, true
	case float64:
		return float32(v), true
	}
	if i, ok := toInt(value); ok {
		return float32(i), true
	}
	return 0, false
}

func toFloats(value any) ([]float32, bool) {
	if v, ok := toFloat(value); ok {
		return []float32{v}, true
	}
	switch v := value.(type) {
	case []float32:
		return slices.Clone(v), true
	case []float64:
		return sliceMap(v, func(x float64) float32 { return float32(x) }), true
	case []any:
		floats := make([]float32, len(v))
		for ii, x := range v {
			var ok bool
			if floats[ii], ok = toFloat(x); !ok {
				return nil, false
			}
		}
		return floats, true
	}
	if ints, ok := toInts(value); ok {
		return sliceMap(ints, func(x int) float32 { return float32(x) }), true
	}
	return nil, false
}

// mustGetIntAttr gets the attribute as an integer.
// It panics with ErrAttribute if the attribute is not set or if it is of the wrong type.
func mustGetIntAttr(c *Call, name string) int {
	value, _ := getAttr(c, name, true)
	i, ok := toInt(value)
	if !ok {
		attrTypeError(c, name, "an int", value)
	}
	return i
}

// getIntAttrOr gets an integer attribute if present or returns the given defaultValue.
// It panics with ErrAttribute if the attribute is present but is of the wrong type.
func getIntAttrOr(c *Call, name string, defaultValue int) int {
	if _, found := getAttr(c, name, false); !found {
		return defaultValue
	}
	return mustGetIntAttr(c, name)
}

// getBoolAttrOr gets a boolean attribute (an int value of 0 or 1 is also accepted) if present or returns the
// given defaultValue.
func getBoolAttrOr(c *Call, name string, defaultValue bool) bool {
	defaultInt := 0
	if defaultValue {
		defaultInt = 1
	}
	return getIntAttrOr(c, name, defaultInt) != 0
}

// mustGetIntsAttr gets a list of integers attribute. A single integer is accepted as a list of one element.
// It panics with ErrAttribute if the attribute is not present or if it is of the wrong type.
func mustGetIntsAttr(c *Call, name string) []int {
	value, _ := getAttr(c, name, true)
	ints, ok := toInts(value)
	if !ok {
		attrTypeError(c, name, "a list of ints", value)
	}
	return ints
}

// getIntsAttrOr gets an integer list attribute if present or returns the given defaultValues.
func getIntsAttrOr(c *Call, name string, defaultValues []int) []int {
	if _, found := getAttr(c, name, false); !found {
		return defaultValues
	}
	return mustGetIntsAttr(c, name)
}

// getFloatAttrOr gets a float attribute if present or returns the given defaultValue.
func getFloatAttrOr(c *Call, name string, defaultValue float32) float32 {
	value, found := getAttr(c, name, false)
	if !found {
		return defaultValue
	}
	f, ok := toFloat(value)
	if !ok {
		attrTypeError(c, name, "a float", value)
	}
	return f
}

// getFloatsAttrOr gets a float list attribute if present or returns the given defaultValues.
func getFloatsAttrOr(c *Call, name string, defaultValues []float32) []float32 {
	value, found := getAttr(c, name, false)
	if !found {
		return defaultValues
	}
	floats, ok := toFloats(value)
	if !ok {
		attrTypeError(c, name, "a list of floats", value)
	}
	return floats
}

// getStringAttrOr gets a string attribute if present or returns the given defaultValue.
func getStringAttrOr(c *Call, name string, defaultValue string) string {
	value, found := getAttr(c, name, false)
	if !found {
		return defaultValue
	}
	s, ok := value.(string)
	if !ok {
		attrTypeError(c, name, "a string", value)
	}
	return s
}

// getDTypeAttrOr gets a dtype attribute, given as a dtypes.DType or as its name, if present or returns the
// given defaultValue.
func getDTypeAttrOr(c *Call, name string, defaultValue dtypes.DType) dtypes.DType {
	value, found := getAttr(c, name, false)
	if !found {
		return defaultValue
	}
	switch v := value.(type) {
	case dtypes.DType:
		return v
	case string:
		dtype, err := ParseDType(v)
		if err != nil {
			panic(errors.Wrapf(ErrAttribute, "%s attribute %q: %v", c.Op, name, err))
		}
		return dtype
	}
	attrTypeError(c, name, "a dtype", value)
	return dtypes.InvalidDType
}

// mustGetDTypeAttr gets a dtype attribute, and panics with ErrAttribute if it is missing.
func mustGetDTypeAttr(c *Call, name string) dtypes.DType {
	getAttr(c, name, true)
	return getDTypeAttrOr(c, name, dtypes.InvalidDType)
}

// sliceMap executes the given function sequentially for every element on in, and returns a mapped slice.
func sliceMap[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}
