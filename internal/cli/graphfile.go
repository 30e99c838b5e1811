package cli

import (
	"bytes"
	"io"
	"os"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/shapegraph/graphir"
	"github.com/gomlx/shapegraph/inference"
	"github.com/gomlx/shapegraph/internal/linearize"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"gopkg.in/yaml.v3"
)

// GraphFile is the YAML description of a graph. Values are referred to by name.
//
//	inputs:
//	  - {name: x, dtype: float32, shape: [N, 3, 224, 224]}
//	constants:
//	  - {name: axes, dtype: int64, values: [0]}
//	nodes:
//	  - {op: Shape, inputs: [x], outputs: [x_shape]}
//	outputs: [x_shape]
//
// Nodes can be listed in any order. An empty input name is an absent optional input.
type GraphFile struct {
	Inputs    []InputSpec    `yaml:"inputs"`
	Constants []ConstantSpec `yaml:"constants"`
	Nodes     []NodeSpec     `yaml:"nodes"`
	Outputs   []string       `yaml:"outputs"`
}

// InputSpec describes a graph input. Shape entries are integers, single letters for named parameters
// (e.g. "N") or "?" for unknown dimensions. An omitted shape is a scalar.
type InputSpec struct {
	Name  string `yaml:"name"`
	DType string `yaml:"dtype"`
	Shape []any  `yaml:"shape"`
}

// ConstantSpec describes a constant. If dims is omitted, one value makes a scalar and more values a 1-D tensor.
// Booleans are given as true/false.
type ConstantSpec struct {
	Name   string `yaml:"name"`
	DType  string `yaml:"dtype"`
	Dims   []int  `yaml:"dims"`
	Values []any  `yaml:"values"`
}

// NodeSpec describes an operator.
type NodeSpec struct {
	Op      string         `yaml:"op"`
	Inputs  []string       `yaml:"inputs"`
	Outputs []string       `yaml:"outputs"`
	Attrs   map[string]any `yaml:"attrs"`
}

// LoadGraphFile reads and parses a graph description.
func LoadGraphFile(path string) (*GraphFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read graph file")
	}
	return ParseGraphFile(bytes.NewReader(data))
}

// ParseGraphFile parses a graph description. Unknown fields are rejected.
func ParseGraphFile(r io.Reader) (*GraphFile, error) {
	var gf GraphFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&gf); err != nil {
		return nil, errors.Wrapf(err, "failed to parse graph YAML")
	}
	if len(gf.Outputs) == 0 {
		return nil, errors.New("graph has no outputs")
	}
	return &gf, nil
}

// parseShape converts the YAML shape entries.
func parseShape(entries []any) (symbolic.Shape, error) {
	if len(entries) > symbolic.MaxRank {
		return symbolic.Shape{}, errors.Wrapf(symbolic.ErrMaxRankExceeded, "shape %v", entries)
	}
	dims := make([]symbolic.Dim, len(entries))
	for axis, entry := range entries {
		switch v := entry.(type) {
		case int:
			if v < 0 {
				return symbolic.Shape{}, errors.Errorf("negative dimension %d in shape %v", v, entries)
			}
			dims[axis] = symbolic.DimValue(v)
		case string:
			runes := []rune(v)
			switch {
			case v == "?":
				dims[axis] = symbolic.Unknown()
			case len(runes) == 1:
				dims[axis] = symbolic.DimParam(symbolic.ParamID(runes[0]))
			default:
				return symbolic.Shape{}, errors.Errorf("invalid dimension %q in shape %v: use an integer, a single letter or \"?\"", v, entries)
			}
		default:
			return symbolic.Shape{}, errors.Errorf("invalid dimension %v (%T) in shape %v", entry, entry, entries)
		}
	}
	return symbolic.MakeShape(dims...), nil
}

// constantValues converts the YAML values to a typed Go slice accepted by graphir.Builder.AddConstantValues.
func constantValues(dtype dtypes.DType, values []any) (any, error) {
	floats := make([]float64, len(values))
	for ii, value := range values {
		switch v := value.(type) {
		case int:
			floats[ii] = float64(v)
		case float64:
			floats[ii] = v
		case bool:
			if v {
				floats[ii] = 1
			}
		default:
			return nil, errors.Errorf("invalid constant value %v (%T)", value, value)
		}
	}
	switch dtype {
	case dtypes.Float32:
		return sliceMap(floats, func(v float64) float32 { return float32(v) }), nil
	case dtypes.Float64:
		return floats, nil
	case dtypes.Float16:
		return sliceMap(floats, func(v float64) float16.Float16 { return float16.Fromfloat32(float32(v)) }), nil
	case dtypes.Int64:
		return sliceMap(floats, func(v float64) int64 { return int64(v) }), nil
	case dtypes.Int32:
		return sliceMap(floats, func(v float64) int32 { return int32(v) }), nil
	case dtypes.Int16:
		return sliceMap(floats, func(v float64) int16 { return int16(v) }), nil
	case dtypes.Int8:
		return sliceMap(floats, func(v float64) int8 { return int8(v) }), nil
	case dtypes.Uint8:
		return sliceMap(floats, func(v float64) uint8 { return uint8(v) }), nil
	case dtypes.Bool:
		return sliceMap(floats, func(v float64) bool { return v != 0 }), nil
	}
	return nil, errors.Errorf("constants of dtype %s are not supported", inference.DTypeName(dtype))
}

// Build adds the graph to the builder and compiles it.
func (gf *GraphFile) Build(b *graphir.Builder) (*graphir.Model, error) {
	values := make(map[string]graphir.ValueRef)
	define := func(name string, v graphir.ValueRef) error {
		if name == "" {
			return errors.New("values must have a non-empty name")
		}
		if _, found := values[name]; found {
			return errors.Errorf("value %q defined more than once", name)
		}
		values[name] = v
		return nil
	}

	for _, input := range gf.Inputs {
		dtype, err := inference.ParseDType(input.DType)
		if err != nil {
			return nil, errors.WithMessagef(err, "input %q", input.Name)
		}
		shape, err := parseShape(input.Shape)
		if err != nil {
			return nil, errors.WithMessagef(err, "input %q", input.Name)
		}
		v, err := b.AddNamedInput(input.Name, dtype, shape)
		if err != nil {
			return nil, err
		}
		if err := define(input.Name, v); err != nil {
			return nil, err
		}
	}

	for _, c := range gf.Constants {
		dtype, err := inference.ParseDType(c.DType)
		if err != nil {
			return nil, errors.WithMessagef(err, "constant %q", c.Name)
		}
		typed, err := constantValues(dtype, c.Values)
		if err != nil {
			return nil, errors.WithMessagef(err, "constant %q", c.Name)
		}
		dims := c.Dims
		if dims == nil && len(c.Values) != 1 {
			dims = []int{len(c.Values)}
		}
		v, err := b.AddConstantValues(dims, typed)
		if err != nil {
			return nil, errors.WithMessagef(err, "constant %q", c.Name)
		}
		if err := define(c.Name, v); err != nil {
			return nil, err
		}
	}

	// Nodes are applied in dependency order.
	producers := make(map[string]int)
	for nodeIdx, node := range gf.Nodes {
		for _, name := range node.Outputs {
			if _, found := producers[name]; found {
				return nil, errors.Errorf("value %q defined more than once", name)
			}
			producers[name] = nodeIdx
		}
	}
	dependencies := func(nodeIdx int) []int {
		var deps []int
		for _, name := range gf.Nodes[nodeIdx].Inputs {
			if dep, found := producers[name]; found {
				deps = append(deps, dep)
			}
		}
		return deps
	}
	applyNode := func(nodeIdx int) error {
		node := gf.Nodes[nodeIdx]
		op, err := inference.ParseOpType(node.Op)
		if err != nil {
			return errors.WithMessagef(err, "node #%d", nodeIdx)
		}
		inputs := make([]graphir.ValueRef, len(node.Inputs))
		for ii, name := range node.Inputs {
			if name == "" {
				inputs[ii] = graphir.None()
				continue
			}
			v, found := values[name]
			if !found {
				return errors.Wrapf(graphir.ErrDanglingInput, "node #%d (%s) uses undefined value %q", nodeIdx, node.Op, name)
			}
			inputs[ii] = v
		}
		outputs, err := b.ApplyOperator(op, node.Attrs, inputs...)
		if err != nil {
			return errors.WithMessagef(err, "node #%d (%s)", nodeIdx, node.Op)
		}
		if len(outputs) != len(node.Outputs) {
			return errors.Errorf("node #%d (%s) produces %d outputs, %d names given",
				nodeIdx, node.Op, len(outputs), len(node.Outputs))
		}
		for ii, name := range node.Outputs {
			if err := define(name, outputs[ii]); err != nil {
				return err
			}
		}
		return nil
	}
	roots := make([]int, len(gf.Nodes))
	for ii := range roots {
		roots[ii] = ii
	}
	if err := linearize.Linearize(roots, dependencies, applyNode); err != nil {
		return nil, err
	}

	outputs := make([]graphir.ValueRef, len(gf.Outputs))
	usedNames := sets.Make[string]()
	for ii, name := range gf.Outputs {
		v, found := values[name]
		if !found {
			return nil, errors.Wrapf(graphir.ErrDanglingInput, "output %q is not defined", name)
		}
		if usedNames.Has(name) {
			return nil, errors.Errorf("output %q listed more than once", name)
		}
		usedNames.Insert(name)
		outputs[ii] = v
	}
	return b.CompileWithNames(gf.Outputs, outputs)
}

// sliceMap executes the given function sequentially for every element on in, and returns a mapped slice.
func sliceMap[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}
