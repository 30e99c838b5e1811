// Package graphir builds computation graphs of tensor operators, inferring the dtype, the (possibly symbolic)
// shape and, for small integer tensors, the contents of every value as it goes, and compiles them to a Model:
// a linear IR where every operator comes after the values it uses.
//
//   - Builder: create inputs, constants and operators; Compile the outputs into a Model.
//   - Model: the IR. It can be sorted, pretty-printed, exported to JSON, or replayed into another Builder with
//     Builder.Forward.
//
// Shapes are symbolic.Shape values: dimensions may be concrete, named parameters (e.g. a batch size "N") or
// unknown. Inference rules are in package inference.
package graphir

import (
	"fmt"
	"sync/atomic"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/shapegraph/inference"
	"github.com/gomlx/shapegraph/internal/togomlx"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/pkg/errors"
)

// ValueRef is a handle to a value of a Builder: an input, a constant or an operator output.
//
// The zero ValueRef (see None) represents an absent optional input.
type ValueRef struct {
	generation uint64
	id         int
}

// None returns the ValueRef used for absent optional operator inputs.
func None() ValueRef { return ValueRef{} }

// IsNone returns whether v is the absent value.
func (v ValueRef) IsNone() bool { return v.generation == 0 }

// String implements fmt.Stringer.
func (v ValueRef) String() string {
	if v.IsNone() {
		return "None"
	}
	return fmt.Sprintf("#%d", v.id)
}

type nodeKind int8

const (
	inputNode nodeKind = iota
	constantNode
	operatorNode
	placeholderNode
)

// node of the builder arena. Nodes are never changed after creation, except for binding a placeholder.
type node struct {
	kind nodeKind

	// name of inputs.
	name string

	op    inference.OpType
	attrs inference.Attributes

	// inputs and outputs are builder value ids. Absent inputs are inference.NoValue.
	inputs, outputs []int

	// constant data, for constant nodes. Its ID is not set.
	constant *Constant

	// bound is the value bound to a placeholder, or inference.NoValue.
	bound int
}

// Builder of a graph. Values are added with AddInput, AddConstant and ApplyOperator, and their information is
// inferred as they are added. Compile linearizes the graph into a Model.
//
// A Builder is not safe for concurrent use.
type Builder struct {
	generation uint64
	config     Config

	// nodes is the arena of nodes, and producers maps each value id to the index of its node.
	nodes      []*node
	producers  []int
	inputs     []int
	inputNames sets.Set[string]

	ctx       *inference.Context
	finalized bool
}

var lastGeneration atomic.Uint64

// NewBuilder creates an empty Builder with the DefaultConfig.
func NewBuilder() *Builder {
	config := DefaultConfig()
	return &Builder{
		generation: lastGeneration.Add(1),
		config:     config,
		inputNames: sets.Make[string](),
		ctx:        inference.NewContext(inference.ModeBuild).WithMaxPartialLength(config.MaxPartialLength),
	}
}

// NumValues returns the number of values created in the builder.
func (b *Builder) NumValues() int { return len(b.producers) }

// Info returns what is known about the value. It returns unknown information for refs not created by this builder.
func (b *Builder) Info(v ValueRef) inference.ValueInfo {
	id, err := b.valueID(v)
	if err != nil {
		return b.ctx.Info(inference.NoValue)
	}
	return b.ctx.Info(id)
}

// DType returns the dtype of the value.
func (b *Builder) DType(v ValueRef) dtypes.DType { return b.Info(v).DType }

// Shape returns the (symbolic) shape of the value.
func (b *Builder) Shape(v ValueRef) symbolic.Shape { return b.Info(v).Shape }

// valueID validates v and returns its id.
func (b *Builder) valueID(v ValueRef) (int, error) {
	switch {
	case v.IsNone():
		return 0, errors.Wrapf(ErrDanglingInput, "absent value")
	case v.generation != b.generation || v.id < 0 || v.id >= len(b.producers):
		return 0, errors.Wrapf(ErrDanglingInput, "value %s was not created by this builder", v)
	}
	return v.id, nil
}

func (b *Builder) ref(id int) ValueRef { return ValueRef{generation: b.generation, id: id} }

func (b *Builder) checkNotFinalized() error {
	if b.finalized {
		return ErrBuilderFinalized
	}
	return nil
}

// addNode appends the node, creating numOutputs new values, and writes their information into the context.
// Nothing is changed if writing fails.
func (b *Builder) addNode(n *node, infos []inference.ValueInfo) ([]int, error) {
	first := len(b.producers)
	for ii, info := range infos {
		if err := b.ctx.Set(first+ii, info); err != nil {
			return nil, err
		}
	}
	nodeIdx := len(b.nodes)
	n.outputs = make([]int, len(infos))
	for ii := range infos {
		n.outputs[ii] = first + ii
		b.producers = append(b.producers, nodeIdx)
	}
	b.nodes = append(b.nodes, n)
	return n.outputs, nil
}

// AddInput adds a new input to the graph, named after its position ("input_0", "input_1", ...).
func (b *Builder) AddInput(dtype dtypes.DType, shape symbolic.Shape) (ValueRef, error) {
	return b.AddNamedInput(fmt.Sprintf("input_%d", len(b.inputs)), dtype, shape)
}

// AddNamedInput adds a new input to the graph. Inputs are the first values of the compiled Model, in the order
// they are added.
func (b *Builder) AddNamedInput(name string, dtype dtypes.DType, shape symbolic.Shape) (ValueRef, error) {
	if err := b.checkNotFinalized(); err != nil {
		return None(), errors.WithMessagef(err, "adding input %q", name)
	}
	if b.inputNames.Has(name) {
		return None(), errors.Wrapf(ErrInputMismatch, "input name %q used more than once", name)
	}
	if dtype == dtypes.InvalidDType {
		return None(), errors.Wrapf(inference.ErrDTypeMismatch, "input %q has an invalid dtype", name)
	}
	ids, err := b.addNode(&node{kind: inputNode, name: name, bound: inference.NoValue},
		[]inference.ValueInfo{{DType: dtype, Shape: shape}})
	if err != nil {
		return None(), err
	}
	b.inputNames.Insert(name)
	b.inputs = append(b.inputs, b.producers[ids[0]])
	return b.ref(ids[0]), nil
}

// AddGoMLXInput adds an input with the dtype and shape of a GoMLX shape. Negative dimensions are taken as
// unknown.
func (b *Builder) AddGoMLXInput(name string, shape shapes.Shape) (ValueRef, error) {
	dtype, s, err := togomlx.FromShape(shape)
	if err != nil {
		return None(), errors.WithMessagef(err, "input %q", name)
	}
	return b.AddNamedInput(name, dtype, s)
}

// ApplyOperator adds an operator to the graph and returns its outputs, with their dtype, shape and (for small
// integer values) partially evaluated contents already inferred.
//
// Absent optional inputs are given as None(). A failure of the inference rule (e.g. incompatible shapes) is
// returned as an error, and nothing is added to the graph.
func (b *Builder) ApplyOperator(op inference.OpType, attrs inference.Attributes, inputs ...ValueRef) ([]ValueRef, error) {
	if err := b.checkNotFinalized(); err != nil {
		return nil, errors.WithMessagef(err, "applying %s", op)
	}
	inputIDs := make([]int, len(inputs))
	for ii, input := range inputs {
		if input.IsNone() {
			inputIDs[ii] = inference.NoValue
			continue
		}
		var err error
		if inputIDs[ii], err = b.valueID(input); err != nil {
			return nil, errors.WithMessagef(err, "%s input #%d", op, ii)
		}
	}
	attrs = attrs.Clone()

	numOutputs, err := inference.NumOutputs(b.ctx, op, attrs, inputIDs)
	if err != nil {
		return nil, err
	}
	first := len(b.producers)
	outputIDs := make([]int, numOutputs)
	for ii := range outputIDs {
		outputIDs[ii] = first + ii
	}
	// The output ids are only taken by the node if inference succeeds.
	if err := inference.Run(b.ctx, op, attrs, inputIDs, outputIDs, b.options()); err != nil {
		return nil, err
	}
	n := &node{kind: operatorNode, op: op, attrs: attrs, inputs: inputIDs, outputs: outputIDs, bound: inference.NoValue}
	nodeIdx := len(b.nodes)
	for range outputIDs {
		b.producers = append(b.producers, nodeIdx)
	}
	b.nodes = append(b.nodes, n)

	outputs := make([]ValueRef, numOutputs)
	for ii, id := range outputIDs {
		outputs[ii] = b.ref(id)
	}
	b.config.Diagnostics.Debugf("%s(%v) -> %s", op, inputs, b.describe(outputIDs))
	return outputs, nil
}

// Apply is a shortcut to ApplyOperator for operators with exactly one output.
func (b *Builder) Apply(op inference.OpType, attrs inference.Attributes, inputs ...ValueRef) (ValueRef, error) {
	outputs, err := b.ApplyOperator(op, attrs, inputs...)
	if err != nil {
		return None(), err
	}
	if len(outputs) != 1 {
		return None(), errors.Errorf("%s has %d outputs, use ApplyOperator", op, len(outputs))
	}
	return outputs[0], nil
}

func (b *Builder) options() inference.Options {
	return inference.Options{Promotion: b.config.Promotion, Warnf: b.config.Diagnostics.Warnf}
}

// describe formats the information of the given values, for diagnostics.
func (b *Builder) describe(ids []int) string {
	s := ""
	for ii, id := range ids {
		if ii > 0 {
			s += ", "
		}
		s += fmt.Sprintf("#%d:%s", id, b.ctx.Info(id))
	}
	return s
}

// Placeholder creates a value whose producer is given later with Bind. Operators can use it as input in the
// meantime, with the given dtype and shape.
//
// It is the only way to express a cycle, which Compile then reports with ErrCycleDetected.
func (b *Builder) Placeholder(dtype dtypes.DType, shape symbolic.Shape) (ValueRef, error) {
	if err := b.checkNotFinalized(); err != nil {
		return None(), errors.WithMessagef(err, "creating placeholder")
	}
	if dtype == dtypes.InvalidDType {
		return None(), errors.Wrapf(inference.ErrDTypeMismatch, "placeholder has an invalid dtype")
	}
	ids, err := b.addNode(&node{kind: placeholderNode, bound: inference.NoValue},
		[]inference.ValueInfo{{DType: dtype, Shape: shape}})
	if err != nil {
		return None(), err
	}
	return b.ref(ids[0]), nil
}

// Bind sets the value a placeholder stands for. The value must have the placeholder's dtype and a compatible
// shape.
func (b *Builder) Bind(placeholder, value ValueRef) error {
	if err := b.checkNotFinalized(); err != nil {
		return errors.WithMessagef(err, "binding placeholder")
	}
	placeholderID, err := b.valueID(placeholder)
	if err != nil {
		return err
	}
	valueID, err := b.valueID(value)
	if err != nil {
		return err
	}
	n := b.nodes[b.producers[placeholderID]]
	if n.kind != placeholderNode {
		return errors.Wrapf(ErrInputMismatch, "value %s is not a placeholder", placeholder)
	}
	if n.bound != inference.NoValue {
		return errors.Wrapf(ErrInputMismatch, "placeholder %s already bound to #%d", placeholder, n.bound)
	}
	want, got := b.ctx.Info(placeholderID), b.ctx.Info(valueID)
	if want.DType != got.DType {
		return errors.Wrapf(inference.ErrDTypeMismatch, "binding placeholder %s (%s) to %s (%s)",
			placeholder, inference.DTypeName(want.DType), value, inference.DTypeName(got.DType))
	}
	if _, err := symbolic.MaxDefinedShape(want.Shape, got.Shape); err != nil {
		return errors.WithMessagef(err, "binding placeholder %s to %s", placeholder, value)
	}
	n.bound = valueID
	return nil
}

// addConstantNode adds a constant with already validated data.
func (b *Builder) addConstantNode(c *Constant) (ValueRef, error) {
	info, err := constantInfo(c, b.config.MaxPartialLength)
	if err != nil {
		return None(), err
	}
	ids, err := b.addNode(&node{kind: constantNode, constant: c, bound: inference.NoValue}, []inference.ValueInfo{info})
	if err != nil {
		return None(), err
	}
	return b.ref(ids[0]), nil
}
