package graphir

import (
	"fmt"

	"github.com/gomlx/shapegraph/inference"
	"github.com/gomlx/shapegraph/internal/linearize"
	"github.com/pkg/errors"
)

// nonConstantDependencies returns the names of the inputs, and the ids of the unbound placeholders, the value
// depends on. A Shape or Size operator depends only on the shape of its operand, not on its data, so the
// dependencies are not followed through it: the operand is listed in shapesOf instead (by input name, or #id).
func (b *Builder) nonConstantDependencies(valueID int) (inputs []string, placeholders []int, shapesOf []string, err error) {
	dependencies := func(nodeIdx int) []int {
		if n := b.nodes[nodeIdx]; n.kind == operatorNode && isShapeOnlyOp(n.op) {
			return nil
		}
		return b.nodeDependencies(nodeIdx)
	}
	err = linearize.Linearize([]int{b.producers[valueID]}, dependencies, func(nodeIdx int) error {
		n := b.nodes[nodeIdx]
		switch {
		case n.kind == inputNode:
			inputs = append(inputs, n.name)
		case n.kind == placeholderNode && n.bound == inference.NoValue:
			placeholders = append(placeholders, n.outputs[0])
		case n.kind == operatorNode && isShapeOnlyOp(n.op) && !b.ctx.Partial(n.outputs[0]).IsFullyKnown():
			operand := n.inputs[0]
			if producer := b.nodes[b.producers[operand]]; producer.kind == inputNode {
				shapesOf = append(shapesOf, producer.name)
			} else {
				shapesOf = append(shapesOf, fmt.Sprintf("#%d", operand))
			}
		}
		return nil
	})
	return
}

// isShapeOnlyOp returns whether the operator's output depends only on the shape of its input.
func isShapeOnlyOp(op inference.OpType) bool {
	return op == inference.OpShape || op == inference.OpSize
}

// Materialize returns the contents of an integer or boolean value, if partial evaluation resolved all of them at
// build time: e.g. a shape computed from the static dimensions of an input.
//
// If the contents are not fully known, the error lists the non-constant inputs the value depends on.
func (b *Builder) Materialize(v ValueRef) ([]int, error) {
	valueID, err := b.valueID(v)
	if err != nil {
		return nil, err
	}
	info := b.ctx.Info(valueID)
	if info.Partial != nil {
		if ints, ok := info.Partial.ToInts(); ok {
			return ints, nil
		}
	}
	inputs, placeholders, shapesOf, err := b.nonConstantDependencies(valueID)
	if err != nil {
		return nil, errors.WithMessagef(err, "cannot materialize value %s", v)
	}
	return nil, errors.Errorf("cannot materialize value %s (%s): it depends on non-constant inputs=%q, placeholders=%v, "+
		"unresolved shapes of %q", v, info, inputs, placeholders, shapesOf)
}
