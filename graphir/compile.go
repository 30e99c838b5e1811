package graphir

import (
	"fmt"

	"github.com/gomlx/shapegraph/inference"
	"github.com/gomlx/shapegraph/internal/linearize"
	"github.com/pkg/errors"
)

// Compile linearizes the graph needed to compute the given outputs into a Model. Outputs are named "output_0",
// "output_1", etc.
//
// After a successful Compile the builder is finalized: no more inputs, constants or operators can be added.
func (b *Builder) Compile(outputs ...ValueRef) (*Model, error) {
	names := make([]string, len(outputs))
	for ii := range names {
		names[ii] = fmt.Sprintf("output_%d", ii)
	}
	return b.CompileWithNames(names, outputs)
}

// CompileWithNames is like Compile, but with the names of the outputs given.
//
// All inputs are part of the Model, in the order they were added, even if not used. Constants and operators
// are only included if needed by an output, in the order they are needed.
//
// It fails with ErrCycleDetected if placeholders were bound in a cycle, and with ErrDanglingInput if an output
// depends on a value that was never added to this builder, or on an unbound placeholder.
func (b *Builder) CompileWithNames(names []string, outputs []ValueRef) (*Model, error) {
	if len(names) != len(outputs) {
		return nil, errors.Errorf("Compile given %d names for %d outputs", len(names), len(outputs))
	}
	outputIDs := make([]int, len(outputs))
	for ii, output := range outputs {
		var err error
		if outputIDs[ii], err = b.valueID(output); err != nil {
			return nil, errors.WithMessagef(err, "output #%d (%q)", ii, names[ii])
		}
	}

	model := &Model{}
	modelIDs := make([]int, len(b.producers))
	for ii := range modelIDs {
		modelIDs[ii] = inference.NoValue
	}
	newID := func(valueID int) int {
		id := len(model.Values)
		modelIDs[valueID] = id
		model.Values = append(model.Values, b.ctx.Info(valueID))
		return id
	}

	// Inputs come first, in declaration order.
	sorter := linearize.New(b.nodeDependencies, func(nodeIdx int) error {
		return b.emitNode(model, nodeIdx, modelIDs, newID)
	})
	for _, nodeIdx := range b.inputs {
		n := b.nodes[nodeIdx]
		info := b.ctx.Info(n.outputs[0])
		model.Inputs = append(model.Inputs, Input{Name: n.name, ID: newID(n.outputs[0]), DType: info.DType, Shape: info.Shape})
		sorter.MarkDone(nodeIdx)
	}

	roots := make([]int, len(outputIDs))
	for ii, id := range outputIDs {
		roots[ii] = b.producers[id]
	}
	if err := sorter.Run(roots...); err != nil {
		return nil, errors.WithMessagef(err, "compiling graph")
	}
	model.Outputs = make([]Output, len(outputIDs))
	for ii, id := range outputIDs {
		model.Outputs[ii] = Output{Name: names[ii], ID: b.modelID(id, modelIDs)}
	}
	b.finalized = true
	b.config.Diagnostics.Debugf("compiled graph: %d inputs, %d constants, %d operators, %d values",
		len(model.Inputs), len(model.Constants), len(model.Operators), len(model.Values))
	return model, nil
}

// nodeDependencies returns the nodes that produce the inputs of the given node.
func (b *Builder) nodeDependencies(nodeIdx int) []int {
	n := b.nodes[nodeIdx]
	switch n.kind {
	case operatorNode:
		deps := make([]int, 0, len(n.inputs))
		for _, id := range n.inputs {
			if id != inference.NoValue {
				deps = append(deps, b.producers[id])
			}
		}
		return deps
	case placeholderNode:
		if n.bound != inference.NoValue {
			return []int{b.producers[n.bound]}
		}
	}
	return nil
}

// modelID returns the model ID of a builder value, resolving placeholders to the value they are bound to.
func (b *Builder) modelID(valueID int, modelIDs []int) int {
	for modelIDs[valueID] == inference.NoValue {
		n := b.nodes[b.producers[valueID]]
		if n.kind != placeholderNode || n.bound == inference.NoValue {
			break
		}
		valueID = n.bound
	}
	return modelIDs[valueID]
}

// emitNode appends the node to the model, once all its dependencies were emitted.
func (b *Builder) emitNode(model *Model, nodeIdx int, modelIDs []int, newID func(valueID int) int) error {
	n := b.nodes[nodeIdx]
	switch n.kind {
	case constantNode:
		c := *n.constant
		c.ID = newID(n.outputs[0])
		model.Constants = append(model.Constants, c)

	case placeholderNode:
		if n.bound == inference.NoValue {
			return errors.Wrapf(ErrDanglingInput, "placeholder #%d was never bound", n.outputs[0])
		}
		modelIDs[n.outputs[0]] = b.modelID(n.bound, modelIDs)

	case operatorNode:
		op := Operator{Op: n.op, Attrs: n.attrs, Inputs: make([]int, len(n.inputs)), Outputs: make([]int, len(n.outputs))}
		for ii, id := range n.inputs {
			op.Inputs[ii] = inference.NoValue
			if id != inference.NoValue {
				op.Inputs[ii] = b.modelID(id, modelIDs)
			}
		}
		for ii, id := range n.outputs {
			op.Outputs[ii] = newID(id)
		}
		model.Operators = append(model.Operators, op)
	}
	return nil
}
