package graphir

import (
	"github.com/gomlx/shapegraph/inference"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/pkg/errors"
)

// Forward replays the operators of a compiled model into this builder, using the given values as the model
// inputs, and returns the values corresponding to the model outputs. It is used to splice one compiled graph
// into another.
//
// Parameters of the model's input shapes are renamed to the corresponding dimensions of the given inputs;
// parameters not bound this way become Unknown. The information of every replayed value is re-derived: the
// model's substituted recorded information is merged with the information of the given inputs and with what
// each operator's inference rule derives from them. A contradiction (e.g. an input whose dimension differs from
// the one recorded) is an error, and nothing is added to the builder.
func (b *Builder) Forward(model *Model, inputs ...ValueRef) ([]ValueRef, error) {
	if err := b.checkNotFinalized(); err != nil {
		return nil, errors.WithMessagef(err, "forwarding model")
	}
	if len(inputs) != len(model.Inputs) {
		return nil, errors.Wrapf(ErrInputMismatch, "model has %d inputs, %d were given", len(model.Inputs), len(inputs))
	}
	sorted, err := model.Sorted()
	if err != nil {
		return nil, err
	}

	// Parameter names are local to the model: bind each one to the dimension of the given inputs, and
	// substitute them in the recorded information. Parameters no input binds become Unknown.
	inputIDs := make([]int, len(sorted.Inputs))
	sub := make(symbolic.Substitution)
	for ii, input := range sorted.Inputs {
		valueID, err := b.valueID(inputs[ii])
		if err != nil {
			return nil, errors.WithMessagef(err, "input #%d (%q)", ii, input.Name)
		}
		inputIDs[ii] = valueID
		recorded, given := sorted.Values[input.ID], b.ctx.Info(valueID)
		if err := sub.BindShape(recorded.Shape, given.Shape); err != nil {
			return nil, errors.Wrapf(ErrInputMismatch, "input #%d (%q) expects %s, got %s: %v",
				ii, input.Name, recorded, given, err)
		}
		if err := sub.BindPartial(recorded.Partial, given.Partial); err != nil {
			return nil, errors.Wrapf(ErrInputMismatch, "input #%d (%q) expects %s, got %s: %v",
				ii, input.Name, recorded, given, err)
		}
	}

	// Replay in a merging context keyed by model IDs, pre-seeded with the substituted recorded information.
	replay := inference.NewContext(inference.ModeReplay).WithMaxPartialLength(b.config.MaxPartialLength)
	for id, info := range sorted.Values {
		info.Shape = sub.Shape(info.Shape)
		info.Partial = sub.Partial(info.Partial)
		if err := replay.Set(id, info); err != nil {
			return nil, errors.WithMessagef(err, "recorded information of value #%d", id)
		}
	}
	builderIDs := make(map[int]int, len(sorted.Values))
	for ii, input := range sorted.Inputs {
		given := b.ctx.Info(inputIDs[ii])
		if err := replay.Set(input.ID, given); err != nil {
			return nil, errors.Wrapf(ErrInputMismatch, "input #%d (%q) expects %s, got %s: %v",
				ii, input.Name, sorted.Values[input.ID], given, err)
		}
		builderIDs[input.ID] = inputIDs[ii]
	}
	for _, c := range sorted.Constants {
		info, err := constantInfo(&c, b.config.MaxPartialLength)
		if err != nil {
			return nil, errors.WithMessagef(err, "constant #%d", c.ID)
		}
		if err := replay.Set(c.ID, info); err != nil {
			return nil, errors.WithMessagef(err, "constant #%d", c.ID)
		}
	}
	options := b.options()
	for _, op := range sorted.Operators {
		if err := inference.Run(replay, op.Op, op.Attrs, op.Inputs, op.Outputs, options); err != nil {
			return nil, errors.WithMessagef(err, "replaying %s -> %v", op.Op, op.Outputs)
		}
	}

	// Commit: create the constants and operators in the builder.
	for _, c := range sorted.Constants {
		ids, err := b.addNode(&node{kind: constantNode, constant: &Constant{DType: c.DType, Dims: c.Dims, Data: c.Data},
			bound: inference.NoValue}, []inference.ValueInfo{replay.Info(c.ID)})
		if err != nil {
			return nil, err
		}
		builderIDs[c.ID] = ids[0]
	}
	for _, op := range sorted.Operators {
		n := &node{kind: operatorNode, op: op.Op, attrs: op.Attrs.Clone(), inputs: make([]int, len(op.Inputs)),
			bound: inference.NoValue}
		for ii, id := range op.Inputs {
			n.inputs[ii] = inference.NoValue
			if id != inference.NoValue {
				n.inputs[ii] = builderIDs[id]
			}
		}
		infos := make([]inference.ValueInfo, len(op.Outputs))
		for ii, id := range op.Outputs {
			infos[ii] = replay.Info(id)
		}
		ids, err := b.addNode(n, infos)
		if err != nil {
			return nil, err
		}
		for ii, id := range op.Outputs {
			builderIDs[id] = ids[ii]
		}
	}

	outputs := make([]ValueRef, len(sorted.Outputs))
	for ii, output := range sorted.Outputs {
		outputs[ii] = b.ref(builderIDs[output.ID])
	}
	b.config.Diagnostics.Debugf("forwarded model with %d operators: outputs %v", len(sorted.Operators), outputs)
	return outputs, nil
}
