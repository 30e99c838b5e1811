package graphir

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/shapegraph/inference"
	"github.com/gomlx/shapegraph/internal/linearize"
	"github.com/gomlx/shapegraph/internal/togomlx"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/pkg/errors"
)

// Model is the IR of a compiled graph.
//
// Values are identified by dense integer IDs, unique within the model: inputs take the first IDs, in declaration
// order, and every operator's inputs have IDs lower than its outputs.
type Model struct {
	Inputs    []Input
	Outputs   []Output
	Operators []Operator
	Constants []Constant

	// Values holds the information inferred for each value, indexed by ID.
	Values []inference.ValueInfo
}

// Input of a Model.
type Input struct {
	Name  string
	ID    int
	DType dtypes.DType
	Shape symbolic.Shape
}

// Output of a Model: a name given to the value with the given ID.
type Output struct {
	Name string
	ID   int
}

// Operator record of a Model.
type Operator struct {
	Op    inference.OpType
	Attrs inference.Attributes

	// Inputs holds the IDs of the input values; inference.NoValue for absent optional inputs.
	Inputs []int

	// Outputs holds the IDs of the values produced.
	Outputs []int
}

// Constant of a Model, with its raw little-endian data.
type Constant struct {
	ID    int
	DType dtypes.DType
	Dims  []int
	Data  []byte
}

// NumValues returns the number of values (and IDs) in the model.
func (m *Model) NumValues() int { return len(m.Values) }

// OutputIDs returns the IDs of the outputs, in order.
func (m *Model) OutputIDs() []int {
	ids := make([]int, len(m.Outputs))
	for ii, output := range m.Outputs {
		ids[ii] = output.ID
	}
	return ids
}

// InputShapes returns the shapes of the inputs as GoMLX shapes. It fails if any of them is not fully known.
func (m *Model) InputShapes() ([]shapes.Shape, error) {
	out := make([]shapes.Shape, len(m.Inputs))
	for ii, input := range m.Inputs {
		var err error
		out[ii], err = togomlx.Shape(input.DType, input.Shape)
		if err != nil {
			return nil, errors.WithMessagef(err, "input #%d (%q)", ii, input.Name)
		}
	}
	return out, nil
}

// producer of a value in a model: an input, a constant or an operator, by index into the respective list.
type producer struct {
	kind  nodeKind
	index int
}

// producers returns the producer of each value ID. It fails if a value is produced more than once or an ID is
// out of range.
func (m *Model) producers() (map[int]producer, error) {
	out := make(map[int]producer, len(m.Values))
	add := func(id int, p producer) error {
		if id < 0 {
			return errors.Errorf("invalid value ID #%d", id)
		}
		if _, found := out[id]; found {
			return errors.Errorf("value #%d produced more than once", id)
		}
		out[id] = p
		return nil
	}
	for ii, input := range m.Inputs {
		if err := add(input.ID, producer{inputNode, ii}); err != nil {
			return nil, err
		}
	}
	for ii, c := range m.Constants {
		if err := add(c.ID, producer{constantNode, ii}); err != nil {
			return nil, err
		}
	}
	for ii, op := range m.Operators {
		for _, id := range op.Outputs {
			if err := add(id, producer{operatorNode, ii}); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Sorted returns a copy of the model with the operators in topological order and the values renumbered: inputs
// first, then constants and operators' outputs in the order they are needed. Operators not needed by any output
// are kept, after the ones that are.
//
// It fails with ErrCycleDetected if the operators have a dependency cycle, and ErrDanglingInput if an operator
// uses a value no one produces.
func (m *Model) Sorted() (*Model, error) {
	producers, err := m.producers()
	if err != nil {
		return nil, err
	}
	sorted := &Model{
		Inputs:    make([]Input, 0, len(m.Inputs)),
		Operators: make([]Operator, 0, len(m.Operators)),
		Constants: make([]Constant, 0, len(m.Constants)),
	}
	newIDs := make(map[int]int, len(producers))
	assign := func(oldID int) int {
		id := len(sorted.Values)
		newIDs[oldID] = id
		var info inference.ValueInfo
		if oldID < len(m.Values) {
			info = m.Values[oldID]
		}
		sorted.Values = append(sorted.Values, info)
		return id
	}
	for _, input := range m.Inputs {
		input.ID = assign(input.ID)
		sorted.Inputs = append(sorted.Inputs, input)
	}

	// Nodes of the traversal: constants are numbered from 0, operators after the constants.
	numConstants := len(m.Constants)
	nodeOf := func(id int) (int, bool) {
		p, found := producers[id]
		switch {
		case !found || p.kind == inputNode:
			return 0, false
		case p.kind == constantNode:
			return p.index, true
		default:
			return numConstants + p.index, true
		}
	}
	dependencies := func(node int) []int {
		if node < numConstants {
			return nil
		}
		var deps []int
		for _, id := range m.Operators[node-numConstants].Inputs {
			if dep, ok := nodeOf(id); ok {
				deps = append(deps, dep)
			}
		}
		return deps
	}
	emit := func(node int) error {
		if node < numConstants {
			c := m.Constants[node]
			c.ID = assign(c.ID)
			sorted.Constants = append(sorted.Constants, c)
			return nil
		}
		op := m.Operators[node-numConstants]
		inputs := make([]int, len(op.Inputs))
		for ii, id := range op.Inputs {
			if id == inference.NoValue {
				inputs[ii] = inference.NoValue
				continue
			}
			newID, found := newIDs[id]
			if !found {
				return errors.Wrapf(ErrDanglingInput, "%s input #%d uses value #%d, which is not produced", op.Op, ii, id)
			}
			inputs[ii] = newID
		}
		outputs := make([]int, len(op.Outputs))
		for ii, id := range op.Outputs {
			outputs[ii] = assign(id)
		}
		sorted.Operators = append(sorted.Operators, Operator{Op: op.Op, Attrs: op.Attrs, Inputs: inputs, Outputs: outputs})
		return nil
	}

	sorter := linearize.New(dependencies, emit)
	var roots []int
	for _, output := range m.Outputs {
		if _, found := producers[output.ID]; !found {
			return nil, errors.Wrapf(ErrDanglingInput, "output %q uses value #%d, which is not produced", output.Name, output.ID)
		}
		if node, ok := nodeOf(output.ID); ok {
			roots = append(roots, node)
		}
	}
	for node := range numConstants + len(m.Operators) {
		roots = append(roots, node)
	}
	if err := sorter.Run(roots...); err != nil {
		return nil, errors.WithMessagef(err, "sorting model")
	}
	sorted.Outputs = make([]Output, len(m.Outputs))
	for ii, output := range m.Outputs {
		sorted.Outputs[ii] = Output{Name: output.Name, ID: newIDs[output.ID]}
	}
	return sorted, nil
}
