package graphir

import (
	"bytes"

	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapegraph/inference"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// This file defines the JSON interchange form of a Model, built as a protobuf Struct.

func asDType(value any) (dtypes.DType, bool) {
	dtype, ok := value.(dtypes.DType)
	return dtype, ok
}

// jsonValue converts attribute values to the types accepted by structpb.NewValue.
func jsonValue(value any) any {
	if dtype, ok := asDType(value); ok {
		return inference.DTypeName(dtype)
	}
	switch v := value.(type) {
	case []int:
		return sliceMap(v, func(x int) any { return x })
	case []int64:
		return sliceMap(v, func(x int64) any { return x })
	case []float32:
		return sliceMap(v, func(x float32) any { return x })
	case []float64:
		return sliceMap(v, func(x float64) any { return x })
	case []string:
		return sliceMap(v, func(x string) any { return x })
	case []any:
		return sliceMap(v, jsonValue)
	}
	return value
}

func idsValue(ids []int) []any {
	return sliceMap(ids, func(id int) any { return id })
}

// ToStruct returns the model as a protobuf Struct: inputs, outputs, operators, constants (with base64 data) and
// the inferred information of each value, with shapes and contents in their string form (e.g. "(N, 3)").
func (m *Model) ToStruct() (*structpb.Struct, error) {
	inputs := make([]any, len(m.Inputs))
	for ii, input := range m.Inputs {
		inputs[ii] = map[string]any{
			"name":  input.Name,
			"id":    input.ID,
			"dtype": inference.DTypeName(input.DType),
			"shape": input.Shape.String(),
		}
	}
	outputs := make([]any, len(m.Outputs))
	for ii, output := range m.Outputs {
		outputs[ii] = map[string]any{"name": output.Name, "id": output.ID}
	}
	operators := make([]any, len(m.Operators))
	for ii, op := range m.Operators {
		attrs := make(map[string]any, len(op.Attrs))
		for key, value := range op.Attrs {
			attrs[key] = jsonValue(value)
		}
		operators[ii] = map[string]any{
			"op":      op.Op.String(),
			"attrs":   attrs,
			"inputs":  idsValue(op.Inputs),
			"outputs": idsValue(op.Outputs),
		}
	}
	constants := make([]any, len(m.Constants))
	for ii, c := range m.Constants {
		constants[ii] = map[string]any{
			"id":    c.ID,
			"dtype": inference.DTypeName(c.DType),
			"dims":  idsValue(c.Dims),
			"data":  c.Data,
		}
	}
	values := make([]any, len(m.Values))
	for id := range m.Values {
		values[id] = m.valueString(id)
	}
	s, err := structpb.NewStruct(map[string]any{
		"inputs":    inputs,
		"outputs":   outputs,
		"operators": operators,
		"constants": constants,
		"values":    values,
	})
	if err != nil {
		return nil, errors.Wrap(err, "converting model to protobuf Struct")
	}
	return s, nil
}

// MarshalJSON implements json.Marshaler, using the ToStruct form.
func (m *Model) MarshalJSON() ([]byte, error) {
	s, err := m.ToStruct()
	if err != nil {
		return nil, err
	}
	return protojson.Marshal(s)
}

// fingerprintNamespace is the namespace of the name-based UUIDs returned by Model.Fingerprint.
var fingerprintNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/gomlx/shapegraph/model"))

// Fingerprint returns a deterministic UUID (version 5) of the model: models with the same structure, inferred
// information and constant data have the same fingerprint.
func (m *Model) Fingerprint() uuid.UUID {
	var buf bytes.Buffer
	buf.WriteString(m.String())
	for _, c := range m.Constants {
		buf.Write(c.Data)
	}
	return uuid.NewSHA1(fingerprintNamespace, buf.Bytes())
}
