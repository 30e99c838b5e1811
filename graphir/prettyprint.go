package graphir

import (
	"bytes"
	"fmt"
	"maps"
	"slices"

	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/shapegraph/inference"
)

// String implements fmt.Stringer, and pretty prints the model: a summary, followed by the inputs, constants,
// operators (with the information inferred for their outputs) and outputs.
func (m *Model) String() string {
	var buf bytes.Buffer
	// w writes lines to the buffer.
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("Model:\n")
	w("\t# inputs:\t%d\n", len(m.Inputs))
	w("\t# constants:\t%d\n", len(m.Constants))
	w("\t# operators:\t%d\n", len(m.Operators))
	w("\t# values:\t%d\n", len(m.Values))
	opTypesSet := sets.Make[string]()
	for _, op := range m.Operators {
		opTypesSet.Insert(op.Op.String())
	}
	w("\tOp types:\t%q\n", slices.Sorted(maps.Keys(opTypesSet)))

	if len(m.Inputs) > 0 {
		w("Inputs:\n")
		for _, input := range m.Inputs {
			w("\t#%d %s: %s\n", input.ID, input.Name, m.valueString(input.ID))
		}
	}
	if len(m.Constants) > 0 {
		w("Constants:\n")
		for _, c := range m.Constants {
			w("\t#%d: %s\n", c.ID, m.valueString(c.ID))
		}
	}
	if len(m.Operators) > 0 {
		w("Operators:\n")
		for _, op := range m.Operators {
			w("\t%s = %s(%s)", idList(op.Outputs), op.Op, idList(op.Inputs))
			if len(op.Attrs) > 0 {
				w(" {")
				for ii, key := range op.Attrs.SortedKeys() {
					if ii > 0 {
						w(", ")
					}
					w("%s=%s", key, attrString(op.Attrs[key]))
				}
				w("}")
			}
			w("\n")
			for _, id := range op.Outputs {
				w("\t\t#%d: %s\n", id, m.valueString(id))
			}
		}
	}
	w("Outputs:\n")
	for _, output := range m.Outputs {
		w("\t%s: #%d\n", output.Name, output.ID)
	}
	return buf.String()
}

func (m *Model) valueString(id int) string {
	if id < 0 || id >= len(m.Values) {
		return "?"
	}
	return m.Values[id].String()
}

// idList formats value IDs as "#1, #2", with "None" for absent values.
func idList(ids []int) string {
	var buf bytes.Buffer
	for ii, id := range ids {
		if ii > 0 {
			buf.WriteString(", ")
		}
		if id == inference.NoValue {
			buf.WriteString("None")
		} else {
			fmt.Fprintf(&buf, "#%d", id)
		}
	}
	return buf.String()
}

// attrString formats an attribute value, with dtypes by name and strings quoted.
func attrString(value any) string {
	switch v := value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case []any:
		var buf bytes.Buffer
		buf.WriteString("[")
		for ii, e := range v {
			if ii > 0 {
				buf.WriteString(" ")
			}
			buf.WriteString(attrString(e))
		}
		buf.WriteString("]")
		return buf.String()
	}
	if dtype, ok := asDType(value); ok {
		return inference.DTypeName(dtype)
	}
	return fmt.Sprintf("%v", value)
}
