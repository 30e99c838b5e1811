package inference

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/pkg/errors"
)

// NoValue is the value id used for an absent optional input.
const NoValue = -1

// RuleFn infers the outputs of one operator call: it reads the inputs with the Call accessors and sets every
// output with Call.SetOutput (and optionally Call.SetOutputPartial).
//
// Rules report failures by panicking with an error (see must.M1 and the attribute getters): Run converts the
// panic back to an error.
type RuleFn func(c *Call)

// Rule is the inference rule of an operator type.
type Rule struct {
	// MinInputs and MaxInputs bound the number of inputs accepted, including absent optional ones.
	// MaxInputs < 0 means unbounded.
	MinInputs, MaxInputs int

	// Outputs returns the number of outputs produced by a call. If nil, the operator has one output.
	Outputs func(c *Call) int

	Infer RuleFn
}

var rules = map[OpType]*Rule{}

// register is used by the rule files' init functions.
func register(op OpType, rule *Rule) {
	if _, found := rules[op]; found {
		exceptions.Panicf("inference rule for %s registered twice", op)
	}
	rules[op] = rule
}

// HasRule returns whether op has a registered inference rule.
func HasRule(op OpType) bool {
	_, found := rules[op]
	return found
}

// Options configures the inference of a call.
type Options struct {
	Promotion DTypePromotionConfig

	// Warnf receives non-fatal diagnostics. It may be nil.
	Warnf func(format string, args ...any)
}

// Call is the state of the inference of one operator call, passed to its RuleFn.
type Call struct {
	Op    OpType
	Attrs Attributes

	ctx     *Context
	inputs  []int
	outputs []ValueInfo
	written []bool
	options Options
}

func newCall(ctx *Context, op OpType, attrs Attributes, inputs []int, options Options) (*Call, *Rule, error) {
	rule, found := rules[op]
	if !found {
		return nil, nil, errors.Wrapf(ErrUnknownOp, "%s", op)
	}
	if len(inputs) < rule.MinInputs || (rule.MaxInputs >= 0 && len(inputs) > rule.MaxInputs) {
		return nil, nil, errors.Wrapf(ErrInputCount, "%s got %d inputs, accepts between %d and %d",
			op, len(inputs), rule.MinInputs, rule.MaxInputs)
	}
	for ii := range rule.MinInputs {
		if inputs[ii] == NoValue {
			return nil, nil, errors.Wrapf(ErrInputCount, "%s input #%d is required", op, ii)
		}
	}
	if attrs == nil {
		attrs = Attributes{}
	}
	return &Call{Op: op, Attrs: attrs, ctx: ctx, inputs: inputs, options: options}, rule, nil
}

// NumOutputs returns the number of outputs a call of op with the given attributes and inputs produces.
func NumOutputs(ctx *Context, op OpType, attrs Attributes, inputs []int) (numOutputs int, err error) {
	c, rule, err := newCall(ctx, op, attrs, inputs, Options{})
	if err != nil {
		return 0, err
	}
	if rule.Outputs == nil {
		return 1, nil
	}
	err = exceptions.TryCatch[error](func() { numOutputs = rule.Outputs(c) })
	if err != nil {
		return 0, errors.WithMessagef(err, "counting outputs of %s", op)
	}
	return numOutputs, nil
}

// Run runs the inference rule of op, and writes the information of each of its outputs to the context, under
// the given output value ids. The rule is invoked exactly once.
func Run(ctx *Context, op OpType, attrs Attributes, inputs, outputs []int, options Options) error {
	c, rule, err := newCall(ctx, op, attrs, inputs, options)
	if err != nil {
		return err
	}
	c.outputs = make([]ValueInfo, len(outputs))
	c.written = make([]bool, len(outputs))
	err = exceptions.TryCatch[error](func() { rule.Infer(c) })
	if err != nil {
		return errors.WithMessagef(err, "inferring %s", op)
	}
	for ii, written := range c.written {
		if !written {
			return errors.Errorf("inference rule of %s didn't set output #%d", op, ii)
		}
	}
	for ii, id := range outputs {
		if err := ctx.Set(id, c.outputs[ii]); err != nil {
			return errors.WithMessagef(err, "%s output #%d", op, ii)
		}
	}
	return nil
}

// NumInputs returns the number of inputs, including absent optional ones.
func (c *Call) NumInputs() int { return len(c.inputs) }

// HasInput returns whether input i was given.
func (c *Call) HasInput(i int) bool { return i < len(c.inputs) && c.inputs[i] != NoValue }

func (c *Call) inputID(i int) int {
	if !c.HasInput(i) {
		exceptions.Panicf("%s input #%d not given", c.Op, i)
	}
	return c.inputs[i]
}

// InputShape returns the shape of input i.
func (c *Call) InputShape(i int) symbolic.Shape { return c.ctx.Shape(c.inputID(i)) }

// InputDType returns the dtype of input i.
func (c *Call) InputDType(i int) dtypes.DType { return c.ctx.DType(c.inputID(i)) }

// InputPartial returns the known contents of input i. It is never nil.
func (c *Call) InputPartial(i int) *symbolic.PartialArray { return c.ctx.Partial(c.inputID(i)) }

// InputIsSmall returns whether input i has rank <= 1, so its flat contents broadcast as a 1-D array.
func (c *Call) InputIsSmall(i int) bool {
	s := c.InputShape(i)
	return s.HasRank() && s.Rank() <= 1
}

// NumOutputs returns the number of outputs the rule must set.
func (c *Call) NumOutputs() int { return len(c.outputs) }

// MaxPartialLength returns the maximum length of partial contents worth computing.
func (c *Call) MaxPartialLength() int { return c.ctx.maxPartialLength }

func (c *Call) checkOutput(i int) {
	if i < 0 || i >= len(c.outputs) {
		exceptions.Panicf("%s has %d outputs, output #%d doesn't exist", c.Op, len(c.outputs), i)
	}
}

// SetOutput sets the dtype and shape of output i. It panics if the call has no output i.
func (c *Call) SetOutput(i int, dtype dtypes.DType, shape symbolic.Shape) {
	c.checkOutput(i)
	c.outputs[i].DType = dtype
	c.outputs[i].Shape = shape
	c.written[i] = true
}

// SetOutputPartial sets the known contents of output i. It must be called after SetOutput.
func (c *Call) SetOutputPartial(i int, partial *symbolic.PartialArray) {
	c.checkOutput(i)
	c.outputs[i].Partial = partial
}

// Promote returns the common dtype of the given inputs, or panics with ErrDTypeMismatch.
func (c *Call) Promote(inputs ...int) dtypes.DType {
	operands := make([]dtypes.DType, 0, len(inputs))
	for _, i := range inputs {
		if c.HasInput(i) {
			operands = append(operands, c.InputDType(i))
		}
	}
	return promoteDTypes(c.options.Promotion, operands...)
}

// Warnf reports a non-fatal diagnostic.
func (c *Call) Warnf(format string, args ...any) {
	if c.options.Warnf != nil {
		c.options.Warnf("%s: "+format, append([]any{c.Op}, args...)...)
	}
}
