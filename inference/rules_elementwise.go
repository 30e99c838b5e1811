package inference

import (
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapegraph/symbolic"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
)

// This file holds the rules of the elementwise operators: the output shape is the (broadcast) input shape, and
// integer contents are folded element by element.

func init() {
	identity := func(e symbolic.Element) symbolic.Element { return e }
	register(OpIdentity, unaryRule(identity))
	register(OpNeg, unaryRule(symbolic.Element.Neg))
	register(OpAbs, unaryRule(symbolic.Element.Abs))
	register(OpRelu, unaryRule(func(e symbolic.Element) symbolic.Element {
		if e.IsParam() {
			return e
		}
		return e.Max(symbolic.ElementValue(0))
	}))
	register(OpFloor, unaryRule(identity))
	register(OpCeil, unaryRule(identity))
	register(OpRound, unaryRule(identity))
	for _, op := range []OpType{OpSigmoid, OpTanh, OpExp, OpLog, OpSqrt, OpErf} {
		register(op, unaryRule(nil))
	}
	register(OpNot, &Rule{MinInputs: 1, MaxInputs: 1, Infer: inferNot})

	register(OpAdd, binaryRule(symbolic.Element.Add))
	register(OpSub, binaryRule(symbolic.Element.Sub))
	register(OpMul, binaryRule(symbolic.Element.Mul))
	register(OpDiv, binaryRule(symbolic.Element.Div))
	register(OpMax, binaryRule(symbolic.Element.Max))
	register(OpMin, binaryRule(symbolic.Element.Min))
	register(OpMod, binaryRule(symbolic.Element.Mod))
	register(OpPow, binaryRule(nil))

	register(OpEqual, comparisonRule(false, func(a, b symbolic.Element) symbolic.Element {
		if a == b && !a.IsUnknown() {
			return symbolic.ElementBool(true)
		}
		if a.IsValue() && b.IsValue() {
			return symbolic.ElementBool(false)
		}
		return symbolic.UnknownElement()
	}))
	register(OpLess, comparisonRule(false, valuesOnly(func(a, b int) bool { return a < b })))
	register(OpGreater, comparisonRule(false, valuesOnly(func(a, b int) bool { return a > b })))
	register(OpAnd, comparisonRule(true, valuesOnly(func(a, b int) bool { return a != 0 && b != 0 })))
	register(OpOr, comparisonRule(true, valuesOnly(func(a, b int) bool { return a != 0 || b != 0 })))

	register(OpWhere, &Rule{MinInputs: 3, MaxInputs: 3, Infer: inferWhere})
}

// unaryRule returns a rule that preserves the input shape and dtype. If fn is not nil, it is used to fold the
// known contents of integer inputs.
func unaryRule(fn func(symbolic.Element) symbolic.Element) *Rule {
	return &Rule{MinInputs: 1, MaxInputs: 1, Infer: func(c *Call) {
		c.SetOutput(0, c.InputDType(0), c.InputShape(0))
		if fn != nil {
			c.SetOutputPartial(0, c.InputPartial(0).Map(fn))
		}
	}}
}

func inferNot(c *Call) {
	if dtype := c.InputDType(0); dtype != dtypes.Bool {
		panic(errors.Wrapf(ErrDTypeMismatch, "Not requires a bool operand, got %s", DTypeName(dtype)))
	}
	c.SetOutput(0, dtypes.Bool, c.InputShape(0))
	c.SetOutputPartial(0, c.InputPartial(0).Map(func(e symbolic.Element) symbolic.Element {
		if e.IsValue() {
			return symbolic.ElementBool(e.Value() == 0)
		}
		return symbolic.UnknownElement()
	}))
}

// broadcastInputs returns the broadcast shape of the given inputs.
func broadcastInputs(c *Call, inputs ...int) symbolic.Shape {
	shapes := make([]symbolic.Shape, len(inputs))
	for ii, input := range inputs {
		shapes[ii] = c.InputShape(input)
	}
	return must.M1(symbolic.BroadcastAll(shapes...))
}

// foldBinary folds the known contents of both operands, if both are at most 1-D.
func foldBinary(c *Call, fn func(a, b symbolic.Element) symbolic.Element) *symbolic.PartialArray {
	if fn == nil || !c.InputIsSmall(0) || !c.InputIsSmall(1) {
		return nil
	}
	return must.M1(symbolic.BroadcastPartial(c.InputPartial(0), c.InputPartial(1), fn))
}

// binaryRule returns the rule of an arithmetic operator with broadcasting. If fn is not nil, it is used to fold
// the known contents of integer inputs.
func binaryRule(fn func(a, b symbolic.Element) symbolic.Element) *Rule {
	return &Rule{MinInputs: 2, MaxInputs: 2, Infer: func(c *Call) {
		c.SetOutput(0, c.Promote(0, 1), broadcastInputs(c, 0, 1))
		c.SetOutputPartial(0, foldBinary(c, fn))
	}}
}

// comparisonRule returns the rule of an operator that outputs booleans. If logical is set, the operands must
// be booleans too.
func comparisonRule(logical bool, fn func(a, b symbolic.Element) symbolic.Element) *Rule {
	return &Rule{MinInputs: 2, MaxInputs: 2, Infer: func(c *Call) {
		dtype := c.Promote(0, 1)
		if logical && dtype != dtypes.Bool {
			panic(errors.Wrapf(ErrDTypeMismatch, "%s requires bool operands, got %s", c.Op, DTypeName(dtype)))
		}
		c.SetOutput(0, dtypes.Bool, broadcastInputs(c, 0, 1))
		c.SetOutputPartial(0, foldBinary(c, fn))
	}}
}

func valuesOnly(cmp func(a, b int) bool) func(a, b symbolic.Element) symbolic.Element {
	return func(a, b symbolic.Element) symbolic.Element {
		if a.IsValue() && b.IsValue() {
			return symbolic.ElementBool(cmp(a.Value(), b.Value()))
		}
		return symbolic.UnknownElement()
	}
}

func inferWhere(c *Call) {
	if dtype := c.InputDType(0); dtype != dtypes.Bool {
		panic(errors.Wrapf(ErrDTypeMismatch, "Where condition must be bool, got %s", DTypeName(dtype)))
	}
	c.SetOutput(0, c.Promote(1, 2), broadcastInputs(c, 0, 1, 2))
	if !c.InputIsSmall(0) || !c.InputIsSmall(1) || !c.InputIsSmall(2) {
		return
	}
	cond, onTrue, onFalse := c.InputPartial(0), c.InputPartial(1), c.InputPartial(2)
	if !cond.HasLength() || !onTrue.HasLength() || !onFalse.HasLength() {
		return
	}
	length := max(cond.Length(), onTrue.Length(), onFalse.Length())
	for _, p := range []*symbolic.PartialArray{cond, onTrue, onFalse} {
		if p.Length() == 0 {
			length = 0
		}
	}
	out := symbolic.NewPartialArray(length)
	at := func(p *symbolic.PartialArray, i int) symbolic.Element { return p.Get(min(i, p.Length()-1)) }
	for ii := range length {
		selector, x, y := at(cond, ii), at(onTrue, ii), at(onFalse, ii)
		switch {
		case selector.IsValue() && selector.Value() != 0:
			out.Set(ii, x)
		case selector.IsValue():
			out.Set(ii, y)
		case x == y:
			out.Set(ii, x)
		}
	}
	c.SetOutputPartial(0, out)
}
