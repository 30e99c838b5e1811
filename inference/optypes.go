package inference

import (
	"github.com/pkg/errors"
)

// OpType enumerates the operators known to the inference engine.
type OpType int

const (
	OpInvalid OpType = iota

	// Elementwise unary.
	OpIdentity
	OpNeg
	OpAbs
	OpRelu
	OpSigmoid
	OpTanh
	OpExp
	OpLog
	OpSqrt
	OpErf
	OpFloor
	OpCeil
	OpRound
	OpNot
	OpSoftmax
	OpLayerNormalization

	// Elementwise binary.
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPow
	OpMax
	OpMin
	OpMod
	OpEqual
	OpLess
	OpGreater
	OpAnd
	OpOr
	OpWhere

	// Shape manipulation.
	OpCast
	OpShape
	OpSize
	OpReshape
	OpFlatten
	OpSqueeze
	OpUnsqueeze
	OpTranspose
	OpConcat
	OpSlice
	OpGather
	OpExpand
	OpTile
	OpPad
	OpConstantOfShape
	OpRange
	OpSplit

	// Neural network.
	OpMatMul
	OpGemm
	OpConv
	OpMaxPool
	OpAveragePool
	OpGlobalAveragePool
	OpReduceSum
	OpReduceMean
	OpReduceMax
	OpReduceMin
	OpArgMax
	OpResize
	OpTopK
	OpNonZero

	opLast
)

var opNames = [...]string{
	OpInvalid:            "Invalid",
	OpIdentity:           "Identity",
	OpNeg:                "Neg",
	OpAbs:                "Abs",
	OpRelu:               "Relu",
	OpSigmoid:            "Sigmoid",
	OpTanh:               "Tanh",
	OpExp:                "Exp",
	OpLog:                "Log",
	OpSqrt:               "Sqrt",
	OpErf:                "Erf",
	OpFloor:              "Floor",
	OpCeil:               "Ceil",
	OpRound:              "Round",
	OpNot:                "Not",
	OpSoftmax:            "Softmax",
	OpLayerNormalization: "LayerNormalization",
	OpAdd:                "Add",
	OpSub:                "Sub",
	OpMul:                "Mul",
	OpDiv:                "Div",
	OpPow:                "Pow",
	OpMax:                "Max",
	OpMin:                "Min",
	OpMod:                "Mod",
	OpEqual:              "Equal",
	OpLess:               "Less",
	OpGreater:            "Greater",
	OpAnd:                "And",
	OpOr:                 "Or",
	OpWhere:              "Where",
	OpCast:               "Cast",
	OpShape:              "Shape",
	OpSize:               "Size",
	OpReshape:            "Reshape",
	OpFlatten:            "Flatten",
	OpSqueeze:            "Squeeze",
	OpUnsqueeze:          "Unsqueeze",
	OpTranspose:          "Transpose",
	OpConcat:             "Concat",
	OpSlice:              "Slice",
	OpGather:             "Gather",
	OpExpand:             "Expand",
	OpTile:               "Tile",
	OpPad:                "Pad",
	OpConstantOfShape:    "ConstantOfShape",
	OpRange:              "Range",
	OpSplit:              "Split",
	OpMatMul:             "MatMul",
	OpGemm:               "Gemm",
	OpConv:               "Conv",
	OpMaxPool:            "MaxPool",
	OpAveragePool:        "AveragePool",
	OpGlobalAveragePool:  "GlobalAveragePool",
	OpReduceSum:          "ReduceSum",
	OpReduceMean:         "ReduceMean",
	OpReduceMax:          "ReduceMax",
	OpReduceMin:          "ReduceMin",
	OpArgMax:             "ArgMax",
	OpResize:             "Resize",
	OpTopK:               "TopK",
	OpNonZero:            "NonZero",
}

// String implements fmt.Stringer.
func (op OpType) String() string {
	if op < 0 || op >= opLast {
		return "Invalid"
	}
	return opNames[op]
}

// IsValid returns whether op is one of the enumerated operators.
func (op OpType) IsValid() bool { return op > OpInvalid && op < opLast }

// AllOpTypes returns all valid operator types, in declaration order.
func AllOpTypes() []OpType {
	ops := make([]OpType, 0, opLast-1)
	for op := OpInvalid + 1; op < opLast; op++ {
		ops = append(ops, op)
	}
	return ops
}

var opByName = func() map[string]OpType {
	m := make(map[string]OpType, len(opNames))
	for _, op := range AllOpTypes() {
		m[op.String()] = op
	}
	return m
}()

// ParseOpType returns the operator with the given name, e.g. "MatMul".
func ParseOpType(name string) (OpType, error) {
	op, found := opByName[name]
	if !found {
		return OpInvalid, errors.Wrapf(ErrUnknownOp, "%q", name)
	}
	return op, nil
}
