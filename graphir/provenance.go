package graphir

import (
	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/shapegraph/inference"
	"github.com/gomlx/shapegraph/internal/linearize"
)

// Provenance tracks where the contents of a value (typically a shape or an index tensor) come from.
// This is used to determine whether shapes computed in the graph are static.
type Provenance int

const (
	// ProvenanceUnknown - provenance not determined, e.g. computed from input data.
	ProvenanceUnknown Provenance = iota

	// ProvenanceConstant - contents come from constants, or from dimensions known at build time.
	ProvenanceConstant

	// ProvenanceInputShape - contents depend on the (symbolic) shapes of the inputs, known when the graph
	// is executed.
	ProvenanceInputShape

	// ProvenanceDataDependent - contents depend on tensor values at runtime (e.g. NonZero).
	ProvenanceDataDependent
)

// String returns a human-readable name for the provenance.
func (p Provenance) String() string {
	switch p {
	case ProvenanceUnknown:
		return "unknown"
	case ProvenanceConstant:
		return "constant"
	case ProvenanceInputShape:
		return "input_shape"
	case ProvenanceDataDependent:
		return "data_dependent"
	default:
		return "invalid"
	}
}

// dataDependentOps is the set of operators whose outputs depend on tensor values in a way that can't be tracked
// at build time.
var dataDependentOps sets.Set[inference.OpType]

// IsDataDependentOp returns true if the operator produces data-dependent shapes or contents.
func IsDataDependentOp(op inference.OpType) bool {
	return dataDependentOps.Has(op)
}

// passThroughOps are operators whose contents provenance is the combination of their inputs' provenance.
var passThroughOps sets.Set[inference.OpType]

func init() {
	dataDependentOps = sets.Make[inference.OpType]()
	dataDependentOps.Insert(inference.OpNonZero) // Output shape depends on how many non-zero elements
	dataDependentOps.Insert(inference.OpTopK)    // Output shape is fixed but selection depends on values

	passThroughOps = sets.Make[inference.OpType]()
	for _, op := range []inference.OpType{
		inference.OpIdentity, inference.OpCast, inference.OpReshape, inference.OpFlatten, inference.OpSqueeze,
		inference.OpUnsqueeze, inference.OpConcat, inference.OpGather, inference.OpSlice, inference.OpExpand,
		inference.OpTile, inference.OpSplit, inference.OpNeg, inference.OpAbs, inference.OpAdd, inference.OpSub,
		inference.OpMul, inference.OpDiv, inference.OpMax, inference.OpMin, inference.OpMod, inference.OpEqual,
		inference.OpLess, inference.OpGreater, inference.OpWhere, inference.OpRange, inference.OpConstantOfShape,
		inference.OpReduceSum, inference.OpReduceMax, inference.OpReduceMin,
	} {
		passThroughOps.Insert(op)
	}
}

// Provenance returns where the contents of the value come from.
func (b *Builder) Provenance(v ValueRef) Provenance {
	valueID, err := b.valueID(v)
	if err != nil {
		return ProvenanceUnknown
	}
	provenances := make(map[int]Provenance)
	dataDependent := sets.Make[int]()
	err = linearize.Linearize([]int{b.producers[valueID]}, b.nodeDependencies, func(nodeIdx int) error {
		n := b.nodes[nodeIdx]
		for _, id := range n.inputs {
			if id != inference.NoValue && dataDependent.Has(b.producers[id]) {
				dataDependent.Insert(nodeIdx)
			}
		}
		if n.kind == placeholderNode && n.bound != inference.NoValue && dataDependent.Has(b.producers[n.bound]) {
			dataDependent.Insert(nodeIdx)
		}
		provenances[nodeIdx] = b.nodeProvenance(n, provenances, dataDependent)
		if provenances[nodeIdx] == ProvenanceDataDependent {
			dataDependent.Insert(nodeIdx)
		}
		return nil
	})
	if err != nil {
		return ProvenanceUnknown
	}
	return provenances[b.producers[valueID]]
}

// nodeProvenance classifies a node whose dependencies were already classified.
func (b *Builder) nodeProvenance(n *node, provenances map[int]Provenance, dataDependent sets.Set[int]) Provenance {
	switch n.kind {
	case constantNode:
		return ProvenanceConstant
	case inputNode:
		return ProvenanceUnknown
	case placeholderNode:
		if n.bound == inference.NoValue {
			return ProvenanceUnknown
		}
		return provenances[b.producers[n.bound]]
	}

	switch {
	case IsDataDependentOp(n.op):
		return ProvenanceDataDependent

	case isShapeOnlyOp(n.op):
		// Static dimensions are constants, whatever computed the tensor.
		if b.ctx.Info(n.outputs[0]).Partial != nil && b.ctx.Info(n.outputs[0]).Partial.IsFullyKnown() {
			return ProvenanceConstant
		}
		if dataDependent.Has(b.producers[n.inputs[0]]) {
			return ProvenanceDataDependent
		}
		return ProvenanceInputShape

	case passThroughOps.Has(n.op):
		// Data-dependent if any input is data-dependent; unknown if any input is unknown.
		combined := ProvenanceConstant
		for _, id := range n.inputs {
			if id == inference.NoValue {
				continue
			}
			p := provenances[b.producers[id]]
			switch {
			case p == ProvenanceDataDependent:
				return ProvenanceDataDependent
			case p == ProvenanceUnknown:
				combined = ProvenanceUnknown
			case combined != ProvenanceUnknown && p > combined:
				combined = p
			}
		}
		return combined
	}
	for _, id := range n.inputs {
		if id != inference.NoValue && dataDependent.Has(b.producers[id]) {
			return ProvenanceDataDependent
		}
	}
	return ProvenanceUnknown
}
