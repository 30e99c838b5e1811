package symbolic

import (
	"github.com/pkg/errors"
)

// Substitution maps the parameters of one graph to the dimensions they take in another graph, e.g. when a
// compiled graph is spliced into a caller whose inputs use their own parameter names.
//
// Parameters with no binding are substituted by Unknown: a parameter name means nothing outside the graph that
// declared it.
type Substitution map[ParamID]Dim

// Bind records that the dimension d, described by the parameter p in the source graph, is the dimension
// given in the target graph. Binding the same parameter twice joins the bindings with MaxDefinedDim.
func (sub Substitution) Bind(p ParamID, given Dim) error {
	previous, found := sub[p]
	if !found {
		sub[p] = given
		return nil
	}
	joined, err := MaxDefinedDim(previous, given)
	if err != nil {
		return errors.WithMessagef(err, "parameter %s", p)
	}
	sub[p] = joined
	return nil
}

// BindShape binds the parameters of the declared shape to the dimensions of the given shape at the same axes.
// Shapes of unknown or different ranks bind nothing.
func (sub Substitution) BindShape(declared, given Shape) error {
	if !declared.hasRank || !given.hasRank || declared.rank != given.rank {
		return nil
	}
	for axis, d := range declared.dims[:declared.rank] {
		if d.IsParam() {
			if err := sub.Bind(d.param, given.dims[axis]); err != nil {
				return errors.WithMessagef(err, "axis %d", axis)
			}
		}
	}
	return nil
}

// BindPartial binds the parameter elements of the declared array to the given elements at the same positions.
// Negative given elements can't be dimensions and bind to Unknown.
func (sub Substitution) BindPartial(declared, given *PartialArray) error {
	if declared == nil || given == nil || !declared.hasLength || !given.hasLength ||
		len(declared.elements) != len(given.elements) {
		return nil
	}
	for ii, e := range declared.elements {
		if e.IsParam() {
			if err := sub.Bind(e.param, given.elements[ii].ToDim()); err != nil {
				return errors.WithMessagef(err, "element %d", ii)
			}
		}
	}
	return nil
}

// Dim returns the substituted dimension.
func (sub Substitution) Dim(d Dim) Dim {
	if !d.IsParam() {
		return d
	}
	return sub[d.param]
}

// Element returns the substituted element.
func (sub Substitution) Element(e Element) Element {
	if !e.IsParam() {
		return e
	}
	return sub[e.param].ToElement()
}

// Shape returns the shape with all its dimensions substituted.
func (sub Substitution) Shape(s Shape) Shape {
	for axis := range s.rank {
		s.dims[axis] = sub.Dim(s.dims[axis])
	}
	return s
}

// Partial returns a copy of the array with all its elements substituted. A nil array stays nil.
func (sub Substitution) Partial(p *PartialArray) *PartialArray {
	if p == nil {
		return nil
	}
	return p.Map(sub.Element)
}
