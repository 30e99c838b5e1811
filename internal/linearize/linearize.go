// Package linearize implements the post-order topological sort used to turn a graph of nodes into an ordered
// list, where every node comes after all of its dependencies.
//
// The traversal uses an explicit stack, so arbitrarily deep graphs don't grow the call stack, and it detects
// cycles. It is generic over the node identifier, and is used both for graphs built from scratch and to
// re-sort existing IRs.
package linearize

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrCycleDetected is returned when the graph has a dependency cycle.
var ErrCycleDetected = errors.New("cycle detected")

// State of a node during the traversal.
type State int8

const (
	NotVisited State = iota
	InProgress
	Done
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case NotVisited:
		return "NotVisited"
	case InProgress:
		return "InProgress"
	case Done:
		return "Done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Sorter holds the state of a traversal. Nodes keep their state across calls to Run, so nodes emitted by one
// call (or pre-marked with MarkDone) are never emitted again.
type Sorter[ID comparable] struct {
	dependencies func(id ID) []ID
	emit         func(id ID) error
	states       map[ID]State
}

// New creates a Sorter.
//
// dependencies returns the nodes id depends on, in order. emit is called once per node, after all its
// dependencies were emitted. If emit returns an error, the traversal is aborted and the error returned.
func New[ID comparable](dependencies func(id ID) []ID, emit func(id ID) error) *Sorter[ID] {
	return &Sorter[ID]{
		dependencies: dependencies,
		emit:         emit,
		states:       make(map[ID]State),
	}
}

// MarkDone marks the nodes as already emitted: they won't be passed to emit, and their dependencies are not
// followed.
func (s *Sorter[ID]) MarkDone(ids ...ID) {
	for _, id := range ids {
		s.states[id] = Done
	}
}

// State returns the current state of the node.
func (s *Sorter[ID]) State(id ID) State { return s.states[id] }

type frame[ID comparable] struct {
	id       ID
	expanded bool
}

// Run emits the given roots and everything they depend on, in post-order: dependencies first, in the order they
// are listed, then the node itself.
//
// It returns an error wrapping ErrCycleDetected, with the path of the cycle, if one is reachable from the roots.
func (s *Sorter[ID]) Run(roots ...ID) error {
	stack := make([]frame[ID], 0, len(roots))
	for ii := len(roots) - 1; ii >= 0; ii-- {
		stack = append(stack, frame[ID]{id: roots[ii]})
	}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		switch s.states[top.id] {
		case Done:
			stack = stack[:len(stack)-1]

		case NotVisited:
			s.states[top.id] = InProgress
			top.expanded = true
			id := top.id
			deps := s.dependencies(id)
			for ii := len(deps) - 1; ii >= 0; ii-- {
				switch s.states[deps[ii]] {
				case InProgress:
					return errors.Wrapf(ErrCycleDetected, "%s", cyclePath(stack, deps[ii]))
				case NotVisited:
					stack = append(stack, frame[ID]{id: deps[ii]})
				}
			}

		case InProgress:
			if !top.expanded {
				return errors.Wrapf(ErrCycleDetected, "%s", cyclePath(stack[:len(stack)-1], top.id))
			}
			id := top.id
			stack = stack[:len(stack)-1]
			if err := s.emit(id); err != nil {
				return err
			}
			s.states[id] = Done
		}
	}
	return nil
}

// cyclePath formats the path of expanded nodes from the first occurrence of id to the top of the stack.
func cyclePath[ID comparable](stack []frame[ID], id ID) string {
	var parts []string
	for _, f := range stack {
		if !f.expanded {
			continue
		}
		if f.id == id || len(parts) > 0 {
			parts = append(parts, fmt.Sprint(f.id))
		}
	}
	parts = append(parts, fmt.Sprint(id))
	return strings.Join(parts, " -> ")
}

// Linearize is a shortcut to run a new Sorter over the given roots.
func Linearize[ID comparable](roots []ID, dependencies func(id ID) []ID, emit func(id ID) error) error {
	return New(dependencies, emit).Run(roots...)
}
