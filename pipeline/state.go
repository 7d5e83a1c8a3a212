package pipeline

import (
	"github.com/teranos/dealflow/errors"
)

// State is the coarse state of a run.
type State string

const (
	StatePending   State = "pending"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

func (s State) reserved() bool {
	return s == StatePending || s == StateCompleted || s == StateFailed
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ErrInvalidTransition is returned for any transition not in the table.
var ErrInvalidTransition = errors.New("invalid state transition")

// Machine is the transition table for one plan:
// pending to the first stage state, each stage state to the next (the last to
// completed), and every non-terminal state to failed.
type Machine struct {
	allowed map[State]map[State]struct{}
	order   []State
}

// NewMachine builds the table for stage states in execution order.
func NewMachine(stageStates ...State) *Machine {
	m := &Machine{allowed: make(map[State]map[State]struct{})}
	allow := func(from, to State) {
		if m.allowed[from] == nil {
			m.allowed[from] = make(map[State]struct{})
		}
		m.allowed[from][to] = struct{}{}
	}

	m.order = append(m.order, StatePending)
	m.order = append(m.order, stageStates...)
	m.order = append(m.order, StateCompleted)

	for i := 0; i < len(m.order)-1; i++ {
		allow(m.order[i], m.order[i+1])
		allow(m.order[i], StateFailed)
	}
	return m
}

// CanTransition reports whether from -> to is in the table.
func (m *Machine) CanTransition(from, to State) bool {
	_, ok := m.allowed[from][to]
	return ok
}

// Transition validates from -> to and returns to.
func (m *Machine) Transition(from, to State) (State, error) {
	if !m.CanTransition(from, to) {
		return from, errors.Wrapf(ErrInvalidTransition, "%s -> %s", from, to)
	}
	return to, nil
}

// Order returns the happy-path state sequence, pending through completed.
func (m *Machine) Order() []State {
	out := make([]State, len(m.order))
	copy(out, m.order)
	return out
}
