package pipeline

import (
	"time"

	"github.com/teranos/dealflow/errors"
)

// Policy decides what a stage without usable output does to the run.
type Policy int

const (
	// Required stages abort the run when no task succeeded.
	Required Policy = iota
	// Degradable stages always let the run advance.
	Degradable
	// RequiredIfTasks stages abort the run when tasks ran and none succeeded.
	// A stage that built no tasks is skipped.
	RequiredIfTasks
)

func (p Policy) String() string {
	switch p {
	case Degradable:
		return "degradable"
	case RequiredIfTasks:
		return "required_if_tasks"
	}
	return "required"
}

// aborts reports whether a stage that produced no usable output ends the run.
func (p Policy) aborts(built int, buildErr error) bool {
	switch p {
	case Required:
		return true
	case RequiredIfTasks:
		return buildErr != nil || built > 0
	}
	return false
}

// Builder derives a stage's tasks from the snapshot. It must only read.
type Builder func(snap Snapshot) []Task

// Stage describes one step of the pipeline.
type Stage struct {
	Name   string
	State  State
	Policy Policy
	Build  Builder
	// TaskTimeout applies to tasks that do not set their own.
	TaskTimeout time.Duration

	index int
}

// Index is the stage's 1-based position in its plan.
func (s Stage) Index() int { return s.index }

// Plan is a validated, ordered list of stages.
type Plan struct {
	stages  []Stage
	machine *Machine
}

// NewPlan validates stages and assigns their order indices by position.
func NewPlan(stages ...Stage) (*Plan, error) {
	if len(stages) == 0 {
		return nil, errors.New("plan needs at least one stage")
	}
	names := make(map[string]struct{}, len(stages))
	states := make([]State, 0, len(stages))
	seenStates := make(map[State]struct{}, len(stages))

	out := make([]Stage, len(stages))
	for i, s := range stages {
		switch {
		case s.Name == "":
			return nil, errors.Newf("stage %d has no name", i+1)
		case s.Build == nil:
			return nil, errors.Newf("stage %s has no task builder", s.Name)
		case s.State == "":
			return nil, errors.Newf("stage %s has no state", s.Name)
		case s.State.reserved():
			return nil, errors.Newf("stage %s uses reserved state %s", s.Name, s.State)
		}
		if _, dup := names[s.Name]; dup {
			return nil, errors.Newf("duplicate stage name %s", s.Name)
		}
		if _, dup := seenStates[s.State]; dup {
			return nil, errors.Newf("duplicate stage state %s", s.State)
		}
		names[s.Name] = struct{}{}
		seenStates[s.State] = struct{}{}
		states = append(states, s.State)

		s.index = i + 1
		out[i] = s
	}

	return &Plan{stages: out, machine: NewMachine(states...)}, nil
}

// Stages returns the plan's stages in order.
func (p *Plan) Stages() []Stage {
	out := make([]Stage, len(p.stages))
	copy(out, p.stages)
	return out
}

// Len returns the number of stages.
func (p *Plan) Len() int { return len(p.stages) }

// Machine returns the transition table derived from the plan.
func (p *Plan) Machine() *Machine { return p.machine }
