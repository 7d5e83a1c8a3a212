package pipeline

import (
	"sort"
	"time"
)

// StageStatus values.
const (
	StagePending   = "pending"
	StageRunning   = "running"
	StageCompleted = "completed"
	StageDegraded  = "degraded"
	StageFailed    = "failed"
	StageSkipped   = "skipped"
)

// StageStatus summarises one stage of a run.
type StageStatus struct {
	Name          string     `json:"name"`
	Index         int        `json:"index"`
	State         State      `json:"state"`
	Policy        string     `json:"policy"`
	Status        string     `json:"status"`
	Tasks         int        `json:"tasks"`
	Succeeded     int        `json:"succeeded"`
	Failed        int        `json:"failed"`
	NotApplicable int        `json:"not_applicable"`
	FailedTasks   []string   `json:"failed_tasks,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Run is the live record of one pipeline execution for one case.
type Run struct {
	ID        string        `json:"id"`
	CaseID    string        `json:"case_id"`
	State     State         `json:"state"`
	Stages    []StageStatus `json:"stages"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   *time.Time    `json:"ended_at,omitempty"`
}

func newRun(id, caseID string, plan *Plan, now time.Time) *Run {
	run := &Run{ID: id, CaseID: caseID, State: StatePending, StartedAt: now}
	for _, s := range plan.stages {
		run.Stages = append(run.Stages, StageStatus{
			Name:   s.Name,
			Index:  s.index,
			State:  s.State,
			Policy: s.Policy.String(),
			Status: StagePending,
		})
	}
	return run
}

// clone returns a deep-enough copy for handing to sinks.
func (r *Run) clone() Run {
	c := *r
	c.Stages = make([]StageStatus, len(r.Stages))
	copy(c.Stages, r.Stages)
	for i := range c.Stages {
		if r.Stages[i].FailedTasks != nil {
			c.Stages[i].FailedTasks = append([]string(nil), r.Stages[i].FailedTasks...)
		}
	}
	return c
}

func (s *StageStatus) tally(results map[string]TaskResult) {
	s.Tasks = len(results)
	s.Succeeded, s.Failed, s.NotApplicable = 0, 0, 0
	s.FailedTasks = nil
	for name, r := range results {
		switch r.Outcome {
		case OutcomeSuccess:
			s.Succeeded++
		case OutcomeFailure:
			s.Failed++
			s.FailedTasks = append(s.FailedTasks, name)
		case OutcomeNotApplicable:
			s.NotApplicable++
		}
	}
	sort.Strings(s.FailedTasks)
}

// Result is what a caller gets back once a run is terminal.
type Result struct {
	RunID      string        `json:"run_id"`
	CaseID     string        `json:"case_id"`
	FinalState State         `json:"final_state"`
	Stages     []StageStatus `json:"stages"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	EndedAt    time.Time     `json:"ended_at"`
	Context    Snapshot      `json:"-"`
}

// Succeeded reports whether the run completed.
func (r *Result) Succeeded() bool { return r.FinalState == StateCompleted }

// Degraded lists the keys of failed tasks in a completed run.
func (r *Result) Degraded() []Key {
	if !r.Succeeded() {
		return nil
	}
	var keys []Key
	for _, s := range r.Stages {
		for _, task := range s.FailedTasks {
			keys = append(keys, Key{Stage: s.Name, Task: task})
		}
	}
	return keys
}

// Stage returns the status for the named stage.
func (r *Result) Stage(name string) (StageStatus, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageStatus{}, false
}
