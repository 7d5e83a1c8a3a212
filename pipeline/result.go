package pipeline

import (
	"encoding/json"
	"time"
)

// Outcome is the terminal state of a single task.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	OutcomeNotApplicable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeNotApplicable:
		return "not_applicable"
	default:
		return "unknown"
	}
}

// MarshalText lets outcomes appear as strings in JSON projections.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// TaskResult is what a task left behind. Payload is set only on success,
// Reason only on failure or not-applicable.
type TaskResult struct {
	Outcome  Outcome       `json:"outcome"`
	Payload  any           `json:"payload,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

// Success wraps a task payload.
func Success(payload any) TaskResult {
	return TaskResult{Outcome: OutcomeSuccess, Payload: payload}
}

// Failure records a short, non-sensitive reason.
func Failure(reason string) TaskResult {
	return TaskResult{Outcome: OutcomeFailure, Reason: reason}
}

// NotApplicable marks a task that had nothing to do for this case.
func NotApplicable(reason string) TaskResult {
	return TaskResult{Outcome: OutcomeNotApplicable, Reason: reason}
}

func (r TaskResult) OK() bool     { return r.Outcome == OutcomeSuccess }
func (r TaskResult) Failed() bool { return r.Outcome == OutcomeFailure }

// PayloadJSON renders the payload for persistence. Nil payloads yield nil.
func (r TaskResult) PayloadJSON() (json.RawMessage, error) {
	if r.Payload == nil {
		return nil, nil
	}
	return json.Marshal(r.Payload)
}

// PayloadAs returns the payload as T when the task succeeded and the payload
// has that dynamic type.
func PayloadAs[T any](r TaskResult) (T, bool) {
	var zero T
	if !r.OK() {
		return zero, false
	}
	v, ok := r.Payload.(T)
	if !ok {
		return zero, false
	}
	return v, true
}
