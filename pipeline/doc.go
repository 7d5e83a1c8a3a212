// Package pipeline runs a case through an ordered list of stages.
//
// Each stage builds a set of independent tasks from a read-only snapshot of
// everything earlier stages produced, runs them concurrently, and merges every
// task's outcome into an append-only context bag before the next stage is
// built. A task never fails the run on its own: errors, panics and deadlines
// become Failure results. Whether a stage with no usable output aborts the run
// is decided by the stage's policy.
//
// The run's coarse state moves through a validated transition table:
//
//	pending -> <stage 1 state> -> ... -> <stage N state> -> completed
//	                  \________________________________\-> failed
package pipeline
