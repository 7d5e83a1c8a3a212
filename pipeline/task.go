package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/teranos/dealflow/errors"
)

// Kind says whether a task's absence from a case is normal.
type Kind int

const (
	// KindExpected tasks are part of every run of their stage.
	KindExpected Kind = iota
	// KindOptional tasks are included only when their inputs exist.
	KindOptional
)

func (k Kind) String() string {
	if k == KindOptional {
		return "optional"
	}
	return "expected"
}

// ErrNotApplicable may be returned (or wrapped) by an operation that found
// nothing to do. The task is recorded as NotApplicable rather than Failure.
var ErrNotApplicable = errors.New("not applicable")

const (
	reasonDeadline = "deadline exceeded"
	reasonCanceled = "canceled"
	maxReasonLen   = 160
)

// Operation is the unit of work behind a task. It must honour ctx.
type Operation func(ctx context.Context, snap Snapshot) (any, error)

// Task is one named, independent unit of work within a stage.
type Task struct {
	Name    string
	Kind    Kind
	Timeout time.Duration
	Run     Operation
}

type outcome struct {
	payload any
	err     error
}

// RunTask executes task with a deadline and converts every way it can end into
// a TaskResult. It returns at the deadline even if the operation keeps running.
func RunTask(ctx context.Context, task Task, snap Snapshot, timeout time.Duration) TaskResult {
	start := time.Now()
	result := runTask(ctx, task, snap, timeout)
	result.Duration = time.Since(start)
	return result
}

func runTask(ctx context.Context, task Task, snap Snapshot, timeout time.Duration) TaskResult {
	if task.Run == nil {
		return Failure("task has no operation")
	}
	if task.Timeout > 0 {
		timeout = task.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Buffered so an abandoned operation can still finish and exit.
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: errors.Newf("panic: %v", r)}
			}
		}()
		payload, err := task.Run(ctx, snap)
		done <- outcome{payload: payload, err: err}
	}()

	return await(ctx, done)
}

// await waits for the operation or the deadline. An operation that returned
// as the deadline fired still wins.
func await(ctx context.Context, done <-chan outcome) TaskResult {
	select {
	case out := <-done:
		return classify(ctx, out)
	case <-ctx.Done():
		select {
		case out := <-done:
			return classify(context.WithoutCancel(ctx), out)
		default:
		}
		return contextFailure(ctx.Err())
	}
}

func classify(ctx context.Context, out outcome) TaskResult {
	if out.err == nil {
		return Success(out.payload)
	}
	if errors.Is(out.err, ErrNotApplicable) {
		return NotApplicable(errors.Summary(out.err, maxReasonLen))
	}
	if errors.Is(out.err, context.DeadlineExceeded) || errors.Is(out.err, context.Canceled) {
		return contextFailure(out.err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return contextFailure(ctxErr)
	}
	return Failure(errors.Summary(out.err, maxReasonLen))
}

func contextFailure(err error) TaskResult {
	if errors.Is(err, context.DeadlineExceeded) {
		return Failure(reasonDeadline)
	}
	return Failure(reasonCanceled)
}

// Describe renders a task for logs.
func (t Task) Describe() string {
	return fmt.Sprintf("%s(%s)", t.Name, t.Kind)
}
