package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/teranos/dealflow/errors"
)

func TestRunTaskOutcomes(t *testing.T) {
	snap := NewBag(nil).Snapshot()

	tests := []struct {
		name    string
		op      Operation
		outcome Outcome
		reason  string
	}{
		{
			name:    "success carries payload",
			op:      func(context.Context, Snapshot) (any, error) { return "ok", nil },
			outcome: OutcomeSuccess,
		},
		{
			name:    "error becomes failure",
			op:      func(context.Context, Snapshot) (any, error) { return nil, errors.New("upstream 503") },
			outcome: OutcomeFailure,
			reason:  "upstream 503",
		},
		{
			name:    "panic becomes failure",
			op:      func(context.Context, Snapshot) (any, error) { panic("kaboom") },
			outcome: OutcomeFailure,
			reason:  "panic: kaboom",
		},
		{
			name: "not applicable",
			op: func(context.Context, Snapshot) (any, error) {
				return nil, errors.Wrap(ErrNotApplicable, "no linkedin url")
			},
			outcome: OutcomeNotApplicable,
			reason:  "no linkedin url: not applicable",
		},
		{
			name: "operation reporting its own deadline",
			op: func(context.Context, Snapshot) (any, error) {
				return nil, errors.Wrap(context.DeadlineExceeded, "http call")
			},
			outcome: OutcomeFailure,
			reason:  "deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := RunTask(context.Background(), Task{Name: "probe", Run: tt.op}, snap, time.Second)
			assert.Equal(t, tt.outcome, r.Outcome)
			assert.Equal(t, tt.reason, r.Reason)
		})
	}
}

func TestRunTaskReturnsAtDeadline(t *testing.T) {
	t.Log("Slowpoke never answers; the wrapper must give up on time")

	release := make(chan struct{})
	defer close(release)

	slow := Task{
		Name: "slowpoke",
		Run: func(ctx context.Context, _ Snapshot) (any, error) {
			<-release // ignores ctx on purpose
			return "too late", nil
		},
	}

	start := time.Now()
	r := RunTask(context.Background(), slow, NewBag(nil).Snapshot(), 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.Equal(t, OutcomeFailure, r.Outcome)
	assert.Equal(t, "deadline exceeded", r.Reason)
	assert.Less(t, elapsed, time.Second, "wrapper must not wait for the straggler")
}

func TestRunTaskOwnTimeoutWins(t *testing.T) {
	task := Task{
		Name:    "patient",
		Timeout: 20 * time.Millisecond,
		Run: func(ctx context.Context, _ Snapshot) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	r := RunTask(context.Background(), task, NewBag(nil).Snapshot(), time.Hour)
	assert.Equal(t, "deadline exceeded", r.Reason)
}

func TestRunTaskCanceledParent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	task := Task{Name: "late", Run: func(ctx context.Context, _ Snapshot) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := RunTask(ctx, task, NewBag(nil).Snapshot(), time.Second)
	assert.Equal(t, "canceled", r.Reason)
}

func TestRunTaskWithoutOperation(t *testing.T) {
	r := RunTask(context.Background(), Task{Name: "empty"}, NewBag(nil).Snapshot(), time.Second)
	assert.True(t, r.Failed())
}

func TestRunTaskTruncatesLongReasons(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	task := Task{Name: "verbose", Run: func(context.Context, Snapshot) (any, error) {
		return nil, errors.New(string(long))
	}}
	r := RunTask(context.Background(), task, NewBag(nil).Snapshot(), time.Second)
	assert.LessOrEqual(t, len([]rune(r.Reason)), maxReasonLen+1)
}

func TestAwaitPrefersResultThatArrivedWithDeadline(t *testing.T) {
	t.Log("Jolteon and the deadline cross the finish line together; the photo goes to Jolteon")

	for i := 0; i < 200; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		done := make(chan outcome, 1)
		done <- outcome{payload: "thunder"}

		r := await(ctx, done)
		if !assert.Equal(t, OutcomeSuccess, r.Outcome, "iteration %d", i) {
			return
		}
		assert.Equal(t, "thunder", r.Payload)
	}
}

func TestAwaitKeepsOperationErrorAtDeadline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan outcome, 1)
	done <- outcome{err: errors.New("gym closed")}

	r := await(ctx, done)
	assert.Equal(t, OutcomeFailure, r.Outcome)
	assert.Equal(t, "gym closed", r.Reason)
}
