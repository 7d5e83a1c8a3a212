package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dealflow/errors"
)

func TestExecutorOneEntryPerTask(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{}, nil)

	tasks := []Task{
		{Name: "github", Run: func(context.Context, Snapshot) (any, error) { return "repos", nil }},
		{Name: "news", Run: func(context.Context, Snapshot) (any, error) { return nil, errors.New("rate limited") }},
		{Name: "glassdoor", Run: func(context.Context, Snapshot) (any, error) { panic("bad parse") }},
		{Name: "linkedin", Run: func(context.Context, Snapshot) (any, error) { return nil, ErrNotApplicable }},
	}

	results, err := exec.Execute(context.Background(), tasks, NewBag(nil).Snapshot(), time.Second)
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.True(t, results["github"].OK())
	assert.True(t, results["news"].Failed())
	assert.True(t, results["glassdoor"].Failed())
	assert.Equal(t, OutcomeNotApplicable, results["linkedin"].Outcome)
}

func TestExecutorRunsTasksConcurrently(t *testing.T) {
	t.Log("Three Kirbys inhale at once: none may finish before all have started")

	const n = 3
	var started sync.WaitGroup
	started.Add(n)

	tasks := make([]Task, n)
	for i := range tasks {
		tasks[i] = Task{
			Name: fmt.Sprintf("kirby-%d", i),
			Run: func(ctx context.Context, _ Snapshot) (any, error) {
				started.Done()
				started.Wait()
				return "inhaled", nil
			},
		}
	}

	exec := NewExecutor(ExecutorConfig{}, nil)
	results, err := exec.Execute(context.Background(), tasks, NewBag(nil).Snapshot(), 2*time.Second)
	require.NoError(t, err)
	for name, r := range results {
		assert.True(t, r.OK(), "%s should succeed only if peers ran alongside it", name)
	}
}

func TestExecutorRespectsConcurrencyLimit(t *testing.T) {
	var inFlight, peak int32
	tasks := make([]Task, 8)
	for i := range tasks {
		tasks[i] = Task{
			Name: fmt.Sprintf("t%d", i),
			Run: func(context.Context, Snapshot) (any, error) {
				cur := atomic.AddInt32(&inFlight, 1)
				for {
					old := atomic.LoadInt32(&peak)
					if cur <= old || atomic.CompareAndSwapInt32(&peak, old, cur) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil, nil
			},
		}
	}

	exec := NewExecutor(ExecutorConfig{MaxConcurrency: 2}, nil)
	results, err := exec.Execute(context.Background(), tasks, NewBag(nil).Snapshot(), time.Second)
	require.NoError(t, err)
	assert.Len(t, results, 8)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestExecutorRejectsDuplicateNames(t *testing.T) {
	var calls int32
	op := func(context.Context, Snapshot) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}
	exec := NewExecutor(ExecutorConfig{}, nil)

	_, err := exec.Execute(context.Background(), []Task{{Name: "dup", Run: op}, {Name: "dup", Run: op}}, NewBag(nil).Snapshot(), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateTask))
	assert.Zero(t, atomic.LoadInt32(&calls), "no task may start")
}

func TestExecutorEmptyTaskSet(t *testing.T) {
	exec := NewExecutor(ExecutorConfig{}, nil)
	results, err := exec.Execute(context.Background(), nil, NewBag(nil).Snapshot(), 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExecutorDoesNotWaitForStragglers(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	tasks := []Task{
		{Name: "fast", Run: func(context.Context, Snapshot) (any, error) { return "done", nil }},
		{Name: "stuck", Run: func(context.Context, Snapshot) (any, error) { <-block; return nil, nil }},
	}

	exec := NewExecutor(ExecutorConfig{}, nil)
	start := time.Now()
	results, err := exec.Execute(context.Background(), tasks, NewBag(nil).Snapshot(), 30*time.Millisecond)
	require.NoError(t, err)

	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, results["fast"].OK())
	assert.Equal(t, "deadline exceeded", results["stuck"].Reason)
}
