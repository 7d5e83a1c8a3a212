package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/dealflow/errors"
)

// DefaultTaskTimeout bounds tasks whose stage and task set no timeout.
const DefaultTaskTimeout = 90 * time.Second

// ErrDuplicateTask is returned when a task set repeats a name.
var ErrDuplicateTask = errors.New("duplicate task name")

// Executor runs one stage's task set concurrently and collects one result per
// task.
type Executor struct {
	maxConcurrency int
	taskTimeout    time.Duration
	logger         *zap.SugaredLogger
}

// ExecutorConfig configures an Executor.
type ExecutorConfig struct {
	// MaxConcurrency caps tasks in flight; zero means unbounded.
	MaxConcurrency int
	// TaskTimeout is the fallback per-task deadline.
	TaskTimeout time.Duration
}

// NewExecutor creates an executor. A nil logger is replaced by a no-op logger.
func NewExecutor(cfg ExecutorConfig, logger *zap.SugaredLogger) *Executor {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Executor{
		maxConcurrency: cfg.MaxConcurrency,
		taskTimeout:    cfg.TaskTimeout,
		logger:         logger,
	}
}

// TaskTimeout is the fallback per-task deadline.
func (e *Executor) TaskTimeout() time.Duration { return e.taskTimeout }

// Execute runs tasks against snap and waits for every one to reach a terminal
// result. stageTimeout, when positive, replaces the executor's fallback
// deadline for tasks without their own.
func (e *Executor) Execute(ctx context.Context, tasks []Task, snap Snapshot, stageTimeout time.Duration) (map[string]TaskResult, error) {
	seen := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if _, dup := seen[t.Name]; dup {
			return nil, errors.Wrapf(ErrDuplicateTask, "task %s", t.Name)
		}
		seen[t.Name] = struct{}{}
	}

	timeout := e.taskTimeout
	if stageTimeout > 0 {
		timeout = stageTimeout
	}

	// Each goroutine owns exactly one slot.
	slots := make([]TaskResult, len(tasks))

	var g errgroup.Group
	if e.maxConcurrency > 0 {
		g.SetLimit(e.maxConcurrency)
	}
	for i, task := range tasks {
		g.Go(func() error {
			slots[i] = RunTask(ctx, task, snap, timeout)
			e.logger.Debugw("Task finished",
				"task", task.Name,
				"outcome", slots[i].Outcome.String(),
				"duration_ms", slots[i].Duration.Milliseconds())
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]TaskResult, len(tasks))
	for i, task := range tasks {
		results[task.Name] = slots[i]
	}
	return results, nil
}
