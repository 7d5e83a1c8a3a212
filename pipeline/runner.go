package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/dealflow/errors"
)

// ErrStageFailed marks a run aborted by a required stage.
var ErrStageFailed = errors.New("required stage failed")

const reasonRunCanceled = "run canceled"

// Request starts one run.
type Request struct {
	CaseID   string
	Input    any
	Artifact Artifact
}

// Runner drives a plan through its stages for one case at a time. A Runner is
// safe for concurrent Run calls; each run owns its own bag.
type Runner struct {
	plan     *Plan
	executor *Executor
	progress ProgressSink
	status   StatusSink
	logger   *zap.SugaredLogger
	now      func() time.Time
	newID    func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithProgress sets the progress sink.
func WithProgress(sink ProgressSink) Option { return func(r *Runner) { r.progress = sink } }

// WithStatus sets the status sink.
func WithStatus(sink StatusSink) Option { return func(r *Runner) { r.status = sink } }

// WithLogger sets the runner's logger.
func WithLogger(logger *zap.SugaredLogger) Option { return func(r *Runner) { r.logger = logger } }

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// WithRunIDs replaces the run ID generator.
func WithRunIDs(newID func() string) Option { return func(r *Runner) { r.newID = newID } }

// NewRunner creates a runner for plan. A nil executor gets the defaults.
func NewRunner(plan *Plan, executor *Executor, opts ...Option) *Runner {
	r := &Runner{
		plan:     plan,
		executor: executor,
		logger:   zap.NewNop().Sugar(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.executor == nil {
		r.executor = NewExecutor(ExecutorConfig{}, r.logger)
	}
	return r
}

// Plan returns the runner's plan.
func (r *Runner) Plan() *Plan { return r.plan }

// Run executes every stage in order and returns the terminal result. It never
// returns an error: failures are expressed through Result.FinalState and
// Result.Error. The request's artifact is released before Run returns.
func (r *Runner) Run(ctx context.Context, req Request) (result *Result) {
	run := newRun(r.newID(), req.CaseID, r.plan, r.now())
	bag := NewBag(req.Input)
	log := r.logger.With("case_id", req.CaseID, "run_id", run.ID)

	defer r.release(req.Artifact, log)
	defer func() {
		if p := recover(); p != nil {
			log.Errorw("Pipeline panicked", "panic", p)
			result = r.fail(ctx, run, bag, fmt.Sprintf("internal error: %v", p), log)
		}
	}()

	stages := r.plan.stages
	log.Infow("Pipeline starting", "stages", len(stages))

	if err := r.transition(ctx, run, stages[0].State, log); err != nil {
		return r.fail(ctx, run, bag, err.Error(), log)
	}

	for i, stage := range stages {
		status := &run.Stages[i]

		if ctx.Err() != nil {
			return r.fail(ctx, run, bag, reasonRunCanceled, log)
		}

		started := r.now()
		status.StartedAt = &started
		status.Status = StageRunning
		r.emit(ctx, run, stage, log)

		snap := bag.Snapshot()
		tasks, buildErr := build(stage, snap)
		var results map[string]TaskResult
		if buildErr == nil {
			var err error
			results, err = r.executor.Execute(ctx, tasks, snap, stage.TaskTimeout)
			if err != nil {
				buildErr = err
			}
		}

		if buildErr == nil {
			if err := bag.Merge(stage.Name, taskNames(tasks), results); err != nil {
				return r.fail(ctx, run, bag, err.Error(), log)
			}
			r.recordResults(ctx, run, stage.Name, results, log)
		}

		ended := r.now()
		status.EndedAt = &ended
		status.tally(results)

		log.Infow("Stage finished",
			"stage", stage.Name,
			"tasks", status.Tasks,
			"succeeded", status.Succeeded,
			"failed", status.Failed,
			"not_applicable", status.NotApplicable)

		if ctx.Err() != nil {
			status.Status = StageFailed
			status.Error = reasonRunCanceled
			return r.fail(ctx, run, bag, reasonRunCanceled, log)
		}

		usable := buildErr == nil && status.Succeeded > 0
		if !usable && stage.Policy.aborts(len(tasks), buildErr) {
			status.Status = StageFailed
			status.Error = stageError(stage, buildErr, results)
			return r.fail(ctx, run, bag, status.Error, log)
		}

		status.Status = StageCompleted
		if buildErr == nil && len(tasks) == 0 {
			status.Status = StageSkipped
		} else if !usable || status.Failed > 0 {
			status.Status = StageDegraded
			if buildErr != nil {
				status.Error = buildErr.Error()
			}
		}

		next := StateCompleted
		if i+1 < len(stages) {
			next = stages[i+1].State
		}
		if err := r.transition(ctx, run, next, log); err != nil {
			return r.fail(ctx, run, bag, err.Error(), log)
		}
	}

	ended := r.now()
	run.EndedAt = &ended
	r.record(ctx, run, log)
	log.Infow("Pipeline completed", "duration_ms", ended.Sub(run.StartedAt).Milliseconds())
	return r.result(run, bag)
}

// build calls the stage builder, turning a panic into an error.
func build(stage Stage, snap Snapshot) (tasks []Task, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Newf("task builder panicked: %v", p)
		}
	}()
	return stage.Build(snap), nil
}

func taskNames(tasks []Task) []string {
	names := make([]string, len(tasks))
	for i, t := range tasks {
		names[i] = t.Name
	}
	return names
}

func stageError(stage Stage, buildErr error, results map[string]TaskResult) string {
	if buildErr != nil {
		return fmt.Sprintf("stage %s failed: %s", stage.Name, errors.Summary(buildErr, maxReasonLen))
	}
	if len(results) == 0 {
		return fmt.Sprintf("stage %s produced no tasks", stage.Name)
	}
	if len(results) == 1 {
		for _, res := range results {
			if res.Reason != "" {
				return fmt.Sprintf("stage %s failed: %s", stage.Name, res.Reason)
			}
		}
	}
	return fmt.Sprintf("stage %s failed: no task succeeded", stage.Name)
}

func (r *Runner) transition(ctx context.Context, run *Run, to State, log *zap.SugaredLogger) error {
	next, err := r.plan.machine.Transition(run.State, to)
	if err != nil {
		log.Errorw("Rejected state transition", "from", run.State, "to", to)
		return err
	}
	run.State = next
	at := r.now()

	if r.status != nil {
		sctx := context.WithoutCancel(ctx)
		guard(log, "status", func() error {
			return r.status.Update(sctx, run.CaseID, next, at)
		})
	}
	r.record(ctx, run, log)
	return nil
}

func (r *Runner) record(ctx context.Context, run *Run, log *zap.SugaredLogger) {
	rec, ok := r.status.(RunRecorder)
	if !ok {
		return
	}
	snapshot := run.clone()
	guard(log, "run recorder", func() error {
		return rec.RecordRun(context.WithoutCancel(ctx), snapshot)
	})
}

func (r *Runner) recordResults(ctx context.Context, run *Run, stage string, results map[string]TaskResult, log *zap.SugaredLogger) {
	rec, ok := r.status.(ResultRecorder)
	if !ok {
		return
	}
	snapshot := run.clone()
	guard(log, "result recorder", func() error {
		return rec.RecordResults(context.WithoutCancel(ctx), snapshot, stage, results)
	})
}

func (r *Runner) emit(ctx context.Context, run *Run, stage Stage, log *zap.SugaredLogger) {
	if r.progress == nil {
		return
	}
	event := ProgressEvent{
		CaseID:     run.CaseID,
		RunID:      run.ID,
		Stage:      stage.Name,
		State:      stage.State,
		Index:      stage.index,
		Total:      r.plan.Len(),
		Percentage: Percent(stage.index, r.plan.Len()),
		Timestamp:  r.now(),
	}
	guard(log, "progress", func() error { return r.progress.Emit(ctx, event) })
}

func (r *Runner) fail(ctx context.Context, run *Run, bag *Bag, reason string, log *zap.SugaredLogger) *Result {
	for i := range run.Stages {
		switch run.Stages[i].Status {
		case StagePending:
			run.Stages[i].Status = StageSkipped
		case StageRunning:
			run.Stages[i].Status = StageFailed
		}
	}
	run.Error = reason
	if !run.State.Terminal() {
		if err := r.transition(ctx, run, StateFailed, log); err != nil {
			run.State = StateFailed
		}
	}
	ended := r.now()
	run.EndedAt = &ended
	r.record(ctx, run, log)
	log.Warnw("Pipeline failed", "error", reason)
	return r.result(run, bag)
}

func (r *Runner) result(run *Run, bag *Bag) *Result {
	final := run.clone()
	res := &Result{
		RunID:      run.ID,
		CaseID:     run.CaseID,
		FinalState: run.State,
		Stages:     final.Stages,
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		Context:    bag.Snapshot(),
	}
	if run.EndedAt != nil {
		res.EndedAt = *run.EndedAt
	}
	return res
}

func (r *Runner) release(a Artifact, log *zap.SugaredLogger) {
	if a == nil {
		return
	}
	if err := a.Release(); err != nil {
		log.Warnw("Failed to release artifact", "path", a.Path(), "error", err)
	}
}

// Err returns the run's terminal error wrapped in ErrStageFailed, or nil.
func (r *Result) Err() error {
	if r.FinalState != StateFailed {
		return nil
	}
	return errors.Wrap(ErrStageFailed, r.Error)
}
