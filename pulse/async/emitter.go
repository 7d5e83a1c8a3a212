package async

import (
	"context"

	"go.uber.org/zap"

	"github.com/teranos/dealflow/logger"
	"github.com/teranos/dealflow/pipeline"
)

// JobProgressEmitter mirrors pipeline stage progress onto the job row so
// pollers see which stage a case is in.
type JobProgressEmitter struct {
	job   *Job
	queue *Queue
	log   *zap.SugaredLogger
}

// NewJobProgressEmitter creates a progress emitter for job.
func NewJobProgressEmitter(job *Job, queue *Queue, base *zap.SugaredLogger) *JobProgressEmitter {
	if base == nil {
		base = zap.NewNop().Sugar()
	}
	return &JobProgressEmitter{
		job:   job,
		queue: queue,
		log:   base.With(logger.FieldJobID, job.ID),
	}
}

// Emit implements pipeline.ProgressSink.
func (e *JobProgressEmitter) Emit(_ context.Context, ev pipeline.ProgressEvent) error {
	e.job.Advance(ev.Stage, ev.Index, ev.Total)
	if err := e.queue.UpdateJob(e.job); err != nil {
		e.log.Warnw("Failed to update job for stage", logger.FieldStage, ev.Stage, "error", err)
		return err
	}
	return nil
}

// Finish records the final stage count once the run ends.
func (e *JobProgressEmitter) Finish(stage string) {
	e.job.Advance(stage, e.job.Progress.Total, 0)
	if err := e.queue.UpdateJob(e.job); err != nil {
		e.log.Warnw("Failed to record final progress", "error", err)
	}
}

// EmitError logs a classified stage failure and stores its message on the job.
func (e *JobProgressEmitter) EmitError(stage string, err error) ErrorContext {
	ec := ClassifyError(stage, err)
	e.log.Errorw("Job error",
		logger.FieldStage, stage,
		logger.FieldErrorCode, ec.Code,
		"error", err,
		"retryable", ec.Retryable)

	e.job.Error = ec.Message
	if uerr := e.queue.UpdateJob(e.job); uerr != nil {
		e.log.Warnw("Failed to update job error state", "error", uerr)
	}
	return ec
}
