package pipeline

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dealflow/errors"
)

// ProgressEvent is emitted before each stage starts.
type ProgressEvent struct {
	CaseID     string    `json:"case_id"`
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage"`
	State      State     `json:"state"`
	Index      int       `json:"index"`
	Total      int       `json:"total"`
	Percentage int       `json:"percentage"`
	Timestamp  time.Time `json:"timestamp"`
}

// Percent returns round(index/total*100).
func Percent(index, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(index) / float64(total) * 100))
}

// ProgressSink receives stage progress. Errors are logged and ignored.
type ProgressSink interface {
	Emit(ctx context.Context, event ProgressEvent) error
}

// StatusSink records the run's coarse state. Errors are logged and ignored.
type StatusSink interface {
	Update(ctx context.Context, caseID string, state State, at time.Time) error
}

// RunRecorder is optionally implemented by a StatusSink that also stores the
// full run projection.
type RunRecorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// ResultRecorder is optionally implemented by a StatusSink that stores merged
// task results.
type ResultRecorder interface {
	RecordResults(ctx context.Context, run Run, stage string, results map[string]TaskResult) error
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ctx context.Context, event ProgressEvent) error

func (f ProgressFunc) Emit(ctx context.Context, event ProgressEvent) error { return f(ctx, event) }

// MultiProgress fans an event out to several sinks, returning the first error.
// Every sink is called even if an earlier one fails.
func MultiProgress(sinks ...ProgressSink) ProgressSink {
	return ProgressFunc(func(ctx context.Context, event ProgressEvent) error {
		var first error
		for _, s := range sinks {
			if s == nil {
				continue
			}
			if err := s.Emit(ctx, event); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// LogProgress returns a sink that writes events to logger.
func LogProgress(logger *zap.SugaredLogger) ProgressSink {
	return ProgressFunc(func(_ context.Context, e ProgressEvent) error {
		logger.Infow("Stage starting",
			"case_id", e.CaseID,
			"stage", e.Stage,
			"index", e.Index,
			"total", e.Total,
			"percentage", e.Percentage)
		return nil
	})
}

// guard runs a sink call, converting panics to errors and logging failures.
func guard(logger *zap.SugaredLogger, sink string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.Newf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err != nil {
		logger.Warnw("Sink failed, continuing", "sink", sink, "error", err)
	}
}
