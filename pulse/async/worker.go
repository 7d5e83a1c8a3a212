package async

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dealflow/db"
	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/logger"
	"github.com/teranos/dealflow/sym"
)

const (
	// MaxRetries is the maximum number of retry attempts for failed jobs
	MaxRetries = 2

	// MaxOrphanedJobsToRecover limits how many orphaned jobs are re-queued on start.
	MaxOrphanedJobsToRecover = 1000
)

// pulseLogger adds opening and closing markers to worker lifecycle logs.
type pulseLogger struct {
	*zap.SugaredLogger
}

// Starting logs an opening (✿) event at DEBUG.
func (l pulseLogger) Starting(msg string, keysAndValues ...interface{}) {
	l.Debugw(sym.PulseOpen+" "+msg, keysAndValues...)
}

// Closing logs a closing (❀) event at WARN.
func (l pulseLogger) Closing(msg string, keysAndValues ...interface{}) {
	l.Warnw(sym.PulseClose+" "+msg, keysAndValues...)
}

// WorkerPoolConfig contains configuration for the worker pool
type WorkerPoolConfig struct {
	Workers      int           `json:"workers"`
	PollInterval time.Duration `json:"poll_interval"`
}

// DefaultWorkerPoolConfig returns sensible defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		Workers:      1,
		PollInterval: 2 * time.Second,
	}
}

// WorkerPool runs queued jobs through registered handlers.
type WorkerPool struct {
	queue         *Queue
	registry      *HandlerRegistry
	poolConfig    WorkerPoolConfig
	parentCtx     context.Context
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	activeWorkers int
	jobsProcessed int
	logger        pulseLogger
	mu            sync.Mutex
}

// NewWorkerPool creates a worker pool with an empty handler registry.
// Register handlers before calling Start. Cancelling ctx stops the workers.
func NewWorkerPool(ctx context.Context, db *sql.DB, poolCfg WorkerPoolConfig, log *zap.SugaredLogger) *WorkerPool {
	if poolCfg.Workers <= 0 {
		poolCfg.Workers = 1
	}
	if poolCfg.PollInterval <= 0 {
		poolCfg.PollInterval = DefaultWorkerPoolConfig().PollInterval
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	workerCtx, cancel := context.WithCancel(ctx)

	return &WorkerPool{
		queue:      NewQueue(db),
		registry:   NewHandlerRegistry(),
		poolConfig: poolCfg,
		parentCtx:  ctx,
		ctx:        workerCtx,
		cancel:     cancel,
		logger:     pulseLogger{log.Named("pulse")},
	}
}

// Start recovers orphaned jobs and launches the workers.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	select {
	case <-wp.ctx.Done():
		wp.ctx, wp.cancel = context.WithCancel(wp.parentCtx)
		wp.logger.Starting("Recreated worker context after previous shutdown")
	default:
	}
	wp.jobsProcessed = 0
	wp.mu.Unlock()

	if err := wp.recoverOrphanedJobs(); err != nil {
		wp.logger.Warnw("Failed to recover orphaned jobs", "error", err)
	}

	if warning := wp.checkMemoryPressure(); warning != "" {
		wp.logger.Warnw("Memory pressure warning", "warning", warning, "workers", wp.poolConfig.Workers)
	}

	wp.logger.Infow(sym.Pulse+" Worker pool started",
		"workers", wp.poolConfig.Workers,
		"poll_interval", wp.poolConfig.PollInterval,
		"handlers", wp.registry.Names())

	for i := 0; i < wp.poolConfig.Workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// recoverOrphanedJobs re-queues jobs left running by an ungraceful shutdown.
func (wp *WorkerPool) recoverOrphanedJobs() error {
	running := JobStatusRunning
	orphaned, err := wp.queue.ListJobs(&running, MaxOrphanedJobsToRecover)
	if err != nil {
		return errors.Wrap(err, "failed to list running jobs")
	}
	if len(orphaned) == 0 {
		return nil
	}

	wp.logger.Starting("Found orphaned jobs from previous run", "count", len(orphaned))
	for _, job := range orphaned {
		job.Status = JobStatusQueued
		job.Error = ""
		if err := wp.queue.UpdateJob(job); err != nil {
			wp.logger.Warnw("Failed to recover orphaned job", logger.FieldJobID, job.ID, "error", err)
			continue
		}
		wp.logger.Starting("Recovered orphaned job", logger.FieldJobID, job.ID, "handler", job.HandlerName)
	}
	return nil
}

// Stop cancels the workers and waits up to 30 seconds for them to exit.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	cancel := wp.cancel
	wp.mu.Unlock()
	cancel()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	timeout := 30 * time.Second
	select {
	case <-done:
		wp.logger.Infow(sym.PulseClose + " Worker pool stopped, all workers exited cleanly")
	case <-time.After(timeout):
		wp.logger.Closing("Worker pool stop timed out, jobs may still be running", "timeout", timeout)
	}
}

func (wp *WorkerPool) currentContext() context.Context {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	return wp.ctx
}

// worker polls the queue until the pool is stopped.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	ctx := wp.currentContext()

	ticker := time.NewTicker(wp.poolConfig.PollInterval)
	defer ticker.Stop()

	errorCount := 0
	const maxConsecutiveErrors = 5
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Drain the queue before waiting for the next tick.
		for {
			processed, err := wp.processNextJob(ctx)
			if err == nil {
				if errorCount > 0 {
					wp.logger.Infow("Worker recovered from errors", "worker_id", id, "previous_error_count", errorCount)
				}
				errorCount = 0
				backoff = time.Second
				if !processed {
					break
				}
				continue
			}

			if ctx.Err() != nil || db.IsDatabaseClosed(err) {
				wp.logger.Debugw("Worker exiting, store unavailable", "worker_id", id, "error", err)
				return
			}
			errorCount++
			wp.logger.Errorw("Worker error processing job",
				"worker_id", id,
				"error", err,
				"consecutive_errors", errorCount)
			if errorCount >= maxConsecutiveErrors {
				wp.logger.Warnw("Worker backing off due to consecutive errors",
					"worker_id", id,
					"backoff", backoff)
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				backoff = min(backoff*2, maxBackoff)
			}
			break
		}
	}
}

// processNextJob runs one queued job. processed is false when the queue was empty.
func (wp *WorkerPool) processNextJob(ctx context.Context) (processed bool, err error) {
	if ctx.Err() != nil {
		return false, nil
	}

	job, err := wp.queue.Dequeue()
	if err != nil {
		return false, errors.Wrap(err, "failed to dequeue job")
	}
	if job == nil {
		return false, nil
	}

	wp.mu.Lock()
	wp.jobsProcessed++
	wp.activeWorkers++
	wp.mu.Unlock()
	defer func() {
		wp.mu.Lock()
		wp.activeWorkers--
		wp.mu.Unlock()
	}()

	log := wp.logger.With(logger.FieldJobID, job.ID, "handler", job.HandlerName)
	jobCtx, cancelJob := context.WithCancelCause(logger.WithJobID(ctx, job.ID))
	stopWatch := wp.watchCancellation(jobCtx, job.ID, cancelJob)
	start := time.Now()

	execErr := wp.execute(jobCtx, job)
	stopWatch()
	cancelled := errors.Is(context.Cause(jobCtx), ErrJobCancelled)
	cancelJob(nil)

	if cancelled {
		log.Infow(sym.Pulse+" Job cancelled while running", logger.FieldDurationMS, time.Since(start).Milliseconds())
		return true, nil
	}
	if execErr == nil {
		log.Infow(sym.Pulse+" Job completed", logger.FieldDurationMS, time.Since(start).Milliseconds())
		return true, wp.queue.CompleteJob(job.ID)
	}

	if ctx.Err() != nil {
		wp.logger.Closing("Job interrupted by shutdown, re-queuing", logger.FieldJobID, job.ID)
		job.Status = JobStatusQueued
		if err := wp.queue.UpdateJob(job); err != nil {
			log.Errorw("Failed to re-queue interrupted job", "error", err)
		}
		return true, nil
	}

	ec := ClassifyError(job.Stage, execErr)
	if ec.Retryable && job.RetryCount < MaxRetries {
		job.RetryCount++
		job.Status = JobStatusQueued
		job.Error = fmt.Sprintf("retry %d/%d: %s", job.RetryCount, MaxRetries, errors.Summary(execErr, 200))
		log.Infow(sym.Pulse+" Retry scheduled",
			"retry_count", job.RetryCount,
			"max_retries", MaxRetries,
			logger.FieldErrorCode, ec.Code)
		return true, wp.queue.UpdateJob(job)
	}

	log.Warnw(sym.Pulse+" Job failed",
		logger.FieldStage, ec.Stage,
		logger.FieldErrorCode, ec.Code,
		"retry_count", job.RetryCount,
		"error", execErr)
	return true, wp.queue.FailJob(job.ID, execErr)
}

// watchCancellation polls the job row while its handler runs and cancels
// the handler's context with ErrJobCancelled once the job is cancelled. The
// returned stop func waits for the watcher to exit.
func (wp *WorkerPool) watchCancellation(ctx context.Context, jobID string, cancel context.CancelCauseFunc) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(wp.poolConfig.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			job, err := wp.queue.GetJob(jobID)
			if err != nil {
				continue
			}
			if job.Status == JobStatusCancelled {
				cancel(ErrJobCancelled)
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// execute runs the handler, converting a panic into an error.
func (wp *WorkerPool) execute(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(errors.Newf("handler %s panicked: %v", job.HandlerName, r))
		}
	}()
	return wp.registry.Execute(ctx, job)
}

// Queue returns the job queue
func (wp *WorkerPool) Queue() *Queue {
	return wp.queue
}

// Registry returns the handler registry. Register handlers before Start.
func (wp *WorkerPool) Registry() *HandlerRegistry {
	return wp.registry
}

// Workers returns the number of concurrent workers
func (wp *WorkerPool) Workers() int {
	return wp.poolConfig.Workers
}
