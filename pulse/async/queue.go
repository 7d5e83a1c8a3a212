package async

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/teranos/dealflow/errors"
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// ErrJobCancelled is the cancellation cause of a running job's context once
// the job is cancelled, and the error for writes that would revive it.
var ErrJobCancelled = errors.New("job cancelled")

// Queue wraps the store with locking and change notification.
type Queue struct {
	store       *Store
	mu          sync.RWMutex
	subscribers []chan *Job
}

// NewQueue creates a new job queue
func NewQueue(db *sql.DB) *Queue {
	return &Queue{
		store:       NewStore(db),
		subscribers: make([]chan *Job, 0),
	}
}

// Enqueue adds a new job to the queue
func (q *Queue) Enqueue(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.store.CreateJob(job); err != nil {
		return jobError(err, "enqueue", job)
	}

	q.notifySubscribers(job)
	return nil
}

// Dequeue gets the oldest queued job and marks it as running.
// Returns nil when nothing is queued.
func (q *Queue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.NextQueued()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get queued job")
	}
	if job == nil {
		return nil, nil
	}

	job.Start()
	if err := q.store.UpdateJob(job); err != nil {
		return nil, jobError(err, "start", job)
	}

	q.notifySubscribers(job)
	return job, nil
}

// GetJob retrieves a job by ID
func (q *Queue) GetJob(id string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.GetJob(id)
}

// UpdateJob updates a job's state
func (q *Queue) UpdateJob(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.guardTerminal(job.ID, job.Status); err != nil {
		return jobError(err, "update", job)
	}
	if err := q.store.UpdateJob(job); err != nil {
		return jobError(err, "update", job)
	}

	q.notifySubscribers(job)
	return nil
}

// guardTerminal refuses writes that would move a finished job to another
// status. Progress writes from a handler that has not yet noticed a cancel
// land here. REQUIRES: q.mu held by caller.
func (q *Queue) guardTerminal(id string, next JobStatus) error {
	stored, err := q.store.GetJob(id)
	if err != nil {
		return err
	}
	if !stored.Status.Terminal() || stored.Status == next {
		return nil
	}
	if stored.Status == JobStatusCancelled {
		return ErrJobCancelled
	}
	return errors.Wrapf(errors.ErrConflict, "already %s", stored.Status)
}

// CompleteJob marks a job as completed
func (q *Queue) CompleteJob(id string) error {
	return q.finish(id, "complete", func(j *Job) { j.Complete() })
}

// FailJob marks a job as failed with an error
func (q *Queue) FailJob(id string, jobErr error) error {
	return q.finish(id, "fail", func(j *Job) { j.Fail(jobErr) })
}

// CancelJob cancels a job that has not finished. A running job's worker
// notices on its next poll and cancels the handler's context.
func (q *Queue) CancelJob(id string, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "failed to cancel job %s", id)
	}
	if job.Status.Terminal() {
		return jobError(errors.Wrapf(errors.ErrConflict, "already %s", job.Status), "cancel", job)
	}

	job.Cancel(reason)
	if err := q.store.UpdateJob(job); err != nil {
		return jobError(err, "cancel", job)
	}
	q.notifySubscribers(job)
	return nil
}

func (q *Queue) finish(id, verb string, mark func(*Job)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return errors.Wrapf(err, "%s job %s", verb, id)
	}

	if job.Status.Terminal() {
		// Cancelled while the handler ran; the cancel stands.
		return nil
	}

	mark(job)
	if err := q.store.UpdateJob(job); err != nil {
		return jobError(err, verb, job)
	}

	q.notifySubscribers(job)
	return nil
}

// jobError names the operation and job in the message and attaches the
// handler and status as details for the CLI and logs.
func jobError(err error, op string, job *Job) error {
	err = errors.Wrapf(err, "%s job %s", op, job.ID)
	return errors.WithDetail(err, fmt.Sprintf("handler=%s status=%s", job.HandlerName, job.Status))
}

// ListJobs returns jobs, optionally filtered by status
func (q *Queue) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.ListJobs(status, limit)
}

// FindActiveJobBySource returns the queued or running job for source, if any.
func (q *Queue) FindActiveJobBySource(source, handlerName string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return q.store.FindActiveJobBySource(source, handlerName)
}

// Cleanup removes old finished jobs
func (q *Queue) Cleanup(olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.store.CleanupOldJobs(olderThan)
}

// Subscribe returns a channel that receives job updates.
// The caller is responsible for calling Unsubscribe when done.
func (q *Queue) Subscribe() chan *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize)
	q.subscribers = append(q.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the queue.
// The channel is not closed; the caller owns it.
func (q *Queue) Unsubscribe(ch chan *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, sub := range q.subscribers {
		if sub == ch {
			q.subscribers = append(q.subscribers[:i], q.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a copy of job to every subscriber without blocking.
// REQUIRES: q.mu held by caller.
func (q *Queue) notifySubscribers(job *Job) {
	snapshot := *job
	for _, ch := range q.subscribers {
		select {
		case ch <- &snapshot:
		default:
		}
	}
}

// QueueStats returns statistics about the queue
type QueueStats struct {
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
	Total     int `json:"total"`
}

// GetStats returns queue statistics
func (q *Queue) GetStats() (*QueueStats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	counts, err := q.store.CountByStatus()
	if err != nil {
		return nil, err
	}
	stats := &QueueStats{
		Queued:    counts[JobStatusQueued],
		Running:   counts[JobStatusRunning],
		Completed: counts[JobStatusCompleted],
		Failed:    counts[JobStatusFailed],
		Cancelled: counts[JobStatusCancelled],
	}
	stats.Total = stats.Queued + stats.Running + stats.Completed + stats.Failed + stats.Cancelled
	return stats, nil
}
