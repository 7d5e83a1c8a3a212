package async

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/dealflow/errors"
	dftest "github.com/teranos/dealflow/internal/testing"
)

// Yugi draws jobs from the queue like cards, oldest first.

func newTestJob(t *testing.T, source string) *Job {
	t.Helper()
	job, err := NewJob("deal.analyze", source, []byte(`{"case_id":"`+source+`"}`), 6)
	require.NoError(t, err)
	return job
}

func TestYugiDrawsOldestJobFirst(t *testing.T) {
	t.Log("⭐ Yugi: 'It's time to duel!' *draws from the queue*")
	queue := NewQueue(dftest.CreateMigratedDB(t))

	first := newTestJob(t, "dark-magician.pdf")
	first.CreatedAt = time.Now().Add(-time.Minute)
	second := newTestJob(t, "blue-eyes.pdf")
	require.NoError(t, queue.Enqueue(second))
	require.NoError(t, queue.Enqueue(first))

	drawn, err := queue.Dequeue()
	require.NoError(t, err)
	require.NotNil(t, drawn)
	assert.Equal(t, first.ID, drawn.ID)
	assert.Equal(t, JobStatusRunning, drawn.Status)

	stored, err := queue.GetJob(first.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRunning, stored.Status)
	assert.NotNil(t, stored.StartedAt)
	assert.JSONEq(t, `{"case_id":"dark-magician.pdf"}`, string(stored.Payload))
}

func TestYugiDrawsFromEmptyDeck(t *testing.T) {
	queue := NewQueue(dftest.CreateMigratedDB(t))

	job, err := queue.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestQueueCompleteFailAndCancel(t *testing.T) {
	queue := NewQueue(dftest.CreateMigratedDB(t))

	done := newTestJob(t, "a.pdf")
	failed := newTestJob(t, "b.pdf")
	cancelled := newTestJob(t, "c.pdf")
	for _, j := range []*Job{done, failed, cancelled} {
		require.NoError(t, queue.Enqueue(j))
	}

	require.NoError(t, queue.CompleteJob(done.ID))
	require.NoError(t, queue.FailJob(failed.ID, errors.New("required stage extraction failed")))
	require.NoError(t, queue.CancelJob(cancelled.ID, "user requested"))

	got, err := queue.GetJob(failed.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, got.Status)
	assert.Equal(t, "required stage extraction failed", got.Error)

	err = queue.CancelJob(done.ID, "too late")
	assert.True(t, errors.IsConflictError(err))

	stats, err := queue.GetStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Cancelled)
	assert.Equal(t, 3, stats.Total)
}

func TestQueueGetJobNotFound(t *testing.T) {
	queue := NewQueue(dftest.CreateMigratedDB(t))

	_, err := queue.GetJob("missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestQueueSubscribersReceiveSnapshots(t *testing.T) {
	queue := NewQueue(dftest.CreateMigratedDB(t))
	ch := queue.Subscribe()
	defer queue.Unsubscribe(ch)

	job := newTestJob(t, "kaiba.pdf")
	require.NoError(t, queue.Enqueue(job))
	job.Advance("enrichment", 1, 0)
	require.NoError(t, queue.UpdateJob(job))

	first := <-ch
	second := <-ch
	assert.Equal(t, "", first.Stage, "snapshot is not mutated by later updates")
	assert.Equal(t, "enrichment", second.Stage)
}

func TestFindActiveJobBySource(t *testing.T) {
	queue := NewQueue(dftest.CreateMigratedDB(t))
	job := newTestJob(t, "deck.pdf")
	require.NoError(t, queue.Enqueue(job))

	active, err := queue.FindActiveJobBySource("deck.pdf", "deal.analyze")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, job.ID, active.ID)

	require.NoError(t, queue.CompleteJob(job.ID))
	active, err = queue.FindActiveJobBySource("deck.pdf", "deal.analyze")
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestCleanupRemovesOnlyOldFinishedJobs(t *testing.T) {
	t.Log("⏳ Cronos sweeps away what time has finished with")
	db := dftest.CreateMigratedDB(t)
	queue := NewQueue(db)

	old := newTestJob(t, "old.pdf")
	fresh := newTestJob(t, "fresh.pdf")
	require.NoError(t, queue.Enqueue(old))
	require.NoError(t, queue.Enqueue(fresh))
	require.NoError(t, queue.CompleteJob(old.ID))

	_, err := db.Exec(`UPDATE async_jobs SET updated_at = ? WHERE id = ?`, time.Now().Add(-48*time.Hour), old.ID)
	require.NoError(t, err)

	n, err := queue.Cleanup(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = queue.GetJob(fresh.ID)
	assert.NoError(t, err)
}

func TestCancelledJobStaysCancelled(t *testing.T) {
	t.Log("Snorlax is told to go home mid-shift; finishing the shift later changes nothing")
	queue := NewQueue(dftest.CreateMigratedDB(t))

	job := newTestJob(t, "snorlax.pdf")
	require.NoError(t, queue.Enqueue(job))
	running, err := queue.Dequeue()
	require.NoError(t, err)
	require.NoError(t, queue.CancelJob(job.ID, "user requested"))

	require.NoError(t, queue.CompleteJob(job.ID))
	got, err := queue.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, got.Status)

	require.NoError(t, queue.FailJob(job.ID, errors.New("handler gave up")))
	got, err = queue.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, got.Status)

	running.Advance("enrichment", 2, 0)
	err = queue.UpdateJob(running)
	assert.ErrorIs(t, err, ErrJobCancelled, "a stale progress write cannot revive the job")
	got, err = queue.GetJob(job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCancelled, got.Status)
}

func TestUpdateJobCannotReopenFinishedJob(t *testing.T) {
	queue := NewQueue(dftest.CreateMigratedDB(t))
	job := newTestJob(t, "done.pdf")
	require.NoError(t, queue.Enqueue(job))
	require.NoError(t, queue.CompleteJob(job.ID))

	job.Status = JobStatusQueued
	err := queue.UpdateJob(job)
	assert.True(t, errors.IsConflictError(err))
}
