// Package status persists what the pipeline reports about each case: the
// coarse case state, a projection of every run, and each merged task result.
package status

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/dealflow/errors"
	"github.com/teranos/dealflow/pipeline"
)

// CaseStatus is the latest state recorded for a case.
type CaseStatus struct {
	CaseID    string         `json:"case_id"`
	State     pipeline.State `json:"state"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TaskRecord is one stored task result.
type TaskRecord struct {
	RunID      string          `json:"run_id"`
	Stage      string          `json:"stage"`
	Task       string          `json:"task"`
	Outcome    string          `json:"outcome"`
	Reason     string          `json:"reason,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	DurationMS int64           `json:"duration_ms"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Recorder is a pipeline.StatusSink backed by SQLite. It also implements
// pipeline.RunRecorder and pipeline.ResultRecorder.
type Recorder struct {
	db     *sql.DB
	logger *zap.SugaredLogger
	now    func() time.Time
}

var (
	_ pipeline.StatusSink     = (*Recorder)(nil)
	_ pipeline.RunRecorder    = (*Recorder)(nil)
	_ pipeline.ResultRecorder = (*Recorder)(nil)
)

// NewRecorder creates a recorder on a migrated database.
func NewRecorder(db *sql.DB, logger *zap.SugaredLogger) *Recorder {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Recorder{db: db, logger: logger, now: time.Now}
}

// Update upserts the case's coarse state.
func (r *Recorder) Update(ctx context.Context, caseID string, state pipeline.State, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO case_status (case_id, state, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, caseID, string(state), at)
	if err != nil {
		err = errors.Wrap(err, "failed to update case status")
		return errors.WithDetail(err, fmt.Sprintf("Case: %s, state: %s", caseID, state))
	}
	return nil
}

// RecordRun upserts the run projection.
func (r *Recorder) RecordRun(ctx context.Context, run pipeline.Run) error {
	stages, err := json.Marshal(run.Stages)
	if err != nil {
		return errors.Wrap(err, "failed to encode run stages")
	}
	errMsg := sql.NullString{String: run.Error, Valid: run.Error != ""}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, case_id, state, stages, error, started_at, ended_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			stages = excluded.stages,
			error = excluded.error,
			ended_at = excluded.ended_at,
			updated_at = excluded.updated_at
	`, run.ID, run.CaseID, string(run.State), string(stages), errMsg, run.StartedAt, run.EndedAt, r.now())
	if err != nil {
		err = errors.Wrap(err, "failed to record run")
		return errors.WithDetail(err, fmt.Sprintf("Run: %s", run.ID))
	}
	return nil
}

// RecordResults stores one stage's merged task results in a single transaction.
func (r *Recorder) RecordResults(ctx context.Context, run pipeline.Run, stage string, results map[string]pipeline.TaskResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin result transaction")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO pipeline_task_results
			(run_id, stage, task, outcome, reason, payload, duration_ms, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare result insert")
	}
	defer stmt.Close()

	at := r.now()
	for task, res := range results {
		payload, err := res.PayloadJSON()
		if err != nil {
			r.logger.Warnw("Task payload not serializable, storing without it",
				"run_id", run.ID, "stage", stage, "task", task, "error", err)
			payload = nil
		}
		reason := sql.NullString{String: res.Reason, Valid: res.Reason != ""}
		body := sql.NullString{String: string(payload), Valid: payload != nil}
		if _, err := stmt.ExecContext(ctx, run.ID, stage, task, res.Outcome.String(), reason, body, res.Duration.Milliseconds(), at); err != nil {
			err = errors.Wrap(err, "failed to record task result")
			return errors.WithDetail(err, fmt.Sprintf("Run: %s, task: %s/%s", run.ID, stage, task))
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit task results")
	}
	return nil
}

// GetCaseState returns the latest state of a case.
func (r *Recorder) GetCaseState(ctx context.Context, caseID string) (*CaseStatus, error) {
	cs := &CaseStatus{CaseID: caseID}
	var state string
	err := r.db.QueryRowContext(ctx,
		`SELECT state, updated_at FROM case_status WHERE case_id = ?`, caseID,
	).Scan(&state, &cs.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("case %s", caseID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get case status")
	}
	cs.State = pipeline.State(state)
	return cs, nil
}

const runColumns = `id, case_id, state, stages, error, started_at, ended_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*pipeline.Run, error) {
	var (
		run    pipeline.Run
		state  string
		stages string
		errMsg sql.NullString
		ended  sql.NullTime
	)
	if err := row.Scan(&run.ID, &run.CaseID, &state, &stages, &errMsg, &run.StartedAt, &ended); err != nil {
		return nil, err
	}
	run.State = pipeline.State(state)
	run.Error = errMsg.String
	if ended.Valid {
		t := ended.Time
		run.EndedAt = &t
	}
	if err := json.Unmarshal([]byte(stages), &run.Stages); err != nil {
		return nil, errors.Wrapf(err, "corrupt stages for run %s", run.ID)
	}
	return &run, nil
}

// GetRun returns one run projection.
func (r *Recorder) GetRun(ctx context.Context, runID string) (*pipeline.Run, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("run %s", runID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get run")
	}
	return run, nil
}

// ListRuns returns runs newest first. An empty caseID lists every case.
func (r *Recorder) ListRuns(ctx context.Context, caseID string, limit int) ([]*pipeline.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM pipeline_runs`
	var args []any
	if caseID != "" {
		query += ` WHERE case_id = ?`
		args = append(args, caseID)
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	defer rows.Close()

	var runs []*pipeline.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan run")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating runs")
	}
	return runs, nil
}

// LatestRun returns the most recent run for a case.
func (r *Recorder) LatestRun(ctx context.Context, caseID string) (*pipeline.Run, error) {
	runs, err := r.ListRuns(ctx, caseID, 1)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, errors.NewNotFoundError("no runs for case %s", caseID)
	}
	return runs[0], nil
}

// TaskResults returns every stored result of a run in stage then task order.
func (r *Recorder) TaskResults(ctx context.Context, runID string) ([]TaskRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT r.run_id, r.stage, r.task, r.outcome, r.reason, r.payload, r.duration_ms, r.recorded_at
		FROM pipeline_task_results r
		WHERE r.run_id = ?
		ORDER BY r.recorded_at, r.stage, r.task
	`, runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query task results")
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		var (
			rec     TaskRecord
			reason  sql.NullString
			payload sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &rec.Stage, &rec.Task, &rec.Outcome, &reason, &payload, &rec.DurationMS, &rec.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan task result")
		}
		rec.Reason = reason.String
		if payload.Valid {
			rec.Payload = json.RawMessage(payload.String)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating task results")
	}
	return out, nil
}

// TaskResult returns one stored result.
func (r *Recorder) TaskResult(ctx context.Context, runID, stage, task string) (*TaskRecord, error) {
	records, err := r.TaskResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Stage == stage && records[i].Task == task {
			return &records[i], nil
		}
	}
	return nil, errors.NewNotFoundError("task %s/%s in run %s", stage, task, runID)
}
