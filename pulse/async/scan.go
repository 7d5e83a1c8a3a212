package async

import (
	"database/sql"
)

// jobScanArgs holds the nullable columns of a job row.
type jobScanArgs struct {
	Payload     sql.NullString
	ErrorMsg    sql.NullString
	StartedAt   sql.NullTime
	CompletedAt sql.NullTime
}

// jobScanTargets returns scan pointers in jobSelectColumns order.
func jobScanTargets(job *Job, args *jobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&job.HandlerName,
		&job.Source,
		&job.Status,
		&job.Stage,
		&job.Progress.Current,
		&job.Progress.Total,
		&args.ErrorMsg,
		&args.Payload,
		&job.RetryCount,
		&job.CreatedAt,
		&args.StartedAt,
		&args.CompletedAt,
		&job.UpdatedAt,
	}
}

func (args *jobScanArgs) apply(job *Job) {
	if args.Payload.Valid {
		job.Payload = []byte(args.Payload.String)
	}
	if args.ErrorMsg.Valid {
		job.Error = args.ErrorMsg.String
	}
	if args.StartedAt.Valid {
		t := args.StartedAt.Time
		job.StartedAt = &t
	}
	if args.CompletedAt.Valid {
		t := args.CompletedAt.Time
		job.CompletedAt = &t
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var args jobScanArgs
	if err := row.Scan(jobScanTargets(&job, &args)...); err != nil {
		return nil, err
	}
	args.apply(&job)
	return &job, nil
}

const jobSelectColumns = `id, handler_name, source, status, stage,
		progress_current, progress_total,
		error, payload, retry_count,
		created_at, started_at, completed_at, updated_at`
