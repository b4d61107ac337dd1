package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"autosurvey-backend/internal/queue"
)

// PGRepo stores job records in the automation_jobs table.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO automation_jobs (id, task, url, status, request_id, enqueued_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)`
	_, err := r.DB.ExecContext(ctx, query, job.ID, string(job.Task), job.URL, string(job.Status), job.RequestID, job.EnqueuedAt)
	return err
}

func (r *PGRepo) Get(ctx context.Context, id string) (Job, error) {
	const query = `
SELECT id, task, url, status, request_id, error, enqueued_at, started_at, finished_at
FROM automation_jobs
WHERE id = $1
LIMIT 1`
	var (
		job               Job
		task, status      string
		requestID, errMsg sql.NullString
		started, finished sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &task, &job.URL, &status, &requestID, &errMsg, &job.EnqueuedAt, &started, &finished,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	job.Task = queue.Task(task)
	job.Status = Status(status)
	job.RequestID = requestID.String
	job.Error = errMsg.String
	if started.Valid {
		job.StartedAt = &started.Time
	}
	if finished.Valid {
		job.FinishedAt = &finished.Time
	}
	return job, nil
}

func (r *PGRepo) MarkRunning(ctx context.Context, id string, at time.Time) error {
	const query = `
UPDATE automation_jobs
SET status = $2, started_at = $3
WHERE id = $1`
	return r.exec(ctx, query, id, string(StatusRunning), at)
}

func (r *PGRepo) MarkFinished(ctx context.Context, id string, status Status, errMsg string, at time.Time) error {
	const query = `
UPDATE automation_jobs
SET status = $2, error = NULLIF($3, ''), finished_at = $4
WHERE id = $1`
	return r.exec(ctx, query, id, string(status), errMsg, at)
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
