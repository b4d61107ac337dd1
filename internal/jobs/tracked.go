package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autosurvey-backend/internal/queue"
)

// Tracked records a queued status before handing msg to a remote queue, so
// the API can report on jobs a separate worker process runs.
type Tracked struct {
	Repo Repo
	Next queue.Client
	Now  func() time.Time
}

func (t *Tracked) Send(ctx context.Context, msg queue.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	now := t.now()
	if err := t.Repo.Create(ctx, FromMessage(msg, now)); err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	if err := t.Next.Send(ctx, msg); err != nil {
		_ = t.Repo.MarkFinished(ctx, msg.JobID, StatusFailed, err.Error(), t.now().UTC())
		return err
	}
	return nil
}

// Get returns the status record of a job.
func (t *Tracked) Get(ctx context.Context, id string) (Job, error) {
	return t.Repo.Get(ctx, id)
}

func (t *Tracked) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

// Track wraps a job run with running and finished status writes. A job with
// no record is run untracked; other write failures are returned only when run
// itself succeeded.
func Track(ctx context.Context, repo Repo, id string, run func() error) error {
	statusCtx := context.WithoutCancel(ctx)
	_ = repo.MarkRunning(statusCtx, id, time.Now().UTC())
	err := run()
	status, errMsg := StatusSucceeded, ""
	if err != nil {
		status, errMsg = StatusFailed, err.Error()
	}
	if markErr := repo.MarkFinished(statusCtx, id, status, errMsg, time.Now().UTC()); markErr != nil && !errors.Is(markErr, ErrNotFound) && err == nil {
		return fmt.Errorf("record job status: %w", markErr)
	}
	return err
}

var _ queue.Client = (*Tracked)(nil)
