package jobs

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("job not found")

type Repo interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	MarkRunning(ctx context.Context, id string, at time.Time) error
	MarkFinished(ctx context.Context, id string, status Status, errMsg string, at time.Time) error
}
