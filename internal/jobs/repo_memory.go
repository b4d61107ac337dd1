package jobs

import (
	"context"
	"sync"
	"time"
)

type MemoryRepo struct {
	mu   sync.RWMutex
	jobs map[string]Job
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{jobs: map[string]Job{}}
}

func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (r *MemoryRepo) MarkRunning(ctx context.Context, id string, at time.Time) error {
	return r.update(id, func(j *Job) {
		j.Status = StatusRunning
		j.StartedAt = &at
	})
}

func (r *MemoryRepo) MarkFinished(ctx context.Context, id string, status Status, errMsg string, at time.Time) error {
	return r.update(id, func(j *Job) {
		j.Status = status
		j.Error = errMsg
		j.FinishedAt = &at
	})
}

func (r *MemoryRepo) update(id string, fn func(*Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(&job)
	r.jobs[id] = job
	return nil
}
