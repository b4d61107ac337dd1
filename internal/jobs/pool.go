package jobs

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"autosurvey-backend/internal/queue"
	"autosurvey-backend/internal/shared/metrics"
	"autosurvey-backend/internal/shared/telemetry"
)

var (
	ErrPoolClosed = errors.New("job pool is shut down")
	ErrQueueFull  = errors.New("job queue is full")
)

// Handler runs one job. The context is cancelled when a shutdown runs out of
// time.
type Handler func(ctx context.Context, msg queue.Message) error

// Pool is an in-process queue.Client: messages are buffered and run by a fixed
// number of workers.
type Pool struct {
	handler Handler
	repo    Repo
	jobs    chan queue.Message

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool

	Now func() time.Time
}

// NewPool starts workers goroutines reading from a buffer of capacity
// messages.
func NewPool(handler Handler, repo Repo, workers, capacity int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if capacity < 0 {
		capacity = 0
	}
	if repo == nil {
		repo = NewMemoryRepo()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		handler: handler,
		repo:    repo,
		jobs:    make(chan queue.Message, capacity),
		ctx:     ctx,
		cancel:  cancel,
		Now:     time.Now,
	}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

// Send records msg as queued and hands it to a worker. It never blocks: a full
// buffer fails the job with ErrQueueFull.
func (p *Pool) Send(ctx context.Context, msg queue.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	if err := p.repo.Create(ctx, FromMessage(msg, p.Now())); err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	select {
	case p.jobs <- msg:
		return nil
	default:
		_ = p.repo.MarkFinished(ctx, msg.JobID, StatusFailed, ErrQueueFull.Error(), p.Now().UTC())
		return ErrQueueFull
	}
}

// Get returns the status record of a job.
func (p *Pool) Get(ctx context.Context, id string) (Job, error) {
	return p.repo.Get(ctx, id)
}

// Shutdown stops accepting jobs and waits for queued and running ones. When
// ctx ends first, running jobs are cancelled and ctx.Err() is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		telemetry.Warn("jobs.shutdown_timeout", map[string]any{"error": ctx.Err()})
		return ctx.Err()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for msg := range p.jobs {
		p.run(msg)
	}
}

func (p *Pool) run(msg queue.Message) {
	// Status writes outlive a cancelled job.
	bg := context.WithoutCancel(p.ctx)
	fields := map[string]any{
		"job_id":     msg.JobID,
		"task":       string(msg.Task),
		"url":        msg.URL,
		"request_id": msg.RequestID,
	}

	metrics.IncJobsReceived()
	if err := p.repo.MarkRunning(bg, msg.JobID, p.Now().UTC()); err != nil {
		telemetry.Warn("jobs.status_write_failed", withErr(fields, err))
	}
	telemetry.Info("jobs.started", fields)

	start := p.Now()
	err := p.invoke(msg)
	fields["duration_ms"] = p.Now().Sub(start).Milliseconds()

	status, errMsg := StatusSucceeded, ""
	if err != nil {
		status, errMsg = StatusFailed, err.Error()
		metrics.IncJobsFailed()
		telemetry.Error("jobs.failed", withErr(fields, err))
	} else {
		metrics.IncJobsCompleted()
		telemetry.Info("jobs.completed", fields)
	}
	if err := p.repo.MarkFinished(bg, msg.JobID, status, errMsg, p.Now().UTC()); err != nil {
		telemetry.Warn("jobs.status_write_failed", withErr(fields, err))
	}
}

func (p *Pool) invoke(msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	if p.handler == nil {
		return errors.New("no job handler")
	}
	return p.handler(p.ctx, msg)
}

func withErr(fields map[string]any, err error) map[string]any {
	out := maps.Clone(fields)
	out["error"] = err
	return out
}

var _ queue.Client = (*Pool)(nil)
