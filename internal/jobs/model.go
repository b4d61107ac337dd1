// Package jobs runs queued automation work on a bounded set of workers and
// keeps a status record per job.
package jobs

import (
	"time"

	"autosurvey-backend/internal/queue"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Job is the status record of one queued message.
type Job struct {
	ID         string     `json:"id"`
	Task       queue.Task `json:"task"`
	URL        string     `json:"url"`
	RequestID  string     `json:"requestId,omitempty"`
	Status     Status     `json:"status"`
	Error      string     `json:"error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// FromMessage builds the queued record for msg.
func FromMessage(msg queue.Message, now time.Time) Job {
	return Job{
		ID:         msg.JobID,
		Task:       msg.Task,
		URL:        msg.URL,
		RequestID:  msg.RequestID,
		Status:     StatusQueued,
		EnqueuedAt: now.UTC(),
	}
}
