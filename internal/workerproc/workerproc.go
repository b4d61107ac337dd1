// Package workerproc turns a queue payload into a batch run.
package workerproc

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"autosurvey-backend/internal/batch"
	"autosurvey-backend/internal/queue"
	"autosurvey-backend/internal/roster"
	"autosurvey-backend/internal/shared/telemetry"
)

// MessageMeta captures details useful for logging and diagnostics.
type MessageMeta struct {
	BodyLen int
	BodySHA string
}

// ComputeMeta returns the body length and SHA-256 hash.
func ComputeMeta(body string) MessageMeta {
	if body == "" {
		return MessageMeta{}
	}
	sum := sha256.Sum256([]byte(body))
	return MessageMeta{BodyLen: len(body), BodySHA: hex.EncodeToString(sum[:])}
}

// ErrEmptyBody indicates an empty queue payload.
type ErrEmptyBody struct {
	Meta MessageMeta
}

func (e ErrEmptyBody) Error() string { return "empty message body" }

// ErrDecode indicates a JSON decode failure.
type ErrDecode struct {
	Meta MessageMeta
	Err  error
}

func (e ErrDecode) Error() string {
	if e.Err == nil {
		return "decode message"
	}
	return "decode message: " + e.Err.Error()
}

func (e ErrDecode) Unwrap() error { return e.Err }

// ErrInvalid indicates a decoded message that can never be run: unknown task,
// missing url, or incomplete personal info.
type ErrInvalid struct {
	Meta      MessageMeta
	JobID     string
	RequestID string
	Err       error
}

func (e ErrInvalid) Error() string { return "invalid message: " + e.Err.Error() }

func (e ErrInvalid) Unwrap() error { return e.Err }

// ErrProcess indicates processing failed after successful parsing.
type ErrProcess struct {
	JobID     string
	RequestID string
	Err       error
}

func (e ErrProcess) Error() string {
	if e.Err == nil {
		return "process job"
	}
	return "process job: " + e.Err.Error()
}

func (e ErrProcess) Unwrap() error { return e.Err }

// Unrecoverable reports whether redelivering the payload can never succeed.
func Unrecoverable(err error) bool {
	var (
		empty   ErrEmptyBody
		decode  ErrDecode
		invalid ErrInvalid
	)
	return errors.As(err, &empty) || errors.As(err, &decode) || errors.As(err, &invalid)
}

// ParseMessage validates and decodes the queue payload.
func ParseMessage(body string) (queue.Message, MessageMeta, error) {
	meta := ComputeMeta(body)
	if strings.TrimSpace(body) == "" {
		return queue.Message{}, meta, ErrEmptyBody{Meta: meta}
	}

	msg, err := queue.DecodeMessage([]byte(body))
	if err != nil {
		return queue.Message{}, meta, ErrDecode{Meta: meta, Err: err}
	}
	if err := msg.Validate(); err != nil {
		return msg, meta, ErrInvalid{Meta: meta, JobID: msg.JobID, RequestID: msg.RequestID, Err: err}
	}
	return msg, meta, nil
}

// Automation is the part of the batch orchestrator a job needs.
type Automation interface {
	RunAttendance(ctx context.Context, url string, participants []roster.Participant) (batch.Report, error)
	RunQuiz(ctx context.Context, url string, participants []roster.Participant) (batch.Report, error)
	RunPersonal(ctx context.Context, task, url string, p roster.Participant) (batch.Report, error)
}

// RosterSource yields the participants of a batch run.
type RosterSource interface {
	Participants(ctx context.Context) ([]roster.Participant, error)
}

// Processor runs decoded jobs.
type Processor struct {
	Automation Automation
	Roster     RosterSource
}

// Process runs one validated message.
func (p *Processor) Process(ctx context.Context, msg queue.Message) (batch.Report, error) {
	if p == nil || p.Automation == nil {
		return batch.Report{}, errors.New("automation not configured")
	}
	kind := batch.TaskAttendance
	if msg.Task.Quiz() {
		kind = batch.TaskQuiz
	}

	if msg.Task.Personal() {
		return p.Automation.RunPersonal(ctx, kind, msg.URL, *msg.Personal)
	}

	if p.Roster == nil {
		return batch.Report{}, errors.New("roster not configured")
	}
	participants, err := p.Roster.Participants(ctx)
	if err != nil {
		return batch.Report{}, fmt.Errorf("load roster: %w", err)
	}
	if kind == batch.TaskQuiz {
		return p.Automation.RunQuiz(ctx, msg.URL, participants)
	}
	return p.Automation.RunAttendance(ctx, msg.URL, participants)
}

type parsedMessageKey struct{}

// WithParsedMessage stores a decoded message in the context for reuse.
func WithParsedMessage(ctx context.Context, msg queue.Message) context.Context {
	return context.WithValue(ctx, parsedMessageKey{}, msg)
}

func parsedMessageFromContext(ctx context.Context) (queue.Message, bool) {
	if ctx == nil {
		return queue.Message{}, false
	}
	msg, ok := ctx.Value(parsedMessageKey{}).(queue.Message)
	return msg, ok
}

// HandleMessage parses, validates, and processes a message payload.
func HandleMessage(ctx context.Context, proc *Processor, body string) error {
	if proc == nil {
		return errors.New("automation not configured")
	}

	msg, ok := parsedMessageFromContext(ctx)
	if !ok {
		var err error
		msg, _, err = ParseMessage(body)
		if err != nil {
			return err
		}
	}

	report, err := proc.Process(ctx, msg)
	if err != nil {
		return ErrProcess{JobID: msg.JobID, RequestID: msg.RequestID, Err: err}
	}
	telemetry.Info("worker.job.processed", map[string]any{
		"job_id":     msg.JobID,
		"request_id": msg.RequestID,
		"task":       string(msg.Task),
		"submitted":  report.Submitted,
		"skipped":    report.Skipped,
		"failed":     report.Failed,
	})
	return nil
}
