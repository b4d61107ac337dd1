package formfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autosurvey-backend/internal/roster"
	"autosurvey-backend/internal/shared/metrics"
	"autosurvey-backend/internal/shared/telemetry"
	"autosurvey-backend/internal/submissions"
)

// ErrNotConfirmed means every attempt submitted without a confirmation.
var ErrNotConfirmed = errors.New("submission not confirmed")

// Result is what Runner.Run did for one participant.
type Result struct {
	Skipped     bool
	SubmittedAt *time.Time // first successful submission, when Skipped
	Outcome     Outcome
}

// Runner gates a fill on the submission log and records its outcome.
type Runner struct {
	Gate   *submissions.Gate
	Driver *Driver
}

// NewRunner returns a Runner.
func NewRunner(gate *submissions.Gate, driver *Driver) *Runner {
	return &Runner{Gate: gate, Driver: driver}
}

// Run skips participants that already submitted url, otherwise fills the
// form and appends the outcome to the log, successful or not.
func (r *Runner) Run(ctx context.Context, url string, p roster.Participant, filler FormFiller) (Result, error) {
	if done, at := r.Gate.IsAlreadySubmitted(ctx, url, p.Name, p.Email); done {
		metrics.IncSubmissionSkipped()
		fields := map[string]any{"url": url, "name": p.Name, "email": p.Email}
		if at != nil {
			fields["submitted_at"] = at.Format(time.RFC3339)
		}
		telemetry.Info("formfill.already_submitted", fields)
		return Result{Skipped: true, SubmittedAt: at}, nil
	}

	metrics.IncSubmissionAttempted()
	start := time.Now()
	out, fillErr := r.Driver.Fill(ctx, url, p, filler)
	metrics.ObserveFillDurationMs(float64(time.Since(start).Milliseconds()))

	// The outcome is recorded even when ctx was cancelled mid-fill.
	recordErr := r.Gate.RecordSubmission(context.WithoutCancel(ctx), url, p.Name, p.Email, out.Confirmed, out.Score)
	if recordErr != nil {
		telemetry.Error("formfill.record_failed", map[string]any{"url": url, "email": p.Email, "error": recordErr})
	}

	if out.Confirmed {
		metrics.IncSubmissionSucceeded()
	} else {
		metrics.IncSubmissionFailed()
		if fillErr == nil {
			fillErr = ErrNotConfirmed
		}
	}
	res := Result{Outcome: out}
	if fillErr != nil {
		return res, errors.Join(fmt.Errorf("fill %s: %w", p.Email, fillErr), recordErr)
	}
	return res, recordErr
}
