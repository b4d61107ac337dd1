// Package batch runs a form fill for every participant of a roster.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"autosurvey-backend/internal/formfill"
	"autosurvey-backend/internal/quiz"
	"autosurvey-backend/internal/roster"
	"autosurvey-backend/internal/shared/telemetry"
	"autosurvey-backend/internal/submissions"
)

const (
	TaskAttendance = "attendance"
	TaskQuiz       = "quiz"
)

var (
	ErrUnknownTask = errors.New("unknown task")
	ErrEmptyRoster = errors.New("roster is empty")
)

// QuizResolver supplies the answers for a quiz URL.
type QuizResolver interface {
	Resolve(ctx context.Context, url string) (quiz.Analysis, error)
}

// Report counts what a run did.
type Report struct {
	Task      string               `json:"task"`
	URL       string               `json:"url"`
	Total     int                  `json:"total"`
	Submitted int                  `json:"submitted"`
	Skipped   int                  `json:"skipped"`
	Failed    int                  `json:"failed"`
	Summary   *submissions.Summary `json:"summary,omitempty"`
}

func (r *Report) add(res formfill.Result, err error) {
	switch {
	case res.Skipped:
		r.Skipped++
	case err == nil && res.Outcome.Confirmed:
		r.Submitted++
	default:
		r.Failed++
	}
}

// Orchestrator fans fills out over a roster.
type Orchestrator struct {
	Runner        *formfill.Runner
	Resolver      QuizResolver
	CompanyName   string
	Concurrency   int
	UserDelayMin  time.Duration
	UserDelayMax  time.Duration
	ScoreWait     time.Duration
	PassThreshold int

	Sleep        func(ctx context.Context, d time.Duration) error
	RandDuration func(lo, hi time.Duration) time.Duration
}

// RunAttendance fills url for every participant in random order, with at most
// Concurrency fills in flight. Per-participant failures are logged and do not
// stop the run.
func (o *Orchestrator) RunAttendance(ctx context.Context, url string, participants []roster.Participant) (Report, error) {
	report := Report{Task: TaskAttendance, URL: url, Total: len(participants)}
	if len(participants) == 0 {
		return report, ErrEmptyRoster
	}
	order := roster.WithCompany(roster.Shuffle(participants), o.CompanyName)
	telemetry.Info("batch.started", map[string]any{"task": TaskAttendance, "url": url, "participants": len(order)})

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.concurrency())
	for _, p := range order {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := o.Runner.Run(ctx, url, p, formfill.BasicFormFiller{})
			if err != nil {
				logUserFailure(url, p, err)
			}
			mu.Lock()
			report.add(res, err)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	logReport(report)
	return report, ctx.Err()
}

// RunQuiz resolves the quiz once, then fills it for each participant in
// random order, one at a time with a random pause between participants.
// A resolution failure aborts the run before any fill.
func (o *Orchestrator) RunQuiz(ctx context.Context, url string, participants []roster.Participant) (Report, error) {
	report := Report{Task: TaskQuiz, URL: url, Total: len(participants)}
	if len(participants) == 0 {
		return report, ErrEmptyRoster
	}
	analysis, err := o.Resolver.Resolve(ctx, url)
	if err != nil {
		return report, fmt.Errorf("resolve quiz: %w", err)
	}
	filler := formfill.NewQuizFormFiller(analysis, o.ScoreWait)

	order := roster.WithCompany(roster.Shuffle(participants), o.CompanyName)
	telemetry.Info("batch.started", map[string]any{"task": TaskQuiz, "url": url, "participants": len(order)})
	for i, p := range order {
		if i > 0 {
			if err := o.sleep(ctx, o.randDuration(o.UserDelayMin, o.UserDelayMax)); err != nil {
				break
			}
		}
		res, err := o.Runner.Run(ctx, url, p, filler)
		if err != nil {
			logUserFailure(url, p, err)
		}
		report.add(res, err)
	}

	summary := o.Runner.Gate.Summarize(context.WithoutCancel(ctx), url, o.PassThreshold)
	report.Summary = &summary
	logReport(report)
	return report, ctx.Err()
}

// RunPersonal fills url once for p. Unlike batch runs the participant's own
// failure is returned.
func (o *Orchestrator) RunPersonal(ctx context.Context, task, url string, p roster.Participant) (Report, error) {
	report := Report{Task: task, URL: url, Total: 1}
	if err := p.Validate(); err != nil {
		return report, err
	}

	var filler formfill.FormFiller
	switch task {
	case TaskAttendance:
		filler = formfill.BasicFormFiller{}
	case TaskQuiz:
		analysis, err := o.Resolver.Resolve(ctx, url)
		if err != nil {
			return report, fmt.Errorf("resolve quiz: %w", err)
		}
		filler = formfill.NewQuizFormFiller(analysis, o.ScoreWait)
	default:
		return report, fmt.Errorf("%w: %q", ErrUnknownTask, task)
	}

	res, err := o.Runner.Run(ctx, url, p, filler)
	report.add(res, err)
	if task == TaskQuiz {
		s := submissions.Summarize(scoreOnly(res), o.PassThreshold)
		s.URL = url
		report.Summary = &s
	}
	logReport(report)
	return report, err
}

func scoreOnly(res formfill.Result) []submissions.Record {
	if res.Skipped {
		return nil
	}
	return []submissions.Record{{Success: res.Outcome.Confirmed, Score: res.Outcome.Score}}
}

func (o *Orchestrator) concurrency() int {
	if o.Concurrency < 1 {
		return 1
	}
	return o.Concurrency
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return formfill.Sleep(ctx, d)
}

func (o *Orchestrator) randDuration(lo, hi time.Duration) time.Duration {
	if o.RandDuration != nil {
		return o.RandDuration(lo, hi)
	}
	return formfill.RandDuration(lo, hi)
}

func logUserFailure(url string, p roster.Participant, err error) {
	telemetry.Error("batch.user_failed", map[string]any{
		"url":   url,
		"name":  p.Name,
		"email": p.Email,
		"error": err,
	})
}

func logReport(r Report) {
	fields := map[string]any{
		"task":      r.Task,
		"url":       r.URL,
		"total":     r.Total,
		"submitted": r.Submitted,
		"skipped":   r.Skipped,
		"failed":    r.Failed,
	}
	if s := r.Summary; s != nil && s.Scored > 0 {
		fields["scored"] = s.Scored
		fields["mean"] = s.Mean
		fields["min"] = s.Min
		fields["max"] = s.Max
		fields["pass_rate"] = s.PassRate
		fields["threshold"] = s.Threshold
	}
	telemetry.Info("batch.finished", fields)
}
