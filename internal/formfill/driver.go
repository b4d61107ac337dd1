// Package formfill drives one participant through a survey form.
package formfill

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"autosurvey-backend/internal/browser"
	"autosurvey-backend/internal/roster"
	"autosurvey-backend/internal/shared/telemetry"
)

// State is a step of a fill attempt.
type State string

const (
	StateStart             State = "start"
	StateNavigate          State = "navigate_page"
	StateFillBasic         State = "fill_basic_fields"
	StateFillAnswers       State = "fill_quiz_answers"
	StateCheckAgreement    State = "check_agreement"
	StateSubmit            State = "submit"
	StateAwaitConfirmation State = "await_confirmation"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

var ErrSubmitNotFound = errors.New("submit button not found")

// AttemptError is a failed attempt, tagged with the state it failed in.
type AttemptError struct {
	State State
	Err   error
}

func (e *AttemptError) Error() string { return fmt.Sprintf("%s: %v", e.State, e.Err) }

func (e *AttemptError) Unwrap() error { return e.Err }

// Outcome is the result of Fill. Confirmed is the only success signal.
type Outcome struct {
	Confirmed bool
	Score     *int
	Attempts  int
}

// Driver fills forms in a fresh browser page per attempt.
type Driver struct {
	Browser   browser.Browser
	Selectors Selectors
	Timing    Timing

	// Sleep and RandDuration are replaced in tests.
	Sleep        func(ctx context.Context, d time.Duration) error
	RandDuration func(lo, hi time.Duration) time.Duration
}

// NewDriver returns a Driver with the SurveyCake selectors.
func NewDriver(b browser.Browser, timing Timing) *Driver {
	return &Driver{
		Browser:      b,
		Selectors:    DefaultSelectors(),
		Timing:       timing,
		Sleep:        Sleep,
		RandDuration: RandDuration,
	}
}

// Fill runs up to MaxAttempts attempts. Errors are followed by the retry
// backoff; an unconfirmed submission is retried straight away. The returned
// error is the last attempt error, nil when the last attempt merely went
// unconfirmed.
func (d *Driver) Fill(ctx context.Context, url string, p roster.Participant, filler FormFiller) (Outcome, error) {
	maxAttempts := d.Timing.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fields := map[string]any{"url": url, "name": p.Name, "email": p.Email, "attempt": attempt, "kind": filler.Kind()}
		telemetry.Info("formfill.attempt_started", fields)

		out, err := d.attempt(ctx, url, p, filler)
		out.Attempts = attempt
		if err == nil && out.Confirmed {
			telemetry.Info("formfill.confirmed", fields)
			return out, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{Attempts: attempt}, ctxErr
		}
		lastErr = err
		if err != nil {
			fields["error"] = err
			telemetry.Warn("formfill.attempt_failed", fields)
			if attempt < maxAttempts {
				if err := d.sleep(ctx, d.Timing.RetryBackoff); err != nil {
					return Outcome{Attempts: attempt}, err
				}
			}
			continue
		}
		telemetry.Warn("formfill.unconfirmed", fields)
	}
	telemetry.Error("formfill.exhausted", map[string]any{"url": url, "name": p.Name, "email": p.Email, "attempts": maxAttempts})
	return Outcome{Attempts: maxAttempts}, lastErr
}

func (d *Driver) attempt(ctx context.Context, url string, p roster.Participant, filler FormFiller) (Outcome, error) {
	state := StateStart
	fail := func(err error) (Outcome, error) {
		telemetry.Debug("formfill.state", map[string]any{"state": string(StateFailed), "from": string(state)})
		return Outcome{}, &AttemptError{State: state, Err: err}
	}
	enter := func(s State) {
		state = s
		telemetry.Debug("formfill.state", map[string]any{"state": string(s), "email": p.Email})
	}

	page, err := d.Browser.NewPage(ctx)
	if err != nil {
		return fail(err)
	}
	defer page.Close()

	enter(StateNavigate)
	if err := page.Navigate(ctx, url); err != nil {
		return fail(err)
	}
	if err := d.sleep(ctx, d.Timing.Settle); err != nil {
		return fail(err)
	}

	enter(StateFillBasic)
	if err := d.fillBasic(ctx, page, p); err != nil {
		return fail(err)
	}

	enter(StateFillAnswers)
	if err := filler.FillAnswers(ctx, page, d.Selectors); err != nil {
		return fail(err)
	}

	enter(StateCheckAgreement)
	if err := page.Click(ctx, d.Selectors.Consent, 0, d.Timing.ElementTimeout); err != nil {
		return fail(err)
	}

	enter(StateSubmit)
	delay := d.randDuration(d.Timing.SubmitDelayMin, d.Timing.SubmitDelayMax)
	telemetry.Info("formfill.submit_delay", map[string]any{"email": p.Email, "delay_ms": delay.Milliseconds()})
	if err := d.sleep(ctx, delay); err != nil {
		return fail(err)
	}
	if err := d.submit(ctx, page); err != nil {
		return fail(err)
	}

	enter(StateAwaitConfirmation)
	if !d.confirm(ctx, page) {
		if err := ctx.Err(); err != nil {
			return fail(err)
		}
		return Outcome{}, nil
	}
	if err := d.sleep(ctx, d.Timing.PostConfirm); err != nil {
		return fail(err)
	}
	score := filler.ReadScore(ctx, page)

	enter(StateDone)
	return Outcome{Confirmed: true, Score: score}, nil
}

func (d *Driver) fillBasic(ctx context.Context, page browser.Page, p roster.Participant) error {
	sel, timeout := d.Selectors, d.Timing.ElementTimeout
	if err := page.Click(ctx, sel.CompanyOther, 0, timeout); err != nil {
		return fmt.Errorf("company option: %w", err)
	}
	if err := page.Fill(ctx, sel.TextInput, 0, p.CompanyName, timeout); err != nil {
		return fmt.Errorf("company name: %w", err)
	}
	if err := page.Fill(ctx, sel.TextInput, 1, p.Name, timeout); err != nil {
		return fmt.Errorf("name: %w", err)
	}
	if err := page.Fill(ctx, sel.Email, 0, p.Email, timeout); err != nil {
		return fmt.Errorf("email: %w", err)
	}
	return nil
}

func (d *Driver) submit(ctx context.Context, page browser.Page) error {
	sel, timeout := d.Selectors, d.Timing.ElementTimeout
	if sel.SubmitText != "" {
		if err := page.ClickText(ctx, sel.SubmitButton, sel.SubmitText, timeout); err == nil {
			return nil
		}
	}
	for _, candidate := range sel.SubmitCandidates {
		if n, err := page.Count(ctx, candidate); err != nil || n == 0 {
			continue
		}
		if err := page.Click(ctx, candidate, 0, timeout); err == nil {
			return nil
		}
	}
	return ErrSubmitNotFound
}

// confirm clicks through the confirmation popup. False means no popup button
// was found, which leaves the submission unconfirmed.
func (d *Driver) confirm(ctx context.Context, page browser.Page) bool {
	sel := d.Selectors
	for _, text := range sel.ConfirmTexts {
		if ctx.Err() != nil {
			return false
		}
		if err := page.ClickText(ctx, sel.ConfirmButton, text, d.Timing.ConfirmWait); err == nil {
			telemetry.Debug("formfill.confirm_clicked", map[string]any{"text": text})
			return true
		}
	}
	for _, dialog := range sel.DialogButtons {
		n, err := page.Count(ctx, dialog)
		if err != nil || n < 2 {
			continue
		}
		if err := page.Click(ctx, dialog, n-1, d.Timing.ConfirmWait); err == nil {
			telemetry.Debug("formfill.confirm_clicked", map[string]any{"selector": dialog})
			return true
		}
	}
	return false
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	return Sleep(ctx, dur)
}

func (d *Driver) randDuration(lo, hi time.Duration) time.Duration {
	if d.RandDuration != nil {
		return d.RandDuration(lo, hi)
	}
	return RandDuration(lo, hi)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RandDuration returns a uniform duration in [lo, hi].
func RandDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int64N(int64(hi-lo)+1))
}
