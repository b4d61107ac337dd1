package formfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"autosurvey-backend/internal/browser"
	"autosurvey-backend/internal/quiz"
	"autosurvey-backend/internal/shared/telemetry"
)

// FormFiller is the task-specific part of a fill. The driver handles the
// shared fields, consent, submit and confirmation around it.
type FormFiller interface {
	Kind() string
	// FillAnswers runs after the basic fields and before consent.
	FillAnswers(ctx context.Context, page browser.Page, sel Selectors) error
	// ReadScore runs after a confirmed submission. A nil score is not an error.
	ReadScore(ctx context.Context, page browser.Page) *int
}

// BasicFormFiller fills attendance forms: nothing beyond the shared fields.
type BasicFormFiller struct{}

func (BasicFormFiller) Kind() string { return "attendance" }

func (BasicFormFiller) FillAnswers(context.Context, browser.Page, Selectors) error { return nil }

func (BasicFormFiller) ReadScore(context.Context, browser.Page) *int { return nil }

// QuizFormFiller clicks the cached answers and reads the score afterwards.
type QuizFormFiller struct {
	Analysis     quiz.Analysis
	ClickTimeout time.Duration
	ScoreWait    time.Duration // per score phrase
}

// NewQuizFormFiller returns a filler for analysis with default waits.
func NewQuizFormFiller(analysis quiz.Analysis, scoreWait time.Duration) *QuizFormFiller {
	if scoreWait <= 0 {
		scoreWait = 10 * time.Second
	}
	return &QuizFormFiller{Analysis: analysis, ClickTimeout: 2 * time.Second, ScoreWait: scoreWait}
}

func (f *QuizFormFiller) Kind() string { return "quiz" }

// FillAnswers clicks each answer. An option that cannot be located
// unambiguously is logged and skipped.
func (f *QuizFormFiller) FillAnswers(ctx context.Context, page browser.Page, sel Selectors) error {
	for _, choice := range f.Analysis.Choices() {
		how, err := f.click(ctx, page, sel, choice)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			telemetry.Warn("formfill.answer_not_clicked", map[string]any{
				"question_id": choice.QuestionID,
				"letter":      choice.Letter,
				"option":      choice.OptionText,
				"error":       err,
			})
			continue
		}
		telemetry.Debug("formfill.answer_clicked", map[string]any{
			"question_id": choice.QuestionID,
			"letter":      choice.Letter,
			"via":         how,
		})
	}
	return nil
}

var errOptionNotFound = errors.New("option not found on page")

// click locates the option by data-qa, then by unique text, then by page
// position. Duplicate texts are only clicked when the page-wide occurrence
// is known.
func (f *QuizFormFiller) click(ctx context.Context, page browser.Page, sel Selectors, c quiz.Choice) (string, error) {
	qa := fmt.Sprintf(`[data-qa="option-%s"]`, cssString(c.OptionText))
	if n, err := page.Count(ctx, qa); err == nil && n > 0 {
		nth := -1
		switch {
		case c.Occurrence > 0 && c.Occurrence <= n:
			nth = c.Occurrence - 1
		case c.Occurrence == 0 && n == 1:
			nth = 0
		}
		if nth >= 0 {
			if err := page.Click(ctx, qa, nth, f.ClickTimeout); err == nil {
				return "data-qa", nil
			}
		}
	}

	if n, err := page.CountText(ctx, sel.OptionText, c.OptionText); err == nil && n == 1 {
		if err := page.ClickText(ctx, sel.OptionText, c.OptionText, f.ClickTimeout); err == nil {
			return "text", nil
		}
	}

	if sel.OptionXPath != "" && c.Position > 0 {
		xpath := fmt.Sprintf(sel.OptionXPath, c.Position+1, c.OptionIndex)
		if err := page.ClickXPath(ctx, xpath, f.ClickTimeout); err == nil {
			return "xpath", nil
		}
	}
	return "", errOptionNotFound
}

// ReadScore waits for a score phrase, then parses the page text.
func (f *QuizFormFiller) ReadScore(ctx context.Context, page browser.Page) *int {
	found := false
	for _, phrase := range quiz.ScoreTexts {
		if page.WaitText(ctx, phrase, f.ScoreWait) {
			found = true
			break
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	if !found {
		telemetry.Warn("formfill.score_text_missing", nil)
	}
	text, err := page.BodyText(ctx)
	if err != nil {
		telemetry.Warn("formfill.score_read_failed", map[string]any{"error": err})
		return nil
	}
	score, ok := quiz.ExtractScore(text)
	if !ok {
		return nil
	}
	return &score
}
