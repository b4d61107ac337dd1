package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"autosurvey-backend/internal/browser"
	"autosurvey-backend/internal/cache"
	"autosurvey-backend/internal/llm"
	"autosurvey-backend/internal/shared/metrics"
	"autosurvey-backend/internal/shared/telemetry"
)

const (
	PhaseRender  = "render"
	PhaseExtract = "extract"
	PhaseAnswer  = "answer"
)

var renderPrompt = llm.RenderPrompt

// Resolver turns a quiz URL into cached answers. Analyses are reused until
// TTL elapses; a zero TTL never expires them.
type Resolver struct {
	Cache     *cache.Store
	LLM       llm.Client
	Browser   browser.Browser
	Selectors Selectors
	TTL       time.Duration
	Settle    time.Duration
	Now       func() time.Time
}

// NewResolver returns a Resolver with the default selectors.
func NewResolver(store *cache.Store, client llm.Client, b browser.Browser) *Resolver {
	return &Resolver{
		Cache:     store,
		LLM:       client,
		Browser:   b,
		Selectors: DefaultSelectors(),
		Settle:    2500 * time.Millisecond,
		Now:       time.Now,
	}
}

// Resolve returns the quiz analysis for url, rendering and asking the LLM
// only when no fresh analysis is cached.
func (r *Resolver) Resolve(ctx context.Context, url string) (Analysis, error) {
	if cached, ok := r.Cached(ctx, url); ok && r.fresh(cached) {
		metrics.IncQuizCacheHit()
		telemetry.Info("quiz.cache_hit", map[string]any{"url": url, "questions": len(cached.Questions)})
		return cached, nil
	}

	analysis, err := r.resolve(ctx, url)
	if err != nil {
		metrics.IncQuizResolveFailed()
		telemetry.Error("quiz.resolve_failed", map[string]any{"url": url, "error": err})
		return Analysis{}, err
	}
	metrics.IncQuizResolved()
	return analysis, nil
}

func (r *Resolver) resolve(ctx context.Context, url string) (Analysis, error) {
	page, text, err := r.render(ctx, url)
	if err != nil {
		return Analysis{}, &ResolutionError{URL: url, Phase: PhaseRender, Err: err}
	}

	blob, questions, err := ExtractQuestions(page, r.Selectors)
	if err != nil {
		return Analysis{}, &ResolutionError{URL: url, Phase: PhaseExtract, Err: err}
	}
	if len(questions) == 0 {
		telemetry.Info("quiz.dom_extract_empty", map[string]any{"url": url})
		questions, err = r.ExtractWithLLM(ctx, text)
		if err != nil {
			return Analysis{}, withURL(err, url)
		}
		if len(questions) == 0 {
			return Analysis{}, &ResolutionError{URL: url, Phase: PhaseExtract, Err: ErrNoQuestions}
		}
		blob = FormatQuestions(questions)
	}

	answers, err := r.ResolveAnswers(ctx, blob)
	if err != nil {
		return Analysis{}, withURL(err, url)
	}

	analysis := Analysis{
		URL:       url,
		Timestamp: r.now().Format(time.RFC3339),
		Questions: questions,
		Answers:   answers,
	}
	if len(analysis.Choices()) < len(questions) {
		telemetry.Warn("quiz.answers_incomplete", map[string]any{
			"url":       url,
			"questions": len(questions),
			"answers":   len(answers),
		})
	}
	if err := r.store(ctx, analysis); err != nil {
		// The answers are still usable for this run.
		telemetry.Error("quiz.cache_save_failed", map[string]any{"url": url, "error": err})
	}
	telemetry.Info("quiz.resolved", map[string]any{"url": url, "questions": len(questions)})
	return analysis, nil
}

// Cached returns the stored analysis for url regardless of age.
func (r *Resolver) Cached(ctx context.Context, url string) (Analysis, bool) {
	all := cache.LoadAs[Analysis](ctx, r.Cache, cache.QuizAnalysis)
	a, ok := all[cache.ComputeKey(url)]
	if !ok || len(a.Answers) == 0 {
		return Analysis{}, false
	}
	return a, true
}

// ResolveAnswers asks the LLM to answer the formatted questions.
func (r *Resolver) ResolveAnswers(ctx context.Context, blob string) (map[string]string, error) {
	prompt, err := renderPrompt(llm.PromptAnswerQuestions, map[string]string{"QUESTIONS": blob})
	if err != nil {
		return nil, &ResolutionError{Phase: PhaseAnswer, Err: err}
	}
	var answers map[string]string
	err = r.completeJSON(ctx, PhaseAnswer, prompt, func(raw string) error {
		parsed, err := parseAnswers(raw)
		if err != nil {
			return err
		}
		answers = parsed
		return nil
	})
	return answers, err
}

// ExtractWithLLM asks the LLM to find quiz questions in plain page text.
func (r *Resolver) ExtractWithLLM(ctx context.Context, bodyText string) ([]Question, error) {
	text := collapse(bodyText)
	if text == "" {
		return nil, &ResolutionError{Phase: PhaseExtract, Err: ErrNoQuestions}
	}
	prompt, err := renderPrompt(llm.PromptExtractQuestions, map[string]string{"PAGE_TEXT": text})
	if err != nil {
		return nil, &ResolutionError{Phase: PhaseExtract, Err: err}
	}
	var questions []Question
	err = r.completeJSON(ctx, PhaseExtract, prompt, func(raw string) error {
		parsed, err := parseQuestions(raw)
		if err != nil {
			return err
		}
		questions = parsed
		return nil
	})
	return questions, err
}

// completeJSON runs prompt and hands the reply to parse. A reply that fails to
// parse gets one rewrite pass through the fix-JSON prompt.
func (r *Resolver) completeJSON(ctx context.Context, phase, prompt string, parse func(string) error) error {
	if r.LLM == nil {
		return &ResolutionError{Phase: phase, Err: llm.ErrNotImplemented}
	}
	raw, err := r.LLM.Complete(ctx, prompt)
	if err != nil {
		return &ResolutionError{Phase: phase, Err: err}
	}
	perr := parse(raw)
	if perr == nil {
		return nil
	}
	telemetry.Warn("quiz.llm_json_invalid", map[string]any{"phase": phase, "error": perr})

	fixPrompt, err := renderPrompt(llm.PromptFixJSON, map[string]string{"RAW": raw})
	if err != nil {
		return &ResolutionError{Phase: phase, Raw: raw, Err: errors.Join(perr, err)}
	}
	fixed, err := r.LLM.Complete(ctx, fixPrompt)
	if err != nil {
		return &ResolutionError{Phase: phase, Raw: raw, Err: err}
	}
	if err := parse(fixed); err != nil {
		return &ResolutionError{Phase: phase, Raw: fixed, Err: fmt.Errorf("invalid JSON after rewrite: %w", err)}
	}
	return nil
}

func (r *Resolver) render(ctx context.Context, url string) (string, string, error) {
	if r.Browser == nil {
		return "", "", errors.New("no browser configured")
	}
	page, err := r.Browser.NewPage(ctx)
	if err != nil {
		return "", "", err
	}
	defer page.Close()

	if err := page.Navigate(ctx, url); err != nil {
		return "", "", err
	}
	if r.Settle > 0 {
		select {
		case <-ctx.Done():
			return "", "", ctx.Err()
		case <-time.After(r.Settle):
		}
	}
	html, err := page.HTML(ctx)
	if err != nil {
		return "", "", err
	}
	text, err := page.BodyText(ctx)
	if err != nil {
		return "", "", err
	}
	return html, text, nil
}

func (r *Resolver) store(ctx context.Context, a Analysis) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return r.Cache.Update(ctx, cache.QuizAnalysis, func(m map[cache.Key]json.RawMessage) error {
		m[cache.ComputeKey(a.URL)] = raw
		return nil
	})
}

func (r *Resolver) fresh(a Analysis) bool {
	if r.TTL <= 0 {
		return true
	}
	raw := strings.TrimSpace(a.Timestamp)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if ts, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return r.now().Sub(ts) < r.TTL
		}
	}
	return false
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func withURL(err error, url string) error {
	var re *ResolutionError
	if errors.As(err, &re) && re.URL == "" {
		re.URL = url
	}
	return err
}
