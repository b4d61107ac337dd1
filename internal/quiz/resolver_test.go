package quiz

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autosurvey-backend/internal/browser/browsertest"
	"autosurvey-backend/internal/cache"
	"autosurvey-backend/internal/llm"
	localstore "autosurvey-backend/internal/shared/storage/object/local"
)

const quizURL = "https://www.surveycake.com/s/quiz"

var fixedNow = time.Date(2026, time.March, 3, 9, 30, 0, 0, time.UTC)

func newResolver(t *testing.T, client llm.Client, page *browsertest.Page) (*Resolver, *browsertest.Browser) {
	t.Helper()
	b := &browsertest.Browser{Factory: func(int) *browsertest.Page { return page }}
	r := NewResolver(cache.New(localstore.New(t.TempDir())), client, b)
	r.Settle = 0
	r.Now = func() time.Time { return fixedNow }
	return r, b
}

func quizPage() *browsertest.Page {
	p := browsertest.NewPage()
	p.HTMLContent = surveyCakeHTML
	return p
}

func TestResolveCachesAnalysis(t *testing.T) {
	var calls atomic.Int32
	client := llm.ClientFunc(func(ctx context.Context, prompt string) (string, error) {
		calls.Add(1)
		require.Contains(t, prompt, "1. Which protocol is connectionless?")
		return "```json\n{\"1\":\"b\",\"2\":\"C\"}\n```", nil
	})
	r, b := newResolver(t, client, quizPage())

	got, err := r.Resolve(context.Background(), quizURL)
	require.NoError(t, err)
	require.Equal(t, map[string]string{"1": "B", "2": "C"}, got.Answers)
	require.Len(t, got.Questions, 2)
	require.Equal(t, quizURL, got.URL)
	require.Equal(t, fixedNow.Format(time.RFC3339), got.Timestamp)

	again, err := r.Resolve(context.Background(), quizURL)
	require.NoError(t, err)
	require.Equal(t, got, again)
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, 1, b.Opened())
	require.True(t, b.Pages[0].Closed)
}

func TestResolveRewritesInvalidJSON(t *testing.T) {
	var calls atomic.Int32
	client := llm.ClientFunc(func(ctx context.Context, prompt string) (string, error) {
		if calls.Add(1) == 1 {
			return "Sure! 1 is B and 2 is A.", nil
		}
		require.Contains(t, prompt, "Sure! 1 is B and 2 is A.")
		return `{"1":"B","2":"A"}`, nil
	})
	r, _ := newResolver(t, client, quizPage())

	got, err := r.Resolve(context.Background(), quizURL)
	require.NoError(t, err)
	require.Equal(t, "A", got.Answers["2"])
	require.Equal(t, int32(2), calls.Load())
}

func TestResolveFailsAfterRewrite(t *testing.T) {
	client := llm.ClientFunc(func(ctx context.Context, prompt string) (string, error) {
		return "still not json", nil
	})
	r, _ := newResolver(t, client, quizPage())

	_, err := r.Resolve(context.Background(), quizURL)
	require.Error(t, err)
	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	require.Equal(t, PhaseAnswer, re.Phase)
	require.Equal(t, quizURL, re.URL)
	require.Equal(t, "still not json", re.Raw)

	_, cached := r.Cached(context.Background(), quizURL)
	require.False(t, cached)
}

func TestResolveFallsBackToLLMExtraction(t *testing.T) {
	page := browsertest.NewPage()
	page.HTMLContent = "<html><body><p>Quiz</p></body></html>"
	page.Body = "Quiz\n1. What is 2+2?\n(A) 3\n(B) 4"

	client := llm.ClientFunc(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "Page text:") {
			require.Contains(t, prompt, "Quiz 1. What is 2+2? (A) 3 (B) 4")
			return `{"questions":[{"id":1,"question":"What is 2+2?","options":[{"letter":"A","text":"3"},{"letter":"B","text":"4"}]}]}`, nil
		}
		return `{"1":"B"}`, nil
	})
	r, _ := newResolver(t, client, page)

	got, err := r.Resolve(context.Background(), quizURL)
	require.NoError(t, err)
	require.Len(t, got.Questions, 1)
	require.Equal(t, []Choice{{QuestionID: 1, Letter: "B", OptionText: "4", OptionIndex: 2}}, got.Choices())
}

func TestResolveNoQuestions(t *testing.T) {
	page := browsertest.NewPage()
	page.HTMLContent = "<html><body></body></html>"
	r, _ := newResolver(t, llm.PlaceholderClient{}, page)

	_, err := r.Resolve(context.Background(), quizURL)
	require.True(t, IsResolutionError(err))
	require.ErrorIs(t, err, ErrNoQuestions)
}

func TestResolveRefreshesExpiredAnalysis(t *testing.T) {
	var calls atomic.Int32
	client := llm.ClientFunc(func(ctx context.Context, prompt string) (string, error) {
		calls.Add(1)
		return `{"1":"A","2":"A"}`, nil
	})
	r, b := newResolver(t, client, quizPage())
	r.TTL = time.Hour

	stale := Analysis{
		URL:       quizURL,
		Timestamp: fixedNow.Add(-2 * time.Hour).Format(time.RFC3339),
		Questions: []Question{{ID: 1, Question: "old", Options: []Option{{Letter: "A", Text: "x"}, {Letter: "B", Text: "y"}}}},
		Answers:   map[string]string{"1": "B"},
	}
	raw, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, r.Cache.Save(context.Background(), cache.QuizAnalysis, map[cache.Key]json.RawMessage{
		cache.ComputeKey(quizURL): raw,
	}))

	got, err := r.Resolve(context.Background(), quizURL)
	require.NoError(t, err)
	require.Len(t, got.Questions, 2)
	require.Equal(t, 1, b.Opened())
	require.Equal(t, int32(1), calls.Load())
}

func TestResolveRenderFailure(t *testing.T) {
	page := quizPage()
	page.NavigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")
	r, _ := newResolver(t, llm.PlaceholderClient{}, page)

	_, err := r.Resolve(context.Background(), quizURL)
	var re *ResolutionError
	require.True(t, errors.As(err, &re))
	require.Equal(t, PhaseRender, re.Phase)
}

func TestResolveFailsOnBrokenPromptTemplate(t *testing.T) {
	prev := renderPrompt
	renderPrompt = func(name string, vars map[string]string) (string, error) {
		return "", llm.ErrPromptTemplate
	}
	t.Cleanup(func() { renderPrompt = prev })

	var calls atomic.Int32
	client := llm.ClientFunc(func(ctx context.Context, prompt string) (string, error) {
		calls.Add(1)
		return `{"1":"A"}`, nil
	})
	r, _ := newResolver(t, client, quizPage())

	_, err := r.Resolve(context.Background(), quizURL)
	require.ErrorIs(t, err, llm.ErrPromptTemplate)
	require.True(t, IsResolutionError(err))
	require.Zero(t, calls.Load())

	_, err = r.ExtractWithLLM(context.Background(), "1. 2 + 2 = ? A. 3 B. 4")
	require.ErrorIs(t, err, llm.ErrPromptTemplate)
	require.Zero(t, calls.Load())
}
