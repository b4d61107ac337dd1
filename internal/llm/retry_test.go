package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline", err: context.DeadlineExceeded, want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "5xx", err: errors.New("openai http status 503: overloaded"), want: true},
		{name: "rate limited", err: errors.New("openai http status 429: slow down"), want: true},
		{name: "bad request", err: errors.New("openai http status 400: bad"), want: false},
		{name: "reset", err: fmt.Errorf("post: %w", errors.New("connection reset by peer")), want: true},
		{name: "not implemented", err: ErrNotImplemented, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldRetry(tt.err); got != tt.want {
				t.Fatalf("ShouldRetry(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestWithRetryRetriesTransientOnce(t *testing.T) {
	calls := 0
	base := ClientFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("openai http status 502: bad gateway")
		}
		return `{"1":"A"}`, nil
	})
	client := retryingClient{base: base, delay: time.Millisecond}

	out, err := client.Complete(context.Background(), "q")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"1":"A"}` || calls != 2 {
		t.Fatalf("unexpected result out=%q calls=%d", out, calls)
	}
}

func TestWithRetrySkipsPermanentErrors(t *testing.T) {
	calls := 0
	base := ClientFunc(func(ctx context.Context, prompt string) (string, error) {
		calls++
		return "", errors.New("openai http status 401: invalid key")
	})
	if _, err := WithRetry(base).Complete(context.Background(), "q"); err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRenderPrompt(t *testing.T) {
	out, err := RenderPrompt(PromptAnswerQuestions, map[string]string{"QUESTIONS": "1. 問題\nA. 是"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if want := "1. 問題\nA. 是"; !strings.Contains(out, want) {
		t.Fatalf("rendered prompt missing questions: %s", out)
	}
	if strings.Contains(out, "{{QUESTIONS}}") {
		t.Fatalf("placeholder left unreplaced")
	}
	if _, err := RenderPrompt("nope", nil); !errors.Is(err, ErrPromptTemplate) {
		t.Fatalf("expected unknown prompt to be rejected, got %v", err)
	}
}

func TestRenderTemplateRejectsBrokenTemplates(t *testing.T) {
	tests := []struct {
		name     string
		template string
	}{
		{name: "empty", template: "  \n"},
		{name: "missing placeholder", template: "Answer these questions as JSON."},
	}
	for _, tt := range tests {
		if _, err := renderTemplate(tt.name, tt.template, map[string]string{"QUESTIONS": "1. q"}); !errors.Is(err, ErrPromptTemplate) {
			t.Fatalf("%s: expected ErrPromptTemplate, got %v", tt.name, err)
		}
	}
}
