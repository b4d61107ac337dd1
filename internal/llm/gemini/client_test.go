package gemini

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type fakeModels struct {
	resp  *genai.GenerateContentResponse
	err   error
	model string
	cfg   *genai.GenerateContentConfig
}

func (f *fakeModels) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.cfg = config
	return f.resp, f.err
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(text, genai.RoleModel),
		}},
	}
}

func TestCompleteRequestsJSON(t *testing.T) {
	fake := &fakeModels{resp: textResponse(`{"1":"C"}`)}
	client := &Client{models: fake, model: "gemini-2.0-flash"}

	out, err := client.Complete(context.Background(), "answer")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"1":"C"}` {
		t.Fatalf("unexpected output %q", out)
	}
	if fake.cfg == nil || fake.cfg.ResponseMIMEType != "application/json" {
		t.Fatalf("expected JSON response mime type")
	}
	if fake.model != "gemini-2.0-flash" {
		t.Fatalf("unexpected model %q", fake.model)
	}
}

func TestCompleteWrapsErrors(t *testing.T) {
	client := &Client{models: &fakeModels{err: errors.New("quota")}, model: "m"}
	if _, err := client.Complete(context.Background(), "x"); err == nil {
		t.Fatalf("expected error")
	}
	client = &Client{models: &fakeModels{resp: textResponse("  ")}, model: "m"}
	if _, err := client.Complete(context.Background(), "x"); err == nil {
		t.Fatalf("expected empty content error")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(context.Background(), "", ""); err == nil {
		t.Fatalf("expected error without api key")
	}
}
