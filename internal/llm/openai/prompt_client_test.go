package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func withServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	server := httptest.NewServer(handler)
	oldURL := apiURL
	apiURL = server.URL
	t.Cleanup(func() {
		apiURL = oldURL
		server.Close()
	})
}

func TestCompleteSendsJSONFormatAndTemperature(t *testing.T) {
	var mu sync.Mutex
	var lastBody map[string]any
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		mu.Lock()
		lastBody = payload
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":" {\"1\":\"B\"} "}}],"usage":{"total_tokens":12}}`))
	})

	client, err := NewPromptClient("test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("NewPromptClient: %v", err)
	}
	out, err := client.Complete(context.Background(), "answer in json")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"1":"B"}` {
		t.Fatalf("unexpected content %q", out)
	}

	mu.Lock()
	defer mu.Unlock()
	if _, ok := lastBody["temperature"]; !ok {
		t.Fatalf("expected temperature for non gpt-5 model")
	}
	format, _ := lastBody["response_format"].(map[string]any)
	if format["type"] != "json_object" {
		t.Fatalf("expected json_object response format, got %v", lastBody["response_format"])
	}
}

func TestCompleteOmitsTemperatureForGPT5(t *testing.T) {
	var hasTemp bool
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, hasTemp = payload["temperature"]
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{}"}}]}`))
	})

	client, err := NewPromptClient("test-key", "gpt-5-mini")
	if err != nil {
		t.Fatalf("NewPromptClient: %v", err)
	}
	if _, err := client.Complete(context.Background(), "json"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if hasTemp {
		t.Fatalf("expected temperature to be omitted for gpt-5 models")
	}
}

func TestCompleteReportsHTTPStatus(t *testing.T) {
	withServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	})

	client, err := NewPromptClient("test-key", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("NewPromptClient: %v", err)
	}
	_, err = client.Complete(context.Background(), "json")
	if err == nil || !strings.Contains(err.Error(), "openai http status 503") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNewPromptClientValidates(t *testing.T) {
	if _, err := NewPromptClient("", "gpt-4o-mini"); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := NewPromptClient("k", " "); err == nil {
		t.Fatalf("expected missing model error")
	}
}
