package telemetry

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestInitTeesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	closeFn, err := Init(Options{Level: "info", File: path})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	Info("submission.recorded", map[string]any{"email": "a@example.com", "success": true})
	Debug("hidden", nil)
	Error("submission.failed", map[string]any{"error": errors.New("boom")})

	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	t.Cleanup(func() { _, _ = Init(Options{}) })

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var payload map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &payload); err != nil {
			t.Fatalf("decode log line: %v", err)
		}
		lines = append(lines, payload)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines (debug filtered), got %d", len(lines))
	}
	if lines[0]["msg"] != "submission.recorded" || lines[0]["email"] != "a@example.com" {
		t.Fatalf("unexpected first line: %v", lines[0])
	}
	if lines[1]["level"] != "error" || lines[1]["error"] != "boom" {
		t.Fatalf("unexpected second line: %v", lines[1])
	}
	if _, ok := lines[0]["ts"]; !ok {
		t.Fatalf("missing ts field")
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	if _, err := Init(Options{Level: "loud"}); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
