package quiz

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z0-9_-]*\\s*\n?(.*?)\\s*```$")

// StripCodeFences removes a surrounding markdown code fence, if present.
func StripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// parseAnswers decodes a question-id to letter mapping. A top-level "answers"
// wrapper is accepted, and letters are normalized to upper case.
func parseAnswers(raw string) (map[string]string, error) {
	var generic map[string]any
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &generic); err != nil {
		return nil, err
	}
	if inner, ok := generic["answers"].(map[string]any); ok && len(generic) == 1 {
		generic = inner
	}
	out := make(map[string]string, len(generic))
	for k, v := range generic {
		id := strings.TrimSpace(k)
		if _, err := strconv.Atoi(id); err != nil {
			continue
		}
		letter, ok := v.(string)
		if !ok {
			continue
		}
		letter = strings.ToUpper(strings.TrimSpace(letter))
		letter = strings.TrimRight(letter, ".) ")
		if letter == "" {
			continue
		}
		out[id] = letter
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no answers in model output")
	}
	return out, nil
}

type questionsPayload struct {
	Questions []Question `json:"questions"`
}

// parseQuestions decodes LLM-extracted questions, renumbers them 1..n and
// fills missing option letters.
func parseQuestions(raw string) ([]Question, error) {
	var payload questionsPayload
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), &payload); err != nil {
		return nil, err
	}
	sort.SliceStable(payload.Questions, func(i, j int) bool {
		return payload.Questions[i].ID < payload.Questions[j].ID
	})
	var out []Question
	for _, q := range payload.Questions {
		q.Question = collapse(q.Question)
		if q.Question == "" || len(q.Options) == 0 {
			continue
		}
		opts := make([]string, 0, len(q.Options))
		for _, o := range q.Options {
			if t := collapse(o.Text); t != "" {
				opts = append(opts, t)
			}
		}
		if len(opts) < 2 || isNonQuiz(q.Question, opts) {
			continue
		}
		kept := Question{ID: len(out) + 1, Question: q.Question}
		for i, t := range opts {
			kept.Options = append(kept.Options, Option{Letter: letterFor(i), Text: t})
		}
		out = append(out, kept)
	}
	return out, nil
}
