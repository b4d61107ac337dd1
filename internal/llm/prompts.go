package llm

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
)

var (
	//go:embed prompts/extract_questions.txt
	promptExtractQuestions string
	//go:embed prompts/answer_questions.txt
	promptAnswerQuestions string
	//go:embed prompts/fix_json.txt
	promptFixJSON string
)

const (
	PromptExtractQuestions = "extract_questions"
	PromptAnswerQuestions  = "answer_questions"
	PromptFixJSON          = "fix_json"
)

// PromptTemplate returns the prompt template text and whether the name was recognized.
func PromptTemplate(name string) (string, bool) {
	switch name {
	case PromptExtractQuestions:
		return promptExtractQuestions, true
	case PromptAnswerQuestions:
		return promptAnswerQuestions, true
	case PromptFixJSON:
		return promptFixJSON, true
	default:
		return "", false
	}
}

// ErrPromptTemplate is returned when a prompt cannot be rendered.
var ErrPromptTemplate = errors.New("prompt template")

// RenderPrompt fills {{KEY}} placeholders in the named template. Every var must
// have a placeholder, so a broken template never yields a prompt without its data.
func RenderPrompt(name string, vars map[string]string) (string, error) {
	template, ok := PromptTemplate(name)
	if !ok {
		return "", fmt.Errorf("%w: unknown prompt %q", ErrPromptTemplate, name)
	}
	return renderTemplate(name, template, vars)
}

func renderTemplate(name, template string, vars map[string]string) (string, error) {
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrPromptTemplate, name)
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		placeholder := "{{" + k + "}}"
		if !strings.Contains(template, placeholder) {
			return "", fmt.Errorf("%w: %s has no %s", ErrPromptTemplate, name, placeholder)
		}
		pairs = append(pairs, placeholder, v)
	}
	return strings.NewReplacer(pairs...).Replace(template), nil
}
