package quiz

import (
	"sort"
	"strconv"
	"strings"
)

// Option is one lettered answer choice. Occurrence counts options with the
// same text across every question on the page, this one included, so the
// first is 1. Zero means unknown.
type Option struct {
	Letter     string `json:"letter"`
	Text       string `json:"text"`
	Occurrence int    `json:"occurrence,omitempty"`
}

// Question is a retained quiz question. IDs are assigned 1..n in document
// order. Position is the 1-based index of the question's container among all
// containers on the page, personal-data fields included; zero means unknown.
type Question struct {
	ID       int      `json:"id"`
	Question string   `json:"question"`
	Options  []Option `json:"options"`
	Position int      `json:"position,omitempty"`
}

// Analysis is the cached quiz resolution for one URL.
type Analysis struct {
	URL       string            `json:"url"`
	Timestamp string            `json:"timestamp"`
	Questions []Question        `json:"questions"`
	Answers   map[string]string `json:"answers"`
}

// Choice is a resolved answer ready to be clicked.
type Choice struct {
	QuestionID  int
	Letter      string
	OptionText  string
	OptionIndex int // 1-based position of the option within the question
	Position    int // page position of the question, 0 if unknown
	Occurrence  int // page-wide occurrence of OptionText, 0 if unknown
}

// Choices pairs every answered question with its option text, ordered by
// question id. Answers that reference an unknown question or letter are skipped.
func (a Analysis) Choices() []Choice {
	byID := make(map[int]Question, len(a.Questions))
	for _, q := range a.Questions {
		byID[q.ID] = q
	}
	out := make([]Choice, 0, len(a.Answers))
	for rawID, letter := range a.Answers {
		id, err := strconv.Atoi(strings.TrimSpace(rawID))
		if err != nil {
			continue
		}
		q, ok := byID[id]
		if !ok {
			continue
		}
		letter = strings.ToUpper(strings.TrimSpace(letter))
		for i, opt := range q.Options {
			if strings.EqualFold(opt.Letter, letter) {
				out = append(out, Choice{
					QuestionID:  id,
					Letter:      letter,
					OptionText:  opt.Text,
					OptionIndex: i + 1,
					Position:    q.Position,
					Occurrence:  opt.Occurrence,
				})
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionID < out[j].QuestionID })
	return out
}

// letterFor returns A, B, ... Z, AA, AB, ...
func letterFor(i int) string {
	if i < 26 {
		return string(rune('A' + i))
	}
	return letterFor(i/26-1) + string(rune('A'+i%26))
}
