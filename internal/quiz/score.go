package quiz

import (
	"regexp"
	"strconv"
	"strings"
)

var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`本次課後測驗，成績為\s*(\d+)`),
	regexp.MustCompile(`成績為\s*(\d+)`),
	regexp.MustCompile(`分數：\s*(\d+)`),
	regexp.MustCompile(`得分：\s*(\d+)`),
	regexp.MustCompile(`您的成績：\s*(\d+)`),
	regexp.MustCompile(`(?i)\bscore\s*[:：]\s*(\d+)`),
}

var anyNumber = regexp.MustCompile(`\d+`)

// ScoreTexts are the phrases a result page shows next to the score.
var ScoreTexts = []string{"成績為", "分數：", "得分：", "您的成績："}

// ExtractScore finds a 0-100 score in a result page's text. The labelled
// patterns are tried in order, then the first line mentioning 成績 or 分數.
func ExtractScore(text string) (int, bool) {
	for _, re := range scorePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if v, ok := inRange(m[1]); ok {
				return v, true
			}
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, "成績") && !strings.Contains(line, "分數") {
			continue
		}
		for _, n := range anyNumber.FindAllString(line, -1) {
			if v, ok := inRange(n); ok {
				return v, true
			}
		}
	}
	return 0, false
}

func inRange(raw string) (int, bool) {
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 || v > 100 {
		return 0, false
	}
	return v, true
}
