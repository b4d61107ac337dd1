package quiz

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Selectors locate questions in rendered survey HTML. Each list is tried in
// order and the first selector with matches wins.
type Selectors struct {
	Containers []string
	Titles     []string
	Options    []string
}

// DefaultSelectors match SurveyCake style markup, then generic fallbacks.
func DefaultSelectors() Selectors {
	return Selectors{
		Containers: []string{
			`[data-qa^="question-"]`,
			`[data-qa="question"]`,
			`.question`,
			`fieldset`,
		},
		Titles: []string{
			`[data-qa="question-title"]`,
			`[data-qa^="title"]`,
			`.question-title`,
			`legend`,
			`h1, h2, h3, h4, h5, h6`,
		},
		Options: []string{
			`[data-qa^="option-"]`,
			`[role="radio"]`,
			`.option`,
			`label`,
		},
	}
}

var (
	personalTitle = regexp.MustCompile(`(?i)\b(company|name|e-?mail|agree|consent)\b`)
	personalZH    = []string{"公司", "姓名", "電子郵件", "同意", "本人已詳閱", "個資"}
	companyZH     = []string{"公司", "股份有限", "企業", "集團"}
	companyLatin  = regexp.MustCompile(`(?i)\b(inc|ltd|corp|corporation|co\.)(\W|$)`)
	consentWords  = []string{"同意", "已詳閱", "agree", "consent"}
)

// ExtractQuestions parses rendered HTML into quiz questions and their text
// blob. Personal-data fields are dropped, and retained questions are numbered
// from 1.
func ExtractQuestions(page string, sel Selectors) (string, []Question, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return "", nil, fmt.Errorf("parse html: %w", err)
	}

	for _, containerSel := range sel.Containers {
		containers := doc.Find(containerSel)
		if containers.Length() == 0 {
			continue
		}
		var (
			out      []Question
			position int
			seen     = map[string]int{}
		)
		containers.Each(func(_ int, s *goquery.Selection) {
			// Nested matches belong to their outermost container.
			if s.ParentsFiltered(containerSel).Length() > 0 {
				return
			}
			// Skipped fields still take a page position and still share option texts.
			position++
			opts := optionTexts(s, sel.Options)
			occurrence := make([]int, len(opts))
			for i, text := range opts {
				seen[text]++
				occurrence[i] = seen[text]
			}

			title := firstText(s, sel.Titles)
			if title == "" {
				title = ownText(s)
			}
			if title == "" || len(opts) < 2 || isNonQuiz(title, opts) {
				return
			}
			q := Question{ID: len(out) + 1, Question: title, Position: position}
			for i, text := range opts {
				q.Options = append(q.Options, Option{Letter: letterFor(i), Text: text, Occurrence: occurrence[i]})
			}
			out = append(out, q)
		})
		if len(out) > 0 {
			return FormatQuestions(out), out, nil
		}
	}
	return "", nil, nil
}

// FormatQuestions renders questions as the text blob sent to the LLM.
func FormatQuestions(questions []Question) string {
	var b strings.Builder
	for i, q := range questions {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%d. %s\n", q.ID, q.Question)
		for _, opt := range q.Options {
			fmt.Fprintf(&b, "%s. %s\n", opt.Letter, opt.Text)
		}
	}
	return b.String()
}

func isNonQuiz(title string, options []string) bool {
	if personalTitle.MatchString(title) {
		return true
	}
	for _, kw := range personalZH {
		if strings.Contains(title, kw) {
			return true
		}
	}
	companyLike := 0
	for _, opt := range options {
		lower := strings.ToLower(opt)
		for _, kw := range consentWords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
		if isCompanyName(opt) {
			companyLike++
		}
	}
	return companyLike >= 3
}

func isCompanyName(opt string) bool {
	for _, kw := range companyZH {
		if strings.Contains(opt, kw) {
			return true
		}
	}
	return companyLatin.MatchString(opt)
}

func firstText(s *goquery.Selection, selectors []string) string {
	for _, sel := range selectors {
		found := s.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		if text := collapse(found.Text()); text != "" {
			return text
		}
	}
	return ""
}

func optionTexts(s *goquery.Selection, selectors []string) []string {
	for _, sel := range selectors {
		found := s.Find(sel)
		if found.Length() == 0 {
			continue
		}
		var out []string
		found.Each(func(_ int, o *goquery.Selection) {
			if o.ParentsFiltered(sel).Length() > 0 {
				return
			}
			text := ""
			if qa, ok := o.Attr("data-qa"); ok && strings.HasPrefix(qa, "option-") {
				text = strings.TrimSpace(strings.TrimPrefix(qa, "option-"))
			}
			if text == "" {
				text = collapse(o.Text())
			}
			if text != "" {
				out = append(out, text)
			}
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

// ownText returns the container's direct text nodes, ignoring children.
func ownText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				b.WriteString(c.Data)
				b.WriteString(" ")
			}
		}
	}
	return collapse(b.String())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
