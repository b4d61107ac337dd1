package formfill

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"autosurvey-backend/internal/browser/browsertest"
	"autosurvey-backend/internal/quiz"
)

func yesNo(id, position, occurrence int, q string) quiz.Question {
	return quiz.Question{ID: id, Question: q, Position: position, Options: []quiz.Option{
		{Letter: "A", Text: "是", Occurrence: occurrence},
		{Letter: "B", Text: "否", Occurrence: occurrence},
	}}
}

func TestQuizFillerClickStrategies(t *testing.T) {
	analysis := quiz.Analysis{
		Questions: []quiz.Question{
			yesNo(1, 3, 1, "Q1"),
			yesNo(2, 4, 2, "Q2"),
			{ID: 3, Question: "Q3", Options: []quiz.Option{{Letter: "A", Text: "UDP"}, {Letter: "B", Text: "TCP/IP"}}},
			{ID: 4, Question: "Q4", Options: []quiz.Option{{Letter: "A", Text: "x"}, {Letter: "B", Text: "y"}}},
			{ID: 5, Question: "Q5", Position: 7, Options: []quiz.Option{{Letter: "A", Text: "gone"}}},
		},
		Answers: map[string]string{"1": "A", "2": "A", "3": "B", "4": "B", "5": "A"},
	}
	sel := DefaultSelectors()
	page := browsertest.NewPage()
	page.Counts[`[data-qa="option-是"]`] = 2
	page.Texts[sel.OptionText] = []string{"TCP/IP"}
	page.Counts[fmt.Sprintf(sel.OptionXPath, 8, 1)] = 1

	f := NewQuizFormFiller(analysis, time.Second)
	require.NoError(t, f.FillAnswers(context.Background(), page, sel))
	require.Equal(t, []string{
		`[data-qa="option-是"]#0`,
		`[data-qa="option-是"]#1`,
		sel.OptionText + "|TCP/IP",
		fmt.Sprintf(sel.OptionXPath, 8, 1),
	}, page.ClickList())
}

// The company field offers 其他 too; the quiz's 其他 is the second on the page.
const mixedSurveyHTML = `<form>
<div data-qa="question-1"><div data-qa="question-title">公司名稱</div>
  <div data-qa="option-甲公司"></div><div data-qa="option-乙公司"></div><div data-qa="option-丙公司"></div><div data-qa="option-其他"></div></div>
<div data-qa="question-2"><div data-qa="question-title">姓名</div><input placeholder="請填入文字"></div>
<div data-qa="question-3"><div data-qa="question-title">下列何者不是傳輸層協定？</div>
  <div data-qa="option-TCP"></div><div data-qa="option-UDP"></div><div data-qa="option-其他"></div></div>
</form>`

func TestQuizFillerUsesPagePositionsAcrossPersonalFields(t *testing.T) {
	_, questions, err := quiz.ExtractQuestions(mixedSurveyHTML, quiz.DefaultSelectors())
	require.NoError(t, err)
	require.Len(t, questions, 1)
	require.Equal(t, 1, questions[0].ID)
	require.Equal(t, 3, questions[0].Position)

	analysis := quiz.Analysis{Questions: questions, Answers: map[string]string{"1": "C"}}
	sel := DefaultSelectors()

	page := browsertest.NewPage()
	page.Counts[`[data-qa="option-其他"]`] = 2
	require.NoError(t, NewQuizFormFiller(analysis, time.Second).FillAnswers(context.Background(), page, sel))
	require.Equal(t, []string{`[data-qa="option-其他"]#1`}, page.ClickList())

	// Without data-qa the positional fallback targets the quiz container.
	bare := browsertest.NewPage()
	bare.Counts[fmt.Sprintf(sel.OptionXPath, 4, 3)] = 1
	bare.Counts[fmt.Sprintf(sel.OptionXPath, 2, 3)] = 1
	require.NoError(t, NewQuizFormFiller(analysis, time.Second).FillAnswers(context.Background(), bare, sel))
	require.Equal(t, []string{fmt.Sprintf(sel.OptionXPath, 4, 3)}, bare.ClickList())
}

func TestQuizFillerSkipsDuplicateWithoutOccurrence(t *testing.T) {
	analysis := quiz.Analysis{
		Questions: []quiz.Question{{ID: 1, Question: "Q", Options: []quiz.Option{{Letter: "A", Text: "其他"}, {Letter: "B", Text: "z"}}}},
		Answers:   map[string]string{"1": "A"},
	}
	page := browsertest.NewPage()
	page.Counts[`[data-qa="option-其他"]`] = 2

	require.NoError(t, NewQuizFormFiller(analysis, time.Second).FillAnswers(context.Background(), page, DefaultSelectors()))
	require.Empty(t, page.ClickList())
}

func TestQuizFillerSkipsAmbiguousText(t *testing.T) {
	analysis := quiz.Analysis{
		Questions: []quiz.Question{{ID: 1, Question: "Q", Options: []quiz.Option{{Letter: "A", Text: "dup"}, {Letter: "B", Text: "z"}}}},
		Answers:   map[string]string{"1": "A"},
	}
	sel := DefaultSelectors()
	sel.OptionXPath = ""
	page := browsertest.NewPage()
	page.Texts[sel.OptionText] = []string{"dup", "dup"}

	require.NoError(t, NewQuizFormFiller(analysis, time.Second).FillAnswers(context.Background(), page, sel))
	require.Empty(t, page.ClickList())
}

func TestQuizFillerReadScore(t *testing.T) {
	f := NewQuizFormFiller(quiz.Analysis{}, time.Millisecond)

	page := browsertest.NewPage()
	page.Body = "感謝填答\n本次課後測驗，成績為 90 分"
	score := f.ReadScore(context.Background(), page)
	require.NotNil(t, score)
	require.Equal(t, 90, *score)

	blank := browsertest.NewPage()
	blank.Body = "感謝您的填寫"
	require.Nil(t, f.ReadScore(context.Background(), blank))
}

func TestBasicFillerIsNoop(t *testing.T) {
	page := browsertest.NewPage()
	var f FormFiller = BasicFormFiller{}
	require.Equal(t, "attendance", f.Kind())
	require.NoError(t, f.FillAnswers(context.Background(), page, DefaultSelectors()))
	require.Nil(t, f.ReadScore(context.Background(), page))
	require.Empty(t, page.ClickList())
}

func TestCSSString(t *testing.T) {
	require.Equal(t, `say \"hi\" \\ bye`, cssString(`say "hi" \ bye`))
}
