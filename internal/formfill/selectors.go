package formfill

import (
	"strings"
	"time"
)

// Selectors locate the fixed fields of a SurveyCake form.
type Selectors struct {
	CompanyOther string
	TextInput    string // 1st match is the company name, 2nd the participant name
	Email        string
	Consent      string

	SubmitButton     string
	SubmitText       string
	SubmitCandidates []string

	ConfirmButton string
	ConfirmTexts  []string
	DialogButtons []string

	// OptionText matches elements whose own text is an answer option.
	OptionText string
	// OptionXPath is a positional fallback. The %d verbs take the question's
	// div index (its page position plus one, for the form header) and the
	// option's 1-based index.
	OptionXPath string
}

// DefaultSelectors returns the SurveyCake layout.
func DefaultSelectors() Selectors {
	return Selectors{
		CompanyOther: `div[data-qa^="option-其他"]`,
		TextInput:    `input[placeholder="請填入文字"]`,
		Email:        `input[type="email"]`,
		Consent:      `div[data-qa^="option-本人已詳閱"]`,

		SubmitButton:     "button",
		SubmitText:       "送出",
		SubmitCandidates: []string{`button[type="submit"]`, `input[type="submit"]`},

		ConfirmButton: "button",
		ConfirmTexts:  []string{"確定送出", "確定", "確認", "送出", "提交"},
		DialogButtons: []string{
			`[role="dialog"] button`,
			`.modal button`,
			`.popup button`,
			`[class*="modal"] button`,
			`[class*="dialog"] button`,
		},

		OptionText:  "span, label",
		OptionXPath: "//div[1]/div[%d]/div/div[2]/div[2]/div[2]/div/div[%d]//span[2]",
	}
}

// Timing bounds every wait the driver makes.
type Timing struct {
	MaxAttempts    int
	RetryBackoff   time.Duration
	Settle         time.Duration
	ElementTimeout time.Duration
	ConfirmWait    time.Duration
	PostConfirm    time.Duration
	SubmitDelayMin time.Duration
	SubmitDelayMax time.Duration
}

// DefaultTiming matches the pacing of a person filling the form.
func DefaultTiming() Timing {
	return Timing{
		MaxAttempts:    2,
		RetryBackoff:   5 * time.Second,
		Settle:         2500 * time.Millisecond,
		ElementTimeout: 5 * time.Second,
		ConfirmWait:    2 * time.Second,
		PostConfirm:    3 * time.Second,
		SubmitDelayMin: time.Second,
		SubmitDelayMax: 15 * time.Second,
	}
}

// cssString quotes s for use inside a double-quoted attribute selector.
func cssString(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
