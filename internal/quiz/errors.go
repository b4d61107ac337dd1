package quiz

import (
	"errors"
	"fmt"
)

// ErrNoQuestions means neither the DOM nor the LLM yielded any quiz questions.
var ErrNoQuestions = errors.New("no quiz questions found")

// ResolutionError reports a failed quiz resolution. A batch run for the URL
// must stop when it sees one.
type ResolutionError struct {
	URL   string
	Phase string // render, extract, answer
	Raw   string // last raw model output, if any
	Err   error
}

func (e *ResolutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("quiz resolution failed (%s) url=%s", e.Phase, e.URL)
	}
	return fmt.Sprintf("quiz resolution failed (%s) url=%s: %v", e.Phase, e.URL, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// IsResolutionError reports whether err wraps a ResolutionError.
func IsResolutionError(err error) bool {
	var re *ResolutionError
	return errors.As(err, &re)
}
