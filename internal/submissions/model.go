package submissions

import (
	"strings"
	"time"
)

// Record is one fill attempt outcome for a participant. Records are only ever
// appended.
type Record struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Timestamp string `json:"timestamp"`
	Success   bool   `json:"success"`
	Score     *int   `json:"score,omitempty"`
}

// Log is the cached history for one survey URL.
type Log struct {
	URL         string   `json:"url"`
	Submissions []Record `json:"submissions"`
}

// Summary aggregates scores over a set of records.
type Summary struct {
	URL        string  `json:"url,omitempty"`
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Scored     int     `json:"scored"`
	Mean       float64 `json:"mean"`
	Max        int     `json:"max"`
	Min        int     `json:"min"`
	Passed     int     `json:"passed"`
	PassRate   float64 `json:"passRate"`
	Threshold  int     `json:"threshold"`
}

// timestampLayouts covers RFC 3339 and the offset-less ISO form older logs use.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseTimestamp parses a record timestamp.
func ParseTimestamp(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (r Record) matches(name, email string) bool {
	return strings.TrimSpace(r.Name) == strings.TrimSpace(name) &&
		strings.EqualFold(strings.TrimSpace(r.Email), strings.TrimSpace(email))
}

// Summarize computes score statistics. Records without a score count toward
// Total and Successful only.
func Summarize(records []Record, threshold int) Summary {
	s := Summary{Total: len(records), Threshold: threshold}
	sum := 0
	for _, r := range records {
		if r.Success {
			s.Successful++
		}
		if r.Score == nil {
			continue
		}
		score := *r.Score
		if s.Scored == 0 || score > s.Max {
			s.Max = score
		}
		if s.Scored == 0 || score < s.Min {
			s.Min = score
		}
		s.Scored++
		sum += score
		if score >= threshold {
			s.Passed++
		}
	}
	if s.Scored > 0 {
		s.Mean = float64(sum) / float64(s.Scored)
		s.PassRate = float64(s.Passed) / float64(s.Scored)
	}
	return s
}
