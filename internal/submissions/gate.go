package submissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"autosurvey-backend/internal/cache"
	"autosurvey-backend/internal/shared/telemetry"
)

// ErrUndecodableLog means the stored log for a URL could not be read, so no
// record is appended over it.
var ErrUndecodableLog = errors.New("submission log undecodable")

// Gate answers whether a participant already submitted a survey and appends
// outcomes to the submission log. It is advisory: two processes checking the
// same participant at once may both proceed.
type Gate struct {
	Cache *cache.Store
	Now   func() time.Time
}

// NewGate returns a Gate over store.
func NewGate(store *cache.Store) *Gate {
	return &Gate{Cache: store, Now: time.Now}
}

// IsAlreadySubmitted reports whether url has a successful record for the
// participant, along with the time of the first such record.
func (g *Gate) IsAlreadySubmitted(ctx context.Context, url, name, email string) (bool, *time.Time) {
	log, ok := g.Log(ctx, url)
	if !ok {
		return false, nil
	}
	for _, rec := range log.Submissions {
		if !rec.Success || !rec.matches(name, email) {
			continue
		}
		if ts, ok := ParseTimestamp(rec.Timestamp); ok {
			return true, &ts
		}
		return true, nil
	}
	return false, nil
}

// RecordSubmission appends an outcome for the participant. Existing records are
// never modified; an entry that fails to decode is left untouched and
// ErrUndecodableLog is returned.
func (g *Gate) RecordSubmission(ctx context.Context, url, name, email string, success bool, score *int) error {
	key := cache.ComputeKey(url)
	rec := Record{
		Name:      name,
		Email:     email,
		Timestamp: g.now().Format(time.RFC3339Nano),
		Success:   success,
		Score:     score,
	}
	err := g.Cache.Update(ctx, cache.SubmissionLog, func(m map[cache.Key]json.RawMessage) error {
		entry := Log{URL: url}
		if raw, ok := m[key]; ok {
			if err := json.Unmarshal(raw, &entry); err != nil {
				telemetry.Error("submissions.entry_decode_failed", map[string]any{"url": url, "error": err})
				return fmt.Errorf("%w: %v", ErrUndecodableLog, err)
			}
		}
		if entry.URL == "" {
			entry.URL = url
		}
		entry.Submissions = append(entry.Submissions, rec)
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		m[key] = raw
		return nil
	})
	if err != nil {
		return fmt.Errorf("record submission: %w", err)
	}
	fields := map[string]any{"url": url, "name": name, "email": email, "success": success}
	if score != nil {
		fields["score"] = *score
	}
	telemetry.Info("submissions.recorded", fields)
	return nil
}

// Log returns the cached history for url.
func (g *Gate) Log(ctx context.Context, url string) (Log, bool) {
	logs := cache.LoadAs[Log](ctx, g.Cache, cache.SubmissionLog)
	entry, ok := logs[cache.ComputeKey(url)]
	return entry, ok
}

// Summarize aggregates scores for every record logged against url.
func (g *Gate) Summarize(ctx context.Context, url string, threshold int) Summary {
	entry, _ := g.Log(ctx, url)
	s := Summarize(entry.Submissions, threshold)
	s.URL = url
	return s
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}
