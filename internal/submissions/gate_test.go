package submissions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"autosurvey-backend/internal/cache"
	localstore "autosurvey-backend/internal/shared/storage/object/local"
)

const surveyURL = "https://www.surveycake.com/s/attend"

func newGate(t *testing.T) *Gate {
	t.Helper()
	g := NewGate(cache.New(localstore.New(t.TempDir())))
	fixed := time.Date(2026, time.March, 3, 9, 30, 0, 0, time.UTC)
	g.Now = func() time.Time { return fixed }
	return g
}

func intPtr(v int) *int { return &v }

func TestFreshParticipantIsNotSubmitted(t *testing.T) {
	g := newGate(t)
	ok, ts := g.IsAlreadySubmitted(context.Background(), surveyURL, "王小明", "ming@example.com")
	require.False(t, ok)
	require.Nil(t, ts)
}

func TestRecordThenCheck(t *testing.T) {
	g := newGate(t)
	ctx := context.Background()

	require.NoError(t, g.RecordSubmission(ctx, surveyURL, "王小明", "ming@example.com", true, nil))

	ok, ts := g.IsAlreadySubmitted(ctx, surveyURL, "王小明", "ming@example.com")
	require.True(t, ok)
	require.NotNil(t, ts)
	require.True(t, ts.Equal(g.Now()))

	ok, _ = g.IsAlreadySubmitted(ctx, surveyURL, "王小明", "other@example.com")
	require.False(t, ok, "different email must not match")
	ok, _ = g.IsAlreadySubmitted(ctx, "https://www.surveycake.com/s/other", "王小明", "ming@example.com")
	require.False(t, ok, "different url must not match")
}

func TestFailedRecordsDoNotGate(t *testing.T) {
	g := newGate(t)
	ctx := context.Background()
	require.NoError(t, g.RecordSubmission(ctx, surveyURL, "A", "a@example.com", false, nil))

	ok, _ := g.IsAlreadySubmitted(ctx, surveyURL, "A", "a@example.com")
	require.False(t, ok)
}

func TestHistoryIsAppendOnly(t *testing.T) {
	g := newGate(t)
	ctx := context.Background()
	require.NoError(t, g.RecordSubmission(ctx, surveyURL, "A", "a@example.com", false, nil))
	require.NoError(t, g.RecordSubmission(ctx, surveyURL, "A", "a@example.com", true, intPtr(90)))
	require.NoError(t, g.RecordSubmission(ctx, surveyURL, "A", "a@example.com", true, intPtr(70)))

	entry, ok := g.Log(ctx, surveyURL)
	require.True(t, ok)
	require.Equal(t, surveyURL, entry.URL)
	require.Len(t, entry.Submissions, 3)
	require.False(t, entry.Submissions[0].Success)
	require.Equal(t, 90, *entry.Submissions[1].Score)
	require.Equal(t, 70, *entry.Submissions[2].Score)
}

func TestCheckIsIdempotent(t *testing.T) {
	tests := []struct {
		name     string
		recorded bool
	}{
		{name: "never recorded", recorded: false},
		{name: "recorded once", recorded: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGate(t)
			ctx := context.Background()
			if tt.recorded {
				require.NoError(t, g.RecordSubmission(ctx, surveyURL, "A", "a@example.com", true, nil))
			}
			first, firstTS := g.IsAlreadySubmitted(ctx, surveyURL, "A", "a@example.com")
			second, secondTS := g.IsAlreadySubmitted(ctx, surveyURL, "A", "a@example.com")
			require.Equal(t, tt.recorded, first)
			require.Equal(t, first, second)
			require.Equal(t, firstTS, secondTS)
		})
	}
}

func TestRecordKeepsUndecodableEntry(t *testing.T) {
	g := newGate(t)
	ctx := context.Background()
	key := cache.ComputeKey(surveyURL)
	corrupt := json.RawMessage(`"not a log"`)
	require.NoError(t, g.Cache.Save(ctx, cache.SubmissionLog, map[cache.Key]json.RawMessage{key: corrupt}))

	err := g.RecordSubmission(ctx, surveyURL, "A", "a@example.com", true, nil)
	require.ErrorIs(t, err, ErrUndecodableLog)

	stored := g.Cache.Load(ctx, cache.SubmissionLog)
	require.JSONEq(t, string(corrupt), string(stored[key]))

	other := "https://www.surveycake.com/s/other"
	require.NoError(t, g.RecordSubmission(ctx, other, "A", "a@example.com", true, nil))
	stored = g.Cache.Load(ctx, cache.SubmissionLog)
	require.JSONEq(t, string(corrupt), string(stored[key]))
}

func TestReadsLegacyTimestamps(t *testing.T) {
	g := newGate(t)
	ctx := context.Background()
	legacy := Log{URL: surveyURL, Submissions: []Record{{
		Name: "A", Email: "a@example.com", Timestamp: "2025-04-01T10:11:12.345678", Success: true,
	}}}
	raw, err := json.Marshal(legacy)
	require.NoError(t, err)
	require.NoError(t, g.Cache.Save(ctx, cache.SubmissionLog, map[cache.Key]json.RawMessage{cache.ComputeKey(surveyURL): raw}))

	ok, ts := g.IsAlreadySubmitted(ctx, surveyURL, "A", "a@example.com")
	require.True(t, ok)
	require.NotNil(t, ts)
	require.Equal(t, 2025, ts.Year())
}

func TestSummarize(t *testing.T) {
	records := []Record{
		{Success: true, Score: intPtr(85)},
		{Success: true, Score: intPtr(60)},
		{Success: true, Score: intPtr(100)},
		{Success: false},
	}
	s := Summarize(records, 80)
	require.Equal(t, 4, s.Total)
	require.Equal(t, 3, s.Successful)
	require.Equal(t, 3, s.Scored)
	require.Equal(t, 100, s.Max)
	require.Equal(t, 60, s.Min)
	require.Equal(t, 2, s.Passed)
	require.InDelta(t, 81.666, s.Mean, 0.01)
	require.InDelta(t, 0.666, s.PassRate, 0.01)

	empty := Summarize(nil, 80)
	require.Zero(t, empty.Mean)
	require.Zero(t, empty.PassRate)
}

func TestHandlerReturnsLogAndSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := newGate(t)
	require.NoError(t, g.RecordSubmission(context.Background(), surveyURL, "A", "a@example.com", true, intPtr(88)))

	r := gin.New()
	NewHandler(g, 80).RegisterRoutes(r.Group("/api"))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/submissions?url="+url.QueryEscape(surveyURL), nil))
	require.Equal(t, http.StatusOK, resp.Code)

	var payload struct {
		Submissions []Record `json:"submissions"`
		Summary     Summary  `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &payload))
	require.Len(t, payload.Submissions, 1)
	require.Equal(t, 1, payload.Summary.Passed)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/submissions", nil))
	require.Equal(t, http.StatusBadRequest, resp.Code)
}
