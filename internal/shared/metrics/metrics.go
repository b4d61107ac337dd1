package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

var (
	submissionsAttemptedTotal atomic.Uint64
	submissionsSucceededTotal atomic.Uint64
	submissionsFailedTotal    atomic.Uint64
	submissionsSkippedTotal   atomic.Uint64

	quizCacheHitsTotal     atomic.Uint64
	quizResolvedTotal      atomic.Uint64
	quizResolveFailedTotal atomic.Uint64

	jobsReceivedTotal             atomic.Uint64
	jobsCompletedTotal            atomic.Uint64
	jobsFailedTotal               atomic.Uint64
	jobsDeletedUnrecoverableTotal atomic.Uint64

	fillDuration = newHistogram([]float64{1000, 2500, 5000, 10000, 20000, 30000, 60000, 120000})
)

// IncSubmissionAttempted counts a form fill that got past the gate.
func IncSubmissionAttempted() { submissionsAttemptedTotal.Add(1) }

// IncSubmissionSucceeded counts a confirmed submission.
func IncSubmissionSucceeded() { submissionsSucceededTotal.Add(1) }

// IncSubmissionFailed counts a fill that exhausted its attempts.
func IncSubmissionFailed() { submissionsFailedTotal.Add(1) }

// IncSubmissionSkipped counts a participant the gate skipped.
func IncSubmissionSkipped() { submissionsSkippedTotal.Add(1) }

func IncQuizCacheHit()      { quizCacheHitsTotal.Add(1) }
func IncQuizResolved()      { quizResolvedTotal.Add(1) }
func IncQuizResolveFailed() { quizResolveFailedTotal.Add(1) }

func IncJobsReceived()             { jobsReceivedTotal.Add(1) }
func IncJobsCompleted()            { jobsCompletedTotal.Add(1) }
func IncJobsFailed()               { jobsFailedTotal.Add(1) }
func IncJobsDeletedUnrecoverable() { jobsDeletedUnrecoverableTotal.Add(1) }

// ObserveFillDurationMs records a single form fill duration in milliseconds.
func ObserveFillDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	fillDuration.Observe(value)
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "submissions_attempted_total", "Form fills started after the submission gate", submissionsAttemptedTotal.Load())
	writeCounter(&buf, "submissions_succeeded_total", "Confirmed submissions", submissionsSucceededTotal.Load())
	writeCounter(&buf, "submissions_failed_total", "Form fills that exhausted all attempts", submissionsFailedTotal.Load())
	writeCounter(&buf, "submissions_skipped_total", "Participants skipped as already submitted", submissionsSkippedTotal.Load())
	writeCounter(&buf, "quiz_cache_hits_total", "Quiz analyses served from cache", quizCacheHitsTotal.Load())
	writeCounter(&buf, "quiz_resolved_total", "Quiz analyses resolved via the LLM", quizResolvedTotal.Load())
	writeCounter(&buf, "quiz_resolve_failed_total", "Quiz resolutions that failed", quizResolveFailedTotal.Load())
	writeCounter(&buf, "jobs_received_total", "Automation jobs received", jobsReceivedTotal.Load())
	writeCounter(&buf, "jobs_completed_total", "Automation jobs completed", jobsCompletedTotal.Load())
	writeCounter(&buf, "jobs_failed_total", "Automation jobs failed", jobsFailedTotal.Load())
	writeCounter(&buf, "jobs_deleted_unrecoverable_total", "Queue messages dropped as unprocessable", jobsDeletedUnrecoverableTotal.Load())
	writeHistogram(&buf, "form_fill_duration_ms", "Form fill duration in milliseconds", fillDuration.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

func newHistogram(buckets []float64) *histogram {
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.buckets {
		if value <= bound {
			h.counts[i]++
			break
		}
	}
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := histogramSnapshot{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		sum:     h.sum,
		count:   h.count,
	}
	return out
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.buckets {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// NowMillis returns current time in milliseconds, useful for callers without time utilities.
func NowMillis() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Millisecond)
}
