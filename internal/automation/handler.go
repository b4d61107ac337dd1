// Package automation exposes the endpoints that queue batch and personal
// runs and report on their jobs.
package automation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"autosurvey-backend/internal/jobs"
	"autosurvey-backend/internal/queue"
	"autosurvey-backend/internal/roster"
	"autosurvey-backend/internal/shared/server/middleware"
	"autosurvey-backend/internal/shared/server/respond"
	"autosurvey-backend/internal/shared/telemetry"
)

// JobReader looks up job status records.
type JobReader interface {
	Get(ctx context.Context, id string) (jobs.Job, error)
}

// RosterSource yields the current roster.
type RosterSource interface {
	Participants(ctx context.Context) ([]roster.Participant, error)
}

type Handler struct {
	Queue  queue.Client
	Jobs   JobReader
	Roster RosterSource

	NewID func() string
	Now   func() time.Time
}

func NewHandler(q queue.Client, jobReader JobReader, rosterSrc RosterSource) *Handler {
	return &Handler{Queue: q, Jobs: jobReader, Roster: rosterSrc, NewID: uuid.NewString, Now: time.Now}
}

type RunRequest struct {
	AttendURL string `json:"attend_url" binding:"required,url"`
	QuizURL   string `json:"quiz_url" binding:"required,url"`
}

type PersonalRequest struct {
	CompanyName string `json:"company_name" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Email       string `json:"email" binding:"required,email"`
	AttendURL   string `json:"attend_url" binding:"required,url"`
	QuizURL     string `json:"quiz_url" binding:"required,url"`
}

// RegisterRoutes mounts the run endpoints and job lookup on rg.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	h.RegisterRunRoutes(rg)
	rg.GET("/jobs/:id", h.getJob)
}

// RegisterRunRoutes mounts only the two run endpoints.
func (h *Handler) RegisterRunRoutes(rg *gin.RouterGroup) {
	rg.POST("/run-automation", h.runBatch)
	rg.POST("/run-personal-automation", h.runPersonal)
}

func (h *Handler) runBatch(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "attend_url and quiz_url are both required", err.Error())
		return
	}

	participants, err := h.Roster.Participants(c.Request.Context())
	if err != nil {
		telemetry.Error("automation.roster_failed", map[string]any{"error": err})
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load roster", nil)
		return
	}
	if len(participants) == 0 {
		respond.Error(c, http.StatusBadRequest, "empty_roster", "add users before starting a batch run", nil)
		return
	}

	telemetry.Info("automation.batch_requested", map[string]any{
		"attend_url": req.AttendURL,
		"quiz_url":   req.QuizURL,
		"users":      len(participants),
		"request_id": middleware.RequestIDFromContext(c),
	})

	ids, ok := h.enqueue(c, []queue.Message{
		{Task: queue.TaskBatchAttendance, URL: strings.TrimSpace(req.AttendURL)},
		{Task: queue.TaskBatchQuiz, URL: strings.TrimSpace(req.QuizURL)},
	})
	if !ok {
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("batch run accepted for %d users", len(participants)),
		"job_ids": ids,
	})
}

func (h *Handler) runPersonal(c *gin.Context) {
	var req PersonalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "all fields are required", err.Error())
		return
	}
	p := roster.Participant{
		Name:        strings.TrimSpace(req.Name),
		Email:       strings.TrimSpace(req.Email),
		CompanyName: strings.TrimSpace(req.CompanyName),
	}
	if err := p.Validate(); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "all fields are required", err.Error())
		return
	}

	telemetry.Info("automation.personal_requested", map[string]any{
		"name":       p.Name,
		"email":      p.Email,
		"company":    p.CompanyName,
		"request_id": middleware.RequestIDFromContext(c),
	})

	ids, ok := h.enqueue(c, []queue.Message{
		{Task: queue.TaskPersonalAttendance, URL: strings.TrimSpace(req.AttendURL), Personal: &p},
		{Task: queue.TaskPersonalQuiz, URL: strings.TrimSpace(req.QuizURL), Personal: &p},
	})
	if !ok {
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{
		"status":  "success",
		"message": fmt.Sprintf("personal run accepted for %s", p.Name),
		"job_ids": ids,
	})
}

// enqueue stamps and sends msgs in order. On failure the ids already queued
// are reported in the error details.
func (h *Handler) enqueue(c *gin.Context, msgs []queue.Message) ([]string, bool) {
	ctx := c.Request.Context()
	requestID := middleware.RequestIDFromContext(c)
	ids := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		msg.JobID = h.NewID()
		msg.RequestID = requestID
		msg.EnqueuedAt = h.Now().UTC().Format(time.RFC3339)
		msg.Version = queue.MessageVersion

		if err := h.Queue.Send(ctx, msg); err != nil {
			telemetry.Error("automation.enqueue_failed", map[string]any{
				"task":   string(msg.Task),
				"job_id": msg.JobID,
				"error":  err,
			})
			status, code := http.StatusInternalServerError, "enqueue_failed"
			if errors.Is(err, jobs.ErrQueueFull) || errors.Is(err, jobs.ErrPoolClosed) {
				status, code = http.StatusServiceUnavailable, "queue_unavailable"
			}
			c.Set("jobIds", ids)
			respond.Error(c, status, code, "failed to queue automation job", gin.H{"queued_job_ids": ids})
			return nil, false
		}
		ids = append(ids, msg.JobID)
	}
	c.Set("jobIds", ids)
	return ids, true
}

func (h *Handler) getJob(c *gin.Context) {
	if h.Jobs == nil {
		respond.Error(c, http.StatusNotFound, "not_found", "job status is not tracked by this server", nil)
		return
	}
	job, err := h.Jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, "not_found", "job not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to load job", nil)
		return
	}
	respond.OK(c, job)
}
