package submissions

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"autosurvey-backend/internal/shared/server/respond"
)

// Handler exposes the submission log read-only.
type Handler struct {
	Gate          *Gate
	PassThreshold int
}

func NewHandler(gate *Gate, passThreshold int) *Handler {
	return &Handler{Gate: gate, PassThreshold: passThreshold}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/submissions", h.get)
}

func (h *Handler) get(c *gin.Context) {
	url := strings.TrimSpace(c.Query("url"))
	if url == "" {
		respond.Error(c, http.StatusBadRequest, "validation_error", "url is required", nil)
		return
	}
	entry, ok := h.Gate.Log(c.Request.Context(), url)
	if !ok {
		entry = Log{URL: url, Submissions: []Record{}}
	}
	summary := Summarize(entry.Submissions, h.PassThreshold)
	summary.URL = url
	respond.OK(c, gin.H{
		"url":         url,
		"submissions": entry.Submissions,
		"summary":     summary,
	})
}
