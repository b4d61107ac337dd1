package logs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"

	"autosurvey-backend/internal/shared/server/respond"
	"autosurvey-backend/internal/shared/telemetry"
)

const defaultHeartbeat = 15 * time.Second

type Handler struct {
	File File
	// Heartbeat is the keep-alive interval of /log/watch. The file is also
	// re-checked on every beat in case a change notification was missed.
	Heartbeat time.Duration
	Now       func() time.Time
}

func NewHandler(path string) *Handler {
	return &Handler{File: File{Path: path}, Heartbeat: defaultHeartbeat, Now: time.Now}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/log/info", h.info)
	rg.GET("/log", h.page)
	rg.GET("/log/stream", h.stream)
	rg.GET("/log/watch", h.watch)
}

func (h *Handler) info(c *gin.Context) {
	total, _ := h.File.TotalLines()
	respond.OK(c, gin.H{
		"file_exists": h.File.Exists(),
		"file_size":   h.File.Size(),
		"total_lines": total,
		"file_path":   h.File.Path,
	})
}

func (h *Handler) page(c *gin.Context) {
	if !h.requireFile(c) {
		return
	}
	pageNum, ok := intQuery(c, "page", 1, 1, 1<<30)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "limit", 100, 1, 1000)
	if !ok {
		return
	}
	tail, ok := intQuery(c, "tail", 0, 1, 5000)
	if !ok {
		return
	}
	total, err := h.File.TotalLines()
	if err != nil {
		h.readFailed(c, err)
		return
	}

	if tail > 0 {
		lines, err := h.File.Tail(tail)
		if err != nil {
			h.readFailed(c, err)
			return
		}
		respond.OK(c, gin.H{
			"mode":        "tail",
			"lines":       lines,
			"count":       len(lines),
			"total_lines": total,
		})
		return
	}

	lines, hasMore, err := h.File.ReadLines((pageNum-1)*limit, limit)
	if err != nil {
		h.readFailed(c, err)
		return
	}
	respond.OK(c, gin.H{
		"mode":        "paginated",
		"page":        pageNum,
		"limit":       limit,
		"lines":       lines,
		"count":       len(lines),
		"has_more":    hasMore,
		"total_lines": total,
	})
}

// stream sends the file from start_line in chunks, then an end event.
func (h *Handler) stream(c *gin.Context) {
	if !h.requireFile(c) {
		return
	}
	start, ok := intQuery(c, "start_line", 0, 0, 1<<30)
	if !ok {
		return
	}
	chunk, ok := intQuery(c, "chunk_size", 50, 1, 200)
	if !ok {
		return
	}

	sseHeaders(c)
	ctx := c.Request.Context()
	current := start
	for ctx.Err() == nil {
		lines, hasMore, err := h.File.ReadLines(current, chunk)
		if err != nil {
			writeEvent(c.Writer, gin.H{"type": "error", "message": err.Error()})
			break
		}
		if len(lines) > 0 {
			writeEvent(c.Writer, gin.H{
				"lines":      lines,
				"start_line": current,
				"count":      len(lines),
				"has_more":   hasMore,
			})
			c.Writer.Flush()
			current += len(lines)
		}
		if !hasMore || len(lines) == 0 {
			writeEvent(c.Writer, gin.H{"type": "end"})
			break
		}
	}
	c.Writer.Flush()
}

// watch sends a connected event, the last tail lines as history, then every
// appended line as it is written.
func (h *Handler) watch(c *gin.Context) {
	if !h.requireFile(c) {
		return
	}
	tail, ok := intQuery(c, "tail", 10, 0, 100)
	if !ok {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "log watch unavailable", nil)
		return
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(h.File.Path)); err != nil {
		telemetry.Warn("logs.watch_add_failed", map[string]any{"path": h.File.Path, "error": err})
	}

	fl := &follower{path: h.File.Path, offset: h.File.Size()}
	history, err := h.File.Tail(tail)
	if err != nil {
		history = nil
	}

	sseHeaders(c)
	w := c.Writer
	writeEvent(w, gin.H{"type": "connected", "message": "connected to log watch"})
	for _, line := range history {
		writeEvent(w, gin.H{"type": "history", "content": line})
	}
	w.Flush()

	beat := h.Heartbeat
	if beat <= 0 {
		beat = defaultHeartbeat
	}
	ticker := time.NewTicker(beat)
	defer ticker.Stop()

	target := filepath.Clean(h.File.Path)
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if !h.flushNew(w, fl) {
				return
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			telemetry.Warn("logs.watch_error", map[string]any{"error": err})
		case <-ticker.C:
			if !h.flushNew(w, fl) {
				return
			}
			writeEvent(w, gin.H{"type": "heartbeat", "timestamp": h.now().Unix()})
			w.Flush()
		}
	}
}

func (h *Handler) flushNew(w gin.ResponseWriter, fl *follower) bool {
	lines, err := fl.readNew()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true
		}
		writeEvent(w, gin.H{"type": "error", "message": err.Error()})
		w.Flush()
		return false
	}
	for _, line := range lines {
		writeEvent(w, gin.H{"type": "log", "content": line})
	}
	if len(lines) > 0 {
		w.Flush()
	}
	return true
}

func (h *Handler) requireFile(c *gin.Context) bool {
	if h.File.Exists() {
		return true
	}
	respond.Error(c, http.StatusNotFound, "not_found", "log file does not exist", nil)
	return false
}

func (h *Handler) readFailed(c *gin.Context, err error) {
	telemetry.Error("logs.read_failed", map[string]any{"path": h.File.Path, "error": err})
	respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to read log file", nil)
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func sseHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}

func writeEvent(w io.Writer, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", raw)
}

// intQuery reads an optional bounded integer; def is returned when absent.
func intQuery(c *gin.Context, key string, def, lo, hi int) (int, bool) {
	raw, present := c.GetQuery(key)
	if !present || raw == "" {
		return def, true
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < lo || val > hi {
		respond.Error(c, http.StatusBadRequest, "validation_error",
			fmt.Sprintf("%s must be an integer between %d and %d", key, lo, hi), nil)
		return 0, false
	}
	return val, true
}
