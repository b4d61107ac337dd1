package users

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"autosurvey-backend/internal/roster"
	"autosurvey-backend/internal/shared/server/respond"
)

type Handler struct {
	Svc    *Service
	Editor gin.HandlerFunc
}

// NewHandler wires the roster routes; editor guards every mutation.
func NewHandler(svc *Service, editor gin.HandlerFunc) *Handler {
	return &Handler{Svc: svc, Editor: editor}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	guard := h.Editor
	if guard == nil {
		guard = func(c *gin.Context) { c.Next() }
	}
	rg.GET("/users", h.list)
	rg.GET("/users/:id", h.get)
	rg.POST("/users", guard, h.create)
	rg.PUT("/users/:id", guard, h.update)
	rg.DELETE("/users/:id", guard, h.delete)
}

func (h *Handler) list(c *gin.Context) {
	users, err := h.Svc.List(c.Request.Context())
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to list users", nil)
		return
	}
	respond.OK(c, users)
}

func (h *Handler) get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	user, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, user)
}

func (h *Handler) create(c *gin.Context) {
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "name and a valid email are required", err.Error())
		return
	}
	user, err := h.Svc.Create(c.Request.Context(), in.Name, in.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, user)
}

func (h *Handler) update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var in Input
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "name and a valid email are required", err.Error())
		return
	}
	user, err := h.Svc.Update(c.Request.Context(), id, in.Name, in.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, user)
}

func (h *Handler) delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.Svc.Delete(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	respond.OK(c, gin.H{"message": "user deleted"})
}

func parseID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		respond.Error(c, http.StatusBadRequest, "validation_error", "user id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "user not found", nil)
	case errors.Is(err, ErrEmailExists):
		respond.Error(c, http.StatusBadRequest, "email_exists", "email already exists", nil)
	case errors.Is(err, roster.ErrNameRequired),
		errors.Is(err, roster.ErrEmailRequired),
		errors.Is(err, roster.ErrEmailInvalid):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", "roster update failed", nil)
	}
}
