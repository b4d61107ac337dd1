package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"autosurvey-backend/internal/shared/server/respond"
)

const editorKey = "editor"

// EditorAuth guards roster mutations. Callers pass editor and password as
// query parameters; both must match the configured pair. An unconfigured
// pair rejects every request.
func EditorAuth(user, password string) gin.HandlerFunc {
	return func(c *gin.Context) {
		editor := strings.TrimSpace(c.Query("editor"))
		pass := c.Query("password")
		if editor == "" || pass == "" {
			respond.Error(c, http.StatusForbidden, "forbidden", "editor and password query parameters are required", nil)
			return
		}
		if user == "" || password == "" || !equal(editor, user) || !equal(pass, password) {
			respond.Error(c, http.StatusForbidden, "forbidden", "editor or password is incorrect", nil)
			return
		}
		c.Set(editorKey, editor)
		c.Next()
	}
}

// EditorFromContext returns the editor EditorAuth admitted, if any.
func EditorFromContext(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(editorKey)
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
