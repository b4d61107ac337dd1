package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func editorRouter(user, password string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.DELETE("/api/users/:id", EditorAuth(user, password), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"editor": EditorFromContext(c)})
	})
	return router
}

func TestEditorAuthRequiresQueryParams(t *testing.T) {
	router := editorRouter("admin", "secret")

	for _, target := range []string{
		"/api/users/1",
		"/api/users/1?editor=admin",
		"/api/users/1?password=secret",
	} {
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, target, nil))
		if resp.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", target, resp.Code)
		}
	}
}

func TestEditorAuthRejectsWrongCredentials(t *testing.T) {
	router := editorRouter("admin", "secret")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/api/users/1?editor=admin&password=nope", nil))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
	var payload map[string]map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["error"]["code"] != "forbidden" {
		t.Fatalf("unexpected error body: %v", payload)
	}
}

func TestEditorAuthAdmitsMatchingPair(t *testing.T) {
	router := editorRouter("admin", "secret")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/api/users/1?editor=admin&password=secret", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["editor"] != "admin" {
		t.Fatalf("expected editor in context, got %v", payload)
	}
}

func TestEditorAuthUnconfiguredDeniesAll(t *testing.T) {
	router := editorRouter("", "")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, httptest.NewRequest(http.MethodDelete, "/api/users/1?editor=x&password=y", nil))
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
}
