package middlewares

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/rentals_backend/utils"
)

func newAdminRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationMiddleware())
	r.GET("/admin", AdminMiddleware(), func(c *gin.Context) {
		sub, _ := utils.GetAdminSubjectFromContext(c.Request.Context())
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"subject": sub, "correlation_id": cid})
	})
	return r
}

func TestAdminMiddleware(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	adminToken, err := utils.JwtGenerate("staff-1", utils.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("JwtGenerate: %v", err)
	}
	tenantToken, _ := utils.JwtGenerate("tenant-1", "tenant", time.Hour)

	cases := []struct {
		name     string
		header   string
		expected int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"wrong role", "Bearer " + tenantToken, http.StatusForbidden},
		{"admin", "Bearer " + adminToken, http.StatusOK},
		{"lowercase scheme", "bearer " + adminToken, http.StatusOK},
	}
	r := newAdminRouter()
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.expected {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.expected, w.Code, w.Body.String())
		}
	}
}

func TestCorrelationMiddleware_GeneratesWhenMissing(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, _ := utils.JwtGenerate("staff-1", utils.RoleAdmin, time.Hour)
	r := newAdminRouter()

	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(CorrelationHeader); got == "" {
		t.Fatalf("expected a generated correlation id header")
	}

	req = httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(CorrelationHeader, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(CorrelationHeader); got != "abc-123" {
		t.Fatalf("expected caller's correlation id to be echoed, got %q", got)
	}
}

func TestCorrelationMiddleware_ReplacesOversizedId(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	token, _ := utils.JwtGenerate("staff-1", utils.RoleAdmin, time.Hour)
	r := newAdminRouter()

	long := strings.Repeat("c", maxCorrelationIdLength+1)
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(CorrelationHeader, long)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	got := w.Header().Get(CorrelationHeader)
	if got == "" || got == long || len(got) > maxCorrelationIdLength {
		t.Fatalf("expected a generated correlation id, got %q", got)
	}
}
