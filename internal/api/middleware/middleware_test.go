package middleware

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"pairStudio/internal/auth"
)

type stubValidator struct{}

func (stubValidator) ValidateToken(token string) (*auth.TokenClaims, error) {
	if token != "good" {
		return nil, errors.New("bad token")
	}
	return &auth.TokenClaims{UserID: 7, TokenType: "access"}, nil
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CorrelationIDMiddleware())
	r.GET("/me", AuthMiddleware(stubValidator{}), func(c *gin.Context) {
		id, _ := UserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id, "correlation_id": GetCorrelationID(c)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	r := newTestRouter()

	cases := map[string]struct {
		header string
		status int
	}{
		"missing":    {"", http.StatusUnauthorized},
		"not bearer": {"Basic good", http.StatusUnauthorized},
		"bad token":  {"Bearer nope", http.StatusUnauthorized},
		"good":       {"Bearer good", http.StatusOK},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.status {
			t.Errorf("%s: status = %d, want %d", name, rec.Code, tc.status)
		}
	}
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("X-Correlation-ID", "abc-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Correlation-ID"); got != "abc-123" {
		t.Fatalf("correlation id = %q", got)
	}

	for _, incoming := range []string{"", "bad id\r\nx: y", strings.Repeat("a", 65)} {
		req = httptest.NewRequest(http.MethodGet, "/me", nil)
		if incoming != "" {
			req.Header["X-Correlation-Id"] = []string{incoming}
		}
		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		got := rec.Header().Get("X-Correlation-ID")
		if got == "" || got == incoming {
			t.Fatalf("incoming %q: a fresh correlation id should be generated, got %q", incoming, got)
		}
	}
}

func TestSlogLoggerTagsEditorSessions(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	r := gin.New()
	r.Use(CorrelationIDMiddleware(), SlogLoggerMiddleware(logger))
	r.GET("/v1/editor/sessions/:id", func(c *gin.Context) {
		LoggerFromContext(c).Info("inside handler")
		c.Status(http.StatusOK)
	})
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/editor/sessions/s-42", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected handler line and one access line, got %q", buf.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, "session_id=s-42") || !strings.Contains(line, "correlation_id=") {
			t.Fatalf("missing request attributes: %s", line)
		}
	}
	if !strings.Contains(lines[1], "status=200") {
		t.Fatalf("unexpected access line: %s", lines[1])
	}
}
