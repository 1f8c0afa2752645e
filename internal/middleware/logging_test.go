package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequestLogger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := echo.New()
	e.Use(RequestLogger(logger))
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"ok is info", http.StatusOK, "level=INFO"},
		{"bad request is warn", http.StatusBadRequest, "level=WARN"},
		{"server error is error", http.StatusInternalServerError, "level=ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			e := echo.New()
			e.Use(RequestLogger(logger))
			e.GET("/ric/proxy/*", func(c echo.Context) error {
				return c.String(tt.status, "body")
			})

			req := httptest.NewRequest(http.MethodGet, "/ric/proxy/example.com", http.NoBody)
			e.ServeHTTP(httptest.NewRecorder(), req)

			out := buf.String()
			if !strings.Contains(out, tt.wantLevel) {
				t.Errorf("log = %q, want %s", out, tt.wantLevel)
			}
			if !strings.Contains(out, "route=/ric/proxy/*") {
				t.Errorf("log = %q, want route=/ric/proxy/*", out)
			}
		})
	}
}
