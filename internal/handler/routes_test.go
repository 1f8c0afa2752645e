package handler

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"xivi-server/internal/config"
	"xivi-server/internal/metrics"
)

func newRoutedEcho(t *testing.T, cfg *config.Config) *echo.Echo {
	t.Helper()
	f := &stubFetcher{pages: map[string]stubPage{
		"https://example.com": {contentType: "text/html", body: "<body>hi</body>"},
	}}
	api := newTestAPIHandler(t, pipedUpstream(), "", t.TempDir())

	e := echo.New()
	RegisterRoutes(e, cfg, metrics.New(),
		newTestProxyHandler(f, cfg),
		api,
		NewLandingHandler(cfg, discardLogger()),
		NewHealthHandler(cfg, "test"),
	)
	return e
}

func TestRegisterRoutes_Wiring(t *testing.T) {
	static := t.TempDir()
	if err := os.WriteFile(filepath.Join(static, "app.js"), []byte("console.log(1)"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Server:  config.ServerConfig{StaticDir: static},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	e := newRoutedEcho(t, cfg)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"GET /healthz", http.MethodGet, "/healthz", http.StatusOK},
		{"GET /proxy/status", http.MethodGet, "/proxy/status", http.StatusOK},
		{"GET /ric", http.MethodGet, "/ric", http.StatusOK},
		{"GET /ric/", http.MethodGet, "/ric/", http.StatusOK},
		{"GET /ric/proxy/example.com", http.MethodGet, "/ric/proxy/example.com", http.StatusOK},
		{"POST /ric/proxy/example.com", http.MethodPost, "/ric/proxy/example.com", http.StatusOK},
		{"GET /api/proxy", http.MethodGet, "/api/proxy?url=example.com", http.StatusOK},
		{"GET /api/music/search without q", http.MethodGet, "/api/music/search", http.StatusBadRequest},
		{"GET /api/music/stream", http.MethodGet, "/api/music/stream?videoId=v1", http.StatusOK},
		{"GET /api/sysinfo without checkout", http.MethodGet, "/api/sysinfo", http.StatusInternalServerError},
		{"GET /metrics", http.MethodGet, "/metrics", http.StatusOK},
		{"GET static file", http.MethodGet, "/app.js", http.StatusOK},
		{"GET /unknown", http.MethodGet, "/unknown", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(e, tt.method, tt.path, "myproxy.test")
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestRegisterRoutes_MetricsDisabled(t *testing.T) {
	e := newRoutedEcho(t, &config.Config{Server: config.ServerConfig{StaticDir: t.TempDir()}})

	if rec := serve(e, http.MethodGet, "/metrics", "myproxy.test"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestLanding_BuiltIn(t *testing.T) {
	e := newRoutedEcho(t, &config.Config{Server: config.ServerConfig{StaticDir: t.TempDir()}})

	rec := serve(e, http.MethodGet, "/ric", "myproxy.test")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "<title>Xivi Surf</title>") {
		t.Error("expected built-in landing page")
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
}

func TestLanding_FromStaticDir(t *testing.T) {
	static := t.TempDir()
	if err := os.MkdirAll(filepath.Join(static, "ric"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(static, "ric", "index.html"), []byte("<h1>custom</h1>"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := newRoutedEcho(t, &config.Config{Server: config.ServerConfig{StaticDir: static}})

	rec := serve(e, http.MethodGet, "/ric", "myproxy.test")
	if rec.Body.String() != "<h1>custom</h1>" {
		t.Errorf("body = %q, want custom landing page", rec.Body.String())
	}
}
