package handler

import (
	_ "embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"xivi-server/internal/config"
)

//go:embed landing.html
var landingPage []byte

// LandingHandler serves the Xivi Surf start page at /ric.
type LandingHandler struct {
	path   string
	logger *slog.Logger
}

// NewLandingHandler creates a LandingHandler. A ric/index.html inside
// server.static_dir replaces the built-in page.
func NewLandingHandler(cfg *config.Config, logger *slog.Logger) *LandingHandler {
	return &LandingHandler{
		path:   filepath.Join(cfg.Server.StaticDir, "ric", "index.html"),
		logger: logger.With("component", "landing_handler"),
	}
}

// Serve writes the landing page.
func (h *LandingHandler) Serve(c echo.Context) error {
	page, err := os.ReadFile(h.path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		page = landingPage
	default:
		h.logger.Warn("reading landing page, using built-in", "err", err, "path", h.path)
		page = landingPage
	}
	return c.HTMLBlob(http.StatusOK, page)
}
