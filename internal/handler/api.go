package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"xivi-server/internal/client"
	"xivi-server/internal/service"
)

// APIHandler serves the small JSON endpoints used by the desktop apps.
type APIHandler struct {
	music   *service.MusicService
	chat    *service.ChatService
	sysinfo *service.SysInfoService
	logger  *slog.Logger
}

// NewAPIHandler creates an APIHandler.
func NewAPIHandler(music *service.MusicService, chat *service.ChatService, sysinfo *service.SysInfoService, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		music:   music,
		chat:    chat,
		sysinfo: sysinfo,
		logger:  logger.With("component", "api_handler"),
	}
}

// SysInfo returns the deployed repository, commit and version.
func (h *APIHandler) SysInfo(c echo.Context) error {
	info, err := h.sysinfo.Get()
	if err != nil {
		h.logger.Error("sysinfo error", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to read system info",
		})
	}
	return c.JSON(http.StatusOK, info)
}

// MusicSearch handles GET /api/music/search?q=.
func (h *APIHandler) MusicSearch(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Missing query parameter q",
		})
	}

	tracks, err := h.music.Search(c.Request().Context(), q)
	if err != nil {
		h.logger.Error("music search error", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to search music",
		})
	}
	return c.JSON(http.StatusOK, tracks)
}

// MusicStream handles GET /api/music/stream?videoId=.
func (h *APIHandler) MusicStream(c echo.Context) error {
	id := c.QueryParam("videoId")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Missing query parameter videoId",
		})
	}

	streamURL, err := h.music.Stream(c.Request().Context(), id)
	if err != nil {
		h.logger.Error("music stream error", "err", err, "video_id", id)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Failed to get audio stream",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"url": streamURL})
}

// Chat handles POST /api/chat and returns the upstream completion verbatim.
func (h *APIHandler) Chat(c echo.Context) error {
	var req service.ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "Invalid request body",
		})
	}

	body, err := h.chat.Complete(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrNoMessages) {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
		}

		h.logger.Error("chat error", "err", err)
		details := err.Error()
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			details = apiErr.Body
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "Failed to get chat response",
			"details": details,
		})
	}
	return c.JSONBlob(http.StatusOK, body)
}
