package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"xivi-server/internal/codec"
	"xivi-server/internal/rewrite"
	"xivi-server/internal/service"
)

// ProxyHandler serves both proxy entry points. They share one pipeline and
// differ only in how the target is encoded and in the rewrite strategy.
type ProxyHandler struct {
	service  *service.ProxyService
	rewriter *rewrite.Rewriter
	logger   *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ProxyService, rw *rewrite.Rewriter, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		service:  svc,
		rewriter: rw,
		logger:   logger.With("component", "proxy_handler"),
	}
}

// Surf handles /ric/proxy/<encoded>. A target on this server is answered
// with a redirect to the local path instead of being fetched.
func (h *ProxyHandler) Surf(c echo.Context) error {
	req := c.Request()

	raw, err := codec.PathScheme.Decode(req.URL)
	if err != nil {
		h.logger.Warn("proxy decode error", "err", err, "path", req.URL.Path)
		return c.String(http.StatusBadRequest, "Proxy Error: "+err.Error())
	}

	res, err := h.service.Open(req.Context(), raw, req.Host, req.Header)
	if err != nil {
		var loop *service.LoopError
		if errors.As(err, &loop) {
			return c.Redirect(http.StatusFound, loop.Local)
		}
		status := h.statusFor(err)
		h.log(status, "proxy error", err, raw)
		return c.String(status, "Proxy Error: "+err.Error())
	}
	defer func() { _ = res.Body.Close() }()

	rc := rewrite.Context{Base: res.FinalURL, ProxyOrigin: proxyOrigin(c), Strategy: rewrite.RedirectStrategy}
	if err := h.rewriter.Rewrite(c.Response(), res, rc); err != nil {
		status := h.statusFor(err)
		h.log(status, "proxy rewrite error", err, raw)
		return c.String(status, "Proxy Error: "+err.Error())
	}
	return nil
}

// Embed handles /api/proxy?url=<raw> for pages shown inside the desktop's
// iframes. Navigation is reported to the parent window via postMessage.
func (h *ProxyHandler) Embed(c echo.Context) error {
	req := c.Request()

	hdr := c.Response().Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Expose-Headers", "X-Final-URL")
	hdr.Set("X-Frame-Options", "SAMEORIGIN")
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set("Referrer-Policy", "no-referrer")

	raw, err := codec.QueryScheme.Decode(req.URL)
	if err != nil {
		return c.String(http.StatusBadRequest, "Missing url parameter")
	}

	res, err := h.service.Open(req.Context(), raw, req.Host, req.Header)
	if err != nil {
		var loop *service.LoopError
		switch {
		case errors.As(err, &loop):
			return c.String(http.StatusBadRequest, "Cannot proxy requests to this server")
		case errors.Is(err, codec.ErrEmptyTarget), errors.Is(err, codec.ErrInvalidTarget):
			return c.String(http.StatusBadRequest, "Invalid url parameter")
		}
		status := h.statusFor(err)
		h.log(status, "embed fetch error", err, raw)
		if status == http.StatusForbidden {
			return c.String(status, "Forbidden target")
		}
		return c.String(status, "Error fetching URL")
	}
	defer func() { _ = res.Body.Close() }()

	hdr.Set("X-Final-URL", res.FinalURL.String())

	rc := rewrite.Context{Base: res.FinalURL, ProxyOrigin: proxyOrigin(c), Strategy: rewrite.MessageStrategy}
	if err := h.rewriter.Rewrite(c.Response(), res, rc); err != nil {
		status := h.statusFor(err)
		h.log(status, "embed rewrite error", err, raw)
		return c.String(status, "Error fetching URL")
	}
	return nil
}

// statusFor maps a pipeline error onto the response status.
func (h *ProxyHandler) statusFor(err error) int {
	switch {
	case errors.Is(err, codec.ErrEmptyTarget), errors.Is(err, codec.ErrInvalidTarget):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrForbiddenTarget):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *ProxyHandler) log(status int, msg string, err error, target string) {
	level := slog.LevelError
	if status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	h.logger.Log(context.Background(), level, msg, "err", err, "status", status, "target", target)
}

// proxyOrigin is the scheme and host the browser used to reach this server.
func proxyOrigin(c echo.Context) string {
	return c.Scheme() + "://" + c.Request().Host
}
