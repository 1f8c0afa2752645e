package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"xivi-server/internal/config"
	"xivi-server/internal/metrics"
)

// RegisterRoutes wires all route handlers onto the Echo instance.
func RegisterRoutes(
	e *echo.Echo,
	cfg *config.Config,
	m *metrics.Metrics,
	proxy *ProxyHandler,
	api *APIHandler,
	landing *LandingHandler,
	health *HealthHandler,
) {
	e.GET("/healthz", health.Healthz)
	e.GET("/proxy/status", health.Status)

	e.GET("/ric", landing.Serve)
	e.GET("/ric/", landing.Serve)
	e.Any("/ric/proxy/*", proxy.Surf)

	e.GET("/api/proxy", proxy.Embed)
	e.GET("/api/sysinfo", api.SysInfo)
	e.GET("/api/music/search", api.MusicSearch)
	e.GET("/api/music/stream", api.MusicStream)
	e.POST("/api/chat", api.Chat)

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})))
	}

	if cfg.Server.StaticDir != "" {
		e.Static("/", cfg.Server.StaticDir)
	}
}
