package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"xivi-server/internal/metrics"
)

// MetricsMiddleware returns an Echo middleware that records Prometheus metrics
// for each inbound request.
//
// Handler errors are committed through Echo's error handler before the
// status is read, so the recorded status matches what the client receives.
// Outer middleware then sees a nil error.
func MetricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.RequestsInFlight.Inc()
			defer m.RequestsInFlight.Dec()

			start := time.Now()

			if err := next(c); err != nil {
				c.Error(err)
			}

			status := strconv.Itoa(c.Response().Status)
			method := metrics.NormalizeMethod(c.Request().Method)
			path := metrics.NormalizePath(c.Request().URL.Path)

			m.RequestsTotal.WithLabelValues(method, status, path).Inc()
			m.RequestDuration.WithLabelValues(method, status, path).Observe(time.Since(start).Seconds())

			return nil
		}
	}
}
