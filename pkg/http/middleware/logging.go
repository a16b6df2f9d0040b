package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"FxSignal/pkg/logger"
)

// RequestLogging logs each request at debug, 5xx responses at error and requests
// slower than slow at warn.
func RequestLogging(log *logger.Logger, slow time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			latency := time.Since(start)
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("route", routeLabel(c)),
				logger.Int("status", status),
				logger.Duration("latency_ms", latency),
				logger.String("remote", c.RealIP()),
			}
			switch {
			case status >= 500:
				log.Error("http request failed", fields...)
			case slow > 0 && latency >= slow:
				log.Warn("http request slow", fields...)
			default:
				log.Debug("http request", fields...)
			}
			return nil
		}
	}
}
