package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// AllowFunc reports whether a request from key may proceed.
type AllowFunc func(key string) bool

// Throttle rejects requests with 429 when allow refuses the client IP.
func Throttle(allow AllowFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if allow != nil && !allow(c.RealIP()) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
				})
			}
			return next(c)
		}
	}
}
