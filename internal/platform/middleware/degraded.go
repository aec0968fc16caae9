package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Degraded answers 503 for every request when required backing services are
// not configured. missing names the absent settings for operators.
func Degraded(missing []string) echo.MiddlewareFunc {
	msg := "service not configured"
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if len(missing) == 0 {
			return next
		}
		return func(c echo.Context) error {
			return c.JSON(http.StatusServiceUnavailable, map[string]any{
				"message": msg,
				"missing": strings.Join(missing, ","),
			})
		}
	}
}
