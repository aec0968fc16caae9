package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// The closed set of roles. Any other value is not a role.
const (
	RoleTherapist = "terapeuta"
	RolePatient   = "paciente"
)

// ValidRole reports whether rol is one of the two roles.
func ValidRole(rol string) bool {
	return rol == RoleTherapist || rol == RolePatient
}

// RequireRole returns middleware that checks the caller's role claim against roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			has := RoleFromContext(c.Request().Context())
			for _, required := range roles {
				if has != "" && has == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
