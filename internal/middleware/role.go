package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/identity"
)

// RequireRole aborts with 403 unless the authenticated caller has one of
// roles.  It must run after Authenticate.
func RequireRole(roles ...identity.Role) echo.MiddlewareFunc {
	allowed := make(map[identity.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := CurrentIdentity(c)
			if !ok || !allowed[id.Role] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "FORBIDDEN", "message": "role not allowed"})
			}
			return next(c)
		}
	}
}
