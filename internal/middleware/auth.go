package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/identity"
)

// Context keys set by Authenticate.
const (
	ctxUserID   = "user_id"
	ctxRole     = "role"
	ctxIdentity = "identity"
)

// Authenticate resolves the bearer token through resolver and stores the
// caller under "user_id", "role" and "identity".  Rejected tokens get 401;
// an unreachable auth service gets 503 so clients can retry.
func Authenticate(resolver identity.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": "missing bearer token"})
			}
			raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

			id, err := resolver.ResolveIdentity(c.Request().Context(), raw)
			switch {
			case errors.Is(err, identity.ErrInvalidToken):
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": "invalid token"})
			case err != nil:
				c.Logger().Warnf("identity resolve failed: %v", err)
				return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "DEPENDENCY_UNAVAILABLE", "message": "auth service unavailable"})
			}

			c.Set(ctxUserID, id.UserID)
			c.Set(ctxRole, string(id.Role))
			c.Set(ctxIdentity, id)
			return next(c)
		}
	}
}
