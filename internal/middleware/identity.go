package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/identity"
)

// CurrentIdentity returns the caller stored by Authenticate.
func CurrentIdentity(c echo.Context) (identity.Identity, bool) {
	id, ok := c.Get(ctxIdentity).(identity.Identity)
	return id, ok && id.UserID != ""
}

// userID is the rate-limit key component for the caller; "anon" before
// authentication has run.
func userID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
