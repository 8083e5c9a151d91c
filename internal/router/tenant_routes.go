package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/identity"
	"github.com/iliyamo/lot-reservation/internal/middleware"
)

// RegisterTenant mounts the tenant's booking and payment routes.
func RegisterTenant(e *echo.Echo, d Deps) {
	g := e.Group("/v1",
		middleware.Authenticate(d.Resolver),
		d.rateLimit(),
		middleware.RequireRole(identity.RoleTenant),
	)
	g.POST("/bookings", d.Bookings.Create)
	g.GET("/bookings", d.Bookings.Mine)
	g.POST("/bookings/:id/payment", d.Payments.Submit)
	g.GET("/payments/due", d.Payments.Due)
}
