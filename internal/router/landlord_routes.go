package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/identity"
	"github.com/iliyamo/lot-reservation/internal/middleware"
)

// RegisterLandlord mounts routes for market owners.  Ownership of the
// booking's lot is checked by the engine on every call.
func RegisterLandlord(e *echo.Echo, d Deps) {
	g := e.Group("/v1/landlord",
		middleware.Authenticate(d.Resolver),
		d.rateLimit(),
		middleware.RequireRole(identity.RoleLandlord),
	)
	g.GET("/bookings", d.Bookings.LandlordList)
	g.POST("/bookings/:id/decision", d.Bookings.Decide)
	g.PUT("/bookings/:id/archive", d.Bookings.Archive)
	g.POST("/bookings/:id/payment/verify", d.Payments.Verify)
	g.PUT("/lots/:lotId/overrides", d.Availability.Override)
}
