// Package router wires handlers and middleware onto echo routes.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/handler"
	"github.com/iliyamo/lot-reservation/internal/identity"
	"github.com/iliyamo/lot-reservation/internal/middleware"
)

// Deps collects what the routes need.  Cache and RateLimit may be nil.
type Deps struct {
	Resolver     identity.Resolver
	Health       *handler.HealthHandler
	Bookings     *handler.BookingHandler
	Payments     *handler.PaymentHandler
	Availability *handler.AvailabilityHandler
	Cache        *middleware.ResponseCache
	RateLimit    echo.MiddlewareFunc
}

func (d Deps) rateLimit() echo.MiddlewareFunc {
	if d.RateLimit == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return d.RateLimit
}

// Register mounts every route.  Health and availability reads are public;
// everything else requires a bearer token.
func Register(e *echo.Echo, d Deps) {
	e.Validator = handler.NewValidator()
	e.GET("/healthz", d.Health.Health)

	RegisterPublic(e, d)
	RegisterShared(e, d)
	RegisterTenant(e, d)
	RegisterLandlord(e, d)
}

// RegisterPublic exposes the lot calendar.  Responses are cached per lot
// and invalidated whenever the engine reports a change.
func RegisterPublic(e *echo.Echo, d Deps) {
	g := e.Group("/v1/lots/:lotId", d.rateLimit(), d.Cache.ForLot("lotId"))
	g.GET("/availability", d.Availability.Month)
	g.GET("/availability/check", d.Availability.Check)
}

// RegisterShared mounts routes open to any authenticated role.  Access to
// a single booking is decided by the engine.
func RegisterShared(e *echo.Echo, d Deps) {
	g := e.Group("/v1",
		middleware.Authenticate(d.Resolver),
		d.rateLimit(),
		middleware.RequireRole(identity.RoleTenant, identity.RoleLandlord, identity.RoleAdmin),
	)
	g.GET("/bookings/:id", d.Bookings.Get)
	g.POST("/bookings/:id/cancel", d.Bookings.Cancel)
}
