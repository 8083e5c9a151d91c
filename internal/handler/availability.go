package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/middleware"
	"github.com/iliyamo/lot-reservation/internal/model"
	"github.com/iliyamo/lot-reservation/internal/reservation"
)

// AvailabilityHandler answers calendar queries and applies landlord overrides.
type AvailabilityHandler struct {
	Engine *reservation.Engine
}

// NewAvailabilityHandler returns the handler for the public availability
// endpoints and landlord overrides.  It panics when e is nil.
func NewAvailabilityHandler(e *reservation.Engine) *AvailabilityHandler {
	if e == nil {
		panic("nil engine passed to NewAvailabilityHandler")
	}
	return &AvailabilityHandler{Engine: e}
}

// Check handles GET /v1/lots/:lotId/availability/check?start_date=&end_date=&one_day=.
func (h *AvailabilityHandler) Check(c echo.Context) error {
	oneDay, err := queryBool(c, "one_day")
	if err != nil {
		return fail(c, err)
	}
	start, end, err := days(c.QueryParam("start_date"), c.QueryParam("end_date"))
	if err != nil {
		return badRequest(c, string(reservation.KindInvalidRange), "start_date and end_date must be YYYY-MM-DD")
	}
	res, err := h.Engine.CheckAvailability(c.Request().Context(), c.Param("lotId"), start, end, oneDay)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Month handles GET /v1/lots/:lotId/availability?month=&year=.
func (h *AvailabilityHandler) Month(c echo.Context) error {
	month, err1 := strconv.Atoi(c.QueryParam("month"))
	year, err2 := strconv.Atoi(c.QueryParam("year"))
	if err1 != nil || err2 != nil {
		return badRequest(c, string(reservation.KindInvalidRange), "month and year are required")
	}
	res, err := h.Engine.QueryMonth(c.Request().Context(), c.Param("lotId"), month, year)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type overrideRequest struct {
	StartDate string `json:"start_date" validate:"required,day"`
	EndDate   string `json:"end_date" validate:"omitempty,day"`
	Blocked   *bool  `json:"blocked" validate:"required"`
}

// Override handles PUT /v1/landlord/lots/:lotId/overrides.
func (h *AvailabilityHandler) Override(c echo.Context) error {
	var req overrideRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, err)
	}
	start, end, err := days(req.StartDate, req.EndDate)
	if err != nil {
		return badRequest(c, string(reservation.KindInvalidRange), "dates must be YYYY-MM-DD")
	}
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	rng, err := h.Engine.OverrideDates(c.Request().Context(), who.UserID, c.Param("lotId"), start, end, *req.Blocked)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"lot_id":  c.Param("lotId"),
		"blocked": *req.Blocked,
		"dates":   model.FormatDays(rng.Days()),
	})
}
