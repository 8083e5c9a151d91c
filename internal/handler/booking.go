package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/middleware"
	"github.com/iliyamo/lot-reservation/internal/model"
	"github.com/iliyamo/lot-reservation/internal/reservation"
)

// BookingHandler exposes the booking lifecycle to tenants and landlords.
type BookingHandler struct {
	Engine *reservation.Engine
}

// NewBookingHandler returns the booking lifecycle handler.  It panics when
// e is nil so a mis-wired router fails at startup.
func NewBookingHandler(e *reservation.Engine) *BookingHandler {
	if e == nil {
		panic("nil engine passed to NewBookingHandler")
	}
	return &BookingHandler{Engine: e}
}

type createBookingRequest struct {
	LotID     string `json:"lot_id" validate:"required"`
	StartDate string `json:"start_date" validate:"required,day"`
	EndDate   string `json:"end_date" validate:"omitempty,day"`
	OneDay    bool   `json:"one_day"`
}

// Create handles POST /v1/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	var req createBookingRequest
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
	b, err := h.Engine.RequestBooking(c.Request().Context(), reservation.BookingRequest{
		TenantID:  who.UserID,
		LotID:     req.LotID,
		StartDate: start,
		EndDate:   end,
		OneDay:    req.OneDay,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Mine handles GET /v1/bookings for the calling tenant.
func (h *BookingHandler) Mine(c echo.Context) error {
	archived, err := queryBool(c, "include_archived")
	if err != nil {
		return fail(c, err)
	}
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Engine.TenantBookings(c.Request().Context(), who.UserID, archived)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": nonNil(list)})
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	b, err := h.Engine.GetBooking(c.Request().Context(), c.Param("id"), who)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=1024"`
}

// Cancel handles POST /v1/bookings/:id/cancel for either party.
func (h *BookingHandler) Cancel(c echo.Context) error {
	var req reasonRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, err)
	}
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	b, err := h.Engine.Cancel(c.Request().Context(), c.Param("id"), who.UserID, who.Role, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// LandlordList handles GET /v1/landlord/bookings?status=PENDING,APPROVED.
func (h *BookingHandler) LandlordList(c echo.Context) error {
	archived, err := queryBool(c, "include_archived")
	if err != nil {
		return fail(c, err)
	}
	var statuses []model.BookingStatus
	for _, s := range strings.Split(c.QueryParam("status"), ",") {
		switch st := model.BookingStatus(strings.ToUpper(strings.TrimSpace(s))); st {
		case "":
		case model.StatusPending, model.StatusApproved, model.StatusRejected, model.StatusCancelled:
			statuses = append(statuses, st)
		default:
			return badRequest(c, "BAD_REQUEST", "unknown status "+s)
		}
	}
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Engine.LandlordBookings(c.Request().Context(), who.UserID, statuses, archived)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": nonNil(list)})
}

type decisionRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVE REJECT approve reject"`
	Reason   string `json:"reason" validate:"max=1024"`
}

// Decide handles POST /v1/landlord/bookings/:id/decision.
func (h *BookingHandler) Decide(c echo.Context) error {
	var req decisionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, err)
	}
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	d := reservation.Decision(strings.ToUpper(req.Decision))
	b, err := h.Engine.Decide(c.Request().Context(), c.Param("id"), d, who.UserID, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

type archiveRequest struct {
	Archived *bool `json:"archived" validate:"required"`
}

// Archive handles PUT /v1/landlord/bookings/:id/archive.
func (h *BookingHandler) Archive(c echo.Context) error {
	var req archiveRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, err)
	}
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	b, err := h.Engine.Archive(c.Request().Context(), c.Param("id"), who.UserID, *req.Archived)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

func queryBool(c echo.Context, name string) (bool, error) {
	v := c.QueryParam(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, name+" must be true or false")
	}
	return b, nil
}

func nonNil(list []model.Booking) []model.Booking {
	if list == nil {
		return []model.Booking{}
	}
	return list
}
