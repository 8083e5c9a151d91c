package handler

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/reservation"
)

var kindStatus = map[reservation.Kind]int{
	reservation.KindNotFound:              http.StatusNotFound,
	reservation.KindForbidden:             http.StatusForbidden,
	reservation.KindInvalidRange:          http.StatusBadRequest,
	reservation.KindConflict:              http.StatusConflict,
	reservation.KindInvalidTransition:     http.StatusUnprocessableEntity,
	reservation.KindDependencyUnavailable: http.StatusServiceUnavailable,
}

// fail writes err as {"error": kind, "message": reason}.  Errors that are
// not engine errors are logged and reported as 500 without detail.
func fail(c echo.Context, err error) error {
	if kind := reservation.KindOf(err); kind != "" {
		status, ok := kindStatus[kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		return c.JSON(status, echo.Map{"error": string(kind), "message": reservation.MessageOf(err)})
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return badRequest(c, "VALIDATION_FAILED", ve.Error())
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return c.JSON(he.Code, echo.Map{"error": "BAD_REQUEST", "message": he.Message})
	}
	c.Logger().Errorf("unhandled error: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "INTERNAL", "message": "internal error"})
}

func badRequest(c echo.Context, kind, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": kind, "message": msg})
}

// unauthorized answers a request that reached a handler without a caller.
func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "UNAUTHORIZED", "message": "unauthorized"})
}
