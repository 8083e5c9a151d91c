package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/repository/memstore"
	"github.com/iliyamo/lot-reservation/internal/reservation"
)

func TestFailMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   string
	}{
		{&reservation.Error{Kind: reservation.KindNotFound, Message: "Booking not found"}, http.StatusNotFound, "NOT_FOUND"},
		{&reservation.Error{Kind: reservation.KindForbidden}, http.StatusForbidden, "FORBIDDEN"},
		{&reservation.Error{Kind: reservation.KindInvalidRange}, http.StatusBadRequest, "INVALID_RANGE"},
		{fmt.Errorf("wrapped: %w", &reservation.Error{Kind: reservation.KindConflict, Message: "taken"}), http.StatusConflict, "CONFLICT"},
		{&reservation.Error{Kind: reservation.KindInvalidTransition}, http.StatusUnprocessableEntity, "INVALID_TRANSITION"},
		{&reservation.Error{Kind: reservation.KindDependencyUnavailable}, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE"},
		{errors.New("driver: bad connection"), http.StatusInternalServerError, "INTERNAL"},
	}
	e := echo.New()
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		if err := fail(c, tc.err); err != nil {
			t.Fatal(err)
		}
		var body map[string]string
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if rec.Code != tc.status || body["error"] != tc.kind {
			t.Errorf("%v: got %d %v", tc.err, rec.Code, body)
		}
		if tc.status == http.StatusInternalServerError && body["message"] != "internal error" {
			t.Errorf("internal detail leaked: %v", body)
		}
	}
}

func TestValidatorDayTag(t *testing.T) {
	v := NewValidator()
	ok := createBookingRequest{LotID: "lot-1", StartDate: "2024-01-10", EndDate: "2024-01-12T00:00:00Z"}
	if err := v.Validate(&ok); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	bad := createBookingRequest{LotID: "lot-1", StartDate: "10.01.2024"}
	if err := v.Validate(&bad); err == nil {
		t.Fatal("bad date accepted")
	}
}

func TestDays(t *testing.T) {
	s, e, err := days("2024-01-10", "")
	if err != nil || !s.Equal(e) {
		t.Fatalf("single day = %v %v %v", s, e, err)
	}
	if _, _, err := days("2024-01-10", "soon"); err == nil {
		t.Fatal("bad end accepted")
	}
}

func TestHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	h := NewHealthHandler(db)
	e := echo.New()

	mock.ExpectPing()
	rec := httptest.NewRecorder()
	if err := h.Health(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("healthy status = %d", rec.Code)
	}

	mock.ExpectPing().WillReturnError(errors.New("gone"))
	rec = httptest.NewRecorder()
	_ = h.Health(e.NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestHandlersRequireCaller(t *testing.T) {
	eng := reservation.NewEngine(memstore.New())
	bookings, payments := NewBookingHandler(eng), NewPaymentHandler(eng)
	cases := map[string]echo.HandlerFunc{
		"mine":     bookings.Mine,
		"get":      bookings.Get,
		"landlord": bookings.LandlordList,
		"due":      payments.Due,
	}
	e := echo.New()
	for name, h := range cases {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		c.SetParamNames("id")
		c.SetParamValues("b-1")
		if err := h(c); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		var body map[string]string
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if rec.Code != http.StatusUnauthorized || body["error"] != "UNAUTHORIZED" {
			t.Errorf("%s: got %d %v", name, rec.Code, body)
		}
	}
}

func TestHealthWithoutDatabase(t *testing.T) {
	rec := httptest.NewRecorder()
	if err := NewHealthHandler(nil).Health(echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/healthz", nil), rec)); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
