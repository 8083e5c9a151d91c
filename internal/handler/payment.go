package handler

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lot-reservation/internal/middleware"
	"github.com/iliyamo/lot-reservation/internal/reservation"
)

// MaxProofBytes bounds the uploaded payment proof.
const MaxProofBytes = 10 << 20

var proofTypes = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".pdf": true}

// PaymentHandler covers proof submission, verification and due listings.
type PaymentHandler struct {
	Engine *reservation.Engine
}

// NewPaymentHandler returns the handler for proof uploads, verification and
// the due list.  It panics when e is nil.
func NewPaymentHandler(e *reservation.Engine) *PaymentHandler {
	if e == nil {
		panic("nil engine passed to NewPaymentHandler")
	}
	return &PaymentHandler{Engine: e}
}

// Submit handles POST /v1/bookings/:id/payment as multipart form data with
// a payment_method field and a proof file.
func (h *PaymentHandler) Submit(c echo.Context) error {
	method := strings.TrimSpace(c.FormValue("payment_method"))
	if method == "" || len(method) > 64 {
		return badRequest(c, "VALIDATION_FAILED", "payment_method is required")
	}
	fh, err := c.FormFile("proof")
	if err != nil {
		return badRequest(c, "VALIDATION_FAILED", "proof file is required")
	}
	if fh.Size > MaxProofBytes {
		return badRequest(c, "VALIDATION_FAILED", "proof file is too large")
	}
	if !proofTypes[strings.ToLower(filepath.Ext(fh.Filename))] {
		return badRequest(c, "VALIDATION_FAILED", "proof must be a jpg, png or pdf file")
	}
	f, err := fh.Open()
	if err != nil {
		return fail(c, err)
	}
	defer f.Close()

	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	b, err := h.Engine.SubmitPayment(c.Request().Context(), reservation.PaymentSubmission{
		TenantID:  who.UserID,
		BookingID: c.Param("id"),
		Method:    method,
		ProofName: fh.Filename,
		Proof:     f,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

type verifyRequest struct {
	Verified *bool  `json:"verified" validate:"required"`
	Reason   string `json:"reason" validate:"max=1024"`
}

// Verify handles POST /v1/landlord/bookings/:id/payment/verify.
func (h *PaymentHandler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := bindAndValidate(c, &req); err != nil {
		return fail(c, err)
	}
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	b, err := h.Engine.VerifyPayment(c.Request().Context(), who.UserID, c.Param("id"), *req.Verified, req.Reason)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, b)
}

// Due handles GET /v1/payments/due for the calling tenant.
func (h *PaymentHandler) Due(c echo.Context) error {
	who, ok := middleware.CurrentIdentity(c)
	if !ok {
		return unauthorized(c)
	}
	list, err := h.Engine.PaymentsDue(c.Request().Context(), who.UserID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"bookings": nonNil(list)})
}
