package reservation

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/iliyamo/lot-reservation/internal/model"
	"github.com/iliyamo/lot-reservation/internal/queue"
)

const reasonPaymentExpired = "Payment not received in time"

// PaymentSubmission carries the tenant's payment proof.
type PaymentSubmission struct {
	TenantID  string
	BookingID string
	Method    string
	ProofName string
	Proof     io.Reader
}

// SubmitPayment stores the proof and moves the payment to PAID.  The
// booking is validated before the upload and again, under a row lock,
// before the write, so a proof is never attached to a booking that
// changed state in between.
func (e *Engine) SubmitPayment(ctx context.Context, in PaymentSubmission) (*model.Booking, error) {
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		b, err := lookupBooking(ctx, tx, in.BookingID, false)
		if err != nil {
			return err
		}
		return e.payable(b, in.TenantID)
	})
	if err != nil {
		return nil, err
	}
	if e.proofs == nil {
		return nil, newError(KindDependencyUnavailable, "Proof storage is not configured")
	}
	ref, err := e.proofs.Save(ctx, in.ProofName, in.Proof)
	if err != nil {
		e.log.Error("proof upload failed", "booking_id", in.BookingID, "err", err)
		return nil, wrapError(KindDependencyUnavailable, "Could not store the payment proof", err)
	}

	now := e.Now()
	var (
		b   *model.Booking
		lot *model.Lot
	)
	err = e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		b, err = lookupBooking(ctx, tx, in.BookingID, true)
		if err != nil {
			return err
		}
		if err := e.payable(b, in.TenantID); err != nil {
			return err
		}
		lot, err = lookupLot(ctx, tx, b.LotID, false)
		if err != nil {
			return err
		}
		b.PaymentStatus = model.PaymentPaid
		b.PaymentMethod = optional(in.Method)
		b.PaymentProofRef = &ref
		b.PaidAt = &now
		b.UpdatedAt = now
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		e.log.Warn("payment proof stored but not attached", "booking_id", in.BookingID, "proof_ref", ref, "err", err)
		return nil, err
	}
	e.log.Info("payment submitted", "booking_id", b.ID, "tenant_id", in.TenantID)

	e.notify(queue.Notification{
		UserID: lot.OwnerID,
		Title:  "Payment submitted",
		Body: fmt.Sprintf("%s submitted a payment of %s for %s (%s).",
			e.displayName(ctx, in.TenantID, "A tenant"), b.PaymentAmount.StringFixed(2), lotName(lot), periodText(b)),
		Data: bookingData(b, "PAYMENT_SUBMITTED"),
	})
	return b, nil
}

// payable checks that tenantID may submit a payment for b right now.
func (e *Engine) payable(b *model.Booking, tenantID string) error {
	if b.TenantID != tenantID {
		return newError(KindForbidden, "Only the tenant who made the booking can pay for it")
	}
	if !b.Status.Open() {
		return newError(KindInvalidTransition, "Booking is no longer active")
	}
	switch b.PaymentStatus {
	case model.PaymentPaid, model.PaymentVerified:
		return newError(KindConflict, "Payment has already been submitted")
	case model.PaymentExpired:
		return newError(KindInvalidTransition, "Payment window has expired")
	case model.PaymentRejected:
		return newError(KindInvalidTransition, "Payment was rejected")
	}
	if e.Now().After(b.PaymentDueDate) {
		return newError(KindInvalidTransition, "Payment window has expired")
	}
	return nil
}

// VerifyPayment records the landlord's verdict on a submitted payment.  A
// verified payment approves a still pending booking through the same path
// as Decide, in the same transaction; a rejected payment leaves the
// booking status for the landlord to handle.
func (e *Engine) VerifyPayment(ctx context.Context, landlordID, bookingID string, verified bool, reason string) (*model.Booking, error) {
	now := e.Now()
	var b *model.Booking
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		b, err = lookupBooking(ctx, tx, bookingID, true)
		if err != nil {
			return err
		}
		lot, err := lookupLot(ctx, tx, b.LotID, verified)
		if err != nil {
			return err
		}
		if lot.OwnerID != landlordID {
			return newError(KindForbidden, "Only the market owner can verify this payment")
		}
		if !b.Status.Open() {
			return newError(KindInvalidTransition, "Booking is no longer active")
		}
		if b.PaymentStatus != model.PaymentPaid {
			return newError(KindInvalidTransition, "Only submitted payments can be verified or rejected")
		}
		if verified {
			if b.Status == model.StatusPending {
				if err := approveTx(ctx, tx, b); err != nil {
					return err
				}
			}
			b.PaymentStatus = model.PaymentVerified
		} else {
			b.PaymentStatus = model.PaymentRejected
			b.RejectionReason = optional(reason)
		}
		b.UpdatedAt = now
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("payment reviewed", "booking_id", b.ID, "payment_status", b.PaymentStatus, "status", b.Status)
	e.changed(ctx, b.LotID)

	n := queue.Notification{UserID: b.TenantID, Data: bookingData(b, "PAYMENT_REVIEWED")}
	if verified {
		n.Title = "Payment verified"
		n.Body = fmt.Sprintf("Your payment for %s has been verified. Your booking is confirmed.", periodText(b))
	} else {
		n.Title = "Payment rejected"
		n.Body = fmt.Sprintf("Your payment for %s was rejected.", periodText(b))
		if reason != "" {
			n.Body += " Reason: " + reason
		}
	}
	e.notify(n)
	return b, nil
}

// PaymentsDue lists the tenant's open bookings whose payment is still
// pending, earliest due date first.
func (e *Engine) PaymentsDue(ctx context.Context, tenantID string) ([]model.Booking, error) {
	return e.list(ctx, model.BookingFilter{
		TenantID:        tenantID,
		Statuses:        []model.BookingStatus{model.StatusPending, model.StatusApproved},
		PaymentStatuses: []model.PaymentStatus{model.PaymentPending},
		IncludeArchived: true,
		OrderByDueDate:  true,
	})
}

// SweepExpired cancels every open booking whose payment is still pending
// after its due date.  All rows are processed in one transaction; days
// held by approved ones are released with them.  It returns the number of
// bookings expired.
func (e *Engine) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	var expired []model.Booking
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		list, err := tx.ListExpiredPayments(ctx, now)
		if err != nil {
			return err
		}
		expired = expired[:0]
		for i := range list {
			b := list[i]
			wasApproved := b.Status == model.StatusApproved
			b.PaymentStatus = model.PaymentExpired
			b.Status = model.StatusCancelled
			b.RejectionReason = optional(reasonPaymentExpired)
			b.UpdatedAt = now
			if err := tx.UpdateBooking(ctx, &b); err != nil {
				return err
			}
			if wasApproved {
				if err := index.Release(ctx, tx, b.LotID, b.ID, b.Range().Days()); err != nil {
					return err
				}
			}
			expired = append(expired, b)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	seen := map[string]bool{}
	for i := range expired {
		b := &expired[i]
		if !seen[b.LotID] {
			seen[b.LotID] = true
			e.changed(ctx, b.LotID)
		}
		e.notify(queue.Notification{
			UserID: b.TenantID,
			Title:  "Booking expired",
			Body:   fmt.Sprintf("Your booking for %s was cancelled because payment was not received in time.", periodText(b)),
			Data:   bookingData(b, "PAYMENT_EXPIRED"),
		})
	}
	return len(expired), nil
}
