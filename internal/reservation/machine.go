package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/lot-reservation/internal/identity"
	"github.com/iliyamo/lot-reservation/internal/model"
	"github.com/iliyamo/lot-reservation/internal/queue"
)

// Decision is a landlord's answer to a pending booking.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// BookingRequest carries the input of RequestBooking.
type BookingRequest struct {
	TenantID  string
	LotID     string
	StartDate time.Time
	EndDate   time.Time
	OneDay    bool
}

var index AvailabilityIndex

// RequestBooking creates a PENDING booking after re-running the conflict
// check.  The amount is the lot price times the inclusive day count and
// payment is due after the configured window.
func (e *Engine) RequestBooking(ctx context.Context, req BookingRequest) (*model.Booking, error) {
	rng, err := model.NewDateRange(req.StartDate, req.EndDate, req.OneDay)
	if err != nil {
		return nil, rangeError(err)
	}
	now := e.Now()
	var (
		booking *model.Booking
		lot     *model.Lot
	)
	err = e.store.WithinTx(ctx, func(tx Tx) error {
		lot, err = lookupLot(ctx, tx, req.LotID, false)
		if err != nil {
			return err
		}
		if !lot.Available {
			return newError(KindForbidden, "Lot is not available for booking")
		}
		avail, err := checkRange(ctx, tx, lot, rng, "")
		if err != nil {
			return err
		}
		if !avail.Available {
			return newError(KindConflict, avail.Reason)
		}
		booking = &model.Booking{
			ID:             e.newID(),
			LotID:          lot.ID,
			TenantID:       req.TenantID,
			StartDate:      rng.Start,
			EndDate:        rng.End,
			Status:         model.StatusPending,
			PaymentStatus:  model.PaymentPending,
			PaymentAmount:  lot.PricePerDay.Mul(decimal.NewFromInt(int64(rng.DayCount()))),
			PaymentDueDate: now.Add(e.paymentWindow),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return tx.InsertBooking(ctx, booking)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("booking requested", "booking_id", booking.ID, "lot_id", lot.ID, "tenant_id", req.TenantID)
	e.changed(ctx, lot.ID)

	tenant := e.displayName(ctx, req.TenantID, "A tenant")
	e.notify(queue.Notification{
		UserID: lot.OwnerID,
		Title:  "New booking request",
		Body:   fmt.Sprintf("%s requested %s for %s.", tenant, lotName(lot), periodText(booking)),
		Data:   bookingData(booking, "BOOKING_REQUESTED"),
	})
	return booking, nil
}

// Decide approves or rejects a pending booking on behalf of the lot's
// market owner.  Approval re-validates exclusivity and reserves every day
// of the range in the same transaction.
func (e *Engine) Decide(ctx context.Context, bookingID string, d Decision, landlordID, reason string) (*model.Booking, error) {
	if d != DecisionApprove && d != DecisionReject {
		return nil, newError(KindInvalidTransition, "Decision must be APPROVE or REJECT")
	}
	now := e.Now()
	var b *model.Booking
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		b, err = lookupBooking(ctx, tx, bookingID, true)
		if err != nil {
			return err
		}
		lot, err := lookupLot(ctx, tx, b.LotID, d == DecisionApprove)
		if err != nil {
			return err
		}
		if lot.OwnerID != landlordID {
			return newError(KindForbidden, "Only the market owner can approve or reject this booking")
		}
		if b.Status != model.StatusPending {
			return newError(KindInvalidTransition, "Only pending bookings can be approved or rejected")
		}
		if d == DecisionApprove {
			if e.requirePayment {
				return newError(KindInvalidTransition, "Bookings are approved by verifying their payment")
			}
			if err := approveTx(ctx, tx, b); err != nil {
				return err
			}
		} else {
			b.Status = model.StatusRejected
			b.RejectionReason = optional(reason)
			// Nothing is held for a pending booking; kept so a reject
			// after any provisional hold still leaves the index clean.
			if err := index.Release(ctx, tx, b.LotID, b.ID, b.Range().Days()); err != nil {
				return err
			}
		}
		b.UpdatedAt = now
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("booking decided", "booking_id", b.ID, "status", b.Status, "landlord_id", landlordID)
	e.changed(ctx, b.LotID)

	title, body := "Booking approved", fmt.Sprintf("Your booking for %s has been approved.", periodText(b))
	if b.Status == model.StatusRejected {
		title, body = "Booking rejected", fmt.Sprintf("Your booking for %s has been rejected.", periodText(b))
		if reason != "" {
			body += " Reason: " + reason
		}
	}
	e.notify(queue.Notification{UserID: b.TenantID, Title: title, Body: body, Data: bookingData(b, "BOOKING_DECIDED")})
	return b, nil
}

// approveTx re-checks that no other approved booking or owner block covers
// b's range, holds every day for b and moves it to APPROVED.  The caller
// persists b.
func approveTx(ctx context.Context, tx Tx, b *model.Booking) error {
	rng := b.Range()
	reason, err := hardConflict(ctx, tx, b.LotID, rng, b.ID)
	if err != nil {
		return err
	}
	if reason != "" {
		return newError(KindConflict, reason)
	}
	if err := index.Reserve(ctx, tx, b.LotID, b.ID, rng.Days()); err != nil {
		return err
	}
	b.Status = model.StatusApproved
	return nil
}

// Cancel moves a pending or approved booking to CANCELLED.  The tenant who
// made it and the owner of the lot's market may cancel; days held by an
// approved booking are released in the same transaction.
func (e *Engine) Cancel(ctx context.Context, bookingID, actorID string, role identity.Role, reason string) (*model.Booking, error) {
	now := e.Now()
	var (
		b   *model.Booking
		lot *model.Lot
	)
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		b, err = lookupBooking(ctx, tx, bookingID, true)
		if err != nil {
			return err
		}
		lot, err = lookupLot(ctx, tx, b.LotID, false)
		if err != nil {
			return err
		}
		allowed := (role == identity.RoleTenant && b.TenantID == actorID) ||
			(role == identity.RoleLandlord && lot.OwnerID == actorID)
		if !allowed {
			return newError(KindForbidden, "You are not allowed to cancel this booking")
		}
		if !b.Status.Open() {
			return newError(KindInvalidTransition, "Only pending or approved bookings can be cancelled")
		}
		wasApproved := b.Status == model.StatusApproved
		b.Status = model.StatusCancelled
		b.RejectionReason = optional(reason)
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		if wasApproved {
			return index.Release(ctx, tx, b.LotID, b.ID, b.Range().Days())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log.Info("booking cancelled", "booking_id", b.ID, "actor_id", actorID, "role", role)
	e.changed(ctx, b.LotID)

	n := queue.Notification{Title: "Booking cancelled", Data: bookingData(b, "BOOKING_CANCELLED")}
	if role == identity.RoleTenant {
		n.UserID = lot.OwnerID
		n.Body = fmt.Sprintf("%s cancelled the booking of %s for %s.",
			e.displayName(ctx, actorID, "The tenant"), lotName(lot), periodText(b))
	} else {
		n.UserID = b.TenantID
		n.Body = fmt.Sprintf("Your booking of %s for %s was cancelled by the landlord.", lotName(lot), periodText(b))
	}
	if reason != "" {
		n.Body += " Reason: " + reason
	}
	e.notify(n)
	return b, nil
}

// Archive toggles the archived flag.  Only the lot owner may do it and
// pending bookings cannot be archived.
func (e *Engine) Archive(ctx context.Context, bookingID, landlordID string, archived bool) (*model.Booking, error) {
	now := e.Now()
	var b *model.Booking
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		b, err = lookupBooking(ctx, tx, bookingID, true)
		if err != nil {
			return err
		}
		lot, err := lookupLot(ctx, tx, b.LotID, false)
		if err != nil {
			return err
		}
		if lot.OwnerID != landlordID {
			return newError(KindForbidden, "Only the market owner can archive this booking")
		}
		if b.Status == model.StatusPending {
			return newError(KindInvalidTransition, "Pending bookings cannot be archived")
		}
		b.IsArchived = archived
		b.UpdatedAt = now
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBooking returns a booking visible to its tenant, the lot owner or an
// admin.
func (e *Engine) GetBooking(ctx context.Context, bookingID string, who identity.Identity) (*model.Booking, error) {
	var b *model.Booking
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		b, err = lookupBooking(ctx, tx, bookingID, false)
		if err != nil {
			return err
		}
		if who.Role == identity.RoleAdmin || b.TenantID == who.UserID {
			return nil
		}
		lot, err := lookupLot(ctx, tx, b.LotID, false)
		if err != nil {
			return err
		}
		if lot.OwnerID != who.UserID {
			return newError(KindForbidden, "You are not allowed to view this booking")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// TenantBookings lists the tenant's bookings, newest first.
func (e *Engine) TenantBookings(ctx context.Context, tenantID string, includeArchived bool) ([]model.Booking, error) {
	return e.list(ctx, model.BookingFilter{TenantID: tenantID, IncludeArchived: includeArchived})
}

// LandlordBookings lists bookings on lots of markets owned by landlordID,
// optionally narrowed to some statuses.
func (e *Engine) LandlordBookings(ctx context.Context, landlordID string, statuses []model.BookingStatus, includeArchived bool) ([]model.Booking, error) {
	return e.list(ctx, model.BookingFilter{OwnerID: landlordID, Statuses: statuses, IncludeArchived: includeArchived})
}

func (e *Engine) list(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	var out []model.Booking
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		out, err = tx.ListBookings(ctx, f)
		return err
	})
	return out, err
}

func lookupLot(ctx context.Context, tx Tx, id string, forUpdate bool) (*model.Lot, error) {
	lot, err := tx.GetLot(ctx, id, forUpdate)
	if errors.Is(err, ErrNoRecord) {
		return nil, newError(KindNotFound, "Lot not found")
	}
	return lot, err
}

func lookupBooking(ctx context.Context, tx Tx, id string, forUpdate bool) (*model.Booking, error) {
	b, err := tx.GetBooking(ctx, id, forUpdate)
	if errors.Is(err, ErrNoRecord) {
		return nil, newError(KindNotFound, "Booking not found")
	}
	return b, err
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func lotName(l *model.Lot) string {
	if l.Name != "" {
		return l.Name
	}
	return "lot " + l.ID
}
