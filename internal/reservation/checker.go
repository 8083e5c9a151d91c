package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/lot-reservation/internal/model"
)

// User-facing reasons shared by the checker and the approval re-check.
const (
	reasonLotUnavailable = "Lot is not available"
	reasonAlreadyBooked  = "Lot is already booked for the selected period"
	reasonOwnerBlocked   = "Lot is blocked by the owner for the selected period"
	reasonPendingExists  = "pending bookings exist"
)

// Availability is the answer of CheckAvailability.
type Availability struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

// CheckAvailability reports whether lotID can be requested for the given
// days.  It never writes.  An inverted range or an unknown lot fails with
// InvalidRange; every other negative answer is Available=false with a
// reason.
func (e *Engine) CheckAvailability(ctx context.Context, lotID string, start, end time.Time, oneDay bool) (Availability, error) {
	rng, err := model.NewDateRange(start, end, oneDay)
	if err != nil {
		return Availability{}, rangeError(err)
	}
	var out Availability
	err = e.store.WithinTx(ctx, func(tx Tx) error {
		lot, err := tx.GetLot(ctx, lotID, false)
		if errors.Is(err, ErrNoRecord) {
			return newError(KindInvalidRange, "Lot not found")
		}
		if err != nil {
			return err
		}
		out, err = checkRange(ctx, tx, lot, rng, "")
		return err
	})
	return out, err
}

// checkRange evaluates rng against lot's global flag, approved bookings,
// held or blocked entries and finally pending bookings, in that order.
func checkRange(ctx context.Context, tx Tx, lot *model.Lot, rng model.DateRange, excludeID string) (Availability, error) {
	if !lot.Available {
		return Availability{Reason: reasonLotUnavailable}, nil
	}
	if reason, err := hardConflict(ctx, tx, lot.ID, rng, excludeID); err != nil || reason != "" {
		return Availability{Reason: reason}, err
	}
	pending, err := tx.FindOverlapping(ctx, lot.ID, rng, []model.BookingStatus{model.StatusPending}, excludeID)
	if err != nil {
		return Availability{}, err
	}
	if len(pending) > 0 {
		return Availability{Reason: reasonPendingExists}, nil
	}
	return Availability{Available: true}, nil
}

// hardConflict returns a non-empty reason when an approved booking other
// than excludeID, or an owner block, covers any day of rng.
func hardConflict(ctx context.Context, tx Tx, lotID string, rng model.DateRange, excludeID string) (string, error) {
	approved, err := tx.FindOverlapping(ctx, lotID, rng, []model.BookingStatus{model.StatusApproved}, excludeID)
	if err != nil {
		return "", err
	}
	if len(approved) > 0 {
		return reasonAlreadyBooked, nil
	}
	entries, err := tx.ListEntries(ctx, lotID, rng)
	if err != nil {
		return "", err
	}
	for _, en := range entries {
		if en.ManualBlocked {
			return reasonOwnerBlocked, nil
		}
		if en.BookingID != nil && *en.BookingID != excludeID {
			return reasonAlreadyBooked, nil
		}
	}
	return "", nil
}
