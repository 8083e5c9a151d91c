package reservation

import (
	"context"
	"time"

	"github.com/iliyamo/lot-reservation/internal/model"
)

// OverrideDates lets the lot owner block or unblock days by hand.  Blocked
// days are unavailable regardless of bookings; unblocking never frees a
// day held by an approved booking.
func (e *Engine) OverrideDates(ctx context.Context, landlordID, lotID string, start, end time.Time, blocked bool) (model.DateRange, error) {
	rng, err := model.NewDateRange(start, end, false)
	if err != nil {
		return model.DateRange{}, rangeError(err)
	}
	err = e.store.WithinTx(ctx, func(tx Tx) error {
		lot, err := lookupLot(ctx, tx, lotID, true)
		if err != nil {
			return err
		}
		if lot.OwnerID != landlordID {
			return newError(KindForbidden, "Only the market owner can change this lot's availability")
		}
		return index.Block(ctx, tx, lot.ID, rng.Days(), blocked)
	})
	if err != nil {
		return model.DateRange{}, err
	}
	e.log.Info("availability overridden", "lot_id", lotID, "from", rng.Start.Format(model.DateLayout),
		"to", rng.End.Format(model.DateLayout), "blocked", blocked)
	e.changed(ctx, lotID)
	return rng, nil
}
