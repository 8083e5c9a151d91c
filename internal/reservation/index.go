package reservation

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/iliyamo/lot-reservation/internal/model"
)

// AvailabilityIndex writes the per-date availability entries.  Each call
// is one batch statement inside the caller's transaction, so a decision
// either flips every date of its range or none.  Reserve and Release are
// idempotent.
type AvailabilityIndex struct{}

// Reserve marks dates as held by bookingID.
func (AvailabilityIndex) Reserve(ctx context.Context, tx Tx, lotID, bookingID string, dates []time.Time) error {
	if len(dates) == 0 {
		return nil
	}
	return tx.HoldDates(ctx, lotID, bookingID, dates)
}

// Release frees dates held by bookingID.  Dates held by another booking
// or never held are left untouched, and a manual block survives.
func (AvailabilityIndex) Release(ctx context.Context, tx Tx, lotID, bookingID string, dates []time.Time) error {
	if len(dates) == 0 {
		return nil
	}
	return tx.ReleaseDates(ctx, lotID, bookingID, dates)
}

// Block sets or clears the owner's manual block on dates.
func (AvailabilityIndex) Block(ctx context.Context, tx Tx, lotID string, dates []time.Time, blocked bool) error {
	if len(dates) == 0 {
		return nil
	}
	return tx.SetManualBlock(ctx, lotID, dates, blocked)
}

// MonthAvailability lists the unavailable and pending days of one month.
type MonthAvailability struct {
	LotID        string   `json:"lot_id"`
	Year         int      `json:"year"`
	Month        int      `json:"month"`
	BookedDates  []string `json:"booked_dates"`
	PendingDates []string `json:"pending_dates"`
}

// QueryMonth merges approved bookings, stored entries and pending bookings
// for the given month.  Ranges crossing the month boundary contribute only
// their in-month days.  A day can appear in both lists when a pending
// request overlaps an approved or blocked day.
func (e *Engine) QueryMonth(ctx context.Context, lotID string, month, year int) (MonthAvailability, error) {
	if month < 1 || month > 12 || year < 1 {
		return MonthAvailability{}, newError(KindInvalidRange, "Month must be between 1 and 12")
	}
	window := model.MonthRange(year, time.Month(month))
	out := MonthAvailability{LotID: lotID, Year: year, Month: month}

	err := e.store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.GetLot(ctx, lotID, false); err != nil {
			if errors.Is(err, ErrNoRecord) {
				return newError(KindNotFound, "Lot not found")
			}
			return err
		}
		bookings, err := tx.FindOverlapping(ctx, lotID, window,
			[]model.BookingStatus{model.StatusApproved, model.StatusPending}, "")
		if err != nil {
			return err
		}
		entries, err := tx.ListEntries(ctx, lotID, window)
		if err != nil {
			return err
		}

		booked := map[time.Time]struct{}{}
		pending := map[time.Time]struct{}{}
		for i := range bookings {
			clipped, ok := bookings[i].Range().Clip(window)
			if !ok {
				continue
			}
			set := pending
			if bookings[i].Status == model.StatusApproved {
				set = booked
			}
			for _, d := range clipped.Days() {
				set[d] = struct{}{}
			}
		}
		for _, en := range entries {
			if !en.Available {
				booked[model.StartOfDay(en.Date)] = struct{}{}
			}
		}
		out.BookedDates = sortedDays(booked)
		out.PendingDates = sortedDays(pending)
		return nil
	})
	return out, err
}

func sortedDays(set map[time.Time]struct{}) []string {
	days := make([]time.Time, 0, len(set))
	for d := range set {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return model.FormatDays(days)
}
