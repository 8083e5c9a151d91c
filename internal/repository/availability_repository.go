package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/lot-reservation/internal/model"
)

// AvailabilityRepo maintains availability_entries, keyed by (lot_id, date).
// Each write is a single statement covering every date, and every
// statement recomputes available as booking_id IS NULL AND NOT
// manual_blocked so the flag never drifts from its inputs.
type AvailabilityRepo struct{}

// ListTx returns the stored entries of lotID between the first and last
// day of rng.  Days without a row are available.
func (AvailabilityRepo) ListTx(ctx context.Context, tx *sql.Tx, lotID string, rng model.DateRange) ([]model.AvailabilityEntry, error) {
	const q = `SELECT lot_id, date, available, booking_id, manual_blocked
               FROM availability_entries
               WHERE lot_id = ? AND date BETWEEN ? AND ?
               ORDER BY date`
	rows, err := tx.QueryContext(ctx, q, lotID, dateArg(rng.Start), dateArg(rng.End))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.AvailabilityEntry, 0)
	for rows.Next() {
		var (
			e         model.AvailabilityEntry
			bookingID sql.NullString
		)
		if err := rows.Scan(&e.LotID, &e.Date, &e.Available, &bookingID, &e.ManualBlocked); err != nil {
			return nil, err
		}
		e.Date = model.StartOfDay(e.Date)
		e.BookingID = nullString(bookingID)
		out = append(out, e)
	}
	return out, rows.Err()
}

// HoldTx upserts one row per date held by bookingID.  Holding a date the
// booking already holds rewrites the same values.
func (AvailabilityRepo) HoldTx(ctx context.Context, tx *sql.Tx, lotID, bookingID string, dates []time.Time) error {
	if len(dates) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO availability_entries (lot_id, date, available, booking_id, manual_blocked) VALUES `)
	args := make([]any, 0, len(dates)*3)
	for i, d := range dates {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, 0, ?, 0)")
		args = append(args, lotID, dateArg(d), bookingID)
	}
	sb.WriteString(` ON DUPLICATE KEY UPDATE booking_id = VALUES(booking_id), available = 0`)
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// ReleaseTx clears the hold on dates still held by bookingID.  A manual
// block on the same date keeps it unavailable.
func (AvailabilityRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, lotID, bookingID string, dates []time.Time) error {
	if len(dates) == 0 {
		return nil
	}
	q := `UPDATE availability_entries
          SET booking_id = NULL, available = NOT manual_blocked
          WHERE lot_id = ? AND booking_id = ? AND date IN (` + placeholders(len(dates)) + `)`
	args := make([]any, 0, len(dates)+2)
	args = append(args, lotID, bookingID)
	for _, d := range dates {
		args = append(args, dateArg(d))
	}
	_, err := tx.ExecContext(ctx, q, args...)
	return err
}

// SetManualBlockTx sets or clears the owner's block on every date.
// Clearing a block never frees a date an approved booking holds.
func (AvailabilityRepo) SetManualBlockTx(ctx context.Context, tx *sql.Tx, lotID string, dates []time.Time, blocked bool) error {
	if len(dates) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO availability_entries (lot_id, date, available, booking_id, manual_blocked) VALUES `)
	args := make([]any, 0, len(dates)*4)
	for i, d := range dates {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, NULL, ?)")
		args = append(args, lotID, dateArg(d), !blocked, blocked)
	}
	sb.WriteString(` ON DUPLICATE KEY UPDATE manual_blocked = VALUES(manual_blocked),
        available = (booking_id IS NULL AND VALUES(manual_blocked) = 0)`)
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return err
}

// dateArg renders a DATE column value.
func dateArg(t time.Time) string {
	return t.UTC().Format(model.DateLayout)
}
