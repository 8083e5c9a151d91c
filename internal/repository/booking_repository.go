package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/lot-reservation/internal/model"
)

// BookingRepo provides transactional access to the bookings table.  All
// timestamps are stored in UTC; start_date is midnight of the first day
// and end_date the last second of the last day.
type BookingRepo struct{}

var bookingColumns = []string{
	"id", "lot_id", "tenant_id", "start_date", "end_date", "status", "payment_status",
	"payment_amount", "payment_due_date", "payment_method", "payment_proof_ref", "paid_at",
	"rejection_reason", "is_archived", "created_at", "updated_at",
}

// columns renders the booking column list, qualified with alias when set.
func columns(alias string) string {
	if alias == "" {
		return strings.Join(bookingColumns, ", ")
	}
	out := make([]string, len(bookingColumns))
	for i, c := range bookingColumns {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(s rowScanner) (*model.Booking, error) {
	var (
		b                     model.Booking
		method, proof, reason sql.NullString
		paidAt                sql.NullTime
		status, paymentStatus string
	)
	if err := s.Scan(
		&b.ID, &b.LotID, &b.TenantID, &b.StartDate, &b.EndDate, &status, &paymentStatus,
		&b.PaymentAmount, &b.PaymentDueDate, &method, &proof, &paidAt,
		&reason, &b.IsArchived, &b.CreatedAt, &b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	b.Status = model.BookingStatus(status)
	b.PaymentStatus = model.PaymentStatus(paymentStatus)
	b.PaymentMethod = nullString(method)
	b.PaymentProofRef = nullString(proof)
	b.RejectionReason = nullString(reason)
	if paidAt.Valid {
		t := paidAt.Time.UTC()
		b.PaidAt = &t
	}
	b.StartDate = b.StartDate.UTC()
	b.EndDate = b.EndDate.UTC()
	b.PaymentDueDate = b.PaymentDueDate.UTC()
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]model.Booking, error) {
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// GetTx loads one booking, optionally locking its row.
func (BookingRepo) GetTx(ctx context.Context, tx *sql.Tx, id string, forUpdate bool) (*model.Booking, error) {
	q := `SELECT ` + columns("") + ` FROM bookings WHERE id = ?`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	b, err := scanBooking(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		return nil, noRecord(err)
	}
	return b, nil
}

// InsertTx stores a new booking.  The ID is generated by the caller.
func (BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	q := `INSERT INTO bookings (` + columns("") + `) VALUES (` + placeholders(len(bookingColumns)) + `)`
	_, err := tx.ExecContext(ctx, q,
		b.ID, b.LotID, b.TenantID, b.StartDate, b.EndDate, string(b.Status), string(b.PaymentStatus),
		b.PaymentAmount, b.PaymentDueDate, b.PaymentMethod, b.PaymentProofRef, b.PaidAt,
		b.RejectionReason, b.IsArchived, b.CreatedAt, b.UpdatedAt,
	)
	return err
}

// UpdateTx writes every mutable column of b.
func (BookingRepo) UpdateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `UPDATE bookings
               SET status = ?, payment_status = ?, payment_method = ?, payment_proof_ref = ?,
                   paid_at = ?, rejection_reason = ?, is_archived = ?, updated_at = ?
               WHERE id = ?`
	_, err := tx.ExecContext(ctx, q,
		string(b.Status), string(b.PaymentStatus), b.PaymentMethod, b.PaymentProofRef,
		b.PaidAt, b.RejectionReason, b.IsArchived, b.UpdatedAt, b.ID,
	)
	return err
}

// FindOverlappingTx returns bookings on lotID in one of statuses whose
// closed range intersects rng: start_date <= rng.End AND end_date >= rng.Start.
func (BookingRepo) FindOverlappingTx(ctx context.Context, tx *sql.Tx, lotID string, rng model.DateRange, statuses []model.BookingStatus, excludeID string) ([]model.Booking, error) {
	if len(statuses) == 0 {
		return []model.Booking{}, nil
	}
	q := `SELECT ` + columns("") + ` FROM bookings
          WHERE lot_id = ? AND start_date <= ? AND end_date >= ? AND id <> ?
            AND status IN (` + placeholders(len(statuses)) + `)
          ORDER BY start_date`
	args := []any{lotID, rng.End, rng.Start, excludeID}
	for _, s := range statuses {
		args = append(args, string(s))
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

// ListTx returns bookings matching f.  Owner filtering joins through the
// lot's market.
func (BookingRepo) ListTx(ctx context.Context, tx *sql.Tx, f model.BookingFilter) ([]model.Booking, error) {
	var (
		where []string
		args  []any
	)
	if f.TenantID != "" {
		where = append(where, "b.tenant_id = ?")
		args = append(args, f.TenantID)
	}
	if f.LotID != "" {
		where = append(where, "b.lot_id = ?")
		args = append(args, f.LotID)
	}
	if f.OwnerID != "" {
		where = append(where, "m.owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if len(f.Statuses) > 0 {
		where = append(where, "b.status IN ("+placeholders(len(f.Statuses))+")")
		for _, s := range f.Statuses {
			args = append(args, string(s))
		}
	}
	if len(f.PaymentStatuses) > 0 {
		where = append(where, "b.payment_status IN ("+placeholders(len(f.PaymentStatuses))+")")
		for _, s := range f.PaymentStatuses {
			args = append(args, string(s))
		}
	}
	if !f.IncludeArchived {
		where = append(where, "b.is_archived = 0")
	}

	q := `SELECT ` + columns("b") + ` FROM bookings b`
	if f.OwnerID != "" {
		q += ` JOIN lots l ON l.id = b.lot_id JOIN markets m ON m.id = l.market_id`
	}
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	if f.OrderByDueDate {
		q += ` ORDER BY b.payment_due_date ASC`
	} else {
		q += ` ORDER BY b.created_at DESC`
	}
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

// ListExpiredPaymentsTx locks and returns open bookings whose payment is
// still PENDING after the due date.
func (BookingRepo) ListExpiredPaymentsTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]model.Booking, error) {
	q := `SELECT ` + columns("") + ` FROM bookings
          WHERE payment_status = 'PENDING' AND payment_due_date < ?
            AND status IN ('PENDING', 'APPROVED')
          ORDER BY payment_due_date
          FOR UPDATE`
	rows, err := tx.QueryContext(ctx, q, now)
	if err != nil {
		return nil, err
	}
	return scanBookings(rows)
}

// ArchiveEndedTx archives APPROVED and CANCELLED bookings whose last day
// ended before now, in one statement.
func (BookingRepo) ArchiveEndedTx(ctx context.Context, tx *sql.Tx, now time.Time) (int64, error) {
	const q = `UPDATE bookings SET is_archived = 1, updated_at = ?
               WHERE is_archived = 0 AND status IN ('APPROVED', 'CANCELLED') AND end_date < ?`
	res, err := tx.ExecContext(ctx, q, now, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
