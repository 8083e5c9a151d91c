package repository

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/iliyamo/lot-reservation/internal/model"
	"github.com/iliyamo/lot-reservation/internal/reservation"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil))), mock
}

var (
	jan10 = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jan11 = time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
)

func bookingRow(id, status string) *sqlmock.Rows {
	return sqlmock.NewRows(bookingColumns).AddRow(
		id, "lot-1", "tenant-1", jan10, model.EndOfDay(jan11), status, "PENDING",
		"20.00", jan10.AddDate(0, 0, -2), nil, nil, nil,
		nil, false, jan10, jan10,
	)
}

func TestGetLotForUpdateCommits(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT l.id, l.market_id, m.owner_id.* FROM lots l .* WHERE l.id = \? FOR UPDATE`).
		WithArgs("lot-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "market_id", "owner_id", "name", "price_per_day", "available"}).
			AddRow("lot-1", "market-1", "landlord-1", "Corner stall", "12.50", true))
	mock.ExpectCommit()

	var lot *model.Lot
	err := s.WithinTx(context.Background(), func(tx reservation.Tx) error {
		var err error
		lot, err = tx.GetLot(context.Background(), "lot-1", true)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if lot.OwnerID != "landlord-1" || !lot.PricePerDay.Equal(decimal.RequireFromString("12.5")) || !lot.Available {
		t.Fatalf("lot = %+v", lot)
	}
}

func TestGetBookingMissingMapsToNoRecord(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, lot_id, .* FROM bookings WHERE id = \?$`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(bookingColumns))
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(tx reservation.Tx) error {
		_, err := tx.GetBooking(context.Background(), "nope", false)
		return err
	})
	if !errors.Is(err, reservation.ErrNoRecord) {
		t.Fatalf("err = %v, want ErrNoRecord", err)
	}
}

func TestGetBookingScansNullableColumns(t *testing.T) {
	s, mock := newMockStore(t)
	paid := jan10.Add(3 * time.Hour)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings WHERE id = \? FOR UPDATE`).
		WithArgs("b-1").
		WillReturnRows(sqlmock.NewRows(bookingColumns).AddRow(
			"b-1", "lot-1", "tenant-1", jan10, model.EndOfDay(jan11), "APPROVED", "PAID",
			"20.00", jan10, "CARD", "proofs/x.jpg", paid,
			"late", true, jan10, jan10,
		))
	mock.ExpectCommit()

	var b *model.Booking
	err := s.WithinTx(context.Background(), func(tx reservation.Tx) error {
		var err error
		b, err = tx.GetBooking(context.Background(), "b-1", true)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != model.StatusApproved || b.PaymentStatus != model.PaymentPaid || !b.IsArchived {
		t.Fatalf("booking = %+v", b)
	}
	if *b.PaymentMethod != "CARD" || *b.PaymentProofRef != "proofs/x.jpg" || !b.PaidAt.Equal(paid) || *b.RejectionReason != "late" {
		t.Fatalf("nullable columns = %v %v %v %v", *b.PaymentMethod, *b.PaymentProofRef, b.PaidAt, *b.RejectionReason)
	}
}

func TestFindOverlappingUsesClosedIntervalPredicate(t *testing.T) {
	s, mock := newMockStore(t)
	rng, _ := model.NewDateRange(jan10, jan11, false)
	mock.ExpectBegin()
	mock.ExpectQuery(`WHERE lot_id = \? AND start_date <= \? AND end_date >= \? AND id <> \?\s+AND status IN \(\?, \?\)`).
		WithArgs("lot-1", rng.End, rng.Start, "self", "APPROVED", "PENDING").
		WillReturnRows(bookingRow("b-9", "APPROVED"))
	mock.ExpectCommit()

	var got []model.Booking
	err := s.WithinTx(context.Background(), func(tx reservation.Tx) error {
		var err error
		got, err = tx.FindOverlapping(context.Background(), "lot-1", rng,
			[]model.BookingStatus{model.StatusApproved, model.StatusPending}, "self")
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "b-9" || !got[0].PaymentAmount.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("got = %+v", got)
	}
}

func TestHoldAndReleaseAreSingleStatements(t *testing.T) {
	s, mock := newMockStore(t)
	days := []time.Time{jan10, jan11}
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO availability_entries .* VALUES \(\?, \?, 0, \?, 0\), \(\?, \?, 0, \?, 0\) ON DUPLICATE KEY UPDATE booking_id = VALUES\(booking_id\), available = 0`).
		WithArgs("lot-1", "2024-01-10", "b-1", "lot-1", "2024-01-11", "b-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE availability_entries\s+SET booking_id = NULL, available = NOT manual_blocked\s+WHERE lot_id = \? AND booking_id = \? AND date IN \(\?, \?\)`).
		WithArgs("lot-1", "b-1", "2024-01-10", "2024-01-11").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := s.WithinTx(context.Background(), func(tx reservation.Tx) error {
		if err := tx.HoldDates(context.Background(), "lot-1", "b-1", days); err != nil {
			return err
		}
		return tx.ReleaseDates(context.Background(), "lot-1", "b-1", days)
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestFailedBatchRollsBack(t *testing.T) {
	s, mock := newMockStore(t)
	boom := errors.New("connection reset")
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE bookings`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO availability_entries`).WillReturnError(boom)
	mock.ExpectRollback()

	err := s.WithinTx(context.Background(), func(tx reservation.Tx) error {
		b := &model.Booking{ID: "b-1", Status: model.StatusApproved, PaymentStatus: model.PaymentPending}
		if err := tx.UpdateBooking(context.Background(), b); err != nil {
			return err
		}
		return tx.HoldDates(context.Background(), "lot-1", "b-1", []time.Time{jan10})
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestDeadlockIsRetried(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	const q = `UPDATE bookings SET is_archived = 1, updated_at = \?\s+WHERE is_archived = 0 AND status IN \('APPROVED', 'CANCELLED'\) AND end_date < \?`

	mock.ExpectBegin()
	mock.ExpectExec(q).WithArgs(now, now).WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec(q).WithArgs(now, now).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectCommit()

	var n int64
	err := s.WithinTx(context.Background(), func(tx reservation.Tx) error {
		var err error
		n, err = tx.ArchiveEnded(context.Background(), now)
		return err
	})
	if err != nil || n != 4 {
		t.Fatalf("archived = %d, %v", n, err)
	}
}

func TestListBookingsForOwner(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM bookings b JOIN lots l ON l.id = b.lot_id JOIN markets m ON m.id = l.market_id WHERE m.owner_id = \? AND b.status IN \(\?\) AND b.is_archived = 0 ORDER BY b.created_at DESC`).
		WithArgs("landlord-1", "APPROVED").
		WillReturnRows(bookingRow("b-1", "APPROVED"))
	mock.ExpectCommit()

	err := s.WithinTx(context.Background(), func(tx reservation.Tx) error {
		got, err := tx.ListBookings(context.Background(), model.BookingFilter{
			OwnerID: "landlord-1", Statuses: []model.BookingStatus{model.StatusApproved},
		})
		if err == nil && len(got) != 1 {
			t.Errorf("got %d bookings", len(got))
		}
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"deadlock":      {&mysql.MySQLError{Number: 1213}, true},
		"lock wait":     {&mysql.MySQLError{Number: 1205}, true},
		"duplicate key": {&mysql.MySQLError{Number: 1062}, false},
		"plain":         {errors.New("x"), false},
	}
	for name, tc := range cases {
		if got := IsRetryable(tc.err); got != tc.want {
			t.Errorf("%s: IsRetryable = %v, want %v", name, got, tc.want)
		}
	}
}
