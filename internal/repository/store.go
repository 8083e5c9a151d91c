package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/iliyamo/lot-reservation/internal/model"
	"github.com/iliyamo/lot-reservation/internal/reservation"
)

// maxTxAttempts bounds how often a transaction is replayed after InnoDB
// picked it as a deadlock victim.
const maxTxAttempts = 3

// Store implements reservation.Store on MySQL.  Transactions run at READ
// COMMITTED so that, once the lot row lock is granted, the approval
// re-check sees every booking committed before it.
type Store struct {
	db       *sql.DB
	log      *slog.Logger
	lots     LotRepo
	bookings BookingRepo
	entries  AvailabilityRepo
}

// NewStore returns a Store over db.
func NewStore(db *sql.DB, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{db: db, log: log}
}

// DB exposes the pool for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// WithinTx runs fn in a transaction, committing when it returns nil.
// Deadlocks and lock wait timeouts replay fn from the start.
func (s *Store) WithinTx(ctx context.Context, fn func(tx reservation.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		s.log.Warn("transaction aborted by lock conflict, retrying", "attempt", attempt, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*20) * time.Millisecond):
		}
	}
	return err
}

func (s *Store) runTx(ctx context.Context, fn func(tx reservation.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlTx{tx: tx, s: s}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// sqlTx adapts the repositories to reservation.Tx for one *sql.Tx.
type sqlTx struct {
	tx *sql.Tx
	s  *Store
}

func (t *sqlTx) GetLot(ctx context.Context, id string, forUpdate bool) (*model.Lot, error) {
	return t.s.lots.GetTx(ctx, t.tx, id, forUpdate)
}

func (t *sqlTx) GetBooking(ctx context.Context, id string, forUpdate bool) (*model.Booking, error) {
	return t.s.bookings.GetTx(ctx, t.tx, id, forUpdate)
}

func (t *sqlTx) FindOverlapping(ctx context.Context, lotID string, rng model.DateRange, statuses []model.BookingStatus, excludeID string) ([]model.Booking, error) {
	return t.s.bookings.FindOverlappingTx(ctx, t.tx, lotID, rng, statuses, excludeID)
}

func (t *sqlTx) ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error) {
	return t.s.bookings.ListTx(ctx, t.tx, f)
}

func (t *sqlTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	return t.s.bookings.InsertTx(ctx, t.tx, b)
}

func (t *sqlTx) UpdateBooking(ctx context.Context, b *model.Booking) error {
	return t.s.bookings.UpdateTx(ctx, t.tx, b)
}

func (t *sqlTx) ListEntries(ctx context.Context, lotID string, rng model.DateRange) ([]model.AvailabilityEntry, error) {
	return t.s.entries.ListTx(ctx, t.tx, lotID, rng)
}

func (t *sqlTx) HoldDates(ctx context.Context, lotID, bookingID string, dates []time.Time) error {
	return t.s.entries.HoldTx(ctx, t.tx, lotID, bookingID, dates)
}

func (t *sqlTx) ReleaseDates(ctx context.Context, lotID, bookingID string, dates []time.Time) error {
	return t.s.entries.ReleaseTx(ctx, t.tx, lotID, bookingID, dates)
}

func (t *sqlTx) SetManualBlock(ctx context.Context, lotID string, dates []time.Time, blocked bool) error {
	return t.s.entries.SetManualBlockTx(ctx, t.tx, lotID, dates, blocked)
}

func (t *sqlTx) ListExpiredPayments(ctx context.Context, now time.Time) ([]model.Booking, error) {
	return t.s.bookings.ListExpiredPaymentsTx(ctx, t.tx, now)
}

func (t *sqlTx) ArchiveEnded(ctx context.Context, now time.Time) (int64, error) {
	return t.s.bookings.ArchiveEndedTx(ctx, t.tx, now)
}
