package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/lot-reservation/internal/model"
)

// ErrNoRecord is returned by stores when a lot or booking row is missing.
var ErrNoRecord = errors.New("no record")

// Store opens transactions.  WithinTx runs fn inside one transaction and
// commits only when fn returns nil; any error rolls back every write fn
// made.  Implementations may retry fn on transient lock failures, so fn
// must not have side effects outside the Tx.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes the engine performs inside one
// transaction.
type Tx interface {
	// GetLot loads a lot together with its market owner.  forUpdate takes
	// a row lock so concurrent approvals on the same lot serialize.
	GetLot(ctx context.Context, lotID string, forUpdate bool) (*model.Lot, error)
	GetBooking(ctx context.Context, bookingID string, forUpdate bool) (*model.Booking, error)

	// FindOverlapping returns bookings on lotID whose range overlaps rng and
	// whose status is in statuses.  excludeID, when set, is skipped.
	FindOverlapping(ctx context.Context, lotID string, rng model.DateRange, statuses []model.BookingStatus, excludeID string) ([]model.Booking, error)
	ListBookings(ctx context.Context, f model.BookingFilter) ([]model.Booking, error)
	InsertBooking(ctx context.Context, b *model.Booking) error
	UpdateBooking(ctx context.Context, b *model.Booking) error

	// ListEntries returns stored availability entries for lotID within rng.
	ListEntries(ctx context.Context, lotID string, rng model.DateRange) ([]model.AvailabilityEntry, error)
	// HoldDates marks every date as held by bookingID in one statement.
	HoldDates(ctx context.Context, lotID, bookingID string, dates []time.Time) error
	// ReleaseDates clears the hold on dates still held by bookingID.
	ReleaseDates(ctx context.Context, lotID, bookingID string, dates []time.Time) error
	// SetManualBlock sets or clears the owner's block on every date.
	SetManualBlock(ctx context.Context, lotID string, dates []time.Time, blocked bool) error

	// ListExpiredPayments returns open bookings whose payment is still
	// PENDING and whose due date is before now.  Rows are locked.
	ListExpiredPayments(ctx context.Context, now time.Time) ([]model.Booking, error)
	// ArchiveEnded flags APPROVED and CANCELLED bookings that ended before
	// now as archived and returns how many rows changed.
	ArchiveEnded(ctx context.Context, now time.Time) (int64, error)
}
