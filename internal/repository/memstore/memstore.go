// Package memstore is an in-memory reservation.Store.  A transaction holds
// the store mutex for its whole duration and works on a copy of the
// state, which replaces the live state only when the transaction function
// returns nil.  It backs the engine and router tests.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/lot-reservation/internal/model"
	"github.com/iliyamo/lot-reservation/internal/reservation"
)

type entryKey struct {
	lotID string
	date  time.Time
}

type state struct {
	lots     map[string]model.Lot
	bookings map[string]model.Booking
	seq      map[string]int // insertion order, for stable listings
	entries  map[entryKey]model.AvailabilityEntry
}

func (s *state) clone() *state {
	c := &state{
		lots:     make(map[string]model.Lot, len(s.lots)),
		bookings: make(map[string]model.Booking, len(s.bookings)),
		seq:      make(map[string]int, len(s.seq)),
		entries:  make(map[entryKey]model.AvailabilityEntry, len(s.entries)),
	}
	for k, v := range s.lots {
		c.lots[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.seq {
		c.seq[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	return c
}

// Store is safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	st     *state
	failOn map[string]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st: &state{
			lots:     map[string]model.Lot{},
			bookings: map[string]model.Booking{},
			seq:      map[string]int{},
			entries:  map[entryKey]model.AvailabilityEntry{},
		},
		failOn: map[string]error{},
	}
}

// WithinTx implements reservation.Store.
func (s *Store) WithinTx(ctx context.Context, fn func(tx reservation.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(&tx{st: work, failOn: s.failOn}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// FailOn makes every later call of the named Tx method fail with err.  A
// nil err clears the injection.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failOn, method)
		return
	}
	s.failOn[method] = err
}

// PutLot inserts or replaces a lot.
func (s *Store) PutLot(l model.Lot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.lots[l.ID] = l
}

// PutBooking inserts or replaces a booking as is.
func (s *Store) PutBooking(b model.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.st.seq[b.ID]; !ok {
		s.st.seq[b.ID] = len(s.st.seq)
	}
	s.st.bookings[b.ID] = b
}

// Booking returns the committed state of a booking.
func (s *Store) Booking(id string) (model.Booking, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.st.bookings[id]
	return b, ok
}

// Entry returns the committed availability entry for a day.
func (s *Store) Entry(lotID string, day time.Time) (model.AvailabilityEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.st.entries[entryKey{lotID, model.StartOfDay(day)}]
	return e, ok
}

// Entries returns every committed entry of a lot ordered by date.
func (s *Store) Entries(lotID string) []model.AvailabilityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AvailabilityEntry
	for k, e := range s.st.entries {
		if k.lotID == lotID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

type tx struct {
	st     *state
	failOn map[string]error
}

func (t *tx) fail(method string) error { return t.failOn[method] }

func (t *tx) GetLot(_ context.Context, lotID string, _ bool) (*model.Lot, error) {
	if err := t.fail("GetLot"); err != nil {
		return nil, err
	}
	l, ok := t.st.lots[lotID]
	if !ok {
		return nil, reservation.ErrNoRecord
	}
	return &l, nil
}

func (t *tx) GetBooking(_ context.Context, id string, _ bool) (*model.Booking, error) {
	if err := t.fail("GetBooking"); err != nil {
		return nil, err
	}
	b, ok := t.st.bookings[id]
	if !ok {
		return nil, reservation.ErrNoRecord
	}
	return &b, nil
}

func (t *tx) FindOverlapping(_ context.Context, lotID string, rng model.DateRange, statuses []model.BookingStatus, excludeID string) ([]model.Booking, error) {
	if err := t.fail("FindOverlapping"); err != nil {
		return nil, err
	}
	var out []model.Booking
	for _, b := range t.st.bookings {
		if b.LotID != lotID || b.ID == excludeID || !hasStatus(statuses, b.Status) {
			continue
		}
		if b.Range().Overlaps(rng) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

func (t *tx) ListBookings(_ context.Context, f model.BookingFilter) ([]model.Booking, error) {
	if err := t.fail("ListBookings"); err != nil {
		return nil, err
	}
	var out []model.Booking
	for _, b := range t.st.bookings {
		if f.TenantID != "" && b.TenantID != f.TenantID {
			continue
		}
		if f.LotID != "" && b.LotID != f.LotID {
			continue
		}
		if f.OwnerID != "" && t.st.lots[b.LotID].OwnerID != f.OwnerID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, b.Status) {
			continue
		}
		if len(f.PaymentStatuses) > 0 && !hasPayment(f.PaymentStatuses, b.PaymentStatus) {
			continue
		}
		if b.IsArchived && !f.IncludeArchived {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if f.OrderByDueDate {
			return out[i].PaymentDueDate.Before(out[j].PaymentDueDate)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return t.st.seq[out[i].ID] > t.st.seq[out[j].ID]
	})
	return out, nil
}

func (t *tx) InsertBooking(_ context.Context, b *model.Booking) error {
	if err := t.fail("InsertBooking"); err != nil {
		return err
	}
	t.st.seq[b.ID] = len(t.st.seq)
	t.st.bookings[b.ID] = *b
	return nil
}

func (t *tx) UpdateBooking(_ context.Context, b *model.Booking) error {
	if err := t.fail("UpdateBooking"); err != nil {
		return err
	}
	if _, ok := t.st.bookings[b.ID]; !ok {
		return reservation.ErrNoRecord
	}
	t.st.bookings[b.ID] = *b
	return nil
}

func (t *tx) ListEntries(_ context.Context, lotID string, rng model.DateRange) ([]model.AvailabilityEntry, error) {
	if err := t.fail("ListEntries"); err != nil {
		return nil, err
	}
	var out []model.AvailabilityEntry
	for k, e := range t.st.entries {
		if k.lotID == lotID && !k.date.Before(model.StartOfDay(rng.Start)) && !k.date.After(rng.End) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (t *tx) HoldDates(_ context.Context, lotID, bookingID string, dates []time.Time) error {
	if err := t.fail("HoldDates"); err != nil {
		return err
	}
	for _, d := range dates {
		e := t.entry(lotID, d)
		id := bookingID
		e.BookingID = &id
		t.put(e)
	}
	return nil
}

func (t *tx) ReleaseDates(_ context.Context, lotID, bookingID string, dates []time.Time) error {
	if err := t.fail("ReleaseDates"); err != nil {
		return err
	}
	for _, d := range dates {
		e, ok := t.st.entries[entryKey{lotID, model.StartOfDay(d)}]
		if !ok || e.BookingID == nil || *e.BookingID != bookingID {
			continue
		}
		e.BookingID = nil
		t.put(e)
	}
	return nil
}

func (t *tx) SetManualBlock(_ context.Context, lotID string, dates []time.Time, blocked bool) error {
	if err := t.fail("SetManualBlock"); err != nil {
		return err
	}
	for _, d := range dates {
		e := t.entry(lotID, d)
		e.ManualBlocked = blocked
		t.put(e)
	}
	return nil
}

func (t *tx) ListExpiredPayments(_ context.Context, now time.Time) ([]model.Booking, error) {
	if err := t.fail("ListExpiredPayments"); err != nil {
		return nil, err
	}
	var out []model.Booking
	for _, b := range t.st.bookings {
		if b.PaymentStatus == model.PaymentPending && b.Status.Open() && b.PaymentDueDate.Before(now) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentDueDate.Before(out[j].PaymentDueDate) })
	return out, nil
}

func (t *tx) ArchiveEnded(_ context.Context, now time.Time) (int64, error) {
	if err := t.fail("ArchiveEnded"); err != nil {
		return 0, err
	}
	var n int64
	for id, b := range t.st.bookings {
		if b.IsArchived || !b.EndDate.Before(now) {
			continue
		}
		if b.Status != model.StatusApproved && b.Status != model.StatusCancelled {
			continue
		}
		b.IsArchived = true
		b.UpdatedAt = now
		t.st.bookings[id] = b
		n++
	}
	return n, nil
}

func (t *tx) entry(lotID string, d time.Time) model.AvailabilityEntry {
	day := model.StartOfDay(d)
	if e, ok := t.st.entries[entryKey{lotID, day}]; ok {
		return e
	}
	return model.AvailabilityEntry{LotID: lotID, Date: day, Available: true}
}

// put derives Available the same way the SQL statements do.
func (t *tx) put(e model.AvailabilityEntry) {
	e.Available = e.BookingID == nil && !e.ManualBlocked
	t.st.entries[entryKey{e.LotID, e.Date}] = e
}

func hasStatus(list []model.BookingStatus, s model.BookingStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func hasPayment(list []model.PaymentStatus, s model.PaymentStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
