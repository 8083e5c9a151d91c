package reservation_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/lot-reservation/internal/identity"
	"github.com/iliyamo/lot-reservation/internal/model"
	"github.com/iliyamo/lot-reservation/internal/queue"
	"github.com/iliyamo/lot-reservation/internal/repository/memstore"
	"github.com/iliyamo/lot-reservation/internal/reservation"
)

const (
	lotID    = "lot-1"
	landlord = "landlord-1"
	tenant1  = "tenant-1"
	tenant2  = "tenant-2"
)

var start = time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu  sync.Mutex
	got []queue.Notification
	err error
}

func (r *recorder) Notify(_ context.Context, n queue.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
	return r.err
}

func (r *recorder) For(userID string) []queue.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []queue.Notification
	for _, n := range r.got {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

// withTitle finds a notification by title; dispatch order is not fixed.
func withTitle(notes []queue.Notification, title string) (queue.Notification, bool) {
	for _, n := range notes {
		if n.Title == title {
			return n, true
		}
	}
	return queue.Notification{}, false
}

type profiles map[string]identity.Profile

func (p profiles) LookupProfile(_ context.Context, id string) (identity.Profile, error) {
	if pr, ok := p[id]; ok {
		return pr, nil
	}
	return identity.Profile{}, identity.ErrUserNotFound
}

type fakeProofs struct {
	mu    sync.Mutex
	saved []string
	err   error
}

func (f *fakeProofs) Save(_ context.Context, name string, r io.Reader) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ref := fmt.Sprintf("proofs/%d-%s", len(f.saved)+1, name)
	f.saved = append(f.saved, ref)
	return ref, nil
}

type fixture struct {
	store   *memstore.Store
	engine  *reservation.Engine
	clock   *fakeClock
	notes   *recorder
	proofs  *fakeProofs
	changed []string
}

func newFixture(t *testing.T, opts ...reservation.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:  memstore.New(),
		clock:  &fakeClock{now: start},
		notes:  &recorder{},
		proofs: &fakeProofs{},
	}
	f.store.PutLot(model.Lot{ID: lotID, MarketID: "market-1", OwnerID: landlord, Name: "Corner stall",
		PricePerDay: decimal.NewFromInt(10), Available: true})

	var (
		mu  sync.Mutex
		seq int
	)
	base := []reservation.Option{
		reservation.WithClock(f.clock),
		reservation.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		reservation.WithNotifier(f.notes),
		reservation.WithProfiles(profiles{tenant1: {UserID: tenant1, Email: "t1@example.com"}}),
		reservation.WithProofStore(f.proofs),
		reservation.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return fmt.Sprintf("b-%d", seq)
		}),
		reservation.WithAvailabilityHook(func(_ context.Context, lot string) {
			mu.Lock()
			defer mu.Unlock()
			f.changed = append(f.changed, lot)
		}),
	}
	f.engine = reservation.NewEngine(f.store, append(base, opts...)...)
	t.Cleanup(f.engine.Wait)
	return f
}

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// putPending stores a pending booking directly, as if it had raced past
// the request-time check.
func (f *fixture) putPending(id, tenant, from, to string) model.Booking {
	rng, err := model.NewDateRange(day(from), day(to), false)
	if err != nil {
		panic(err)
	}
	b := model.Booking{
		ID: id, LotID: lotID, TenantID: tenant,
		StartDate: rng.Start, EndDate: rng.End,
		Status: model.StatusPending, PaymentStatus: model.PaymentPending,
		PaymentAmount:  decimal.NewFromInt(int64(10 * rng.DayCount())),
		PaymentDueDate: start.Add(reservation.DefaultPaymentWindow),
		CreatedAt:      start, UpdatedAt: start,
	}
	f.store.PutBooking(b)
	return b
}

func (f *fixture) request(t *testing.T, tenant, from, to string) *model.Booking {
	t.Helper()
	b, err := f.engine.RequestBooking(context.Background(), reservation.BookingRequest{
		TenantID: tenant, LotID: lotID, StartDate: day(from), EndDate: day(to),
	})
	if err != nil {
		t.Fatalf("RequestBooking: %v", err)
	}
	return b
}

func (f *fixture) approve(t *testing.T, id string) {
	t.Helper()
	if _, err := f.engine.Decide(context.Background(), id, reservation.DecisionApprove, landlord, ""); err != nil {
		t.Fatalf("approve %s: %v", id, err)
	}
}

func (f *fixture) available(t *testing.T, d string) bool {
	t.Helper()
	e, ok := f.store.Entry(lotID, day(d))
	return !ok || e.Available
}

func wantKind(t *testing.T, err error, kind reservation.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := reservation.KindOf(err); got != kind {
		t.Fatalf("error kind = %q (%v), want %q", got, err, kind)
	}
}

func TestRequestBookingCreatesPendingWithAmountAndDueDate(t *testing.T) {
	f := newFixture(t)
	b := f.request(t, tenant1, "2024-01-10", "2024-01-12")

	if b.Status != model.StatusPending || b.PaymentStatus != model.PaymentPending {
		t.Fatalf("status = %s/%s, want PENDING/PENDING", b.Status, b.PaymentStatus)
	}
	if !b.PaymentAmount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("amount = %s, want 30", b.PaymentAmount)
	}
	if want := start.Add(72 * time.Hour); !b.PaymentDueDate.Equal(want) {
		t.Errorf("due = %s, want %s", b.PaymentDueDate, want)
	}
	if !b.StartDate.Equal(day("2024-01-10")) || !b.EndDate.Equal(model.EndOfDay(day("2024-01-12"))) {
		t.Errorf("range = %s..%s", b.StartDate, b.EndDate)
	}
	if _, ok := f.store.Booking(b.ID); !ok {
		t.Fatal("booking was not persisted")
	}
	if len(f.store.Entries(lotID)) != 0 {
		t.Error("a pending booking must not touch the availability index")
	}

	f.engine.Wait()
	notes := f.notes.For(landlord)
	if len(notes) != 1 || notes[0].Title != "New booking request" {
		t.Fatalf("landlord notifications = %+v", notes)
	}
	if !strings.Contains(notes[0].Body, "t1@example.com") {
		t.Errorf("body %q does not name the tenant", notes[0].Body)
	}
}

func TestRequestBookingFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutLot(model.Lot{ID: "closed", OwnerID: landlord, PricePerDay: decimal.NewFromInt(5)})
	approved := f.request(t, tenant1, "2024-02-01", "2024-02-03")
	f.approve(t, approved.ID)
	f.request(t, tenant1, "2024-03-01", "2024-03-02")

	cases := []struct {
		name     string
		lot      string
		from, to string
		kind     reservation.Kind
		message  string
	}{
		{"missing lot", "nope", "2024-01-10", "2024-01-11", reservation.KindNotFound, "Lot not found"},
		{"lot switched off", "closed", "2024-01-10", "2024-01-11", reservation.KindForbidden, ""},
		{"inverted range", lotID, "2024-01-12", "2024-01-10", reservation.KindInvalidRange, ""},
		{"range too long", lotID, "2024-01-10", "2025-01-10", reservation.KindInvalidRange, "Date range must not exceed 366 days"},
		{"approved overlap", lotID, "2024-02-03", "2024-02-05", reservation.KindConflict, "Lot is already booked for the selected period"},
		{"pending overlap", lotID, "2024-02-28", "2024-03-01", reservation.KindConflict, "pending bookings exist"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.engine.RequestBooking(ctx, reservation.BookingRequest{
				TenantID: tenant2, LotID: tc.lot, StartDate: day(tc.from), EndDate: day(tc.to),
			})
			wantKind(t, err, tc.kind)
			if tc.message != "" && reservation.MessageOf(err) != tc.message {
				t.Errorf("message = %q, want %q", reservation.MessageOf(err), tc.message)
			}
		})
	}
}

func TestCheckAvailability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.CheckAvailability(ctx, lotID, day("2024-01-12"), day("2024-01-10"), false)
	wantKind(t, err, reservation.KindInvalidRange)
	if !errors.Is(err, reservation.ErrInvalidRange) {
		t.Error("errors.Is did not match ErrInvalidRange")
	}

	_, err = f.engine.CheckAvailability(ctx, "nope", day("2024-01-10"), day("2024-01-10"), true)
	wantKind(t, err, reservation.KindInvalidRange)

	got, err := f.engine.CheckAvailability(ctx, lotID, day("2024-01-10"), day("2024-01-12"), false)
	if err != nil || !got.Available {
		t.Fatalf("empty lot: %+v, %v", got, err)
	}

	f.store.PutLot(model.Lot{ID: "closed", OwnerID: landlord})
	got, err = f.engine.CheckAvailability(ctx, "closed", day("2024-01-10"), time.Time{}, true)
	if err != nil || got.Available || got.Reason != "Lot is not available" {
		t.Fatalf("closed lot: %+v, %v", got, err)
	}
}

func TestOneDayBookingOccupiesTheWholeDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b, err := f.engine.RequestBooking(ctx, reservation.BookingRequest{
		TenantID: tenant1, LotID: lotID, StartDate: day("2024-01-10"), EndDate: day("2024-01-10"), OneDay: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.EndDate.Sub(b.StartDate) != 24*time.Hour-time.Second {
		t.Fatalf("one-day booking spans %s", b.EndDate.Sub(b.StartDate))
	}
	if !b.PaymentAmount.Equal(decimal.NewFromInt(10)) {
		t.Errorf("amount = %s, want 10", b.PaymentAmount)
	}
	f.approve(t, b.ID)

	// Midday on the same day is still inside the booking.
	got, err := f.engine.CheckAvailability(ctx, lotID, day("2024-01-10").Add(15*time.Hour), time.Time{}, true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Available || got.Reason != "Lot is already booked for the selected period" {
		t.Fatalf("same day: %+v", got)
	}
	got, _ = f.engine.CheckAvailability(ctx, lotID, day("2024-01-11"), time.Time{}, true)
	if !got.Available {
		t.Fatalf("next day should be free: %+v", got)
	}
}

func TestApproveThenSecondApprovalConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b1 := f.putPending("b-t1", tenant1, "2024-01-10", "2024-01-14")
	b2 := f.putPending("b-t2", tenant2, "2024-01-12", "2024-01-16")

	f.approve(t, b1.ID)
	got, _ := f.store.Booking(b1.ID)
	if got.Status != model.StatusApproved {
		t.Fatalf("b1 status = %s", got.Status)
	}
	for _, d := range []string{"2024-01-10", "2024-01-12", "2024-01-14"} {
		if f.available(t, d) {
			t.Errorf("%s should be blocked after approval", d)
		}
	}

	_, err := f.engine.Decide(ctx, b2.ID, reservation.DecisionApprove, landlord, "")
	wantKind(t, err, reservation.KindConflict)
	got, _ = f.store.Booking(b2.ID)
	if got.Status != model.StatusPending {
		t.Fatalf("b2 status = %s, want PENDING after failed approval", got.Status)
	}
	if !f.available(t, "2024-01-15") {
		t.Error("failed approval leaked a hold on 2024-01-15")
	}
}

func TestConcurrentApprovalsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = fmt.Sprintf("race-%d", i)
		f.putPending(ids[i], fmt.Sprintf("tenant-%d", i), "2024-01-10", "2024-01-12")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		conflicts int
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.engine.Decide(context.Background(), id, reservation.DecisionApprove, landlord, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, reservation.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(id)
	}
	wg.Wait()
	if ok != 1 || conflicts != len(ids)-1 {
		t.Fatalf("approved=%d conflicts=%d", ok, conflicts)
	}

	holders := map[string]bool{}
	for _, e := range f.store.Entries(lotID) {
		if e.BookingID == nil {
			t.Fatalf("entry %s has no holder", e.Date)
		}
		holders[*e.BookingID] = true
	}
	if len(holders) != 1 {
		t.Fatalf("dates held by %d bookings", len(holders))
	}
}

func TestDecideRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.request(t, tenant1, "2024-01-10", "2024-01-11")

	_, err := f.engine.Decide(ctx, b.ID, reservation.DecisionApprove, "someone-else", "")
	wantKind(t, err, reservation.KindForbidden)

	_, err = f.engine.Decide(ctx, "missing", reservation.DecisionApprove, landlord, "")
	wantKind(t, err, reservation.KindNotFound)

	rejected, err := f.engine.Decide(ctx, b.ID, reservation.DecisionReject, landlord, "Not this week")
	if err != nil {
		t.Fatal(err)
	}
	if rejected.Status != model.StatusRejected || rejected.RejectionReason == nil || *rejected.RejectionReason != "Not this week" {
		t.Fatalf("rejected booking = %+v", rejected)
	}
	if len(f.store.Entries(lotID)) != 0 {
		t.Error("rejecting a pending booking must not write entries")
	}

	_, err = f.engine.Decide(ctx, b.ID, reservation.DecisionApprove, landlord, "")
	wantKind(t, err, reservation.KindInvalidTransition)
	if msg := reservation.MessageOf(err); msg != "Only pending bookings can be approved or rejected" {
		t.Errorf("message = %q", msg)
	}

	f.engine.Wait()
	notes := f.notes.For(tenant1)
	if len(notes) != 1 || notes[0].Title != "Booking rejected" || !strings.Contains(notes[0].Body, "Not this week") {
		t.Fatalf("tenant notifications = %+v", notes)
	}
}

func TestPaymentGateBlocksDirectApproval(t *testing.T) {
	f := newFixture(t, reservation.WithPaymentGate(true))
	b := f.request(t, tenant1, "2024-01-10", "2024-01-11")
	_, err := f.engine.Decide(context.Background(), b.ID, reservation.DecisionApprove, landlord, "")
	wantKind(t, err, reservation.KindInvalidTransition)

	// Rejection stays available under the gate.
	if _, err := f.engine.Decide(context.Background(), b.ID, reservation.DecisionReject, landlord, ""); err != nil {
		t.Fatalf("reject under gate: %v", err)
	}
}

func TestApproveCancelRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.request(t, tenant1, "2024-01-10", "2024-01-12")
	f.approve(t, b.ID)

	cancelled, err := f.engine.Cancel(ctx, b.ID, landlord, identity.RoleLandlord, "Maintenance")
	if err != nil {
		t.Fatal(err)
	}
	if cancelled.Status != model.StatusCancelled || *cancelled.RejectionReason != "Maintenance" {
		t.Fatalf("cancelled = %+v", cancelled)
	}
	for _, d := range []string{"2024-01-10", "2024-01-11", "2024-01-12"} {
		if !f.available(t, d) {
			t.Errorf("%s still unavailable after cancel", d)
		}
	}
	got, err := f.engine.CheckAvailability(ctx, lotID, day("2024-01-10"), day("2024-01-12"), false)
	if err != nil || !got.Available {
		t.Fatalf("after round trip: %+v, %v", got, err)
	}

	f.engine.Wait()
	n, ok := withTitle(f.notes.For(tenant1), "Booking cancelled")
	if !ok || !strings.Contains(n.Body, "Maintenance") {
		t.Fatalf("tenant notifications = %+v", f.notes.For(tenant1))
	}
}

func TestCancelRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.request(t, tenant1, "2024-01-10", "2024-01-11")

	_, err := f.engine.Cancel(ctx, b.ID, tenant2, identity.RoleTenant, "")
	wantKind(t, err, reservation.KindForbidden)
	_, err = f.engine.Cancel(ctx, b.ID, "landlord-2", identity.RoleLandlord, "")
	wantKind(t, err, reservation.KindForbidden)
	// A landlord ID presented with the tenant role does not pass either check.
	_, err = f.engine.Cancel(ctx, b.ID, landlord, identity.RoleTenant, "")
	wantKind(t, err, reservation.KindForbidden)

	if _, err := f.engine.Cancel(ctx, b.ID, tenant1, identity.RoleTenant, ""); err != nil {
		t.Fatalf("tenant cancel: %v", err)
	}
	_, err = f.engine.Cancel(ctx, b.ID, tenant1, identity.RoleTenant, "")
	wantKind(t, err, reservation.KindInvalidTransition)

	f.engine.Wait()
	if _, ok := withTitle(f.notes.For(landlord), "Booking cancelled"); !ok {
		t.Fatalf("landlord was not told about the cancellation: %+v", f.notes.For(landlord))
	}
}

func TestFailedWriteRollsBackTheWholeDecision(t *testing.T) {
	f := newFixture(t)
	b := f.request(t, tenant1, "2024-01-10", "2024-01-20")
	boom := errors.New("disk full")
	f.store.FailOn("UpdateBooking", boom)

	_, err := f.engine.Decide(context.Background(), b.ID, reservation.DecisionApprove, landlord, "")
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if n := len(f.store.Entries(lotID)); n != 0 {
		t.Fatalf("%d entries survived a rolled back approval", n)
	}
	got, _ := f.store.Booking(b.ID)
	if got.Status != model.StatusPending {
		t.Fatalf("status = %s after rollback", got.Status)
	}

	f.store.FailOn("UpdateBooking", nil)
	f.approve(t, b.ID)
	if n := len(f.store.Entries(lotID)); n != 11 {
		t.Fatalf("entries after retry = %d, want 11", n)
	}
}

func TestArchive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.request(t, tenant1, "2024-01-10", "2024-01-11")

	_, err := f.engine.Archive(ctx, b.ID, landlord, true)
	wantKind(t, err, reservation.KindInvalidTransition)

	f.approve(t, b.ID)
	_, err = f.engine.Archive(ctx, b.ID, "landlord-2", true)
	wantKind(t, err, reservation.KindForbidden)

	got, err := f.engine.Archive(ctx, b.ID, landlord, true)
	if err != nil || !got.IsArchived {
		t.Fatalf("archive: %+v, %v", got, err)
	}
	list, _ := f.engine.TenantBookings(ctx, tenant1, false)
	if len(list) != 0 {
		t.Fatalf("archived booking listed: %+v", list)
	}
	list, _ = f.engine.TenantBookings(ctx, tenant1, true)
	if len(list) != 1 {
		t.Fatalf("includeArchived listing = %d bookings", len(list))
	}

	got, err = f.engine.Archive(ctx, b.ID, landlord, false)
	if err != nil || got.IsArchived {
		t.Fatalf("unarchive: %+v, %v", got, err)
	}
}

func TestGetBookingVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	b := f.request(t, tenant1, "2024-01-10", "2024-01-11")

	for _, who := range []identity.Identity{
		{UserID: tenant1, Role: identity.RoleTenant},
		{UserID: landlord, Role: identity.RoleLandlord},
		{UserID: "admin", Role: identity.RoleAdmin},
	} {
		if _, err := f.engine.GetBooking(ctx, b.ID, who); err != nil {
			t.Errorf("%s: %v", who.UserID, err)
		}
	}
	_, err := f.engine.GetBooking(ctx, b.ID, identity.Identity{UserID: tenant2, Role: identity.RoleTenant})
	wantKind(t, err, reservation.KindForbidden)
}

func TestLandlordBookingsFiltersByOwnerAndStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.PutLot(model.Lot{ID: "lot-2", OwnerID: "landlord-2", PricePerDay: decimal.NewFromInt(1), Available: true})
	a := f.request(t, tenant1, "2024-01-10", "2024-01-11")
	f.request(t, tenant2, "2024-01-20", "2024-01-21")
	if _, err := f.engine.RequestBooking(ctx, reservation.BookingRequest{
		TenantID: tenant1, LotID: "lot-2", StartDate: day("2024-01-10"), OneDay: true,
	}); err != nil {
		t.Fatal(err)
	}
	f.approve(t, a.ID)

	all, err := f.engine.LandlordBookings(ctx, landlord, nil, false)
	if err != nil || len(all) != 2 {
		t.Fatalf("landlord bookings = %d, %v", len(all), err)
	}
	approved, _ := f.engine.LandlordBookings(ctx, landlord, []model.BookingStatus{model.StatusApproved}, false)
	if len(approved) != 1 || approved[0].ID != a.ID {
		t.Fatalf("approved = %+v", approved)
	}
}

func TestNotificationFailureDoesNotFailTransition(t *testing.T) {
	f := newFixture(t)
	f.notes.err = errors.New("broker down")
	b := f.request(t, tenant1, "2024-01-10", "2024-01-11")
	f.approve(t, b.ID)
	f.engine.Wait()
	got, _ := f.store.Booking(b.ID)
	if got.Status != model.StatusApproved {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestAvailabilityHookFiresOnCommittedChanges(t *testing.T) {
	f := newFixture(t)
	b := f.request(t, tenant1, "2024-01-10", "2024-01-11")
	f.approve(t, b.ID)
	_, _ = f.engine.Decide(context.Background(), b.ID, reservation.DecisionApprove, landlord, "")
	if len(f.changed) != 2 {
		t.Fatalf("hook fired %d times, want 2 (failed decision must not fire)", len(f.changed))
	}
	for _, l := range f.changed {
		if l != lotID {
			t.Fatalf("hook lot = %q", l)
		}
	}
}
