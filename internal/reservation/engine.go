// Package reservation is the reservation and availability engine: conflict
// detection over day ranges, the booking state machine, the per-date
// availability index, the payment lifecycle and the expiry and archival
// sweeps.  Every operation that changes a booking together with the
// availability index runs inside a single Store transaction.
package reservation

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/lot-reservation/internal/identity"
	"github.com/iliyamo/lot-reservation/internal/queue"
)

// Clock supplies the current time.  Sweeps take now explicitly; the clock
// is only read by request-driven operations.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// Notifier dispatches a notification.  Failures are logged by the engine
// and never surfaced.
type Notifier interface {
	Notify(ctx context.Context, n queue.Notification) error
}

// ProfileLookup resolves a user to a printable profile.
type ProfileLookup interface {
	LookupProfile(ctx context.Context, userID string) (identity.Profile, error)
}

// ProofStore persists an uploaded payment proof and returns a stable
// reference.
type ProofStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

// DefaultPaymentWindow is how long a tenant has to pay after requesting.
const DefaultPaymentWindow = 3 * 24 * time.Hour

// Engine implements the booking lifecycle over a Store.
type Engine struct {
	store    Store
	clock    Clock
	log      *slog.Logger
	notifier Notifier
	profiles ProfileLookup
	proofs   ProofStore
	newID    func() string

	requirePayment bool
	paymentWindow  time.Duration
	notifyTimeout  time.Duration
	onChange       func(ctx context.Context, lotID string)

	inflight sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock used for timestamps, due dates and
// expiry checks.
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }

// WithLogger sets the engine logger.  The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.log = l } }

// WithNotifier sets where landlord and tenant notifications go.  Without
// one, notifications are dropped.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithProfiles sets the lookup used to put names into notification text.
func WithProfiles(p ProfileLookup) Option { return func(e *Engine) { e.profiles = p } }

// WithProofStore sets where uploaded payment proofs are written.  Submitting
// a payment fails with DependencyUnavailable when none is set.
func WithProofStore(p ProofStore) Option { return func(e *Engine) { e.proofs = p } }

// WithIDGenerator replaces the booking id generator (UUIDv4 by default).
func WithIDGenerator(f func() string) Option { return func(e *Engine) { e.newID = f } }

// WithPaymentGate makes verified payment the only way into APPROVED.  When
// set, decide(APPROVE) is refused with InvalidTransition.
func WithPaymentGate(on bool) Option { return func(e *Engine) { e.requirePayment = on } }

// WithPaymentWindow overrides the default three day payment window.
func WithPaymentWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.paymentWindow = d
		}
	}
}

// WithNotifyTimeout bounds each notification dispatch.
func WithNotifyTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.notifyTimeout = d
		}
	}
}

// WithAvailabilityHook registers fn to run after any committed change that
// can alter what a lot's availability queries return.
func WithAvailabilityHook(fn func(ctx context.Context, lotID string)) Option {
	return func(e *Engine) { e.onChange = fn }
}

// NewEngine builds an engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		clock:         SystemClock,
		log:           slog.Default(),
		newID:         uuid.NewString,
		paymentWindow: DefaultPaymentWindow,
		notifyTimeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.clock.Now().UTC() }

// RequiresPayment reports whether approval is gated on verified payment.
func (e *Engine) RequiresPayment() bool { return e.requirePayment }

// Wait blocks until every in-flight notification dispatch has finished.
func (e *Engine) Wait() { e.inflight.Wait() }

func (e *Engine) changed(ctx context.Context, lotID string) {
	if e.onChange != nil {
		e.onChange(ctx, lotID)
	}
}
