package reservation

import (
	"context"
	"log/slog"
	"time"
)

// SweepArchive archives APPROVED and CANCELLED bookings whose last day
// ended before now.  It is idempotent: archived rows no longer match.
func (e *Engine) SweepArchive(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := e.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		n, err = tx.ArchiveEnded(ctx, now)
		return err
	})
	return n, err
}

// Locker grants a named lease so that only one instance runs a given
// sweep at a time.  ok is false when another holder has the lease.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (unlock func(), ok bool, err error)
}

// SweeperConfig holds the schedule of the periodic jobs.
type SweeperConfig struct {
	ExpiryInterval  time.Duration
	ArchiveInterval time.Duration
	LockTTL         time.Duration
}

// Sweeper runs the expiry sweep and the archival sweep on their intervals.
// A failed run is logged and retried by the next tick.
type Sweeper struct {
	engine *Engine
	locker Locker
	cfg    SweeperConfig
	log    *slog.Logger
}

// NewSweeper schedules sweeps on e.  locker may be nil for single-instance
// deployments.
func NewSweeper(e *Engine, locker Locker, cfg SweeperConfig, log *slog.Logger) *Sweeper {
	if cfg.ExpiryInterval <= 0 {
		cfg.ExpiryInterval = time.Hour
	}
	if cfg.ArchiveInterval <= 0 {
		cfg.ArchiveInterval = 24 * time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{engine: e, locker: locker, cfg: cfg, log: log.With("component", "sweeper")}
}

// Run executes both sweeps once and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.RunExpiry(ctx)
	s.RunArchive(ctx)

	expiry := time.NewTicker(s.cfg.ExpiryInterval)
	defer expiry.Stop()
	archive := time.NewTicker(s.cfg.ArchiveInterval)
	defer archive.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-expiry.C:
			s.RunExpiry(ctx)
		case <-archive.C:
			s.RunArchive(ctx)
		}
	}
}

// RunExpiry performs one guarded expiry sweep.
func (s *Sweeper) RunExpiry(ctx context.Context) {
	s.guarded(ctx, "sweep:payment-expiry", func(now time.Time) {
		n, err := s.engine.SweepExpired(ctx, now)
		if err != nil {
			s.log.Error("payment expiry sweep failed", "err", err)
			return
		}
		s.log.Info("payment expiry sweep done", "expired", n)
	})
}

// RunArchive performs one guarded archival sweep.
func (s *Sweeper) RunArchive(ctx context.Context) {
	s.guarded(ctx, "sweep:archive", func(now time.Time) {
		n, err := s.engine.SweepArchive(ctx, now)
		if err != nil {
			s.log.Error("archive sweep failed", "err", err)
			return
		}
		s.log.Info("archive sweep done", "archived", n)
	})
}

func (s *Sweeper) guarded(ctx context.Context, key string, run func(now time.Time)) {
	if ctx.Err() != nil {
		return
	}
	if s.locker != nil {
		unlock, ok, err := s.locker.TryLock(ctx, key, s.cfg.LockTTL)
		if err != nil {
			// Without the lock backend the sweep still runs; both
			// sweeps are safe to repeat.
			s.log.Warn("sweep lock unavailable, running unguarded", "key", key, "err", err)
		} else if !ok {
			s.log.Debug("sweep held by another instance", "key", key)
			return
		} else {
			defer unlock()
		}
	}
	run(s.engine.Now())
}
