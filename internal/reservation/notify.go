package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iliyamo/lot-reservation/internal/model"
	"github.com/iliyamo/lot-reservation/internal/queue"
)

// notify dispatches n in the background once the transition that produced
// it has committed.  It never blocks the caller and never reports errors
// back; failures are logged.
func (e *Engine) notify(n queue.Notification) {
	if e.notifier == nil || n.UserID == "" {
		return
	}
	if n.CreatedAt == "" {
		n.CreatedAt = e.Now().Format(time.RFC3339)
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(ctx, n); err != nil {
			e.log.Warn("notification dispatch failed",
				slog.String("user_id", n.UserID), slog.String("title", n.Title), slog.Any("err", err))
		}
	}()
}

// displayName looks up userID's profile with the notification timeout and
// falls back to fallback when the lookup fails.
func (e *Engine) displayName(ctx context.Context, userID, fallback string) string {
	if e.profiles == nil || userID == "" {
		return fallback
	}
	ctx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
	defer cancel()
	p, err := e.profiles.LookupProfile(ctx, userID)
	if err != nil {
		e.log.Warn("profile lookup failed", slog.String("user_id", userID), slog.Any("err", err))
		return fallback
	}
	return p.DisplayName()
}

func bookingData(b *model.Booking, event string) map[string]string {
	return map[string]string{
		"type":      event,
		"bookingId": b.ID,
		"lotId":     b.LotID,
		"startDate": b.StartDate.Format(model.DateLayout),
		"endDate":   b.EndDate.Format(model.DateLayout),
		"status":    string(b.Status),
	}
}

func periodText(b *model.Booking) string {
	return fmt.Sprintf("%s to %s", b.StartDate.Format(model.DateLayout), b.EndDate.Format(model.DateLayout))
}
