package queue

import (
	"context"
	"log/slog"
)

// LogDeliverer writes notifications to the log.  It stands in for the push
// endpoint when no auth service is configured.
type LogDeliverer struct {
	Log *slog.Logger
}

func (d LogDeliverer) Notify(_ context.Context, n Notification) error {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	log.Info("notification",
		slog.String("user_id", n.UserID),
		slog.String("title", n.Title),
		slog.String("body", n.Body),
		slog.String("booking_id", n.Data["bookingId"]),
		slog.String("created_at", n.CreatedAt),
	)
	return nil
}
