package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Deliverer pushes a notification to its final destination.
type Deliverer interface {
	Notify(ctx context.Context, n Notification) error
}

// Consumer drains the notification queue and hands every message to a
// Deliverer.  It reconnects with backoff until its context is cancelled.
type Consumer struct {
	url     string
	queue   string
	deliver Deliverer
	timeout time.Duration
	log     *slog.Logger
}

func NewConsumer(url, queue string, d Deliverer, timeout time.Duration, log *slog.Logger) *Consumer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{url: url, queue: queue, deliver: d, timeout: timeout, log: log.With(slog.String("component", "notify-consumer"))}
}

// Run blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warn("failed to dial broker", slog.Any("err", err), slog.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("consume loop ended, reconnecting", slog.Any("err", err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warn("set QoS failed", slog.Any("err", err))
	}
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	c.log.Info("consuming notifications", slog.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, d)
		}
	}
}

// handle acks delivered messages.  A failed delivery is requeued once; a
// malformed body or a second failure is dropped so one bad message cannot
// spin the consumer.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var n Notification
	if err := json.Unmarshal(d.Body, &n); err != nil {
		c.log.Error("dropping malformed notification", slog.Any("err", err))
		_ = d.Nack(false, false)
		return
	}
	dctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.deliver.Notify(dctx, n); err != nil {
		requeue := !d.Redelivered
		c.log.Warn("notification delivery failed",
			slog.String("user_id", n.UserID), slog.String("title", n.Title),
			slog.Bool("requeue", requeue), slog.Any("err", err))
		_ = d.Nack(false, requeue)
		return
	}
	_ = d.Ack(false)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
