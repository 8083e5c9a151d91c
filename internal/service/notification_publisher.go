// Package service holds outbound integrations used by the engine.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/lot-reservation/internal/queue"
)

// NotificationPublisher puts notifications on a durable RabbitMQ queue.
// The connection is opened lazily and reopened after a failure.  When the
// broker cannot be reached and a fallback is configured, the notification
// is delivered directly instead.
type NotificationPublisher struct {
	url      string
	queue    string
	fallback queue.Deliverer
	log      *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// dialTimeout bounds a broker dial when the caller's ctx has no deadline.
const dialTimeout = 5 * time.Second

// NewNotificationPublisher returns a publisher for queueName on the broker at
// url.  fallback may be nil, in which case publish errors are returned as is.
func NewNotificationPublisher(url, queueName string, fallback queue.Deliverer, log *slog.Logger) *NotificationPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &NotificationPublisher{url: url, queue: queueName, fallback: fallback, log: log.With(slog.String("component", "notify-publisher"))}
}

// Notify publishes n as a persistent JSON message.
func (p *NotificationPublisher) Notify(ctx context.Context, n queue.Notification) error {
	if n.CreatedAt == "" {
		n.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	err = p.publish(ctx, body)
	if err == nil {
		return nil
	}
	if p.fallback == nil {
		return err
	}
	p.log.Warn("rabbitmq publish failed, delivering directly", slog.Any("err", err))
	return p.fallback.Notify(ctx, n)
}

func (p *NotificationPublisher) publish(ctx context.Context, body []byte) error {
	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	err = ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		p.drop(ch)
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// channel returns the open channel, dialing when needed.  mu is not held
// while dialing so a slow broker stalls only the caller whose ctx pays for it.
func (p *NotificationPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	p.mu.Lock()
	if p.ch != nil && !p.ch.IsClosed() {
		ch := p.ch
		p.mu.Unlock()
		return ch, nil
	}
	p.mu.Unlock()

	conn, ch, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil && !p.ch.IsClosed() {
		// Lost the race to a concurrent dial.
		_ = ch.Close()
		_ = conn.Close()
		return p.ch, nil
	}
	p.reset()
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *NotificationPublisher) dial(ctx context.Context) (*amqp.Connection, *amqp.Channel, error) {
	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	if timeout <= 0 {
		return nil, nil, fmt.Errorf("dial: %w", context.DeadlineExceeded)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("channel open: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("queue declare: %w", err)
	}
	return conn, ch, nil
}

// drop forgets ch after a failed publish unless it was already replaced.
func (p *NotificationPublisher) drop(ch *amqp.Channel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == ch {
		p.reset()
	}
}

func (p *NotificationPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
}

// Close releases the broker connection.
func (p *NotificationPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
}
