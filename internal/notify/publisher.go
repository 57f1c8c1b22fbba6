// Package notify publishes workflow notifications to RabbitMQ for the
// email collaborator to deliver.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Message kinds.
const (
	KindRequestChanged = "request_changed"
	KindSweepDigest    = "sweep_digest"
)

// Transition is one line of a sweep digest.
type Transition struct {
	RequestID string    `json:"request_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	DueDate   time.Time `json:"due_date"`
}

// Message is the notification payload consumed by the mailer.
type Message struct {
	Kind        string       `json:"kind"`
	AgencyEIN   string       `json:"agency_ein"`
	RequestID   string       `json:"request_id,omitempty"`
	EventType   string       `json:"event_type,omitempty"`
	Status      string       `json:"status,omitempty"`
	DueDate     *time.Time   `json:"due_date,omitempty"`
	ActorGUID   string       `json:"actor_guid,omitempty"`
	Transitions []Transition `json:"transitions,omitempty"`
	Recipients  []string     `json:"recipients,omitempty"`
	OccurredAt  time.Time    `json:"occurred_at"`
}

// Encode renders the message as a persistent AMQP publishing.
func Encode(msg Message) (amqp.Publishing, error) {
	if msg.Kind == "" {
		return amqp.Publishing{}, errors.New("notify: message kind required")
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("notify: marshal message: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.OccurredAt,
		Type:         msg.Kind,
		Body:         body,
	}, nil
}

// Publisher sends messages to a durable queue on the default exchange. The
// connection is opened lazily and re-dialled after a failure.
type Publisher struct {
	url    string
	queue  string
	logger *zap.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

// NewPublisher constructs a publisher; no connection is made until the first Publish.
func NewPublisher(url, queue string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queue == "" {
		queue = "foil.notifications"
	}
	return &Publisher{url: url, queue: queue, logger: logger}
}

// Publish delivers the message; errors are returned to the job queue for retry.
func (p *Publisher) Publish(ctx context.Context, msg Message) error {
	pub, err := Encode(msg)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channelLocked()
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.resetLocked()
		p.logger.Warn("rabbitmq publish failed", zap.String("queue", p.queue), zap.Error(err))
		return fmt.Errorf("notify: publish: %w", err)
	}
	return nil
}

func (p *Publisher) channelLocked() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("notify: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare queue: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
