package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"go-freshmart/services"
)

// EventPublisher publishes notification events to a topic exchange, routed by event type.
type EventPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

// NewEventPublisher dials the broker and declares the exchange.
func NewEventPublisher(url, exchange string) (*EventPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &EventPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

// Notify publishes the event as JSON.
func (p *EventPublisher) Notify(ctx context.Context, event services.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(ctx, p.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		Body:         body,
	})
}

// Close releases the channel and connection.
func (p *EventPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return errors.Join(p.ch.Close(), p.conn.Close())
}
