package services

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Notification event types.
const (
	EventOrderCreated          = "order.created"
	EventOrderStatusChanged    = "order.status_changed"
	EventOrderCancelled        = "order.cancelled"
	EventOrderPaymentCompleted = "order.payment_completed"
	EventOrderPaymentFailed    = "order.payment_failed"
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionStatus    = "subscription.status_changed"
	EventSubscriptionExpired   = "subscription.expired"
	EventSubscriptionDelivered = "subscription.delivery_completed"
)

const notifyTimeout = 15 * time.Second

// Event is an order or subscription notification handed to the outbound sink.
type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Recipient  string         `json:"recipient,omitempty"`
	Reference  string         `json:"reference"`
	OccurredAt time.Time      `json:"occurred_at"`
	Data       map[string]any `json:"data,omitempty"`
}

// Notifier delivers events to customers or downstream systems.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// dispatcher hands events to the notifier in the background. Failures are
// logged and never reach the caller.
type dispatcher struct {
	notifier Notifier
	logger   *zap.Logger
}

func (d dispatcher) send(ctx context.Context, event Event) {
	if d.notifier == nil {
		return
	}
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		sendCtx, cancel := context.WithTimeout(detached, notifyTimeout)
		defer cancel()
		if err := d.notifier.Notify(sendCtx, event); err != nil {
			d.logger.Warn("notification failed",
				zap.String("event_id", event.ID),
				zap.String("type", event.Type),
				zap.String("reference", event.Reference),
				zap.Error(err),
			)
		}
	}()
}
