package utils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-freshmart/config"
	"go-freshmart/services"
)

type sentMail struct {
	to, subject, html, text string
}

type fakeSender struct {
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, htmlBody, textBody string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, htmlBody, textBody})
	return nil
}

func TestEmailServiceRendersOrderConfirmation(t *testing.T) {
	sender := &fakeSender{}
	es := NewEmailServiceWithSender(sender, nil)

	err := es.Notify(context.Background(), services.Event{
		Type:      services.EventOrderCreated,
		Recipient: "alice@example.com",
		Reference: "ORD-000001",
		Data: map[string]any{
			"total":              "26.00",
			"payment_method":     "cash_on_delivery",
			"estimated_delivery": "2026-10-19",
		},
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	got := sender.sent[0]
	assert.Equal(t, "alice@example.com", got.to)
	assert.Equal(t, "Order Confirmation", got.subject)
	assert.Contains(t, got.html, "ORD-000001")
	assert.Contains(t, got.html, "26.00")
	assert.Contains(t, got.html, "2026-10-19")
}

func TestEmailServiceEscapesCustomerInput(t *testing.T) {
	sender := &fakeSender{}
	es := NewEmailServiceWithSender(sender, nil)

	require.NoError(t, es.Notify(context.Background(), services.Event{
		Type:      services.EventSubscriptionCreated,
		Recipient: "bob@example.com",
		Data:      map[string]any{"customer_name": "<script>x</script>"},
	}))
	require.Len(t, sender.sent, 1)
	assert.NotContains(t, sender.sent[0].html, "<script>")
	assert.Contains(t, sender.sent[0].html, "&lt;script&gt;")
}

func TestEmailServiceSkipsUnroutableEvents(t *testing.T) {
	sender := &fakeSender{}
	es := NewEmailServiceWithSender(sender, nil)
	ctx := context.Background()

	require.NoError(t, es.Notify(ctx, services.Event{Type: services.EventOrderCreated}))
	require.NoError(t, es.Notify(ctx, services.Event{Type: "inventory.restocked", Recipient: "a@b.c"}))
	assert.Empty(t, sender.sent)
}

func TestEmailServiceWrapsSenderErrors(t *testing.T) {
	boom := errors.New("smtp down")
	es := NewEmailServiceWithSender(&fakeSender{err: boom}, nil)

	err := es.Notify(context.Background(), services.Event{
		Type:      services.EventOrderCancelled,
		Recipient: "alice@example.com",
		Reference: "ORD-000002",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestNewEmailServiceProviders(t *testing.T) {
	es, err := NewEmailService(config.EmailConfig{Provider: config.EmailProviderNone}, nil)
	require.NoError(t, err)
	assert.Nil(t, es)

	es, err = NewEmailService(config.EmailConfig{Provider: config.EmailProviderSendGrid, SendGridAPIKey: "key", Sender: "shop@example.com"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, es)

	es, err = NewEmailService(config.EmailConfig{Provider: config.EmailProviderPostmark, PostmarkToken: "token", Sender: "shop@example.com"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, es)

	_, err = NewEmailService(config.EmailConfig{Provider: "pigeon"}, nil)
	assert.Error(t, err)
}

func TestMultiNotifier(t *testing.T) {
	var nilEmail *EmailService
	var nilPublisher *EventPublisher
	assert.Nil(t, NewMultiNotifier(nil, nilEmail, nilPublisher))

	var calls []string
	first := services.NotifierFunc(func(context.Context, services.Event) error {
		calls = append(calls, "first")
		return errors.New("first failed")
	})
	second := services.NotifierFunc(func(context.Context, services.Event) error {
		calls = append(calls, "second")
		return nil
	})

	n := NewMultiNotifier(first, nilEmail, second)
	require.NotNil(t, n)
	err := n.Notify(context.Background(), services.Event{Type: services.EventOrderCreated})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failed")
	assert.Equal(t, []string{"first", "second"}, calls)
}
