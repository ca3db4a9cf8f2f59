// utils/email.go
package utils

import (
	"context"
	"errors"
	"fmt"
	"html"

	"github.com/keighl/postmark"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	"go-freshmart/config"
	"go-freshmart/services"
)

// MailSender delivers one rendered email.
type MailSender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// EmailService turns order and subscription events into customer emails.
type EmailService struct {
	sender MailSender
	logger *zap.Logger
}

// NewEmailService picks the configured provider. It returns nil when email is disabled.
func NewEmailService(cfg config.EmailConfig, logger *zap.Logger) (*EmailService, error) {
	var sender MailSender
	switch cfg.Provider {
	case config.EmailProviderSendGrid:
		sender = &sendGridSender{client: sendgrid.NewSendClient(cfg.SendGridAPIKey), from: cfg.Sender}
	case config.EmailProviderPostmark:
		sender = &postmarkSender{client: postmark.NewClient(cfg.PostmarkToken, ""), from: cfg.Sender}
	case config.EmailProviderNone, "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
	return NewEmailServiceWithSender(sender, logger), nil
}

// NewEmailServiceWithSender builds an EmailService over any sender.
func NewEmailServiceWithSender(sender MailSender, logger *zap.Logger) *EmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailService{sender: sender, logger: logger}
}

// Notify renders the event and emails its recipient. Events without a
// recipient or without a template are skipped.
func (es *EmailService) Notify(ctx context.Context, event services.Event) error {
	if event.Recipient == "" {
		return nil
	}
	subject, body, ok := renderEvent(event)
	if !ok {
		return nil
	}
	if err := es.sender.Send(ctx, event.Recipient, subject, body, body); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	es.logger.Debug("email sent", zap.String("type", event.Type), zap.String("reference", event.Reference))
	return nil
}

func renderEvent(event services.Event) (string, string, bool) {
	ref := html.EscapeString(event.Reference)
	str := func(key string) string {
		if v, ok := event.Data[key]; ok {
			return html.EscapeString(fmt.Sprint(v))
		}
		return ""
	}

	switch event.Type {
	case services.EventOrderCreated:
		return "Order Confirmation", fmt.Sprintf(
			"<strong>Dear Customer,</strong><br><br>Thank you for your purchase! Your order <strong>%s</strong> has been placed and should arrive by <strong>%s</strong>.<br><br>Total Amount: <strong>%s</strong><br>Payment Method: <strong>%s</strong>",
			ref, str("estimated_delivery"), str("total"), str("payment_method"),
		), true
	case services.EventOrderStatusChanged:
		body := fmt.Sprintf("Your order <strong>%s</strong> is now <strong>%s</strong>.", ref, str("status"))
		if tracking := str("tracking_number"); tracking != "" {
			body += fmt.Sprintf("<br>Tracking number: <strong>%s</strong>", tracking)
		}
		return "Order Update", body, true
	case services.EventOrderCancelled:
		return "Order Cancelled", fmt.Sprintf("Your order <strong>%s</strong> has been cancelled. %s", ref, str("note")), true
	case services.EventOrderPaymentCompleted:
		return "Payment Received", fmt.Sprintf("We received your payment of <strong>%s</strong> for order <strong>%s</strong>.", str("total"), ref), true
	case services.EventOrderPaymentFailed:
		return "Payment Failed", fmt.Sprintf("The payment for order <strong>%s</strong> did not go through. Please try again.", ref), true
	case services.EventSubscriptionCreated:
		return "Subscription Started", fmt.Sprintf(
			"Hi %s,<br><br>Your <strong>%s</strong> subscription is active. First delivery: <strong>%s</strong>. Last day: <strong>%s</strong>.",
			str("customer_name"), str("type"), str("next_delivery_date"), str("end_date"),
		), true
	case services.EventSubscriptionStatus:
		return "Subscription Update", fmt.Sprintf("Your subscription is now <strong>%s</strong>.", str("status")), true
	case services.EventSubscriptionDelivered:
		return "Delivery Completed", fmt.Sprintf("Today's delivery is done. Next delivery: <strong>%s</strong>.", str("next_delivery_date")), true
	case services.EventSubscriptionExpired:
		return "Subscription Completed", "Your subscription window has ended. Thank you for staying with us!", true
	}
	return "", "", false
}

type sendGridSender struct {
	client *sendgrid.Client
	from   string
}

func (s *sendGridSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	message := mail.NewSingleEmail(mail.NewEmail("", s.from), subject, mail.NewEmail("", to), textBody, htmlBody)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type postmarkSender struct {
	client *postmark.Client
	from   string
}

func (s *postmarkSender) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	resp, err := s.client.SendEmail(postmark.Email{
		From:     s.from,
		To:       to,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
	if err != nil {
		return err
	}
	if resp.ErrorCode != 0 {
		return errors.New(resp.Message)
	}
	return nil
}
