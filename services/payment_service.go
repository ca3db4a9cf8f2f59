package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"go-freshmart/models"
)

// PaymentService applies payment outcomes to orders. Gateway confirmations
// arrive as an already-verified external signal.
type PaymentService struct {
	lifecycle *OrderService
	dispatch  dispatcher
	logger    *zap.Logger
}

// NewPaymentService builds a reconciler on top of the order lifecycle.
func NewPaymentService(lifecycle *OrderService, notifier Notifier, logger *zap.Logger) (*PaymentService, error) {
	if lifecycle == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		lifecycle: lifecycle,
		dispatch:  dispatcher{notifier: notifier, logger: logger},
		logger:    logger,
	}, nil
}

// VerifyPayment records a gateway confirmation, completes the payment and
// confirms a pending order.
func (s *PaymentService) VerifyPayment(ctx context.Context, principal models.Principal, orderID string, ref models.GatewayReference) (models.Order, error) {
	order, err := s.lifecycle.load(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if err := authorizeOrder(principal, order); err != nil {
		return models.Order{}, err
	}
	if strings.TrimSpace(ref.PaymentID) == "" {
		return models.Order{}, fmt.Errorf("%w: gateway payment id is required", ErrValidation)
	}
	if order.PaymentMethod != models.PaymentMethodGateway {
		return models.Order{}, fmt.Errorf("%w: order %s is not paid through the gateway", ErrInvalidState, order.OrderNumber)
	}
	if order.PaymentStatus != models.PaymentStatusPending && order.PaymentStatus != models.PaymentStatusFailed {
		return models.Order{}, fmt.Errorf("%w: payment of order %s is already %s", ErrInvalidState, order.OrderNumber, order.PaymentStatus)
	}
	if order.OrderStatus == models.OrderStatusCancelled {
		return models.Order{}, fmt.Errorf("%w: order %s is cancelled", ErrInvalidState, order.OrderNumber)
	}

	now := s.lifecycle.clock()
	order.Payment.Gateway = &models.GatewayReference{
		GatewayOrderID: strings.TrimSpace(ref.GatewayOrderID),
		PaymentID:      strings.TrimSpace(ref.PaymentID),
		Signature:      strings.TrimSpace(ref.Signature),
	}
	order.Payment.PaidAt = &now
	order.Payment.FailureReason = ""
	order.PaymentStatus = models.PaymentStatusCompleted

	if order.OrderStatus == models.OrderStatusPending {
		order, err = s.lifecycle.TransitionStatus(ctx, order, models.OrderStatusConfirmed, "payment verified")
	} else {
		order.UpdatedAt = now
		order, err = s.lifecycle.save(ctx, order)
	}
	if err != nil {
		return models.Order{}, err
	}

	s.logger.Info("gateway payment verified",
		zap.String("order_number", order.OrderNumber),
		zap.String("payment_id", order.Payment.Gateway.PaymentID),
	)
	s.notifyPayment(ctx, order, EventOrderPaymentCompleted)
	return order, nil
}

// MarkSettled records collection of a cash-on-delivery payment.
func (s *PaymentService) MarkSettled(ctx context.Context, principal models.Principal, orderID string, note string) (models.Order, error) {
	if err := requireAdmin(principal); err != nil {
		return models.Order{}, err
	}
	order, err := s.lifecycle.load(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.PaymentMethod != models.PaymentMethodCashOnDelivery {
		return models.Order{}, fmt.Errorf("%w: order %s is not a cash-on-delivery order", ErrInvalidState, order.OrderNumber)
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		return models.Order{}, fmt.Errorf("%w: payment of order %s is already %s", ErrInvalidState, order.OrderNumber, order.PaymentStatus)
	}
	if order.OrderStatus == models.OrderStatusCancelled {
		return models.Order{}, fmt.Errorf("%w: order %s is cancelled", ErrInvalidState, order.OrderNumber)
	}

	now := s.lifecycle.clock()
	order.PaymentStatus = models.PaymentStatusCompleted
	order.Payment.PaidAt = &now
	order.Payment.SettledBy = principal.Email
	order.Payment.SettlementRef = strings.TrimSpace(note)
	order.UpdatedAt = now

	order, err = s.lifecycle.save(ctx, order)
	if err != nil {
		return models.Order{}, err
	}
	s.notifyPayment(ctx, order, EventOrderPaymentCompleted)
	return order, nil
}

// RecordFailure marks a pending gateway payment as failed.
func (s *PaymentService) RecordFailure(ctx context.Context, principal models.Principal, orderID string, reason string) (models.Order, error) {
	if err := requireAdmin(principal); err != nil {
		return models.Order{}, err
	}
	order, err := s.lifecycle.load(ctx, orderID)
	if err != nil {
		return models.Order{}, err
	}
	if order.PaymentMethod != models.PaymentMethodGateway {
		return models.Order{}, fmt.Errorf("%w: order %s is not paid through the gateway", ErrInvalidState, order.OrderNumber)
	}
	if order.PaymentStatus != models.PaymentStatusPending {
		return models.Order{}, fmt.Errorf("%w: payment of order %s is already %s", ErrInvalidState, order.OrderNumber, order.PaymentStatus)
	}

	order.PaymentStatus = models.PaymentStatusFailed
	order.Payment.FailureReason = strings.TrimSpace(reason)
	order.UpdatedAt = s.lifecycle.clock()

	order, err = s.lifecycle.save(ctx, order)
	if err != nil {
		return models.Order{}, err
	}
	s.notifyPayment(ctx, order, EventOrderPaymentFailed)
	return order, nil
}

func (s *PaymentService) notifyPayment(ctx context.Context, order models.Order, eventType string) {
	s.dispatch.send(ctx, Event{
		Type:      eventType,
		Recipient: order.CustomerEmail,
		Reference: order.OrderNumber,
		Data: map[string]any{
			"order_id":       order.ID.Hex(),
			"payment_status": string(order.PaymentStatus),
			"payment_method": string(order.PaymentMethod),
			"total":          order.Pricing.Total,
		},
	})
}
