package models

import (
	"time"
)

// PaymentMethod identifies how an order is paid.
type PaymentMethod string

const (
	PaymentMethodGateway        PaymentMethod = "gateway"
	PaymentMethodCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodGateway || m == PaymentMethodCashOnDelivery
}

// PaymentStatus tracks settlement of an order.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// GatewayReference is the verified signal received from the payment gateway.
type GatewayReference struct {
	GatewayOrderID string `bson:"gateway_order_id,omitempty" json:"gateway_order_id,omitempty"`
	PaymentID      string `bson:"payment_id" json:"payment_id"`
	Signature      string `bson:"signature,omitempty" json:"signature,omitempty"`
}

// PaymentDetails records how and when an order was settled.
type PaymentDetails struct {
	Gateway       *GatewayReference `bson:"gateway,omitempty" json:"gateway,omitempty"`
	PaidAt        *time.Time        `bson:"paid_at,omitempty" json:"paid_at,omitempty"`
	SettledBy     string            `bson:"settled_by,omitempty" json:"settled_by,omitempty"`
	SettlementRef string            `bson:"settlement_note,omitempty" json:"settlement_note,omitempty"`
	FailureReason string            `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	RefundedAt    *time.Time        `bson:"refunded_at,omitempty" json:"refunded_at,omitempty"`
}
