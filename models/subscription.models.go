package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SubscriptionType bounds the delivery window of a subscription.
type SubscriptionType string

const (
	SubscriptionWeekly   SubscriptionType = "weekly"
	SubscriptionBiweekly SubscriptionType = "biweekly"
	SubscriptionMonthly  SubscriptionType = "monthly"
)

// WindowDays returns the length of the delivery window in days.
func (t SubscriptionType) WindowDays() (int, bool) {
	switch t {
	case SubscriptionWeekly:
		return 7, true
	case SubscriptionBiweekly:
		return 14, true
	case SubscriptionMonthly:
		return 30, true
	}
	return 0, false
}

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// SubscriptionStatuses lists every subscription status.
var SubscriptionStatuses = []SubscriptionStatus{
	SubscriptionActive,
	SubscriptionPaused,
	SubscriptionCancelled,
	SubscriptionExpired,
}

// Valid reports whether s is a known status.
func (s SubscriptionStatus) Valid() bool {
	for _, known := range SubscriptionStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// CustomerDetails is a snapshot of the subscriber, kept apart from any user account.
type CustomerDetails struct {
	Name    string  `bson:"name" json:"name"`
	Email   string  `bson:"email" json:"email"`
	Phone   string  `bson:"phone" json:"phone"`
	Address Address `bson:"address" json:"address"`
}

// SubscriptionItem is a product snapshot delivered on each delivery day.
type SubscriptionItem struct {
	ProductID primitive.ObjectID `bson:"product_id" json:"product_id"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Price     float64            `bson:"price" json:"price"`
}

// Subscription is a daily delivery arrangement inside a fixed window.
type Subscription struct {
	ID                   primitive.ObjectID  `bson:"_id,omitempty" json:"id,omitempty"`
	CustomerDetails      CustomerDetails     `bson:"customer_details" json:"customer_details"`
	Type                 SubscriptionType    `bson:"type" json:"type"`
	Status               SubscriptionStatus  `bson:"status" json:"status"`
	Items                []SubscriptionItem  `bson:"items" json:"items"`
	TotalAmount          float64             `bson:"total_amount" json:"total_amount"`
	StartDate            time.Time           `bson:"start_date" json:"start_date"`
	EndDate              time.Time           `bson:"end_date" json:"end_date"`
	NextDeliveryDate     time.Time           `bson:"next_delivery_date" json:"next_delivery_date"`
	LastDeliveryDate     *time.Time          `bson:"last_delivery_date,omitempty" json:"last_delivery_date,omitempty"`
	PaymentMethod        PaymentMethod       `bson:"payment_method" json:"payment_method"`
	DeliveryInstructions string              `bson:"delivery_instructions,omitempty" json:"delivery_instructions,omitempty"`
	CreatedBy            *primitive.ObjectID `bson:"created_by,omitempty" json:"created_by,omitempty"`
	Version              int64               `bson:"version" json:"-"`
	CreatedAt            time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt            time.Time           `bson:"updated_at" json:"updated_at"`
}

// OwnedBy matches the subscriber snapshot email against the principal.
func (s Subscription) OwnedBy(p Principal) bool {
	email := strings.TrimSpace(p.Email)
	return email != "" && strings.EqualFold(s.CustomerDetails.Email, email)
}
