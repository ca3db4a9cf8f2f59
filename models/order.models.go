package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderStatus is a fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists every recognised order status in fulfilment order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Valid reports whether s is a recognised status.
func (s OrderStatus) Valid() bool {
	for _, known := range OrderStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// OrderItem is a snapshot of a product taken when the order is placed.
type OrderItem struct {
	ProductID  primitive.ObjectID `bson:"product_id" json:"product_id"`
	Name       string             `bson:"name" json:"name"`
	Price      float64            `bson:"price" json:"price"`
	Quantity   int                `bson:"quantity" json:"quantity"`
	TotalPrice float64            `bson:"total_price" json:"total_price"`
	Image      string             `bson:"image,omitempty" json:"image,omitempty"`
	// Restocked marks a line whose quantity went back to inventory after cancellation.
	Restocked bool `bson:"restocked,omitempty" json:"-"`
}

// Pricing holds the computed totals of an order.
type Pricing struct {
	Subtotal    float64 `bson:"subtotal" json:"subtotal"`
	Tax         float64 `bson:"tax" json:"tax"`
	ShippingFee float64 `bson:"shipping_fee" json:"shipping_fee"`
	Discount    float64 `bson:"discount" json:"discount"`
	Total       float64 `bson:"total" json:"total"`
}

// Order represents a user's order
type Order struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	OrderNumber       string             `bson:"order_number" json:"order_number"`
	UserID            primitive.ObjectID `bson:"user_id" json:"user_id"`
	CustomerEmail     string             `bson:"customer_email" json:"customer_email"`
	Items             []OrderItem        `bson:"items" json:"items"`
	ShippingAddress   Address            `bson:"shipping_address" json:"shipping_address"`
	BillingAddress    *Address           `bson:"billing_address,omitempty" json:"billing_address,omitempty"`
	PaymentMethod     PaymentMethod      `bson:"payment_method" json:"payment_method"`
	PaymentStatus     PaymentStatus      `bson:"payment_status" json:"payment_status"`
	Payment           PaymentDetails     `bson:"payment" json:"payment"`
	OrderStatus       OrderStatus        `bson:"order_status" json:"order_status"`
	StatusHistory     StatusLog          `bson:"status_history" json:"status_history"`
	Pricing           Pricing            `bson:"pricing" json:"pricing"`
	EstimatedDelivery *time.Time         `bson:"estimated_delivery,omitempty" json:"estimated_delivery,omitempty"`
	ActualDelivery    *time.Time         `bson:"actual_delivery,omitempty" json:"actual_delivery,omitempty"`
	TrackingNumber    string             `bson:"tracking_number,omitempty" json:"tracking_number,omitempty"`
	Notes             string             `bson:"notes,omitempty" json:"notes,omitempty"`
	StockRestored     bool               `bson:"stock_restored" json:"-"`
	Version           int64              `bson:"version" json:"-"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`
}

// RecordStatus moves the order to status and appends the matching history entry.
// It is the only way OrderStatus changes, keeping it equal to the last history entry.
func (o *Order) RecordStatus(status OrderStatus, at time.Time, note string) {
	if o.StatusHistory.Len() == 0 {
		o.StatusHistory = NewStatusLog(status, at, note)
	} else {
		o.StatusHistory.Append(status, at, note)
	}
	o.OrderStatus = status
	o.UpdatedAt = at
}

// UnmarshalBSON decodes a stored order and takes its status from the last
// history entry, so a stored status field cannot disagree with the log.
func (o *Order) UnmarshalBSON(data []byte) error {
	type orderDocument Order
	if err := bson.Unmarshal(data, (*orderDocument)(o)); err != nil {
		return err
	}
	if o.StatusHistory.Len() > 0 {
		o.OrderStatus = o.StatusHistory.Current()
	}
	return nil
}

// OwnedBy reports whether the order belongs to the principal's account.
func (o Order) OwnedBy(p Principal) bool {
	return !p.ID.IsZero() && o.UserID == p.ID
}
