package services

import (
	"github.com/shopspring/decimal"

	"go-freshmart/models"
)

const moneyPlaces = 2

// FeeRule derives a fee or discount from an order subtotal.
type FeeRule func(subtotal decimal.Decimal) decimal.Decimal

// PricingCalculator computes order and subscription totals from item snapshots.
// It performs no I/O. Shipping and Discount default to zero.
type PricingCalculator struct {
	Shipping FeeRule
	Discount FeeRule
}

// LineTotal returns price × quantity rounded to cents.
func (c PricingCalculator) LineTotal(price float64, quantity int) float64 {
	return lineTotal(price, quantity).InexactFloat64()
}

// Order computes the pricing block for the given item snapshots.
// Each item's TotalPrice must already be set by LineTotal.
func (c PricingCalculator) Order(items []models.OrderItem) models.Pricing {
	subtotal := decimal.Zero
	for _, item := range items {
		subtotal = subtotal.Add(decimal.NewFromFloat(item.TotalPrice))
	}
	subtotal = subtotal.Round(moneyPlaces)

	shipping := applyRule(c.Shipping, subtotal)
	discount := applyRule(c.Discount, subtotal)
	total := subtotal.Add(shipping).Sub(discount).Round(moneyPlaces)

	return models.Pricing{
		Subtotal:    subtotal.InexactFloat64(),
		Tax:         0,
		ShippingFee: shipping.InexactFloat64(),
		Discount:    discount.InexactFloat64(),
		Total:       total.InexactFloat64(),
	}
}

// SubscriptionTotal returns Σ price × quantity over subscription items.
func (c PricingCalculator) SubscriptionTotal(items []models.SubscriptionItem) float64 {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(lineTotal(item.Price, item.Quantity))
	}
	return total.Round(moneyPlaces).InexactFloat64()
}

func lineTotal(price float64, quantity int) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))).Round(moneyPlaces)
}

func applyRule(rule FeeRule, subtotal decimal.Decimal) decimal.Decimal {
	if rule == nil {
		return decimal.Zero
	}
	fee := rule(subtotal)
	if fee.IsNegative() {
		return decimal.Zero
	}
	return fee.Round(moneyPlaces)
}
