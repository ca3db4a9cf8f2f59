package services

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"go-freshmart/models"
)

func TestPricingCalculator_LineTotalRoundsToCents(t *testing.T) {
	var calc PricingCalculator
	assert.Equal(t, 0.3, calc.LineTotal(0.1, 3))
	assert.Equal(t, 20.0, calc.LineTotal(10, 2))
	assert.Equal(t, 3.35, calc.LineTotal(1.115, 3))
}

func TestPricingCalculator_OrderTotals(t *testing.T) {
	items := []models.OrderItem{
		{Price: 10, Quantity: 2, TotalPrice: 20},
		{Price: 5, Quantity: 1, TotalPrice: 5},
	}

	pricing := PricingCalculator{}.Order(items)
	assert.Equal(t, models.Pricing{Subtotal: 25, Total: 25}, pricing)

	withRules := PricingCalculator{
		Shipping: func(decimal.Decimal) decimal.Decimal { return decimal.NewFromFloat(4.99) },
		Discount: func(sub decimal.Decimal) decimal.Decimal { return sub.Mul(decimal.NewFromFloat(0.1)) },
	}.Order(items)
	assert.Equal(t, 25.0, withRules.Subtotal)
	assert.Equal(t, 4.99, withRules.ShippingFee)
	assert.Equal(t, 2.5, withRules.Discount)
	assert.Equal(t, 27.49, withRules.Total)
	assert.Zero(t, withRules.Tax)
}

func TestPricingCalculator_NegativeRulesClampToZero(t *testing.T) {
	calc := PricingCalculator{
		Shipping: func(decimal.Decimal) decimal.Decimal { return decimal.NewFromInt(-3) },
	}
	pricing := calc.Order([]models.OrderItem{{Price: 2, Quantity: 1, TotalPrice: 2}})
	assert.Zero(t, pricing.ShippingFee)
	assert.Equal(t, 2.0, pricing.Total)
}

func TestPricingCalculator_SubscriptionTotal(t *testing.T) {
	total := PricingCalculator{}.SubscriptionTotal([]models.SubscriptionItem{
		{Price: 1.2, Quantity: 3},
		{Price: 0.45, Quantity: 2},
	})
	assert.Equal(t, 4.5, total)
}
