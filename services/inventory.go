package services

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"go-freshmart/models"
)

// InventoryLedger moves stock for stock-managed products and ignores unmanaged ones.
// The decision to decrement is made by the store's conditional update, never by a
// prior read, so concurrent reservations cannot oversell.
type InventoryLedger struct {
	products ProductStore
	logger   *zap.Logger
}

// NewInventoryLedger constructs a ledger over the product store.
func NewInventoryLedger(products ProductStore, logger *zap.Logger) (*InventoryLedger, error) {
	if products == nil {
		return nil, errors.New("inventory ledger: product store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryLedger{products: products, logger: logger}, nil
}

// Reserve takes quantity units out of stock.
func (l *InventoryLedger) Reserve(ctx context.Context, productID primitive.ObjectID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	changed, err := l.products.AdjustStock(ctx, productID, -quantity)
	if err != nil {
		return fmt.Errorf("reserve stock for %s: %w", productID.Hex(), err)
	}
	if changed {
		return nil
	}

	product, err := l.products.FindByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("reserve stock for %s: %w", productID.Hex(), err)
	}
	switch level := product.StockLevel().(type) {
	case models.Unmanaged:
		return nil
	case models.Managed:
		return fmt.Errorf("%w: %s has %d, requested %d", ErrInsufficientStock, product.Name, level.Quantity, quantity)
	default:
		return fmt.Errorf("reserve stock for %s: unknown stock level %T", productID.Hex(), level)
	}
}

// Release returns quantity units to stock.
func (l *InventoryLedger) Release(ctx context.Context, productID primitive.ObjectID, quantity int) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	changed, err := l.products.AdjustStock(ctx, productID, quantity)
	if err != nil {
		return fmt.Errorf("release stock for %s: %w", productID.Hex(), err)
	}
	if changed {
		return nil
	}

	product, err := l.products.FindByID(ctx, productID)
	if err != nil {
		return fmt.Errorf("release stock for %s: %w", productID.Hex(), err)
	}
	switch level := product.StockLevel().(type) {
	case models.Unmanaged:
		return nil
	case models.Managed:
		// A positive delta on a managed product always matches unless the
		// document changed shape between the two calls.
		return fmt.Errorf("%w: stock of %s changed during release", ErrConflict, productID.Hex())
	default:
		return fmt.Errorf("release stock for %s: unknown stock level %T", productID.Hex(), level)
	}
}
