package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func newTestLedger(t *testing.T, products *memProducts) *InventoryLedger {
	t.Helper()
	ledger, err := NewInventoryLedger(products, nil)
	require.NoError(t, err)
	return ledger
}

func TestInventoryLedger_ReserveManaged(t *testing.T) {
	products := newMemProducts()
	id := products.add("milk", 2, intPtr(5))
	ledger := newTestLedger(t, products)

	require.NoError(t, ledger.Reserve(context.Background(), id, 2))
	assert.Equal(t, 3, *products.stock(id))

	err := ledger.Reserve(context.Background(), id, 4)
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 3, *products.stock(id))

	require.NoError(t, ledger.Release(context.Background(), id, 2))
	assert.Equal(t, 5, *products.stock(id))
}

func TestInventoryLedger_UnmanagedIsNoop(t *testing.T) {
	products := newMemProducts()
	id := products.add("bread", 3, nil)
	ledger := newTestLedger(t, products)

	require.NoError(t, ledger.Reserve(context.Background(), id, 1000))
	require.NoError(t, ledger.Release(context.Background(), id, 1000))
	assert.Nil(t, products.stock(id))
}

func TestInventoryLedger_Errors(t *testing.T) {
	products := newMemProducts()
	ledger := newTestLedger(t, products)

	err := ledger.Reserve(context.Background(), primitive.NewObjectID(), 1)
	assert.ErrorIs(t, err, ErrNotFound)

	id := products.add("eggs", 4, intPtr(1))
	assert.ErrorIs(t, ledger.Reserve(context.Background(), id, 0), ErrValidation)
	assert.ErrorIs(t, ledger.Release(context.Background(), id, -1), ErrValidation)

	products.adjustFn = func(primitive.ObjectID, int) error { return errBoom }
	assert.ErrorIs(t, ledger.Reserve(context.Background(), id, 1), errBoom)
}

func TestInventoryLedger_ConcurrentReservationsNeverOversell(t *testing.T) {
	products := newMemProducts()
	id := products.add("berries", 6, intPtr(10))
	ledger := newTestLedger(t, products)

	var ok atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ledger.Reserve(context.Background(), id, 1) == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, ok.Load())
	assert.Equal(t, 0, *products.stock(id))
}
