package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"go-freshmart/models"
)

// Stores return errors wrapping ErrNotFound for absent records and ErrConflict
// when a conditional write matched nothing.

// ProductStore is the catalog collaborator: a read lookup plus a conditional stock mutation.
type ProductStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Product, error)
	// AdjustStock applies delta to a stock-managed product only if the resulting
	// stock stays non-negative. It reports whether a document was changed; unmanaged
	// and missing products are never changed.
	AdjustStock(ctx context.Context, id primitive.ObjectID, delta int) (bool, error)
}

// OrderStore persists orders.
type OrderStore interface {
	Insert(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error)
	List(ctx context.Context, filter OrderFilter) ([]models.Order, int64, error)
	// Update replaces the stored order if its version still equals order.Version,
	// then stores it with the version incremented.
	Update(ctx context.Context, order models.Order) error
}

// OrderFilter narrows an order listing.
type OrderFilter struct {
	UserID *primitive.ObjectID
	Status models.OrderStatus
	Skip   int64
	Limit  int64
}

// CounterStore hands out strictly increasing sequence values.
type CounterStore interface {
	Next(ctx context.Context, name string) (int64, error)
}

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	Insert(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id primitive.ObjectID) (models.Subscription, error)
	List(ctx context.Context, filter SubscriptionFilter) ([]models.Subscription, int64, error)
	// UpdateIfStatus replaces the stored subscription only while its status still
	// equals expected and its version equals sub.Version. The stored version
	// becomes sub.Version+1.
	UpdateIfStatus(ctx context.Context, sub models.Subscription, expected models.SubscriptionStatus) error
	// ExpireEnded moves active and paused subscriptions whose end date is before
	// cutoff to expired and returns the subscriptions it changed. Each one is
	// written under the same status and version guard as UpdateIfStatus.
	ExpireEnded(ctx context.Context, cutoff time.Time, now time.Time) ([]models.Subscription, error)
	// ListDue returns active subscriptions with a next delivery date in [from, to].
	ListDue(ctx context.Context, from, to time.Time) ([]models.Subscription, error)
	Aggregate(ctx context.Context) (map[models.SubscriptionStatus]StatusAggregate, error)
}

// SubscriptionFilter narrows a subscription listing.
type SubscriptionFilter struct {
	Status models.SubscriptionStatus
	Type   models.SubscriptionType
	Email  string
	Skip   int64
	Limit  int64
}

// StatusAggregate is a per-status count and amount total.
type StatusAggregate struct {
	Count  int64
	Amount float64
}

// StoreProfileStore persists store profiles.
type StoreProfileStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (models.StoreProfile, error)
	FindActive(ctx context.Context) (models.StoreProfile, error)
	DeactivateAllExcept(ctx context.Context, id primitive.ObjectID, now time.Time) error
	SetActive(ctx context.Context, id primitive.ObjectID, now time.Time) error
}

// UserStore resolves accounts for principal lookup.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// UnitOfWork groups store operations in one transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
