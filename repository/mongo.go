package repository

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-freshmart/services"
)

// Collection names.
const (
	ProductsCollection      = "products"
	OrdersCollection        = "orders"
	CountersCollection      = "counters"
	SubscriptionsCollection = "subscriptions"
	StoresCollection        = "store_profiles"
	UsersCollection         = "users"
)

// EnsureIndexes creates the indexes the stores rely on. It is safe to call on every start.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	specs := map[string][]mongo.IndexModel{
		OrdersCollection: {
			{Keys: bson.D{{Key: "order_number", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "order_status", Value: 1}}},
		},
		SubscriptionsCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_delivery_date", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "end_date", Value: 1}}},
			{Keys: bson.D{{Key: "customer_details.email", Value: 1}}},
		},
		StoresCollection: {
			{Keys: bson.D{{Key: "active", Value: 1}}},
		},
		UsersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}
	for name, indexes := range specs {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, indexes); err != nil {
			return fmt.Errorf("create indexes on %s: %w", name, err)
		}
	}
	return nil
}

// notFound translates the driver's no-documents error.
func notFound(err error, kind, id string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s %s", services.ErrNotFound, kind, id)
	}
	return err
}

func findOptions(skip, limit int64, sortField string) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: sortField, Value: -1}})
	if skip > 0 {
		opts.SetSkip(skip)
	}
	if limit > 0 {
		opts.SetLimit(limit)
	}
	return opts
}
