package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CounterRepository hands out sequence values from the counters collection.
type CounterRepository struct {
	coll *mongo.Collection
}

type counterDoc struct {
	Name  string `bson:"_id"`
	Value int64  `bson:"value"`
}

// NewCounterRepository binds the counters collection.
func NewCounterRepository(db *mongo.Database) *CounterRepository {
	return &CounterRepository{coll: db.Collection(CountersCollection)}
}

// Next atomically increments and returns the named counter, starting at 1.
func (r *CounterRepository) Next(ctx context.Context, name string) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc counterDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next %s: %w", name, err)
	}
	return doc.Value, nil
}
