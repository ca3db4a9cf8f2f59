package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"go-freshmart/models"
	"go-freshmart/services"
)

// StoreRepository persists store profiles.
type StoreRepository struct {
	coll *mongo.Collection
}

// NewStoreRepository binds the store profile collection.
func NewStoreRepository(db *mongo.Database) *StoreRepository {
	return &StoreRepository{coll: db.Collection(StoresCollection)}
}

// FindByID returns a store profile.
func (r *StoreRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.StoreProfile, error) {
	var profile models.StoreProfile
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&profile); err != nil {
		return models.StoreProfile{}, notFound(err, "store", id.Hex())
	}
	return profile, nil
}

// FindActive returns the active store profile.
func (r *StoreRepository) FindActive(ctx context.Context) (models.StoreProfile, error) {
	var profile models.StoreProfile
	if err := r.coll.FindOne(ctx, bson.M{"active": true}).Decode(&profile); err != nil {
		return models.StoreProfile{}, notFound(err, "store", "active")
	}
	return profile, nil
}

// DeactivateAllExcept clears the active flag on every other profile.
func (r *StoreRepository) DeactivateAllExcept(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$ne": id}, "active": true},
		bson.M{"$set": bson.M{"active": false, "updated_at": now}},
	)
	return err
}

// SetActive marks one profile active.
func (r *StoreRepository) SetActive(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"active": true, "updated_at": now}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: store %s", services.ErrNotFound, id.Hex())
	}
	return nil
}
