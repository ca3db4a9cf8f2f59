package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"go-freshmart/models"
	"go-freshmart/services"
)

// SubscriptionRepository persists subscriptions. Status changes are
// conditioned on the status and version the caller read.
type SubscriptionRepository struct {
	coll *mongo.Collection
}

// NewSubscriptionRepository binds the subscriptions collection.
func NewSubscriptionRepository(db *mongo.Database) *SubscriptionRepository {
	return &SubscriptionRepository{coll: db.Collection(SubscriptionsCollection)}
}

// Insert stores a new subscription.
func (r *SubscriptionRepository) Insert(ctx context.Context, sub *models.Subscription) error {
	if sub.ID.IsZero() {
		sub.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, sub)
	return err
}

// FindByID returns a subscription.
func (r *SubscriptionRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.Subscription, error) {
	var sub models.Subscription
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&sub); err != nil {
		return models.Subscription{}, notFound(err, "subscription", id.Hex())
	}
	return sub, nil
}

// List returns a page of subscriptions, newest first, and the total match count.
func (r *SubscriptionRepository) List(ctx context.Context, filter services.SubscriptionFilter) ([]models.Subscription, int64, error) {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Type != "" {
		query["type"] = filter.Type
	}
	if email := strings.TrimSpace(filter.Email); email != "" {
		query["customer_details.email"] = strings.ToLower(email)
	}

	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	cursor, err := r.coll.Find(ctx, query, findOptions(filter.Skip, filter.Limit, "created_at"))
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	subs := []models.Subscription{}
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, 0, err
	}
	return subs, total, nil
}

// UpdateIfStatus replaces the subscription while its stored status equals
// expected and its stored version equals sub.Version.
func (r *SubscriptionRepository) UpdateIfStatus(ctx context.Context, sub models.Subscription, expected models.SubscriptionStatus) error {
	filter := bson.M{"_id": sub.ID, "status": expected, "version": sub.Version}
	sub.Version++
	res, err := r.coll.ReplaceOne(ctx, filter, sub)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": sub.ID})
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: subscription %s", services.ErrNotFound, sub.ID.Hex())
	}
	return fmt.Errorf("%w: subscription %s changed since it was read", services.ErrConflict, sub.ID.Hex())
}

// ExpireEnded expires active and paused subscriptions that ended before cutoff.
// Each candidate is updated on its own status and version, so one changed by a
// concurrent request after the scan is left alone.
func (r *SubscriptionRepository) ExpireEnded(ctx context.Context, cutoff time.Time, now time.Time) ([]models.Subscription, error) {
	cursor, err := r.coll.Find(ctx, bson.M{
		"status":   bson.M{"$in": bson.A{models.SubscriptionActive, models.SubscriptionPaused}},
		"end_date": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return nil, err
	}
	var candidates []models.Subscription
	if err := cursor.All(ctx, &candidates); err != nil {
		return nil, err
	}

	expired := make([]models.Subscription, 0, len(candidates))
	for _, sub := range candidates {
		res, err := r.coll.UpdateOne(ctx,
			bson.M{"_id": sub.ID, "status": sub.Status, "version": sub.Version},
			bson.M{
				"$set": bson.M{"status": models.SubscriptionExpired, "updated_at": now},
				"$inc": bson.M{"version": 1},
			},
		)
		if err != nil {
			return expired, fmt.Errorf("expire subscription %s: %w", sub.ID.Hex(), err)
		}
		if res.ModifiedCount == 0 {
			continue
		}
		sub.Status = models.SubscriptionExpired
		sub.UpdatedAt = now
		sub.Version++
		expired = append(expired, sub)
	}
	return expired, nil
}

// ListDue returns active subscriptions with a next delivery date in [from, to], earliest first.
func (r *SubscriptionRepository) ListDue(ctx context.Context, from, to time.Time) ([]models.Subscription, error) {
	cursor, err := r.coll.Find(ctx,
		bson.M{
			"status":             models.SubscriptionActive,
			"next_delivery_date": bson.M{"$gte": from, "$lte": to},
		},
		options.Find().SetSort(bson.D{{Key: "next_delivery_date", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	subs := []models.Subscription{}
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

// Aggregate counts subscriptions and sums their amounts per status.
func (r *SubscriptionRepository) Aggregate(ctx context.Context) (map[models.SubscriptionStatus]services.StatusAggregate, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$status"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "amount", Value: bson.D{{Key: "$sum", Value: "$total_amount"}}},
		}}},
	}
	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		Status models.SubscriptionStatus `bson:"_id"`
		Count  int64                     `bson:"count"`
		Amount float64                   `bson:"amount"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	out := make(map[models.SubscriptionStatus]services.StatusAggregate, len(rows))
	for _, row := range rows {
		out[row.Status] = services.StatusAggregate{Count: row.Count, Amount: row.Amount}
	}
	return out, nil
}
