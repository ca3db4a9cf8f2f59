package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"go-freshmart/models"
	"go-freshmart/services"
)

// OrderRepository persists orders with optimistic versioning.
type OrderRepository struct {
	coll *mongo.Collection
}

// NewOrderRepository binds the orders collection.
func NewOrderRepository(db *mongo.Database) *OrderRepository {
	return &OrderRepository{coll: db.Collection(OrdersCollection)}
}

// Insert stores a new order.
func (r *OrderRepository) Insert(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := r.coll.InsertOne(ctx, order); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: order %s already exists", services.ErrConflict, order.OrderNumber)
		}
		return err
	}
	return nil
}

// FindByID returns an order.
func (r *OrderRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.Order, error) {
	var order models.Order
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&order); err != nil {
		return models.Order{}, notFound(err, "order", id.Hex())
	}
	return order, nil
}

// List returns a page of orders, newest first, and the total match count.
func (r *OrderRepository) List(ctx context.Context, filter services.OrderFilter) ([]models.Order, int64, error) {
	query := bson.M{}
	if filter.UserID != nil {
		query["user_id"] = *filter.UserID
	}
	if filter.Status != "" {
		query["order_status"] = filter.Status
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

	orders := []models.Order{}
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// Update replaces the order if the stored version still matches.
func (r *OrderRepository) Update(ctx context.Context, order models.Order) error {
	expected := order.Version
	order.Version++
	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": order.ID, "version": expected}, order)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	count, err := r.coll.CountDocuments(ctx, bson.M{"_id": order.ID})
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: order %s", services.ErrNotFound, order.ID.Hex())
	}
	return fmt.Errorf("%w: order %s was modified concurrently", services.ErrConflict, order.OrderNumber)
}
