package repository

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"go-freshmart/models"
)

// ProductRepository reads catalog documents and moves their stock.
type ProductRepository struct {
	coll *mongo.Collection
}

// NewProductRepository binds the products collection.
func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{coll: db.Collection(ProductsCollection)}
}

// FindByID returns a product.
func (r *ProductRepository) FindByID(ctx context.Context, id primitive.ObjectID) (models.Product, error) {
	var product models.Product
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&product); err != nil {
		return models.Product{}, notFound(err, "product", id.Hex())
	}
	return product, nil
}

// AdjustStock increments stock by delta in a single conditional update. A
// decrement only matches while stock >= -delta; products without a numeric
// stock never match.
func (r *ProductRepository) AdjustStock(ctx context.Context, id primitive.ObjectID, delta int) (bool, error) {
	if delta == 0 {
		return false, nil
	}
	stock := bson.M{"$type": "number"}
	if delta < 0 {
		stock["$gte"] = -delta
	}
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "stock": stock},
		bson.M{"$inc": bson.M{"stock": delta}},
	)
	if err != nil {
		return false, fmt.Errorf("adjust stock of %s: %w", id.Hex(), err)
	}
	return res.MatchedCount == 1, nil
}

// Insert stores a catalog product.
func (r *ProductRepository) Insert(ctx context.Context, product *models.Product) error {
	if product.ID.IsZero() {
		product.ID = primitive.NewObjectID()
	}
	_, err := r.coll.InsertOne(ctx, product)
	return err
}
