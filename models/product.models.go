package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Product is the catalog collaborator's document as seen by the order flows.
// A nil Stock means inventory is not tracked for the product.
type Product struct {
	ID     primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name   string             `bson:"name" json:"name"`
	Price  float64            `bson:"price" json:"price"`
	Images []string           `bson:"images,omitempty" json:"images,omitempty"`
	Stock  *int               `bson:"stock,omitempty" json:"stock,omitempty"`
}

// StockLevel is either Managed or Unmanaged.
type StockLevel interface {
	stockLevel()
}

// Managed is a stock level tracked per order.
type Managed struct {
	Quantity int
}

// Unmanaged marks a product with unlimited availability.
type Unmanaged struct{}

func (Managed) stockLevel()   {}
func (Unmanaged) stockLevel() {}

// StockLevel returns the tagged inventory state of the product.
func (p Product) StockLevel() StockLevel {
	if p.Stock == nil {
		return Unmanaged{}
	}
	return Managed{Quantity: *p.Stock}
}

// PrimaryImage returns the first image, used in order item snapshots.
func (p Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}
