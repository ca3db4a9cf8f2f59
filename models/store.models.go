package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StoreProfile is the storefront's business profile. Exactly one is active.
type StoreProfile struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name      string             `bson:"name" json:"name"`
	Email     string             `bson:"email" json:"email"`
	Phone     string             `bson:"phone" json:"phone"`
	Address   Address            `bson:"address" json:"address"`
	Active    bool               `bson:"active" json:"active"`
	UpdatedAt time.Time          `bson:"updated_at" json:"updated_at"`
}
