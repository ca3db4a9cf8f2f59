package repository

import (
	"context"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"go-freshmart/models"
)

// UserRepository reads accounts owned by the user-management collaborator.
type UserRepository struct {
	coll *mongo.Collection
}

// NewUserRepository binds the users collection.
func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{coll: db.Collection(UsersCollection)}
}

// FindByEmail returns the account with the given email.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var user models.User
	if err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return models.User{}, notFound(err, "user", email)
	}
	return user, nil
}
