package models

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Roles recognised by the authorization checks.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Address represents a postal address used for delivery or billing
type Address struct {
	FullName string `bson:"full_name,omitempty" json:"full_name,omitempty"`
	Phone    string `bson:"phone,omitempty" json:"phone,omitempty"`
	Street   string `bson:"street" json:"street"`
	City     string `bson:"city" json:"city"`
	State    string `bson:"state" json:"state"`
	ZipCode  string `bson:"zipcode" json:"zipcode"`
	Country  string `bson:"country,omitempty" json:"country,omitempty"`
}

// User represents an account owned by the user-management collaborator.
// The core only ever reads it.
type User struct {
	ID      primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name    string             `bson:"name" json:"name"`
	Email   string             `bson:"email" json:"email"`
	Address Address            `bson:"address" json:"address"`
	Role    string             `bson:"role" json:"role"` // "user" or "admin"
}

// Principal is the authenticated caller of an operation.
type Principal struct {
	ID    primitive.ObjectID
	Email string
	Role  string
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// PrincipalFromUser builds the principal view of a user account.
func PrincipalFromUser(u User) Principal {
	role := u.Role
	if role == "" {
		role = RoleUser
	}
	return Principal{ID: u.ID, Email: u.Email, Role: role}
}
