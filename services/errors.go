package services

import (
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// ErrValidation reports missing or malformed input. Never retried.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound reports an absent order, subscription, product or store.
	ErrNotFound = errors.New("not found")
	// ErrForbidden reports a principal that is neither owner nor admin.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState reports an operation not allowed in the record's current state.
	ErrInvalidState = errors.New("invalid state")
	// ErrInvalidTransition reports an unknown or disallowed status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrConflict reports a write lost to a concurrent modification.
	ErrConflict = errors.New("concurrent modification")
	// ErrInsufficientStock reports a reservation exceeding available stock.
	// It is also a validation failure.
	ErrInsufficientStock = fmt.Errorf("%w: insufficient stock", ErrValidation)
)

// IsClientError reports whether err belongs to the caller-facing taxonomy.
func IsClientError(err error) bool {
	for _, target := range []error{ErrValidation, ErrNotFound, ErrForbidden, ErrInvalidState, ErrInvalidTransition, ErrConflict} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func parseObjectID(kind, value string) (primitive.ObjectID, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return primitive.NilObjectID, fmt.Errorf("%w: %s id is required", ErrValidation, kind)
	}
	id, err := primitive.ObjectIDFromHex(value)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("%w: malformed %s id %q", ErrValidation, kind, value)
	}
	return id, nil
}
