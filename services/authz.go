package services

import (
	"fmt"

	"go-freshmart/models"
)

func requireAdmin(p models.Principal) error {
	if !p.IsAdmin() {
		return fmt.Errorf("%w: admin role required", ErrForbidden)
	}
	return nil
}

// orders are owned by account id.
func authorizeOrder(p models.Principal, order models.Order) error {
	if p.IsAdmin() || order.OwnedBy(p) {
		return nil
	}
	return fmt.Errorf("%w: order %s", ErrForbidden, order.OrderNumber)
}

// subscriptions are owned by the subscriber snapshot email.
func authorizeSubscription(p models.Principal, sub models.Subscription) error {
	if p.IsAdmin() || sub.OwnedBy(p) {
		return nil
	}
	return fmt.Errorf("%w: subscription %s", ErrForbidden, sub.ID.Hex())
}
