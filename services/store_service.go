package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go-freshmart/models"
)

// StoreDirectory serves the active store profile and switches between profiles.
type StoreDirectory struct {
	stores     StoreProfileStore
	unitOfWork UnitOfWork
	clock      func() time.Time
	logger     *zap.Logger
}

// NewStoreDirectory constructs a StoreDirectory.
func NewStoreDirectory(stores StoreProfileStore, unit UnitOfWork, clock func() time.Time, logger *zap.Logger) (*StoreDirectory, error) {
	if stores == nil {
		return nil, errors.New("store directory: store profile store is required")
	}
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	if clock == nil {
		clock = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreDirectory{stores: stores, unitOfWork: unit, clock: clock, logger: logger}, nil
}

// ActiveStore returns the single active profile.
func (d *StoreDirectory) ActiveStore(ctx context.Context) (models.StoreProfile, error) {
	profile, err := d.stores.FindActive(ctx)
	if err != nil {
		return models.StoreProfile{}, fmt.Errorf("active store: %w", err)
	}
	return profile, nil
}

// Activate makes the given profile the only active one.
func (d *StoreDirectory) Activate(ctx context.Context, principal models.Principal, id string) (models.StoreProfile, error) {
	if err := requireAdmin(principal); err != nil {
		return models.StoreProfile{}, err
	}
	storeID, err := parseObjectID("store", id)
	if err != nil {
		return models.StoreProfile{}, err
	}
	if _, err := d.stores.FindByID(ctx, storeID); err != nil {
		return models.StoreProfile{}, fmt.Errorf("load store %s: %w", storeID.Hex(), err)
	}

	now := d.clock().UTC()
	err = d.unitOfWork.RunInTx(ctx, func(txCtx context.Context) error {
		if err := d.stores.DeactivateAllExcept(txCtx, storeID, now); err != nil {
			return fmt.Errorf("deactivate stores: %w", err)
		}
		if err := d.stores.SetActive(txCtx, storeID, now); err != nil {
			return fmt.Errorf("activate store %s: %w", storeID.Hex(), err)
		}
		return nil
	})
	if err != nil {
		return models.StoreProfile{}, err
	}

	d.logger.Info("store profile activated", zap.String("store_id", storeID.Hex()))
	profile, err := d.stores.FindByID(ctx, storeID)
	if err != nil {
		return models.StoreProfile{}, fmt.Errorf("load store %s: %w", storeID.Hex(), err)
	}
	return profile, nil
}
