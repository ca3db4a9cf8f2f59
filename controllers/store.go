// controllers/store.go
package controllers

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"go-freshmart/models"
	"go-freshmart/utils"
)

// StoreDirectory serves store profiles.
type StoreDirectory interface {
	ActiveStore(ctx context.Context) (models.StoreProfile, error)
	Activate(ctx context.Context, p models.Principal, id string) (models.StoreProfile, error)
}

// StoreController handles store profile requests.
type StoreController struct {
	stores StoreDirectory
	logger *zap.Logger
}

// NewStoreController creates a StoreController.
func NewStoreController(stores StoreDirectory, logger *zap.Logger) *StoreController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreController{stores: stores, logger: logger}
}

// GetActiveStore returns the active store profile. It needs no authentication.
func (stc *StoreController) GetActiveStore(w http.ResponseWriter, r *http.Request) {
	profile, err := stc.stores.ActiveStore(r.Context())
	if err != nil {
		respondError(w, r, stc.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, profile)
}

// ActivateStore makes a store profile the only active one.
func (stc *StoreController) ActivateStore(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}
	profile, err := stc.stores.Activate(r.Context(), p, mux.Vars(r)["id"])
	if err != nil {
		respondError(w, r, stc.logger, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, profile)
}
