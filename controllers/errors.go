// controllers/errors.go
package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"go-freshmart/middleware"
	"go-freshmart/models"
	"go-freshmart/services"
	"go-freshmart/utils"
)

const maxBodyBytes = 1 << 20

// respondError maps service errors onto HTTP statuses. Anything outside the
// service taxonomy is logged and hidden behind a 500.
func respondError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		utils.WriteError(w, r, http.StatusGatewayTimeout, "timeout", "request timed out")
		return
	}
	if !services.IsClientError(err) {
		logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		utils.WriteError(w, r, http.StatusInternalServerError, "internal_server_error", "internal server error")
		return
	}
	var status int
	var code string
	switch {
	case errors.Is(err, services.ErrInsufficientStock):
		status, code = http.StatusBadRequest, "insufficient_stock"
	case errors.Is(err, services.ErrValidation):
		status, code = http.StatusBadRequest, "validation_failed"
	case errors.Is(err, services.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrInvalidTransition):
		status, code = http.StatusConflict, "invalid_transition"
	case errors.Is(err, services.ErrInvalidState):
		status, code = http.StatusConflict, "invalid_state"
	default:
		status, code = http.StatusConflict, "conflict"
	}
	utils.WriteError(w, r, status, code, err.Error())
}

// principal returns the caller, writing a 401 when the request is unauthenticated.
func principal(w http.ResponseWriter, r *http.Request) (models.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		utils.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "authentication required")
	}
	return p, ok
}

// decodeBody reads a JSON body into dst. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	utils.WriteError(w, r, http.StatusBadRequest, "invalid_body", fmt.Sprintf("invalid request body: %v", err))
	return false
}
