package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"go-freshmart/models"
	"go-freshmart/services"
	"go-freshmart/utils"
)

// Key type for context
type contextKey string

const principalContextKey = contextKey("principal")

// WithPrincipal attaches the principal to ctx.
func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// PrincipalFromContext returns the authenticated caller, if any.
func PrincipalFromContext(ctx context.Context) (models.Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(models.Principal)
	return p, ok
}

// AuthMiddleware verifies the bearer token and resolves the account it names
// into a principal on the request context.
func AuthMiddleware(users services.UserStore, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				utils.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "authorization header missing")
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				utils.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "invalid authorization header format")
				return
			}

			claims, err := utils.ParseToken(parts[1])
			if err != nil {
				utils.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			user, err := users.FindByEmail(r.Context(), claims.Email)
			if err != nil {
				if errors.Is(err, services.ErrNotFound) {
					utils.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "account not found")
					return
				}
				logger.Error("resolve principal", zap.Error(err))
				utils.WriteError(w, r, http.StatusInternalServerError, "internal_server_error", "internal server error")
				return
			}

			ctx := WithPrincipal(r.Context(), models.PrincipalFromUser(user))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware ensures that the user has admin privileges
func AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromContext(r.Context())
		if !ok || !p.IsAdmin() {
			utils.WriteError(w, r, http.StatusForbidden, "forbidden", "admins only")
			return
		}
		next.ServeHTTP(w, r)
	})
}
