// Package middleware provides authentication middleware for the API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/drover-ai/drover/pkg/controlplane/api/auth"
	"github.com/drover-ai/drover/pkg/controlplane/api/handlers"
)

// claimsKey is a private context key for validated token claims.
type claimsKey struct{}

// JWTAuth validates the Authorization bearer token on operator endpoints.
func JWTAuth(service *auth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				handlers.Unauthorized(w, "Missing bearer token")
				return
			}

			claims, err := service.ValidateToken(token)
			if err != nil {
				handlers.Unauthorized(w, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the validated claims, or nil outside JWTAuth.
func ClaimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims
}
