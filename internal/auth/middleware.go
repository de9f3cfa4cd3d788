package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/stockx/market-engine/internal/model"
)

type contextKey struct{}

// UserFromContext returns the authenticated user placed by Middleware.
func UserFromContext(ctx context.Context) *model.User {
	user, _ := ctx.Value(contextKey{}).(*model.User)
	return user
}

// Middleware resolves the bearer token on each request and injects the
// user into the request context. Unknown or expired tokens get 401.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)

		user, err := s.ResolveToken(r.Context(), token)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Fallback for clients that send the raw token.
	return r.Header.Get("X-Session-Token")
}
